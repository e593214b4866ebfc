package state

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"emberwatch/domain"
)

// MaxLogEntries は思考ログの上限です。超過分は古い順に捨てられます。
// エージェントの1ステップごとに追記されるため、これが唯一のバックプレッシャになります。
const MaxLogEntries = 50

// Store はダッシュボードの読み取りモデルです。
// ストリーム経由のメッセージとコマンド応答の2系統から更新されるため、
// 排他制御付きで全操作を提供します。各更新はスナップショット置換なので
// 到着順が前後しても最後に適用されたものに収束します。
type Store struct {
	mu sync.RWMutex

	game    domain.GameState
	hasGame bool

	agents []domain.AgentDescriptor

	logs []domain.LogEntry

	screen   []byte
	screenAt time.Time

	clk func() time.Time
}

// NewStore は初期ロスターを備えた空のストアを生成します。
// セッションごとに生成し、セッション終了とともに破棄します。
func NewStore() *Store {
	return &Store{
		agents: domain.DefaultRoster(),
		clk:    time.Now,
	}
}

// WithClock はテスト用に時間ソースを差し替えます。
func (s *Store) WithClock(clock func() time.Time) *Store {
	if clock != nil {
		s.clk = clock
	}
	return s
}

// UpdateGameState はゲーム状態を丸ごと置き換えます。フィールド単位のマージは行いません。
func (s *Store) UpdateGameState(snapshot domain.GameState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.game = snapshot
	s.hasGame = true
}

// GameState は現在のスナップショットを返します。一度も更新されていなければ ok=false。
func (s *Store) GameState() (domain.GameState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.game, s.hasGame
}

// UpdateAgentStatus は名前でエージェントを引き、状態を更新します。
// ロスターに無い名前は何もしません（挿入もエラーもしない）。
func (s *Store) UpdateAgentStatus(name string, status domain.AgentStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.agents {
		if s.agents[i].Name == name {
			s.agents[i].Status = status
			return
		}
	}
}

// SetAllAgentStatuses はロスター全員の状態を一括で更新します。start/stop遷移用。
func (s *Store) SetAllAgentStatuses(status domain.AgentStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.agents {
		s.agents[i].Status = status
	}
}

// Agents はロスターのコピーを返します。
func (s *Store) Agents() []domain.AgentDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.AgentDescriptor(nil), s.agents...)
}

// AddLog は現在時刻を付与してログを追記し、上限を超えた分を先頭から捨てます。
func (s *Store) AddLog(agent, action, details string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, domain.NewLogEntry(agent, action, details, s.clk()))
	if len(s.logs) > MaxLogEntries {
		s.logs = append(s.logs[:0:0], s.logs[len(s.logs)-MaxLogEntries:]...)
	}
}

// Logs はログ列のコピーを古い順で返します。
func (s *Store) Logs() []domain.LogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.LogEntry(nil), s.logs...)
}

// ClearLogs はログ列を空にします。
func (s *Store) ClearLogs() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = nil
}

// SetScreen は最新のスクリーンキャプチャを置き換えます。
func (s *Store) SetScreen(png []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.screen = png
	s.screenAt = s.clk()
}

// Screen は最新のスクリーンキャプチャと受信時刻を返します。
func (s *Store) Screen() ([]byte, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.screen, s.screenAt
}

// Snapshot は描画用の一貫したコピーを返します。
type Snapshot struct {
	Game     domain.GameState
	HasGame  bool
	Agents   []domain.AgentDescriptor
	Logs     []domain.LogEntry
	ScreenKB int
	ScreenAt time.Time
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Game:     s.game,
		HasGame:  s.hasGame,
		Agents:   append([]domain.AgentDescriptor(nil), s.agents...),
		Logs:     append([]domain.LogEntry(nil), s.logs...),
		ScreenKB: len(s.screen) / 1024,
		ScreenAt: s.screenAt,
	}
}

// 以下はストリームからの畳み込み入口。stream.Handler を満たします。

// HandleGameState は game_state フレームをスナップショット置換として適用します。
func (s *Store) HandleGameState(ctx context.Context, snapshot domain.GameState) {
	s.UpdateGameState(snapshot)
	slog.DebugContext(ctx, "store: game state replaced",
		"party_count", snapshot.Party.PartyCount, "in_battle", snapshot.InBattle)
}

// HandleAgentAction は agent_action フレームをログに追記します。
func (s *Store) HandleAgentAction(ctx context.Context, action domain.AgentAction) {
	s.AddLog(action.Agent, action.Action, action.Details)
	slog.DebugContext(ctx, "store: agent action logged", "agent", action.Agent, "action", action.Action)
}

// HandleScreen は screen フレームをデコードして保持します。
func (s *Store) HandleScreen(ctx context.Context, frame domain.ScreenFrame) {
	png, err := frame.DecodeImage()
	if err != nil {
		slog.WarnContext(ctx, "store: screen frame discarded", "err", err)
		return
	}
	s.SetScreen(png)
}
