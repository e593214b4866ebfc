package simulator

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"emberwatch/domain"
)

// バックエンドなしでダッシュボードを動かすための、ごく小さな偽バックエンドです。
// 状態機械とワイヤ形式だけ本物に合わせ、ゲーム進行は乱数で適当に作ります。

var (
	ErrAlreadyRunning = errors.New("Game already running")
	ErrNotRunning     = errors.New("Game not running")
)

// 1x1の白ピクセルPNG。スクリーン応答のダミー画像。
var placeholderPNG = []byte{
	0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A,
	0x00, 0x00, 0x00, 0x0D, 0x49, 0x48, 0x44, 0x52,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x02, 0x00, 0x00, 0x00, 0x90, 0x77, 0x53,
	0xDE, 0x00, 0x00, 0x00, 0x0C, 0x49, 0x44, 0x41,
	0x54, 0x08, 0xD7, 0x63, 0xF8, 0xFF, 0xFF, 0x3F,
	0x00, 0x05, 0xFE, 0x02, 0xFE, 0xDC, 0xCC, 0x59,
	0xE7, 0x00, 0x00, 0x00, 0x00, 0x49, 0x45, 0x4E,
	0x44, 0xAE, 0x42, 0x60, 0x82,
}

// IterateResult は1ステップ実行のAPI応答です。
type IterateResult struct {
	GameState   *domain.GameState `json:"game_state"`
	ActionTaken string            `json:"action_taken"`
	Outcome     string            `json:"outcome"`
}

// Simulator は偽バックエンドの中核です。セッション状態と合成ゲーム世界を持ち、
// 接続中の全クライアントへ周期的に状態を配信します。
type Simulator struct {
	mu      sync.Mutex
	running bool
	paused  bool
	model   string
	step    int
	game    domain.GameState
	agents  []domain.AgentDescriptor
	clients map[*subscriber]struct{}

	broadcastInterval time.Duration
	rng               *rand.Rand
}

type subscriber struct {
	transport domain.Transport
}

// Option はSimulatorの生成オプションです。
type Option func(*Simulator)

// WithBroadcastInterval は状態配信の周期を差し替えます。テスト用。
func WithBroadcastInterval(interval time.Duration) Option {
	return func(s *Simulator) { s.broadcastInterval = interval }
}

// WithSeed は合成世界の乱数シードを固定します。
func WithSeed(seed int64) Option {
	return func(s *Simulator) { s.rng = rand.New(rand.NewSource(seed)) }
}

// New は停止状態のSimulatorを生成します。
func New(opts ...Option) *Simulator {
	s := &Simulator{
		clients:           make(map[*subscriber]struct{}),
		broadcastInterval: time.Second,
		rng:               rand.New(rand.NewSource(time.Now().UnixNano())),
		agents:            domain.DefaultRoster(),
		game:              initialGame(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func initialGame() domain.GameState {
	return domain.GameState{
		Party: domain.PartySnapshot{
			PartyCount: 1,
			Pokemon: []domain.PokemonSummary{{
				SpeciesID:    1,
				Nickname:     "BULBASAUR",
				Level:        5,
				CurrentHP:    19,
				MaxHP:        19,
				HPPercentage: 100,
				Types:        []string{"grass", "poison"},
			}},
			TotalHPPercentage: 100,
		},
		Position: domain.Position{X: 5, Y: 6, MapBank: 3, MapNumber: 0, Location: "PALLET TOWN"},
		Money:    3000,
	}
}

// Run は配信ループを回します。コンテキストが切れるまで戻りません。
func (s *Simulator) Run(ctx context.Context) {
	ticker := time.NewTicker(s.broadcastInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.running && !s.paused {
				s.advanceLocked()
			}
			game := s.game
			s.mu.Unlock()
			s.broadcast(ctx, domain.MessageTypeGameState, game)
		}
	}
}

// Start はセッションを開始します。既に実行中なら ErrAlreadyRunning。
func (s *Simulator) Start(model string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}
	s.running = true
	s.paused = false
	s.model = model
	for i := range s.agents {
		s.agents[i].Status = domain.AgentStatusActive
	}
	slog.Info("simulator: session started", "model", model)
	return nil
}

// Stop はセッションを停止します。
func (s *Simulator) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return ErrNotRunning
	}
	s.running = false
	for i := range s.agents {
		s.agents[i].Status = domain.AgentStatusIdle
	}
	slog.Info("simulator: session stopped")
	return nil
}

// Iterate は合成世界を1ステップ進め、結果を返します。
func (s *Simulator) Iterate(ctx context.Context) (IterateResult, error) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return IterateResult{}, ErrNotRunning
	}
	action, outcome := s.advanceLocked()
	game := s.game
	s.mu.Unlock()

	s.broadcast(ctx, domain.MessageTypeAgentAction, domain.AgentAction{
		Agent:   attributeAction(action),
		Action:  action,
		Details: outcome,
	})

	return IterateResult{GameState: &game, ActionTaken: action, Outcome: outcome}, nil
}

func attributeAction(action string) string {
	if action == "battle" {
		return domain.AgentBattle
	}
	return domain.AgentPlanning
}

// advanceLocked は世界を1ステップ進めます。s.muを保持して呼ぶこと。
func (s *Simulator) advanceLocked() (action, outcome string) {
	s.step++
	lead := &s.game.Party.Pokemon[0]

	if s.game.InBattle {
		if s.rng.Intn(3) == 0 {
			s.game.InBattle = false
			s.game.EnemyPokemon = nil
			s.game.Money += 120
			lead.Level++
			lead.MaxHP += 2
			lead.CurrentHP = lead.MaxHP
			action, outcome = "battle", "won the battle"
		} else {
			if lead.CurrentHP > 3 {
				lead.CurrentHP -= 3
			}
			action, outcome = "battle", "exchanged attacks"
		}
	} else if s.rng.Intn(6) == 0 {
		enemy := domain.PokemonSummary{
			SpeciesID: 16, Nickname: "PIDGEY", Level: lead.Level,
			CurrentHP: 15, MaxHP: 15, HPPercentage: 100, Types: []string{"normal", "flying"},
		}
		s.game.InBattle = true
		s.game.EnemyPokemon = &enemy
		action, outcome = "battle", "a wild PIDGEY appeared"
	} else {
		s.game.Position.X += s.rng.Intn(3) - 1
		s.game.Position.Y += s.rng.Intn(3) - 1
		action, outcome = "navigate", fmt.Sprintf("moved to (%d, %d)", s.game.Position.X, s.game.Position.Y)
	}

	lead.HPPercentage = lead.ComputeHPPercentage()
	lead.IsFainted = lead.CurrentHP == 0
	s.game.Party.TotalHPPercentage = lead.HPPercentage
	s.game.Party.AllFainted = lead.IsFainted
	return action, outcome
}

// Screen は現在のスクリーンキャプチャを返します。
func (s *Simulator) Screen() domain.ScreenFrame {
	return domain.ScreenFrame{
		Image:  base64.StdEncoding.EncodeToString(placeholderPNG),
		Format: "png",
	}
}

// PressButton はボタン入力を受け付けます。合成世界では位置を少し動かすだけです。
func (s *Simulator) PressButton(button string, frames int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch button {
	case "up":
		s.game.Position.Y--
	case "down":
		s.game.Position.Y++
	case "left":
		s.game.Position.X--
	case "right":
		s.game.Position.X++
	case "a", "b", "start", "select":
		// 画面が無いので何も起きない
	default:
		return fmt.Errorf("Invalid button: %s", button)
	}
	return nil
}

// Pause は進行を一時停止します。
func (s *Simulator) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
}

// Resume は進行を再開します。
func (s *Simulator) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
}

// Running は実行中かどうかを返します。
func (s *Simulator) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Agents は現在のエージェント状態を返します。
func (s *Simulator) Agents() []domain.AgentDescriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.AgentDescriptor(nil), s.agents...)
}

// GameState は現在の合成ゲーム状態を返します。
func (s *Simulator) GameState() domain.GameState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.game
}

// Attach はストリーム接続を購読者として登録し、切断まで受信ループを回します。
// クライアントコマンド(ping/get_state/get_screen)に応答します。
func (s *Simulator) Attach(ctx context.Context, transport domain.Transport) {
	sub := &subscriber{transport: transport}
	s.mu.Lock()
	s.clients[sub] = struct{}{}
	s.mu.Unlock()
	slog.DebugContext(ctx, "simulator: client attached")

	defer func() {
		s.mu.Lock()
		delete(s.clients, sub)
		s.mu.Unlock()
		slog.DebugContext(ctx, "simulator: client detached")
	}()

	// 接続直後に現在の状態を1枚送っておく
	s.send(ctx, sub, domain.MessageTypeGameState, s.GameState())

	for {
		data, err := transport.Read(ctx)
		if err != nil {
			return
		}
		var cmd struct {
			Command string `json:"command"`
		}
		if err := json.Unmarshal(data, &cmd); err != nil {
			continue
		}
		switch cmd.Command {
		case "ping":
			s.send(ctx, sub, domain.MessageTypePong, nil)
		case "get_state":
			s.send(ctx, sub, domain.MessageTypeGameState, s.GameState())
		case "get_screen":
			s.send(ctx, sub, domain.MessageTypeScreen, s.Screen())
		}
	}
}

func (s *Simulator) broadcast(ctx context.Context, msgType string, payload any) {
	s.mu.Lock()
	subs := make([]*subscriber, 0, len(s.clients))
	for sub := range s.clients {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		s.send(ctx, sub, msgType, payload)
	}
}

func (s *Simulator) send(ctx context.Context, sub *subscriber, msgType string, payload any) {
	frame := map[string]any{"type": msgType}
	if payload != nil {
		frame["data"] = payload
	}
	data, err := json.Marshal(frame)
	if err != nil {
		slog.WarnContext(ctx, "simulator: marshal frame failed", "err", err)
		return
	}
	if err := sub.transport.Write(ctx, data); err != nil {
		slog.DebugContext(ctx, "simulator: write to client failed", "err", err)
	}
}
