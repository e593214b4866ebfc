package tui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"emberwatch/domain"
	"emberwatch/state"
	"emberwatch/stream"
)

type fakeCommander struct {
	startCalls   int
	startModel   string
	stopCalls    int
	iterateCalls int
	buttons      []string
	running      bool
}

func (f *fakeCommander) Start(_ context.Context, model string) error {
	f.startCalls++
	f.startModel = model
	return nil
}
func (f *fakeCommander) Stop(context.Context) error    { f.stopCalls++; return nil }
func (f *fakeCommander) Iterate(context.Context)       { f.iterateCalls++ }
func (f *fakeCommander) Pause(context.Context) error   { return nil }
func (f *fakeCommander) Resume(context.Context) error  { return nil }
func (f *fakeCommander) Running() bool                 { return f.running }
func (f *fakeCommander) PressButton(_ context.Context, button string, _ int) error {
	f.buttons = append(f.buttons, button)
	return nil
}

type fakeStreamer struct {
	status stream.Status
}

func (f *fakeStreamer) Status() stream.Status { return f.status }

func keyPress(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func TestModel_StartGuardedWhileDisconnected(t *testing.T) {
	commander := &fakeCommander{}
	m := New(state.NewStore(), commander, &fakeStreamer{status: stream.StatusDisconnected}, "claude-sonnet")

	updated, cmd := m.Update(keyPress('s'))
	m = updated.(Model)

	if cmd != nil {
		t.Error("start while disconnected must not produce a command")
	}
	if commander.startCalls != 0 {
		t.Error("start while disconnected must not reach the commander")
	}
	if m.notice == "" {
		t.Error("expected a notice explaining why start was refused")
	}
}

func TestModel_StartReachesCommanderWhenConnected(t *testing.T) {
	commander := &fakeCommander{}
	m := New(state.NewStore(), commander, &fakeStreamer{status: stream.StatusConnected}, "claude-sonnet")
	m.status = stream.StatusConnected

	_, cmd := m.Update(keyPress('s'))
	if cmd == nil {
		t.Fatal("expected a command for start")
	}

	msg := cmd()
	done, ok := msg.(commandDoneMsg)
	if !ok {
		t.Fatalf("command produced %T, want commandDoneMsg", msg)
	}
	if done.err != nil {
		t.Errorf("start err = %v", done.err)
	}
	if commander.startCalls != 1 || commander.startModel != "claude-sonnet" {
		t.Errorf("commander not invoked correctly: calls=%d model=%q", commander.startCalls, commander.startModel)
	}
}

func TestModel_TickRefreshesSnapshotAndStatus(t *testing.T) {
	store := state.NewStore()
	streamer := &fakeStreamer{status: stream.StatusConnected}
	m := New(store, &fakeCommander{}, streamer, "m")

	store.AddLog(domain.AgentPlanning, "plan", "step one")
	updated, cmd := m.Update(tickMsg(time.Now()))
	m = updated.(Model)

	if cmd == nil {
		t.Error("tick must schedule the next tick")
	}
	if len(m.snap.Logs) != 1 {
		t.Errorf("snapshot logs = %d, want 1 after tick", len(m.snap.Logs))
	}
	if m.status != stream.StatusConnected {
		t.Errorf("status = %v, want connected from streamer", m.status)
	}
}

func TestModel_ClearKeyEmptiesLogs(t *testing.T) {
	store := state.NewStore()
	m := New(store, &fakeCommander{}, &fakeStreamer{}, "m")
	store.AddLog(domain.AgentMemory, "remember", "x")

	updated, _ := m.Update(keyPress('c'))
	m = updated.(Model)

	if len(store.Logs()) != 0 {
		t.Error("clear key must empty the store log")
	}
	if len(m.snap.Logs) != 0 {
		t.Error("clear key must refresh the snapshot")
	}
}

func TestModel_ButtonKeysReachCommander(t *testing.T) {
	commander := &fakeCommander{}
	m := New(state.NewStore(), commander, &fakeStreamer{}, "m")

	for _, msg := range []tea.KeyMsg{
		{Type: tea.KeyUp},
		keyPress('a'),
	} {
		_, cmd := m.Update(msg)
		if cmd == nil {
			t.Fatalf("expected command for key %v", msg)
		}
		cmd()
	}

	if len(commander.buttons) != 2 || commander.buttons[0] != "up" || commander.buttons[1] != "a" {
		t.Errorf("buttons pressed = %v, want [up a]", commander.buttons)
	}
}

func TestModel_QuitKey(t *testing.T) {
	m := New(state.NewStore(), &fakeCommander{}, &fakeStreamer{}, "m")
	_, cmd := m.Update(keyPress('q'))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q must quit the program")
	}
}

func TestRenderStatusBar(t *testing.T) {
	tests := []struct {
		status  stream.Status
		running bool
		want    string
	}{
		{stream.StatusConnected, true, "connected"},
		{stream.StatusConnecting, false, "connecting"},
		{stream.StatusDisconnected, false, "disconnected"},
		{stream.StatusError, false, "retrying"},
	}
	for _, tt := range tests {
		got := renderStatusBar(tt.status, tt.running, "")
		if !strings.Contains(got, tt.want) {
			t.Errorf("renderStatusBar(%v) = %q, want substring %q", tt.status, got, tt.want)
		}
		if tt.running && !strings.Contains(got, "session running") {
			t.Errorf("running session not shown: %q", got)
		}
	}
}

func TestRenderParty(t *testing.T) {
	snap := state.Snapshot{
		HasGame: true,
		Game: domain.GameState{
			Money:  4500,
			Badges: 0b101,
			Party: domain.PartySnapshot{
				PartyCount: 1,
				Pokemon: []domain.PokemonSummary{
					{Nickname: "PIKACHU", Level: 12, CurrentHP: 20, MaxHP: 40, HPPercentage: 50},
				},
			},
			Position: domain.Position{Location: "VIRIDIAN CITY"},
		},
	}

	got := renderParty(snap)
	for _, want := range []string{"PIKACHU", "₽4500", "badges 2/8", "VIRIDIAN CITY", "20/40"} {
		if !strings.Contains(got, want) {
			t.Errorf("renderParty missing %q in:\n%s", want, got)
		}
	}
}

func TestRenderParty_WaitingForState(t *testing.T) {
	got := renderParty(state.Snapshot{})
	if !strings.Contains(got, "waiting for game state") {
		t.Errorf("empty snapshot should show placeholder, got %q", got)
	}
}

func TestRenderParty_BattleShowsEnemy(t *testing.T) {
	snap := state.Snapshot{
		HasGame: true,
		Game: domain.GameState{
			InBattle:     true,
			EnemyPokemon: &domain.PokemonSummary{Nickname: "PIDGEY", Level: 4},
		},
	}
	got := renderParty(snap)
	if !strings.Contains(got, "vs PIDGEY Lv.4") {
		t.Errorf("battle enemy not rendered: %q", got)
	}
}

func TestHPBarBounds(t *testing.T) {
	tests := []struct {
		pct    float64
		filled int
	}{
		{100, 10},
		{0, 0},
		{55, 5},
		{120, 10},
		{-5, 0},
	}
	for _, tt := range tests {
		got := hpBar(tt.pct)
		if filled := strings.Count(got, "█"); filled != tt.filled {
			t.Errorf("hpBar(%v) filled = %d, want %d", tt.pct, filled, tt.filled)
		}
	}
}

func TestRenderAgents(t *testing.T) {
	got := renderAgents(domain.DefaultRoster())
	for _, want := range []string{domain.AgentPlanning, domain.AgentBattle, domain.AgentCritique, "idle"} {
		if !strings.Contains(got, want) {
			t.Errorf("renderAgents missing %q", want)
		}
	}
}

func TestRenderLogs_TailsToLimit(t *testing.T) {
	logs := make([]domain.LogEntry, 0, 20)
	for i := 0; i < 20; i++ {
		logs = append(logs, domain.NewLogEntry(domain.AgentPlanning, "step", string(rune('a'+i)), time.Now()))
	}

	got := renderLogs(logs, 5)
	if strings.Contains(got, "· a") {
		t.Error("oldest entries should be cut when over the limit")
	}
	if !strings.Contains(got, "· t") {
		t.Error("newest entry missing from rendered log")
	}
}

func TestRenderLogs_Empty(t *testing.T) {
	if got := renderLogs(nil, 10); !strings.Contains(got, "no activity yet") {
		t.Errorf("empty log should show placeholder, got %q", got)
	}
}
