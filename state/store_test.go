package state_test

import (
	"context"
	"encoding/base64"
	"fmt"
	"testing"
	"time"

	"pgregory.net/rapid"

	domain "emberwatch/domain"
	"emberwatch/state"
)

func TestStore_UpdateGameStateReplacesWholesale(t *testing.T) {
	store := state.NewStore()

	if _, ok := store.GameState(); ok {
		t.Fatal("fresh store should have no game state")
	}

	first := domain.GameState{
		Money: 100,
		Party: domain.PartySnapshot{
			PartyCount: 1,
			Pokemon:    []domain.PokemonSummary{{Nickname: "BULBASAUR", Level: 5}},
		},
		InBattle: true,
	}
	second := domain.GameState{Money: 200}

	store.UpdateGameState(first)
	store.UpdateGameState(second)

	got, ok := store.GameState()
	if !ok {
		t.Fatal("expected game state after update")
	}
	if got.Money != 200 {
		t.Errorf("Money = %d, want 200", got.Money)
	}
	// 前のスナップショットのフィールドが混入しないこと
	if got.InBattle {
		t.Error("InBattle leaked from previous snapshot")
	}
	if len(got.Party.Pokemon) != 0 {
		t.Errorf("Party leaked from previous snapshot: %+v", got.Party)
	}
}

// どの順序でスナップショットを適用しても、常に最後のものだけが見える
func TestStore_LastSnapshotWins(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		store := state.NewStore()
		amounts := rapid.SliceOfN(rapid.IntRange(0, 999999), 1, 40).Draw(t, "amounts")
		for _, money := range amounts {
			store.UpdateGameState(domain.GameState{Money: money})
		}
		got, ok := store.GameState()
		if !ok {
			t.Fatal("expected game state")
		}
		if got.Money != amounts[len(amounts)-1] {
			t.Fatalf("Money = %d, want last applied %d", got.Money, amounts[len(amounts)-1])
		}
	})
}

func TestStore_UpdateAgentStatus(t *testing.T) {
	store := state.NewStore()

	store.UpdateAgentStatus(domain.AgentBattle, domain.AgentStatusBusy)

	for _, agent := range store.Agents() {
		want := domain.AgentStatusIdle
		if agent.Name == domain.AgentBattle {
			want = domain.AgentStatusBusy
		}
		if agent.Status != want {
			t.Errorf("%s: status = %s, want %s", agent.Name, agent.Status, want)
		}
	}
}

func TestStore_UpdateAgentStatusUnknownIsNoop(t *testing.T) {
	store := state.NewStore()
	before := store.Agents()

	store.UpdateAgentStatus("Unknown Agent", domain.AgentStatusActive)

	after := store.Agents()
	if len(after) != len(before) {
		t.Fatalf("roster size changed: %d -> %d", len(before), len(after))
	}
	for i := range after {
		if after[i] != before[i] {
			t.Errorf("roster entry %d changed: %+v -> %+v", i, before[i], after[i])
		}
	}
}

func TestStore_SetAllAgentStatuses(t *testing.T) {
	store := state.NewStore()
	store.SetAllAgentStatuses(domain.AgentStatusActive)
	for _, agent := range store.Agents() {
		if agent.Status != domain.AgentStatusActive {
			t.Errorf("%s: status = %s, want active", agent.Name, agent.Status)
		}
	}
}

func TestStore_AddLogStampsClientTime(t *testing.T) {
	now := time.Unix(1700000000, 0)
	store := state.NewStore().WithClock(func() time.Time { return now })

	store.AddLog(domain.AgentPlanning, "planning", "head to viridian")

	logs := store.Logs()
	if len(logs) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(logs))
	}
	if logs[0].Timestamp != now {
		t.Errorf("Timestamp = %v, want %v", logs[0].Timestamp, now)
	}
	if logs[0].ID == "" {
		t.Error("expected non-empty entry ID")
	}
}

// 何件追記してもログは直近50件・追記順を保つ
func TestStore_LogBoundAndOrder(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		store := state.NewStore()
		total := rapid.IntRange(0, 180).Draw(t, "total")
		for i := 0; i < total; i++ {
			store.AddLog(domain.AgentPlanning, "step", fmt.Sprintf("entry-%d", i))
		}

		logs := store.Logs()
		if len(logs) > state.MaxLogEntries {
			t.Fatalf("log length %d exceeds bound %d", len(logs), state.MaxLogEntries)
		}
		want := total
		if want > state.MaxLogEntries {
			want = state.MaxLogEntries
		}
		if len(logs) != want {
			t.Fatalf("log length = %d, want %d", len(logs), want)
		}
		for i, entry := range logs {
			expected := fmt.Sprintf("entry-%d", total-want+i)
			if entry.Details != expected {
				t.Fatalf("logs[%d].Details = %q, want %q (FIFO eviction broken)", i, entry.Details, expected)
			}
		}
	})
}

func TestStore_ClearLogs(t *testing.T) {
	store := state.NewStore()
	for i := 0; i < 10; i++ {
		store.AddLog(domain.AgentMemory, "remember", "x")
	}
	store.ClearLogs()
	if got := store.Logs(); len(got) != 0 {
		t.Errorf("expected empty log after ClearLogs, got %d entries", len(got))
	}
}

func TestStore_SnapshotIsIsolated(t *testing.T) {
	store := state.NewStore()
	store.AddLog(domain.AgentCritique, "review", "ok")

	snap := store.Snapshot()
	snap.Agents[0].Status = domain.AgentStatusBusy
	snap.Logs[0].Details = "mutated"

	if store.Agents()[0].Status != domain.AgentStatusIdle {
		t.Error("mutating snapshot leaked into store roster")
	}
	if store.Logs()[0].Details != "ok" {
		t.Error("mutating snapshot leaked into store logs")
	}
}

func TestStore_HandleAgentAction(t *testing.T) {
	store := state.NewStore()
	store.HandleAgentAction(context.Background(), domain.AgentAction{
		Agent:   domain.AgentBattle,
		Action:  "battle",
		Details: "defeated rival",
	})
	logs := store.Logs()
	if len(logs) != 1 || logs[0].Agent != domain.AgentBattle || logs[0].Action != "battle" {
		t.Errorf("unexpected log after HandleAgentAction: %+v", logs)
	}
}

func TestStore_HandleScreen(t *testing.T) {
	now := time.Unix(1700000100, 0)
	store := state.NewStore().WithClock(func() time.Time { return now })
	png := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A}

	store.HandleScreen(context.Background(), domain.ScreenFrame{
		Image:  base64.StdEncoding.EncodeToString(png),
		Format: "png",
	})

	got, at := store.Screen()
	if string(got) != string(png) {
		t.Errorf("screen bytes mismatch")
	}
	if at != now {
		t.Errorf("screen time = %v, want %v", at, now)
	}

	// 壊れたフレームは前の画面を保持したまま捨てられる
	store.HandleScreen(context.Background(), domain.ScreenFrame{Image: "!!"})
	got, _ = store.Screen()
	if string(got) != string(png) {
		t.Error("invalid screen frame should not clobber previous screen")
	}
}
