package command_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"emberwatch/command"
	"emberwatch/domain"
	"emberwatch/state"
)

func newBackend(t *testing.T, handler http.Handler) (*httptest.Server, *state.Store, *command.Dispatcher) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	store := state.NewStore()
	dispatcher := command.New(server.URL, store, command.WithHTTPClient(server.Client()))
	return server, store, dispatcher
}

func TestDispatcher_StartRejectedKeepsDetailVerbatim(t *testing.T) {
	_, store, dispatcher := newBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"detail": "No ROM loaded"})
	}))

	err := dispatcher.Start(context.Background(), "claude-sonnet")

	var rejected *command.StartRejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected StartRejectedError, got %v", err)
	}
	if rejected.Detail != "No ROM loaded" {
		t.Errorf("Detail = %q, want backend wording verbatim", rejected.Detail)
	}
	if dispatcher.Running() {
		t.Error("rejected start must not flip running")
	}
	for _, agent := range store.Agents() {
		if agent.Status != domain.AgentStatusIdle {
			t.Errorf("%s: status = %s, want idle after rejected start", agent.Name, agent.Status)
		}
	}
}

func TestDispatcher_StartRejectedWithOpaqueBody(t *testing.T) {
	_, _, dispatcher := newBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("<html>gateway error</html>"))
	}))

	err := dispatcher.Start(context.Background(), "claude-sonnet")

	var rejected *command.StartRejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected StartRejectedError, got %v", err)
	}
	if rejected.Detail != "backend rejected the request" {
		t.Errorf("Detail = %q, want generic fallback for non-JSON body", rejected.Detail)
	}
}

func TestDispatcher_StartStopLifecycle(t *testing.T) {
	var gotModel string
	_, store, dispatcher := newBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/game/start" {
			var body struct {
				Model string `json:"model"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			gotModel = body.Model
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))

	if err := dispatcher.Start(context.Background(), "claude-sonnet"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if gotModel != "claude-sonnet" {
		t.Errorf("model sent = %q, want claude-sonnet", gotModel)
	}
	if !dispatcher.Running() {
		t.Fatal("running should be true after successful start")
	}
	for _, agent := range store.Agents() {
		if agent.Status != domain.AgentStatusActive {
			t.Errorf("%s: status = %s, want active while running", agent.Name, agent.Status)
		}
	}

	if err := dispatcher.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if dispatcher.Running() {
		t.Fatal("running should be false after stop")
	}
	for _, agent := range store.Agents() {
		if agent.Status != domain.AgentStatusIdle {
			t.Errorf("%s: status = %s, want idle after stop", agent.Name, agent.Status)
		}
	}
}

func TestDispatcher_IterateIsNoopUnlessRunning(t *testing.T) {
	var hits atomic.Int32
	_, store, dispatcher := newBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))

	// startしていないのでネットワークに一切触れないこと
	dispatcher.Iterate(context.Background())

	if got := hits.Load(); got != 0 {
		t.Fatalf("iterate while stopped hit the backend %d times, want 0", got)
	}
	if len(store.Logs()) != 0 {
		t.Error("iterate while stopped must not synthesize logs")
	}
}

func TestDispatcher_IterateFoldsResult(t *testing.T) {
	_, store, dispatcher := newBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/game/start":
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
		case "/api/game/iterate":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"game_state":   map[string]any{"money": 3000, "in_battle": true},
				"action_taken": "battle",
				"outcome":      "used THUNDERBOLT",
			})
		}
	}))

	if err := dispatcher.Start(context.Background(), "m"); err != nil {
		t.Fatalf("start: %v", err)
	}
	logsBefore := len(store.Logs())

	dispatcher.Iterate(context.Background())

	game, ok := store.GameState()
	if !ok || game.Money != 3000 || !game.InBattle {
		t.Errorf("game state not folded from iterate response: %+v ok=%v", game, ok)
	}

	logs := store.Logs()
	if len(logs) != logsBefore+1 {
		t.Fatalf("expected one synthesized log entry, got %d new", len(logs)-logsBefore)
	}
	last := logs[len(logs)-1]
	if last.Agent != domain.AgentBattle {
		t.Errorf("battle action attributed to %q, want %q", last.Agent, domain.AgentBattle)
	}
	if last.Details != "used THUNDERBOLT" {
		t.Errorf("Details = %q, want outcome text", last.Details)
	}
}

func TestDispatcher_IterateAttributesNonBattleToPlanner(t *testing.T) {
	_, store, dispatcher := newBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/game/iterate" {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"action_taken": "navigate",
				"outcome":      "moved to Route 1",
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))

	if err := dispatcher.Start(context.Background(), "m"); err != nil {
		t.Fatalf("start: %v", err)
	}
	dispatcher.Iterate(context.Background())

	logs := store.Logs()
	last := logs[len(logs)-1]
	if last.Agent != domain.AgentPlanning {
		t.Errorf("non-battle action attributed to %q, want %q", last.Agent, domain.AgentPlanning)
	}
}

func TestDispatcher_IterateSwallowsTransportErrors(t *testing.T) {
	server, store, dispatcher := newBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))

	if err := dispatcher.Start(context.Background(), "m"); err != nil {
		t.Fatalf("start: %v", err)
	}
	logsBefore := len(store.Logs())
	server.Close()

	// エラーを返さず、ログも増やさず、フラグも倒さない
	dispatcher.Iterate(context.Background())

	if !dispatcher.Running() {
		t.Error("transient iterate failure must not flip running")
	}
	if len(store.Logs()) != logsBefore {
		t.Error("failed iterate must not synthesize logs")
	}
}

func TestDispatcher_ScreenDecodesAndCaches(t *testing.T) {
	png := []byte{0x89, 0x50, 0x4E, 0x47}
	_, store, dispatcher := newBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(domain.ScreenFrame{
			Image:  base64.StdEncoding.EncodeToString(png),
			Format: "png",
		})
	}))

	got, err := dispatcher.Screen(context.Background())
	if err != nil {
		t.Fatalf("screen: %v", err)
	}
	if string(got) != string(png) {
		t.Error("decoded screen bytes mismatch")
	}
	cached, _ := store.Screen()
	if string(cached) != string(png) {
		t.Error("screen not cached in store")
	}
}

func TestDispatcher_AgentsStatusFoldsRoster(t *testing.T) {
	_, store, dispatcher := newBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"agents": []map[string]string{
				{"name": domain.AgentBattle, "status": "busy"},
				{"name": "Mystery Agent", "status": "active"},
			},
		})
	}))

	if err := dispatcher.AgentsStatus(context.Background()); err != nil {
		t.Fatalf("agents status: %v", err)
	}

	agents := store.Agents()
	if len(agents) != 5 {
		t.Fatalf("roster size = %d, want fixed 5", len(agents))
	}
	for _, agent := range agents {
		want := domain.AgentStatusIdle
		if agent.Name == domain.AgentBattle {
			want = domain.AgentStatusBusy
		}
		if agent.Status != want {
			t.Errorf("%s: status = %s, want %s", agent.Name, agent.Status, want)
		}
	}
}

func TestDispatcher_SendsBearerToken(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	dispatcher := command.New(server.URL, state.NewStore(),
		command.WithHTTPClient(server.Client()),
		command.WithToken("not-a-jwt-but-still-sent"))

	if err := dispatcher.Health(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
	if gotAuth != "Bearer not-a-jwt-but-still-sent" {
		t.Errorf("Authorization = %q, want bearer token", gotAuth)
	}
}

func TestDispatcher_HealthReportsUnhealthyBackend(t *testing.T) {
	_, _, dispatcher := newBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	if err := dispatcher.Health(context.Background()); err == nil {
		t.Fatal("expected error for unhealthy backend")
	}
}
