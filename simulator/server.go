package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	adapterwebsocket "emberwatch/adapter/websocket"
)

// Server は偽バックエンドのHTTP面です。本物の制御APIとストリームを同じパスで提供します。
type Server struct {
	HTTP *http.Server
	sim  *Simulator
}

// NewServer はSimulatorを公開するHTTPサーバを生成します。
func NewServer(addr string, sim *Simulator) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/game", sim.handleStream)
	mux.HandleFunc("POST /api/game/start", sim.handleStart)
	mux.HandleFunc("POST /api/game/stop", sim.handleStop)
	mux.HandleFunc("POST /api/game/iterate", sim.handleIterate)
	mux.HandleFunc("GET /api/game/screen", sim.handleScreen)
	mux.HandleFunc("POST /api/game/button", sim.handleButton)
	mux.HandleFunc("POST /api/game/pause", sim.handlePause)
	mux.HandleFunc("POST /api/game/resume", sim.handleResume)
	mux.HandleFunc("GET /api/agents/status", sim.handleAgentsStatus)
	mux.HandleFunc("GET /health", sim.handleHealth)

	return &Server{
		HTTP: &http.Server{
			Addr:    addr,
			Handler: otelhttp.NewHandler(mux, "simulator"),
		},
		sim: sim,
	}
}

// Handler はルーティング済みのハンドラを返します。httptestに載せるテスト用。
func (s *Server) Handler() http.Handler { return s.HTTP.Handler }

func (s *Server) Serve() error                       { return s.HTTP.ListenAndServe() }
func (s *Server) Shutdown(ctx context.Context) error { return s.HTTP.Shutdown(ctx) }
func (s *Server) Close() error                       { return s.HTTP.Close() }
func (s *Server) Addr() string                       { return s.HTTP.Addr }

func (s *Simulator) handleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // 開発用: Origin チェックをスキップ
	})
	if err != nil {
		slog.ErrorContext(ctx, "simulator: failed to accept stream", "err", err)
		return
	}
	transport := adapterwebsocket.NewTransportFrom(conn)
	s.Attach(ctx, transport)
	_ = transport.Close(int32(websocket.StatusNormalClosure), "stream closed")
}

func (s *Simulator) handleStart(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Model string `json:"model"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Model == "" {
		writeDetail(w, http.StatusBadRequest, "Model is required")
		return
	}
	if err := s.Start(body.Model); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, map[string]string{"status": "started", "model": body.Model})
}

func (s *Simulator) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.Stop(); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, map[string]string{"status": "stopped"})
}

func (s *Simulator) handleIterate(w http.ResponseWriter, r *http.Request) {
	result, err := s.Iterate(r.Context())
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrNotRunning) {
			status = http.StatusBadRequest
		}
		writeDetail(w, status, err.Error())
		return
	}
	writeJSON(w, result)
}

func (s *Simulator) handleScreen(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Screen())
}

func (s *Simulator) handleButton(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Button string `json:"button"`
		Frames int    `json:"frames"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := s.PressButton(body.Button, body.Frames); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Simulator) handlePause(w http.ResponseWriter, r *http.Request) {
	s.Pause()
	writeJSON(w, map[string]string{"status": "paused"})
}

func (s *Simulator) handleResume(w http.ResponseWriter, r *http.Request) {
	s.Resume()
	writeJSON(w, map[string]string{"status": "running"})
}

func (s *Simulator) handleAgentsStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"agents": s.Agents(), "status": "ok"})
}

func (s *Simulator) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"status": "healthy", "game_running": s.Running()})
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("simulator: encode response failed", "err", err)
	}
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}
