package command

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"emberwatch/domain"
	"emberwatch/state"
)

const defaultRequestTimeout = 30 * time.Second

// Dispatcher はバックエンドの制御APIへのコマンド送信を一手に引き受けます。
// 実行中フラグ(running)の唯一の書き手であり、start/stopの成否だけがこれを動かします。
// ストリーム側の受信はフラグに影響しません。
type Dispatcher struct {
	baseURL string
	client  *http.Client
	store   *state.Store
	token   string

	running atomic.Bool
}

// Option はDispatcherの生成オプションです。
type Option func(*Dispatcher)

// WithHTTPClient はHTTPクライアントを差し替えます。テスト用。
func WithHTTPClient(client *http.Client) Option {
	return func(d *Dispatcher) { d.client = client }
}

// WithToken はBearerトークンを設定します。生成時に形式と期限を検査して警告します。
func WithToken(token string) Option {
	return func(d *Dispatcher) {
		d.token = token
		if token != "" {
			inspectToken(token)
		}
	}
}

// New はバックエンドbaseURLに向けたDispatcherを生成します。
func New(baseURL string, store *state.Store, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		baseURL: baseURL,
		store:   store,
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   defaultRequestTimeout,
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Running はエージェントセッションが実行中かどうかを返します。
func (d *Dispatcher) Running() bool {
	return d.running.Load()
}

// Start はエージェントセッションを開始します。
// バックエンドが拒否した場合は *StartRejectedError を返し、実行中フラグは変わりません。
func (d *Dispatcher) Start(ctx context.Context, model string) error {
	body := map[string]string{"model": model}
	resp, err := d.do(ctx, http.MethodPost, "/api/game/start", body)
	if err != nil {
		return fmt.Errorf("command: start request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StartRejectedError{Detail: decodeDetail(resp.Body)}
	}

	d.running.Store(true)
	d.store.SetAllAgentStatuses(domain.AgentStatusActive)
	d.store.AddLog(domain.AgentPlanning, "session", "agent session started")
	slog.InfoContext(ctx, "command: session started", "model", model)
	return nil
}

// Stop はエージェントセッションを停止します。
func (d *Dispatcher) Stop(ctx context.Context) error {
	resp, err := d.do(ctx, http.MethodPost, "/api/game/stop", nil)
	if err != nil {
		return fmt.Errorf("command: stop request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("command: stop rejected: %s", decodeDetail(resp.Body))
	}

	d.running.Store(false)
	d.store.SetAllAgentStatuses(domain.AgentStatusIdle)
	d.store.AddLog(domain.AgentPlanning, "session", "agent session stopped")
	slog.InfoContext(ctx, "command: session stopped")
	return nil
}

type iterateResponse struct {
	GameState   *domain.GameState `json:"game_state"`
	ActionTaken string            `json:"action_taken"`
	Outcome     string            `json:"outcome"`
}

// Iterate はエージェントの1ステップをバックエンドに実行させ、結果をストアに畳み込みます。
// セッションが実行中でなければネットワークに触れず何もしません。
// 失敗は呼び出し側に返さない。定期実行ループから呼ばれる前提で、次の周期に任せます。
func (d *Dispatcher) Iterate(ctx context.Context) {
	if !d.running.Load() {
		return
	}

	resp, err := d.do(ctx, http.MethodPost, "/api/game/iterate", nil)
	if err != nil {
		slog.WarnContext(ctx, "command: iterate request failed", "err", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.WarnContext(ctx, "command: iterate rejected", "detail", decodeDetail(resp.Body))
		return
	}

	var result iterateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.WarnContext(ctx, "command: iterate response malformed", "err", err)
		return
	}

	if result.GameState != nil {
		d.store.UpdateGameState(*result.GameState)
	}
	if result.ActionTaken != "" {
		// 戦闘アクションだけがBattle Agentの仕事。残りはすべてプランナーに帰属させる。
		agent := domain.AgentPlanning
		if result.ActionTaken == "battle" {
			agent = domain.AgentBattle
		}
		d.store.AddLog(agent, result.ActionTaken, result.Outcome)
	}
}

// Screen は最新のスクリーンキャプチャを取得し、ストアにも反映します。
func (d *Dispatcher) Screen(ctx context.Context) ([]byte, error) {
	resp, err := d.do(ctx, http.MethodGet, "/api/game/screen", nil)
	if err != nil {
		return nil, fmt.Errorf("command: screen request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("command: screen rejected: %s", decodeDetail(resp.Body))
	}

	var frame domain.ScreenFrame
	if err := json.NewDecoder(resp.Body).Decode(&frame); err != nil {
		return nil, fmt.Errorf("command: decode screen response: %w", err)
	}
	png, err := frame.DecodeImage()
	if err != nil {
		return nil, err
	}
	d.store.SetScreen(png)
	return png, nil
}

// PressButton はゲームボーイのボタン入力を手動で送ります。framesは押し続ける長さです。
func (d *Dispatcher) PressButton(ctx context.Context, button string, frames int) error {
	body := map[string]any{"button": button, "frames": frames}
	resp, err := d.do(ctx, http.MethodPost, "/api/game/button", body)
	if err != nil {
		return fmt.Errorf("command: button request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("command: button rejected: %s", decodeDetail(resp.Body))
	}
	return nil
}

// Pause はエミュレーションを一時停止します。実行中フラグは変えません。
func (d *Dispatcher) Pause(ctx context.Context) error {
	return d.postSimple(ctx, "/api/game/pause")
}

// Resume は一時停止中のエミュレーションを再開します。
func (d *Dispatcher) Resume(ctx context.Context) error {
	return d.postSimple(ctx, "/api/game/resume")
}

func (d *Dispatcher) postSimple(ctx context.Context, path string) error {
	resp, err := d.do(ctx, http.MethodPost, path, nil)
	if err != nil {
		return fmt.Errorf("command: %s request: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("command: %s rejected: %s", path, decodeDetail(resp.Body))
	}
	return nil
}

type agentsStatusResponse struct {
	Agents []struct {
		Name   string `json:"name"`
		Status string `json:"status"`
	} `json:"agents"`
}

// AgentsStatus はバックエンド側のエージェント状態を取得してロスターに畳み込みます。
// ロスターに無い名前は黙って無視されます。
func (d *Dispatcher) AgentsStatus(ctx context.Context) error {
	resp, err := d.do(ctx, http.MethodGet, "/api/agents/status", nil)
	if err != nil {
		return fmt.Errorf("command: agents status request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("command: agents status rejected: %s", decodeDetail(resp.Body))
	}

	var result agentsStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("command: decode agents status: %w", err)
	}
	for _, agent := range result.Agents {
		d.store.UpdateAgentStatus(agent.Name, domain.AgentStatus(agent.Status))
	}
	return nil
}

// Health はバックエンドの死活を確かめます。
func (d *Dispatcher) Health(ctx context.Context) error {
	resp, err := d.do(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return fmt.Errorf("command: health request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("command: backend unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func (d *Dispatcher) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}
	return d.client.Do(req)
}

// decodeDetail はFastAPI形式のエラーボディ {"detail": ...} から文言を取り出します。
// 形が違うボディは包み直さず、固定の文言に落とします。
func decodeDetail(body io.Reader) string {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.NewDecoder(body).Decode(&payload); err == nil && payload.Detail != "" {
		return payload.Detail
	}
	return "backend rejected the request"
}
