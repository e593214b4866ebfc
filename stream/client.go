package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	adapterwebsocket "emberwatch/adapter/websocket"
	"emberwatch/domain"
)

// Status は接続マネージャが唯一の所有者として管理する接続状態です。
// 他のコンポーネントは読み取り専用で、UIの活性制御に使います。
type Status int32

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// ReconnectDelay は再接続までの固定バックオフです。指数増加はさせません。
// 長時間稼働のダッシュボードであり、バックエンドの再起動を延々と待つ設計です。
const ReconnectDelay = 3 * time.Second

const defaultPingInterval = 15 * time.Second

const closeCodeNormal = 1000

// Dialer はTransportの生成を差し替えるための関数型です。テストでモックを注入します。
type Dialer func(ctx context.Context, url string) (domain.Transport, error)

// Handler は受信メッセージの畳み込み先です。state.Store が実装します。
type Handler interface {
	HandleGameState(ctx context.Context, snapshot domain.GameState)
	HandleAgentAction(ctx context.Context, action domain.AgentAction)
	HandleScreen(ctx context.Context, frame domain.ScreenFrame)
}

// Client はバックエンドへの単一の永続接続を所有する接続マネージャです。
//
// 状態遷移: disconnected → connecting → connected → disconnected、
// 転送路の失敗はどの段階でも error に落ちるが、再接続タイマーは変わらず発火して
// connecting に戻る。再接続は無条件・無制限。
// 接続ハンドルと再接続タイマーはこの構造体だけが書き換えます。
type Client struct {
	url          string
	handler      Handler
	dial         Dialer
	backoff      time.Duration
	pingInterval time.Duration

	mu             sync.Mutex
	status         Status
	transport      domain.Transport
	reconnectTimer *time.Timer
	closed         bool
	generation     uint64

	lastMu sync.RWMutex
	last   *domain.Envelope
}

// Option はClientの生成オプションです。
type Option func(*Client)

// WithDialer は接続の確立方法を差し替えます。
func WithDialer(dial Dialer) Option {
	return func(c *Client) { c.dial = dial }
}

// WithBackoff は再接続までの待ち時間を差し替えます。テスト用。
func WithBackoff(delay time.Duration) Option {
	return func(c *Client) { c.backoff = delay }
}

// WithPingInterval は死活確認の間隔を差し替えます。
func WithPingInterval(interval time.Duration) Option {
	return func(c *Client) { c.pingInterval = interval }
}

// NewClient は未接続状態のClientを生成します。
func NewClient(url string, handler Handler, opts ...Option) *Client {
	c := &Client{
		url:          url,
		handler:      handler,
		dial:         adapterwebsocket.Dial,
		backoff:      ReconnectDelay,
		pingInterval: defaultPingInterval,
		status:       StatusDisconnected,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Status は現在の接続状態を返します。
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// LastMessage は最後にデコードできたフレームを返します。
// マネージャは未読メッセージの履歴を持たず、常に最新1枚だけを保持します。
func (c *Client) LastMessage() *domain.Envelope {
	c.lastMu.RLock()
	defer c.lastMu.RUnlock()
	if c.last == nil {
		return nil
	}
	env := *c.last
	return &env
}

// Connect は接続の確立を開始します。接続中・接続済みなら何もしません。
// 失敗は呼び出し側に返さず、状態遷移と再接続タイマーで処理します。
func (c *Client) Connect(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	c.mu.Lock()
	if c.closed || c.status == StatusConnecting || c.status == StatusConnected {
		c.mu.Unlock()
		return
	}
	c.status = StatusConnecting
	c.stopReconnectTimerLocked()
	gen := c.generation
	c.mu.Unlock()

	go c.establish(ctx, gen)
}

// Disconnect は接続を解放し、保留中の再接続タイマーを必ず取り消します。
// 以後このClientは再利用しません（セッション終了時に破棄する前提）。
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.closed = true
	c.generation++
	c.stopReconnectTimerLocked()
	tr := c.transport
	c.transport = nil
	c.status = StatusDisconnected
	c.mu.Unlock()

	if tr != nil {
		_ = tr.Close(closeCodeNormal, "client disconnect")
	}
}

// Send は接続済みのときだけデータを送信します。それ以外の状態では
// キューイングせず黙って捨てます。到達保証が要る操作はコマンド側を使うこと。
func (c *Client) Send(ctx context.Context, data []byte) {
	c.mu.Lock()
	tr := c.transport
	connected := c.status == StatusConnected
	c.mu.Unlock()

	if !connected || tr == nil {
		slog.DebugContext(ctx, "stream: send dropped, not connected")
		return
	}
	if err := tr.Write(ctx, data); err != nil {
		slog.WarnContext(ctx, "stream: send failed", "err", err)
	}
}

func (c *Client) establish(ctx context.Context, gen uint64) {
	tr, err := c.dial(ctx, c.url)

	c.mu.Lock()
	if c.closed || gen != c.generation {
		c.mu.Unlock()
		if tr != nil {
			_ = tr.Close(closeCodeNormal, "stale connection attempt")
		}
		return
	}
	if err != nil {
		c.status = StatusError
		c.scheduleReconnectLocked(ctx)
		c.mu.Unlock()
		slog.WarnContext(ctx, "stream: dial failed", "url", c.url, "err", err)
		return
	}
	c.transport = tr
	c.status = StatusConnected
	c.mu.Unlock()
	slog.InfoContext(ctx, "stream: connected", "url", c.url)

	go c.run(ctx, tr, gen)
}

// run は接続1本ぶんの受信・死活確認ループを回し、終了時に再接続へ繋ぎます。
func (c *Client) run(ctx context.Context, tr domain.Transport, gen uint64) {
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return c.readLoop(egCtx, tr)
	})
	eg.Go(func() error {
		return c.pingLoop(egCtx, tr)
	})
	err := eg.Wait()

	c.mu.Lock()
	if c.closed || gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.generation++
	c.transport = nil
	if ctx.Err() != nil {
		// アプリ全体の停止。再接続はしない。
		c.status = StatusDisconnected
		c.mu.Unlock()
		_ = tr.Close(closeCodeNormal, "shutting down")
		return
	}
	if err != nil && !errors.Is(err, io.EOF) {
		c.status = StatusError
	} else {
		c.status = StatusDisconnected
	}
	c.scheduleReconnectLocked(ctx)
	c.mu.Unlock()

	_ = tr.Close(closeCodeNormal, "connection lost")
	slog.WarnContext(ctx, "stream: connection lost", "err", err, "retry_in", c.backoff)
}

func (c *Client) readLoop(ctx context.Context, tr domain.Transport) error {
	for {
		data, err := tr.Read(ctx)
		if err != nil {
			return err
		}
		env, err := domain.DecodeEnvelope(data)
		if err != nil {
			// 壊れたフレームでマネージャを落とさない。捨てて次を待つ。
			slog.WarnContext(ctx, "stream: malformed frame discarded", "err", err)
			continue
		}
		c.lastMu.Lock()
		c.last = &env
		c.lastMu.Unlock()
		c.route(ctx, env)
	}
}

func (c *Client) pingLoop(ctx context.Context, tr domain.Transport) error {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := tr.Write(ctx, domain.EncodePingCommand()); err != nil {
				return err
			}
		}
	}
}

// route はフレームを種別ごとにストアの畳み込み操作へ渡します。
func (c *Client) route(ctx context.Context, env domain.Envelope) {
	switch env.Type {
	case domain.MessageTypeGameState:
		snapshot, err := domain.DecodeGameState(env.Data)
		if err != nil {
			slog.WarnContext(ctx, "stream: bad game_state payload", "err", err)
			return
		}
		c.handler.HandleGameState(ctx, snapshot)
	case domain.MessageTypeAgentAction:
		action, err := domain.DecodeAgentAction(env.Data)
		if err != nil {
			slog.WarnContext(ctx, "stream: bad agent_action payload", "err", err)
			return
		}
		c.handler.HandleAgentAction(ctx, action)
	case domain.MessageTypeScreen:
		frame, err := domain.DecodeScreenFrame(env.Data)
		if err != nil {
			slog.WarnContext(ctx, "stream: bad screen payload", "err", err)
			return
		}
		c.handler.HandleScreen(ctx, frame)
	case domain.MessageTypePong:
		slog.DebugContext(ctx, "stream: pong received")
	case domain.MessageTypeError:
		slog.WarnContext(ctx, "stream: backend error frame", "data", string(env.Data))
	default:
		slog.WarnContext(ctx, "stream: unknown message type", "type", env.Type)
	}
}

// scheduleReconnectLocked は再接続タイマーを仕掛けます。c.muを保持して呼ぶこと。
// タイマーは常に高々1本。既に保留中なら何もしません。
func (c *Client) scheduleReconnectLocked(ctx context.Context) {
	if c.closed || c.reconnectTimer != nil {
		return
	}
	c.reconnectTimer = time.AfterFunc(c.backoff, func() {
		c.mu.Lock()
		c.reconnectTimer = nil
		c.mu.Unlock()
		c.Connect(ctx)
	})
}

// stopReconnectTimerLocked は保留中の再接続タイマーを止めて破棄します。
// 明示的な切断でも再接続成功でも、どの経路でも必ずここを通します。
func (c *Client) stopReconnectTimerLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}
