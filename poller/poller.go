package poller

import (
	"context"
	"log/slog"
	"time"
)

//go:generate go tool mockgen -destination=./mocks/session_mock.go -package=mocks . Session

// Session はポーリングループがコマンド送信側に要求する操作の集合です。
// command.Dispatcher が実装します。
type Session interface {
	Running() bool
	Iterate(ctx context.Context)
	Screen(ctx context.Context) ([]byte, error)
}

// IterationLoop はエージェントの1ステップ実行を固定間隔で駆動します。
// 実行中かどうかの判定はIterate側が持っているので、ここでは無条件に叩きます。
type IterationLoop struct {
	session  Session
	interval time.Duration
}

func NewIterationLoop(session Session, interval time.Duration) *IterationLoop {
	return &IterationLoop{session: session, interval: interval}
}

// Run はコンテキストが生きている間、周期的にIterateを呼び続けます。
func (l *IterationLoop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	slog.InfoContext(ctx, "poller: iteration loop started", "interval", l.interval)
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "poller: iteration loop stopped")
			return
		case <-ticker.C:
			l.session.Iterate(ctx)
		}
	}
}

// ScreenLoop はスクリーンキャプチャを固定間隔で取得します。
// セッションが実行中のときだけ取得します。停止中の画面は動かないためです。
type ScreenLoop struct {
	session  Session
	interval time.Duration
}

func NewScreenLoop(session Session, interval time.Duration) *ScreenLoop {
	return &ScreenLoop{session: session, interval: interval}
}

// Run はコンテキストが生きている間、周期的にスクリーンを取得し続けます。
// 取得失敗は記録して次の周期に任せます。
func (l *ScreenLoop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	slog.InfoContext(ctx, "poller: screen loop started", "interval", l.interval)
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "poller: screen loop stopped")
			return
		case <-ticker.C:
			if !l.session.Running() {
				continue
			}
			if _, err := l.session.Screen(ctx); err != nil {
				slog.DebugContext(ctx, "poller: screen fetch failed", "err", err)
			}
		}
	}
}
