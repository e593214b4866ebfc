package domain

import (
	"context"
)

//go:generate go tool mockgen -destination=./mocks/transport_mock.go -package=mocks . Transport

// Transport は接続マネージャが依存するI/O境界です。
// 実装はwebsocketアダプタが提供し、テストではモックに差し替えます。
// Read はクリーンクローズを io.EOF に正規化して返します。
type Transport interface {
	Read(ctx context.Context) (data []byte, err error)
	Write(ctx context.Context, data []byte) error
	Close(code int32, reason string) error
}
