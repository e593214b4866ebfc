package adapterwebsocket

import (
	"context"
	"io"

	"github.com/coder/websocket"

	"emberwatch/domain"
)

// スクリーンキャプチャ入りのフレームはbase64で数百KBになるため、
// デフォルトの32KiB制限では足りない。
const readLimit = 8 << 20

type wsTransport struct {
	conn *websocket.Conn
}

// Dial はバックエンドのストリームエンドポイントに接続し、Transportとして返します。
func Dial(ctx context.Context, url string) (domain.Transport, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(readLimit)
	return &wsTransport{conn: conn}, nil
}

// NewTransportFrom は既存のwebsocket接続をTransportに包みます。
func NewTransportFrom(conn *websocket.Conn) domain.Transport {
	conn.SetReadLimit(readLimit)
	return &wsTransport{conn: conn}
}

func (t *wsTransport) Read(ctx context.Context) ([]byte, error) {
	_, data, err := t.conn.Read(ctx)
	if err != nil {
		// クリーンクローズは io.EOF に正規化し、上位の状態遷移を単純に保つ
		if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
			return nil, io.EOF
		}
		return nil, err
	}
	return data, nil
}

func (t *wsTransport) Write(ctx context.Context, data []byte) error {
	return t.conn.Write(ctx, websocket.MessageText, data)
}

func (t *wsTransport) Close(code int32, reason string) error {
	return t.conn.Close(websocket.StatusCode(code), reason)
}
