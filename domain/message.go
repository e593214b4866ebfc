package domain

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// ストリームで届くメッセージ種別。
const (
	MessageTypeGameState   = "game_state"
	MessageTypeAgentAction = "agent_action"
	MessageTypeScreen      = "screen"
	MessageTypePong        = "pong"
	MessageTypeError       = "error"
)

var (
	ErrEmptyFrame   = errors.New("domain: empty frame")
	ErrMissingType  = errors.New("domain: frame has no type discriminator")
	ErrInvalidFrame = errors.New("domain: frame is not valid JSON")
)

// Envelope はストリームのテキストフレーム1枚です。
// typeで判別し、dataの形はtypeごとに異なります。ストアに畳み込まれた後は保持しません。
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// DecodeEnvelope はテキストフレームをEnvelopeにデコードします。
// パースできないフレームはエラーを返し、呼び出し側で破棄されます。
func DecodeEnvelope(frame []byte) (Envelope, error) {
	if len(frame) == 0 {
		return Envelope{}, ErrEmptyFrame
	}
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	if env.Type == "" {
		return Envelope{}, ErrMissingType
	}
	return env, nil
}

// AgentAction は agent_action フレームのペイロードです。
type AgentAction struct {
	Agent   string `json:"agent"`
	Action  string `json:"action"`
	Details string `json:"details"`
}

// ScreenFrame は screen フレームおよび /api/game/screen のペイロードです。
type ScreenFrame struct {
	Image  string `json:"image"`
	Format string `json:"format"`
}

// DecodeImage はbase64エンコードされた画像をバイト列に戻します。
func (s ScreenFrame) DecodeImage() ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s.Image)
	if err != nil {
		return nil, fmt.Errorf("domain: decode screen image: %w", err)
	}
	return data, nil
}

// DecodeGameState は game_state ペイロードをデコードします。
func DecodeGameState(data json.RawMessage) (GameState, error) {
	var state GameState
	if err := json.Unmarshal(data, &state); err != nil {
		return GameState{}, fmt.Errorf("domain: decode game state: %w", err)
	}
	return state, nil
}

// DecodeAgentAction は agent_action ペイロードをデコードします。
func DecodeAgentAction(data json.RawMessage) (AgentAction, error) {
	var action AgentAction
	if err := json.Unmarshal(data, &action); err != nil {
		return AgentAction{}, fmt.Errorf("domain: decode agent action: %w", err)
	}
	return action, nil
}

// DecodeScreenFrame は screen ペイロードをデコードします。
func DecodeScreenFrame(data json.RawMessage) (ScreenFrame, error) {
	var frame ScreenFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return ScreenFrame{}, fmt.Errorf("domain: decode screen frame: %w", err)
	}
	return frame, nil
}

// EncodePingCommand は死活確認用のクライアントコマンドを組み立てます。
func EncodePingCommand() []byte {
	return []byte(`{"command":"ping"}`)
}
