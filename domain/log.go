package domain

import (
	"time"

	"github.com/google/uuid"
)

// LogEntry は思考ログの1行です。タイムスタンプはバックエンドの値を信用せず、
// ストアへの挿入時にクライアント側で付与します。
type LogEntry struct {
	ID        string
	Agent     string
	Action    string
	Details   string
	Timestamp time.Time
}

// NewLogEntry はIDとタイムスタンプを付与したLogEntryを生成します。
func NewLogEntry(agent, action, details string, now time.Time) LogEntry {
	return LogEntry{
		ID:        uuid.NewString(),
		Agent:     agent,
		Action:    action,
		Details:   details,
		Timestamp: now,
	}
}
