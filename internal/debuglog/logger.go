// Package debuglog records requests, stream events, and tool results as
// JSONL for post-hoc inspection. Disabled by default; gated by the
// `debug` config key.
package debuglog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry is one logged record.
type Entry struct {
	Timestamp time.Time   `json:"timestamp"`
	SessionID string      `json:"session_id"`
	Type      string      `json:"type"` // request, event, tool_result, error
	Provider  string      `json:"provider,omitempty"`
	Model     string      `json:"model,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
}

// Logger appends entries to one JSONL file per session.
type Logger struct {
	mu        sync.Mutex
	file      *os.File
	sessionID string
	enabled   bool
}

// NewLogger opens (creating as needed) a per-session log file under
// dir. A nil Logger and a disabled Logger are both safe to call.
func NewLogger(dir, sessionID string, enabled bool) (*Logger, error) {
	if !enabled {
		return &Logger{sessionID: sessionID}, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, sessionID+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, err
	}
	return &Logger{file: f, sessionID: sessionID, enabled: true}, nil
}

// Log appends one entry. Failures are swallowed; diagnostics must never
// take the session down.
func (l *Logger) Log(entryType, provider, model string, payload interface{}) {
	if l == nil || !l.enabled {
		return
	}
	entry := Entry{
		Timestamp: time.Now().UTC(),
		SessionID: l.sessionID,
		Type:      entryType,
		Provider:  provider,
		Model:     model,
		Payload:   payload,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return
	}
	l.file.Write(append(data, '\n'))
}

// Close flushes and closes the log file.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	err := l.file.Close()
	l.file = nil
	return err
}

// DefaultDir returns the debug log directory under the user data dir.
func DefaultDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "sable", "debug"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", "sable", "debug"), nil
}
