package debuglog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestLogger_WritesJSONL(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir, "sess-1", true)
	if err != nil {
		t.Fatal(err)
	}

	logger.Log("request", "anthropic", "claude-sonnet-4-5", map[string]int{"messages": 3})
	logger.Log("event", "anthropic", "", map[string]string{"finish": "complete"})
	if err := logger.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(filepath.Join(dir, "sess-1.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("line not JSON: %q", scanner.Text())
		}
		entries = append(entries, e)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries", len(entries))
	}
	if entries[0].Type != "request" || entries[0].Provider != "anthropic" || entries[0].SessionID != "sess-1" {
		t.Errorf("entry 0 = %+v", entries[0])
	}
	if entries[0].Timestamp.IsZero() {
		t.Error("timestamp missing")
	}
}

func TestLogger_DisabledIsNoop(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir, "sess-2", false)
	if err != nil {
		t.Fatal(err)
	}
	logger.Log("request", "p", "m", nil)
	logger.Close()

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("disabled logger created files: %v", entries)
	}
}

func TestLogger_NilSafe(t *testing.T) {
	var logger *Logger
	logger.Log("request", "p", "m", nil) // must not panic
	if err := logger.Close(); err != nil {
		t.Errorf("Close on nil = %v", err)
	}
}

func TestLogger_AfterCloseIsNoop(t *testing.T) {
	logger, err := NewLogger(t.TempDir(), "sess-3", true)
	if err != nil {
		t.Fatal(err)
	}
	logger.Close()
	logger.Log("request", "p", "m", nil) // must not panic
}
