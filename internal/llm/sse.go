package llm

import (
	"bufio"
	"encoding/json"
	"io"
	"sort"
	"strings"
)

// scannerBufSize bounds a single SSE or NDJSON line. Providers emit long
// base64 and tool-argument payloads, so the default bufio limit is too small.
const scannerBufSize = 1024 * 1024

// sseFrame is one parsed server-sent event.
type sseFrame struct {
	Event string // from "event:" lines, empty for plain data streams
	Data  string // from "data:" lines
	Done  bool   // true for the "data: [DONE]" terminator
}

// sseScanner reads SSE framing: "event:" lines name the next payload,
// "data:" lines carry it, "data: [DONE]" ends the stream. Anything else
// (comments, blank keep-alives) is skipped.
type sseScanner struct {
	scanner   *bufio.Scanner
	eventType string
}

func newSSEScanner(r io.Reader) *sseScanner {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, scannerBufSize)
	return &sseScanner{scanner: scanner}
}

// Next returns the next frame, or ok=false when the transport ends.
func (s *sseScanner) Next() (sseFrame, bool) {
	for s.scanner.Scan() {
		line := s.scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			s.eventType = strings.TrimPrefix(line, "event: ")
			continue
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		frame := sseFrame{Event: s.eventType, Data: data}
		s.eventType = ""
		if data == "[DONE]" {
			frame.Done = true
		}
		return frame, true
	}
	return sseFrame{}, false
}

func (s *sseScanner) Err() error {
	return s.scanner.Err()
}

// ndjsonScanner reads newline-delimited JSON: one object per line.
// Blank lines are skipped.
type ndjsonScanner struct {
	scanner *bufio.Scanner
}

func newNDJSONScanner(r io.Reader) *ndjsonScanner {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, scannerBufSize)
	return &ndjsonScanner{scanner: scanner}
}

func (s *ndjsonScanner) Next() (string, bool) {
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" {
			continue
		}
		return line, true
	}
	return "", false
}

func (s *ndjsonScanner) Err() error {
	return s.scanner.Err()
}

// toolCallState accumulates streamed tool-call fragments keyed by index.
// Argument fragments are appended as raw strings and never parsed until
// the stream ends; partial JSON is expected mid-stream.
type toolCallState struct {
	byIndex map[int]*toolCallBuffer
	order   []int
}

type toolCallBuffer struct {
	id   string
	name string
	args strings.Builder
}

func newToolCallState() *toolCallState {
	return &toolCallState{byIndex: make(map[int]*toolCallBuffer)}
}

// Add merges one fragment into the buffer for its index.
func (s *toolCallState) Add(index int, id, name, args string) {
	buf, ok := s.byIndex[index]
	if !ok {
		buf = &toolCallBuffer{}
		s.byIndex[index] = buf
		s.order = append(s.order, index)
	}
	if id != "" {
		buf.id = id
	}
	if name != "" {
		buf.name = name
	}
	if args != "" {
		buf.args.WriteString(args)
	}
}

// Empty reports whether no fragments were accumulated.
func (s *toolCallState) Empty() bool {
	return len(s.order) == 0
}

// Calls flushes the accumulated buffers as completed calls in index order.
func (s *toolCallState) Calls() []ToolCall {
	if len(s.order) == 0 {
		return nil
	}
	sort.Ints(s.order)
	calls := make([]ToolCall, 0, len(s.order))
	for _, idx := range s.order {
		buf := s.byIndex[idx]
		if buf == nil {
			continue
		}
		calls = append(calls, ToolCall{
			ID:        buf.id,
			Name:      buf.name,
			Arguments: json.RawMessage(buf.args.String()),
		})
	}
	return calls
}
