package llm

import (
	"context"
	"encoding/json"
	"sync"
)

// scriptedTurn is one provider response in a mock script.
type scriptedTurn struct {
	textDeltas []string
	toolCalls  []ToolCall
	err        error
	finish     FinishReason
}

// MockProvider replays scripted turns and records every request it
// receives. Safe for concurrent use.
type MockProvider struct {
	name string

	mu       sync.Mutex
	turns    []scriptedTurn
	next     int
	Requests []Request
}

func NewMockProvider(name string) *MockProvider {
	return &MockProvider{name: name}
}

func (p *MockProvider) AddTextResponse(text string) *MockProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.turns = append(p.turns, scriptedTurn{textDeltas: []string{text}, finish: FinishComplete})
	return p
}

func (p *MockProvider) AddTextDeltas(deltas ...string) *MockProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.turns = append(p.turns, scriptedTurn{textDeltas: deltas, finish: FinishComplete})
	return p
}

func (p *MockProvider) AddToolCallResponse(calls ...ToolCall) *MockProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.turns = append(p.turns, scriptedTurn{toolCalls: calls, finish: FinishToolUse})
	return p
}

func (p *MockProvider) AddErrorResponse(err error) *MockProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.turns = append(p.turns, scriptedTurn{err: err})
	return p
}

func (p *MockProvider) Name() string { return p.name }

func (p *MockProvider) Capabilities() Capabilities {
	return Capabilities{ToolCalls: true, Streaming: true}
}

func (p *MockProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	p.mu.Lock()
	p.Requests = append(p.Requests, req)
	var turn scriptedTurn
	if p.next < len(p.turns) {
		turn = p.turns[p.next]
		p.next++
	} else {
		turn = scriptedTurn{finish: FinishComplete}
	}
	p.mu.Unlock()

	return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		if turn.err != nil {
			return turn.err
		}
		events <- Event{Type: EventStart}
		for _, delta := range turn.textDeltas {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case events <- Event{Type: EventTextDelta, Text: delta}:
			}
		}
		for i := range turn.toolCalls {
			events <- Event{Type: EventToolCall, Tool: &turn.toolCalls[i]}
		}
		events <- Event{Type: EventUsage, Use: &Usage{InputTokens: 10, OutputTokens: 5}}
		events <- Event{Type: EventEnd, Finish: turn.finish}
		return nil
	}), nil
}

// mockTool is a configurable Tool for engine tests.
type mockTool struct {
	name    string
	schema  map[string]interface{}
	execute func(ctx context.Context, args json.RawMessage) (string, error)
}

func (t *mockTool) Spec() ToolSpec {
	schema := t.schema
	if schema == nil {
		schema = map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
		}
	}
	return ToolSpec{Name: t.name, Description: "test tool", Schema: schema}
}

func (t *mockTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	if t.execute != nil {
		return t.execute(ctx, args)
	}
	return "ok", nil
}

// drainStream reads a stream to EOF, returning all events.
func drainStream(s Stream) ([]Event, error) {
	var events []Event
	for {
		event, err := s.Recv()
		if err != nil {
			return events, err
		}
		events = append(events, event)
	}
}

// collectText concatenates the text deltas in an event slice.
func collectText(events []Event) string {
	out := ""
	for _, e := range events {
		if e.Type == EventTextDelta {
			out += e.Text
		}
	}
	return out
}

// endEvents filters the EventEnd events.
func endEvents(events []Event) []Event {
	var out []Event
	for _, e := range events {
		if e.Type == EventEnd {
			out = append(out, e)
		}
	}
	return out
}
