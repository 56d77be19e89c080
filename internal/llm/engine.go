package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultToolLoopLimit bounds successive tool-use rounds within a
	// single user turn.
	DefaultToolLoopLimit = 25

	// defaultToolTimeout bounds a single tool execution.
	defaultToolTimeout = 300 * time.Second

	// cancelGracePeriod is how long dispatched tools get to wind down
	// after a cancellation before they are abandoned.
	cancelGracePeriod = 2 * time.Second

	loopLimitNotice = "Tool loop limit reached; stopping here. Ask again to continue."
)

// TurnMetrics contains metrics collected during one provider round.
type TurnMetrics struct {
	InputTokens  int
	OutputTokens int
	ToolCalls    int
}

// TurnCompletedCallback is called after each round with the messages
// generated during it (assistant message plus tool results). Used for
// incremental conversation persistence.
type TurnCompletedCallback func(ctx context.Context, turnIndex int, messages []Message, metrics TurnMetrics) error

// Engine orchestrates provider calls and local tool execution: it opens
// the stream, forwards deltas, detects tool-use rounds, dispatches the
// calls in parallel, and re-enters the stream with the results appended.
type Engine struct {
	provider    Provider
	tools       *ToolRegistry
	toolTimeout time.Duration

	onTurnCompleted TurnCompletedCallback
	callbackMu      sync.RWMutex
}

func NewEngine(provider Provider, tools *ToolRegistry) *Engine {
	if tools == nil {
		tools = NewToolRegistry()
	}
	return &Engine{
		provider:    provider,
		tools:       tools,
		toolTimeout: defaultToolTimeout,
	}
}

// Tools returns the engine's tool registry.
func (e *Engine) Tools() *ToolRegistry {
	return e.tools
}

// SetToolTimeout overrides the per-call tool deadline.
func (e *Engine) SetToolTimeout(d time.Duration) {
	if d > 0 {
		e.toolTimeout = d
	}
}

// SetTurnCompletedCallback sets the callback for incremental turn
// completion. Thread-safe; can be swapped while streaming.
func (e *Engine) SetTurnCompletedCallback(cb TurnCompletedCallback) {
	e.callbackMu.Lock()
	e.onTurnCompleted = cb
	e.callbackMu.Unlock()
}

func (e *Engine) getCallback() TurnCompletedCallback {
	e.callbackMu.RLock()
	cb := e.onTurnCompleted
	e.callbackMu.RUnlock()
	return cb
}

// Stream runs the tool-use loop over the provider stream. The returned
// stream yields all forwarded events and terminates with exactly one
// EventEnd.
func (e *Engine) Stream(ctx context.Context, req Request) (Stream, error) {
	if len(req.Tools) == 0 {
		req.Tools = e.tools.AllSpecs()
	}
	return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		return e.runLoop(ctx, req, events)
	}), nil
}

func maxTurnsFor(req Request) int {
	if req.MaxTurns > 0 {
		return req.MaxTurns
	}
	return DefaultToolLoopLimit
}

func (e *Engine) runLoop(ctx context.Context, req Request, events chan<- Event) error {
	maxTurns := maxTurnsFor(req)
	callback := e.getCallback()

	for round := 0; ; round++ {
		if round >= maxTurns {
			// Hard bound on self-invocation: commit a terminal note.
			events <- Event{Type: EventTextDelta, Text: loopLimitNotice}
			if callback != nil {
				_ = callback(ctx, round, []Message{AssistantText(loopLimitNotice)}, TurnMetrics{})
			}
			events <- Event{Type: EventEnd, Finish: FinishComplete}
			return nil
		}

		stream, err := e.provider.Stream(ctx, req)
		if err != nil {
			return err
		}

		var toolCalls []ToolCall
		var textBuilder strings.Builder
		var turnMetrics TurnMetrics
		finish := FinishComplete

	consume:
		for {
			event, err := stream.Recv()
			if err == io.EOF {
				break
			}
			if err != nil {
				stream.Close()
				return err
			}
			switch event.Type {
			case EventEnd:
				if event.Finish == FinishError {
					stream.Close()
					if event.Err != nil {
						return event.Err
					}
					return NewError(KindProvider, "stream failed")
				}
				if event.Finish == FinishCancelled {
					stream.Close()
					return context.Canceled
				}
				finish = event.Finish
				break consume
			case EventUsage:
				if event.Use != nil {
					turnMetrics.InputTokens += event.Use.InputTokens
					turnMetrics.OutputTokens += event.Use.OutputTokens
				}
				events <- event
			case EventTextDelta:
				if event.Text != "" {
					textBuilder.WriteString(event.Text)
				}
				events <- event
			case EventToolCall:
				if event.Tool != nil {
					toolCalls = append(toolCalls, *event.Tool)
				}
			case EventRetry:
				// The provider is restarting the attempt; anything
				// accumulated so far belongs to the failed one.
				textBuilder.Reset()
				toolCalls = nil
				events <- event
			default:
				events <- event
			}
		}
		stream.Close()

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if len(toolCalls) == 0 {
			// Terminal round. An empty text response still commits one
			// (empty) assistant message.
			if callback != nil {
				_ = callback(ctx, round, []Message{AssistantText(textBuilder.String())}, turnMetrics)
			}
			events <- Event{Type: EventEnd, Finish: finish}
			return nil
		}

		// Identical repeated calls are the model's own business; only
		// id-less calls get ids assigned.
		toolCalls = ensureToolCallIDs(toolCalls)

		for i := range toolCalls {
			events <- Event{
				Type:       EventToolExecStart,
				ToolCallID: toolCalls[i].ID,
				ToolName:   toolCalls[i].Name,
			}
		}

		toolResults, err := e.executeToolCalls(ctx, toolCalls, events)
		if err != nil {
			return err
		}

		assistantMsg := buildAssistantMessage(textBuilder.String(), toolCalls)
		req.Messages = append(req.Messages, assistantMsg)
		req.Messages = append(req.Messages, toolResults...)

		if callback != nil {
			turnMetrics.ToolCalls = len(toolCalls)
			turnMessages := append([]Message{assistantMsg}, toolResults...)
			_ = callback(ctx, round, turnMessages, turnMetrics)
		}
	}
}

// buildAssistantMessage creates an assistant message with text and tool calls.
func buildAssistantMessage(text string, toolCalls []ToolCall) Message {
	var parts []Part
	if text != "" {
		parts = append(parts, Part{Type: PartText, Text: text})
	}
	for i := range toolCalls {
		call := toolCalls[i]
		parts = append(parts, Part{Type: PartToolCall, ToolCall: &call})
	}
	return Message{Role: RoleAssistant, Parts: parts}
}

// executeToolCalls executes tool calls, in parallel when there is more
// than one. Results are collected by index so the returned messages are
// in the model's call order regardless of completion order. On
// cancellation, running calls get a grace period before being abandoned.
func (e *Engine) executeToolCalls(ctx context.Context, calls []ToolCall, events chan<- Event) ([]Message, error) {
	if len(calls) == 1 {
		msg := e.executeSingleToolCall(ctx, calls[0], events)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return []Message{msg}, nil
	}

	type toolResult struct {
		index   int
		message Message
	}

	var wg sync.WaitGroup
	resultChan := make(chan toolResult, len(calls))

	for i, call := range calls {
		wg.Add(1)
		go func(idx int, c ToolCall) {
			defer wg.Done()
			resultChan <- toolResult{index: idx, message: e.executeSingleToolCall(ctx, c, events)}
		}(i, call)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// Give in-flight tools a short window to observe the cancel.
		select {
		case <-done:
		case <-time.After(cancelGracePeriod):
		}
		return nil, ctx.Err()
	}
	close(resultChan)

	results := make([]Message, len(calls))
	for r := range resultChan {
		results[r.index] = r.message
	}
	return results, nil
}

// toolErrorContent renders a structured error payload for the model.
func toolErrorContent(kind ErrorKind, fields map[string]string) string {
	payload := map[string]map[string]string{"error": {"kind": string(kind)}}
	for k, v := range fields {
		payload["error"][k] = v
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf(`{"error":{"kind":%q}}`, kind)
	}
	return string(data)
}

// executeSingleToolCall runs one call and always produces a tool
// message; failures become error payloads the model can recover from.
func (e *Engine) executeSingleToolCall(ctx context.Context, call ToolCall, events chan<- Event) Message {
	emitEnd := func(success bool) {
		if events == nil {
			return
		}
		select {
		case events <- Event{
			Type:        EventToolExecEnd,
			ToolCallID:  call.ID,
			ToolName:    call.Name,
			ToolSuccess: success,
		}:
		case <-ctx.Done():
		}
	}

	tool, ok := e.tools.Get(call.Name)
	if !ok {
		emitEnd(false)
		content := toolErrorContent(KindUnknownTool, map[string]string{"name": call.Name})
		return ToolErrorMessage(call.ID, call.Name, content)
	}

	if err := ValidateParams(tool.Spec().Schema, call.Arguments); err != nil {
		emitEnd(false)
		content := toolErrorContent(KindInvalidParams, map[string]string{"message": err.Error()})
		return ToolErrorMessage(call.ID, call.Name, content)
	}

	toolCtx, cancel := context.WithTimeout(ctx, e.toolTimeout)
	defer cancel()

	output, err := tool.Execute(toolCtx, call.Arguments)
	if err != nil {
		emitEnd(false)
		kind := KindToolExecution
		if toolCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			kind = KindToolTimeout
		}
		if e := AsError(err); e != nil && e.Kind == KindInvalidParams {
			kind = KindInvalidParams
		}
		content := toolErrorContent(kind, map[string]string{"message": err.Error()})
		return ToolErrorMessage(call.ID, call.Name, content)
	}

	emitEnd(true)
	return ToolResultMessage(call.ID, call.Name, output)
}

func ensureToolCallIDs(calls []ToolCall) []ToolCall {
	for i := range calls {
		if strings.TrimSpace(calls[i].ID) == "" {
			calls[i].ID = fmt.Sprintf("toolcall-%d", i+1)
		}
	}
	return calls
}
