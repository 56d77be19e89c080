// Package agent exposes the programmatic session surface: start a
// session, submit user messages, observe stream events, cancel the
// current turn, and persist the conversation.
package agent

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/sablehq/sable/internal/config"
	"github.com/sablehq/sable/internal/convo"
	"github.com/sablehq/sable/internal/debuglog"
	"github.com/sablehq/sable/internal/llm"
)

// State is the coarse position of the session's turn state machine.
type State string

const (
	StateIdle        State = "idle"
	StateStreaming   State = "streaming"
	StateDispatching State = "dispatching"
	StateCancelling  State = "cancelling"
)

// cancelledNote is appended when the operator aborts a turn.
const cancelledNote = "Request cancelled"

// Sink receives stream events for display. Implementations own line
// buffering and flushing; deltas arrive in parser order.
type Sink interface {
	OnTextDelta(text string)
	OnToolStart(callID, name string)
	OnToolEnd(callID, name string, success bool)
	OnRetry(attempt int, waitSecs float64)
}

// NoopSink discards all events.
type NoopSink struct{}

func (NoopSink) OnTextDelta(string)             {}
func (NoopSink) OnToolStart(string, string)     {}
func (NoopSink) OnToolEnd(string, string, bool) {}
func (NoopSink) OnRetry(int, float64)           {}

// Session drives one conversation against one provider. A single
// in-flight turn at a time; commits to the log are totally ordered.
type Session struct {
	cfg          *config.Config
	providerName string
	engine       *llm.Engine
	store        *convo.Store
	autosaver    *convo.Autosaver
	logger       *debuglog.Logger
	sink         Sink

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
}

// Options configures session construction.
type Options struct {
	Config       *config.Config
	ProviderName string
	Engine       *llm.Engine
	Store        *convo.Store
	Autosaver    *convo.Autosaver // nil disables autosave
	Logger       *debuglog.Logger // nil disables diagnostics
	Sink         Sink             // nil falls back to NoopSink
}

// NewSession wires a session over an engine and a conversation store.
func NewSession(opts Options) *Session {
	sink := opts.Sink
	if sink == nil {
		sink = NoopSink{}
	}
	s := &Session{
		cfg:          opts.Config,
		providerName: opts.ProviderName,
		engine:       opts.Engine,
		store:        opts.Store,
		autosaver:    opts.Autosaver,
		logger:       opts.Logger,
		sink:         sink,
		state:        StateIdle,
	}
	s.engine.SetTurnCompletedCallback(s.commitTurn)
	return s
}

// State returns the current turn state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Store exposes the conversation store for queries.
func (s *Session) Store() *convo.Store {
	return s.store
}

// Cancel aborts the in-flight turn, if any. Cooperative: the loop
// reaches Idle within the grace period and commits no partial draft.
func (s *Session) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	if cancel != nil {
		s.state = StateCancelling
	}
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Submit runs one user turn to completion: append the user message,
// stream the model's reply (dispatching tool rounds as they come), and
// return once the turn is terminal. Exactly one Submit may run at a time.
func (s *Session) Submit(ctx context.Context, text string) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return fmt.Errorf("a turn is already in flight")
	}
	turnCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.state = StateStreaming
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		s.cancel = nil
		s.state = StateIdle
		s.mu.Unlock()
	}()

	if err := s.store.Append(convo.NewMessage(llm.RoleUser, text)); err != nil {
		return err
	}

	req := s.buildRequest()
	s.logger.Log("request", s.providerName, req.Model, map[string]interface{}{
		"messages": len(req.Messages),
		"tools":    len(req.Tools),
	})

	stream, err := s.engine.Stream(turnCtx, req)
	if err != nil {
		s.commitFailure(err)
		return err
	}
	defer stream.Close()

	for {
		event, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			s.commitFailure(err)
			return err
		}

		switch event.Type {
		case llm.EventTextDelta:
			s.setState(StateStreaming)
			s.sink.OnTextDelta(event.Text)
		case llm.EventToolExecStart:
			s.setState(StateDispatching)
			s.sink.OnToolStart(event.ToolCallID, event.ToolName)
		case llm.EventToolExecEnd:
			s.sink.OnToolEnd(event.ToolCallID, event.ToolName, event.ToolSuccess)
		case llm.EventRetry:
			s.sink.OnRetry(event.RetryAttempt, event.RetryWaitSecs)
		case llm.EventEnd:
			s.logger.Log("event", s.providerName, req.Model, map[string]interface{}{
				"finish": string(event.Finish),
			})
			switch event.Finish {
			case llm.FinishCancelled:
				s.commitCancelled()
			case llm.FinishError:
				s.commitFailure(event.Err)
			}
			// Drain to EOF; the engine has already committed the turn.
		}
	}
}

// buildRequest assembles the canonical request: system prompt, full
// history, tool advertisement, generation options. Deterministic for a
// given conversation and registry.
func (s *Session) buildRequest() llm.Request {
	_, pc, _ := s.cfg.ActiveProviderConfig()
	req := llm.RequestFromConfig(s.cfg, pc)

	var messages []llm.Message
	if s.cfg.SystemPrompt != "" {
		messages = append(messages, llm.SystemText(s.cfg.SystemPrompt))
	}
	messages = append(messages, s.store.History()...)
	req.Messages = messages
	req.Tools = s.engine.Tools().AllSpecs()
	return req
}

// commitTurn persists the messages generated by one engine round:
// the assistant message (with any tool calls) followed by the tool
// results in call order.
func (s *Session) commitTurn(ctx context.Context, turnIndex int, messages []llm.Message, metrics llm.TurnMetrics) error {
	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleAssistant:
			out := convo.NewMessage(llm.RoleAssistant, "")
			for _, part := range msg.Parts {
				switch part.Type {
				case llm.PartText:
					out.Content += part.Text
				case llm.PartToolCall:
					if part.ToolCall != nil {
						out.ToolCalls = append(out.ToolCalls, *part.ToolCall)
					}
				}
			}
			if err := s.store.Append(out); err != nil {
				return err
			}
		case llm.RoleTool:
			for _, part := range msg.Parts {
				if part.Type != llm.PartToolResult || part.ToolResult == nil {
					continue
				}
				out := convo.NewMessage(llm.RoleTool, part.ToolResult.Content)
				out.ToolCallRef = part.ToolResult.ID
				out.IsError = part.ToolResult.IsError
				if err := s.store.Append(out); err != nil {
					return err
				}
				s.logger.Log("tool_result", s.providerName, "", map[string]interface{}{
					"call_id":  part.ToolResult.ID,
					"is_error": part.ToolResult.IsError,
				})
			}
		}
	}
	return nil
}

// commitCancelled discards the draft (never committed) and appends the
// cancellation note.
func (s *Session) commitCancelled() {
	note := convo.NewMessage(llm.RoleSystem, cancelledNote)
	_ = s.store.Append(note)
}

// commitFailure appends exactly one error-flavored assistant message,
// with a diagnostic block in debug mode.
func (s *Session) commitFailure(err error) {
	var b strings.Builder
	b.WriteString("Request failed")
	if err != nil {
		b.WriteString(": ")
		b.WriteString(err.Error())
	}
	if s.cfg.Debug {
		if e := llm.AsError(err); e != nil && (e.RequestURL != "" || e.RequestBody != "") {
			b.WriteString("\n\n--- debug ---\n")
			if e.RequestURL != "" {
				b.WriteString("URL: " + e.RequestURL + "\n")
			}
			if e.RequestBody != "" {
				b.WriteString("Request: " + e.RequestBody + "\n")
			}
		}
	}
	_ = s.store.Append(convo.NewMessage(llm.RoleAssistant, b.String()))
	s.logger.Log("error", s.providerName, "", map[string]interface{}{"error": fmt.Sprint(err)})
}

// Close flushes autosave state and releases resources.
func (s *Session) Close() {
	s.Cancel()
	if s.autosaver != nil {
		s.autosaver.Close()
	}
	s.logger.Close()
}
