package convo

import (
	"fmt"
	"sync"

	"github.com/sablehq/sable/internal/llm"
)

// Store wraps a conversation behind a single mutex: one writer (the
// agent session), many readers (autosave snapshotter, UI queries).
// Readers get deep copies, never the live slice.
type Store struct {
	mu   sync.Mutex
	conv *Conversation

	// onAppend is notified after each committed append; the autosaver
	// hangs off this.
	onAppend func()
}

func NewStore(conv *Conversation) *Store {
	return &Store{conv: conv}
}

// SetAppendHook installs the post-append notification.
func (s *Store) SetAppendHook(fn func()) {
	s.mu.Lock()
	s.onAppend = fn
	s.mu.Unlock()
}

// ID returns the conversation id.
func (s *Store) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv.ID
}

// Append commits one message to the log. The first user message sets
// the title. Appends are totally ordered by this mutex.
func (s *Store) Append(msg Message) error {
	s.mu.Lock()
	if err := s.validateAppend(msg); err != nil {
		s.mu.Unlock()
		return err
	}
	if msg.Role == llm.RoleUser && s.conv.Title == "" {
		s.conv.Title = DeriveTitle(msg.Content)
	}
	s.conv.Messages = append(s.conv.Messages, msg)
	s.conv.UpdatedAt = msg.CreatedAt
	hook := s.onAppend
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	return nil
}

// validateAppend enforces the structural invariants on the incoming
// message; the log itself is already valid.
func (s *Store) validateAppend(msg Message) error {
	if len(s.conv.Messages) == 0 && msg.Role != llm.RoleSystem && msg.Role != llm.RoleUser {
		return fmt.Errorf("first message must be system or user, got %s", msg.Role)
	}
	if len(msg.ToolCalls) > 0 && msg.Role != llm.RoleAssistant {
		return fmt.Errorf("tool calls only belong on assistant messages")
	}
	if msg.Role == llm.RoleTool {
		if msg.ToolCallRef == "" {
			return fmt.Errorf("tool message missing tool_call_ref")
		}
		found := false
		for _, prev := range s.conv.Messages {
			for _, call := range prev.ToolCalls {
				if call.ID == msg.ToolCallRef {
					found = true
				}
			}
		}
		if !found {
			return fmt.Errorf("tool message references unknown call %s", msg.ToolCallRef)
		}
	}
	return nil
}

// Snapshot returns a deep copy of the conversation for persistence or
// display; the live log stays private to the writer.
func (s *Store) Snapshot() *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv.clone()
}

// History builds the provider message history from the current log.
func (s *Store) History() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv.History()
}

// Len returns the number of committed messages.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conv.Messages)
}

func (c *Conversation) clone() *Conversation {
	out := *c
	out.Messages = make([]Message, len(c.Messages))
	copy(out.Messages, c.Messages)
	for i := range out.Messages {
		if len(out.Messages[i].ToolCalls) > 0 {
			calls := make([]llm.ToolCall, len(out.Messages[i].ToolCalls))
			copy(calls, out.Messages[i].ToolCalls)
			out.Messages[i].ToolCalls = calls
		}
	}
	return &out
}
