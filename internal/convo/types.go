// Package convo holds the conversation log: an append-only message
// sequence with JSON persistence, debounced autosave, and a derived
// sqlite catalog for listing and search.
package convo

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sablehq/sable/internal/llm"
)

// SchemaVersion is written into every persisted conversation file.
const SchemaVersion = 1

// titleMaxRunes bounds derived conversation titles.
const titleMaxRunes = 60

// Message is a single conversational turn.
type Message struct {
	ID          string         `json:"id"`
	Role        llm.Role       `json:"role"`
	CreatedAt   time.Time      `json:"created_at"`
	Content     string         `json:"content"`
	ToolCalls   []llm.ToolCall `json:"tool_calls,omitempty"`    // assistant turns only
	ToolCallRef string         `json:"tool_call_ref,omitempty"` // tool turns only
	IsError     bool           `json:"is_error,omitempty"`      // tool turns only: the call failed
}

// NewMessage builds a message with a fresh id and timestamp.
func NewMessage(role llm.Role, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		CreatedAt: time.Now().UTC(),
		Content:   content,
	}
}

// Conversation is an ordered message sequence with identity and
// bookkeeping. Messages are strictly ordered by insertion.
type Conversation struct {
	ID            string    `json:"id"`
	SchemaVersion int       `json:"schema_version"`
	Title         string    `json:"title,omitempty"`
	Provider      string    `json:"provider,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	Messages      []Message `json:"messages"`
}

// NewConversation creates an empty conversation for the given provider label.
func NewConversation(provider string) *Conversation {
	now := time.Now().UTC()
	return &Conversation{
		ID:            uuid.NewString(),
		SchemaVersion: SchemaVersion,
		Provider:      provider,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// DeriveTitle produces a conversation title from the first user
// message: first line, trimmed, truncated to 60 code points with an
// ellipsis when longer.
func DeriveTitle(text string) string {
	line := text
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	line = strings.TrimSpace(line)
	runes := []rune(line)
	if len(runes) <= titleMaxRunes {
		return line
	}
	return string(runes[:titleMaxRunes]) + "…"
}

// Validate checks the structural invariants: the first message is
// system or user, tool calls appear only on assistant turns, and every
// tool message references a tool call on an earlier assistant message.
func (c *Conversation) Validate() error {
	seenCalls := make(map[string]bool)
	for i, msg := range c.Messages {
		if i == 0 && msg.Role != llm.RoleSystem && msg.Role != llm.RoleUser {
			return fmt.Errorf("conversation %s: first message has role %s", c.ID, msg.Role)
		}
		if len(msg.ToolCalls) > 0 && msg.Role != llm.RoleAssistant {
			return fmt.Errorf("conversation %s: message %d carries tool calls with role %s", c.ID, i, msg.Role)
		}
		if msg.Role == llm.RoleAssistant {
			for _, call := range msg.ToolCalls {
				seenCalls[call.ID] = true
			}
		}
		if msg.Role == llm.RoleTool {
			if msg.ToolCallRef == "" {
				return fmt.Errorf("conversation %s: tool message %d has no tool_call_ref", c.ID, i)
			}
			if !seenCalls[msg.ToolCallRef] {
				return fmt.Errorf("conversation %s: tool message %d references unknown call %s", c.ID, i, msg.ToolCallRef)
			}
		}
	}
	return nil
}

// History converts the log into provider request messages.
func (c *Conversation) History() []llm.Message {
	out := make([]llm.Message, 0, len(c.Messages))
	for _, msg := range c.Messages {
		switch msg.Role {
		case llm.RoleTool:
			name := ""
			// Resolve the tool name from the referenced call for
			// providers that want it alongside the result.
			for _, prev := range c.Messages {
				for _, call := range prev.ToolCalls {
					if call.ID == msg.ToolCallRef {
						name = call.Name
					}
				}
			}
			if msg.IsError {
				out = append(out, llm.ToolErrorMessage(msg.ToolCallRef, name, msg.Content))
			} else {
				out = append(out, llm.ToolResultMessage(msg.ToolCallRef, name, msg.Content))
			}
		case llm.RoleAssistant:
			var parts []llm.Part
			if msg.Content != "" || len(msg.ToolCalls) == 0 {
				parts = append(parts, llm.Part{Type: llm.PartText, Text: msg.Content})
			}
			for i := range msg.ToolCalls {
				call := msg.ToolCalls[i]
				parts = append(parts, llm.Part{Type: llm.PartToolCall, ToolCall: &call})
			}
			out = append(out, llm.Message{Role: llm.RoleAssistant, Parts: parts})
		default:
			out = append(out, llm.Message{
				Role:  msg.Role,
				Parts: []llm.Part{{Type: llm.PartText, Text: msg.Content}},
			})
		}
	}
	return out
}
