package tools

import (
	"context"
	"encoding/json"

	"github.com/sablehq/sable/internal/llm"
)

// Prompter asks the operator a question and returns their answer. The
// terminal shell provides the real implementation; tests use fakes.
type Prompter interface {
	Ask(ctx context.Context, question string, options []string) (string, error)
}

// AskUserTool lets the model pose an interactive question to the
// operator mid-turn.
type AskUserTool struct {
	prompter Prompter
}

func NewAskUserTool(prompter Prompter) *AskUserTool {
	return &AskUserTool{prompter: prompter}
}

func (t *AskUserTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        AskUserToolName,
		Description: "Ask the user a question and wait for their answer. Use when you need a decision or missing information to proceed.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"question": map[string]interface{}{
					"type":        "string",
					"description": "The question to ask",
				},
				"options": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "Optional fixed choices to offer",
				},
			},
			"required":             []string{"question"},
			"additionalProperties": false,
		},
	}
}

func (t *AskUserTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a struct {
		Question string   `json:"question"`
		Options  []string `json:"options"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return "", NewToolErrorf(ErrInvalidParams, "parse arguments: %v", err)
	}
	if a.Question == "" {
		return "", NewToolError(ErrInvalidParams, "question is required")
	}
	if t.prompter == nil {
		return "", NewToolError(ErrExecutionFailed, "no interactive prompter available")
	}

	answer, err := t.prompter.Ask(ctx, a.Question, a.Options)
	if err != nil {
		return "", NewToolErrorf(ErrExecutionFailed, "ask user: %v", err)
	}
	return answer, nil
}
