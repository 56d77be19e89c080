package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sablehq/sable/internal/llm"
)

// ReadFileTool reads a file's contents.
type ReadFileTool struct {
	limits OutputLimits
}

func NewReadFileTool(limits OutputLimits) *ReadFileTool {
	return &ReadFileTool{limits: limits}
}

func (t *ReadFileTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        ReadFileToolName,
		Description: "Read the contents of a file.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Path to the file to read",
				},
			},
			"required":             []string{"path"},
			"additionalProperties": false,
		},
	}
}

func (t *ReadFileTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return "", NewToolErrorf(ErrInvalidParams, "parse arguments: %v", err)
	}
	if a.Path == "" {
		return "", NewToolError(ErrInvalidParams, "path is required")
	}

	info, err := os.Stat(a.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", NewToolErrorf(ErrFileNotFound, "no such file: %s", a.Path)
		}
		return "", NewToolErrorf(ErrExecutionFailed, "stat %s: %v", a.Path, err)
	}
	if t.limits.MaxFileBytes > 0 && info.Size() > int64(t.limits.MaxFileBytes) {
		return "", NewToolErrorf(ErrFileTooLarge, "%s is %d bytes (limit %d)", a.Path, info.Size(), t.limits.MaxFileBytes)
	}

	data, err := os.ReadFile(a.Path)
	if err != nil {
		return "", NewToolErrorf(ErrExecutionFailed, "read %s: %v", a.Path, err)
	}
	return string(data), nil
}

// WriteFileTool writes content to a file, creating parent directories.
type WriteFileTool struct{}

func NewWriteFileTool() *WriteFileTool {
	return &WriteFileTool{}
}

func (t *WriteFileTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        WriteFileToolName,
		Description: "Write content to a file, creating it (and parent directories) if needed. Overwrites existing content.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Path to the file to write",
				},
				"content": map[string]interface{}{
					"type":        "string",
					"description": "Content to write",
				},
			},
			"required":             []string{"path", "content"},
			"additionalProperties": false,
		},
	}
}

func (t *WriteFileTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return "", NewToolErrorf(ErrInvalidParams, "parse arguments: %v", err)
	}
	if a.Path == "" {
		return "", NewToolError(ErrInvalidParams, "path is required")
	}

	if dir := filepath.Dir(a.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", NewToolErrorf(ErrExecutionFailed, "mkdir %s: %v", dir, err)
		}
	}
	if err := os.WriteFile(a.Path, []byte(a.Content), 0o644); err != nil {
		return "", NewToolErrorf(ErrExecutionFailed, "write %s: %v", a.Path, err)
	}
	return fmt.Sprintf("Wrote %d bytes to %s", len(a.Content), a.Path), nil
}

// EditFileTool replaces an exact old_string with new_string in a file.
type EditFileTool struct{}

func NewEditFileTool() *EditFileTool {
	return &EditFileTool{}
}

func (t *EditFileTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        EditFileToolName,
		Description: "Edit a file by replacing old_string with new_string. old_string must match the file exactly and uniquely; include enough context to disambiguate. Use multiple calls for multiple edits.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Path to the file to edit",
				},
				"old_string": map[string]interface{}{
					"type":        "string",
					"description": "The exact text to find and replace",
				},
				"new_string": map[string]interface{}{
					"type":        "string",
					"description": "The text to replace old_string with",
				},
			},
			"required":             []string{"path", "old_string", "new_string"},
			"additionalProperties": false,
		},
	}
}

func (t *EditFileTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a struct {
		Path      string `json:"path"`
		OldString string `json:"old_string"`
		NewString string `json:"new_string"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return "", NewToolErrorf(ErrInvalidParams, "parse arguments: %v", err)
	}
	if a.Path == "" || a.OldString == "" {
		return "", NewToolError(ErrInvalidParams, "path and old_string are required")
	}

	data, err := os.ReadFile(a.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", NewToolErrorf(ErrFileNotFound, "no such file: %s", a.Path)
		}
		return "", NewToolErrorf(ErrExecutionFailed, "read %s: %v", a.Path, err)
	}
	content := string(data)

	count := strings.Count(content, a.OldString)
	if count == 0 {
		return "", NewToolError(ErrExecutionFailed, "old_string not found in file")
	}
	if count > 1 {
		return "", NewToolErrorf(ErrExecutionFailed, "old_string matches %d times; add more context to make it unique", count)
	}

	content = strings.Replace(content, a.OldString, a.NewString, 1)
	if err := os.WriteFile(a.Path, []byte(content), 0o644); err != nil {
		return "", NewToolErrorf(ErrExecutionFailed, "write %s: %v", a.Path, err)
	}
	return fmt.Sprintf("Edited %s", a.Path), nil
}
