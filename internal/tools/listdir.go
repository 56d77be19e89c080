package tools

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/sablehq/sable/internal/llm"
)

// listDirMaxEntries caps a single listing.
const listDirMaxEntries = 500

// errListLimit stops a glob walk once the entry cap is hit.
var errListLimit = errors.New("listing limit reached")

// ListDirectoryTool lists directory entries, optionally filtered by a
// doublestar glob pattern (recursive when the pattern contains "**").
type ListDirectoryTool struct{}

func NewListDirectoryTool() *ListDirectoryTool {
	return &ListDirectoryTool{}
}

func (t *ListDirectoryTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        ListDirectoryToolName,
		Description: "List entries in a directory. Optional glob pattern (supports ** for recursive matches). Directories are suffixed with /.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Directory to list",
				},
				"pattern": map[string]interface{}{
					"type":        "string",
					"description": "Optional glob pattern, e.g. \"*.go\" or \"src/**/*.ts\"",
				},
			},
			"required":             []string{"path"},
			"additionalProperties": false,
		},
	}
}

type listDirResult struct {
	Entries   []string `json:"entries"`
	Truncated bool     `json:"truncated,omitempty"`
}

func (t *ListDirectoryTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a struct {
		Path    string `json:"path"`
		Pattern string `json:"pattern"`
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
			return "", NewToolErrorf(ErrFileNotFound, "no such directory: %s", a.Path)
		}
		return "", NewToolErrorf(ErrExecutionFailed, "stat %s: %v", a.Path, err)
	}
	if !info.IsDir() {
		return "", NewToolErrorf(ErrInvalidParams, "%s is not a directory", a.Path)
	}

	var result listDirResult
	if a.Pattern == "" {
		entries, err := os.ReadDir(a.Path)
		if err != nil {
			return "", NewToolErrorf(ErrExecutionFailed, "read %s: %v", a.Path, err)
		}
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() {
				name += "/"
			}
			result.Entries = append(result.Entries, name)
		}
	} else {
		if !doublestar.ValidatePattern(a.Pattern) {
			return "", NewToolErrorf(ErrInvalidParams, "invalid pattern: %s", a.Pattern)
		}
		err := doublestar.GlobWalk(os.DirFS(a.Path), a.Pattern, func(path string, d fs.DirEntry) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			name := path
			if d.IsDir() {
				name += "/"
			}
			result.Entries = append(result.Entries, name)
			if len(result.Entries) >= listDirMaxEntries {
				result.Truncated = true
				return errListLimit
			}
			return nil
		})
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if err != nil && err != errListLimit {
			return "", NewToolErrorf(ErrExecutionFailed, "glob %s: %v", a.Pattern, err)
		}
	}

	sort.Strings(result.Entries)
	if len(result.Entries) > listDirMaxEntries {
		result.Entries = result.Entries[:listDirMaxEntries]
		result.Truncated = true
	}

	out, err := json.Marshal(result)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
