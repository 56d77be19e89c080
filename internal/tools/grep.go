package tools

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/sablehq/sable/internal/llm"
)

const (
	grepMaxMatches  = 200
	grepMaxFileSize = 1 * 1024 * 1024
)

// GrepTool searches file contents with a regular expression.
type GrepTool struct {
	limits OutputLimits
}

func NewGrepTool(limits OutputLimits) *GrepTool {
	return &GrepTool{limits: limits}
}

func (t *GrepTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        GrepToolName,
		Description: "Search file contents recursively with a regular expression. Returns path:line:text matches.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"pattern": map[string]interface{}{
					"type":        "string",
					"description": "Regular expression to search for",
				},
				"path": map[string]interface{}{
					"type":        "string",
					"description": "File or directory to search (default: current directory)",
				},
			},
			"required":             []string{"pattern"},
			"additionalProperties": false,
		},
	}
}

func (t *GrepTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a struct {
		Pattern string `json:"pattern"`
		Path    string `json:"path"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return "", NewToolErrorf(ErrInvalidParams, "parse arguments: %v", err)
	}
	if a.Pattern == "" {
		return "", NewToolError(ErrInvalidParams, "pattern is required")
	}
	re, err := regexp.Compile(a.Pattern)
	if err != nil {
		return "", NewToolErrorf(ErrInvalidParams, "invalid pattern: %v", err)
	}
	root := a.Path
	if root == "" {
		root = "."
	}

	var matches []string
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			name := d.Name()
			if name == ".git" || name == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}
		if info, err := d.Info(); err != nil || info.Size() > grepMaxFileSize {
			return nil
		}
		fileMatches, err := grepFile(path, re)
		if err != nil {
			return nil
		}
		matches = append(matches, fileMatches...)
		if len(matches) >= grepMaxMatches {
			return errListLimit
		}
		return nil
	})
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if walkErr != nil && walkErr != errListLimit {
		return "", NewToolErrorf(ErrExecutionFailed, "search %s: %v", root, walkErr)
	}

	if len(matches) == 0 {
		return "No matches found.", nil
	}
	if len(matches) > grepMaxMatches {
		matches = matches[:grepMaxMatches]
	}
	out := strings.Join(matches, "\n")
	out, _ = truncateOutput(out, t.limits.MaxOutputBytes)
	return out, nil
}

func grepFile(path string, re *regexp.Regexp) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.ContainsRune(line, 0) {
			return nil, nil // binary file
		}
		if re.MatchString(line) {
			if len(line) > 200 {
				line = line[:200] + "..."
			}
			out = append(out, fmt.Sprintf("%s:%d:%s", path, lineNo, line))
		}
	}
	return out, scanner.Err()
}
