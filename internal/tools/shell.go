package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"time"

	"github.com/sablehq/sable/internal/llm"
)

const (
	shellDefaultTimeout = 300 * time.Second
	shellMaxTimeout     = 300 * time.Second
)

// ShellTool executes shell commands. Blocking OS work runs on the
// spawned process; the tool itself only waits, observing ctx.
type ShellTool struct {
	permissions *ShellPermissions
	limits      OutputLimits
}

func NewShellTool(permissions *ShellPermissions, limits OutputLimits) *ShellTool {
	return &ShellTool{permissions: permissions, limits: limits}
}

// ShellArgs are the arguments for the shell tool.
type ShellArgs struct {
	Command        string `json:"command"`
	WorkingDir     string `json:"working_dir,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

// ShellResult contains the result of a shell command.
type ShellResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
	TimedOut bool   `json:"timed_out,omitempty"`
}

func (t *ShellTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        ShellToolName,
		Description: "Execute a shell command. Returns stdout, stderr, and exit code.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"command": map[string]interface{}{
					"type":        "string",
					"description": "Shell command to execute",
				},
				"working_dir": map[string]interface{}{
					"type":        "string",
					"description": "Working directory (defaults to current directory)",
				},
				"timeout_seconds": map[string]interface{}{
					"type":        "integer",
					"description": "Command timeout in seconds (default: 300, max: 300)",
				},
			},
			"required":             []string{"command"},
			"additionalProperties": false,
		},
	}
}

func (t *ShellTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a ShellArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", NewToolErrorf(ErrInvalidParams, "parse arguments: %v", err)
	}
	if a.Command == "" {
		return "", NewToolError(ErrInvalidParams, "command is required")
	}
	if t.permissions != nil && !t.permissions.Allowed(a.Command) {
		return "", NewToolErrorf(ErrPermissionDenied, "command not in allowlist: %s", a.Command)
	}

	timeout := shellDefaultTimeout
	if a.TimeoutSeconds > 0 {
		timeout = time.Duration(a.TimeoutSeconds) * time.Second
		if timeout > shellMaxTimeout {
			timeout = shellMaxTimeout
		}
	}
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, "sh", "-c", a.Command)
	if a.WorkingDir != "" {
		cmd.Dir = a.WorkingDir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	result := ShellResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		TimedOut: cmdCtx.Err() == context.DeadlineExceeded,
	}
	result.Stdout, _ = truncateOutput(result.Stdout, t.limits.MaxOutputBytes)
	result.Stderr, _ = truncateOutput(result.Stderr, t.limits.MaxOutputBytes)

	if exitErr, ok := runErr.(*exec.ExitError); ok {
		result.ExitCode = exitErr.ExitCode()
	} else if runErr != nil && !result.TimedOut {
		return "", NewToolErrorf(ErrExecutionFailed, "run command: %v", runErr)
	}

	out, err := json.Marshal(result)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
