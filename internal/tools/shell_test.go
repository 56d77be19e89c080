package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func runShell(t *testing.T, tool *ShellTool, args string) (ShellResult, error) {
	t.Helper()
	out, err := tool.Execute(context.Background(), json.RawMessage(args))
	if err != nil {
		return ShellResult{}, err
	}
	var result ShellResult
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("result not JSON: %q", out)
	}
	return result, nil
}

func TestShellTool_Echo(t *testing.T) {
	tool := NewShellTool(nil, DefaultOutputLimits())
	result, err := runShell(t, tool, `{"command":"echo hello"}`)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(result.Stdout) != "hello" || result.ExitCode != 0 {
		t.Errorf("result = %+v", result)
	}
}

func TestShellTool_NonZeroExit(t *testing.T) {
	tool := NewShellTool(nil, DefaultOutputLimits())
	result, err := runShell(t, tool, `{"command":"exit 3"}`)
	if err != nil {
		t.Fatal(err)
	}
	if result.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", result.ExitCode)
	}
}

func TestShellTool_Stderr(t *testing.T) {
	tool := NewShellTool(nil, DefaultOutputLimits())
	result, err := runShell(t, tool, `{"command":"echo oops >&2"}`)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(result.Stderr) != "oops" {
		t.Errorf("stderr = %q", result.Stderr)
	}
}

func TestShellTool_Timeout(t *testing.T) {
	tool := NewShellTool(nil, DefaultOutputLimits())
	result, err := runShell(t, tool, `{"command":"sleep 10","timeout_seconds":1}`)
	if err != nil {
		t.Fatal(err)
	}
	if !result.TimedOut {
		t.Error("TimedOut not set")
	}
}

func TestShellTool_AllowlistDenies(t *testing.T) {
	perms, err := NewShellPermissions([]string{"echo *", "git *"})
	if err != nil {
		t.Fatal(err)
	}
	tool := NewShellTool(perms, DefaultOutputLimits())

	if _, err := runShell(t, tool, `{"command":"echo ok"}`); err != nil {
		t.Errorf("allowed command rejected: %v", err)
	}

	_, err = tool.Execute(context.Background(), json.RawMessage(`{"command":"rm -rf /"}`))
	var toolErr *ToolError
	if !errors.As(err, &toolErr) || toolErr.Type != ErrPermissionDenied {
		t.Errorf("error = %v, want permission denied", err)
	}
}

func TestShellTool_MissingCommand(t *testing.T) {
	tool := NewShellTool(nil, DefaultOutputLimits())
	_, err := tool.Execute(context.Background(), json.RawMessage(`{}`))
	var toolErr *ToolError
	if !errors.As(err, &toolErr) || toolErr.Type != ErrInvalidParams {
		t.Errorf("error = %v, want invalid params", err)
	}
}

func TestShellTool_WorkingDir(t *testing.T) {
	dir := t.TempDir()
	tool := NewShellTool(nil, DefaultOutputLimits())
	result, err := runShell(t, tool, `{"command":"pwd","working_dir":"`+dir+`"}`)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(strings.TrimSpace(result.Stdout), dir[strings.LastIndex(dir, "/"):]) {
		t.Errorf("pwd = %q, want under %q", result.Stdout, dir)
	}
}

func TestShellPermissions_EmptyAllowsAll(t *testing.T) {
	perms, _ := NewShellPermissions(nil)
	if !perms.Allowed("anything at all") {
		t.Error("empty pattern set should allow everything")
	}
}

func TestShellPermissions_BadPattern(t *testing.T) {
	if _, err := NewShellPermissions([]string{"[unclosed"}); err == nil {
		t.Error("invalid pattern accepted")
	}
}
