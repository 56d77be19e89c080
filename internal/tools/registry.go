package tools

import (
	"github.com/sablehq/sable/internal/llm"
)

// Options configures the built-in tool set.
type Options struct {
	ShellPatterns []string // shell allowlist; empty allows everything
	Prompter      Prompter // nil disables ask_user
	Limits        OutputLimits
}

// RegisterBuiltins installs the built-in tools into the registry.
// Called once at startup, before any MCP discovery.
func RegisterBuiltins(registry *llm.ToolRegistry, opts Options) error {
	if opts.Limits == (OutputLimits{}) {
		opts.Limits = DefaultOutputLimits()
	}
	perms, err := NewShellPermissions(opts.ShellPatterns)
	if err != nil {
		return err
	}

	builtins := []llm.Tool{
		NewShellTool(perms, opts.Limits),
		NewReadFileTool(opts.Limits),
		NewWriteFileTool(),
		NewEditFileTool(),
		NewListDirectoryTool(),
		NewGrepTool(opts.Limits),
		NewWebFetchTool(opts.Limits),
	}
	if opts.Prompter != nil {
		builtins = append(builtins, NewAskUserTool(opts.Prompter))
	}

	for _, tool := range builtins {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}
	return nil
}
