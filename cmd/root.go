// Package cmd is the thin terminal shell over the programmatic core.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sablehq/sable/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "sable",
	Short: "sable is an interactive terminal AI assistant",
	Long: `sable maintains a conversational session with a remote LLM provider,
streams replies to the terminal, and lets the model call local tools
(shell, files, search, web fetch) and remote MCP tool servers.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
