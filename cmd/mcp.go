package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Inspect configured MCP tool servers",
}

var mcpListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured MCP servers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if len(cfg.MCPServers) == 0 {
			fmt.Println("No MCP servers configured.")
			return nil
		}
		for name, server := range cfg.MCPServers {
			transport := "stdio"
			endpoint := server.Command
			if server.URL != "" {
				transport = "http"
				endpoint = server.URL
			}
			fmt.Printf("%-20s %-6s %s\n", name, transport, endpoint)
		}
		return nil
	},
}

func init() {
	mcpCmd.AddCommand(mcpListCmd)
	rootCmd.AddCommand(mcpCmd)
}
