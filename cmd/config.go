package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/sablehq/sable/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the active configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.Path()
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Printf("config file:     %s\n", path)
		fmt.Printf("active provider: %s\n", cfg.ActiveProvider)
		fmt.Printf("tool loop limit: %d\n", cfg.ToolLoopLimit)
		fmt.Printf("autosave:        %v\n", cfg.AutoSaveConversations)
		fmt.Printf("debug:           %v\n", cfg.Debug)

		names := make([]string, 0, len(cfg.Providers))
		for name := range cfg.Providers {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Println("providers:")
		for _, name := range names {
			pc := cfg.Providers[name]
			marker := " "
			if name == cfg.ActiveProvider {
				marker = "*"
			}
			fmt.Printf("  %s %-12s model=%s\n", marker, name, pc.Model)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
