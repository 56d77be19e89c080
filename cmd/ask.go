package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a one-shot question",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx := context.Background()
		session, manager, err := buildSession(ctx, cfg, terminalSink{})
		if err != nil {
			return err
		}
		defer session.Close()
		defer manager.StopAll()

		if err := session.Submit(ctx, strings.Join(args, " ")); err != nil {
			return err
		}
		fmt.Println()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
}
