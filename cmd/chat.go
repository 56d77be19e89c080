package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sablehq/sable/internal/agent"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
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

		// Ctrl-C cancels the in-flight turn; a second one, or one while
		// no turn is in flight, exits.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			for range sigCh {
				if session.State() == agent.StateIdle {
					manager.StopAll()
					session.Close()
					os.Exit(130)
				}
				session.Cancel()
			}
		}()
		defer signal.Stop(sigCh)

		fmt.Println("sable — type a message, /quit to exit.")
		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print("\n> ")
			if !scanner.Scan() {
				return scanner.Err()
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if line == "/quit" || line == "/exit" {
				return nil
			}
			if err := session.Submit(ctx, line); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
			}
			fmt.Println()
		}
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
}
