package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sablehq/sable/internal/convo"
)

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"convos"},
	Short:   "Manage saved conversations",
}

var conversationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := convo.ConversationsDir()
		if err != nil {
			return err
		}
		summaries, err := convo.List(dir)
		if err != nil {
			return err
		}
		if len(summaries) == 0 {
			fmt.Println("No saved conversations.")
			return nil
		}
		for _, s := range summaries {
			title := s.Title
			if title == "" {
				title = "(untitled)"
			}
			fmt.Printf("%s  %-40s  %s  %d messages\n",
				s.UpdatedAt.Format("2006-01-02 15:04"), title, s.Provider, s.MessageCount)
			fmt.Printf("    id: %s\n", s.ID)
		}
		return nil
	},
}

var conversationsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one saved conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := convo.ConversationsDir()
		if err != nil {
			return err
		}
		conversation, err := convo.Load(dir, args[0])
		if err != nil {
			return err
		}
		for _, msg := range conversation.Messages {
			fmt.Printf("--- %s ---\n", msg.Role)
			if msg.Content != "" {
				fmt.Println(msg.Content)
			}
			for _, call := range msg.ToolCalls {
				fmt.Printf("[tool call %s: %s %s]\n", call.ID, call.Name, string(call.Arguments))
			}
			fmt.Println()
		}
		return nil
	},
}

var conversationsSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search over saved conversations",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir, err := convo.DataDir()
		if err != nil {
			return err
		}
		index, err := convo.OpenIndex(dataDir)
		if err != nil {
			return err
		}
		defer index.Close()

		ctx := context.Background()
		dir, err := convo.ConversationsDir()
		if err != nil {
			return err
		}
		if err := index.Rebuild(ctx, dir); err != nil {
			return err
		}

		results, err := index.Search(ctx, strings.Join(args, " "), 20)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Println("No matches.")
			return nil
		}
		for _, r := range results {
			fmt.Printf("%s  %s\n    %s\n", r.ID, r.Title, r.Snippet)
		}
		return nil
	},
}

func init() {
	conversationsCmd.AddCommand(conversationsListCmd)
	conversationsCmd.AddCommand(conversationsShowCmd)
	conversationsCmd.AddCommand(conversationsSearchCmd)
	rootCmd.AddCommand(conversationsCmd)
}
