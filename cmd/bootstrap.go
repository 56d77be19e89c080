package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sablehq/sable/internal/agent"
	"github.com/sablehq/sable/internal/config"
	"github.com/sablehq/sable/internal/convo"
	"github.com/sablehq/sable/internal/debuglog"
	"github.com/sablehq/sable/internal/llm"
	"github.com/sablehq/sable/internal/mcp"
	"github.com/sablehq/sable/internal/tools"
)

// terminalSink streams deltas to stdout and tool activity to stderr.
type terminalSink struct{}

func (terminalSink) OnTextDelta(text string) {
	fmt.Print(text)
	os.Stdout.Sync()
}

func (terminalSink) OnToolStart(callID, name string) {
	fmt.Fprintf(os.Stderr, "\n[tool %s running]\n", name)
}

func (terminalSink) OnToolEnd(callID, name string, success bool) {
	status := "done"
	if !success {
		status = "failed"
	}
	fmt.Fprintf(os.Stderr, "[tool %s %s]\n", name, status)
}

func (terminalSink) OnRetry(attempt int, waitSecs float64) {
	fmt.Fprintf(os.Stderr, "[retrying after transient error, attempt %d, waiting %.1fs]\n", attempt, waitSecs)
}

// stdinPrompter answers ask_user questions from the terminal.
type stdinPrompter struct{}

func (stdinPrompter) Ask(ctx context.Context, question string, options []string) (string, error) {
	fmt.Fprintf(os.Stderr, "\n%s\n", question)
	if len(options) > 0 {
		fmt.Fprintf(os.Stderr, "Options: %s\n", strings.Join(options, ", "))
	}
	fmt.Fprint(os.Stderr, "> ")

	answerCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			errCh <- err
			return
		}
		answerCh <- strings.TrimSpace(line)
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case err := <-errCh:
		return "", err
	case answer := <-answerCh:
		return answer, nil
	}
}

// buildSession assembles the full stack: provider, registry with
// built-ins, MCP manager, conversation store with autosave, session.
func buildSession(ctx context.Context, cfg *config.Config, sink agent.Sink) (*agent.Session, *mcp.Manager, error) {
	providerName, pc, err := cfg.ActiveProviderConfig()
	if err != nil {
		return nil, nil, err
	}
	provider, err := llm.NewProviderByName(cfg, providerName, pc)
	if err != nil {
		return nil, nil, err
	}

	registry := llm.NewToolRegistry()
	if err := tools.RegisterBuiltins(registry, tools.Options{Prompter: stdinPrompter{}}); err != nil {
		return nil, nil, err
	}

	manager := mcp.NewManager(cfg.MCPServers, registry)
	manager.EnableAll(ctx)

	engine := llm.NewEngine(provider, registry)

	conversation := convo.NewConversation(providerName)
	store := convo.NewStore(conversation)

	var autosaver *convo.Autosaver
	if cfg.AutoSaveConversations {
		dir, err := convo.ConversationsDir()
		if err != nil {
			return nil, nil, err
		}
		dataDir, _ := convo.DataDir()
		var index *convo.Index
		if ix, err := convo.OpenIndex(dataDir); err == nil {
			index = ix
		}
		autosaver = convo.NewAutosaver(store, dir,
			func(err error) {
				fmt.Fprintf(os.Stderr, "[autosave failed: %v]\n", err)
			},
			func(snapshot *convo.Conversation) {
				if index != nil {
					_ = index.Upsert(context.Background(), snapshot)
				}
			})
	}

	var logger *debuglog.Logger
	if dir, err := debuglog.DefaultDir(); err == nil {
		logger, _ = debuglog.NewLogger(dir, conversation.ID, cfg.Debug)
	}

	session := agent.NewSession(agent.Options{
		Config:       cfg,
		ProviderName: providerName,
		Engine:       engine,
		Store:        store,
		Autosaver:    autosaver,
		Logger:       logger,
		Sink:         sink,
	})
	return session, manager, nil
}
