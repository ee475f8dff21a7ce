package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/vaultgate/vaultgate/internal/approval"
	"github.com/vaultgate/vaultgate/internal/config"
	"github.com/vaultgate/vaultgate/internal/conversation"
	"github.com/vaultgate/vaultgate/internal/logging"
	"github.com/vaultgate/vaultgate/internal/notify"
	"github.com/vaultgate/vaultgate/internal/orchestrator"
	"github.com/vaultgate/vaultgate/internal/protocol"
	"github.com/vaultgate/vaultgate/internal/security"
	"github.com/vaultgate/vaultgate/internal/subagent"
	"github.com/vaultgate/vaultgate/internal/transport"
)

// Run starts the interactive session loop.
func (c *ChatCmd) Run() error {
	logger := logging.New()
	if c.Verbose {
		logger.SetLevel(logging.LevelDebug)
	}

	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	if c.Sandbox != "" {
		cfg.Sandbox.Root = c.Sandbox
	}

	store, err := conversation.NewFileStore(cfg.Conversation.Dir)
	if err != nil {
		return err
	}
	history, err := c.openHistory(store)
	if err != nil {
		return err
	}

	broker, err := approval.NewBroker(
		newApprovalPrompt(),
		approval.NewFileStore(cfg.Security.ApprovalsFile),
		logger.WithComponent("approval"),
	)
	if err != nil {
		return err
	}

	notifier, err := notify.Connect(cfg.Notify.URL, cfg.Notify.SubjectPrefix, logger.WithComponent("notify"))
	if err != nil {
		logger.Warn("notifier unavailable", map[string]interface{}{"error": err.Error()})
	}
	defer notifier.Close()

	runtime := transport.NewProcess(cfg.Runtime.Command, cfg.Runtime.Args, logger.WithComponent("transport"))
	renderer := newRenderer(os.Stdout)

	session := orchestrator.New(orchestrator.Options{
		Transport: runtime,
		Gate:      security.NewGate(cfg.Policy(), logger.WithComponent("security")),
		Broker:    broker,
		History:   history,
		Store:     store,
		Logger:    logger.WithComponent("orchestrator"),
	})
	defer session.Close()

	// A config reload swaps in a fresh gate snapshot and durable
	// approvals for the next query; the in-flight query is unaffected.
	if c.Config != "" {
		watcher, err := config.NewWatcher(c.Config, logger.WithComponent("config"))
		if err != nil {
			logger.Warn("config watch unavailable", map[string]interface{}{"error": err.Error()})
		} else {
			watcher.OnChange = func(next *config.Config) {
				session.SetGate(security.NewGate(next.Policy(), logger.WithComponent("security")))
				if durable, err := approval.NewFileStore(next.Security.ApprovalsFile).Load(); err == nil {
					broker.SetDurable(durable)
				}
			}
			defer watcher.Close()
		}
	}

	session.OnChunk = func(chunk protocol.Chunk) {
		renderer.Chunk(chunk)
		if chunk.Kind == protocol.ChunkDone || chunk.Kind == protocol.ChunkError {
			notifier.TerminalChunk(session.History().ID, chunk)
		}
	}
	session.OnSubagent = func(info subagent.Info) {
		renderer.Subagent(info)
		notifier.SubagentTransition(info)
	}

	// Ctrl-C cancels the in-flight query instead of killing the
	// process; Ctrl-C with no query running exits.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		for range sigs {
			if !session.Cancel() {
				fmt.Fprintln(os.Stderr, "\nexiting")
				session.Close()
				os.Exit(0)
			}
		}
	}()

	fmt.Printf("vaultgate %s — sandbox: %s\n", version, cfg.Sandbox.Root)
	fmt.Println("Type a prompt, or /reset, /subagents, /exit.")

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

		switch line {
		case "/exit", "/quit":
			return nil
		case "/reset":
			session.Reset()
			fmt.Println("Session reset.")
			continue
		case "/subagents":
			renderer.SubagentList(session)
			continue
		}

		if err := session.Query(context.Background(), line); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}

func (c *ChatCmd) loadConfig() (*config.Config, error) {
	if c.Config != "" {
		return config.LoadFile(c.Config)
	}
	return config.LoadDefault()
}

func (c *ChatCmd) openHistory(store *conversation.FileStore) (*conversation.Conversation, error) {
	if c.Resume == "" {
		return conversation.New(), nil
	}
	history, err := store.Load(c.Resume)
	if err != nil {
		return nil, fmt.Errorf("resume conversation %q: %w", c.Resume, err)
	}
	return history, nil
}
