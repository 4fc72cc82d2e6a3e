// Command taskpilot runs the to-do agent as an interactive chat loop.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"os/user"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/taskpilot/taskpilot/agent"
	"github.com/taskpilot/taskpilot/calendar"
	"github.com/taskpilot/taskpilot/checkpoint/factory"
	"github.com/taskpilot/taskpilot/config"
	"github.com/taskpilot/taskpilot/dateparse"
	"github.com/taskpilot/taskpilot/observe"
	"github.com/taskpilot/taskpilot/providers/openai"
	"github.com/taskpilot/taskpilot/taskstore"
	"github.com/taskpilot/taskpilot/tools"
)

func main() {
	userFlag := flag.String("user", "", "user id (default: system username)")
	threadFlag := flag.String("thread", "", "thread id to resume (default: new thread)")
	flag.Parse()

	logger := buildLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ag, cleanup, err := buildAgent(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build agent")
	}
	defer cleanup()

	userID := resolveUserID(*userFlag)
	threadID := *threadFlag
	if threadID == "" {
		threadID = fmt.Sprintf("%s_session_%s", userID, uuid.NewString())
	}

	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("🤖 TaskPilot")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("✓ User: %s\n", userID)
	fmt.Printf("✓ Thread: %s\n", threadID)
	fmt.Println("Type a message, or 'quit' to exit.")
	fmt.Println(strings.Repeat("=", 60))

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("You: ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		switch strings.ToLower(input) {
		case "quit", "exit", "q":
			fmt.Println("\n👋 Goodbye!")
			return
		}

		reply, err := ag.HandleMessage(ctx, threadID, userID, input)
		if err != nil {
			logger.Error().Err(err).Msg("failed to handle message")
			continue
		}
		fmt.Printf("\n🤖 %s\n\n", reply)
	}
}

func buildAgent(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*agent.Agent, func(), error) {
	store, err := factory.New(cfg.Checkpoint)
	if err != nil {
		return nil, nil, fmt.Errorf("checkpoint store: %w", err)
	}

	repo, err := taskstore.New(cfg.Tasks.SQLitePath)
	if err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("task store: %w", err)
	}

	parser, err := dateparse.New(cfg.Tasks.Timezone)
	if err != nil {
		_ = store.Close()
		_ = repo.Close()
		return nil, nil, fmt.Errorf("date parser: %w", err)
	}

	var cal calendar.Client
	gcal, err := calendar.NewGoogleClient(ctx, cfg.Calendar.CredentialsFile, cfg.Calendar.CalendarID)
	if err != nil {
		if !errors.Is(err, calendar.ErrNotConfigured) {
			logger.Warn().Err(err).Msg("calendar unavailable, running without calendar sync")
		}
		cal = calendar.Unconfigured{}
	} else {
		cal = gcal
	}

	registry := tools.NewRegistry()
	tools.Register(registry, tools.Deps{
		Repo:     repo,
		Calendar: cal,
		Parser:   parser,
		Logger:   logger,
	})

	provider, err := openai.New(cfg.LLM.APIKey,
		openai.WithModel(cfg.LLM.Model),
		openai.WithBaseURL(cfg.LLM.BaseURL),
	)
	if err != nil {
		_ = store.Close()
		_ = repo.Close()
		return nil, nil, fmt.Errorf("llm provider: %w", err)
	}

	retry := agent.DefaultRetryPolicy()
	if cfg.LLM.MaxRetries > 0 {
		retry.MaxAttempts = cfg.LLM.MaxRetries
	}

	ag, err := agent.New(agent.Options{
		Provider:        provider,
		Model:           cfg.LLM.Model,
		Registry:        registry,
		Store:           store,
		Observer:        observe.NewLogSink(logger),
		Logger:          logger,
		Retry:           retry,
		DefaultTimezone: cfg.Tasks.Timezone,
	})
	if err != nil {
		_ = store.Close()
		_ = repo.Close()
		return nil, nil, err
	}

	cleanup := func() {
		_ = store.Close()
		_ = repo.Close()
	}
	return ag, cleanup, nil
}

func buildLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger().
		Level(zerolog.InfoLevel)
}

func resolveUserID(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "default"
}
