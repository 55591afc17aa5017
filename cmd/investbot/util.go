package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/stupiduntilnot/investbot/internal/anthropic"
	"github.com/stupiduntilnot/investbot/internal/chat"
	cmdpkg "github.com/stupiduntilnot/investbot/internal/commander"
	"github.com/stupiduntilnot/investbot/internal/config"
	ctxpkg "github.com/stupiduntilnot/investbot/internal/context"
	"github.com/stupiduntilnot/investbot/internal/control"
	"github.com/stupiduntilnot/investbot/internal/db"
	"github.com/stupiduntilnot/investbot/internal/dummy"
	"github.com/stupiduntilnot/investbot/internal/journal"
	modelpkg "github.com/stupiduntilnot/investbot/internal/model"
	"github.com/stupiduntilnot/investbot/internal/openai"
	"github.com/stupiduntilnot/investbot/internal/quote"
	"github.com/stupiduntilnot/investbot/internal/telegram"
	"github.com/stupiduntilnot/investbot/internal/telemetry"
)

func setupContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	// Setup graceful shutdown
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-interrupt
		slog.Info("interrupt signal detected, shutting down gracefully")
		cancel()
		<-interrupt
		slog.Error("forcing shutdown")
		os.Exit(1)
	}()

	return ctx
}

func completionPolicy(cfg *config.BotConfig) control.Policy {
	return control.Policy{
		CompletionTimeout: cfg.CompletionTimeout,
		MaxRetries:        cfg.MaxRetries,
	}
}

// newModelProvider builds the configured provider. The SDK clients retry
// transient failures up to policy.MaxRetries times within each call.
func newModelProvider(cfg *config.BotConfig, policy control.Policy) (modelpkg.Provider, string, error) {
	switch cfg.ModelProvider {
	case config.ProviderOpenAI:
		return openai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, policy.CompletionTimeout, policy.MaxRetries), cfg.OpenAIModel, nil
	case config.ProviderAnthropic:
		return anthropic.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicURL, cfg.AnthropicModel, policy.CompletionTimeout, policy.MaxRetries), cfg.AnthropicModel, nil
	case config.ProviderDummy:
		p, err := dummy.NewProvider("dummy", cfg.DummyScript)
		return p, "dummy", err
	default:
		return nil, "", fmt.Errorf("unsupported model provider: %s", cfg.ModelProvider)
	}
}

func newCommander(cfg *config.BotConfig, logger *slog.Logger) (cmdpkg.Commander, error) {
	switch cfg.Commander {
	case config.CommanderTelegram:
		return telegram.NewClient(cfg.TelegramToken, telegram.WithLogger(logger))
	case config.CommanderDummy:
		return dummy.NewCommander(cfg.DummyCommanderScript, cfg.DummySendScript)
	default:
		return nil, fmt.Errorf("unsupported commander: %s", cfg.Commander)
	}
}

func newQuoteSource(cfg *config.BotConfig) (quote.Source, error) {
	switch cfg.QuoteProvider {
	case config.QuoteProviderYahoo:
		return quote.NewYahooClient(cfg.QuoteBaseURL, cfg.QuoteTimeout), nil
	case config.QuoteProviderDummy:
		return dummy.DefaultQuotes(), nil
	default:
		return nil, fmt.Errorf("unsupported quote provider: %s", cfg.QuoteProvider)
	}
}

// app holds the pieces shared by every front end.
type app struct {
	service   *chat.Service
	recorder  journal.Recorder
	rootID    int64
	logger    *slog.Logger
	database  *sql.DB
	telemetry *telemetry.Provider
}

// newApp builds the chat service and its journal. role names the front end
// in the process.started event.
func newApp(ctx context.Context, cfg *config.BotConfig, role string) (*app, error) {
	logger := slog.Default()

	a := &app{logger: logger}
	recorders := journal.Multi{journal.NewSlogRecorder(logger)}
	if cfg.EventsDBPath != "" {
		database, err := db.OpenDB(cfg.EventsDBPath)
		if err != nil {
			return nil, err
		}
		if err := db.InitSchema(database); err != nil {
			database.Close()
			return nil, fmt.Errorf("failed to init schema: %w", err)
		}
		a.database = database
		recorders = append(recorders, journal.NewSQLiteRecorder(database, logger))
	}
	a.recorder = recorders

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Endpoint:       cfg.OTLPEndpoint,
		ServiceName:    "investbot",
		ServiceVersion: Version,
	})
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	a.telemetry = tp

	policy := completionPolicy(cfg)
	provider, modelName, err := newModelProvider(cfg, policy)
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("failed to init model provider: %w", err)
	}
	quotes, err := newQuoteSource(cfg)
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("failed to init quote source: %w", err)
	}

	a.rootID = a.recorder.Record(ctx, 0, db.EventProcessStarted, map[string]any{
		"role":           role,
		"pid":            os.Getpid(),
		"provider":       cfg.ModelProvider,
		"model":          modelName,
		"quote_provider": cfg.QuoteProvider,
		"history_window": cfg.HistoryWindow,
		"pin_system":     cfg.PinSystemPrompt,
		"version":        Version,
	})

	store := ctxpkg.NewStore(cfg.SystemPrompt, ctxpkg.Window{
		MaxMessages: cfg.HistoryWindow,
		PinSystem:   cfg.PinSystemPrompt,
	})
	a.service = chat.NewService(store, provider, quotes,
		chat.WithPolicy(policy),
		chat.WithRecorder(a.recorder, a.rootID),
		chat.WithTracer(tp.Tracer()),
		chat.WithLogger(logger),
		chat.WithModelName(modelName),
	)
	return a, nil
}

// close records process.stopped and releases the journal and tracer.
func (a *app) close(ctx context.Context) {
	if a.recorder != nil && a.service != nil {
		a.recorder.Record(context.WithoutCancel(ctx), a.rootID, db.EventProcessStopped, nil)
	}
	if a.telemetry != nil {
		if err := a.telemetry.Shutdown(context.WithoutCancel(ctx)); err != nil {
			a.logger.Warn("telemetry shutdown failed", "err", err)
		}
	}
	if a.database != nil {
		a.database.Close()
	}
}
