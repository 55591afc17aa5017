package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stupiduntilnot/investbot/internal/config"
)

var rootFlags struct {
	logLevel  string
	logFormat string
	provider  string
	eventsDB  string
}

var rootCmd = &cobra.Command{
	Use:   "investbot",
	Short: "Investment news chat bot",
	Long: `investbot relays chat messages to a language model and answers
/price <TICKER> lookups. It runs as a Telegram bot or as an HTTP endpoint.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadRootConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootFlags.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides INVESTBOT_LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&rootFlags.logFormat, "log-format", "", "log format: text or json (overrides INVESTBOT_LOG_FORMAT)")
	rootCmd.PersistentFlags().StringVar(&rootFlags.provider, "provider", "", "model provider: openai, anthropic, dummy (overrides INVESTBOT_MODEL_PROVIDER)")
	rootCmd.PersistentFlags().StringVar(&rootFlags.eventsDB, "events-db", "", "sqlite event journal path (overrides INVESTBOT_EVENTS_DB)")
}

func loadRootConfig(cmd *cobra.Command, _ []string) error {
	loaded, err := config.LoadDotenv()
	if err != nil {
		return err
	}

	setEnvFromFlag("INVESTBOT_LOG_LEVEL", rootFlags.logLevel)
	setEnvFromFlag("INVESTBOT_LOG_FORMAT", rootFlags.logFormat)
	setEnvFromFlag("INVESTBOT_MODEL_PROVIDER", rootFlags.provider)
	setEnvFromFlag("INVESTBOT_EVENTS_DB", rootFlags.eventsDB)

	logger, err := newLogger(cmd.ErrOrStderr(), os.Getenv("INVESTBOT_LOG_LEVEL"), os.Getenv("INVESTBOT_LOG_FORMAT"))
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	if len(loaded) > 0 {
		slog.Debug("loaded env files", "files", loaded)
	}
	return nil
}

func setEnvFromFlag(key, value string) {
	if value != "" {
		os.Setenv(key, value)
	}
}

// newLogger builds the process logger. Empty level and format mean info and
// text.
func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("INVESTBOT_LOG_LEVEL: %w", err)
		}
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("INVESTBOT_LOG_FORMAT must be text or json: got %q", format)
	}
}
