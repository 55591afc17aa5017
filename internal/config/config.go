package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderDummy     = "dummy"

	QuoteProviderYahoo = "yahoo"
	QuoteProviderDummy = "dummy"

	CommanderTelegram = "telegram"
	CommanderDummy    = "dummy"
)

// DefaultSystemPrompt seeds every new conversation.
const DefaultSystemPrompt = "You are an investment news assistant. Answer concisely and accurately. You do not give personalised financial advice."

// BotConfig holds configuration shared by the telegram and web front ends.
type BotConfig struct {
	Commander            string
	TelegramToken        string
	DummyCommanderScript string
	DummySendScript      string

	ModelProvider   string
	OpenAIAPIKey    string
	OpenAIModel     string
	OpenAIBaseURL   string
	AnthropicAPIKey string
	AnthropicModel  string
	AnthropicURL    string
	DummyScript     string

	SystemPrompt      string
	HistoryWindow     int
	PinSystemPrompt   bool
	CompletionTimeout time.Duration
	MaxRetries        int

	QuoteProvider string
	QuoteBaseURL  string
	QuoteTimeout  time.Duration

	EventsDBPath string
	LogLevel     string
	LogFormat    string
	OTLPEndpoint string
	Port         int

	ConfigDir string
}

// LoadBotConfig reads bot configuration from environment variables.
func LoadBotConfig() (BotConfig, error) {
	modelProvider := strings.ToLower(envOrDefault("INVESTBOT_MODEL_PROVIDER", ProviderOpenAI))
	openaiKey := os.Getenv("OPENAI_API_KEY")
	anthropicKey := os.Getenv("ANTHROPIC_API_KEY")

	switch modelProvider {
	case ProviderOpenAI:
		if openaiKey == "" {
			return BotConfig{}, fmt.Errorf("OPENAI_API_KEY is required in environment when INVESTBOT_MODEL_PROVIDER=openai")
		}
	case ProviderAnthropic:
		if anthropicKey == "" {
			return BotConfig{}, fmt.Errorf("ANTHROPIC_API_KEY is required in environment when INVESTBOT_MODEL_PROVIDER=anthropic")
		}
	case ProviderDummy:
	default:
		return BotConfig{}, fmt.Errorf("INVESTBOT_MODEL_PROVIDER must be one of openai, anthropic, dummy: got %q", modelProvider)
	}

	quoteProvider := strings.ToLower(envOrDefault("INVESTBOT_QUOTE_PROVIDER", QuoteProviderYahoo))
	if quoteProvider != QuoteProviderYahoo && quoteProvider != QuoteProviderDummy {
		return BotConfig{}, fmt.Errorf("INVESTBOT_QUOTE_PROVIDER must be one of yahoo, dummy: got %q", quoteProvider)
	}

	window, err := envIntOrDefault("INVESTBOT_HISTORY_WINDOW", 10)
	if err != nil {
		return BotConfig{}, err
	}
	if window < 1 {
		return BotConfig{}, fmt.Errorf("INVESTBOT_HISTORY_WINDOW must be >= 1: got %d", window)
	}
	pinSystem, err := envBoolOrDefault("INVESTBOT_PIN_SYSTEM_PROMPT", true)
	if err != nil {
		return BotConfig{}, err
	}
	timeoutSeconds, err := envIntOrDefault("INVESTBOT_COMPLETION_TIMEOUT_SECONDS", 60)
	if err != nil {
		return BotConfig{}, err
	}
	if timeoutSeconds < 1 {
		return BotConfig{}, fmt.Errorf("INVESTBOT_COMPLETION_TIMEOUT_SECONDS must be >= 1: got %d", timeoutSeconds)
	}
	maxRetries, err := envIntOrDefault("INVESTBOT_COMPLETION_MAX_RETRIES", 2)
	if err != nil {
		return BotConfig{}, err
	}
	if maxRetries < 0 {
		return BotConfig{}, fmt.Errorf("INVESTBOT_COMPLETION_MAX_RETRIES must be >= 0: got %d", maxRetries)
	}
	quoteTimeoutSeconds, err := envIntOrDefault("INVESTBOT_QUOTE_TIMEOUT_SECONDS", 10)
	if err != nil {
		return BotConfig{}, err
	}
	if quoteTimeoutSeconds < 1 {
		return BotConfig{}, fmt.Errorf("INVESTBOT_QUOTE_TIMEOUT_SECONDS must be >= 1: got %d", quoteTimeoutSeconds)
	}
	port, err := envIntOrDefault("PORT", 5000)
	if err != nil {
		return BotConfig{}, err
	}
	if port < 1 || port > 65535 {
		return BotConfig{}, fmt.Errorf("PORT must be in 1..65535: got %d", port)
	}
	logFormat := strings.ToLower(envOrDefault("INVESTBOT_LOG_FORMAT", "text"))
	if logFormat != "text" && logFormat != "json" {
		return BotConfig{}, fmt.Errorf("INVESTBOT_LOG_FORMAT must be text or json: got %q", logFormat)
	}

	commander := strings.ToLower(envOrDefault("INVESTBOT_COMMANDER", CommanderTelegram))
	if commander != CommanderTelegram && commander != CommanderDummy {
		return BotConfig{}, fmt.Errorf("INVESTBOT_COMMANDER must be one of telegram, dummy: got %q", commander)
	}

	configDir, _, err := resolveConfigDir()
	if err != nil {
		return BotConfig{}, err
	}

	return BotConfig{
		Commander:            commander,
		TelegramToken:        os.Getenv("TELEGRAM_BOT_TOKEN"),
		DummyCommanderScript: envOrDefault("INVESTBOT_DUMMY_COMMANDER_SCRIPT", "ok"),
		DummySendScript:      envOrDefault("INVESTBOT_DUMMY_SEND_SCRIPT", "ok"),
		ModelProvider:        modelProvider,
		OpenAIAPIKey:         openaiKey,
		OpenAIModel:          envOrDefault("OPENAI_MODEL", "gpt-3.5-turbo"),
		OpenAIBaseURL:        envOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		AnthropicAPIKey:      anthropicKey,
		AnthropicModel:       envOrDefault("ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),
		AnthropicURL:         os.Getenv("ANTHROPIC_BASE_URL"),
		DummyScript:          envOrDefault("INVESTBOT_DUMMY_PROVIDER_SCRIPT", "ok"),
		SystemPrompt:         envOrDefault("INVESTBOT_SYSTEM_PROMPT", DefaultSystemPrompt),
		HistoryWindow:        window,
		PinSystemPrompt:      pinSystem,
		CompletionTimeout:    time.Duration(timeoutSeconds) * time.Second,
		MaxRetries:           maxRetries,
		QuoteProvider:        quoteProvider,
		QuoteBaseURL:         envOrDefault("INVESTBOT_QUOTE_BASE_URL", "https://query1.finance.yahoo.com/v8/finance/chart"),
		QuoteTimeout:         time.Duration(quoteTimeoutSeconds) * time.Second,
		EventsDBPath:         os.Getenv("INVESTBOT_EVENTS_DB"),
		LogLevel:             strings.ToLower(envOrDefault("INVESTBOT_LOG_LEVEL", "info")),
		LogFormat:            logFormat,
		OTLPEndpoint:         os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Port:                 port,
		ConfigDir:            configDir,
	}, nil
}

// ValidateTelegram checks the settings only the telegram front end needs.
func (c BotConfig) ValidateTelegram() error {
	if c.Commander == CommanderTelegram && c.TelegramToken == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is required in environment for the telegram front end")
	}
	return nil
}

// LoadDotenv loads .env from the working directory and then from the config
// directory. Variables already set in the environment win; missing files are
// skipped.
func LoadDotenv() ([]string, error) {
	dir, _, err := resolveConfigDir()
	if err != nil {
		return nil, err
	}
	var loaded []string
	for _, path := range []string{".env", filepath.Join(dir, ".env")} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return loaded, fmt.Errorf("load %s: %w", path, err)
		}
		loaded = append(loaded, path)
	}
	return loaded, nil
}

// resolveConfigDir returns INVESTBOT_CONFIG_DIR when set, otherwise
// $XDG_CONFIG_HOME/investbot, otherwise ~/.config/investbot. The directory is
// not created.
func resolveConfigDir() (string, bool, error) {
	if dir := os.Getenv("INVESTBOT_CONFIG_DIR"); dir != "" {
		if !filepath.IsAbs(dir) {
			return "", true, fmt.Errorf("INVESTBOT_CONFIG_DIR must be an absolute path: got %q", dir)
		}
		return filepath.Clean(dir), true, nil
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "investbot"), false, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", false, fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(home, ".config", "investbot"), false, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: got %q", key, v)
	}
	return n, nil
}

func envBoolOrDefault(key string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean (true/false/1/0): got %q", key, v)
	}
	return b, nil
}
