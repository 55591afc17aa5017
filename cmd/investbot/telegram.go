package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stupiduntilnot/investbot/internal/chat"
	"github.com/stupiduntilnot/investbot/internal/config"
)

var telegramCmd = &cobra.Command{
	Use:   "telegram",
	Short: "Run the Telegram bot",
	Long: `Long-polls the Telegram Bot API and answers every text message. Each
Telegram user gets a rolling conversation history kept in memory.`,
	RunE: runTelegram,
}

func init() {
	rootCmd.AddCommand(telegramCmd)
}

func runTelegram(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadBotConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateTelegram(); err != nil {
		return err
	}

	ctx := setupContext()
	a, err := newApp(ctx, &cfg, "telegram")
	if err != nil {
		return err
	}
	defer a.close(ctx)

	commander, err := newCommander(&cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to init commander: %w", err)
	}

	a.logger.Info("starting investbot in TELEGRAM mode",
		"commander", cfg.Commander,
		"provider", cfg.ModelProvider,
		"history_window", cfg.HistoryWindow,
		"pin_system", cfg.PinSystemPrompt,
	)
	return chat.NewDispatcher(a.service, commander).Run(ctx)
}
