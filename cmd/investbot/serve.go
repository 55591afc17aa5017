package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stupiduntilnot/investbot/internal/config"
	"github.com/stupiduntilnot/investbot/internal/web"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP chat endpoint",
	Long: `Serves POST / with {"message": "...", "user_id": "..."} and answers with
{"response": "..."}. Requests without user_id are single-turn.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (overrides PORT)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadBotConfig()
	if err != nil {
		return err
	}
	if servePort > 0 {
		cfg.Port = servePort
	}

	ctx := setupContext()
	a, err := newApp(ctx, &cfg, "web")
	if err != nil {
		return err
	}
	defer a.close(ctx)

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	a.logger.Info("starting investbot in WEB mode", "addr", addr, "provider", cfg.ModelProvider)
	return web.ListenAndServe(ctx, addr, web.NewServer(a.service, a.logger).Handler(), a.logger)
}
