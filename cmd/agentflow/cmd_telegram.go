package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/user/agentflow/internal/telegram"
	"github.com/user/agentflow/internal/types"
)

func init() {
	rootCmd.AddCommand(telegramCmd)
}

var telegramCmd = &cobra.Command{
	Use:   "telegram",
	Short: "Serve the agent through a Telegram bot",
	Args:  cobra.NoArgs,
	RunE:  runTelegram,
}

func runTelegram(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogging(cfg)

	if cfg.Telegram.Token == "" {
		return errors.New("telegram.token is not set (agentflow config set telegram.token <token>, or TELEGRAM_BOT_TOKEN)")
	}

	store, reducer, err := loadGraph(cfg)
	if err != nil {
		return err
	}
	derive := func() (types.AgentConfig, error) {
		return reducer.Derive(store)
	}

	adapter, err := telegram.New(cfg.Telegram.Token, newTransport(cfg), derive)
	if err != nil {
		return fmt.Errorf("create telegram adapter: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("telegram adapter started", "endpoint", cfg.Client.Endpoint)
	adapter.Start(ctx)
	slog.Info("shutting down")
	return nil
}
