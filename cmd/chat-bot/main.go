// Package main runs the Telegram bot: it long-polls for updates and hands
// each message to internal/chat until SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"snipper/internal/app"
	"snipper/internal/chat"
	"snipper/internal/config"
	"snipper/internal/types"
)

func main() {
	if err := run(); err != nil {
		_, _ = os.Stderr.WriteString("fatal: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig(config.NewSecretProvider(os.Getenv("APP_ENV"), os.Getenv("AWS_REGION")))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if !cfg.Chat.TelegramToken.IsSet() {
		return errors.New("TELEGRAM_BOT_TOKEN is required")
	}
	logger := app.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing dependencies: %w", err)
	}
	defer deps.Close()

	api, err := tgbotapi.NewBotAPI(cfg.Chat.TelegramToken.Unmask())
	if err != nil {
		return fmt.Errorf("connecting to telegram: %w", err)
	}
	api.Debug = false

	status := func(ctx context.Context) error {
		if err := deps.Pool.Ping(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		if err := deps.KV.Ping(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		return nil
	}
	bot := chat.NewBot(api, deps.Records, deps.KV, status, types.RealClock{}, logger.With("component", "chat"))

	u := tgbotapi.NewUpdate(0)
	u.Timeout = int(cfg.Chat.PollTimeout.Seconds())
	updates := api.GetUpdatesChan(u)
	defer api.StopReceivingUpdates()

	logger.Info("chat bot started", "bot", api.Self.UserName, "version", cfg.Build.String())
	err = bot.Run(ctx, updates)
	logger.Info("chat bot stopped")
	return err
}
