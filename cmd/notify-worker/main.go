// The notify worker turns goal completion events into celebration emails.
// It runs separately from the API server so a slow SMTP relay never blocks
// ledger operations.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/jefersonfloz/ahorraplus/internal/amqp"
	"github.com/jefersonfloz/ahorraplus/internal/config"
	"github.com/jefersonfloz/ahorraplus/internal/email"
	applog "github.com/jefersonfloz/ahorraplus/internal/log"
)

func main() {
	logger := applog.New(applog.Config{
		Level:     slog.LevelInfo,
		Component: applog.ComponentWorker,
	})
	slog.SetDefault(logger.Logger)

	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file loaded", "reason", err)
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL must be set for the notify worker")
		os.Exit(1)
	}
	if cfg.SMTPHost == "" {
		logger.Error("SMTP_HOST must be set for the notify worker")
		os.Exit(1)
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to connect to AMQP", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	sender := email.NewSender(email.Config{
		Host:        cfg.SMTPHost,
		Port:        cfg.SMTPPort,
		Username:    cfg.SMTPUsername,
		Password:    cfg.SMTPPassword,
		SenderEmail: cfg.SenderEmail,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Notify worker started", "queue", cfg.AMQPQueue)

	err = client.ConsumeGoalCompleted(ctx, func(msg *amqp.GoalCompletedMessage) error {
		to := msg.UserEmail
		if to == "" {
			// Nothing to notify; ack so the message doesn't requeue forever.
			logger.Warn("Completion message without user email, skipping",
				"goal_id", msg.GoalID, "user_id", msg.UserID)
			return nil
		}
		if err := sender.SendGoalCompleted(to, msg.GoalName, msg.CompletedAt); err != nil {
			return fmt.Errorf("notify goal %d: %w", msg.GoalID, err)
		}
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Consumer stopped with error", "error", err)
		os.Exit(1)
	}

	logger.Info("Notify worker stopped gracefully")
}
