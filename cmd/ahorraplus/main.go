package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/jefersonfloz/ahorraplus/internal/amqp"
	"github.com/jefersonfloz/ahorraplus/internal/auth"
	"github.com/jefersonfloz/ahorraplus/internal/backend"
	"github.com/jefersonfloz/ahorraplus/internal/config"
	"github.com/jefersonfloz/ahorraplus/internal/export/google"
	apphttp "github.com/jefersonfloz/ahorraplus/internal/http"
	"github.com/jefersonfloz/ahorraplus/internal/ledger"
	applog "github.com/jefersonfloz/ahorraplus/internal/log"
	"github.com/jefersonfloz/ahorraplus/internal/services"
)

func main() {
	// Setup structured logging
	logger := applog.New(applog.DefaultConfig())
	slog.SetDefault(logger.Logger)

	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file loaded", "reason", err)
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	if cfg.JWTSecret == "" {
		logger.Error("JWT_SECRET must be set")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Goal store backend
	factory := backend.NewFactory(logger.WithComponent(applog.ComponentBackend).Logger)
	result, err := factory.CreateBackend(ctx, backend.Config{
		Type:         backend.BackendType(cfg.DataBackend),
		BaseURL:      cfg.BackendBaseURL,
		AuthToken:    cfg.BackendAuthToken,
		CallTimeout:  cfg.BackendCallTimeout,
		PostgresURL:  cfg.PostgresURL,
		SQLiteDBPath: cfg.SQLiteDBPath,
	})
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	if result.Cleanup != nil {
		defer func() {
			if err := result.Cleanup(); err != nil {
				logger.Error("Backend cleanup error", "error", err)
			}
		}()
	}

	// Completion event publisher (optional)
	var publisher ledger.EventPublisher
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without notifications", "error", err)
		} else {
			defer amqpClient.Close()
			publisher = amqpClient
			logger.Info("Initialized AMQP client",
				"exchange", cfg.AMQPExchange,
				"queue", cfg.AMQPQueue)
		}
	}

	// Spreadsheet export (optional)
	var exporter apphttp.Exporter
	if cfg.GoogleSpreadsheetID != "" {
		sheetsClient, err := google.New(ctx, google.Config{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetName:       cfg.GoogleSheetName,
			CredentialsFile: cfg.GoogleCredentialsFile,
			CredentialsJSON: cfg.GoogleCredentialsJSON,
		})
		if err != nil {
			logger.Warn("Failed to initialize sheets export, continuing without it", "error", err)
		} else {
			exporter = sheetsClient
			logger.Info("Initialized sheets export", "sheet", cfg.GoogleSheetName)
		}
	}

	verifier := auth.NewVerifier(cfg.JWTSecret)
	srv := apphttp.NewServer(":"+cfg.Port, result.Backend, verifier, apphttp.Options{
		Policy:    ledger.DefaultPolicy(),
		Publisher: publisher,
		Exporter:  exporter,
	})

	// Configure server timeouts and limits
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	// Scheduled reconciliation keeps sessions in step with other devices.
	refresher := services.NewRefresher(func() []services.Reconciler {
		controllers := srv.Controllers()
		targets := make([]services.Reconciler, 0, len(controllers))
		for _, c := range controllers {
			targets = append(targets, c)
		}
		return targets
	}, services.RefresherConfig{
		Schedule: cfg.RefreshSchedule,
		Timeout:  cfg.BackendCallTimeout,
	})
	if err := refresher.Start(ctx); err != nil {
		logger.Error("Failed to start refresher", "error", err)
		os.Exit(1)
	}

	// Graceful shutdown handling
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := refresher.Stop(shutdownCtx); err != nil {
			logger.Error("Refresher stop error", "error", err)
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting ahorraplus server", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
