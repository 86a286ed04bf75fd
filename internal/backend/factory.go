package backend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jefersonfloz/ahorraplus/internal/goalstore/memory"
	"github.com/jefersonfloz/ahorraplus/internal/goalstore/postgres"
	"github.com/jefersonfloz/ahorraplus/internal/goalstore/rest"
	"github.com/jefersonfloz/ahorraplus/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if !config.Type.IsValid() {
		return nil, fmt.Errorf("invalid backend type: %s", config.Type)
	}

	switch config.Type {
	case RestBackend:
		return f.createRestBackend(config)
	case PostgresBackend:
		return f.createPostgresBackend(ctx, config)
	case SQLiteBackend:
		return f.createSQLiteBackend(config)
	case MemoryBackend:
		return f.createMemoryBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createRestBackend(config Config) (*BackendResult, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("rest backend requires a base URL")
	}

	client := rest.NewClient(config.BaseURL, config.AuthToken, config.CallTimeout)

	f.logger.Info("Initialized REST backend",
		"base_url", config.BaseURL,
		"call_timeout", config.CallTimeout)

	return &BackendResult{
		Backend: client,
		Cleanup: nil, // No cleanup needed for the rest client
	}, nil
}

func (f *DefaultFactory) createPostgresBackend(ctx context.Context, config Config) (*BackendResult, error) {
	store, err := postgres.NewStore(ctx, config.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Postgres store: %w", err)
	}

	f.logger.Info("Initialized Postgres backend")

	return &BackendResult{
		Backend: store,
		Cleanup: store.Close,
	}, nil
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	repo, err := storage.NewRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)

	return &BackendResult{
		Backend: repo,
		Cleanup: repo.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	store := memory.New()

	f.logger.Info("Initialized memory backend")

	return &BackendResult{
		Backend: store,
		Cleanup: nil, // No cleanup needed for memory backend
	}, nil
}
