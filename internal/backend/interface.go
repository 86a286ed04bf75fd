package backend

import (
	"context"
	"time"

	"github.com/jefersonfloz/ahorraplus/internal/goalstore"
)

// CleanupFunc releases resources held by a backend.
type CleanupFunc func() error

// BackendResult contains the backend instance and optional cleanup function.
type BackendResult struct {
	Backend goalstore.Backend
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration.
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation.
type Config struct {
	Type BackendType

	// REST specific
	BaseURL     string
	AuthToken   string
	CallTimeout time.Duration

	// Postgres specific
	PostgresURL string

	// SQLite specific
	SQLiteDBPath string
}

// BackendType represents the kind of goal store a deployment talks to.
type BackendType string

const (
	RestBackend     BackendType = "rest"
	PostgresBackend BackendType = "postgres"
	SQLiteBackend   BackendType = "sqlite"
	MemoryBackend   BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case RestBackend, PostgresBackend, SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
