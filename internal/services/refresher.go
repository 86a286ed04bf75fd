package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Reconciler is anything that can refetch its state from the goal store.
// Reconciliation is idempotent, so firing it on a schedule is always safe.
type Reconciler interface {
	LoadAll(ctx context.Context) error
}

// Source returns the reconcilers that are currently alive. Evaluated on
// every tick so sessions created after Start are picked up.
type Source func() []Reconciler

// RefresherConfig holds configuration for the refresher
type RefresherConfig struct {
	// Schedule is a cron expression (supports @every descriptors)
	Schedule string

	// Timeout bounds a single reconciliation pass (default: 30s)
	Timeout time.Duration
}

// DefaultRefresherConfig returns sensible defaults
func DefaultRefresherConfig() RefresherConfig {
	return RefresherConfig{
		Schedule: "@every 5m",
		Timeout:  30 * time.Second,
	}
}

// Refresher periodically reconciles every live session against the
// authoritative store, so changes made from other devices eventually show
// up without user interaction.
type Refresher struct {
	source Source
	config RefresherConfig

	// Lifecycle management
	mu      sync.Mutex
	running bool
	cron    *cron.Cron
}

// NewRefresher creates a new refresher
func NewRefresher(source Source, config RefresherConfig) *Refresher {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &Refresher{
		source: source,
		config: config,
	}
}

// Start begins the scheduled reconciliation. Returns an error if already
// running or if the schedule does not parse.
func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("refresher is already running")
	}

	c := cron.New()
	if _, err := c.AddFunc(r.config.Schedule, func() { r.refresh(ctx) }); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", r.config.Schedule, err)
	}
	c.Start()

	r.cron = c
	r.running = true

	slog.InfoContext(ctx, "Refresher started", "schedule", r.config.Schedule)
	return nil
}

// Stop halts the schedule and waits for an in-flight pass to finish.
func (r *Refresher) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	c := r.cron
	r.cron = nil
	r.running = false
	r.mu.Unlock()

	select {
	case <-c.Stop().Done():
		slog.InfoContext(ctx, "Refresher stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("refresher stop timed out: %w", ctx.Err())
	}
}

func (r *Refresher) refresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	targets := r.source()
	var failures int
	for _, target := range targets {
		if err := target.LoadAll(ctx); err != nil {
			failures++
			slog.WarnContext(ctx, "Scheduled reconciliation failed", "error", err)
		}
	}

	slog.DebugContext(ctx, "Reconciliation pass finished",
		"sessions", len(targets),
		"failures", failures)
}
