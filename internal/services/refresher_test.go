package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type countingReconciler struct {
	calls atomic.Int64
	err   error
}

func (c *countingReconciler) LoadAll(ctx context.Context) error {
	c.calls.Add(1)
	return c.err
}

func TestRefreshReconcilesEverySession(t *testing.T) {
	a := &countingReconciler{}
	b := &countingReconciler{err: errors.New("backend down")}
	r := NewRefresher(func() []Reconciler {
		return []Reconciler{a, b}
	}, DefaultRefresherConfig())

	// One failing session must not stop the others from reconciling.
	r.refresh(context.Background())
	r.refresh(context.Background())

	if a.calls.Load() != 2 || b.calls.Load() != 2 {
		t.Errorf("calls = %d/%d, want 2/2", a.calls.Load(), b.calls.Load())
	}
}

func TestStartRejectsDoubleStart(t *testing.T) {
	r := NewRefresher(func() []Reconciler { return nil }, RefresherConfig{
		Schedule: "@every 1h",
		Timeout:  time.Second,
	})

	ctx := context.Background()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Stop(ctx)

	if err := r.Start(ctx); err == nil {
		t.Error("expected error on second Start")
	}
}

func TestStartRejectsBadSchedule(t *testing.T) {
	r := NewRefresher(func() []Reconciler { return nil }, RefresherConfig{
		Schedule: "not a schedule",
		Timeout:  time.Second,
	})

	if err := r.Start(context.Background()); err == nil {
		t.Error("expected error for unparseable schedule")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	r := NewRefresher(func() []Reconciler { return nil }, RefresherConfig{
		Schedule: "@every 1h",
		Timeout:  time.Second,
	})

	ctx := context.Background()
	if err := r.Stop(ctx); err != nil {
		t.Errorf("Stop before Start: %v", err)
	}
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Stop(ctx); err != nil {
		t.Errorf("Stop: %v", err)
	}
	if err := r.Stop(ctx); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}

func TestScheduledTickFires(t *testing.T) {
	target := &countingReconciler{}
	r := NewRefresher(func() []Reconciler {
		return []Reconciler{target}
	}, RefresherConfig{
		Schedule: "@every 10ms",
		Timeout:  time.Second,
	})

	ctx := context.Background()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Stop(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for target.calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("scheduled reconciliation never fired")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
