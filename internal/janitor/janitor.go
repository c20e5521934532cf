// Package janitor hard-deletes job records shortly after they reach a
// terminal stage. The store's TTL index remains the safety net for records
// orphaned by a crash; the janitor just keeps the working set small.
package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Store is the slice of the job store the janitor needs
type Store interface {
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Janitor periodically sweeps terminal job records
type Janitor struct {
	store     Store
	retention time.Duration
	interval  time.Duration
	cron      *cron.Cron
}

// New creates a janitor that deletes records retention after they reached a
// terminal stage, sweeping every interval.
func New(store Store, retention, interval time.Duration) *Janitor {
	return &Janitor{
		store:     store,
		retention: retention,
		interval:  interval,
		cron:      cron.New(),
	}
}

// Start schedules the sweep loop
func (j *Janitor) Start() error {
	spec := fmt.Sprintf("@every %s", j.interval)
	if _, err := j.cron.AddFunc(spec, j.sweep); err != nil {
		return fmt.Errorf("failed to schedule janitor sweep: %w", err)
	}
	j.cron.Start()

	slog.Info("Janitor started",
		"interval", j.interval,
		"retention", j.retention,
	)
	return nil
}

// Stop halts the sweep loop and waits for an in-flight sweep to finish
func (j *Janitor) Stop() {
	stopCtx := j.cron.Stop()
	<-stopCtx.Done()
	slog.Info("Janitor stopped")
}

func (j *Janitor) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().UTC().Add(-j.retention)
	deleted, err := j.store.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		slog.Error("Janitor sweep failed", "error", err.Error())
		return
	}

	if deleted > 0 {
		slog.Info("Janitor swept terminal jobs", "deleted", deleted)
	}
}
