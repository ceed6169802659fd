// Package janitor runs periodic cleanup: abandoned scan sessions and revoked
// tokens that have expired anyway.
package janitor

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/erazemk/nomisma/internal/store"
)

// DefaultSchedule runs the cleanup every ten minutes.
const DefaultSchedule = "@every 10m"

// ScanExpirer drops scan sessions idle for longer than ttl.
type ScanExpirer interface {
	Expire(ctx context.Context, ttl time.Duration) (int, error)
}

// Result counts what one run removed.
type Result struct {
	Scans  int
	Tokens int64
}

// Janitor owns the cron scheduler.
type Janitor struct {
	db    *sql.DB
	scans ScanExpirer
	ttl   time.Duration
	cron  *cron.Cron
	now   func() time.Time
	wg    sync.WaitGroup
}

// New creates a janitor. It does nothing until Start.
func New(db *sql.DB, scans ScanExpirer, ttl time.Duration) *Janitor {
	return &Janitor{
		db:    db,
		scans: scans,
		ttl:   ttl,
		cron:  cron.New(),
		now:   time.Now,
	}
}

// Start runs one cleanup immediately and then on schedule. An empty schedule
// means DefaultSchedule.
func (j *Janitor) Start(ctx context.Context, schedule string) error {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if _, err := j.cron.AddFunc(schedule, func() { j.run(ctx) }); err != nil {
		return fmt.Errorf("scheduling cleanup %q: %w", schedule, err)
	}
	j.wg.Go(func() { j.run(ctx) })
	j.cron.Start()
	slog.Info("janitor started", "schedule", schedule, "scan_ttl", j.ttl)
	return nil
}

// Stop halts the scheduler and waits for running jobs to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
	j.wg.Wait()
}

func (j *Janitor) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	res, err := j.RunOnce(ctx)
	if err != nil {
		slog.Error("cleanup failed", "error", err)
		return
	}
	if res.Scans > 0 || res.Tokens > 0 {
		slog.Info("cleanup done", "scans", res.Scans, "tokens", res.Tokens)
	}
}

// RunOnce expires stale scan sessions and purges expired revoked tokens.
// Both steps run even if the first fails.
func (j *Janitor) RunOnce(ctx context.Context) (Result, error) {
	var res Result
	var firstErr error

	if j.scans != nil && j.ttl > 0 {
		n, err := j.scans.Expire(ctx, j.ttl)
		if err != nil {
			firstErr = fmt.Errorf("expiring scan sessions: %w", err)
		}
		res.Scans = n
	}

	n, err := store.PurgeExpiredTokens(ctx, j.db, j.now())
	if err != nil && firstErr == nil {
		firstErr = fmt.Errorf("purging revoked tokens: %w", err)
	}
	res.Tokens = n

	return res, firstErr
}
