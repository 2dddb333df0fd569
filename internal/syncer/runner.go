package syncer

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"
)

// DefaultInterval is the periodic sync interval.
const DefaultInterval = 30 * time.Second

// Runner schedules sync rounds on a single goroutine: a periodic ticker plus
// an on-demand trigger. Triggers arriving while a round runs coalesce into at
// most one queued round.
type Runner struct {
	engine   *Engine
	interval time.Duration
	kick     chan struct{}
	online   atomic.Bool
	log      *slog.Logger
}

// NewRunner creates a Runner. A zero interval uses DefaultInterval.
func NewRunner(engine *Engine, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = DefaultInterval
	}
	r := &Runner{
		engine:   engine,
		interval: interval,
		kick:     make(chan struct{}, 1),
		log:      slog.Default().With("component", "runner"),
	}
	r.online.Store(true)
	return r
}

// Trigger requests a sync round. Never blocks; concurrent triggers coalesce.
func (r *Runner) Trigger() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

// SetOnline records connectivity as reported by the monitor. While offline
// the interval tick is skipped; triggers still run (the monitor fires one on
// recovery).
func (r *Runner) SetOnline(online bool) {
	r.online.Store(online)
}

// Online reports the last known connectivity state.
func (r *Runner) Online() bool {
	return r.online.Load()
}

// Run loops until the context is cancelled. Transport errors are transient
// and only logged; the next tick or trigger retries.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !r.online.Load() {
				continue
			}
			r.runOnce()
		case <-r.kick:
			r.runOnce()
		}
	}
}

func (r *Runner) runOnce() {
	res, err := r.engine.Sync()
	switch {
	case errors.Is(err, ErrSyncInProgress), errors.Is(err, ErrAuthCooldown):
		r.log.Debug("sync skipped", "reason", err)
	case err != nil:
		r.log.Debug("sync failed", "err", err)
	default:
		if res.Pushed > 0 || res.Pulled > 0 || res.OutboxDone > 0 || res.OutboxFailed > 0 {
			r.log.Info("sync round",
				"pushed", res.Pushed,
				"applied", res.Applied,
				"rejected", res.Rejected,
				"pulled", res.Pulled,
				"merged", res.Merged,
				"skipped", res.Skipped,
				"outbox_done", res.OutboxDone,
				"outbox_failed", res.OutboxFailed,
			)
		}
	}
}
