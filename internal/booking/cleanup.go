// Package booking owns the reservation housekeeping that runs outside the
// request path, currently the periodic expiry sweep.
package booking

import (
	"context"
	"log/slog"
	"time"

	"roomwatch/internal/conf"
	"roomwatch/internal/datastore"
	"roomwatch/internal/logging"
)

var cleanupLogger *slog.Logger

func init() {
	cleanupLogger = logging.ForService("booking")
	if cleanupLogger == nil {
		cleanupLogger = slog.Default().With("service", "booking")
	}
}

// CleanupWorker periodically deletes slots that have already ended today.
// Slots on other days of the week are left alone; they expire when their own
// day comes around.
type CleanupWorker struct {
	ds       datastore.Interface
	interval time.Duration
	trigger  chan chan error

	// now is swapped in tests to pin the wall clock.
	now func() time.Time

	// DeletedHook, when set before Run, receives the row count of every
	// sweep that removed something.
	DeletedHook func(count int64)
}

// NewCleanupWorker creates a worker sweeping at the configured interval.
func NewCleanupWorker(settings *conf.Settings, ds datastore.Interface) *CleanupWorker {
	return &CleanupWorker{
		ds:       ds,
		interval: settings.Cleanup.Interval,
		trigger:  make(chan chan error, 1),
		now:      time.Now,
	}
}

// Run sweeps on the ticker and on demand until the context is canceled.
func (w *CleanupWorker) Run(ctx context.Context) error {
	cleanupLogger.Info("cleanup worker started", "interval", w.interval.String())
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			cleanupLogger.Info("cleanup worker stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := w.sweep(ctx); err != nil {
				cleanupLogger.Error("scheduled sweep failed", "error", err)
			}
		case reply := <-w.trigger:
			reply <- w.sweep(ctx)
		}
	}
}

// TriggerNow requests an immediate sweep and waits for its result.
func (w *CleanupWorker) TriggerNow(ctx context.Context) error {
	reply := make(chan error, 1)
	select {
	case w.trigger <- reply:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sweep deletes every slot on the current day of week whose end time is
// already behind the current time of day.
func (w *CleanupWorker) sweep(ctx context.Context) error {
	now := w.now()
	day := datastore.Weekday1to7(now.Weekday())
	timeOfDay := datastore.TimeOfDay(now)

	deleted, err := w.ds.DeleteExpiredSlots(ctx, day, timeOfDay)
	if err != nil {
		return err
	}
	if deleted > 0 {
		cleanupLogger.Info("expired slots removed",
			"count", deleted, "day_of_week", day, "before", timeOfDay)
		if w.DeletedHook != nil {
			w.DeletedHook(deleted)
		}
	} else {
		cleanupLogger.Debug("sweep found nothing to remove",
			"day_of_week", day, "before", timeOfDay)
	}
	return nil
}
