package main

import (
	"context"
	"log/slog"
	"time"

	"bouncelight/internal/journal"
)

const journalWriteTimeout = 2 * time.Second

// transitionRecorder is the journal write surface used by runRecorder.
type transitionRecorder interface {
	Record(ctx context.Context, tr journal.Transition) (int64, error)
}

// runRecorder persists transitions until ctx is canceled or src closes.
// Whatever is still queued at shutdown is written before returning.
func runRecorder(ctx context.Context, store transitionRecorder, src <-chan journal.Transition, logger *slog.Logger) {
	var streak failureStreak

	// Writes outlive cancellation so the drain below can finish.
	record := func(tr journal.Transition) {
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), journalWriteTimeout)
		defer cancel()

		id, err := store.Record(wctx, tr)
		if err != nil {
			streak.fail(logger, "journal write failed", err)
			return
		}
		streak.recover(logger, "journal write recovered")
		logger.Debug("transition recorded", "id", id, "from", tr.From, "to", tr.To)
	}

	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case tr, ok := <-src:
					if !ok {
						return
					}
					record(tr)
				default:
					return
				}
			}

		case tr, ok := <-src:
			if !ok {
				return
			}
			record(tr)
		}
	}
}
