package worker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/clipforge/clipforge/internal/broker"
	"github.com/clipforge/clipforge/internal/models"
	"github.com/clipforge/clipforge/internal/repository"
	"github.com/clipforge/clipforge/internal/state"
)

// HandleCompleted is the finalizer on the completed queue. For standalone
// jobs it only logs; for per-segment sub-jobs it records the outcome on the
// stream parent so the aggregator can close the parent out.
func (w *Worker) HandleCompleted(ctx context.Context, env *broker.Envelope) error {
	var payload broker.CompletedPayload
	if err := env.DecodePayload(&payload); err != nil {
		return err
	}

	w.logger.Info("job finished",
		slog.String("job_id", env.JobID),
		slog.Bool("failed", payload.Failed),
		slog.Int("clips", len(payload.ClipsPaths)),
	)

	if payload.ParentJobID != "" {
		w.aggregator.RecordChild(ctx, payload.ParentJobID, payload.Failed)
	}
	return nil
}

// Aggregator tracks stream parents whose children are still in flight and
// closes each parent out once every published segment reached a terminal
// state. Sweep runs on a schedule; the counters live in dedicated Redis keys
// so a restart only loses the in-memory tracking set, which the next
// RecordChild call rebuilds.
type Aggregator struct {
	store  *state.Store
	repo   repository.VideoRepository
	logger *slog.Logger

	mu      sync.Mutex
	parents map[string]bool
}

// NewAggregator creates an Aggregator.
func NewAggregator(store *state.Store, repo repository.VideoRepository, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		store:   store,
		repo:    repo,
		logger:  logger,
		parents: make(map[string]bool),
	}
}

// Track registers a parent job with the given number of published segments.
func (a *Aggregator) Track(parentID string, published int) {
	a.mu.Lock()
	a.parents[parentID] = true
	a.mu.Unlock()
	_ = published // already recorded in the parent's KV by the collector
}

// RecordChild counts one terminal child against the parent. Counters are
// atomic increments on dedicated keys: finalizer workers for different
// children of the same parent run concurrently, and a read-modify-write on
// the parent record would lose counts.
func (a *Aggregator) RecordChild(ctx context.Context, parentID string, failed bool) {
	a.mu.Lock()
	a.parents[parentID] = true
	a.mu.Unlock()

	if a.store.Get(ctx, parentID) == nil {
		a.logger.Warn("completed child for unknown parent", slog.String("parent_job_id", parentID))
		return
	}
	counter := "segments_done"
	if failed {
		counter = "segments_failed"
	}
	a.store.Increment(ctx, parentID, counter)
}

// Sweep closes out every tracked parent whose children all reached a
// terminal state. Wired to a cron schedule by the worker command.
func (a *Aggregator) Sweep(ctx context.Context) {
	a.mu.Lock()
	tracked := make([]string, 0, len(a.parents))
	for id := range a.parents {
		tracked = append(tracked, id)
	}
	a.mu.Unlock()

	for _, parentID := range tracked {
		record := a.store.Get(ctx, parentID)
		if record == nil {
			a.forget(parentID)
			continue
		}
		published := intField(record, "segments_published")
		if published == 0 {
			continue
		}
		done := int(a.store.Counter(ctx, parentID, "segments_done"))
		failed := int(a.store.Counter(ctx, parentID, "segments_failed"))
		if done+failed < published {
			continue
		}

		// All children terminal. The parent fails only when nothing
		// succeeded. Final counts are folded into the record here, where the
		// sweep is the only writer.
		finalCounts := map[string]any{
			"segments_done":   done,
			"segments_failed": failed,
		}
		if done == 0 {
			finalCounts["error"] = "all segments failed"
			a.store.Update(ctx, parentID, models.JobStatusFailed, "stream_failed", finalCounts)
			if a.repo != nil {
				_ = a.repo.MarkFailed(ctx, parentID, "all segments failed")
			}
		} else {
			a.store.Update(ctx, parentID, models.JobStatusCompleted, "completed", finalCounts)
			if a.repo != nil {
				_ = a.repo.MarkCompleted(ctx, parentID, stringField(record, "output_path"), "", "")
			}
		}
		a.store.ClearCounters(ctx, parentID, "segments_done", "segments_failed")
		a.logger.Info("stream parent closed",
			slog.String("parent_job_id", parentID),
			slog.Int("segments_done", done),
			slog.Int("segments_failed", failed),
		)
		a.forget(parentID)
	}
}

func (a *Aggregator) forget(parentID string) {
	a.mu.Lock()
	delete(a.parents, parentID)
	a.mu.Unlock()
}
