// Package worker binds the pipeline stages to the broker queues. One worker
// process serves one queue; the handler owns the job for exactly the span of
// its unacknowledged delivery.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/clipforge/clipforge/internal/artifacts"
	"github.com/clipforge/clipforge/internal/broker"
	"github.com/clipforge/clipforge/internal/pipeline/stages/analyse"
	"github.com/clipforge/clipforge/internal/pipeline/stages/edit"
	"github.com/clipforge/clipforge/internal/pipeline/stages/transcribe"
	"github.com/clipforge/clipforge/internal/progress"
	"github.com/clipforge/clipforge/internal/repository"
	"github.com/clipforge/clipforge/internal/state"
)

// StreamCollector captures a live stream into segments. media.Collector is
// the production implementation.
type StreamCollector interface {
	Collect(ctx context.Context, jobID, streamURL string, segmentSeconds, captureSeconds int) ([]string, error)
}

// Worker dispatches queue deliveries to stage handlers.
type Worker struct {
	pub    broker.Publisher
	store  *state.Store
	repo   repository.VideoRepository
	sink   progress.Sink
	layout *artifacts.Layout
	logger *slog.Logger

	collector       StreamCollector
	transcribeStage *transcribe.Stage
	analyseStage    *analyse.Stage
	editStage       *edit.Stage
	aggregator      *Aggregator
}

// New creates a Worker over fully constructed stages. repo may be nil when
// no video row store is configured.
func New(
	pub broker.Publisher,
	store *state.Store,
	repo repository.VideoRepository,
	layout *artifacts.Layout,
	collector StreamCollector,
	transcribeStage *transcribe.Stage,
	analyseStage *analyse.Stage,
	editStage *edit.Stage,
	logger *slog.Logger,
) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	var sink progress.Sink = progress.NopSink{}
	if repo != nil {
		sink = progress.NewBridge(repo, logger)
	}
	return &Worker{
		pub:             pub,
		store:           store,
		repo:            repo,
		sink:            sink,
		layout:          layout,
		logger:          logger,
		collector:       collector,
		transcribeStage: transcribeStage,
		analyseStage:    analyseStage,
		editStage:       editStage,
		aggregator:      NewAggregator(store, repo, logger),
	}
}

// Aggregator exposes the stream-parent completion tracker for cron wiring.
func (w *Worker) Aggregator() *Aggregator { return w.aggregator }

// HandlerFor returns the handler serving the given queue.
func (w *Worker) HandlerFor(queue string) (broker.Handler, error) {
	switch queue {
	case broker.CollectQueue:
		return w.HandleCollect, nil
	case broker.TranscribeQueue:
		return w.HandleTranscribe, nil
	case broker.AnalyseQueue:
		return w.HandleAnalyse, nil
	case broker.EditQueue:
		return w.HandleEdit, nil
	case broker.CompletedQueue:
		return w.HandleCompleted, nil
	default:
		return nil, fmt.Errorf("no handler for queue %s", queue)
	}
}

// fail records a terminal failure in both stores. Persistence problems are
// logged by the stores themselves and never escalate. A failed per-segment
// sub-job additionally notifies the completed queue so the stream parent's
// aggregation still converges.
func (w *Worker) fail(ctx context.Context, jobID, step string, err error) {
	record := w.store.Get(ctx, jobID)

	w.store.Fail(ctx, jobID, step, err.Error())
	if w.repo != nil {
		if dbErr := w.repo.MarkFailed(ctx, jobID, err.Error()); dbErr != nil {
			w.logger.Warn("video row failure update failed",
				slog.String("job_id", jobID),
				slog.String("error", dbErr.Error()),
			)
		}
	}
	if b, ok := w.sink.(*progress.Bridge); ok {
		b.Forget(jobID)
	}

	if parent, _ := record["parent_job_id"].(string); parent != "" {
		env, envErr := broker.NewEnvelope(jobID, "completed", broker.CompletedPayload{
			ParentJobID: parent,
			Failed:      true,
		})
		if envErr == nil {
			if pubErr := w.pub.Publish(ctx, broker.CompletedQueue, env); pubErr != nil {
				w.logger.Warn("failure notice publish failed",
					slog.String("job_id", jobID),
					slog.String("error", pubErr.Error()),
				)
			}
		}
	}
}
