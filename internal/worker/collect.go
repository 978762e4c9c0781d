package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/clipforge/clipforge/internal/broker"
	"github.com/clipforge/clipforge/internal/models"
)

// HandleCollect captures a bounded window of a live stream and fans it out
// into one transcribe message per captured segment. Zero captured segments
// fails the job; an idle stream is not silently declared done.
func (w *Worker) HandleCollect(ctx context.Context, env *broker.Envelope) error {
	var payload broker.CollectPayload
	if err := env.DecodePayload(&payload); err != nil {
		return err
	}
	if payload.StreamURL == "" {
		return fmt.Errorf("collect payload for job %s has no stream_url", env.JobID)
	}

	w.store.Update(ctx, env.JobID, models.JobStatusProcessing, "collect", nil)

	segments, err := w.collector.Collect(ctx, env.JobID, payload.StreamURL,
		payload.SegmentDuration, payload.MaxDuration)
	if err != nil {
		w.fail(ctx, env.JobID, "collect_failed", err)
		return err
	}
	if len(segments) == 0 {
		err := fmt.Errorf("stream capture produced no segments")
		w.fail(ctx, env.JobID, "collect_no_segments", err)
		return err
	}

	// Job options set at creation propagate to every child.
	record := w.store.Get(ctx, env.JobID)
	total := len(segments)

	published := 0
	for i, segPath := range segments {
		childID := models.ChildJobID(env.JobID, i)

		w.store.Initialize(ctx, childID, payload.StreamURL)
		w.store.Update(ctx, childID, models.JobStatusPending, "transcribe", map[string]any{
			"parent_job_id":     env.JobID,
			"segment_index":     i,
			"total_segments":    total,
			"segment_path":      segPath,
			"max_highlights":    record["max_highlights"],
			"include_subtitles": record["include_subtitles"],
		})

		childEnv, err := broker.NewEnvelope(childID, "transcribe", broker.TranscribePayload{
			SegmentPath:   segPath,
			SegmentIndex:  i,
			TotalSegments: total,
			ParentJobID:   env.JobID,
		})
		if err != nil {
			w.fail(ctx, env.JobID, "collect_failed", err)
			return err
		}
		if err := w.pub.Publish(ctx, broker.TranscribeQueue, childEnv); err != nil {
			w.fail(ctx, env.JobID, "collect_failed", err)
			return err
		}
		published++
	}

	w.store.Update(ctx, env.JobID, models.JobStatusProcessing, "transcribe", map[string]any{
		"segments_published": published,
	})
	w.aggregator.Track(env.JobID, published)

	w.logger.Info("stream fanned out",
		slog.String("job_id", env.JobID),
		slog.Int("segments", published),
	)
	return nil
}
