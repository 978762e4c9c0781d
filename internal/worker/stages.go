package worker

import (
	"context"
	"fmt"

	"github.com/clipforge/clipforge/internal/broker"
	"github.com/clipforge/clipforge/internal/models"
	"github.com/clipforge/clipforge/internal/observability"
	"github.com/clipforge/clipforge/internal/pipeline/core"
)

// newStageState builds the shared stage state for a broker-driven job,
// folding in the job options recorded at creation time.
func (w *Worker) newStageState(ctx context.Context, jobID string) *core.State {
	st := core.NewState(jobID, w.layout, w.sink)

	record := w.store.Get(ctx, jobID)
	st.MaxHighlights = models.ClampMaxHighlights(intField(record, "max_highlights"))
	st.IncludeSubtitles = boolField(record, "include_subtitles")
	return st
}

// HandleTranscribe materializes the job's media and produces the transcript,
// then hands off to the analyst.
func (w *Worker) HandleTranscribe(ctx context.Context, env *broker.Envelope) error {
	var payload broker.TranscribePayload
	if err := env.DecodePayload(&payload); err != nil {
		return err
	}
	if payload.URL == "" && payload.SegmentPath == "" {
		return fmt.Errorf("transcribe payload for job %s has neither url nor segment_path", env.JobID)
	}

	if _, err := w.layout.EnsureJobDir(env.JobID); err != nil {
		w.fail(ctx, env.JobID, "transcribe_failed", err)
		return err
	}

	st := w.newStageState(ctx, env.JobID)
	st.SourceURL = payload.URL

	if payload.SegmentPath != "" {
		segPath, err := w.awaitArtifact(ctx, env.JobID, payload.SegmentPath)
		if err != nil {
			w.fail(ctx, env.JobID, "transcribe_missing_input", err)
			return err
		}
		st.VideoPath = segPath
	}

	w.store.Update(ctx, env.JobID, models.JobStatusProcessing, "transcribe", nil)

	var execErr error
	finish := observability.TimedOperationWithError(ctx, observability.WithJobID(w.logger, env.JobID), "transcribe", &execErr)
	execErr = w.transcribeStage.Execute(ctx, st)
	finish()
	if execErr != nil {
		w.fail(ctx, env.JobID, "transcribe_failed", execErr)
		return execErr
	}

	patch := map[string]any{"transcription_path": st.TranscriptPath}
	if st.Title != "" {
		patch["title"] = st.Title
	}
	w.store.Update(ctx, env.JobID, models.JobStatusProcessing, "analyse", patch)

	next, err := broker.NewEnvelope(env.JobID, "analyse", broker.AnalysePayload{
		TranscriptionPath: st.TranscriptPath,
		VideoPath:         st.VideoPath,
	})
	if err != nil {
		w.fail(ctx, env.JobID, "transcribe_failed", err)
		return err
	}
	if err := w.pub.Publish(ctx, broker.AnalyseQueue, next); err != nil {
		w.fail(ctx, env.JobID, "transcribe_failed", err)
		return err
	}
	return nil
}

// HandleAnalyse turns the transcript into highlights.json and hands off to
// the editor.
func (w *Worker) HandleAnalyse(ctx context.Context, env *broker.Envelope) error {
	var payload broker.AnalysePayload
	if err := env.DecodePayload(&payload); err != nil {
		return err
	}
	if payload.TranscriptionPath == "" {
		return fmt.Errorf("analyse payload for job %s has no transcription_path", env.JobID)
	}

	transcriptPath, err := w.awaitArtifact(ctx, env.JobID, payload.TranscriptionPath)
	if err != nil {
		w.fail(ctx, env.JobID, "analyse_missing_transcription", err)
		return err
	}

	st := w.newStageState(ctx, env.JobID)
	st.TranscriptPath = transcriptPath
	st.VideoPath = payload.VideoPath

	w.store.Update(ctx, env.JobID, models.JobStatusProcessing, "analyse", nil)

	var execErr error
	finish := observability.TimedOperationWithError(ctx, observability.WithJobID(w.logger, env.JobID), "analyse", &execErr)
	execErr = w.analyseStage.Execute(ctx, st)
	finish()
	if execErr != nil {
		w.fail(ctx, env.JobID, "analyse_failed", execErr)
		return execErr
	}

	w.store.Update(ctx, env.JobID, models.JobStatusProcessing, "edit", map[string]any{
		"highlight_path": st.HighlightsPath,
	})

	next, err := broker.NewEnvelope(env.JobID, "edit", broker.EditPayload{
		HighlightPath: st.HighlightsPath,
		VideoPath:     payload.VideoPath,
	})
	if err != nil {
		w.fail(ctx, env.JobID, "analyse_failed", err)
		return err
	}
	if err := w.pub.Publish(ctx, broker.EditQueue, next); err != nil {
		w.fail(ctx, env.JobID, "analyse_failed", err)
		return err
	}
	return nil
}

// HandleEdit renders the clips and finalizes the job.
func (w *Worker) HandleEdit(ctx context.Context, env *broker.Envelope) error {
	var payload broker.EditPayload
	if err := env.DecodePayload(&payload); err != nil {
		return err
	}
	if payload.HighlightPath == "" {
		return fmt.Errorf("edit payload for job %s has no highlight_path", env.JobID)
	}

	highlightPath, err := w.awaitArtifact(ctx, env.JobID, payload.HighlightPath)
	if err != nil {
		w.fail(ctx, env.JobID, "edit_missing_input", err)
		return err
	}

	record := w.store.Get(ctx, env.JobID)

	st := w.newStageState(ctx, env.JobID)
	st.HighlightsPath = highlightPath
	st.VideoPath = payload.VideoPath

	w.store.Update(ctx, env.JobID, models.JobStatusProcessing, "edit", nil)

	var execErr error
	finish := observability.TimedOperationWithError(ctx, observability.WithJobID(w.logger, env.JobID), "edit", &execErr)
	execErr = w.editStage.Execute(ctx, st)
	finish()
	if execErr != nil {
		w.fail(ctx, env.JobID, "edit_failed", execErr)
		return execErr
	}

	w.store.Update(ctx, env.JobID, models.JobStatusCompleted, "completed", map[string]any{
		"output_path": st.OutputPath,
		"clips_paths": st.ClipPaths,
	})
	if w.repo != nil {
		title := stringField(record, "title")
		if err := w.repo.MarkCompleted(ctx, env.JobID, st.OutputPath, title, st.ThumbnailPath); err != nil {
			w.logger.Warn("video row completion update failed")
		}
	}

	done, err := broker.NewEnvelope(env.JobID, "completed", broker.CompletedPayload{
		FinalVideoPath:    st.OutputPath,
		OriginalVideoPath: payload.VideoPath,
		HighlightJSONPath: highlightPath,
		ClipsPaths:        st.ClipPaths,
		ParentJobID:       stringField(record, "parent_job_id"),
	})
	if err != nil {
		return err
	}
	return w.pub.Publish(ctx, broker.CompletedQueue, done)
}

// KV records are generic maps; these helpers pull typed fields out.

func intField(record map[string]any, key string) int {
	switch v := record[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func boolField(record map[string]any, key string) bool {
	b, _ := record[key].(bool)
	return b
}

func stringField(record map[string]any, key string) string {
	s, _ := record[key].(string)
	return s
}
