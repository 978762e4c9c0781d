// Package edit implements the pipeline stage that renders highlight clips.
package edit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/clipforge/clipforge/internal/editor"
	"github.com/clipforge/clipforge/internal/pipeline/core"
	"github.com/clipforge/clipforge/internal/pipeline/shared"
	"github.com/clipforge/clipforge/internal/progress"
)

// Stage identifiers.
const (
	StageID   = "edit"
	StageName = "Edit"
)

// Renderer cuts clips from highlights. editor.Editor is the production
// implementation.
type Renderer interface {
	Render(ctx context.Context, req editor.Request) (*editor.Result, error)
}

// Stage cuts one clip per highlight and finalizes the job's artifacts.
type Stage struct {
	shared.BaseStage
	renderer Renderer
	logger   *slog.Logger
}

// NewStage creates the edit stage.
func NewStage(renderer Renderer, logger *slog.Logger) *Stage {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stage{
		BaseStage: shared.NewBaseStage(StageID, StageName),
		renderer:  renderer,
		logger:    logger,
	}
}

// Execute implements core.Stage.
func (s *Stage) Execute(ctx context.Context, state *core.State) error {
	if state.Failed() {
		return nil
	}
	state.Phase = core.PhaseEditing
	state.Progress.UpdateProgress(ctx, state.JobID, progress.StageEdit,
		progress.StagePercent(progress.StageEdit, 0), "Cutting clips")

	highlightsPath := state.HighlightsPath
	if highlightsPath == "" {
		highlightsPath = state.Layout.HighlightsPath(state.JobID)
	}
	transcriptPath := state.TranscriptPath
	if transcriptPath == "" {
		transcriptPath = state.Layout.TranscriptPath(state.JobID)
	}

	result, err := s.renderer.Render(ctx, editor.Request{
		HighlightsPath:   highlightsPath,
		VideoPath:        state.VideoPath,
		TranscriptPath:   transcriptPath,
		ClipsDir:         state.Layout.ClipsDir(state.JobID),
		IncludeSubtitles: state.IncludeSubtitles,
	})
	if err != nil {
		return fmt.Errorf("rendering clips: %w", err)
	}

	state.ClipPaths = result.ClipPaths
	state.OutputPath = result.OutputPath
	state.ThumbnailPath = result.ThumbnailPath

	// Temporary media is no longer needed once the clips exist.
	if err := state.Layout.CleanupTemp(state.JobID); err != nil {
		s.logger.Warn("temp cleanup failed",
			slog.String("job_id", state.JobID),
			slog.String("error", err.Error()),
		)
	}

	state.Progress.UpdateProgress(ctx, state.JobID, progress.StageEdit,
		progress.StagePercent(progress.StageEdit, 1), "Concluído!")

	s.logger.Info("clips rendered",
		slog.String("job_id", state.JobID),
		slog.Int("clips", len(result.ClipPaths)),
		slog.String("output", result.OutputPath),
	)
	return nil
}
