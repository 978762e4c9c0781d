// Package analyse implements the pipeline stage that selects highlights
// from the transcript.
package analyse

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/clipforge/clipforge/internal/models"
	"github.com/clipforge/clipforge/internal/pipeline/core"
	"github.com/clipforge/clipforge/internal/pipeline/shared"
	"github.com/clipforge/clipforge/internal/progress"
)

// Stage identifiers.
const (
	StageID   = "analyse"
	StageName = "Analyse"
)

// HighlightSelector is the analysis collaborator. analyst.Analyst is the
// production implementation.
type HighlightSelector interface {
	Analyse(ctx context.Context, t *models.Transcript, maxHighlights int) (*models.HighlightSet, error)
}

// Stage produces highlights.json from transcription.json.
type Stage struct {
	shared.BaseStage
	selector HighlightSelector
	logger   *slog.Logger
}

// NewStage creates the analyse stage.
func NewStage(selector HighlightSelector, logger *slog.Logger) *Stage {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stage{
		BaseStage: shared.NewBaseStage(StageID, StageName),
		selector:  selector,
		logger:    logger,
	}
}

// Execute implements core.Stage.
func (s *Stage) Execute(ctx context.Context, state *core.State) error {
	if state.Failed() {
		return nil
	}
	state.Phase = core.PhaseAnalyzing
	state.Progress.UpdateProgress(ctx, state.JobID, progress.StageAnalyse,
		progress.StagePercent(progress.StageAnalyse, 0), "Analysing transcript")

	transcript := state.Transcript
	if transcript == nil {
		path := state.TranscriptPath
		if path == "" {
			path = state.Layout.TranscriptPath(state.JobID)
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading transcript: %w", err)
		}
		transcript = &models.Transcript{}
		if err := json.Unmarshal(raw, transcript); err != nil {
			return fmt.Errorf("parsing transcript: %w", err)
		}
		state.Transcript = transcript
	}

	state.Progress.UpdateProgress(ctx, state.JobID, progress.StageAnalyse,
		progress.StagePercent(progress.StageAnalyse, 0.5), "Selecting highlights")

	set, err := s.selector.Analyse(ctx, transcript, state.MaxHighlights)
	if err != nil {
		return fmt.Errorf("analysing: %w", err)
	}

	outPath := state.Layout.HighlightsPath(state.JobID)
	data, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("encoding highlights: %w", err)
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return fmt.Errorf("writing highlights: %w", err)
	}

	state.Highlights = set
	state.HighlightsPath = outPath
	state.Progress.UpdateProgress(ctx, state.JobID, progress.StageAnalyse,
		progress.StagePercent(progress.StageAnalyse, 1), "Highlights ready")

	s.logger.Info("highlights selected",
		slog.String("job_id", state.JobID),
		slog.Int("count", len(set.Highlights)),
	)
	return nil
}
