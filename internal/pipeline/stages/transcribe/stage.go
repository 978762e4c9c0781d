// Package transcribe implements the pipeline stage that materializes the
// source media and turns it into a transcript.
package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/clipforge/clipforge/internal/asr"
	"github.com/clipforge/clipforge/internal/pipeline/core"
	"github.com/clipforge/clipforge/internal/pipeline/shared"
	"github.com/clipforge/clipforge/internal/progress"
)

// Stage identifiers.
const (
	StageID   = "transcribe"
	StageName = "Transcribe"
)

// Downloader materializes a URL into the job directory. media.Downloader is
// the production implementation.
type Downloader interface {
	Download(ctx context.Context, jobID, url string) (string, error)
	Title(ctx context.Context, url string) string
}

// Stage downloads the source when needed and produces transcription.json.
type Stage struct {
	shared.BaseStage
	downloader  Downloader
	transcriber asr.Transcriber
	logger      *slog.Logger
}

// NewStage creates the transcribe stage.
func NewStage(downloader Downloader, transcriber asr.Transcriber, logger *slog.Logger) *Stage {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stage{
		BaseStage:   shared.NewBaseStage(StageID, StageName),
		downloader:  downloader,
		transcriber: transcriber,
		logger:      logger,
	}
}

// Execute implements core.Stage.
func (s *Stage) Execute(ctx context.Context, state *core.State) error {
	if state.Failed() {
		return nil
	}
	state.Phase = core.PhaseTranscribing
	state.Progress.UpdateProgress(ctx, state.JobID, progress.StageTranscribe,
		progress.StagePercent(progress.StageTranscribe, 0), "Preparing media")

	if state.VideoPath == "" {
		if state.SourceURL == "" {
			return fmt.Errorf("neither a local video nor a source url is set")
		}
		path, err := s.downloader.Download(ctx, state.JobID, state.SourceURL)
		if err != nil {
			return fmt.Errorf("downloading source: %w", err)
		}
		state.VideoPath = path
		if title := s.downloader.Title(ctx, state.SourceURL); title != "" {
			state.Title = title
		}
	}
	state.Progress.UpdateProgress(ctx, state.JobID, progress.StageTranscribe,
		progress.StagePercent(progress.StageTranscribe, 0.5), "Transcribing audio")

	transcript, err := s.transcriber.Transcribe(ctx, state.VideoPath)
	if err != nil {
		return fmt.Errorf("transcribing: %w", err)
	}

	outPath := state.Layout.TranscriptPath(state.JobID)
	data, err := json.Marshal(transcript)
	if err != nil {
		return fmt.Errorf("encoding transcript: %w", err)
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return fmt.Errorf("writing transcript: %w", err)
	}

	state.Transcript = transcript
	state.TranscriptPath = outPath
	state.Progress.UpdateProgress(ctx, state.JobID, progress.StageTranscribe,
		progress.StagePercent(progress.StageTranscribe, 1), "Transcript ready")

	s.logger.Info("transcript produced",
		slog.String("job_id", state.JobID),
		slog.Int("segments", len(transcript.Segments)),
		slog.Int("chars", len(transcript.Text)),
	)
	return nil
}
