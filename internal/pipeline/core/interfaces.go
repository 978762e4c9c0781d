// Package core provides the in-process pipeline orchestration framework.
package core

import (
	"context"
	"time"

	"github.com/clipforge/clipforge/internal/artifacts"
	"github.com/clipforge/clipforge/internal/models"
	"github.com/clipforge/clipforge/internal/progress"
)

// Stage represents a single step in the clip generation pipeline. Each stage
// reads what previous stages left in the state and on the filesystem, and
// records its own outputs the same way.
type Stage interface {
	// ID returns a unique identifier for the stage (e.g., "transcribe").
	ID() string

	// Name returns a human-readable name for the stage (e.g., "Transcribe").
	Name() string

	// Execute performs the stage's work against the shared state.
	Execute(ctx context.Context, state *State) error

	// Cleanup performs any necessary cleanup after execution.
	// Called regardless of success or failure.
	Cleanup(ctx context.Context) error
}

// Executor phases, in order. Failed is terminal and absorbing.
const (
	PhaseTranscribing = "transcribing"
	PhaseAnalyzing    = "analyzing"
	PhaseEditing      = "editing"
	PhaseDone         = "done"
	PhaseFailed       = "failed"
)

// State holds all data shared between pipeline stages for one job.
type State struct {
	// JobID is the id of the job being processed.
	JobID string

	// SourceURL is the input video URL. Empty when VideoPath is preset.
	SourceURL string

	// Phase is the executor's current phase.
	Phase string

	// Err is set by the first failing stage; later stages observe it and
	// skip their work.
	Err error

	// MaxHighlights caps the analyst's output.
	MaxHighlights int

	// IncludeSubtitles requests burned-in subtitles on clips.
	IncludeSubtitles bool

	// Layout resolves artifact paths for the job.
	Layout *artifacts.Layout

	// Progress receives coarse progress waypoints.
	Progress progress.Sink

	// VideoPath is the materialized source media. May be preset when the
	// caller already has a local file (per-segment stream sub-jobs).
	VideoPath string

	// Title is optional source metadata picked up during download.
	Title string

	// Transcript and TranscriptPath are set by the transcribe stage.
	Transcript     *models.Transcript
	TranscriptPath string

	// Highlights and HighlightsPath are set by the analyse stage.
	Highlights     *models.HighlightSet
	HighlightsPath string

	// ClipPaths, OutputPath and ThumbnailPath are set by the edit stage.
	ClipPaths     []string
	OutputPath    string
	ThumbnailPath string

	// StartTime records when pipeline execution began.
	StartTime time.Time

	// Metadata stores arbitrary stage-specific data.
	Metadata map[string]any
}

// NewState creates a pipeline state for one job.
func NewState(jobID string, layout *artifacts.Layout, sink progress.Sink) *State {
	if sink == nil {
		sink = progress.NopSink{}
	}
	return &State{
		JobID:     jobID,
		Layout:    layout,
		Progress:  sink,
		StartTime: time.Now(),
		Metadata:  make(map[string]any),
	}
}

// Fail records the first error and flips the phase to failed. Subsequent
// calls keep the original error.
func (s *State) Fail(err error) {
	if s.Err == nil {
		s.Err = err
	}
	s.Phase = PhaseFailed
}

// Failed reports whether a previous stage already failed.
func (s *State) Failed() bool {
	return s.Err != nil
}

// Duration returns the elapsed time since pipeline start.
func (s *State) Duration() time.Duration {
	return time.Since(s.StartTime)
}

// SetMetadata stores a value in the metadata map.
func (s *State) SetMetadata(key string, value any) {
	s.Metadata[key] = value
}

// GetMetadata retrieves a value from the metadata map.
func (s *State) GetMetadata(key string) (any, bool) {
	v, ok := s.Metadata[key]
	return v, ok
}
