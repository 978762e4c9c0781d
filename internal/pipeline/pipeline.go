// Package pipeline wires the transcribe, analyse and edit stages into the
// synchronous in-process executor. It exists so a single recorded video can
// be processed end to end without traversing the broker.
package pipeline

import (
	"context"
	"log/slog"

	"github.com/clipforge/clipforge/internal/artifacts"
	"github.com/clipforge/clipforge/internal/pipeline/core"
	"github.com/clipforge/clipforge/internal/progress"
)

// Options are the per-run inputs of the executor.
type Options struct {
	JobID            string
	SourceURL        string
	VideoPath        string
	MaxHighlights    int
	IncludeSubtitles bool
}

// Executor runs the three-stage pipeline in process.
type Executor struct {
	stages []core.Stage
	layout *artifacts.Layout
	logger *slog.Logger
}

// NewExecutor builds an executor over already-constructed stages, run in the
// given order.
func NewExecutor(stages []core.Stage, layout *artifacts.Layout, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		stages: stages,
		layout: layout,
		logger: logger,
	}
}

// Run executes the stages in order for one job. Progress goes to the given
// sink; the returned state carries the artifacts.
func (e *Executor) Run(ctx context.Context, opts Options, sink progress.Sink) (*core.State, error) {
	state := core.NewState(opts.JobID, e.layout, sink)
	state.SourceURL = opts.SourceURL
	state.VideoPath = opts.VideoPath
	state.MaxHighlights = opts.MaxHighlights
	state.IncludeSubtitles = opts.IncludeSubtitles

	if _, err := e.layout.EnsureJobDir(opts.JobID); err != nil {
		state.Fail(err)
		return state, err
	}

	orch := core.NewOrchestrator(state, e.stages, e.logger)
	return orch.Execute(ctx)
}
