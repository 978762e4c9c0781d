package core

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// activeExecutions tracks which jobs have pipelines running.
var (
	activeExecutions   = make(map[string]bool)
	activeExecutionsMu sync.Mutex
)

// Orchestrator executes a sequence of pipeline stages against one shared
// state, short-circuiting the remaining stages on the first error.
type Orchestrator struct {
	stages []Stage
	state  *State
	logger *slog.Logger
}

// NewOrchestrator creates a new Orchestrator over the given state.
func NewOrchestrator(state *State, stages []Stage, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		stages: stages,
		state:  state,
		logger: logger,
	}
}

// Execute runs all stages in sequence. The returned state carries the
// outputs; the error is the first stage failure, already recorded in the
// state as well.
func (o *Orchestrator) Execute(ctx context.Context) (*State, error) {
	if len(o.stages) == 0 {
		return o.state, ErrNoStages
	}
	if !o.acquireExecution() {
		return o.state, ErrJobAlreadyRunning
	}
	defer o.releaseExecution()

	o.logger.InfoContext(ctx, "starting pipeline execution",
		slog.String("job_id", o.state.JobID),
		slog.Int("stage_count", len(o.stages)),
	)
	startTime := time.Now()

	for i, stage := range o.stages {
		select {
		case <-ctx.Done():
			o.state.Fail(ctx.Err())
			o.cleanupStages(ctx, o.stages[:i+1])
			return o.state, ctx.Err()
		default:
		}

		if o.state.Failed() {
			o.cleanupStages(ctx, o.stages[:i])
			return o.state, o.state.Err
		}

		if err := o.executeStage(ctx, i, stage); err != nil {
			stageErr := NewStageError(stage.ID(), stage.Name(), err)
			o.state.Fail(stageErr)
			o.cleanupStages(ctx, o.stages[:i+1])
			return o.state, stageErr
		}
	}

	o.state.Phase = PhaseDone
	o.logger.InfoContext(ctx, "pipeline execution completed",
		slog.String("job_id", o.state.JobID),
		slog.Int("clips", len(o.state.ClipPaths)),
		slog.Duration("duration", time.Since(startTime)),
	)
	o.cleanupStages(ctx, o.stages)
	return o.state, nil
}

// executeStage runs a single stage and handles logging.
func (o *Orchestrator) executeStage(ctx context.Context, index int, stage Stage) error {
	stageStart := time.Now()

	o.logger.InfoContext(ctx, "executing stage",
		slog.Int("stage_num", index+1),
		slog.Int("total_stages", len(o.stages)),
		slog.String("stage_id", stage.ID()),
		slog.String("job_id", o.state.JobID),
	)

	if err := stage.Execute(ctx, o.state); err != nil {
		o.logger.ErrorContext(ctx, "stage failed",
			slog.String("stage_id", stage.ID()),
			slog.String("job_id", o.state.JobID),
			slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(stageStart)),
		)
		return err
	}

	o.logger.InfoContext(ctx, "stage completed",
		slog.String("stage_id", stage.ID()),
		slog.String("job_id", o.state.JobID),
		slog.Duration("duration", time.Since(stageStart)),
	)
	return nil
}

// cleanupStages calls Cleanup on all given stages.
func (o *Orchestrator) cleanupStages(ctx context.Context, stages []Stage) {
	for _, stage := range stages {
		if err := stage.Cleanup(ctx); err != nil {
			o.logger.Warn("stage cleanup failed",
				slog.String("stage_id", stage.ID()),
				slog.String("error", err.Error()),
			)
		}
	}
}

// acquireExecution tries to acquire the execution lock for this job.
func (o *Orchestrator) acquireExecution() bool {
	activeExecutionsMu.Lock()
	defer activeExecutionsMu.Unlock()

	if activeExecutions[o.state.JobID] {
		return false
	}
	activeExecutions[o.state.JobID] = true
	return true
}

// releaseExecution releases the execution lock for this job.
func (o *Orchestrator) releaseExecution() {
	activeExecutionsMu.Lock()
	defer activeExecutionsMu.Unlock()
	delete(activeExecutions, o.state.JobID)
}

// State returns the current pipeline state (for testing).
func (o *Orchestrator) State() *State {
	return o.state
}

// Stages returns the configured stages (for testing).
func (o *Orchestrator) Stages() []Stage {
	return o.stages
}
