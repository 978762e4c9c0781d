// Package progress is the best-effort bridge that writes coarse
// {stage, percent, message} updates to the authoritative video row. A
// persistence error is logged but never aborts the work.
package progress

import (
	"context"
	"log/slog"
	"math"
	"sync"

	"github.com/clipforge/clipforge/internal/repository"
)

// Stage names used by the public percent mapping.
const (
	StageTranscribe = "transcribing"
	StageAnalyse    = "analyzing"
	StageEdit       = "editing"
)

// stageWindows maps each stage onto its slice of the 0-100 scale:
// transcribe [0,33], analyse [33,66], edit [66,100].
var stageWindows = map[string][2]int{
	StageTranscribe: {0, 33},
	StageAnalyse:    {33, 66},
	StageEdit:       {66, 100},
}

// StagePercent projects a within-stage fraction (0.0-1.0) onto the public
// 0-100 scale. Unknown stages map onto the whole scale.
func StagePercent(stage string, frac float64) int {
	window, ok := stageWindows[stage]
	if !ok {
		window = [2]int{0, 100}
	}
	frac = math.Max(0, math.Min(1, frac))
	return window[0] + int(math.Round(frac*float64(window[1]-window[0])))
}

// Sink receives progress updates. The DAG executor and the broker workers
// both report through this interface.
type Sink interface {
	UpdateProgress(ctx context.Context, jobID, stage string, percent int, message string)
}

// Bridge writes progress to the video row, enforcing that the reported
// percent never decreases for a job (except the reset to 0 on failure,
// which goes through the repository's MarkFailed directly).
type Bridge struct {
	repo   repository.VideoRepository
	logger *slog.Logger

	mu   sync.Mutex
	last map[string]int
}

// NewBridge creates a progress bridge over the given repository.
func NewBridge(repo repository.VideoRepository, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{repo: repo, logger: logger, last: make(map[string]int)}
}

// UpdateProgress implements Sink. "Job not found" and write failures are
// tolerated silently apart from a log line.
func (b *Bridge) UpdateProgress(ctx context.Context, jobID, stage string, percent int, message string) {
	b.mu.Lock()
	if prev, ok := b.last[jobID]; ok && percent < prev {
		percent = prev
	}
	b.last[jobID] = percent
	b.mu.Unlock()

	if b.repo == nil {
		return
	}
	if err := b.repo.UpdateProgress(ctx, jobID, stage, percent, message); err != nil {
		b.logger.Warn("progress update failed",
			slog.String("job_id", jobID),
			slog.String("stage", stage),
			slog.Int("percent", percent),
			slog.String("error", err.Error()),
		)
	}
}

// Forget drops the monotonic floor for a job, freeing memory after the job
// reaches a terminal state.
func (b *Bridge) Forget(jobID string) {
	b.mu.Lock()
	delete(b.last, jobID)
	b.mu.Unlock()
}

// NopSink discards updates. Used where no row store is configured.
type NopSink struct{}

// UpdateProgress implements Sink.
func (NopSink) UpdateProgress(context.Context, string, string, int, string) {}
