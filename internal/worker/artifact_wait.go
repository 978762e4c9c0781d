package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

const (
	artifactRetries    = 3
	artifactRetryDelay = time.Second
)

// awaitArtifact waits briefly for an expected artifact from a previous stage
// to appear at path. Shared-filesystem propagation can lag the broker, so the
// absence is retried before the fallback basename search under the job tree.
// The returned path may differ from the requested one when the search found
// the file elsewhere.
func (w *Worker) awaitArtifact(ctx context.Context, jobID, path string) (string, error) {
	for attempt := 0; attempt <= artifactRetries; attempt++ {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		if attempt == artifactRetries {
			break
		}
		w.logger.Debug("artifact not yet visible, retrying",
			slog.String("job_id", jobID),
			slog.String("path", path),
			slog.Int("attempt", attempt+1),
		)
		select {
		case <-time.After(artifactRetryDelay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if found, ok := w.layout.FindByBasename(jobID, filepath.Base(path)); ok {
		w.logger.Warn("artifact located by basename search",
			slog.String("job_id", jobID),
			slog.String("expected", path),
			slog.String("found", found),
		)
		return found, nil
	}
	return "", fmt.Errorf("artifact %s missing after retries", path)
}
