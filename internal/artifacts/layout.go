// Package artifacts defines the per-job directory layout on the shared
// filesystem and its cleanup rules.
package artifacts

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Layout resolves artifact paths for jobs under a data root. Two workers
// never write to the same job directory concurrently; the broker's
// one-delivery-per-stage ownership rule enforces that.
type Layout struct {
	root string
}

// NewLayout creates a Layout rooted at dataDir.
func NewLayout(dataDir string) *Layout {
	return &Layout{root: dataDir}
}

// Root returns the data root directory.
func (l *Layout) Root() string { return l.root }

// JobDir returns the directory owned by a job, creating nothing.
func (l *Layout) JobDir(jobID string) string {
	return filepath.Join(l.root, jobID)
}

// EnsureJobDir creates the job directory if missing and returns it.
func (l *Layout) EnsureJobDir(jobID string) (string, error) {
	dir := l.JobDir(jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating job directory: %w", err)
	}
	return dir, nil
}

// VideoPath returns the path of the materialized source media.
func (l *Layout) VideoPath(jobID, ext string) string {
	return filepath.Join(l.JobDir(jobID), "temp_video"+normalizeExt(ext))
}

// SegmentsDir returns the directory holding stream segments.
func (l *Layout) SegmentsDir(jobID string) string {
	return filepath.Join(l.JobDir(jobID), "segments")
}

// SegmentPath returns the path of the idx-th stream segment.
func (l *Layout) SegmentPath(jobID string, idx int, ext string) string {
	return filepath.Join(l.SegmentsDir(jobID), fmt.Sprintf("segment_%03d%s", idx, normalizeExt(ext)))
}

// TranscriptPath returns the transcript JSON path.
func (l *Layout) TranscriptPath(jobID string) string {
	return filepath.Join(l.JobDir(jobID), "transcription.json")
}

// HighlightsPath returns the analyst output path.
func (l *Layout) HighlightsPath(jobID string) string {
	return filepath.Join(l.JobDir(jobID), "highlights.json")
}

// ClipsDir returns the directory holding emitted clips.
func (l *Layout) ClipsDir(jobID string) string {
	return filepath.Join(l.JobDir(jobID), "clips")
}

// LogsDir returns the optional per-job log directory.
func (l *Layout) LogsDir(jobID string) string {
	return filepath.Join(l.JobDir(jobID), "logs")
}

// CleanupTemp removes the temporary source media and stream segments after
// completion. Transcript, highlights and clips are retained until an
// explicit delete request.
func (l *Layout) CleanupTemp(jobID string) error {
	dir := l.JobDir(jobID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading job directory: %w", err)
	}
	for _, e := range entries {
		name := e.Name()
		if name == "segments" || strings.HasPrefix(name, "temp_video") {
			if err := os.RemoveAll(filepath.Join(dir, name)); err != nil {
				return fmt.Errorf("removing %s: %w", name, err)
			}
		}
	}
	return nil
}

// Remove deletes the entire job directory.
func (l *Layout) Remove(jobID string) error {
	return os.RemoveAll(l.JobDir(jobID))
}

// FindByBasename searches the job tree for a file with the given basename.
// Used as a last resort when an expected artifact path from a previous stage
// is missing.
func (l *Layout) FindByBasename(jobID, basename string) (string, bool) {
	var found string
	_ = filepath.WalkDir(l.JobDir(jobID), func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil //nolint:nilerr // missing subtrees are not an error here
		}
		if filepath.Base(path) == basename {
			found = path
			return filepath.SkipAll
		}
		return nil
	})
	return found, found != ""
}

func normalizeExt(ext string) string {
	if ext == "" {
		return ".mp4"
	}
	if ext[0] != '.' {
		return "." + ext
	}
	return ext
}
