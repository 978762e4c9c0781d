// Package media wraps the external tools that materialize, segment and cut
// video: yt-dlp for acquisition and FFmpeg for everything after.
package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/clipforge/clipforge/internal/artifacts"
	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/ffmpeg"
)

// Downloader materializes a recorded video URL into the job directory.
type Downloader struct {
	binary   string
	timeout  time.Duration
	attempts int
	layout   *artifacts.Layout
	logger   *slog.Logger
}

// NewDownloader creates a Downloader from media configuration.
func NewDownloader(cfg config.MediaConfig, layout *artifacts.Layout, logger *slog.Logger) *Downloader {
	if logger == nil {
		logger = slog.Default()
	}
	attempts := cfg.DownloadAttempts
	if attempts < 1 {
		attempts = 1
	}
	timeout := cfg.DownloadTimeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Downloader{
		binary:   cfg.YTDLPPath,
		timeout:  timeout,
		attempts: attempts,
		layout:   layout,
		logger:   logger,
	}
}

// Download fetches the URL into the job directory preferring MP4, returning
// the path of the materialized file. Each attempt gets the full timeout.
func (d *Downloader) Download(ctx context.Context, jobID, url string) (string, error) {
	binary, err := ffmpeg.FindBinary("yt-dlp", d.binary)
	if err != nil {
		return "", err
	}
	dir, err := d.layout.EnsureJobDir(jobID)
	if err != nil {
		return "", err
	}

	// yt-dlp picks the final container, so the template uses its %(ext)s and
	// the actual file is resolved from disk afterwards.
	template := filepath.Join(dir, "temp_video.%(ext)s")
	args := []string{
		"-f", "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best",
		"--merge-output-format", "mp4",
		"--no-playlist",
		"-o", template,
		url,
	}

	var lastErr error
	for attempt := 1; attempt <= d.attempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, d.timeout)
		cmd := exec.CommandContext(attemptCtx, binary, args...)
		var stderr strings.Builder
		cmd.Stderr = &stderr

		d.logger.Info("downloading source video",
			slog.String("job_id", jobID),
			slog.Int("attempt", attempt),
		)
		err := cmd.Run()
		cancel()
		if err == nil {
			if path, ok := d.findDownloaded(jobID); ok {
				return path, nil
			}
			lastErr = fmt.Errorf("download reported success but no file was produced")
		} else {
			lastErr = fmt.Errorf("yt-dlp failed: %w: %s", err, tail(stderr.String()))
		}

		d.logger.Warn("download attempt failed",
			slog.String("job_id", jobID),
			slog.Int("attempt", attempt),
			slog.String("error", lastErr.Error()),
		)
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	return "", fmt.Errorf("downloading %s after %d attempts: %w", url, d.attempts, lastErr)
}

// findDownloaded locates the materialized temp_video.* file, whatever
// extension yt-dlp settled on.
func (d *Downloader) findDownloaded(jobID string) (string, bool) {
	entries, err := os.ReadDir(d.layout.JobDir(jobID))
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "temp_video.") && !strings.HasSuffix(name, ".part") {
			return filepath.Join(d.layout.JobDir(jobID), name), true
		}
	}
	return "", false
}

// Title asks yt-dlp for the video title without downloading media. Failures
// return an empty title; the caller treats it as optional metadata.
func (d *Downloader) Title(ctx context.Context, url string) string {
	binary, err := ffmpeg.FindBinary("yt-dlp", d.binary)
	if err != nil {
		return ""
	}
	opCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	out, err := exec.CommandContext(opCtx, binary, "--get-title", "--no-playlist", url).Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 300 {
		s = s[len(s)-300:]
	}
	return s
}
