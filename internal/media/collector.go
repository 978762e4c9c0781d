package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/clipforge/clipforge/internal/artifacts"
	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/ffmpeg"
)

// Segmenting bounds. Caller-supplied values outside these ranges are clamped.
const (
	MinSegmentSeconds = 10
	MaxSegmentSeconds = 600
	MinCaptureSeconds = 30
	MaxCaptureSeconds = 3600

	DefaultSegmentSeconds = 30
	DefaultCaptureSeconds = 300
)

// ClampSegmentDuration bounds a per-segment length, applying the default
// when unset.
func ClampSegmentDuration(v int) int {
	if v <= 0 {
		return DefaultSegmentSeconds
	}
	if v < MinSegmentSeconds {
		return MinSegmentSeconds
	}
	if v > MaxSegmentSeconds {
		return MaxSegmentSeconds
	}
	return v
}

// ClampCaptureDuration bounds the total capture length, applying the default
// when unset.
func ClampCaptureDuration(v int) int {
	if v <= 0 {
		return DefaultCaptureSeconds
	}
	if v < MinCaptureSeconds {
		return MinCaptureSeconds
	}
	if v > MaxCaptureSeconds {
		return MaxCaptureSeconds
	}
	return v
}

// Collector captures a bounded window of a live stream and slices it into
// fixed-length segments on disk.
type Collector struct {
	ytdlpPath      string
	ffmpegPath     string
	extractTimeout time.Duration
	layout         *artifacts.Layout
	logger         *slog.Logger
}

// NewCollector creates a Collector from media configuration.
func NewCollector(cfg config.MediaConfig, layout *artifacts.Layout, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.ExtractTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Collector{
		ytdlpPath:      cfg.YTDLPPath,
		ffmpegPath:     cfg.FFmpegPath,
		extractTimeout: timeout,
		layout:         layout,
		logger:         logger,
	}
}

// resolveStreamURL asks yt-dlp for the direct media URL of the live stream.
func (c *Collector) resolveStreamURL(ctx context.Context, streamURL string) (string, error) {
	binary, err := ffmpeg.FindBinary("yt-dlp", c.ytdlpPath)
	if err != nil {
		return "", err
	}
	opCtx, cancel := context.WithTimeout(ctx, c.extractTimeout)
	defer cancel()

	out, err := exec.CommandContext(opCtx, binary, "-g", "--no-playlist", streamURL).Output()
	if err != nil {
		return "", fmt.Errorf("resolving stream url: %w", err)
	}
	// -g may print one URL per stream; the first is the muxed or video one.
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) == 0 || lines[0] == "" {
		return "", fmt.Errorf("resolving stream url: empty yt-dlp output")
	}
	return lines[0], nil
}

// Collect captures up to captureSeconds of the stream into
// segments/segment_NNN.mp4 files of segmentSeconds each, returning the
// segment paths in index order. Zero segments with a clean capture is not an
// error here; the caller decides how to report it.
func (c *Collector) Collect(ctx context.Context, jobID, streamURL string, segmentSeconds, captureSeconds int) ([]string, error) {
	segmentSeconds = ClampSegmentDuration(segmentSeconds)
	captureSeconds = ClampCaptureDuration(captureSeconds)

	ffmpegBin, err := ffmpeg.FindBinary("ffmpeg", c.ffmpegPath)
	if err != nil {
		return nil, err
	}
	directURL, err := c.resolveStreamURL(ctx, streamURL)
	if err != nil {
		return nil, err
	}

	segDir := c.layout.SegmentsDir(jobID)
	if err := os.MkdirAll(segDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating segments directory: %w", err)
	}

	// Codecs are copied; the capture window is bounded by -t and the segment
	// muxer does the slicing.
	pattern := c.layout.SegmentPath(jobID, 0, ".mp4")
	pattern = strings.Replace(pattern, "segment_000", "segment_%03d", 1)

	cmd := ffmpeg.NewCommandBuilder(ffmpegBin).
		HideBanner().
		Overwrite().
		Input(directURL).
		Duration(float64(captureSeconds)).
		CopyCodecs().
		SegmentArgs(segmentSeconds).
		Output(pattern).
		Build()

	c.logger.Info("capturing stream",
		slog.String("job_id", jobID),
		slog.Int("segment_seconds", segmentSeconds),
		slog.Int("capture_seconds", captureSeconds),
	)
	if err := cmd.Run(ctx); err != nil {
		return nil, fmt.Errorf("capturing stream: %w", err)
	}

	return c.listSegments(jobID)
}

// listSegments returns the captured segment files sorted by index. The
// zero-padded names make lexical order the segment order.
func (c *Collector) listSegments(jobID string) ([]string, error) {
	entries, err := os.ReadDir(c.layout.SegmentsDir(jobID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading segments directory: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "segment_") {
			continue
		}
		paths = append(paths, c.layout.SegmentsDir(jobID)+string(os.PathSeparator)+e.Name())
	}
	sort.Strings(paths)
	return paths, nil
}
