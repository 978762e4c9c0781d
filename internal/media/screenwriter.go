package media

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/clipforge/clipforge/internal/models"
	"github.com/clipforge/clipforge/internal/subtitle"
)

// FrameExtractor pulls a single frame out of a clip. Cutter is the
// production implementation.
type FrameExtractor interface {
	Thumbnail(ctx context.Context, sourcePath string, offset float64, outputPath string) error
}

// Screenwriter emits the advisory sidecar artifacts for a rendered clip:
// standalone SRT and WebVTT files and a thumbnail from the clip's middle
// frame. Sidecars are best effort; a failure is logged and never fails the
// clip itself.
type Screenwriter struct {
	cutter FrameExtractor
	logger *slog.Logger
}

// NewScreenwriter creates a Screenwriter sharing the cutter's FFmpeg setup.
func NewScreenwriter(cutter FrameExtractor, logger *slog.Logger) *Screenwriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Screenwriter{cutter: cutter, logger: logger}
}

// SidecarPaths are the artifacts Write produces for one clip.
type SidecarPaths struct {
	SRT       string
	VTT       string
	Thumbnail string
}

// Write emits sidecars next to the clip. segments must already be in
// clip-local time.
func (s *Screenwriter) Write(ctx context.Context, clipPath string, segments []models.TranscriptSegment, clipDuration float64) SidecarPaths {
	base := strings.TrimSuffix(clipPath, filepath.Ext(clipPath))
	out := SidecarPaths{}

	srtPath := base + ".srt"
	if err := subtitle.WriteSRT(srtPath, segments); err != nil {
		s.logger.Warn("sidecar srt failed", slog.String("clip", clipPath), slog.String("error", err.Error()))
	} else {
		out.SRT = srtPath
	}

	vttPath := base + ".vtt"
	if err := subtitle.WriteVTT(vttPath, segments); err != nil {
		s.logger.Warn("sidecar vtt failed", slog.String("clip", clipPath), slog.String("error", err.Error()))
	} else {
		out.VTT = vttPath
	}

	thumbPath := base + "_thumb.jpg"
	if err := s.cutter.Thumbnail(ctx, clipPath, clipDuration/2, thumbPath); err != nil {
		s.logger.Warn("sidecar thumbnail failed", slog.String("clip", clipPath), slog.String("error", err.Error()))
	} else {
		out.Thumbnail = thumbPath
	}
	return out
}

// ClipBasename builds the canonical clip filename from its ordinal, start
// and duration. Ordinals are one-based; seconds are rendered as integers.
func ClipBasename(ordinal int, start, duration float64, withSubs bool) string {
	suffix := ""
	if withSubs {
		suffix = "_with_subs"
	}
	return fmt.Sprintf("clip_%02d_inicio_%ds_duracao_%ds%s.mp4",
		ordinal, int(start), int(duration), suffix)
}
