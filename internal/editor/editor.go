// Package editor renders one clip per highlight out of the source video,
// optionally burning in subtitles and emitting sidecar artifacts for the
// lead clip.
package editor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/media"
	"github.com/clipforge/clipforge/internal/models"
	"github.com/clipforge/clipforge/internal/subtitle"
)

// ClipCutter is the rendering collaborator. media.Cutter is the production
// implementation; tests inject fakes.
type ClipCutter interface {
	Cut(ctx context.Context, req media.ClipRequest) error
}

// SidecarWriter emits advisory artifacts next to a clip.
type SidecarWriter interface {
	Write(ctx context.Context, clipPath string, segments []models.TranscriptSegment, clipDuration float64) media.SidecarPaths
}

// Request describes one edit job.
type Request struct {
	HighlightsPath   string
	VideoPath        string
	TranscriptPath   string
	ClipsDir         string
	IncludeSubtitles bool
}

// Result is what a successful edit produced.
type Result struct {
	ClipPaths     []string
	OutputPath    string
	ThumbnailPath string
}

// Editor cuts highlight clips.
type Editor struct {
	cutter       ClipCutter
	screenwriter SidecarWriter
	cfg          config.EditorConfig
	logger       *slog.Logger
}

// New creates an Editor. screenwriter may be nil to disable sidecars.
func New(cutter ClipCutter, screenwriter SidecarWriter, cfg config.EditorConfig, logger *slog.Logger) *Editor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FallbackSeconds <= 0 {
		cfg.FallbackSeconds = 5.0
	}
	return &Editor{cutter: cutter, screenwriter: screenwriter, cfg: cfg, logger: logger}
}

// Render cuts one clip per highlight in input order. A single failed
// highlight is logged and skipped; the edit fails only when zero clips
// succeed.
func (e *Editor) Render(ctx context.Context, req Request) (*Result, error) {
	raw, err := os.ReadFile(req.HighlightsPath)
	if err != nil {
		return nil, fmt.Errorf("reading highlights: %w", err)
	}
	highlights, err := NormalizeHighlights(raw)
	if err != nil {
		return nil, fmt.Errorf("normalizing highlights: %w", err)
	}
	if len(highlights) == 0 {
		return nil, fmt.Errorf("highlights document is empty")
	}

	if err := os.MkdirAll(req.ClipsDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating clips directory: %w", err)
	}

	var transcript *models.Transcript
	if req.IncludeSubtitles && req.TranscriptPath != "" {
		transcript, err = loadTranscript(req.TranscriptPath)
		if err != nil {
			e.logger.Warn("transcript unavailable, rendering without subtitles",
				slog.String("path", req.TranscriptPath),
				slog.String("error", err.Error()),
			)
		}
	}
	withSubs := transcript != nil && len(transcript.Segments) > 0

	result := &Result{}
	for i, h := range highlights {
		ordinal := i + 1

		start, end, ok := e.bounds(ordinal, h)
		if !ok {
			continue
		}
		duration := end - start

		clipPath := filepath.Join(req.ClipsDir, media.ClipBasename(ordinal, start, duration, withSubs))

		var clipSegments []models.TranscriptSegment
		var srtPath string
		if withSubs {
			clipSegments = subtitle.ClipTranscript(transcript.Segments, start, end)
			if len(clipSegments) > 0 {
				srtPath = clipPath + ".tmp.srt"
				if err := subtitle.WriteSRT(srtPath, clipSegments); err != nil {
					e.logger.Warn("temporary srt failed, cutting without subtitles",
						slog.Int("highlight", ordinal),
						slog.String("error", err.Error()),
					)
					srtPath = ""
				}
			}
		}

		err := e.cutter.Cut(ctx, media.ClipRequest{
			SourcePath:   req.VideoPath,
			OutputPath:   clipPath,
			Start:        start,
			Duration:     duration,
			SubtitlePath: srtPath,
		})
		if srtPath != "" {
			_ = os.Remove(srtPath)
		}
		if err != nil {
			e.logger.Warn("clip failed, skipping highlight",
				slog.Int("highlight", ordinal),
				slog.String("error", err.Error()),
			)
			continue
		}

		result.ClipPaths = append(result.ClipPaths, clipPath)

		// Sidecars only for the lead clip, and only as advisory output.
		if len(result.ClipPaths) == 1 && e.screenwriter != nil {
			sidecars := e.screenwriter.Write(ctx, clipPath, clipSegments, duration)
			result.ThumbnailPath = sidecars.Thumbnail
		}
	}

	if len(result.ClipPaths) == 0 {
		return nil, fmt.Errorf("no clips produced from %d highlights", len(highlights))
	}
	result.OutputPath = result.ClipPaths[0]

	e.logger.Info("edit complete",
		slog.Int("requested", len(highlights)),
		slog.Int("produced", len(result.ClipPaths)),
	)
	return result, nil
}

// bounds validates and repairs one highlight's interval. end <= start gets
// the fallback duration unless strict bounds are on, in which case the
// highlight is skipped.
func (e *Editor) bounds(ordinal int, h models.Highlight) (float64, float64, bool) {
	start, end := h.Start, h.End
	if start < 0 {
		start = 0
	}
	if end <= start {
		if e.cfg.StrictBounds {
			e.logger.Warn("highlight has non-positive duration, skipping",
				slog.Int("highlight", ordinal),
				slog.Float64("start", h.Start),
				slog.Float64("end", h.End),
			)
			return 0, 0, false
		}
		end = start + e.cfg.FallbackSeconds
		e.logger.Warn("highlight has non-positive duration, applying fallback length",
			slog.Int("highlight", ordinal),
			slog.Float64("start", start),
			slog.Float64("fallback_end", end),
		)
	}
	return start, end, true
}

func loadTranscript(path string) (*models.Transcript, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var t models.Transcript
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("parsing transcript: %w", err)
	}
	return &t, nil
}
