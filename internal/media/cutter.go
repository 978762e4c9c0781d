package media

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/ffmpeg"
	"github.com/clipforge/clipforge/internal/subtitle"
)

// Cutter renders highlight clips out of a source video. Clips are always
// re-encoded so cut points are frame accurate regardless of keyframe
// placement in the source.
type Cutter struct {
	ffmpegPath string
	logger     *slog.Logger
}

// ClipRequest describes one cut.
type ClipRequest struct {
	SourcePath string
	OutputPath string
	Start      float64
	Duration   float64

	// SubtitlePath, when set, is an SRT file burned into the frames with
	// the standard style.
	SubtitlePath string
}

// NewCutter creates a Cutter from media configuration.
func NewCutter(cfg config.MediaConfig, logger *slog.Logger) *Cutter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cutter{ffmpegPath: cfg.FFmpegPath, logger: logger}
}

// Cut renders one clip.
func (c *Cutter) Cut(ctx context.Context, req ClipRequest) error {
	binary, err := ffmpeg.FindBinary("ffmpeg", c.ffmpegPath)
	if err != nil {
		return err
	}

	builder := ffmpeg.NewCommandBuilder(binary).
		HideBanner().
		Overwrite().
		Seek(req.Start).
		Input(req.SourcePath).
		Duration(req.Duration).
		VideoCodec("libx264").
		VideoPreset("fast").
		AudioCodec("aac")

	if req.SubtitlePath != "" {
		builder.VideoFilter(fmt.Sprintf("subtitles=%s:force_style='%s'",
			escapeFilterPath(req.SubtitlePath), subtitle.BurnInStyle))
	}

	cmd := builder.Output(req.OutputPath).Build()

	c.logger.Debug("cutting clip",
		slog.String("output", req.OutputPath),
		slog.Float64("start", req.Start),
		slog.Float64("duration", req.Duration),
		slog.Bool("subtitles", req.SubtitlePath != ""),
	)
	if err := cmd.Run(ctx); err != nil {
		return fmt.Errorf("cutting clip %s: %w", req.OutputPath, err)
	}
	return nil
}

// Thumbnail extracts a single frame at the given offset as a JPEG.
func (c *Cutter) Thumbnail(ctx context.Context, sourcePath string, offset float64, outputPath string) error {
	binary, err := ffmpeg.FindBinary("ffmpeg", c.ffmpegPath)
	if err != nil {
		return err
	}
	cmd := ffmpeg.NewCommandBuilder(binary).
		HideBanner().
		Overwrite().
		Seek(offset).
		Input(sourcePath).
		Frames(1).
		OutputArgs("-q:v", "2").
		Output(outputPath).
		Build()

	if err := cmd.Run(ctx); err != nil {
		return fmt.Errorf("extracting thumbnail %s: %w", outputPath, err)
	}
	return nil
}

// escapeFilterPath escapes a path for use inside an FFmpeg filter argument,
// where colons and quotes are structural.
func escapeFilterPath(p string) string {
	r := strings.NewReplacer(`\`, `\\`, `:`, `\:`, `'`, `\'`)
	return r.Replace(p)
}
