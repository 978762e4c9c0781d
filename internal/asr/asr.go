// Package asr turns audio into timed transcripts. The default implementation
// shells out to the whisper CLI; the model stays warm for the life of the
// process behind a lazily initialized singleton.
package asr

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/ffmpeg"
	"github.com/clipforge/clipforge/internal/models"
)

// Transcriber converts a media file into a transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, mediaPath string) (*models.Transcript, error)
}

// WhisperTranscriber runs the whisper CLI with JSON output.
type WhisperTranscriber struct {
	binary string
	model  string
	logger *slog.Logger

	initOnce sync.Once
	initErr  error
}

// NewWhisperTranscriber creates a transcriber. Binary resolution is deferred
// until the first Transcribe call so worker startup does not require the
// tool to be installed.
func NewWhisperTranscriber(cfg config.MediaConfig, logger *slog.Logger) *WhisperTranscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &WhisperTranscriber{
		binary: cfg.WhisperPath,
		model:  cfg.WhisperModel,
		logger: logger,
	}
}

// init resolves the binary exactly once per process.
func (w *WhisperTranscriber) init() error {
	w.initOnce.Do(func() {
		path, err := ffmpeg.FindBinary("whisper", w.binary)
		if err != nil {
			w.initErr = err
			return
		}
		w.binary = path
		w.logger.Info("speech recognizer ready",
			slog.String("binary", path),
			slog.String("model", w.model),
		)
	})
	return w.initErr
}

// whisperOutput is the subset of whisper's JSON result the pipeline reads.
type whisperOutput struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// Transcribe runs whisper on the given file and parses its JSON output.
func (w *WhisperTranscriber) Transcribe(ctx context.Context, mediaPath string) (*models.Transcript, error) {
	if err := w.init(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(mediaPath); err != nil {
		return nil, fmt.Errorf("transcription input: %w", err)
	}

	outDir, err := os.MkdirTemp("", "clipforge-asr-*")
	if err != nil {
		return nil, fmt.Errorf("creating whisper output dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	args := []string{
		mediaPath,
		"--model", w.model,
		"--output_format", "json",
		"--output_dir", outDir,
		"--verbose", "False",
	}
	cmd := exec.CommandContext(ctx, w.binary, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr

	w.logger.Debug("transcribing", slog.String("input", mediaPath))
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("whisper failed: %w: %s", err, tail(stderr.String()))
	}

	base := strings.TrimSuffix(filepath.Base(mediaPath), filepath.Ext(mediaPath))
	resultPath := filepath.Join(outDir, base+".json")
	raw, err := os.ReadFile(resultPath)
	if err != nil {
		return nil, fmt.Errorf("reading whisper output: %w", err)
	}

	var out whisperOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("parsing whisper output: %w", err)
	}

	transcript := &models.Transcript{
		Text:     strings.TrimSpace(out.Text),
		Language: out.Language,
		Segments: make([]models.TranscriptSegment, 0, len(out.Segments)),
	}
	for _, seg := range out.Segments {
		transcript.Segments = append(transcript.Segments, models.TranscriptSegment{
			Start: seg.Start,
			End:   seg.End,
			Text:  strings.TrimSpace(seg.Text),
		})
	}
	if n := len(transcript.Segments); n > 0 {
		transcript.Duration = transcript.Segments[n-1].End
	}
	return transcript, nil
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 300 {
		s = s[len(s)-300:]
	}
	return s
}

var _ Transcriber = (*WhisperTranscriber)(nil)
