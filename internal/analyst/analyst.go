// Package analyst turns a transcript into a ranked, deduplicated, temporally
// diversified set of highlights by prompting a language model. Short
// transcripts go to the model in one call; long ones take a map-reduce path
// over overlapping temporal chunks.
package analyst

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/llm"
	"github.com/clipforge/clipforge/internal/models"
)

// Analyst selects highlights from transcripts.
type Analyst struct {
	client llm.Client
	cfg    config.AnalystConfig
	logger *slog.Logger
}

// New creates an Analyst over the given model client.
func New(client llm.Client, cfg config.AnalystConfig, logger *slog.Logger) *Analyst {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyst{client: client, cfg: cfg, logger: logger}
}

// Analyse produces at most maxHighlights highlights for the transcript.
func (a *Analyst) Analyse(ctx context.Context, t *models.Transcript, maxHighlights int) (*models.HighlightSet, error) {
	maxHighlights = models.ClampMaxHighlights(maxHighlights)

	var candidates []models.Highlight
	var err error
	if len(t.Text) <= a.cfg.DirectThreshold {
		candidates, err = a.analyseDirect(ctx, t, maxHighlights)
	} else {
		candidates, err = a.analyseChunked(ctx, t)
	}
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("analysis produced no usable highlights")
	}

	final := Reduce(candidates, maxHighlights)
	a.logger.Info("analysis complete",
		slog.Int("candidates", len(candidates)),
		slog.Int("selected", len(final)),
	)
	return &models.HighlightSet{Highlights: final}, nil
}

// analyseDirect sends the whole transcript in a single call.
func (a *Analyst) analyseDirect(ctx context.Context, t *models.Transcript, maxHighlights int) ([]models.Highlight, error) {
	resp, err := a.client.Generate(ctx, directPrompt(t, maxHighlights))
	if err != nil {
		return nil, fmt.Errorf("analysing transcript: %w", err)
	}
	highlights, err := parseHighlights(resp.Text)
	if err != nil {
		return nil, fmt.Errorf("parsing analysis response: %w", err)
	}
	return filterValid(highlights), nil
}

// analyseChunked runs the map phase over temporal chunks. A failed chunk is
// logged and skipped; the whole job fails only when every chunk fails or
// nothing valid comes back.
func (a *Analyst) analyseChunked(ctx context.Context, t *models.Transcript) ([]models.Highlight, error) {
	chunks := BuildChunks(t, a.cfg.ChunkDuration, a.cfg.ChunkOverlap)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("transcript yielded no chunks")
	}
	a.logger.Info("chunked analysis",
		slog.Int("chunks", len(chunks)),
		slog.Float64("chunk_duration", a.cfg.ChunkDuration),
		slog.Float64("overlap", a.cfg.ChunkOverlap),
	)

	var candidates []models.Highlight
	var lastErr error
	for i, chunk := range chunks {
		resp, err := a.client.Generate(ctx, chunkPrompt(chunk))
		if err != nil {
			lastErr = err
			a.logger.Warn("chunk analysis failed",
				slog.Int("chunk", i),
				slog.String("error", err.Error()),
			)
			continue
		}
		highlights, err := parseHighlights(resp.Text)
		if err != nil {
			lastErr = err
			a.logger.Warn("chunk response unparseable",
				slog.Int("chunk", i),
				slog.String("error", err.Error()),
			)
			continue
		}
		kept := 0
		for _, h := range filterValid(highlights) {
			if inChunkRange(h, chunk) {
				candidates = append(candidates, h)
				kept++
			} else {
				a.logger.Debug("highlight outside chunk range discarded",
					slog.Int("chunk", i),
					slog.Float64("start", h.Start),
					slog.Float64("end", h.End),
				)
			}
		}
		a.logger.Debug("chunk analysed", slog.Int("chunk", i), slog.Int("kept", kept))
	}

	if len(candidates) == 0 && lastErr != nil {
		return nil, fmt.Errorf("all chunks failed: %w", lastErr)
	}
	return candidates, nil
}

// chunkRangeTolerance absorbs model rounding past the chunk's end.
const chunkRangeTolerance = 5.0

func inChunkRange(h models.Highlight, c Chunk) bool {
	return h.Start >= c.Start && h.End <= c.End+chunkRangeTolerance
}

func filterValid(hs []models.Highlight) []models.Highlight {
	out := hs[:0]
	for _, h := range hs {
		if h.Valid() {
			out = append(out, h)
		}
	}
	return out
}

const responseShape = `Respond with JSON only, in this exact shape:
{"highlights": [{"start": <seconds>, "end": <seconds>, "summary": "<one sentence>", "score": <0-100>}]}`

func directPrompt(t *models.Transcript, maxHighlights int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are selecting the %d most engaging moments of a video from its transcript.\n", maxHighlights)
	sb.WriteString("Each highlight must be a self-contained moment between 15 and 90 seconds long.\n")
	sb.WriteString("Timestamps are in seconds from the start of the video.\n\n")
	sb.WriteString(responseShape)
	sb.WriteString("\n\nTranscript:\n")
	writeTimedText(&sb, t.Segments, t.Text)
	return sb.String()
}

func chunkPrompt(c Chunk) string {
	var sb strings.Builder
	sb.WriteString("You are selecting the most engaging moments of a video from one section of its transcript.\n")
	fmt.Fprintf(&sb, "This section covers the absolute time range [%.1f, %.1f] seconds.\n", c.Start, c.End)
	fmt.Fprintf(&sb, "Return 3 to 5 highlights whose start and end fall inside [%.1f, %.1f].\n", c.Start, c.End)
	sb.WriteString("Each highlight must be a self-contained moment between 15 and 90 seconds long.\n\n")
	sb.WriteString(responseShape)
	sb.WriteString("\n\nTranscript section:\n")
	writeTimedText(&sb, c.Segments, c.text)
	return sb.String()
}

// writeTimedText renders segments with their absolute timestamps so the
// model can anchor its intervals; the raw text is the fallback when no
// segments exist.
func writeTimedText(sb *strings.Builder, segments []models.TranscriptSegment, raw string) {
	if len(segments) == 0 {
		sb.WriteString(raw)
		return
	}
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		fmt.Fprintf(sb, "[%.1f-%.1f] %s\n", seg.Start, seg.End, text)
	}
}

// parseHighlights decodes a model reply. Markdown fences are tolerated; the
// body may be the canonical {"highlights": [...]} object or a bare list.
func parseHighlights(raw string) ([]models.Highlight, error) {
	body := stripFences(raw)

	var set models.HighlightSet
	if err := json.Unmarshal([]byte(body), &set); err == nil && set.Highlights != nil {
		return set.Highlights, nil
	}
	var list []models.Highlight
	if err := json.Unmarshal([]byte(body), &list); err == nil {
		return list, nil
	}
	return nil, fmt.Errorf("response is neither a highlights object nor a list")
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
	}
	return strings.TrimSpace(s)
}
