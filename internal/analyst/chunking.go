package analyst

import (
	"strings"

	"github.com/clipforge/clipforge/internal/models"
)

// Chunk is one temporal window of the transcript submitted to the model as a
// unit. Start and End are nominal window bounds in media time; the last
// chunk's End may extend past the actual media duration.
type Chunk struct {
	Start    float64
	End      float64
	Segments []models.TranscriptSegment

	// text is set only on the whole-text fallback chunk.
	text string
}

// Text returns the chunk's transcript text.
func (c Chunk) Text() string {
	if c.text != "" {
		return c.text
	}
	parts := make([]string, 0, len(c.Segments))
	for _, seg := range c.Segments {
		if t := strings.TrimSpace(seg.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// BuildChunks slices the transcript's segments into windows of chunkDuration
// seconds overlapping by overlap seconds. A new window opens at
// previous_end - overlap and is seeded with the closed window's segments
// falling inside it, so context spanning a boundary is visible to both
// windows. A transcript with text but no segments collapses to a single
// whole-text chunk.
func BuildChunks(t *models.Transcript, chunkDuration, overlap float64) []Chunk {
	if len(t.Segments) == 0 {
		if strings.TrimSpace(t.Text) == "" {
			return nil
		}
		end := t.Duration
		if end <= 0 {
			end = chunkDuration
		}
		return []Chunk{{Start: 0, End: end, text: t.Text}}
	}

	var chunks []Chunk
	chunkStart := 0.0
	chunkEnd := chunkDuration
	var current []models.TranscriptSegment

	closeChunk := func() {
		if len(current) > 0 {
			chunks = append(chunks, Chunk{Start: chunkStart, End: chunkEnd, Segments: current})
		}
	}

	for _, seg := range t.Segments {
		if seg.Start < chunkEnd {
			current = append(current, seg)
			continue
		}

		closeChunk()

		newStart := chunkEnd - overlap
		// The overlap tail of the closed window seeds the next one.
		var seeded []models.TranscriptSegment
		for _, prev := range current {
			if prev.Start >= newStart {
				seeded = append(seeded, prev)
			}
		}
		chunkStart = newStart
		chunkEnd = chunkStart + chunkDuration
		current = append(seeded, seg)
	}
	closeChunk()

	return chunks
}
