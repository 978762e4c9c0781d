package analyst

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipforge/clipforge/internal/models"
)

// makeSegments generates n evenly spaced segments covering [0, total)
// seconds.
func makeSegments(n int, total float64) []models.TranscriptSegment {
	segs := make([]models.TranscriptSegment, n)
	step := total / float64(n)
	for i := range segs {
		segs[i] = models.TranscriptSegment{
			Start: float64(i) * step,
			End:   float64(i+1) * step,
			Text:  fmt.Sprintf("segment %d", i),
		}
	}
	return segs
}

func TestBuildChunksLongTranscript(t *testing.T) {
	// 500 segments over 3600s with 360s chunks and 30s overlap. Window i
	// opens at 330*i, so the last window opening below 3600 is number 10:
	// eleven chunks total.
	transcript := &models.Transcript{
		Segments: makeSegments(500, 3600),
		Duration: 3600,
	}

	chunks := BuildChunks(transcript, 360, 30)
	require.Len(t, chunks, 11)

	assert.Equal(t, 0.0, chunks[0].Start)
	assert.Equal(t, 360.0, chunks[0].End)
	for i := 1; i < len(chunks); i++ {
		assert.InDelta(t, chunks[i-1].End-30, chunks[i].Start, 1e-9,
			"chunk %d must open 30s before the previous end", i)
		assert.InDelta(t, chunks[i].Start+360, chunks[i].End, 1e-9)
	}
}

func TestBuildChunksOverlapSeeding(t *testing.T) {
	segs := []models.TranscriptSegment{
		{Start: 0, End: 50, Text: "a"},
		{Start: 80, End: 95, Text: "b"},  // inside the overlap tail
		{Start: 110, End: 130, Text: "c"}, // first segment of the next window
	}
	chunks := BuildChunks(&models.Transcript{Segments: segs}, 100, 30)
	require.Len(t, chunks, 2)

	assert.Equal(t, []models.TranscriptSegment{segs[0], segs[1]}, chunks[0].Segments)

	// The second window opens at 100-30=70; segment b (start 80) is seeded
	// into it, segment a (start 0) is not.
	assert.Equal(t, 70.0, chunks[1].Start)
	assert.Equal(t, 170.0, chunks[1].End)
	assert.Equal(t, []models.TranscriptSegment{segs[1], segs[2]}, chunks[1].Segments)
}

func TestBuildChunksSingleWindow(t *testing.T) {
	segs := makeSegments(10, 300)
	chunks := BuildChunks(&models.Transcript{Segments: segs}, 360, 30)
	require.Len(t, chunks, 1)
	assert.Len(t, chunks[0].Segments, 10)
}

func TestBuildChunksWholeTextFallback(t *testing.T) {
	transcript := &models.Transcript{
		Text:     "no segments but plenty of text",
		Duration: 120,
	}
	chunks := BuildChunks(transcript, 360, 30)
	require.Len(t, chunks, 1)
	assert.Equal(t, 0.0, chunks[0].Start)
	assert.Equal(t, 120.0, chunks[0].End)
	assert.Equal(t, transcript.Text, chunks[0].Text())
}

func TestBuildChunksEmptyTranscript(t *testing.T) {
	assert.Nil(t, BuildChunks(&models.Transcript{}, 360, 30))
}

func TestChunkText(t *testing.T) {
	c := Chunk{Segments: []models.TranscriptSegment{
		{Text: " hello "},
		{Text: ""},
		{Text: "world"},
	}}
	assert.Equal(t, "hello world", c.Text())
}
