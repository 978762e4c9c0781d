package analyst

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/llm"
	"github.com/clipforge/clipforge/internal/models"
)

// fakeClient scripts the model's replies. Each call pops the next response;
// a nil entry produces the configured error.
type fakeClient struct {
	responses []string
	err       error
	failOn    map[int]bool
	calls     int
	prompts   []string
}

func (f *fakeClient) Generate(_ context.Context, prompt string) (*llm.Response, error) {
	idx := f.calls
	f.calls++
	f.prompts = append(f.prompts, prompt)

	if f.failOn[idx] || (f.err != nil && len(f.responses) == 0) {
		return nil, f.err
	}
	resp := f.responses[idx%len(f.responses)]
	return &llm.Response{Text: resp, FinishReason: "STOP"}, nil
}

func testConfig() config.AnalystConfig {
	return config.AnalystConfig{
		ChunkDuration:   360,
		ChunkOverlap:    30,
		DirectThreshold: 20000,
		MaxHighlights:   5,
	}
}

func highlightsJSON(hs ...models.Highlight) string {
	var parts []string
	for _, h := range hs {
		s := fmt.Sprintf(`{"start": %g, "end": %g`, h.Start, h.End)
		if h.Score != nil {
			s += fmt.Sprintf(`, "score": %g`, *h.Score)
		}
		parts = append(parts, s+"}")
	}
	return `{"highlights": [` + strings.Join(parts, ",") + `]}`
}

func TestAnalyseDirectPathAtThreshold(t *testing.T) {
	client := &fakeClient{responses: []string{
		highlightsJSON(hl(10, 40, score(80)), hl(100, 130, score(70))),
	}}
	a := New(client, testConfig(), nil)

	transcript := &models.Transcript{
		Text:     strings.Repeat("x", 20000),
		Segments: makeSegments(40, 300),
	}
	set, err := a.Analyse(context.Background(), transcript, 3)
	require.NoError(t, err)

	assert.Equal(t, 1, client.calls, "exactly one call on the direct path")
	assert.Len(t, set.Highlights, 2)
}

func TestAnalyseChunkedPathOverThreshold(t *testing.T) {
	client := &fakeClient{responses: []string{
		highlightsJSON(), // in-range checks filter everything not anchored per chunk
	}}
	a := New(client, testConfig(), nil)

	transcript := &models.Transcript{
		Text:     strings.Repeat("x", 20001),
		Segments: makeSegments(500, 3600),
		Duration: 3600,
	}
	_, err := a.Analyse(context.Background(), transcript, 3)
	require.Error(t, err, "empty chunks yield no candidates")
	assert.Equal(t, 11, client.calls, "one call per chunk")
}

func TestAnalyseChunkFailureTolerated(t *testing.T) {
	// Chunk 0 fails, chunk 1 returns one valid in-range highlight; the job
	// must still succeed.
	client := &fakeClient{
		err:    fmt.Errorf("model unavailable"),
		failOn: map[int]bool{0: true},
		responses: []string{
			highlightsJSON(), // consumed by the failing call, never returned
			highlightsJSON(hl(340, 370, score(90))),
		},
	}
	cfg := testConfig()
	a := New(client, cfg, nil)

	transcript := &models.Transcript{
		Text:     strings.Repeat("x", 25000),
		Segments: makeSegments(100, 600), // two chunks: [0,360] and [330,690]
		Duration: 600,
	}
	set, err := a.Analyse(context.Background(), transcript, 5)
	require.NoError(t, err)
	require.NotEmpty(t, set.Highlights)
}

func TestAnalyseAllChunksFailing(t *testing.T) {
	client := &fakeClient{
		err:    llm.ErrSafetyBlocked,
		failOn: map[int]bool{0: true, 1: true, 2: true},
	}
	a := New(client, testConfig(), nil)

	transcript := &models.Transcript{
		Text:     strings.Repeat("x", 25000),
		Segments: makeSegments(100, 700),
		Duration: 700,
	}
	_, err := a.Analyse(context.Background(), transcript, 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, llm.ErrSafetyBlocked)
}

func TestAnalyseOutOfRangeHighlightDiscarded(t *testing.T) {
	// One chunk covering [0,360]. The model returns one in-range highlight,
	// one past the +5s tolerance and one before the chunk start.
	client := &fakeClient{responses: []string{
		highlightsJSON(
			hl(10, 40, score(80)),
			hl(350, 380, score(95)), // end > 360+5
			hl(-5, 20, score(90)),   // invalid interval start
		),
	}}
	a := New(client, testConfig(), nil)

	transcript := &models.Transcript{
		Text:     strings.Repeat("x", 20001),
		Segments: makeSegments(40, 300),
		Duration: 300,
	}
	set, err := a.Analyse(context.Background(), transcript, 5)
	require.NoError(t, err)
	require.Len(t, set.Highlights, 1)
	assert.Equal(t, 10.0, set.Highlights[0].Start)
}

func TestAnalyseToleranceAbsorbsRounding(t *testing.T) {
	client := &fakeClient{responses: []string{
		highlightsJSON(hl(330, 364, score(80))), // end inside the +5s tolerance
	}}
	a := New(client, testConfig(), nil)

	transcript := &models.Transcript{
		Text:     strings.Repeat("x", 20001),
		Segments: makeSegments(40, 300),
		Duration: 300,
	}
	set, err := a.Analyse(context.Background(), transcript, 5)
	require.NoError(t, err)
	assert.Len(t, set.Highlights, 1)
}

func TestAnalyseDirectPathError(t *testing.T) {
	client := &fakeClient{err: llm.ErrMaxTokens}
	a := New(client, testConfig(), nil)

	transcript := &models.Transcript{Text: "short", Segments: makeSegments(5, 60)}
	_, err := a.Analyse(context.Background(), transcript, 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, llm.ErrMaxTokens)
}

func TestParseHighlightsShapes(t *testing.T) {
	object := `{"highlights": [{"start": 1, "end": 2}]}`
	list := `[{"start": 1, "end": 2}]`
	fenced := "```json\n" + object + "\n```"

	for _, raw := range []string{object, list, fenced} {
		hs, err := parseHighlights(raw)
		require.NoError(t, err, raw)
		require.Len(t, hs, 1)
		assert.Equal(t, 1.0, hs[0].Start)
	}

	_, err := parseHighlights("not json at all")
	assert.Error(t, err)
}
