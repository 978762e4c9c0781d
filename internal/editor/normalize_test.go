package editor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCanonicalObject(t *testing.T) {
	raw := []byte(`{"highlights": [
		{"start": 10, "end": 40, "summary": "goal", "score": 90},
		{"start": 100, "end": 130}
	]}`)
	hs, err := NormalizeHighlights(raw)
	require.NoError(t, err)
	require.Len(t, hs, 2)

	assert.Equal(t, 10.0, hs[0].Start)
	assert.Equal(t, 40.0, hs[0].End)
	assert.Equal(t, "goal", hs[0].Summary)
	require.NotNil(t, hs[0].Score)
	assert.Equal(t, 90.0, *hs[0].Score)
	assert.Nil(t, hs[1].Score)
}

func TestNormalizeBareList(t *testing.T) {
	raw := []byte(`[{"start": 5, "end": 25}, {"start": 50, "end": 75}]`)
	hs, err := NormalizeHighlights(raw)
	require.NoError(t, err)
	require.Len(t, hs, 2)
	assert.Equal(t, 50.0, hs[1].Start)
}

func TestNormalizeSingleDict(t *testing.T) {
	raw := []byte(`{"start": 12, "end": 34, "summary": "clutch"}`)
	hs, err := NormalizeHighlights(raw)
	require.NoError(t, err)
	require.Len(t, hs, 1)
	assert.Equal(t, 12.0, hs[0].Start)
	assert.Equal(t, 34.0, hs[0].End)
}

func TestNormalizeLegacySingleDict(t *testing.T) {
	raw := []byte(`{"highlight_inicio_segundos": 42, "highlight_fim_segundos": 80, "resposta_bruta": "raw"}`)
	hs, err := NormalizeHighlights(raw)
	require.NoError(t, err)
	require.Len(t, hs, 1)
	assert.Equal(t, 42.0, hs[0].Start)
	assert.Equal(t, 80.0, hs[0].End)
	assert.Equal(t, "raw", hs[0].Summary)
}

func TestNormalizeNumericStrings(t *testing.T) {
	raw := []byte(`{"start": "15.5", "end": "30", "score": "88"}`)
	hs, err := NormalizeHighlights(raw)
	require.NoError(t, err)
	require.Len(t, hs, 1)
	assert.Equal(t, 15.5, hs[0].Start)
	assert.Equal(t, 30.0, hs[0].End)
	require.NotNil(t, hs[0].Score)
	assert.Equal(t, 88.0, *hs[0].Score)
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	cases := [][]byte{
		[]byte(`"just a string"`),
		[]byte(`{"foo": "bar"}`),
		[]byte(`[{"start": "abc", "end": 5}]`),
		[]byte(`not json`),
	}
	for _, raw := range cases {
		_, err := NormalizeHighlights(raw)
		assert.Error(t, err, string(raw))
	}
}
