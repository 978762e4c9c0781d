package media

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipforge/clipforge/internal/models"
)

// fakeFrameExtractor records the requested thumbnail path.
type fakeFrameExtractor struct {
	outputPath string
	offset     float64
	err        error
}

func (f *fakeFrameExtractor) Thumbnail(_ context.Context, _ string, offset float64, outputPath string) error {
	f.offset = offset
	f.outputPath = outputPath
	return f.err
}

func TestScreenwriterSidecarPaths(t *testing.T) {
	dir := t.TempDir()
	extractor := &fakeFrameExtractor{}
	sw := NewScreenwriter(extractor, nil)

	clipPath := filepath.Join(dir, "clip_01_inicio_10s_duracao_30s.mp4")
	segments := []models.TranscriptSegment{{Start: 0, End: 5, Text: "hello"}}

	out := sw.Write(context.Background(), clipPath, segments, 30)

	base := filepath.Join(dir, "clip_01_inicio_10s_duracao_30s")
	assert.Equal(t, base+".srt", out.SRT)
	assert.Equal(t, base+".vtt", out.VTT)
	assert.Equal(t, base+"_thumb.jpg", out.Thumbnail)
	assert.Equal(t, out.Thumbnail, extractor.outputPath)
	assert.Equal(t, 15.0, extractor.offset, "thumbnail comes from the clip middle")
	require.FileExists(t, out.SRT)
	require.FileExists(t, out.VTT)
}

func TestScreenwriterThumbnailFailureTolerated(t *testing.T) {
	dir := t.TempDir()
	extractor := &fakeFrameExtractor{err: context.DeadlineExceeded}
	sw := NewScreenwriter(extractor, nil)

	out := sw.Write(context.Background(), filepath.Join(dir, "clip.mp4"), nil, 10)
	assert.Empty(t, out.Thumbnail)
	assert.NotEmpty(t, out.SRT)
}

func TestClipBasename(t *testing.T) {
	assert.Equal(t, "clip_01_inicio_10s_duracao_30s.mp4", ClipBasename(1, 10, 30, false))
	assert.Equal(t, "clip_02_inicio_100s_duracao_60s.mp4", ClipBasename(2, 100, 60, false))
	assert.Equal(t, "clip_03_inicio_5s_duracao_5s_with_subs.mp4", ClipBasename(3, 5, 5, true))
	// Fractional seconds truncate.
	assert.Equal(t, "clip_01_inicio_12s_duracao_7s.mp4", ClipBasename(1, 12.9, 7.4, false))
	// Two-digit padding stops at 99 but larger ordinals still format.
	assert.Equal(t, "clip_100_inicio_0s_duracao_1s.mp4", ClipBasename(100, 0, 1, false))
}

func TestClampSegmentDuration(t *testing.T) {
	assert.Equal(t, DefaultSegmentSeconds, ClampSegmentDuration(0))
	assert.Equal(t, MinSegmentSeconds, ClampSegmentDuration(3))
	assert.Equal(t, MaxSegmentSeconds, ClampSegmentDuration(10000))
	assert.Equal(t, 45, ClampSegmentDuration(45))
}

func TestClampCaptureDuration(t *testing.T) {
	assert.Equal(t, DefaultCaptureSeconds, ClampCaptureDuration(0))
	assert.Equal(t, MinCaptureSeconds, ClampCaptureDuration(5))
	assert.Equal(t, MaxCaptureSeconds, ClampCaptureDuration(100000))
	assert.Equal(t, 600, ClampCaptureDuration(600))
}
