package artifacts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayoutPaths(t *testing.T) {
	l := NewLayout("/data")

	assert.Equal(t, filepath.Join("/data", "job1"), l.JobDir("job1"))
	assert.Equal(t, filepath.Join("/data", "job1", "temp_video.mp4"), l.VideoPath("job1", ""))
	assert.Equal(t, filepath.Join("/data", "job1", "temp_video.webm"), l.VideoPath("job1", "webm"))
	assert.Equal(t, filepath.Join("/data", "job1", "temp_video.mkv"), l.VideoPath("job1", ".mkv"))
	assert.Equal(t, filepath.Join("/data", "job1", "segments", "segment_007.mp4"), l.SegmentPath("job1", 7, "mp4"))
	assert.Equal(t, filepath.Join("/data", "job1", "transcription.json"), l.TranscriptPath("job1"))
	assert.Equal(t, filepath.Join("/data", "job1", "highlights.json"), l.HighlightsPath("job1"))
	assert.Equal(t, filepath.Join("/data", "job1", "clips"), l.ClipsDir("job1"))
}

func TestEnsureJobDir(t *testing.T) {
	l := NewLayout(t.TempDir())

	dir, err := l.EnsureJobDir("job1")
	require.NoError(t, err)
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// Idempotent.
	_, err = l.EnsureJobDir("job1")
	assert.NoError(t, err)
}

func TestCleanupTempRetainsDeliverables(t *testing.T) {
	l := NewLayout(t.TempDir())
	dir, err := l.EnsureJobDir("job1")
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(l.SegmentsDir("job1"), 0o755))
	require.NoError(t, os.MkdirAll(l.ClipsDir("job1"), 0o755))
	for _, name := range []string{
		"temp_video.mp4",
		"temp_video.part",
		"transcription.json",
		"highlights.json",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.WriteFile(l.SegmentPath("job1", 0, "mp4"), []byte("x"), 0o644))

	require.NoError(t, l.CleanupTemp("job1"))

	assert.NoFileExists(t, filepath.Join(dir, "temp_video.mp4"))
	assert.NoFileExists(t, filepath.Join(dir, "temp_video.part"))
	assert.NoDirExists(t, l.SegmentsDir("job1"))

	assert.FileExists(t, l.TranscriptPath("job1"))
	assert.FileExists(t, l.HighlightsPath("job1"))
	assert.DirExists(t, l.ClipsDir("job1"))
}

func TestCleanupTempMissingJobDir(t *testing.T) {
	l := NewLayout(t.TempDir())
	assert.NoError(t, l.CleanupTemp("never-created"))
}

func TestFindByBasename(t *testing.T) {
	l := NewLayout(t.TempDir())
	_, err := l.EnsureJobDir("job1")
	require.NoError(t, err)

	nested := filepath.Join(l.JobDir("job1"), "segments")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	want := filepath.Join(nested, "segment_002.mp4")
	require.NoError(t, os.WriteFile(want, []byte("x"), 0o644))

	got, ok := l.FindByBasename("job1", "segment_002.mp4")
	require.True(t, ok)
	assert.Equal(t, want, got)

	_, ok = l.FindByBasename("job1", "missing.mp4")
	assert.False(t, ok)
}

func TestRemove(t *testing.T) {
	l := NewLayout(t.TempDir())
	dir, err := l.EnsureJobDir("job1")
	require.NoError(t, err)

	require.NoError(t, l.Remove("job1"))
	assert.NoDirExists(t, dir)
}
