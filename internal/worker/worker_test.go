package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipforge/clipforge/internal/artifacts"
	"github.com/clipforge/clipforge/internal/broker"
	"github.com/clipforge/clipforge/internal/models"
	"github.com/clipforge/clipforge/internal/state"
)

type publishedMsg struct {
	queue string
	env   *broker.Envelope
}

// fakePublisher records envelopes instead of talking to a broker.
type fakePublisher struct {
	mu        sync.Mutex
	published []publishedMsg
	err       error
}

func (f *fakePublisher) Publish(_ context.Context, queue string, env *broker.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, publishedMsg{queue: queue, env: env})
	return nil
}

func (f *fakePublisher) toQueue(queue string) []*broker.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*broker.Envelope
	for _, m := range f.published {
		if m.queue == queue {
			out = append(out, m.env)
		}
	}
	return out
}

// fakeCollector returns scripted segment paths.
type fakeCollector struct {
	segments []string
	err      error
}

func (f *fakeCollector) Collect(context.Context, string, string, int, int) ([]string, error) {
	return f.segments, f.err
}

// fakeVideoRepo records terminal transitions.
type fakeVideoRepo struct {
	completed []string
	failed    []string
}

func (f *fakeVideoRepo) Create(context.Context, *models.Video) error { return nil }
func (f *fakeVideoRepo) GetByJobID(context.Context, string) (*models.Video, error) {
	return nil, nil
}
func (f *fakeVideoRepo) UpdateProgress(context.Context, string, string, int, string) error {
	return nil
}
func (f *fakeVideoRepo) MarkCompleted(_ context.Context, jobID, _, _, _ string) error {
	f.completed = append(f.completed, jobID)
	return nil
}
func (f *fakeVideoRepo) MarkFailed(_ context.Context, jobID, _ string) error {
	f.failed = append(f.failed, jobID)
	return nil
}

func newTestStore(t *testing.T) *state.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return state.NewWithClient(client, nil)
}

func newTestWorker(t *testing.T, pub *fakePublisher, store *state.Store, collector StreamCollector) *Worker {
	t.Helper()
	layout := artifacts.NewLayout(t.TempDir())
	return New(pub, store, nil, layout, collector, nil, nil, nil, nil)
}

func collectEnvelope(t *testing.T, jobID, streamURL string) *broker.Envelope {
	t.Helper()
	env, err := broker.NewEnvelope(jobID, "collect", broker.CollectPayload{
		StreamURL:       streamURL,
		SegmentDuration: 30,
		MaxDuration:     120,
	})
	require.NoError(t, err)
	return env
}

func TestHandleCollectFansOut(t *testing.T) {
	store := newTestStore(t)
	pub := &fakePublisher{}
	collector := &fakeCollector{segments: []string{
		"/data/parent/segments/segment_000.mp4",
		"/data/parent/segments/segment_001.mp4",
		"/data/parent/segments/segment_002.mp4",
		"/data/parent/segments/segment_003.mp4",
	}}
	w := newTestWorker(t, pub, store, collector)

	ctx := context.Background()
	store.Initialize(ctx, "parent", "rtmp://live/stream")
	store.Update(ctx, "parent", models.JobStatusPending, "collect", map[string]any{
		"max_highlights":    3,
		"include_subtitles": true,
	})

	err := w.HandleCollect(ctx, collectEnvelope(t, "parent", "rtmp://live/stream"))
	require.NoError(t, err)

	msgs := pub.toQueue(broker.TranscribeQueue)
	require.Len(t, msgs, 4)
	for i, env := range msgs {
		assert.Equal(t, fmt.Sprintf("parent_seg%03d", i), env.JobID)

		var payload broker.TranscribePayload
		require.NoError(t, env.DecodePayload(&payload))
		assert.Equal(t, "parent", payload.ParentJobID)
		assert.Equal(t, i, payload.SegmentIndex)
		assert.Equal(t, 4, payload.TotalSegments)
		assert.Equal(t, collector.segments[i], payload.SegmentPath)
	}

	// Every child carries the parent link and the inherited options.
	child := store.Get(ctx, "parent_seg002")
	require.NotNil(t, child)
	assert.Equal(t, "parent", child["parent_job_id"])
	assert.Equal(t, float64(3), child["max_highlights"])
	assert.Equal(t, true, child["include_subtitles"])
	assert.Equal(t, "transcribe", child["current_step"])

	parent := store.Get(ctx, "parent")
	require.NotNil(t, parent)
	assert.Equal(t, "PROCESSING", parent["status"])
	assert.Equal(t, "transcribe", parent["current_step"])
	assert.Equal(t, float64(4), parent["segments_published"])
}

func TestHandleCollectNoSegmentsFailsJob(t *testing.T) {
	store := newTestStore(t)
	pub := &fakePublisher{}
	w := newTestWorker(t, pub, store, &fakeCollector{segments: nil})

	ctx := context.Background()
	store.Initialize(ctx, "parent", "rtmp://live/stream")

	err := w.HandleCollect(ctx, collectEnvelope(t, "parent", "rtmp://live/stream"))
	require.Error(t, err)

	record := store.Get(ctx, "parent")
	require.NotNil(t, record)
	assert.Equal(t, "FAILED", record["status"])
	assert.Equal(t, "collect_no_segments", record["current_step"])
	assert.Empty(t, pub.toQueue(broker.TranscribeQueue))
}

func TestHandleCollectCaptureError(t *testing.T) {
	store := newTestStore(t)
	w := newTestWorker(t, &fakePublisher{}, store, &fakeCollector{err: fmt.Errorf("yt-dlp exited 1")})

	ctx := context.Background()
	store.Initialize(ctx, "parent", "rtmp://live/stream")

	err := w.HandleCollect(ctx, collectEnvelope(t, "parent", "rtmp://live/stream"))
	require.Error(t, err)
	assert.Equal(t, "collect_failed", store.Get(ctx, "parent")["current_step"])
}

func TestHandleCollectMissingStreamURL(t *testing.T) {
	w := newTestWorker(t, &fakePublisher{}, newTestStore(t), &fakeCollector{})

	env, err := broker.NewEnvelope("parent", "collect", broker.CollectPayload{})
	require.NoError(t, err)
	assert.Error(t, w.HandleCollect(context.Background(), env))
}

func TestFailNotifiesParentForSubJob(t *testing.T) {
	store := newTestStore(t)
	pub := &fakePublisher{}
	w := newTestWorker(t, pub, store, &fakeCollector{})

	ctx := context.Background()
	store.Initialize(ctx, "parent_seg001", "rtmp://live/stream")
	store.Update(ctx, "parent_seg001", models.JobStatusProcessing, "transcribe", map[string]any{
		"parent_job_id": "parent",
	})

	w.fail(ctx, "parent_seg001", "transcribe_failed", fmt.Errorf("whisper crashed"))

	record := store.Get(ctx, "parent_seg001")
	assert.Equal(t, "FAILED", record["status"])

	msgs := pub.toQueue(broker.CompletedQueue)
	require.Len(t, msgs, 1)
	var payload broker.CompletedPayload
	require.NoError(t, msgs[0].DecodePayload(&payload))
	assert.True(t, payload.Failed)
	assert.Equal(t, "parent", payload.ParentJobID)
}

func TestFailStandaloneJobPublishesNothing(t *testing.T) {
	store := newTestStore(t)
	pub := &fakePublisher{}
	w := newTestWorker(t, pub, store, &fakeCollector{})

	ctx := context.Background()
	store.Initialize(ctx, "job1", "https://example.com/v")
	w.fail(ctx, "job1", "edit_failed", fmt.Errorf("ffmpeg exited 1"))

	assert.Empty(t, pub.toQueue(broker.CompletedQueue))
}

func TestAwaitArtifactImmediateHit(t *testing.T) {
	store := newTestStore(t)
	w := newTestWorker(t, &fakePublisher{}, store, &fakeCollector{})

	dir, err := w.layout.EnsureJobDir("job1")
	require.NoError(t, err)
	path := filepath.Join(dir, "transcription.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

	got, err := w.awaitArtifact(context.Background(), "job1", path)
	require.NoError(t, err)
	assert.Equal(t, path, got)
}

func TestAwaitArtifactBasenameFallback(t *testing.T) {
	store := newTestStore(t)
	w := newTestWorker(t, &fakePublisher{}, store, &fakeCollector{})

	dir, err := w.layout.EnsureJobDir("job1")
	require.NoError(t, err)
	actual := filepath.Join(dir, "segments", "segment_000.mp4")
	require.NoError(t, os.MkdirAll(filepath.Dir(actual), 0o755))
	require.NoError(t, os.WriteFile(actual, []byte("x"), 0o644))

	// The expected path points somewhere else entirely; the basename search
	// under the job tree still resolves it.
	expected := filepath.Join("/mnt/other", "segment_000.mp4")
	got, err := w.awaitArtifact(context.Background(), "job1", expected)
	require.NoError(t, err)
	assert.Equal(t, actual, got)
}

func TestAwaitArtifactMissing(t *testing.T) {
	store := newTestStore(t)
	w := newTestWorker(t, &fakePublisher{}, store, &fakeCollector{})
	_, err := w.layout.EnsureJobDir("job1")
	require.NoError(t, err)

	_, err = w.awaitArtifact(context.Background(), "job1", filepath.Join(w.layout.JobDir("job1"), "never.json"))
	assert.Error(t, err)
}
