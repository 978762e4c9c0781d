package state

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipforge/clipforge/internal/models"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewWithClient(client, nil), mr
}

func TestInitializeWritesPendingRecord(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	store.Initialize(ctx, "job1", "https://example.com/v")

	raw, err := mr.Get(Key("job1"))
	require.NoError(t, err)

	var job models.Job
	require.NoError(t, json.Unmarshal([]byte(raw), &job))
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Equal(t, "START", job.CurrentStep)
	assert.Equal(t, "https://example.com/v", job.SourceURL)
}

func TestUpdateMergesPatchIntoRecord(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	store.Initialize(ctx, "job1", "url")
	store.Update(ctx, "job1", models.JobStatusProcessing, "transcribe", map[string]any{
		"segment_path": "/data/job1/segment_000.mp4",
	})
	store.Update(ctx, "job1", models.JobStatusProcessing, "analyse", map[string]any{
		"transcription_path": "/data/job1/transcription.json",
	})

	record := store.Get(ctx, "job1")
	require.NotNil(t, record)

	assert.Equal(t, "PROCESSING", record["status"])
	assert.Equal(t, "analyse", record["current_step"])
	// Fields written by earlier updates survive later ones.
	assert.Equal(t, "/data/job1/segment_000.mp4", record["segment_path"])
	assert.Equal(t, "/data/job1/transcription.json", record["transcription_path"])
	assert.Equal(t, "url", record["url"])
}

func TestUpdateUnknownJobDoesNotCreate(t *testing.T) {
	store, mr := newTestStore(t)

	store.Update(context.Background(), "ghost", models.JobStatusProcessing, "transcribe", nil)
	assert.False(t, mr.Exists(Key("ghost")))
}

func TestFailTruncatesErrorMessage(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	store.Initialize(ctx, "job1", "url")
	store.Fail(ctx, "job1", "transcribe_failed", strings.Repeat("e", 500))

	record := store.Get(ctx, "job1")
	require.NotNil(t, record)
	assert.Equal(t, "FAILED", record["status"])
	assert.Equal(t, "transcribe_failed", record["current_step"])
	assert.Len(t, record["error"], 200)
}

func TestIncrementIsAtomic(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	assert.Equal(t, int64(0), store.Counter(ctx, "job1", "segments_done"))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.Increment(ctx, "job1", "segments_done")
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(20), store.Counter(ctx, "job1", "segments_done"))
}

func TestClearCounters(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	store.Increment(ctx, "job1", "segments_done")
	store.Increment(ctx, "job1", "segments_failed")
	store.ClearCounters(ctx, "job1", "segments_done", "segments_failed")

	assert.Equal(t, int64(0), store.Counter(ctx, "job1", "segments_done"))
	assert.Equal(t, int64(0), store.Counter(ctx, "job1", "segments_failed"))
}

func TestGetMissingJob(t *testing.T) {
	store, _ := newTestStore(t)
	assert.Nil(t, store.Get(context.Background(), "nope"))
}

func TestDegradedStoreIsNoOp(t *testing.T) {
	store := NewWithClient(nil, nil)

	ctx := context.Background()
	assert.False(t, store.Available())
	store.Initialize(ctx, "job1", "url")
	store.Update(ctx, "job1", models.JobStatusProcessing, "x", nil)
	store.Fail(ctx, "job1", "x", "err")
	assert.Nil(t, store.Get(ctx, "job1"))
	assert.Equal(t, int64(0), store.Increment(ctx, "job1", "segments_done"))
	assert.Equal(t, int64(0), store.Counter(ctx, "job1", "segments_done"))
}
