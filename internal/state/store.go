// Package state keeps the advisory per-job record in Redis. The pipeline's
// correctness never depends on it: on store unavailability workers log and
// continue.
package state

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clipforge/clipforge/internal/models"
)

const opTimeout = 2 * time.Second

// Store is a Redis-backed job state store keyed by job:<job_id>. Updates are
// read-modify-write without CAS; at most one worker holds the lease on a
// given job's stage, so last-writer-wins is safe.
type Store struct {
	client *redis.Client
	logger *slog.Logger
}

// New connects to Redis at the given URL, retrying a few times before giving
// up. A nil client is returned inside a usable Store: every operation then
// degrades to a logged no-op.
func New(redisURL string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	const retries = 5
	const delay = 2 * time.Second

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Error("invalid redis url, state persistence disabled",
			slog.String("error", err.Error()))
		return &Store{logger: logger}
	}

	for attempt := 1; attempt <= retries; attempt++ {
		client := redis.NewClient(opts)
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		err := client.Ping(ctx).Err()
		cancel()
		if err == nil {
			logger.Info("connected to state store", slog.String("addr", opts.Addr))
			return &Store{client: client, logger: logger}
		}
		_ = client.Close()
		logger.Warn("state store connection failed",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", retries),
			slog.String("error", err.Error()),
		)
		if attempt < retries {
			time.Sleep(delay)
		}
	}

	logger.Error("state store unreachable, state persistence disabled")
	return &Store{logger: logger}
}

// NewWithClient wraps an existing client. Used by tests with miniredis.
func NewWithClient(client *redis.Client, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{client: client, logger: logger}
}

// Available reports whether the store has a live connection.
func (s *Store) Available() bool { return s.client != nil }

// Key returns the Redis key for a job id.
func Key(jobID string) string { return "job:" + jobID }

// CounterKey returns the Redis key for one of a job's counters. Counters live
// outside the JSON record because several workers increment them
// concurrently; folding them through the read-modify-write record merge would
// lose updates.
func CounterKey(jobID, counter string) string { return "job:" + jobID + ":" + counter }

// Initialize writes a fresh PENDING record for the job.
func (s *Store) Initialize(ctx context.Context, jobID, url string) {
	if s.client == nil {
		s.logger.Warn("state store unavailable, job not initialized", slog.String("job_id", jobID))
		return
	}
	job := models.Job{
		ID:          jobID,
		SourceURL:   url,
		Status:      models.JobStatusPending,
		CurrentStep: "START",
		CreatedAt:   time.Now().UTC(),
	}
	s.write(ctx, jobID, &job)
}

// Update merges a status/step transition plus an optional patch into the
// stored record. An unknown job id is a logged warning, never an error.
func (s *Store) Update(ctx context.Context, jobID string, status models.JobStatus, step string, patch map[string]any) {
	if s.client == nil {
		s.logger.Warn("state store unavailable, update skipped", slog.String("job_id", jobID))
		return
	}

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	raw, err := s.client.Get(opCtx, Key(jobID)).Bytes()
	if err == redis.Nil {
		s.logger.Warn("update for unknown job", slog.String("job_id", jobID))
		return
	}
	if err != nil {
		s.logger.Warn("state store read failed",
			slog.String("job_id", jobID), slog.String("error", err.Error()))
		return
	}

	// The record is merged as a generic map so stage-specific fields set by
	// other workers survive the round trip.
	var record map[string]any
	if err := json.Unmarshal(raw, &record); err != nil {
		s.logger.Warn("corrupt job record, rewriting",
			slog.String("job_id", jobID), slog.String("error", err.Error()))
		record = map[string]any{"job_id": jobID}
	}
	record["status"] = string(status)
	record["current_step"] = step
	for k, v := range patch {
		record[k] = v
	}

	data, err := json.Marshal(record)
	if err != nil {
		s.logger.Warn("marshaling job record failed",
			slog.String("job_id", jobID), slog.String("error", err.Error()))
		return
	}
	if err := s.client.Set(opCtx, Key(jobID), data, 0).Err(); err != nil {
		s.logger.Warn("state store write failed",
			slog.String("job_id", jobID), slog.String("error", err.Error()))
		return
	}
	s.logger.Debug("job state updated",
		slog.String("job_id", jobID),
		slog.String("status", string(status)),
		slog.String("step", step),
	)
}

// Get returns the stored record, or nil when absent or the store is down.
func (s *Store) Get(ctx context.Context, jobID string) map[string]any {
	if s.client == nil {
		return nil
	}
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	raw, err := s.client.Get(opCtx, Key(jobID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn("state store read failed",
				slog.String("job_id", jobID), slog.String("error", err.Error()))
		}
		return nil
	}
	var record map[string]any
	if err := json.Unmarshal(raw, &record); err != nil {
		s.logger.Warn("corrupt job record",
			slog.String("job_id", jobID), slog.String("error", err.Error()))
		return nil
	}
	return record
}

func (s *Store) write(ctx context.Context, jobID string, job *models.Job) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	data, err := json.Marshal(job)
	if err != nil {
		s.logger.Warn("marshaling job failed",
			slog.String("job_id", jobID), slog.String("error", err.Error()))
		return
	}
	if err := s.client.Set(opCtx, Key(jobID), data, 0).Err(); err != nil {
		s.logger.Warn("state store write failed",
			slog.String("job_id", jobID), slog.String("error", err.Error()))
		return
	}
	s.logger.Info("job initialized", slog.String("job_id", jobID),
		slog.String("status", string(job.Status)))
}

// Increment atomically adds one to a job counter and returns the new value.
// Safe against concurrent increments from competing workers.
func (s *Store) Increment(ctx context.Context, jobID, counter string) int64 {
	if s.client == nil {
		s.logger.Warn("state store unavailable, increment skipped",
			slog.String("job_id", jobID), slog.String("counter", counter))
		return 0
	}
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	n, err := s.client.Incr(opCtx, CounterKey(jobID, counter)).Result()
	if err != nil {
		s.logger.Warn("counter increment failed",
			slog.String("job_id", jobID),
			slog.String("counter", counter),
			slog.String("error", err.Error()),
		)
		return 0
	}
	return n
}

// Counter reads a job counter. Absent counters read as zero.
func (s *Store) Counter(ctx context.Context, jobID, counter string) int64 {
	if s.client == nil {
		return 0
	}
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	n, err := s.client.Get(opCtx, CounterKey(jobID, counter)).Int64()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn("counter read failed",
				slog.String("job_id", jobID),
				slog.String("counter", counter),
				slog.String("error", err.Error()),
			)
		}
		return 0
	}
	return n
}

// ClearCounters deletes a job's counters once they are folded into the
// record.
func (s *Store) ClearCounters(ctx context.Context, jobID string, counters ...string) {
	if s.client == nil || len(counters) == 0 {
		return
	}
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	keys := make([]string, len(counters))
	for i, c := range counters {
		keys[i] = CounterKey(jobID, c)
	}
	if err := s.client.Del(opCtx, keys...).Err(); err != nil {
		s.logger.Warn("counter cleanup failed",
			slog.String("job_id", jobID), slog.String("error", err.Error()))
	}
}

// Fail is a convenience for the common failure transition: status FAILED,
// terminal step recorded, error message carried into the record.
func (s *Store) Fail(ctx context.Context, jobID, step, errMsg string) {
	if len(errMsg) > 200 {
		errMsg = errMsg[:200]
	}
	s.Update(ctx, jobID, models.JobStatusFailed, step, map[string]any{"error": errMsg})
}
