// Package models defines the core data types shared across the pipeline.
package models

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// JobStatus represents the lifecycle state of a job.
type JobStatus string

// Job lifecycle states. PENDING and PROCESSING are transient; COMPLETED and
// FAILED are terminal.
const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

// IsTerminal reports whether the status admits no further transitions.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// JobKind distinguishes recorded inputs from live streams. Streams get a
// collect stage that fans the job out into per-segment sub-jobs.
type JobKind string

const (
	JobKindRecorded JobKind = "recorded"
	JobKindStream   JobKind = "stream"
)

// Job is the unit of work moving through the pipeline. The broker delivery is
// the authoritative lease on a job's next step; this record is the advisory
// view kept in the state store.
type Job struct {
	ID          string    `json:"job_id"`
	SourceURL   string    `json:"url"`
	Kind        JobKind   `json:"kind,omitempty"`
	Status      JobStatus `json:"status"`
	CurrentStep string    `json:"current_step"`
	CreatedAt   time.Time `json:"created_at"`

	ProgressStage   string `json:"progress_stage,omitempty"`
	ProgressPercent int    `json:"progress,omitempty"`
	ProgressMessage string `json:"progress_message,omitempty"`

	// Set only on per-segment sub-jobs of a stream fan-out.
	ParentJobID   string `json:"parent_job_id,omitempty"`
	SegmentIndex  int    `json:"segment_index,omitempty"`
	TotalSegments int    `json:"total_segments,omitempty"`
	SegmentPath   string `json:"segment_path,omitempty"`

	// Set on stream parents after the collector fans out.
	SegmentsPublished int `json:"segments_published,omitempty"`

	OutputPath    string `json:"output_path,omitempty"`
	Title         string `json:"title,omitempty"`
	ThumbnailPath string `json:"thumbnail_path,omitempty"`

	MaxHighlights    int    `json:"max_highlights,omitempty"`
	IncludeSubtitles bool   `json:"include_subtitles,omitempty"`
	SubtitleStyle    string `json:"subtitle_style,omitempty"`

	Error string `json:"error,omitempty"`
}

// NewJobID generates a fresh URL-safe job identifier.
func NewJobID() string {
	return strings.ToLower(ulid.MustNew(ulid.Now(), rand.Reader).String())
}

// ChildJobID derives the id of the idx-th per-segment sub-job of parent.
// The zero-padded suffix keeps lexical and segment order aligned.
func ChildJobID(parent string, idx int) string {
	return fmt.Sprintf("%s_seg%03d", parent, idx)
}

// ClampMaxHighlights bounds a caller-supplied highlight cap to [1,20],
// applying the default when unset.
func ClampMaxHighlights(n int) int {
	const def, max = 5, 20
	if n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
