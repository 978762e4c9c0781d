package broker

import (
	"encoding/json"
	"fmt"
)

// Envelope is the message schema shared by every queue:
// {job_id, step, payload}. Step names the stage about to consume the
// message; the payload shape is stage-specific.
type Envelope struct {
	JobID   string          `json:"job_id"`
	Step    string          `json:"step"`
	Payload json.RawMessage `json:"payload"`
}

// NewEnvelope builds an envelope for jobID with a marshaled payload.
func NewEnvelope(jobID, step string, payload any) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling payload: %w", err)
	}
	return &Envelope{JobID: jobID, Step: step, Payload: raw}, nil
}

// DecodePayload unmarshals the stage-specific payload into dst.
func (e *Envelope) DecodePayload(dst any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("envelope for job %s has no payload", e.JobID)
	}
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("decoding %s payload: %w", e.Step, err)
	}
	return nil
}

// ParseEnvelope decodes a raw message body. A failure here means the message
// is malformed and must be parked in the DLQ without touching job state.
func ParseEnvelope(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("parsing envelope: %w", err)
	}
	if env.JobID == "" {
		return nil, fmt.Errorf("envelope missing job_id")
	}
	return &env, nil
}

// Stage payloads.

// CollectPayload starts a stream fan-out.
type CollectPayload struct {
	StreamURL       string `json:"stream_url"`
	SegmentDuration int    `json:"segment_duration,omitempty"`
	MaxDuration     int    `json:"max_duration,omitempty"`
}

// TranscribePayload carries either a source URL (recorded branch) or a
// segment path (stream branch).
type TranscribePayload struct {
	URL           string `json:"url,omitempty"`
	SegmentPath   string `json:"segment_path,omitempty"`
	SegmentIndex  int    `json:"segment_index,omitempty"`
	TotalSegments int    `json:"total_segments,omitempty"`
	ParentJobID   string `json:"parent_job_id,omitempty"`
}

// AnalysePayload points the analyst at a persisted transcript.
type AnalysePayload struct {
	TranscriptionPath string `json:"transcription_path"`
	VideoPath         string `json:"video_path"`
}

// EditPayload points the editor at the analyst's output.
type EditPayload struct {
	HighlightPath string `json:"highlight_path"`
	VideoPath     string `json:"video_path"`
}

// CompletedPayload reports a finished job downstream.
type CompletedPayload struct {
	FinalVideoPath    string   `json:"final_video_path"`
	OriginalVideoPath string   `json:"original_video_path"`
	HighlightJSONPath string   `json:"highlight_json_path"`
	ClipsPaths        []string `json:"clips_paths"`
	ParentJobID       string   `json:"parent_job_id,omitempty"`
	Failed            bool     `json:"failed,omitempty"`
}
