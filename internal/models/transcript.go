package models

// TranscriptSegment is a single timed span of recognized speech.
type TranscriptSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcript is the output of the ASR stage, persisted as
// transcription.json in the job's artifact directory.
type Transcript struct {
	Text     string              `json:"text"`
	Language string              `json:"language,omitempty"`
	Duration float64             `json:"duration,omitempty"`
	Segments []TranscriptSegment `json:"segments"`
}

// Highlight is a [start, end] interval in seconds selected by the analyst,
// intended to become one output clip.
type Highlight struct {
	Start   float64  `json:"start"`
	End     float64  `json:"end"`
	Summary string   `json:"summary,omitempty"`
	Score   *float64 `json:"score,omitempty"`
}

// Duration returns the highlight length in seconds.
func (h Highlight) Duration() float64 {
	return h.End - h.Start
}

// Valid reports whether the interval is well formed.
func (h Highlight) Valid() bool {
	return h.Start >= 0 && h.Start < h.End
}

// HighlightSet is the analyst's output document, persisted as
// highlights.json.
type HighlightSet struct {
	Highlights []Highlight `json:"highlights"`
}
