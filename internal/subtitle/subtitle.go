// Package subtitle renders transcripts as SRT and WebVTT documents and
// re-times transcript slices for cut clips.
package subtitle

import (
	"fmt"
	"os"
	"strings"

	"github.com/clipforge/clipforge/internal/models"
)

// FormatSRTTimestamp renders seconds as HH:MM:SS,mmm.
func FormatSRTTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	ms := int(seconds*1000 + 0.5)
	h := ms / 3600000
	ms -= h * 3600000
	m := ms / 60000
	ms -= m * 60000
	s := ms / 1000
	ms -= s * 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// FormatVTTTimestamp renders seconds as HH:MM:SS.mmm.
func FormatVTTTimestamp(seconds float64) string {
	return strings.Replace(FormatSRTTimestamp(seconds), ",", ".", 1)
}

// RenderSRT serializes segments as an SRT document. Segments with empty text
// are skipped; cue numbering stays contiguous.
func RenderSRT(segments []models.TranscriptSegment) string {
	var sb strings.Builder
	n := 0
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		n++
		fmt.Fprintf(&sb, "%d\n%s --> %s\n%s\n\n",
			n, FormatSRTTimestamp(seg.Start), FormatSRTTimestamp(seg.End), text)
	}
	return sb.String()
}

// RenderVTT serializes segments as a WebVTT document.
func RenderVTT(segments []models.TranscriptSegment) string {
	var sb strings.Builder
	sb.WriteString("WEBVTT\n\n")
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		fmt.Fprintf(&sb, "%s --> %s\n%s\n\n",
			FormatVTTTimestamp(seg.Start), FormatVTTTimestamp(seg.End), text)
	}
	return sb.String()
}

// WriteSRT writes an SRT file for the segments.
func WriteSRT(path string, segments []models.TranscriptSegment) error {
	if err := os.WriteFile(path, []byte(RenderSRT(segments)), 0o644); err != nil {
		return fmt.Errorf("writing srt: %w", err)
	}
	return nil
}

// WriteVTT writes a WebVTT file for the segments.
func WriteVTT(path string, segments []models.TranscriptSegment) error {
	if err := os.WriteFile(path, []byte(RenderVTT(segments)), 0o644); err != nil {
		return fmt.Errorf("writing vtt: %w", err)
	}
	return nil
}

// ClipTranscript extracts the segments overlapping [start, end] and shifts
// them to clip-local time. Boundary segments are clamped to the window, and
// cues that collapse to zero length are widened to half a second so players
// still show them.
func ClipTranscript(segments []models.TranscriptSegment, start, end float64) []models.TranscriptSegment {
	var out []models.TranscriptSegment
	for _, seg := range segments {
		if seg.End <= start || seg.Start >= end {
			continue
		}
		s := seg.Start
		if s < start {
			s = start
		}
		e := seg.End
		if e > end {
			e = end
		}
		s -= start
		e -= start
		if e-s <= 0 {
			e = s + 0.5
		}
		out = append(out, models.TranscriptSegment{Start: s, End: e, Text: seg.Text})
	}
	return out
}

// BurnInStyle is the force_style string applied when subtitles are burned
// into clips: readable white-on-black boxed text at the bottom center.
const BurnInStyle = "FontName=Arial,FontSize=18,PrimaryColour=&Hffffff,OutlineColour=&H000000,BorderStyle=3,Outline=1,Shadow=0,Alignment=2,MarginV=40"
