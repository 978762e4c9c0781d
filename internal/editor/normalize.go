package editor

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/clipforge/clipforge/internal/models"
)

// NormalizeHighlights parses a highlights document in any of the shapes that
// have existed over time and returns a uniform list:
//
//   - {"highlights": [...]} is the canonical shape.
//   - a bare JSON list of highlight objects.
//   - a single highlight object, either with start/end keys or with the
//     legacy highlight_inicio_segundos/highlight_fim_segundos keys.
func NormalizeHighlights(raw []byte) ([]models.Highlight, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing highlights document: %w", err)
	}

	switch v := doc.(type) {
	case map[string]any:
		if list, ok := v["highlights"].([]any); ok {
			return highlightList(list)
		}
		h, ok := singleHighlight(v)
		if !ok {
			return nil, fmt.Errorf("object is neither a highlights wrapper nor a single highlight")
		}
		return []models.Highlight{h}, nil
	case []any:
		return highlightList(v)
	default:
		return nil, fmt.Errorf("unsupported highlights document type %T", doc)
	}
}

func highlightList(items []any) ([]models.Highlight, error) {
	out := make([]models.Highlight, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("highlight %d is not an object", i)
		}
		h, ok := singleHighlight(obj)
		if !ok {
			return nil, fmt.Errorf("highlight %d has no usable start/end", i)
		}
		out = append(out, h)
	}
	return out, nil
}

// singleHighlight extracts one highlight from a generic object, accepting
// the current and the legacy key names.
func singleHighlight(obj map[string]any) (models.Highlight, bool) {
	start, okStart := coerceNumber(obj["start"])
	end, okEnd := coerceNumber(obj["end"])
	if !okStart || !okEnd {
		start, okStart = coerceNumber(obj["highlight_inicio_segundos"])
		end, okEnd = coerceNumber(obj["highlight_fim_segundos"])
	}
	if !okStart || !okEnd {
		return models.Highlight{}, false
	}

	h := models.Highlight{Start: start, End: end}
	if s, ok := obj["summary"].(string); ok {
		h.Summary = s
	} else if s, ok := obj["resposta_bruta"].(string); ok {
		h.Summary = s
	}
	if score, ok := coerceNumber(obj["score"]); ok {
		h.Score = &score
	}
	return h, true
}

// coerceNumber accepts JSON numbers and numeric strings.
func coerceNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
