package analyst

import (
	"math"
	"sort"

	"github.com/clipforge/clipforge/internal/models"
)

const (
	defaultScore      = 50.0
	dedupOverlapRatio = 0.7
	maxBuckets        = 5
)

// Reduce consolidates candidate highlights into the final ranked list of at
// most maxHighlights entries. The order of operations matters: dedup, then
// temporal diversification, then truncation, then the chronological sort.
func Reduce(candidates []models.Highlight, maxHighlights int) []models.Highlight {
	if len(candidates) == 0 {
		return nil
	}
	maxHighlights = models.ClampMaxHighlights(maxHighlights)

	scored := make([]models.Highlight, len(candidates))
	copy(scored, candidates)
	for i := range scored {
		if scored[i].Score == nil {
			s := defaultScore
			scored[i].Score = &s
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return *scored[i].Score > *scored[j].Score
	})

	survivors := dedup(scored)

	var selected []models.Highlight
	if len(survivors) > 2*maxHighlights {
		selected = diversify(survivors, maxHighlights)
	} else {
		selected = survivors
	}
	if len(selected) > maxHighlights {
		selected = selected[:maxHighlights]
	}

	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].Start < selected[j].Start
	})
	return selected
}

// dedup walks the score-ordered candidates, discarding any whose overlap
// with an already-kept highlight exceeds the ratio threshold measured
// against the shorter of the two.
func dedup(sorted []models.Highlight) []models.Highlight {
	var kept []models.Highlight
	for _, cand := range sorted {
		dup := false
		for _, k := range kept {
			if overlapRatio(cand, k) > dedupOverlapRatio {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, cand)
		}
	}
	return kept
}

func overlapRatio(a, b models.Highlight) float64 {
	overlap := math.Min(a.End, b.End) - math.Max(a.Start, b.Start)
	if overlap <= 0 {
		return 0
	}
	minDur := math.Min(a.Duration(), b.Duration())
	if minDur <= 0 {
		return 1
	}
	return overlap / minDur
}

// diversify spreads the pick across equal-width temporal buckets so one hot
// region cannot monopolize the output, backfilling by score when the buckets
// alone do not fill the quota.
func diversify(survivors []models.Highlight, maxHighlights int) []models.Highlight {
	duration := 0.0
	for _, h := range survivors {
		if h.End > duration {
			duration = h.End
		}
	}
	if duration <= 0 {
		return survivors
	}

	numBuckets := maxHighlights
	if numBuckets > maxBuckets {
		numBuckets = maxBuckets
	}
	bucketWidth := duration / float64(numBuckets)
	perBucket := int(math.Ceil(float64(maxHighlights) / float64(numBuckets)))

	buckets := make([][]models.Highlight, numBuckets)
	for _, h := range survivors {
		idx := int(h.Start / bucketWidth)
		if idx >= numBuckets {
			idx = numBuckets - 1
		}
		buckets[idx] = append(buckets[idx], h)
	}

	// survivors are already score-ordered, so each bucket's prefix is its
	// top picks.
	taken := make(map[models.Highlight]bool, maxHighlights)
	var selected []models.Highlight
	for _, bucket := range buckets {
		n := perBucket
		if n > len(bucket) {
			n = len(bucket)
		}
		for _, h := range bucket[:n] {
			selected = append(selected, h)
			taken[h] = true
		}
	}

	if len(selected) < maxHighlights {
		for _, h := range survivors {
			if len(selected) >= maxHighlights {
				break
			}
			if !taken[h] {
				selected = append(selected, h)
				taken[h] = true
			}
		}
	}

	sort.SliceStable(selected, func(i, j int) bool {
		return *selected[i].Score > *selected[j].Score
	})
	if len(selected) > maxHighlights {
		selected = selected[:maxHighlights]
	}
	return selected
}
