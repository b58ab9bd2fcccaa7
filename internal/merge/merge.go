// Package merge reconciles competing candidates into one canonical record.
// Nothing here performs I/O: fallback proposals arrive already fetched.
package merge

import (
	"math"
	"sort"

	"energodoc/internal/domain"
)

// Better reports whether a beats b for the same canonical path: higher
// confidence, then deterministic or OCR over the fallback, then the
// earlier candidate.
func Better(a, b domain.FieldExtraction) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	if pa, pb := a.Method.Precedence(), b.Method.Precedence(); pa != pb {
		return pa < pb
	}
	return a.Seq < b.Seq
}

// Resolve marks exactly one winner per canonical path. The result holds
// every candidate, losers included, ordered by Seq. The input is not
// modified.
func Resolve(cands []domain.FieldExtraction) []domain.FieldExtraction {
	out := make([]domain.FieldExtraction, len(cands))
	copy(out, cands)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })

	best := make(map[string]int, len(out))
	for i := range out {
		out[i].Winner = false
		out[i].Confidence = clamp(out[i].Confidence)
		j, seen := best[out[i].Path]
		if !seen || Better(out[i], out[j]) {
			best[out[i].Path] = i
		}
	}
	for _, i := range best {
		out[i].Winner = true
	}
	return out
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	v = math.Max(0, math.Min(1, v))
	return math.Round(v*1e4) / 1e4
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
