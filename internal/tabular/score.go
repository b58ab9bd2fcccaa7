package tabular

import (
	"math"

	"energodoc/internal/rules"
)

// signals records which extraction steps succeeded unambiguously.
type signals struct {
	exactMatch     bool
	headerDetected bool
	mapped         bool
	unitExplicit   bool
	unitUnresolved bool
	rowTiebreak    bool
	ocrOrigin      bool
}

// score turns signals into a confidence using the ruleset's increments.
func score(s rules.Scoring, sig signals) float64 {
	v := s.Base
	if sig.exactMatch {
		v += s.ResourceExact
	} else {
		v -= s.PenaltyFuzzyResource
	}
	if sig.headerDetected {
		v += s.HeaderDetected
	} else {
		v -= s.PenaltyHeaderFallback
	}
	if sig.mapped {
		v += s.PeriodMapped
	}
	if sig.unitExplicit {
		v += s.UnitExplicit
	}
	if sig.unitUnresolved {
		v -= s.PenaltyUnitUnresolved
	}
	if sig.rowTiebreak {
		v -= s.PenaltyRowTiebreak
	}
	if sig.ocrOrigin {
		v -= s.PenaltyOCROrigin
	}
	return clamp(v)
}

func clamp(v float64) float64 {
	v = math.Max(0, math.Min(1, v))
	return math.Round(v*1e4) / 1e4
}
