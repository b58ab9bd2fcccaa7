package validator

import (
	"energodoc/internal/domain"
)

// Engine evaluates canonical records against a requirements registry.
// It is pure and safe for concurrent use.
type Engine struct {
	registry *Registry
}

// NewEngine creates a new readiness engine.
func NewEngine(registry *Registry) *Engine {
	return &Engine{registry: registry}
}

// Evaluate returns one report per section, in declaration order. A nil
// record is treated as empty, so every section with requirements is blocked.
func (e *Engine) Evaluate(data *domain.CanonicalSourceData) []domain.ReadinessReport {
	var values map[string]domain.CanonicalValue
	if data != nil {
		values = data.Values
	}
	reqs := e.registry.All()
	out := make([]domain.ReadinessReport, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, Check(req, values))
	}
	return out
}

// Section evaluates a single section by name.
func (e *Engine) Section(name string, data *domain.CanonicalSourceData) (domain.ReadinessReport, bool) {
	req, ok := e.registry.Get(name)
	if !ok {
		return domain.ReadinessReport{}, false
	}
	var values map[string]domain.CanonicalValue
	if data != nil {
		values = data.Values
	}
	return Check(req, values), true
}

// Check is ready iff every required path has a value at or above the
// section minimum. A wildcard path is satisfied by any one such value.
// Unsatisfied requirements are listed as missing when nothing matches, or
// by their low-confidence matches otherwise.
func Check(req Requirement, values map[string]domain.CanonicalValue) domain.ReadinessReport {
	report := domain.ReadinessReport{
		SectionName:         req.Section,
		Status:              domain.ReadinessReady,
		MinConfidence:       req.MinConfidence,
		MissingFields:       []string{},
		LowConfidenceFields: []string{},
		FieldStatuses:       ComputeFieldStatuses(req, values),
	}

	for _, rp := range req.Paths {
		matched := matching(rp, values)
		if len(matched) == 0 {
			report.MissingFields = append(report.MissingFields, rp.Raw)
			continue
		}
		satisfied := false
		for _, path := range matched {
			if values[path].Confidence >= req.MinConfidence {
				satisfied = true
				break
			}
		}
		if !satisfied {
			report.LowConfidenceFields = append(report.LowConfidenceFields, matched...)
		}
	}

	if len(report.MissingFields) > 0 || len(report.LowConfidenceFields) > 0 {
		report.Status = domain.ReadinessBlocked
	}
	return report
}
