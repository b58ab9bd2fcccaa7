package validator

import (
	"sort"

	"energodoc/internal/domain"
)

// ComputeFieldStatuses classifies every canonical value a requirement
// touches: valid at or above the section minimum, unsure below it. A
// requirement nothing matches is reported under its own path as missing.
func ComputeFieldStatuses(req Requirement, values map[string]domain.CanonicalValue) map[string]domain.FieldStatus {
	statuses := make(map[string]domain.FieldStatus)
	for _, rp := range req.Paths {
		matched := matching(rp, values)
		if len(matched) == 0 {
			statuses[rp.Raw] = domain.FieldStatusMissing
			continue
		}
		for _, path := range matched {
			if values[path].Confidence >= req.MinConfidence {
				statuses[path] = domain.FieldStatusValid
			} else {
				statuses[path] = domain.FieldStatusUnsure
			}
		}
	}
	return statuses
}

// matching returns the canonical paths satisfying rp, sorted.
func matching(rp RequiredPath, values map[string]domain.CanonicalValue) []string {
	if !rp.Wildcard {
		if _, ok := values[rp.Raw]; ok {
			return []string{rp.Raw}
		}
		return nil
	}
	var out []string
	for path := range values {
		if rp.Matches(path) {
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out
}
