// Package validator decides, per report section, whether a canonical record
// holds enough confidently resolved data for the section to be generated.
package validator

import (
	"fmt"
	"regexp"

	"energodoc/internal/rules"
)

// Requirement is one compiled row of the section requirements table.
type Requirement struct {
	Section       string
	MinConfidence float64
	Paths         []RequiredPath
}

// RequiredPath is a required canonical path, possibly with "*" wildcards.
type RequiredPath struct {
	Raw      string
	Wildcard bool
	pattern  *regexp.Regexp
}

// Matches reports whether a concrete canonical path satisfies the requirement path.
func (p RequiredPath) Matches(path string) bool {
	if !p.Wildcard {
		return p.Raw == path
	}
	return p.pattern.MatchString(path)
}

func compileRequirement(sr rules.SectionRequirement) (Requirement, error) {
	req := Requirement{Section: sr.Name, MinConfidence: sr.MinConfidence}
	for _, raw := range sr.Required {
		p := RequiredPath{Raw: raw, Wildcard: rules.IsWildcard(raw)}
		if p.Wildcard {
			re, err := rules.PathPattern(raw)
			if err != nil {
				return Requirement{}, fmt.Errorf("section %s: requirement %q: %w", sr.Name, raw, err)
			}
			p.pattern = re
		}
		req.Paths = append(req.Paths, p)
	}
	return req, nil
}
