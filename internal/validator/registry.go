package validator

import (
	"energodoc/internal/rules"
)

// Registry holds the compiled requirements of one ruleset in declaration order.
type Registry struct {
	order    []string
	sections map[string]Requirement
}

// NewRegistry compiles the section requirements of rs.
func NewRegistry(rs *rules.Ruleset) (*Registry, error) {
	r := &Registry{sections: make(map[string]Requirement, len(rs.Sections))}
	for _, sr := range rs.Sections {
		req, err := compileRequirement(sr)
		if err != nil {
			return nil, err
		}
		if _, dup := r.sections[req.Section]; !dup {
			r.order = append(r.order, req.Section)
		}
		r.sections[req.Section] = req
	}
	return r, nil
}

// Get returns the requirement for a section.
func (r *Registry) Get(section string) (Requirement, bool) {
	req, ok := r.sections[section]
	return req, ok
}

// All returns every requirement in declaration order.
func (r *Registry) All() []Requirement {
	out := make([]Requirement, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.sections[name])
	}
	return out
}
