package rules

import "sort"

// DetectUnit finds the first unit spelled in text, longest spelling first.
func (r *Ruleset) DetectUnit(text string) (string, bool) {
	folded := Fold(text)
	if folded == "" {
		return "", false
	}
	for _, u := range r.idx.units {
		if containsPhrase(folded, u.phrase) {
			return u.unit, true
		}
	}
	return "", false
}

// Convert converts value between unit codes through the conversion table.
func (r *Ruleset) Convert(value float64, from, to string) (float64, bool) {
	if from == to {
		return value, true
	}
	f, ok := r.idx.factors[from][to]
	if !ok {
		return 0, false
	}
	return value * f, true
}

// ResourceUnit returns the canonical unit of a resource family.
func (r *Ruleset) ResourceUnit(name string) string {
	if res, ok := r.Resource(name); ok {
		return res.Unit
	}
	return ""
}

// conversionTable closes the declared conversions over inverses and chains,
// so kWh->Gcal is derived from kWh<-MWh<-Gcal.
func conversionTable(convs []Conversion) map[string]map[string]float64 {
	edges := make(map[string]map[string]float64)
	add := func(from, to string, f float64) {
		if edges[from] == nil {
			edges[from] = make(map[string]float64)
		}
		if _, exists := edges[from][to]; !exists {
			edges[from][to] = f
		}
	}
	for _, c := range convs {
		add(c.From, c.To, c.Factor)
		add(c.To, c.From, 1/c.Factor)
	}

	units := make([]string, 0, len(edges))
	for u := range edges {
		units = append(units, u)
	}
	sort.Strings(units)

	table := make(map[string]map[string]float64, len(units))
	for _, start := range units {
		reach := map[string]float64{start: 1}
		queue := []string{start}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			next := make([]string, 0, len(edges[cur]))
			for n := range edges[cur] {
				next = append(next, n)
			}
			sort.Strings(next)
			for _, n := range next {
				if _, seen := reach[n]; seen {
					continue
				}
				reach[n] = reach[cur] * edges[cur][n]
				queue = append(queue, n)
			}
		}
		delete(reach, start)
		table[start] = reach
	}
	return table
}
