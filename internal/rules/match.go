package rules

import (
	"sort"
	"strconv"
	"strings"

	"energodoc/internal/domain"
)

type family struct {
	name    string
	aliases []string
	stems   []string
}

type unitAlias struct {
	phrase string
	unit   string
}

type index struct {
	resources     []family
	entities      []family
	fields        map[string][]FieldRule
	months        map[string]int
	quarters      map[string]int
	annual        map[string]bool
	annualLeading map[string]bool
	yearSuffixes  map[string]bool
	consumption   []string
	exclude       []string
	units         []unitAlias
	factors       map[string]map[string]float64
}

// Match is the outcome of an alias lookup.
type Match struct {
	Name      string
	Exact     bool
	Ambiguous bool
}

// Clean reports whether the match was exact and unambiguous.
func (m Match) Clean() bool {
	return m.Exact && !m.Ambiguous
}

// Period is a calendar slot of a resource series.
type Period struct {
	Granularity domain.Granularity
	Index       int
}

func compile(rs *Ruleset) (*index, error) {
	idx := &index{
		fields:        make(map[string][]FieldRule),
		months:        make(map[string]int),
		quarters:      make(map[string]int),
		annual:        foldSet(rs.Periods.Annual),
		annualLeading: foldSet(rs.Periods.AnnualLeading),
		yearSuffixes:  foldSet(rs.Periods.YearSuffixes),
		consumption:   foldAll(rs.ConsumptionKeywords),
		exclude:       foldAll(rs.ExcludeKeywords),
	}
	for _, res := range rs.Resources {
		idx.resources = append(idx.resources, family{name: res.Name, aliases: foldAll(res.Aliases), stems: foldAll(res.Stems)})
	}
	for _, e := range rs.Entities {
		idx.entities = append(idx.entities, family{name: e.Kind, aliases: foldAll(e.Aliases), stems: foldAll(e.Stems)})
		fields := make([]FieldRule, 0, len(e.Fields))
		for _, f := range e.Fields {
			f.Aliases = foldAll(f.Aliases)
			fields = append(fields, f)
		}
		idx.fields[e.Kind] = fields
	}
	for _, m := range rs.Periods.Months {
		for _, s := range m.Synonyms {
			idx.months[Fold(s)] = m.Number
		}
	}
	for _, q := range rs.Periods.Quarters {
		for _, s := range q.Synonyms {
			idx.quarters[Fold(s)] = q.Number
		}
	}

	for unit, aliases := range rs.Units.Aliases {
		for _, a := range aliases {
			if f := Fold(a); f != "" {
				idx.units = append(idx.units, unitAlias{phrase: f, unit: unit})
			}
		}
	}
	// Longest phrase first so "тыс квт ч" is tried before "квт ч" and "квт".
	sort.Slice(idx.units, func(i, j int) bool {
		if len(idx.units[i].phrase) != len(idx.units[j].phrase) {
			return len(idx.units[i].phrase) > len(idx.units[j].phrase)
		}
		return idx.units[i].phrase < idx.units[j].phrase
	})

	idx.factors = conversionTable(rs.Units.Conversions)
	return idx, nil
}

func foldAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if f := Fold(s); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func foldSet(in []string) map[string]bool {
	out := make(map[string]bool, len(in))
	for _, s := range foldAll(in) {
		out[s] = true
	}
	return out
}

func matchFamily(families []family, text string) (Match, bool) {
	folded := Fold(text)
	if folded == "" {
		return Match{}, false
	}
	var exact []string
	for _, f := range families {
		for _, a := range f.aliases {
			if containsPhrase(folded, a) {
				exact = append(exact, f.name)
				break
			}
		}
	}
	if len(exact) > 0 {
		return Match{Name: exact[0], Exact: true, Ambiguous: len(exact) > 1}, true
	}
	var fuzzy []string
	for _, f := range families {
		for _, s := range f.stems {
			if hasStem(folded, s) {
				fuzzy = append(fuzzy, f.name)
				break
			}
		}
	}
	if len(fuzzy) > 0 {
		return Match{Name: fuzzy[0], Ambiguous: len(fuzzy) > 1}, true
	}
	return Match{}, false
}

// MatchResource finds the resource family named in text. Table order breaks ties.
func (r *Ruleset) MatchResource(text string) (Match, bool) {
	return matchFamily(r.idx.resources, text)
}

// MatchEntity finds the entity section kind named in text.
func (r *Ruleset) MatchEntity(text string) (Match, bool) {
	return matchFamily(r.idx.entities, text)
}

// MatchField returns the first field of an entity kind whose alias occurs in a header cell.
func (r *Ruleset) MatchField(kind, header string) (FieldRule, bool) {
	folded := Fold(header)
	if folded == "" {
		return FieldRule{}, false
	}
	for _, f := range r.idx.fields[kind] {
		for _, a := range f.Aliases {
			if containsPhrase(folded, a) {
				return f, true
			}
		}
	}
	return FieldRule{}, false
}

// MatchPeriod maps a header cell to a month, quarter or the annual total.
func (r *Ruleset) MatchPeriod(text string) (Period, bool) {
	folded := Fold(text)
	if folded == "" {
		return Period{}, false
	}
	if r.idx.annual[folded] {
		return Period{Granularity: domain.GranularityAnnual}, true
	}
	core := r.stripYear(folded)
	if core == "" {
		return Period{}, false
	}
	if n, ok := r.idx.months[core]; ok {
		return Period{Granularity: domain.GranularityMonth, Index: n}, true
	}
	if n, ok := r.idx.quarters[core]; ok {
		return Period{Granularity: domain.GranularityQuarter, Index: n}, true
	}
	if r.idx.annual[core] {
		return Period{Granularity: domain.GranularityAnnual}, true
	}
	if first := strings.Fields(folded); len(first) > 0 && r.idx.annualLeading[first[0]] {
		return Period{Granularity: domain.GranularityAnnual}, true
	}
	return Period{}, false
}

// stripYear removes a leading or trailing year ("2023", "2023 г") around a period name.
func (r *Ruleset) stripYear(folded string) string {
	toks := strings.Fields(folded)
	isYearTok := func(t string) bool {
		if r.idx.yearSuffixes[t] {
			return true
		}
		n, err := strconv.Atoi(t)
		return err == nil && n >= 1900 && n <= 2200
	}
	for len(toks) > 1 && isYearTok(toks[len(toks)-1]) {
		toks = toks[:len(toks)-1]
	}
	for len(toks) > 1 && isYearTok(toks[0]) {
		toks = toks[1:]
	}
	return strings.Join(toks, " ")
}

// IsConsumption reports whether a row label names the consumption line.
func (r *Ruleset) IsConsumption(text string) bool {
	return anyPhrase(Fold(text), r.idx.consumption)
}

// IsExcluded reports whether a row label names a cost or tariff line.
func (r *Ruleset) IsExcluded(text string) bool {
	return anyPhrase(Fold(text), r.idx.exclude)
}

// IsAnnualLeading reports whether text begins with a total marker such as "итого".
func (r *Ruleset) IsAnnualLeading(text string) bool {
	toks := strings.Fields(Fold(text))
	return len(toks) > 0 && r.idx.annualLeading[toks[0]]
}

func anyPhrase(folded string, phrases []string) bool {
	for _, p := range phrases {
		if containsPhrase(folded, p) {
			return true
		}
	}
	return false
}
