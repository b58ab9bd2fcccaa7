package merge

import (
	"encoding/json"
	"fmt"
	"sort"

	"energodoc/internal/domain"
	"energodoc/internal/rules"
)

// Input is everything one processing run contributes to its canonical record.
type Input struct {
	Classification domain.DocumentClassification
	Candidates     []domain.FieldExtraction
	Sections       []domain.SectionSummary
	Issues         []domain.ExtractionIssue
}

// Build resolves the candidates and lays the winners out by resource and
// entity. Every leaf carries the Seq of the candidate it came from.
func Build(rs *rules.Ruleset, in Input) *domain.CanonicalSourceData {
	data := &domain.CanonicalSourceData{
		RulesetVersion: rs.Version,
		Classification: in.Classification,
		Resources:      make(map[string]*domain.ResourceSeries),
		Equipment:      []domain.EquipmentItem{},
		Nodes:          []domain.NodeItem{},
		Envelope:       []domain.EnvelopeItem{},
		Values:         make(map[string]domain.CanonicalValue),
		Provenance:     Resolve(in.Candidates),
		Sections:       append([]domain.SectionSummary{}, in.Sections...),
		Issues:         append([]domain.ExtractionIssue{}, in.Issues...),
	}
	if data.Classification.Evidence == nil {
		data.Classification.Evidence = []domain.PageEvidence{}
	}

	equipment := map[int]*domain.EquipmentItem{}
	nodes := map[int]*domain.NodeItem{}
	envelope := map[int]*domain.EnvelopeItem{}

	for _, c := range data.Provenance {
		if !c.Winner {
			continue
		}
		cp, ok := domain.ParsePath(c.Path)
		if !ok {
			continue
		}
		v := domain.CanonicalValue{
			Value:      c.Value,
			Text:       c.Text,
			Unit:       c.Unit,
			Method:     c.Method,
			Confidence: c.Confidence,
			Seq:        c.Seq,
		}
		data.Values[c.Path] = v

		switch cp.Entity {
		case domain.SectionResource:
			placeResource(rs, data.Resources, cp, v)
		case domain.SectionEquipment:
			item, ok := equipment[cp.Index]
			if !ok {
				item = &domain.EquipmentItem{Index: cp.Index}
				equipment[cp.Index] = item
			}
			placeEquipment(item, cp.Field, v)
		case domain.SectionNodes:
			item, ok := nodes[cp.Index]
			if !ok {
				item = &domain.NodeItem{Index: cp.Index}
				nodes[cp.Index] = item
			}
			placeNode(item, cp.Field, v)
		case domain.SectionEnvelope:
			item, ok := envelope[cp.Index]
			if !ok {
				item = &domain.EnvelopeItem{Index: cp.Index}
				envelope[cp.Index] = item
			}
			placeEnvelope(item, cp.Field, v)
		}
	}

	for _, i := range sortedKeys(equipment) {
		data.Equipment = append(data.Equipment, *equipment[i])
	}
	for _, i := range sortedKeys(nodes) {
		data.Nodes = append(data.Nodes, *nodes[i])
	}
	for _, i := range sortedKeys(envelope) {
		data.Envelope = append(data.Envelope, *envelope[i])
	}
	return data
}

// Encode renders the record as JSON. Map keys are sorted by encoding/json
// and all slices are ordered, so equal records encode to equal bytes.
func Encode(data *domain.CanonicalSourceData) ([]byte, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encoding canonical record: %w", err)
	}
	return b, nil
}

func placeResource(rs *rules.Ruleset, res map[string]*domain.ResourceSeries, cp domain.CanonicalPath, v domain.CanonicalValue) {
	series, ok := res[cp.Resource]
	if !ok {
		unit := rs.ResourceUnit(cp.Resource)
		if unit == "" {
			unit = v.Unit
		}
		series = &domain.ResourceSeries{Unit: unit}
		res[cp.Resource] = series
	}
	switch cp.Granularity {
	case domain.GranularityMonth:
		if series.Months == nil {
			series.Months = make(map[int]domain.CanonicalValue)
		}
		series.Months[cp.Index] = v
	case domain.GranularityQuarter:
		if series.Quarters == nil {
			series.Quarters = make(map[int]domain.CanonicalValue)
		}
		series.Quarters[cp.Index] = v
	case domain.GranularityAnnual:
		series.Annual = &v
	}
}

func placeEquipment(item *domain.EquipmentItem, field string, v domain.CanonicalValue) {
	switch field {
	case "name":
		item.Name = &v
	case "type":
		item.Type = &v
	case "model":
		item.Model = &v
	case "rated_power_kw":
		item.RatedPowerKW = &v
	case "location":
		item.Location = &v
	}
}

func placeNode(item *domain.NodeItem, field string, v domain.CanonicalValue) {
	switch field {
	case "node_id":
		item.NodeID = &v
	case "resource":
		item.Resource = &v
	case "location":
		item.Location = &v
	case "meter_type":
		item.MeterType = &v
	}
}

func placeEnvelope(item *domain.EnvelopeItem, field string, v domain.CanonicalValue) {
	switch field {
	case "element":
		item.Element = &v
	case "material":
		item.Material = &v
	case "area_m2":
		item.AreaM2 = &v
	case "u_value":
		item.UValue = &v
	}
}

func sortedKeys[T any](m map[int]T) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
