package parser

import (
	"encoding/json"
	"fmt"
	"strings"

	"energodoc/internal/port"
)

const promptHeader = `You map energy consumption tables onto a canonical data model. The table below comes from a spreadsheet sheet or a scanned page of a facility energy report. Its labels may be in Russian, Uzbek (Latin or Cyrillic) or English.

Canonical paths:
- resources.<resource>.month[1..12], resources.<resource>.quarter[1..4], resources.<resource>.annual
  where <resource> is one of: electricity, heat, gas, water, fuel, coal
- equipment[i].name, equipment[i].type, equipment[i].model, equipment[i].rated_power_kw, equipment[i].location
- nodes[i].node_id, nodes[i].resource, nodes[i].location, nodes[i].meter_type
- envelope[i].element, envelope[i].material, envelope[i].area_m2, envelope[i].u_value
Entity indexes i start at 0 and count data rows of this table only.

Cells are addressed in A1 notation: "row" is the row number, the first cell of "cells" is column A.
Map only consumption quantities. Never map costs, tariffs or prices. Map a path only when you can name the exact cell; a range sums its numeric cells. Give the unit as written in the table when there is one.
"current_partial_mapping" lists what a rule-based parser already found; confirm or correct it.

Return ONLY a JSON object, no markdown and no explanation, of the form:
{"proposed_mapping":[{"canonical_path":"resources.gas.month[1]","cell_range":"C5","unit":"m3"}],"confidence":0.0,"notes":""}
"confidence" is your overall certainty between 0 and 1. If the table holds no mappable data return an empty "proposed_mapping" with confidence 0.

Table:
`

// BuildMappingPrompt renders the provider prompt for a mapping request.
func BuildMappingPrompt(req port.MappingRequest) (string, error) {
	body, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding mapping request: %w", err)
	}
	var b strings.Builder
	b.WriteString(promptHeader)
	b.Write(body)
	b.WriteString("\n")
	return b.String(), nil
}
