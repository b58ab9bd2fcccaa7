package validator_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"energodoc/internal/domain"
	"energodoc/internal/rules"
	"energodoc/internal/validator"
)

func newEngine(t *testing.T) *validator.Engine {
	t.Helper()
	rs, err := rules.Default()
	require.NoError(t, err)
	reg, err := validator.NewRegistry(rs)
	require.NoError(t, err)
	return validator.NewEngine(reg)
}

func value(conf float64) domain.CanonicalValue {
	v := 1.0
	return domain.CanonicalValue{Value: &v, Method: domain.MethodDeterministic, Confidence: conf}
}

func TestEngine_Evaluate_DefaultSections(t *testing.T) {
	data := &domain.CanonicalSourceData{Values: map[string]domain.CanonicalValue{
		"resources.electricity.annual":     value(1),
		"resources.heat.month[1]":          value(0.55),
		"resources.heat.month[2]":          value(0.4),
		"equipment[0].name":                value(0.9),
		"equipment[0].rated_power_kw":      value(0.9),
		"resources.gas.quarter[2]":         value(0.6),
		"nodes[3].node_id":                 value(0.4),
		"envelope[0].element":              value(0.5),
		"resources.electricity.quarter[1]": value(0.3),
	}}

	reports := newEngine(t).Evaluate(data)

	byName := map[string]domain.ReadinessReport{}
	var order []string
	for _, r := range reports {
		byName[r.SectionName] = r
		order = append(order, r.SectionName)
	}
	assert.Equal(t, []string{"electricity", "heat", "gas", "water", "equipment", "metering_nodes", "building_envelope"}, order)

	elec := byName["electricity"]
	assert.Equal(t, domain.ReadinessReady, elec.Status)
	assert.Equal(t, domain.FieldStatusValid, elec.FieldStatuses["resources.electricity.annual"])
	assert.Equal(t, domain.FieldStatusUnsure, elec.FieldStatuses["resources.electricity.quarter[1]"])
	assert.Empty(t, elec.LowConfidenceFields)

	heat := byName["heat"]
	assert.Equal(t, domain.ReadinessBlocked, heat.Status)
	assert.Equal(t, []string{"resources.heat.month[1]", "resources.heat.month[2]"}, heat.LowConfidenceFields)
	assert.Empty(t, heat.MissingFields)

	assert.Equal(t, domain.ReadinessReady, byName["gas"].Status, "minimum is inclusive")

	water := byName["water"]
	assert.Equal(t, domain.ReadinessBlocked, water.Status)
	assert.Equal(t, []string{"resources.water.*"}, water.MissingFields)
	assert.Equal(t, domain.FieldStatusMissing, water.FieldStatuses["resources.water.*"])

	assert.Equal(t, domain.ReadinessReady, byName["equipment"].Status)

	nodes := byName["metering_nodes"]
	assert.Equal(t, domain.ReadinessBlocked, nodes.Status)
	assert.Equal(t, []string{"nodes[3].node_id"}, nodes.LowConfidenceFields)
	assert.Equal(t, []string{"nodes[*].resource"}, nodes.MissingFields)

	env := byName["building_envelope"]
	assert.Equal(t, domain.ReadinessBlocked, env.Status)
	assert.Equal(t, []string{"envelope[*].area_m2"}, env.MissingFields)
}

func TestEngine_Evaluate_NilRecordBlocksEverything(t *testing.T) {
	for _, r := range newEngine(t).Evaluate(nil) {
		assert.Equal(t, domain.ReadinessBlocked, r.Status, r.SectionName)
		assert.NotEmpty(t, r.MissingFields, r.SectionName)
	}
}

func TestEngine_Section(t *testing.T) {
	e := newEngine(t)

	_, ok := e.Section("boilers", nil)
	assert.False(t, ok)

	r, ok := e.Section("gas", &domain.CanonicalSourceData{Values: map[string]domain.CanonicalValue{
		"resources.gas.annual": value(0.61),
	}})
	require.True(t, ok)
	assert.Equal(t, domain.ReadinessReady, r.Status)
}

// Readiness must hold iff every requirement has a value at or above the minimum.
func TestCheck_ReadyIffAllSatisfied(t *testing.T) {
	req := validator.Requirement{
		Section:       "custom",
		MinConfidence: 0.7,
		Paths: []validator.RequiredPath{
			{Raw: "resources.coal.annual"},
			{Raw: "resources.fuel.annual"},
		},
	}
	confs := []float64{0, 0.69, 0.7, 1}
	for _, a := range confs {
		for _, b := range confs {
			values := map[string]domain.CanonicalValue{}
			if a > 0 {
				values["resources.coal.annual"] = value(a)
			}
			if b > 0 {
				values["resources.fuel.annual"] = value(b)
			}
			r := validator.Check(req, values)
			want := a >= 0.7 && b >= 0.7
			assert.Equal(t, want, r.Status == domain.ReadinessReady, "coal=%v fuel=%v", a, b)
		}
	}
}

func TestNewRegistry_WildcardSegments(t *testing.T) {
	rs, err := rules.Default()
	require.NoError(t, err)
	custom := *rs
	custom.Sections = []rules.SectionRequirement{{Name: "x", MinConfidence: 0.5, Required: []string{"resources.gas.*"}}}

	reg, err := validator.NewRegistry(&custom)
	require.NoError(t, err)
	req, ok := reg.Get("x")
	require.True(t, ok)
	assert.True(t, req.Paths[0].Matches("resources.gas.month[12]"))
	assert.False(t, req.Paths[0].Matches("resources.gasoline.annual"))
}
