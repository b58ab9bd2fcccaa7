package domain

import (
	"fmt"
	"regexp"
	"strconv"
)

var (
	resourcePathRe = regexp.MustCompile(`^resources\.([a-z_]+)\.(?:(month)\[(1[0-2]|[1-9])\]|(quarter)\[([1-4])\]|(annual))$`)
	entityPathRe   = regexp.MustCompile(`^(equipment|nodes|envelope)\[(\d{1,4})\]\.([a-z_0-9]+)$`)
)

// CanonicalPath is a parsed canonical path.
type CanonicalPath struct {
	Entity      SectionKind
	Resource    string
	Granularity Granularity
	Index       int
	Field       string
}

// ResourcePath builds resources.<resource>.<granularity>[index]. Annual paths carry no index.
func ResourcePath(resource string, g Granularity, index int) string {
	if g == GranularityAnnual {
		return "resources." + resource + ".annual"
	}
	return fmt.Sprintf("resources.%s.%s[%d]", resource, g, index)
}

// EntityPath builds <entity>[index].<field>.
func EntityPath(kind SectionKind, index int, field string) string {
	return fmt.Sprintf("%s[%d].%s", EntityCollection(kind), index, field)
}

// EntityCollection returns the top-level key holding items of kind.
func EntityCollection(kind SectionKind) string {
	switch kind {
	case SectionEquipment:
		return "equipment"
	case SectionNodes:
		return "nodes"
	case SectionEnvelope:
		return "envelope"
	}
	return ""
}

// ParsePath parses a canonical path. ok is false for anything outside the grammar.
func ParsePath(p string) (CanonicalPath, bool) {
	if m := resourcePathRe.FindStringSubmatch(p); m != nil {
		cp := CanonicalPath{Entity: SectionResource, Resource: m[1]}
		switch {
		case m[2] != "":
			cp.Granularity = GranularityMonth
			cp.Index, _ = strconv.Atoi(m[3])
		case m[4] != "":
			cp.Granularity = GranularityQuarter
			cp.Index, _ = strconv.Atoi(m[5])
		default:
			cp.Granularity = GranularityAnnual
		}
		return cp, true
	}
	if m := entityPathRe.FindStringSubmatch(p); m != nil {
		idx, _ := strconv.Atoi(m[2])
		var kind SectionKind
		switch m[1] {
		case "equipment":
			kind = SectionEquipment
		case "nodes":
			kind = SectionNodes
		default:
			kind = SectionEnvelope
		}
		return CanonicalPath{Entity: kind, Index: idx, Field: m[3]}, true
	}
	return CanonicalPath{}, false
}

// ShiftEntityIndex offsets the item index of an entity path. Resource paths are returned unchanged.
func ShiftEntityIndex(p string, offset int) string {
	if offset == 0 {
		return p
	}
	cp, ok := ParsePath(p)
	if !ok || cp.Entity == SectionResource {
		return p
	}
	return EntityPath(cp.Entity, cp.Index+offset, cp.Field)
}
