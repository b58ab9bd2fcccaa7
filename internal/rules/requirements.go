package rules

import (
	"regexp"
	"strings"
)

// PathPattern compiles a requirement path. "*" stands for one path segment
// or one index, so "equipment[*].name" and "resources.gas.*" are accepted.
func PathPattern(requirement string) (*regexp.Regexp, error) {
	quoted := regexp.QuoteMeta(requirement)
	quoted = strings.ReplaceAll(quoted, `\*`, `[^.]+`)
	return regexp.Compile("^" + quoted + "$")
}

// IsWildcard reports whether a requirement path uses "*".
func IsWildcard(requirement string) bool {
	return strings.Contains(requirement, "*")
}
