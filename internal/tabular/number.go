package tabular

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var leadingNumberRe = regexp.MustCompile(`^[-+]?\d+(?:\.\d+)?(?:[eE][-+]?\d+)?`)

// cleanNumber removes grouping characters and normalizes the decimal mark.
// A lone comma is a decimal mark; with both marks present the last one is.
func cleanNumber(s string) string {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer(" ", "", "\u00a0", "", "\u2009", "", "\u202f", "", "'", "", "’", "", "−", "-").Replace(s)
	if s == "" {
		return ""
	}
	comma := strings.LastIndex(s, ",")
	dot := strings.LastIndex(s, ".")
	switch {
	case comma >= 0 && dot >= 0:
		if comma > dot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case comma >= 0:
		if strings.Count(s, ",") == 1 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	}
	return s
}

// isNumericCell reports whether the whole cell is a number. Used to tell
// header rows from data rows.
func isNumericCell(s string) bool {
	c := strings.TrimSuffix(cleanNumber(s), "%")
	if c == "" {
		return false
	}
	_, err := strconv.ParseFloat(c, 64)
	return err == nil
}

// parseValue reads a cell value, tolerating trailing unit text such as
// "1 200 кВт·ч". Dashes and empty cells carry no value.
func parseValue(s string) (float64, bool) {
	c := cleanNumber(s)
	if c == "" || strings.Trim(c, "-—–") == "" {
		return 0, false
	}
	if v, err := strconv.ParseFloat(c, 64); err == nil {
		return v, finite(v)
	}
	m := leadingNumberRe.FindString(c)
	if m == "" {
		return 0, false
	}
	rest := strings.TrimSpace(c[len(m):])
	if rest != "" && (rest[0] >= '0' && rest[0] <= '9') {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return v, finite(v)
}

// Number reads a numeric cell value the way the parser does.
func Number(s string) (float64, bool) {
	v, ok := parseValue(s)
	if !ok {
		return 0, false
	}
	return roundValue(v), true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// roundValue trims float noise left by unit conversion.
func roundValue(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
