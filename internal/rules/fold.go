package rules

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Fold normalizes text for alias comparison: compatibility decomposition,
// lower case, combining marks and apostrophes dropped, every other
// non-alphanumeric run collapsed to one space, and a space inserted between
// digits and letters so "1кв" and "1 кв" compare equal.
func Fold(s string) string {
	s = strings.ToLower(norm.NFKD.String(s))
	var b strings.Builder
	b.Grow(len(s))
	pendingSpace := false
	var prev rune
	for _, r := range s {
		switch {
		case unicode.Is(unicode.Mn, r):
			continue
		case isApostrophe(r):
			continue
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if b.Len() > 0 && (pendingSpace || unicode.IsDigit(r) != unicode.IsDigit(prev)) {
				b.WriteByte(' ')
			}
			b.WriteRune(r)
			pendingSpace = false
			prev = r
		default:
			pendingSpace = true
		}
	}
	return b.String()
}

func isApostrophe(r rune) bool {
	switch r {
	case '\'', '`', 'ʻ', 'ʼ', '‘', '’', '´':
		return true
	}
	return false
}

// containsPhrase reports whether phrase occurs in folded text on token boundaries.
func containsPhrase(folded, phrase string) bool {
	if phrase == "" || folded == "" {
		return false
	}
	return strings.Contains(" "+folded+" ", " "+phrase+" ")
}

// hasStem reports whether any token of folded text starts with stem.
func hasStem(folded, stem string) bool {
	if stem == "" {
		return false
	}
	for _, tok := range strings.Fields(folded) {
		if strings.HasPrefix(tok, stem) {
			return true
		}
	}
	return false
}
