// Package identity turns free-text bulletin fields into the canonical keys
// used to match entities against a prior export.
package identity

import (
	"strings"
	"unicode"
)

// NormalizeTaxID strips every whitespace rune from a raw SIRET. An empty
// result must never be used as a lookup key.
func NormalizeTaxID(raw string) string {
	return StripSpace(raw)
}

// NormalizePersonKey concatenates last and first name, strips whitespace and
// upper-cases the result. Callers gate on individual validity before lookup.
func NormalizePersonKey(lastName, firstName string) string {
	return strings.ToUpper(StripSpace(lastName + firstName))
}

// StripSpace removes every Unicode whitespace rune.
func StripSpace(s string) string {
	if s == "" {
		return s
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
