package catalog

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripAccents decomposes to NFD and drops combining marks, so "anzianità"
// and "anzianita" index identically.
var stripAccents = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// NormalizeName canonicalizes a product name for table lookups: lowercase,
// accent-folded, with collapsed whitespace.
func NormalizeName(name string) string {
	folded, _, err := transform.String(stripAccents, name)
	if err != nil {
		folded = name
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}
