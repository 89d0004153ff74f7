// Package vocab resolves free-form numismatic vocabulary — legend epithets,
// deity names, denominations — against controlled term lists. Providers sit
// behind one Lookup interface: a local fuzzy matcher and an optional
// LLM-backed collaborator, both just untrusted sources to the rest of the
// system.
package vocab

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks removes combining marks after NFD decomposition, so "Lugdúnum"
// and "Lugdunum" normalize identically.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lowercases, strips diacritics, and collapses whitespace and
// interpuncts. Legends on the coins themselves use interpuncts and V for U;
// both are folded.
func Normalize(term string) string {
	out, _, err := transform.String(stripMarks, term)
	if err != nil {
		out = term
	}
	out = strings.ToLower(out)
	out = strings.Map(func(r rune) rune {
		switch {
		case r == '·' || r == '•' || r == '.':
			return ' '
		case unicode.IsSpace(r):
			return ' '
		}
		return r
	}, out)
	return strings.Join(strings.Fields(out), " ")
}

// NormalizeLegend additionally applies epigraphic letter folding (V→U) for
// comparing inscriptions rather than modern names.
func NormalizeLegend(legend string) string {
	return strings.ReplaceAll(Normalize(legend), "v", "u")
}
