package matcher

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Tokenize splits a description into case-folded alphanumeric tokens.
//
// Folding is locale independent and accents are stripped after NFKD
// decomposition, so "Café Nº 5" and "cafe no 5" tokenize identically.
// Any rune that is not a letter or digit separates tokens.
func Tokenize(s string) []string {
	if s == "" {
		return nil
	}

	decomposed := norm.NFKD.String(s)
	stripped := strings.Map(func(r rune) rune {
		if unicode.Is(unicode.Mn, r) {
			return -1
		}
		return r
	}, decomposed)

	// Casers carry state and are not safe to share across goroutines
	folded := cases.Fold().String(stripped)

	return strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
