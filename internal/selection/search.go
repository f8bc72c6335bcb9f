package selection

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lowercases s and strips accents so "Hélène" matches "helene".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return cases.Fold().String(strings.TrimSpace(out))
}

// Search returns the candidates whose text contains query after folding,
// in their original order. An empty query matches everything.
func Search[T any](candidates []T, query string, text func(T) string) []T {
	q := Fold(query)
	if q == "" {
		return append([]T(nil), candidates...)
	}
	var out []T
	for _, c := range candidates {
		if strings.Contains(Fold(text(c)), q) {
			out = append(out, c)
		}
	}
	return out
}
