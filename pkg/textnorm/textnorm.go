// Package textnorm normalizes customer text before any keyword comparison.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Normalize composes s to NFC, folds case and collapses whitespace runs to a single space.
// Diacritics are kept: "ban" and "bán" stay distinct words in Vietnamese.
func Normalize(s string) string {
	folded := cases.Fold().String(norm.NFC.String(s))

	return strings.Join(strings.FieldsFunc(folded, unicode.IsSpace), " ")
}

// Equal reports whether a and b are the same after normalization.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// Pattern prepares a regular expression for matching against normalized text. Patterns are only
// composed to NFC; folding them would corrupt escapes such as \S, so callers compile them case-insensitive.
func Pattern(pattern string) string {
	return "(?i)" + norm.NFC.String(strings.TrimSpace(pattern))
}
