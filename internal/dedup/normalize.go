package dedup

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Normalize folds a title into its comparison form: NFKC, lowercase,
// punctuation removed, whitespace collapsed. Letters and digits of every
// script are kept, so Chinese titles survive intact. The result is
// recomposed, since stripping can leave a mark next to a new base letter.
func Normalize(title string) string {
	s := strings.ToLower(norm.NFKC.String(title))

	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			space = true
		case unicode.IsLetter(r) || unicode.IsNumber(r) || r == '_' || unicode.Is(unicode.Mn, r) || unicode.Is(unicode.Mc, r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		}
	}
	return norm.NFKC.String(b.String())
}
