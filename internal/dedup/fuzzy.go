package dedup

import "github.com/pmezard/go-difflib/difflib"

// Ratio returns the SequenceMatcher similarity of a and b, computed over
// runes so that CJK titles compare per character.
func Ratio(a, b string) float64 {
	if a == b {
		return 1
	}
	m := difflib.NewMatcher(runesAsStrings(a), runesAsStrings(b))
	return m.Ratio()
}

func runesAsStrings(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

// bestRatio returns the highest ratio of title against any of the pools.
func bestRatio(title string, pools ...[]string) (float64, string) {
	var (
		best  float64
		match string
	)
	for _, pool := range pools {
		for _, other := range pool {
			if r := Ratio(title, other); r > best {
				best, match = r, other
			}
		}
	}
	return best, match
}
