package source

import (
	"sort"

	"github.com/maruel/natural"
)

// NaturalLess orders strings so embedded numbers compare by value
// ("img2" < "img10") and letters compare case-insensitively. Numeric runs
// sort before text runs at the same position. Ties fall back to the raw
// strings so the order is total.
func NaturalLess(a, b string) bool {
	fa, fb := foldCase(a), foldCase(b)
	if natural.Less(fa, fb) {
		return true
	}
	if natural.Less(fb, fa) {
		return false
	}
	return a < b
}

// SortNatural sorts names in place using NaturalLess.
func SortNatural(names []string) {
	sort.SliceStable(names, func(i, j int) bool { return NaturalLess(names[i], names[j]) })
}
