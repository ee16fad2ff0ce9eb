package parser

import (
	"sort"

	"github.com/timtadh/data-structures/hashtable"
	"github.com/timtadh/data-structures/types"
)

// NullClass is the sentinel symbol-set id returned for a symbol with no
// class membership.
const NullClass = -1

// classInterval is one entry of the finalized, disjoint symbol-class
// alphabet: the half-open range [Lo,Hi) all mapped to ClassID.
type classInterval struct {
	Lo, Hi  int
	ClassID int
}

// SymbolTranslator maps a raw input symbol to its compact set id via
// binary search over a finalized, disjoint interval table (§4.4). A small
// hash-table cache (timtadh/data-structures, the same package gorgo pulls
// in through its lexer generator) short-circuits repeat lookups for the
// handful of symbols that dominate real input, e.g. ASCII letters/digits.
type SymbolTranslator struct {
	intervals []classInterval
	cache     *hashtable.LinearHash
}

// BuildSymbolTranslator finalizes a translator from the NFA's symbol
// alphabet after C5 pass 1 (unique-symbol rewrite) has made the classes
// disjoint; class id == index into alphabet.
func BuildSymbolTranslator(alphabet []*RangeSet) *SymbolTranslator {
	var ivs []classInterval
	for classID, rs := range alphabet {
		for _, r := range rs.Ranges() {
			ivs = append(ivs, classInterval{r.Lo, r.Hi, classID})
		}
	}
	sort.Slice(ivs, func(i, j int) bool { return ivs[i].Lo < ivs[j].Lo })
	return &SymbolTranslator{intervals: ivs, cache: hashtable.NewLinearHash()}
}

// Translate returns the class id for symbol, or NullClass if it belongs to
// no defined class.
func (t *SymbolTranslator) Translate(symbol int) int {
	key := types.Int(symbol)
	if v, err := t.cache.Get(key); err == nil {
		return int(v.(types.Int))
	}
	n := len(t.intervals)
	idx := sort.Search(n, func(i int) bool { return t.intervals[i].Lo > symbol })
	idx--
	class := NullClass
	if idx >= 0 && idx < n && symbol >= t.intervals[idx].Lo && symbol < t.intervals[idx].Hi {
		class = t.intervals[idx].ClassID
	}
	t.cache.Put(key, types.Int(class))
	return class
}
