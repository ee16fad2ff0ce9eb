package parser

import (
	"sort"

	rbt "github.com/emirpasic/gods/v2/trees/redblacktree"
)

// Range is a half-open interval [Lo, Hi) of integer code points.
type Range struct {
	Lo, Hi int
}

func (r Range) Empty() bool { return r.Hi <= r.Lo }

func (r Range) overlapsOrAdjacent(o Range) bool {
	return r.Lo <= o.Hi && o.Lo <= r.Hi
}

// RangeSet is a canonical (sorted, disjoint, non-adjacent) collection of
// Ranges. The canonical form is cached as a sorted slice; a red-black tree
// keyed by range start backs Contains() lookups once the set stabilizes,
// the way a finalized symbol alphabet is queried repeatedly and rebuilt
// rarely during C4/C5.
type RangeSet struct {
	ranges []Range
	index  *rbt.Tree[int, int] // range start -> index into ranges, rebuilt lazily
	dirty  bool
}

func NewRangeSet() *RangeSet {
	return &RangeSet{}
}

func NewRangeSetOf(rs ...Range) *RangeSet {
	s := NewRangeSet()
	for _, r := range rs {
		s.Insert(r)
	}
	return s
}

func (s *RangeSet) Ranges() []Range {
	out := make([]Range, len(s.ranges))
	copy(out, s.ranges)
	return out
}

func (s *RangeSet) Len() int { return len(s.ranges) }

// Insert merges r with any adjacent/overlapping existing ranges so the
// sorted/disjoint/non-adjacent invariant holds on return.
func (s *RangeSet) Insert(r Range) {
	if r.Empty() {
		return
	}
	s.dirty = true
	out := make([]Range, 0, len(s.ranges)+1)
	inserted := false
	for _, e := range s.ranges {
		if !inserted && r.overlapsOrAdjacent(e) {
			if e.Lo < r.Lo {
				r.Lo = e.Lo
			}
			if e.Hi > r.Hi {
				r.Hi = e.Hi
			}
			continue
		}
		if !inserted && e.Lo > r.Hi {
			out = append(out, r)
			inserted = true
		}
		if !inserted && r.overlapsOrAdjacent(e) {
			if e.Lo < r.Lo {
				r.Lo = e.Lo
			}
			if e.Hi > r.Hi {
				r.Hi = e.Hi
			}
			continue
		}
		out = append(out, e)
	}
	if !inserted {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Lo < out[j].Lo })
	s.ranges = coalesce(out)
}

func coalesce(rs []Range) []Range {
	if len(rs) == 0 {
		return rs
	}
	out := rs[:1]
	for _, r := range rs[1:] {
		last := &out[len(out)-1]
		if r.Lo <= last.Hi {
			if r.Hi > last.Hi {
				last.Hi = r.Hi
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

// Remove splits existing ranges as needed to exclude r.
func (s *RangeSet) Remove(r Range) {
	if r.Empty() {
		return
	}
	s.dirty = true
	var out []Range
	for _, e := range s.ranges {
		if e.Hi <= r.Lo || e.Lo >= r.Hi {
			out = append(out, e)
			continue
		}
		if e.Lo < r.Lo {
			out = append(out, Range{e.Lo, r.Lo})
		}
		if e.Hi > r.Hi {
			out = append(out, Range{r.Hi, e.Hi})
		}
	}
	s.ranges = out
}

func (s *RangeSet) rebuildIndex() {
	if !s.dirty && s.index != nil {
		return
	}
	t := rbt.New[int, int]()
	for i, r := range s.ranges {
		t.Put(r.Lo, i)
	}
	s.index = t
	s.dirty = false
}

// Contains reports whether symbol lies in some range of the set, via a
// binary search over range starts (a red-black tree floor lookup gives the
// same O(log n) bound once the index is warm).
func (s *RangeSet) Contains(symbol int) bool {
	s.rebuildIndex()
	floorNode, found := s.index.Floor(symbol)
	if !found {
		return false
	}
	idx := floorNode.Value
	r := s.ranges[idx]
	return symbol >= r.Lo && symbol < r.Hi
}

func (s *RangeSet) Union(o *RangeSet) *RangeSet {
	out := NewRangeSet()
	i, j := 0, 0
	for i < len(s.ranges) || j < len(o.ranges) {
		switch {
		case j >= len(o.ranges) || (i < len(s.ranges) && s.ranges[i].Lo <= o.ranges[j].Lo):
			out.Insert(s.ranges[i])
			i++
		default:
			out.Insert(o.ranges[j])
			j++
		}
	}
	return out
}

func (s *RangeSet) Intersect(o *RangeSet) *RangeSet {
	out := NewRangeSet()
	i, j := 0, 0
	for i < len(s.ranges) && j < len(o.ranges) {
		a, b := s.ranges[i], o.ranges[j]
		lo := max(a.Lo, b.Lo)
		hi := min(a.Hi, b.Hi)
		if lo < hi {
			out.Insert(Range{lo, hi})
		}
		if a.Hi < b.Hi {
			i++
		} else {
			j++
		}
	}
	return out
}

func (s *RangeSet) Difference(o *RangeSet) *RangeSet {
	out := NewRangeSetOf(s.ranges...)
	for _, r := range o.ranges {
		out.Remove(r)
	}
	return out
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
