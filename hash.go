package parser

import "sync"

// Hashable is the identity contract used throughout the compiler for
// canonicalizing structurally-equal values: LR(0) kernels, DFA state-info
// records, range-set entries.
type Hashable interface {
	Comparable
	HashCode() uint32
}

type Ordered interface {
	CompareOrder(v interface{}) int
}

type Comparable interface {
	Equals(v interface{}) bool
}

type Hashset interface {
	Size() int
	Has(x Hashable) (Hashable, bool)
	Add(x ...Hashable) int
	Replace(x ...Hashable) int
	AddReplace(x ...Hashable)
	Remove(x ...Hashable) int
	OpenCursor() Cursor
}

type Hashmap interface {
	ContainsKey(k Hashable) bool
	Get(k Hashable) (Comparable, bool)
	Put(k Hashable, v Comparable) bool
	Del(k Hashable, v Comparable) bool
	DelKey(k Hashable) int
	OpenCursor() Cursor
}

type Cursor interface {
	Next() interface{}
	HasMore() bool
	Close() error
}

// genericHashSet canonicalizes by HashCode bucket + Equals, same as the
// original, but guarded by a plain mutex rather than a channel pair: the
// compilation pipeline is single-threaded batch work (see session.go), so
// the extra machinery bought nothing but a more roundabout lock.
type genericHashSet struct {
	mu   sync.Mutex
	x    map[uint32][]Hashable
	size int
}

func NewHashSet() Hashset {
	return &genericHashSet{x: make(map[uint32][]Hashable)}
}

func (hs *genericHashSet) Size() int {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	return hs.size
}

func (hs *genericHashSet) Has(x Hashable) (Hashable, bool) {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	k := x.HashCode()
	if m, has := hs.x[k]; has {
		for _, v := range m {
			if x.Equals(v) {
				return v, true
			}
		}
	}
	return nil, false
}

func (hs *genericHashSet) Add(x ...Hashable) int {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	c := 0
	for _, nv := range x {
		k := nv.HashCode()
		found := false
		for _, v := range hs.x[k] {
			if nv.Equals(v) {
				found = true
				break
			}
		}
		if !found {
			hs.x[k] = append(hs.x[k], nv)
			hs.size++
			c++
		}
	}
	return c
}

func (hs *genericHashSet) Replace(x ...Hashable) int {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	c := 0
	for _, nv := range x {
		k := nv.HashCode()
		if m, has := hs.x[k]; has {
			for i, v := range m {
				if nv.Equals(v) {
					hs.x[k][i] = nv
					c++
				}
			}
		}
	}
	return c
}

func (hs *genericHashSet) AddReplace(x ...Hashable) {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	for _, nv := range x {
		k := nv.HashCode()
		set := false
		for i, v := range hs.x[k] {
			if nv.Equals(v) {
				hs.x[k][i] = nv
				set = true
				break
			}
		}
		if !set {
			hs.size++
			hs.x[k] = append(hs.x[k], nv)
		}
	}
}

func (hs *genericHashSet) Remove(x ...Hashable) int {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	c := 0
	for _, nv := range x {
		k := nv.HashCode()
		m := hs.x[k]
		for i, v := range m {
			if nv.Equals(v) {
				hs.x[k] = append(m[0:i], m[i+1:]...)
				hs.size--
				c++
				break
			}
		}
	}
	return c
}

func (hs *genericHashSet) OpenCursor() Cursor {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	var snapshot []Hashable
	for _, m := range hs.x {
		snapshot = append(snapshot, m...)
	}
	return &sliceCursor{items: snapshot}
}

// genericHashmap pairs a Hashable key bucket with Comparable values, the
// counterpart the original left as an interface only.
type genericHashmap struct {
	mu sync.Mutex
	x  map[uint32][]hashmapEntry
}

type hashmapEntry struct {
	key Hashable
	val Comparable
}

func NewHashMap() Hashmap {
	return &genericHashmap{x: make(map[uint32][]hashmapEntry)}
}

func (hm *genericHashmap) ContainsKey(k Hashable) bool {
	_, has := hm.Get(k)
	return has
}

func (hm *genericHashmap) Get(k Hashable) (Comparable, bool) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	for _, e := range hm.x[k.HashCode()] {
		if e.key.Equals(k) {
			return e.val, true
		}
	}
	return nil, false
}

func (hm *genericHashmap) Put(k Hashable, v Comparable) bool {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hc := k.HashCode()
	for i, e := range hm.x[hc] {
		if e.key.Equals(k) {
			hm.x[hc][i].val = v
			return false
		}
	}
	hm.x[hc] = append(hm.x[hc], hashmapEntry{k, v})
	return true
}

func (hm *genericHashmap) Del(k Hashable, v Comparable) bool {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hc := k.HashCode()
	for i, e := range hm.x[hc] {
		if e.key.Equals(k) && e.val.Equals(v) {
			hm.x[hc] = append(hm.x[hc][0:i], hm.x[hc][i+1:]...)
			return true
		}
	}
	return false
}

func (hm *genericHashmap) DelKey(k Hashable) int {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hc := k.HashCode()
	c := len(hm.x[hc])
	delete(hm.x, hc)
	return c
}

func (hm *genericHashmap) OpenCursor() Cursor {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	var snapshot []Hashable
	for _, m := range hm.x {
		for _, e := range m {
			snapshot = append(snapshot, e.key)
		}
	}
	return &sliceCursor{items: snapshot}
}

type sliceCursor struct {
	items []Hashable
	pos   int
}

func (sc *sliceCursor) Next() interface{} {
	if sc.pos >= len(sc.items) {
		panic("no more elements in iterator")
	}
	v := sc.items[sc.pos]
	sc.pos++
	return v
}

func (sc *sliceCursor) HasMore() bool {
	return sc.pos < len(sc.items)
}

func (sc *sliceCursor) Close() error {
	sc.pos = len(sc.items)
	return nil
}
