package parser

// firstOfSuffix computes FIRST(p . restOfContext) and whether that suffix
// is nullable, walking through p's wrapper cont-chain exactly as closure()
// does. visiting guards against the self-referential loop positions
// RepeatZero/RepeatOne produce: a position revisited while still being
// computed contributes nothing new, which is the correct fixed point for
// a suffix that can only be reached by going around the loop again
// without consuming a terminal.
func (b *lalrBuilder) firstOfSuffix(p *pos, visiting map[*pos]bool) (map[uint32]bool, bool) {
	if visiting[p] {
		return map[uint32]bool{}, false
	}
	visiting[p] = true
	defer delete(visiting, p)

	if p.atEnd() {
		if len(p.cont) == 0 {
			return map[uint32]bool{}, true
		}
		out := make(map[uint32]bool)
		nullable := false
		for _, c := range p.cont {
			f, n := b.firstOfSuffix(c, visiting)
			for id := range f {
				out[id] = true
			}
			if n {
				nullable = true
			}
		}
		return out, nullable
	}

	it := p.current()
	switch it.Kind() {
	case KindTerminal:
		return map[uint32]bool{it.Term().Id(): true}, false
	case KindNonterminal:
		out := make(map[uint32]bool)
		for _, t := range b.firstIdx.FirstOfNonterminal(it.Term()) {
			out[t.Id()] = true
		}
		if !b.nullable(it.Term()) {
			return out, false
		}
		rf, rn := b.firstOfSuffix(advancePos(p), visiting)
		for id := range rf {
			out[id] = true
		}
		return out, rn
	case KindOptional, KindRepeatZero:
		inside, _ := b.firstOfSuffix(&pos{rule: it.Rule(), dot: 0, cont: []*pos{advancePos(p)}}, visiting)
		past, pastN := b.firstOfSuffix(advancePos(p), visiting)
		out := make(map[uint32]bool)
		for id := range inside {
			out[id] = true
		}
		for id := range past {
			out[id] = true
		}
		return out, pastN
	case KindRepeatOne:
		loop := &pos{rule: it.Rule(), dot: 0}
		loop.cont = []*pos{loop, advancePos(p)}
		inside, _ := b.firstOfSuffix(loop, visiting)
		nullable := b.firstIdx.RuleMatchesEmpty(it.Rule())
		if nullable {
			_, pastN := b.firstOfSuffix(advancePos(p), visiting)
			return inside, pastN
		}
		return inside, false
	case KindAlternate:
		lf, ln := b.firstOfSuffix(&pos{rule: it.Rule(), dot: 0, cont: []*pos{advancePos(p)}}, visiting)
		rf, rn := b.firstOfSuffix(&pos{rule: it.AltRule(), dot: 0, cont: []*pos{advancePos(p)}}, visiting)
		out := make(map[uint32]bool)
		for id := range lf {
			out[id] = true
		}
		for id := range rf {
			out[id] = true
		}
		return out, ln || rn
	case KindGuard:
		return b.firstOfSuffix(advancePos(p), visiting)
	}
	return map[uint32]bool{}, false
}

func (b *lalrBuilder) nullable(nt Term) bool {
	idx, err := b.idx.GetIndex(GrammarIndexTypeNullability)
	if err != nil {
		return false
	}
	return idx.(NullabilityGrammarIndex).IsNullable(nt)
}

// laClosure is closure(), generalized to carry a lookahead set per item
// discovered, accumulated to a fixed point (an item reached through two
// different closure paths unions both contributed sets). It mirrors
// expandOne's case analysis; the only difference is that every derived
// item's lookahead is computed via firstOfSuffix of what follows it,
// rather than left implicit.
func (b *lalrBuilder) laClosure(seed *pos, seedLA map[uint32]bool) map[*pos]map[uint32]bool {
	result := make(map[*pos]map[uint32]bool)
	type work struct {
		p  *pos
		la map[uint32]bool
	}
	queue := []work{{seed, seedLA}}
	for len(queue) > 0 {
		w := queue[0]
		queue = queue[1:]
		cur, ok := result[w.p]
		if !ok {
			cur = make(map[uint32]bool)
			result[w.p] = cur
		}
		grew := false
		for id := range w.la {
			if !cur[id] {
				cur[id] = true
				grew = true
			}
		}
		if !grew && ok {
			continue
		}
		if w.p.atEnd() {
			for _, c := range w.p.cont {
				queue = append(queue, work{c, cur})
			}
			continue
		}
		it := w.p.current()
		switch it.Kind() {
		case KindTerminal:
		case KindNonterminal:
			for _, prod := range b.prodIdx.GetProductions(it.Term()) {
				rest := advancePos(w.p)
				f, n := b.firstOfSuffix(rest, map[*pos]bool{})
				la := f
				if n {
					for id := range cur {
						la[id] = true
					}
				}
				queue = append(queue, work{&pos{rule: prod.Body(), dot: 0, cont: []*pos{rest}, top: w.p.top}, la})
			}
		case KindOptional, KindRepeatZero:
			rest := advancePos(w.p)
			queue = append(queue, work{&pos{rule: it.Rule(), dot: 0, cont: []*pos{rest}, top: w.p.top}, cur})
			queue = append(queue, work{rest, cur})
		case KindRepeatOne:
			rest := advancePos(w.p)
			loop := &pos{rule: it.Rule(), dot: 0, top: w.p.top}
			loop.cont = []*pos{loop, rest}
			queue = append(queue, work{loop, cur})
		case KindAlternate:
			rest := advancePos(w.p)
			queue = append(queue, work{&pos{rule: it.Rule(), dot: 0, cont: []*pos{rest}, top: w.p.top}, cur})
			queue = append(queue, work{&pos{rule: it.AltRule(), dot: 0, cont: []*pos{rest}, top: w.p.top}, cur})
		case KindGuard:
		}
	}
	return result
}

// computeLookaheads implements the discovery-and-propagation algorithm of
// §4.8: for each kernel item I=[...·Xβ] in state s with goto(s,X)=s', run
// a single-seed lookahead closure of advance(I) with the sentinel '#'.
// Every item J discovered with a real terminal in its set is a spontaneous
// lookahead for the corresponding item in s'; every item discovered with
// '#' in its set instead marks a propagation edge from I to that item.
// Propagation edges are then relaxed to a fixed point.
func (b *lalrBuilder) computeLookaheads(a *LalrAutomaton) {
	const sentinel = uint32(0xffffffff)
	type edge struct {
		from *pos
		to   *pos
	}
	spontaneous := make(map[*pos]map[uint32]bool)
	var edges []edge

	for _, st := range a.States {
		for _, kitem := range st.Kernel {
			if kitem.atEnd() {
				continue
			}
			seed := advancePos(kitem)
			la := b.laClosure(seed, map[uint32]bool{sentinel: true})
			for item, set := range la {
				for id := range set {
					if id == sentinel {
						edges = append(edges, edge{kitem, item})
						continue
					}
					m, ok := spontaneous[item]
					if !ok {
						m = make(map[uint32]bool)
						spontaneous[item] = m
					}
					m[id] = true
				}
			}
		}
	}

	lookahead := make(map[*pos]map[uint32]bool)
	for p, s := range spontaneous {
		m := make(map[uint32]bool, len(s))
		for id := range s {
			m[id] = true
		}
		lookahead[p] = m
	}
	for _, st := range a.States {
		if len(st.Kernel) == 1 && st.Kernel[0].dot == 0 {
			m := lookahead[st.Kernel[0]]
			if m == nil {
				m = make(map[uint32]bool)
				lookahead[st.Kernel[0]] = m
			}
			m[st.b_bottomID(b)] = true
		}
	}

	changed := true
	for changed {
		changed = false
		for _, e := range edges {
			src := lookahead[e.from]
			if src == nil {
				continue
			}
			dst, ok := lookahead[e.to]
			if !ok {
				dst = make(map[uint32]bool)
				lookahead[e.to] = dst
			}
			for id := range src {
				if !dst[id] {
					dst[id] = true
					changed = true
				}
			}
		}
	}

	for _, st := range a.States {
		st.Lookahead = make(map[*pos]map[uint32]bool)
		for _, item := range st.Closed {
			if m, ok := lookahead[item]; ok {
				st.Lookahead[item] = m
			}
		}
	}
}

// b_bottomID is a tiny indirection so computeLookaheads can reach the
// grammar's bottom-of-input terminal id without threading the builder
// through LalrState.
func (st *LalrState) b_bottomID(b *lalrBuilder) uint32 {
	return b.grammar.Bottom().Id()
}
