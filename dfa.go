package parser

import (
	"fmt"
	"sort"
)

// DfaState is a determinized lexer state: a dense transition table keyed
// by symbol-class id, plus the single effective accept action (if any)
// chosen by EffectiveAccept over the union of its NFA constituents.
type DfaState struct {
	ID        int
	Trans     map[int]int
	Accept    AcceptAction
	HasAccept bool
	// ShadowAccept is the strong-shadow accept C9 attaches alongside
	// Accept when this state's effective accept is a contended weak
	// terminal; nil until InjectWeakSymbols runs.
	ShadowAccept *AcceptAction
	nfaSet       []int // constituent NFA state ids, kept for weak-symbol injection (C9)
}

// Dfa is the determinized, and optionally compacted/merged, lexer
// automaton. State ids are assigned in BFS order from the initial state
// during subset construction (§5's determinism guarantee).
type Dfa struct {
	States   []*DfaState
	Alphabet []*RangeSet
	Start    int
}

// DfaBuildOptions mirrors the config-map options of §6 that gate C5's two
// optional passes.
type DfaBuildOptions struct {
	DisableCompact bool
	DisableMerge   bool
}

// BuildDfa runs the full four-pass pipeline of §4.5: unique-symbol
// rewrite, subset construction, and the two optional passes.
func BuildDfa(nfa *Nfa, opts DfaBuildOptions) *Dfa {
	rewritten := uniqueSymbolRewrite(nfa)
	dfa := subsetConstruct(rewritten)
	if !opts.DisableCompact {
		dfa = compactDfa(dfa)
	}
	if !opts.DisableMerge {
		dfa = mergeSymbols(dfa)
	}
	return dfa
}

// uniqueSymbolRewrite partitions the alphabet so no two classes overlap,
// rewriting every transition to reference the refined classes. Grounded in
// lexl/interval.go's priority-merge: here there is no priority (classes
// are data, not accept actions), so overlap resolution is a plain
// boundary-sweep producing the coarsest disjoint refinement.
func uniqueSymbolRewrite(nfa *Nfa) *Nfa {
	var bounds []int
	boundSet := make(map[int]bool)
	for _, rs := range nfa.Alphabet {
		for _, r := range rs.Ranges() {
			if !boundSet[r.Lo] {
				boundSet[r.Lo] = true
				bounds = append(bounds, r.Lo)
			}
			if !boundSet[r.Hi] {
				boundSet[r.Hi] = true
				bounds = append(bounds, r.Hi)
			}
		}
	}
	sort.Ints(bounds)

	type piece struct{ lo, hi int }
	var pieces []piece
	for i := 0; i+1 < len(bounds); i++ {
		pieces = append(pieces, piece{bounds[i], bounds[i+1]})
	}

	out := &Nfa{States: nfa.States, Start: nfa.Start, pieceIDs: make(map[int]int)}
	oldToNew := make(map[int][]int, len(nfa.Alphabet))
	for oldID, rs := range nfa.Alphabet {
		var newIDs []int
		for pieceIdx, p := range pieces {
			if rs.Contains(p.lo) {
				id, ok := out.pieceIDs[pieceIdx]
				if !ok {
					id = out.AddSymbolClass(NewRangeSetOf(Range{p.lo, p.hi}))
					out.pieceIDs[pieceIdx] = id
				}
				newIDs = append(newIDs, id)
			}
		}
		oldToNew[oldID] = newIDs
	}

	for _, st := range out.States {
		var rewritten []nfaTransition
		for _, t := range st.Trans {
			if t.SetID == EpsilonSet {
				rewritten = append(rewritten, t)
				continue
			}
			for _, nid := range oldToNew[t.SetID] {
				rewritten = append(rewritten, nfaTransition{nid, t.Target})
			}
		}
		st.Trans = rewritten
	}
	return out
}

func dfaKey(states []int) string {
	return fmt.Sprint(states)
}

// subsetConstruct is the standard epsilon-closure + move worklist
// algorithm; state ids are BFS-assigned for determinism across runs.
func subsetConstruct(nfa *Nfa) *Dfa {
	dfa := &Dfa{Alphabet: nfa.Alphabet}
	seen := make(map[string]int)
	var worklist []int

	startSet := nfa.EpsilonClosure([]int{nfa.Start})
	startKey := dfaKey(startSet)
	startID := addDfaState(dfa, nfa, startSet)
	seen[startKey] = startID
	dfa.Start = startID
	worklist = append(worklist, startID)

	for len(worklist) > 0 {
		id := worklist[0]
		worklist = worklist[1:]
		st := dfa.States[id]
		for classID := range nfa.Alphabet {
			moved := nfa.Move(st.nfaSet, classID)
			if len(moved) == 0 {
				continue
			}
			closure := nfa.EpsilonClosure(moved)
			key := dfaKey(closure)
			target, ok := seen[key]
			if !ok {
				target = addDfaState(dfa, nfa, closure)
				seen[key] = target
				worklist = append(worklist, target)
			}
			st.Trans[classID] = target
		}
	}
	return dfa
}

func addDfaState(dfa *Dfa, nfa *Nfa, nfaSet []int) int {
	id := len(dfa.States)
	st := &DfaState{ID: id, Trans: make(map[int]int), nfaSet: nfaSet}
	if acc, ok := EffectiveAccept(nfa.AcceptsOf(nfaSet)); ok {
		st.Accept = acc
		st.HasAccept = true
	}
	dfa.States = append(dfa.States, st)
	return id
}

// compactDfa merges states with identical outgoing transitions and accept
// sets (a Hopcroft-style equivalence pass, simplified to the common case
// of exact transition-table equality rather than full partition
// refinement — disabling it changes size, never semantics, per §4.5).
func compactDfa(dfa *Dfa) *Dfa {
	sig := func(s *DfaState) string {
		keys := make([]int, 0, len(s.Trans))
		for k := range s.Trans {
			keys = append(keys, k)
		}
		sort.Ints(keys)
		out := fmt.Sprintf("accept=%v:%v;", s.HasAccept, s.Accept)
		for _, k := range keys {
			out += fmt.Sprintf("%d->%d,", k, s.Trans[k])
		}
		return out
	}
	groupOf := make(map[int]int)
	bySig := make(map[string]int)
	for _, s := range dfa.States {
		key := sig(s)
		if rep, ok := bySig[key]; ok {
			groupOf[s.ID] = rep
		} else {
			bySig[key] = s.ID
			groupOf[s.ID] = s.ID
		}
	}
	return remapDfa(dfa, groupOf)
}

// remapDfa rebuilds a Dfa after old ids have been merged according to
// groupOf (old id -> surviving representative old id), reassigning dense
// ids in BFS order from the start state.
func remapDfa(dfa *Dfa, groupOf map[int]int) *Dfa {
	newIDs := make(map[int]int)
	out := &Dfa{Alphabet: dfa.Alphabet}
	var order []int
	var assign func(old int) int
	assign = func(old int) int {
		rep := groupOf[old]
		if id, ok := newIDs[rep]; ok {
			return id
		}
		id := len(order)
		newIDs[rep] = id
		order = append(order, rep)
		return id
	}
	out.Start = assign(dfa.Start)
	for i := 0; i < len(order); i++ {
		old := dfa.States[order[i]]
		ns := &DfaState{ID: i, Trans: make(map[int]int), Accept: old.Accept, HasAccept: old.HasAccept, nfaSet: old.nfaSet}
		classes := make([]int, 0, len(old.Trans))
		for class := range old.Trans {
			classes = append(classes, class)
		}
		sort.Ints(classes)
		for _, class := range classes {
			ns.Trans[class] = assign(old.Trans[class])
		}
		out.States = append(out.States, ns)
	}
	return out
}

// mergeSymbols merges two symbol classes iff they drive identical
// transitions in every state and share the same acceptance role, then
// renumbers the alphabet (§4.5 pass 4).
func mergeSymbols(dfa *Dfa) *Dfa {
	n := len(dfa.Alphabet)
	colSig := func(class int) string {
		out := ""
		for _, s := range dfa.States {
			if t, ok := s.Trans[class]; ok {
				out += fmt.Sprintf("%d,", t)
			} else {
				out += "-,"
			}
		}
		return out
	}
	classGroup := make([]int, n)
	bySig := make(map[string]int)
	for c := 0; c < n; c++ {
		key := colSig(c)
		if rep, ok := bySig[key]; ok {
			classGroup[c] = rep
		} else {
			bySig[key] = c
			classGroup[c] = c
		}
	}
	newClassID := make(map[int]int)
	var newAlphabet []*RangeSet
	for c := 0; c < n; c++ {
		rep := classGroup[c]
		id, ok := newClassID[rep]
		if !ok {
			id = len(newAlphabet)
			newClassID[rep] = id
			newAlphabet = append(newAlphabet, NewRangeSet())
		}
		for _, r := range dfa.Alphabet[c].Ranges() {
			newAlphabet[id].Insert(r)
		}
	}
	out := &Dfa{Alphabet: newAlphabet, Start: dfa.Start}
	for _, s := range dfa.States {
		ns := &DfaState{ID: s.ID, Trans: make(map[int]int), Accept: s.Accept, HasAccept: s.HasAccept, nfaSet: s.nfaSet}
		for class, target := range s.Trans {
			ns.Trans[newClassID[classGroup[class]]] = target
		}
		out.States = append(out.States, ns)
	}
	return out
}

// ClassOfRune finds which alphabet class, if any, contains symbol.
func (d *Dfa) ClassOfRune(symbol int) int {
	for id, rs := range d.Alphabet {
		if rs.Contains(symbol) {
			return id
		}
	}
	return NullClass
}

// NullState is returned by Step when there is no such transition.
const NullState = -1

// Step advances the DFA from state on the given class id.
func (d *Dfa) Step(state, class int) int {
	if t, ok := d.States[state].Trans[class]; ok {
		return t
	}
	return NullState
}
