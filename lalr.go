package parser

import (
	"fmt"
	"sort"

	lls "github.com/emirpasic/gods/v2/stacks/linkedliststack"
)

// pos is one dotted position in the LR(0)/LALR(1) item graph. Unlike a
// classical [A -> α·β] pair, β's remaining symbols are not flattened into
// a single rule: once the dot enters an EBNF wrapper's child rule, pos
// tracks position inside that child, and cont records where control
// returns once the child rule is exhausted (§4.8's "behave as if both the
// item past the wrapper and the items inside R are present"). cont may
// hold more than one alternative (Alternate) and may be self-referential
// (RepeatZero/RepeatOne's loop-back), so all traversal over it must be
// cycle-safe.
type pos struct {
	rule *Rule
	dot  int
	cont []*pos
	top  ProductionRule // the owning top-level production; nil only for internal wrapper frames before kernel promotion
}

func (p *pos) atEnd() bool { return p.dot >= len(p.rule.Items) }

func (p *pos) current() Item {
	return p.rule.Items[p.dot]
}

func advancePos(p *pos) *pos {
	return &pos{rule: p.rule, dot: p.dot + 1, cont: p.cont, top: p.top}
}

// lalrBuilder holds the shared, read-only context (grammar + its derived
// indexes) used across closure, goto, and lookahead computation.
type lalrBuilder struct {
	grammar Grammar
	idx     IndexedGrammar
	prodIdx ProductionGrammarIndex
	firstIdx FirstSetGrammarIndex
	diags   *DiagnosticSink
	filename string
}

func newLalrBuilder(g Grammar, diags *DiagnosticSink, filename string) (*lalrBuilder, error) {
	idx := GetIndexedGrammar(g)
	pIdx, err := idx.GetIndex(GrammarIndexTypeProduction)
	if err != nil {
		return nil, err
	}
	fIdx, err := idx.GetIndex(GrammarIndexTypeFirstSet)
	if err != nil {
		return nil, err
	}
	return &lalrBuilder{
		grammar:  g,
		idx:      idx,
		prodIdx:  pIdx.(ProductionGrammarIndex),
		firstIdx: fIdx.(FirstSetGrammarIndex),
		diags:    diags,
		filename: filename,
	}, nil
}

// expandOne appends to worklist the closure contribution of p, per the
// case analysis of §4.8. Guard does not contribute items; its first()
// terminals are instead recorded in guardActions for the state currently
// being closed.
func (b *lalrBuilder) expandOne(p *pos, worklist *[]*pos, guardActions map[uint32]*Rule) {
	if p.atEnd() {
		for _, c := range p.cont {
			*worklist = append(*worklist, c)
		}
		return
	}
	it := p.current()
	switch it.Kind() {
	case KindTerminal:
		// leaf; contributes a shift transition, no closure expansion
	case KindNonterminal:
		for _, prod := range b.prodIdx.GetProductions(it.Term()) {
			*worklist = append(*worklist, &pos{rule: prod.Body(), dot: 0, cont: []*pos{advancePos(p)}, top: p.top})
		}
	case KindOptional:
		*worklist = append(*worklist, &pos{rule: it.Rule(), dot: 0, cont: []*pos{advancePos(p)}, top: p.top})
		*worklist = append(*worklist, advancePos(p))
	case KindRepeatZero:
		loop := &pos{rule: it.Rule(), dot: 0, top: p.top}
		loop.cont = []*pos{loop, advancePos(p)}
		*worklist = append(*worklist, loop)
		*worklist = append(*worklist, advancePos(p))
	case KindRepeatOne:
		loop := &pos{rule: it.Rule(), dot: 0, top: p.top}
		loop.cont = []*pos{loop, advancePos(p)}
		*worklist = append(*worklist, loop)
	case KindAlternate:
		*worklist = append(*worklist, &pos{rule: it.Rule(), dot: 0, cont: []*pos{advancePos(p)}, top: p.top})
		*worklist = append(*worklist, &pos{rule: it.AltRule(), dot: 0, cont: []*pos{advancePos(p)}, top: p.top})
	case KindGuard:
		if guardActions != nil {
			for _, t := range b.firstIdx.FirstOfRule(it.Rule()) {
				guardActions[t.Id()] = it.Rule()
			}
		}
	}
}

// closure computes the full item set (kernel plus derived positions)
// reachable from a kernel set, via a worklist over distinct *pos
// pointers — distinct here meaning "not literally the same object", so a
// closure pass never revisits the same frame twice even across cycles.
func (b *lalrBuilder) closure(kernel []*pos, guardActions map[uint32]*Rule) []*pos {
	seen := make(map[*pos]bool)
	var all []*pos
	worklist := append([]*pos(nil), kernel...)
	for len(worklist) > 0 {
		p := worklist[0]
		worklist = worklist[1:]
		if seen[p] {
			continue
		}
		seen[p] = true
		all = append(all, p)
		b.expandOne(p, &worklist, guardActions)
	}
	return all
}

// symbolKey identifies a possible goto/shift symbol.
type symbolKey struct {
	id uint32
}

// gotoSet partitions a closed item set by the symbol consumed at each
// non-end position, returning, per symbol, the advanced kernel positions
// of the destination state.
func gotoSet(closed []*pos) map[symbolKey][]*pos {
	out := make(map[symbolKey][]*pos)
	for _, p := range closed {
		if p.atEnd() {
			continue
		}
		it := p.current()
		if it.Kind() != KindTerminal && it.Kind() != KindNonterminal {
			continue
		}
		k := symbolKey{it.Term().Id()}
		out[k] = append(out[k], advancePos(p))
	}
	return out
}

// keyOfKernel produces a structural, cycle-safe identity string for a
// kernel set, used to deduplicate LALR states by kernel (§3: "Identity of
// a state is the kernel set").
func keyOfKernel(kernel []*pos) string {
	ids := make(map[*pos]int)
	var order []*pos
	var visit func(p *pos)
	visit = func(p *pos) {
		if _, ok := ids[p]; ok {
			return
		}
		ids[p] = len(order)
		order = append(order, p)
		for _, c := range p.cont {
			visit(c)
		}
	}
	for _, p := range kernel {
		visit(p)
	}
	topKeys := make([]int, len(kernel))
	for i, p := range kernel {
		topKeys[i] = ids[p]
	}
	sort.Ints(topKeys)
	out := fmt.Sprintf("K%v|", topKeys)
	for _, p := range order {
		contIDs := make([]int, len(p.cont))
		for i, c := range p.cont {
			contIDs[i] = ids[c]
		}
		sort.Ints(contIDs)
		topID := uint32(0)
		if p.top != nil {
			topID = p.top.Id()
		}
		out += fmt.Sprintf("%d:(r=%d,d=%d,t=%d,c=%v);", ids[p], p.rule.Id(), p.dot, topID, contIDs)
	}
	return out
}

// LalrState is one state of the finished LALR(1) automaton.
type LalrState struct {
	ID       int
	Kernel   []*pos
	Closed   []*pos
	Goto     map[uint32]int // symbol id -> state id (terminals and nonterminals share the space; ids are globally unique)
	Lookahead map[*pos]map[uint32]bool
	Guards   map[uint32]*Rule
}

// LalrAutomaton is the finished state/transition graph plus the action
// table derived from it.
type LalrAutomaton struct {
	States  []*LalrState
	Actions [][]RowAction // per state, the action row
	b       *lalrBuilder
}

// BuildLalrAutomaton runs the full C8 pipeline: LR(0) state generation,
// discovery-and-propagation lookahead computation, and action-table
// construction, for each start symbol named in startSymbols (one
// generated start state each, per §6's start-symbol option).
func BuildLalrAutomaton(g Grammar, startSymbols []string, diags *DiagnosticSink, filename string) (*LalrAutomaton, error) {
	b, err := newLalrBuilder(g, diags, filename)
	if err != nil {
		return nil, err
	}
	a := &LalrAutomaton{b: b}
	states := make(map[string]int)

	var addState func(kernel []*pos) int
	var worklist []int

	addState = func(kernel []*pos) int {
		key := keyOfKernel(kernel)
		if id, ok := states[key]; ok {
			return id
		}
		id := len(a.States)
		states[key] = id
		st := &LalrState{ID: id, Kernel: kernel, Goto: make(map[uint32]int)}
		a.States = append(a.States, st)
		worklist = append(worklist, id)
		return id
	}

	for _, sname := range startSymbols {
		startNt, has := g.TermByName(sname)
		if !has {
			diags.Error(CodeUndefinedNonterminal, filename, NoPosition, fmt.Sprintf("start symbol %q not found", sname))
			continue
		}
		var startProd ProductionRule
		for i := 0; i < g.NumProductionRule(); i++ {
			p := g.ProductionRule(i)
			if p.Lhs().Id() == g.Asterisk().Id() {
				body := p.Body().Items
				if len(body) == 2 && body[0].Term() != nil && body[0].Term().Id() == startNt.Id() {
					startProd = p
					break
				}
			}
		}
		if startProd == nil {
			diags.Error(CodeBugInvariant, filename, NoPosition, fmt.Sprintf("no augmented start production for %q", sname))
			continue
		}
		startItem := &pos{rule: startProd.Body(), dot: 0, top: startProd}
		addState([]*pos{startItem})
	}

	// Stack-based (depth-first) worklist using the gods stack (§SPEC_FULL E2): state
	// discovery order only affects id assignment, not semantics, so a
	// LIFO walk is as valid as the FIFO one and lets this module exercise
	// the same collection the rest of the pack reaches for.
	stack := lls.New[int]()
	for _, id := range worklist {
		stack.Push(id)
	}
	worklist = nil

	processed := make(map[int]bool)
	for !stack.Empty() {
		id, _ := stack.Pop()
		if processed[id] {
			continue
		}
		processed[id] = true
		st := a.States[id]
		guards := make(map[uint32]*Rule)
		st.Closed = b.closure(st.Kernel, guards)
		st.Guards = guards
		for sym, kernel := range gotoSet(st.Closed) {
			targetID := addState(kernel)
			st.Goto[sym.id] = targetID
			stack.Push(targetID)
		}
	}

	b.computeLookaheads(a)
	a.Actions = b.buildActionTable(a)
	b.logStates(a)
	return a, nil
}
