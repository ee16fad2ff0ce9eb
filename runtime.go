package parser

// Table is the minimal read-only view over a compiled parser a runtime
// needs to execute §4.11's step/can_reduce contract. It is satisfied
// directly by LalrAutomaton plus its action rows, so a generated parser
// built against this package never has to re-derive state from the raw
// item sets.
type Table struct {
	Goto    []map[uint32]int // per state: symbol id -> target state (shift/goto)
	Actions [][]RowAction    // per state: action row, in table order
}

// NewTable flattens an LalrAutomaton into the compact form Step/CanReduce
// walk, preserving table order (the order conflicting actions were
// appended in during C8, so multiple candidates for the same symbol are
// tried in that same order at run time, per §4.11).
func NewTable(a *LalrAutomaton) *Table {
	t := &Table{
		Goto:    make([]map[uint32]int, len(a.States)),
		Actions: make([][]RowAction, len(a.States)),
	}
	for i, st := range a.States {
		t.Goto[i] = st.Goto
		t.Actions[i] = a.Actions[i]
	}
	return t
}

func (t *Table) actionsFor(state int, symbol uint32) []RowAction {
	var out []RowAction
	for _, a := range t.Actions[state] {
		if a.Symbol == symbol {
			out = append(out, a)
		}
	}
	return out
}

// stackFrame is one scratch-stack entry (§9's "explicit (stack_offset,
// pushed_sentinel_stack)" design note): a state id. canReduceFrom does not
// build a stack of these; it tracks only a count of scratch frames (depth).
type stackFrame struct {
	state int
}

// ReduceStack is the minimal state a run-time parser exposes for
// simulation: its current state plus, for a given state on the physical
// stack some fixed number of frames below the top, the state that was
// current before that frame's items were pushed. A real parser stack
// satisfies this with an O(1) slice-index lookup; CanReduce only ever
// walks backward from the top.
type ReduceStack interface {
	// Top returns the state on top of the stack (current state).
	Top() int
	// StateBelow returns the state that was current count items below
	// the top (used after a simulated reduce/divert to find the state a
	// goto is computed from).
	StateBelow(count int) int
}

// CanReduce implements §4.11's can_reduce(symbol) algorithm: simulate,
// without consuming input, whether a chain of reduces/diverts from the
// current configuration reaches a state whose action for symbol is shift
// or accept. A weak_reduce encountered mid-simulation recurses with a
// fresh scratch view rather than committing to it, matching the spec's
// "recursively test ... if true -> true, else advance past this action".
func CanReduce(t *Table, stack ReduceStack, symbol uint32) bool {
	return canReduceFrom(t, stack, stack.Top(), 0, symbol, 0)
}

// canReduceFrom walks forward from `state`, tracking how many scratch
// frames have been pushed on top of the real stack (depth) so
// StateBelow/goto lookups can still reach into the real stack once the
// scratch frames are exhausted. A recursion budget guards against a
// pathological guard/weak_reduce cycle in a malformed table; it should
// never be exercised on a table built from a valid grammar.
func canReduceFrom(t *Table, stack ReduceStack, state int, depth int, symbol uint32, budget int) bool {
	if budget > 10000 {
		return false
	}
	for _, a := range t.actionsFor(state, symbol) {
		switch a.Kind {
		case ActionShift, ActionAccept:
			return true
		case ActionReduce:
			below := stateBelowScratch(stack, depth, len(a.Prod.Body().Items))
			next, ok := t.Goto[below][a.Prod.Lhs().Id()]
			if !ok {
				continue
			}
			if canReduceFrom(t, stack, next, 0, symbol, budget+1) {
				return true
			}
		case ActionWeakReduce:
			below := stateBelowScratch(stack, depth, len(a.Prod.Body().Items))
			next, ok := t.Goto[below][a.Prod.Lhs().Id()]
			if !ok {
				continue
			}
			if canReduceFrom(t, stack, next, 0, symbol, budget+1) {
				return true
			}
		case ActionDivert:
			if canReduceFrom(t, stack, a.Target, depth+1, symbol, budget+1) {
				return true
			}
		default:
			continue
		}
	}
	return false
}

// stateBelowScratch resolves "the state popCount items below the current
// simulated top", accounting for scratch frames pushed during this
// simulation (depth) before falling back to the real stack via
// StateBelow.
func stateBelowScratch(stack ReduceStack, depth, popCount int) int {
	if popCount <= depth {
		return stack.Top()
	}
	return stack.StateBelow(popCount - depth)
}

// Step executes one parse step per §4.11's basic-step rules, returning
// the resulting action actually taken (or false if no candidate action
// applied, i.e. a syntax error at this (state, symbol)).
//
// This function only decides *which* action fires; applying shift/reduce
// to an actual value stack is the generated parser's job (it owns the
// concrete stack representation — this package only has to guarantee
// consistent action selection given a ReduceStack view).
func Step(t *Table, stack ReduceStack, symbol uint32) (RowAction, bool) {
	for _, a := range t.actionsFor(stack.Top(), symbol) {
		switch a.Kind {
		case ActionShift, ActionAccept, ActionGoto, ActionDivert, ActionIgnore:
			return a, true
		case ActionReduce:
			return a, true
		case ActionWeakReduce:
			if CanReduce(t, stack, symbol) {
				return a, true
			}
			continue
		case ActionGuard:
			// guard sub-parsing against the lookahead stream requires the
			// lexer interface; left to the generated parser via GuardRunner.
			return a, true
		}
	}
	return RowAction{}, false
}

// GuardRunner is implemented by the generated parser to run the guard
// sub-parser of §4.11: starting in the table state named by a Guard
// action, consume lookahead symbols (without committing them to the main
// stack) until either a designated accept is reached — in which case it
// returns the synthesized guard-symbol id to substitute for the real
// lookahead — or the sub-match fails.
type GuardRunner interface {
	RunGuard(startState int) (guardSymbol uint32, matched bool)
}
