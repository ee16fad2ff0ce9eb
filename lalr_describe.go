package parser

import (
	"fmt"

	"github.com/dtromb/parser/lrc"
)

// describeItem renders a dotted position as an lrc.LrcItem tree: p's own
// rule with the caret at p.dot, labelled with the owning production's
// left-hand side. p.cont is not followed, so the frames control returns
// to after p's rule are not shown; a position already in visiting
// renders as an empty leaf.
func describeItem(p *pos, visiting map[*pos]bool) lrc.LrcItem {
	if visiting[p] {
		return lrc.NewLeaf(lrc.Wrapper, nil)
	}
	visiting[p] = true
	defer delete(visiting, p)

	parts := make([]lrc.LrcItem, len(p.rule.Items))
	for i, it := range p.rule.Items {
		parts[i] = describeGrammarItem(it)
	}
	label := ""
	if p.top != nil {
		label = p.top.Lhs().Name()
	}
	return lrc.NewSequence(lrc.Wrapper, label, parts, p.dot)
}

func describeGrammarItem(it Item) lrc.LrcItem {
	switch it.Kind() {
	case KindTerminal:
		return lrc.NewLeaf(lrc.Terminal, it.Term())
	case KindNonterminal:
		return lrc.NewLeaf(lrc.UnexpandedNonterminal, it.Term())
	case KindAlternate:
		left := describeRule(it.Kind().String()+"L", it.Rule())
		right := describeRule(it.Kind().String()+"R", it.AltRule())
		return lrc.NewSequence(lrc.ExpandedNonterminal, "alt", []lrc.LrcItem{left, right}, 2)
	default:
		return describeRule(it.Kind().String(), it.Rule())
	}
}

func describeRule(label string, r *Rule) lrc.LrcItem {
	parts := make([]lrc.LrcItem, len(r.Items))
	for i, sub := range r.Items {
		parts[i] = describeGrammarItem(sub)
	}
	return lrc.NewSequence(lrc.ExpandedNonterminal, label, parts, len(parts))
}

// DescribeState renders every kernel item of state id as caret-marked
// strings, for verbose diagnostic dumps of the built automaton (§7's
// verbose-severity channel).
func (a *LalrAutomaton) DescribeState(id int) []string {
	if id < 0 || id >= len(a.States) {
		return nil
	}
	st := a.States[id]
	out := make([]string, 0, len(st.Kernel))
	for _, p := range st.Kernel {
		out = append(out, describeItem(p, make(map[*pos]bool)).String())
	}
	return out
}

// logStates emits one Verbose diagnostic per state showing its kernel
// items, gated so large grammars don't flood normal-severity output.
func (b *lalrBuilder) logStates(a *LalrAutomaton) {
	for _, st := range a.States {
		for _, line := range a.DescribeState(st.ID) {
			b.diags.Verbose(CodeLalrStateDump, b.filename, NoPosition,
				fmt.Sprintf("state %d: %s", st.ID, line))
		}
	}
}
