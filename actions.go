package parser

import (
	"fmt"
	"sync"

	"github.com/cnf/structhash"
)

// ActionKind tags one row of the LALR action table (§4.8's action kinds:
// shift, reduce, weak_reduce, goto, accept, guard, divert, ignore).
type ActionKind int

const (
	ActionShift ActionKind = iota
	ActionReduce
	ActionWeakReduce
	ActionGoto
	ActionAccept
	ActionGuard
	ActionDivert
	ActionIgnore
)

func (k ActionKind) String() string {
	switch k {
	case ActionShift:
		return "shift"
	case ActionReduce:
		return "reduce"
	case ActionWeakReduce:
		return "weak_reduce"
	case ActionGoto:
		return "goto"
	case ActionAccept:
		return "accept"
	case ActionGuard:
		return "guard"
	case ActionDivert:
		return "divert"
	case ActionIgnore:
		return "ignore"
	}
	return "unknown"
}

// RowAction is a single (symbol, action) cell of a state's action row.
// Conflicting actions on the same symbol are retained side by side (the
// last word belongs to the ActionRewriter pipeline, or the generated
// runtime's can_reduce semantics), never silently dropped, per §4.8's
// conflict-handling note.
type RowAction struct {
	Symbol uint32
	Kind   ActionKind
	Target int   // state id for Shift/Goto
	Prod   ProductionRule // production for Reduce/WeakReduce
	Guard  *Rule // guard body for ActionGuard
}

// ActionRewriter is a composable action-row transform, run after the raw
// table is built (§9's design notes: conflict resolution and weak-symbol
// rewriting are expressed as passes over the table, not special-cased
// into construction).
type ActionRewriter func(state *LalrState, row []RowAction) []RowAction

// ApplyActionRewriters runs each rewriter over every state's row in turn,
// memoizing the (row content) -> (rewritten row) mapping: grammars with
// shared right-hand sides routinely produce byte-identical rows in
// unrelated states, and the rewriter chain is a pure function of row
// content, not state identity, so the second and later occurrences of a
// row are served from cache instead of re-run through every rewriter.
func ApplyActionRewriters(a *LalrAutomaton, rewriters ...ActionRewriter) {
	cache := newActionRewriteCache()
	for i, st := range a.States {
		a.Actions[i] = cache.apply(st, a.Actions[i], rewriters)
	}
}

// actionRewriteCache memoizes rewritten rows by a structhash of their
// content. The hash key is built from a flat, pointer-free proxy rather
// than the row itself: RowAction.Prod/Guard reach back into the grammar
// (productions can cross-reference nonterminals that reference the
// productions that use them), and structhash's reflective walk has no
// cycle guard.
type actionRewriteCache struct {
	mu     sync.Mutex
	byHash map[string][]RowAction
}

func newActionRewriteCache() *actionRewriteCache {
	return &actionRewriteCache{byHash: make(map[string][]RowAction)}
}

type actionHashKey struct {
	Symbol  uint32
	Kind    int
	Target  int
	ProdID  uint32
	GuardID uint32
}

func hashActionRow(row []RowAction) (string, bool) {
	keys := make([]actionHashKey, len(row))
	for i, a := range row {
		k := actionHashKey{Symbol: a.Symbol, Kind: int(a.Kind), Target: a.Target}
		if a.Prod != nil {
			k.ProdID = a.Prod.Id()
		}
		if a.Guard != nil {
			k.GuardID = a.Guard.HashCode()
		}
		keys[i] = k
	}
	hash, err := structhash.Hash(keys, 1)
	if err != nil {
		return "", false
	}
	return hash, true
}

func (c *actionRewriteCache) apply(state *LalrState, row []RowAction, rewriters []ActionRewriter) []RowAction {
	key, ok := hashActionRow(row)
	if ok {
		c.mu.Lock()
		cached, hit := c.byHash[key]
		c.mu.Unlock()
		if hit {
			return cached
		}
	}
	out := row
	for _, rw := range rewriters {
		out = rw(state, out)
	}
	if ok {
		c.mu.Lock()
		c.byHash[key] = out
		c.mu.Unlock()
	}
	return out
}

// DedupeActionRewriter removes exact-duplicate action entries from a row.
// The closure/lookahead construction can legitimately derive the same
// (symbol, kind, target/production) cell twice when more than one closure
// path reduces under the same lookahead symbol; the duplicate carries no
// extra information and only inflates the emitted table (§4.8, §4.10).
func DedupeActionRewriter(_ *LalrState, row []RowAction) []RowAction {
	if len(row) < 2 {
		return row
	}
	out := make([]RowAction, 0, len(row))
	seen := make(map[RowAction]bool, len(row))
	for _, a := range row {
		if seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}

// ConflictReportingRewriter returns an ActionRewriter that leaves the row
// untouched but warns, through diags, about any symbol carrying more than
// one non-Goto action — a shift/reduce or reduce/reduce conflict the
// runtime's can_reduce/GuardRunner contract resolves at parse time (§4.8's
// "never silently dropped" note), but one worth surfacing to whoever is
// compiling the grammar.
func ConflictReportingRewriter(diags *DiagnosticSink, filename string) ActionRewriter {
	return func(state *LalrState, row []RowAction) []RowAction {
		counts := make(map[uint32]int, len(row))
		for _, a := range row {
			if a.Kind == ActionGoto {
				continue
			}
			counts[a.Symbol]++
		}
		for sym, n := range counts {
			if n > 1 {
				diags.Warning(CodeLalrConflict, filename, NoPosition,
					fmt.Sprintf("state has %d conflicting actions on symbol %d", n, sym))
			}
		}
		return row
	}
}

// buildActionTable derives, for each state, the row of shift/reduce/
// weak_reduce/goto/accept/guard/divert actions from its closed item set,
// lookahead sets, and recorded guard productions.
func (b *lalrBuilder) buildActionTable(a *LalrAutomaton) [][]RowAction {
	rows := make([][]RowAction, len(a.States))
	for i, st := range a.States {
		var row []RowAction
		for sym, target := range st.Goto {
			kind := ActionShift
			if !b.isTerminal(sym) {
				kind = ActionGoto
			}
			row = append(row, RowAction{Symbol: sym, Kind: kind, Target: target})
		}
		for _, item := range st.Closed {
			if !item.atEnd() || len(item.cont) != 0 {
				continue
			}
			if item.top == nil {
				continue
			}
			la := st.Lookahead[item]
			if item.top.Lhs().Id() == b.grammar.Asterisk().Id() {
				row = append(row, RowAction{Symbol: b.grammar.Bottom().Id(), Kind: ActionAccept, Prod: item.top})
				continue
			}
			weak := b.isWeakProduction(item.top)
			kind := ActionReduce
			if weak {
				kind = ActionWeakReduce
			}
			for sym := range la {
				row = append(row, RowAction{Symbol: sym, Kind: kind, Prod: item.top})
			}
		}
		for sym, guardRule := range st.Guards {
			row = append(row, RowAction{Symbol: sym, Kind: ActionGuard, Guard: guardRule})
		}
		rows[i] = row
	}
	return rows
}

func (b *lalrBuilder) initialProduction() ProductionRule {
	return b.prodIdx.GetInitialProduction()
}

func (b *lalrBuilder) isTerminal(id uint32) bool {
	for i := 0; i < b.grammar.NumTerminal(); i++ {
		if b.grammar.Terminal(i).Id() == id {
			return true
		}
	}
	return id == b.grammar.Bottom().Id() || id == b.grammar.Epsilon().Id()
}

// isWeakProduction reports whether every terminal directly produced by
// pr's body was classified weak during C7 (used to route its reduce
// actions through weak_reduce, §4.9).
func (b *lalrBuilder) isWeakProduction(pr ProductionRule) bool {
	wi, err := b.idx.GetIndex(GrammarIndexTypeWeakSymbol)
	if err != nil {
		return false
	}
	weakIdx := wi.(WeakSymbolGrammarIndex)
	found := false
	for _, it := range pr.Body().Items {
		if it.Kind() == KindTerminal {
			found = true
			if !weakIdx.IsWeak(it.Term()) {
				return false
			}
		}
	}
	return found
}
