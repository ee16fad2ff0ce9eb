package parser

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
)

// GrammarIndex is a lazily-computed, cached analysis over a frozen
// Grammar, keyed by its own reflect.Type so that IndexedGrammar can act as
// a type-safe cache without every caller needing a dedicated accessor
// method.
type GrammarIndex interface {
	Name() string
	Grammar() Grammar
	Initialize(g Grammar) error
}

var GrammarIndexTypeTerm GrammarIndexType = reflect.TypeOf([]*termGrammarIndex{}).Elem()

type TermGrammarIndex interface {
	GrammarIndex
	HasTerm(name string) bool
	GetTerm(name string) (Term, error)
	GetTerminal(name string) (Term, error)
	GetNonterminal(name string) (Term, error)
	GetTerminalNames() []string
	GetNonterminalNames() []string
}

var GrammarIndexTypeProduction GrammarIndexType = reflect.TypeOf([]*productionNTGrammarIndex{}).Elem()

type ProductionGrammarIndex interface {
	GrammarIndex
	GetProductions(lhs Term) []ProductionRule
	GetInitialProduction() ProductionRule
	HasEpsilonProductions() bool
}

var GrammarIndexTypeNullability GrammarIndexType = reflect.TypeOf([]*nullabilityGrammarIndex{}).Elem()

type NullabilityGrammarIndex interface {
	GrammarIndex
	HasNullableNt() bool
	IsNullable(nt Term) bool
	GetNullableNonterminals() []Term
}

var GrammarIndexTypeFirstSet GrammarIndexType = reflect.TypeOf([]*firstSetGrammarIndex{}).Elem()

// FirstSetGrammarIndex computes, for every nonterminal and every Rule
// reachable from the grammar, the set of terminals that may begin a
// derivation (§4.6's "first" exposed by every EBNF wrapper, §4.8's
// first(R) consulted by Guard actions).
type FirstSetGrammarIndex interface {
	GrammarIndex
	FirstOfNonterminal(nt Term) []Term
	FirstOfRule(r *Rule) []Term
	RuleMatchesEmpty(r *Rule) bool
}

var GrammarIndexTypeWeakSymbol GrammarIndexType = reflect.TypeOf([]*weakSymbolGrammarIndex{}).Elem()

// WeakSymbolGrammarIndex records which terminal ids were classified weak
// during C7 P2/P3, consulted by C9.
type WeakSymbolGrammarIndex interface {
	GrammarIndex
	IsWeak(t Term) bool
	WeakTerminals() []Term
}

type GrammarIndexType reflect.Type

type IndexedGrammar interface {
	Grammar
	BaseGrammar() Grammar
	HasIndex(indexType GrammarIndexType) bool
	GetIndex(indexType GrammarIndexType) (GrammarIndex, error)
}

///

type stdIndexedGrammar struct {
	*stdGrammar
	indexCache  map[string]GrammarIndex
	weakTermIds map[uint32]bool
}

func GetIndexedGrammar(g Grammar) IndexedGrammar {
	if ig, ok := g.(IndexedGrammar); ok {
		return ig
	}
	sg, ok := g.(*stdGrammar)
	if !ok {
		panic("BUG_UNSUPPORTED_GRAMMAR_IMPL: GetIndexedGrammar only accepts grammars built via NewGrammarBuilder")
	}
	return &stdIndexedGrammar{
		stdGrammar: sg,
		indexCache: make(map[string]GrammarIndex),
	}
}

// WithWeakTerminals attaches the weak-terminal-id set discovered during C7
// so WeakSymbolGrammarIndex can answer without re-deriving it.
func (sig *stdIndexedGrammar) WithWeakTerminals(ids map[uint32]bool) *stdIndexedGrammar {
	sig.weakTermIds = ids
	return sig
}

func (sig *stdIndexedGrammar) BaseGrammar() Grammar { return sig.stdGrammar }

func indexTypeKey(indexType GrammarIndexType) string {
	if indexType.Kind() == reflect.Ptr {
		return indexType.Elem().PkgPath() + "." + indexType.Elem().Name()
	}
	return indexType.PkgPath() + "." + indexType.Name()
}

func (sig *stdIndexedGrammar) HasIndex(indexType GrammarIndexType) bool {
	_, ok := sig.indexCache[indexTypeKey(indexType)]
	return ok
}

func (sig *stdIndexedGrammar) GetIndex(indexType GrammarIndexType) (GrammarIndex, error) {
	key := indexTypeKey(indexType)
	if idx, ok := sig.indexCache[key]; ok {
		return idx, nil
	}
	var newIndex GrammarIndex
	switch indexType {
	case GrammarIndexTypeTerm:
		newIndex = &termGrammarIndex{}
	case GrammarIndexTypeProduction:
		newIndex = &productionNTGrammarIndex{}
	case GrammarIndexTypeNullability:
		newIndex = &nullabilityGrammarIndex{}
	case GrammarIndexTypeFirstSet:
		newIndex = &firstSetGrammarIndex{}
	case GrammarIndexTypeWeakSymbol:
		newIndex = &weakSymbolGrammarIndex{weakIds: sig.weakTermIds}
	default:
		return nil, errors.New("unknown grammar index type")
	}
	if err := newIndex.Initialize(sig); err != nil {
		return nil, err
	}
	sig.indexCache[key] = newIndex
	return newIndex, nil
}

type strsort []string

func (ss strsort) Len() int           { return len(ss) }
func (ss strsort) Less(i, j int) bool { return ss[i] < ss[j] }
func (ss strsort) Swap(i, j int)      { ss[i], ss[j] = ss[j], ss[i] }

type termGrammarIndex struct {
	g                  Grammar
	terminalsByName    map[string]Term
	nonterminalsByName map[string]Term
}

func (idx *termGrammarIndex) Name() string    { return "term-index" }
func (idx *termGrammarIndex) Grammar() Grammar { return idx.g }

func (idx *termGrammarIndex) Initialize(g Grammar) error {
	idx.g = g
	idx.terminalsByName = make(map[string]Term)
	idx.nonterminalsByName = make(map[string]Term)
	for i := 0; i < g.NumTerminal(); i++ {
		t := g.Terminal(i)
		idx.terminalsByName[t.Name()] = t
	}
	for i := 0; i < g.NumNonterminal(); i++ {
		nt := g.Nonterminal(i)
		idx.nonterminalsByName[nt.Name()] = nt
	}
	return nil
}

func (idx *termGrammarIndex) HasTerm(name string) bool {
	_, has := idx.terminalsByName[name]
	if has {
		return true
	}
	_, has = idx.nonterminalsByName[name]
	return has
}

func (idx *termGrammarIndex) GetTerm(name string) (Term, error) {
	if v, has := idx.terminalsByName[name]; has {
		return v, nil
	}
	if v, has := idx.nonterminalsByName[name]; has {
		return v, nil
	}
	return nil, fmt.Errorf("grammar term not found: %q", name)
}

func (idx *termGrammarIndex) GetTerminal(name string) (Term, error) {
	if v, has := idx.terminalsByName[name]; has {
		return v, nil
	}
	return nil, fmt.Errorf("grammar terminal not found: %q", name)
}

func (idx *termGrammarIndex) GetNonterminal(name string) (Term, error) {
	if v, has := idx.nonterminalsByName[name]; has {
		return v, nil
	}
	return nil, fmt.Errorf("grammar nonterminal not found: %q", name)
}

func (idx *termGrammarIndex) GetTerminalNames() []string {
	ret := strsort(make([]string, 0, len(idx.terminalsByName)))
	for k := range idx.terminalsByName {
		ret = append(ret, k)
	}
	sort.Sort(ret)
	return ret
}

func (idx *termGrammarIndex) GetNonterminalNames() []string {
	ret := strsort(make([]string, 0, len(idx.nonterminalsByName)))
	for k := range idx.nonterminalsByName {
		ret = append(ret, k)
	}
	sort.Sort(ret)
	return ret
}

type productionNTGrammarIndex struct {
	g                Grammar
	productionsByLhs map[uint32][]ProductionRule
	initial          ProductionRule
	hasEpsilons      bool
}

func (pnt *productionNTGrammarIndex) Name() string    { return "cfnt-production-index" }
func (pnt *productionNTGrammarIndex) Grammar() Grammar { return pnt.g }

func (pnt *productionNTGrammarIndex) Initialize(g Grammar) error {
	pnt.g = g
	pnt.productionsByLhs = make(map[uint32][]ProductionRule)
	for i := 0; i < g.NumProductionRule(); i++ {
		pr := g.ProductionRule(i)
		pnt.productionsByLhs[pr.Lhs().Id()] = append(pnt.productionsByLhs[pr.Lhs().Id()], pr)
		if pr.Lhs().Id() == g.Asterisk().Id() {
			// One augmented-start production per configured start symbol
			// (§4.8); AugmentedStart only ever builds this exact shape.
			body := pr.Body().Items
			if len(body) != 2 || body[0].Kind() != KindNonterminal || body[1].Term() == nil || body[1].Term().Id() != g.Bottom().Id() {
				return errors.New("incorrect initial production rule form")
			}
			if pnt.initial == nil {
				pnt.initial = pr
			}
		} else {
			if pr.Lhs().Terminal() || pr.Lhs().Special() {
				return errors.New("invalid LHS in grammar rule")
			}
			if len(pr.Body().Items) == 0 {
				pnt.hasEpsilons = true
			}
		}
	}
	for k, ps := range pnt.productionsByLhs {
		sort.Slice(ps, func(i, j int) bool { return ps[i].Body().String() < ps[j].Body().String() })
		pnt.productionsByLhs[k] = ps
	}
	if pnt.initial == nil {
		return errors.New("no initial production in grammar")
	}
	return nil
}

func (pnt *productionNTGrammarIndex) GetProductions(lhs Term) []ProductionRule {
	v := pnt.productionsByLhs[lhs.Id()]
	ret := make([]ProductionRule, len(v))
	copy(ret, v)
	return ret
}

func (pnt *productionNTGrammarIndex) GetInitialProduction() ProductionRule { return pnt.initial }
func (pnt *productionNTGrammarIndex) HasEpsilonProductions() bool          { return pnt.hasEpsilons }

type nullabilityGrammarIndex struct {
	g          Grammar
	nullableNt map[uint32]Term
}

func (ni *nullabilityGrammarIndex) Name() string    { return "nullability-index" }
func (ni *nullabilityGrammarIndex) Grammar() Grammar { return ni.g }

// ruleMatchesEmptyWith reports whether r can derive the empty string,
// given the current (possibly partial) nullable-nonterminal set.
func ruleMatchesEmptyWith(r *Rule, nullable map[uint32]Term) bool {
	for _, it := range r.Items {
		switch it.Kind() {
		case KindTerminal:
			return false
		case KindNonterminal:
			if _, ok := nullable[it.Term().Id()]; !ok {
				return false
			}
		case KindOptional, KindRepeatZero:
			// always matches empty, no constraint
		case KindRepeatOne:
			if !ruleMatchesEmptyWith(it.Rule(), nullable) {
				return false
			}
		case KindAlternate:
			if !ruleMatchesEmptyWith(it.Rule(), nullable) && !ruleMatchesEmptyWith(it.AltRule(), nullable) {
				return false
			}
		case KindGuard:
			// a guard contributes no symbols of its own
		}
	}
	return true
}

func (ni *nullabilityGrammarIndex) Initialize(g Grammar) error {
	ni.g = g
	ni.nullableNt = make(map[uint32]Term)
	changed := true
	for changed {
		changed = false
		for i := 0; i < g.NumProductionRule(); i++ {
			pr := g.ProductionRule(i)
			if _, has := ni.nullableNt[pr.Lhs().Id()]; has {
				continue
			}
			if ruleMatchesEmptyWith(pr.Body(), ni.nullableNt) {
				ni.nullableNt[pr.Lhs().Id()] = pr.Lhs()
				changed = true
			}
		}
	}
	return nil
}

func (ni *nullabilityGrammarIndex) HasNullableNt() bool { return len(ni.nullableNt) > 0 }

func (ni *nullabilityGrammarIndex) IsNullable(nt Term) bool {
	if _, has := ni.nullableNt[nt.Id()]; has {
		return true
	}
	return nt.Id() == ni.g.Epsilon().Id()
}

func (ni *nullabilityGrammarIndex) GetNullableNonterminals() []Term {
	ret := make([]Term, 0, len(ni.nullableNt))
	for _, nt := range ni.nullableNt {
		ret = append(ret, nt)
	}
	return ret
}

// firstSetGrammarIndex computes first() sets by fixed-point iteration over
// the grammar's productions, consulting the nullability index for
// nonterminal members of a rule body.
type firstSetGrammarIndex struct {
	g          Grammar
	nullable   NullabilityGrammarIndex
	firstOfNt  map[uint32]map[uint32]Term
}

func (fi *firstSetGrammarIndex) Name() string    { return "first-set-index" }
func (fi *firstSetGrammarIndex) Grammar() Grammar { return fi.g }

func (fi *firstSetGrammarIndex) Initialize(g Grammar) error {
	ig := GetIndexedGrammar(g)
	nullIdx, err := ig.GetIndex(GrammarIndexTypeNullability)
	if err != nil {
		return err
	}
	fi.g = g
	fi.nullable = nullIdx.(NullabilityGrammarIndex)
	fi.firstOfNt = make(map[uint32]map[uint32]Term)
	for i := 0; i < g.NumNonterminal(); i++ {
		fi.firstOfNt[g.Nonterminal(i).Id()] = make(map[uint32]Term)
	}
	changed := true
	for changed {
		changed = false
		for i := 0; i < g.NumProductionRule(); i++ {
			pr := g.ProductionRule(i)
			if pr.Lhs().Id() == g.Asterisk().Id() {
				continue
			}
			set := fi.firstOfNt[pr.Lhs().Id()]
			before := len(set)
			fi.accumulateFirst(pr.Body(), set)
			if len(set) != before {
				changed = true
			}
		}
	}
	return nil
}

// accumulateFirst walks r's leading items, adding terminals to set until an
// item that cannot match empty is found (or the rule runs out).
func (fi *firstSetGrammarIndex) accumulateFirst(r *Rule, set map[uint32]Term) {
	for _, it := range r.Items {
		switch it.Kind() {
		case KindTerminal:
			set[it.Term().Id()] = it.Term()
			return
		case KindNonterminal:
			for id, t := range fi.firstOfNt[it.Term().Id()] {
				set[id] = t
			}
			if !fi.nullable.IsNullable(it.Term()) {
				return
			}
		case KindOptional, KindRepeatZero:
			sub := make(map[uint32]Term)
			fi.accumulateFirst(it.Rule(), sub)
			for id, t := range sub {
				set[id] = t
			}
			// always matches empty: keep walking
		case KindRepeatOne:
			sub := make(map[uint32]Term)
			fi.accumulateFirst(it.Rule(), sub)
			for id, t := range sub {
				set[id] = t
			}
			if !ruleMatchesEmptyWith(it.Rule(), fi.nullableSnapshot()) {
				return
			}
		case KindAlternate:
			subA := make(map[uint32]Term)
			subB := make(map[uint32]Term)
			fi.accumulateFirst(it.Rule(), subA)
			fi.accumulateFirst(it.AltRule(), subB)
			for id, t := range subA {
				set[id] = t
			}
			for id, t := range subB {
				set[id] = t
			}
			if !ruleMatchesEmptyWith(it.Rule(), fi.nullableSnapshot()) || !ruleMatchesEmptyWith(it.AltRule(), fi.nullableSnapshot()) {
				return
			}
		case KindGuard:
			// contributes no symbols; always "transparent" to first()
		}
	}
}

func (fi *firstSetGrammarIndex) nullableSnapshot() map[uint32]Term {
	out := make(map[uint32]Term)
	for _, nt := range fi.nullable.GetNullableNonterminals() {
		out[nt.Id()] = nt
	}
	return out
}

func (fi *firstSetGrammarIndex) FirstOfNonterminal(nt Term) []Term {
	m := fi.firstOfNt[nt.Id()]
	out := make([]Term, 0, len(m))
	for _, t := range m {
		out = append(out, t)
	}
	return out
}

func (fi *firstSetGrammarIndex) FirstOfRule(r *Rule) []Term {
	set := make(map[uint32]Term)
	fi.accumulateFirst(r, set)
	out := make([]Term, 0, len(set))
	for _, t := range set {
		out = append(out, t)
	}
	return out
}

func (fi *firstSetGrammarIndex) RuleMatchesEmpty(r *Rule) bool {
	return ruleMatchesEmptyWith(r, fi.nullableSnapshot())
}

type weakSymbolGrammarIndex struct {
	g       Grammar
	weakIds map[uint32]bool
}

func (wi *weakSymbolGrammarIndex) Name() string    { return "weak-symbol-index" }
func (wi *weakSymbolGrammarIndex) Grammar() Grammar { return wi.g }

func (wi *weakSymbolGrammarIndex) Initialize(g Grammar) error {
	wi.g = g
	if wi.weakIds == nil {
		wi.weakIds = make(map[uint32]bool)
	}
	return nil
}

func (wi *weakSymbolGrammarIndex) IsWeak(t Term) bool { return wi.weakIds[t.Id()] }

func (wi *weakSymbolGrammarIndex) WeakTerminals() []Term {
	var out []Term
	for i := 0; i < wi.g.NumTerminal(); i++ {
		t := wi.g.Terminal(i)
		if wi.weakIds[t.Id()] {
			out = append(out, t)
		}
	}
	return out
}
