package parser

import (
	"errors"
	"fmt"
	"sort"
)

// Term is a single named grammar particle: a terminal, a nonterminal, or
// one of the three special symbols every Grammar carries (asterisk is the
// augmented-start nonterminal, epsilon, bottom is the end-of-input
// sentinel).
type Term interface {
	Hashable
	Grammar() Grammar
	Name() string
	Id() uint32
	Terminal() bool
	Special() bool
}

// ItemKind tags the variant carried by an Item (§3's "Items are tagged
// variants").
type ItemKind int

const (
	KindTerminal ItemKind = iota
	KindNonterminal
	KindOptional
	KindRepeatZero
	KindRepeatOne
	KindAlternate
	KindGuard
)

func (k ItemKind) String() string {
	switch k {
	case KindTerminal:
		return "terminal"
	case KindNonterminal:
		return "nonterminal"
	case KindOptional:
		return "optional"
	case KindRepeatZero:
		return "repeat-zero"
	case KindRepeatOne:
		return "repeat-one"
	case KindAlternate:
		return "alternate"
	case KindGuard:
		return "guard"
	}
	return "unknown"
}

// Item is a single element of a rule's item sequence: either a plain
// Terminal/Nonterminal atom, or an EBNF wrapper carrying one or two child
// Rules. Wrappers are first-class (§4.6) — never eagerly desugared into
// fresh nonterminals.
type Item interface {
	Hashable
	Kind() ItemKind
	// Term is valid for KindTerminal/KindNonterminal only.
	Term() Term
	// Rule is the wrapped child rule for Optional/RepeatZero/RepeatOne/Guard,
	// and the left alternative for Alternate.
	Rule() *Rule
	// AltRule is the right alternative for Alternate; nil otherwise.
	AltRule() *Rule
}

type stdItem struct {
	kind    ItemKind
	term    Term
	rule    *Rule
	altRule *Rule
}

func (si *stdItem) Kind() ItemKind { return si.kind }
func (si *stdItem) Term() Term     { return si.term }
func (si *stdItem) Rule() *Rule    { return si.rule }
func (si *stdItem) AltRule() *Rule { return si.altRule }

func (si *stdItem) HashCode() uint32 {
	h := uint32(si.kind) * 0x01000193
	if si.term != nil {
		h ^= si.term.HashCode()
	}
	if si.rule != nil {
		h = (h >> 5) | (h << 27)
		h ^= si.rule.HashCode()
	}
	if si.altRule != nil {
		h = (h >> 5) | (h << 27)
		h ^= si.altRule.HashCode()
	}
	return h
}

func (si *stdItem) Equals(o interface{}) bool {
	oi, ok := o.(Item)
	if !ok || oi.Kind() != si.kind {
		return false
	}
	switch si.kind {
	case KindTerminal, KindNonterminal:
		return si.term.Equals(oi.Term())
	case KindAlternate:
		return si.rule.Equals(oi.Rule()) && si.altRule.Equals(oi.AltRule())
	default:
		return si.rule.Equals(oi.Rule())
	}
}

// TermItem wraps a plain terminal or nonterminal Term as an Item.
func TermItem(t Term) Item {
	kind := KindNonterminal
	if t.Terminal() || t.Special() {
		kind = KindTerminal
	}
	return &stdItem{kind: kind, term: t}
}

func WrapperItem(kind ItemKind, rule, altRule *Rule) Item {
	return &stdItem{kind: kind, rule: rule, altRule: altRule}
}

// Rule is a sequence of Items, the production body (or an EBNF wrapper's
// child). Its id is derived deterministically from its item sequence so it
// is stable across rebuilds of structurally-identical rules (§3).
type Rule struct {
	id    uint64
	Items []Item
}

func NewRule(items ...Item) *Rule {
	return &Rule{Items: items}
}

func (r *Rule) HashCode() uint32 {
	h := uint32(0x9e3779b9)
	for _, it := range r.Items {
		h = (h >> 7) | (h << 25)
		h ^= it.HashCode()
	}
	return h
}

func (r *Rule) Equals(o interface{}) bool {
	or, ok := o.(*Rule)
	if !ok || len(or.Items) != len(r.Items) {
		return false
	}
	for i, it := range r.Items {
		if !it.Equals(or.Items[i]) {
			return false
		}
	}
	return true
}

// Id returns the rule's stable, content-derived identifier.
func (r *Rule) Id() uint64 {
	if r.id == 0 {
		r.id = uint64(r.HashCode())<<32 | uint64(len(r.Items))
	}
	return r.id
}

func (r *Rule) String() string {
	out := ""
	for i, it := range r.Items {
		if i > 0 {
			out += " "
		}
		out += itemString(it)
	}
	return out
}

func itemString(it Item) string {
	switch it.Kind() {
	case KindTerminal, KindNonterminal:
		return TermToString(it.Term())
	case KindOptional:
		return "[" + it.Rule().String() + "]"
	case KindRepeatZero:
		return "{" + it.Rule().String() + "}*"
	case KindRepeatOne:
		return "{" + it.Rule().String() + "}+"
	case KindAlternate:
		return "(" + it.Rule().String() + " | " + it.AltRule().String() + ")"
	case KindGuard:
		return "[=> " + it.Rule().String() + "]"
	}
	return "?"
}

// ProductionRule is a top-level grammar rule: a nonterminal and the rule
// body defining it.
type ProductionRule interface {
	Hashable
	Grammar() Grammar
	Id() uint32
	Lhs() Term
	Body() *Rule
}

type Grammar interface {
	NumTerminal() int
	Terminal(idx int) Term
	NumNonterminal() int
	Nonterminal(idx int) Term
	Asterisk() Term
	Epsilon() Term
	Bottom() Term
	NumProductionRule() int
	ProductionRule(idx int) ProductionRule
	TermByName(name string) (Term, bool)
}

type GrammarBuilder interface {
	Terminal(t string) GrammarBuilder
	Nonterminal(t string) GrammarBuilder
	Rule(lhsNt string) GrammarBuilder
	Optional(fn func(GrammarBuilder)) GrammarBuilder
	RepeatZero(fn func(GrammarBuilder)) GrammarBuilder
	RepeatOne(fn func(GrammarBuilder)) GrammarBuilder
	Alternate(left, right func(GrammarBuilder)) GrammarBuilder
	Guard(fn func(GrammarBuilder)) GrammarBuilder
	Build() (Grammar, error)

	// DeclareTerminal/DeclareNonterminal register (or look up) a term by
	// name outside of a Rule() chain — the entry point the language
	// compiler (C7) uses, since it builds Rule trees directly from the
	// AST rather than through the fluent Rule()/Terminal() API.
	DeclareTerminal(name string) (Term, error)
	DeclareNonterminal(name string) (Term, error)
	// AddProduction appends a fully-built rule body for lhs (which must
	// already be a declared nonterminal).
	AddProduction(lhs Term, body *Rule) error
	// ClearProductions removes every existing rule for lhs, implementing
	// the "=>" replace assignment form of §4.7 P4.
	ClearProductions(lhs Term)
	// HasProductions reports whether lhs already has at least one rule,
	// used to detect "=" redefinition of an already-defined nonterminal.
	HasProductions(lhs Term) bool
	// AugmentedStart registers the augmented start production `* -> s .`
	// for one configured start symbol (§4.8: "for each initial nonterminal
	// S a distinct start state is built from [S' -> ·S $]"). May be called
	// more than once, once per configured start symbol.
	AugmentedStart(startNt Term) error
}

///

type stdGrammar struct {
	terminals    []*stdTerm
	nonterminals []*stdTerm
	productions  []*stdProduction
	byName       map[string]Term
	asterisk     *stdTerm
	epsilon      *stdTerm
	bottom       *stdTerm
}

type stdTerm struct {
	grammar *stdGrammar
	nonterm bool
	special bool
	name    string
	id      uint32
}

type stdProduction struct {
	grammar *stdGrammar
	id      uint32
	lhs     Term
	body    *Rule
	hc      uint32
}

func (sg *stdGrammar) NumTerminal() int        { return len(sg.terminals) }
func (sg *stdGrammar) NumNonterminal() int     { return len(sg.nonterminals) }
func (sg *stdGrammar) Asterisk() Term          { return sg.asterisk }
func (sg *stdGrammar) Epsilon() Term           { return sg.epsilon }
func (sg *stdGrammar) Bottom() Term            { return sg.bottom }
func (sg *stdGrammar) NumProductionRule() int  { return len(sg.productions) }

func (sg *stdGrammar) Terminal(idx int) Term {
	if idx < 0 || idx >= len(sg.terminals) {
		panic("terminal index out of range")
	}
	return sg.terminals[idx]
}

func (sg *stdGrammar) Nonterminal(idx int) Term {
	if idx < 0 || idx >= len(sg.nonterminals) {
		panic("nonterminal index out of range")
	}
	return sg.nonterminals[idx]
}

func (sg *stdGrammar) ProductionRule(idx int) ProductionRule {
	if idx < 0 || idx >= len(sg.productions) {
		panic("production rule index out of range")
	}
	return sg.productions[idx]
}

func (sg *stdGrammar) TermByName(name string) (Term, bool) {
	t, ok := sg.byName[name]
	return t, ok
}

func (st *stdTerm) Grammar() Grammar { return st.grammar }
func (st *stdTerm) HashCode() uint32 { return st.id }
func (st *stdTerm) Name() string     { return st.name }
func (st *stdTerm) Id() uint32       { return st.id }
func (st *stdTerm) Terminal() bool   { return !st.nonterm && !st.special }
func (st *stdTerm) Special() bool    { return st.special }

func (st *stdTerm) Equals(o interface{}) bool {
	if k, ok := o.(Term); ok {
		return k.Id() == st.id && k.Grammar() == st.grammar
	}
	return false
}

func (sp *stdProduction) HashCode() uint32 {
	if sp.hc == 0 {
		sp.hc = (0x10000000 ^ sp.lhs.HashCode()) ^ sp.body.HashCode()
	}
	return sp.hc
}

func (sp *stdProduction) Equals(o interface{}) bool {
	if p, ok := o.(ProductionRule); ok {
		if pp, ok := p.(*stdProduction); ok && pp == sp {
			return true
		}
		return p.Grammar() == sp.grammar && p.Lhs().Equals(sp.lhs) && p.Body().Equals(sp.body)
	}
	return false
}

func (sp *stdProduction) Grammar() Grammar { return sp.grammar }
func (sp *stdProduction) Id() uint32       { return sp.id }
func (sp *stdProduction) Lhs() Term        { return sp.lhs }
func (sp *stdProduction) Body() *Rule      { return sp.body }

func TermToString(t Term) string {
	switch t.Id() {
	case t.Grammar().Asterisk().Id():
		return "`*"
	case t.Grammar().Bottom().Id():
		return "`."
	case t.Grammar().Epsilon().Id():
		return "`e"
	}
	if t.Terminal() {
		return t.Name()
	}
	return "<" + t.Name() + ">"
}

func ProductionRuleToString(pr ProductionRule) string {
	return TermToString(pr.Lhs()) + " := " + pr.Body().String()
}

// stdGrammarBuilder is a fluent grammar assembler, extended from the plain
// terminal/nonterminal builder with EBNF wrapper item constructors. Item
// construction uses a stack of item frames so nested wrapper bodies (e.g.
// a RepeatZero inside an Alternate) compose naturally.
type stdGrammarBuilder struct {
	terminals     map[string]*stdTerm
	nonterminals  map[string]*stdTerm
	finishedRules map[uint64][]*stdProduction
	openLhs       Term
	frames        [][]Item
	nextId        uint32
	built         bool
	builtGrammar  Grammar
}

func NewGrammarBuilder() GrammarBuilder {
	gb := &stdGrammarBuilder{
		nextId:        100,
		terminals:     make(map[string]*stdTerm),
		nonterminals:  make(map[string]*stdTerm),
		finishedRules: make(map[uint64][]*stdProduction),
	}
	gb.nonterminals["`*"] = &stdTerm{nonterm: true, special: true, name: "`*", id: 1}
	gb.terminals["`e"] = &stdTerm{special: true, name: "`e", id: 2}
	gb.terminals["`."] = &stdTerm{special: true, name: "`.", id: 3}
	return gb
}

func (sg *stdGrammarBuilder) isValidSymbolCharacter(c byte) bool {
	return ((c >= 'a') && (c <= 'z')) ||
		((c >= 'A') && (c <= 'Z')) ||
		((c >= '0') && (c <= '9')) ||
		(c == '-') || (c == '_')
}

func (sg *stdGrammarBuilder) getTerm(name string, terminal bool) (Term, error) {
	table := sg.nonterminals
	if terminal {
		table = sg.terminals
	}
	if term, has := table[name]; has {
		return term, nil
	}
	for _, c := range []byte(name) {
		if !sg.isValidSymbolCharacter(c) {
			return nil, errors.New("name argument is an invalid term name: " + name)
		}
	}
	t := &stdTerm{nonterm: !terminal, name: name, id: sg.nextId}
	sg.nextId++
	table[name] = t
	return t, nil
}

func (sg *stdGrammarBuilder) curFrame() []Item {
	if len(sg.frames) == 0 {
		panic("item builder method called before Rule()/Optional()/...")
	}
	return sg.frames[len(sg.frames)-1]
}

func (sg *stdGrammarBuilder) pushItem(it Item) {
	top := len(sg.frames) - 1
	sg.frames[top] = append(sg.frames[top], it)
}

func (sg *stdGrammarBuilder) Terminal(t string) GrammarBuilder {
	term, err := sg.getTerm(t, true)
	if err != nil {
		panic("Terminal() " + err.Error())
	}
	sg.pushItem(TermItem(term))
	return sg
}

func (sg *stdGrammarBuilder) Nonterminal(nt string) GrammarBuilder {
	term, err := sg.getTerm(nt, false)
	if err != nil {
		panic("Nonterminal() " + err.Error())
	}
	sg.pushItem(TermItem(term))
	return sg
}

// withFrame runs fn with a fresh item frame pushed, returning the Rule it
// built.
func (sg *stdGrammarBuilder) withFrame(fn func(GrammarBuilder)) *Rule {
	sg.frames = append(sg.frames, nil)
	fn(sg)
	items := sg.frames[len(sg.frames)-1]
	sg.frames = sg.frames[:len(sg.frames)-1]
	return NewRule(items...)
}

func (sg *stdGrammarBuilder) Optional(fn func(GrammarBuilder)) GrammarBuilder {
	r := sg.withFrame(fn)
	sg.pushItem(WrapperItem(KindOptional, r, nil))
	return sg
}

func (sg *stdGrammarBuilder) RepeatZero(fn func(GrammarBuilder)) GrammarBuilder {
	r := sg.withFrame(fn)
	sg.pushItem(WrapperItem(KindRepeatZero, r, nil))
	return sg
}

func (sg *stdGrammarBuilder) RepeatOne(fn func(GrammarBuilder)) GrammarBuilder {
	r := sg.withFrame(fn)
	sg.pushItem(WrapperItem(KindRepeatOne, r, nil))
	return sg
}

func (sg *stdGrammarBuilder) Alternate(left, right func(GrammarBuilder)) GrammarBuilder {
	l := sg.withFrame(left)
	r := sg.withFrame(right)
	sg.pushItem(WrapperItem(KindAlternate, l, r))
	return sg
}

func (sg *stdGrammarBuilder) Guard(fn func(GrammarBuilder)) GrammarBuilder {
	r := sg.withFrame(fn)
	sg.pushItem(WrapperItem(KindGuard, r, nil))
	return sg
}

func (sg *stdGrammarBuilder) closeOpenRule() {
	if sg.openLhs == nil {
		return
	}
	if len(sg.frames) != 1 {
		panic("unbalanced EBNF wrapper nesting in rule body")
	}
	body := NewRule(sg.frames[0]...)
	sg.frames = nil
	prod := &stdProduction{id: sg.nextId, lhs: sg.openLhs, body: body}
	sg.nextId++
	hc := uint64(prod.lhs.HashCode())<<32 | uint64(body.HashCode())
	for _, p := range sg.finishedRules[hc] {
		if p.Equals(prod) {
			panic("duplicate rule: " + ProductionRuleToString(prod))
		}
	}
	sg.finishedRules[hc] = append(sg.finishedRules[hc], prod)
}

func (sg *stdGrammarBuilder) Rule(lhsNt string) GrammarBuilder {
	sg.closeOpenRule()
	lhsTerm, err := sg.getTerm(lhsNt, false)
	if err != nil {
		panic("Rule() " + err.Error())
	}
	sg.openLhs = lhsTerm
	sg.frames = [][]Item{nil}
	return sg
}

func (sg *stdGrammarBuilder) DeclareTerminal(name string) (Term, error) {
	return sg.getTerm(name, true)
}

func (sg *stdGrammarBuilder) DeclareNonterminal(name string) (Term, error) {
	return sg.getTerm(name, false)
}

func (sg *stdGrammarBuilder) AddProduction(lhs Term, body *Rule) error {
	if lhs.Terminal() || lhs.Special() {
		return errors.New("production LHS must be a nonterminal")
	}
	prod := &stdProduction{id: sg.nextId, lhs: lhs, body: body}
	sg.nextId++
	hc := uint64(prod.HashCode())<<32 | uint64(body.HashCode())
	for _, p := range sg.finishedRules[hc] {
		if p.Equals(prod) {
			return errors.New("duplicate rule: " + ProductionRuleToString(prod))
		}
	}
	sg.finishedRules[hc] = append(sg.finishedRules[hc], prod)
	return nil
}

func (sg *stdGrammarBuilder) ClearProductions(lhs Term) {
	for hc, m := range sg.finishedRules {
		kept := m[:0]
		for _, p := range m {
			if p.lhs.Id() != lhs.Id() {
				kept = append(kept, p)
			}
		}
		sg.finishedRules[hc] = kept
	}
}

// AugmentedStart bypasses AddProduction's "LHS must be a nonterminal"
// guard (asterisk is marked special, not a plain nonterminal) to register
// one `* -> startNt . ` production per configured start symbol.
func (sg *stdGrammarBuilder) AugmentedStart(startNt Term) error {
	if startNt.Terminal() || startNt.Special() {
		return errors.New("start symbol must be a nonterminal")
	}
	asterisk := sg.nonterminals["`*"]
	bottom := sg.terminals["`."]
	body := NewRule(TermItem(startNt), TermItem(bottom))
	prod := &stdProduction{id: sg.nextId, lhs: asterisk, body: body}
	sg.nextId++
	hc := uint64(prod.lhs.HashCode())<<32 | uint64(body.HashCode())
	for _, p := range sg.finishedRules[hc] {
		if p.Equals(prod) {
			return nil // already registered for this start symbol
		}
	}
	sg.finishedRules[hc] = append(sg.finishedRules[hc], prod)
	return nil
}

func (sg *stdGrammarBuilder) HasProductions(lhs Term) bool {
	for _, m := range sg.finishedRules {
		for _, p := range m {
			if p.lhs.Id() == lhs.Id() {
				return true
			}
		}
	}
	return false
}

func (sg *stdGrammarBuilder) Build() (Grammar, error) {
	if sg.built {
		return sg.builtGrammar, nil
	}
	sg.closeOpenRule()
	sg.built = true

	grammar := &stdGrammar{
		terminals:    make([]*stdTerm, 0, len(sg.terminals)-1),
		nonterminals: make([]*stdTerm, 0, len(sg.nonterminals)-1),
		byName:       make(map[string]Term),
		asterisk:     sg.nonterminals["`*"],
		epsilon:      sg.terminals["`e"],
		bottom:       sg.terminals["`."],
	}
	grammar.asterisk.grammar = grammar
	grammar.epsilon.grammar = grammar
	grammar.bottom.grammar = grammar
	for name, t := range sg.terminals {
		t.grammar = grammar
		if !t.special {
			grammar.terminals = append(grammar.terminals, t)
		}
		grammar.byName[name] = t
	}
	for name, nt := range sg.nonterminals {
		nt.grammar = grammar
		if !nt.special {
			grammar.nonterminals = append(grammar.nonterminals, nt)
		}
		grammar.byName[name] = nt
	}
	sort.Slice(grammar.terminals, func(i, j int) bool { return grammar.terminals[i].id < grammar.terminals[j].id })
	sort.Slice(grammar.nonterminals, func(i, j int) bool { return grammar.nonterminals[i].id < grammar.nonterminals[j].id })
	for _, m := range sg.finishedRules {
		for _, pr := range m {
			pr.grammar = grammar
			grammar.productions = append(grammar.productions, pr)
			if grammar.byName[pr.Lhs().Name()] == nil {
				return nil, fmt.Errorf("BUG: rule references unregistered nonterminal %q", pr.Lhs().Name())
			}
		}
	}
	sg.builtGrammar = grammar
	return grammar, nil
}
