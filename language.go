package parser

import (
	"fmt"
)

// lexerBlockOrder is the fixed pass order of §4.7 P2. LexerSymbols is
// handled separately, in the P1 pre-pass.
var lexerBlockOrder = []LexerBlockKind{WeakKeywords, WeakLexer, Keywords, Lexer, Ignore}

// termRecord tracks bookkeeping the compiler needs per terminal beyond
// what the Grammar itself stores: its defining position (for diagnostics)
// and the lexer block type it came from. Whether it is still unreferenced
// by any rule (for the UNUSED_TERMINAL_SYMBOL diagnostic) is tracked in
// LanguageCompiler.unused.
type termRecord struct {
	term     Term
	pos      Position
	fromUnit UnitType
}

// LanguageCompiler executes C7: it walks a LanguageBlock AST and produces
// a frozen Grammar plus the Nfa the lexer stages (C5/C9) consume. One
// LanguageCompiler compiles exactly one language block.
type LanguageCompiler struct {
	diags    *DiagnosticSink
	filename string

	builder GrammarBuilder
	nfa     *Nfa
	regex   *RegexBuilder

	terms      map[string]*termRecord
	unused     map[uint32]bool
	weakIds    map[uint32]bool
	ignoredIds map[uint32]bool
	unitOf     map[uint32]UnitType

	ntDefinedAt  map[string]Position
	ntReferences map[string]Position

	defOrder int
}

func NewLanguageCompiler(diags *DiagnosticSink, filename string) *LanguageCompiler {
	nfa := NewNfa()
	return &LanguageCompiler{
		diags:        diags,
		filename:     filename,
		builder:      NewGrammarBuilder(),
		nfa:          nfa,
		regex:        NewRegexBuilder(nfa),
		terms:        make(map[string]*termRecord),
		unused:       make(map[uint32]bool),
		weakIds:      make(map[uint32]bool),
		ignoredIds:   make(map[uint32]bool),
		unitOf:       make(map[uint32]UnitType),
		ntDefinedAt:  make(map[string]Position),
		ntReferences: make(map[string]Position),
	}
}

// CompileResult bundles C7's two parallel outputs: the frozen grammar
// (feeds C8) and the lexer Nfa plus weak/ignored id sets (feeds C5/C9).
type CompileResult struct {
	Grammar    Grammar
	Nfa        *Nfa
	WeakIds    map[uint32]bool
	IgnoredIds map[uint32]bool
}

func (lc *LanguageCompiler) Compile(lang *LanguageBlock, startSymbols []string) (*CompileResult, error) {
	lc.p1LexerSymbols(lang)
	lc.p2LexerPasses(lang)
	lc.p3ImplicitSymbols(lang)
	lc.p4GrammarLowering(lang)
	lc.p5Diagnostics(lang)

	if lc.diags.Aborted() {
		return nil, fmt.Errorf("compilation of language %q aborted with errors", lang.Name)
	}
	for _, name := range startSymbols {
		nt, err := lc.builder.DeclareNonterminal(name)
		if err != nil {
			lc.diags.Error(CodeUndefinedNonterminal, lc.filename, NoPosition, err.Error())
			continue
		}
		if !lc.builder.HasProductions(nt) {
			lc.diags.Error(CodeUndefinedNonterminal, lc.filename, NoPosition, fmt.Sprintf("start symbol %q has no productions", name))
			continue
		}
		if err := lc.builder.AugmentedStart(nt); err != nil {
			lc.diags.Bug(CodeBugInvariant, lc.filename, NoPosition, err.Error())
		}
	}
	if lc.diags.Aborted() {
		return nil, fmt.Errorf("compilation of language %q aborted with errors", lang.Name)
	}
	g, err := lc.builder.Build()
	if err != nil {
		lc.diags.Bug(CodeBugInvariant, lc.filename, NoPosition, err.Error())
		return nil, err
	}
	return &CompileResult{
		Grammar:    g,
		Nfa:        lc.nfa,
		WeakIds:    lc.weakIds,
		IgnoredIds: lc.ignoredIds,
	}, nil
}

// p1LexerSymbols populates the named-macro table consulted by {name}
// interpolation in C3. It never touches the terminal dictionary — per
// §4.7, P1 itself remains the documented no-op placeholder with respect
// to terminal ids; only the macro pre-pass is supplemented (SPEC_FULL E3).
func (lc *LanguageCompiler) p1LexerSymbols(lang *LanguageBlock) {
	for _, blk := range lang.LexerBlocks {
		if blk.Kind != LexerSymbols {
			continue
		}
		for _, lx := range blk.Lexemes {
			pattern := lx.Pattern
			if lx.Form == FormRegex {
				pattern = stripDelimiters(pattern)
			}
			lc.regex.DefineMacro(lx.Name, pattern)
		}
	}
}

func stripDelimiters(s string) string {
	if len(s) >= 2 {
		return s[1 : len(s)-1]
	}
	return s
}

func (lc *LanguageCompiler) declareLexeme(name string, unit UnitType, weak bool, pos Position) (Term, bool) {
	if rec, has := lc.terms[name]; has {
		lc.diags.Warning(CodeDuplicateLexerSymbol, lc.filename, pos,
			fmt.Sprintf("lexer symbol %q already defined at %v, second definition skipped", name, rec.pos))
		return rec.term, false
	}
	t, err := lc.builder.DeclareTerminal(name)
	if err != nil {
		lc.diags.Error(CodeSymbolCannotBeGenerated, lc.filename, pos, err.Error())
		return nil, false
	}
	lc.terms[name] = &termRecord{term: t, pos: pos, fromUnit: unit}
	lc.unitOf[t.Id()] = unit
	if unit != UnitIgnore {
		lc.unused[t.Id()] = true
	} else {
		lc.ignoredIds[t.Id()] = true
	}
	if weak {
		lc.weakIds[t.Id()] = true
	}
	return t, true
}

func (lc *LanguageCompiler) addLexemeToNfa(t Term, lx LexemeDefAST, unit UnitType, weak bool) {
	var frag Fragment
	switch lx.Form {
	case FormRegex:
		f, err := lc.regex.Compile(stripDelimiters(lx.Pattern))
		if err != nil {
			lc.diags.Error(CodeUnknownLexemeDefinition, lc.filename, lx.Pos,
				fmt.Sprintf("invalid regex for %q: %v", lx.Name, err))
			return
		}
		frag = f
	case FormLiteral:
		frag = lc.regex.Literal(lx.Pattern)
	case FormString, FormCharacter:
		dq, err := DequoteString(lx.Pattern)
		if err != nil {
			lc.diags.Error(CodeUnknownLexemeDefinition, lc.filename, lx.Pos, err.Error())
			return
		}
		frag = lc.regex.Literal(dq)
	}
	lc.nfa.AddEpsilon(lc.nfa.Start, frag.Entry)
	lc.defOrder++
	lc.nfa.AddAccept(frag.Exit, AcceptAction{
		SymbolID: t.Id(),
		IsWeak:   weak,
		UnitType: unit,
		DefOrder: lc.defOrder,
	})
}

// p2LexerPasses iterates block types in the fixed priority-pass order,
// and within each pass, blocks and lexemes in source order (§4.7 P2).
func (lc *LanguageCompiler) p2LexerPasses(lang *LanguageBlock) {
	for _, kind := range lexerBlockOrder {
		weak := kind == WeakKeywords || kind == WeakLexer
		unit := kind.UnitType()
		for _, blk := range lang.LexerBlocks {
			if blk.Kind != kind {
				continue
			}
			for _, lx := range blk.Lexemes {
				t, fresh := lc.declareLexeme(lx.Name, unit, weak, lx.Pos)
				if !fresh {
					continue
				}
				lc.addLexemeToNfa(t, lx, unit, weak)
			}
		}
	}
}

// p3ImplicitSymbols walks every EBNF item in every grammar rule, creating
// implicit weak-keyword terminals for any bare terminal reference or
// quoted literal with no prior lexer definition (§4.7 P3).
func (lc *LanguageCompiler) p3ImplicitSymbols(lang *LanguageBlock) {
	var walkItems func(items []EbnfItemAST)
	walkItems = func(items []EbnfItemAST) {
		for _, it := range items {
			switch it.Kind {
			case EbnfTerminalRef:
				if _, has := lc.terms[it.Name]; !has {
					lc.implicitTerminal(it.Name, it.Name, it.Pos)
				}
			case EbnfTerminalString, EbnfTerminalCharacter:
				dq, err := DequoteString(it.Literal)
				if err != nil {
					lc.diags.Error(CodeUnknownLexemeDefinition, lc.filename, it.Pos, err.Error())
					continue
				}
				if _, has := lc.terms[dq]; !has {
					lc.implicitTerminal(dq, dq, it.Pos)
				}
			case EbnfGroup, EbnfOptional, EbnfRepeatZero, EbnfRepeatOne, EbnfGuard:
				walkItems(it.Items)
			case EbnfAlternate:
				walkItems(it.Left)
				walkItems(it.Right)
			}
		}
	}
	for _, blk := range lang.GrammarBlocks {
		for _, nt := range blk.Nonterminals {
			for _, prod := range nt.Productions {
				walkItems(prod)
			}
		}
	}
}

func (lc *LanguageCompiler) implicitTerminal(dictName, literal string, pos Position) {
	t, err := lc.builder.DeclareTerminal(dictName)
	if err != nil {
		lc.diags.Error(CodeSymbolCannotBeGenerated, lc.filename, pos, err.Error())
		return
	}
	lc.terms[dictName] = &termRecord{term: t, pos: pos, fromUnit: UnitWeakKeywords}
	lc.unitOf[t.Id()] = UnitWeakKeywords
	lc.weakIds[t.Id()] = true
	lc.diags.Warning(CodeImplicitLexerSymbol, lc.filename, pos,
		fmt.Sprintf("terminal %q used but never declared; implicitly defined as a weak keyword", literal))
	frag := lc.regex.Literal(literal)
	lc.nfa.AddEpsilon(lc.nfa.Start, frag.Entry)
	lc.defOrder++
	lc.nfa.AddAccept(frag.Exit, AcceptAction{SymbolID: t.Id(), IsWeak: true, UnitType: UnitWeakKeywords, DefOrder: lc.defOrder})
}

// p4GrammarLowering lowers each grammar block's nonterminals into Rule
// trees, honoring the "=" / "=>" / "|=" assignment forms of §4.7 P4.
func (lc *LanguageCompiler) p4GrammarLowering(lang *LanguageBlock) {
	for _, blk := range lang.GrammarBlocks {
		for _, ntDef := range blk.Nonterminals {
			lhs, err := lc.builder.DeclareNonterminal(ntDef.Name)
			if err != nil {
				lc.diags.Error(CodeSymbolCannotBeGenerated, lc.filename, ntDef.Pos, err.Error())
				continue
			}
			switch ntDef.Assign {
			case AssignNew:
				if _, has := lc.ntDefinedAt[ntDef.Name]; has {
					lc.diags.Error(CodeDuplicateNonterminalDef, lc.filename, ntDef.Pos,
						fmt.Sprintf("nonterminal %q already defined", ntDef.Name))
					continue
				}
			case AssignReplace:
				lc.builder.ClearProductions(lhs)
			case AssignAppend:
				// fall through: productions are simply appended below
			}
			lc.ntDefinedAt[ntDef.Name] = ntDef.Pos
			for _, prod := range ntDef.Productions {
				body, err := lc.buildRule(prod)
				if err != nil {
					lc.diags.Error(CodeSymbolCannotBeGenerated, lc.filename, ntDef.Pos, err.Error())
					continue
				}
				if err := lc.builder.AddProduction(lhs, body); err != nil {
					lc.diags.Bug(CodeBugInvariant, lc.filename, ntDef.Pos, err.Error())
				}
			}
		}
	}
}

// buildRule recursively lowers an EBNF item-tree fragment into a *Rule,
// splicing parenthesized groups into the enclosing sequence and turning
// terminal/nonterminal references into atoms — removing referenced
// terminals from the unused set as they are consumed.
func (lc *LanguageCompiler) buildRule(items []EbnfItemAST) (*Rule, error) {
	var out []Item
	for _, it := range items {
		switch it.Kind {
		case EbnfTerminalRef:
			t, has := lc.termByName(it.Name)
			if !has {
				return nil, fmt.Errorf("undefined terminal %q", it.Name)
			}
			delete(lc.unused, t.Id())
			out = append(out, TermItem(t))
		case EbnfTerminalString, EbnfTerminalCharacter:
			dq, err := DequoteString(it.Literal)
			if err != nil {
				return nil, err
			}
			t, has := lc.termByName(dq)
			if !has {
				return nil, fmt.Errorf("undefined literal terminal %q", dq)
			}
			delete(lc.unused, t.Id())
			out = append(out, TermItem(t))
		case EbnfNonterminalRef:
			if _, has := lc.ntReferences[it.Name]; !has {
				lc.ntReferences[it.Name] = it.Pos
			}
			nt, err := lc.builder.DeclareNonterminal(it.Name)
			if err != nil {
				return nil, err
			}
			out = append(out, TermItem(nt))
		case EbnfGroup:
			sub, err := lc.buildRule(it.Items)
			if err != nil {
				return nil, err
			}
			out = append(out, sub.Items...)
		case EbnfOptional:
			sub, err := lc.buildRule(it.Items)
			if err != nil {
				return nil, err
			}
			out = append(out, WrapperItem(KindOptional, sub, nil))
		case EbnfRepeatZero:
			sub, err := lc.buildRule(it.Items)
			if err != nil {
				return nil, err
			}
			out = append(out, WrapperItem(KindRepeatZero, sub, nil))
		case EbnfRepeatOne:
			sub, err := lc.buildRule(it.Items)
			if err != nil {
				return nil, err
			}
			out = append(out, WrapperItem(KindRepeatOne, sub, nil))
		case EbnfAlternate:
			l, err := lc.buildRule(it.Left)
			if err != nil {
				return nil, err
			}
			r, err := lc.buildRule(it.Right)
			if err != nil {
				return nil, err
			}
			out = append(out, WrapperItem(KindAlternate, l, r))
		case EbnfGuard:
			sub, err := lc.buildRule(it.Items)
			if err != nil {
				return nil, err
			}
			out = append(out, WrapperItem(KindGuard, sub, nil))
		}
	}
	return NewRule(out...), nil
}

func (lc *LanguageCompiler) termByName(name string) (Term, bool) {
	rec, has := lc.terms[name]
	if !has {
		return nil, false
	}
	return rec.term, true
}

// p5Diagnostics emits warnings for unreferenced terminals (excluding
// ignored ones) and errors for nonterminals referenced but never defined,
// with the position of the first reference (§4.7 P5).
func (lc *LanguageCompiler) p5Diagnostics(lang *LanguageBlock) {
	for name, rec := range lc.terms {
		if lc.ignoredIds[rec.term.Id()] {
			continue
		}
		if lc.unused[rec.term.Id()] {
			lc.diags.Warning(CodeUnusedTerminalSymbol, lc.filename, rec.pos,
				fmt.Sprintf("terminal %q is never referenced by any rule", name))
		}
	}
	for name, pos := range lc.ntReferences {
		if _, has := lc.ntDefinedAt[name]; !has {
			lc.diags.Error(CodeUndefinedNonterminal, lc.filename, pos,
				fmt.Sprintf("nonterminal %q is referenced but never defined", name))
		}
	}
}
