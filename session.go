package parser

import "fmt"

// CompilationSession owns one compilation end to end: AST in, compiled
// tables out, diagnostics threaded through every stage (§5: "all state is
// process-local and fully owned by the compilation-session object").
type CompilationSession struct {
	Config *ConfigMap
	Diags  *DiagnosticSink

	Filename string

	Grammar   Grammar
	Dfa       *Dfa
	Automaton *LalrAutomaton
	WeakStats *WeakInjectionResult

	nextTerminalID uint32
}

func NewCompilationSession(cfg *ConfigMap, sink ConsoleSink, filename string) *CompilationSession {
	return &CompilationSession{
		Config:   cfg,
		Diags:    NewDiagnosticSink(sink),
		Filename: filename,
	}
}

// Compile runs the full pipeline of §2: C7 (language compilation) -> C5
// (lexer determinization) in parallel with C8 (LALR construction) -> C9
// (weak-symbol injection), aborting before any stage whose precondition
// diagnostics reached error severity (§7).
func (s *CompilationSession) Compile(lang *LanguageBlock) error {
	startSymbols := s.Config.StartSymbols()
	if len(startSymbols) == 0 {
		return fmt.Errorf("no start-symbol configured")
	}

	lc := NewLanguageCompiler(s.Diags, s.Filename)
	result, err := lc.Compile(lang, startSymbols)
	if err != nil {
		return err
	}
	s.Grammar = result.Grammar
	s.nextTerminalID = s.firstFreeTerminalID()

	s.Dfa = BuildDfa(result.Nfa, s.Config.DfaOptions())

	automaton, err := BuildLalrAutomaton(withWeakIndex(s.Grammar, result.WeakIds), startSymbols, s.Diags, s.Filename)
	if err != nil {
		return err
	}
	s.Automaton = automaton

	ApplyActionRewriters(s.Automaton, DedupeActionRewriter, ConflictReportingRewriter(s.Diags, s.Filename))

	s.WeakStats = InjectWeakSymbols(s.Dfa, s.Automaton, result.WeakIds, s.allocTerminalID)
	s.Diags.Info("WEAK_SHADOW_STATS", s.Filename, NoPosition,
		fmt.Sprintf("%d strong-shadow terminal(s) injected", s.WeakStats.Injected))

	return nil
}

// Emit drives sink through the finished tables, or returns an error if
// the session aborted before completing (§7: "≥ error aborts before
// table emission").
func (s *CompilationSession) Emit(sink TableEventSink) error {
	if s.Diags.Aborted() {
		return fmt.Errorf("compilation aborted: max severity %s", s.Diags.Max)
	}
	if s.Grammar == nil || s.Dfa == nil || s.Automaton == nil {
		return fmt.Errorf("Emit called before Compile")
	}
	EmitTables(sink, s.Grammar, s.Dfa, s.Automaton)
	return nil
}

func (s *CompilationSession) firstFreeTerminalID() uint32 {
	max := uint32(0)
	for i := 0; i < s.Grammar.NumTerminal(); i++ {
		if id := s.Grammar.Terminal(i).Id(); id > max {
			max = id
		}
	}
	return max + 1
}

func (s *CompilationSession) allocTerminalID() uint32 {
	id := s.nextTerminalID
	s.nextTerminalID++
	return id
}

// withWeakIndex attaches the weak-terminal-id set discovered during C7 to
// the grammar's IndexedGrammar cache, so C8's action-table construction
// can ask WeakSymbolGrammarIndex which reduce actions must be
// weak_reduce.
func withWeakIndex(g Grammar, weakIds map[uint32]bool) Grammar {
	ig := GetIndexedGrammar(g)
	if sig, ok := ig.(*stdIndexedGrammar); ok {
		sig.WithWeakTerminals(weakIds)
	}
	return ig
}
