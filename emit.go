package parser

// TableEventSink is the external collaborator C10 drives (§6's "ordered
// stream of events"). Emitters may override any subset of methods; a
// sink embedding NopTableEventSink gets a silent default for the rest.
type TableEventSink interface {
	BeginOutput()
	BeginTerminalSymbols()
	TerminalSymbol(id uint32, name string)
	EndTerminalSymbols()
	BeginNonterminalSymbols()
	NonterminalSymbol(id uint32, name string)
	EndNonterminalSymbols()
	SymbolMapRange(classID int, lo, hi int)
	LexerState(id int, hasAccept bool, accept AcceptAction, shadow *AcceptAction)
	LexerTransition(fromState, classID, toState int)
	ParserState(id int)
	ParserAction(stateID int, a RowAction)
	Rule(id uint64, nonterminalID uint32, length int, text string)
	EndOutput()
}

// NopTableEventSink is embeddable by emitters that only care about a few
// event kinds.
type NopTableEventSink struct{}

func (NopTableEventSink) BeginOutput()                                              {}
func (NopTableEventSink) BeginTerminalSymbols()                                     {}
func (NopTableEventSink) TerminalSymbol(id uint32, name string)                     {}
func (NopTableEventSink) EndTerminalSymbols()                                       {}
func (NopTableEventSink) BeginNonterminalSymbols()                                  {}
func (NopTableEventSink) NonterminalSymbol(id uint32, name string)                  {}
func (NopTableEventSink) EndNonterminalSymbols()                                    {}
func (NopTableEventSink) SymbolMapRange(classID int, lo, hi int)                    {}
func (NopTableEventSink) LexerState(id int, hasAccept bool, a AcceptAction, s *AcceptAction) {}
func (NopTableEventSink) LexerTransition(fromState, classID, toState int)           {}
func (NopTableEventSink) ParserState(id int)                                        {}
func (NopTableEventSink) ParserAction(stateID int, a RowAction)                     {}
func (NopTableEventSink) Rule(id uint64, nonterminalID uint32, length int, text string) {}
func (NopTableEventSink) EndOutput()                                                {}

// EmitTables drives sink through the full event sequence of §4.10/§6,
// over a compiled grammar, its DFA, and its LALR automaton. Terminal and
// nonterminal symbols are emitted in dictionary (insertion) order;
// lexer states in their BFS-assigned id order (§5's determinism
// guarantee); parser action rows sorted by (is_terminal, symbol_id) so a
// consuming emitter can binary-search them, matching §4.10's contract.
func EmitTables(sink TableEventSink, g Grammar, dfa *Dfa, automaton *LalrAutomaton) {
	sink.BeginOutput()

	sink.BeginTerminalSymbols()
	for i := 0; i < g.NumTerminal(); i++ {
		t := g.Terminal(i)
		sink.TerminalSymbol(t.Id(), t.Name())
	}
	sink.EndTerminalSymbols()

	sink.BeginNonterminalSymbols()
	for i := 0; i < g.NumNonterminal(); i++ {
		nt := g.Nonterminal(i)
		sink.NonterminalSymbol(nt.Id(), nt.Name())
	}
	sink.EndNonterminalSymbols()

	for classID, rs := range dfa.Alphabet {
		for _, r := range rs.Ranges() {
			sink.SymbolMapRange(classID, r.Lo, r.Hi)
		}
	}

	for _, st := range dfa.States {
		sink.LexerState(st.ID, st.HasAccept, st.Accept, st.ShadowAccept)
		classes := make([]int, 0, len(st.Trans))
		for c := range st.Trans {
			classes = append(classes, c)
		}
		sortInts(classes)
		for _, c := range classes {
			sink.LexerTransition(st.ID, c, st.Trans[c])
		}
	}

	if automaton != nil {
		for i, st := range automaton.States {
			sink.ParserState(st.ID)
			row := sortedActionRow(automaton.Actions[i])
			for _, a := range row {
				sink.ParserAction(st.ID, a)
			}
		}
	}

	for i := 0; i < g.NumProductionRule(); i++ {
		pr := g.ProductionRule(i)
		sink.Rule(pr.Body().Id(), pr.Lhs().Id(), len(pr.Body().Items), ProductionRuleToString(pr))
	}

	sink.EndOutput()
}

func sortInts(s []int) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// sortedActionRow orders a state's actions by (is_terminal, symbol_id),
// ascending, so downstream emitters can partition and binary-search them
// as §4.10 specifies.
func sortedActionRow(row []RowAction) []RowAction {
	out := append([]RowAction(nil), row...)
	isTerminalKind := func(k ActionKind) bool { return k != ActionGoto }
	for i := 1; i < len(out); i++ {
		for j := i; j > 0; j-- {
			a, b := out[j-1], out[j]
			aTerm, bTerm := isTerminalKind(a.Kind), isTerminalKind(b.Kind)
			swap := false
			if aTerm != bTerm {
				swap = !aTerm && bTerm
			} else if a.Symbol > b.Symbol {
				swap = true
			}
			if !swap {
				break
			}
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}
