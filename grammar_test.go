package parser

import (
	"testing"
)

// buildSumGrammar builds the classic left-recursive sum grammar
//
//	E := E PLUS T | T
//	T := ID
//
// used across several tests below as a known-shape small fixture.
func buildSumGrammar(t *testing.T) Grammar {
	t.Helper()
	gb := NewGrammarBuilder()

	gb.Rule("E").Nonterminal("E").Terminal("PLUS").Nonterminal("T")
	gb.Rule("E").Nonterminal("T")
	gb.Rule("T").Terminal("ID")

	e, err := gb.DeclareNonterminal("E")
	if err != nil {
		t.Fatalf("DeclareNonterminal: %v", err)
	}
	if err := gb.AugmentedStart(e); err != nil {
		t.Fatalf("AugmentedStart: %v", err)
	}

	g, err := gb.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return g
}

func TestGrammarBuilderSumGrammar(t *testing.T) {
	g := buildSumGrammar(t)

	if g.NumTerminal() != 2 {
		t.Errorf("NumTerminal() = %d, want 2", g.NumTerminal())
	}
	if g.NumNonterminal() != 2 {
		t.Errorf("NumNonterminal() = %d, want 2", g.NumNonterminal())
	}

	nt, ok := g.TermByName("E")
	if !ok || nt.Terminal() {
		t.Fatalf("TermByName(E) = %v, %v, want a nonterminal", nt, ok)
	}

	sawAugmented := false
	for i := 0; i < g.NumProductionRule(); i++ {
		pr := g.ProductionRule(i)
		if pr.Lhs().Id() == g.Asterisk().Id() {
			sawAugmented = true
		}
	}
	if !sawAugmented {
		t.Error("no augmented start production found after AugmentedStart")
	}
}

func TestGrammarBuilderRejectsDuplicateRule(t *testing.T) {
	gb := NewGrammarBuilder()
	gb.Rule("S").Terminal("A")

	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic on duplicate rule, got none")
		}
	}()
	gb.Rule("S").Terminal("A")
	// The open rule is checked for duplicates when it is closed, which
	// happens on the next Rule() call or on Build().
	gb.Build()
}

func TestGrammarBuilderWrapperKinds(t *testing.T) {
	gb := NewGrammarBuilder()

	gb.Rule("S").
		Optional(func(b GrammarBuilder) { b.Terminal("A") }).
		RepeatZero(func(b GrammarBuilder) { b.Terminal("B") })

	g, err := gb.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	var body *Rule
	for i := 0; i < g.NumProductionRule(); i++ {
		pr := g.ProductionRule(i)
		if pr.Lhs().Name() == "S" {
			body = pr.Body()
		}
	}
	if body == nil {
		t.Fatal("no production found for S")
	}
	if len(body.Items) != 2 {
		t.Fatalf("S body has %d items, want 2", len(body.Items))
	}
	if body.Items[0].Kind() != KindOptional {
		t.Errorf("item 0 kind = %s, want optional", body.Items[0].Kind())
	}
	if body.Items[1].Kind() != KindRepeatZero {
		t.Errorf("item 1 kind = %s, want repeat-zero", body.Items[1].Kind())
	}
}
