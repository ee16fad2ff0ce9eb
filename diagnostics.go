package parser

import (
	"fmt"

	"github.com/pterm/pterm"
)

// Severity is one of the six levels a Diagnostic may carry (§6/§7).
type Severity int

const (
	SeverityDetail Severity = iota
	SeverityInfo
	SeverityVerbose
	SeverityWarning
	SeverityError
	SeverityBug
)

func (s Severity) String() string {
	switch s {
	case SeverityDetail:
		return "detail"
	case SeverityInfo:
		return "info"
	case SeverityVerbose:
		return "verbose"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityBug:
		return "bug"
	}
	return "unknown"
}

// Stable diagnostic codes (§6).
const (
	CodeDuplicateLexerSymbol       = "DUPLICATE_LEXER_SYMBOL"
	CodeUnknownLexemeDefinition    = "UNK_LEXEME_DEFINITION"
	CodeDuplicateNonterminalDef    = "DUPLICATE_NONTERMINAL_DEFINITION"
	CodeUnusedTerminalSymbol       = "UNUSED_TERMINAL_SYMBOL"
	CodeUndefinedNonterminal       = "UNDEFINED_NONTERMINAL"
	CodeImplicitLexerSymbol        = "IMPLICIT_LEXER_SYMBOL"
	CodeSymbolCannotBeGenerated    = "SYMBOL_CANNOT_BE_GENERATED"
	CodeSymbolClashesWith          = "SYMBOL_CLASHES_WITH"
	CodeBugInvariant               = "BUG_INVARIANT_VIOLATION"
	CodeBugUnreachable             = "BUG_UNREACHABLE"
	CodeLalrConflict               = "LALR_CONFLICT"
	CodeLalrStateDump              = "LALR_STATE_DUMP"
)

// Position is (offset, line, column), or the sentinel NoPosition when the
// diagnostic has no source location.
type Position struct {
	Offset, Line, Column int
}

var NoPosition = Position{-1, -1, -1}

// Diagnostic is a single reported fact: errors are values, never
// exceptions (§7).
type Diagnostic struct {
	Severity Severity
	Code     string
	Filename string
	Position Position
	Message  string
}

func (d Diagnostic) String() string {
	if d.Position == NoPosition {
		return fmt.Sprintf("[%s] %s: %s", d.Severity, d.Code, d.Message)
	}
	return fmt.Sprintf("[%s] %s:%d:%d %s: %s", d.Severity, d.Filename, d.Position.Line, d.Position.Column, d.Code, d.Message)
}

// ConsoleSink is the external collaborator consuming diagnostics (§6): a
// console/diagnostics sink supporting one method per severity. The core
// only ever calls these seven methods; it never owns how they're rendered.
type ConsoleSink interface {
	Verbose(code, filename string, pos Position, message string)
	Message(code, filename string, pos Position, message string)
	Warning(code, filename string, pos Position, message string)
	Error(code, filename string, pos Position, message string)
	Bug(code, filename string, pos Position, message string)
	Detail(code, filename string, pos Position, message string)
	Info(code, filename string, pos Position, message string)
}

// DiagnosticSink is a ConsoleSink that also retains every diagnostic it
// has seen and tracks the maximum severity observed, so a compilation
// session can decide whether to proceed to table emission (§7: "the exit
// code of a compilation is the maximum severity observed").
type DiagnosticSink struct {
	All      []Diagnostic
	Max      Severity
	delegate ConsoleSink
}

// NewDiagnosticSink wraps an external ConsoleSink (nil is fine — the
// diagnostics are still recorded, just not forwarded anywhere).
func NewDiagnosticSink(delegate ConsoleSink) *DiagnosticSink {
	return &DiagnosticSink{delegate: delegate, Max: SeverityDetail}
}

func (s *DiagnosticSink) record(sev Severity, code, filename string, pos Position, message string) {
	s.All = append(s.All, Diagnostic{sev, code, filename, pos, message})
	if sev > s.Max {
		s.Max = sev
	}
	if s.delegate == nil {
		return
	}
	switch sev {
	case SeverityVerbose:
		s.delegate.Verbose(code, filename, pos, message)
	case SeverityInfo:
		s.delegate.Info(code, filename, pos, message)
	case SeverityWarning:
		s.delegate.Warning(code, filename, pos, message)
	case SeverityError:
		s.delegate.Error(code, filename, pos, message)
	case SeverityBug:
		s.delegate.Bug(code, filename, pos, message)
	case SeverityDetail:
		s.delegate.Detail(code, filename, pos, message)
	default:
		s.delegate.Message(code, filename, pos, message)
	}
}

func (s *DiagnosticSink) Verbose(code, filename string, pos Position, message string) {
	s.record(SeverityVerbose, code, filename, pos, message)
}
func (s *DiagnosticSink) Warning(code, filename string, pos Position, message string) {
	s.record(SeverityWarning, code, filename, pos, message)
}
func (s *DiagnosticSink) Error(code, filename string, pos Position, message string) {
	s.record(SeverityError, code, filename, pos, message)
}
func (s *DiagnosticSink) Bug(code, filename string, pos Position, message string) {
	s.record(SeverityBug, code, filename, pos, message)
}
func (s *DiagnosticSink) Detail(code, filename string, pos Position, message string) {
	s.record(SeverityDetail, code, filename, pos, message)
}
func (s *DiagnosticSink) Info(code, filename string, pos Position, message string) {
	s.record(SeverityInfo, code, filename, pos, message)
}

// Aborted reports whether the maximum severity observed requires aborting
// before table emission (§7: ">= error aborts").
func (s *DiagnosticSink) Aborted() bool {
	return s.Max >= SeverityError
}

// PrettyConsoleSink is the default ConsoleSink: colors severities when
// attached to a terminal, otherwise writes plain lines. pterm is purely
// cosmetic here — nothing downstream depends on the coloring.
type PrettyConsoleSink struct {
	Plain bool
}

func (p *PrettyConsoleSink) print(color pterm.Color, label, code, filename string, pos Position, message string) {
	loc := ""
	if pos != NoPosition {
		loc = fmt.Sprintf(" %s:%d:%d", filename, pos.Line, pos.Column)
	}
	line := fmt.Sprintf("%s%s %s: %s", label, loc, code, message)
	if p.Plain {
		fmt.Println(line)
		return
	}
	fmt.Println(color.Sprint(line))
}

func (p *PrettyConsoleSink) Verbose(code, filename string, pos Position, message string) {
	p.print(pterm.FgGray, "verbose", code, filename, pos, message)
}
func (p *PrettyConsoleSink) Message(code, filename string, pos Position, message string) {
	p.print(pterm.FgLightWhite, "message", code, filename, pos, message)
}
func (p *PrettyConsoleSink) Warning(code, filename string, pos Position, message string) {
	p.print(pterm.FgLightYellow, "warning", code, filename, pos, message)
}
func (p *PrettyConsoleSink) Error(code, filename string, pos Position, message string) {
	p.print(pterm.FgLightRed, "error", code, filename, pos, message)
}
func (p *PrettyConsoleSink) Bug(code, filename string, pos Position, message string) {
	p.print(pterm.FgRed, "bug", code, filename, pos, message)
}
func (p *PrettyConsoleSink) Detail(code, filename string, pos Position, message string) {
	p.print(pterm.FgGray, "detail", code, filename, pos, message)
}
func (p *PrettyConsoleSink) Info(code, filename string, pos Position, message string) {
	p.print(pterm.FgLightCyan, "info", code, filename, pos, message)
}
