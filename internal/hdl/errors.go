package hdl

import "fmt"

// Kind distinguishes the categories of failure the simulator core can
// report, per the error-handling design: each is independently testable by
// callers (notably the vector-test driver, which attaches the message to a
// failed vector rather than aborting the run).
type Kind uint8

const (
	// InvalidSource indicates no module declaration was found, or a block
	// comment was left unterminated.
	InvalidSource Kind = iota
	// MalformedStatement indicates an unmatched begin/end, paren, or colon
	// while parsing a procedural body.
	MalformedStatement
	// BadExpression indicates an unresolvable identifier, a malformed sized
	// literal, or an arithmetic evaluation failure.
	BadExpression
	// UnresolvedSignal indicates an instantiation port wired to something
	// that is neither a known signal, a bit alias, nor a literal.
	UnresolvedSignal
	// MissingModule indicates a referenced child module's source could not
	// be located.
	MissingModule
	// MissingROM indicates a rom_ primitive whose backing data file is
	// absent.
	MissingROM
	// BadBinding indicates a memory binding names a memory the module does
	// not have, or a file that cannot be read.
	BadBinding
)

func (k Kind) String() string {
	switch k {
	case InvalidSource:
		return "InvalidSource"
	case MalformedStatement:
		return "MalformedStatement"
	case BadExpression:
		return "BadExpression"
	case UnresolvedSignal:
		return "UnresolvedSignal"
	case MissingModule:
		return "MissingModule"
	case MissingROM:
		return "MissingROM"
	case BadBinding:
		return "BadBinding"
	default:
		return "Unknown"
	}
}

// Error is the core's single error type. Every failure surfaced from the
// parser or evaluator carries a Kind so callers can distinguish, e.g., a
// transient BadExpression (retryable within a fixed-point pass) from a
// terminal MissingModule.
type Error struct {
	Kind    Kind
	Message string
	// Context is an optional signal, module, or file name identifying what
	// the error concerns; purely for diagnostics.
	Context string
}

func (e *Error) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Context)
	}

	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	he, ok := err.(*Error)
	return ok && he.Kind == kind
}

func newErr(kind Kind, context string, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Context: context}
}
