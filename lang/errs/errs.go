// Package errs defines the compiler's error taxonomy. Every pass reports
// failures as one of these concrete types so that callers can distinguish
// them with errors.As while still treating them as a plain error.
package errs

import (
	"fmt"
	"sort"

	"github.com/mna/infinity/lang/token"
)

// CompileError is implemented by every error the compiler can return.
// It carries the source position the error should be reported against.
type CompileError interface {
	error
	Position() token.Position
}

type base struct {
	Pos token.Position
	Msg string
}

func (e *base) Position() token.Position { return e.Pos }
func (e *base) Error() string            { return fmt.Sprintf("%s: %s", e.Pos, e.Msg) }

// LexError reports a malformed token.
type LexError struct{ *base }

// ParseError reports a token sequence that violates the grammar.
type ParseError struct{ *base }

// BadType reports an undefined or cyclic type alias, or an operation
// applied to a type that forbids it.
type BadType struct{ *base }

// NameError reports a duplicate or unresolved identifier.
type NameError struct{ *base }

// StackError reports a stack depth, type, merge-shape or return-arity
// violation detected by the stack walker.
type StackError struct{ *base }

// InternalError indicates an invariant was violated mid-pass. It is never
// caused by valid input and is never recovered from, only surfaced.
type InternalError struct{ *base }

// NewLexError builds a LexError at pos with the given message.
func NewLexError(pos token.Position, format string, args ...interface{}) *LexError {
	return &LexError{&base{pos, fmt.Sprintf(format, args...)}}
}

// NewParseError builds a ParseError at pos with the given message.
func NewParseError(pos token.Position, format string, args ...interface{}) *ParseError {
	return &ParseError{&base{pos, fmt.Sprintf(format, args...)}}
}

// NewBadType builds a BadType error at pos with the given message.
func NewBadType(pos token.Position, format string, args ...interface{}) *BadType {
	return &BadType{&base{pos, fmt.Sprintf(format, args...)}}
}

// NewNameError builds a NameError at pos with the given message.
func NewNameError(pos token.Position, format string, args ...interface{}) *NameError {
	return &NameError{&base{pos, fmt.Sprintf(format, args...)}}
}

// NewStackError builds a StackError at pos with the given message.
func NewStackError(pos token.Position, format string, args ...interface{}) *StackError {
	return &StackError{&base{pos, fmt.Sprintf(format, args...)}}
}

// NewInternalError builds an InternalError at pos with the given assertion
// message. The pass may return it as a normal error value; it must never be
// recovered from.
func NewInternalError(pos token.Position, format string, args ...interface{}) *InternalError {
	return &InternalError{&base{pos, fmt.Sprintf(format, args...)}}
}

// List accumulates errors from a single pass that examines independent
// inputs (the lexer scanning a file, the parser across statements) so that
// more than one diagnostic can be reported per run, modeled on the
// accumulate/sort/report shape of the reference scanner's own error list.
type List []CompileError

// Add appends err to the list.
func (l *List) Add(err CompileError) {
	*l = append(*l, err)
}

// Len satisfies sort.Interface.
func (l List) Len() int { return len(l) }

// Swap satisfies sort.Interface.
func (l List) Swap(i, j int) { l[i], l[j] = l[j], l[i] }

// Less satisfies sort.Interface, ordering by filename, then line, then
// column.
func (l List) Less(i, j int) bool {
	pi, pj := l[i].Position(), l[j].Position()
	if pi.Filename != pj.Filename {
		return pi.Filename < pj.Filename
	}
	if pi.Line != pj.Line {
		return pi.Line < pj.Line
	}
	return pi.Column < pj.Column
}

// Sort orders the list by position.
func (l List) Sort() { sort.Sort(l) }

// Error implements the error interface, joining all messages with a
// newline.
func (l List) Error() string {
	s := ""
	for i, e := range l {
		if i > 0 {
			s += "\n"
		}
		s += e.Error()
	}
	return s
}

// Err returns nil if the list is empty, the sole error if it holds exactly
// one, or the list itself (as an error) otherwise.
func (l List) Err() error {
	switch len(l) {
	case 0:
		return nil
	case 1:
		return l[0]
	default:
		return l
	}
}
