// Package lexer tokenizes Infinity notes source text into the stream
// consumed by the parser. It is ambient to the compiler core (spec.md §1
// treats "the lexer" as an external collaborator) but is included here so
// the module is a complete, runnable pipeline.
package lexer

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/mna/infinity/lang/errs"
	"github.com/mna/infinity/lang/token"
)

// Lexer scans one source file. Construct with New, then call Scan
// repeatedly until it returns a token.EOF token.
type Lexer struct {
	file *token.File
	src  []byte
	off  int
	line int
	col  int
	err  func(pos token.Position, msg string)
}

// New creates a Lexer over src, reporting the file under name. Scan errors
// are delivered to errFn instead of panicking.
func New(name string, src []byte, errFn func(pos token.Position, msg string)) *Lexer {
	return &Lexer{
		file: token.NewFile(name),
		src:  src,
		line: 1,
		col:  1,
		err:  errFn,
	}
}

func (l *Lexer) position() token.Position {
	return l.file.Position(token.MakePos(l.line, l.col))
}

func (l *Lexer) errorf(format string, args ...interface{}) {
	if l.err != nil {
		l.err(l.position(), fmt.Sprintf(format, args...))
	}
}

func (l *Lexer) peek() (rune, int) {
	if l.off >= len(l.src) {
		return 0, 0
	}
	r, n := utf8.DecodeRune(l.src[l.off:])
	return r, n
}

func (l *Lexer) advance(n int, r rune) {
	l.off += n
	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
}

func isSpace(r rune) bool { return r == ' ' || r == '\t' || r == '\r' }

func isWordRune(r rune) bool {
	if unicode.IsSpace(r) {
		return false
	}
	switch r {
	case ':', ',', '(', ')':
		return false
	}
	return true
}

// Scan returns the next token in the stream. At end of input it returns a
// token.EOF token forever.
func (l *Lexer) Scan() token.Token {
	for {
		r, n := l.peek()
		if n == 0 {
			return token.Token{Kind: token.EOF, Pos: token.MakePos(l.line, l.col)}
		}
		if r == '\n' {
			pos := token.MakePos(l.line, l.col)
			l.advance(n, r)
			return token.Token{Kind: token.NEWLINE, Pos: pos, Text: "\n"}
		}
		if isSpace(r) {
			l.advance(n, r)
			continue
		}
		break
	}

	startLine, startCol := l.line, l.col
	pos := token.MakePos(startLine, startCol)
	r, n := l.peek()

	switch r {
	case ':':
		l.advance(n, r)
		if r2, n2 := l.peek(); r2 == ':' {
			l.advance(n2, r2)
			return token.Token{Kind: token.DOUBLE_COLON, Pos: pos, Text: "::"}
		}
		return token.Token{Kind: token.COLON, Pos: pos, Text: ":"}
	case ',':
		l.advance(n, r)
		return token.Token{Kind: token.COMMA, Pos: pos, Text: ","}
	case '(':
		l.advance(n, r)
		return token.Token{Kind: token.LPAREN, Pos: pos, Text: "("}
	case ')':
		l.advance(n, r)
		return token.Token{Kind: token.RPAREN, Pos: pos, Text: ")"}
	case '\'':
		return l.scanChar(pos)
	}

	var sb strings.Builder
	for {
		r, n := l.peek()
		if n == 0 || !isWordRune(r) {
			break
		}
		sb.WriteRune(r)
		l.advance(n, r)
	}
	text := sb.String()
	if text == "" {
		// Unrecognized single byte; report and skip it so scanning can
		// continue for later diagnostics.
		l.errorf("unexpected character %q", r)
		l.advance(n, r)
		return l.Scan()
	}
	if isForbidden(text) {
		l.errorf("%q is a reserved word and cannot be used as an operator or label", text)
	}
	if v, ok := parseInt(text); ok {
		return token.Token{Kind: token.NUMBER, Pos: pos, Text: text, Value: v}
	}
	return token.Token{Kind: token.WORD, Pos: pos, Text: text}
}

// scanChar scans a 'c' character literal, itself a NUMBER token per
// spec.md §6 ("Constants: integer literal, NULL, TRUE, FALSE" plus the
// reference assembler's character-literal convenience).
func (l *Lexer) scanChar(pos token.Pos) token.Token {
	start := l.off
	r, n := l.peek()
	l.advance(n, r) // opening quote
	for {
		r, n = l.peek()
		if n == 0 || r == '\n' {
			l.errorf("unterminated character literal")
			break
		}
		l.advance(n, r)
		if r == '\'' {
			break
		}
		if r == '\\' {
			r2, n2 := l.peek()
			if n2 != 0 {
				l.advance(n2, r2)
			}
		}
	}
	raw := string(l.src[start:l.off])
	v, _, _, err := strconv.UnquoteChar(strings.Trim(raw, "'"), '\'')
	if err != nil {
		l.errorf("invalid character literal %s: %v", raw, err)
	}
	return token.Token{Kind: token.NUMBER, Pos: pos, Text: raw, Value: int64(v)}
}

func parseInt(s string) (int64, bool) {
	n, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// forbidden holds the tokens reserved as non-operators per spec.md §6, to
// prevent ambiguity with the bytecode mnemonics they shadow.
var forbidden = map[string]bool{
	"addr":  true,
	"bra":   true,
	"plus":  true,
	"minus": true,
}

func isForbidden(s string) bool { return forbidden[s] }

// ScanAll tokenizes the entire source, returning every token (including a
// final EOF) or the accumulated errs.List if any token was malformed.
func ScanAll(name string, src []byte) ([]token.Token, error) {
	var el errs.List
	l := New(name, src, func(pos token.Position, msg string) {
		el.Add(errs.NewLexError(pos, "%s", msg))
	})
	var toks []token.Token
	for {
		t := l.Scan()
		toks = append(toks, t)
		if t.Kind == token.EOF {
			break
		}
	}
	el.Sort()
	return toks, el.Err()
}
