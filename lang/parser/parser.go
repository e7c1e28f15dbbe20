// Package parser implements a recursive-descent parser over the token
// stream described in spec.md §6, producing the ast.Program consumed by
// the TypeAnnotate pass. It implements the "Parameters+Externals" grammar
// named by the Open Questions of spec.md §9 (keywords `extern func` /
// `extern ptr`, `typedef`); the "UserParams+AutoParams" grammar is not
// implemented.
//
// Like the lexer, the parser is ambient to the compiler core: spec.md §1
// takes a token stream (or a pre-parsed AST) as the input to §4.1.
package parser

import (
	"github.com/mna/infinity/lang/ast"
	"github.com/mna/infinity/lang/errs"
	"github.com/mna/infinity/lang/lexer"
	"github.com/mna/infinity/lang/token"
)

// Parser consumes a materialized token slice (produced by the lexer or
// supplied directly) and builds an ast.Program.
type Parser struct {
	file *token.File
	toks []token.Token
	pos  int
	errs errs.List
}

// New creates a Parser over toks, attributing diagnostics to file.
func New(file *token.File, toks []token.Token) *Parser {
	// Filter out NEWLINE: statement boundaries in this grammar are
	// determined entirely by keywords and operand counts, so newlines are
	// treated as insignificant whitespace once the lexer has split words
	// apart (the one-statement-per-line discipline is a source style
	// convention, not something the grammar itself must enforce).
	filtered := make([]token.Token, 0, len(toks))
	for _, t := range toks {
		if t.Kind == token.NEWLINE {
			continue
		}
		filtered = append(filtered, t)
	}
	return &Parser{file: file, toks: filtered}
}

// ParseSource lexes and parses src in one step.
func ParseSource(name string, src []byte) (*ast.Program, error) {
	file := token.NewFile(name)
	var lerrs errs.List
	lx := lexer.New(name, src, func(pos token.Position, msg string) {
		lerrs.Add(errs.NewLexError(pos, "%s", msg))
	})
	var toks []token.Token
	for {
		t := lx.Scan()
		toks = append(toks, t)
		if t.Kind == token.EOF {
			break
		}
	}
	if err := lerrs.Err(); err != nil {
		return nil, err
	}
	return New(file, toks).Parse()
}

func (p *Parser) cur() token.Token {
	if p.pos >= len(p.toks) {
		return token.Token{Kind: token.EOF}
	}
	return p.toks[p.pos]
}

func (p *Parser) advance() token.Token {
	t := p.cur()
	if p.pos < len(p.toks) {
		p.pos++
	}
	return t
}

func (p *Parser) peekKind(offset int) token.Kind {
	i := p.pos + offset
	if i >= len(p.toks) {
		return token.EOF
	}
	return p.toks[i].Kind
}

func (p *Parser) position(t token.Token) token.Position { return p.file.Position(t.Pos) }

func (p *Parser) errorf(t token.Token, format string, args ...interface{}) {
	p.errs.Add(errs.NewParseError(p.position(t), format, args...))
}

// atWord reports whether the current token is a WORD with the given text.
func (p *Parser) atWord(text string) bool {
	t := p.cur()
	return t.Kind == token.WORD && t.Text == text
}

// expectWord consumes a WORD token matching text, reporting an error and
// returning false otherwise (without consuming the unexpected token).
func (p *Parser) expectWord(text string) bool {
	if !p.atWord(text) {
		p.errorf(p.cur(), "expected %q, got %q", text, p.cur().Text)
		return false
	}
	p.advance()
	return true
}

func (p *Parser) expectKind(k token.Kind) (token.Token, bool) {
	t := p.cur()
	if t.Kind != k {
		p.errorf(t, "expected %s, got %s %q", k, t.Kind, t.Text)
		return t, false
	}
	p.advance()
	return t, true
}

// Parse consumes the whole token stream and returns the resulting
// ast.Program, or the accumulated parse errors.
func (p *Parser) Parse() (*ast.Program, error) {
	prog := &ast.Program{}
	for p.cur().Kind != token.EOF {
		switch {
		case p.atWord("typedef"):
			if td := p.parseTypedef(); td != nil {
				prog.Typedefs = append(prog.Typedefs, td)
			}
		case p.atWord("define"):
			if fn := p.parseFunc(); fn != nil {
				prog.Funcs = append(prog.Funcs, fn)
			}
		default:
			p.errorf(p.cur(), "expected 'typedef' or 'define', got %q", p.cur().Text)
			p.advance()
		}
		if len(p.errs) > 32 {
			break
		}
	}
	p.errs.Sort()
	return prog, p.errs.Err()
}

func (p *Parser) parseTypedef() *ast.TypedefDecl {
	kw := p.advance() // "typedef"
	ty := p.parseTypeExpr()
	name, ok := p.expectKind(token.WORD)
	if !ok {
		return nil
	}
	return &ast.TypedefDecl{Pos: kw.Pos, Name: name.Text, Type: ty}
}

// parseTypeExpr parses one type: a basic keyword, a named alias, or a
// `func RET... (PARAM...)` literal.
func (p *Parser) parseTypeExpr() ast.TypeExpr {
	t := p.cur()
	switch {
	case t.Kind == token.WORD && (t.Text == "int" || t.Text == "ptr" || t.Text == "bool" || t.Text == "opaque"):
		p.advance()
		return ast.NewBasicTypeExpr(t.Pos, t.Text)
	case t.Kind == token.WORD && t.Text == "func":
		p.advance()
		rets := p.parseTypeList(token.LPAREN)
		p.expectKind(token.LPAREN)
		params := p.parseTypeList(token.RPAREN)
		p.expectKind(token.RPAREN)
		return ast.NewFuncTypeExpr(t.Pos, rets, params)
	case t.Kind == token.WORD:
		p.advance()
		return ast.NewNamedTypeExpr(t.Pos, t.Text)
	default:
		p.errorf(t, "expected a type, got %q", t.Text)
		p.advance()
		return ast.NewNamedTypeExpr(t.Pos, "?")
	}
}

// parseTypeList parses a comma-separated list of types, stopping before a
// token of kind stop (token.LPAREN when parsing return types ahead of a
// parameter list, token.RPAREN when parsing parameter types), before EOF,
// a COLON, a declaration keyword (argument, extern, typedef, define) or an
// operation keyword, or after a type that is not followed by a COMMA.
func (p *Parser) parseTypeList(stop token.Kind) []ast.TypeExpr {
	var out []ast.TypeExpr
	for {
		t := p.cur()
		if t.Kind == stop || t.Kind == token.EOF {
			return out
		}
		if t.Kind == token.WORD && (t.Text == "argument" || t.Text == "extern" || t.Text == "typedef" || t.Text == "define") {
			return out
		}
		if t.Kind == token.COLON || (t.Kind == token.WORD && isOpKeyword(t.Text)) {
			return out
		}
		out = append(out, p.parseTypeExpr())
		if p.cur().Kind == token.COMMA {
			p.advance()
			continue
		}
		return out
	}
}

func (p *Parser) parseFunc() *ast.FuncDecl {
	kw := p.advance() // "define"
	provider, ok := p.expectKind(token.WORD)
	if !ok {
		return nil
	}
	if _, ok := p.expectKind(token.DOUBLE_COLON); !ok {
		return nil
	}
	name, ok := p.expectKind(token.WORD)
	if !ok {
		return nil
	}
	fn := &ast.FuncDecl{Pos: kw.Pos, Provider: provider.Text, Name: name.Text}
	if p.atWord("returns") {
		p.advance()
		fn.Returns = p.parseTypeList(token.EOF)
	}
	for p.atWord("argument") {
		p.advance()
		ty := p.parseTypeExpr()
		nm, ok := p.expectKind(token.WORD)
		if !ok {
			break
		}
		fn.Params = append(fn.Params, ast.Argument{Pos: nm.Pos, Type: ty, Name: nm.Text})
	}
	for p.atWord("extern") {
		p.advance()
		switch {
		case p.atWord("func"):
			p.advance()
			rets := p.parseTypeList(token.LPAREN)
			p.expectKind(token.LPAREN)
			params := p.parseTypeList(token.RPAREN)
			p.expectKind(token.RPAREN)
			nm, ok := p.expectKind(token.WORD)
			if !ok {
				break
			}
			fn.Externs = append(fn.Externs, &ast.ExternFunc{Pos: nm.Pos, Returns: rets, Params: params, Name: nm.Text})
		case p.atWord("ptr"):
			p.advance()
			nm, ok := p.expectKind(token.WORD)
			if !ok {
				break
			}
			fn.Externs = append(fn.Externs, &ast.ExternPtr{Pos: nm.Pos, Name: nm.Text})
		default:
			p.errorf(p.cur(), "expected 'func' or 'ptr' after 'extern', got %q", p.cur().Text)
		}
	}
	fn.Body = p.parseBody()
	return fn
}

func (p *Parser) parseBody() []ast.Stmt {
	var body []ast.Stmt
	for {
		t := p.cur()
		if t.Kind == token.EOF || (t.Kind == token.WORD && (t.Text == "typedef" || t.Text == "define")) {
			return body
		}
		if t.Kind == token.WORD && p.peekKind(1) == token.COLON {
			p.advance()
			p.advance() // the COLON
			body = append(body, &ast.Label{Pos: t.Pos, Name: t.Text})
			continue
		}
		if t.Kind != token.WORD {
			p.errorf(t, "expected an operation, got %q", t.Text)
			p.advance()
			continue
		}
		op := p.parseOp()
		if op != nil {
			body = append(body, op)
		}
	}
}

var compareByKeyword = map[string]ast.CompareKind{
	"lt": ast.CompareLt, "le": ast.CompareLe, "eq": ast.CompareEq,
	"ne": ast.CompareNe, "ge": ast.CompareGe, "gt": ast.CompareGt,
}

var branchByKeyword = map[string]ast.CompareKind{
	"blt": ast.CompareLt, "ble": ast.CompareLe, "beq": ast.CompareEq,
	"bne": ast.CompareNe, "bge": ast.CompareGe, "bgt": ast.CompareGt,
}

var unaryByKeyword = map[string]ast.UnaryKind{
	"abs": ast.UnaryAbs, "neg": ast.UnaryNeg, "not": ast.UnaryNot,
}

var binaryByKeyword = map[string]ast.BinaryKind{
	"add": ast.BinaryAdd, "and": ast.BinaryAnd, "div": ast.BinaryDiv,
	"mod": ast.BinaryMod, "mul": ast.BinaryMul, "or": ast.BinaryOr,
	"shl": ast.BinaryShl, "shr": ast.BinaryShr, "shra": ast.BinaryShra,
	"sub": ast.BinarySub, "xor": ast.BinaryXor,
}

var stackByKeyword = map[string]ast.StackKind{
	"drop": ast.StackDrop, "dup": ast.StackDup, "over": ast.StackOver,
	"rot": ast.StackRot, "swap": ast.StackSwap,
}

func isOpKeyword(s string) bool {
	if _, ok := compareByKeyword[s]; ok {
		return true
	}
	if _, ok := branchByKeyword[s]; ok {
		return true
	}
	if _, ok := unaryByKeyword[s]; ok {
		return true
	}
	if _, ok := binaryByKeyword[s]; ok {
		return true
	}
	if _, ok := stackByKeyword[s]; ok {
		return true
	}
	switch s {
	case "load", "name", "deref", "pick", "call", "goto", "return":
		return true
	}
	return false
}

func (p *Parser) parseOp() ast.Op {
	t := p.advance()
	switch {
	case t.Text == "load":
		return p.parseLoad(t)
	case t.Text == "name":
		slot, ok := p.expectKind(token.NUMBER)
		if !ok {
			return nil
		}
		nm, ok := p.expectKind(token.WORD)
		if !ok {
			return nil
		}
		return ast.NewNameOp(t.Pos, false, int(slot.Value), nm.Text)
	case t.Text == "deref":
		ty := p.parseTypeExpr()
		return ast.NewDerefOp(t.Pos, false, ty)
	case t.Text == "pick":
		n, ok := p.expectKind(token.NUMBER)
		if !ok {
			return nil
		}
		return ast.NewStackOp(t.Pos, false, ast.StackPick, int(n.Value))
	case t.Text == "call":
		return ast.NewCallOp(t.Pos, false)
	case t.Text == "goto":
		target, ok := p.expectKind(token.WORD)
		if !ok {
			return nil
		}
		return ast.NewGotoOp(t.Pos, false, target.Text)
	case t.Text == "return":
		return ast.NewReturnOp(t.Pos, false)
	}
	if k, ok := compareByKeyword[t.Text]; ok {
		return ast.NewCompareOp(t.Pos, false, k)
	}
	if k, ok := branchByKeyword[t.Text]; ok {
		target, ok := p.expectKind(token.WORD)
		if !ok {
			return nil
		}
		// Fallthrough is resolved by BlockCreate (the textual successor);
		// left empty here and filled in by that pass.
		return ast.NewBranchOp(t.Pos, false, k, target.Text, "")
	}
	if k, ok := unaryByKeyword[t.Text]; ok {
		return ast.NewUnaryOp(t.Pos, false, k)
	}
	if k, ok := binaryByKeyword[t.Text]; ok {
		return ast.NewBinaryOp(t.Pos, false, k)
	}
	if k, ok := stackByKeyword[t.Text]; ok {
		return ast.NewStackOp(t.Pos, false, k, 0)
	}
	p.errorf(t, "unknown operation %q", t.Text)
	return nil
}

func (p *Parser) parseLoad(kw token.Token) ast.Op {
	t := p.cur()
	switch {
	case t.Kind == token.NUMBER:
		p.advance()
		return ast.NewLoadIntOp(kw.Pos, false, t.Value)
	case t.Kind == token.WORD && t.Text == "NULL":
		p.advance()
		return ast.NewLoadNullOp(kw.Pos, false)
	case t.Kind == token.WORD && t.Text == "TRUE":
		p.advance()
		return ast.NewLoadBoolOp(kw.Pos, false, true)
	case t.Kind == token.WORD && t.Text == "FALSE":
		p.advance()
		return ast.NewLoadBoolOp(kw.Pos, false, false)
	case t.Kind == token.WORD:
		p.advance()
		return ast.NewLoadRefOp(kw.Pos, false, t.Text)
	default:
		p.errorf(t, "expected a constant or name after 'load', got %q", t.Text)
		p.advance()
		return nil
	}
}
