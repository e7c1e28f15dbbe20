// Package cfg implements the BlockCreator pass of spec.md §4.3: it
// partitions each function's flat, labelled operation list into a control-
// flow graph of basic blocks, synthesizing goto/return closers so that
// every block ends in exactly one terminator.
package cfg

import (
	"fmt"

	"github.com/mna/infinity/lang/ast"
	"github.com/mna/infinity/lang/errs"
	"github.com/mna/infinity/lang/token"
)

// Block is a possibly empty sequence of non-terminal operations followed
// by exactly one terminator. Label is unique within the owning Func.
type Block struct {
	Label        string
	HasUserLabel bool
	Ops          []ast.Op
	Term         ast.Terminator
}

// Func is one function's control-flow graph; Blocks[0] is the entry block.
type Func struct {
	Decl    *ast.FuncDecl
	Blocks  []*Block
	ByLabel map[string]*Block
}

// Program is a program's worth of function CFGs, built from an
// ast.Program already processed by TypeAnnotate and NameAnnotate.
type Program struct {
	Funcs []*Func
}

// Build runs BlockCreate over every function in prog.
func Build(file *token.File, prog *ast.Program) (*Program, error) {
	var el errs.List
	out := &Program{Funcs: make([]*Func, 0, len(prog.Funcs))}
	for _, fn := range prog.Funcs {
		cf := buildFunc(file, fn, &el)
		out.Funcs = append(out.Funcs, cf)
	}
	if err := el.Err(); err != nil {
		return nil, err
	}
	// Validate label references only once every function's ByLabel map is
	// complete (a label may legally refer to a block defined later).
	for _, cf := range out.Funcs {
		validateTargets(file, cf, &el)
	}
	el.Sort()
	if err := el.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type rawBlock struct {
	label        string
	hasUserLabel bool
	pos          token.Pos
	stmts        []ast.Stmt
}

func buildFunc(file *token.File, fn *ast.FuncDecl, el *errs.List) *Func {
	used := make(map[string]bool)
	for _, stmt := range fn.Body {
		if l, ok := stmt.(*ast.Label); ok {
			if used[l.Name] {
				el.Add(errs.NewNameError(file.Position(l.Pos), "label %q redeclared in %s", l.Name, fn.QualifiedName()))
			}
			used[l.Name] = true
		}
	}
	synthCounter := 0
	nextSynthLabel := func() string {
		for {
			synthCounter++
			cand := fmt.Sprintf("$%s$%d", fn.Name, synthCounter)
			if !used[cand] {
				used[cand] = true
				return cand
			}
		}
	}

	var raw []*rawBlock
	var cur *rawBlock
	flush := func() {
		if cur != nil {
			raw = append(raw, cur)
		}
	}
	for _, stmt := range fn.Body {
		if l, ok := stmt.(*ast.Label); ok {
			if cur == nil || len(cur.stmts) > 0 || cur.hasUserLabel {
				flush()
				cur = &rawBlock{}
			}
			cur.label = l.Name
			cur.hasUserLabel = true
			cur.pos = l.Pos
			continue
		}
		if cur == nil {
			cur = &rawBlock{pos: stmt.Position()}
		}
		cur.stmts = append(cur.stmts, stmt)
		if op, ok := stmt.(ast.Op); ok && ast.IsTerminator(op) {
			flush()
			cur = nil
		}
	}
	flush()

	if len(raw) == 0 {
		// A function with an empty body still has one (entry, implicitly
		// returning) block.
		raw = append(raw, &rawBlock{})
	}

	blocks := make([]*Block, len(raw))
	for i, rb := range raw {
		label := rb.label
		if !rb.hasUserLabel {
			label = nextSynthLabel()
		}
		blocks[i] = &Block{Label: label, HasUserLabel: rb.hasUserLabel}
	}
	for i, rb := range raw {
		b := blocks[i]
		ops := rb.stmts
		var term ast.Terminator
		if len(ops) > 0 {
			if t, ok := ops[len(ops)-1].(ast.Terminator); ok {
				term = t
				ops = ops[:len(ops)-1]
			}
		}
		b.Ops = make([]ast.Op, len(ops))
		for j, s := range ops {
			b.Ops[j] = s.(ast.Op)
		}
		if term == nil {
			pos := rb.pos
			if len(rb.stmts) > 0 {
				pos = rb.stmts[len(rb.stmts)-1].Position()
			}
			if i+1 < len(blocks) {
				term = ast.NewGotoOp(pos, true, blocks[i+1].Label)
			} else {
				term = ast.NewReturnOp(pos, true)
			}
		}
		b.Term = term

		// A BranchOp parsed straight from source carries no Fallthrough yet
		// (spec.md §4.3: it is "the textual successor"); fill it in now that
		// block order is known, synthesizing a trailing return block when the
		// branch is the very last statement in the function.
		if br, ok := term.(*ast.BranchOp); ok && br.Fallthrough == "" {
			if i+1 < len(blocks) {
				br.Fallthrough = blocks[i+1].Label
			} else {
				label := nextSynthLabel()
				blocks = append(blocks, &Block{Label: label, Term: ast.NewReturnOp(br.Position(), true)})
				br.Fallthrough = label
			}
		}
	}

	byLabel := make(map[string]*Block, len(blocks))
	for _, b := range blocks {
		byLabel[b.Label] = b
	}
	return &Func{Decl: fn, Blocks: blocks, ByLabel: byLabel}
}

func validateTargets(file *token.File, cf *Func, el *errs.List) {
	for _, b := range cf.Blocks {
		for _, target := range b.Term.Targets() {
			if _, ok := cf.ByLabel[target]; !ok {
				el.Add(errs.NewNameError(file.Position(b.Term.Position()), "undefined label %q in %s", target, cf.Decl.QualifiedName()))
			}
		}
	}
}
