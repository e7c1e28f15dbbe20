package resolver

import (
	"github.com/dolthub/swiss"

	"github.com/mna/infinity/lang/ast"
	"github.com/mna/infinity/lang/errs"
	"github.com/mna/infinity/lang/token"
	"github.com/mna/infinity/lang/types"
)

// NameAnnotate builds each function's entry-stack descriptor and binds
// every LoadRefOp to the extern it names. Must run after TypeAnnotate, so
// that Argument and Extern type expressions already carry a ResolvedType.
func NameAnnotate(file *token.File, prog *ast.Program) error {
	var el errs.List
	for _, fn := range prog.Funcs {
		annotateFunc(file, fn, &el)
	}
	el.Sort()
	return el.Err()
}

// annotateFunc builds fn's entry stack (externs first, at the bottom of
// the physical stack, then parameters declared left-to-right on top of
// them) and resolves every LoadRefOp in the body against the externs
// table. Parameter values are never addressed by name at a load site
// (only by pick/dup against their live stack position); `load NAME` only
// ever names a function or symbol extern.
func annotateFunc(file *token.File, fn *ast.FuncDecl, el *errs.List) {
	declared := swiss.NewMap[string, token.Pos](uint32(len(fn.Params) + len(fn.Externs)))
	binds := swiss.NewMap[string, *ast.Binding](uint32(len(fn.Externs)))
	var entry []ast.EntrySlot

	redeclared := func(name string, pos token.Pos) bool {
		if _, ok := declared.Get(name); ok {
			el.Add(errs.NewNameError(file.Position(pos), "%q redeclared in %s", name, fn.QualifiedName()))
			return true
		}
		declared.Put(name, pos)
		return false
	}

	for _, ext := range fn.Externs {
		name := ext.ExternName()
		if redeclared(name, ext.Position()) {
			continue
		}
		var bind *ast.Binding
		switch e := ext.(type) {
		case *ast.ExternFunc:
			rets := make([]types.Type, len(e.Returns))
			for i, te := range e.Returns {
				rets[i] = te.ResolvedType()
			}
			params := make([]types.Type, len(e.Params))
			for i, te := range e.Params {
				params[i] = te.ResolvedType()
			}
			bind = &ast.Binding{Kind: ast.BindExternFunc, Name: name, Type: &types.Func{Returns: rets, Params: params}}
		case *ast.ExternPtr:
			bind = &ast.Binding{Kind: ast.BindExternPtr, Name: name, Type: types.Ptr}
		}
		binds.Put(name, bind)
		entry = append(entry, ast.EntrySlot{Name: name, Type: bind.Type})
	}
	for _, p := range fn.Params {
		if redeclared(p.Name, p.Pos) {
			continue
		}
		entry = append(entry, ast.EntrySlot{Name: p.Name, Type: p.Type.ResolvedType()})
	}
	fn.EntryStack = entry

	for _, stmt := range fn.Body {
		ref, ok := stmt.(*ast.LoadRefOp)
		if !ok {
			continue
		}
		bind, ok := binds.Get(ref.Name)
		if !ok {
			el.Add(errs.NewNameError(file.Position(ref.Position()), "undefined reference %q in %s", ref.Name, fn.QualifiedName()))
			continue
		}
		ref.Bind = bind
	}
}
