// Package resolver implements the TypeAnnotate and NameAnnotate passes of
// spec.md §4.1/§4.2: resolving typedef aliases over the typed AST, then
// binding every symbolic load operand to an external (`extern func` or
// `extern ptr`). A load operand that names a parameter is not bound to its
// entry-stack slot; it is reported as an undefined reference.
package resolver

import (
	"github.com/dolthub/swiss"

	"github.com/mna/infinity/lang/ast"
	"github.com/mna/infinity/lang/errs"
	"github.com/mna/infinity/lang/token"
	"github.com/mna/infinity/lang/types"
)

// TypeAnnotate resolves every TypeExpr reachable from prog, attaching its
// types.Type via ast.SetResolved. Typedef cycles are detected by
// marker-during-visit and reported as BadType; typedef order is
// insignificant.
func TypeAnnotate(file *token.File, prog *ast.Program) error {
	r := &typeResolver{
		file:     file,
		decls:    swiss.NewMap[string, *ast.TypedefDecl](uint32(len(prog.Typedefs))),
		resolved: swiss.NewMap[string, types.Type](uint32(len(prog.Typedefs))),
		visiting: make(map[string]bool, len(prog.Typedefs)),
	}
	for _, td := range prog.Typedefs {
		if _, ok := r.decls.Get(td.Name); ok {
			r.errorf(td.Pos, "typedef %q redeclared", td.Name)
			continue
		}
		r.decls.Put(td.Name, td)
	}
	for _, td := range prog.Typedefs {
		r.resolveNamed(td.Name)
	}
	for _, fn := range prog.Funcs {
		for _, te := range fn.Returns {
			r.resolveExpr(te)
		}
		fn.ReturnTypes = make([]types.Type, len(fn.Returns))
		for i, te := range fn.Returns {
			fn.ReturnTypes[i] = te.ResolvedType()
		}
		for i := range fn.Params {
			r.resolveExpr(fn.Params[i].Type)
		}
		for _, ext := range fn.Externs {
			switch e := ext.(type) {
			case *ast.ExternFunc:
				for _, te := range e.Returns {
					r.resolveExpr(te)
				}
				for _, te := range e.Params {
					r.resolveExpr(te)
				}
			case *ast.ExternPtr:
				// No TypeExpr: externs ptr is always PTR.
			}
		}
		for _, stmt := range fn.Body {
			if d, ok := stmt.(*ast.DerefOp); ok {
				r.resolveExpr(d.Type)
			}
		}
	}
	r.errs.Sort()
	return r.errs.Err()
}

type typeResolver struct {
	file     *token.File
	decls    *swiss.Map[string, *ast.TypedefDecl]
	resolved *swiss.Map[string, types.Type]
	visiting map[string]bool
	errs     errs.List
}

func (r *typeResolver) errorf(pos token.Pos, format string, args ...interface{}) {
	r.errs.Add(errs.NewBadType(r.file.Position(pos), format, args...))
}

// resolveExpr resolves te, memoizing the result on the node itself so a
// shared TypeExpr (there are none currently, but future callers may cache)
// is only resolved once.
func (r *typeResolver) resolveExpr(te ast.TypeExpr) types.Type {
	if te == nil {
		return nil
	}
	if t := te.ResolvedType(); t != nil {
		return t
	}
	var resolved types.Type
	switch e := te.(type) {
	case *ast.BasicTypeExpr:
		resolved = basicByKeyword(e.Keyword)
		if resolved == nil {
			r.errorf(e.Position(), "unknown basic type %q", e.Keyword)
			resolved = types.Opaque
		}
	case *ast.FuncTypeExpr:
		rets := make([]types.Type, len(e.Returns))
		for i, sub := range e.Returns {
			rets[i] = r.resolveExpr(sub)
		}
		params := make([]types.Type, len(e.Params))
		for i, sub := range e.Params {
			params[i] = r.resolveExpr(sub)
		}
		resolved = &types.Func{Returns: rets, Params: params}
	case *ast.NamedTypeExpr:
		resolved = r.resolveNamed(e.Name)
		if resolved == nil {
			r.errorf(e.Position(), "undefined type %q", e.Name)
			resolved = types.Opaque
		}
	default:
		resolved = types.Opaque
	}
	ast.SetResolved(te, resolved)
	return resolved
}

// resolveNamed resolves the typedef named name, following alias chains and
// reporting a cycle as BadType. Returns nil if name is not a declared
// typedef at all (the caller reports the undefined-type error, since only
// it has the reference's source position).
func (r *typeResolver) resolveNamed(name string) types.Type {
	if t, ok := r.resolved.Get(name); ok {
		return t
	}
	td, ok := r.decls.Get(name)
	if !ok {
		return nil
	}
	if r.visiting[name] {
		r.errorf(td.Pos, "typedef %q is defined in terms of itself", name)
		named := &types.Named{Name: name, Of: types.Opaque}
		r.resolved.Put(name, named)
		td.Resolved = named
		return named
	}
	r.visiting[name] = true
	of := r.resolveExpr(td.Type)
	delete(r.visiting, name)

	named := &types.Named{Name: name, Of: of}
	r.resolved.Put(name, named)
	td.Resolved = named
	return named
}

func basicByKeyword(kw string) types.Type {
	switch kw {
	case "int":
		return types.Int
	case "ptr":
		return types.Ptr
	case "bool":
		return types.Bool
	case "opaque":
		return types.Opaque
	default:
		return nil
	}
}
