package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mna/infinity/lang/ast"
	"github.com/mna/infinity/lang/token"
	"github.com/mna/infinity/lang/types"
)

func TestTypeAnnotateResolvesBasicKeywords(t *testing.T) {
	fn := &ast.FuncDecl{
		Provider: "p", Name: "f",
		Returns: []ast.TypeExpr{ast.NewBasicTypeExpr(0, "int")},
	}
	prog := &ast.Program{Funcs: []*ast.FuncDecl{fn}}
	file := token.NewFile("test.i8")

	require.NoError(t, TypeAnnotate(file, prog))
	assert.Equal(t, types.Int, fn.ReturnTypes[0])
}

func TestTypeAnnotateResolvesTypedefAlias(t *testing.T) {
	td := &ast.TypedefDecl{Name: "myint", Type: ast.NewBasicTypeExpr(0, "int")}
	fn := &ast.FuncDecl{
		Provider: "p", Name: "f",
		Returns: []ast.TypeExpr{ast.NewNamedTypeExpr(0, "myint")},
	}
	prog := &ast.Program{Typedefs: []*ast.TypedefDecl{td}, Funcs: []*ast.FuncDecl{fn}}
	file := token.NewFile("test.i8")

	require.NoError(t, TypeAnnotate(file, prog))
	require.Equal(t, types.KindInt, fn.ReturnTypes[0].Kind())
	assert.Equal(t, "myint", fn.ReturnTypes[0].String())
}

func TestTypeAnnotateRejectsUndefinedNamedType(t *testing.T) {
	fn := &ast.FuncDecl{
		Provider: "p", Name: "f",
		Returns: []ast.TypeExpr{ast.NewNamedTypeExpr(0, "nope")},
	}
	prog := &ast.Program{Funcs: []*ast.FuncDecl{fn}}
	file := token.NewFile("test.i8")

	assert.Error(t, TypeAnnotate(file, prog))
}

func TestTypeAnnotateRejectsTypedefCycle(t *testing.T) {
	a := &ast.TypedefDecl{Name: "a", Type: ast.NewNamedTypeExpr(0, "b")}
	b := &ast.TypedefDecl{Name: "b", Type: ast.NewNamedTypeExpr(0, "a")}
	fn := &ast.FuncDecl{
		Provider: "p", Name: "f",
		Returns: []ast.TypeExpr{ast.NewNamedTypeExpr(0, "a")},
	}
	prog := &ast.Program{Typedefs: []*ast.TypedefDecl{a, b}, Funcs: []*ast.FuncDecl{fn}}
	file := token.NewFile("test.i8")

	assert.Error(t, TypeAnnotate(file, prog))
}

func TestTypeAnnotateRejectsRedeclaredTypedef(t *testing.T) {
	a1 := &ast.TypedefDecl{Name: "dup", Type: ast.NewBasicTypeExpr(0, "int")}
	a2 := &ast.TypedefDecl{Name: "dup", Type: ast.NewBasicTypeExpr(0, "ptr")}
	prog := &ast.Program{Typedefs: []*ast.TypedefDecl{a1, a2}}
	file := token.NewFile("test.i8")

	assert.Error(t, TypeAnnotate(file, prog))
}

func TestTypeAnnotateResolvesFuncTypeExpr(t *testing.T) {
	returns := []ast.TypeExpr{ast.NewBasicTypeExpr(0, "int")}
	params := []ast.TypeExpr{ast.NewBasicTypeExpr(0, "ptr")}
	fn := &ast.FuncDecl{
		Provider: "p", Name: "f",
		Externs: []ast.Extern{&ast.ExternFunc{Name: "cb", Returns: returns, Params: params}},
	}
	prog := &ast.Program{Funcs: []*ast.FuncDecl{fn}}
	file := token.NewFile("test.i8")

	require.NoError(t, TypeAnnotate(file, prog))
	assert.Equal(t, types.Int, fn.Externs[0].(*ast.ExternFunc).Returns[0].ResolvedType())
	assert.Equal(t, types.Ptr, fn.Externs[0].(*ast.ExternFunc).Params[0].ResolvedType())
}
