package cfg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mna/infinity/lang/ast"
	"github.com/mna/infinity/lang/token"
)

func oneFuncProgram(decl *ast.FuncDecl) *ast.Program {
	return &ast.Program{Funcs: []*ast.FuncDecl{decl}}
}

func TestBuildSplitsOnLabelsAndTerminators(t *testing.T) {
	decl := &ast.FuncDecl{
		Provider: "p", Name: "f",
		Body: []ast.Stmt{
			ast.NewLoadIntOp(0, false, 1),
			ast.NewGotoOp(0, false, "mid"),
			&ast.Label{Name: "mid"},
			ast.NewLoadIntOp(0, false, 2),
			ast.NewReturnOp(0, false),
		},
	}
	file := token.NewFile("test.i8")
	prog, err := Build(file, oneFuncProgram(decl))
	require.NoError(t, err)
	require.Len(t, prog.Funcs, 1)

	fn := prog.Funcs[0]
	require.Len(t, fn.Blocks, 2)
	assert.False(t, fn.Blocks[0].HasUserLabel)
	assert.True(t, fn.Blocks[1].HasUserLabel)
	assert.Equal(t, "mid", fn.Blocks[1].Label)
	assert.IsType(t, &ast.GotoOp{}, fn.Blocks[0].Term)
	assert.IsType(t, &ast.ReturnOp{}, fn.Blocks[1].Term)
}

func TestBuildSynthesizesTrailingReturn(t *testing.T) {
	decl := &ast.FuncDecl{
		Provider: "p", Name: "f",
		Body: []ast.Stmt{ast.NewLoadIntOp(0, false, 1)},
	}
	file := token.NewFile("test.i8")
	prog, err := Build(file, oneFuncProgram(decl))
	require.NoError(t, err)

	fn := prog.Funcs[0]
	require.Len(t, fn.Blocks, 1)
	ret, ok := fn.Blocks[0].Term.(*ast.ReturnOp)
	require.True(t, ok)
	assert.True(t, ret.Synthetic())
}

func TestBuildEmptyBodyYieldsOneReturningBlock(t *testing.T) {
	decl := &ast.FuncDecl{Provider: "p", Name: "f"}
	file := token.NewFile("test.i8")
	prog, err := Build(file, oneFuncProgram(decl))
	require.NoError(t, err)

	fn := prog.Funcs[0]
	require.Len(t, fn.Blocks, 1)
	assert.IsType(t, &ast.ReturnOp{}, fn.Blocks[0].Term)
}

func TestBuildFillsBranchFallthroughWithPhysicalNext(t *testing.T) {
	decl := &ast.FuncDecl{
		Provider: "p", Name: "f",
		Body: []ast.Stmt{
			ast.NewBranchOp(0, false, ast.CompareLt, "target", ""),
			&ast.Label{Name: "fall"},
			ast.NewReturnOp(0, false),
			&ast.Label{Name: "target"},
			ast.NewReturnOp(0, false),
		},
	}
	file := token.NewFile("test.i8")
	prog, err := Build(file, oneFuncProgram(decl))
	require.NoError(t, err)

	fn := prog.Funcs[0]
	br := fn.Blocks[0].Term.(*ast.BranchOp)
	assert.Equal(t, "fall", br.Fallthrough)
}

func TestBuildSynthesizesFallthroughWhenBranchIsLastStatement(t *testing.T) {
	decl := &ast.FuncDecl{
		Provider: "p", Name: "f",
		Body: []ast.Stmt{
			&ast.Label{Name: "target"},
			ast.NewReturnOp(0, false),
			ast.NewBranchOp(0, false, ast.CompareLt, "target", ""),
		},
	}
	file := token.NewFile("test.i8")
	prog, err := Build(file, oneFuncProgram(decl))
	require.NoError(t, err)

	fn := prog.Funcs[0]
	br := fn.Blocks[1].Term.(*ast.BranchOp)
	require.NotEqual(t, "", br.Fallthrough)
	fallBlock, ok := fn.ByLabel[br.Fallthrough]
	require.True(t, ok)
	assert.IsType(t, &ast.ReturnOp{}, fallBlock.Term)
	assert.Same(t, fn.Blocks[len(fn.Blocks)-1], fallBlock)
}

func TestBuildRejectsDuplicateLabel(t *testing.T) {
	decl := &ast.FuncDecl{
		Provider: "p", Name: "f",
		Body: []ast.Stmt{
			&ast.Label{Name: "dup"},
			ast.NewReturnOp(0, false),
			&ast.Label{Name: "dup"},
			ast.NewReturnOp(0, false),
		},
	}
	file := token.NewFile("test.i8")
	_, err := Build(file, oneFuncProgram(decl))
	assert.Error(t, err)
}

func TestBuildRejectsUndefinedLabel(t *testing.T) {
	decl := &ast.FuncDecl{
		Provider: "p", Name: "f",
		Body: []ast.Stmt{ast.NewGotoOp(0, false, "nowhere")},
	}
	file := token.NewFile("test.i8")
	_, err := Build(file, oneFuncProgram(decl))
	assert.Error(t, err)
}
