package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mna/infinity/lang/ast"
)

func TestParseSourceMinimalFunc(t *testing.T) {
	src := `
typedef int count

define p::f returns int
	argument int x
	extern ptr some_global
	load 5
	return
`
	prog, err := ParseSource("test.i8", []byte(src))
	require.NoError(t, err)
	require.Len(t, prog.Typedefs, 1)
	assert.Equal(t, "count", prog.Typedefs[0].Name)

	require.Len(t, prog.Funcs, 1)
	fn := prog.Funcs[0]
	assert.Equal(t, "p", fn.Provider)
	assert.Equal(t, "f", fn.Name)
	require.Len(t, fn.Params, 1)
	assert.Equal(t, "x", fn.Params[0].Name)
	require.Len(t, fn.Externs, 1)

	require.Len(t, fn.Body, 2)
	_, ok := fn.Body[0].(*ast.LoadIntOp)
	assert.True(t, ok)
	_, ok = fn.Body[1].(*ast.ReturnOp)
	assert.True(t, ok)
}

func TestParseSourceBranchAndLabel(t *testing.T) {
	src := `
define p::g
	load 1
	load 2
	blt done
	load 0
done:
	return
`
	prog, err := ParseSource("test.i8", []byte(src))
	require.NoError(t, err)
	require.Len(t, prog.Funcs, 1)
	fn := prog.Funcs[0]

	var sawBranch, sawLabel bool
	for _, s := range fn.Body {
		switch v := s.(type) {
		case *ast.BranchOp:
			sawBranch = true
			assert.Equal(t, "done", v.Target)
		case *ast.Label:
			sawLabel = true
			assert.Equal(t, "done", v.Name)
		}
	}
	assert.True(t, sawBranch)
	assert.True(t, sawLabel)
}

func TestParseSourceRejectsForbiddenOperator(t *testing.T) {
	src := "define p::f\n\taddr\n\treturn\n"
	_, err := ParseSource("test.i8", []byte(src))
	assert.Error(t, err)
}
