package serializer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mna/infinity/lang/ast"
	"github.com/mna/infinity/lang/cfg"
	"github.com/mna/infinity/lang/token"
)

func twoBlockFunc(branchTarget, fallthroughTarget string) *cfg.Func {
	decl := &ast.FuncDecl{Provider: "p", Name: "f"}
	entry := &cfg.Block{
		Label: "entry",
		Ops:   []ast.Op{ast.NewLoadIntOp(0, true, 5)},
		Term:  ast.NewBranchOp(0, true, ast.CompareLt, branchTarget, fallthroughTarget),
	}
	target := &cfg.Block{Label: branchTarget, Term: ast.NewReturnOp(0, true)}
	fall := &cfg.Block{Label: fallthroughTarget, Term: ast.NewReturnOp(0, true)}
	blocks := []*cfg.Block{entry, target, fall}
	byLabel := make(map[string]*cfg.Block, len(blocks))
	for _, b := range blocks {
		byLabel[b.Label] = b
	}
	return &cfg.Func{Decl: decl, Blocks: blocks, ByLabel: byLabel}
}

func TestSerializeResolvesDisplacement(t *testing.T) {
	fn := twoBlockFunc("target", "fall")
	file := token.NewFile("test.i8")
	prog := &cfg.Program{Funcs: []*cfg.Func{fn}}

	out, err := Serialize(file, prog)
	require.NoError(t, err)
	require.Len(t, out.Funcs, 1)

	fr := out.Funcs[0]
	assert.Equal(t, "p", fr.Provider)
	assert.Equal(t, "f", fr.Name)
	// entry block: lit5 (1 byte), lt (1 byte), bra (1 byte) + 2-byte displacement
	assert.GreaterOrEqual(t, len(fr.Bytes), 5)
}

func TestSerializeOmitsSkipWhenFallthroughIsNextBlock(t *testing.T) {
	// blocks laid out [entry, fall, target]: entry's Fallthrough ("fall") is
	// exactly the physically next block, so no explicit skip is needed.
	fn := twoBlockFunc("target", "fall")
	fn.Blocks[1], fn.Blocks[2] = fn.Blocks[2], fn.Blocks[1]

	file := token.NewFile("test.i8")
	out, err := Serialize(file, &cfg.Program{Funcs: []*cfg.Func{fn}})
	require.NoError(t, err)

	fr := out.Funcs[0]
	// lit5 (1) + lt (1) + bra+disp (3) = 5 bytes, no trailing skip.
	assert.Len(t, fr.Bytes, 5)
}

func TestSerializeEmitsSkipWhenFallthroughIsNotNextBlock(t *testing.T) {
	// blocks laid out [entry, target, fall]: entry's Fallthrough ("fall") is
	// NOT the physically next block ("target" is), so an explicit skip to
	// "fall" must be emitted for the fallthrough case to be reachable.
	fn := twoBlockFunc("target", "fall")

	file := token.NewFile("test.i8")
	out, err := Serialize(file, &cfg.Program{Funcs: []*cfg.Func{fn}})
	require.NoError(t, err)

	fr := out.Funcs[0]
	// lit5 (1) + lt (1) + bra+disp (3) + skip+disp (3) = 8 bytes.
	assert.Len(t, fr.Bytes, 8)
}

func TestSerializeBranchOutOfRangeFails(t *testing.T) {
	decl := &ast.FuncDecl{Provider: "p", Name: "f"}

	// One giant filler block sits between entry and "far" so the resolved
	// displacement cannot fit in a signed 16-bit field.
	fillerOps := make([]ast.Op, 0, 40000)
	for i := 0; i < 40000; i++ {
		fillerOps = append(fillerOps, ast.NewLoadIntOp(0, true, 1)) // 1 byte each (lit1)
	}

	blocks := []*cfg.Block{
		{Label: "entry", Term: ast.NewBranchOp(0, true, ast.CompareLt, "far", "fall")},
		{Label: "filler", Ops: fillerOps, Term: ast.NewGotoOp(0, true, "far")},
		{Label: "far", Term: ast.NewReturnOp(0, true)},
		{Label: "fall", Term: ast.NewReturnOp(0, true)},
	}
	byLabel := make(map[string]*cfg.Block, len(blocks))
	for _, b := range blocks {
		byLabel[b.Label] = b
	}
	fn := &cfg.Func{Decl: decl, Blocks: blocks, ByLabel: byLabel}
	file := token.NewFile("test.i8")
	prog := &cfg.Program{Funcs: []*cfg.Func{fn}}

	_, err := Serialize(file, prog)
	assert.Error(t, err)
}
