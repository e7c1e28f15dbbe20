package blockopt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mna/infinity/lang/ast"
	"github.com/mna/infinity/lang/cfg"
)

func TestFusePlusUconstDropsZero(t *testing.T) {
	b := &cfg.Block{
		Label: "entry",
		Ops: []ast.Op{
			ast.NewLoadIntOp(0, true, 0),
			ast.NewBinaryOp(0, true, ast.BinaryAdd),
		},
		Term: ast.NewReturnOp(0, true),
	}
	fn := &cfg.Func{Decl: &ast.FuncDecl{}, Blocks: []*cfg.Block{b}, ByLabel: map[string]*cfg.Block{"entry": b}}
	Optimize(&cfg.Program{Funcs: []*cfg.Func{fn}})
	assert.Empty(t, b.Ops)
}

func TestFusePlusUconstFusesPositive(t *testing.T) {
	b := &cfg.Block{
		Label: "entry",
		Ops: []ast.Op{
			ast.NewLoadIntOp(0, true, 7),
			ast.NewBinaryOp(0, true, ast.BinaryAdd),
		},
		Term: ast.NewReturnOp(0, true),
	}
	fn := &cfg.Func{Decl: &ast.FuncDecl{}, Blocks: []*cfg.Block{b}, ByLabel: map[string]*cfg.Block{"entry": b}}
	Optimize(&cfg.Program{Funcs: []*cfg.Func{fn}})
	require.Len(t, b.Ops, 1)
	pu, ok := b.Ops[0].(*ast.PlusUconstOp)
	require.True(t, ok)
	assert.Equal(t, uint64(7), pu.N)
}

func TestFoldConstantBranchTakesTarget(t *testing.T) {
	b := &cfg.Block{
		Label: "entry",
		Ops: []ast.Op{
			ast.NewLoadIntOp(0, true, 1),
			ast.NewLoadIntOp(0, true, 2),
		},
		Term: ast.NewBranchOp(0, true, ast.CompareLt, "yes", "no"),
	}
	yes := &cfg.Block{Label: "yes", Term: ast.NewReturnOp(0, true)}
	no := &cfg.Block{Label: "no", Term: ast.NewReturnOp(0, true)}
	fn := &cfg.Func{
		Decl:   &ast.FuncDecl{},
		Blocks: []*cfg.Block{b, yes, no},
		ByLabel: map[string]*cfg.Block{
			"entry": b, "yes": yes, "no": no,
		},
	}
	Optimize(&cfg.Program{Funcs: []*cfg.Func{fn}})

	g, ok := b.Term.(*ast.GotoOp)
	require.True(t, ok)
	assert.Equal(t, "yes", g.Target)
	assert.Empty(t, b.Ops)
}

func TestOptimizeIsIdempotent(t *testing.T) {
	b := &cfg.Block{
		Label: "entry",
		Ops: []ast.Op{
			ast.NewLoadIntOp(0, true, 0),
			ast.NewBinaryOp(0, true, ast.BinaryAdd),
			ast.NewLoadIntOp(0, true, 3),
			ast.NewBinaryOp(0, true, ast.BinaryAdd),
		},
		Term: ast.NewReturnOp(0, true),
	}
	fn := &cfg.Func{Decl: &ast.FuncDecl{}, Blocks: []*cfg.Block{b}, ByLabel: map[string]*cfg.Block{"entry": b}}
	prog := &cfg.Program{Funcs: []*cfg.Func{fn}}

	Optimize(prog)
	first := append([]ast.Op(nil), b.Ops...)

	Optimize(prog)
	assert.Equal(t, first, b.Ops)
}

func TestRemoveUnreachable(t *testing.T) {
	entry := &cfg.Block{Label: "entry", Term: ast.NewGotoOp(0, true, "live")}
	live := &cfg.Block{Label: "live", Term: ast.NewReturnOp(0, true)}
	dead := &cfg.Block{Label: "dead", Term: ast.NewReturnOp(0, true)}
	fn := &cfg.Func{
		Decl:   &ast.FuncDecl{},
		Blocks: []*cfg.Block{entry, live, dead},
		ByLabel: map[string]*cfg.Block{
			"entry": entry, "live": live, "dead": dead,
		},
	}
	Optimize(&cfg.Program{Funcs: []*cfg.Func{fn}})

	require.Len(t, fn.Blocks, 2)
	_, stillThere := fn.ByLabel["dead"]
	assert.False(t, stillThere)
}
