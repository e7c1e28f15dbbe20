// Package blockopt implements the BlockOptimizer pass of spec.md §4.5:
// local, behavior-preserving peephole rewrites applied to each function's
// control-flow graph until a fixed point.
package blockopt

import (
	"github.com/mna/infinity/lang/ast"
	"github.com/mna/infinity/lang/cfg"
)

// Optimize rewrites every function of prog in place, to a fixed point.
func Optimize(prog *cfg.Program) {
	for _, fn := range prog.Funcs {
		optimizeFunc(fn)
	}
}

func optimizeFunc(fn *cfg.Func) {
	for {
		changed := false
		for _, b := range fn.Blocks {
			if fusePlusUconst(b) {
				changed = true
			}
			if foldConstantBranch(b) {
				changed = true
			}
		}
		for _, b := range fn.Blocks {
			if reverseTrivialFallthrough(fn, b) {
				changed = true
			}
		}
		if removeUnreachable(fn) {
			changed = true
		}
		if !changed {
			return
		}
	}
}

// fusePlusUconst replaces an adjacent `load k; add` pair with a single
// PlusUconstOp when k>0 (it fits ULEB128 by construction: k is already a
// machine int64), and removes the pair entirely when k==0 (adding zero is
// the identity). Negative k is left untouched; ULEB128 cannot encode it.
func fusePlusUconst(b *cfg.Block) bool {
	changed := false
	for i := 0; i < len(b.Ops)-1; i++ {
		li, ok := b.Ops[i].(*ast.LoadIntOp)
		if !ok {
			continue
		}
		bo, ok := b.Ops[i+1].(*ast.BinaryOp)
		if !ok || bo.Kind != ast.BinaryAdd {
			continue
		}
		switch {
		case li.Value == 0:
			b.Ops = append(b.Ops[:i], b.Ops[i+2:]...)
			changed = true
			i--
		case li.Value > 0:
			b.Ops[i] = ast.NewPlusUconstOp(li.Position(), true, uint64(li.Value))
			b.Ops = append(b.Ops[:i+1], b.Ops[i+2:]...)
			changed = true
		}
	}
	return changed
}

// foldConstantBranch statically evaluates a BranchOp whose two operands
// are both constant loads, replacing the terminator with an unconditional
// goto to whichever successor the fixed comparison result selects and
// dropping the now-dead constant loads. This generalizes the `const 0;
// bra X` folding rule of spec.md §4.5 to the fused BranchOp representation
// used here (source-level `blt`/`ble`/etc. already carry their own
// comparison, so the equivalent dead pattern is two adjacent constant
// loads feeding straight into the branch).
func foldConstantBranch(b *cfg.Block) bool {
	br, ok := b.Term.(*ast.BranchOp)
	if !ok || len(b.Ops) < 2 {
		return false
	}
	av, aok := constIntValue(b.Ops[len(b.Ops)-2])
	bv, bok := constIntValue(b.Ops[len(b.Ops)-1])
	if !aok || !bok {
		return false
	}
	target := br.Fallthrough
	if evalCompare(br.Kind, av, bv) {
		target = br.Target
	}
	b.Term = ast.NewGotoOp(br.Position(), true, target)
	b.Ops = b.Ops[:len(b.Ops)-2]
	return true
}

func constIntValue(op ast.Op) (int64, bool) {
	switch o := op.(type) {
	case *ast.LoadIntOp:
		return o.Value, true
	case *ast.LoadBoolOp:
		if o.Value {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func evalCompare(k ast.CompareKind, a, b int64) bool {
	switch k {
	case ast.CompareLt:
		return a < b
	case ast.CompareLe:
		return a <= b
	case ast.CompareEq:
		return a == b
	case ast.CompareNe:
		return a != b
	case ast.CompareGe:
		return a >= b
	case ast.CompareGt:
		return a > b
	default:
		return false
	}
}

// reverseTrivialFallthrough implements spec.md §4.5's branch-reversal
// rule: when a conditional branch's fallthrough block is empty and itself
// ends in an unconditional goto, the forwarding block can be bypassed by
// reversing the comparison (via the REVERSE table) and swapping
// successors, leaving one fewer terminator in the function. The bypassed
// block is collected by removeUnreachable once nothing points to it.
//
// The resulting Fallthrough is an arbitrary label, not necessarily the
// block laid out physically next; that's safe because the serializer
// emits an explicit skip to Fallthrough whenever it isn't the next block.
func reverseTrivialFallthrough(fn *cfg.Func, b *cfg.Block) bool {
	br, ok := b.Term.(*ast.BranchOp)
	if !ok {
		return false
	}
	fb, ok := fn.ByLabel[br.Fallthrough]
	if !ok || len(fb.Ops) != 0 {
		return false
	}
	g, ok := fb.Term.(*ast.GotoOp)
	if !ok || g.Target == fb.Label {
		return false
	}
	br.Fallthrough = g.Target
	br.Reverse()
	return true
}

// removeUnreachable drops every block not reachable from the entry block
// by a depth-first walk of terminator targets.
func removeUnreachable(fn *cfg.Func) bool {
	visited := make(map[string]bool, len(fn.Blocks))
	entry := fn.Blocks[0].Label
	visited[entry] = true
	stack := []string{entry}
	for len(stack) > 0 {
		lbl := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		b := fn.ByLabel[lbl]
		for _, t := range b.Term.Targets() {
			if !visited[t] {
				visited[t] = true
				stack = append(stack, t)
			}
		}
	}
	if len(visited) == len(fn.Blocks) {
		return false
	}
	kept := fn.Blocks[:0]
	for _, b := range fn.Blocks {
		if visited[b.Label] {
			kept = append(kept, b)
		}
	}
	fn.Blocks = kept
	fn.ByLabel = make(map[string]*cfg.Block, len(kept))
	for _, b := range kept {
		fn.ByLabel[b.Label] = b
	}
	return true
}
