// Package stackwalk implements the StackWalker pass of spec.md §4.4: the
// compiler's semantic authority. It abstract-interprets each function's
// control-flow graph, validating that every operation is applied to
// values of acceptable type, that every block merge agrees on stack
// shape, and that every return matches the function's declared return
// types.
package stackwalk

import (
	"github.com/mna/infinity/lang/ast"
	"github.com/mna/infinity/lang/cfg"
	"github.com/mna/infinity/lang/errs"
	"github.com/mna/infinity/lang/token"
	"github.com/mna/infinity/lang/types"
)

// Slot is one typed, optionally named stack element.
type Slot struct {
	Type types.Type
	Name string
}

// Stack is an ordered sequence of Slots; the last element is the top.
type Stack []Slot

func (s Stack) clone() Stack {
	out := make(Stack, len(s))
	copy(out, s)
	return out
}

// Result records, for one function, the recorded entry-stack shape of
// every block reached from the entry block.
type Result struct {
	Entry map[*cfg.Block]Stack
}

// Walk runs the stack walker over every function of prog.
func Walk(file *token.File, prog *cfg.Program) (map[*cfg.Func]*Result, error) {
	var el errs.List
	out := make(map[*cfg.Func]*Result, len(prog.Funcs))
	for _, fn := range prog.Funcs {
		out[fn] = walkFunc(file, fn, &el)
	}
	el.Sort()
	if err := el.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type workItem struct {
	block *cfg.Block
	stack Stack
}

func walkFunc(file *token.File, fn *cfg.Func, el *errs.List) *Result {
	entry := make(Stack, len(fn.Decl.EntryStack))
	for i, slot := range fn.Decl.EntryStack {
		entry[i] = Slot{Type: slot.Type, Name: slot.Name}
	}

	recorded := make(map[*cfg.Block]Stack, len(fn.Blocks))
	queue := []workItem{{fn.Blocks[0], entry}}

	for len(queue) > 0 {
		it := queue[0]
		queue = queue[1:]
		b, proposed := it.block, it.stack

		cur, seen := recorded[b]
		var next Stack
		if !seen {
			next = proposed
		} else {
			merged, ok := mergeStacks(cur, proposed)
			if !ok {
				el.Add(errs.NewStackError(file.Position(b.Term.Position()), "shape mismatch at merge into block %q", b.Label))
				continue
			}
			if stacksEqual(merged, cur) {
				continue // already at fixed point for this block
			}
			next = merged
		}
		recorded[b] = next

		exit, err := walkBlock(file, b, next.clone())
		if err != nil {
			el.Add(err)
			continue
		}

		if ret, ok := b.Term.(*ast.ReturnOp); ok {
			checkReturn(file, fn, ret, exit, el)
			continue
		}
		for _, target := range b.Term.Targets() {
			nb, ok := fn.ByLabel[target]
			if !ok {
				continue // already reported by cfg.Build's label validation
			}
			queue = append(queue, workItem{nb, exit.clone()})
		}
	}
	return &Result{Entry: recorded}
}

func mergeStacks(a, b Stack) (Stack, bool) {
	if len(a) != len(b) {
		return nil, false
	}
	out := make(Stack, len(a))
	for i := range a {
		if !types.Compatible(a[i].Type, b[i].Type) {
			return nil, false
		}
		name := ""
		if a[i].Name != "" && a[i].Name == b[i].Name {
			name = a[i].Name
		}
		out[i] = Slot{Type: a[i].Type, Name: name}
	}
	return out, true
}

func stacksEqual(a, b Stack) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name || !types.Compatible(a[i].Type, b[i].Type) {
			return false
		}
	}
	return true
}

func walkBlock(file *token.File, b *cfg.Block, stack Stack) (Stack, error) {
	for _, op := range b.Ops {
		var err error
		stack, err = applyOp(file, stack, op)
		if err != nil {
			return nil, err
		}
	}
	if br, ok := b.Term.(*ast.BranchOp); ok {
		var err error
		stack, err = popCompare(file.Position(br.Position()), stack, br.Kind)
		if err != nil {
			return nil, err
		}
	}
	return stack, nil
}

func applyOp(file *token.File, stack Stack, op ast.Op) (Stack, error) {
	pos := file.Position(op.Position())
	switch o := op.(type) {
	case *ast.LoadIntOp:
		return append(stack, Slot{Type: types.Int}), nil
	case *ast.LoadNullOp:
		return append(stack, Slot{Type: types.Ptr}), nil
	case *ast.LoadBoolOp:
		return append(stack, Slot{Type: types.Bool}), nil
	case *ast.LoadRefOp:
		if o.Bind == nil {
			return nil, errs.NewInternalError(pos, "load %q reached the stack walker unbound", o.Name)
		}
		return append(stack, Slot{Type: o.Bind.Type}), nil
	case *ast.NameOp:
		idx := len(stack) - 1 - o.Slot
		if o.Slot < 0 || idx < 0 || idx >= len(stack) {
			return nil, errs.NewStackError(pos, "name %d: slot out of range (depth %d)", o.Slot, len(stack))
		}
		out := stack.clone()
		out[idx].Name = o.Name
		return out, nil
	case *ast.UnaryOp:
		if len(stack) < 1 {
			return nil, errs.NewStackError(pos, "%s: stack underflow", o.Kind)
		}
		top := stack[len(stack)-1]
		if !types.Arithmetic(top.Type) {
			return nil, errs.NewStackError(pos, "%s: type %s does not support arithmetic", o.Kind, top.Type)
		}
		return stack, nil
	case *ast.BinaryOp:
		if len(stack) < 2 {
			return nil, errs.NewStackError(pos, "%s: stack underflow", o.Kind)
		}
		a, b := stack[len(stack)-2], stack[len(stack)-1]
		if !types.Arithmetic(a.Type) || !types.Arithmetic(b.Type) || !types.Compatible(a.Type, b.Type) {
			return nil, errs.NewStackError(pos, "%s: incompatible operand types %s, %s", o.Kind, a.Type, b.Type)
		}
		return append(stack[:len(stack)-2], Slot{Type: a.Type}), nil
	case *ast.StackOp:
		return applyStackOp(pos, stack, o)
	case *ast.DerefOp:
		if len(stack) < 1 {
			return nil, errs.NewStackError(pos, "deref: stack underflow")
		}
		top := stack[len(stack)-1]
		if top.Type.Resolved().Kind() != types.KindPtr {
			return nil, errs.NewStackError(pos, "deref: top of stack is %s, not ptr", top.Type)
		}
		return append(stack[:len(stack)-1], Slot{Type: o.Type.ResolvedType()}), nil
	case *ast.CompareOp:
		rest, err := popCompare(pos, stack, o.Kind)
		if err != nil {
			return nil, err
		}
		return append(rest, Slot{Type: types.Bool}), nil
	case *ast.CallOp:
		return applyCall(pos, stack)
	default:
		return nil, errs.NewInternalError(pos, "unhandled operation %T", op)
	}
}

func applyStackOp(pos token.Position, stack Stack, o *ast.StackOp) (Stack, error) {
	depth := len(stack)
	switch o.Kind {
	case ast.StackDrop:
		if depth < 1 {
			return nil, errs.NewStackError(pos, "drop: stack underflow")
		}
		return stack[:depth-1], nil
	case ast.StackDup:
		if depth < 1 {
			return nil, errs.NewStackError(pos, "dup: stack underflow")
		}
		return append(stack, stack[depth-1]), nil
	case ast.StackOver:
		if depth < 2 {
			return nil, errs.NewStackError(pos, "over: stack underflow")
		}
		return append(stack, stack[depth-2]), nil
	case ast.StackPick:
		if o.N < 0 || o.N >= depth {
			return nil, errs.NewStackError(pos, "pick %d: depth is only %d", o.N, depth)
		}
		return append(stack, stack[depth-1-o.N]), nil
	case ast.StackRot:
		if depth < 3 {
			return nil, errs.NewStackError(pos, "rot: stack underflow")
		}
		x0, x1, x2 := stack[depth-3], stack[depth-2], stack[depth-1]
		out := stack.clone()
		out[depth-3], out[depth-2], out[depth-1] = x2, x0, x1
		return out, nil
	case ast.StackSwap:
		if depth < 2 {
			return nil, errs.NewStackError(pos, "swap: stack underflow")
		}
		out := stack.clone()
		out[depth-2], out[depth-1] = out[depth-1], out[depth-2]
		return out, nil
	default:
		return nil, errs.NewInternalError(pos, "unknown stack op kind %v", o.Kind)
	}
}

// popCompare validates and pops the two operands of a comparison,
// returning the resulting (shorter) stack. Shared by CompareOp (which then
// pushes BOOL) and BranchOp (which is fused with its branch and pushes
// nothing).
func popCompare(pos token.Position, stack Stack, k ast.CompareKind) (Stack, error) {
	depth := len(stack)
	if depth < 2 {
		return nil, errs.NewStackError(pos, "%s: stack underflow", k)
	}
	a, b := stack[depth-2], stack[depth-1]
	if !types.Compatible(a.Type, b.Type) {
		return nil, errs.NewStackError(pos, "%s: incompatible operand types %s, %s", k, a.Type, b.Type)
	}
	if !opaqueAllowsCompare(k, a.Type) {
		return nil, errs.NewStackError(pos, "%s: ordering comparison not permitted on opaque", k)
	}
	return stack[:depth-2], nil
}

// opaqueAllowsCompare codifies the Open Question decision of spec.md §9:
// OPAQUE permits only equality comparison (eq, ne), never ordering.
func opaqueAllowsCompare(k ast.CompareKind, t types.Type) bool {
	if t.Resolved().Kind() != types.KindOpaque {
		return true
	}
	return k == ast.CompareEq || k == ast.CompareNe
}

func applyCall(pos token.Position, stack Stack) (Stack, error) {
	depth := len(stack)
	if depth < 1 {
		return nil, errs.NewStackError(pos, "call: stack underflow")
	}
	top := stack[depth-1]
	sig, ok := top.Type.Resolved().(*types.Func)
	if !ok {
		return nil, errs.NewStackError(pos, "call: top of stack is %s, not a function", top.Type)
	}
	nparams := len(sig.Params)
	if depth-1 < nparams {
		return nil, errs.NewStackError(pos, "call: expected %d argument(s), only %d on stack", nparams, depth-1)
	}
	base := depth - 1 - nparams
	for i, pt := range sig.Params {
		actual := stack[base+i].Type
		if !types.Compatible(actual, pt) {
			return nil, errs.NewStackError(pos, "call: argument %d has type %s, want %s", i, actual, pt)
		}
	}
	out := make(Stack, base, base+len(sig.Returns))
	copy(out, stack[:base])
	for _, rt := range sig.Returns {
		out = append(out, Slot{Type: rt})
	}
	return out, nil
}

func checkReturn(file *token.File, fn *cfg.Func, t *ast.ReturnOp, stack Stack, el *errs.List) {
	want := fn.Decl.ReturnTypes
	if len(stack) != len(want) {
		el.Add(errs.NewStackError(file.Position(t.Position()), "return: %s expects %d value(s), stack has %d", fn.Decl.QualifiedName(), len(want), len(stack)))
		return
	}
	for i, wt := range want {
		if !types.Compatible(stack[i].Type, wt) {
			el.Add(errs.NewStackError(file.Position(t.Position()), "return: %s value %d has type %s, want %s", fn.Decl.QualifiedName(), i, stack[i].Type, wt))
			return
		}
	}
}
