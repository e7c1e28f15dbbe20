package ast

import (
	"github.com/mna/infinity/lang/token"
)

// Op is implemented by every operation family of spec.md §3. All Ops are
// Stmts; the ones embedding opTerminator additionally end a basic block.
type Op interface {
	Stmt
	isOp()
	// Synthetic reports whether BlockCreate invented this operation (a
	// closer goto/return that did not appear in source).
	Synthetic() bool
}

type opBase struct {
	Pos  token.Pos
	Synth bool
}

func (b *opBase) Position() token.Pos { return b.Pos }
func (b *opBase) isStmt()             {}
func (b *opBase) isOp()               {}
func (b *opBase) Synthetic() bool     { return b.Synth }

func base(pos token.Pos, synth bool) opBase { return opBase{Pos: pos, Synth: synth} }

// Terminator is implemented by the three block-ending operation kinds:
// BranchOp, GotoOp, ReturnOp.
type Terminator interface {
	Op
	// Targets returns the labels this terminator may transfer control to,
	// in a fixed order (branch: taken then fallthrough; goto: its target;
	// return: none).
	Targets() []string
}

// LoadIntOp pushes an INT literal.
type LoadIntOp struct {
	opBase
	Value int64
}

// LoadNullOp pushes the PTR literal NULL.
type LoadNullOp struct{ opBase }

// LoadBoolOp pushes a BOOL literal (TRUE or FALSE).
type LoadBoolOp struct {
	opBase
	Value bool
}

// LoadRefOp pushes a function or external symbol resolved by name.
// Bind is nil until NameAnnotate runs.
type LoadRefOp struct {
	opBase
	Name string
	Bind *Binding
}

// NameOp renames the stack slot at depth N (0 = top) to Name. It has no
// bytecode effect.
type NameOp struct {
	opBase
	Slot int
	Name string
}

// UnaryKind enumerates the unary arithmetic operators.
type UnaryKind uint8

const (
	UnaryAbs UnaryKind = iota
	UnaryNeg
	UnaryNot
)

func (k UnaryKind) String() string { return [...]string{"abs", "neg", "not"}[k] }

// UnaryOp is a 1-in-1-out arithmetic operator.
type UnaryOp struct {
	opBase
	Kind UnaryKind
}

// BinaryKind enumerates the binary arithmetic operators.
type BinaryKind uint8

const (
	BinaryAdd BinaryKind = iota
	BinaryAnd
	BinaryDiv
	BinaryMod
	BinaryMul
	BinaryOr
	BinaryShl
	BinaryShr
	BinaryShra
	BinarySub
	BinaryXor
)

var binaryNames = [...]string{"add", "and", "div", "mod", "mul", "or", "shl", "shr", "shra", "sub", "xor"}

func (k BinaryKind) String() string { return binaryNames[k] }

// BinaryOp is a 2-in-1-out arithmetic operator.
type BinaryOp struct {
	opBase
	Kind BinaryKind
}

// StackKind enumerates the stack-shuffling operators that need no operand
// besides, optionally, Pick's N.
type StackKind uint8

const (
	StackDrop StackKind = iota
	StackDup
	StackOver
	StackPick
	StackRot
	StackSwap
)

var stackNames = [...]string{"drop", "dup", "over", "pick", "rot", "swap"}

func (k StackKind) String() string { return stackNames[k] }

// StackOp is one of drop, dup, over, pick N, rot, swap.
type StackOp struct {
	opBase
	Kind StackKind
	N    int // meaningful only when Kind == StackPick
}

// DerefOp replaces the top PTR with a T loaded from that address.
type DerefOp struct {
	opBase
	Type TypeExpr
}

// CompareKind enumerates the six comparison predicates.
type CompareKind uint8

const (
	CompareLt CompareKind = iota
	CompareLe
	CompareEq
	CompareNe
	CompareGe
	CompareGt
)

var compareNames = [...]string{"lt", "le", "eq", "ne", "ge", "gt"}

// reverseCompare is the REVERSE table of spec.md §4.5 / §8: {lt<->ge,
// le<->gt, eq<->ne}.
var reverseCompare = [...]CompareKind{
	CompareLt: CompareGe,
	CompareLe: CompareGt,
	CompareEq: CompareNe,
	CompareNe: CompareEq,
	CompareGe: CompareLt,
	CompareGt: CompareLe,
}

func (k CompareKind) String() string { return compareNames[k] }

// Reverse returns the comparison that inverts k, per the REVERSE table.
func (k CompareKind) Reverse() CompareKind { return reverseCompare[k] }

// CompareOp is a 2-in-1-out (bool) comparison.
type CompareOp struct {
	opBase
	Kind CompareKind
}

// CallOp pops a FUNC and its declared parameters and pushes its return
// values.
type CallOp struct{ opBase }

// PlusUconstOp adds the unsigned constant N to the top of the stack in
// place. It never appears out of the parser; BlockOptimizer introduces it
// by fusing a `load k; add` pair (spec.md §4.5), matching the DWARF
// plus_uconst opcode the serializer would otherwise have to reconstruct
// from two separate operations.
type PlusUconstOp struct {
	opBase
	N uint64
}

// BranchOp is the conditional terminator produced by a source-level
// `blt/ble/beq/bne/bge/bgt L` statement: it fuses a comparison (Kind) over
// the top two stack values with a branch to Target, falling through to
// Fallthrough when the comparison is false. At serialize time it lowers to
// a comparison opcode (possibly reversed) followed by the `bra` bytecode
// primitive, matching the Control family's "bra (from compare predicate:
// pops 1 bool, branches if non-zero)" contract at the bytecode level,
// followed by an explicit `skip` to Fallthrough whenever Fallthrough is not
// the block the serializer lays out immediately next.
type BranchOp struct {
	opBase
	Kind        CompareKind
	Target      string
	Fallthrough string
}

// Reverse flips Kind via the REVERSE table and swaps Target/Fallthrough,
// used by BlockOptimizer's branch-reversal rewrite (spec.md §4.5).
func (b *BranchOp) Reverse() {
	b.Kind = b.Kind.Reverse()
	b.Target, b.Fallthrough = b.Fallthrough, b.Target
}

func (b *BranchOp) Targets() []string { return []string{b.Target, b.Fallthrough} }

// GotoOp is the unconditional terminator `goto L`.
type GotoOp struct {
	opBase
	Target string
}

func (g *GotoOp) Targets() []string { return []string{g.Target} }

// ReturnOp is the terminator `return`.
type ReturnOp struct{ opBase }

func (r *ReturnOp) Targets() []string { return nil }

var (
	_ Op = (*LoadIntOp)(nil)
	_ Op = (*LoadNullOp)(nil)
	_ Op = (*LoadBoolOp)(nil)
	_ Op = (*LoadRefOp)(nil)
	_ Op = (*NameOp)(nil)
	_ Op = (*UnaryOp)(nil)
	_ Op = (*BinaryOp)(nil)
	_ Op = (*StackOp)(nil)
	_ Op = (*DerefOp)(nil)
	_ Op = (*CompareOp)(nil)
	_ Op = (*CallOp)(nil)
	_ Op = (*PlusUconstOp)(nil)

	_ Terminator = (*BranchOp)(nil)
	_ Terminator = (*GotoOp)(nil)
	_ Terminator = (*ReturnOp)(nil)
)

// IsTerminator reports whether op ends a basic block.
func IsTerminator(op Op) bool {
	_, ok := op.(Terminator)
	return ok
}

// Constructors. synth is true for operations BlockCreate invents
// (synthetic closers); the parser always passes false.

func NewLoadIntOp(pos token.Pos, synth bool, v int64) *LoadIntOp {
	return &LoadIntOp{base(pos, synth), v}
}

func NewLoadNullOp(pos token.Pos, synth bool) *LoadNullOp {
	return &LoadNullOp{base(pos, synth)}
}

func NewLoadBoolOp(pos token.Pos, synth bool, v bool) *LoadBoolOp {
	return &LoadBoolOp{base(pos, synth), v}
}

func NewLoadRefOp(pos token.Pos, synth bool, name string) *LoadRefOp {
	return &LoadRefOp{base(pos, synth), name, nil}
}

func NewNameOp(pos token.Pos, synth bool, slot int, name string) *NameOp {
	return &NameOp{base(pos, synth), slot, name}
}

func NewUnaryOp(pos token.Pos, synth bool, k UnaryKind) *UnaryOp {
	return &UnaryOp{base(pos, synth), k}
}

func NewBinaryOp(pos token.Pos, synth bool, k BinaryKind) *BinaryOp {
	return &BinaryOp{base(pos, synth), k}
}

func NewStackOp(pos token.Pos, synth bool, k StackKind, n int) *StackOp {
	return &StackOp{base(pos, synth), k, n}
}

func NewDerefOp(pos token.Pos, synth bool, t TypeExpr) *DerefOp {
	return &DerefOp{base(pos, synth), t}
}

func NewCompareOp(pos token.Pos, synth bool, k CompareKind) *CompareOp {
	return &CompareOp{base(pos, synth), k}
}

func NewCallOp(pos token.Pos, synth bool) *CallOp {
	return &CallOp{base(pos, synth)}
}

func NewBranchOp(pos token.Pos, synth bool, k CompareKind, target, fallthrough_ string) *BranchOp {
	return &BranchOp{base(pos, synth), k, target, fallthrough_}
}

func NewGotoOp(pos token.Pos, synth bool, target string) *GotoOp {
	return &GotoOp{base(pos, synth), target}
}

func NewReturnOp(pos token.Pos, synth bool) *ReturnOp {
	return &ReturnOp{base(pos, synth)}
}

func NewPlusUconstOp(pos token.Pos, synth bool, n uint64) *PlusUconstOp {
	return &PlusUconstOp{base(pos, synth), n}
}

// StackDelta is a coarse static effect-on-depth hint; no pass in this
// module calls it, and it does not replace the stack walker's own
// type-aware accounting (spec.md §8: entry-depth +
// ΣΔ(op) = terminator-observed-depth is validated by the walker itself).
func StackDelta(op Op) int {
	switch o := op.(type) {
	case *LoadIntOp, *LoadNullOp, *LoadBoolOp, *LoadRefOp:
		return 1
	case *NameOp:
		return 0
	case *UnaryOp:
		return 0
	case *BinaryOp:
		return -1
	case *StackOp:
		switch o.Kind {
		case StackDrop:
			return -1
		case StackDup, StackOver, StackPick:
			return 1
		case StackRot, StackSwap:
			return 0
		}
	case *DerefOp:
		return 0
	case *CompareOp:
		return -1
	case *CallOp:
		return 0 // exact effect depends on the FUNC signature; walker computes it precisely
	case *BranchOp:
		return -2
	case *PlusUconstOp:
		return 0
	case *GotoOp, *ReturnOp:
		return 0
	}
	return 0
}
