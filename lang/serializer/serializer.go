// Package serializer implements the Serializer pass of spec.md §4.6: it
// lowers a function's control-flow graph to a linear DWARF-style byte
// stream, resolving branch/goto labels to signed 16-bit displacements in
// a second fixup pass.
package serializer

import (
	"github.com/dolthub/swiss"

	"github.com/mna/infinity/lang/ast"
	"github.com/mna/infinity/lang/cfg"
	"github.com/mna/infinity/lang/errs"
	"github.com/mna/infinity/lang/opcode"
	"github.com/mna/infinity/lang/token"
	"github.com/mna/infinity/lang/types"
)

// Reloc marks a byte offset within FuncResult.Bytes holding an 8-byte
// zero placeholder that the emitter must annotate with the address of an
// external symbol (the core never resolves addresses itself; spec.md §5).
type Reloc struct {
	Offset int
	Symbol string
}

// FuncResult is one function's serialized bytecode plus the header data
// the emitter needs to describe it.
type FuncResult struct {
	Provider string
	Name     string
	Returns  []types.Type
	Params   []types.Type
	Bytes    []byte
	Relocs   []Reloc
}

// Output is the serialized form of an entire program.
type Output struct {
	Funcs []FuncResult
}

// Serialize lowers every function of prog to its own self-contained byte
// stream (DWARF expressions are addressed from the start of their own
// stream, so cross-function offsets never arise).
func Serialize(file *token.File, prog *cfg.Program) (*Output, error) {
	var el errs.List
	out := &Output{Funcs: make([]FuncResult, 0, len(prog.Funcs))}
	for _, fn := range prog.Funcs {
		if fr, ok := serializeFunc(file, fn, &el); ok {
			out.Funcs = append(out.Funcs, fr)
		}
	}
	el.Sort()
	if err := el.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type fixup struct {
	offset int // offset of the 2-byte displacement field
	target string
}

func serializeFunc(file *token.File, fn *cfg.Func, el *errs.List) (FuncResult, bool) {
	var buf []byte
	var relocs []Reloc
	blockOffset := swiss.NewMap[string, int](uint32(len(fn.Blocks)))
	var fixups []fixup

	for i, b := range fn.Blocks {
		blockOffset.Put(b.Label, len(buf))
		for _, op := range b.Ops {
			buf, relocs = emitOp(buf, relocs, op)
		}
		switch t := b.Term.(type) {
		case *ast.GotoOp:
			buf = append(buf, byte(opcode.Skip))
			fixups = append(fixups, fixup{len(buf), t.Target})
			buf = append(buf, 0, 0)
		case *ast.BranchOp:
			buf = append(buf, byte(compareOpcode(t.Kind)), byte(opcode.Bra))
			fixups = append(fixups, fixup{len(buf), t.Target})
			buf = append(buf, 0, 0)
			// Falling through only works when Fallthrough is the block
			// physically laid out next; BlockOptimizer's branch-reversal
			// rewrite can point Fallthrough anywhere, so emit an explicit
			// skip whenever it isn't. StreamOptimizer's elideZeroSkip strips
			// this in the (overwhelmingly common) case where it would have
			// been a zero-displacement no-op.
			var nextLabel string
			if i+1 < len(fn.Blocks) {
				nextLabel = fn.Blocks[i+1].Label
			}
			if t.Fallthrough != nextLabel {
				buf = append(buf, byte(opcode.Skip))
				fixups = append(fixups, fixup{len(buf), t.Fallthrough})
				buf = append(buf, 0, 0)
			}
		case *ast.ReturnOp:
			// Falling off the end of the expression stream is the return;
			// no bytes required.
		}
	}

	for _, fx := range fixups {
		targetOff, ok := blockOffset.Get(fx.target)
		if !ok {
			el.Add(errs.NewInternalError(file.Position(fn.Decl.Pos), "serialize %s: fixup to undefined label %q", fn.Decl.QualifiedName(), fx.target))
			return FuncResult{}, false
		}
		disp := targetOff - (fx.offset + 2)
		if disp < -32768 || disp > 32767 {
			el.Add(errs.NewInternalError(file.Position(fn.Decl.Pos), "serialize %s: branch out of range (%d)", fn.Decl.QualifiedName(), disp))
			return FuncResult{}, false
		}
		buf[fx.offset] = byte(uint16(disp))
		buf[fx.offset+1] = byte(uint16(disp) >> 8)
	}

	params := make([]types.Type, len(fn.Decl.Params))
	for i, p := range fn.Decl.Params {
		params[i] = p.Type.ResolvedType()
	}

	return FuncResult{
		Provider: fn.Decl.Provider,
		Name:     fn.Decl.Name,
		Returns:  fn.Decl.ReturnTypes,
		Params:   params,
		Bytes:    buf,
		Relocs:   relocs,
	}, true
}

func emitOp(buf []byte, relocs []Reloc, op ast.Op) ([]byte, []Reloc) {
	switch o := op.(type) {
	case *ast.LoadIntOp:
		oc, operand := opcode.SelectIntConst(o.Value)
		buf = append(buf, byte(oc))
		buf = append(buf, operand...)
	case *ast.LoadNullOp:
		buf = append(buf, byte(opcode.Lit(0)))
	case *ast.LoadBoolOp:
		v := 0
		if o.Value {
			v = 1
		}
		buf = append(buf, byte(opcode.Lit(v)))
	case *ast.LoadRefOp:
		buf = append(buf, byte(opcode.Addr))
		relocs = append(relocs, Reloc{Offset: len(buf), Symbol: o.Name})
		buf = append(buf, make([]byte, 8)...)
	case *ast.NameOp:
		// No bytecode effect (spec.md §3 Name family).
	case *ast.UnaryOp:
		buf = append(buf, byte(unaryOpcode(o.Kind)))
	case *ast.BinaryOp:
		buf = append(buf, byte(binaryOpcode(o.Kind)))
	case *ast.StackOp:
		buf = emitStackOp(buf, o)
	case *ast.DerefOp:
		buf = append(buf, byte(opcode.Deref))
	case *ast.CompareOp:
		buf = append(buf, byte(compareOpcode(o.Kind)))
	case *ast.CallOp:
		buf = append(buf, byte(opcode.GNUI8call))
	case *ast.PlusUconstOp:
		buf = append(buf, byte(opcode.PlusUconst))
		buf = opcode.PutUleb128(buf, o.N)
	}
	return buf, relocs
}

func emitStackOp(buf []byte, o *ast.StackOp) []byte {
	switch o.Kind {
	case ast.StackDrop:
		return append(buf, byte(opcode.Drop))
	case ast.StackDup:
		return append(buf, byte(opcode.Dup))
	case ast.StackOver:
		return append(buf, byte(opcode.Over))
	case ast.StackPick:
		return append(buf, byte(opcode.Pick), byte(o.N))
	case ast.StackRot:
		return append(buf, byte(opcode.Rot))
	case ast.StackSwap:
		return append(buf, byte(opcode.Swap))
	default:
		return buf
	}
}

func unaryOpcode(k ast.UnaryKind) opcode.Op {
	switch k {
	case ast.UnaryAbs:
		return opcode.Abs
	case ast.UnaryNeg:
		return opcode.Neg
	default: // ast.UnaryNot
		return opcode.Not
	}
}

func binaryOpcode(k ast.BinaryKind) opcode.Op {
	switch k {
	case ast.BinaryAdd:
		return opcode.Plus
	case ast.BinaryAnd:
		return opcode.And
	case ast.BinaryDiv:
		return opcode.Div
	case ast.BinaryMod:
		return opcode.Mod
	case ast.BinaryMul:
		return opcode.Mul
	case ast.BinaryOr:
		return opcode.Or
	case ast.BinaryShl:
		return opcode.Shl
	case ast.BinaryShr:
		return opcode.Shr
	case ast.BinaryShra:
		return opcode.Shra
	case ast.BinarySub:
		return opcode.Minus
	default: // ast.BinaryXor
		return opcode.Xor
	}
}

func compareOpcode(k ast.CompareKind) opcode.Op {
	switch k {
	case ast.CompareLt:
		return opcode.Lt
	case ast.CompareLe:
		return opcode.Le
	case ast.CompareEq:
		return opcode.Eq
	case ast.CompareNe:
		return opcode.Ne
	case ast.CompareGe:
		return opcode.Ge
	default: // ast.CompareGt
		return opcode.Gt
	}
}
