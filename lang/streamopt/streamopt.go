// Package streamopt implements the StreamOptimizer pass of spec.md §4.7:
// fixed-point peephole rewrites applied directly to the serialized byte
// stream, re-resolving branch fixups whenever a rewrite changes stream
// length.
package streamopt

import (
	"github.com/mna/infinity/lang/opcode"
	"github.com/mna/infinity/lang/serializer"
)

// instr is one decoded bytecode instruction. Branch/skip targets are
// resolved to the *instr they jump to (rather than a byte offset or index)
// so that removing or inserting instructions elsewhere in the function
// never invalidates a target: pointer identity survives slice mutations,
// byte offsets and indices do not.
type instr struct {
	op      opcode.Op
	operand []byte
	target  *instr // destination; meaningful only for Bra and Skip
	reloc   string // non-empty symbol name; meaningful only for Addr
}

// endSentinel stands for "one past the last instruction" (falling off the
// end of the stream), the destination of a branch/skip to a label at the
// very end of a function.
var endSentinel = &instr{}

// Optimize rewrites every function's bytecode in out in place.
func Optimize(out *serializer.Output) {
	for i := range out.Funcs {
		optimizeFunc(&out.Funcs[i])
	}
}

func optimizeFunc(fr *serializer.FuncResult) {
	ins := decode(fr.Bytes, fr.Relocs)
	for {
		changed := false
		if elideZeroSkip(&ins) {
			changed = true
		}
		if collapseLitZeroBra(&ins) {
			changed = true
		}
		if collapseInverseComparePairs(&ins) {
			changed = true
		}
		if !changed {
			break
		}
	}
	fr.Bytes, fr.Relocs = encode(ins)
}

// decode splits buf into instructions, resolving each Bra/Skip's relative
// displacement to the *instr at that absolute byte offset (a two-pass
// process: the destination instruction may not exist yet when a forward
// branch is first seen).
func decode(buf []byte, relocs []serializer.Reloc) []*instr {
	relocBySym := make(map[int]string, len(relocs))
	for _, r := range relocs {
		relocBySym[r.Offset] = r.Symbol
	}

	var ins []*instr
	byOffset := make(map[int]*instr, len(buf))
	targetOffsetOf := make(map[*instr]int)

	for i := 0; i < len(buf); {
		op := opcode.Op(buf[i])
		rest := buf[i+1:]
		opLen := opcode.OperandLen(op, rest)
		operand := append([]byte(nil), rest[:opLen]...)
		in := &instr{op: op, operand: operand}
		byOffset[i] = in
		switch op {
		case opcode.Bra, opcode.Skip:
			disp := int(int16(uint16(operand[0]) | uint16(operand[1])<<8))
			targetOffsetOf[in] = i + 1 + opLen + disp
		case opcode.Addr:
			in.reloc = relocBySym[i+1]
		}
		ins = append(ins, in)
		i += 1 + opLen
	}
	byOffset[len(buf)] = endSentinel

	for in, off := range targetOffsetOf {
		if t, ok := byOffset[off]; ok {
			in.target = t
		} else {
			in.target = endSentinel
		}
	}
	return ins
}

// elideZeroSkip removes any Skip instruction whose target is exactly the
// instruction immediately following it (displacement 0 is a no-op).
func elideZeroSkip(ins *[]*instr) bool {
	cur := *ins
	changed := false
	out := cur[:0]
	for i, in := range cur {
		if in.op == opcode.Skip {
			next := endSentinel
			if i+1 < len(cur) {
				next = cur[i+1]
			}
			if in.target == next {
				changed = true
				continue
			}
		}
		out = append(out, in)
	}
	*ins = out
	return changed
}

// collapseLitZeroBra removes an adjacent `lit0; bra L` pair: pushing the
// boolean literal false immediately before a conditional branch can never
// take the branch, so both instructions are dead (spec.md §4.7).
func collapseLitZeroBra(ins *[]*instr) bool {
	changed := false
	cur := *ins
	out := cur[:0]
	for i := 0; i < len(cur); i++ {
		if i+1 < len(cur) {
			if n, ok := opcode.LitValue(cur[i].op); ok && n == 0 && cur[i+1].op == opcode.Bra {
				changed = true
				i++
				continue
			}
		}
		out = append(out, cur[i])
	}
	*ins = out
	return changed
}

// reverseOpcode maps a compare opcode to its REVERSE-table counterpart, the
// byte-stream-level equivalent of ast.CompareKind.Reverse.
var reverseOpcode = map[opcode.Op]opcode.Op{
	opcode.Lt: opcode.Ge, opcode.Ge: opcode.Lt,
	opcode.Le: opcode.Gt, opcode.Gt: opcode.Le,
	opcode.Eq: opcode.Ne, opcode.Ne: opcode.Eq,
}

func isCompare(op opcode.Op) bool {
	_, ok := reverseOpcode[op]
	return ok
}

// collapseInverseComparePairs replaces a `compare C; bra T1; compare
// reverse(C); bra T2` run (left over once earlier passes have folded the
// surrounding control flow down to this shape) with `compare C; bra T1;
// skip T2`: having fallen through the first branch, C was false, so
// reverse(C) always holds and the second branch is unconditional.
func collapseInverseComparePairs(ins *[]*instr) bool {
	cur := *ins
	changed := false
	for i := 0; i+3 < len(cur); i++ {
		c1, b1, c2, b2 := cur[i], cur[i+1], cur[i+2], cur[i+3]
		if !isCompare(c1.op) || b1.op != opcode.Bra {
			continue
		}
		if c2.op != reverseOpcode[c1.op] || b2.op != opcode.Bra {
			continue
		}
		cur[i+2] = &instr{op: opcode.Skip, operand: b2.operand, target: b2.target}
		cur = append(cur[:i+3], cur[i+4:]...)
		changed = true
	}
	*ins = cur
	return changed
}

// encode lays instructions back out as a byte stream, recomputing every
// Bra/Skip displacement and Addr reloc offset from the (possibly changed)
// final layout.
func encode(ins []*instr) ([]byte, []serializer.Reloc) {
	offsetOf := make(map[*instr]int, len(ins)+1)
	pos := 0
	for _, in := range ins {
		offsetOf[in] = pos
		pos += 1 + len(in.operand)
	}
	offsetOf[endSentinel] = pos

	var buf []byte
	var relocs []serializer.Reloc
	for _, in := range ins {
		start := len(buf)
		buf = append(buf, byte(in.op))
		switch in.op {
		case opcode.Bra, opcode.Skip:
			disp := offsetOf[in.target] - (start + 1 + 2)
			buf = append(buf, byte(uint16(disp)), byte(uint16(disp)>>8))
		case opcode.Addr:
			if in.reloc != "" {
				relocs = append(relocs, serializer.Reloc{Offset: len(buf), Symbol: in.reloc})
			}
			buf = append(buf, in.operand...)
		default:
			buf = append(buf, in.operand...)
		}
	}
	return buf, relocs
}
