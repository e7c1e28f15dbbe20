// Package opcode defines the single-byte DWARF-style instruction set the
// serializer and stream optimizer operate on (spec.md §4.6), plus the
// LEB128 operand encoders they share. Opcode values match the public DWARF
// expression-opcode space; GNUI8call occupies DWARF's vendor-extension
// range (0xe0-0xff) for the project-specific indirect call primitive.
package opcode

import "fmt"

// Op is a single-byte bytecode instruction.
type Op byte

const (
	// Addr pushes a relocatable address operand (8 bytes); the assembler
	// fills in the actual address of the named external symbol. This is
	// why `addr` is a forbidden source token (spec.md §6): it collides
	// with this bytecode mnemonic, the same way `plus`/`minus`/`bra` do.
	Addr Op = 0x03

	Deref Op = 0x06

	Const1U Op = 0x08
	Const1S Op = 0x09
	Const2U Op = 0x0a
	Const2S Op = 0x0b
	Const4U Op = 0x0c
	Const4S Op = 0x0d
	Const8U Op = 0x0e
	Const8S Op = 0x0f
	ConstU  Op = 0x10
	ConstS  Op = 0x11

	Dup  Op = 0x12
	Drop Op = 0x13
	Over Op = 0x14
	Pick Op = 0x15
	Swap Op = 0x16
	Rot  Op = 0x17

	Abs   Op = 0x19
	And   Op = 0x1a
	Div   Op = 0x1b
	Minus Op = 0x1c
	Mod   Op = 0x1d
	Mul   Op = 0x1e
	Neg   Op = 0x1f
	Not   Op = 0x20
	Or    Op = 0x21
	Plus  Op = 0x22

	PlusUconst Op = 0x23

	Shl Op = 0x24
	Shr Op = 0x25
	Shra Op = 0x26
	Xor  Op = 0x27

	Bra  Op = 0x28
	Eq   Op = 0x29
	Ge   Op = 0x2a
	Gt   Op = 0x2b
	Le   Op = 0x2c
	Lt   Op = 0x2d
	Ne   Op = 0x2e
	Skip Op = 0x2f

	DerefSize Op = 0x94

	// GNUI8call pops a FUNC value and its arguments and transfers control
	// to it, pushing its results. Project-specific; not part of standard
	// DWARF.
	GNUI8call Op = 0xe8

	// lit0 is the base of the literal-push family lit0..lit31
	// (0x30..0x4f).
	lit0 Op = 0x30
)

// Lit returns the opcode for pushing the small unsigned literal n, which
// must be in [0, 31].
func Lit(n int) Op { return lit0 + Op(n) }

// LitValue reports the literal value encoded by o and whether o is in the
// lit0..lit31 family.
func LitValue(o Op) (int, bool) {
	if o >= lit0 && o < lit0+32 {
		return int(o - lit0), true
	}
	return 0, false
}

var names = map[Op]string{
	Addr:  "addr",
	Deref: "deref", Const1U: "const1u", Const1S: "const1s", Const2U: "const2u", Const2S: "const2s",
	Const4U: "const4u", Const4S: "const4s", Const8U: "const8u", Const8S: "const8s",
	ConstU: "constu", ConstS: "consts", Dup: "dup", Drop: "drop", Over: "over", Pick: "pick",
	Swap: "swap", Rot: "rot", Abs: "abs", And: "and", Div: "div", Minus: "minus", Mod: "mod",
	Mul: "mul", Neg: "neg", Not: "not", Or: "or", Plus: "plus", PlusUconst: "plus_uconst",
	Shl: "shl", Shr: "shr", Shra: "shra", Xor: "xor", Bra: "bra", Eq: "eq", Ge: "ge", Gt: "gt",
	Le: "le", Lt: "lt", Ne: "ne", Skip: "skip", DerefSize: "deref_size", GNUI8call: "GNU_i8call",
}

func (o Op) String() string {
	if n, ok := LitValue(o); ok {
		return fmt.Sprintf("lit%d", n)
	}
	if n, ok := names[o]; ok {
		return n
	}
	return fmt.Sprintf("op(0x%02x)", byte(o))
}

// SelectIntConst picks the narrowest fixed-width or LEB128 encoding for
// loading the integer literal v, per spec.md §8: "Const loads use the
// narrowest available encoding: values 0-31 produce lit{n}; 32-255 produce
// const1u; etc." The ladder continues through const2/const4 before
// falling back to the generic ULEB128/SLEB128 forms for anything wider.
func SelectIntConst(v int64) (Op, []byte) {
	switch {
	case v >= 0 && v <= 31:
		return Lit(int(v)), nil
	case v >= 0 && v <= 0xff:
		return Const1U, []byte{byte(v)}
	case v < 0 && v >= -0x80:
		return Const1S, []byte{byte(int8(v))}
	case v >= 0 && v <= 0xffff:
		return Const2U, leUint(uint64(v), 2)
	case v < 0 && v >= -0x8000:
		return Const2S, leUint(uint64(uint16(int16(v))), 2)
	case v >= 0 && v <= 0xffffffff:
		return Const4U, leUint(uint64(v), 4)
	case v < 0 && v >= -0x80000000:
		return Const4S, leUint(uint64(uint32(int32(v))), 4)
	case v >= 0:
		return ConstU, PutUleb128(nil, uint64(v))
	default:
		return ConstS, PutSleb128(nil, v)
	}
}

func leUint(v uint64, width int) []byte {
	buf := make([]byte, width)
	for i := 0; i < width; i++ {
		buf[i] = byte(v >> (8 * uint(i)))
	}
	return buf
}

// PutUleb128 appends the ULEB128 encoding of v to buf and returns the
// extended slice.
func PutUleb128(buf []byte, v uint64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			buf = append(buf, b|0x80)
			continue
		}
		return append(buf, b)
	}
}

// PutSleb128 appends the SLEB128 encoding of v to buf and returns the
// extended slice.
func PutSleb128(buf []byte, v int64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		signBitSet := b&0x40 != 0
		if (v == 0 && !signBitSet) || (v == -1 && signBitSet) {
			return append(buf, b)
		}
		buf = append(buf, b|0x80)
	}
}

// OperandLen reports how many bytes of rest (the stream immediately
// following o's own opcode byte) belong to o's operand, so a decoder can
// advance past it without a full semantic decode. rest must start at the
// first operand byte.
func OperandLen(o Op, rest []byte) int {
	switch o {
	case Const1U, Const1S, Pick, DerefSize:
		return 1
	case Const2U, Const2S, Bra, Skip:
		return 2
	case Const4U, Const4S:
		return 4
	case Const8U, Const8S, Addr:
		return 8
	case ConstU, PlusUconst:
		return uleb128Len(rest)
	case ConstS:
		return sleb128Len(rest)
	default:
		return 0
	}
}

func uleb128Len(buf []byte) int {
	for i, b := range buf {
		if b&0x80 == 0 {
			return i + 1
		}
	}
	return len(buf)
}

func sleb128Len(buf []byte) int { return uleb128Len(buf) }
