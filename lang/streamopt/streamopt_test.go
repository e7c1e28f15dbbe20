package streamopt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mna/infinity/lang/opcode"
	"github.com/mna/infinity/lang/serializer"
)

func branchBytes(op opcode.Op, disp int16) []byte {
	return []byte{byte(op), byte(uint16(disp)), byte(uint16(disp) >> 8)}
}

func TestElideZeroSkip(t *testing.T) {
	// skip 0 (a no-op) followed by a return-equivalent drop.
	buf := append(branchBytes(opcode.Skip, 0), byte(opcode.Drop))
	out := &serializer.Output{Funcs: []serializer.FuncResult{{Bytes: buf}}}
	Optimize(out)
	assert.Equal(t, []byte{byte(opcode.Drop)}, out.Funcs[0].Bytes)
}

func TestCollapseLitZeroBra(t *testing.T) {
	buf := append([]byte{byte(opcode.Lit(0))}, branchBytes(opcode.Bra, 4)...)
	buf = append(buf, byte(opcode.Drop))
	out := &serializer.Output{Funcs: []serializer.FuncResult{{Bytes: buf}}}
	Optimize(out)
	assert.Equal(t, []byte{byte(opcode.Drop)}, out.Funcs[0].Bytes)
}

func TestCollapseInverseComparePairs(t *testing.T) {
	// lt; bra T1; ge; bra T2  -> lt; bra T1; skip T2
	var buf []byte
	buf = append(buf, byte(opcode.Lt))                // offset 0
	buf = append(buf, branchBytes(opcode.Bra, 5)...)  // offset 1, T1 = offset 9
	buf = append(buf, byte(opcode.Ge))                // offset 4
	buf = append(buf, branchBytes(opcode.Bra, 1)...)  // offset 5, T2 = offset 9
	buf = append(buf, byte(opcode.Drop))              // offset 8
	buf = append(buf, byte(opcode.Drop))              // offset 9, T1 and T2

	out := &serializer.Output{Funcs: []serializer.FuncResult{{Bytes: buf}}}
	Optimize(out)

	got := out.Funcs[0].Bytes
	// lt (1) + bra (3) + skip (3) + drop (1) + drop (1) = 9 bytes.
	require.Len(t, got, 9)
	assert.Equal(t, byte(opcode.Lt), got[0])
	assert.Equal(t, byte(opcode.Bra), got[1])
	assert.Equal(t, byte(opcode.Skip), got[4])
}

func TestOptimizeIsIdempotent(t *testing.T) {
	var buf []byte
	buf = append(buf, byte(opcode.Lit(0)))
	buf = append(buf, branchBytes(opcode.Bra, 4)...)
	buf = append(buf, byte(opcode.Lt))
	buf = append(buf, branchBytes(opcode.Bra, 10)...)

	out := &serializer.Output{Funcs: []serializer.FuncResult{{Bytes: append([]byte(nil), buf...)}}}
	Optimize(out)
	once := append([]byte(nil), out.Funcs[0].Bytes...)

	Optimize(out)
	twice := out.Funcs[0].Bytes

	assert.Equal(t, once, twice)
}

// TestSurvivingBranchTargetRemapsAfterPrefixRemoval reproduces the
// regression where a branch surviving collapseLitZeroBra kept its target
// as a stale absolute byte offset from before a preceding dead pair was
// removed, producing a wrong displacement. The target must track the
// destination instruction itself, not a byte position.
func TestSurvivingBranchTargetRemapsAfterPrefixRemoval(t *testing.T) {
	var buf []byte
	buf = append(buf, byte(opcode.Lit(0)))            // offset 0, dead with the next instr
	buf = append(buf, branchBytes(opcode.Bra, 0)...)  // offset 1, dead, target irrelevant
	buf = append(buf, byte(opcode.Lt))                // offset 4, survives
	buf = append(buf, branchBytes(opcode.Bra, 2)...)  // offset 5, survives, targets offset 10
	buf = append(buf, byte(opcode.Drop))              // offset 8, filler
	buf = append(buf, byte(opcode.Drop))              // offset 9, filler
	buf = append(buf, byte(opcode.Eq))                // offset 10, the branch target

	out := &serializer.Output{Funcs: []serializer.FuncResult{{Bytes: buf}}}
	Optimize(out)

	got := out.Funcs[0].Bytes
	// lit0;bra is removed, leaving: lt, bra, drop, drop, eq (7 bytes).
	require.Len(t, got, 7)
	assert.Equal(t, byte(opcode.Lt), got[0])
	assert.Equal(t, byte(opcode.Bra), got[1])
	assert.Equal(t, byte(opcode.Eq), got[6])

	disp := int(int16(uint16(got[2]) | uint16(got[3])<<8))
	target := 1 + 1 + 2 + disp // offset of the bra's own operand end, plus disp
	assert.Equal(t, 6, target, "branch must still point at the re-laid-out Eq instruction")
}

func TestAddrRelocSurvivesOptimize(t *testing.T) {
	buf := append([]byte{byte(opcode.Addr)}, make([]byte, 8)...)
	out := &serializer.Output{Funcs: []serializer.FuncResult{{
		Bytes:  buf,
		Relocs: []serializer.Reloc{{Offset: 1, Symbol: "some_extern"}},
	}}}
	Optimize(out)
	require.Len(t, out.Funcs[0].Relocs, 1)
	assert.Equal(t, "some_extern", out.Funcs[0].Relocs[0].Symbol)
	assert.Equal(t, 1, out.Funcs[0].Relocs[0].Offset)
}
