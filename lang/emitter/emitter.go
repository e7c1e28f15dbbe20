// Package emitter implements the Emitter pass of spec.md §4.8: it writes a
// serialized program as assembler pseudo-ops, one header record per
// function followed by its byte stream, deterministic given identical
// input.
package emitter

import (
	"fmt"
	"io"
	"strings"

	"github.com/mna/infinity/lang/serializer"
	"github.com/mna/infinity/lang/types"
)

// bytesPerLine bounds how many .byte values are packed onto one directive
// line, keeping output readable without resorting to one byte per line.
const bytesPerLine = 12

// Emit writes out's functions to w as assembler text.
func Emit(w io.Writer, out *serializer.Output) error {
	e := &emitter{w: w}
	for _, fr := range out.Funcs {
		e.function(fr)
	}
	return e.err
}

type emitter struct {
	w   io.Writer
	err error
}

func (e *emitter) function(fr serializer.FuncResult) {
	if e.err != nil {
		return
	}
	e.writef(".infinity_func %s::%s %s (%s)\n",
		fr.Provider, fr.Name, joinTypes(fr.Returns), joinTypes(fr.Params))

	relocAt := make(map[int]string, len(fr.Relocs))
	for _, r := range fr.Relocs {
		relocAt[r.Offset] = r.Symbol
	}

	for i := 0; i < len(fr.Bytes); {
		if sym, ok := relocAt[i]; ok {
			e.writef("\t.quad %s\n", sym)
			i += 8
			continue
		}
		end := i + bytesPerLine
		if end > len(fr.Bytes) {
			end = len(fr.Bytes)
		}
		// A relocation inside this run must start its own line, so a packed
		// run stops short of it.
		for j := i + 1; j < end; j++ {
			if _, ok := relocAt[j]; ok {
				end = j
				break
			}
		}
		e.byteLine(fr.Bytes[i:end])
		i = end
	}

	e.write(".infinity_func_end\n")
}

func (e *emitter) byteLine(bs []byte) {
	parts := make([]string, len(bs))
	for i, b := range bs {
		parts[i] = fmt.Sprintf("0x%02x", b)
	}
	e.writef("\t.byte %s\n", strings.Join(parts, ", "))
}

func (e *emitter) writef(format string, args ...any) {
	e.write(fmt.Sprintf(format, args...))
}

func (e *emitter) write(s string) {
	if e.err != nil {
		return
	}
	_, e.err = io.WriteString(e.w, s)
}

func joinTypes(ts []types.Type) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}
