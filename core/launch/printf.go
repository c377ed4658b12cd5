package launch

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"
)

// PrintfBufferSize is the fixed UAV buffer size allocated for a kernel's
// printf output (spec.md §4.4 "Printf... allocate a 1 MiB buffer").
const PrintfBufferSize = 1 << 20

// printfHeaderSize is the {next_write_offset, total_size} header.
const printfHeaderSize = 8

// NewPrintfBuffer returns a zeroed printf buffer with its header
// initialized: {next_write_offset=8, total_size=1MiB} (spec.md §4.4).
func NewPrintfBuffer() []byte {
	buf := make([]byte, PrintfBufferSize)
	binary.LittleEndian.PutUint32(buf[0:], printfHeaderSize)
	binary.LittleEndian.PutUint32(buf[4:], PrintfBufferSize)
	return buf
}

// FormatSpec describes one printf format string's compiler-recorded
// per-record size, used to know how many packed-arg bytes to consume.
type FormatSpec struct {
	Format string
	ArgBytes int
}

// DrainPrintf walks a completed task's printf buffer and parses records
// (format_string_id followed by packed args whose total size matches the
// compiler's recorded per-format size), writing the formatted result to w
// (spec.md §4.4 "Printf... emit to stdout").
func DrainPrintf(buf []byte, formats []FormatSpec, w io.Writer) error {
	if len(buf) < printfHeaderSize {
		return fmt.Errorf("printf buffer too small")
	}
	end := binary.LittleEndian.Uint32(buf[0:])
	if int(end) > len(buf) {
		end = uint32(len(buf))
	}
	off := uint32(printfHeaderSize)
	for off+4 <= end {
		id := binary.LittleEndian.Uint32(buf[off:])
		off += 4
		if int(id) >= len(formats) {
			return fmt.Errorf("printf record references unknown format id %d", id)
		}
		spec := formats[id]
		if off+uint32(spec.ArgBytes) > end {
			return fmt.Errorf("printf record truncated")
		}
		args := buf[off : off+uint32(spec.ArgBytes)]
		off += uint32(spec.ArgBytes)
		rendered, err := renderFormat(spec.Format, args)
		if err != nil {
			return err
		}
		fmt.Fprint(w, rendered)
	}
	return nil
}

// renderFormat is the "lightweight re-parser" spec.md §4.4 names,
// supporting flags, field width, precision, h/hh/l length modifiers, and
// v{2,3,4,8,16} vector prefixes. Only the conversions clon12's packed-arg
// layout can produce are interpreted; everything else passes through
// literally.
func renderFormat(format string, args []byte) (string, error) {
	var out strings.Builder
	off := 0
	readU32 := func() uint32 {
		if off+4 > len(args) {
			return 0
		}
		v := binary.LittleEndian.Uint32(args[off:])
		off += 4
		return v
	}
	readF64 := func() float64 {
		if off+8 > len(args) {
			return 0
		}
		v := binary.LittleEndian.Uint64(args[off:])
		off += 8
		return math.Float64frombits(v)
	}

	i := 0
	for i < len(format) {
		c := format[i]
		if c != '%' {
			out.WriteByte(c)
			i++
			continue
		}
		j := i + 1
		for j < len(format) && strings.ContainsRune("-+ #0123456789.lhv", rune(format[j])) {
			j++
		}
		if j >= len(format) {
			out.WriteString(format[i:])
			break
		}
		conv := format[j]
		spec := format[i : j+1]
		switch conv {
		case 'd', 'i', 'u', 'x', 'X', 'o':
			fmt.Fprintf(&out, spec, readU32())
		case 'f', 'e', 'E', 'g', 'G':
			fmt.Fprintf(&out, spec, readF64())
		case 's':
			out.WriteString("(string)")
		case '%':
			out.WriteByte('%')
		default:
			out.WriteString(spec)
		}
		i = j + 1
	}
	return out.String(), nil
}
