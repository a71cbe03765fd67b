package bytecode

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/kr/pretty"
)

// Magic is the four-byte file signature written at the start of every
// serialized chunk ("FLEX" in ASCII, little-endian as a u32).
const Magic uint32 = 0x58454C46

// Serialize writes chunk to w in the little-endian, length-prefixed layout
// documented in §4.6. Serializing the same AST with the same compiler
// version twice yields byte-identical output (§8 property 3) because
// constant-pool order is insertion order, never re-sorted.
func Serialize(w io.Writer, chunk *CompiledChunk) error {
	bw := bufio.NewWriter(w)
	e := &encoder{w: bw}

	e.u32(Magic)
	e.u32(chunk.Version)
	e.str(chunk.ModuleName)
	e.u32(uint32(len(chunk.Exports)))
	for _, name := range chunk.Exports {
		e.str(name)
	}
	e.proto(chunk.Root)

	if e.err != nil {
		return e.err
	}
	return bw.Flush()
}

// Deserialize reads a chunk previously written by Serialize. A magic
// mismatch or version mismatch fails loudly rather than attempting
// best-effort recovery.
func Deserialize(r io.Reader) (*CompiledChunk, error) {
	d := &decoder{r: bufio.NewReader(r)}

	magic := d.u32()
	if d.err == nil && magic != Magic {
		return nil, fmt.Errorf("bytecode: bad magic 0x%08X, want 0x%08X", magic, Magic)
	}
	version := d.u32()
	if d.err == nil && version != CurrentVersion {
		return nil, fmt.Errorf("bytecode: version mismatch: chunk is v%d, reader is v%d", version, CurrentVersion)
	}
	name := d.str()
	exportCount := d.u32()
	exports := make([]string, exportCount)
	for i := range exports {
		exports[i] = d.str()
	}
	root := d.proto()
	// The layout has no IsModuleRoot byte: a serialized chunk's root is
	// always a module root, and nested prototypes never are.
	root.IsModuleRoot = true

	if d.err != nil {
		return nil, d.err
	}
	return &CompiledChunk{Version: version, ModuleName: name, Exports: exports, Root: root}, nil
}

// SaveToFile persists chunk at path (host API §6).
func SaveToFile(chunk *CompiledChunk, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return Serialize(f, chunk)
}

// LoadFromFile reads a chunk previously written by SaveToFile (host API §6).
func LoadFromFile(path string) (*CompiledChunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Deserialize(f)
}

// Disassemble renders a human-readable dump of a chunk's prototypes,
// recursively, using kr/pretty for the constant pool so nested values
// (nil/bool/int/float/string) print without a bespoke formatter. Gated by
// the SPTSCRIPT_DEBUG environment toggle in cmd/sptscript.
func Disassemble(chunk *CompiledChunk) string {
	var out []byte
	out = append(out, fmt.Sprintf("; module %s (version %d)\n", chunk.ModuleName, chunk.Version)...)
	out = append(out, disassembleProto(chunk.Root, 0)...)
	return string(out)
}

func disassembleProto(p *Prototype, depth int) []byte {
	indent := ""
	for i := 0; i < depth; i++ {
		indent += "  "
	}
	var out []byte
	out = append(out, fmt.Sprintf("%sproto %q params=%d upvals=%d maxstack=%d\n",
		indent, p.Name, p.NumParams, p.NumUpvalues, p.MaxStackSize)...)
	for pc, instr := range p.Code {
		out = append(out, fmt.Sprintf("%s  %04d  %-10s A=%d B=%d Bx=%d line=%d\n",
			indent, pc, instr.OpCode(), instr.A(), instr.B(), instr.Bx(), lineAt(p, pc))...)
	}
	if len(p.Constants) > 0 {
		out = append(out, fmt.Sprintf("%s  constants: %# v\n", indent, pretty.Formatter(p.Constants))...)
	}
	for _, child := range p.Protos {
		out = append(out, disassembleProto(child, depth+1)...)
	}
	return out
}

func lineAt(p *Prototype, pc int) int {
	if pc >= 0 && pc < len(p.Lines) {
		return int(p.Lines[pc])
	}
	return 0
}

// ---------------------------------------------------------------------
// low-level encode/decode helpers
// ---------------------------------------------------------------------

type encoder struct {
	w   *bufio.Writer
	err error
}

func (e *encoder) u8(v uint8) {
	if e.err != nil {
		return
	}
	e.err = e.w.WriteByte(v)
}

func (e *encoder) u32(v uint32) {
	if e.err != nil {
		return
	}
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, e.err = e.w.Write(buf[:])
}

func (e *encoder) i64(v int64) { e.u64(uint64(v)) }

func (e *encoder) u64(v uint64) {
	if e.err != nil {
		return
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, e.err = e.w.Write(buf[:])
}

func (e *encoder) f64(v float64) { e.u64(math.Float64bits(v)) }

func (e *encoder) bytesRaw(b []byte) {
	if e.err != nil {
		return
	}
	_, e.err = e.w.Write(b)
}

func (e *encoder) str(s string) {
	e.u32(uint32(len(s)))
	e.bytesRaw([]byte(s))
}

func (e *encoder) bool_(b bool) {
	if b {
		e.u8(1)
	} else {
		e.u8(0)
	}
}

func (e *encoder) constant(c Constant) {
	e.u8(uint8(c.Kind))
	switch c.Kind {
	case ConstNil:
	case ConstBool:
		e.bool_(c.B)
	case ConstInt:
		e.i64(c.I)
	case ConstFloat:
		e.f64(c.F)
	case ConstString:
		e.str(c.S)
	}
}

func (e *encoder) proto(p *Prototype) {
	e.str(p.Name)
	e.str(p.Source)
	e.u32(uint32(p.LineDefined))
	e.u32(uint32(p.LastLineDefined))
	e.u8(p.NumParams)
	e.u8(p.NumUpvalues)
	e.u8(p.MaxStackSize)
	if p.IsVararg {
		e.u8(1)
	} else {
		e.u8(0)
	}

	e.u32(uint32(len(p.Code)))
	for _, instr := range p.Code {
		e.u32(uint32(instr))
	}

	e.u32(uint32(len(p.Constants)))
	for _, c := range p.Constants {
		e.constant(c)
	}

	e.u32(uint32(len(p.Lines)))
	for _, l := range p.Lines {
		e.u32(uint32(l))
	}

	e.u8(uint8(len(p.Upvalues)))
	for _, uv := range p.Upvalues {
		e.u8(uv.Index)
		if uv.IsLocal {
			e.u8(1)
		} else {
			e.u8(0)
		}
	}

	e.u32(uint32(len(p.Protos)))
	for _, child := range p.Protos {
		e.proto(child)
	}
}

type decoder struct {
	r   *bufio.Reader
	err error
}

func (d *decoder) u8() uint8 {
	if d.err != nil {
		return 0
	}
	b, err := d.r.ReadByte()
	if err != nil {
		d.err = err
	}
	return b
}

func (d *decoder) u32() uint32 {
	if d.err != nil {
		return 0
	}
	var buf [4]byte
	if _, err := io.ReadFull(d.r, buf[:]); err != nil {
		d.err = err
		return 0
	}
	return binary.LittleEndian.Uint32(buf[:])
}

func (d *decoder) u64() uint64 {
	if d.err != nil {
		return 0
	}
	var buf [8]byte
	if _, err := io.ReadFull(d.r, buf[:]); err != nil {
		d.err = err
		return 0
	}
	return binary.LittleEndian.Uint64(buf[:])
}

func (d *decoder) i64() int64    { return int64(d.u64()) }
func (d *decoder) f64() float64  { return math.Float64frombits(d.u64()) }
func (d *decoder) bool_() bool   { return d.u8() != 0 }

func (d *decoder) bytesRaw(n uint32) []byte {
	if d.err != nil {
		return nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		d.err = err
		return nil
	}
	return buf
}

func (d *decoder) str() string {
	n := d.u32()
	return string(d.bytesRaw(n))
}

func (d *decoder) constant() Constant {
	kind := ConstKind(d.u8())
	switch kind {
	case ConstNil:
		return Constant{Kind: ConstNil}
	case ConstBool:
		return Constant{Kind: ConstBool, B: d.bool_()}
	case ConstInt:
		return Constant{Kind: ConstInt, I: d.i64()}
	case ConstFloat:
		return Constant{Kind: ConstFloat, F: d.f64()}
	case ConstString:
		return Constant{Kind: ConstString, S: d.str()}
	default:
		if d.err == nil {
			d.err = fmt.Errorf("bytecode: unknown constant tag %d", kind)
		}
		return Constant{}
	}
}

func (d *decoder) proto() *Prototype {
	p := &Prototype{}
	p.Name = d.str()
	p.Source = d.str()
	p.LineDefined = int(d.u32())
	p.LastLineDefined = int(d.u32())
	p.NumParams = d.u8()
	p.NumUpvalues = d.u8()
	p.MaxStackSize = d.u8()
	p.IsVararg = d.bool_()

	codeLen := d.u32()
	p.Code = make([]Instruction, codeLen)
	for i := range p.Code {
		p.Code[i] = Instruction(d.u32())
	}

	constCount := d.u32()
	p.Constants = make([]Constant, constCount)
	for i := range p.Constants {
		p.Constants[i] = d.constant()
	}

	lineCount := d.u32()
	p.Lines = make([]int32, lineCount)
	for i := range p.Lines {
		p.Lines[i] = int32(d.u32())
	}

	upvalCount := d.u8()
	p.Upvalues = make([]UpvalueDesc, upvalCount)
	for i := range p.Upvalues {
		p.Upvalues[i].Index = d.u8()
		p.Upvalues[i].IsLocal = d.bool_()
	}

	protoCount := d.u32()
	p.Protos = make([]*Prototype, protoCount)
	for i := range p.Protos {
		p.Protos[i] = d.proto()
	}

	if d.err != nil {
		return nil
	}
	return p
}
