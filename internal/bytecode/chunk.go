package bytecode

// ConstKind discriminates the payload of a Constant (§4.6 layout).
type ConstKind uint8

const (
	ConstNil ConstKind = iota
	ConstBool
	ConstInt
	ConstFloat
	ConstString
)

// Constant is a single entry of a Prototype's constant pool. It mirrors the
// on-disk Constant layout exactly (tag byte + payload) so the codec (C8) can
// write it without translation.
type Constant struct {
	Kind ConstKind
	B    bool
	I    int64
	F    float64
	S    string
}

func NewNilConst() Constant           { return Constant{Kind: ConstNil} }
func NewBoolConst(b bool) Constant    { return Constant{Kind: ConstBool, B: b} }
func NewIntConst(i int64) Constant    { return Constant{Kind: ConstInt, I: i} }
func NewFloatConst(f float64) Constant { return Constant{Kind: ConstFloat, F: f} }
func NewStringConst(s string) Constant { return Constant{Kind: ConstString, S: s} }

// Equal reports whether two constants carry the same tag and payload, the
// predicate the code generator's constant-interning pool is keyed on.
func (c Constant) Equal(o Constant) bool {
	if c.Kind != o.Kind {
		return false
	}
	switch c.Kind {
	case ConstNil:
		return true
	case ConstBool:
		return c.B == o.B
	case ConstInt:
		return c.I == o.I
	case ConstFloat:
		return c.F == o.F
	case ConstString:
		return c.S == o.S
	}
	return false
}

// UpvalueDesc describes how a closure's upvalue slot is resolved at
// CLOSURE-time: either it captures a local of the immediately enclosing
// function (IsLocal == true, Index is a register in that function's frame),
// or it captures that function's own upvalue at Index (§3.2, §4.3).
type UpvalueDesc struct {
	Index   uint8
	IsLocal bool
	Name    string // debug only
}

// Prototype is the immutable compiled body of a function: its instruction
// vector, constant pool, upvalue descriptors, nested prototypes, and debug
// metadata (§3.2, §3.4). Every Prototype nests child Prototypes recursively,
// one per closure literal appearing in its body.
type Prototype struct {
	Name            string
	Source          string
	LineDefined     int
	LastLineDefined int

	NumParams    uint8
	NumUpvalues  uint8
	MaxStackSize uint8
	IsVararg     bool

	// IsModuleRoot marks the single top-level prototype CompileModule
	// builds for a chunk (never set on a function/method/class-body
	// prototype): the VM seeds register 0's freshly allocated env map with
	// the host's registered globals only when this is set, right as that
	// map is created (§4.3, §6).
	IsModuleRoot bool

	Code      []Instruction
	Constants []Constant
	Lines     []int32 // Lines[pc] is the source line of Code[pc]

	Upvalues []UpvalueDesc
	Protos   []*Prototype
}

// CompiledChunk is a compiled module: version tag, module name, the list of
// export symbols, and a root Prototype (§3.4). It is produced by
// internal/compiler and consumed by internal/vm; internal/bytecode's codec
// (C8) persists and restores it bit-exact.
type CompiledChunk struct {
	Version    uint32
	ModuleName string
	Exports    []string
	Root       *Prototype
}

// CurrentVersion is bumped whenever the on-disk layout in codec.go changes
// in a way that is not backward compatible.
const CurrentVersion = 1
