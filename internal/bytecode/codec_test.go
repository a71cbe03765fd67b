package bytecode

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleChunk() *CompiledChunk {
	root := &Prototype{
		Name:         "main",
		Source:       "t.spt",
		NumParams:    0,
		MaxStackSize: 4,
		IsModuleRoot: true,
		Code: []Instruction{
			CreateABx(OP_LOADK, 0, 0),
			CreateABC(OP_RETURN, 0, 1, 0),
		},
		Constants: []Constant{NewIntConst(42), NewStringConst("hi")},
		Lines:     []int32{1, 1},
		Upvalues:  []UpvalueDesc{{Index: 0, IsLocal: true, Name: "x"}},
		Protos: []*Prototype{
			{
				Name:         "inner",
				Source:       "t.spt",
				NumParams:    1,
				MaxStackSize: 2,
				Code:         []Instruction{CreateABC(OP_RETURN, 0, 1, 0)},
				Constants:    []Constant{NewBoolConst(true), NewFloatConst(3.5), NewNilConst()},
				Lines:        []int32{2},
			},
		},
	}
	return &CompiledChunk{Version: CurrentVersion, ModuleName: "t", Exports: []string{"total"}, Root: root}
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	chunk := sampleChunk()
	var buf bytes.Buffer
	require.NoError(t, Serialize(&buf, chunk))

	got, err := Deserialize(&buf)
	require.NoError(t, err)

	require.Equal(t, chunk.Version, got.Version)
	require.Equal(t, chunk.ModuleName, got.ModuleName)
	require.Equal(t, chunk.Exports, got.Exports)
	require.Equal(t, chunk.Root.Name, got.Root.Name)
	require.True(t, got.Root.IsModuleRoot)
	require.Equal(t, chunk.Root.Code, got.Root.Code)
	require.Len(t, got.Root.Constants, 2)
	require.True(t, chunk.Root.Constants[0].Equal(got.Root.Constants[0]))
	require.True(t, chunk.Root.Constants[1].Equal(got.Root.Constants[1]))
	require.Len(t, got.Root.Protos, 1)
	require.False(t, got.Root.Protos[0].IsModuleRoot)
	require.Equal(t, chunk.Root.Protos[0].Constants, got.Root.Protos[0].Constants)
}

func TestConstantEqualComparesKindAndPayload(t *testing.T) {
	require.True(t, NewIntConst(1).Equal(NewIntConst(1)))
	require.False(t, NewIntConst(1).Equal(NewIntConst(2)))
	require.False(t, NewIntConst(1).Equal(NewFloatConst(1)))
	require.True(t, NewNilConst().Equal(NewNilConst()))
	require.True(t, NewStringConst("a").Equal(NewStringConst("a")))
}

func TestInstructionEncodeDecodeABCAndABx(t *testing.T) {
	abc := CreateABC(OP_ADD, 1, 2, 3)
	require.Equal(t, OP_ADD, abc.OpCode())
	require.Equal(t, uint8(1), abc.A())
	require.Equal(t, uint8(2), abc.B())
	require.Equal(t, uint8(3), abc.C())

	abx := CreateABx(OP_LOADK, 5, 300)
	require.Equal(t, OP_LOADK, abx.OpCode())
	require.Equal(t, uint8(5), abx.A())
	require.Equal(t, uint16(300), abx.Bx())

	asbx := CreateAsBx(OP_JMP, 0, -100)
	require.Equal(t, OP_JMP, asbx.OpCode())
	require.Equal(t, int32(-100), asbx.SBx())
}

func TestDisassembleIncludesPrototypeNames(t *testing.T) {
	out := Disassemble(sampleChunk())
	require.Contains(t, out, "main")
	require.Contains(t, out, "inner")
}
