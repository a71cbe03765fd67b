package compiler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Xarvie/sptscript/internal/bytecode"
	"github.com/Xarvie/sptscript/internal/parser"
)

func mustCompile(t *testing.T, src string) *bytecode.CompiledChunk {
	t.Helper()
	prog, errs := parser.ParseSource(src, "t.spt")
	require.Empty(t, errs)
	c := New()
	chunk, cerrs := c.CompileModule(prog, "t", src)
	require.Empty(t, cerrs)
	return chunk
}

func TestCompileModuleMarksRootAndCollectsExports(t *testing.T) {
	src := `
	export var total = 1 + 2;
	var hidden = 10;
	`
	chunk := mustCompile(t, src)
	require.True(t, chunk.Root.IsModuleRoot)
	require.Equal(t, []string{"total"}, chunk.Exports)
	require.Equal(t, "t", chunk.ModuleName)
}

func TestCompileFunctionDeclIsNotModuleRoot(t *testing.T) {
	src := `
	int add(int a, int b) {
		return a + b;
	}
	export var result = add(1, 2);
	`
	chunk := mustCompile(t, src)
	require.True(t, chunk.Root.IsModuleRoot)
	require.False(t, chunk.Root.Protos[0].IsModuleRoot)
	require.Equal(t, []string{"result"}, chunk.Exports)
}

func TestCompileClassDeclSucceeds(t *testing.T) {
	src := `
	class Animal {
		string name = "rex";
		void speak() {
			print(this.name);
		}
	}
	export var a = new Animal();
	`
	chunk := mustCompile(t, src)
	require.Equal(t, []string{"a"}, chunk.Exports)
}

func TestCompileBreakOutsideLoopIsAnError(t *testing.T) {
	prog, errs := parser.ParseSource(`break;`, "t.spt")
	require.Empty(t, errs)
	c := New()
	_, cerrs := c.CompileModule(prog, "t", `break;`)
	require.NotEmpty(t, cerrs)
}

func TestCompileWhileLoopWithBreakContinue(t *testing.T) {
	src := `
	var i = 0;
	while (i < 10) {
		if (i == 5) {
			break;
		}
		i = i + 1;
		if (i == 3) {
			continue;
		}
	}
	`
	chunk := mustCompile(t, src)
	require.NotEmpty(t, chunk.Root.Code)
}

// opcodesIn collects the set of opcodes emitted anywhere in proto or its
// nested prototypes, so a fold can be asserted without pinning down exact
// register numbers or instruction offsets.
func opcodesIn(proto *bytecode.Prototype) map[bytecode.OpCode]int {
	counts := make(map[bytecode.OpCode]int)
	for _, instr := range proto.Code {
		counts[instr.OpCode()]++
	}
	for _, p := range proto.Protos {
		for op, n := range opcodesIn(p) {
			counts[op] += n
		}
	}
	return counts
}

func TestCompileBinaryFoldsAddSubAgainstSmallIntLiteral(t *testing.T) {
	chunk := mustCompile(t, `
	var a = 1;
	export var b = a + 2;
	export var c = a - 3;
	`)
	ops := opcodesIn(chunk.Root)
	require.Equal(t, 2, ops[bytecode.OP_ADDI])
	require.Zero(t, ops[bytecode.OP_ADD])
	require.Zero(t, ops[bytecode.OP_SUB])
}

func TestCompileBinaryDoesNotFoldSubWhenLiteralIsOnTheLeft(t *testing.T) {
	chunk := mustCompile(t, `
	var a = 1;
	export var b = 3 - a;
	`)
	ops := opcodesIn(chunk.Root)
	require.Equal(t, 1, ops[bytecode.OP_SUB])
	require.Zero(t, ops[bytecode.OP_ADDI])
}

func TestCompileBinaryDoesNotFoldSubWhenLiteralExceedsInt8Range(t *testing.T) {
	chunk := mustCompile(t, `
	var a = 1;
	export var b = a - 200;
	`)
	ops := opcodesIn(chunk.Root)
	require.Equal(t, 1, ops[bytecode.OP_SUB])
	require.Zero(t, ops[bytecode.OP_ADDI])
}

func TestCompileBinaryFoldsEqualityAgainstSmallIntLiteral(t *testing.T) {
	chunk := mustCompile(t, `
	var a = 1;
	export var b = a == 5;
	export var c = 5 == a;
	export var d = a != 5;
	`)
	ops := opcodesIn(chunk.Root)
	require.Equal(t, 3, ops[bytecode.OP_EQI])
	require.Zero(t, ops[bytecode.OP_EQ])
}

func TestCompileBinaryFoldsEqualityAgainstOtherLiteralsToEqk(t *testing.T) {
	chunk := mustCompile(t, `
	var a = "x";
	export var b = a == "hello";
	export var c = a == 3.5;
	`)
	ops := opcodesIn(chunk.Root)
	require.Equal(t, 2, ops[bytecode.OP_EQK])
	require.Zero(t, ops[bytecode.OP_EQ])
}

func TestCompileBinaryFoldsRelationalOperatorsAgainstSmallIntLiteral(t *testing.T) {
	chunk := mustCompile(t, `
	var a = 1;
	export var b = a < 5;
	export var c = 5 < a;
	export var d = a <= 5;
	export var e = 5 <= a;
	export var f = a > 5;
	export var g = 5 > a;
	export var h = a >= 5;
	export var i = 5 >= a;
	`)
	ops := opcodesIn(chunk.Root)
	require.Zero(t, ops[bytecode.OP_LT])
	require.Zero(t, ops[bytecode.OP_LE])
	require.Equal(t, 8, ops[bytecode.OP_LTI]+ops[bytecode.OP_LEI])
}

func TestCompileBinaryUsesLocalRegisterInPlaceForOperands(t *testing.T) {
	// Neither operand is a literal, so nothing folds; the local "a" should
	// still be read straight out of its own register rather than copied to
	// a temporary first, so a plain ADD with no preceding MOVE of "a" is the
	// whole story for this expression.
	chunk := mustCompile(t, `
	var a = 1;
	var b = 2;
	export var c = a + b;
	`)
	ops := opcodesIn(chunk.Root)
	require.Equal(t, 1, ops[bytecode.OP_ADD])
	require.Zero(t, ops[bytecode.OP_MOVE])
}

func TestCompileForInOverListDestructuresIndexAndValue(t *testing.T) {
	chunk := mustCompile(t, `
	var xs = [10, 20, 30];
	var sum = 0;
	for (i, v : xs) {
		sum = sum + v + i;
	}
	export var total = sum;
	`)
	ops := opcodesIn(chunk.Root)
	require.Equal(t, 2, ops[bytecode.OP_CALL]) // one autoiter coercion call, one per-iteration call
	require.NotZero(t, ops[bytecode.OP_TEST])
	require.NotZero(t, ops[bytecode.OP_GETINDEX])
}

func TestCompileForInSingleVariableOverMap(t *testing.T) {
	chunk := mustCompile(t, `
	var m = {"a": 1, "b": 2};
	for (v : m) {
		print(v);
	}
	`)
	require.NotEmpty(t, chunk.Root.Code)
}
