package vm_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Xarvie/sptscript/internal/compiler"
	"github.com/Xarvie/sptscript/internal/parser"
	"github.com/Xarvie/sptscript/internal/stdlib"
	"github.com/Xarvie/sptscript/internal/vm"
)

func TestArithmeticAndExport(t *testing.T) {
	prog, perrs := parser.ParseSource(`export var total = 1 + 2 * 3;`, "t.spt")
	require.Empty(t, perrs)
	c := compiler.New()
	chunk, cerrs := c.CompileModule(prog, "t", `export var total = 1 + 2 * 3;`)
	require.Empty(t, cerrs)

	v := vm.New()
	stdlib.Register(v)
	env, err := v.ExecuteChunk(chunk.Root)
	require.NoError(t, err)
	require.True(t, env.IsMap())

	total, ok := env.AsMapObj().Get(v.AllocateString("total"))
	require.True(t, ok)
	require.True(t, total.IsInt())
	require.Equal(t, int64(7), total.AsInt())
}

func TestStringConcatenationViaPlus(t *testing.T) {
	src := `export var greeting = "hello " + "world";`
	prog, perrs := parser.ParseSource(src, "t.spt")
	require.Empty(t, perrs)
	c := compiler.New()
	chunk, cerrs := c.CompileModule(prog, "t", src)
	require.Empty(t, cerrs)

	v := vm.New()
	stdlib.Register(v)
	env, err := v.ExecuteChunk(chunk.Root)
	require.NoError(t, err)

	greeting, ok := env.AsMapObj().Get(v.AllocateString("greeting"))
	require.True(t, ok)
	require.Equal(t, "hello world", greeting.AsString())
}

func TestPrintNativeReachesHostHandler(t *testing.T) {
	src := `print("ping");`
	prog, perrs := parser.ParseSource(src, "t.spt")
	require.Empty(t, perrs)
	c := compiler.New()
	chunk, cerrs := c.CompileModule(prog, "t", src)
	require.Empty(t, cerrs)

	v := vm.New()
	stdlib.Register(v)
	var captured []string
	v.SetPrintHandler(func(s string) { captured = append(captured, s) })

	_, err := v.ExecuteChunk(chunk.Root)
	require.NoError(t, err)
	require.Equal(t, []string{"ping"}, captured)
}

func TestClassInstantiationAndMethodInvoke(t *testing.T) {
	src := `
	class Counter {
		int n = 0;
		int bump() {
			this.n = this.n + 1;
			return this.n;
		}
	}
	var c = new Counter();
	export var first = c.bump();
	export var second = c.bump();
	`
	prog, perrs := parser.ParseSource(src, "t.spt")
	require.Empty(t, perrs)
	comp := compiler.New()
	chunk, cerrs := comp.CompileModule(prog, "t", src)
	require.Empty(t, cerrs)

	v := vm.New()
	stdlib.Register(v)
	env, err := v.ExecuteChunk(chunk.Root)
	require.NoError(t, err)

	first, ok := env.AsMapObj().Get(v.AllocateString("first"))
	require.True(t, ok)
	require.Equal(t, int64(1), first.AsInt())

	second, ok := env.AsMapObj().Get(v.AllocateString("second"))
	require.True(t, ok)
	require.Equal(t, int64(2), second.AsInt())
}

func TestRuntimeErrorInvokesErrorHandler(t *testing.T) {
	src := `export var x = undefinedFunc();`
	prog, perrs := parser.ParseSource(src, "t.spt")
	require.Empty(t, perrs)
	comp := compiler.New()
	chunk, cerrs := comp.CompileModule(prog, "t", src)
	require.Empty(t, cerrs)

	v := vm.New()
	stdlib.Register(v)
	var reported string
	v.SetErrorHandler(func(message string, line int) { reported = message })

	_, err := v.ExecuteChunk(chunk.Root)
	require.Error(t, err)
	require.NotEmpty(t, reported)
}
