// Package stdlib registers the natives a host exposes to every script
// through vm.VM.RegisterNative (§6, §11): core utilities, string/math
// helpers, UUIDs, human-readable formatting, Ed25519-backed signing, SQL
// database access and WebSocket transport. Register is the single entry
// point a CLI or embedder calls once per VM, before any chunk executes, so
// the §4.3 env-seeding mechanism picks every one of these up.
package stdlib

import (
	splerrors "github.com/Xarvie/sptscript/internal/errors"
	"github.com/Xarvie/sptscript/internal/value"
	"github.com/Xarvie/sptscript/internal/vm"
)

// Register installs the full standard library on v.
func Register(v *vm.VM) {
	registerCore(v)
	registerString(v)
	registerMath(v)
	registerList(v)
	registerUUID(v)
	registerHumanize(v)
	registerCrypto(v)
	registerDB(v)
	registerNet(v)
}

func argErr(name string, format string, args ...interface{}) error {
	return splerrors.NewRuntimeError(splerrors.CategoryArity, 0, name+": "+format, args...)
}

func typeErr(name string, format string, args ...interface{}) error {
	return splerrors.NewRuntimeError(splerrors.CategoryType, 0, name+": "+format, args...)
}

func wantString(name string, args []value.Value, i int) (string, error) {
	if i >= len(args) {
		return "", argErr(name, "expected a string argument at position %d", i)
	}
	if !args[i].IsString() {
		return "", typeErr(name, "argument %d must be a string, got %s", i, args[i].TypeName())
	}
	return args[i].AsString(), nil
}

func wantInt(name string, args []value.Value, i int) (int64, error) {
	if i >= len(args) {
		return 0, argErr(name, "expected a number argument at position %d", i)
	}
	if !args[i].IsNumber() {
		return 0, typeErr(name, "argument %d must be a number, got %s", i, args[i].TypeName())
	}
	if args[i].IsInt() {
		return args[i].AsInt(), nil
	}
	return int64(args[i].AsFloat()), nil
}

func wantFloat(name string, args []value.Value, i int) (float64, error) {
	if i >= len(args) {
		return 0, argErr(name, "expected a number argument at position %d", i)
	}
	if !args[i].IsNumber() {
		return 0, typeErr(name, "argument %d must be a number, got %s", i, args[i].TypeName())
	}
	return args[i].AsFloat64(), nil
}

// moduleTable is the small helper every namespaced native group (db, crypto,
// net, humanize, §11) uses to expose a set of functions as `name.member(...)`
// from script code: a Map global holding NativeObj values under string keys,
// since the module environment only ever resolves a bare identifier, never
// a dotted path, directly.
type moduleTable struct {
	v *vm.VM
	m *value.MapObj
}

func newModuleTable(v *vm.VM, name string) *moduleTable {
	mv := v.AllocateMap(4)
	v.SetGlobal(name, mv)
	return &moduleTable{v: v, m: mv.AsMapObj()}
}

func (t *moduleTable) fn(name string, arity int, variadic bool, fn value.NativeFn) {
	native := value.NewNative(name, arity, variadic, fn)
	t.m.Put(t.v.AllocateString(name), value.FromObject(&native.Object))
}
