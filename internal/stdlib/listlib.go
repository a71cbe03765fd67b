package stdlib

import (
	"golang.org/x/exp/slices"

	"github.com/Xarvie/sptscript/internal/value"
	"github.com/Xarvie/sptscript/internal/vm"
)

func registerList(v *vm.VM) {
	v.RegisterNative("index_of", 2, false, nativeIndexOf)
	v.RegisterNative("list_contains", 2, false, nativeListContains)
	v.RegisterNative("reverse", 1, false, nativeReverse)
}

// nativeIndexOf and nativeListContains compare by the scalar value only
// (strings by content, numbers by value, bools, nil); any other element,
// such as a list or map, never matches, not even the same object.
func nativeIndexOf(ctx value.NativeContext, args []value.Value) (value.Value, error) {
	if len(args) != 2 || !args[0].IsList() {
		return value.Nil(), typeErr("index_of", "expects a list and a value")
	}
	list := args[0].AsListObj()
	idx := slices.IndexFunc(list.Elements, func(e value.Value) bool {
		return scalarEqual(e, args[1])
	})
	return value.Int(int64(idx)), nil
}

func nativeListContains(ctx value.NativeContext, args []value.Value) (value.Value, error) {
	if len(args) != 2 || !args[0].IsList() {
		return value.Nil(), typeErr("list_contains", "expects a list and a value")
	}
	list := args[0].AsListObj()
	found := slices.ContainsFunc(list.Elements, func(e value.Value) bool {
		return scalarEqual(e, args[1])
	})
	return value.Bool(found), nil
}

func nativeReverse(ctx value.NativeContext, args []value.Value) (value.Value, error) {
	if len(args) != 1 || !args[0].IsList() {
		return value.Nil(), typeErr("reverse", "expects a list argument")
	}
	list := args[0].AsListObj()
	slices.Reverse(list.Elements)
	return args[0], nil
}

func scalarEqual(a, b value.Value) bool {
	switch {
	case a.IsString() && b.IsString():
		return a.AsString() == b.AsString()
	case a.IsNumber() && b.IsNumber():
		return a.AsFloat64() == b.AsFloat64()
	case a.IsBool() && b.IsBool():
		return a.AsBool() == b.AsBool()
	case a.IsNil() && b.IsNil():
		return true
	default:
		return false
	}
}
