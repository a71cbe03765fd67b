package stdlib

import (
	"strings"

	"github.com/Xarvie/sptscript/internal/value"
	"github.com/Xarvie/sptscript/internal/vm"
)

func registerString(v *vm.VM) {
	v.RegisterNative("upper", 1, false, nativeUpper)
	v.RegisterNative("lower", 1, false, nativeLower)
	v.RegisterNative("trim", 1, false, nativeTrim)
	v.RegisterNative("split", 2, false, nativeSplit)
	v.RegisterNative("join", 2, false, nativeJoin)
	v.RegisterNative("contains", 2, false, nativeContains)
	v.RegisterNative("replace", 3, false, nativeReplace)
}

func nativeUpper(ctx value.NativeContext, args []value.Value) (value.Value, error) {
	s, err := wantString("upper", args, 0)
	if err != nil {
		return value.Nil(), err
	}
	return ctx.NewString(strings.ToUpper(s)), nil
}

func nativeLower(ctx value.NativeContext, args []value.Value) (value.Value, error) {
	s, err := wantString("lower", args, 0)
	if err != nil {
		return value.Nil(), err
	}
	return ctx.NewString(strings.ToLower(s)), nil
}

func nativeTrim(ctx value.NativeContext, args []value.Value) (value.Value, error) {
	s, err := wantString("trim", args, 0)
	if err != nil {
		return value.Nil(), err
	}
	return ctx.NewString(strings.TrimSpace(s)), nil
}

func nativeSplit(ctx value.NativeContext, args []value.Value) (value.Value, error) {
	s, err := wantString("split", args, 0)
	if err != nil {
		return value.Nil(), err
	}
	sep, err := wantString("split", args, 1)
	if err != nil {
		return value.Nil(), err
	}
	parts := strings.Split(s, sep)
	result := ctx.NewList(len(parts))
	list := result.AsListObj()
	for _, p := range parts {
		list.Elements = append(list.Elements, ctx.NewString(p))
	}
	return result, nil
}

func nativeJoin(ctx value.NativeContext, args []value.Value) (value.Value, error) {
	if len(args) != 2 || !args[0].IsList() {
		return value.Nil(), typeErr("join", "expects a list and a separator string")
	}
	sep, err := wantString("join", args, 1)
	if err != nil {
		return value.Nil(), err
	}
	list := args[0].AsListObj()
	parts := make([]string, len(list.Elements))
	for i, e := range list.Elements {
		parts[i] = e.String()
	}
	return ctx.NewString(strings.Join(parts, sep)), nil
}

func nativeContains(ctx value.NativeContext, args []value.Value) (value.Value, error) {
	s, err := wantString("contains", args, 0)
	if err != nil {
		return value.Nil(), err
	}
	sub, err := wantString("contains", args, 1)
	if err != nil {
		return value.Nil(), err
	}
	return value.Bool(strings.Contains(s, sub)), nil
}

func nativeReplace(ctx value.NativeContext, args []value.Value) (value.Value, error) {
	s, err := wantString("replace", args, 0)
	if err != nil {
		return value.Nil(), err
	}
	old, err := wantString("replace", args, 1)
	if err != nil {
		return value.Nil(), err
	}
	repl, err := wantString("replace", args, 2)
	if err != nil {
		return value.Nil(), err
	}
	return ctx.NewString(strings.ReplaceAll(s, old, repl)), nil
}
