package stdlib

import (
	"strconv"

	"github.com/Xarvie/sptscript/internal/value"
	"github.com/Xarvie/sptscript/internal/vm"
)

func registerCore(v *vm.VM) {
	v.RegisterNative("print", 0, true, nativePrint)
	v.RegisterNative("len", 1, false, nativeLen)
	v.RegisterNative("type", 1, false, nativeType)
	v.RegisterNative("str", 1, false, nativeStr)
	v.RegisterNative("num", 1, false, nativeNum)
}

func nativePrint(ctx value.NativeContext, args []value.Value) (value.Value, error) {
	out := ""
	for i, a := range args {
		if i > 0 {
			out += " "
		}
		out += a.String()
	}
	ctx.Print(out)
	return value.Nil(), nil
}

func nativeLen(ctx value.NativeContext, args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.Nil(), argErr("len", "expects exactly one argument")
	}
	a := args[0]
	switch {
	case a.IsString():
		return value.Int(int64(len(a.AsString()))), nil
	case a.IsList():
		return value.Int(int64(len(a.AsListObj().Elements))), nil
	case a.IsMap():
		return value.Int(int64(a.AsMapObj().Len())), nil
	default:
		return value.Nil(), typeErr("len", "cannot take the length of a %s", a.TypeName())
	}
}

func nativeType(ctx value.NativeContext, args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.Nil(), argErr("type", "expects exactly one argument")
	}
	return ctx.NewString(args[0].TypeName()), nil
}

func nativeStr(ctx value.NativeContext, args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.Nil(), argErr("str", "expects exactly one argument")
	}
	return ctx.NewString(args[0].String()), nil
}

func nativeNum(ctx value.NativeContext, args []value.Value) (value.Value, error) {
	s, err := wantString("num", args, 0)
	if err != nil {
		return value.Nil(), err
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return value.Int(i), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return value.Nil(), typeErr("num", "%q is not a number", s)
	}
	return value.Float(f), nil
}
