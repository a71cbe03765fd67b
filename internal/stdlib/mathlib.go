package stdlib

import (
	"math"
	"sort"

	"github.com/Xarvie/sptscript/internal/value"
	"github.com/Xarvie/sptscript/internal/vm"
)

func registerMath(v *vm.VM) {
	v.RegisterNative("sqrt", 1, false, nativeSqrt)
	v.RegisterNative("abs", 1, false, nativeAbs)
	v.RegisterNative("floor", 1, false, nativeFloor)
	v.RegisterNative("ceil", 1, false, nativeCeil)
	v.RegisterNative("round", 1, false, nativeRound)
	v.RegisterNative("pow", 2, false, nativePow)
	v.RegisterNative("min", 2, false, nativeMin)
	v.RegisterNative("max", 2, false, nativeMax)
	v.RegisterNative("sort", 1, false, nativeSort)
}

func nativeSqrt(ctx value.NativeContext, args []value.Value) (value.Value, error) {
	f, err := wantFloat("sqrt", args, 0)
	if err != nil {
		return value.Nil(), err
	}
	return value.Float(math.Sqrt(f)), nil
}

func nativeAbs(ctx value.NativeContext, args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.Nil(), argErr("abs", "expects exactly one argument")
	}
	if args[0].IsInt() {
		n := args[0].AsInt()
		if n < 0 {
			n = -n
		}
		return value.Int(n), nil
	}
	f, err := wantFloat("abs", args, 0)
	if err != nil {
		return value.Nil(), err
	}
	return value.Float(math.Abs(f)), nil
}

func nativeFloor(ctx value.NativeContext, args []value.Value) (value.Value, error) {
	f, err := wantFloat("floor", args, 0)
	if err != nil {
		return value.Nil(), err
	}
	return value.Float(math.Floor(f)), nil
}

func nativeCeil(ctx value.NativeContext, args []value.Value) (value.Value, error) {
	f, err := wantFloat("ceil", args, 0)
	if err != nil {
		return value.Nil(), err
	}
	return value.Float(math.Ceil(f)), nil
}

func nativeRound(ctx value.NativeContext, args []value.Value) (value.Value, error) {
	f, err := wantFloat("round", args, 0)
	if err != nil {
		return value.Nil(), err
	}
	return value.Float(math.Round(f)), nil
}

func nativePow(ctx value.NativeContext, args []value.Value) (value.Value, error) {
	base, err := wantFloat("pow", args, 0)
	if err != nil {
		return value.Nil(), err
	}
	exp, err := wantFloat("pow", args, 1)
	if err != nil {
		return value.Nil(), err
	}
	return value.Float(math.Pow(base, exp)), nil
}

func nativeMin(ctx value.NativeContext, args []value.Value) (value.Value, error) {
	a, err := wantFloat("min", args, 0)
	if err != nil {
		return value.Nil(), err
	}
	b, err := wantFloat("min", args, 1)
	if err != nil {
		return value.Nil(), err
	}
	if a <= b {
		return args[0], nil
	}
	return args[1], nil
}

func nativeMax(ctx value.NativeContext, args []value.Value) (value.Value, error) {
	a, err := wantFloat("max", args, 0)
	if err != nil {
		return value.Nil(), err
	}
	b, err := wantFloat("max", args, 1)
	if err != nil {
		return value.Nil(), err
	}
	if a >= b {
		return args[0], nil
	}
	return args[1], nil
}

// nativeSort sorts a list of numbers or strings in place and returns it.
func nativeSort(ctx value.NativeContext, args []value.Value) (value.Value, error) {
	if len(args) != 1 || !args[0].IsList() {
		return value.Nil(), typeErr("sort", "expects a list argument")
	}
	list := args[0].AsListObj()
	sort.Slice(list.Elements, func(i, j int) bool {
		a, b := list.Elements[i], list.Elements[j]
		if a.IsString() && b.IsString() {
			return a.AsString() < b.AsString()
		}
		return a.AsFloat64() < b.AsFloat64()
	})
	return args[0], nil
}
