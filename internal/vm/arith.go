package vm

import (
	splerrors "github.com/Xarvie/sptscript/internal/errors"
	"github.com/Xarvie/sptscript/internal/value"
)

// arith implements ADD/SUB/MUL/DIV/IDIV/MOD (§4.5's arithmetic rules): int
// op int stays int (wrapping on ADD/SUB/MUL per §4.5's explicit overflow
// rule), any float operand promotes the whole operation to float, DIV
// always yields float, IDIV always yields a floor-divided int.
func (vm *VM) arith(op opKind, a, b value.Value, line int) (value.Value, error) {
	if !a.IsNumber() || !b.IsNumber() {
		return value.Value{}, vm.runtimeErr(line, splerrors.CategoryArithmetic,
			"attempt to perform arithmetic on a %s value", nonNumberOperand(a, b).TypeName())
	}
	bothInt := a.IsInt() && b.IsInt()
	switch op {
	case opAdd:
		if bothInt {
			return value.Int(a.AsInt() + b.AsInt()), nil
		}
		return value.Float(a.AsFloat64() + b.AsFloat64()), nil
	case opSub:
		if bothInt {
			return value.Int(a.AsInt() - b.AsInt()), nil
		}
		return value.Float(a.AsFloat64() - b.AsFloat64()), nil
	case opMul:
		if bothInt {
			return value.Int(a.AsInt() * b.AsInt()), nil
		}
		return value.Float(a.AsFloat64() * b.AsFloat64()), nil
	case opDiv:
		if b.AsFloat64() == 0 {
			return value.Value{}, vm.runtimeErr(line, splerrors.CategoryArithmetic, "division by zero")
		}
		return value.Float(a.AsFloat64() / b.AsFloat64()), nil
	case opIDiv:
		if !bothInt {
			return value.Value{}, vm.runtimeErr(line, splerrors.CategoryArithmetic, "integer division requires int operands")
		}
		if b.AsInt() == 0 {
			return value.Value{}, vm.runtimeErr(line, splerrors.CategoryArithmetic, "division by zero")
		}
		return value.Int(floorDivInt(a.AsInt(), b.AsInt())), nil
	case opMod:
		if bothInt {
			if b.AsInt() == 0 {
				return value.Value{}, vm.runtimeErr(line, splerrors.CategoryArithmetic, "modulo by zero")
			}
			return value.Int(floorModInt(a.AsInt(), b.AsInt())), nil
		}
		bf := b.AsFloat64()
		if bf == 0 {
			return value.Value{}, vm.runtimeErr(line, splerrors.CategoryArithmetic, "modulo by zero")
		}
		return value.Float(floorModFloat(a.AsFloat64(), bf)), nil
	}
	return value.Value{}, vm.runtimeErr(line, splerrors.CategoryArithmetic, "unknown arithmetic operator")
}

type opKind uint8

const (
	opAdd opKind = iota
	opSub
	opMul
	opDiv
	opIDiv
	opMod
)

func nonNumberOperand(a, b value.Value) value.Value {
	if !a.IsNumber() {
		return a
	}
	return b
}

// floorDivInt and floorModInt implement Euclidean-toward-negative-infinity
// division/modulo (§4.5: "MOD sign matches the divisor"), the same
// convention Lua and Python use and distinct from Go's truncating %.
func floorDivInt(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func floorModInt(a, b int64) int64 {
	m := a % b
	if m != 0 && (m < 0) != (b < 0) {
		m += b
	}
	return m
}

func floorModFloat(a, b float64) float64 {
	m := a - floorFloat(a/b)*b
	return m
}

func floorFloat(f float64) float64 {
	i := float64(int64(f))
	if f < 0 && i != f {
		i--
	}
	return i
}

// concat implements CONCAT/string-producing ADD (§4.5): at least one operand
// must already be a string; the other is stringified via Value.String's
// round-trip-safe rendering.
func (vm *VM) concat(a, b value.Value, line int) (value.Value, error) {
	if !a.IsString() && !b.IsString() {
		return value.Value{}, vm.runtimeErr(line, splerrors.CategoryType,
			"attempt to concatenate a %s value", nonStringOperand(a, b).TypeName())
	}
	return vm.AllocateString(a.String() + b.String()), nil
}

func nonStringOperand(a, b value.Value) value.Value {
	if !a.IsString() {
		return a
	}
	return b
}

// less and lessEqual implement LT/LE (§4.5): numeric comparison across
// int/float, lexicographic comparison for strings, a Type error otherwise.
func (vm *VM) less(a, b value.Value, line int) (bool, error) {
	switch {
	case a.IsNumber() && b.IsNumber():
		return a.AsFloat64() < b.AsFloat64(), nil
	case a.IsString() && b.IsString():
		return a.AsString() < b.AsString(), nil
	default:
		return false, vm.runtimeErr(line, splerrors.CategoryType, "attempt to compare %s with %s", a.TypeName(), b.TypeName())
	}
}

func (vm *VM) lessEqual(a, b value.Value, line int) (bool, error) {
	switch {
	case a.IsNumber() && b.IsNumber():
		return a.AsFloat64() <= b.AsFloat64(), nil
	case a.IsString() && b.IsString():
		return a.AsString() <= b.AsString(), nil
	default:
		return false, vm.runtimeErr(line, splerrors.CategoryType, "attempt to compare %s with %s", a.TypeName(), b.TypeName())
	}
}

// unm implements UNM (unary minus): negates an int or float in place.
func (vm *VM) unm(v value.Value, line int) (value.Value, error) {
	switch {
	case v.IsInt():
		return value.Int(-v.AsInt()), nil
	case v.IsFloat():
		return value.Float(-v.AsFloat()), nil
	default:
		return value.Value{}, vm.runtimeErr(line, splerrors.CategoryArithmetic, "attempt to negate a %s value", v.TypeName())
	}
}
