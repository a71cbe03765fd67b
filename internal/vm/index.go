package vm

import (
	"github.com/Xarvie/sptscript/internal/bytecode"
	splerrors "github.com/Xarvie/sptscript/internal/errors"
	"github.com/Xarvie/sptscript/internal/value"
)

// getIndex implements GETINDEX/GETFIELD's generic dispatch (§3.2, §4.5):
// lists index by int, maps by any key, instances resolve a field then fall
// back to the owning class's method table, modules resolve an export name,
// classes resolve a static/method name directly.
func (vm *VM) getIndex(obj, key value.Value, line int) (value.Value, error) {
	switch {
	case obj.IsList():
		if !key.IsInt() {
			return value.Value{}, vm.runtimeErr(line, splerrors.CategoryType, "list index must be an int, got %s", key.TypeName())
		}
		l := obj.AsListObj()
		i := key.AsInt()
		if i < 0 || i >= int64(len(l.Elements)) {
			return value.Value{}, vm.runtimeErr(line, splerrors.CategoryIndex, "list index %d out of range (len %d)", i, len(l.Elements))
		}
		return l.Elements[i], nil

	case obj.IsMap():
		v, ok := obj.AsMapObj().Get(key)
		if !ok {
			return value.Nil(), nil
		}
		return v, nil

	case obj.IsString():
		if !key.IsInt() {
			return value.Value{}, vm.runtimeErr(line, splerrors.CategoryType, "string index must be an int, got %s", key.TypeName())
		}
		s := obj.AsString()
		i := key.AsInt()
		if i < 0 || i >= int64(len(s)) {
			return value.Value{}, vm.runtimeErr(line, splerrors.CategoryIndex, "string index %d out of range (len %d)", i, len(s))
		}
		return vm.AllocateString(string(s[i])), nil

	case obj.IsInstance():
		if !key.IsString() {
			return value.Value{}, vm.runtimeErr(line, splerrors.CategoryType, "instance field name must be a string, got %s", key.TypeName())
		}
		inst := obj.AsInstanceObj()
		name := key.AsString()
		if v, ok := inst.Fields[name]; ok {
			return v, nil
		}
		if m, ok := inst.Class.ResolveMethod(name); ok {
			return m, nil
		}
		return value.Nil(), nil

	case obj.IsClass():
		if !key.IsString() {
			return value.Value{}, vm.runtimeErr(line, splerrors.CategoryType, "class member name must be a string, got %s", key.TypeName())
		}
		cls := obj.AsClassObj()
		name := key.AsString()
		if m, ok := cls.ResolveMethod(name); ok {
			return m, nil
		}
		return value.Nil(), nil

	case obj.IsModule():
		if !key.IsString() {
			return value.Value{}, vm.runtimeErr(line, splerrors.CategoryType, "module export name must be a string, got %s", key.TypeName())
		}
		mod := obj.AsModuleObj()
		name := key.AsString()
		if mod.Exports != nil {
			if v, ok := mod.Exports.Get(key); ok {
				return v, nil
			}
		}
		return value.Value{}, vm.runtimeErr(line, splerrors.CategoryModule, "module %q has no export %q", mod.Name, name)

	default:
		return value.Value{}, vm.runtimeErr(line, splerrors.CategoryType, "attempt to index a %s value", obj.TypeName())
	}
}

// setIndex implements SETINDEX/SETFIELD's generic dispatch.
func (vm *VM) setIndex(obj, key, val value.Value, line int) error {
	switch {
	case obj.IsList():
		if !key.IsInt() {
			return vm.runtimeErr(line, splerrors.CategoryType, "list index must be an int, got %s", key.TypeName())
		}
		l := obj.AsListObj()
		i := key.AsInt()
		switch {
		case i >= 0 && i < int64(len(l.Elements)):
			l.Elements[i] = val
		case i == int64(len(l.Elements)):
			l.Elements = append(l.Elements, val)
		default:
			return vm.runtimeErr(line, splerrors.CategoryIndex, "list index %d out of range (len %d)", i, len(l.Elements))
		}
		return nil

	case obj.IsMap():
		obj.AsMapObj().Put(key, val)
		return nil

	case obj.IsInstance():
		if !key.IsString() {
			return vm.runtimeErr(line, splerrors.CategoryType, "instance field name must be a string, got %s", key.TypeName())
		}
		obj.AsInstanceObj().Fields[key.AsString()] = val
		return nil

	case obj.IsModule():
		return vm.runtimeErr(line, splerrors.CategoryType, "module exports are read-only")

	case obj.IsClass():
		return vm.runtimeErr(line, splerrors.CategoryType, "class members are read-only outside a method body")

	default:
		return vm.runtimeErr(line, splerrors.CategoryType, "attempt to index a %s value", obj.TypeName())
	}
}

// constString fetches a ConstString constant by index for GETFIELD/SETFIELD
// (§4.5): these reserved fast-path opcodes address their field name
// directly in the instruction's 8-bit operand rather than through a
// register holding a pre-loaded string constant, so they only address the
// first 256 entries of a prototype's constant pool. internal/compiler never
// emits them yet (constants never need to be addressed this way given
// GETINDEX/SETINDEX already cover every case); they stay fully implemented
// for a future peephole pass that collapses "LOADK + GETINDEX" pairs.
func constString(proto *bytecode.Prototype, idx uint8, line int, vm *VM) (string, error) {
	if int(idx) >= len(proto.Constants) || proto.Constants[idx].Kind != bytecode.ConstString {
		return "", vm.runtimeErr(line, splerrors.CategoryType, "GETFIELD/SETFIELD constant %d is not a string", idx)
	}
	return proto.Constants[idx].S, nil
}

// resolveMethod implements OP_INVOKE's receiver-side lookup (§4.5): a
// callable instance field shadows the class method table, which in turn
// walks the superclass chain; modules resolve an exported function by name;
// classes resolve a static method directly; maps allow dot-call sugar over
// a callable entry. found is false, with a nil error, when the receiver
// type supports method lookup but simply has no such member — the caller
// decides whether that is itself an error (OP_INVOKE special-cases a
// missing "__init").
func (vm *VM) resolveMethod(obj value.Value, name string, line int) (value.Value, bool, error) {
	switch {
	case obj.IsInstance():
		inst := obj.AsInstanceObj()
		if v, ok := inst.Fields[name]; ok && v.IsCallable() {
			return v, true, nil
		}
		if m, ok := inst.Class.ResolveMethod(name); ok {
			return m, true, nil
		}
		return value.Nil(), false, nil
	case obj.IsClass():
		if m, ok := obj.AsClassObj().ResolveMethod(name); ok {
			return m, true, nil
		}
		return value.Nil(), false, nil
	case obj.IsModule():
		mod := obj.AsModuleObj()
		if mod.Exports != nil {
			if v, ok := mod.Exports.Get(vm.AllocateString(name)); ok {
				return v, true, nil
			}
		}
		return value.Nil(), false, nil
	case obj.IsMap():
		if v, ok := obj.AsMapObj().Get(vm.AllocateString(name)); ok {
			return v, true, nil
		}
		return value.Nil(), false, nil
	default:
		return value.Nil(), false, vm.runtimeErr(line, splerrors.CategoryType, "attempt to invoke a method on a %s value", obj.TypeName())
	}
}

// callIterator advances it one step for foreach's per-iteration CALL
// (§4.3). The result is nil once exhausted, or a freshly allocated
// two-element [key, value] list otherwise; the compiler tests this lone
// CALL result for truthiness before ever indexing into it ("checks whether
// the first result is falsy"), and only then destructures the pair for a
// two-variable foreach or takes index 1 alone for a single-variable one. A
// user-supplied iterator closure used directly (bypassing newIterator) is
// expected to follow the same [key, value]-or-nil convention.
func (vm *VM) callIterator(it *value.IteratorObj, resultReg, wantResults int) {
	key, val, ok := it.Next()
	result := value.Nil()
	if ok {
		pair := vm.AllocateList(2)
		pair.AsListObj().Elements = append(pair.AsListObj().Elements, key, val)
		result = pair
	}
	if wantResults >= 1 {
		vm.stack[resultReg] = result
		for i := 1; i < wantResults; i++ {
			vm.stack[resultReg+i] = value.Nil()
		}
	}
}

// newIterator snapshots the keys a foreach loop walks over (§4.3): list
// indices 0..len-1 in order, or a map's current key set in iteration order.
// Anything already callable (a closure, native, or another iterator) never
// reaches here — registerAutoIter returns it unchanged — so the Type error
// below only fires for genuinely non-iterable values.
func (vm *VM) newIterator(coll value.Value, line int) (*value.IteratorObj, error) {
	switch {
	case coll.IsList():
		l := coll.AsListObj()
		keys := make([]value.Value, len(l.Elements))
		for i := range l.Elements {
			keys[i] = value.Int(int64(i))
		}
		return vm.allocateIterator(coll, keys), nil
	case coll.IsMap():
		m := coll.AsMapObj()
		keys := make([]value.Value, 0, m.Len())
		m.Iter(func(k, _ value.Value) bool {
			keys = append(keys, k)
			return true
		})
		return vm.allocateIterator(coll, keys), nil
	default:
		return nil, vm.runtimeErr(line, splerrors.CategoryType, "attempt to iterate a %s value", coll.TypeName())
	}
}
