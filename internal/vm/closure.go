package vm

import (
	"github.com/Xarvie/sptscript/internal/bytecode"
	"github.com/Xarvie/sptscript/internal/value"
)

// makeClosure builds a closure over proto, resolving each of its
// UpvalueDesc entries against the currently executing frame (§4.4): a
// local capture opens (or reuses) an upvalue onto that frame's register
// window, an upvalue capture copies the parent closure's own upvalue
// pointer. OP_CLOSURE and OP_NEWCLASS's per-method instantiation both
// funnel through this one implementation, because NEWCLASS's method
// prototypes are lexically parented to the class-declaring function itself
// (internal/compiler never "executes" the synthetic class-body prototype).
func (vm *VM) makeClosure(proto *bytecode.Prototype, f *frame) *value.ClosureObj {
	cl := vm.AllocateClosure(proto)
	for i, uv := range proto.Upvalues {
		if uv.IsLocal {
			cl.Upvalues[i] = vm.findOrCreateUpvalue(f.base + int(uv.Index))
		} else {
			cl.Upvalues[i] = f.closure.Upvalues[uv.Index]
		}
	}
	return cl
}

// findOrCreateUpvalue returns the open upvalue already aliasing stack index
// idx, or creates one. Open upvalues are kept in a flat, unsorted list; the
// VM's open-upvalue population is small enough (bounded by live nested
// closures) that a linear scan is simpler than Lua's sorted-list approach
// and does not need to be fast.
func (vm *VM) findOrCreateUpvalue(idx int) *value.UpvalueObj {
	for _, uv := range vm.openUpvalues {
		if uv.IsOpen() && uv.Index == idx {
			return uv
		}
	}
	uv := value.NewOpenUpvalue(&vm.stack, idx)
	vm.openUpvalues = append(vm.openUpvalues, uv)
	return uv
}

// closeUpvaluesFrom closes every open upvalue aliasing a stack slot >= from
// (§4.4: a frame pop or scope exit closes the upvalues captured out of the
// registers going out of scope), copying each one's current value out of
// the stack before it can be reused by the next frame/local.
func (vm *VM) closeUpvaluesFrom(from int) {
	kept := vm.openUpvalues[:0]
	for _, uv := range vm.openUpvalues {
		if uv.IsOpen() && uv.Index >= from {
			uv.Close()
		} else {
			kept = append(kept, uv)
		}
	}
	vm.openUpvalues = kept
}
