package vm

import (
	splerrors "github.com/Xarvie/sptscript/internal/errors"
	"github.com/Xarvie/sptscript/internal/value"
)

// ensureStack grows the backing array so indices up to n-1 are addressable,
// never shrinking it: the stack's length is monotonically non-decreasing
// for the VM's lifetime, which is what lets a module's root frame read its
// result register back after run() returns (§3.3).
func (vm *VM) ensureStack(n int) {
	for len(vm.stack) < n {
		vm.stack = append(vm.stack, value.Nil())
	}
}

// pushClosureFrame binds call arguments already sitting at
// stack[calleeAbsReg+1:] into a fresh frame for cl and pushes it, per the
// Lua-SELF-style convention internal/compiler emits: the argument window
// (receiver + user args) becomes the callee's own register window with no
// copy, since newBase == calleeAbsReg+1 already points at it.
func (vm *VM) pushClosureFrame(cl *value.ClosureObj, calleeAbsReg, nargsProvided, resultReg, wantResults, line int) error {
	proto := cl.Proto
	newBase := calleeAbsReg + 1
	numParams := int(proto.NumParams) // includes the implicit receiver slot

	if proto.IsVararg {
		fixed := numParams - 1 // recv + named params, excluding the trailing rest slot
		if nargsProvided < fixed {
			return vm.runtimeErr(line, splerrors.CategoryArity, "function %q expects at least %d argument(s), got %d", proto.Name, fixed-1, nargsProvided-1)
		}
		vm.ensureStack(newBase + int(proto.MaxStackSize))
		restLen := nargsProvided - fixed
		rest := make([]value.Value, restLen)
		copy(rest, vm.stack[newBase+fixed:newBase+nargsProvided])
		restList := vm.AllocateList(restLen)
		restList.AsListObj().Elements = append(restList.AsListObj().Elements, rest...)
		vm.stack[newBase+fixed] = restList
		for i := numParams; i < int(proto.MaxStackSize); i++ {
			vm.stack[newBase+i] = value.Nil()
		}
	} else {
		if nargsProvided < numParams {
			return vm.runtimeErr(line, splerrors.CategoryArity, "function %q expects %d argument(s), got %d", proto.Name, numParams-1, nargsProvided-1)
		}
		if nargsProvided > numParams {
			return vm.runtimeErr(line, splerrors.CategoryArity, "function %q expects %d argument(s), got %d", proto.Name, numParams-1, nargsProvided-1)
		}
		vm.ensureStack(newBase + int(proto.MaxStackSize))
		for i := numParams; i < int(proto.MaxStackSize); i++ {
			vm.stack[newBase+i] = value.Nil()
		}
	}

	vm.frames = append(vm.frames, &frame{
		closure:     cl,
		base:        newBase,
		resultReg:   resultReg,
		wantResults: wantResults,
	})
	if newBase+int(proto.MaxStackSize) > vm.top {
		vm.top = newBase + int(proto.MaxStackSize)
	}
	return nil
}

// callNative invokes a NativeObj synchronously: natives never suspend the
// interpreter loop, so their result (or error) is available immediately.
func (vm *VM) callNative(n *value.NativeObj, calleeAbsReg, nargsProvided, resultReg, wantResults, line int) error {
	args := make([]value.Value, nargsProvided)
	copy(args, vm.stack[calleeAbsReg+1:calleeAbsReg+1+nargsProvided])
	result, err := n.Fn(vm, args)
	if err != nil {
		return splerrors.Wrap(err, "native %q", n.Name)
	}
	if wantResults >= 1 {
		vm.stack[resultReg] = result
		for i := 1; i < wantResults; i++ {
			vm.stack[resultReg+i] = value.Nil()
		}
	}
	return nil
}

// CallValue is the host-facing and NativeContext-facing entry point for
// invoking a callable sptscript value synchronously (§6): it runs a nested
// dispatch loop to completion and returns its single result.
func (vm *VM) CallValue(callee value.Value, args []value.Value) (value.Value, error) {
	switch {
	case callee.IsNative():
		return callee.AsNativeObj().Fn(vm, args)
	case callee.IsClosure():
		return vm.callClosureSync(callee.AsClosureObj(), args)
	default:
		return value.Value{}, vm.runtimeErr(0, splerrors.CategoryType, "attempt to call a %s value", callee.TypeName())
	}
}

// callClosureSync sets up a synthetic call window at the current stack top,
// pushes a frame for cl and runs the interpreter loop until that frame (and
// only that frame) returns.
func (vm *VM) callClosureSync(cl *value.ClosureObj, args []value.Value) (value.Value, error) {
	calleeAbsReg := vm.top
	vm.ensureStack(calleeAbsReg + 2 + len(args))
	vm.stack[calleeAbsReg] = value.FromObject(&cl.Object)
	vm.stack[calleeAbsReg+1] = value.Nil() // implicit receiver
	for i, a := range args {
		vm.stack[calleeAbsReg+2+i] = a
	}
	floor := len(vm.frames)
	if err := vm.pushClosureFrame(cl, calleeAbsReg, 1+len(args), calleeAbsReg, 1, 0); err != nil {
		return value.Value{}, err
	}
	return vm.run(floor)
}
