package vm

import (
	"github.com/Xarvie/sptscript/internal/bytecode"
	splerrors "github.com/Xarvie/sptscript/internal/errors"
	"github.com/Xarvie/sptscript/internal/value"
)

// ExecuteChunk runs a freshly compiled/loaded module's root prototype
// (§4.7) and returns its __env table (register 0 of the root frame, per
// internal/compiler's envName convention) as the module's public surface.
// The root prototype's trailing RETURN always reports zero results — there
// is no sptscript caller waiting on it — so the result comes from reading
// the root frame's register 0 directly rather than from run()'s return
// value.
func (vm *VM) ExecuteChunk(proto *bytecode.Prototype) (value.Value, error) {
	cl := vm.AllocateClosure(proto)
	rootBase := len(vm.stack)
	vm.ensureStack(rootBase + int(proto.MaxStackSize))
	if rootBase+int(proto.MaxStackSize) > vm.top {
		vm.top = rootBase + int(proto.MaxStackSize)
	}
	floor := len(vm.frames)
	vm.frames = append(vm.frames, &frame{closure: cl, base: rootBase})

	_, err := vm.run(floor)
	if err != nil {
		vm.errorHandler(err.Error(), 0)
		return value.Value{}, err
	}
	return vm.stack[rootBase], nil
}

// run executes instructions until the frame stack drops back to floor
// (the frame that was on top when run was entered has returned), returning
// that frame's reported result. A RuntimeError unwinds every frame above
// floor — closing upvalues and running defers at each level — before being
// returned to the caller.
func (vm *VM) run(floor int) (value.Value, error) {
	for {
		f := vm.frames[len(vm.frames)-1]
		proto := f.closure.Proto
		if f.ip >= len(proto.Code) {
			return value.Nil(), vm.runtimeErr(0, splerrors.CategoryType, "instruction pointer ran off the end of %q", proto.Name)
		}
		instr := proto.Code[f.ip]
		line := int(proto.Lines[f.ip])
		f.ip++
		op := instr.OpCode()

		result, done, err := vm.step(f, proto, instr, op, line)
		if err != nil {
			return value.Nil(), vm.unwindToFloor(floor, err)
		}
		if done {
			if len(vm.frames) <= floor {
				return result, nil
			}
			continue
		}
	}
}

// unwindToFloor propagates a RuntimeError up through every frame above
// floor (§7): each frame still on the stack runs its pending defers and
// closes its open upvalues before being discarded, exactly like a normal
// return, just without ever resuming its caller's execution.
func (vm *VM) unwindToFloor(floor int, err error) error {
	for len(vm.frames) > floor {
		top := vm.frames[len(vm.frames)-1]
		if unwErr := vm.unwindFrame(top, err); unwErr != nil {
			err = unwErr
		}
		vm.frames = vm.frames[:len(vm.frames)-1]
	}
	return err
}

// unwindFrame runs f's pending defers and closes its open upvalues before
// it is popped (§4.3/§4.4: both normal return and error unwind share this
// discipline). Only a defer's own error can override unwindFrame's return;
// originalErr is otherwise returned unchanged by the caller.
func (vm *VM) unwindFrame(f *frame, originalErr error) error {
	var deferErr error
	for i := len(f.defers) - 1; i >= 0; i-- {
		if _, err := vm.CallValue(value.FromObject(&f.defers[i].Object), nil); err != nil {
			deferErr = err
		}
	}
	vm.closeUpvaluesFrom(f.base)
	if deferErr != nil {
		return deferErr
	}
	return originalErr
}

// step executes a single instruction for frame f. It returns (result, true,
// nil) when f just returned (its caller, if any, has already been given the
// result register); (zero, false, nil) to keep running; or (_, _, err) on a
// RuntimeError.
func (vm *VM) step(f *frame, proto *bytecode.Prototype, instr bytecode.Instruction, op bytecode.OpCode, line int) (value.Value, bool, error) {
	base := f.base
	R := func(i uint8) value.Value { return vm.stack[base+int(i)] }
	setR := func(i uint8, v value.Value) { vm.stack[base+int(i)] = v }
	K := func(idx uint16) bytecode.Constant { return proto.Constants[idx] }

	switch op {
	case bytecode.OP_MOVE:
		setR(instr.A(), R(instr.B()))

	case bytecode.OP_LOADK:
		setR(instr.A(), vm.constantToValue(K(instr.Bx())))

	case bytecode.OP_LOADBOOL:
		setR(instr.A(), value.Bool(instr.B() != 0))

	case bytecode.OP_LOADNIL:
		n := int(instr.Bx())
		if n < 1 {
			n = 1
		}
		for i := 0; i < n; i++ {
			setR(instr.A()+uint8(i), value.Nil())
		}

	case bytecode.OP_GETFIELD:
		name, err := constString(proto, instr.C(), line, vm)
		if err != nil {
			return value.Value{}, false, err
		}
		v, err := vm.getIndex(R(instr.B()), vm.AllocateString(name), line)
		if err != nil {
			return value.Value{}, false, err
		}
		setR(instr.A(), v)

	case bytecode.OP_SETFIELD:
		name, err := constString(proto, instr.B(), line, vm)
		if err != nil {
			return value.Value{}, false, err
		}
		if err := vm.setIndex(R(instr.A()), vm.AllocateString(name), R(instr.C()), line); err != nil {
			return value.Value{}, false, err
		}

	case bytecode.OP_GETINDEX:
		v, err := vm.getIndex(R(instr.B()), R(instr.C()), line)
		if err != nil {
			return value.Value{}, false, err
		}
		setR(instr.A(), v)

	case bytecode.OP_SETINDEX:
		if err := vm.setIndex(R(instr.A()), R(instr.B()), R(instr.C()), line); err != nil {
			return value.Value{}, false, err
		}

	case bytecode.OP_GETUPVAL:
		setR(instr.A(), f.closure.Upvalues[instr.B()].Get())

	case bytecode.OP_SETUPVAL:
		f.closure.Upvalues[instr.B()].Set(R(instr.A()))

	case bytecode.OP_ADD:
		a, b := R(instr.B()), R(instr.C())
		var v value.Value
		var err error
		if a.IsString() || b.IsString() {
			v, err = vm.concat(a, b, line)
		} else {
			v, err = vm.arith(opAdd, a, b, line)
		}
		if err != nil {
			return value.Value{}, false, err
		}
		setR(instr.A(), v)

	case bytecode.OP_SUB:
		v, err := vm.arith(opSub, R(instr.B()), R(instr.C()), line)
		if err != nil {
			return value.Value{}, false, err
		}
		setR(instr.A(), v)

	case bytecode.OP_MUL:
		v, err := vm.arith(opMul, R(instr.B()), R(instr.C()), line)
		if err != nil {
			return value.Value{}, false, err
		}
		setR(instr.A(), v)

	case bytecode.OP_DIV:
		v, err := vm.arith(opDiv, R(instr.B()), R(instr.C()), line)
		if err != nil {
			return value.Value{}, false, err
		}
		setR(instr.A(), v)

	case bytecode.OP_IDIV:
		v, err := vm.arith(opIDiv, R(instr.B()), R(instr.C()), line)
		if err != nil {
			return value.Value{}, false, err
		}
		setR(instr.A(), v)

	case bytecode.OP_MOD:
		v, err := vm.arith(opMod, R(instr.B()), R(instr.C()), line)
		if err != nil {
			return value.Value{}, false, err
		}
		setR(instr.A(), v)

	case bytecode.OP_CONCAT:
		v, err := vm.concat(R(instr.B()), R(instr.C()), line)
		if err != nil {
			return value.Value{}, false, err
		}
		setR(instr.A(), v)

	case bytecode.OP_UNM:
		v, err := vm.unm(R(instr.B()), line)
		if err != nil {
			return value.Value{}, false, err
		}
		setR(instr.A(), v)

	case bytecode.OP_ADDI:
		a := R(instr.B())
		imm := int64(int8(instr.C()))
		if !a.IsNumber() {
			return value.Value{}, false, vm.runtimeErr(line, splerrors.CategoryArithmetic, "attempt to perform arithmetic on a %s value", a.TypeName())
		}
		if a.IsInt() {
			setR(instr.A(), value.Int(a.AsInt()+imm))
		} else {
			setR(instr.A(), value.Float(a.AsFloat()+float64(imm)))
		}

	case bytecode.OP_EQ:
		setR(instr.A(), value.Bool(value.Equal(R(instr.B()), R(instr.C()))))

	case bytecode.OP_LT:
		ok, err := vm.less(R(instr.B()), R(instr.C()), line)
		if err != nil {
			return value.Value{}, false, err
		}
		setR(instr.A(), value.Bool(ok))

	case bytecode.OP_LE:
		ok, err := vm.lessEqual(R(instr.B()), R(instr.C()), line)
		if err != nil {
			return value.Value{}, false, err
		}
		setR(instr.A(), value.Bool(ok))

	case bytecode.OP_EQI:
		a := R(instr.B())
		imm := int64(int8(instr.C()))
		setR(instr.A(), value.Bool(a.IsInt() && a.AsInt() == imm))

	case bytecode.OP_EQK:
		a := R(instr.B())
		k := vm.constantToValue(K(uint16(instr.C())))
		setR(instr.A(), value.Bool(value.Equal(a, k)))

	case bytecode.OP_LTI:
		a := R(instr.B())
		imm := int64(int8(instr.C()))
		if !a.IsNumber() {
			return value.Value{}, false, vm.runtimeErr(line, splerrors.CategoryType, "attempt to compare %s with int", a.TypeName())
		}
		setR(instr.A(), value.Bool(a.AsFloat64() < float64(imm)))

	case bytecode.OP_LEI:
		a := R(instr.B())
		imm := int64(int8(instr.C()))
		if !a.IsNumber() {
			return value.Value{}, false, vm.runtimeErr(line, splerrors.CategoryType, "attempt to compare %s with int", a.TypeName())
		}
		setR(instr.A(), value.Bool(a.AsFloat64() <= float64(imm)))

	case bytecode.OP_TEST:
		truthy := R(instr.A()).Truthy()
		want := instr.C() != 0
		if truthy != want {
			f.ip++
		}

	case bytecode.OP_JMP:
		f.ip += int(instr.SBx())

	case bytecode.OP_CALL:
		calleeAbsReg := base + int(instr.A())
		nargsProvided := int(instr.B()) - 1
		wantResults := int(instr.C()) - 1
		callee := vm.stack[calleeAbsReg]
		switch {
		case callee.IsClosure():
			if err := vm.pushClosureFrame(callee.AsClosureObj(), calleeAbsReg, nargsProvided, calleeAbsReg, wantResults, line); err != nil {
				return value.Value{}, false, err
			}
		case callee.IsNative():
			if err := vm.callNative(callee.AsNativeObj(), calleeAbsReg, nargsProvided, calleeAbsReg, wantResults, line); err != nil {
				return value.Value{}, false, err
			}
		case callee.IsIterator():
			vm.callIterator(callee.AsIteratorObj(), calleeAbsReg, wantResults)
		default:
			return value.Value{}, false, vm.runtimeErr(line, splerrors.CategoryType, "attempt to call a %s value", callee.TypeName())
		}

	case bytecode.OP_INVOKE:
		absA := base + int(instr.A())
		name := K(instr.Bx()).S
		obj := vm.stack[absA]
		method, found, err := vm.resolveMethod(obj, name, line)
		if err != nil {
			return value.Value{}, false, err
		}
		if !found {
			if name == "__init" {
				method = value.FromObject(&vm.defaultInit.Object)
			} else {
				return value.Value{}, false, vm.runtimeErr(line, splerrors.CategoryType, "%s has no method %q", obj.TypeName(), name)
			}
		}
		vm.stack[absA] = method
		vm.stack[absA+1] = obj

	case bytecode.OP_RETURN:
		var result value.Value
		if instr.B() >= 2 {
			result = R(instr.A())
		} else {
			result = value.Nil()
		}
		unwErr := vm.unwindFrame(f, nil)
		// Pop before reporting an error: unwindFrame already ran f's defers
		// and closed its upvalues, so the generic error path (unwindToFloor)
		// must start from the next frame up, not repeat f's unwind.
		vm.frames = vm.frames[:len(vm.frames)-1]
		if unwErr != nil {
			return value.Value{}, false, unwErr
		}
		if len(vm.frames) > 0 && f.wantResults >= 1 {
			vm.stack[f.resultReg] = result
			// A RETURN only ever carries one value; a multi-assignment
			// requesting more (§4.3's `vars a, b = call()`) gets the rest
			// nil-filled rather than left holding stale register contents.
			for i := 1; i < f.wantResults; i++ {
				vm.stack[f.resultReg+i] = value.Nil()
			}
		}
		return result, true, nil

	case bytecode.OP_CLOSURE:
		proto2 := proto.Protos[instr.Bx()]
		cl := vm.makeClosure(proto2, f)
		setR(instr.A(), value.FromObject(&cl.Object))

	case bytecode.OP_FORPREP:
		idx, limit, step := R(instr.A()), R(instr.A()+1), R(instr.A()+2)
		if !idx.IsNumber() || !limit.IsNumber() || !step.IsNumber() {
			return value.Value{}, false, vm.runtimeErr(line, splerrors.CategoryArithmetic, "'for' initial value, limit and step must be numbers")
		}
		if step.IsInt() && step.AsInt() == 0 {
			return value.Value{}, false, vm.runtimeErr(line, splerrors.CategoryArithmetic, "'for' step is zero")
		}
		if idx.IsInt() && step.IsInt() {
			setR(instr.A(), value.Int(idx.AsInt()-step.AsInt()))
		} else {
			setR(instr.A(), value.Float(idx.AsFloat64()-step.AsFloat64()))
		}
		f.ip += int(instr.SBx())

	case bytecode.OP_FORLOOP:
		idx, limit, step := R(instr.A()), R(instr.A()+1), R(instr.A()+2)
		var next value.Value
		if idx.IsInt() && step.IsInt() {
			next = value.Int(idx.AsInt() + step.AsInt())
		} else {
			next = value.Float(idx.AsFloat64() + step.AsFloat64())
		}
		var cont bool
		if step.AsFloat64() >= 0 {
			cont = next.AsFloat64() <= limit.AsFloat64()
		} else {
			cont = next.AsFloat64() >= limit.AsFloat64()
		}
		if cont {
			setR(instr.A(), next)
			setR(instr.A()+3, next)
			f.ip += int(instr.SBx())
		}

	case bytecode.OP_NEWLIST:
		first, count := instr.B(), instr.C()
		l := vm.AllocateList(int(count))
		list := l.AsListObj()
		for i := uint8(0); i < count; i++ {
			list.Elements = append(list.Elements, R(first+i))
		}
		setR(instr.A(), l)

	case bytecode.OP_NEWMAP:
		first, count := instr.B(), instr.C()
		m := vm.AllocateMap(int(count))
		mp := m.AsMapObj()
		for i := uint8(0); i < count; i++ {
			mp.Put(R(first+2*i), R(first+2*i+1))
		}
		if proto.IsModuleRoot && instr.A() == 0 {
			vm.seedEnv(mp)
		}
		setR(instr.A(), m)

	case bytecode.OP_NEWCLASS:
		body := proto.Protos[instr.Bx()]
		cls := vm.allocateClass(body.Name)
		for _, methodProto := range body.Protos {
			cl := vm.makeClosure(methodProto, f)
			cls.Methods[methodProto.Name] = value.FromObject(&cl.Object)
		}
		setR(instr.A(), value.FromObject(&cls.Object))

	case bytecode.OP_NEWOBJ:
		classVal := R(instr.B())
		if !classVal.IsClass() {
			return value.Value{}, false, vm.runtimeErr(line, splerrors.CategoryType, "attempt to instantiate a %s value", classVal.TypeName())
		}
		inst := vm.allocateInstance(classVal.AsClassObj())
		setR(instr.A(), value.FromObject(&inst.Object))

	case bytecode.OP_IMPORT:
		name := K(instr.Bx()).S
		if vm.importer == nil {
			return value.Value{}, false, vm.runtimeErr(line, splerrors.CategoryModule, "no importer configured, cannot import %q", name)
		}
		mod, err := vm.importer.Import(name)
		if err != nil {
			return value.Value{}, false, splerrors.Wrap(err, "import %q", name)
		}
		setR(instr.A(), mod)

	case bytecode.OP_IMPORT_FROM:
		composite := K(instr.Bx()).S
		moduleName, symbol := splitComposite(composite)
		if vm.importer == nil {
			return value.Value{}, false, vm.runtimeErr(line, splerrors.CategoryModule, "no importer configured, cannot import %q from %q", symbol, moduleName)
		}
		v, err := vm.importer.ImportFrom(moduleName, symbol)
		if err != nil {
			return value.Value{}, false, splerrors.Wrap(err, "import %q from %q", symbol, moduleName)
		}
		setR(instr.A(), v)

	case bytecode.OP_DEFER:
		closureVal := R(instr.A())
		if !closureVal.IsClosure() {
			return value.Value{}, false, vm.runtimeErr(line, splerrors.CategoryType, "defer requires a function, got %s", closureVal.TypeName())
		}
		f.defers = append(f.defers, closureVal.AsClosureObj())

	default:
		return value.Value{}, false, vm.runtimeErr(line, splerrors.CategoryType, "unknown opcode %v", op)
	}

	return value.Value{}, false, nil
}

// constantToValue lifts a bytecode.Constant (the tagged on-disk pool entry)
// into a runtime value.Value, interning strings through the VM's string
// table (§4.6).
func (vm *VM) constantToValue(k bytecode.Constant) value.Value {
	switch k.Kind {
	case bytecode.ConstNil:
		return value.Nil()
	case bytecode.ConstBool:
		return value.Bool(k.B)
	case bytecode.ConstInt:
		return value.Int(k.I)
	case bytecode.ConstFloat:
		return value.Float(k.F)
	case bytecode.ConstString:
		return vm.AllocateString(k.S)
	}
	return value.Nil()
}

// splitComposite splits an IMPORT_FROM constant of the form
// "module\x00symbol" (§4.5's workaround for iABx's single-operand limit).
func splitComposite(s string) (module, symbol string) {
	for i := 0; i < len(s); i++ {
		if s[i] == 0 {
			return s[:i], s[i+1:]
		}
	}
	return s, ""
}
