// Package vm implements the register VM interpreter (§4.5, component C6):
// a single-threaded decode-dispatch loop over bytecode.Instruction streams,
// a contiguous value-stack with call frames, closures with shared upvalues,
// and the GC-managed heap object types defined in internal/value.
package vm

import (
	"log"

	"github.com/Xarvie/sptscript/internal/bytecode"
	splerrors "github.com/Xarvie/sptscript/internal/errors"
	"github.com/Xarvie/sptscript/internal/gc"
	"github.com/Xarvie/sptscript/internal/value"
)

// Importer resolves IMPORT/IMPORT_FROM (§4.5), delegating to
// internal/module. The VM depends only on this interface — never on the
// module package directly — because the module manager itself needs to
// drive a VM to execute the chunks it loads; a direct import would cycle.
type Importer interface {
	Import(name string) (value.Value, error)
	ImportFrom(moduleName, symbol string) (value.Value, error)
}

// PrintHandler and ErrorHandler are the host callbacks of §6.
type PrintHandler func(string)
type ErrorHandler func(message string, line int)

// VM owns all execution state for one interpreter instance (§3.3, §5: the
// VM owns its state exclusively, single-threaded).
type VM struct {
	stack []value.Value // logical top tracked per frame.base + maxStackSize, never truncated in length
	top   int

	frames []*frame

	openUpvalues []*value.UpvalueObj

	gc *gc.Collector

	printHandler PrintHandler
	errorHandler ErrorHandler

	importer Importer

	// defaultInit is invoked by OP_INVOKE's "__init" lookup when a class
	// declares no constructor (§4.5): every `new ClassName(...)` expression
	// unconditionally emits an INVOKE "__init" regardless, so this native
	// no-op keeps that always succeeding.
	defaultInit *value.NativeObj

	strings map[string]*value.StringObj // intern table

	// globals holds every native/value the host registered via
	// RegisterNative/SetGlobal (§6): print, stdlib module tables, and so
	// on. Every freshly executed chunk's root env map (§4.3) is seeded
	// with a copy of these entries the moment OP_NEWMAP creates it, which
	// is what makes an unqualified identifier like `print` resolve
	// without the script itself importing anything.
	globals *value.MapObj

	// persistentRoots holds Values the host (typically the module manager)
	// wants to outlive any single Collect cycle without being pushed/popped
	// like a protect() call — e.g. a loaded module's exports map.
	persistentRoots []value.Value

	logger *log.Logger
}

func New() *VM {
	v := &VM{
		stack:   make([]value.Value, 0, 256),
		strings: make(map[string]*value.StringObj),
		logger:  log.Default(),
	}
	v.gc = gc.New(v)
	v.globals = value.NewMap(0)
	v.printHandler = func(s string) { v.logger.Print(s) }
	v.errorHandler = func(msg string, line int) { v.logger.Printf("runtime error at line %d: %s", line, msg) }
	v.defaultInit = value.NewNative("__init", 1, false, func(ctx value.NativeContext, args []value.Value) (value.Value, error) {
		return value.Nil(), nil
	})
	v.registerAutoIter()
	return v
}

// registerAutoIter installs the hidden global compileForIn calls exactly
// once per foreach loop (§4.3): a value that is already callable (a
// closure, native, or another iterator) passes through untouched — this is
// what lets a user-authored closure serve as a custom iterator — while a
// list or map is snapshotted into a fresh stateful IteratorObj, itself
// callable, so every later iteration is a plain CALL on the same object.
func (vm *VM) registerAutoIter() {
	vm.RegisterNative("__autoiter", 2, false, func(ctx value.NativeContext, args []value.Value) (value.Value, error) {
		if len(args) < 2 {
			return value.Nil(), splerrors.NewRuntimeError(splerrors.CategoryArity, 0, "__autoiter expects one argument")
		}
		coll := args[1]
		if coll.IsCallable() {
			return coll, nil
		}
		it, err := vm.newIterator(coll, 0)
		if err != nil {
			return value.Value{}, err
		}
		return value.FromObject(&it.Object), nil
	})
}

func (vm *VM) SetLogger(l *log.Logger)         { vm.logger = l }
func (vm *VM) SetPrintHandler(h PrintHandler)  { vm.printHandler = h }
func (vm *VM) SetErrorHandler(h ErrorHandler)  { vm.errorHandler = h }
func (vm *VM) SetImporter(imp Importer)        { vm.importer = imp }
func (vm *VM) ConfigureGC(threshold int64, growth float64) { vm.gc.Configure(threshold, growth) }

// PinRoot registers v as permanently reachable (§4.4's module table root);
// used by internal/module to keep a loaded module's exports alive for the
// life of the VM regardless of GC cycles.
func (vm *VM) PinRoot(v value.Value) { vm.persistentRoots = append(vm.persistentRoots, v) }

// GCRoots implements gc.RootSource (§4.4): the value stack up to top, every
// frame's closure, the open-upvalue list, and persistent roots.
func (vm *VM) GCRoots(visit func(value.Value)) {
	for i := 0; i < vm.top; i++ {
		visit(vm.stack[i])
	}
	for _, f := range vm.frames {
		if f.closure != nil {
			visit(value.FromObject(&f.closure.Object))
		}
		for _, d := range f.defers {
			visit(value.FromObject(&d.Object))
		}
	}
	for _, uv := range vm.openUpvalues {
		visit(value.FromObject(&uv.Object))
	}
	for _, v := range vm.persistentRoots {
		visit(v)
	}
	if vm.globals != nil {
		visit(value.FromObject(&vm.globals.Object))
	}
}

// SetGlobal registers v under name in every module's env (§6): the same
// mechanism a CLI host uses to expose an already-built native table (e.g.
// a "math" module) to every script it runs without an explicit import.
func (vm *VM) SetGlobal(name string, v value.Value) {
	vm.globals.Put(vm.AllocateString(name), v)
}

// RegisterNative is a convenience wrapper around SetGlobal for exposing a
// single Go function as a callable sptscript value.
func (vm *VM) RegisterNative(name string, arity int, variadic bool, fn value.NativeFn) {
	vm.SetGlobal(name, value.FromObject(&value.NewNative(name, arity, variadic, fn).Object))
}

// seedEnv copies every registered global into a freshly allocated module
// env map, called once per chunk execution right as OP_NEWMAP builds it
// (§4.3's "module __env slot").
func (vm *VM) seedEnv(env *value.MapObj) {
	vm.globals.Iter(func(k, v value.Value) bool {
		env.Put(k, v)
		return true
	})
}

func (vm *VM) maybeCollect() {
	if vm.gc.ShouldCollect() {
		vm.gc.Collect()
	}
}

// ---------------------------------------------------------------------
// Allocation helpers (§6: allocateString, allocateMap, allocateClosure)
// ---------------------------------------------------------------------

func (vm *VM) AllocateString(s string) value.Value {
	if existing, ok := vm.strings[s]; ok {
		return value.FromObject(&existing.Object)
	}
	vm.maybeCollect()
	obj := value.NewString(s)
	vm.gc.Track(&obj.Object, int64(16+len(s)))
	vm.strings[s] = obj
	return value.FromObject(&obj.Object)
}

func (vm *VM) AllocateList(capHint int) value.Value {
	vm.maybeCollect()
	obj := value.NewList(capHint)
	vm.gc.Track(&obj.Object, int64(16+capHint*16))
	return value.FromObject(&obj.Object)
}

func (vm *VM) AllocateMap(capHint int) value.Value {
	vm.maybeCollect()
	obj := value.NewMap(capHint)
	vm.gc.Track(&obj.Object, int64(32+capHint*32))
	return value.FromObject(&obj.Object)
}

func (vm *VM) AllocateClosure(proto *bytecode.Prototype) *value.ClosureObj {
	vm.maybeCollect()
	obj := value.NewClosure(proto)
	vm.gc.Track(&obj.Object, int64(32+len(obj.Upvalues)*8))
	return obj
}

func (vm *VM) allocateClass(name string) *value.ClassObj {
	vm.maybeCollect()
	obj := value.NewClass(name)
	vm.gc.Track(&obj.Object, 64)
	return obj
}

func (vm *VM) allocateInstance(class *value.ClassObj) *value.InstanceObj {
	vm.maybeCollect()
	obj := value.NewInstance(class)
	vm.gc.Track(&obj.Object, int64(32+len(obj.Fields)*24))
	return obj
}

func (vm *VM) allocateIterator(collection value.Value, keys []value.Value) *value.IteratorObj {
	vm.maybeCollect()
	obj := value.NewIterator(collection, keys)
	vm.gc.Track(&obj.Object, int64(32+len(keys)*16))
	return obj
}

// Protect/Unprotect implement §4.4's protection stack and
// value.NativeContext, so a native function body can keep an intermediate
// allocation alive across further allocations that might trigger a
// collection mid-sequence.
func (vm *VM) Protect(v value.Value)  { vm.gc.Protect(v) }
func (vm *VM) Unprotect(n int)        { vm.gc.Unprotect(n) }
func (vm *VM) NewString(s string) value.Value { return vm.AllocateString(s) }
func (vm *VM) NewList(n int) value.Value      { return vm.AllocateList(n) }
func (vm *VM) NewMap(n int) value.Value       { return vm.AllocateMap(n) }

// Print implements value.NativeContext.Print by way of the host's
// PrintHandler (§6), the hook "print" is built on.
func (vm *VM) Print(s string) { vm.printHandler(s) }

// Call implements value.NativeContext.Call: a native invoking back into a
// sptscript callable (closure or another native).
func (vm *VM) Call(callee value.Value, args []value.Value) (value.Value, error) {
	return vm.CallValue(callee, args)
}

func (vm *VM) runtimeErr(line int, category splerrors.Category, format string, args ...interface{}) error {
	err := splerrors.NewRuntimeError(category, line, format, args...)
	for i := len(vm.frames) - 1; i >= 0; i-- {
		err.PushFrame(vm.frames[i].closure.Proto.Name, vm.frames[i].ip)
	}
	return err
}
