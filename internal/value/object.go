package value

import (
	"github.com/dolthub/swiss"

	"github.com/Xarvie/sptscript/internal/bytecode"
)

// ObjectType tags every heap-allocated object (§3.2).
type ObjectType uint8

const (
	ObjString ObjectType = iota + 1
	ObjList
	ObjMap
	ObjClosure
	ObjUpvalue
	ObjClass
	ObjInstance
	ObjNative
	ObjModule
	ObjIterator
)

func (t ObjectType) String() string {
	switch t {
	case ObjString:
		return "string"
	case ObjList:
		return "list"
	case ObjMap:
		return "map"
	case ObjClosure:
		return "closure"
	case ObjUpvalue:
		return "upvalue"
	case ObjClass:
		return "class"
	case ObjInstance:
		return "instance"
	case ObjNative:
		return "native"
	case ObjModule:
		return "module"
	case ObjIterator:
		return "iterator"
	}
	return "object"
}

// Object is the common header every heap object embeds as its first field
// (§3.2): a type tag, a GC mark bit, and the intrusive next-in-heap link the
// collector walks to sweep. internal/gc owns Marked and Next; nothing else
// writes them.
type Object struct {
	Type   ObjectType
	Marked bool
	Next   *Object
}

// Tracer is implemented by every heap object that can hold references to
// other Values; internal/gc's mark phase calls Trace to discover children.
type Tracer interface {
	Trace(visit func(Value))
}

// StringObj is an immutable byte sequence, optionally interned by the VM's
// string table so two identical literals share one allocation.
type StringObj struct {
	Object
	Value string
	Hash  uint64
}

func NewString(s string) *StringObj {
	return &StringObj{Object: Object{Type: ObjString}, Value: s, Hash: hashString(s)}
}

func hashString(s string) uint64 {
	h := uint64(14695981039346656037)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return h
}

// ListObj is a contiguous, 0-indexed, amortized-growth sequence (§3.2).
type ListObj struct {
	Object
	Elements []Value
}

func NewList(capHint int) *ListObj {
	return &ListObj{Object: Object{Type: ObjList}, Elements: make([]Value, 0, capHint)}
}

func (l *ListObj) Trace(visit func(Value)) {
	for _, e := range l.Elements {
		visit(e)
	}
}

// MapObj is a hash table from Value to Value (§3.2), backed by a SwiSS
// open-addressing table rather than a plain Go map so it has a predictable
// Len/Iter surface independent of Go's map iteration guarantees.
type MapObj struct {
	Object
	tbl *swiss.Map[mapKey, mapEntry]
}

type mapEntry struct {
	key Value
	val Value
}

func NewMap(capHint int) *MapObj {
	if capHint < 0 {
		capHint = 0
	}
	return &MapObj{Object: Object{Type: ObjMap}, tbl: swiss.NewMap[mapKey, mapEntry](uint32(capHint))}
}

func (m *MapObj) Put(key, val Value) {
	m.tbl.Put(key.mapKeyOf(), mapEntry{key: key, val: val})
}

func (m *MapObj) Get(key Value) (Value, bool) {
	e, ok := m.tbl.Get(key.mapKeyOf())
	if !ok {
		return Nil(), false
	}
	return e.val, true
}

func (m *MapObj) Delete(key Value) bool {
	return m.tbl.Delete(key.mapKeyOf())
}

func (m *MapObj) Len() int { return m.tbl.Count() }

// Iter visits every entry; fn returning false stops iteration early.
func (m *MapObj) Iter(fn func(key, val Value) bool) {
	m.tbl.Iter(func(_ mapKey, e mapEntry) bool {
		return !fn(e.key, e.val)
	})
}

func (m *MapObj) Trace(visit func(Value)) {
	m.Iter(func(k, v Value) bool {
		visit(k)
		visit(v)
		return true
	})
}

// UpvalueObj is either open (aliasing a live stack slot) or closed (owning
// its value), per §3.2. Stack is a pointer to the owning frame's register
// window so a stack grow/re-anchor (§3.3) can repoint every open upvalue by
// rewriting that one slice header.
type UpvalueObj struct {
	Object
	Stack  *[]Value
	Index  int
	closed Value
	isOpen bool
}

func NewOpenUpvalue(stack *[]Value, index int) *UpvalueObj {
	return &UpvalueObj{Object: Object{Type: ObjUpvalue}, Stack: stack, Index: index, isOpen: true}
}

func (u *UpvalueObj) IsOpen() bool { return u.isOpen }

func (u *UpvalueObj) Get() Value {
	if u.isOpen {
		return (*u.Stack)[u.Index]
	}
	return u.closed
}

func (u *UpvalueObj) Set(v Value) {
	if u.isOpen {
		(*u.Stack)[u.Index] = v
		return
	}
	u.closed = v
}

// Close promotes an open upvalue to closed, copying its current value out
// of the stack it pointed into (§4.4's frame-pop discipline).
func (u *UpvalueObj) Close() {
	if !u.isOpen {
		return
	}
	u.closed = (*u.Stack)[u.Index]
	u.isOpen = false
	u.Stack = nil
}

func (u *UpvalueObj) Trace(visit func(Value)) {
	visit(u.Get())
}

// ClosureObj pairs an immutable compiled Prototype with the live Upvalue
// array captured at CLOSURE-time (§3.2).
type ClosureObj struct {
	Object
	Proto    *bytecode.Prototype
	Upvalues []*UpvalueObj
}

func NewClosure(proto *bytecode.Prototype) *ClosureObj {
	return &ClosureObj{
		Object:   Object{Type: ObjClosure},
		Proto:    proto,
		Upvalues: make([]*UpvalueObj, proto.NumUpvalues),
	}
}

func (c *ClosureObj) Trace(visit func(Value)) {
	for _, uv := range c.Upvalues {
		if uv != nil {
			visit(FromObject(&uv.Object))
		}
	}
}

// NativeContext is the capability surface a NativeFn body gets instead of a
// concrete *vm.VM, breaking the import cycle value <-> vm would otherwise
// require (§6's registerNative/GC interactions).
type NativeContext interface {
	Protect(Value)
	Unprotect(int)
	NewString(string) Value
	NewList(int) Value
	NewMap(int) Value
	Call(callee Value, args []Value) (Value, error)
	Print(string)
}

// NativeFn is a host callback installed via registerNative (§6). Arity
// includes the implicit receiver slot, matching the CALL convention (§4.1).
type NativeFn func(ctx NativeContext, args []Value) (Value, error)

type NativeObj struct {
	Object
	Name     string
	Arity    int
	Variadic bool
	Fn       NativeFn
}

func NewNative(name string, arity int, variadic bool, fn NativeFn) *NativeObj {
	return &NativeObj{Object: Object{Type: ObjNative}, Name: name, Arity: arity, Variadic: variadic, Fn: fn}
}

// ClassObj is a name plus a map of member declarations (§3.2): methods are
// closures. NEWOBJ copies any FieldDefault entries onto each new Instance,
// but NEWCLASS fills only Methods and leaves FieldDefault empty; field
// initializers are not evaluated at class creation and instead run in each
// instance's __init.
type ClassObj struct {
	Object
	Name         string
	Superclass   *ClassObj
	Methods      map[string]Value
	FieldOrder   []string
	FieldDefault map[string]Value
}

func NewClass(name string) *ClassObj {
	return &ClassObj{
		Object:       Object{Type: ObjClass},
		Name:         name,
		Methods:      make(map[string]Value),
		FieldDefault: make(map[string]Value),
	}
}

// ResolveMethod walks this class, then its superclass chain (§4.5's INVOKE:
// "instance fields -> class fields -> no deeper inheritance in scope" refers
// to lookup *order* against an instance; the class hierarchy itself may
// still chain through Superclass when present).
func (c *ClassObj) ResolveMethod(name string) (Value, bool) {
	for cls := c; cls != nil; cls = cls.Superclass {
		if m, ok := cls.Methods[name]; ok {
			return m, true
		}
	}
	return Nil(), false
}

func (c *ClassObj) Trace(visit func(Value)) {
	for _, m := range c.Methods {
		visit(m)
	}
	for _, d := range c.FieldDefault {
		visit(d)
	}
	if c.Superclass != nil {
		visit(FromObject(&c.Superclass.Object))
	}
}

// InstanceObj is a map of fields plus a reference to its Class (§3.2).
type InstanceObj struct {
	Object
	Class  *ClassObj
	Fields map[string]Value
}

func NewInstance(class *ClassObj) *InstanceObj {
	fields := make(map[string]Value, len(class.FieldDefault))
	for k, v := range class.FieldDefault {
		fields[k] = v
	}
	return &InstanceObj{Object: Object{Type: ObjInstance}, Class: class, Fields: fields}
}

func (i *InstanceObj) Trace(visit func(Value)) {
	visit(FromObject(&i.Class.Object))
	for _, v := range i.Fields {
		visit(v)
	}
}

// ModuleState enumerates a module's lifecycle (§3.2, §4.7).
type ModuleState uint8

const (
	ModuleUnloaded ModuleState = iota
	ModuleLoading
	ModuleLoaded
	ModuleError
)

// ModuleObj is the VM-visible heap representation of a loaded module: the
// metadata and exports map internal/module builds once loadModuleInternal
// finishes executing the chunk.
type ModuleObj struct {
	Object
	Name    string
	Path    string
	State   ModuleState
	Exports *MapObj
	Err     string

	// Tag is a diagnostic UUID internal/module stamps on every freshly
	// loaded module; nothing in this repository reads it, and it plays no
	// part in cache identity, which is keyed on Name.
	Tag string
}

func NewModule(name, path string) *ModuleObj {
	return &ModuleObj{Object: Object{Type: ObjModule}, Name: name, Path: path, State: ModuleUnloaded}
}

func (m *ModuleObj) Trace(visit func(Value)) {
	if m.Exports != nil {
		visit(FromObject(&m.Exports.Object))
	}
}

// IteratorObj is the stateful cursor foreach's generic CALL-based protocol
// drives (§4.3): a snapshot of keys taken once when the iterator is built
// (lists iterate by index, maps by their key set at creation), advanced one
// step per call through vm.callIterator.
type IteratorObj struct {
	Object
	Collection Value
	Keys       []Value
	pos        int
}

func NewIterator(collection Value, keys []Value) *IteratorObj {
	return &IteratorObj{Object: Object{Type: ObjIterator}, Collection: collection, Keys: keys}
}

// Next returns the next (key, value) pair and true, or (Nil, Nil, false)
// once exhausted.
func (it *IteratorObj) Next() (Value, Value, bool) {
	if it.pos >= len(it.Keys) {
		return Nil(), Nil(), false
	}
	key := it.Keys[it.pos]
	it.pos++
	switch {
	case it.Collection.IsList():
		return Int(key.AsInt()), it.Collection.AsListObj().Elements[key.AsInt()], true
	case it.Collection.IsMap():
		val, _ := it.Collection.AsMapObj().Get(key)
		return key, val, true
	default:
		return key, Nil(), true
	}
}

func (it *IteratorObj) Trace(visit func(Value)) {
	visit(it.Collection)
	for _, k := range it.Keys {
		visit(k)
	}
}
