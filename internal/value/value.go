// Package value defines sptscript's runtime value representation (§3.1):
// a tagged union of nil, bool, int, float and object, deliberately NOT
// NaN-boxed. A real mark-and-sweep collector (internal/gc) needs to walk
// every live reference unambiguously; a tagged Go struct gives it that for
// free, at the cost of the cache-density a NaN-boxed uint64 would buy.
package value

import (
	"fmt"
	"math"
	"strconv"
	"unsafe"
)

// Kind discriminates the union held by a Value.
type Kind uint8

const (
	KNil Kind = iota
	KBool
	KInt
	KFloat
	KObject
)

// Value is sptscript's tagged union (§3.1). Zero value is nil.
type Value struct {
	kind Kind
	bits uint64 // bool (0/1) or int64 bits or float64 bits, per kind
	obj  *Object
}

func Nil() Value                { return Value{kind: KNil} }
func Bool(b bool) Value         { return Value{kind: KBool, bits: boolBits(b)} }
func Int(i int64) Value         { return Value{kind: KInt, bits: uint64(i)} }
func Float(f float64) Value     { return Value{kind: KFloat, bits: math.Float64bits(f)} }
func FromObject(o *Object) Value {
	if o == nil {
		return Nil()
	}
	return Value{kind: KObject, obj: o}
}

func boolBits(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func (v Value) Kind() Kind      { return v.kind }
func (v Value) IsNil() bool     { return v.kind == KNil }
func (v Value) IsBool() bool    { return v.kind == KBool }
func (v Value) IsInt() bool     { return v.kind == KInt }
func (v Value) IsFloat() bool   { return v.kind == KFloat }
func (v Value) IsNumber() bool  { return v.kind == KInt || v.kind == KFloat }
func (v Value) IsObject() bool  { return v.kind == KObject }

func (v Value) AsBool() bool    { return v.bits != 0 }
func (v Value) AsInt() int64    { return int64(v.bits) }
func (v Value) AsFloat() float64 { return math.Float64frombits(v.bits) }
func (v Value) AsObject() *Object { return v.obj }

// AsFloat64 widens int or float to float64, for mixed-type arithmetic.
func (v Value) AsFloat64() float64 {
	if v.kind == KInt {
		return float64(v.AsInt())
	}
	return v.AsFloat()
}

func (v Value) ObjectType() ObjectType {
	if v.obj == nil {
		return 0
	}
	return v.obj.Type
}

func (v Value) IsString() bool   { return v.obj != nil && v.obj.Type == ObjString }
func (v Value) IsList() bool     { return v.obj != nil && v.obj.Type == ObjList }
func (v Value) IsMap() bool      { return v.obj != nil && v.obj.Type == ObjMap }
func (v Value) IsClosure() bool  { return v.obj != nil && v.obj.Type == ObjClosure }
func (v Value) IsNative() bool   { return v.obj != nil && v.obj.Type == ObjNative }
func (v Value) IsClass() bool    { return v.obj != nil && v.obj.Type == ObjClass }
func (v Value) IsInstance() bool { return v.obj != nil && v.obj.Type == ObjInstance }
func (v Value) IsModule() bool   { return v.obj != nil && v.obj.Type == ObjModule }
// IsCallable reports whether v can sit at R(base) of a CALL: a closure or
// native function, or a stateful iterator (§4.3's foreach protocol calls the
// iterator expression's value directly once it has been coerced by
// newIterator/autoiter).
func (v Value) IsCallable() bool {
	return v.IsClosure() || v.IsNative() || v.IsIterator()
}

// The As*Obj accessors rely on every concrete heap type embedding Object as
// its first field, so the *Object header pointer and the concrete struct
// pointer share an address — the same trick the teacher's NaN-boxed Object
// pointers rely on, minus the boxing.
func (v Value) AsStringObj() *StringObj     { return (*StringObj)(unsafe.Pointer(v.obj)) }
func (v Value) AsListObj() *ListObj         { return (*ListObj)(unsafe.Pointer(v.obj)) }
func (v Value) AsMapObj() *MapObj           { return (*MapObj)(unsafe.Pointer(v.obj)) }
func (v Value) AsClosureObj() *ClosureObj   { return (*ClosureObj)(unsafe.Pointer(v.obj)) }
func (v Value) AsNativeObj() *NativeObj     { return (*NativeObj)(unsafe.Pointer(v.obj)) }
func (v Value) AsClassObj() *ClassObj       { return (*ClassObj)(unsafe.Pointer(v.obj)) }
func (v Value) AsInstanceObj() *InstanceObj { return (*InstanceObj)(unsafe.Pointer(v.obj)) }
func (v Value) AsModuleObj() *ModuleObj     { return (*ModuleObj)(unsafe.Pointer(v.obj)) }
func (v Value) AsUpvalueObj() *UpvalueObj   { return (*UpvalueObj)(unsafe.Pointer(v.obj)) }
func (v Value) AsIteratorObj() *IteratorObj { return (*IteratorObj)(unsafe.Pointer(v.obj)) }

func (v Value) IsIterator() bool { return v.obj != nil && v.obj.Type == ObjIterator }

func (v Value) AsString() string {
	if !v.IsString() {
		return ""
	}
	return v.AsStringObj().Value
}

// Truthy implements §3.1: nil and false are falsy, everything else truthy.
func (v Value) Truthy() bool {
	switch v.kind {
	case KNil:
		return false
	case KBool:
		return v.AsBool()
	default:
		return true
	}
}

// Equal implements §3.1's equality rule: structural for primitives, content
// for strings, identity for every other object.
func Equal(a, b Value) bool {
	if a.kind == KObject && b.kind == KObject {
		if a.obj == b.obj {
			return true
		}
		if a.IsString() && b.IsString() {
			return a.AsString() == b.AsString()
		}
		return false
	}
	if a.IsNumber() && b.IsNumber() {
		if a.kind == KInt && b.kind == KInt {
			return a.AsInt() == b.AsInt()
		}
		return a.AsFloat64() == b.AsFloat64()
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KNil:
		return true
	case KBool:
		return a.AsBool() == b.AsBool()
	}
	return false
}

// TypeName returns the language-level type name used in error messages.
func (v Value) TypeName() string {
	switch v.kind {
	case KNil:
		return "nil"
	case KBool:
		return "bool"
	case KInt:
		return "int"
	case KFloat:
		return "float"
	case KObject:
		switch v.obj.Type {
		case ObjString:
			return "string"
		case ObjList:
			return "list"
		case ObjMap:
			return "map"
		case ObjClosure:
			return "function"
		case ObjNative:
			return "function"
		case ObjClass:
			return "class"
		case ObjInstance:
			return "instance"
		case ObjModule:
			return "module"
		case ObjUpvalue:
			return "upvalue"
		case ObjIterator:
			return "iterator"
		}
	}
	return "unknown"
}

// String renders a Value the way CONCAT and the default print native do
// (§4.5): round-trip-safe for numbers, literal names for bool/nil.
func (v Value) String() string {
	switch v.kind {
	case KNil:
		return "nil"
	case KBool:
		if v.AsBool() {
			return "true"
		}
		return "false"
	case KInt:
		return strconv.FormatInt(v.AsInt(), 10)
	case KFloat:
		return strconv.FormatFloat(v.AsFloat(), 'g', -1, 64)
	case KObject:
		return v.objectString(make(map[*Object]bool))
	}
	return "?"
}

func (v Value) objectString(seen map[*Object]bool) string {
	o := v.obj
	switch o.Type {
	case ObjString:
		return v.AsStringObj().Value
	case ObjList:
		if seen[o] {
			return "[...]"
		}
		seen[o] = true
		l := v.AsListObj()
		s := "["
		for i, e := range l.Elements {
			if i > 0 {
				s += ", "
			}
			s += e.objectStringOrSelf(seen)
		}
		return s + "]"
	case ObjMap:
		if seen[o] {
			return "{...}"
		}
		seen[o] = true
		m := v.AsMapObj()
		s := "{"
		first := true
		m.Iter(func(k, val Value) bool {
			if !first {
				s += ", "
			}
			first = false
			s += k.objectStringOrSelf(seen) + ": " + val.objectStringOrSelf(seen)
			return true
		})
		return s + "}"
	case ObjClosure:
		return fmt.Sprintf("<function %s>", v.AsClosureObj().Proto.Name)
	case ObjNative:
		return fmt.Sprintf("<native %s>", v.AsNativeObj().Name)
	case ObjClass:
		return fmt.Sprintf("<class %s>", v.AsClassObj().Name)
	case ObjInstance:
		return fmt.Sprintf("<instance of %s>", v.AsInstanceObj().Class.Name)
	case ObjModule:
		return fmt.Sprintf("<module %s>", v.AsModuleObj().Name)
	}
	return "<object>"
}

func (v Value) objectStringOrSelf(seen map[*Object]bool) string {
	if v.kind == KObject {
		return v.objectString(seen)
	}
	return v.String()
}

// mapKeyOf computes the comparable Go value used to key sptscript's Map
// object. Per §13's Open Question decision, no string coercion is ever
// performed. Strings match by content and other objects by identity, as in
// Equal; numbers match by kind and bits, so unlike Equal an int key 1 and a
// float key 1.0 are distinct entries.
type mapKey struct {
	kind Kind
	bits uint64
	str  string
	obj  *Object
}

func (v Value) mapKeyOf() mapKey {
	switch v.kind {
	case KObject:
		if v.IsString() {
			return mapKey{kind: KObject, str: v.AsString()}
		}
		return mapKey{kind: KObject, obj: v.obj}
	default:
		return mapKey{kind: v.kind, bits: v.bits}
	}
}
