package value

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEqualPrimitives(t *testing.T) {
	require.True(t, Equal(Nil(), Nil()))
	require.True(t, Equal(Bool(true), Bool(true)))
	require.False(t, Equal(Bool(true), Bool(false)))
	require.True(t, Equal(Int(3), Int(3)))
	require.True(t, Equal(Int(3), Float(3.0)), "mixed int/float compares numerically")
	require.False(t, Equal(Int(3), Bool(true)))
}

func TestEqualStringsByContent(t *testing.T) {
	a := NewString("hi")
	b := NewString("hi")
	require.NotSame(t, a, b)
	require.True(t, Equal(FromObject(&a.Object), FromObject(&b.Object)))
}

func TestEqualObjectsByIdentityOtherwise(t *testing.T) {
	a := NewList(0)
	b := NewList(0)
	require.False(t, Equal(FromObject(&a.Object), FromObject(&b.Object)))
	require.True(t, Equal(FromObject(&a.Object), FromObject(&a.Object)))
}

func TestTruthy(t *testing.T) {
	require.False(t, Nil().Truthy())
	require.False(t, Bool(false).Truthy())
	require.True(t, Bool(true).Truthy())
	require.True(t, Int(0).Truthy(), "zero is truthy, only nil/false are falsy")
	require.True(t, FromObject(&NewString("").Object).Truthy())
}

func TestTypeName(t *testing.T) {
	require.Equal(t, "nil", Nil().TypeName())
	require.Equal(t, "int", Int(1).TypeName())
	require.Equal(t, "float", Float(1).TypeName())
	require.Equal(t, "string", FromObject(&NewString("x").Object).TypeName())
	require.Equal(t, "list", FromObject(&NewList(0).Object).TypeName())
	require.Equal(t, "map", FromObject(&NewMap(0).Object).TypeName())
}

func TestStringRendersNumbersRoundTripSafe(t *testing.T) {
	require.Equal(t, "3", Int(3).String())
	require.Equal(t, "3.5", Float(3.5).String())
	require.Equal(t, "true", Bool(true).String())
	require.Equal(t, "nil", Nil().String())
}

func TestMapKeysDoNotCoerceBetweenIntAndFloat(t *testing.T) {
	m := NewMap(0)
	m.Put(Int(1), FromObject(&NewString("int-one").Object))
	m.Put(Float(1.0), FromObject(&NewString("float-one").Object))
	require.Equal(t, 2, m.Len(), "int key 1 and float key 1.0 are distinct entries")

	iv, ok := m.Get(Int(1))
	require.True(t, ok)
	require.Equal(t, "int-one", iv.AsString())

	fv, ok := m.Get(Float(1.0))
	require.True(t, ok)
	require.Equal(t, "float-one", fv.AsString())
}

func TestMapKeysCompareStringsByContent(t *testing.T) {
	m := NewMap(0)
	key1 := FromObject(&NewString("shared").Object)
	key2 := FromObject(&NewString("shared").Object)
	m.Put(key1, Int(1))
	m.Put(key2, Int(2))
	require.Equal(t, 1, m.Len(), "distinct StringObj allocations with equal text share a map key")
	v, ok := m.Get(key1)
	require.True(t, ok)
	require.Equal(t, int64(2), v.AsInt())
}

func TestListTrace(t *testing.T) {
	l := NewList(2)
	l.Elements = append(l.Elements, Int(1), Bool(true))
	var seen []Value
	l.Trace(func(v Value) { seen = append(seen, v) })
	require.Len(t, seen, 2)
}

func TestClassResolveMethodWalksSuperclassChain(t *testing.T) {
	base := NewClass("Base")
	base.Methods["greet"] = Int(1)
	derived := NewClass("Derived")
	derived.Superclass = base

	_, ok := derived.Methods["greet"]
	require.False(t, ok)

	m, ok := derived.ResolveMethod("greet")
	require.True(t, ok)
	require.Equal(t, int64(1), m.AsInt())

	_, ok = derived.ResolveMethod("missing")
	require.False(t, ok)
}

func TestIteratorOverList(t *testing.T) {
	l := NewList(0)
	l.Elements = append(l.Elements, Int(10), Int(20))
	listVal := FromObject(&l.Object)
	it := NewIterator(listVal, []Value{Int(0), Int(1)})

	k, v, ok := it.Next()
	require.True(t, ok)
	require.Equal(t, int64(0), k.AsInt())
	require.Equal(t, int64(10), v.AsInt())

	k, v, ok = it.Next()
	require.True(t, ok)
	require.Equal(t, int64(1), k.AsInt())
	require.Equal(t, int64(20), v.AsInt())

	_, _, ok = it.Next()
	require.False(t, ok)
}
