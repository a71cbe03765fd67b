package value

// Convenience constructors returning a boxed Value directly, used
// throughout internal/vm and internal/stdlib so call sites don't need to
// thread FromObject(&x.Object) everywhere.

func NewStringValue(s string) Value    { return FromObject(&NewString(s).Object) }
func NewListValue(capHint int) Value   { return FromObject(&NewList(capHint).Object) }
func NewMapValue(capHint int) Value    { return FromObject(&NewMap(capHint).Object) }
func NewClassValue(name string) Value  { return FromObject(&NewClass(name).Object) }
func NewInstanceValue(c *ClassObj) Value {
	return FromObject(&NewInstance(c).Object)
}
func NewNativeValue(name string, arity int, variadic bool, fn NativeFn) Value {
	return FromObject(&NewNative(name, arity, variadic, fn).Object)
}
func NewClosureValue(c *ClosureObj) Value { return FromObject(&c.Object) }
func NewModuleValue(m *ModuleObj) Value   { return FromObject(&m.Object) }
