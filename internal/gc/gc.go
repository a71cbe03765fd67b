// Package gc implements sptscript's stop-the-world mark-and-sweep collector
// (§4.4, component C5). Go already garbage-collects the backing memory for
// every value.Object; what this package adds is the *sptscript-visible*
// tracing discipline the spec requires — roots, a protection stack, and a
// threshold-triggered collection cycle — so object lifetime is governed by
// sptscript reachability rather than merely "some Go variable still points
// to it". Collect unlinks unreached objects from the intrusive heap list;
// Go's own collector reclaims the memory once nothing (including this
// package) references them anymore.
package gc

import "github.com/Xarvie/sptscript/internal/value"

// RootSource is implemented by the VM: it knows how to enumerate every
// value currently reachable from the execution state (the stack up to top,
// every frame's closure and receiver, the module table, the root
// environment, the last-module-result holder).
type RootSource interface {
	GCRoots(visit func(value.Value))
}

// Collector owns the intrusive list of every live heap object and runs the
// mark-sweep cycle (§4.4).
type Collector struct {
	head      *value.Object
	allocated int64
	threshold int64
	growth    float64
	protected []value.Value
	roots     RootSource

	Collections int
	Freed       int64
}

// DefaultThreshold and DefaultGrowth mirror §10.3's GC config defaults.
const (
	DefaultThreshold = 1 << 20 // 1MiB of estimated allocation before the first GC
	DefaultGrowth    = 2.0
)

func New(roots RootSource) *Collector {
	return &Collector{
		threshold: DefaultThreshold,
		growth:    DefaultGrowth,
		roots:     roots,
	}
}

func (c *Collector) Configure(initialThreshold int64, growth float64) {
	if initialThreshold > 0 {
		c.threshold = initialThreshold
	}
	if growth > 1.0 {
		c.growth = growth
	}
}

// Track registers a freshly allocated object with the collector and returns
// it unchanged, for chaining at allocation sites (internal/vm's
// allocateString/allocateMap/allocateClosure etc., §6).
func (c *Collector) Track(obj *value.Object, sizeEstimate int64) *value.Object {
	obj.Next = c.head
	c.head = obj
	c.allocated += sizeEstimate
	return obj
}

// ShouldCollect reports whether accumulated allocation has crossed the
// current threshold. The VM calls this at allocation points, never mid
// opcode-effect (§4.4).
func (c *Collector) ShouldCollect() bool {
	return c.allocated >= c.threshold
}

// Protect pushes v onto the protection stack: a temporary GC root so a
// compound allocation sequence (e.g. building a List whose elements are
// themselves fresh allocations) survives a collection triggered mid
// sequence. Unprotect(n) pops n entries once the sequence has installed its
// result somewhere the normal root set already covers.
func (c *Collector) Protect(v value.Value) {
	c.protected = append(c.protected, v)
}

func (c *Collector) Unprotect(n int) {
	if n > len(c.protected) {
		n = len(c.protected)
	}
	c.protected = c.protected[:len(c.protected)-n]
}

// Collect runs one full stop-the-world mark-sweep cycle.
func (c *Collector) Collect() {
	c.Collections++
	marked := make(map[*value.Object]bool)

	mark := func(v value.Value) {
		markValue(v, marked)
	}
	if c.roots != nil {
		c.roots.GCRoots(mark)
	}
	for _, v := range c.protected {
		mark(v)
	}

	var kept *value.Object
	var freed int64
	for obj := c.head; obj != nil; {
		next := obj.Next
		if marked[obj] {
			obj.Marked = false // reset for next cycle
			obj.Next = kept
			kept = obj
		} else {
			freed++
		}
		obj = next
	}
	c.head = kept
	c.Freed += freed

	c.allocated = 0
	c.threshold = int64(float64(c.threshold) * c.growth)
}

// markValue recursively marks obj and everything it transitively
// references via its Tracer implementation, guarding against cycles with
// the visited set (object graphs routinely contain them: an Instance whose
// field points back to a List containing the Instance, etc.).
func markValue(v value.Value, marked map[*value.Object]bool) {
	if !v.IsObject() {
		return
	}
	obj := v.AsObject()
	if obj == nil || marked[obj] {
		return
	}
	marked[obj] = true
	obj.Marked = true
	if t, ok := tracerFor(v); ok {
		t.Trace(func(child value.Value) { markValue(child, marked) })
	}
}

// tracerFor recovers the concrete Tracer for v's object type. A type switch
// on value.ObjectType rather than a Go interface assertion on *Object,
// since Object itself carries no vtable — the concrete struct it headers
// does.
func tracerFor(v value.Value) (value.Tracer, bool) {
	switch v.ObjectType() {
	case value.ObjList:
		return v.AsListObj(), true
	case value.ObjMap:
		return v.AsMapObj(), true
	case value.ObjClosure:
		return v.AsClosureObj(), true
	case value.ObjUpvalue:
		return v.AsUpvalueObj(), true
	case value.ObjClass:
		return v.AsClassObj(), true
	case value.ObjInstance:
		return v.AsInstanceObj(), true
	case value.ObjModule:
		return v.AsModuleObj(), true
	case value.ObjIterator:
		return v.AsIteratorObj(), true
	default:
		return nil, false
	}
}
