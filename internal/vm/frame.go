package vm

import "github.com/Xarvie/sptscript/internal/value"

// frame is one call frame (§3.3): the executing Closure, its instruction
// pointer and the base index into the VM's shared register stack. Register
// R(i) for this frame means stack[base+i].
type frame struct {
	closure *value.ClosureObj
	ip      int
	base    int
	// defers is this frame's pending deferred closures, LIFO (§4.3 scenario
	// 5): appended by OP_DEFER, run in reverse on both normal return and
	// error unwind.
	defers []*value.ClosureObj

	// resultReg/wantResults record where the frame that called into this one
	// expects its return value delivered (§4.1's CALL convention); unused for
	// a run() invocation's floor frame, which has no sptscript caller.
	resultReg   int
	wantResults int
}
