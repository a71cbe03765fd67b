// Package compiler is the code generator (C3) and AST-lowering pass (C4):
// it walks an *ast.Program and produces a *bytecode.CompiledChunk. It never
// touches source text — internal/lexer and internal/parser are the
// collaborators that hand it a tree.
package compiler

import (
	"golang.org/x/exp/slices"

	"github.com/Xarvie/sptscript/internal/bytecode"
	splerrors "github.com/Xarvie/sptscript/internal/errors"
)

// localVar is one named register slot live in the current block.
type localVar struct {
	name  string
	slot  uint8
	depth int
}

// upvalDesc mirrors bytecode.UpvalueDesc while the enclosing chain is still
// being built.
type upvalDesc struct {
	name    string
	index   uint8
	isLocal bool
}

// loopCtx tracks the patch lists a break/continue inside the current loop
// need to resolve once the loop's bounds are known. continue is a forward
// jump like break, not a direct backward jump to the loop top: a C-style
// for's continue must still run the post-expression, so both are patched
// lazily once popLoop learns where continues should actually land.
type loopCtx struct {
	breakJumps    []int
	continueJumps []int
	parent        *loopCtx
}

// funcState is one function's worth of compile-time bookkeeping: register
// allocation, lexical scoping, upvalue resolution and jump patching. Nested
// functions (closures, methods) get their own funcState chained to the
// enclosing one via parent, the same shape a Lua-style single-pass compiler
// uses to resolve upvalues across arbitrarily deep nesting.
type funcState struct {
	parent *funcState
	proto  *bytecode.Prototype

	locals    []localVar
	scopeDepth int
	freeReg    uint8
	maxReg     uint8

	upvalues []upvalDesc
	loop     *loopCtx

	constIndex map[bytecode.Constant]int

	filename string
	errs     *[]error
}

func newFuncState(parent *funcState, name, source, filename string, errs *[]error) *funcState {
	return &funcState{
		parent:     parent,
		proto:      &bytecode.Prototype{Name: name, Source: source},
		constIndex: make(map[bytecode.Constant]int),
		filename:   filename,
		errs:       errs,
	}
}

func (fs *funcState) errorf(line int, format string, args ...interface{}) {
	*fs.errs = append(*fs.errs, splerrors.NewCompileError(fs.filename, line, 0, format, args...))
}

// ---------------------------------------------------------------------
// register allocation
// ---------------------------------------------------------------------

func (fs *funcState) reserveReg() uint8 {
	r := fs.freeReg
	fs.freeReg++
	if fs.freeReg > fs.maxReg {
		fs.maxReg = fs.freeReg
	}
	return r
}

func (fs *funcState) freeTo(mark uint8) {
	fs.freeReg = mark
}

// ---------------------------------------------------------------------
// scopes & locals
// ---------------------------------------------------------------------

func (fs *funcState) enterScope() {
	fs.scopeDepth++
}

// leaveScope pops locals declared in the scope being closed and returns the
// register mark to reclaim, so the caller can fs.freeTo(mark) once any
// trailing expression using those registers has been emitted.
func (fs *funcState) leaveScope() uint8 {
	fs.scopeDepth--
	mark := fs.freeReg
	for len(fs.locals) > 0 && fs.locals[len(fs.locals)-1].depth > fs.scopeDepth {
		last := fs.locals[len(fs.locals)-1]
		if last.slot < mark {
			mark = last.slot
		}
		fs.locals = fs.locals[:len(fs.locals)-1]
	}
	return mark
}

func (fs *funcState) declareLocal(name string) uint8 {
	slot := fs.reserveReg()
	fs.locals = append(fs.locals, localVar{name: name, slot: slot, depth: fs.scopeDepth})
	return slot
}

// resolveLocal finds name's innermost live declaration. Shadowing means the
// most recently declared match wins, so the search runs over a reversed
// clone of locals rather than the declaration order they're stored in.
func (fs *funcState) resolveLocal(name string) (uint8, bool) {
	innermostFirst := slices.Clone(fs.locals)
	slices.Reverse(innermostFirst)
	idx := slices.IndexFunc(innermostFirst, func(l localVar) bool { return l.name == name })
	if idx < 0 {
		return 0, false
	}
	return innermostFirst[idx].slot, true
}

// resolveUpvalue finds name in an enclosing function, threading an
// UpvalueDesc through every function on the path so nested closures chain
// correctly (§3.2/§4.3).
func (fs *funcState) resolveUpvalue(name string) (uint8, bool) {
	if fs.parent == nil {
		return 0, false
	}
	for i, uv := range fs.upvalues {
		if uv.name == name {
			return uint8(i), true
		}
	}
	if slot, ok := fs.parent.resolveLocal(name); ok {
		idx := fs.addUpvalue(name, slot, true)
		return idx, true
	}
	if idx, ok := fs.parent.resolveUpvalue(name); ok {
		return fs.addUpvalue(name, idx, false), true
	}
	return 0, false
}

func (fs *funcState) addUpvalue(name string, index uint8, isLocal bool) uint8 {
	fs.upvalues = append(fs.upvalues, upvalDesc{name: name, index: index, isLocal: isLocal})
	return uint8(len(fs.upvalues) - 1)
}

// ---------------------------------------------------------------------
// constants
// ---------------------------------------------------------------------

func (fs *funcState) intern(c bytecode.Constant) uint16 {
	if idx, ok := fs.constIndex[c]; ok {
		return uint16(idx)
	}
	idx := len(fs.proto.Constants)
	fs.proto.Constants = append(fs.proto.Constants, c)
	fs.constIndex[c] = idx
	return uint16(idx)
}

// ---------------------------------------------------------------------
// instruction emission & jump patching
// ---------------------------------------------------------------------

func (fs *funcState) emit(instr bytecode.Instruction, line int) int {
	fs.proto.Code = append(fs.proto.Code, instr)
	fs.proto.Lines = append(fs.proto.Lines, int32(line))
	return len(fs.proto.Code) - 1
}

func (fs *funcState) emitABC(op bytecode.OpCode, a, b, c uint8, line int) int {
	return fs.emit(bytecode.CreateABC(op, a, b, c), line)
}

func (fs *funcState) emitABx(op bytecode.OpCode, a uint8, bx uint16, line int) int {
	return fs.emit(bytecode.CreateABx(op, a, bx), line)
}

func (fs *funcState) emitAsBx(op bytecode.OpCode, a uint8, sbx int32, line int) int {
	return fs.emit(bytecode.CreateAsBx(op, a, sbx), line)
}

// emitJump emits a forward jump with a placeholder offset and returns its
// pc so it can be patched once the target is known.
func (fs *funcState) emitJump(line int) int {
	return fs.emitAsBx(bytecode.OP_JMP, 0, 0, line)
}

// patchJump backpatches the jump at pc to land at the current end of code.
func (fs *funcState) patchJump(pc int) {
	fs.patchJumpTo(pc, len(fs.proto.Code))
}

// patchJumpTo backpatches the jump at pc to land at an arbitrary target
// (forward or backward), used for continue-jumps whose destination
// (the post-expression of a C-style for, or the condition re-check of a
// while) is only pinned down after the jump itself was emitted.
func (fs *funcState) patchJumpTo(pc int, target int) {
	offset := int32(target - pc - 1)
	fs.proto.Code[pc] = fs.proto.Code[pc].SetBx(uint16(int32(bytecode.MaxArgSBx) + offset))
}

// emitLoopBack emits a backward unconditional jump to target.
func (fs *funcState) emitLoopBack(target int, line int) {
	offset := int32(target - len(fs.proto.Code) - 1)
	fs.emitAsBx(bytecode.OP_JMP, 0, offset, line)
}

func (fs *funcState) here() int { return len(fs.proto.Code) }

// ---------------------------------------------------------------------
// loop break/continue bookkeeping
// ---------------------------------------------------------------------

func (fs *funcState) pushLoop() {
	fs.loop = &loopCtx{parent: fs.loop}
}

// popLoop patches every break to land here (the loop's exit) and every
// continue to land at continueTarget (the post-expression for a C-style
// for, or the condition re-check for a while/foreach).
func (fs *funcState) popLoop(continueTarget int) {
	for _, pc := range fs.loop.breakJumps {
		fs.patchJump(pc)
	}
	for _, pc := range fs.loop.continueJumps {
		fs.patchJumpTo(pc, continueTarget)
	}
	fs.loop = fs.loop.parent
}

func (fs *funcState) addBreak(line int) {
	if fs.loop == nil {
		fs.errorf(line, "break outside loop")
		return
	}
	pc := fs.emitJump(line)
	fs.loop.breakJumps = append(fs.loop.breakJumps, pc)
}

func (fs *funcState) addContinue(line int) {
	if fs.loop == nil {
		fs.errorf(line, "continue outside loop")
		return
	}
	pc := fs.emitJump(line)
	fs.loop.continueJumps = append(fs.loop.continueJumps, pc)
}

// finish fills in the prototype's remaining metadata once the body has been
// fully lowered.
func (fs *funcState) finish(numParams int, isVararg bool, lastLine int) *bytecode.Prototype {
	fs.proto.NumParams = uint8(numParams)
	fs.proto.NumUpvalues = uint8(len(fs.upvalues))
	fs.proto.MaxStackSize = fs.maxReg
	if fs.proto.MaxStackSize < 2 {
		fs.proto.MaxStackSize = 2
	}
	fs.proto.IsVararg = isVararg
	fs.proto.LastLineDefined = lastLine
	for _, uv := range fs.upvalues {
		fs.proto.Upvalues = append(fs.proto.Upvalues, bytecode.UpvalueDesc{
			Index: uv.index, IsLocal: uv.isLocal, Name: uv.name,
		})
	}
	return fs.proto
}
