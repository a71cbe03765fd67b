package compiler

import (
	"github.com/Xarvie/sptscript/internal/ast"
	"github.com/Xarvie/sptscript/internal/bytecode"
)

// compileBlock lowers a statement list inside its own lexical scope.
func (c *Compiler) compileBlock(fs *funcState, stmts []ast.Stmt) {
	fs.enterScope()
	for _, s := range stmts {
		c.compileStmt(fs, s)
	}
	mark := fs.leaveScope()
	fs.freeTo(mark)
}

func (c *Compiler) compileStmt(fs *funcState, stmt ast.Stmt) {
	switch s := stmt.(type) {
	case *ast.ExprStmt:
		mark := fs.freeReg
		r := fs.reserveReg()
		c.compileExpr(fs, s.Expr, r)
		fs.freeTo(mark)
	case *ast.VarDecl:
		c.compileVarDecl(fs, s)
	case *ast.MultiVarDecl:
		c.compileMultiVarDecl(fs, s)
	case *ast.FuncDecl:
		c.compileFuncDecl(fs, s)
	case *ast.ClassDecl:
		c.compileClassDecl(fs, s)
	case *ast.ReturnStmt:
		c.compileReturn(fs, s)
	case *ast.IfStmt:
		c.compileIf(fs, s)
	case *ast.WhileStmt:
		c.compileWhile(fs, s)
	case *ast.ForStmt:
		c.compileFor(fs, s)
	case *ast.ForInStmt:
		c.compileForIn(fs, s)
	case *ast.BreakStmt:
		fs.addBreak(s.Line)
	case *ast.ContinueStmt:
		fs.addContinue(s.Line)
	case *ast.DeferStmt:
		c.compileDefer(fs, s)
	case *ast.ImportStmt:
		c.compileImport(fs, s)
	case *ast.ImportFromStmt:
		c.compileImportFrom(fs, s)
	case *ast.BlockStmt:
		c.compileBlock(fs, s.Stmts)
	default:
		fs.errorf(0, "unsupported statement %T", stmt)
	}
}

func (c *Compiler) compileVarDecl(fs *funcState, s *ast.VarDecl) {
	slot := fs.declareLocal(s.Name)
	if s.Init != nil {
		c.compileExpr(fs, s.Init, slot)
	} else {
		fs.emitABx(bytecode.OP_LOADNIL, slot, 1, s.Line)
	}
	if s.Exported {
		c.addExport(s.Name)
		c.emitExportBinding(fs, s.Name, slot, s.Line)
	}
}

// emitExportBinding mirrors an exported top-level binding into the module's
// __env table so a module manager reading the root frame's env result back
// (§4.7) sees it under its name: locals only live by register position,
// never by name, once the root frame finishes running.
func (c *Compiler) emitExportBinding(fs *funcState, name string, slot uint8, line int) {
	mark := fs.freeReg
	env := c.envRegister(fs, line)
	k := fs.intern(bytecode.NewStringConst(name))
	kreg := fs.reserveReg()
	fs.emitABx(bytecode.OP_LOADK, kreg, k, line)
	fs.emitABC(bytecode.OP_SETINDEX, env, kreg, slot, line)
	fs.freeTo(mark)
}

// compileMultiVarDecl lowers `vars a, b = call();` (§4.3): a Call/MethodCall
// requests len(Names) results directly from CALL's C operand and each name
// after the first is then moved from its result register; any other
// expression only feeds the first name and the rest are nil.
func (c *Compiler) compileMultiVarDecl(fs *funcState, s *ast.MultiVarDecl) {
	slots := make([]uint8, len(s.Names))
	for i, name := range s.Names {
		slots[i] = fs.declareLocal(name)
	}

	base := fs.freeReg // the call's callee register, where its results land
	switch call := s.Call.(type) {
	case *ast.Call:
		c.compileCall(fs, call, slots[0], len(s.Names))
	case *ast.MethodCall:
		c.compileMethodCall(fs, call, slots[0], len(s.Names))
	default:
		c.compileExpr(fs, s.Call, slots[0])
		for _, slot := range slots[1:] {
			fs.emitABx(bytecode.OP_LOADNIL, slot, 1, s.Line)
		}
		return
	}
	for i, slot := range slots[1:] {
		fs.emitABC(bytecode.OP_MOVE, slot, base+uint8(i+1), 0, s.Line)
	}
}

func (c *Compiler) compileFuncDecl(fs *funcState, s *ast.FuncDecl) {
	slot := fs.declareLocal(s.Fn.Name)
	c.compileFuncExpr(fs, s.Fn, slot)
	if s.Exported {
		c.addExport(s.Fn.Name)
		c.emitExportBinding(fs, s.Fn.Name, slot, s.Line)
	}
}

// compileClassDecl lowers a class into a NEWCLASS-constructed value holding
// compiled method closures; field initializers run inside __init (see
// compileClassBody) (§4.3, one level of instance-then-class field dispatch,
// no deeper inheritance).
func (c *Compiler) compileClassDecl(fs *funcState, s *ast.ClassDecl) {
	slot := fs.declareLocal(s.Name)
	classProto := c.compileClassBody(fs, s)
	idx := len(fs.proto.Protos)
	fs.proto.Protos = append(fs.proto.Protos, classProto)
	fs.emitABx(bytecode.OP_NEWCLASS, slot, uint16(idx), s.Line)
	if s.Exported {
		c.addExport(s.Name)
		c.emitExportBinding(fs, s.Name, slot, s.Line)
	}
}

// compileClassBody compiles each method as a child prototype of a synthetic
// "class body" prototype; the VM reads Protos off this synthetic prototype
// when executing NEWCLASS to build the class's method table. Field
// initializers are compiled into the prologue of __init (compileMethodInto),
// so they run once per instance; a class with initialized fields and no
// __init of its own gets a synthesized variadic __init that only runs them.
func (c *Compiler) compileClassBody(fs *funcState, s *ast.ClassDecl) *bytecode.Prototype {
	body := &bytecode.Prototype{Name: s.Name, Source: fs.proto.Source, LineDefined: s.Line}
	hasInit := false
	for _, m := range s.Methods {
		hasInit = hasInit || m.Name == "__init"
		childFS := newFuncState(fs, m.Name, fs.proto.Source, fs.filename, fs.errs)
		c.compileMethodInto(childFS, m, s.Fields)
		// +1: "this" occupies register 0 ahead of the declared parameters,
		// mirroring the implicit receiver slot every CALL window carries.
		body.Protos = append(body.Protos, childFS.finish(len(m.Params)+1, m.Variadic, lastStmtLine(m.Body, m.Line)))
	}
	needsInit := false
	for _, f := range s.Fields {
		needsInit = needsInit || f.Init != nil
	}
	if needsInit && !hasInit {
		m := &ast.FuncExpr{Name: "__init", Params: []ast.Param{{Name: "__args"}}, IsMethod: true, Variadic: true, Line: s.Line}
		childFS := newFuncState(fs, m.Name, fs.proto.Source, fs.filename, fs.errs)
		c.compileMethodInto(childFS, m, s.Fields)
		body.Protos = append(body.Protos, childFS.finish(len(m.Params)+1, true, s.Line))
	}
	return body
}

func (c *Compiler) compileMethodInto(fs *funcState, m *ast.FuncExpr, fields []ast.FieldDecl) {
	fs.enterScope()
	fs.declareLocal("this")
	for _, p := range m.Params {
		fs.declareLocal(p.Name)
	}
	if m.Name == "__init" {
		this, _ := fs.resolveLocal("this")
		for _, f := range fields {
			if f.Init == nil {
				continue
			}
			mark := fs.freeReg
			k := fs.intern(bytecode.NewStringConst(f.Name))
			kreg := fs.reserveReg()
			fs.emitABx(bytecode.OP_LOADK, kreg, k, m.Line)
			val := fs.reserveReg()
			c.compileExpr(fs, f.Init, val)
			fs.emitABC(bytecode.OP_SETINDEX, this, kreg, val, m.Line)
			fs.freeTo(mark)
		}
	}
	for _, st := range m.Body {
		c.compileStmt(fs, st)
	}
	fs.emitABC(bytecode.OP_RETURN, 0, 1, 0, lastStmtLine(m.Body, m.Line))
}

func (c *Compiler) compileReturn(fs *funcState, s *ast.ReturnStmt) {
	if s.Value == nil {
		fs.emitABC(bytecode.OP_RETURN, 0, 1, 0, s.Line)
		return
	}
	mark := fs.freeReg
	r := fs.reserveReg()
	c.compileExpr(fs, s.Value, r)
	fs.emitABC(bytecode.OP_RETURN, r, 2, 0, s.Line)
	fs.freeTo(mark)
}

func (c *Compiler) compileIf(fs *funcState, s *ast.IfStmt) {
	mark := fs.freeReg
	cond := fs.reserveReg()
	c.compileExpr(fs, s.Cond, cond)
	fs.emitABC(bytecode.OP_TEST, cond, 0, 0, s.Line)
	fs.freeTo(mark)
	elseJump := fs.emitJump(s.Line)
	c.compileBlock(fs, s.Then)
	if len(s.Else) > 0 {
		endJump := fs.emitJump(s.Line)
		fs.patchJump(elseJump)
		c.compileBlock(fs, s.Else)
		fs.patchJump(endJump)
	} else {
		fs.patchJump(elseJump)
	}
}

func (c *Compiler) compileWhile(fs *funcState, s *ast.WhileStmt) {
	top := fs.here()
	mark := fs.freeReg
	cond := fs.reserveReg()
	c.compileExpr(fs, s.Cond, cond)
	fs.emitABC(bytecode.OP_TEST, cond, 0, 0, s.Line)
	fs.freeTo(mark)
	exitJump := fs.emitJump(s.Line)

	fs.pushLoop()
	c.compileBlock(fs, s.Body)
	fs.emitLoopBack(top, s.Line)
	fs.popLoop(top) // continue re-checks the condition

	fs.patchJump(exitJump)
}

// compileFor lowers the C-style numeric for (§4.3) the same way compileWhile
// does: TEST+JMP around the condition, with the post-expression run on the
// path continue also targets. OP_FORPREP/OP_FORLOOP are in the instruction
// set and the VM executes them, but this generator does not emit them: every
// C-style for, including one with a constant step, uses the TEST/JMP form.
func (c *Compiler) compileFor(fs *funcState, s *ast.ForStmt) {
	fs.enterScope()
	if s.Init != nil {
		c.compileStmt(fs, s.Init)
	}

	top := fs.here()
	var exitJump int
	hasCond := s.Cond != nil
	if hasCond {
		mark := fs.freeReg
		cond := fs.reserveReg()
		c.compileExpr(fs, s.Cond, cond)
		fs.emitABC(bytecode.OP_TEST, cond, 0, 0, s.Line)
		fs.freeTo(mark)
		exitJump = fs.emitJump(s.Line)
	}

	fs.pushLoop()
	c.compileBlock(fs, s.Body)
	postStart := fs.here() // continue lands here, so the post-expression still runs
	if s.Post != nil {
		mark := fs.freeReg
		r := fs.reserveReg()
		c.compileExpr(fs, s.Post, r)
		fs.freeTo(mark)
	}
	fs.emitLoopBack(top, s.Line)
	fs.popLoop(postStart)

	if hasCond {
		fs.patchJump(exitJump)
	}
	mark := fs.leaveScope()
	fs.freeTo(mark)
}

// autoIterGlobal is the hidden global compileForIn calls once per foreach
// loop to coerce the collection expression's value into something callable
// (§4.3); see registerAutoIter.
const autoIterGlobal = "__autoiter"

// compileForIn lowers both foreach forms onto the documented stateful
// iterator protocol (§4.3): "the iterator expression is evaluated once,
// then each iteration calls it and checks whether the first result is
// falsy". The collection expression is compiled once into `iter`, then
// coerced in place (also once) into something callable via the
// registerAutoIter global — a list/map becomes a fresh IteratorObj, and an
// already-callable value (a user-authored closure meant to serve as a
// custom iterator) passes through untouched. Every subsequent iteration is
// then a plain CALL on a fresh copy of `iter`, so `iter` itself is never
// clobbered by a call's result.
func (c *Compiler) compileForIn(fs *funcState, s *ast.ForInStmt) {
	fs.enterScope()
	mark := fs.freeReg
	iter := fs.reserveReg()
	c.compileExpr(fs, s.Collection, iter)

	wrapMark := fs.freeReg
	autoiter := fs.reserveReg()
	c.compileIdentRead(fs, &ast.Ident{Name: autoIterGlobal, Line: s.Line}, autoiter)
	recv := fs.reserveReg()
	fs.emitABx(bytecode.OP_LOADNIL, recv, 1, s.Line)
	arg := fs.reserveReg()
	fs.emitABC(bytecode.OP_MOVE, arg, iter, 0, s.Line)
	fs.emitABC(bytecode.OP_CALL, autoiter, 3, 2, s.Line) // nargs+1: recv+1 arg+1; nresults+1: 1 result
	fs.emitABC(bytecode.OP_MOVE, iter, autoiter, 0, s.Line)
	fs.freeTo(wrapMark)

	top := fs.here()
	keySlot := uint8(0)
	if s.KeyVar != "" {
		keySlot = fs.declareLocal(s.KeyVar)
	}
	valSlot := fs.declareLocal(s.ValueVar)

	stepMark := fs.freeReg
	callBase := fs.reserveReg()
	fs.emitABC(bytecode.OP_MOVE, callBase, iter, 0, s.Line)
	callRecv := fs.reserveReg()
	fs.emitABx(bytecode.OP_LOADNIL, callRecv, 1, s.Line)
	fs.emitABC(bytecode.OP_CALL, callBase, 2, 2, s.Line) // nargs+1: recv only+1; nresults+1: 1 result
	fs.emitABC(bytecode.OP_TEST, callBase, 0, 0, s.Line)
	exitJump := fs.emitJump(s.Line)

	if s.KeyVar != "" {
		k0 := fs.intern(bytecode.NewIntConst(0))
		kreg0 := fs.reserveReg()
		fs.emitABx(bytecode.OP_LOADK, kreg0, k0, s.Line)
		fs.emitABC(bytecode.OP_GETINDEX, keySlot, callBase, kreg0, s.Line)
	}
	k1 := fs.intern(bytecode.NewIntConst(1))
	kreg1 := fs.reserveReg()
	fs.emitABx(bytecode.OP_LOADK, kreg1, k1, s.Line)
	fs.emitABC(bytecode.OP_GETINDEX, valSlot, callBase, kreg1, s.Line)
	fs.freeTo(stepMark)

	fs.pushLoop()
	c.compileBlock(fs, s.Body)
	fs.emitLoopBack(top, s.Line)
	fs.popLoop(top) // continue re-invokes the iterator call

	fs.patchJump(exitJump)
	lmark := fs.leaveScope()
	fs.freeTo(lmark)
	fs.freeTo(mark)
}

// compileDefer registers the block to run, LIFO, at scope exit (§4.3, §8
// scenario 5) by compiling it as an anonymous zero-argument closure pushed
// with OP_DEFER; the VM's frame-unwind runs these in reverse order.
func (c *Compiler) compileDefer(fs *funcState, s *ast.DeferStmt) {
	fnExpr := &ast.FuncExpr{Body: s.Body, Line: s.Line}
	mark := fs.freeReg
	r := fs.reserveReg()
	c.compileFuncExpr(fs, fnExpr, r)
	fs.emitABC(bytecode.OP_DEFER, r, 0, 0, s.Line)
	fs.freeTo(mark)
}

func (c *Compiler) compileImport(fs *funcState, s *ast.ImportStmt) {
	name := s.Alias
	if name == "" {
		name = s.ModuleName
	}
	slot := fs.declareLocal(name)
	k := fs.intern(bytecode.NewStringConst(s.ModuleName))
	fs.emitABx(bytecode.OP_IMPORT, slot, k, s.Line)
}

// compileImportFrom lowers `import { a, b } from "name"` (§8 scenario 4) to
// one OP_IMPORT_FROM per binding; the key interned for each is
// "module\x00name" so a single ABx-encoded constant index carries both the
// module and the symbol without a second opcode operand slot.
func (c *Compiler) compileImportFrom(fs *funcState, s *ast.ImportFromStmt) {
	for _, name := range s.Names {
		slot := fs.declareLocal(name)
		composite := s.ModuleName + "\x00" + name
		k := fs.intern(bytecode.NewStringConst(composite))
		fs.emitABx(bytecode.OP_IMPORT_FROM, slot, k, s.Line)
	}
}

// lastStmtLine is a placeholder for a future trailing-line-tracking pass;
// today every FuncExpr already carries its own Line from the declaration
// header, which is what callers fall back to.
func lastStmtLine(stmts []ast.Stmt, fallback int) int {
	return fallback
}
