package compiler

import (
	"github.com/Xarvie/sptscript/internal/ast"
	"github.com/Xarvie/sptscript/internal/bytecode"
)

// compileExpr lowers expr into code that leaves its value in register
// `target`. It returns target so call sites can chain naturally.
func (c *Compiler) compileExpr(fs *funcState, expr ast.Expr, target uint8) uint8 {
	line := exprLine(expr)
	switch e := expr.(type) {
	case *ast.NilLit:
		fs.emitABx(bytecode.OP_LOADNIL, target, 1, line)
		return target
	case *ast.BoolLit:
		b := uint8(0)
		if e.Value {
			b = 1
		}
		fs.emitABC(bytecode.OP_LOADBOOL, target, b, 0, line)
		return target
	case *ast.IntLit:
		k := fs.intern(bytecode.NewIntConst(e.Value))
		fs.emitABx(bytecode.OP_LOADK, target, k, line)
		return target
	case *ast.FloatLit:
		k := fs.intern(bytecode.NewFloatConst(e.Value))
		fs.emitABx(bytecode.OP_LOADK, target, k, line)
		return target
	case *ast.StringLit:
		k := fs.intern(bytecode.NewStringConst(e.Value))
		fs.emitABx(bytecode.OP_LOADK, target, k, line)
		return target
	case *ast.Ident:
		return c.compileIdentRead(fs, e, target)
	case *ast.Unary:
		return c.compileUnary(fs, e, target)
	case *ast.Binary:
		return c.compileBinary(fs, e, target)
	case *ast.Logical:
		return c.compileLogical(fs, e, target)
	case *ast.Assign:
		return c.compileAssign(fs, e, target)
	case *ast.GetProperty:
		return c.compileGetProperty(fs, e, target)
	case *ast.SetProperty:
		return c.compileSetProperty(fs, e, target)
	case *ast.GetIndex:
		return c.compileGetIndex(fs, e, target)
	case *ast.SetIndex:
		return c.compileSetIndex(fs, e, target)
	case *ast.Call:
		return c.compileCall(fs, e, target, 1)
	case *ast.MethodCall:
		return c.compileMethodCall(fs, e, target, 1)
	case *ast.New:
		return c.compileNew(fs, e, target)
	case *ast.ListLit:
		return c.compileListLit(fs, e, target)
	case *ast.MapLit:
		return c.compileMapLit(fs, e, target)
	case *ast.FuncExpr:
		return c.compileFuncExpr(fs, e, target)
	}
	fs.errorf(line, "unsupported expression %T", expr)
	return target
}

func (c *Compiler) compileIdentRead(fs *funcState, e *ast.Ident, target uint8) uint8 {
	if slot, ok := fs.resolveLocal(e.Name); ok {
		if slot != target {
			fs.emitABC(bytecode.OP_MOVE, target, slot, 0, e.Line)
		}
		return target
	}
	if idx, ok := fs.resolveUpvalue(e.Name); ok {
		fs.emitABC(bytecode.OP_GETUPVAL, target, idx, 0, e.Line)
		return target
	}
	// Falls through to the module environment table held in upvalue/local 0
	// of the root function (§4.3 "module __env slot").
	mark := fs.freeReg
	env := c.envRegister(fs, e.Line)
	k := fs.intern(bytecode.NewStringConst(e.Name))
	kreg := fs.reserveReg()
	fs.emitABx(bytecode.OP_LOADK, kreg, k, e.Line)
	fs.emitABC(bytecode.OP_GETINDEX, target, env, kreg, e.Line)
	fs.freeTo(mark)
	return target
}

// envRegister returns the register holding the current module's global
// environment table (a Map), resolving it as a local or upvalue the same
// way any other identifier would be.
func (c *Compiler) envRegister(fs *funcState, line int) uint8 {
	if slot, ok := fs.resolveLocal(envName); ok {
		return slot
	}
	if idx, ok := fs.resolveUpvalue(envName); ok {
		// Left reserved: the caller's own mark/freeTo reclaims this
		// register once it is done using the env table.
		r := fs.reserveReg()
		fs.emitABC(bytecode.OP_GETUPVAL, r, idx, 0, line)
		return r
	}
	fs.errorf(line, "internal: module environment not in scope")
	return 0
}

func (c *Compiler) compileUnary(fs *funcState, e *ast.Unary, target uint8) uint8 {
	mark := fs.freeReg
	operand := fs.reserveReg()
	c.compileExpr(fs, e.Operand, operand)
	switch e.Op {
	case "-":
		fs.emitABC(bytecode.OP_UNM, target, operand, 0, e.Line)
	case "!":
		// !x is the truthiness negation of x (so !nil is true): TEST+LOADBOOL
		// pair mirroring the fused compare forms used elsewhere in the
		// instruction set.
		fs.emitNegate(operand, target, e.Line)
	}
	fs.freeTo(mark)
	return target
}

// emitNegate emits the TEST+LOADBOOL pair that inverts testReg's truthiness
// into resultReg (used for unary "!" and for folding "!=" and the flipped
// relational comparisons onto their same-direction counterpart). LOADBOOL's
// own skip-next-instruction C operand is left 0 throughout since the jumps
// here are already explicit.
func (fs *funcState) emitNegate(testReg, resultReg uint8, line int) {
	fs.emitABC(bytecode.OP_TEST, testReg, 0, 0, line)
	j := fs.emitJump(line)
	fs.emitABC(bytecode.OP_LOADBOOL, resultReg, 0, 0, line)
	j2 := fs.emitJump(line)
	fs.patchJump(j)
	fs.emitABC(bytecode.OP_LOADBOOL, resultReg, 1, 0, line)
	fs.patchJump(j2)
}

// smallIntLit reports whether e is an integer literal fitting the 8-bit
// signed immediate ADDI/EQI/LTI/LEI take in their C operand.
func smallIntLit(e ast.Expr) (int64, bool) {
	lit, ok := e.(*ast.IntLit)
	if !ok || lit.Value < -128 || lit.Value > 127 {
		return 0, false
	}
	return lit.Value, true
}

// literalConst converts any literal expression to the constant-pool entry
// EQK compares against, for equality folds a small-int immediate can't
// cover (non-integer constants, or integers outside int8 range).
func literalConst(e ast.Expr) (bytecode.Constant, bool) {
	switch v := e.(type) {
	case *ast.NilLit:
		return bytecode.NewNilConst(), true
	case *ast.BoolLit:
		return bytecode.NewBoolConst(v.Value), true
	case *ast.IntLit:
		return bytecode.NewIntConst(v.Value), true
	case *ast.FloatLit:
		return bytecode.NewFloatConst(v.Value), true
	case *ast.StringLit:
		return bytecode.NewStringConst(v.Value), true
	}
	return bytecode.Constant{}, false
}

// compileOperand compiles e for use as a binary operator's operand, using a
// local variable's own register in place rather than copying it to a fresh
// temporary (§4.2's third peephole rule).
func (c *Compiler) compileOperand(fs *funcState, e ast.Expr) uint8 {
	if id, ok := e.(*ast.Ident); ok {
		if slot, ok := fs.resolveLocal(id.Name); ok {
			return slot
		}
	}
	r := fs.reserveReg()
	c.compileExpr(fs, e, r)
	return r
}

func (c *Compiler) compileBinary(fs *funcState, e *ast.Binary, target uint8) uint8 {
	switch e.Op {
	case "+", "-":
		if c.foldAddSub(fs, e, target) {
			return target
		}
	case "==":
		if c.tryFoldEq(fs, e, target, false) {
			return target
		}
	case "!=":
		if c.tryFoldEq(fs, e, target, true) {
			return target
		}
	case "<", "<=", ">", ">=":
		if c.tryFoldRelational(fs, e, target) {
			return target
		}
	}

	mark := fs.freeReg
	l := c.compileOperand(fs, e.Left)
	r := c.compileOperand(fs, e.Right)

	switch e.Op {
	case "+":
		fs.emitABC(bytecode.OP_ADD, target, l, r, e.Line)
	case "-":
		fs.emitABC(bytecode.OP_SUB, target, l, r, e.Line)
	case "*":
		fs.emitABC(bytecode.OP_MUL, target, l, r, e.Line)
	case "/":
		fs.emitABC(bytecode.OP_DIV, target, l, r, e.Line)
	case "%":
		fs.emitABC(bytecode.OP_MOD, target, l, r, e.Line)
	case "==":
		fs.emitABC(bytecode.OP_EQ, target, l, r, e.Line)
	case "!=":
		fs.emitABC(bytecode.OP_EQ, target, l, r, e.Line)
		fs.emitNegate(target, target, e.Line)
	case "<":
		fs.emitABC(bytecode.OP_LT, target, l, r, e.Line)
	case "<=":
		fs.emitABC(bytecode.OP_LE, target, l, r, e.Line)
	case ">":
		fs.emitABC(bytecode.OP_LT, target, r, l, e.Line)
	case ">=":
		fs.emitABC(bytecode.OP_LE, target, r, l, e.Line)
	default:
		fs.errorf(e.Line, "unknown binary operator %q", e.Op)
	}
	fs.freeTo(mark)
	return target
}

// foldAddSub implements §4.2's first peephole rule: ADD/SUB against a small
// integer literal collapses to ADDI. Addition is commutative so either side
// may hold the literal; subtraction only folds a literal right operand,
// negated into the immediate, and skips -128 since -(-128) overflows the
// signed 8-bit immediate.
func (c *Compiler) foldAddSub(fs *funcState, e *ast.Binary, target uint8) bool {
	if e.Op == "+" {
		if lit, ok := smallIntLit(e.Right); ok {
			mark := fs.freeReg
			l := c.compileOperand(fs, e.Left)
			fs.emitABC(bytecode.OP_ADDI, target, l, uint8(int8(lit)), e.Line)
			fs.freeTo(mark)
			return true
		}
		if lit, ok := smallIntLit(e.Left); ok {
			mark := fs.freeReg
			r := c.compileOperand(fs, e.Right)
			fs.emitABC(bytecode.OP_ADDI, target, r, uint8(int8(lit)), e.Line)
			fs.freeTo(mark)
			return true
		}
		return false
	}
	if lit, ok := smallIntLit(e.Right); ok && lit != -128 {
		mark := fs.freeReg
		l := c.compileOperand(fs, e.Left)
		fs.emitABC(bytecode.OP_ADDI, target, l, uint8(int8(-lit)), e.Line)
		fs.freeTo(mark)
		return true
	}
	return false
}

// tryFoldEq implements §4.2's second peephole rule for "=="/"!=": a small
// integer literal on either side collapses to EQI; any other literal
// (bounded to the first 256 constant-pool entries, EQK's C operand being a
// uint8) collapses to EQK. negate additionally inverts the result for "!=",
// reusing the same TEST+LOADBOOL idiom as unary "!".
func (c *Compiler) tryFoldEq(fs *funcState, e *ast.Binary, target uint8, negate bool) bool {
	fold := func(lit ast.Expr, other ast.Expr) bool {
		if v, ok := smallIntLit(lit); ok {
			mark := fs.freeReg
			operand := c.compileOperand(fs, other)
			fs.emitABC(bytecode.OP_EQI, target, operand, uint8(int8(v)), e.Line)
			fs.freeTo(mark)
			return true
		}
		if k, ok := literalConst(lit); ok {
			idx := fs.intern(k)
			if idx > 255 {
				return false
			}
			mark := fs.freeReg
			operand := c.compileOperand(fs, other)
			fs.emitABC(bytecode.OP_EQK, target, operand, uint8(idx), e.Line)
			fs.freeTo(mark)
			return true
		}
		return false
	}
	folded := fold(e.Right, e.Left) || fold(e.Left, e.Right)
	if !folded {
		return false
	}
	if negate {
		fs.emitNegate(target, target, e.Line)
	}
	return true
}

// tryFoldRelational implements §4.2's second peephole rule for the
// ordering operators: a small integer literal on either side collapses to
// LTI/LEI, algebraically rewriting the flipped cases (literal on the left,
// or an operator whose direct opcode doesn't exist) onto the same-direction
// opcode plus a negation: k<a is NOT(a<=k), k<=a is NOT(a<k), a>k is
// NOT(a<=k), a>=k is NOT(a<k).
func (c *Compiler) tryFoldRelational(fs *funcState, e *ast.Binary, target uint8) bool {
	rlit, rok := smallIntLit(e.Right)
	llit, lok := smallIntLit(e.Left)
	if !rok && !lok {
		return false
	}

	emit := func(op bytecode.OpCode, other ast.Expr, lit int64, negate bool) bool {
		mark := fs.freeReg
		operand := c.compileOperand(fs, other)
		fs.emitABC(op, target, operand, uint8(int8(lit)), e.Line)
		fs.freeTo(mark)
		if negate {
			fs.emitNegate(target, target, e.Line)
		}
		return true
	}

	switch e.Op {
	case "<":
		if rok {
			return emit(bytecode.OP_LTI, e.Left, rlit, false)
		}
		return emit(bytecode.OP_LEI, e.Right, llit, true)
	case "<=":
		if rok {
			return emit(bytecode.OP_LEI, e.Left, rlit, false)
		}
		return emit(bytecode.OP_LTI, e.Right, llit, true)
	case ">":
		if rok {
			return emit(bytecode.OP_LEI, e.Left, rlit, true)
		}
		return emit(bytecode.OP_LTI, e.Right, llit, false)
	case ">=":
		if rok {
			return emit(bytecode.OP_LTI, e.Left, rlit, true)
		}
		return emit(bytecode.OP_LEI, e.Right, llit, false)
	}
	return false
}

// compileLogical lowers "&&"/"||" with short-circuit control flow rather
// than as a plain binary opcode (§4.3): the right operand is only
// evaluated when it can change the result.
func (c *Compiler) compileLogical(fs *funcState, e *ast.Logical, target uint8) uint8 {
	c.compileExpr(fs, e.Left, target)
	fs.emitABC(bytecode.OP_TEST, target, 0, 0, e.Line)
	var skip int
	if e.Op == "&&" {
		skip = fs.emitJump(e.Line) // left falsy -> skip right, keep left's value
	} else {
		j := fs.emitJump(e.Line)            // left falsy -> go evaluate right
		jmpOverRight := fs.emitJump(e.Line) // left truthy -> skip right, keep left's value
		fs.patchJump(j)
		c.compileExpr(fs, e.Right, target)
		fs.patchJump(jmpOverRight)
		return target
	}
	c.compileExpr(fs, e.Right, target)
	fs.patchJump(skip)
	return target
}

func (c *Compiler) compileAssign(fs *funcState, e *ast.Assign, target uint8) uint8 {
	if slot, ok := fs.resolveLocal(e.Name); ok {
		c.compileExpr(fs, e.Value, slot)
		if target != slot {
			fs.emitABC(bytecode.OP_MOVE, target, slot, 0, e.Line)
		}
		return target
	}
	if idx, ok := fs.resolveUpvalue(e.Name); ok {
		c.compileExpr(fs, e.Value, target)
		fs.emitABC(bytecode.OP_SETUPVAL, target, idx, 0, e.Line)
		return target
	}
	mark := fs.freeReg
	env := c.envRegister(fs, e.Line)
	k := fs.intern(bytecode.NewStringConst(e.Name))
	kreg := fs.reserveReg()
	fs.emitABx(bytecode.OP_LOADK, kreg, k, e.Line)
	c.compileExpr(fs, e.Value, target)
	fs.emitABC(bytecode.OP_SETINDEX, env, kreg, target, e.Line)
	fs.freeTo(mark)
	return target
}

// compileGetProperty lowers obj.name to a GETINDEX with an interned string
// key, the same path GetIndex takes. GETFIELD/SETFIELD stay reserved as a
// future fast path for when the key is known to already live at a
// low-numbered constant slot; the generator does not emit them yet.
func (c *Compiler) compileGetProperty(fs *funcState, e *ast.GetProperty, target uint8) uint8 {
	mark := fs.freeReg
	obj := fs.reserveReg()
	c.compileExpr(fs, e.Object, obj)
	k := fs.intern(bytecode.NewStringConst(e.Name))
	kreg := fs.reserveReg()
	fs.emitABx(bytecode.OP_LOADK, kreg, k, e.Line)
	fs.emitABC(bytecode.OP_GETINDEX, target, obj, kreg, e.Line)
	fs.freeTo(mark)
	return target
}

func (c *Compiler) compileSetProperty(fs *funcState, e *ast.SetProperty, target uint8) uint8 {
	mark := fs.freeReg
	obj := fs.reserveReg()
	c.compileExpr(fs, e.Object, obj)
	k := fs.intern(bytecode.NewStringConst(e.Name))
	kreg := fs.reserveReg()
	fs.emitABx(bytecode.OP_LOADK, kreg, k, e.Line)
	c.compileExpr(fs, e.Value, target)
	fs.emitABC(bytecode.OP_SETINDEX, obj, kreg, target, e.Line)
	fs.freeTo(mark)
	return target
}

func (c *Compiler) compileGetIndex(fs *funcState, e *ast.GetIndex, target uint8) uint8 {
	mark := fs.freeReg
	obj := fs.reserveReg()
	c.compileExpr(fs, e.Object, obj)
	idx := fs.reserveReg()
	c.compileExpr(fs, e.Index, idx)
	fs.emitABC(bytecode.OP_GETINDEX, target, obj, idx, e.Line)
	fs.freeTo(mark)
	return target
}

func (c *Compiler) compileSetIndex(fs *funcState, e *ast.SetIndex, target uint8) uint8 {
	mark := fs.freeReg
	obj := fs.reserveReg()
	c.compileExpr(fs, e.Object, obj)
	idx := fs.reserveReg()
	c.compileExpr(fs, e.Index, idx)
	c.compileExpr(fs, e.Value, target)
	fs.emitABC(bytecode.OP_SETINDEX, obj, idx, target, e.Line)
	fs.freeTo(mark)
	return target
}

// compileCall lowers a bare call. The receiver is always nil (§4.1, §13.1):
// the argument window is [receiver=nil][args...], and nresults is the
// number of values the caller wants back (1 in expression position).
func (c *Compiler) compileCall(fs *funcState, e *ast.Call, target uint8, nresults int) uint8 {
	mark := fs.freeReg
	callee := fs.reserveReg()
	c.compileExpr(fs, e.Callee, callee)
	recv := fs.reserveReg()
	fs.emitABx(bytecode.OP_LOADNIL, recv, 1, e.Line)
	for _, arg := range e.Args {
		r := fs.reserveReg()
		c.compileExpr(fs, arg, r)
	}
	nargs := uint8(1 + len(e.Args)) // +1 for the implicit receiver
	fs.emitABC(bytecode.OP_CALL, callee, nargs+1, uint8(nresults+1), e.Line)
	if target != callee {
		fs.emitABC(bytecode.OP_MOVE, target, callee, 0, e.Line)
	}
	fs.freeTo(mark)
	return target
}

// compileMethodCall lowers obj.method(args)/obj:method(args) to INVOKE,
// which resolves the method from the object's class and passes obj itself
// as the receiver (§4.1).
func (c *Compiler) compileMethodCall(fs *funcState, e *ast.MethodCall, target uint8, nresults int) uint8 {
	mark := fs.freeReg
	obj := fs.reserveReg()
	c.compileExpr(fs, e.Object, obj)
	k := fs.intern(bytecode.NewStringConst(e.Method))
	// INVOKE overwrites R(obj) with the resolved method and R(obj+1) with
	// the receiver (the object's prior value), Lua-SELF style, so the
	// receiver slot must be reserved before any argument registers.
	fs.emitABx(bytecode.OP_INVOKE, obj, k, e.Line)
	fs.reserveReg()
	for _, arg := range e.Args {
		r := fs.reserveReg()
		c.compileExpr(fs, arg, r)
	}
	nargs := uint8(1 + len(e.Args))
	fs.emitABC(bytecode.OP_CALL, obj, nargs+1, uint8(nresults+1), e.Line)
	if target != obj {
		fs.emitABC(bytecode.OP_MOVE, target, obj, 0, e.Line)
	}
	fs.freeTo(mark)
	return target
}

// compileNew lowers `new ClassName(args)`: NEWOBJ allocates the instance
// into target, then __init (if any) is invoked through a *separate*
// register window. INVOKE's Lua-SELF-style overwrite of its callee register
// would otherwise clobber target right when `new` needs it to still hold
// the instance as the expression's result, so the constructor call happens
// entirely off to the side in callReg and its result is discarded.
func (c *Compiler) compileNew(fs *funcState, e *ast.New, target uint8) uint8 {
	mark := fs.freeReg
	classReg := fs.reserveReg()
	c.compileIdentRead(fs, &ast.Ident{Name: e.ClassName, Line: e.Line}, classReg)
	fs.emitABC(bytecode.OP_NEWOBJ, target, classReg, 0, e.Line)

	callReg := fs.reserveReg()
	fs.emitABC(bytecode.OP_MOVE, callReg, target, 0, e.Line)
	initK := fs.intern(bytecode.NewStringConst("__init"))
	fs.emitABx(bytecode.OP_INVOKE, callReg, initK, e.Line)
	fs.reserveReg() // receiver slot INVOKE writes at callReg+1
	for _, arg := range e.Args {
		r := fs.reserveReg()
		c.compileExpr(fs, arg, r)
	}
	fs.emitABC(bytecode.OP_CALL, callReg, uint8(len(e.Args)+2), 1, e.Line)
	fs.freeTo(mark)
	return target
}

func (c *Compiler) compileListLit(fs *funcState, e *ast.ListLit, target uint8) uint8 {
	mark := fs.freeReg
	first := fs.freeReg
	for _, el := range e.Elements {
		r := fs.reserveReg()
		c.compileExpr(fs, el, r)
	}
	fs.emitABC(bytecode.OP_NEWLIST, target, first, uint8(len(e.Elements)), e.Line)
	fs.freeTo(mark)
	return target
}

func (c *Compiler) compileMapLit(fs *funcState, e *ast.MapLit, target uint8) uint8 {
	mark := fs.freeReg
	first := fs.freeReg
	for i := range e.Keys {
		kreg := fs.reserveReg()
		c.compileExpr(fs, e.Keys[i], kreg)
		vreg := fs.reserveReg()
		c.compileExpr(fs, e.Values[i], vreg)
	}
	fs.emitABC(bytecode.OP_NEWMAP, target, first, uint8(len(e.Keys)), e.Line)
	fs.freeTo(mark)
	return target
}

func (c *Compiler) compileFuncExpr(fs *funcState, e *ast.FuncExpr, target uint8) uint8 {
	proto := c.compileFunctionBody(fs, e)
	idx := len(fs.proto.Protos)
	fs.proto.Protos = append(fs.proto.Protos, proto)
	fs.emitABx(bytecode.OP_CLOSURE, target, uint16(idx), e.Line)
	return target
}

func exprLine(e ast.Expr) int {
	switch v := e.(type) {
	case *ast.NilLit:
		return v.Line
	case *ast.BoolLit:
		return v.Line
	case *ast.IntLit:
		return v.Line
	case *ast.FloatLit:
		return v.Line
	case *ast.StringLit:
		return v.Line
	case *ast.Ident:
		return v.Line
	case *ast.Unary:
		return v.Line
	case *ast.Binary:
		return v.Line
	case *ast.Logical:
		return v.Line
	case *ast.Assign:
		return v.Line
	case *ast.GetProperty:
		return v.Line
	case *ast.SetProperty:
		return v.Line
	case *ast.GetIndex:
		return v.Line
	case *ast.SetIndex:
		return v.Line
	case *ast.Call:
		return v.Line
	case *ast.MethodCall:
		return v.Line
	case *ast.New:
		return v.Line
	case *ast.ListLit:
		return v.Line
	case *ast.MapLit:
		return v.Line
	case *ast.FuncExpr:
		return v.Line
	}
	return 0
}
