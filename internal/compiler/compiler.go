package compiler

import (
	"github.com/Xarvie/sptscript/internal/ast"
	"github.com/Xarvie/sptscript/internal/bytecode"
)

// envName is the reserved local slot 0 of every module's root function: a
// Map the VM pre-populates with host natives and uses as the fallback
// resolution target for identifiers that are neither a local nor an
// upvalue (§4.3's module environment).
const envName = "__env"

// Compiler turns a parsed *ast.Program into a *bytecode.CompiledChunk. It
// holds no state across calls to CompileModule; each call starts a
// fresh root funcState.
type Compiler struct {
	moduleName string
	source     string
	exports    []string
	errs       []error
}

func New() *Compiler {
	return &Compiler{}
}

// Errors returns the accumulated compile errors from the most recent
// CompileModule call, mirroring the collection style internal/parser uses.
func (c *Compiler) Errors() []error { return c.errs }

// CompileModule compiles prog as the named module's root chunk. moduleName
// is stamped into the resulting CompiledChunk and used by internal/module
// for cache keys and cycle detection.
func (c *Compiler) CompileModule(prog *ast.Program, moduleName, source string) (*bytecode.CompiledChunk, []error) {
	c.moduleName = moduleName
	c.source = source
	c.exports = nil
	c.errs = nil

	fs := newFuncState(nil, "<module:"+moduleName+">", source, moduleName, &c.errs)
	fs.enterScope()
	envSlot := fs.declareLocal(envName)
	fs.emitABC(bytecode.OP_NEWMAP, envSlot, envSlot, 0, 0)

	for _, stmt := range prog.Stmts {
		c.compileStmt(fs, stmt)
	}
	fs.emitABC(bytecode.OP_RETURN, 0, 1, 0, 0)

	root := fs.finish(0, false, 0)
	root.IsModuleRoot = true
	chunk := &bytecode.CompiledChunk{
		Version:    bytecode.CurrentVersion,
		ModuleName: moduleName,
		Exports:    c.exports,
		Root:       root,
	}
	return chunk, c.errs
}

func (c *Compiler) addExport(name string) {
	c.exports = append(c.exports, name)
}

// compileFunctionBody lowers a function/lambda literal into its own
// Prototype, chained to parent for upvalue resolution.
func (c *Compiler) compileFunctionBody(parent *funcState, fe *ast.FuncExpr) *bytecode.Prototype {
	name := fe.Name
	if name == "" {
		name = "<anonymous>"
	}
	fs := newFuncState(parent, name, c.source, c.moduleName, &c.errs)
	fs.enterScope()
	// Every CALL window carries an implicit receiver ahead of the user
	// arguments (§4.1), the same slot INVOKE binds "this" into for methods.
	// Plain functions ignore it but must still reserve register 0 for it so
	// the first declared parameter lands on the first real argument.
	fs.declareLocal("__recv")
	for _, p := range fe.Params {
		fs.declareLocal(p.Name)
	}
	for _, stmt := range fe.Body {
		c.compileStmt(fs, stmt)
	}
	fs.emitABC(bytecode.OP_RETURN, 0, 1, 0, fe.Line)
	return fs.finish(len(fe.Params)+1, fe.Variadic, fe.Line)
}
