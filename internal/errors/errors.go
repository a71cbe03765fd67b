// Package errors defines sptscript's three error kinds (§7): CompileError,
// RuntimeError and ModuleError. Context wrapping across package boundaries
// (the module manager annotating a dependency failure with the importing
// module's name, for instance) goes through github.com/pkg/errors so the
// original typed error stays recoverable via errors.As after wrapping.
package errors

import (
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// CompileError is a structural problem discovered by the code generator
// (C3) or AST lowering (C4): invalid assignment target, undefined
// break/continue, arity overflow, too-many-locals, unbound this, non-
// variadic use of "...". Emission never stops lowering of unrelated
// siblings (§4.2); the chunk is discarded if any CompileError occurred.
type CompileError struct {
	Message  string
	Filename string
	Line     int
	Column   int
}

func NewCompileError(filename string, line, column int, format string, args ...interface{}) *CompileError {
	return &CompileError{
		Message:  fmt.Sprintf(format, args...),
		Filename: filename,
		Line:     line,
		Column:   column,
	}
}

func (e *CompileError) Error() string {
	if e.Filename == "" {
		return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("%s:%d:%d: %s", e.Filename, e.Line, e.Column, e.Message)
}

// Category discriminates a RuntimeError's cause (§7).
type Category string

const (
	CategoryArithmetic      Category = "Arithmetic"
	CategoryType            Category = "Type"
	CategoryIndex           Category = "Index"
	CategoryArity           Category = "Arity"
	CategoryUndefinedGlobal Category = "UndefinedGlobal"
	CategoryModule          Category = "Module"
)

// Frame is one entry of a RuntimeError's captured call stack.
type Frame struct {
	FunctionName string
	Line         int
}

// RuntimeError is raised by the VM interpreter (C6) during execution:
// arithmetic, type, index, arity or undefined-global failures, or a module
// failure (§7). It carries the source line derived from the raising
// prototype's line table and, once unwound, the frames it passed through.
type RuntimeError struct {
	Category Category
	Message  string
	Line     int
	Frames   []Frame
}

func NewRuntimeError(category Category, line int, format string, args ...interface{}) *RuntimeError {
	return &RuntimeError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
		Line:     line,
	}
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s error at line %d: %s", e.Category, e.Line, e.Message)
}

// PushFrame records a frame while the VM unwinds (innermost first).
func (e *RuntimeError) PushFrame(functionName string, line int) {
	e.Frames = append(e.Frames, Frame{FunctionName: functionName, Line: line})
}

// ModuleError specializes RuntimeError with Category = Module (§7) and is
// returned — never panicked — as a value-shaped error from loadModule, so
// importers can introspect it instead of it always tearing down the VM.
type ModuleError struct {
	*RuntimeError
	ModuleName string
}

func NewModuleError(moduleName, format string, args ...interface{}) *ModuleError {
	return &ModuleError{
		RuntimeError: NewRuntimeError(CategoryModule, 0, format, args...),
		ModuleName:   moduleName,
	}
}

func (e *ModuleError) Error() string {
	return fmt.Sprintf("module %q: %s", e.ModuleName, e.Message)
}

func (e *ModuleError) Unwrap() error { return e.RuntimeError }

// Wrap annotates err with additional context while keeping it unwrappable
// back to its original CompileError/RuntimeError/ModuleError via errors.As.
func Wrap(err error, format string, args ...interface{}) error {
	return pkgerrors.Wrapf(err, format, args...)
}

// Cause returns the deepest wrapped error, mirroring pkg/errors.Cause.
func Cause(err error) error {
	return pkgerrors.Cause(err)
}
