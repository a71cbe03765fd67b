package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompileErrorFormatsWithAndWithoutFilename(t *testing.T) {
	withFile := NewCompileError("t.spt", 3, 5, "unexpected %s", "token")
	require.Equal(t, "t.spt:3:5: unexpected token", withFile.Error())

	noFile := NewCompileError("", 3, 5, "unexpected token")
	require.Equal(t, "3:5: unexpected token", noFile.Error())
}

func TestRuntimeErrorFormatsCategoryAndLine(t *testing.T) {
	err := NewRuntimeError(CategoryType, 10, "attempt to call a %s value", "nil")
	require.Equal(t, "Type error at line 10: attempt to call a nil value", err.Error())
}

func TestRuntimeErrorPushFrameAccumulatesInnermostFirst(t *testing.T) {
	err := NewRuntimeError(CategoryArithmetic, 1, "bad math")
	err.PushFrame("inner", 5)
	err.PushFrame("outer", 2)
	require.Equal(t, []Frame{{FunctionName: "inner", Line: 5}, {FunctionName: "outer", Line: 2}}, err.Frames)
}

func TestModuleErrorWrapsRuntimeErrorAndUnwraps(t *testing.T) {
	err := NewModuleError("mymod", "missing export %q", "foo")
	require.Equal(t, `module "mymod": missing export "foo"`, err.Error())
	require.Equal(t, CategoryModule, err.RuntimeError.Category)

	var target *RuntimeError
	require.True(t, stderrors.As(err, &target))
}

func TestWrapPreservesCauseForErrorsAs(t *testing.T) {
	original := NewCompileError("t.spt", 1, 1, "bad token")
	wrapped := Wrap(original, "while parsing %s", "module")

	require.Contains(t, wrapped.Error(), "while parsing module")
	require.Contains(t, wrapped.Error(), "bad token")

	var target *CompileError
	require.True(t, stderrors.As(wrapped, &target))
	require.Same(t, original, target)

	require.Equal(t, original, Cause(wrapped))
}
