package parser

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Xarvie/sptscript/internal/ast"
)

func TestParseVarDecl(t *testing.T) {
	prog, errs := ParseSource(`var x = 5;`, "t.spt")
	require.Empty(t, errs)
	require.Len(t, prog.Stmts, 1)
	decl, ok := prog.Stmts[0].(*ast.VarDecl)
	require.True(t, ok)
	require.Equal(t, "x", decl.Name)
	require.IsType(t, &ast.IntLit{}, decl.Init)
}

func TestParseExportedVarDecl(t *testing.T) {
	prog, errs := ParseSource(`export var total = 0;`, "t.spt")
	require.Empty(t, errs)
	decl := prog.Stmts[0].(*ast.VarDecl)
	require.True(t, decl.Exported)
}

func TestParseFuncDecl(t *testing.T) {
	src := `int add(int a, int b) {
		return a + b;
	}`
	prog, errs := ParseSource(src, "t.spt")
	require.Empty(t, errs)
	decl, ok := prog.Stmts[0].(*ast.FuncDecl)
	require.True(t, ok)
	require.Equal(t, "add", decl.Fn.Name)
	require.Len(t, decl.Fn.Params, 2)
	require.Equal(t, "a", decl.Fn.Params[0].Name)
	require.Len(t, decl.Fn.Body, 1)
	ret, ok := decl.Fn.Body[0].(*ast.ReturnStmt)
	require.True(t, ok)
	bin, ok := ret.Value.(*ast.Binary)
	require.True(t, ok)
	require.Equal(t, "+", bin.Op)
}

func TestParseClassDecl(t *testing.T) {
	src := `class Animal {
		string name = "";
		void speak() {
			print(this.name);
		}
	}`
	prog, errs := ParseSource(src, "t.spt")
	require.Empty(t, errs)
	decl, ok := prog.Stmts[0].(*ast.ClassDecl)
	require.True(t, ok)
	require.Equal(t, "Animal", decl.Name)
	require.Len(t, decl.Fields, 1)
	require.Equal(t, "name", decl.Fields[0].Name)
	require.Len(t, decl.Methods, 1)
	require.Equal(t, "speak", decl.Methods[0].Name)
}

func TestParseClassWithSuperclass(t *testing.T) {
	prog, errs := ParseSource(`class Dog : Animal { }`, "t.spt")
	require.Empty(t, errs)
	decl := prog.Stmts[0].(*ast.ClassDecl)
	require.Equal(t, "Animal", decl.Superclass)
}

func TestParseImportStmt(t *testing.T) {
	prog, errs := ParseSource(`import "math";`, "t.spt")
	require.Empty(t, errs)
	decl, ok := prog.Stmts[0].(*ast.ImportStmt)
	require.True(t, ok)
	require.Equal(t, "math", decl.ModuleName)
}

func TestParseImportFromStmt(t *testing.T) {
	prog, errs := ParseSource(`import { sqrt, pow } from "math";`, "t.spt")
	require.Empty(t, errs)
	decl, ok := prog.Stmts[0].(*ast.ImportFromStmt)
	require.True(t, ok)
	require.Equal(t, "math", decl.ModuleName)
	require.Equal(t, []string{"sqrt", "pow"}, decl.Names)
}

func TestParseIfElseIf(t *testing.T) {
	src := `
	if (x > 0) {
		print("pos");
	} elseif (x < 0) {
		print("neg");
	} else {
		print("zero");
	}`
	prog, errs := ParseSource(src, "t.spt")
	require.Empty(t, errs)
	ifStmt, ok := prog.Stmts[0].(*ast.IfStmt)
	require.True(t, ok)
	require.Len(t, ifStmt.Else, 1)
	require.IsType(t, &ast.IfStmt{}, ifStmt.Else[0])
}

func TestParseWhileAndForLoops(t *testing.T) {
	prog, errs := ParseSource(`while (true) { break; }`, "t.spt")
	require.Empty(t, errs)
	require.IsType(t, &ast.WhileStmt{}, prog.Stmts[0])

	prog, errs = ParseSource(`for (var i = 0; i < 10; i = i + 1) { continue; }`, "t.spt")
	require.Empty(t, errs)
	require.IsType(t, &ast.ForStmt{}, prog.Stmts[0])
}

func TestParseCollectsErrorsWithoutPanicking(t *testing.T) {
	_, errs := ParseSource(`var = ;`, "t.spt")
	require.NotEmpty(t, errs)
}
