// Package parser is the second half of the external collaborator spec.md
// §1 carves out of the core: it turns a lexer.Token stream into the
// internal/ast tree that internal/compiler consumes. Nothing here is part
// of the specified compiler+VM core; it exists so the CLI and the test
// suite have a concrete front end to drive the core with.
package parser

import (
	"fmt"
	"strings"

	"github.com/Xarvie/sptscript/internal/ast"
	"github.com/Xarvie/sptscript/internal/lexer"
)

// ParseError mirrors the shape of a compiler CompileError so callers can
// present lex/parse and compile failures uniformly.
type ParseError struct {
	Message string
	Line    int
	Column  int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Message)
}

type Parser struct {
	tokens  []lexer.Token
	current int
	Errors  []*ParseError
	file    string
}

func New(tokens []lexer.Token) *Parser {
	return &Parser{tokens: tokens}
}

func NewWithFile(tokens []lexer.Token, file string) *Parser {
	return &Parser{tokens: tokens, file: file}
}

// ParseSource is a convenience wrapper around the scanner and parser used
// by the CLI and by tests: source text in, *ast.Program (or errors) out.
func ParseSource(source, file string) (*ast.Program, []*ParseError) {
	toks := lexer.NewScanner(source).ScanTokens()
	p := NewWithFile(toks, file)
	prog := p.ParseProgram()
	return prog, p.Errors
}

func (p *Parser) ParseProgram() *ast.Program {
	prog := &ast.Program{}
	for !p.isAtEnd() {
		prog.Stmts = append(prog.Stmts, p.topLevelDecl())
	}
	return prog
}

// ---------------------------------------------------------------------
// Top level & statements
// ---------------------------------------------------------------------

func (p *Parser) topLevelDecl() ast.Stmt {
	exported := p.match(lexer.TokenExport)
	if p.check(lexer.TokenClass) {
		return p.classDecl(exported)
	}
	if p.check(lexer.TokenImport) {
		return p.importDecl()
	}
	if p.looksLikeFuncDecl() {
		fn := p.funcHeaderAndBody(false)
		return &ast.FuncDecl{Fn: fn, Exported: exported, Line: fn.Line}
	}
	if p.checkDeclStart() {
		return p.varDecl(exported)
	}
	return p.statement()
}

// looksLikeFuncDecl detects `Type Name (` — a function/method declaration —
// without consuming tokens, so the parser can fall back to a variable
// declaration or a bare expression statement.
func (p *Parser) looksLikeFuncDecl() bool {
	if !p.current_().IsTypeHead() {
		return false
	}
	save := p.current
	defer func() { p.current = save }()
	p.advance() // type head
	if p.check(lexer.TokenLT) {
		p.skipGenericArgs()
	}
	if !p.check(lexer.TokenIdent) {
		return false
	}
	p.advance()
	return p.check(lexer.TokenLParen)
}

func (p *Parser) checkDeclStart() bool {
	return p.current_().IsTypeHead() || p.check(lexer.TokenVar) || p.check(lexer.TokenAuto)
}

func (p *Parser) skipGenericArgs() {
	p.expect(lexer.TokenLT)
	depth := 1
	for depth > 0 && !p.isAtEnd() {
		if p.check(lexer.TokenLT) {
			depth++
		} else if p.check(lexer.TokenGT) {
			depth--
		}
		p.advance()
	}
}

// parseType consumes a type annotation and returns its textual form for
// diagnostics only; annotations carry no runtime meaning (§1).
func (p *Parser) parseType() string {
	start := p.current
	if p.check(lexer.TokenVar) || p.check(lexer.TokenAuto) {
		p.advance()
	} else {
		p.advance() // type head token
		if p.check(lexer.TokenLT) {
			p.skipGenericArgs()
		}
	}
	var sb strings.Builder
	for i := start; i < p.current; i++ {
		sb.WriteString(p.tokens[i].Lexeme)
	}
	return sb.String()
}

func (p *Parser) statement() ast.Stmt {
	line := p.current_().Line

	switch {
	case p.match(lexer.TokenLBrace):
		p.current--
		return p.block()
	case p.match(lexer.TokenIf):
		return p.ifStatement(line)
	case p.match(lexer.TokenWhile):
		return p.whileStatement(line)
	case p.match(lexer.TokenFor):
		return p.forStatement(line)
	case p.match(lexer.TokenBreak):
		p.consumeSemi()
		return &ast.BreakStmt{Line: line}
	case p.match(lexer.TokenContinue):
		p.consumeSemi()
		return &ast.ContinueStmt{Line: line}
	case p.match(lexer.TokenReturn):
		return p.returnStatement(line)
	case p.match(lexer.TokenDefer):
		body := p.block()
		return &ast.DeferStmt{Body: body.(*ast.BlockStmt).Stmts, Line: line}
	case p.check(lexer.TokenImport):
		return p.importDecl()
	case p.check(lexer.TokenClass):
		return p.classDecl(false)
	}

	if p.checkVarsKeyword() {
		return p.multiVarDecl()
	}
	if p.looksLikeFuncDecl() {
		fn := p.funcHeaderAndBody(false)
		return &ast.FuncDecl{Fn: fn, Line: fn.Line}
	}
	if p.checkDeclStart() {
		return p.varDecl(false)
	}

	expr := p.expression()
	p.consumeSemi()
	return &ast.ExprStmt{Expr: expr, Line: line}
}

// checkVarsKeyword recognizes the `vars a, b = call();` multi-declaration
// form (§4.3). "vars" is not a reserved keyword elsewhere, so it is scanned
// as a plain identifier and special-cased here.
func (p *Parser) checkVarsKeyword() bool {
	return p.check(lexer.TokenIdent) && p.current_().Lexeme == "vars"
}

func (p *Parser) block() ast.Stmt {
	line := p.current_().Line
	p.expect(lexer.TokenLBrace)
	var stmts []ast.Stmt
	for !p.check(lexer.TokenRBrace) && !p.isAtEnd() {
		stmts = append(stmts, p.statement())
	}
	p.expect(lexer.TokenRBrace)
	return &ast.BlockStmt{Stmts: stmts, Line: line}
}

func (p *Parser) blockStmts() []ast.Stmt {
	return p.block().(*ast.BlockStmt).Stmts
}

func (p *Parser) varDecl(exported bool) ast.Stmt {
	line := p.current_().Line
	typ := p.parseType()
	name := p.expect(lexer.TokenIdent).Lexeme
	var init ast.Expr
	if p.match(lexer.TokenEqual) {
		init = p.expression()
	}
	p.consumeSemi()
	return &ast.VarDecl{Name: name, Type: typ, Init: init, Exported: exported, Line: line}
}

func (p *Parser) multiVarDecl() ast.Stmt {
	line := p.current_().Line
	p.advance() // "vars"
	var names []string
	names = append(names, p.expect(lexer.TokenIdent).Lexeme)
	for p.match(lexer.TokenComma) {
		names = append(names, p.expect(lexer.TokenIdent).Lexeme)
	}
	p.expect(lexer.TokenEqual)
	call := p.expression()
	p.consumeSemi()
	return &ast.MultiVarDecl{Names: names, Call: call, Line: line}
}

func (p *Parser) funcHeaderAndBody(isMethod bool) *ast.FuncExpr {
	line := p.current_().Line
	retType := p.parseType()
	name := p.expect(lexer.TokenIdent).Lexeme
	params, variadic := p.paramList()
	body := p.blockStmts()
	return &ast.FuncExpr{
		Name: name, Params: params, ReturnType: retType,
		Body: body, IsMethod: isMethod, Variadic: variadic, Line: line,
	}
}

func (p *Parser) paramList() ([]ast.Param, bool) {
	p.expect(lexer.TokenLParen)
	var params []ast.Param
	variadic := false
	for !p.check(lexer.TokenRParen) {
		if p.match(lexer.TokenEllipsis) {
			variadic = true
			name := p.expect(lexer.TokenIdent).Lexeme
			params = append(params, ast.Param{Name: name, Type: "..."})
		} else if p.current_().IsTypeHead() && p.peekIsIdentAfterType() {
			typ := p.parseType()
			name := p.expect(lexer.TokenIdent).Lexeme
			params = append(params, ast.Param{Name: name, Type: typ})
		} else {
			name := p.expect(lexer.TokenIdent).Lexeme
			params = append(params, ast.Param{Name: name})
		}
		if !p.match(lexer.TokenComma) {
			break
		}
	}
	p.expect(lexer.TokenRParen)
	return params, variadic
}

// peekIsIdentAfterType decides, without consuming, whether the type-head
// token starting the current parameter is followed by a plain identifier
// (typed param) as opposed to being the parameter name itself (untyped,
// lambda-style param using a type-keyword-shaped name is not supported).
func (p *Parser) peekIsIdentAfterType() bool {
	save := p.current
	defer func() { p.current = save }()
	p.advance()
	if p.check(lexer.TokenLT) {
		p.skipGenericArgs()
	}
	return p.check(lexer.TokenIdent)
}

func (p *Parser) classDecl(exported bool) ast.Stmt {
	line := p.current_().Line
	p.expect(lexer.TokenClass)
	name := p.expect(lexer.TokenIdent).Lexeme
	super := ""
	if p.match(lexer.TokenColon) {
		super = p.expect(lexer.TokenIdent).Lexeme
	}
	p.expect(lexer.TokenLBrace)
	decl := &ast.ClassDecl{Name: name, Superclass: super, Exported: exported, Line: line}
	for !p.check(lexer.TokenRBrace) && !p.isAtEnd() {
		typ := p.parseType()
		fname := p.expect(lexer.TokenIdent).Lexeme
		if p.check(lexer.TokenLParen) {
			params, variadic := p.paramList()
			body := p.blockStmts()
			decl.Methods = append(decl.Methods, &ast.FuncExpr{
				Name: fname, Params: params, ReturnType: typ, Body: body,
				IsMethod: true, Variadic: variadic, Line: line,
			})
			continue
		}
		field := ast.FieldDecl{Name: fname, Type: typ}
		if p.match(lexer.TokenEqual) {
			field.Init = p.expression()
		}
		p.consumeSemi()
		decl.Fields = append(decl.Fields, field)
	}
	p.expect(lexer.TokenRBrace)
	return decl
}

func (p *Parser) importDecl() ast.Stmt {
	line := p.current_().Line
	p.expect(lexer.TokenImport)
	if p.match(lexer.TokenLBrace) {
		var names []string
		for !p.check(lexer.TokenRBrace) {
			names = append(names, p.expect(lexer.TokenIdent).Lexeme)
			if !p.match(lexer.TokenComma) {
				break
			}
		}
		p.expect(lexer.TokenRBrace)
		p.expect(lexer.TokenFrom)
		modName := p.expect(lexer.TokenString).Lexeme
		p.consumeSemi()
		return &ast.ImportFromStmt{ModuleName: modName, Names: names, Line: line}
	}
	modName := p.expect(lexer.TokenString).Lexeme
	alias := ""
	if p.match(lexer.TokenIdent) && p.tokens[p.current-1].Lexeme == "as" {
		alias = p.expect(lexer.TokenIdent).Lexeme
	}
	p.consumeSemi()
	return &ast.ImportStmt{ModuleName: modName, Alias: alias, Line: line}
}

func (p *Parser) ifStatement(line int) ast.Stmt {
	p.expect(lexer.TokenLParen)
	cond := p.expression()
	p.expect(lexer.TokenRParen)
	then := p.blockStmts()
	var els []ast.Stmt
	if p.match(lexer.TokenElseif) {
		els = []ast.Stmt{p.ifStatement(p.current_().Line)}
	} else if p.match(lexer.TokenElse) {
		if p.check(lexer.TokenIf) {
			p.advance()
			els = []ast.Stmt{p.ifStatement(p.current_().Line)}
		} else {
			els = p.blockStmts()
		}
	}
	return &ast.IfStmt{Cond: cond, Then: then, Else: els, Line: line}
}

func (p *Parser) whileStatement(line int) ast.Stmt {
	p.expect(lexer.TokenLParen)
	cond := p.expression()
	p.expect(lexer.TokenRParen)
	body := p.blockStmts()
	return &ast.WhileStmt{Cond: cond, Body: body, Line: line}
}

func (p *Parser) forStatement(line int) ast.Stmt {
	p.expect(lexer.TokenLParen)

	// Disambiguate numeric `for (Init; Cond; Post)` from foreach
	// `for (T a[, T b] : collection)` by scanning ahead for a top-level ':'.
	if p.isForEachHead() {
		return p.forEachStatement(line)
	}

	var init ast.Stmt
	if !p.check(lexer.TokenSemicolon) {
		if p.checkDeclStart() {
			// varDecl consumes its own trailing ';' via consumeSemi.
			init = p.varDecl(false)
		} else {
			e := p.expression()
			init = &ast.ExprStmt{Expr: e, Line: line}
			p.expect(lexer.TokenSemicolon)
		}
	} else {
		p.advance()
	}

	var cond ast.Expr
	if !p.check(lexer.TokenSemicolon) {
		cond = p.expression()
	}
	p.expect(lexer.TokenSemicolon)

	var post ast.Expr
	if !p.check(lexer.TokenRParen) {
		post = p.assignmentOrExpr()
	}
	p.expect(lexer.TokenRParen)
	body := p.blockStmts()
	return &ast.ForStmt{Init: init, Cond: cond, Post: post, Body: body, Line: line}
}

// isForEachHead looks ahead inside the for-header parens for a ':' before
// the matching ')', without consuming any tokens.
func (p *Parser) isForEachHead() bool {
	depth := 0
	for i := p.current; i < len(p.tokens); i++ {
		switch p.tokens[i].Type {
		case lexer.TokenLParen:
			depth++
		case lexer.TokenRParen:
			if depth == 0 {
				return false
			}
			depth--
		case lexer.TokenColon:
			if depth == 0 {
				return true
			}
		case lexer.TokenSemicolon:
			if depth == 0 {
				return false
			}
		}
	}
	return false
}

func (p *Parser) forEachStatement(line int) ast.Stmt {
	var first, second string
	if p.checkDeclStart() {
		p.parseType()
	}
	first = p.expect(lexer.TokenIdent).Lexeme
	if p.match(lexer.TokenComma) {
		if p.checkDeclStart() {
			p.parseType()
		}
		second = p.expect(lexer.TokenIdent).Lexeme
	}
	p.expect(lexer.TokenColon)
	coll := p.expression()
	p.expect(lexer.TokenRParen)
	body := p.blockStmts()

	if second == "" {
		return &ast.ForInStmt{ValueVar: first, Collection: coll, Body: body, Line: line}
	}
	return &ast.ForInStmt{KeyVar: first, ValueVar: second, Collection: coll, Body: body, Line: line}
}

func (p *Parser) returnStatement(line int) ast.Stmt {
	var value ast.Expr
	if !p.check(lexer.TokenSemicolon) {
		value = p.expression()
	}
	p.consumeSemi()
	return &ast.ReturnStmt{Value: value, Line: line}
}

func (p *Parser) consumeSemi() {
	p.match(lexer.TokenSemicolon)
}

// ---------------------------------------------------------------------
// Expressions (precedence-climbing)
// ---------------------------------------------------------------------

func (p *Parser) expression() ast.Expr {
	return p.assignmentOrExpr()
}

func (p *Parser) assignmentOrExpr() ast.Expr {
	expr := p.orExpr()

	if p.match(lexer.TokenEqual) {
		line := p.tokens[p.current-1].Line
		value := p.assignmentOrExpr()
		switch target := expr.(type) {
		case *ast.Ident:
			return &ast.Assign{Name: target.Name, Value: value, Line: line}
		case *ast.GetProperty:
			return &ast.SetProperty{Object: target.Object, Name: target.Name, Value: value, Line: line}
		case *ast.GetIndex:
			return &ast.SetIndex{Object: target.Object, Index: target.Index, Value: value, Line: line}
		}
		p.errorf(line, "invalid assignment target")
		return expr
	}

	if p.match(lexer.TokenPlusEq) || p.match(lexer.TokenMinusEq) {
		op := p.tokens[p.current-1]
		binOp := "+"
		if op.Type == lexer.TokenMinusEq {
			binOp = "-"
		}
		rhs := p.assignmentOrExpr()
		sum := &ast.Binary{Left: expr, Op: binOp, Right: rhs, Line: op.Line}
		if id, ok := expr.(*ast.Ident); ok {
			return &ast.Assign{Name: id.Name, Value: sum, Line: op.Line}
		}
		p.errorf(op.Line, "invalid compound-assignment target")
		return expr
	}

	return expr
}

func (p *Parser) orExpr() ast.Expr {
	left := p.andExpr()
	for p.match(lexer.TokenOrOr) {
		line := p.tokens[p.current-1].Line
		right := p.andExpr()
		left = &ast.Logical{Left: left, Op: "||", Right: right, Line: line}
	}
	return left
}

func (p *Parser) andExpr() ast.Expr {
	left := p.equality()
	for p.match(lexer.TokenAndAnd) {
		line := p.tokens[p.current-1].Line
		right := p.equality()
		left = &ast.Logical{Left: left, Op: "&&", Right: right, Line: line}
	}
	return left
}

func (p *Parser) equality() ast.Expr {
	left := p.comparison()
	for p.check(lexer.TokenDoubleEq) || p.check(lexer.TokenNotEq) {
		op := p.advance()
		right := p.comparison()
		left = &ast.Binary{Left: left, Op: op.Lexeme, Right: right, Line: op.Line}
	}
	return left
}

func (p *Parser) comparison() ast.Expr {
	left := p.additive()
	for p.check(lexer.TokenLT) || p.check(lexer.TokenGT) || p.check(lexer.TokenLE) || p.check(lexer.TokenGE) {
		op := p.advance()
		right := p.additive()
		left = &ast.Binary{Left: left, Op: op.Lexeme, Right: right, Line: op.Line}
	}
	return left
}

func (p *Parser) additive() ast.Expr {
	left := p.multiplicative()
	for p.check(lexer.TokenPlus) || p.check(lexer.TokenMinus) {
		op := p.advance()
		right := p.multiplicative()
		left = &ast.Binary{Left: left, Op: op.Lexeme, Right: right, Line: op.Line}
	}
	return left
}

func (p *Parser) multiplicative() ast.Expr {
	left := p.unary()
	for p.check(lexer.TokenStar) || p.check(lexer.TokenSlash) || p.check(lexer.TokenPercent) {
		op := p.advance()
		right := p.unary()
		left = &ast.Binary{Left: left, Op: op.Lexeme, Right: right, Line: op.Line}
	}
	return left
}

func (p *Parser) unary() ast.Expr {
	if p.check(lexer.TokenMinus) || p.check(lexer.TokenNot) {
		op := p.advance()
		operand := p.unary()
		return &ast.Unary{Op: op.Lexeme, Operand: operand, Line: op.Line}
	}
	return p.postfix()
}

func (p *Parser) postfix() ast.Expr {
	expr := p.primary()
	for {
		switch {
		case p.match(lexer.TokenDot), p.match(lexer.TokenColon):
			isColon := p.tokens[p.current-1].Type == lexer.TokenColon
			line := p.tokens[p.current-1].Line
			name := p.expect(lexer.TokenIdent).Lexeme
			if p.check(lexer.TokenLParen) {
				args := p.argList()
				expr = &ast.MethodCall{Object: expr, Method: name, Args: args, IsColon: isColon, Line: line}
			} else {
				expr = &ast.GetProperty{Object: expr, Name: name, Line: line}
			}
		case p.match(lexer.TokenLBracket):
			line := p.tokens[p.current-1].Line
			idx := p.expression()
			p.expect(lexer.TokenRBracket)
			expr = &ast.GetIndex{Object: expr, Index: idx, Line: line}
		case p.check(lexer.TokenLParen):
			line := p.current_().Line
			args := p.argList()
			expr = &ast.Call{Callee: expr, Args: args, Line: line}
		default:
			return expr
		}
	}
}

func (p *Parser) argList() []ast.Expr {
	p.expect(lexer.TokenLParen)
	var args []ast.Expr
	for !p.check(lexer.TokenRParen) {
		args = append(args, p.expression())
		if !p.match(lexer.TokenComma) {
			break
		}
	}
	p.expect(lexer.TokenRParen)
	return args
}

func (p *Parser) primary() ast.Expr {
	tok := p.current_()
	switch {
	case p.match(lexer.TokenNil):
		return &ast.NilLit{Line: tok.Line}
	case p.match(lexer.TokenTrue):
		return &ast.BoolLit{Value: true, Line: tok.Line}
	case p.match(lexer.TokenFalse):
		return &ast.BoolLit{Value: false, Line: tok.Line}
	case p.match(lexer.TokenInt):
		var v int64
		fmt.Sscanf(tok.Lexeme, "%d", &v)
		return &ast.IntLit{Value: v, Line: tok.Line}
	case p.match(lexer.TokenFloat):
		var v float64
		fmt.Sscanf(tok.Lexeme, "%g", &v)
		return &ast.FloatLit{Value: v, Line: tok.Line}
	case p.match(lexer.TokenString):
		return &ast.StringLit{Value: tok.Lexeme, Line: tok.Line}
	case p.match(lexer.TokenThis):
		return &ast.Ident{Name: "this", Line: tok.Line}
	case p.match(lexer.TokenNew):
		name := p.expect(lexer.TokenIdent).Lexeme
		args := p.argList()
		return &ast.New{ClassName: name, Args: args, Line: tok.Line}
	case p.match(lexer.TokenFunction):
		return p.funcExprLiteral(tok.Line)
	case p.match(lexer.TokenLBracket):
		return p.listLiteral(tok.Line)
	case p.match(lexer.TokenLBrace):
		return p.mapLiteral(tok.Line)
	case p.match(lexer.TokenLParen):
		e := p.expression()
		p.expect(lexer.TokenRParen)
		return e
	case p.match(lexer.TokenIdent):
		return &ast.Ident{Name: tok.Lexeme, Line: tok.Line}
	}
	p.errorf(tok.Line, "unexpected token %s", tok.Type)
	p.advance()
	return &ast.NilLit{Line: tok.Line}
}

func (p *Parser) funcExprLiteral(line int) ast.Expr {
	name := ""
	if p.check(lexer.TokenIdent) {
		name = p.advance().Lexeme
	}
	params, variadic := p.paramList()
	retType := ""
	if p.match(lexer.TokenArrow) {
		retType = p.parseType()
	}
	body := p.blockStmts()
	return &ast.FuncExpr{Name: name, Params: params, ReturnType: retType, Body: body, Variadic: variadic, Line: line}
}

func (p *Parser) listLiteral(line int) ast.Expr {
	var elems []ast.Expr
	for !p.check(lexer.TokenRBracket) {
		elems = append(elems, p.expression())
		if !p.match(lexer.TokenComma) {
			break
		}
	}
	p.expect(lexer.TokenRBracket)
	return &ast.ListLit{Elements: elems, Line: line}
}

func (p *Parser) mapLiteral(line int) ast.Expr {
	var keys, values []ast.Expr
	for !p.check(lexer.TokenRBrace) {
		keys = append(keys, p.expression())
		p.expect(lexer.TokenColon)
		values = append(values, p.expression())
		if !p.match(lexer.TokenComma) {
			break
		}
	}
	p.expect(lexer.TokenRBrace)
	return &ast.MapLit{Keys: keys, Values: values, Line: line}
}

// ---------------------------------------------------------------------
// Token helpers
// ---------------------------------------------------------------------

func (p *Parser) current_() lexer.Token { return p.tokens[p.current] }

func (p *Parser) check(t lexer.TokenType) bool {
	return !p.isAtEnd() && p.current_().Type == t
}

func (p *Parser) match(t lexer.TokenType) bool {
	if p.check(t) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) advance() lexer.Token {
	tok := p.current_()
	if !p.isAtEnd() {
		p.current++
	}
	return tok
}

func (p *Parser) expect(t lexer.TokenType) lexer.Token {
	if p.check(t) {
		return p.advance()
	}
	tok := p.current_()
	p.errorf(tok.Line, "expected %s, got %s %q", t, tok.Type, tok.Lexeme)
	return tok
}

func (p *Parser) isAtEnd() bool {
	return p.tokens[p.current].Type == lexer.TokenEOF
}

func (p *Parser) errorf(line int, format string, args ...interface{}) {
	p.Errors = append(p.Errors, &ParseError{Message: fmt.Sprintf(format, args...), Line: line})
}
