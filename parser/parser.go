// Package parser turns a token stream into an AST. It is the second
// external collaborator in the pipeline (lexer -> parser -> compiler): the
// compiler only ever sees the ast.Node tree this package produces.
package parser

import (
	"fmt"
	"strings"

	"nord/ast"
	"nord/lexer"
	"nord/token"
)

// Error is a syntactic diagnostic with a caret-printable source span.
type Error struct {
	File    string
	Pos     token.Position
	Line    string
	Message string
}

func (e *Error) Error() string {
	caret := strings.Repeat(" ", max(e.Pos.Col-1, 0)) + "^"
	return fmt.Sprintf("%s:%d:%d: %s\n%s\n%s", e.File, e.Pos.Line, e.Pos.Col, e.Message, e.Line, caret)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Parser is a recursive-descent parser with a single token of lookahead.
type Parser struct {
	lex *lexer.Lexer

	file       string
	sourceByLn []string

	cur  token.Token
	peek token.Token
}

// New constructs a Parser over the given source, tracking file for diagnostics.
func New(file, source string) *Parser {
	p := &Parser{lex: lexer.New(file, source), file: file, sourceByLn: strings.Split(source, "\n")}
	p.next()
	p.next()
	return p
}

func (p *Parser) next() {
	p.cur = p.peek
	p.peek = p.lex.Next()
}

func (p *Parser) lineText(pos token.Position) string {
	idx := pos.Line - 1
	if idx >= 0 && idx < len(p.sourceByLn) {
		return p.sourceByLn[idx]
	}
	return ""
}

func (p *Parser) errorf(pos token.Position, format string, args ...any) error {
	return &Error{File: p.file, Pos: pos, Line: p.lineText(pos), Message: fmt.Sprintf(format, args...)}
}

func (p *Parser) skipNewlines() {
	for p.cur.Type == token.NEWLINE {
		p.next()
	}
}

func (p *Parser) expect(t token.Type) (token.Token, error) {
	if p.cur.Type != t {
		return token.Token{}, p.errorf(p.cur.Pos, "expected %s, got %s", t, p.cur.Type)
	}
	tok := p.cur
	p.next()
	return tok, nil
}

// Parse parses the whole source as a top-level statement list.
func Parse(file, source string) (ast.Node, error) {
	p := New(file, source)
	return p.ParseProgram()
}

// ParseProgram parses a complete statement list up to EOF.
func (p *Parser) ParseProgram() (ast.Node, error) {
	list := &ast.List{Token: p.cur}
	p.skipNewlines()
	for p.cur.Type != token.EOF {
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		list.Items = append(list.Items, stmt)
		p.skipNewlines()
	}
	return list, nil
}

func (p *Parser) parseBlock() (ast.Node, error) {
	if _, err := p.expect(token.LBRACE); err != nil {
		return nil, err
	}
	list := &ast.List{Token: p.cur}
	p.skipNewlines()
	for p.cur.Type != token.RBRACE {
		if p.cur.Type == token.EOF {
			return nil, p.errorf(p.cur.Pos, "unbalanced brace: missing }")
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		list.Items = append(list.Items, stmt)
		p.skipNewlines()
	}
	p.next() // consume }
	return list, nil
}

func (p *Parser) parseStatement() (ast.Node, error) {
	switch p.cur.Type {
	case token.VAR, token.LET:
		return p.parseDeclare()
	case token.RETURN:
		return p.parseReturn()
	case token.FN:
		return p.parseFuncDecl()
	case token.IF:
		return p.parseIf()
	case token.FOR:
		return p.parseFor()
	case token.IMPORT:
		return p.parseImport()
	default:
		return p.parseExpressionStatement()
	}
}

func (p *Parser) parseDeclare() (ast.Node, error) {
	tok := p.cur
	isConst := p.cur.Type == token.LET
	p.next()

	name, err := p.expect(token.IDENT)
	if err != nil {
		return nil, err
	}

	decl := &ast.Declare{Token: tok, Const: isConst, Name: name.Literal}
	if p.cur.Type == token.ASSIGN {
		p.next()
		init, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		decl.Initial = init
	}
	return decl, nil
}

func (p *Parser) parseReturn() (ast.Node, error) {
	tok := p.cur
	p.next()

	if p.cur.Type == token.NEWLINE || p.cur.Type == token.RBRACE || p.cur.Type == token.EOF {
		return nil, p.errorf(tok.Pos, "missing expression after return")
	}

	val, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	return &ast.Unary{Operator: tok, Operand: val}, nil
}

func (p *Parser) parseFuncDecl() (ast.Node, error) {
	tok := p.cur
	p.next()

	exported := false
	if p.cur.Type == token.EXPORTED {
		exported = true
		p.next()
	}

	name, err := p.expect(token.IDENT)
	if err != nil {
		return nil, err
	}

	if _, err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}

	var args []string
	for p.cur.Type != token.RPAREN {
		arg, err := p.expect(token.IDENT)
		if err != nil {
			return nil, err
		}
		args = append(args, arg.Literal)
		if p.cur.Type == token.COMMA {
			p.next()
		}
	}
	p.next() // consume )

	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}

	return &ast.FuncDecl{Token: tok, Name: name.Literal, Exported: exported, Args: args, Body: body}, nil
}

func (p *Parser) parseIf() (ast.Node, error) {
	tok := p.cur
	p.next()

	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.If{Token: tok, Cond: cond, Body: body}, nil
}

func (p *Parser) parseFor() (ast.Node, error) {
	tok := p.cur
	p.next()

	name, err := p.expect(token.IDENT)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.IN); err != nil {
		return nil, err
	}
	iterable, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.For{Token: tok, Var: name.Literal, Iterable: iterable, Body: body}, nil
}

func (p *Parser) parseImport() (ast.Node, error) {
	tok := p.cur
	p.next()
	name, err := p.expect(token.STRING)
	if err != nil {
		return nil, p.errorf(tok.Pos, "missing module path after import")
	}
	return &ast.Module{Token: tok, Name: name.Literal}, nil
}

func (p *Parser) parseExpressionStatement() (ast.Node, error) {
	return p.parseExpression()
}

func (p *Parser) parseExpression() (ast.Node, error) {
	return p.parseAssignment()
}

func (p *Parser) parseAssignment() (ast.Node, error) {
	if p.cur.Type == token.IDENT && p.peek.Type == token.ASSIGN {
		name := p.cur
		p.next() // consume ident
		tok := p.cur
		p.next() // consume =
		value, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		return &ast.Assign{Token: tok, Name: name.Literal, Value: value}, nil
	}
	return p.parseConjunction()
}

func (p *Parser) parseConjunction() (ast.Node, error) {
	left, err := p.parseEquality()
	if err != nil {
		return nil, err
	}
	for p.cur.Type == token.AND || p.cur.Type == token.OR {
		op := p.cur
		p.next()
		right, err := p.parseEquality()
		if err != nil {
			return nil, err
		}
		left = &ast.Binary{Operator: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseEquality() (ast.Node, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.cur.Type == token.EQ || p.cur.Type == token.NEQ {
		op := p.cur
		p.next()
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = &ast.Binary{Operator: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseComparison() (ast.Node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.cur.Type == token.LT || p.cur.Type == token.LE || p.cur.Type == token.GT || p.cur.Type == token.GE {
		op := p.cur
		p.next()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &ast.Binary{Operator: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseTerm() (ast.Node, error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	for p.cur.Type == token.PLUS || p.cur.Type == token.MINUS {
		op := p.cur
		p.next()
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		left = &ast.Binary{Operator: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseFactor() (ast.Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.cur.Type == token.ASTERISK || p.cur.Type == token.SLASH {
		op := p.cur
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &ast.Binary{Operator: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseUnary() (ast.Node, error) {
	if p.cur.Type == token.BANG || p.cur.Type == token.MINUS {
		op := p.cur
		p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.Unary{Operator: op, Operand: operand}, nil
	}
	return p.parsePostfix()
}

// parsePostfix handles member access (`mod.name`) and invocation of the
// resulting value (`mod.name(args)`) chained after a primary expression.
func (p *Parser) parsePostfix() (ast.Node, error) {
	node, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.cur.Type == token.DOT {
		tok := p.cur
		p.next()
		name, err := p.expect(token.IDENT)
		if err != nil {
			return nil, err
		}
		node = &ast.Member{Token: tok, Object: node, Name: name.Literal}
		if p.cur.Type == token.LPAREN {
			node, err = p.parseInvoke(tok, node)
			if err != nil {
				return nil, err
			}
		}
	}
	return node, nil
}

// parseInvoke parses the argument list of a call to an already-parsed
// callee expression, lowering it to the "invoke" dynamic call: the callee
// is evaluated to a function value at runtime and dispatched by
// execCallDynamic rather than by the compile-time-resolved name lookup
// that a plain `name(args)` call uses.
func (p *Parser) parseInvoke(tok token.Token, callee ast.Node) (ast.Node, error) {
	p.next() // consume (
	call := &ast.Call{Token: tok, Name: "invoke", Args: []ast.Node{callee}}
	for p.cur.Type != token.RPAREN {
		arg, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		call.Args = append(call.Args, arg)
		if p.cur.Type == token.COMMA {
			p.next()
		}
	}
	p.next() // consume )
	return call, nil
}

func (p *Parser) parsePrimary() (ast.Node, error) {
	switch p.cur.Type {
	case token.INT, token.FLOAT, token.STRING, token.TRUE, token.FALSE, token.NIL:
		lit := &ast.Literal{Token: p.cur}
		p.next()
		return p.maybeRange(lit)
	case token.IDENT:
		name := p.cur
		if p.peek.Type == token.LPAREN {
			return p.parseCall(name)
		}
		p.next()
		return p.maybeRange(&ast.Literal{Token: name})
	case token.LPAREN:
		return p.parseGroupOrTuple()
	default:
		return nil, p.errorf(p.cur.Pos, "unexpected token %s", p.cur.Type)
	}
}

func (p *Parser) maybeRange(left ast.Node) (ast.Node, error) {
	if p.cur.Type != token.DOTDOT {
		return left, nil
	}
	tok := p.cur
	p.next()
	right, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	return &ast.Range{Token: tok, Begin: left, End: right}, nil
}

func (p *Parser) parseCall(name token.Token) (ast.Node, error) {
	p.next() // consume ident
	p.next() // consume (

	call := &ast.Call{Token: name, Name: name.Literal}
	for p.cur.Type != token.RPAREN {
		arg, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		call.Args = append(call.Args, arg)
		if p.cur.Type == token.COMMA {
			p.next()
		}
	}
	p.next() // consume )
	return call, nil
}

func (p *Parser) parseGroupOrTuple() (ast.Node, error) {
	tok := p.cur
	p.next() // consume (

	var elems []ast.Node
	for p.cur.Type != token.RPAREN {
		if p.cur.Type == token.EOF {
			return nil, p.errorf(tok.Pos, "unbalanced parenthesis")
		}
		elem, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		elems = append(elems, elem)
		if p.cur.Type == token.COMMA {
			p.next()
			continue
		}
		break
	}

	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}

	if len(elems) == 1 {
		return &ast.Group{Token: tok, Inner: elems[0]}, nil
	}
	return &ast.TupleLiteral{Token: tok, Elements: elems}, nil
}
