// Package ast defines the abstract syntax tree produced by the parser and
// consumed by the compiler. Each node is a tagged struct carrying its own
// payload, per the source's §9 design note, rather than an embedded C-style
// variant tag.
package ast

import "nord/token"

// Node is implemented by every AST node; it exposes the span of the first
// token that produced it, for caret diagnostics.
type Node interface {
	Pos() token.Position
}

// Literal wraps a single literal or identifier token.
type Literal struct {
	Token token.Token
}

func (n *Literal) Pos() token.Position { return n.Token.Pos }

// Unary is a prefix operator applied to an operand: -x, !x, return x.
type Unary struct {
	Operator token.Token
	Operand  Node
}

func (n *Unary) Pos() token.Position { return n.Operator.Pos }

// Binary is an infix operator: arithmetic, comparison, or logic.
type Binary struct {
	Operator token.Token
	Left     Node
	Right    Node
}

func (n *Binary) Pos() token.Position { return n.Operator.Pos }

// Group is a parenthesized expression; transparent to the compiler.
type Group struct {
	Token token.Token
	Inner Node
}

func (n *Group) Pos() token.Position { return n.Token.Pos }

// Declare declares a variable or constant, with an optional initializer.
type Declare struct {
	Token   token.Token
	Const   bool
	Name    string
	Initial Node // nil when declared without an initializer
}

func (n *Declare) Pos() token.Position { return n.Token.Pos }

// Assign assigns a new value to an already-declared name.
type Assign struct {
	Token token.Token
	Name  string
	Value Node
}

func (n *Assign) Pos() token.Position { return n.Token.Pos }

// List is an ordered sequence of statements/expressions; its value is that
// of its last item.
type List struct {
	Token token.Token
	Items []Node
}

func (n *List) Pos() token.Position { return n.Token.Pos }

// FuncDecl declares a named function.
type FuncDecl struct {
	Token    token.Token
	Name     string
	Exported bool
	Args     []string
	Body     Node
}

func (n *FuncDecl) Pos() token.Position { return n.Token.Pos }

// Call invokes a named function (built-in or user-defined) with arguments.
type Call struct {
	Token token.Token
	Name  string
	Args  []Node
}

func (n *Call) Pos() token.Position { return n.Token.Pos }

// If is a conditional with a single body and no else branch (per §4.2).
type If struct {
	Token token.Token
	Cond  Node
	Body  Node
}

func (n *If) Pos() token.Position { return n.Token.Pos }

// For iterates over an iterable value, binding each element to Var.
type For struct {
	Token    token.Token
	Var      string
	Iterable Node
	Body     Node
}

func (n *For) Pos() token.Position { return n.Token.Pos }

// Range is a begin..end expression, lowered to the range builtin.
type Range struct {
	Token token.Token
	Begin Node
	End   Node
}

func (n *Range) Pos() token.Position { return n.Token.Pos }

// TupleLiteral is a parenthesized, comma-separated list of elements.
type TupleLiteral struct {
	Token    token.Token
	Elements []Node
}

func (n *TupleLiteral) Pos() token.Position { return n.Token.Pos }

// Member accesses a named export on a module handle: `mod.name`.
type Member struct {
	Token  token.Token
	Object Node
	Name   string
}

func (n *Member) Pos() token.Position { return n.Token.Pos }

// Module references an imported source file by path.
type Module struct {
	Token token.Token
	Name  string
}

func (n *Module) Pos() token.Position { return n.Token.Pos }
