package nord

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/xerrors"

	"nord/ast"
	"nord/parser"
	"nord/token"
)

// CompileError is a semantic diagnostic with a caret-printable source span,
// matching parser.Error's shape so the two compose into one consistent
// error surface for the CLI.
type CompileError struct {
	File    string
	Pos     token.Position
	Line    string
	Message string
}

func (e *CompileError) Error() string {
	caret := strings.Repeat(" ", max(e.Pos.Col-1, 0)) + "^"
	return fmt.Sprintf("%s:%d:%d: %s\n%s\n%s", e.File, e.Pos.Line, e.Pos.Col, e.Message, e.Line, caret)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// regionCtx is the register/scope/code-block state for one compilation
// unit: the top-level program, or a single function body. Register
// allocation is a bare bump allocator (rp only ever grows within a unit) —
// the compiler does not reclaim or coalesce registers, matching the
// generalized register-based design's lack of a real allocator.
type regionCtx struct {
	block  *CodeBlock
	scope  *SymbolMap
	rp     int
	lowReg int
}

func (r *regionCtx) alloc() uint8 {
	reg := r.rp
	r.rp++
	return uint8(reg)
}

// Compiler lowers a parsed program into a Binary: a data pool, one code
// region per function plus the top-level region, and a symbol table
// tracking every declared name's storage location.
type Compiler struct {
	bin  *Binary
	file string
	lines []string

	mp int // next free data-pool slot

	cur *regionCtx
}

// Compile parses and compiles source into a ready-to-run Binary.
func Compile(file, source string) (*Binary, error) {
	prog, err := parser.Parse(file, source)
	if err != nil {
		return nil, xerrors.Errorf("parsing %s: %w", file, err)
	}

	bin := NewBinary()
	c := &Compiler{
		bin:   bin,
		file:  file,
		lines: strings.Split(source, "\n"),
		mp:    2,
	}
	c.cur = &regionCtx{block: bin.Code.Blocks[0], scope: NewSymbolMap(nil)}

	if _, err := c.compile(prog); err != nil {
		return nil, err
	}
	c.emit(NewTriplet(OpReturn, c.cur.alloc(), 0, 0))

	return bin, nil
}

func (c *Compiler) errorf(pos token.Position, format string, args ...any) error {
	idx := pos.Line - 1
	line := ""
	if idx >= 0 && idx < len(c.lines) {
		line = c.lines[idx]
	}
	return &CompileError{File: c.file, Pos: pos, Line: line, Message: fmt.Sprintf(format, args...)}
}

func (c *Compiler) emit(instr Instruction) int { return c.cur.block.Write(instr) }

func (c *Compiler) allocData(v Value) int {
	addr := c.mp
	c.mp++
	c.bin.Data.Set(addr, v)
	return addr
}

func (c *Compiler) allocString(s string) int { return c.allocData(Str(s)) }

// compile dispatches on the AST node kind. Every node returns the register
// holding its value; for statements with no meaningful value (Declare,
// Assign, If, For, FuncDecl, Module) that register is unused by the caller.
func (c *Compiler) compile(n ast.Node) (uint8, error) {
	switch node := n.(type) {
	case *ast.Literal:
		return c.compileLiteral(node)
	case *ast.Unary:
		return c.compileUnary(node)
	case *ast.Binary:
		return c.compileBinary(node)
	case *ast.Group:
		return c.compile(node.Inner)
	case *ast.Declare:
		return c.compileDeclare(node)
	case *ast.Assign:
		return c.compileAssign(node)
	case *ast.List:
		return c.compileList(node)
	case *ast.FuncDecl:
		return c.compileFuncDecl(node)
	case *ast.Call:
		return c.compileCall(node)
	case *ast.If:
		return c.compileIf(node)
	case *ast.For:
		return c.compileFor(node)
	case *ast.Range:
		return c.compileRange(node)
	case *ast.TupleLiteral:
		return c.compileTuple(node)
	case *ast.Module:
		return c.compileImport(node)
	case *ast.Member:
		return c.compileMember(node)
	default:
		return 0, c.errorf(n.Pos(), "cannot compile node of type %T", n)
	}
}

func (c *Compiler) compileLiteral(n *ast.Literal) (uint8, error) {
	switch n.Token.Type {
	case token.NIL:
		reg := c.cur.alloc()
		c.emit(NewTriplet(OpNil, reg, 0, 0))
		return reg, nil
	case token.TRUE:
		reg := c.cur.alloc()
		c.emit(NewPair(OpLoad, reg, 1))
		return reg, nil
	case token.FALSE:
		reg := c.cur.alloc()
		c.emit(NewPair(OpLoad, reg, 0))
		return reg, nil
	case token.INT:
		v, err := strconv.ParseInt(n.Token.Literal, 10, 64)
		if err != nil {
			return 0, c.errorf(n.Pos(), "invalid integer literal %q", n.Token.Literal)
		}
		reg := c.cur.alloc()
		if v >= -(1<<31) && v < (1<<31) {
			c.emit(NewPair(OpLoadV, reg, int32(v)))
		} else {
			c.emit(NewPair(OpLoad, reg, int32(c.allocData(Int(v)))))
		}
		return reg, nil
	case token.FLOAT:
		v, err := strconv.ParseFloat(n.Token.Literal, 64)
		if err != nil {
			return 0, c.errorf(n.Pos(), "invalid float literal %q", n.Token.Literal)
		}
		reg := c.cur.alloc()
		c.emit(NewPair(OpLoad, reg, int32(c.allocData(Float(v)))))
		return reg, nil
	case token.STRING:
		reg := c.cur.alloc()
		c.emit(NewPair(OpLoad, reg, int32(c.allocString(n.Token.Literal))))
		return reg, nil
	case token.IDENT:
		return c.compileIdent(n)
	default:
		return 0, c.errorf(n.Pos(), "unexpected literal token %s", n.Token.Type)
	}
}

func (c *Compiler) compileIdent(n *ast.Literal) (uint8, error) {
	name := n.Token.Literal
	sym, ok := c.cur.scope.Get(name)
	if !ok {
		return 0, c.errorf(n.Pos(), "undeclared name %q", name)
	}
	switch sym.Location.Kind {
	case LocRegister:
		return uint8(sym.Location.Address), nil
	case LocMemory:
		reg := c.cur.alloc()
		c.emit(NewPair(OpLoad, reg, int32(sym.Location.Address)))
		return reg, nil
	default:
		return 0, c.errorf(n.Pos(), "name %q has no readable storage", name)
	}
}

func (c *Compiler) compileUnary(n *ast.Unary) (uint8, error) {
	if n.Operator.Type == token.RETURN {
		val, err := c.compile(n.Operand)
		if err != nil {
			return 0, err
		}
		c.emit(NewTriplet(OpReturn, val, 0, 0))
		return val, nil
	}

	operand, err := c.compile(n.Operand)
	if err != nil {
		return 0, err
	}
	dest := c.cur.alloc()
	switch n.Operator.Type {
	case token.MINUS:
		c.emit(NewTriplet(OpNegate, dest, operand, 0))
	case token.BANG:
		c.emit(NewTriplet(OpNot, dest, operand, 0))
	default:
		return 0, c.errorf(n.Pos(), "unsupported unary operator %s", n.Operator.Type)
	}
	return dest, nil
}

func (c *Compiler) compileBinary(n *ast.Binary) (uint8, error) {
	left, err := c.compile(n.Left)
	if err != nil {
		return 0, err
	}
	right, err := c.compile(n.Right)
	if err != nil {
		return 0, err
	}
	dest := c.cur.alloc()

	switch n.Operator.Type {
	case token.PLUS:
		c.emit(NewTriplet(OpAdd, dest, left, right))
	case token.MINUS:
		c.emit(NewTriplet(OpSub, dest, left, right))
	case token.ASTERISK:
		c.emit(NewTriplet(OpMul, dest, left, right))
	case token.SLASH:
		c.emit(NewTriplet(OpDiv, dest, left, right))
	case token.AND:
		c.emit(NewTriplet(OpAnd, dest, left, right))
	case token.OR:
		c.emit(NewTriplet(OpOr, dest, left, right))
	case token.EQ:
		return c.compileRelational(dest, left, right, OpEqual, true)
	case token.NEQ:
		return c.compileRelational(dest, left, right, OpEqual, false)
	case token.LT:
		return c.compileRelational(dest, left, right, OpLessThan, true)
	case token.GE:
		return c.compileRelational(dest, left, right, OpLessThan, false)
	case token.GT:
		return c.compileRelational(dest, left, right, OpLessThan, true, true)
	case token.LE:
		return c.compileRelational(dest, left, right, OpLessThan, false, true)
	default:
		return 0, c.errorf(n.Pos(), "unsupported binary operator %s", n.Operator.Type)
	}
	return dest, nil
}

// compileRelational materializes a boolean from a conditional-skip opcode:
// load true into dest, then skip the instruction that overwrites it with
// false when the comparison matches `want`. Passing swap reverses the
// operands, used to derive > from < and <= from >= without a dedicated
// opcode (§4.1's comparison set only has == and <).
func (c *Compiler) compileRelational(dest, left, right uint8, op Bytecode, want bool, swap ...bool) (uint8, error) {
	if len(swap) > 0 && swap[0] {
		left, right = right, left
	}
	// The opcode skips its next instruction when result-as-bool != A-as-bool
	// (see OpEqual/OpLessThan in exec()). dest should keep the true loaded
	// below (skip the overwrite) exactly when the comparison result equals
	// want, which works out to A=0 for want=true and A=1 for want=false.
	cond := uint8(1)
	if want {
		cond = 0
	}
	c.emit(NewPair(OpLoad, dest, 1)) // dest <- true
	c.emit(Instruction{Op: op, A: cond, B: left, C: right})
	c.emit(NewPair(OpLoad, dest, 0)) // dest <- false (skipped when comparison matches `want`)
	return dest, nil
}

func (c *Compiler) compileDeclare(n *ast.Declare) (uint8, error) {
	var reg uint8
	if n.Initial != nil {
		val, err := c.compile(n.Initial)
		if err != nil {
			return 0, err
		}
		reg = val
	} else {
		reg = c.cur.alloc()
		c.emit(NewTriplet(OpNil, reg, 0, 0))
	}

	kind := SymVar
	if n.Const {
		kind = SymConst
	}
	c.cur.scope.Set(Symbol{Name: n.Name, Kind: kind, Location: SymLocation{Kind: LocRegister, Address: int(reg)}})
	return reg, nil
}

func (c *Compiler) compileAssign(n *ast.Assign) (uint8, error) {
	sym, ok := c.cur.scope.Get(n.Name)
	if !ok {
		return 0, c.errorf(n.Pos(), "assignment to undeclared name %q", n.Name)
	}
	if sym.Kind == SymConst {
		return 0, c.errorf(n.Pos(), "cannot assign to immutable binding %q", n.Name)
	}
	val, err := c.compile(n.Value)
	if err != nil {
		return 0, err
	}
	if sym.Location.Kind != LocRegister {
		return 0, c.errorf(n.Pos(), "name %q is not assignable", n.Name)
	}
	c.emit(NewTriplet(OpMove, uint8(sym.Location.Address), val, 0))
	return uint8(sym.Location.Address), nil
}

func (c *Compiler) compileList(n *ast.List) (uint8, error) {
	var last uint8
	hadAny := false
	for _, item := range n.Items {
		reg, err := c.compile(item)
		if err != nil {
			return 0, err
		}
		last = reg
		hadAny = true
	}
	if !hadAny {
		last = c.cur.alloc()
		c.emit(NewTriplet(OpNil, last, 0, 0))
	}
	return last, nil
}

func (c *Compiler) compileFuncDecl(n *ast.FuncDecl) (uint8, error) {
	region := c.bin.Code.AddBlock(NewCodeBlock())

	// The data slot and symbol are reserved before the body compiles (and
	// filled in with the real FuncProto afterward) so that a call to this
	// function's own name from within its body — direct recursion —
	// resolves instead of falling through to the dynamic/builtin path.
	addr := c.allocData(Nil)
	loc := SymLocation{Kind: LocMemory, Address: addr}
	c.cur.scope.Set(Symbol{Name: n.Name, Kind: SymFn, Location: loc})
	if n.Exported {
		c.bin.Symbols.Set(Symbol{Name: n.Name, Kind: SymFn, Location: loc})
	}

	outer := c.cur
	fnScope := NewSymbolMap(outer.scope)
	c.cur = &regionCtx{block: c.bin.Code.Blocks[region], scope: fnScope}

	for _, arg := range n.Args {
		reg := c.cur.alloc()
		fnScope.Set(Symbol{Name: arg, Kind: SymVar, Location: SymLocation{Kind: LocRegister, Address: int(reg)}})
	}

	bodyReg, err := c.compile(n.Body)
	if err != nil {
		c.cur = outer
		return 0, err
	}
	if c.cur.block.Len() == 0 || c.cur.block.Instructions[c.cur.block.Len()-1].Op != OpReturn {
		c.emit(NewTriplet(OpReturn, bodyReg, 0, 0))
	}

	locals := make([]int, c.cur.rp)
	for i := range locals {
		locals[i] = i
	}
	fnRegion := c.cur

	c.cur = outer

	proto := &FuncProto{
		Name:   n.Name,
		Region: region,
		Offset: 0,
		NArgs:  len(n.Args),
		Locals: locals,
		LowReg: fnRegion.lowReg,
	}
	c.bin.Data.Set(addr, FuncValue(proto))

	reg := c.cur.alloc()
	c.emit(NewPair(OpLoad, reg, int32(addr)))
	return reg, nil
}

// compileCallArgs pushes each argument's value onto the evaluation stack in
// left-to-right order, matching the call protocol in §4.2.1/§4.2.2.
func (c *Compiler) compileCallArgs(args []ast.Node) error {
	for _, a := range args {
		reg, err := c.compile(a)
		if err != nil {
			return err
		}
		c.emit(NewTriplet(OpPush, reg, 0, 0))
	}
	return nil
}

func (c *Compiler) compileCall(n *ast.Call) (uint8, error) {
	if sym, ok := c.cur.scope.Get(n.Name); ok && sym.Kind == SymFn {
		if err := c.compileCallArgs(n.Args); err != nil {
			return 0, err
		}
		dest := c.cur.alloc()
		c.emit(NewPair(OpCall, dest, int32(sym.Location.Address)))
		return dest, nil
	}

	if err := c.compileCallArgs(n.Args); err != nil {
		return 0, err
	}
	nargsReg := c.cur.alloc()
	c.emit(NewPair(OpLoadV, nargsReg, int32(len(n.Args))))
	c.emit(NewTriplet(OpPush, nargsReg, 0, 0))

	nameAddr := c.allocString(n.Name)
	dest := c.cur.alloc()
	c.emit(NewPair(OpCallDynamic, dest, int32(nameAddr)))
	return dest, nil
}

func (c *Compiler) compileIf(n *ast.If) (uint8, error) {
	cond, err := c.compile(n.Cond)
	if err != nil {
		return 0, err
	}
	falseReg := c.cur.alloc()
	c.emit(NewPair(OpLoad, falseReg, 0)) // false

	// EQUAL skips exactly the next instruction in the stream. That next
	// instruction must be the JMP itself, not the loadv feeding it, so the
	// distance register is loaded first: result is 1 (cond==false) when
	// cond is falsy and 0 when truthy; A=1 skips the JMP precisely when
	// cond is truthy, letting the body execute; when falsy the JMP fires
	// and jumps past the body.
	distReg := c.cur.alloc()
	jmpDistOffset := c.emit(NewPair(OpLoadV, distReg, 0))
	c.emit(Instruction{Op: OpEqual, A: 1, B: cond, C: falseReg})
	jmpOffset := c.emit(NewTriplet(OpJmp, distReg, 0, 0))

	if _, err := c.compile(n.Body); err != nil {
		return 0, err
	}

	dist := c.cur.block.Len() - (jmpOffset + 1)
	c.cur.block.Patch(jmpDistOffset, NewPair(OpLoadV, distReg, int32(dist)))

	result := c.cur.alloc()
	c.emit(NewTriplet(OpNil, result, 0, 0))
	return result, nil
}

func (c *Compiler) compileFor(n *ast.For) (uint8, error) {
	iterable, err := c.compile(n.Iterable)
	if err != nil {
		return 0, err
	}
	c.emit(NewTriplet(OpPush, iterable, 0, 0))
	nargsReg := c.cur.alloc()
	c.emit(NewPair(OpLoadV, nargsReg, 1))
	c.emit(NewTriplet(OpPush, nargsReg, 0, 0))
	iterAddr := c.allocString("iter")
	iterReg := c.cur.alloc()
	c.emit(NewPair(OpCallDynamic, iterReg, int32(iterAddr)))

	loopScope := NewSymbolMap(c.cur.scope)
	outerScope := c.cur.scope
	c.cur.scope = loopScope

	varReg := c.cur.alloc()
	loopScope.Set(Symbol{Name: n.Var, Kind: SymVar, Location: SymLocation{Kind: LocRegister, Address: int(varReg)}})

	loopStart := c.cur.block.Len()
	c.emit(NewTriplet(OpDeref, varReg, iterReg, 1))

	nilReg := c.cur.alloc()
	c.emit(NewTriplet(OpNil, nilReg, 0, 0))
	// result is 1 (varReg==nil) when the iterator is exhausted, 0 otherwise;
	// A=1 skips the JMP-to-end (falling through to the body) precisely when
	// not exhausted, matching compileIf's polarity. As in compileIf, the
	// distance register must be loaded before EQUAL so that the JMP it
	// feeds is the literal next instruction EQUAL can skip.
	endDistReg := c.cur.alloc()
	endDistOffset := c.emit(NewPair(OpLoadV, endDistReg, 0))
	c.emit(Instruction{Op: OpEqual, A: 1, B: varReg, C: nilReg})
	endJmpOffset := c.emit(NewTriplet(OpJmp, endDistReg, 0, 0))

	if _, err := c.compile(n.Body); err != nil {
		c.cur.scope = outerScope
		return 0, err
	}

	backDistReg := c.cur.alloc()
	backOffset := c.emit(NewPair(OpLoadV, backDistReg, 0))
	jmpBackOffset := c.emit(NewTriplet(OpJmp, backDistReg, 0, 0))
	backDist := loopStart - (jmpBackOffset + 1)
	c.cur.block.Patch(backOffset, NewPair(OpLoadV, backDistReg, int32(backDist)))

	endDist := c.cur.block.Len() - (endJmpOffset + 1)
	c.cur.block.Patch(endDistOffset, NewPair(OpLoadV, endDistReg, int32(endDist)))

	c.cur.scope = outerScope

	result := c.cur.alloc()
	c.emit(NewTriplet(OpNil, result, 0, 0))
	return result, nil
}

// compileRange lowers begin..end, which includes end, to range(begin, end+1),
// since the range builtin's two-argument form excludes its upper bound.
func (c *Compiler) compileRange(n *ast.Range) (uint8, error) {
	one := &ast.Literal{Token: token.Token{Type: token.INT, Literal: "1", Pos: n.Token.Pos}}
	plus := token.Token{Type: token.PLUS, Literal: "+", Pos: n.Token.Pos}
	end := &ast.Binary{Operator: plus, Left: n.End, Right: one}
	return c.compileCall(&ast.Call{Token: n.Token, Name: "range", Args: []ast.Node{n.Begin, end}})
}

func (c *Compiler) compileTuple(n *ast.TupleLiteral) (uint8, error) {
	return c.compileCall(&ast.Call{Token: n.Token, Name: "tuple", Args: n.Elements})
}

func (c *Compiler) compileMember(n *ast.Member) (uint8, error) {
	nameLit := &ast.Literal{Token: token.Token{Type: token.STRING, Literal: n.Name, Pos: n.Token.Pos}}
	return c.compileCall(&ast.Call{Token: n.Token, Name: "member", Args: []ast.Node{n.Object, nameLit}})
}

func (c *Compiler) compileImport(n *ast.Module) (uint8, error) {
	pathAddr := c.allocString(n.Name)
	reg := c.cur.alloc()
	c.emit(NewPair(OpImport, reg, int32(pathAddr)))

	name := moduleNameForPath(n.Name)
	loc := SymLocation{Kind: LocRegister, Address: int(reg)}
	c.cur.scope.Set(Symbol{Name: name, Kind: SymModule, Location: loc})
	return reg, nil
}
