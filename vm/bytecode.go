package nord

import "fmt"

/*
	Register-based bytecode (§4.1). Operands are named A, B, C for the
	triplet form and A, W (wide) for the pair form; $n denotes register n,
	@n denotes data-pool slot n.

	Loading and constants
		nil A          $A <- nil
		load A W       $A <- data[W]
		loadv A W      $A <- integer constant W
		store A W      data[W] <- $A
		move A B       $A <- $B

	Stack
		push A         evaluation-stack push $A
		pop A          $A <- pop
		restore n      pop n (key,value) pairs, assign each value to $key

	Control flow
		jmp A          pc <- pc + $A (relative, distance taken from register)

	Arithmetic
		add/sub/mul/div A B C    $A <- $B <op> $C
		negate A B               $A <- -$B
		modulo A B C              $A <- $B % $C (reserved)

	Logic and comparison
		and/or A B C    boolean with numeric/boolean/string truthiness
		not A B         boolean negation
		equal cond B C  conditional-skip: if ($B == $C) != cond, skip next instr
		lessthan cond B C  conditional-skip: if ($B < $C) != cond, skip next instr

	Iteration
		deref A B n     advance iterator in $B by n, $A <- element or nil

	Functions
		call A W           call function prototype at data[W], result into $A
		call_dynamic A W   call built-in named by string at data[W], result into $A
		return A           return $A as the call result

	Modules
		import A W         compile+execute module named by string at data[W], $A <- module value
*/

// Bytecode is a single opcode byte.
type Bytecode byte

const (
	OpNil Bytecode = iota

	OpLoad
	OpLoadV
	OpStore
	OpMove

	OpPush
	OpPop
	OpRestore

	OpJmp

	OpAdd
	OpSub
	OpMul
	OpDiv
	OpNegate
	OpModulo

	OpAnd
	OpOr
	OpNot
	OpEqual
	OpLessThan

	OpDeref

	OpCall
	OpCallDynamic
	OpReturn

	OpImport
)

var opcodeNames = map[Bytecode]string{
	OpNil:         "nil",
	OpLoad:        "load",
	OpLoadV:       "loadv",
	OpStore:       "store",
	OpMove:        "move",
	OpPush:        "push",
	OpPop:         "pop",
	OpRestore:     "restore",
	OpJmp:         "jmp",
	OpAdd:         "add",
	OpSub:         "sub",
	OpMul:         "mul",
	OpDiv:         "div",
	OpNegate:      "negate",
	OpModulo:      "modulo",
	OpAnd:         "and",
	OpOr:          "or",
	OpNot:         "not",
	OpEqual:       "equal",
	OpLessThan:    "lessthan",
	OpDeref:       "deref",
	OpCall:        "call",
	OpCallDynamic: "call_dynamic",
	OpReturn:      "return",
	OpImport:      "import",
}

// String converts an opcode to its mnemonic, for use with disassembly and
// Print/Sprint, matching the teacher's Bytecode.String() idiom.
func (b Bytecode) String() string {
	if s, ok := opcodeNames[b]; ok {
		return s
	}
	return "?unknown?"
}

// Instruction is one opcode plus either a triplet of byte operands (A, B,
// C) or a pair of (A, wide W) operands; which interpretation applies is a
// property of the opcode, not stored per instruction (§4.1).
type Instruction struct {
	Op Bytecode
	A  uint8
	B  uint8
	C  uint8
	W  int32 // wide operand: jump distance, memory address, or signed constant
}

// NewTriplet builds an A/B/C-form instruction.
func NewTriplet(op Bytecode, a, b, c uint8) Instruction {
	return Instruction{Op: op, A: a, B: b, C: c}
}

// NewPair builds an A/W-form instruction.
func NewPair(op Bytecode, a uint8, w int32) Instruction {
	return Instruction{Op: op, A: a, W: w}
}

// String renders an instruction for disassembly/debug output.
func (i Instruction) String() string {
	switch i.Op {
	case OpAdd, OpSub, OpMul, OpDiv, OpAnd, OpOr, OpDeref:
		return fmt.Sprintf("%-12s $%d $%d $%d", i.Op, i.A, i.B, i.C)
	case OpEqual, OpLessThan:
		return fmt.Sprintf("%-12s %d $%d $%d", i.Op, i.A, i.B, i.C)
	case OpNegate, OpNot, OpMove:
		return fmt.Sprintf("%-12s $%d $%d", i.Op, i.A, i.B)
	case OpNil:
		return fmt.Sprintf("%-12s $%d", i.Op, i.A)
	case OpLoad, OpLoadV, OpStore:
		return fmt.Sprintf("%-12s $%d @%d", i.Op, i.A, i.W)
	case OpPush, OpPop:
		return fmt.Sprintf("%-12s $%d", i.Op, i.A)
	case OpRestore:
		return fmt.Sprintf("%-12s %d", i.Op, i.W)
	case OpJmp, OpReturn:
		return fmt.Sprintf("%-12s $%d", i.Op, i.A)
	case OpCall, OpCallDynamic, OpImport:
		return fmt.Sprintf("%-12s @%d", i.Op, i.W)
	default:
		return i.Op.String()
	}
}

// CodeBlock is a growable sequence of instructions: one module's top-level
// code, or one function's body (§3).
type CodeBlock struct {
	Instructions []Instruction
}

// NewCodeBlock creates an empty code block.
func NewCodeBlock() *CodeBlock {
	return &CodeBlock{}
}

// Write appends instr, returning its offset within the block.
func (c *CodeBlock) Write(instr Instruction) int {
	c.Instructions = append(c.Instructions, instr)
	return len(c.Instructions) - 1
}

// Len returns the number of instructions currently in the block.
func (c *CodeBlock) Len() int {
	return len(c.Instructions)
}

// Patch overwrites the instruction at offset, used for back-patching jump
// distances once a body's length is known.
func (c *CodeBlock) Patch(offset int, instr Instruction) {
	c.Instructions[offset] = instr
}

// CodeCollection is an indexable set of code blocks; block 0 is always the
// module's top-level code, subsequent blocks are function bodies (§3).
type CodeCollection struct {
	Blocks []*CodeBlock
}

// NewCodeCollection creates a collection with block 0 pre-populated.
func NewCodeCollection() *CodeCollection {
	cc := &CodeCollection{}
	cc.AddBlock(NewCodeBlock())
	return cc
}

// AddBlock appends block, returning its region index.
func (cc *CodeCollection) AddBlock(block *CodeBlock) int {
	cc.Blocks = append(cc.Blocks, block)
	return len(cc.Blocks) - 1
}
