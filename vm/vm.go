package nord

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
)

const (
	numRegisters  = 256
	evalStackSize = 4096
	callStackSize = 256
)

var (
	errProgramFinished  = errors.New("ran out of instructions")
	errSegmentationFault = errors.New("segmentation fault")
	errStackOverflow    = errors.New("call stack overflow")
	errUnknownOpcode    = errors.New("instruction not recognized")
)

// frame is one call's activation record: the register window it owns, its
// return address (region/offset) and the save buffer spilled across the
// call per §4.2.2.
type frame struct {
	region    int
	offset    int
	lowReg    int
	retReg    uint8 // caller register to receive the return value
	saveRegs  []int
	saveVals  []Value
}

// VM executes one compiled Binary. Each Binary gets its own VM; importing a
// module runs a nested VM to completion and exposes it as a Module value
// (§7).
type VM struct {
	regs [numRegisters]Value

	evalStack []Value
	sp        int

	callStack []frame
	csp       int

	region int
	pc     int

	bin *Binary

	stdout *bufio.Writer

	builtins map[string]BuiltinFunc

	loader *ModuleLoader

	errcode error

	debug   bool
	debugOut *debugLog
}

// debugLog accumulates a trace of executed instructions when debug mode is
// enabled, mirroring the teacher's single-step/printCurrentState idiom.
type debugLog struct {
	lines []string
}

func (d *debugLog) record(s string) {
	if d != nil {
		d.lines = append(d.lines, s)
	}
}

// PrintTrace writes the recorded instruction trace to stdout, one line per
// executed instruction, mirroring the teacher's printDebugOutput idiom. It is
// a no-op unless the VM was constructed with debug mode enabled.
func (vm *VM) PrintTrace() {
	if vm.debugOut == nil {
		return
	}
	for _, line := range vm.debugOut.lines {
		fmt.Println(line)
	}
}

// NewVM creates a VM ready to execute bin, with loader used to resolve
// import statements (may be nil if bin contains no OP_IMPORT).
func NewVM(bin *Binary, loader *ModuleLoader, debugMode bool) *VM {
	vm := &VM{
		evalStack: make([]Value, evalStackSize),
		callStack: make([]frame, callStackSize),
		bin:       bin,
		stdout:    bufio.NewWriter(os.Stdout),
		builtins:  defaultBuiltins(),
		loader:    loader,
		debug:     debugMode,
	}
	if debugMode {
		vm.debugOut = &debugLog{}
	}
	return vm
}

func (vm *VM) block() *CodeBlock { return vm.bin.Code.Blocks[vm.region] }

func recoverSegfault(vm *VM) func() {
	return func() {
		if r := recover(); r != nil {
			err := errSegmentationFault
			if vm.errcode != nil {
				err = vm.errcode
			}
			vm.errcode = fmt.Errorf("%w at %d:%d", err, vm.region, vm.pc)
		}
	}
}

// Run executes the VM's program to completion. Garbage collection is
// disabled for the duration of the tight instruction loop, restored
// afterward, matching the teacher's RunProgram idiom.
func (vm *VM) Run() error {
	defer recoverSegfault(vm)()

	gcPercent := debug.SetGCPercent(-1)
	defer debug.SetGCPercent(gcPercent)

	vm.exec()
	vm.stdout.Flush()

	if vm.errcode != nil && vm.errcode != errProgramFinished {
		return vm.errcode
	}
	return nil
}

func (vm *VM) exec() {
	for {
		block := vm.block()
		if vm.pc >= block.Len() {
			vm.errcode = errProgramFinished
			return
		}

		instr := block.Instructions[vm.pc]
		if vm.debugOut != nil {
			vm.debugOut.record(fmt.Sprintf("%d:%d %s", vm.region, vm.pc, instr))
		}
		vm.pc++

		switch instr.Op {
		case OpNil:
			vm.regs[instr.A] = Nil

		case OpLoad:
			vm.regs[instr.A] = vm.bin.Data.Get(int(instr.W))

		case OpLoadV:
			vm.regs[instr.A] = Int(int64(instr.W))

		case OpStore:
			vm.bin.Data.Set(int(instr.W), vm.regs[instr.A])

		case OpMove:
			vm.regs[instr.A] = vm.regs[instr.B]

		case OpPush:
			vm.pushEval(vm.regs[instr.A])

		case OpPop:
			vm.regs[instr.A] = vm.popEval()

		case OpRestore:
			vm.execRestore(int(instr.W))

		case OpJmp:
			vm.pc += int(vm.regs[instr.A].Num)

		case OpAdd, OpSub, OpMul, OpDiv, OpModulo:
			vm.execArith(instr)

		case OpNegate:
			v := vm.regs[instr.B]
			if v.Tag == TagFloat {
				vm.regs[instr.A] = Float(-v.Flt)
			} else {
				vm.regs[instr.A] = Int(-v.Num)
			}

		case OpAnd:
			vm.regs[instr.A] = Bool(vm.regs[instr.B].Truthy() && vm.regs[instr.C].Truthy())

		case OpOr:
			vm.regs[instr.A] = Bool(vm.regs[instr.B].Truthy() || vm.regs[instr.C].Truthy())

		case OpNot:
			vm.regs[instr.A] = Bool(!vm.regs[instr.B].Truthy())

		case OpEqual:
			result := valuesEqual(vm.regs[instr.B], vm.regs[instr.C])
			if (result != 0) != (instr.A != 0) {
				vm.pc++
			}

		case OpLessThan:
			result := valuesLess(vm.regs[instr.B], vm.regs[instr.C])
			if result != (instr.A != 0) {
				vm.pc++
			}

		case OpDeref:
			vm.execDeref(instr)

		case OpCall:
			vm.execCall(instr)

		case OpCallDynamic:
			vm.execCallDynamic(instr)

		case OpReturn:
			if vm.execReturn(instr) {
				return
			}

		case OpImport:
			vm.execImport(instr)

		default:
			vm.errcode = errUnknownOpcode
			return
		}

		if vm.errcode != nil {
			return
		}
	}
}

func (vm *VM) pushEval(v Value) {
	if vm.sp >= len(vm.evalStack) {
		grown := make([]Value, len(vm.evalStack)*2)
		copy(grown, vm.evalStack)
		vm.evalStack = grown
	}
	vm.evalStack[vm.sp] = v
	vm.sp++
}

func (vm *VM) popEval() Value {
	vm.sp--
	return vm.evalStack[vm.sp]
}

// execRestore pops n (key, value) pairs, each pushed key first and value
// second, and writes each value back into the register named by key
// (§4.1 "restore"). The compiler does not emit this opcode.
func (vm *VM) execRestore(n int) {
	for i := 0; i < n; i++ {
		val := vm.popEval()
		key := vm.popEval()
		vm.regs[uint8(key.Num)] = val
	}
}

func valuesEqual(a, b Value) int {
	if isNumeric(a) && isNumeric(b) {
		if b0 := numericValue(a) == numericValue(b); b0 {
			return 1
		}
		return 0
	}
	if a.Equal(b) {
		return 1
	}
	return 0
}

func valuesLess(a, b Value) bool {
	if isNumeric(a) && isNumeric(b) {
		return numericValue(a) < numericValue(b)
	}
	if a.Tag == TagString && b.Tag == TagString {
		return a.asString().Value < b.asString().Value
	}
	return false
}

// execArith implements §4.1's arithmetic dispatch: mixed int/float operands
// promote to float, ADD on any string operand concatenates, and DIV always
// yields a float regardless of operand types.
func (vm *VM) execArith(instr Instruction) {
	a, b := vm.regs[instr.B], vm.regs[instr.C]
	if instr.Op == OpAdd && (a.Tag == TagString || b.Tag == TagString) {
		vm.regs[instr.A] = Str(a.String() + b.String())
		return
	}

	if instr.Op == OpDiv {
		y := numericValue(b)
		if y == 0 {
			vm.errcode = fmt.Errorf("division by zero")
			return
		}
		vm.regs[instr.A] = Float(numericValue(a) / y)
		return
	}

	if a.Tag == TagFloat || b.Tag == TagFloat {
		x, y := numericValue(a), numericValue(b)
		switch instr.Op {
		case OpAdd:
			vm.regs[instr.A] = Float(x + y)
		case OpSub:
			vm.regs[instr.A] = Float(x - y)
		case OpMul:
			vm.regs[instr.A] = Float(x * y)
		case OpModulo:
			vm.errcode = fmt.Errorf("modulo not defined for floats")
		}
		return
	}

	x, y := a.Num, b.Num
	switch instr.Op {
	case OpAdd:
		vm.regs[instr.A] = Int(x + y)
	case OpSub:
		vm.regs[instr.A] = Int(x - y)
	case OpMul:
		vm.regs[instr.A] = Int(x * y)
	case OpModulo:
		if y == 0 {
			vm.errcode = fmt.Errorf("division by zero")
			return
		}
		vm.regs[instr.A] = Int(x % y)
	}
}

// execDeref advances the iterator held in $B by n=C steps (§4.1 DEREF): $A
// receives the element at the pre-advance index, or Nil once exhausted.
func (vm *VM) execDeref(instr Instruction) {
	it := vm.regs[instr.B].asIterator()
	if it.Index >= it.Length {
		vm.regs[instr.A] = Nil
		return
	}
	switch it.Iterable.Tag {
	case TagTuple:
		vm.regs[instr.A] = it.Iterable.asTuple().Elements[it.Index]
	case TagString:
		runes := []rune(it.Iterable.asString().Value)
		vm.regs[instr.A] = Str(string(runes[it.Index]))
	default:
		vm.regs[instr.A] = Int(int64(it.Index))
	}
	n := int(instr.C)
	if n == 0 {
		n = 1
	}
	it.Index += n
}
