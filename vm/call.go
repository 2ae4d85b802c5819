package nord

import "fmt"

// execCall invokes the function prototype stored at data[W] (§4.2.2). Its
// arguments have already been pushed onto the evaluation stack by the
// compiler in declaration order; live caller registers at and above the
// callee's low register are spilled to the save buffer and restored on
// return, since the callee's register window overlaps the caller's.
func (vm *VM) execCall(instr Instruction) {
	proto := vm.bin.Data.Get(int(instr.W)).asFunc()

	if vm.csp >= len(vm.callStack) {
		vm.errcode = errStackOverflow
		return
	}

	save := make([]int, 0, len(proto.Locals))
	vals := make([]Value, 0, len(proto.Locals))
	for _, reg := range proto.Locals {
		save = append(save, reg)
		vals = append(vals, vm.regs[reg])
	}

	args := make([]Value, proto.NArgs)
	for i := proto.NArgs - 1; i >= 0; i-- {
		args[i] = vm.popEval()
	}
	for i, a := range args {
		vm.regs[proto.LowReg+i] = a
	}

	vm.callStack[vm.csp] = frame{
		region:   vm.region,
		offset:   vm.pc,
		lowReg:   proto.LowReg,
		retReg:   instr.A,
		saveRegs: save,
		saveVals: vals,
	}
	vm.csp++

	vm.region = proto.Region
	vm.pc = proto.Offset
}

// execCallDynamic invokes a built-in named by the string at data[W]; its
// arguments have been pushed the same way as for a user call (§4.2.1).
// "invoke" is handled before the builtin table: it calls a first-class
// function value (e.g. one obtained via member access on an imported
// module) the same way OP_CALL calls a compile-time-known one.
func (vm *VM) execCallDynamic(instr Instruction) {
	name := vm.bin.Data.Get(int(instr.W)).asString().Value

	nargs := int(vm.popEval().Num)
	args := make([]Value, nargs)
	for i := nargs - 1; i >= 0; i-- {
		args[i] = vm.popEval()
	}

	if name == "invoke" {
		vm.execInvoke(instr, args)
		return
	}

	fn, ok := vm.builtins[name]
	if !ok {
		vm.errcode = fmt.Errorf("unknown builtin %q", name)
		return
	}

	result, err := fn(vm, args)
	if err != nil {
		vm.errcode = err
		return
	}
	vm.regs[instr.A] = result
}

// execInvoke calls the function value in args[0] with args[1:]. When the
// function is local (Owner == nil), it pushes a frame on vm's own call stack
// exactly like execCall, letting the enclosing exec() loop fall straight
// into the body. When the function was obtained from an imported module
// (Owner != nil), its Region/Offset/Locals are only meaningful inside that
// module's own VM and register file (§7), so the call instead runs to
// completion on the owning VM via a trampoline frame and returns the result.
func (vm *VM) execInvoke(instr Instruction, args []Value) {
	if len(args) == 0 || args[0].Tag != TagFunction {
		vm.errcode = fmt.Errorf("value is not callable")
		return
	}
	proto := args[0].asFunc()
	callArgs := args[1:]
	if len(callArgs) != proto.NArgs {
		vm.errcode = fmt.Errorf("function %q expects %d arguments, got %d", proto.Name, proto.NArgs, len(callArgs))
		return
	}

	if proto.Owner == nil {
		if vm.csp >= len(vm.callStack) {
			vm.errcode = errStackOverflow
			return
		}

		save := make([]int, 0, len(proto.Locals))
		vals := make([]Value, 0, len(proto.Locals))
		for _, reg := range proto.Locals {
			save = append(save, reg)
			vals = append(vals, vm.regs[reg])
		}
		for i, a := range callArgs {
			vm.regs[proto.LowReg+i] = a
		}

		vm.callStack[vm.csp] = frame{
			region:   vm.region,
			offset:   vm.pc,
			lowReg:   proto.LowReg,
			retReg:   instr.A,
			saveRegs: save,
			saveVals: vals,
		}
		vm.csp++

		vm.region = proto.Region
		vm.pc = proto.Offset
		return
	}

	result, err := proto.Owner.runToCompletion(proto, callArgs)
	if err != nil {
		vm.errcode = err
		return
	}
	vm.regs[instr.A] = result
}

// runToCompletion invokes proto (which belongs to this VM) on its own
// register file and call stack, driven by a synthetic frame whose return
// address is deliberately out of range: when the body's OP_RETURN pops that
// frame, the next fetch falls off the end of the block and exec() halts with
// errProgramFinished exactly as it would after a normal top-level run,
// giving this method a clean stopping point. Because the owner module has
// already finished its own top-level execution, reusing its register file
// for the call is safe: nothing else will resume there.
func (owner *VM) runToCompletion(proto *FuncProto, args []Value) (Value, error) {
	if owner.csp >= len(owner.callStack) {
		return Value{}, errStackOverflow
	}

	const scratchReg = numRegisters - 1

	save := make([]int, 0, len(proto.Locals))
	vals := make([]Value, 0, len(proto.Locals))
	for _, reg := range proto.Locals {
		save = append(save, reg)
		vals = append(vals, owner.regs[reg])
	}
	for i, a := range args {
		owner.regs[proto.LowReg+i] = a
	}

	savedRegion, savedPC, savedErr := owner.region, owner.pc, owner.errcode
	owner.callStack[owner.csp] = frame{
		region:   savedRegion,
		offset:   owner.block().Len() + 1,
		retReg:   scratchReg,
		saveRegs: save,
		saveVals: vals,
	}
	owner.csp++

	owner.region, owner.pc, owner.errcode = proto.Region, proto.Offset, nil
	owner.exec()

	result := owner.regs[scratchReg]
	err := owner.errcode
	owner.region, owner.pc, owner.errcode = savedRegion, savedPC, savedErr

	if err != nil && err != errProgramFinished {
		return Value{}, err
	}
	return result, nil
}

// execReturn pops the current call frame, restores spilled registers, and
// resumes the caller at its saved return address. Reports true when this
// was the outermost frame (top-level program finished).
func (vm *VM) execReturn(instr Instruction) bool {
	result := vm.regs[instr.A]

	if vm.csp == 0 {
		vm.errcode = errProgramFinished
		return true
	}

	vm.csp--
	f := vm.callStack[vm.csp]

	for i, reg := range f.saveRegs {
		vm.regs[reg] = f.saveVals[i]
	}

	vm.region = f.region
	vm.pc = f.offset
	vm.regs[f.retReg] = result
	return false
}

// execImport compiles and runs the module named by the string at data[W]
// (relative to the importing module's search path), binding the result to
// register A as a Module value (§7). Cycles and concurrent first-loads are
// handled by the VM's ModuleLoader.
func (vm *VM) execImport(instr Instruction) {
	if vm.loader == nil {
		vm.errcode = fmt.Errorf("import not supported: no module loader configured")
		return
	}
	path := vm.bin.Data.Get(int(instr.W)).asString().Value

	mod, err := vm.loader.Load(path)
	if err != nil {
		vm.errcode = err
		return
	}
	vm.regs[instr.A] = ModuleValue(mod)
}
