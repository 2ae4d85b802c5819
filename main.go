package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime/pprof"

	vm "nord/vm"
)

var (
	debugMode  = flag.Bool("debug", false, "run with an instruction trace recorded for each step and printed on exit")
	disasm     = flag.Bool("disasm", false, "print a disassembly of the compiled program before running it")
	cpuProfile = flag.String("cpuprofile", "", "write a CPU profile of the dispatch loop to this file")
)

func init() {
	flag.Parse()
}

func runFile(path string) error {
	source, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	bin, err := vm.Compile(path, string(source))
	if err != nil {
		return err
	}

	if *disasm {
		if err := bin.Disassemble(os.Stdout); err != nil {
			return err
		}
	}

	loader := vm.NewModuleLoader(filepath.Dir(path), func(p string) (*vm.Binary, error) {
		src, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		return vm.Compile(p, string(src))
	})

	machine := vm.NewVM(bin, loader, *debugMode)
	err = machine.Run()
	machine.PrintTrace()
	return err
}

func main() {
	args := os.Args[len(os.Args)-flag.NArg():]

	if len(args) == 0 {
		fmt.Println("Usage: nord [-debug] [-disasm] [-cpuprofile <file>] <file 1> [file 2] ... [file N]")
		return
	}

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		defer pprof.StopCPUProfile()
	}

	for _, path := range args {
		if err := runFile(path); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
}
