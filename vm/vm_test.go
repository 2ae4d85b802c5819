package nord

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/tools/txtar"
)

// captureStdout redirects os.Stdout for the duration of fn and returns
// everything written to it. The VM's stdout writer wraps os.Stdout at
// NewVM time, so the swap has to happen before the VM is constructed.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)

	orig := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	fn()

	require.NoError(t, w.Close())
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(out)
}

func runForStdout(t *testing.T, source string) string {
	t.Helper()
	return captureStdout(t, func() {
		bin, err := Compile("test.nord", source)
		require.NoError(t, err)
		vm := NewVM(bin, nil, false)
		require.NoError(t, vm.Run())
	})
}

// TestEndToEndScenarios drives every literal-source-to-expected-stdout
// scenario bundled in testdata/scenarios.txtar, plus the one compile-error
// scenario, each a single compile+run cycle through the public API exactly
// as the CLI uses it.
func TestEndToEndScenarios(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("..", "testdata", "scenarios.txtar"))
	require.NoError(t, err)
	archive := txtar.Parse(data)

	files := make(map[string]string, len(archive.Files))
	for _, f := range archive.Files {
		files[f.Name] = string(f.Data)
	}

	scenarios := map[string]string{
		"arithmetic_precedence": "expected.txt",
		"reassignment":          "expected.txt",
		"function_call":         "expected.txt",
		"recursive_fibonacci":   "expected.txt",
		"range_loop":            "expected.txt",
		"tuple_print":           "expected.txt",
		"string_concat":         "expected.txt",
	}
	for name, expectedFile := range scenarios {
		source, ok := files[name+"/source.nord"]
		require.True(t, ok, "missing source for scenario %s", name)
		expected, ok := files[name+"/"+expectedFile]
		require.True(t, ok, "missing expected output for scenario %s", name)

		got := runForStdout(t, source)
		require.Equal(t, strings.TrimRight(expected, "\n"), strings.TrimRight(got, "\n"), "scenario %s", name)
	}

	errSource, ok := files["assign_to_const_err/source.nord"]
	require.True(t, ok)
	wantSubstr, ok := files["assign_to_const_err/expected_err.txt"]
	require.True(t, ok)
	_, err = Compile("test.nord", errSource)
	require.Error(t, err)
	require.Contains(t, err.Error(), strings.TrimSpace(wantSubstr))
}

func TestBooleanIdentity(t *testing.T) {
	_, v := runProgram(t, `return !!true`)
	require.True(t, v.Truthy())
	_, v = runProgram(t, `return !!false`)
	require.False(t, v.Truthy())
}

// TestIterationExhaustion drives OP_DEREF directly: n+1 consecutive steps
// over a length-n iterable must yield the n elements followed by nil.
func TestIterationExhaustion(t *testing.T) {
	vm := NewVM(NewBinary(), nil, false)
	it := &Iterator{Iterable: TupleValue([]Value{Int(10), Int(20), Int(30)}), Length: 3}
	vm.regs[1] = IteratorValue(it)

	for _, want := range []int64{10, 20, 30} {
		vm.execDeref(Instruction{Op: OpDeref, A: 0, B: 1, C: 1})
		require.Equal(t, TagInt, vm.regs[0].Tag)
		require.Equal(t, want, vm.regs[0].Num)
	}
	vm.execDeref(Instruction{Op: OpDeref, A: 0, B: 1, C: 1})
	require.Equal(t, TagNil, vm.regs[0].Tag, "n+1th deref must yield nil")
}

func TestFreshBinaryDataPoolInvariant(t *testing.T) {
	bin := compileProgram(t, `return 1 + 2`)
	require.Equal(t, False, bin.Data.Get(0))
	require.Equal(t, True, bin.Data.Get(1))
}

func TestModuleImportAndInvoke(t *testing.T) {
	dir := t.TempDir()

	lib := "fn exported add(a, b) { return a + b }\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mathlib.nord"), []byte(lib), 0o644))

	main := `
		import "mathlib"
		print(mathlib.add(3, 4))
	`
	mainPath := filepath.Join(dir, "main.nord")
	require.NoError(t, os.WriteFile(mainPath, []byte(main), 0o644))

	bin, err := Compile(mainPath, main)
	require.NoError(t, err)

	loader := NewModuleLoader(dir, func(p string) (*Binary, error) {
		src, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		return Compile(p, string(src))
	})

	out := captureStdout(t, func() {
		machine := NewVM(bin, loader, false)
		require.NoError(t, machine.Run())
	})
	require.Equal(t, "7", strings.TrimRight(out, "\n"))
}

func TestModuleImportCycleIsDetected(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.nord"), []byte(`import "b"`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.nord"), []byte(`import "a"`), 0o644))

	loader := NewModuleLoader(dir, func(p string) (*Binary, error) {
		src, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		return Compile(p, string(src))
	})

	_, err := loader.Load(filepath.Join(dir, "a.nord"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "cycle")
}

func TestDivisionByZero(t *testing.T) {
	bin := compileProgram(t, `return 1 / 0`)
	vm := NewVM(bin, nil, false)
	err := vm.Run()
	require.Error(t, err)
	require.Contains(t, err.Error(), "division by zero")
}
