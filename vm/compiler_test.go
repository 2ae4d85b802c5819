package nord

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func compileProgram(t *testing.T, source string) *Binary {
	t.Helper()
	bin, err := Compile("test.nord", source)
	require.NoError(t, err)
	return bin
}

// runProgram compiles and runs source, returning the VM (so a test can poke
// at its registers or loader) and the value in the register named by the
// first OP_RETURN of the top-level code block, which in these tests is the
// program's single top-level `return`. Execution halts there: OP_RETURN at
// call-stack depth zero stops the dispatch loop immediately, so whatever the
// auto-appended final return would have done never runs.
func runProgram(t *testing.T, source string) (*VM, Value) {
	t.Helper()
	bin := compileProgram(t, source)
	vm := NewVM(bin, nil, false)
	require.NoError(t, vm.Run())
	return vm, firstReturnValue(vm)
}

func firstReturnValue(vm *VM) Value {
	for _, instr := range vm.bin.Code.Blocks[0].Instructions {
		if instr.Op == OpReturn {
			return vm.regs[instr.A]
		}
	}
	return Value{}
}

func TestCompileArithmeticPromotion(t *testing.T) {
	_, v := runProgram(t, `return 1 + 2 * 3`)
	require.Equal(t, TagInt, v.Tag)
	require.Equal(t, int64(7), v.Num)

	_, v = runProgram(t, `return 1 + 2.5`)
	require.Equal(t, TagFloat, v.Tag)
	require.Equal(t, 3.5, v.Flt)

	_, v = runProgram(t, `return 7 / 2`)
	require.Equal(t, TagFloat, v.Tag)
	require.Equal(t, 3.5, v.Flt)

	_, v = runProgram(t, `return "foo" + "bar"`)
	require.Equal(t, TagString, v.Tag)
	require.Equal(t, "foobar", v.asString().Value)
}

func TestCompileRelationalOperators(t *testing.T) {
	cases := []struct {
		source string
		want   bool
	}{
		{`return 1 == 1`, true},
		{`return 1 == 2`, false},
		{`return 1 != 2`, true},
		{`return 1 != 1`, false},
		{`return 1 < 2`, true},
		{`return 2 < 1`, false},
		{`return 2 > 1`, true},
		{`return 1 > 2`, false},
		{`return 1 <= 1`, true},
		{`return 2 <= 1`, false},
		{`return 1 >= 1`, true},
		{`return 1 >= 2`, false},
	}
	for _, c := range cases {
		_, v := runProgram(t, c.source)
		require.Equal(t, TagBool, v.Tag, c.source)
		require.Equal(t, c.want, v.Bln, c.source)
	}
}

func TestCompileIfExecutesBodyOnlyWhenTrue(t *testing.T) {
	_, v := runProgram(t, `
		var result = 0
		if 1 < 2 {
			result = 99
		}
		return result
	`)
	require.Equal(t, int64(99), v.Num)

	_, v = runProgram(t, `
		var result = 0
		if 2 < 1 {
			result = 99
		}
		return result
	`)
	require.Equal(t, int64(0), v.Num)
}

func TestCompileForAccumulates(t *testing.T) {
	_, v := runProgram(t, `
		var total = 0
		for i in range(5) {
			total = total + i
		}
		return total
	`)
	require.Equal(t, TagInt, v.Tag)
	require.Equal(t, int64(10), v.Num)
}

func TestCompileRecursiveFibonacci(t *testing.T) {
	_, v := runProgram(t, `
		fn fib(n) {
			if n < 2 {
				return n
			}
			return fib(n - 1) + fib(n - 2)
		}
		return fib(10)
	`)
	require.Equal(t, TagInt, v.Tag)
	require.Equal(t, int64(55), v.Num)
}

func TestCompileTupleAndLen(t *testing.T) {
	_, v := runProgram(t, `return len(tuple(1, 2, 3))`)
	require.Equal(t, int64(3), v.Num)

	_, v = runProgram(t, `return len("hello")`)
	require.Equal(t, int64(5), v.Num)
}

func TestCompileSpillAcrossNestedCalls(t *testing.T) {
	// add's live locals are overwritten by square's own arguments during the
	// nested call, then must be restored by OP_RETURN's save buffer before
	// the outer addition resumes — the spill/restore protocol in action.
	_, v := runProgram(t, `
		fn square(x) {
			return x * x
		}
		fn add(a, b) {
			return square(a) + square(b)
		}
		return add(3, 4)
	`)
	require.Equal(t, int64(25), v.Num)
}

func TestCompileUndeclaredNameIsCompileError(t *testing.T) {
	_, err := Compile("test.nord", `return missing`)
	require.Error(t, err)
	var ce *CompileError
	require.True(t, errors.As(err, &ce))
}
