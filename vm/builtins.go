package nord

import (
	"fmt"
	"strconv"
	"time"
)

// BuiltinFunc is a native function reachable from bytecode via
// OP_CALL_DYNAMIC (§4.2.1), named in the builtin table by the string
// literal the compiler emits for the call.
type BuiltinFunc func(vm *VM, args []Value) (Value, error)

func defaultBuiltins() map[string]BuiltinFunc {
	return map[string]BuiltinFunc{
		"print":  builtinPrint,
		"time":   builtinTime,
		"tuple":  builtinTuple,
		"range":  builtinRange,
		"iter":   builtinIter,
		"type":   builtinType,
		"int":    builtinInt,
		"float":  builtinFloat,
		"string": builtinString,
		"len":    builtinLen,
		"member": builtinMember,
	}
}

// builtinMember implements module.name access (§4.2 primary grammar): args
// are the module value and the field name, looked up among the module's
// exported symbols.
func builtinMember(vm *VM, args []Value) (Value, error) {
	if len(args) != 2 {
		return Value{}, fmt.Errorf("member access expects 2 arguments, got %d", len(args))
	}
	obj, nameVal := args[0], args[1]
	if obj.Tag != TagModule {
		return Value{}, fmt.Errorf("value of type %s has no members", obj.Tag)
	}
	name := nameVal.asString().Value
	val, ok := obj.asModule().Exported(name)
	if !ok {
		return Value{}, fmt.Errorf("module %q has no exported symbol %q", obj.asModule().Name, name)
	}
	return val, nil
}

func builtinPrint(vm *VM, args []Value) (Value, error) {
	for i, a := range args {
		if i > 0 {
			vm.stdout.WriteByte(' ')
		}
		vm.stdout.WriteString(a.String())
	}
	vm.stdout.WriteByte('\n')
	return Nil, nil
}

func builtinTime(vm *VM, args []Value) (Value, error) {
	return Int(time.Now().UnixNano() / int64(time.Millisecond)), nil
}

func builtinTuple(vm *VM, args []Value) (Value, error) {
	elems := make([]Value, len(args))
	copy(elems, args)
	return TupleValue(elems), nil
}

// builtinRange constructs a tuple of integers [0, n) (single arg) or
// [start, end) (two args), for use with `for x in range(n)`.
func builtinRange(vm *VM, args []Value) (Value, error) {
	var start, end int64
	switch len(args) {
	case 1:
		end = args[0].Num
	case 2:
		start, end = args[0].Num, args[1].Num
	default:
		return Value{}, fmt.Errorf("range expects 1 or 2 arguments, got %d", len(args))
	}
	if end < start {
		return TupleValue(nil), nil
	}
	elems := make([]Value, 0, end-start)
	for i := start; i < end; i++ {
		elems = append(elems, Int(i))
	}
	return TupleValue(elems), nil
}

func builtinIter(vm *VM, args []Value) (Value, error) {
	if len(args) != 1 {
		return Value{}, fmt.Errorf("iter expects 1 argument, got %d", len(args))
	}
	v := args[0]
	length := 0
	switch v.Tag {
	case TagTuple:
		length = len(v.asTuple().Elements)
	case TagString:
		length = len([]rune(v.asString().Value))
	default:
		return Value{}, fmt.Errorf("value of type %s is not iterable", v.Tag)
	}
	return IteratorValue(&Iterator{Iterable: v, Length: length}), nil
}

func builtinType(vm *VM, args []Value) (Value, error) {
	if len(args) != 1 {
		return Value{}, fmt.Errorf("type expects 1 argument, got %d", len(args))
	}
	return Str(args[0].Tag.String()), nil
}

func builtinInt(vm *VM, args []Value) (Value, error) {
	if len(args) != 1 {
		return Value{}, fmt.Errorf("int expects 1 argument, got %d", len(args))
	}
	v := args[0]
	switch v.Tag {
	case TagInt:
		return v, nil
	case TagFloat:
		return Int(int64(v.Flt)), nil
	case TagBool:
		if v.Bln {
			return Int(1), nil
		}
		return Int(0), nil
	case TagString:
		n, err := strconv.ParseInt(v.asString().Value, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("cannot convert %q to int: %w", v.asString().Value, err)
		}
		return Int(n), nil
	default:
		return Value{}, fmt.Errorf("cannot convert %s to int", v.Tag)
	}
}

func builtinFloat(vm *VM, args []Value) (Value, error) {
	if len(args) != 1 {
		return Value{}, fmt.Errorf("float expects 1 argument, got %d", len(args))
	}
	v := args[0]
	switch v.Tag {
	case TagFloat:
		return v, nil
	case TagInt:
		return Float(float64(v.Num)), nil
	case TagString:
		f, err := strconv.ParseFloat(v.asString().Value, 64)
		if err != nil {
			return Value{}, fmt.Errorf("cannot convert %q to float: %w", v.asString().Value, err)
		}
		return Float(f), nil
	default:
		return Value{}, fmt.Errorf("cannot convert %s to float", v.Tag)
	}
}

func builtinString(vm *VM, args []Value) (Value, error) {
	if len(args) != 1 {
		return Value{}, fmt.Errorf("string expects 1 argument, got %d", len(args))
	}
	return Str(args[0].String()), nil
}

func builtinLen(vm *VM, args []Value) (Value, error) {
	if len(args) != 1 {
		return Value{}, fmt.Errorf("len expects 1 argument, got %d", len(args))
	}
	switch v := args[0]; v.Tag {
	case TagTuple:
		return Int(int64(len(v.asTuple().Elements))), nil
	case TagString:
		return Int(int64(len([]rune(v.asString().Value)))), nil
	default:
		return Value{}, fmt.Errorf("value of type %s has no length", v.Tag)
	}
}
