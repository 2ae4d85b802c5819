// Package nord implements the compilation and execution pipeline for the
// language: the data model, symbol table, bytecode instruction set,
// compiler, and virtual machine described by the specification. The
// package name mirrors the teacher's own single-package layout for its
// bytecode/compile/exec/vm core.
package nord

import "fmt"

// ValueTag is the type tag of a Value.
type ValueTag byte

const (
	TagAbsent ValueTag = iota
	TagNil
	TagInt
	TagFloat
	TagBool
	TagString
	TagTuple
	TagIterator
	TagFunction
	TagModule
)

func (t ValueTag) String() string {
	switch t {
	case TagAbsent:
		return "absent"
	case TagNil:
		return "nil"
	case TagInt:
		return "int"
	case TagFloat:
		return "float"
	case TagBool:
		return "bool"
	case TagString:
		return "string"
	case TagTuple:
		return "tuple"
	case TagIterator:
		return "iterator"
	case TagFunction:
		return "function"
	case TagModule:
		return "module"
	default:
		return "?unknown?"
	}
}

// Value is the tagged-union value every register, memory slot, and stack
// slot holds. Strings, tuples, iterators, function prototypes and modules
// are heap objects referenced through Obj, sharing Tag as their object
// header per §3.
type Value struct {
	Tag ValueTag
	Num int64   // holds TagInt
	Flt float64 // holds TagFloat
	Bln bool    // holds TagBool
	Obj any     // holds *String, *Tuple, *Iterator, *FuncProto, *Module
}

// Absent is the sentinel for an unoccupied memory or register slot.
var Absent = Value{Tag: TagAbsent}

// Nil is the language's nil value.
var Nil = Value{Tag: TagNil}

// False and True are the canonical booleans; the compiler never constructs
// new ones, loading data-pool slots 0 and 1 instead (see Binary).
var (
	False = Value{Tag: TagBool, Bln: false}
	True  = Value{Tag: TagBool, Bln: true}
)

// Int constructs an integer value.
func Int(n int64) Value { return Value{Tag: TagInt, Num: n} }

// Float constructs a float value.
func Float(f float64) Value { return Value{Tag: TagFloat, Flt: f} }

// Bool constructs a boolean value.
func Bool(b bool) Value {
	if b {
		return True
	}
	return False
}

// Str constructs a string value.
func Str(s string) Value {
	return Value{Tag: TagString, Obj: &String{Value: s}}
}

// String is the heap object backing TagString values.
type String struct {
	Value string
}

// Tuple is the heap object backing TagTuple values.
type Tuple struct {
	Elements []Value
}

// TupleValue constructs a tuple value from its elements.
func TupleValue(elems []Value) Value {
	return Value{Tag: TagTuple, Obj: &Tuple{Elements: elems}}
}

// Iterator is the heap object backing TagIterator values: a reference to
// the iterable plus an advancing index and a length snapshot taken at
// creation time.
type Iterator struct {
	Iterable Value
	Index    int
	Length   int
}

// IteratorValue wraps it as a TagIterator value.
func IteratorValue(it *Iterator) Value {
	return Value{Tag: TagIterator, Obj: it}
}

// FuncProto is the heap object backing TagFunction values. It is created
// once at declaration time and reused on every call; per-call state (the
// save buffer and return address) lives on a cloned Frame, never mutated
// here (§3 Lifecycle).
type FuncProto struct {
	Name   string
	Region int // index into the code collection
	Offset int // entry offset within that region
	NArgs  int
	Locals []int // register indices used by the body, low_reg..rp
	LowReg int

	// Owner is nil for a function local to the currently executing VM.
	// Module.Exported sets it to the imported module's own VM, since
	// Region/Offset/Locals are only meaningful relative to that VM's own
	// Binary and register file, not the caller's (§7).
	Owner *VM
}

// FuncValue wraps proto as a TagFunction value.
func FuncValue(proto *FuncProto) Value {
	return Value{Tag: TagFunction, Obj: proto}
}

// Module is the heap object backing TagModule values: an imported and
// already-executed VM instance, exposing its exported symbols.
type Module struct {
	Name string
	VM   *VM
}

// ModuleValue wraps m as a TagModule value.
func ModuleValue(m *Module) Value {
	return Value{Tag: TagModule, Obj: m}
}

func (v Value) asString() *String     { return v.Obj.(*String) }
func (v Value) asTuple() *Tuple       { return v.Obj.(*Tuple) }
func (v Value) asIterator() *Iterator { return v.Obj.(*Iterator) }
func (v Value) asFunc() *FuncProto    { return v.Obj.(*FuncProto) }
func (v Value) asModule() *Module     { return v.Obj.(*Module) }

// Truthy implements the language's truthiness rule: numbers/bools by value,
// strings by non-emptiness, nil/absent always false, everything else true.
func (v Value) Truthy() bool {
	switch v.Tag {
	case TagInt:
		return v.Num != 0
	case TagFloat:
		return v.Flt != 0
	case TagBool:
		return v.Bln
	case TagString:
		return v.asString().Value != ""
	case TagNil, TagAbsent:
		return false
	default:
		return true
	}
}

// Equal implements value equality: numeric/bool cross-comparison is not
// performed here (the VM's OP_EQUAL handles numeric coercion itself);
// Equal is used for string/nil comparison where no coercion applies. Tuples,
// iterators, functions and modules never compare equal, not even to
// themselves.
func (v Value) Equal(other Value) bool {
	if v.Tag != other.Tag {
		return false
	}
	switch v.Tag {
	case TagNil, TagAbsent:
		return true
	case TagInt:
		return v.Num == other.Num
	case TagFloat:
		return v.Flt == other.Flt
	case TagBool:
		return v.Bln == other.Bln
	case TagString:
		return v.asString().Value == other.asString().Value
	default:
		return false
	}
}

// String renders v for the print builtin and debug output.
func (v Value) String() string {
	switch v.Tag {
	case TagNil:
		return "nil"
	case TagAbsent:
		return "absent"
	case TagInt:
		return fmt.Sprintf("%d", v.Num)
	case TagFloat:
		return fmt.Sprintf("%g", v.Flt)
	case TagBool:
		if v.Bln {
			return "true"
		}
		return "false"
	case TagString:
		return v.asString().Value
	case TagTuple:
		t := v.asTuple()
		s := "("
		for i, e := range t.Elements {
			if i > 0 {
				s += ", "
			}
			s += e.String()
		}
		return s + ")"
	case TagIterator:
		return "<iterator>"
	case TagFunction:
		return fmt.Sprintf("<function %s>", v.asFunc().Name)
	case TagModule:
		return fmt.Sprintf("<module %s>", v.asModule().Name)
	default:
		return "?unknown?"
	}
}

func isNumeric(v Value) bool {
	return v.Tag == TagInt || v.Tag == TagFloat || v.Tag == TagBool
}

func numericValue(v Value) float64 {
	switch v.Tag {
	case TagFloat:
		return v.Flt
	case TagBool:
		if v.Bln {
			return 1
		}
		return 0
	default:
		return float64(v.Num)
	}
}
