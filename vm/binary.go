package nord

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// Binary magic/version per §6. Only the logical sections matter; the exact
// on-disk byte layout of a nord binary is otherwise an external concern
// (disassemblers/editors), same as the teacher treats its own wire format.
const (
	binaryMagic   uint32 = 0xBABABEEF
	binaryVersion uint16 = 1
)

// Binary is the in-memory container produced by the compiler and consumed
// by the VM: a data pool, a code collection, and an exported-symbol map
// (§3, §6).
type Binary struct {
	Data    *MemoryRegion
	Code    *CodeCollection
	Symbols *SymbolMap
}

// NewBinary creates an empty binary with data pool slots 0/1 preinitialized
// to the canonical false/true values (§3 invariant).
func NewBinary() *Binary {
	b := &Binary{
		Data:    NewMemoryRegion(),
		Code:    NewCodeCollection(),
		Symbols: NewSymbolMap(nil),
	}
	b.Data.Set(0, False)
	b.Data.Set(1, True)
	return b
}

// valueKind tags a serialized data-pool record; only primitive/string
// values round-trip through the wire format (§6 "logical sections" — a
// function prototype or module handle is runtime-only state and is written
// back out as absent, to be recompiled/re-imported on load).
type valueKind uint8

const (
	vkAbsent valueKind = iota
	vkNil
	vkInt
	vkFloat
	vkBool
	vkString
)

// Write serializes the binary's data pool and code section to w, following
// the logical layout in §6: magic, version, data section, code section.
func (b *Binary) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)

	if err := binary.Write(bw, binary.LittleEndian, binaryMagic); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, binaryVersion); err != nil {
		return err
	}

	if err := binary.Write(bw, binary.LittleEndian, uint32(b.Data.Len())); err != nil {
		return err
	}
	for i := 0; i < b.Data.Len(); i++ {
		if err := writeValueRecord(bw, b.Data.Get(i)); err != nil {
			return err
		}
	}

	if err := binary.Write(bw, binary.LittleEndian, uint32(len(b.Code.Blocks))); err != nil {
		return err
	}
	for _, block := range b.Code.Blocks {
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(block.Instructions))); err != nil {
			return err
		}
		for _, instr := range block.Instructions {
			if err := writeInstruction(bw, instr); err != nil {
				return err
			}
		}
	}

	return bw.Flush()
}

// Disassemble writes a human-readable listing of every code region in b to
// w, one line per instruction, mirroring the teacher's printProgram/
// formatInstructionStr idiom: region index, in-region offset, and the
// instruction's own String() rendering.
func (b *Binary) Disassemble(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for region, block := range b.Code.Blocks {
		if _, err := fmt.Fprintf(bw, "region %d:\n", region); err != nil {
			return err
		}
		for pc, instr := range block.Instructions {
			if _, err := fmt.Fprintf(bw, "  %d: %s\n", pc, instr); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

func writeValueRecord(w io.Writer, v Value) error {
	switch v.Tag {
	case TagAbsent:
		return binary.Write(w, binary.LittleEndian, vkAbsent)
	case TagNil:
		return binary.Write(w, binary.LittleEndian, vkNil)
	case TagInt:
		if err := binary.Write(w, binary.LittleEndian, vkInt); err != nil {
			return err
		}
		return binary.Write(w, binary.LittleEndian, v.Num)
	case TagFloat:
		if err := binary.Write(w, binary.LittleEndian, vkFloat); err != nil {
			return err
		}
		return binary.Write(w, binary.LittleEndian, v.Flt)
	case TagBool:
		if err := binary.Write(w, binary.LittleEndian, vkBool); err != nil {
			return err
		}
		return binary.Write(w, binary.LittleEndian, v.Bln)
	case TagString:
		if err := binary.Write(w, binary.LittleEndian, vkString); err != nil {
			return err
		}
		s := v.asString().Value
		if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
			return err
		}
		_, err := w.Write([]byte(s))
		return err
	default:
		// Functions and modules are runtime-only; write them back as absent.
		return binary.Write(w, binary.LittleEndian, vkAbsent)
	}
}

func writeInstruction(w io.Writer, instr Instruction) error {
	if err := binary.Write(w, binary.LittleEndian, instr.Op); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, [3]uint8{instr.A, instr.B, instr.C}); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, instr.W)
}

// Read deserializes a binary previously written with Write. Exported
// symbols are not round-tripped (they are a compile-time artifact tied to
// a live SymbolMap) and Symbols is left empty; a reader that needs them
// should recompile from source instead.
func Read(r io.Reader) (*Binary, error) {
	br := bufio.NewReader(r)

	var magic uint32
	if err := binary.Read(br, binary.LittleEndian, &magic); err != nil {
		return nil, err
	}
	if magic != binaryMagic {
		return nil, fmt.Errorf("not a nord binary: bad magic %#x", magic)
	}

	var version uint16
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return nil, err
	}
	if version != binaryVersion {
		return nil, fmt.Errorf("unsupported binary version %d", version)
	}

	b := &Binary{Data: NewMemoryRegion(), Code: &CodeCollection{}, Symbols: NewSymbolMap(nil)}

	var dataLen uint32
	if err := binary.Read(br, binary.LittleEndian, &dataLen); err != nil {
		return nil, err
	}
	for i := uint32(0); i < dataLen; i++ {
		v, err := readValueRecord(br)
		if err != nil {
			return nil, err
		}
		b.Data.Set(int(i), v)
	}

	var numBlocks uint32
	if err := binary.Read(br, binary.LittleEndian, &numBlocks); err != nil {
		return nil, err
	}
	for i := uint32(0); i < numBlocks; i++ {
		var instrCount uint32
		if err := binary.Read(br, binary.LittleEndian, &instrCount); err != nil {
			return nil, err
		}
		block := NewCodeBlock()
		for j := uint32(0); j < instrCount; j++ {
			instr, err := readInstruction(br)
			if err != nil {
				return nil, err
			}
			block.Write(instr)
		}
		b.Code.AddBlock(block)
	}

	return b, nil
}

func readValueRecord(r io.Reader) (Value, error) {
	var kind valueKind
	if err := binary.Read(r, binary.LittleEndian, &kind); err != nil {
		return Value{}, err
	}
	switch kind {
	case vkAbsent:
		return Absent, nil
	case vkNil:
		return Nil, nil
	case vkInt:
		var n int64
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return Value{}, err
		}
		return Int(n), nil
	case vkFloat:
		var f float64
		if err := binary.Read(r, binary.LittleEndian, &f); err != nil {
			return Value{}, err
		}
		return Float(f), nil
	case vkBool:
		var b bool
		if err := binary.Read(r, binary.LittleEndian, &b); err != nil {
			return Value{}, err
		}
		return Bool(b), nil
	case vkString:
		var length uint32
		if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
			return Value{}, err
		}
		buf := make([]byte, length)
		if _, err := io.ReadFull(r, buf); err != nil {
			return Value{}, err
		}
		return Str(string(buf)), nil
	default:
		return Value{}, fmt.Errorf("unknown value record kind %d", kind)
	}
}

func readInstruction(r io.Reader) (Instruction, error) {
	var instr Instruction
	if err := binary.Read(r, binary.LittleEndian, &instr.Op); err != nil {
		return instr, err
	}
	var abc [3]uint8
	if err := binary.Read(r, binary.LittleEndian, &abc); err != nil {
		return instr, err
	}
	instr.A, instr.B, instr.C = abc[0], abc[1], abc[2]
	if err := binary.Read(r, binary.LittleEndian, &instr.W); err != nil {
		return instr, err
	}
	return instr, nil
}
