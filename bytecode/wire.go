package bytecode

import (
	"encoding/binary"
	"fmt"

	"github.com/Starlight-JS/starlight-sub002/internal/engerr"
	"github.com/Starlight-JS/starlight-sub002/internal/opcode"
	"github.com/Starlight-JS/starlight-sub002/symbol"
	"github.com/Starlight-JS/starlight-sub002/value"
)

// immTag discriminates an Instruction.Imm's wire encoding.
type immTag byte

const (
	immTagNone immTag = iota
	immTagConst
	immTagInt
	immTagName
	immTagHeapIndex
	immTagProp
	immTagArith
	immTagJump
	immTagCall
	immTagLiteral
	immTagTry
	immTagEnum
)

// Encode serializes cb into the engine's little-endian, self-describing
// CodeBlock wire form: a 32-bit instruction count followed by
// (opcode, operands) records, a 32-bit literal count followed by typed
// literal records, and a 32-bit name count followed by interned-string
// records. The byte layout is stable across runs of the same build.
func Encode(cb *CodeBlock, table *symbol.Table) ([]byte, error) {
	var w writer

	w.putString(cb.Name)
	w.putU32(uint32(cb.NumRegisters))
	w.putBool(cb.Strict)
	w.putI32(int32(cb.RestParam))

	w.putU32(uint32(len(cb.Params)))
	for _, p := range cb.Params {
		if err := w.putSymbol(p, table); err != nil {
			return nil, err
		}
	}

	w.putU32(uint32(len(cb.Instrs)))
	for _, in := range cb.Instrs {
		w.putByte(byte(in.Op))
		w.putU16(uint16(in.Dst))
		w.putU16(uint16(in.A))
		w.putU16(uint16(in.B))
		if err := w.putImm(in.Imm); err != nil {
			return nil, err
		}
	}

	w.putU32(uint32(len(cb.Literals)))
	for _, lit := range cb.Literals {
		w.putByte(byte(lit.Kind))
		switch lit.Kind {
		case LiteralString:
			w.putString(lit.Str)
		case LiteralNumber, LiteralBool, LiteralNull, LiteralUndefined:
			w.putU64(uint64(lit.Num))
		}
	}

	w.putU32(uint32(len(cb.Names)))
	for _, n := range cb.Names {
		if err := w.putSymbol(n, table); err != nil {
			return nil, err
		}
	}

	w.putU32(uint32(len(cb.Inner)))
	for _, inner := range cb.Inner {
		innerBytes, err := Encode(inner, table)
		if err != nil {
			return nil, err
		}
		w.putU32(uint32(len(innerBytes)))
		w.buf = append(w.buf, innerBytes...)
	}

	return w.buf, nil
}

// Decode parses the wire form produced by Encode, re-interning any
// string names against table so the resulting CodeBlock's symbols are
// valid in the decoding process. Feedback vectors are freshly allocated
// (inline-cache state is never persisted).
func Decode(b []byte, table *symbol.Table) (*CodeBlock, error) {
	r := reader{buf: b}
	cb, err := decodeOne(&r, table)
	if err != nil {
		return nil, err
	}
	if r.err != nil {
		return nil, r.err
	}
	return cb, nil
}

func decodeOne(r *reader, table *symbol.Table) (*CodeBlock, error) {
	cb := &CodeBlock{}
	cb.Name = r.getString()
	cb.NumRegisters = int(r.getU32())
	cb.Strict = r.getBool()
	cb.RestParam = int(r.getI32())

	nParams := r.getCount(1)
	cb.Params = make([]symbol.Symbol, nParams)
	for i := range cb.Params {
		cb.Params[i] = r.getSymbol(table)
	}

	nInstr := r.getCount(7)
	cb.Instrs = make([]Instruction, nInstr)
	for i := range cb.Instrs {
		op := opcode.Opcode(r.getByte())
		dst := Reg(r.getU16())
		a := Reg(r.getU16())
		b := Reg(r.getU16())
		imm := r.getImm()
		cb.Instrs[i] = Instruction{Op: op, Dst: dst, A: a, B: b, Imm: imm}
	}

	nLit := r.getCount(1)
	cb.Literals = make([]Literal, nLit)
	for i := range cb.Literals {
		kind := LiteralKind(r.getByte())
		lit := Literal{Kind: kind}
		switch kind {
		case LiteralString:
			lit.Str = r.getString()
		case LiteralNumber, LiteralBool, LiteralNull, LiteralUndefined:
			lit.Num = value.Value(r.getU64())
		}
		cb.Literals[i] = lit
	}

	nNames := r.getCount(1)
	cb.Names = make([]symbol.Symbol, nNames)
	for i := range cb.Names {
		cb.Names[i] = r.getSymbol(table)
	}

	nInner := r.getCount(4)
	cb.Inner = make([]*CodeBlock, nInner)
	for i := range cb.Inner {
		innerLen := r.getU32()
		innerBuf := r.getBytes(int(innerLen))
		innerR := reader{buf: innerBuf}
		inner, err := decodeOne(&innerR, table)
		if err != nil {
			return nil, err
		}
		cb.Inner[i] = inner
	}

	if r.err != nil {
		return nil, r.err
	}
	cb.Finalize()
	return cb, nil
}

// --- low-level little-endian writer/reader, a fixed-record encoding:
// counts are plain fixed 32-bit fields rather than varint/LEB128. ---

type writer struct {
	buf []byte
}

func (w *writer) putByte(b byte) { w.buf = append(w.buf, b) }
func (w *writer) putBool(b bool) {
	if b {
		w.putByte(1)
	} else {
		w.putByte(0)
	}
}
func (w *writer) putU16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}
func (w *writer) putU32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}
func (w *writer) putI32(v int32) { w.putU32(uint32(v)) }
func (w *writer) putU64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}
func (w *writer) putString(s string) {
	w.putU32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *writer) putSymbol(s symbol.Symbol, table *symbol.Table) error {
	if s.IsIndexed() {
		w.putByte(1)
		w.putU32(s.Index())
		return nil
	}
	desc, ok := table.Description(s)
	if !ok {
		return engerr.MalformedWire(fmt.Sprintf("interned symbol id %d has no description", s.InternedID()))
	}
	w.putByte(0)
	w.putString(desc)
	return nil
}

func (w *writer) putImm(imm any) error {
	switch v := imm.(type) {
	case nil:
		w.putByte(byte(immTagNone))
	case ConstImm:
		w.putByte(byte(immTagConst))
		w.putU32(v.Index)
	case IntImm:
		w.putByte(byte(immTagInt))
		w.putI32(v.Value)
	case NameImm:
		w.putByte(byte(immTagName))
		w.putU32(v.Name)
	case HeapIndexImm:
		w.putByte(byte(immTagHeapIndex))
		w.putU32(v.Index)
	case PropImm:
		w.putByte(byte(immTagProp))
		w.putU32(v.Name)
		w.putU32(v.Feedback)
	case ArithImm:
		w.putByte(byte(immTagArith))
		w.putU32(v.Feedback)
	case JumpImm:
		w.putByte(byte(immTagJump))
		w.putU32(v.Target)
	case CallImm:
		w.putByte(byte(immTagCall))
		w.putU32(v.Argc)
	case LiteralImm:
		w.putByte(byte(immTagLiteral))
		w.putU32(v.Value)
	case TryImm:
		w.putByte(byte(immTagTry))
		w.putU32(v.CatchTarget)
	case EnumImm:
		w.putByte(byte(immTagEnum))
		w.putU32(v.Slot)
	default:
		return engerr.MalformedWire(fmt.Sprintf("unknown immediate type %T", imm))
	}
	return nil
}

type reader struct {
	buf []byte
	pos int
	err error
}

func (r *reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if r.pos+n > len(r.buf) {
		r.err = engerr.MalformedWire("unexpected end of bytecode wire input")
		return false
	}
	return true
}

func (r *reader) getByte() byte {
	if !r.need(1) {
		return 0
	}
	b := r.buf[r.pos]
	r.pos++
	return b
}
func (r *reader) getBool() bool { return r.getByte() != 0 }
func (r *reader) getU16() uint16 {
	if !r.need(2) {
		return 0
	}
	v := binary.LittleEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v
}
func (r *reader) getU32() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v
}

// getCount reads a 32-bit record count and rejects counts that could not
// possibly be backed by the remaining input (each record is at least
// minRecordSize bytes), so a malformed huge count fails fast instead of
// driving an enormous make() allocation.
func (r *reader) getCount(minRecordSize int) uint32 {
	n := r.getU32()
	if r.err != nil {
		return 0
	}
	if minRecordSize > 0 && int(n) > (len(r.buf)-r.pos)/minRecordSize+1 {
		r.err = engerr.MalformedWire("record count exceeds remaining input")
		return 0
	}
	return n
}
func (r *reader) getI32() int32 { return int32(r.getU32()) }
func (r *reader) getU64() uint64 {
	if !r.need(8) {
		return 0
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v
}
func (r *reader) getBytes(n int) []byte {
	if !r.need(n) {
		return nil
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b
}
func (r *reader) getString() string {
	n := r.getU32()
	b := r.getBytes(int(n))
	return string(b)
}

func (r *reader) getSymbol(table *symbol.Table) symbol.Symbol {
	tag := r.getByte()
	if tag == 1 {
		return symbol.Indexed(r.getU32())
	}
	s := r.getString()
	return table.Intern(s)
}

func (r *reader) getImm() any {
	switch immTag(r.getByte()) {
	case immTagNone:
		return nil
	case immTagConst:
		return ConstImm{Index: r.getU32()}
	case immTagInt:
		return IntImm{Value: r.getI32()}
	case immTagName:
		return NameImm{Name: r.getU32()}
	case immTagHeapIndex:
		return HeapIndexImm{Index: r.getU32()}
	case immTagProp:
		name := r.getU32()
		fdbk := r.getU32()
		return PropImm{Name: name, Feedback: fdbk}
	case immTagArith:
		return ArithImm{Feedback: r.getU32()}
	case immTagJump:
		return JumpImm{Target: r.getU32()}
	case immTagCall:
		return CallImm{Argc: r.getU32()}
	case immTagLiteral:
		return LiteralImm{Value: r.getU32()}
	case immTagTry:
		return TryImm{CatchTarget: r.getU32()}
	case immTagEnum:
		return EnumImm{Slot: r.getU32()}
	default:
		if r.err == nil {
			r.err = engerr.MalformedWire("unknown immediate tag")
		}
		return nil
	}
}
