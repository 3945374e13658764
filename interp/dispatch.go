package interp

import (
	"fmt"
	"math"

	"github.com/Starlight-JS/starlight-sub002/bytecode"
	"github.com/Starlight-JS/starlight-sub002/feedback"
	"github.com/Starlight-JS/starlight-sub002/internal/opcode"
	"github.com/Starlight-JS/starlight-sub002/object"
	"github.com/Starlight-JS/starlight-sub002/structure"
	"github.com/Starlight-JS/starlight-sub002/symbol"
	"github.com/Starlight-JS/starlight-sub002/value"
)

func fmtSprintf(format string, args ...any) string { return fmt.Sprintf(format, args...) }

// getByID implements GetByID: the feedback slot's cached (structure,
// offset) pairs are tried first (a hit needs no prototype walk), falling
// back to the generic GetNonIndexed path on a miss, which also checks
// accessor properties along the prototype chain.
func (ip *Interpreter) getByID(f *Frame, in bytecode.Instruction) (value.Value, error) {
	prop := in.Imm.(bytecode.PropImm)
	sym := f.Code.Names[prop.Name]
	recv := f.reg(in.A)

	o := ip.Heap.Deref(recv)
	if o == nil {
		return value.Undefined(), ip.typeError("cannot read property of null or undefined")
	}

	slot := feedbackSlotFor(f, prop.Feedback)
	if offset, ok := slot.Lookup(o.Structure); ok {
		if offset >= 0 && offset < len(o.Slots) {
			return o.Slots[offset], nil
		}
	}

	if pair, ok := object.Accessor(o, ip.ctx, sym); ok {
		if value.IsEmpty(pair.Get) || value.IsUndefined(pair.Get) {
			return value.Undefined(), nil
		}
		return ip.callValue(pair.Get, recv, nil, false)
	}

	v, found := object.GetNonIndexed(o, ip.ctx, sym)
	if !found {
		return value.Undefined(), nil
	}
	if entry, ok := structure.Lookup(o.Structure, sym); ok {
		slot.Update(o.Structure, entry.Offset)
	}
	return v, nil
}

// putByID implements PutByID, preferring an accessor setter when one is
// defined along the prototype chain, otherwise an ordinary data write.
func (ip *Interpreter) putByID(f *Frame, in bytecode.Instruction) error {
	prop := in.Imm.(bytecode.PropImm)
	sym := f.Code.Names[prop.Name]
	recv := f.reg(in.A)
	v := f.reg(in.B)

	o := ip.Heap.Deref(recv)
	if o == nil {
		return ip.typeError("cannot set property of null or undefined")
	}

	if pair, ok := object.Accessor(o, ip.ctx, sym); ok {
		if value.IsEmpty(pair.Set) || value.IsUndefined(pair.Set) {
			return nil // no setter: silently ignored in non-strict code paths
		}
		_, err := ip.callValue(pair.Set, recv, []value.Value{v}, false)
		return err
	}

	ok := object.PutNonIndexed(o, ip.ctx, sym, v, f.Code.Strict)
	if !ok {
		// A non-writable array length always throws (ECMA-262 ArraySetLength,
		// the only non-indexed write this spec treats as unconditionally
		// throwable); any other refused write only throws in strict code.
		if f.Code.Strict || (o.Tag == object.TagArray && ip.symName(sym) == "length") {
			return ip.typeError("cannot assign to read only property %q", ip.symName(sym))
		}
		return nil
	}
	if entry, ok := structure.Lookup(o.Structure, sym); ok {
		feedbackSlotFor(f, prop.Feedback).Update(o.Structure, entry.Offset)
	}
	return nil
}

// toIndex converts a computed property-access key to a uint32 element
// index when possible.
func toIndex(v value.Value) (uint32, bool) {
	if value.IsInt32(v) {
		i := value.AsInt32(v)
		if i >= 0 {
			return uint32(i), true
		}
	}
	if value.IsDouble(v) {
		d := value.AsDouble(v)
		if d >= 0 && d == float64(uint32(d)) {
			return uint32(d), true
		}
	}
	return 0, false
}

func (ip *Interpreter) getByVal(f *Frame, in bytecode.Instruction) (value.Value, error) {
	recv := f.reg(in.A)
	key := f.reg(in.B)
	o := ip.Heap.Deref(recv)
	if o == nil {
		return value.Undefined(), ip.typeError("cannot read property of null or undefined")
	}
	if idx, ok := toIndex(key); ok {
		v, _ := object.GetIndexed(o, ip.ctx, idx)
		return v, nil
	}
	sym := ip.valueToSymbol(key)
	v, _ := object.GetNonIndexed(o, ip.ctx, sym)
	return v, nil
}

func (ip *Interpreter) putByVal(f *Frame, in bytecode.Instruction) error {
	recv := f.reg(in.A)
	key := f.reg(in.B)
	v := f.reg(in.Dst)
	o := ip.Heap.Deref(recv)
	if o == nil {
		return ip.typeError("cannot set property of null or undefined")
	}
	if idx, ok := toIndex(key); ok {
		if !object.PutIndexed(o, ip.ctx, idx, v, f.Code.Strict) && f.Code.Strict {
			return ip.typeError("cannot assign to read only index %d", idx)
		}
		return nil
	}
	sym := ip.valueToSymbol(key)
	ok := object.PutNonIndexed(o, ip.ctx, sym, v, f.Code.Strict)
	if !ok {
		if f.Code.Strict || (o.Tag == object.TagArray && ip.symName(sym) == "length") {
			return ip.typeError("cannot assign to read only property %q", ip.symName(sym))
		}
		return nil
	}
	return nil
}

// valueToSymbol interns a computed-key Value's string form. Only string
// and number keys are meaningfully distinguishable at this layer; object
// keys fall back to a fixed placeholder (ToPropertyKey's full coercion
// is a builtin-surface concern).
func (ip *Interpreter) valueToSymbol(v value.Value) symbol.Symbol {
	switch {
	case value.IsInt32(v):
		return ip.Symbols.Intern(fmt.Sprintf("%d", value.AsInt32(v)))
	case value.IsDouble(v):
		return ip.Symbols.Intern(fmt.Sprintf("%g", value.AsDouble(v)))
	default:
		if s, ok := ip.derefStr(v); ok {
			return ip.Symbols.Intern(s)
		}
		return ip.Symbols.Intern("undefined")
	}
}

// stringer is satisfied by strcell.String without importing it directly
// here (the cell resolver already returns a class.Cell).
type stringer interface{ String() string }

func (ip *Interpreter) derefStr(v value.Value) (string, bool) {
	if !value.IsCell(v) {
		return "", false
	}
	cell := ip.Heap.DerefCell(v)
	if o, ok := cell.(*object.Object); ok && o.Tag == object.TagStringWrapper && o.StrWrap != nil {
		if sc, ok := ip.Heap.DerefCell(o.StrWrap.Str).(stringer); ok {
			return sc.String(), true
		}
		return "", false
	}
	if sc, ok := cell.(stringer); ok {
		return sc.String(), true
	}
	return "", false
}

// binOp implements the type-generic arithmetic/comparison opcodes,
// updating each site's ArithProfile with the operand kinds observed so
// future runs can specialize.
func (ip *Interpreter) binOp(f *Frame, in bytecode.Instruction) (value.Value, error) {
	a := f.reg(in.A)
	b := f.reg(in.B)

	if arithImm, ok := in.Imm.(bytecode.ArithImm); ok {
		observeArith(f.Code.ArithFeedback.At(int(arithImm.Feedback)), a, b)
	}

	switch in.Op {
	case opcode.Add:
		return ip.add(a, b)
	case opcode.Sub:
		return numOp(a, b, func(x, y float64) float64 { return x - y }), nil
	case opcode.Mul:
		return numOp(a, b, func(x, y float64) float64 { return x * y }), nil
	case opcode.Div:
		return numOp(a, b, func(x, y float64) float64 { return x / y }), nil
	case opcode.Mod:
		return numOp(a, b, math.Mod), nil
	case opcode.Eq:
		return value.Bool(ip.looseEquals(a, b)), nil
	case opcode.StrictEq:
		return value.Bool(strictEquals(a, b)), nil
	case opcode.Less:
		return compareOp(a, b, func(c int) bool { return c < 0 }), nil
	case opcode.LessEq:
		return compareOp(a, b, func(c int) bool { return c <= 0 }), nil
	case opcode.Greater:
		return compareOp(a, b, func(c int) bool { return c > 0 }), nil
	case opcode.GreaterEq:
		return compareOp(a, b, func(c int) bool { return c >= 0 }), nil
	}
	return value.Undefined(), nil
}

func (ip *Interpreter) add(a, b value.Value) (value.Value, error) {
	if value.IsInt32(a) && value.IsInt32(b) {
		r := int64(value.AsInt32(a)) + int64(value.AsInt32(b))
		if r >= -(1<<31) && r <= (1<<31)-1 {
			return value.EncodeInt32(int32(r)), nil
		}
		return value.EncodeDouble(float64(r)), nil
	}
	if value.IsNumber(a) && value.IsNumber(b) {
		return value.EncodeDouble(value.AsNumber(a) + value.AsNumber(b)), nil
	}
	// String concatenation: either operand being a string cell forces
	// the other through a minimal numeric-to-string coercion.
	as, aok := ip.derefStr(a)
	bs, bok := ip.derefStr(b)
	if aok || bok {
		if !aok {
			as = numberToString(a)
		}
		if !bok {
			bs = numberToString(b)
		}
		return ip.allocString(as + bs)
	}
	return value.EncodeDouble(value.AsNumber(a) + value.AsNumber(b)), nil
}

func numberToString(v value.Value) string {
	switch {
	case value.IsInt32(v):
		return fmt.Sprintf("%d", value.AsInt32(v))
	case value.IsDouble(v):
		return fmt.Sprintf("%g", value.AsDouble(v))
	case value.IsBool(v):
		return fmt.Sprintf("%t", value.AsBool(v))
	case value.IsNull(v):
		return "null"
	case value.IsUndefined(v):
		return "undefined"
	default:
		return ""
	}
}

func numOp(a, b value.Value, f func(x, y float64) float64) value.Value {
	return value.EncodeDouble(f(value.AsNumber(a), value.AsNumber(b)))
}

func compareOp(a, b value.Value, pred func(cmp int) bool) value.Value {
	if value.IsNumber(a) && value.IsNumber(b) {
		x, y := value.AsNumber(a), value.AsNumber(b)
		switch {
		case x < y:
			return value.Bool(pred(-1))
		case x > y:
			return value.Bool(pred(1))
		default:
			return value.Bool(pred(0))
		}
	}
	return value.Bool(false)
}

func strictEquals(a, b value.Value) bool {
	if value.IsInt32(a) && value.IsInt32(b) {
		return value.AsInt32(a) == value.AsInt32(b)
	}
	if value.IsNumber(a) && value.IsNumber(b) {
		return value.AsNumber(a) == value.AsNumber(b)
	}
	return a == b
}

func (ip *Interpreter) looseEquals(a, b value.Value) bool {
	if strictEquals(a, b) {
		return true
	}
	if value.IsNullOrUndefined(a) && value.IsNullOrUndefined(b) {
		return true
	}
	if value.IsNumber(a) && value.IsNumber(b) {
		return value.AsNumber(a) == value.AsNumber(b)
	}
	as, aok := ip.derefStr(a)
	bs, bok := ip.derefStr(b)
	if aok && bok {
		return as == bs
	}
	return false
}

// observeArith ORs in the operand-kind bits this site has now seen,
// feeding IsInt32Only's fast-path check.
func observeArith(p *feedback.ArithProfile, a, b value.Value) {
	switch {
	case value.IsInt32(a):
		*p |= feedback.ObservedLHSInt32
	case value.IsDouble(a):
		*p |= feedback.ObservedLHSDouble
	default:
		*p |= feedback.ObservedLHSNonNumeric
	}
	switch {
	case value.IsInt32(b):
		*p |= feedback.ObservedRHSInt32
	case value.IsDouble(b):
		*p |= feedback.ObservedRHSDouble
	default:
		*p |= feedback.ObservedRHSNonNumeric
	}
}

func (ip *Interpreter) unaryNeg(f *Frame, in bytecode.Instruction) (value.Value, error) {
	a := f.reg(in.A)
	if value.IsInt32(a) {
		v := value.AsInt32(a)
		if v != -2147483648 {
			return value.EncodeInt32(-v), nil
		}
	}
	return value.EncodeDouble(-value.AsNumber(a)), nil
}

func (ip *Interpreter) execCall(f *Frame, in bytecode.Instruction, withReceiver bool) (value.Value, error) {
	argc := int(in.Imm.(bytecode.CallImm).Argc)
	callee := f.reg(in.A)
	var this value.Value
	var firstArg bytecode.Reg
	if withReceiver {
		this = f.reg(in.B)
		firstArg = in.B + 1
	} else {
		this = value.Undefined()
		firstArg = in.B
	}
	args := make([]value.Value, argc)
	for i := 0; i < argc; i++ {
		args[i] = f.reg(firstArg + bytecode.Reg(i))
	}
	return ip.callValue(callee, this, args, false)
}

func (ip *Interpreter) execConstruct(f *Frame, in bytecode.Instruction) (value.Value, error) {
	argc := int(in.Imm.(bytecode.CallImm).Argc)
	callee := f.reg(in.A)
	args := make([]value.Value, argc)
	for i := 0; i < argc; i++ {
		args[i] = f.reg(in.B + bytecode.Reg(i))
	}
	return ip.callValue(callee, value.Undefined(), args, true)
}

func (ip *Interpreter) execDefineOwnProperty(f *Frame, in bytecode.Instruction) error {
	prop := in.Imm.(bytecode.PropImm)
	sym := f.Code.Names[prop.Name]
	recv := f.reg(in.A)
	v := f.reg(in.B)
	o := ip.Heap.Deref(recv)
	if o == nil {
		return ip.typeError("cannot define property on null or undefined")
	}
	object.DefineOwnNonIndexed(o, sym, v, structure.AttrNone)
	return nil
}

func (ip *Interpreter) execDefineAccessor(f *Frame, in bytecode.Instruction, isGetter bool) error {
	prop := in.Imm.(bytecode.PropImm)
	sym := f.Code.Names[prop.Name]
	recv := f.reg(in.A)
	fn := f.reg(in.B)
	o := ip.Heap.Deref(recv)
	if o == nil {
		return ip.typeError("cannot define accessor on null or undefined")
	}
	object.DefineAccessor(o, sym, isGetter, fn)
	return nil
}

// execCreateEnumerate snapshots recv's enumerable property names (own
// plus inherited, per for-in semantics) under the EnumImm slot carried
// by the instruction.
func (ip *Interpreter) execCreateEnumerate(f *Frame, in bytecode.Instruction) {
	slot := in.Imm.(bytecode.EnumImm).Slot
	recv := f.reg(in.A)
	var names []symbol.Symbol
	if o := ip.Heap.Deref(recv); o != nil {
		names = object.GetPropertyNames(o, ip.ctx)
	}
	if f.enumStates == nil {
		f.enumStates = map[uint32]*enumState{}
	}
	f.enumStates[slot] = &enumState{names: names}
}

func (ip *Interpreter) execGetEnumerateKey(f *Frame, in bytecode.Instruction) {
	slot := in.Imm.(bytecode.EnumImm).Slot
	st := f.enumStates[slot]
	if st == nil || st.cursor >= len(st.names) {
		f.setReg(in.Dst, value.Undefined())
		return
	}
	sym := st.names[st.cursor]
	name, ok := ip.Symbols.Description(sym)
	if !ok {
		if sym.IsIndexed() {
			name = fmt.Sprintf("%d", sym.Index())
		} else {
			f.setReg(in.Dst, value.Undefined())
			return
		}
	}
	v, err := ip.allocString(name)
	if err != nil {
		f.setReg(in.Dst, value.Undefined())
		return
	}
	f.setReg(in.Dst, v)
}

// execCheckLastEnumerateKey advances the enumeration cursor and reports
// the pc to branch to: the loop body's fallthrough address while keys
// remain, or the EnumCheckImm's Target once the iterator is exhausted.
func (ip *Interpreter) execCheckLastEnumerateKey(f *Frame, in bytecode.Instruction, fallthroughPC int) int {
	imm := in.Imm.(bytecode.EnumCheckImm)
	st := f.enumStates[imm.Slot]
	if st == nil {
		return int(imm.Target)
	}
	st.cursor++
	if st.cursor >= len(st.names) {
		return int(imm.Target)
	}
	return fallthroughPC
}
