package object

import (
	"sort"

	"github.com/Starlight-JS/starlight-sub002/class"
	"github.com/Starlight-JS/starlight-sub002/strcell"
	"github.com/Starlight-JS/starlight-sub002/structure"
	"github.com/Starlight-JS/starlight-sub002/symbol"
	"github.com/Starlight-JS/starlight-sub002/value"
)

// Context is the minimal host context the method table needs: resolving
// boxed cell Values back to live cells (prototype objects, Proxy
// handler/target, and a StringWrapper's backing string are all stored as
// boxed Values rather than raw Go pointers, so walking any of them needs
// a dereference hook the object package itself cannot provide without an
// import cycle on the heap's cell registry).
type Context interface {
	Deref(v value.Value) *Object
	DerefCell(v value.Value) class.Cell
}

// derefString resolves v to its backing *strcell.String, or false if v
// is not a cell or not a string cell.
func derefString(ctx Context, v value.Value) (*strcell.String, bool) {
	c := ctx.DerefCell(v)
	if c == nil {
		return nil, false
	}
	s, ok := c.(*strcell.String)
	return s, ok
}

// GetNonIndexed implements get_non_indexed_slot: ordinary named property
// read with prototype-chain walk, dispatched through the tag-specific
// override first.
func GetNonIndexed(o *Object, ctx Context, sym symbol.Symbol) (value.Value, bool) {
	if o.Tag == TagProxy && o.Proxy != nil {
		if handler := ctx.Deref(o.Proxy.Handler); handler != nil {
			if v, ok := GetNonIndexed(handler, ctx, sym); ok {
				return v, ok
			}
		}
		if target := ctx.Deref(o.Proxy.Target); target != nil {
			return GetNonIndexed(target, ctx, sym)
		}
		return value.Undefined(), false
	}
	if o.Tag == TagStringWrapper && o.StrWrap != nil && sym.IsIndexed() == false {
		if v, ok := stringWrapperNamed(o, ctx, sym); ok {
			return v, ok
		}
	}
	if o.Tag == TagArray && isLengthSymbol(ctx, sym) {
		return value.EncodeInt32(int32(o.Indexed.Length)), true
	}

	cur := o
	for cur != nil {
		if v, ok := getOwnNonIndexed(cur, sym); ok {
			return v, true
		}
		proto := cur.Structure.Prototype()
		if !value.IsCell(proto) {
			return value.Undefined(), false
		}
		cur = ctx.Deref(proto)
	}
	return value.Undefined(), false
}

func getOwnNonIndexed(o *Object, sym symbol.Symbol) (value.Value, bool) {
	entry, ok := structure.Lookup(o.Structure, sym)
	if !ok {
		return value.Value(0), false
	}
	if entry.Offset >= len(o.Slots) {
		return value.Undefined(), true
	}
	v := o.Slots[entry.Offset]
	if value.IsEmpty(v) {
		return value.Undefined(), true
	}
	return v, true
}

// GetIndexed implements get_indexed_slot: integer property read, with
// Arguments aliasing into its captured environment and StringWrapper
// returning a single code unit.
func GetIndexed(o *Object, ctx Context, i uint32) (value.Value, bool) {
	switch o.Tag {
	case TagProxy:
		if o.Proxy != nil {
			if handler := ctx.Deref(o.Proxy.Handler); handler != nil {
				if v, ok := GetIndexed(handler, ctx, i); ok {
					return v, ok
				}
			}
			if target := ctx.Deref(o.Proxy.Target); target != nil {
				return GetIndexed(target, ctx, i)
			}
			return value.Undefined(), false
		}
	case TagArguments:
		if o.Args != nil && int(i) < len(o.Args.Backing) {
			return o.Args.Backing[i], true
		}
		return value.Undefined(), false
	case TagStringWrapper:
		if o.StrWrap != nil {
			if s, ok := derefString(ctx, o.StrWrap.Str); ok {
				if u, ok := s.At(int(i)); ok {
					return value.EncodeInt32(int32(u)), true
				}
			}
			return value.Undefined(), false
		}
	case TagTypedArray:
		if o.TypedArr != nil {
			return getTypedArraySlot(o.TypedArr, int(i))
		}
	}
	if o.Indexed != nil {
		if v, ok := o.Indexed.get(i); ok {
			return v, true
		}
	}
	proto := o.Structure.Prototype()
	if value.IsCell(proto) {
		if p := ctx.Deref(proto); p != nil {
			return GetIndexed(p, ctx, i)
		}
	}
	return value.Undefined(), false
}

func getTypedArraySlot(ta *TypedArrayData, i int) (value.Value, bool) {
	if i < 0 || i >= ta.Len {
		return value.Undefined(), false
	}
	off := ta.Offset + i*ta.Kind.ElementSize()
	if off+ta.Kind.ElementSize() > len(ta.Buffer) {
		return value.Undefined(), false
	}
	return decodeLane(ta.Kind, ta.Buffer[off:off+ta.Kind.ElementSize()]), true
}

// PutNonIndexed implements put_non_indexed_slot.
func PutNonIndexed(o *Object, ctx Context, sym symbol.Symbol, v value.Value, throwable bool) bool {
	if o.Tag == TagProxy && o.Proxy != nil {
		if target := ctx.Deref(o.Proxy.Target); target != nil {
			return PutNonIndexed(target, ctx, sym, v, throwable)
		}
		return false
	}
	if o.Tag == TagArray && isLengthSymbol(ctx, sym) {
		return setArrayLength(o, v, throwable)
	}
	if entry, ok := structure.Lookup(o.Structure, sym); ok {
		if entry.Attrs&structure.AttrReadOnly != 0 {
			return false
		}
		o.growSlots(entry.Offset + 1)
		o.Slots[entry.Offset] = v
		return true
	}
	if !o.IsExtensible() {
		return false
	}
	next := structure.Add(o.Structure, sym, structure.AttrNone, 0)
	o.Structure = next
	entry, _ := structure.Lookup(next, sym)
	o.growSlots(entry.Offset + 1)
	o.Slots[entry.Offset] = v
	return true
}

// PutIndexed implements put_indexed_slot.
func PutIndexed(o *Object, ctx Context, i uint32, v value.Value, throwable bool) bool {
	switch o.Tag {
	case TagProxy:
		if o.Proxy != nil {
			if target := ctx.Deref(o.Proxy.Target); target != nil {
				return PutIndexed(target, ctx, i, v, throwable)
			}
			return false
		}
	case TagArguments:
		if o.Args != nil && int(i) < len(o.Args.Backing) {
			o.Args.Backing[i] = v
			return true
		}
	case TagStringWrapper:
		return false // immutable
	case TagTypedArray:
		if o.TypedArr != nil {
			putTypedArraySlot(o.TypedArr, int(i), v)
			return true
		}
	}
	if o.Indexed == nil {
		o.Indexed = NewIndexed()
	}
	if !o.Indexed.Writable {
		return false
	}
	o.Indexed.set(i, v)
	return true
}

func putTypedArraySlot(ta *TypedArrayData, i int, v value.Value) {
	if i < 0 || i >= ta.Len {
		return // silent no-op per the original engine's out-of-range behavior
	}
	off := ta.Offset + i*ta.Kind.ElementSize()
	sz := ta.Kind.ElementSize()
	if off+sz > len(ta.Buffer) {
		return
	}
	encodeLane(ta.Kind, ta.Buffer[off:off+sz], v)
}

// DeleteNonIndexed implements delete_non_indexed.
func DeleteNonIndexed(o *Object, sym symbol.Symbol) bool {
	if _, ok := structure.Lookup(o.Structure, sym); !ok {
		return true
	}
	o.Structure = structure.Delete(o.Structure, sym)
	return true
}

// DeleteIndexed implements delete_indexed.
func DeleteIndexed(o *Object, i uint32) bool {
	if o.Indexed == nil {
		return true
	}
	if o.Indexed.IsDense && i < uint32(len(o.Indexed.Dense)) {
		o.Indexed.Dense[i] = value.Empty()
		return true
	}
	if o.Indexed.Sparse != nil {
		delete(o.Indexed.Sparse, i)
	}
	return true
}

// DefineOwnNonIndexed implements define_own_non_indexed_property_slot:
// like PutNonIndexed but bypasses the read-only check (used for literal
// construction and Object.defineProperty-style installs) and allows
// setting attributes.
func DefineOwnNonIndexed(o *Object, sym symbol.Symbol, v value.Value, attrs structure.Attributes) {
	if entry, ok := structure.Lookup(o.Structure, sym); ok {
		o.growSlots(entry.Offset + 1)
		o.Slots[entry.Offset] = v
		if entry.Attrs != attrs {
			o.Structure = structure.ChangeAttributes(o.Structure, sym, attrs)
		}
		return
	}
	next := structure.Add(o.Structure, sym, attrs, 0)
	o.Structure = next
	entry, _ := structure.Lookup(next, sym)
	o.growSlots(entry.Offset + 1)
	o.Slots[entry.Offset] = v
}

// DefineOwnIndexed implements define_own_indexed_property_slot.
func DefineOwnIndexed(o *Object, i uint32, v value.Value) {
	if o.Indexed == nil {
		o.Indexed = NewIndexed()
	}
	o.Indexed.set(i, v)
}

// GetOwnPropertyNames implements get_own_property_names: indexed keys in
// ascending order followed by the enumerable named keys (those without
// AttrDontEnum) in structure layout order.
func GetOwnPropertyNames(o *Object) []symbol.Symbol {
	var out []symbol.Symbol
	if o.Indexed != nil {
		if o.Indexed.IsDense {
			for i, v := range o.Indexed.Dense {
				if !value.IsEmpty(v) {
					out = append(out, symbol.Indexed(uint32(i)))
				}
			}
		} else {
			keys := make([]uint32, 0, len(o.Indexed.Sparse))
			for k := range o.Indexed.Sparse {
				keys = append(keys, k)
			}
			sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
			for _, k := range keys {
				out = append(out, symbol.Indexed(k))
			}
		}
	}
	for _, e := range o.Structure.Entries() {
		if e.Attrs&structure.AttrDontEnum == 0 {
			out = append(out, e.Symbol)
		}
	}
	return out
}

// GetPropertyNames walks the prototype chain appending inherited names.
func GetPropertyNames(o *Object, ctx Context) []symbol.Symbol {
	out := GetOwnPropertyNames(o)
	proto := o.Structure.Prototype()
	for value.IsCell(proto) {
		p := ctx.Deref(proto)
		if p == nil {
			break
		}
		out = append(out, GetOwnPropertyNames(p)...)
		proto = p.Structure.Prototype()
	}
	return out
}

// DefaultValue implements default_value: ToPrimitive's object fallback.
// hint "number" tries valueOf then toString; "string" the reverse; this
// core only offers the hook point, actual valueOf/toString dispatch is a
// builtin-surface concern.
func DefaultValue(o *Object, ctx Context, hint string, valueOf, toString func(*Object) (value.Value, bool)) value.Value {
	order := []func(*Object) (value.Value, bool){valueOf, toString}
	if hint == "string" {
		order[0], order[1] = order[1], order[0]
	}
	for _, fn := range order {
		if fn == nil {
			continue
		}
		if v, ok := fn(o); ok {
			return v
		}
	}
	return value.Undefined()
}

func isLengthSymbol(ctx Context, sym symbol.Symbol) bool {
	type describer interface{ Description(symbol.Symbol) (string, bool) }
	d, ok := ctx.(describer)
	if !ok {
		return false
	}
	name, ok := d.Description(sym)
	return ok && name == "length"
}

func setArrayLength(o *Object, v value.Value, throwable bool) bool {
	if o.Indexed != nil && !o.Indexed.Writable {
		return false // interp.putByID/putByVal turn this into a thrown TypeError
	}
	var n uint32
	switch {
	case value.IsInt32(v):
		n = uint32(value.AsInt32(v))
	case value.IsDouble(v):
		n = uint32(value.AsDouble(v))
	default:
		return false
	}
	if o.Indexed == nil {
		o.Indexed = NewIndexed()
	}
	o.Indexed.Truncate(n)
	return true
}

func stringWrapperNamed(o *Object, ctx Context, sym symbol.Symbol) (value.Value, bool) {
	if !isLengthSymbol(ctx, sym) {
		return value.Undefined(), false
	}
	s, ok := derefString(ctx, o.StrWrap.Str)
	if !ok {
		return value.Undefined(), false
	}
	return value.EncodeInt32(int32(s.Len())), true
}

// Accessor returns sym's getter/setter pair if the structure marks it
// AttrAccessor, searching the prototype chain like GetNonIndexed.
func Accessor(o *Object, ctx Context, sym symbol.Symbol) (*AccessorPair, bool) {
	cur := o
	for cur != nil {
		if entry, ok := structure.Lookup(cur.Structure, sym); ok && entry.Attrs&structure.AttrAccessor != 0 {
			if pair, ok := cur.Accessors[sym]; ok {
				return pair, true
			}
			return nil, false
		} else if ok {
			return nil, false // own data property shadows any inherited accessor
		}
		proto := cur.Structure.Prototype()
		if !value.IsCell(proto) {
			return nil, false
		}
		cur = ctx.Deref(proto)
	}
	return nil, false
}

// DefineAccessor implements define-getter/define-setter: installs fn as
// sym's getter (isGetter) or setter, creating an AttrAccessor structure
// entry on first use and preserving the other half of the pair if one
// is already installed.
func DefineAccessor(o *Object, sym symbol.Symbol, isGetter bool, fn value.Value) {
	pair, ok := o.Accessors[sym]
	if !ok {
		pair = &AccessorPair{Get: value.Undefined(), Set: value.Undefined()}
		if o.Accessors == nil {
			o.Accessors = map[symbol.Symbol]*AccessorPair{}
		}
		o.Accessors[sym] = pair
	}
	if isGetter {
		pair.Get = fn
	} else {
		pair.Set = fn
	}
	if entry, ok := structure.Lookup(o.Structure, sym); !ok || entry.Attrs&structure.AttrAccessor == 0 {
		next := structure.Add(o.Structure, sym, structure.AttrAccessor|structure.AttrDontEnum, 0)
		o.Structure = next
	}
}
