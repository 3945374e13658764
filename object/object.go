// Package object implements the engine's Object representation: a
// structure (hidden-class) pointer, a dense slot vector, an optional
// indexed-elements container, and a tag-discriminated payload for the
// specialized object kinds (Array, Function, Arguments, StringObject,
// Error, Proxy, TypedArray-family, Promise, RegExp).
//
// Property access goes through the method-table hooks described by the
// data model (get/put/delete/define-own x indexed/non-indexed), which
// this package implements as a tag switch on Object.Tag rather than a
// C-style function-pointer vtable: Go's method dispatch on a tag field
// gives the same override behavior without importing class into object
// (class only needs to know about the Cell header, not about slots).
package object

import (
	"github.com/Starlight-JS/starlight-sub002/class"
	"github.com/Starlight-JS/starlight-sub002/structure"
	"github.com/Starlight-JS/starlight-sub002/symbol"
	"github.com/Starlight-JS/starlight-sub002/value"
)

// Tag discriminates the object variant, selecting which Data field (if
// any) is populated and which method-table override applies.
type Tag byte

const (
	TagOrdinary Tag = iota
	TagArray
	TagFunction
	TagArguments
	TagStringWrapper
	TagError
	TagDataView
	TagPromise
	TagRegExp
	TagTypedArray
	TagProxy
)

// Flags is a bitfield of object-level markers.
type Flags uint8

const (
	FlagCallable   Flags = 1 << 0
	FlagExtensible Flags = 1 << 1
	FlagSealed     Flags = 1 << 2
	FlagFrozen     Flags = 1 << 3
)

// Indexed holds the integer-indexed ("array-like") property storage for
// an object, in either dense or sparse mode.
type Indexed struct {
	Dense    []value.Value
	Sparse   map[uint32]value.Value
	Length   uint32
	Writable bool
	IsDense  bool
}

// NewIndexed creates an empty dense indexed-elements container.
func NewIndexed() *Indexed {
	return &Indexed{Writable: true, IsDense: true}
}

func (ix *Indexed) get(i uint32) (value.Value, bool) {
	if ix == nil {
		return value.Value(0), false
	}
	if ix.IsDense {
		if i < uint32(len(ix.Dense)) {
			v := ix.Dense[i]
			if value.IsEmpty(v) {
				return value.Value(0), false
			}
			return v, true
		}
		return value.Value(0), false
	}
	v, ok := ix.Sparse[i]
	return v, ok
}

func (ix *Indexed) set(i uint32, v value.Value) {
	if ix.IsDense {
		// Keep dense mode only while growth stays contiguous-ish; fall
		// back to sparse for large gaps to avoid an unbounded slice.
		if i < uint32(len(ix.Dense)) {
			ix.Dense[i] = v
		} else if i == uint32(len(ix.Dense)) || i-uint32(len(ix.Dense)) < 64 {
			for uint32(len(ix.Dense)) < i {
				ix.Dense = append(ix.Dense, value.Empty())
			}
			ix.Dense = append(ix.Dense, v)
		} else {
			ix.toSparse()
			ix.Sparse[i] = v
		}
	} else {
		ix.Sparse[i] = v
	}
	if i >= ix.Length {
		ix.Length = i + 1
	}
}

func (ix *Indexed) toSparse() {
	if ix.Sparse == nil {
		ix.Sparse = make(map[uint32]value.Value, len(ix.Dense))
	}
	for i, v := range ix.Dense {
		if !value.IsEmpty(v) {
			ix.Sparse[uint32(i)] = v
		}
	}
	ix.Dense = nil
	ix.IsDense = false
}

// Truncate shortens the container to length n, dropping any elements at
// or beyond n. Used by Array's length-write semantics.
func (ix *Indexed) Truncate(n uint32) {
	if ix.IsDense {
		if n < uint32(len(ix.Dense)) {
			ix.Dense = ix.Dense[:n]
		}
	} else {
		for k := range ix.Sparse {
			if k >= n {
				delete(ix.Sparse, k)
			}
		}
	}
	ix.Length = n
}

// FunctionData is the tag-specific payload for TagFunction.
type FunctionData struct {
	Name         string
	Arity        int
	Native       NativeFunc
	Code         any // *bytecode.CodeBlock; kept as any to avoid an import cycle
	ConstructStructure *structure.Structure
	Prototype    value.Value
	Strict       bool
}

// NativeFunc is the calling convention for a host-implemented function:
// it receives the runtime-agnostic Arguments view and returns either an
// ok value or an error value (mirrored on ctor_call semantics by
// Arguments.CtorCall).
type NativeFunc func(args Arguments) (value.Value, value.Value)

// Arguments is the borrowed view into the caller's argument window
// passed to a NativeFunc, per the external-interface native-function
// signature.
type Arguments struct {
	This     value.Value
	Args     []value.Value
	CtorCall bool
}

// Size returns the argument count.
func (a Arguments) Size() int { return len(a.Args) }

// At returns the i'th argument, or undefined if out of range.
func (a Arguments) At(i int) value.Value {
	if i < 0 || i >= len(a.Args) {
		return value.Undefined()
	}
	return a.Args[i]
}

// ArgumentsData is the tag-specific payload for TagArguments: it aliases
// into the captured call frame's argument slots rather than copying them.
type ArgumentsData struct {
	Backing []value.Value // aliases the owning call frame's argument registers
	Mapped  map[uint32]symbol.Symbol
}

// StringWrapperData is the tag-specific payload for TagStringWrapper: a
// boxed reference to the backing immutable string cell (not a raw Go
// pointer, for the same reason ProxyData's fields aren't: the heap's
// cell registry must stay the only real reference).
type StringWrapperData struct {
	Str value.Value
}

// ErrorData is the tag-specific payload for TagError.
type ErrorData struct {
	Name    string
	Message string
	Stack   string
}

// PromiseState is the resolution state of a Promise cell.
type PromiseState byte

const (
	PromisePending PromiseState = iota
	PromiseFulfilled
	PromiseRejected
)

// PromiseData is the tag-specific payload for TagPromise. Only the
// resolution slots are modeled; reaction scheduling is a host/builtin
// concern (no microtask queue lives in the core, per spec's JIT/REPL
// non-goal family).
type PromiseData struct {
	State     PromiseState
	Result    value.Value
	Reactions []value.Value
}

// RegExpData is the tag-specific payload for TagRegExp. The matcher
// itself is an external collaborator (built-in surface); this core only
// stores the source/flags pair.
type RegExpData struct {
	Source string
	Flags  string
}

// TypedArrayKind selects the numeric lane format of a typed array.
type TypedArrayKind byte

const (
	Int8Array TypedArrayKind = iota
	Uint8Array
	Uint8ClampedArray
	Int16Array
	Uint16Array
	Int32Array
	Uint32Array
	Float32Array
	Float64Array
)

// ElementSize returns the byte width of one lane of kind k.
func (k TypedArrayKind) ElementSize() int {
	switch k {
	case Int8Array, Uint8Array, Uint8ClampedArray:
		return 1
	case Int16Array, Uint16Array:
		return 2
	case Int32Array, Uint32Array, Float32Array:
		return 4
	case Float64Array:
		return 8
	default:
		return 1
	}
}

// TypedArrayData is the tag-specific payload for TagTypedArray: a view
// descriptor over a backing ArrayBuffer's raw bytes.
type TypedArrayData struct {
	Kind   TypedArrayKind
	Buffer []byte
	Offset int
	Len    int // element count, not bytes
}

// ProxyData is the tag-specific payload for TagProxy. The get hooks read
// a property of the same name from Handler first and fall back to
// Target; the put hooks forward straight to Target; the delete,
// define-own and property-name hooks act on the proxy object itself and
// do not forward. Handler and Target are boxed cell
// Values, not raw Go pointers: a Proxy must never hold the only live
// reference to its handler/target outside the heap's own cell registry,
// or sweep could never reclaim them (see the heap package's handle-
// indirection design note).
type ProxyData struct {
	Handler value.Value
	Target  value.Value
}

// AccessorPair is a getter/setter property's pair of function values,
// either of which may be undefined.
type AccessorPair struct {
	Get value.Value
	Set value.Value
}

// Object is the engine's universal heap-object representation.
type Object struct {
	header class.Header

	Structure *structure.Structure
	Slots     []value.Value
	Indexed   *Indexed
	Flags     Flags
	Tag       Tag

	Accessors map[symbol.Symbol]*AccessorPair

	Function *FunctionData
	Args     *ArgumentsData
	StrWrap  *StringWrapperData
	Err      *ErrorData
	Promise  *PromiseData
	RegExp   *RegExpData
	TypedArr *TypedArrayData
	Proxy    *ProxyData
}

// Descriptor is the shared class descriptor for every Object cell,
// registered once at package init per the class package's convention.
var Descriptor = class.Register("Object", false, nil, traceObject)

func traceObject(c class.Cell, visit class.VisitFunc) {
	o, ok := c.(*Object)
	if !ok {
		return
	}
	for _, v := range o.Slots {
		if value.IsCell(v) {
			visit(value.AsCellAddr(v))
		}
	}
	if o.Indexed != nil {
		if o.Indexed.IsDense {
			for _, v := range o.Indexed.Dense {
				if value.IsCell(v) {
					visit(value.AsCellAddr(v))
				}
			}
		} else {
			for _, v := range o.Indexed.Sparse {
				if value.IsCell(v) {
					visit(value.AsCellAddr(v))
				}
			}
		}
	}
	if o.Proxy != nil {
		if value.IsCell(o.Proxy.Handler) {
			visit(value.AsCellAddr(o.Proxy.Handler))
		}
		if value.IsCell(o.Proxy.Target) {
			visit(value.AsCellAddr(o.Proxy.Target))
		}
	}
	if o.StrWrap != nil && value.IsCell(o.StrWrap.Str) {
		visit(value.AsCellAddr(o.StrWrap.Str))
	}
	for _, pair := range o.Accessors {
		if value.IsCell(pair.Get) {
			visit(value.AsCellAddr(pair.Get))
		}
		if value.IsCell(pair.Set) {
			visit(value.AsCellAddr(pair.Set))
		}
	}
}

// CellHeader implements class.Cell.
func (o *Object) CellHeader() *class.Header { return &o.header }

// New creates a plain ordinary object with the given structure and a
// slot vector sized to the structure's current slot count.
func New(s *structure.Structure) *Object {
	return &Object{
		Structure: s,
		Slots:     make([]value.Value, s.SlotCount()),
		Flags:     FlagExtensible,
		Tag:       TagOrdinary,
	}
}

// NewArray creates an array object with indexed-elements storage.
func NewArray(s *structure.Structure) *Object {
	o := New(s)
	o.Tag = TagArray
	o.Indexed = NewIndexed()
	return o
}

// IsCallable reports whether o may be invoked as a function.
func (o *Object) IsCallable() bool { return o.Flags&FlagCallable != 0 }

// IsExtensible reports whether new properties may be added to o.
func (o *Object) IsExtensible() bool { return o.Flags&FlagExtensible != 0 }

// growSlots grows o.Slots to at least n entries, per structure.Add's new
// offset.
func (o *Object) growSlots(n int) {
	for len(o.Slots) < n {
		o.Slots = append(o.Slots, value.Empty())
	}
}
