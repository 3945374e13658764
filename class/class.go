// Package class implements the per-cell header every heap-allocated
// object begins with, and the static class descriptors that identify a
// cell's kind and carry its GC hooks (finalizer, trace).
//
// Property-access dispatch (get/put/delete/define-own, per spec's
// "object method table") is implemented directly on object.Object as a
// tag switch rather than as function pointers stored here: Go's
// interface satisfaction and a small tag switch give the same O(1)
// override behavior as a C-style vtable without an import cycle between
// this package and object, which must in turn reference class.Header.
package class

import "sync/atomic"

// Color is the tri-color mark state of a cell.
type Color uint32

const (
	White Color = iota // unmarked
	Grey               // in work list
	Black              // fully processed
)

// TypeTag is a stable, process-lifetime numeric id for a Descriptor,
// assigned by Register in registration order. Descriptor identity is
// compared by pointer; nothing in this module persists or reads the
// tag, and the bytecode wire format carries no class tag.
type TypeTag uint16

// Cell is implemented by every heap-allocated object; it exposes the
// common header so the heap package can read/mutate color and size
// without knowing the cell's concrete Go type.
type Cell interface {
	CellHeader() *Header
}

// VisitFunc is supplied by the collector to a Descriptor's Trace hook;
// Trace calls it once per Value the cell references so the collector
// can enqueue reachable cells.
type VisitFunc func(ref uintptr)

// Header is the fixed prefix every heap cell carries: its class
// descriptor, mark color, and allocated size. Go cannot guarantee a
// literal 16-byte payload alignment without unsafe struct layout
// tricks; Header still carries every field a tightly packed header
// would, and callers needing precise alignment allocate through
// heap.Heap, which pads its own bookkeeping, not the Go struct, to the
// required boundary.
type Header struct {
	desc  *Descriptor
	color uint32 // atomically mutated Color
	size  uint32
}

// NewHeader constructs a cell header for desc, initially White.
func NewHeader(desc *Descriptor, size uint32) Header {
	return Header{desc: desc, color: uint32(White), size: size}
}

// Init (re)initializes an already-allocated header in place: used by the
// heap package when registering a Go-constructed cell, since the header
// is immutable after construction per the data model and the owning
// struct's zero value must be completed exactly once before the cell is
// handed to a mutator.
func (h *Header) Init(desc *Descriptor, size uint32) {
	h.desc = desc
	h.size = size
	atomic.StoreUint32(&h.color, uint32(White))
}

// Descriptor returns the cell's immutable class descriptor.
func (h *Header) Descriptor() *Descriptor { return h.desc }

// Size returns the cell's immutable allocated size in bytes.
func (h *Header) Size() uint32 { return h.size }

// Color atomically loads the cell's mark color.
func (h *Header) Color() Color { return Color(atomic.LoadUint32(&h.color)) }

// SetColor atomically stores the cell's mark color.
func (h *Header) SetColor(c Color) { atomic.StoreUint32(&h.color, uint32(c)) }

// CASColor attempts WHITE->GREY (or any from->to transition); only one
// racing marker thread wins and may enqueue the cell, matching the
// collector's relaxed-CAS color-transition contract.
func (h *Header) CASColor(from, to Color) bool {
	return atomic.CompareAndSwapUint32(&h.color, uint32(from), uint32(to))
}

// Descriptor is a static, process-lifetime descriptor per object kind.
type Descriptor struct {
	Name             string
	Tag              TypeTag
	NeedsDestruction bool

	// Finalizer runs during sweep for a WHITE cell of this class, before
	// its line is cleared. No finalizer may allocate.
	Finalizer func(Cell)

	// Trace reports every cell reference held by c, via visit, so the
	// collector can enqueue them. Nil for classes with no references
	// (e.g. plain string cells).
	Trace func(c Cell, visit VisitFunc)
}

var (
	nextTag TypeTag = 1
)

// Register creates a new class descriptor with a fresh stable TypeTag.
// Intended to be called once per kind at package init time.
func Register(name string, needsDestruction bool, finalizer func(Cell), trace func(Cell, VisitFunc)) *Descriptor {
	tag := nextTag
	nextTag++
	return &Descriptor{
		Name:             name,
		Tag:              tag,
		NeedsDestruction: needsDestruction,
		Finalizer:        finalizer,
		Trace:            trace,
	}
}
