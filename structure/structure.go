// Package structure implements the hidden-class ("Structure") shape
// system: a lattice of immutable property layouts shared by
// identically-shaped objects, with attribute-tagged transition edges,
// a lazily materialized lookup table, and a deleted-slot free list once
// a structure becomes unique to a single object.
//
// Two objects share a Structure pointer iff they have identical property
// layout; this identity is the entire basis of inline-cache validity in
// the feedback package.
package structure

import (
	"sort"
	"sync"

	"github.com/Starlight-JS/starlight-sub002/symbol"
	"github.com/Starlight-JS/starlight-sub002/value"
)

// Attributes is a bitfield of property attributes.
type Attributes uint8

const (
	AttrNone       Attributes = 0
	AttrReadOnly   Attributes = 1 << 0
	AttrDontEnum   Attributes = 1 << 1
	AttrDontDelete Attributes = 1 << 2
	AttrAccessor   Attributes = 1 << 3
)

// Entry describes a single property's storage slot.
type Entry struct {
	Symbol symbol.Symbol
	Offset int
	Attrs  Attributes
}

type transitionKey struct {
	sym   symbol.Symbol
	attrs Attributes
}

type transitionEdge struct {
	key  transitionKey
	next *Structure
}

// DefaultUniqueTransitionCap is the default consecutive-transition count
// after which a structure is converted to unique (spec Open Question:
// exposed as a tunable rather than hardcoded). A var, not a const, so
// runtime.Options.UniqueTransitionCap can override it process-wide at
// startup (each runtime.New call sets it again).
var DefaultUniqueTransitionCap = 32

// lazyMaterializeChainDepth is the chain-walk length after which Lookup
// eagerly materializes the hash table for a structure, even though it
// has not yet become unique.
const lazyMaterializeChainDepth = 8

// Structure represents the shape of an object.
type Structure struct {
	mu sync.Mutex

	prototype value.Value
	previous  *Structure
	added     Entry
	hasAdded  bool

	transEdge *transitionEdge
	transMap  map[transitionKey]*Structure

	table    map[symbol.Symbol]Entry
	hasTable bool

	deletedOffsets []int
	unique         bool
	indexed        bool

	calculatedSize int
}

// NewRoot creates an empty root structure for the given prototype.
func NewRoot(prototype value.Value) *Structure {
	return &Structure{prototype: prototype}
}

// Prototype returns the structure's prototype object pointer (may be
// value.Null() for the ordinary-object root).
func (s *Structure) Prototype() value.Value { return s.prototype }

// IsUnique reports whether s is personal to a single object (mutated in
// place rather than shared through the transition lattice).
func (s *Structure) IsUnique() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unique
}

// SlotCount returns the number of slots this structure reserves.
func (s *Structure) SlotCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calculatedSize
}

// SetIndexed marks the structure as backing an object with indexed
// (array-like) storage semantics.
func (s *Structure) SetIndexed(v bool) {
	s.mu.Lock()
	s.indexed = v
	s.mu.Unlock()
}

// IsIndexed reports the indexed flag set by SetIndexed.
func (s *Structure) IsIndexed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexed
}

// Lookup resolves sym to its storage slot, walking the transition chain
// or consulting the materialized table. This is the inline-cache slow
// path and the sole author of IC install/upgrade decisions upstream.
func Lookup(s *Structure, sym symbol.Symbol) (Entry, bool) {
	s.mu.Lock()
	if s.hasTable {
		e, ok := s.table[sym]
		s.mu.Unlock()
		return e, ok
	}
	s.mu.Unlock()

	depth := 0
	for cur := s; cur != nil; cur = cur.previous {
		if cur.hasAdded && cur.added.Symbol == sym {
			if depth > lazyMaterializeChainDepth {
				s.materializeTable()
			}
			return cur.added, true
		}
		depth++
	}
	if depth > lazyMaterializeChainDepth {
		s.materializeTable()
	}
	return Entry{}, false
}

func (s *Structure) materializeTable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.materializeTableLocked()
}

func (s *Structure) materializeTableLocked() {
	if s.hasTable {
		return
	}
	tbl := make(map[symbol.Symbol]Entry)
	for cur := s; cur != nil; cur = cur.previous {
		if cur.hasAdded {
			if _, exists := tbl[cur.added.Symbol]; !exists {
				tbl[cur.added.Symbol] = cur.added
			}
		}
	}
	s.table = tbl
	s.hasTable = true
}

func (s *Structure) chainDepth() int {
	d := 0
	for cur := s; cur != nil; cur = cur.previous {
		d++
	}
	return d
}

// Add returns the successor structure after adding sym with attrs,
// reusing a shared transition edge when one already exists for this
// (symbol, attrs) pair. cap bounds consecutive transitions before the
// structure is promoted to unique; pass 0 to use DefaultUniqueTransitionCap.
func Add(s *Structure, sym symbol.Symbol, attrs Attributes, cap int) *Structure {
	if cap <= 0 {
		cap = DefaultUniqueTransitionCap
	}

	s.mu.Lock()
	if s.unique {
		defer s.mu.Unlock()
		return s.addUniqueLocked(sym, attrs)
	}

	key := transitionKey{sym, attrs}
	if s.transMap != nil {
		if next, ok := s.transMap[key]; ok {
			s.mu.Unlock()
			return next
		}
	} else if s.transEdge != nil && s.transEdge.key == key {
		next := s.transEdge.next
		s.mu.Unlock()
		return next
	}

	if s.chainDepth() >= cap {
		s.mu.Unlock()
		unique := s.CloneUnique()
		return Add(unique, sym, attrs, cap)
	}

	next := &Structure{
		prototype:      s.prototype,
		previous:       s,
		added:          Entry{Symbol: sym, Offset: s.calculatedSize, Attrs: attrs},
		hasAdded:       true,
		calculatedSize: s.calculatedSize + 1,
		indexed:        s.indexed,
	}

	switch {
	case s.transMap != nil:
		s.transMap[key] = next
	case s.transEdge != nil:
		s.transMap = map[transitionKey]*Structure{
			s.transEdge.key: s.transEdge.next,
			key:             next,
		}
		s.transEdge = nil
	default:
		s.transEdge = &transitionEdge{key: key, next: next}
	}
	s.mu.Unlock()
	return next
}

func (s *Structure) addUniqueLocked(sym symbol.Symbol, attrs Attributes) *Structure {
	s.materializeTableLocked()
	var offset int
	if n := len(s.deletedOffsets); n > 0 {
		offset = s.deletedOffsets[n-1]
		s.deletedOffsets = s.deletedOffsets[:n-1]
	} else {
		offset = s.calculatedSize
		s.calculatedSize++
	}
	s.table[sym] = Entry{Symbol: sym, Offset: offset, Attrs: attrs}
	return s
}

// CloneUnique materializes s's table and returns a new structure
// personal to one object: it is never shared and is mutated in place by
// subsequent Add/Delete/ChangeAttributes calls.
func (s *Structure) CloneUnique() *Structure {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.materializeTableLocked()

	tbl := make(map[symbol.Symbol]Entry, len(s.table))
	for k, v := range s.table {
		tbl[k] = v
	}
	deleted := append([]int(nil), s.deletedOffsets...)

	return &Structure{
		prototype:      s.prototype,
		table:          tbl,
		hasTable:       true,
		unique:         true,
		indexed:        s.indexed,
		deletedOffsets: deleted,
		calculatedSize: s.calculatedSize,
	}
}

// Delete removes sym and returns a new unique structure; s itself is
// never mutated. The freed offset is pushed onto the clone's deleted
// free list for reuse by a later Add.
func Delete(s *Structure, sym symbol.Symbol) *Structure {
	clone := s.CloneUnique()
	clone.mu.Lock()
	defer clone.mu.Unlock()
	if e, ok := clone.table[sym]; ok {
		delete(clone.table, sym)
		clone.deletedOffsets = append(clone.deletedOffsets, e.Offset)
	}
	return clone
}

// ChangeAttributes produces a new unique structure with sym's
// attributes replaced; its storage offset is unchanged.
func ChangeAttributes(s *Structure, sym symbol.Symbol, attrs Attributes) *Structure {
	clone := s.CloneUnique()
	clone.mu.Lock()
	defer clone.mu.Unlock()
	if e, ok := clone.table[sym]; ok {
		e.Attrs = attrs
		clone.table[sym] = e
	}
	return clone
}

// WithPrototype builds a structure for a prototype change: a detached
// node with prototype = proto and otherwise-empty contents, per the
// data model (this path never shares transition edges and is expected
// to be rare).
func WithPrototype(proto value.Value) *Structure {
	return &Structure{prototype: proto}
}

// Entries returns every live (symbol, entry) pair in layout order (i.e.
// ascending Offset, the order Add/addUniqueLocked assigned them in —
// insertion order for own string keys). Used by get_property_names /
// get_own_property_names, which for-in enumeration depends on for a
// deterministic iteration order; ranging s.table directly would leak
// Go's randomized map order into script-visible behavior.
func (s *Structure) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.materializeTableLocked()
	out := make([]Entry, 0, len(s.table))
	for _, e := range s.table {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out
}
