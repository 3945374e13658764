// Package strcell implements the engine's primitive string cell: a
// length-prefixed, immutable UTF-8 byte sequence allocated on the heap,
// per the data model's string representation. Indexed (code-unit) access
// and length, as used by string literals and the StringObject wrapper,
// are derived from the UTF-8 bytes on first use and then cached as a
// UTF-16 code-unit slice alongside them.
package strcell

import (
	"unicode/utf16"
	"unicode/utf8"

	"github.com/Starlight-JS/starlight-sub002/class"
)

// String is an immutable UTF-8 byte sequence, interned nowhere (two
// equal strings may be two distinct cells; interning is a builtin-level
// optimization, not a core invariant).
type String struct {
	header class.Header
	bytes  []byte
	units  []uint16 // computed once, lazily, on first code-unit access
}

// Descriptor is the class descriptor for every string cell.
var Descriptor = class.Register("String", false, nil, nil) // leaf cell: no outgoing references to trace

// CellHeader implements class.Cell.
func (s *String) CellHeader() *class.Header { return &s.header }

// New constructs a string cell wrapping a copy of src's bytes (so later
// mutation of a caller-owned []byte can't violate the cell's
// immutability).
func New(src string) *String {
	return &String{bytes: []byte(src)}
}

// NewFromBytes constructs a string cell taking ownership of b (the
// caller must not retain or mutate b afterwards).
func NewFromBytes(b []byte) *String { return &String{bytes: b} }

// ByteLen returns the UTF-8 byte length.
func (s *String) ByteLen() int { return len(s.bytes) }

// Bytes returns the backing UTF-8 bytes. The caller must not mutate the
// returned slice.
func (s *String) Bytes() []byte { return s.bytes }

// String returns the Go string view of the cell's bytes.
func (s *String) String() string { return string(s.bytes) }

// units16 lazily computes and caches the UTF-16 code-unit sequence.
func (s *String) units16() []uint16 {
	if s.units == nil {
		s.units = utf16.Encode([]rune(string(s.bytes)))
		if s.units == nil {
			s.units = []uint16{}
		}
	}
	return s.units
}

// Len returns the string's length in UTF-16 code units, per JS's
// .length semantics.
func (s *String) Len() int { return len(s.units16()) }

// At returns the UTF-16 code unit at index i, or false if out of range.
func (s *String) At(i int) (uint16, bool) {
	u := s.units16()
	if i < 0 || i >= len(u) {
		return 0, false
	}
	return u[i], true
}

// Concat returns a new string cell holding a's bytes followed by b's.
func Concat(a, b *String) *String {
	out := make([]byte, 0, len(a.bytes)+len(b.bytes))
	out = append(out, a.bytes...)
	out = append(out, b.bytes...)
	return NewFromBytes(out)
}

// Equal reports byte-for-byte equality.
func Equal(a, b *String) bool { return string(a.bytes) == string(b.bytes) }

// ValidUTF8 reports whether s's bytes are well-formed UTF-8.
func ValidUTF8(s []byte) bool { return utf8.Valid(s) }
