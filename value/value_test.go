package value

import (
	"math"
	"testing"
)

func TestInt32RoundTrip(t *testing.T) {
	cases := []int32{0, 1, -1, math.MinInt32, math.MaxInt32, 42, -42}
	for _, i := range cases {
		v := EncodeInt32(i)
		if !IsInt32(v) {
			t.Fatalf("EncodeInt32(%d) not recognized as int32", i)
		}
		if got := AsInt32(v); got != i {
			t.Fatalf("round trip %d: got %d", i, got)
		}
	}
}

func TestDoubleRoundTrip(t *testing.T) {
	cases := []float64{0, 1.5, -1.5, 3.14159, math.MaxFloat64, -math.MaxFloat64, math.SmallestNonzeroFloat64}
	for _, f := range cases {
		v := EncodeDouble(f)
		if !IsDouble(v) {
			t.Fatalf("EncodeDouble(%v) not recognized as double", f)
		}
		if IsInt32(v) {
			t.Fatalf("EncodeDouble(%v) misrecognized as int32", f)
		}
		if got := AsDouble(v); got != f {
			t.Fatalf("round trip %v: got %v", f, got)
		}
	}
}

func TestNaNPurification(t *testing.T) {
	nans := []float64{
		math.NaN(),
		math.Float64frombits(0x7ff8000000000001),
		math.Float64frombits(0xfff8000000000000),
		math.Float64frombits(0x7fffffffffffffff),
	}
	var first Value
	for i, f := range nans {
		v := EncodeDouble(f)
		if !IsDouble(v) {
			t.Fatalf("purified NaN %d not recognized as double", i)
		}
		if i == 0 {
			first = v
		} else if v != first {
			t.Fatalf("impure NaN %d purified to a different bit pattern than NaN 0: %x vs %x", i, v, first)
		}
		got := AsDouble(v)
		if got == got {
			t.Fatalf("purified NaN decoded as non-NaN: %v", got)
		}
	}
}

func TestImmediates(t *testing.T) {
	if !IsUndefined(Undefined()) {
		t.Fatal("Undefined() not IsUndefined")
	}
	if !IsNull(Null()) {
		t.Fatal("Null() not IsNull")
	}
	if !IsNullOrUndefined(Undefined()) || !IsNullOrUndefined(Null()) {
		t.Fatal("IsNullOrUndefined should hold for both null and undefined")
	}
	if IsNullOrUndefined(Bool(true)) {
		t.Fatal("IsNullOrUndefined should not hold for true")
	}
	if !IsBool(Bool(true)) || !AsBool(Bool(true)) {
		t.Fatal("Bool(true) round trip failed")
	}
	if !IsBool(Bool(false)) || AsBool(Bool(false)) {
		t.Fatal("Bool(false) round trip failed")
	}
	if !IsEmpty(Empty()) {
		t.Fatal("Empty() not IsEmpty")
	}
}

func TestCellPointer(t *testing.T) {
	addrs := []uintptr{16, 32, 256, 1 << 20}
	for _, a := range addrs {
		v := EncodeCellAddr(a)
		if !IsCell(v) {
			t.Fatalf("EncodeCellAddr(%d) not recognized as cell", a)
		}
		if got := AsCellAddr(v); got != a {
			t.Fatalf("cell round trip %d: got %d", a, got)
		}
	}
	if IsCell(Value(0)) {
		t.Fatal("zero value must not be a cell pointer (collides with Empty)")
	}
}

func TestKindsDisjoint(t *testing.T) {
	values := []Value{
		Undefined(), Null(), Bool(true), Bool(false), Empty(),
		EncodeInt32(7), EncodeDouble(7.5), EncodeCellAddr(64),
	}
	seen := map[Kind]int{}
	for _, v := range values {
		seen[KindOf(v)]++
	}
	if len(seen) < 6 {
		t.Fatalf("expected at least 6 distinct kinds across fixtures, got %d", len(seen))
	}
}
