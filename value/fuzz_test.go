package value

import (
	"math"
	"testing"
)

// FuzzInt32RoundTrip mirrors the pack's precedent for randomized byte/
// value round-trip fuzzing (component/decoder_fuzz_test.go).
func FuzzInt32RoundTrip(f *testing.F) {
	f.Add(int32(0))
	f.Add(int32(-1))
	f.Add(int32(math.MaxInt32))
	f.Add(int32(math.MinInt32))
	f.Fuzz(func(t *testing.T, i int32) {
		v := EncodeInt32(i)
		if !IsInt32(v) {
			t.Fatalf("not recognized as int32: %d", i)
		}
		if got := AsInt32(v); got != i {
			t.Fatalf("round trip mismatch: want %d got %d", i, got)
		}
	})
}

// FuzzDoubleRoundTrip checks that every float64 bit pattern, once
// purified, survives an encode/decode round trip (or purifies
// consistently if NaN).
func FuzzDoubleRoundTrip(f *testing.F) {
	f.Add(uint64(0))
	f.Add(uint64(0x7ff8000000000000))
	f.Add(uint64(0xfff8000000000001))
	f.Add(math.Float64bits(math.Inf(1)))
	f.Fuzz(func(t *testing.T, bits uint64) {
		in := math.Float64frombits(bits)
		v := EncodeDouble(in)
		if !IsDouble(v) {
			t.Fatalf("not recognized as double for bits %x", bits)
		}
		out := AsDouble(v)
		want := PurifyNaN(in)
		if want != want {
			if out == out {
				t.Fatalf("expected NaN out, got %v", out)
			}
			return
		}
		if out != want {
			t.Fatalf("round trip mismatch for bits %x: want %v got %v", bits, want, out)
		}
	})
}
