package bytecode

import (
	"testing"

	"github.com/Starlight-JS/starlight-sub002/symbol"
)

// FuzzDecodeNeverPanics mirrors the pack's precedent for fuzzing a
// binary decoder directly on arbitrary bytes (component/decoder_fuzz_test.go):
// Decode must return an error on malformed input, never panic.
func FuzzDecodeNeverPanics(f *testing.F) {
	seedTable := symbol.NewTable()
	cb := buildFib(seedTable)
	seed, err := Encode(cb, seedTable)
	if err == nil {
		f.Add(seed)
	}
	f.Add([]byte{})
	f.Add([]byte{0, 0, 0, 0})
	f.Fuzz(func(t *testing.T, b []byte) {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("Decode panicked on malformed input: %v", r)
			}
		}()
		_, _ = Decode(b, symbol.NewTable())
	})
}
