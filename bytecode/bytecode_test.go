package bytecode

import (
	"testing"

	"github.com/Starlight-JS/starlight-sub002/internal/opcode"
	"github.com/Starlight-JS/starlight-sub002/symbol"
)

func buildFib(table *symbol.Table) *CodeBlock {
	// The `n < 2` test of a recursive fib; both branches return n and no
	// recursive calls are emitted.
	nSym := table.Intern("n")
	b := NewBuilder("f", 8)
	b.Params(nSym)

	two := b.AddLiteral(NumberLiteral(2))
	r0 := Reg(0) // n
	r1 := Reg(1)
	r2 := Reg(2)

	b.LoadConstant(r1, two)
	b.BinOp(opcode.Less, r2, r0, r1)
	jf := b.JumpIfFalse(r2, 0)
	b.Return(r0)
	elseStart := b.Here()
	b.PatchJumpTarget(jf, elseStart)
	b.Return(r0)

	return b.Build()
}

func TestWireRoundTrip(t *testing.T) {
	table := symbol.NewTable()
	cb := buildFib(table)

	encoded, err := Encode(cb, table)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	table2 := symbol.NewTable()
	decoded, err := Decode(encoded, table2)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if decoded.Name != cb.Name {
		t.Fatalf("name mismatch: %q vs %q", decoded.Name, cb.Name)
	}
	if len(decoded.Instrs) != len(cb.Instrs) {
		t.Fatalf("instr count mismatch: %d vs %d", len(decoded.Instrs), len(cb.Instrs))
	}
	for i := range cb.Instrs {
		if decoded.Instrs[i].Op != cb.Instrs[i].Op {
			t.Fatalf("instr %d opcode mismatch: %v vs %v", i, decoded.Instrs[i].Op, cb.Instrs[i].Op)
		}
	}
	if len(decoded.Literals) != len(cb.Literals) {
		t.Fatalf("literal count mismatch")
	}
	if decoded.Feedback.Len() != cb.Feedback.Len() {
		t.Fatalf("feedback vector size mismatch: %d vs %d", decoded.Feedback.Len(), cb.Feedback.Len())
	}
}

func TestDecodeMalformedTruncated(t *testing.T) {
	table := symbol.NewTable()
	cb := buildFib(table)
	encoded, err := Encode(cb, table)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	for cut := 0; cut < len(encoded); cut += 3 {
		_, err := Decode(encoded[:cut], symbol.NewTable())
		if err == nil {
			t.Fatalf("expected error decoding truncated input at %d bytes", cut)
		}
	}
}
