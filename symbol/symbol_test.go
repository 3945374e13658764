package symbol

import "testing"

func TestInternIsIdempotent(t *testing.T) {
	table := NewTable()
	a := table.Intern("foo")
	b := table.Intern("foo")
	if a != b {
		t.Fatalf("interning the same string twice must return equal symbols: %+v != %+v", a, b)
	}
	if a.IsIndexed() {
		t.Fatal("an interned string symbol must not report as indexed")
	}
	desc, ok := table.Description(a)
	if !ok || desc != "foo" {
		t.Fatalf("expected description %q, got %q ok=%v", "foo", desc, ok)
	}
}

func TestInternDistinctStringsYieldDistinctSymbols(t *testing.T) {
	table := NewTable()
	a := table.Intern("foo")
	b := table.Intern("bar")
	if a == b {
		t.Fatal("distinct strings must intern to distinct symbols")
	}
}

func TestIndexedSymbolsCarryNoDescription(t *testing.T) {
	table := NewTable()
	sym := Indexed(7)
	if !sym.IsIndexed() || sym.Index() != 7 {
		t.Fatalf("expected an indexed symbol for 7, got %+v", sym)
	}
	if _, ok := table.Description(sym); ok {
		t.Fatal("an indexed symbol must have no string description")
	}
}

func TestLenTracksDistinctInternedStrings(t *testing.T) {
	table := NewTable()
	table.Intern("a")
	table.Intern("b")
	table.Intern("a")
	if got := table.Len(); got != 2 {
		t.Fatalf("expected 2 distinct interned strings, got %d", got)
	}
}
