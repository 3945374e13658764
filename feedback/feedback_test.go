package feedback

import (
	"testing"

	"github.com/Starlight-JS/starlight-sub002/structure"
	"github.com/Starlight-JS/starlight-sub002/symbol"
	"github.com/Starlight-JS/starlight-sub002/value"
)

func TestInlineCacheUpgrade(t *testing.T) {
	tbl := symbol.NewTable()
	x := tbl.Intern("x")
	y := tbl.Intern("y")

	root := structure.NewRoot(value.Null())
	aStruct := structure.Add(root, x, structure.AttrNone, 0)
	bStruct := structure.Add(root, x, structure.AttrNone, 0)
	bStruct = structure.Add(bStruct, y, structure.AttrNone, 0)

	v := NewVector(1)
	slot := v.At(0)

	if slot.State() != StateNone {
		t.Fatalf("fresh slot should be None, got %v", slot.State())
	}

	offA, _ := structure.Lookup(aStruct, x)
	slot.Update(aStruct, offA.Offset)
	if slot.State() != StateMonomorphic {
		t.Fatalf("after first call expected Monomorphic, got %v", slot.State())
	}
	cachedStruct, cachedOff := slot.Monomorphic()
	if cachedStruct != aStruct || cachedOff != offA.Offset {
		t.Fatal("monomorphic cache should record structure a / offset of x")
	}

	offB, _ := structure.Lookup(bStruct, x)
	slot.Update(bStruct, offB.Offset)
	if slot.State() != StatePolymorphic {
		t.Fatalf("after second distinct structure expected Polymorphic, got %v", slot.State())
	}

	if off, ok := slot.Lookup(aStruct); !ok || off != offA.Offset {
		t.Fatalf("third call against structure a should still hit cache: off=%d ok=%v", off, ok)
	}
}

func TestDegradeToGeneric(t *testing.T) {
	tbl := symbol.NewTable()
	x := tbl.Intern("x")
	root := structure.NewRoot(value.Null())

	v := NewVector(1)
	slot := v.At(0)

	for i := 0; i < PolymorphicThreshold; i++ {
		st := structure.Add(root, x, structure.Attributes(i), 0)
		entry, _ := structure.Lookup(st, x)
		slot.Update(st, entry.Offset)
	}
	if slot.State() != StateGeneric {
		t.Fatalf("expected Generic after %d distinct structures, got %v", PolymorphicThreshold, slot.State())
	}
}
