package heap

import (
	"testing"

	"github.com/Starlight-JS/starlight-sub002/object"
	"github.com/Starlight-JS/starlight-sub002/structure"
	"github.com/Starlight-JS/starlight-sub002/symbol"
	"github.com/Starlight-JS/starlight-sub002/value"
)

func allocObject(t *testing.T, h *Heap) value.Value {
	t.Helper()
	s := structure.NewRoot(value.Null())
	o := object.New(s)
	v, err := h.Allocate(o, object.Descriptor, 96, RootSet{})
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	return v
}

func TestAllocateAndDeref(t *testing.T) {
	h := New(Options{})
	v := allocObject(t, h)
	if !value.IsCell(v) {
		t.Fatal("expected a cell value")
	}
	o := h.Deref(v)
	if o == nil {
		t.Fatal("expected to resolve the object back")
	}
	if o.CellHeader().Descriptor() != object.Descriptor {
		t.Fatal("wrong descriptor on resolved cell")
	}
}

func TestSweepReclaimsUnreferenced(t *testing.T) {
	h := New(Options{})
	h.threshold = 1 << 30 // no allocation-time collection while building up the unrooted cells
	var kept value.Value
	for i := 0; i < 10000; i++ {
		v := allocObject(t, h)
		if i == 0 {
			kept = v
		}
	}
	before := h.Stats().LiveCells
	if before != 10000 {
		t.Fatalf("expected 10000 live cells before collection, got %d", before)
	}

	h.Collect(RootSet{Pinned: []value.Value{kept}})

	after := h.Stats()
	if after.LiveCells != 1 {
		t.Fatalf("expected sweep to reclaim everything but the rooted cell, got %d live", after.LiveCells)
	}
	if h.Deref(kept) == nil {
		t.Fatal("rooted cell should have survived collection")
	}
}

func TestShadowStackRootsSurviveCollection(t *testing.T) {
	h := New(Options{})
	h.PushShadowFrame()
	v := allocObject(t, h)
	h.Letroot(v)

	h.Collect(RootSet{})
	if h.Deref(v) == nil {
		t.Fatal("shadow-stack-pinned cell should survive a collection")
	}

	h.PopShadowFrame()
	h.Collect(RootSet{})
	if h.Deref(v) != nil {
		t.Fatal("cell should be reclaimed once its shadow frame is popped")
	}
}

func TestWeakSlotClearedWhenTargetDies(t *testing.T) {
	h := New(Options{})
	v := allocObject(t, h)
	slot := h.NewWeakSlot(v)

	h.Collect(RootSet{}) // nothing roots v
	if _, ok := slot.Get(); ok {
		t.Fatal("expected weak slot to be cleared once its target was swept")
	}
}

func TestLargeObjectRouting(t *testing.T) {
	h := New(Options{})
	s := structure.NewRoot(value.Null())
	o := object.New(s)
	v, err := h.Allocate(o, object.Descriptor, LargeCutoff+64, RootSet{})
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	stats := h.Stats()
	if stats.LargeObjectCount != 1 {
		t.Fatalf("expected 1 large object, got %d", stats.LargeObjectCount)
	}

	h.Collect(RootSet{}) // unrooted: must be released
	stats = h.Stats()
	if stats.LargeObjectCount != 0 {
		t.Fatalf("expected the large object to be released, got %d remaining", stats.LargeObjectCount)
	}
	if h.Deref(v) != nil {
		t.Fatal("large object should be unreachable after sweep")
	}
}

func TestEvacuationPreservesHandleIdentity(t *testing.T) {
	h := New(Options{EvacuationHoleRatio: 0.01})
	var roots []value.Value
	// Fragment the open block: allocate then let half die so the block's
	// hole ratio crosses the (very low) evacuation threshold.
	for i := 0; i < 64; i++ {
		v := allocObject(t, h)
		if i%2 == 0 {
			roots = append(roots, v)
		}
	}
	before := make(map[value.Value]bool, len(roots))
	for _, v := range roots {
		before[v] = true
	}

	h.Collect(RootSet{Pinned: roots})

	for v := range before {
		if h.Deref(v) == nil {
			t.Fatal("evacuation must preserve a surviving cell's handle/value identity")
		}
	}
}

// buildTree allocates a complete binary tree of the given depth, wiring
// each node to its children through ordinary named properties so the
// collector must trace through object Slots (not just the root set) to
// keep the whole structure alive.
func buildTree(t *testing.T, h *Heap, table *symbol.Table, depth int) value.Value {
	t.Helper()
	leftSym := table.Intern("left")
	rightSym := table.Intern("right")

	var build func(d int) value.Value
	build = func(d int) value.Value {
		s := structure.NewRoot(value.Null())
		o := object.New(s)
		v, err := h.Allocate(o, object.Descriptor, 96, RootSet{})
		if err != nil {
			t.Fatalf("allocate: %v", err)
		}
		if d == 0 {
			return v
		}
		left := build(d - 1)
		right := build(d - 1)
		object.DefineOwnNonIndexed(o, leftSym, left, structure.AttrNone)
		object.DefineOwnNonIndexed(o, rightSym, right, structure.AttrNone)
		return v
	}
	return build(depth)
}

func TestTreeSurvivesCollectionThenFullyReclaimed(t *testing.T) {
	h := New(Options{})
	h.threshold = 1 << 30 // no allocation-time collection while the tree is still unrooted
	table := symbol.NewTable()

	// depth 13 => 2^14 - 1 = 16383 nodes, comfortably over 10^4.
	const depth = 13
	root := buildTree(t, h, table, depth)

	wantNodes := (1 << (depth + 1)) - 1
	if got := h.Stats().LiveCells; got != wantNodes {
		t.Fatalf("expected %d live nodes before collection, got %d", wantNodes, got)
	}

	h.Collect(RootSet{Pinned: []value.Value{root}})

	after := h.Stats()
	if after.LiveCells != wantNodes {
		t.Fatalf("expected the whole %d-node tree to survive tracing, got %d live", wantNodes, after.LiveCells)
	}
	if h.Deref(root) == nil {
		t.Fatal("root should still resolve after collection")
	}

	h.Collect(RootSet{})
	if got := h.Stats().LiveCells; got != 0 {
		t.Fatalf("expected the unrooted tree to be fully reclaimed, got %d live", got)
	}
}

func TestCollectIfNecessaryOnlyRunsPastThreshold(t *testing.T) {
	h := New(Options{})
	h.threshold = 1 << 30 // effectively unreachable
	v := allocObject(t, h)
	h.CollectIfNecessary(RootSet{})
	if h.Stats().CycleCount != 0 {
		t.Fatal("collection should not have run below threshold")
	}
	_ = v
}
