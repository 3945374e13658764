package object

import (
	"testing"

	"github.com/Starlight-JS/starlight-sub002/class"
	"github.com/Starlight-JS/starlight-sub002/structure"
	"github.com/Starlight-JS/starlight-sub002/symbol"
	"github.com/Starlight-JS/starlight-sub002/value"
)

// testCtx is a minimal Context that resolves cell Values back to the
// cell they were boxed from, for prototype-chain walks in tests.
type testCtx struct {
	table *symbol.Table
	cells map[uintptr]class.Cell
	next  uintptr
}

func newTestCtx() *testCtx {
	return &testCtx{table: symbol.NewTable(), cells: map[uintptr]class.Cell{}, next: 16}
}

func (c *testCtx) box(cell class.Cell) value.Value {
	addr := c.next
	c.next += 16
	c.cells[addr] = cell
	return value.EncodeCellAddr(addr)
}

func (c *testCtx) Deref(v value.Value) *Object {
	o, _ := c.DerefCell(v).(*Object)
	return o
}

func (c *testCtx) DerefCell(v value.Value) class.Cell {
	if !value.IsCell(v) {
		return nil
	}
	return c.cells[value.AsCellAddr(v)]
}

func (c *testCtx) Description(s symbol.Symbol) (string, bool) { return c.table.Description(s) }

func TestPutGetCoherence(t *testing.T) {
	ctx := newTestCtx()
	root := structure.NewRoot(value.Null())
	o := New(root)
	sym := ctx.table.Intern("x")

	if !PutNonIndexed(o, ctx, sym, value.EncodeInt32(42), true) {
		t.Fatal("put failed")
	}
	got, ok := GetNonIndexed(o, ctx, sym)
	if !ok || value.AsInt32(got) != 42 {
		t.Fatalf("get after put: got %v ok=%v", got, ok)
	}
}

func TestTransitionDeterminism(t *testing.T) {
	ctx := newTestCtx()
	root := structure.NewRoot(value.Null())
	symA := ctx.table.Intern("a")
	symB := ctx.table.Intern("b")

	o1 := New(root)
	PutNonIndexed(o1, ctx, symA, value.EncodeInt32(1), true)
	PutNonIndexed(o1, ctx, symB, value.EncodeInt32(2), true)

	o2 := New(root)
	PutNonIndexed(o2, ctx, symA, value.EncodeInt32(10), true)
	PutNonIndexed(o2, ctx, symB, value.EncodeInt32(20), true)

	if o1.Structure != o2.Structure {
		t.Fatal("same put sequence on fresh objects should share a structure pointer")
	}
}

func TestPrototypeChain(t *testing.T) {
	ctx := newTestCtx()
	protoRoot := structure.NewRoot(value.Null())
	foo := ctx.table.Intern("foo")

	proto := New(protoRoot)
	PutNonIndexed(proto, ctx, foo, value.EncodeInt32(42), true)
	protoVal := ctx.box(proto)

	childRoot := structure.WithPrototype(protoVal)
	o := New(childRoot)

	got, ok := GetNonIndexed(o, ctx, foo)
	if !ok || value.AsInt32(got) != 42 {
		t.Fatalf("inherited foo: got %v ok=%v", got, ok)
	}

	PutNonIndexed(o, ctx, foo, value.EncodeInt32(7), true)
	got, _ = GetNonIndexed(o, ctx, foo)
	if value.AsInt32(got) != 7 {
		t.Fatalf("own write should shadow prototype: got %v", got)
	}
	protoGot, _ := GetNonIndexed(proto, ctx, foo)
	if value.AsInt32(protoGot) != 42 {
		t.Fatalf("prototype's own value must be unaffected: got %v", protoGot)
	}
}

func TestArrayLengthTruncation(t *testing.T) {
	ctx := newTestCtx()
	root := structure.NewRoot(value.Null())
	root.SetIndexed(true)
	a := NewArray(root)
	for i := int32(1); i <= 5; i++ {
		PutIndexed(a, ctx, uint32(i-1), value.EncodeInt32(i), true)
	}
	if a.Indexed.Length != 5 {
		t.Fatalf("expected length 5, got %d", a.Indexed.Length)
	}

	lengthSym := ctx.table.Intern("length")
	if !setArrayLength(a, value.EncodeInt32(2), true) {
		t.Fatal("length write should succeed while writable")
	}
	_ = lengthSym
	if a.Indexed.Length != 2 {
		t.Fatalf("expected truncated length 2, got %d", a.Indexed.Length)
	}
	if v, ok := GetIndexed(a, ctx, 3); ok {
		t.Fatalf("index 3 should be gone after truncation, got %v", v)
	}

	PutIndexed(a, ctx, 2, value.EncodeInt32(9), true)
	if a.Indexed.Length != 3 {
		t.Fatalf("push-like set should grow length to 3, got %d", a.Indexed.Length)
	}
	got, ok := GetIndexed(a, ctx, 2)
	if !ok || value.AsInt32(got) != 9 {
		t.Fatalf("expected 9 at index 2, got %v ok=%v", got, ok)
	}
}

func TestArrayLengthNonWritableThrows(t *testing.T) {
	root := structure.NewRoot(value.Null())
	a := NewArray(root)
	a.Indexed.Writable = false
	a.Indexed.set(0, value.EncodeInt32(1))
	a.Indexed.set(1, value.EncodeInt32(2))

	if setArrayLength(a, value.EncodeInt32(0), true) {
		t.Fatal("length write on non-writable array must fail")
	}
	if a.Indexed.Length != 2 {
		t.Fatal("failed length write must not partially truncate")
	}
}
