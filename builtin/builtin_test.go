package builtin

import (
	"strings"
	"testing"

	"github.com/Starlight-JS/starlight-sub002/heap"
	"github.com/Starlight-JS/starlight-sub002/interp"
	"github.com/Starlight-JS/starlight-sub002/object"
	"github.com/Starlight-JS/starlight-sub002/structure"
	"github.com/Starlight-JS/starlight-sub002/symbol"
	"github.com/Starlight-JS/starlight-sub002/value"
)

func newTestInterp(t *testing.T) *interp.Interpreter {
	t.Helper()
	h := heap.New(heap.Options{})
	symbols := symbol.NewTable()
	globalObj := object.New(structure.NewRoot(value.Null()))
	globalVal, err := h.Allocate(globalObj, object.Descriptor, 64, heap.RootSet{})
	if err != nil {
		t.Fatalf("allocating global object: %v", err)
	}
	return interp.New(h, symbols, globalVal, interp.Options{})
}

func TestNewErrorCarriesNameMessageAndStack(t *testing.T) {
	ip := newTestInterp(t)
	v, err := New(ip, KindTypeError, "x is not a function")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	o := ip.Heap.Deref(v)
	if o == nil || o.Tag != object.TagError {
		t.Fatalf("expected an Error-tagged object, got %+v", o)
	}
	if o.Err.Name != "TypeError" || o.Err.Message != "x is not a function" {
		t.Fatalf("unexpected ErrorData: %+v", o.Err)
	}
	if !strings.HasPrefix(o.Err.Stack, "TypeError: x is not a function") {
		t.Fatalf("unexpected stack header: %q", o.Err.Stack)
	}

	msgSym := ip.Symbols.Intern("message")
	msgVal, ok := object.GetNonIndexed(o, ip.Context(), msgSym)
	if !ok {
		t.Fatal("expected an own message property")
	}
	msgObj := ip.Heap.DerefCell(msgVal)
	if msgObj == nil {
		t.Fatal("expected message to be a string cell")
	}
}

func TestThrowWrapsAsThrownError(t *testing.T) {
	ip := newTestInterp(t)
	err := TypeError(ip, "%s is not defined", "foo")
	thrown, ok := err.(*interp.Thrown)
	if !ok {
		t.Fatalf("expected *interp.Thrown, got %T", err)
	}
	if !IsErrorOf(ip, thrown.Value, KindTypeError) {
		t.Fatal("expected the thrown value to be a TypeError")
	}
}

func TestObjectCreateUsesGivenPrototype(t *testing.T) {
	ip := newTestInterp(t)
	protoObj := object.New(structure.NewRoot(value.Null()))
	protoVal, err := ip.Alloc(protoObj, object.Descriptor, 64)
	if err != nil {
		t.Fatalf("allocating prototype: %v", err)
	}

	ns, err := NewObjectNamespace(ip)
	if err != nil {
		t.Fatalf("NewObjectNamespace: %v", err)
	}
	nsObj := ip.Heap.Deref(ns)
	createSym := ip.Symbols.Intern("create")
	createVal, ok := object.GetNonIndexed(nsObj, ip.Context(), createSym)
	if !ok {
		t.Fatal("expected a create function on the Object namespace")
	}

	result, err := ip.Call(createVal, value.Undefined(), []value.Value{protoVal})
	if err != nil {
		t.Fatalf("calling Object.create: %v", err)
	}
	created := ip.Heap.Deref(result)
	if created == nil {
		t.Fatal("expected Object.create to return a fresh object")
	}
	if created.Structure.Prototype() != protoVal {
		t.Fatal("expected the new object's prototype to be the one passed in")
	}
}

func TestArrayIsArrayAndPush(t *testing.T) {
	ip := newTestInterp(t)
	ns, err := NewArrayNamespace(ip)
	if err != nil {
		t.Fatalf("NewArrayNamespace: %v", err)
	}
	nsObj := ip.Heap.Deref(ns)

	isArraySym := ip.Symbols.Intern("isArray")
	isArrayVal, _ := object.GetNonIndexed(nsObj, ip.Context(), isArraySym)

	arrRoot := structure.NewRoot(value.Null())
	arrRoot.SetIndexed(true)
	arr := object.NewArray(arrRoot)
	arrVal, err := ip.Alloc(arr, object.Descriptor, 64)
	if err != nil {
		t.Fatalf("allocating array: %v", err)
	}

	result, err := ip.Call(isArrayVal, value.Undefined(), []value.Value{arrVal})
	if err != nil {
		t.Fatalf("calling Array.isArray: %v", err)
	}
	if !value.IsBool(result) || !value.AsBool(result) {
		t.Fatal("expected Array.isArray(arr) to be true")
	}

	pushSym := ip.Symbols.Intern("prototype")
	protoVal, _ := object.GetNonIndexed(nsObj, ip.Context(), pushSym)
	protoObj := ip.Heap.Deref(protoVal)
	pushVal, ok := object.GetNonIndexed(protoObj, ip.Context(), ip.Symbols.Intern("push"))
	if !ok {
		t.Fatal("expected Array.prototype.push")
	}

	newLen, err := ip.Call(pushVal, arrVal, []value.Value{value.EncodeInt32(1), value.EncodeInt32(2)})
	if err != nil {
		t.Fatalf("calling push: %v", err)
	}
	if !value.IsInt32(newLen) || value.AsInt32(newLen) != 2 {
		t.Fatalf("expected push to return length 2, got %+v", newLen)
	}
	if arr.Indexed.Length != 2 {
		t.Fatalf("expected array length 2, got %d", arr.Indexed.Length)
	}
}
