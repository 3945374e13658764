package runtime

import (
	"testing"

	"github.com/Starlight-JS/starlight-sub002/bytecode"
	"github.com/Starlight-JS/starlight-sub002/builtin"
	"github.com/Starlight-JS/starlight-sub002/internal/opcode"
	"github.com/Starlight-JS/starlight-sub002/object"
	"github.com/Starlight-JS/starlight-sub002/value"
)

// buildFib assembles a recursive Fibonacci CodeBlock: fib(n) = n for
// n<2, else fib(n-1)+fib(n-2), resolving its own identity through a
// global binding named fibName.
func buildFib(fibNameIdx uint32) *bytecode.CodeBlock {
	b := bytecode.NewBuilder("fib", 11)
	b.LoadInt(1, 2)
	b.BinOp(opcode.Less, 2, 0, 1)
	jmp := b.JumpIfFalse(2, 0)
	b.Return(0)
	elseStart := b.Here()
	b.PatchJumpTarget(jmp, elseStart)

	b.Emit(bytecode.Instruction{Op: opcode.LoadByName, Dst: 3, Imm: bytecode.NameImm{Name: fibNameIdx}})
	b.LoadInt(4, 1)
	b.BinOp(opcode.Sub, 5, 0, 4)
	b.Call(6, 3, 5, 1)

	b.LoadInt(7, 2)
	b.BinOp(opcode.Sub, 8, 0, 7)
	b.Call(9, 3, 8, 1)

	b.BinOp(opcode.Add, 10, 6, 9)
	b.Return(10)
	return b.Build()
}

func TestFibonacciEndToEnd(t *testing.T) {
	rt, err := New(Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// The CodeBlock's Names vector must hold the same symbol Runtime
	// resolves LoadByName against, so intern it first.
	cb := buildFib(0)
	cb.Names = append(cb.Names, rt.Intern("fib"))

	fibVal, err := rt.Compile(cb)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	rt.DefineBuiltin("fib", fibVal)

	result, err := rt.Call(fibVal, value.Undefined(), []value.Value{value.EncodeInt32(10)})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !value.IsInt32(result) || value.AsInt32(result) != 55 {
		t.Fatalf("fib(10): expected 55, got %+v", result)
	}
}

func TestObjectNamespaceIsGlobal(t *testing.T) {
	rt, err := New(Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	g := rt.Heap().Deref(rt.GlobalObject())
	createSym := rt.Intern("Object")
	v, ok := object.GetNonIndexed(g, rt.Interpreter().Context(), createSym)
	if !ok {
		t.Fatal("expected an Object global")
	}
	if rt.Heap().Deref(v) == nil {
		t.Fatal("expected Object global to resolve to a live object")
	}
}

func TestDefineHostFuncIsCallableFromScript(t *testing.T) {
	rt, err := New(Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := rt.DefineHostFunc("double", 1, func(rt *Runtime, args *builtin.Arguments) (value.Value, value.Value) {
		n := args.At(0)
		if !value.IsInt32(n) {
			return value.Undefined(), value.EncodeInt32(-1)
		}
		return value.EncodeInt32(value.AsInt32(n) * 2), value.Empty()
	}); err != nil {
		t.Fatalf("DefineHostFunc: %v", err)
	}

	g := rt.Heap().Deref(rt.GlobalObject())
	fnVal, ok := object.GetNonIndexed(g, rt.Interpreter().Context(), rt.Intern("double"))
	if !ok {
		t.Fatal("expected a double global")
	}
	result, err := rt.Call(fnVal, value.Undefined(), []value.Value{value.EncodeInt32(21)})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !value.IsInt32(result) || value.AsInt32(result) != 42 {
		t.Fatalf("expected 42, got %+v", result)
	}
}

func TestCallingNonFunctionPropagatesThrown(t *testing.T) {
	rt, err := New(Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = rt.Call(value.Null(), value.Undefined(), nil)
	if err == nil {
		t.Fatal("expected an error calling a non-function")
	}
}
