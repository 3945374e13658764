// Package interp implements the register-based bytecode dispatch loop:
// call frames, inline-cache lookup/update against the feedback package,
// frame-local exception handling, and call/construct dispatch between
// native and scripted functions.
package interp

import (
	"github.com/Starlight-JS/starlight-sub002/bytecode"
	"github.com/Starlight-JS/starlight-sub002/symbol"
	"github.com/Starlight-JS/starlight-sub002/value"
)

// tryEntry is one active try-scope: if Throw fires while it is the
// innermost scope in the current frame, control transfers to
// CatchTarget without unwinding to the caller.
type tryEntry struct {
	catchTarget uint32
}

// enumState is a CreateEnumerate opcode's iterator state: the snapshot
// of property names taken at enumeration start (so mutation during the
// loop body can't desync the cursor) and the current cursor.
type enumState struct {
	names  []symbol.Symbol
	cursor int
}

// Frame is one call's activation record, per the call-frame layout: a
// code block reference, the callee, this, the argument window, the
// register file ("locals"), the closure environment captured at
// creation (for LoadByHeapIndex/StoreByHeapIndex), and frame-local
// exception/iterator state.
type Frame struct {
	Code   *bytecode.CodeBlock
	Callee value.Value
	This   value.Value
	Args   []value.Value
	Locals []value.Value
	Env    []value.Value

	tryStack   []tryEntry
	pendingExc value.Value
	hasExc     bool

	enumStates map[uint32]*enumState
}

// newFrame builds cb's activation record. Parameters occupy the leading
// registers of the window (r0..len(args)-1), the same convention the
// teacher's interpreter uses for its locals/args overlap; Args itself is
// kept alongside for rest-parameter and arguments-object construction.
func newFrame(cb *bytecode.CodeBlock, callee, this value.Value, args, env []value.Value) *Frame {
	locals := make([]value.Value, cb.NumRegisters)
	for i := range locals {
		locals[i] = value.Undefined()
	}
	for i := 0; i < len(args) && i < len(locals); i++ {
		locals[i] = args[i]
	}
	return &Frame{Code: cb, Callee: callee, This: this, Args: args, Locals: locals, Env: env}
}

func (f *Frame) reg(r bytecode.Reg) value.Value {
	if int(r) >= len(f.Locals) {
		return value.Undefined()
	}
	return f.Locals[r]
}

func (f *Frame) setReg(r bytecode.Reg, v value.Value) {
	if int(r) < len(f.Locals) {
		f.Locals[r] = v
	}
}

func (f *Frame) pushTry(catchTarget uint32) { f.tryStack = append(f.tryStack, tryEntry{catchTarget}) }

func (f *Frame) popTry() {
	if n := len(f.tryStack); n > 0 {
		f.tryStack = f.tryStack[:n-1]
	}
}

// tryCatch pops the innermost try scope and reports its target, or
// false if the frame has no open try scope (the caller must then
// propagate the exception up the Go call stack to the invoking frame).
func (f *Frame) tryCatch() (uint32, bool) {
	n := len(f.tryStack)
	if n == 0 {
		return 0, false
	}
	target := f.tryStack[n-1].catchTarget
	f.tryStack = f.tryStack[:n-1]
	return target, true
}

// roots returns every Value this frame holds live, for precise root
// enumeration during a collection triggered while this frame is active.
func (f *Frame) roots() []value.Value {
	out := make([]value.Value, 0, len(f.Locals)+len(f.Args)+len(f.Env)+2)
	out = append(out, f.Callee, f.This)
	out = append(out, f.Locals...)
	out = append(out, f.Args...)
	out = append(out, f.Env...)
	if f.hasExc {
		out = append(out, f.pendingExc)
	}
	return out
}
