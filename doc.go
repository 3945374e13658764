// Package starlet implements the core of a small JavaScript execution
// engine: a NaN-boxed value representation, a hidden-class (Structure)
// property system with inline caches, a block-and-line tracing garbage
// collector, and a register bytecode interpreter.
//
// # Architecture Overview
//
// The module is organized into focused packages with distinct
// responsibilities:
//
//	value/      64-bit NaN-boxed Value type
//	class/      Class descriptors and the Cell header
//	structure/  Hidden-class (Structure) shape graph
//	symbol/     Process-wide symbol interning
//	strcell/    Immutable UTF-8 string cells and the StringObject wrapper
//	object/     Object slots, indexed elements, method table dispatch
//	bytecode/   Instruction set, CodeBlock, literal pool, wire format
//	feedback/   Per-site inline cache feedback vector
//	heap/       Block/line allocator, large-object space, tracing GC
//	interp/     Call frames, dispatch loop, exception unwinding
//	builtin/    Error family and the minimal Object/Array surface
//	runtime/    Host-facing API: compile, call, intern, collect
//
// Parsing source to an AST, lowering an AST to bytecode, snapshot
// serialization of whole programs, FFI bindings, and the broad
// Array/String/Math/RegExp/Date built-in library are external
// collaborators and not part of this module.
//
// # Quick Start
//
//	rt, err := runtime.New(runtime.Options{})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	b := bytecode.NewBuilder("answer", 1)
//	b.LoadInt(0, 55)
//	b.Return(0)
//
//	fn, err := rt.Compile(b.Build())
//	if err != nil {
//		log.Fatal(err)
//	}
//	result, err := rt.Call(fn, value.Undefined(), nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(value.AsInt32(result))
//
// # Thread Safety
//
// A Runtime's symbol table and heap allocator are safe for use from the
// goroutine driving interpretation plus the GC's own marker pool; the
// interpreter itself is single-threaded cooperative, per the engine's
// concurrency model (see interp and heap package docs).
package starlet
