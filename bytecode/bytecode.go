// Package bytecode defines the engine's register-based instruction set
// and the CodeBlock container: packed instructions, a literal pool, a
// name (symbol) vector, nested CodeBlock references, and a parallel
// feedback vector for inline caches.
package bytecode

import (
	"github.com/Starlight-JS/starlight-sub002/feedback"
	"github.com/Starlight-JS/starlight-sub002/internal/opcode"
	"github.com/Starlight-JS/starlight-sub002/symbol"
	"github.com/Starlight-JS/starlight-sub002/value"
)

// Reg is a register index within a call frame's register window.
type Reg uint16

// Instruction is one decoded bytecode instruction: a tagged opcode plus
// a family-specific immediate payload, following the same shape as the
// teacher's own wasm.Instruction{Opcode, Imm}.
type Instruction struct {
	Op  opcode.Opcode
	Dst Reg
	A   Reg
	B   Reg
	Imm any
}

// ConstImm indexes the literal pool (LoadConstant).
type ConstImm struct{ Index uint32 }

// IntImm is a packed immediate int32 (LoadInt).
type IntImm struct{ Value int32 }

// NameImm indexes the name (symbol) vector (LoadByName/StoreByName/InitByName).
type NameImm struct{ Name uint32 }

// HeapIndexImm indexes a captured-variable slot (LoadByHeapIndex/StoreByHeapIndex).
type HeapIndexImm struct{ Index uint32 }

// PropImm is a named property access with its inline-cache feedback
// index (GetByID/PutByID).
type PropImm struct {
	Name     uint32
	Feedback uint32
}

// ArithImm carries the feedback index for a type-generic arithmetic or
// comparison opcode's ArithProfile.
type ArithImm struct{ Feedback uint32 }

// JumpImm is a branch target expressed as an absolute instruction index.
type JumpImm struct{ Target uint32 }

// CallImm carries the argument count for Call/CallWithReceiver/Construct.
type CallImm struct{ Argc uint32 }

// LiteralImm selects which nested CodeBlock a CreateObject-family
// opcode's class literal refers to, or indexes a parameter list; reused
// generically for small integer literal operands (e.g. array literal
// element count).
type LiteralImm struct{ Value uint32 }

// TryImm marks a try-enter site's catch bytecode offset.
type TryImm struct{ CatchTarget uint32 }

// EnumImm carries the heap-index slot an enumerate opcode stores its
// iterator state in.
type EnumImm struct{ Slot uint32 }

// EnumCheckImm carries a CheckLastEnumerateKey site's enumeration slot
// plus the bytecode offset to branch to once the iterator is exhausted.
type EnumCheckImm struct {
	Slot   uint32
	Target uint32
}

// Literal is one entry in a CodeBlock's literal pool: a tagged union
// encoded as a struct, where only one field is meaningful per Kind.
type Literal struct {
	Kind LiteralKind
	Num  value.Value // LiteralNumber, LiteralBool, LiteralNull, LiteralUndefined
	Str  string      // LiteralString
}

// LiteralKind discriminates a pool Literal.
type LiteralKind byte

const (
	LiteralNumber LiteralKind = iota
	LiteralString
	LiteralBool
	LiteralNull
	LiteralUndefined
)

// CodeBlock is a compiled unit of bytecode: the packed instruction
// stream, its literal pool, a name vector of interned-string ids,
// references to nested (closure) CodeBlocks, the parameter symbol list,
// and a parallel feedback vector.
type CodeBlock struct {
	Name        string
	Instrs      []Instruction
	Literals    []Literal
	Names       []symbol.Symbol
	Inner       []*CodeBlock
	Params      []symbol.Symbol
	RestParam   int // -1 if none, else register index receiving the rest array
	Strict      bool
	NumRegisters int

	Feedback      *feedback.Vector
	ArithFeedback *feedback.ArithVector
}

// numPropSites counts PropImm-bearing instructions, used to size the
// feedback vector when building a CodeBlock by hand (the emitter is an
// external collaborator; Builder in builder.go exists for tests).
func (cb *CodeBlock) numPropSites() int {
	n := 0
	for _, in := range cb.Instrs {
		if _, ok := in.Imm.(PropImm); ok {
			n++
		}
	}
	return n
}

func (cb *CodeBlock) numArithSites() int {
	n := 0
	for _, in := range cb.Instrs {
		if _, ok := in.Imm.(ArithImm); ok {
			n++
		}
	}
	return n
}

// Finalize allocates Feedback/ArithFeedback vectors sized to the
// instruction stream's property-access and arithmetic sites. Called once
// after a CodeBlock's instruction stream is fully assembled (by the
// external emitter, or by Builder.Build in this package).
func (cb *CodeBlock) Finalize() {
	cb.Feedback = feedback.NewVector(cb.numPropSites())
	cb.ArithFeedback = feedback.NewArithVector(cb.numArithSites())
	cb.assignFeedbackIndices()
}

func (cb *CodeBlock) assignFeedbackIndices() {
	prop, arith := uint32(0), uint32(0)
	for i, in := range cb.Instrs {
		switch imm := in.Imm.(type) {
		case PropImm:
			imm.Feedback = prop
			cb.Instrs[i].Imm = imm
			prop++
		case ArithImm:
			imm.Feedback = arith
			cb.Instrs[i].Imm = imm
			arith++
		}
	}
}
