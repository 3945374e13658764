package bytecode

import (
	"github.com/Starlight-JS/starlight-sub002/internal/opcode"
	"github.com/Starlight-JS/starlight-sub002/symbol"
	"github.com/Starlight-JS/starlight-sub002/value"
)

// Builder hand-assembles a CodeBlock. The AST->bytecode emitter is an
// external collaborator; Builder exists only so the core's own tests
// can construct CodeBlocks directly without a parser/emitter in the
// loop.
type Builder struct {
	cb *CodeBlock
}

// NewBuilder starts a new CodeBlock named name with numRegisters
// registers in its window.
func NewBuilder(name string, numRegisters int) *Builder {
	return &Builder{cb: &CodeBlock{Name: name, NumRegisters: numRegisters, RestParam: -1}}
}

// Params sets the CodeBlock's parameter symbol list.
func (b *Builder) Params(params ...symbol.Symbol) *Builder {
	b.cb.Params = params
	return b
}

// AddLiteral appends a literal and returns its pool index.
func (b *Builder) AddLiteral(lit Literal) uint32 {
	idx := uint32(len(b.cb.Literals))
	b.cb.Literals = append(b.cb.Literals, lit)
	return idx
}

// AddName appends a symbol to the name vector and returns its index.
func (b *Builder) AddName(s symbol.Symbol) uint32 {
	idx := uint32(len(b.cb.Names))
	b.cb.Names = append(b.cb.Names, s)
	return idx
}

// Emit appends instr and returns its instruction index (useful as a
// jump target / patch site).
func (b *Builder) Emit(instr Instruction) uint32 {
	idx := uint32(len(b.cb.Instrs))
	b.cb.Instrs = append(b.cb.Instrs, instr)
	return idx
}

// PatchJumpTarget rewrites a previously emitted jump instruction's
// target, for forward branches whose destination wasn't known yet at
// Emit time.
func (b *Builder) PatchJumpTarget(at uint32, target uint32) {
	in := &b.cb.Instrs[at]
	in.Imm = JumpImm{Target: target}
}

// Here returns the index the next Emit call will occupy.
func (b *Builder) Here() uint32 { return uint32(len(b.cb.Instrs)) }

// LoadInt emits LoadInt dst, imm.
func (b *Builder) LoadInt(dst Reg, v int32) uint32 {
	return b.Emit(Instruction{Op: opcode.LoadInt, Dst: dst, Imm: IntImm{Value: v}})
}

// LoadConstant emits LoadConstant dst, litIdx.
func (b *Builder) LoadConstant(dst Reg, litIdx uint32) uint32 {
	return b.Emit(Instruction{Op: opcode.LoadConstant, Dst: dst, Imm: ConstImm{Index: litIdx}})
}

// BinOp emits a type-generic arithmetic/comparison opcode with a fresh
// ArithImm feedback slot (the real index is assigned by Finalize).
func (b *Builder) BinOp(op opcode.Opcode, dst, lhs, rhs Reg) uint32 {
	return b.Emit(Instruction{Op: op, Dst: dst, A: lhs, B: rhs, Imm: ArithImm{}})
}

// JumpIfFalse emits a conditional branch over reg, target patched later
// via PatchJumpTarget if unknown now.
func (b *Builder) JumpIfFalse(cond Reg, target uint32) uint32 {
	return b.Emit(Instruction{Op: opcode.JumpIfFalse, A: cond, Imm: JumpImm{Target: target}})
}

// Jump emits an unconditional branch.
func (b *Builder) Jump(target uint32) uint32 {
	return b.Emit(Instruction{Op: opcode.Jump, Imm: JumpImm{Target: target}})
}

// Call emits a scripted/native call: callee in A, no receiver (the
// callee sees undefined as `this`), argc arguments starting at argBase,
// result into dst.
func (b *Builder) Call(dst, callee, argBase Reg, argc uint32) uint32 {
	return b.Emit(Instruction{Op: opcode.Call, Dst: dst, A: callee, B: argBase, Imm: CallImm{Argc: argc}})
}

// Return emits a return of the value in reg.
func (b *Builder) Return(reg Reg) uint32 {
	return b.Emit(Instruction{Op: opcode.Return, A: reg})
}

// GetByID emits a named property read with an inline-cache feedback
// slot allocated at Finalize time.
func (b *Builder) GetByID(dst, obj Reg, nameIdx uint32) uint32 {
	return b.Emit(Instruction{Op: opcode.GetByID, Dst: dst, A: obj, Imm: PropImm{Name: nameIdx}})
}

// PutByID emits a named property write.
func (b *Builder) PutByID(obj, val Reg, nameIdx uint32) uint32 {
	return b.Emit(Instruction{Op: opcode.PutByID, A: obj, B: val, Imm: PropImm{Name: nameIdx}})
}

// AddInnerCodeBlock registers a nested (closure) CodeBlock and returns
// its index into Inner.
func (b *Builder) AddInnerCodeBlock(inner *CodeBlock) uint32 {
	idx := uint32(len(b.cb.Inner))
	b.cb.Inner = append(b.cb.Inner, inner)
	return idx
}

// Build finalizes and returns the assembled CodeBlock.
func (b *Builder) Build() *CodeBlock {
	b.cb.Finalize()
	return b.cb
}

// NumberLiteral is a convenience constructor for a numeric pool literal.
func NumberLiteral(f float64) Literal {
	return Literal{Kind: LiteralNumber, Num: value.EncodeDouble(f)}
}

// StringLiteral is a convenience constructor for a string pool literal.
func StringLiteral(s string) Literal {
	return Literal{Kind: LiteralString, Str: s}
}
