package interp

import (
	"github.com/Starlight-JS/starlight-sub002/bytecode"
	"github.com/Starlight-JS/starlight-sub002/class"
	"github.com/Starlight-JS/starlight-sub002/feedback"
	"github.com/Starlight-JS/starlight-sub002/heap"
	"github.com/Starlight-JS/starlight-sub002/internal/engerr"
	"github.com/Starlight-JS/starlight-sub002/internal/obs"
	"github.com/Starlight-JS/starlight-sub002/internal/opcode"
	"github.com/Starlight-JS/starlight-sub002/object"
	"github.com/Starlight-JS/starlight-sub002/strcell"
	"github.com/Starlight-JS/starlight-sub002/structure"
	"github.com/Starlight-JS/starlight-sub002/symbol"
	"github.com/Starlight-JS/starlight-sub002/value"
	"go.uber.org/zap"
)

// DefaultMaxCallDepth bounds scripted call recursion before the
// interpreter raises a fatal stack-overflow error.
const DefaultMaxCallDepth = 4096

// Options configures an Interpreter.
type Options struct {
	MaxCallDepth int             // 0 selects DefaultMaxCallDepth
	Interrupt    <-chan struct{} // host interrupt flag, polled at backward branches
}

// Thrown wraps an uncaught script exception Value so it can travel as a
// Go error across nested Call invocations; it is never an engine-fatal
// condition (those are *engerr.Error).
type Thrown struct{ Value value.Value }

func (t *Thrown) Error() string { return "uncaught exception" }

// ictx adapts an Interpreter to object.Context.
type ictx struct {
	h       *heap.Heap
	symbols *symbol.Table
}

func (c *ictx) Deref(v value.Value) *object.Object  { return c.h.Deref(v) }
func (c *ictx) DerefCell(v value.Value) class.Cell   { return c.h.DerefCell(v) }
func (c *ictx) Description(s symbol.Symbol) (string, bool) { return c.symbols.Description(s) }

// Interpreter drives bytecode dispatch over a heap and a shared symbol
// table: one instance per engine instance (see the runtime package).
type Interpreter struct {
	Heap    *heap.Heap
	Symbols *symbol.Table
	Global  value.Value // the global object, a boxed cell Value

	ctx    *ictx
	frames []*Frame
	opts   Options
}

// New creates an Interpreter over h and symbols. global must already be
// a heap-allocated Object cell Value (see runtime.New).
func New(h *heap.Heap, symbols *symbol.Table, global value.Value, opts Options) *Interpreter {
	if opts.MaxCallDepth <= 0 {
		opts.MaxCallDepth = DefaultMaxCallDepth
	}
	return &Interpreter{
		Heap: h, Symbols: symbols, Global: global,
		ctx: &ictx{h: h, symbols: symbols}, opts: opts,
	}
}

// Context returns the object.Context this interpreter uses for property
// access, for builtins that need to walk prototype chains themselves.
func (ip *Interpreter) Context() object.Context { return ip.ctx }

// RootSet exposes the interpreter's current precise-root snapshot, for
// collaborators (the builtin package's Error constructors) that must
// allocate against this interpreter's live call stack without reaching
// into its unexported frame bookkeeping.
func (ip *Interpreter) RootSet() heap.RootSet { return ip.rootSet() }

// StackTrace renders the active call chain, innermost frame first, in
// the "at <function>" form builtin's Error constructors embed in a
// captured stack string.
func (ip *Interpreter) StackTrace() []string {
	out := make([]string, 0, len(ip.frames))
	for i := len(ip.frames) - 1; i >= 0; i-- {
		name := ip.frames[i].Code.Name
		if name == "" {
			name = "<anonymous>"
		}
		out = append(out, name)
	}
	return out
}

func (ip *Interpreter) rootSet() heap.RootSet {
	var pinned []value.Value
	pinned = append(pinned, ip.Global)
	for _, f := range ip.frames {
		pinned = append(pinned, f.roots()...)
	}
	return heap.RootSet{Pinned: pinned}
}

func (ip *Interpreter) interrupted() bool {
	if ip.opts.Interrupt == nil {
		return false
	}
	select {
	case <-ip.opts.Interrupt:
		return true
	default:
		return false
	}
}

// Alloc registers cell with the interpreter's heap, rooted against every
// value currently live across the call stack. Exported for collaborators
// (the builtin package's Error constructors) that need to allocate while
// a script frame is active without duplicating root enumeration.
func (ip *Interpreter) Alloc(cell class.Cell, desc *class.Descriptor, size uint32) (value.Value, error) {
	return ip.Heap.Allocate(cell, desc, size, ip.rootSet())
}

// allocObject allocates a fresh Object on the interpreter's heap,
// rooted against every value currently live across the call stack.
func (ip *Interpreter) allocObject(o *object.Object) (value.Value, error) {
	return ip.Alloc(o, object.Descriptor, objectSize(o))
}

func objectSize(o *object.Object) uint32 {
	return uint32(64 + 8*len(o.Slots))
}

func (ip *Interpreter) allocString(s string) (value.Value, error) {
	cell := strcell.New(s)
	return ip.Alloc(cell, strcell.Descriptor, uint32(16+len(s)))
}

// AllocString is allocString exported for the builtin package's string
// construction needs (Error.message/.stack, etc.).
func (ip *Interpreter) AllocString(s string) (value.Value, error) { return ip.allocString(s) }

// newErrorValue builds a minimal Error-tagged object directly (the
// interpreter's own fatal-path throws, e.g. TypeError for calling a
// non-function, don't depend on the builtin package to avoid an object
// package <-> builtin import cycle; builtin's richer constructors are
// used for everything reachable from script-level `throw` sites).
func (ip *Interpreter) newErrorValue(name, msg string) value.Value {
	root := structure.NewRoot(value.Null())
	o := object.New(root)
	o.Tag = object.TagError
	o.Err = &object.ErrorData{Name: name, Message: msg}
	v, err := ip.allocObject(o)
	if err != nil {
		// Allocation failure while building an error report is itself
		// fatal; surfacing undefined here would hide an OOM.
		return value.Undefined()
	}
	return v
}

func (ip *Interpreter) typeError(format string, args ...any) *Thrown {
	return &Thrown{Value: ip.newErrorValue("TypeError", fmtSprintf(format, args...))}
}

// Call invokes callee (which must resolve to a callable Object) with
// this and args, from outside any running frame (the runtime package's
// entry point).
func (ip *Interpreter) Call(callee, this value.Value, args []value.Value) (value.Value, error) {
	return ip.callValue(callee, this, args, false)
}

// Construct invokes callee as a constructor.
func (ip *Interpreter) Construct(callee value.Value, args []value.Value) (value.Value, error) {
	return ip.callValue(callee, value.Undefined(), args, true)
}

func (ip *Interpreter) callValue(calleeVal, this value.Value, args []value.Value, ctorCall bool) (value.Value, error) {
	callee := ip.Heap.Deref(calleeVal)
	if callee == nil || !callee.IsCallable() || callee.Function == nil {
		return value.Undefined(), ip.typeError("value is not a function")
	}
	fn := callee.Function

	if ctorCall {
		protoStruct := fn.ConstructStructure
		if protoStruct == nil {
			protoStruct = structure.NewRoot(fn.Prototype)
		}
		newObj := object.New(protoStruct)
		instVal, err := ip.allocObject(newObj)
		if err != nil {
			return value.Undefined(), err
		}
		this = instVal
	}

	if fn.Native != nil {
		result, thrown := fn.Native(object.Arguments{This: this, Args: args, CtorCall: ctorCall})
		if !value.IsEmpty(thrown) {
			return value.Undefined(), &Thrown{Value: thrown}
		}
		if ctorCall && !value.IsCell(result) {
			return this, nil // constructors returning a non-object keep the new instance
		}
		return result, nil
	}

	cb, ok := fn.Code.(*bytecode.CodeBlock)
	if !ok || cb == nil {
		return value.Undefined(), ip.typeError("function has no executable code")
	}
	if len(ip.frames) >= ip.opts.MaxCallDepth {
		obs.Logger().Sugar().Warnw("call depth exceeded", "depth", len(ip.frames), "limit", ip.opts.MaxCallDepth, "fn", cb.Name)
		return value.Undefined(), engerr.StackOverflow(len(ip.frames), ip.opts.MaxCallDepth)
	}

	result, err := ip.invoke(cb, calleeVal, this, args)
	if err != nil {
		if _, fatal := err.(*Thrown); !fatal {
			obs.Logger().Debug("fatal interpreter error", zap.String("fn", cb.Name), zap.Error(err))
		}
		return value.Undefined(), err
	}
	if ctorCall && !value.IsCell(result) {
		return this, nil
	}
	return result, nil
}

func (ip *Interpreter) invoke(cb *bytecode.CodeBlock, callee, this value.Value, args []value.Value) (value.Value, error) {
	env := make([]value.Value, 0, 4) // populated by closure-creating opcodes in a fuller compiler; empty top-level frames are valid
	f := newFrame(cb, callee, this, args, env)
	ip.frames = append(ip.frames, f)
	defer func() { ip.frames = ip.frames[:len(ip.frames)-1] }()

	return ip.run(f)
}

func truthy(v value.Value) bool {
	switch {
	case value.IsBool(v):
		return value.AsBool(v)
	case value.IsInt32(v):
		return value.AsInt32(v) != 0
	case value.IsDouble(v):
		d := value.AsDouble(v)
		return d == d && d != 0 // excludes NaN and -0/0
	case value.IsNullOrUndefined(v):
		return false
	case value.IsCell(v):
		return true
	default:
		return false
	}
}

func (ip *Interpreter) literalValue(lit bytecode.Literal) (value.Value, error) {
	switch lit.Kind {
	case bytecode.LiteralNumber, bytecode.LiteralBool:
		return lit.Num, nil
	case bytecode.LiteralNull:
		return value.Null(), nil
	case bytecode.LiteralUndefined:
		return value.Undefined(), nil
	case bytecode.LiteralString:
		return ip.allocString(lit.Str)
	default:
		return value.Undefined(), nil
	}
}

// run executes f's bytecode to completion, returning its return value or
// a propagated error (engine-fatal or an uncaught Thrown exception).
func (ip *Interpreter) run(f *Frame) (value.Value, error) {
	pc := 0
	for {
		if pc < 0 || pc >= len(f.Code.Instrs) {
			return value.Undefined(), engerr.InvalidBytecode([]string{f.Code.Name}, "program counter out of range")
		}
		in := f.Code.Instrs[pc]
		next := pc + 1

		if opcode.IsBackwardBranchCandidate(in.Op) && ip.interrupted() {
			return value.Undefined(), engerr.New(engerr.PhaseInterpret, engerr.KindFatal).
				Path(f.Code.Name).Detail("execution interrupted by host").Build()
		}

		var execErr error
		switch in.Op {
		case opcode.LoadConstant:
			imm := in.Imm.(bytecode.ConstImm)
			v, err := ip.literalValue(f.Code.Literals[imm.Index])
			if err != nil {
				execErr = err
				break
			}
			f.setReg(in.Dst, v)
		case opcode.LoadInt:
			f.setReg(in.Dst, value.EncodeInt32(in.Imm.(bytecode.IntImm).Value))
		case opcode.LoadUndefined:
			f.setReg(in.Dst, value.Undefined())
		case opcode.LoadNull:
			f.setReg(in.Dst, value.Null())
		case opcode.LoadTrue:
			f.setReg(in.Dst, value.Bool(true))
		case opcode.LoadFalse:
			f.setReg(in.Dst, value.Bool(false))
		case opcode.LoadThis:
			f.setReg(in.Dst, f.This)

		case opcode.LoadByName:
			sym := f.Code.Names[in.Imm.(bytecode.NameImm).Name]
			v, found := ip.globalGet(sym)
			if !found {
				execErr = ip.typeError("%s is not defined", ip.symName(sym))
				break
			}
			f.setReg(in.Dst, v)
		case opcode.StoreByName:
			sym := f.Code.Names[in.Imm.(bytecode.NameImm).Name]
			ip.globalPut(sym, f.reg(in.A))
		case opcode.InitByName:
			sym := f.Code.Names[in.Imm.(bytecode.NameImm).Name]
			ip.globalDefine(sym, f.reg(in.A))
		case opcode.LoadByHeapIndex:
			idx := in.Imm.(bytecode.HeapIndexImm).Index
			if int(idx) < len(f.Env) {
				f.setReg(in.Dst, f.Env[idx])
			} else {
				f.setReg(in.Dst, value.Undefined())
			}
		case opcode.StoreByHeapIndex:
			idx := in.Imm.(bytecode.HeapIndexImm).Index
			for int(idx) >= len(f.Env) {
				f.Env = append(f.Env, value.Undefined())
			}
			f.Env[idx] = f.reg(in.A)

		case opcode.GetByID:
			v, err := ip.getByID(f, in)
			if err != nil {
				execErr = err
				break
			}
			f.setReg(in.Dst, v)
		case opcode.PutByID:
			execErr = ip.putByID(f, in)
		case opcode.GetByVal:
			v, err := ip.getByVal(f, in)
			if err != nil {
				execErr = err
				break
			}
			f.setReg(in.Dst, v)
		case opcode.PutByVal:
			execErr = ip.putByVal(f, in)

		case opcode.Add, opcode.Sub, opcode.Mul, opcode.Div, opcode.Mod,
			opcode.Eq, opcode.StrictEq, opcode.Less, opcode.LessEq, opcode.Greater, opcode.GreaterEq:
			v, err := ip.binOp(f, in)
			if err != nil {
				execErr = err
				break
			}
			f.setReg(in.Dst, v)
		case opcode.Neg:
			v, err := ip.unaryNeg(f, in)
			if err != nil {
				execErr = err
				break
			}
			f.setReg(in.Dst, v)

		case opcode.Jump:
			next = int(in.Imm.(bytecode.JumpImm).Target)
		case opcode.JumpIfTrue:
			if truthy(f.reg(in.A)) {
				next = int(in.Imm.(bytecode.JumpImm).Target)
			}
		case opcode.JumpIfFalse:
			if !truthy(f.reg(in.A)) {
				next = int(in.Imm.(bytecode.JumpImm).Target)
			}
		case opcode.JumpIfUndefinedOrNull:
			if value.IsNullOrUndefined(f.reg(in.A)) {
				next = int(in.Imm.(bytecode.JumpImm).Target)
			}
		case opcode.JumpIfComplex:
			if value.IsCell(f.reg(in.A)) {
				next = int(in.Imm.(bytecode.JumpImm).Target)
			}

		case opcode.Call, opcode.CallWithReceiver:
			v, err := ip.execCall(f, in, in.Op == opcode.CallWithReceiver)
			if err != nil {
				execErr = err
				break
			}
			f.setReg(in.Dst, v)
		case opcode.Construct:
			v, err := ip.execConstruct(f, in)
			if err != nil {
				execErr = err
				break
			}
			f.setReg(in.Dst, v)
		case opcode.Return:
			return f.reg(in.A), nil

		case opcode.CreateObject:
			v, err := ip.allocObject(object.New(structure.NewRoot(value.Null())))
			if err != nil {
				execErr = err
				break
			}
			f.setReg(in.Dst, v)
		case opcode.CreateArray:
			root := structure.NewRoot(value.Null())
			root.SetIndexed(true)
			v, err := ip.allocObject(object.NewArray(root))
			if err != nil {
				execErr = err
				break
			}
			f.setReg(in.Dst, v)
		case opcode.DefineOwnProperty:
			execErr = ip.execDefineOwnProperty(f, in)
		case opcode.DefineGetter, opcode.DefineSetter:
			execErr = ip.execDefineAccessor(f, in, in.Op == opcode.DefineGetter)

		case opcode.TryEnter:
			f.pushTry(in.Imm.(bytecode.TryImm).CatchTarget)
		case opcode.CatchEnter:
			if f.hasExc {
				f.setReg(in.Dst, f.pendingExc)
				f.hasExc = false
				f.pendingExc = value.Undefined()
			}
		case opcode.FinallyResume:
			// Falls through to the next instruction: a finally block's
			// resume point is encoded by the compiler as ordinary
			// fallthrough bytecode; this opcode exists as a resumption
			// marker for disassembly, not a control-flow transfer.
		case opcode.Throw:
			execErr = ip.raise(f, f.reg(in.A))

		case opcode.CreateEnumerate:
			ip.execCreateEnumerate(f, in)
		case opcode.GetEnumerateKey:
			ip.execGetEnumerateKey(f, in)
		case opcode.CheckLastEnumerateKey:
			next = ip.execCheckLastEnumerateKey(f, in, next)
		case opcode.IteratorOp:
			// Generic iterator protocol dispatch is a builtin-surface
			// concern (Symbol.iterator lookup + next() call); the core
			// opcode exists as a landing pad with no in-core behavior.

		default:
			execErr = engerr.InvalidBytecode([]string{f.Code.Name}, "unknown opcode "+in.Op.String())
		}

		if execErr != nil {
			if thrown, ok := execErr.(*Thrown); ok {
				if target, caught := f.tryCatch(); caught {
					f.pendingExc = thrown.Value
					f.hasExc = true
					next = int(target)
					pc = next
					continue
				}
			}
			return value.Undefined(), execErr
		}
		pc = next
	}
}

func (ip *Interpreter) raise(f *Frame, v value.Value) error {
	return &Thrown{Value: v}
}

func (ip *Interpreter) symName(sym symbol.Symbol) string {
	if name, ok := ip.Symbols.Description(sym); ok {
		return name
	}
	return "<symbol>"
}

func (ip *Interpreter) globalObj() *object.Object { return ip.Heap.Deref(ip.Global) }

func (ip *Interpreter) globalGet(sym symbol.Symbol) (value.Value, bool) {
	g := ip.globalObj()
	if g == nil {
		return value.Undefined(), false
	}
	return object.GetNonIndexed(g, ip.ctx, sym)
}

func (ip *Interpreter) globalPut(sym symbol.Symbol, v value.Value) {
	if g := ip.globalObj(); g != nil {
		object.PutNonIndexed(g, ip.ctx, sym, v, false)
	}
}

func (ip *Interpreter) globalDefine(sym symbol.Symbol, v value.Value) {
	if g := ip.globalObj(); g != nil {
		object.DefineOwnNonIndexed(g, sym, v, structure.AttrNone)
	}
}

// feedbackSlotFor is a small helper shared by getByID/putByID for
// looking up a PropImm's feedback slot.
func feedbackSlotFor(f *Frame, idx uint32) *feedback.Slot { return f.Code.Feedback.At(int(idx)) }
