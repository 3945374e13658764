// Package engerr provides the structured error type used for the two
// non-Value error surfaces described by the engine's error design:
// host-returned errors (compile/link/registration failures) and fatal
// engine failures (out-of-memory, stack overflow, collector invariant
// violations). Value-level JS exceptions are plain value.Value cells
// from the builtin Error family and never wrapped here.
package engerr

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred.
type Phase string

const (
	PhaseCompileLower Phase = "compile_lower" // AST->bytecode handoff validation
	PhaseStructure    Phase = "structure"      // hidden-class transitions
	PhaseHeap         Phase = "heap"           // allocation / collection
	PhaseInterpret    Phase = "interpret"      // bytecode dispatch
	PhaseLink         Phase = "link"           // builtin/native registration
	PhaseSnapshot     Phase = "snapshot"       // CodeBlock wire encode/decode
)

// Kind categorizes the error.
type Kind string

const (
	KindInvalidBytecode    Kind = "invalid_bytecode"
	KindStackOverflow      Kind = "stack_overflow"
	KindOutOfMemory        Kind = "out_of_memory"
	KindInvariantViolation Kind = "invariant_violation"
	KindTypeError          Kind = "type_error"
	KindNotFound           Kind = "not_found"
	KindAlreadyRegistered  Kind = "already_registered"
	KindArityMismatch      Kind = "arity_mismatch"
	KindMalformedWire      Kind = "malformed_wire"
	KindFatal              Kind = "fatal"
)

// Error is the structured error type used throughout the engine.
type Error struct {
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	Path   []string
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target matches this error's phase and kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Phase == t.Phase && e.Kind == t.Kind
}

// IsFatal reports whether e represents an engine failure that must abort
// the runtime rather than be surfaced as a JS exception.
func (e *Error) IsFatal() bool {
	switch e.Kind {
	case KindOutOfMemory, KindStackOverflow, KindInvariantViolation, KindFatal:
		return true
	default:
		return false
	}
}

// Builder provides structured error construction.
type Builder struct {
	err Error
}

// New creates a new error builder.
func New(phase Phase, kind Kind) *Builder {
	return &Builder{err: Error{Phase: phase, Kind: kind}}
}

func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

func (b *Builder) Build() *Error { return &b.err }

// Convenience constructors for common patterns.

// NotFound creates a not-found error.
func NotFound(phase Phase, what, name string) *Error {
	return &Error{Phase: phase, Kind: KindNotFound, Detail: fmt.Sprintf("%s %q not found", what, name)}
}

// InvalidBytecode creates an invalid-bytecode error.
func InvalidBytecode(path []string, detail string) *Error {
	return &Error{Phase: PhaseInterpret, Kind: KindInvalidBytecode, Path: path, Detail: detail}
}

// StackOverflow creates a fatal stack-overflow error.
func StackOverflow(depth, limit int) *Error {
	return &Error{
		Phase:  PhaseInterpret,
		Kind:   KindStackOverflow,
		Detail: fmt.Sprintf("frame depth %d exceeds limit %d", depth, limit),
	}
}

// OutOfMemory creates a fatal out-of-memory error.
func OutOfMemory(requested, available uint64) *Error {
	return &Error{
		Phase:  PhaseHeap,
		Kind:   KindOutOfMemory,
		Detail: fmt.Sprintf("requested %d bytes, %d available after emergency collection", requested, available),
	}
}

// InvariantViolation creates a fatal collector invariant-violation error.
func InvariantViolation(detail string) *Error {
	return &Error{Phase: PhaseHeap, Kind: KindInvariantViolation, Detail: detail}
}

// ArityMismatch creates an arity-mismatch error for a native call.
func ArityMismatch(name string, want, got int) *Error {
	return &Error{
		Phase:  PhaseLink,
		Kind:   KindArityMismatch,
		Detail: fmt.Sprintf("%s expects %d argument(s), got %d", name, want, got),
	}
}

// AlreadyRegistered creates an already-registered error for a builtin name.
func AlreadyRegistered(name string) *Error {
	return &Error{Phase: PhaseLink, Kind: KindAlreadyRegistered, Detail: fmt.Sprintf("%q already registered", name)}
}

// MalformedWire creates a malformed-wire-format error.
func MalformedWire(detail string) *Error {
	return &Error{Phase: PhaseSnapshot, Kind: KindMalformedWire, Detail: detail}
}

// Wrap wraps an existing error with additional phase/kind context.
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{Phase: phase, Kind: kind, Detail: detail, Cause: cause}
}
