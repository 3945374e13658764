// Package builtin implements the minimal built-in surface the
// interpreter's own opcodes and the error-throwing paths elsewhere in
// the engine need to have something to call: the Error constructor
// family, each rendering a captured stack trace from the interpreter's
// live frame chain, plus a small Object/Array static surface. The
// broader Array/String/Math/RegExp/Date library is an external
// collaborator.
package builtin

import (
	"fmt"
	"strings"

	"github.com/Starlight-JS/starlight-sub002/interp"
	"github.com/Starlight-JS/starlight-sub002/object"
	"github.com/Starlight-JS/starlight-sub002/structure"
	"github.com/Starlight-JS/starlight-sub002/value"
)

// Kind names one of the standard Error subtypes.
type Kind string

const (
	KindError          Kind = "Error"
	KindTypeError      Kind = "TypeError"
	KindRangeError     Kind = "RangeError"
	KindReferenceError Kind = "ReferenceError"
	KindSyntaxError    Kind = "SyntaxError"
	KindURIError       Kind = "URIError"
	KindEvalError      Kind = "EvalError"
)

// renderStack formats name/message and the interpreter's current call
// chain the way V8/JSC-family engines do: a header line followed by one
// "at <function>" line per active frame, innermost first.
func renderStack(name, message string, frames []string) string {
	var b strings.Builder
	b.WriteString(name)
	if message != "" {
		b.WriteString(": ")
		b.WriteString(message)
	}
	for _, fn := range frames {
		b.WriteString("\n    at ")
		b.WriteString(fn)
	}
	return b.String()
}

// New allocates an Error-tagged object of the given kind, capturing a
// stack trace from ip's currently active call chain, and defines
// non-enumerable name/message/stack own properties alongside the ErrorData
// payload the interpreter's internal throw sites also look at.
func New(ip *interp.Interpreter, kind Kind, message string) (value.Value, error) {
	root := structure.NewRoot(value.Null())
	o := object.New(root)
	o.Tag = object.TagError
	stack := renderStack(string(kind), message, ip.StackTrace())
	o.Err = &object.ErrorData{Name: string(kind), Message: message, Stack: stack}

	errVal, err := ip.Alloc(o, object.Descriptor, errorObjectSize(message, stack))
	if err != nil {
		return value.Undefined(), err
	}

	nameVal, err := ip.AllocString(string(kind))
	if err != nil {
		return value.Undefined(), err
	}
	msgVal, err := ip.AllocString(message)
	if err != nil {
		return value.Undefined(), err
	}
	stackVal, err := ip.AllocString(stack)
	if err != nil {
		return value.Undefined(), err
	}

	object.DefineOwnNonIndexed(o, ip.Symbols.Intern("name"), nameVal, structure.AttrDontEnum)
	object.DefineOwnNonIndexed(o, ip.Symbols.Intern("message"), msgVal, structure.AttrDontEnum)
	object.DefineOwnNonIndexed(o, ip.Symbols.Intern("stack"), stackVal, structure.AttrDontEnum)
	return errVal, nil
}

func errorObjectSize(message, stack string) uint32 {
	return uint32(96 + len(message) + len(stack))
}

// Throw is New, wrapped as an *interp.Thrown ready to return from a
// native function or propagate out of the interpreter.
func Throw(ip *interp.Interpreter, kind Kind, format string, args ...any) error {
	v, err := New(ip, kind, fmt.Sprintf(format, args...))
	if err != nil {
		return err
	}
	return &interp.Thrown{Value: v}
}

// Error constructs a plain Error.
func Error(ip *interp.Interpreter, format string, args ...any) error {
	return Throw(ip, KindError, format, args...)
}

// TypeError constructs a TypeError.
func TypeError(ip *interp.Interpreter, format string, args ...any) error {
	return Throw(ip, KindTypeError, format, args...)
}

// RangeError constructs a RangeError.
func RangeError(ip *interp.Interpreter, format string, args ...any) error {
	return Throw(ip, KindRangeError, format, args...)
}

// ReferenceError constructs a ReferenceError.
func ReferenceError(ip *interp.Interpreter, format string, args ...any) error {
	return Throw(ip, KindReferenceError, format, args...)
}

// SyntaxError constructs a SyntaxError.
func SyntaxError(ip *interp.Interpreter, format string, args ...any) error {
	return Throw(ip, KindSyntaxError, format, args...)
}

// URIError constructs a URIError.
func URIError(ip *interp.Interpreter, format string, args ...any) error {
	return Throw(ip, KindURIError, format, args...)
}

// EvalError constructs an EvalError.
func EvalError(ip *interp.Interpreter, format string, args ...any) error {
	return Throw(ip, KindEvalError, format, args...)
}

// IsErrorOf reports whether v is an Error-tagged object of the given
// kind, for host code (and tests) asserting on which Error subtype a
// script threw.
func IsErrorOf(ip *interp.Interpreter, v value.Value, kind Kind) bool {
	o := ip.Heap.Deref(v)
	if o == nil || o.Tag != object.TagError || o.Err == nil {
		return false
	}
	return o.Err.Name == string(kind)
}
