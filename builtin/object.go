package builtin

import (
	"github.com/Starlight-JS/starlight-sub002/interp"
	"github.com/Starlight-JS/starlight-sub002/object"
	"github.com/Starlight-JS/starlight-sub002/structure"
	"github.com/Starlight-JS/starlight-sub002/value"
)

// Arguments re-exports object.Arguments under the builtin package so
// host-facing native-function signatures (runtime.NativeFunc) can name
// it without importing object directly.
type Arguments = object.Arguments

func newNativeFunction(ip *interp.Interpreter, name string, arity int, fn object.NativeFunc) (value.Value, error) {
	root := structure.NewRoot(value.Null())
	o := object.New(root)
	o.Tag = object.TagFunction
	o.Flags |= object.FlagCallable
	o.Function = &object.FunctionData{Name: name, Arity: arity, Native: fn}
	return ip.Alloc(o, object.Descriptor, 96)
}

func namespace(ip *interp.Interpreter, members map[string]value.Value) (value.Value, error) {
	root := structure.NewRoot(value.Null())
	o := object.New(root)
	nsVal, err := ip.Alloc(o, object.Descriptor, uint32(64+16*len(members)))
	if err != nil {
		return value.Undefined(), err
	}
	for name, v := range members {
		object.DefineOwnNonIndexed(o, ip.Symbols.Intern(name), v, structure.AttrDontEnum)
	}
	return nsVal, nil
}

// NewObjectNamespace builds the `Object` global's minimal static
// surface: `create` and `getPrototypeOf`, the two entry points a
// prototype-chain walk needs, since the broader Object/Reflect library
// is an external collaborator.
func NewObjectNamespace(ip *interp.Interpreter) (value.Value, error) {
	create, err := newNativeFunction(ip, "create", 1, func(args object.Arguments) (value.Value, value.Value) {
		proto := args.At(0)
		var root *structure.Structure
		if value.IsNull(proto) {
			root = structure.NewRoot(value.Null())
		} else if value.IsCell(proto) {
			root = structure.NewRoot(proto)
		} else {
			errv, _ := New(ip, KindTypeError, "Object prototype may only be an Object or null")
			return value.Undefined(), errv
		}
		o := object.New(root)
		v, err := ip.Alloc(o, object.Descriptor, 64)
		if err != nil {
			return value.Undefined(), value.Undefined()
		}
		return v, value.Empty()
	})
	if err != nil {
		return value.Undefined(), err
	}

	getPrototypeOf, err := newNativeFunction(ip, "getPrototypeOf", 1, func(args object.Arguments) (value.Value, value.Value) {
		o := ip.Heap.Deref(args.At(0))
		if o == nil {
			return value.Null(), value.Empty()
		}
		proto := o.Structure.Prototype()
		if !value.IsCell(proto) {
			return value.Null(), value.Empty()
		}
		return proto, value.Empty()
	})
	if err != nil {
		return value.Undefined(), err
	}

	return namespace(ip, map[string]value.Value{
		"create":         create,
		"getPrototypeOf": getPrototypeOf,
	})
}

// NewArrayNamespace builds the `Array` global's minimal static surface
// (`isArray`) plus a shared Array.prototype carrying `push`, enough to
// exercise indexed-storage growth and length truncation from script.
func NewArrayNamespace(ip *interp.Interpreter) (value.Value, error) {
	isArray, err := newNativeFunction(ip, "isArray", 1, func(args object.Arguments) (value.Value, value.Value) {
		o := ip.Heap.Deref(args.At(0))
		return value.Bool(o != nil && o.Tag == object.TagArray), value.Empty()
	})
	if err != nil {
		return value.Undefined(), err
	}

	push, err := newNativeFunction(ip, "push", 1, func(args object.Arguments) (value.Value, value.Value) {
		recv := ip.Heap.Deref(args.This)
		if recv == nil || recv.Tag != object.TagArray {
			errv, _ := New(ip, KindTypeError, "Array.prototype.push called on non-array")
			return value.Undefined(), errv
		}
		if recv.Indexed == nil {
			recv.Indexed = object.NewIndexed()
		}
		for _, a := range args.Args {
			object.DefineOwnIndexed(recv, recv.Indexed.Length, a)
		}
		return value.EncodeInt32(int32(recv.Indexed.Length)), value.Empty()
	})
	if err != nil {
		return value.Undefined(), err
	}

	protoRoot := structure.NewRoot(value.Null())
	protoRoot.SetIndexed(true)
	protoObj := object.NewArray(protoRoot)
	protoVal, err := ip.Alloc(protoObj, object.Descriptor, 64)
	if err != nil {
		return value.Undefined(), err
	}
	object.DefineOwnNonIndexed(protoObj, ip.Symbols.Intern("push"), push, structure.AttrDontEnum)

	return namespace(ip, map[string]value.Value{
		"isArray":   isArray,
		"prototype": protoVal,
	})
}
