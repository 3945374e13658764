package runtime

import (
	"github.com/Starlight-JS/starlight-sub002/builtin"
	"github.com/Starlight-JS/starlight-sub002/object"
	"github.com/Starlight-JS/starlight-sub002/structure"
	"github.com/Starlight-JS/starlight-sub002/value"
)

// NativeFunc is the host-facing native-function calling convention:
// explicit (value, error) multi-return mirrors the engine's own
// Result<Value,Value> shape rather than a boxed Result type.
//
// object.NativeFunc (the lower-level signature the interpreter actually
// calls) has no *Runtime parameter, since object cannot import runtime
// without a cycle; DefineHostFunc closes over rt itself, so a host
// function registered here still gets full runtime access without that
// parameter needing to flow through object's type.
type NativeFunc func(rt *Runtime, args *builtin.Arguments) (value.Value, value.Value)

// DefineHostFunc registers fn as a callable global named name with the
// given declared arity.
func (rt *Runtime) DefineHostFunc(name string, arity int, fn NativeFunc) error {
	root := structure.NewRoot(value.Null())
	o := object.New(root)
	o.Tag = object.TagFunction
	o.Flags |= object.FlagCallable
	o.Function = &object.FunctionData{
		Name:  name,
		Arity: arity,
		Native: func(args object.Arguments) (value.Value, value.Value) {
			return fn(rt, &args)
		},
	}
	v, err := rt.interp.Alloc(o, object.Descriptor, 96)
	if err != nil {
		return err
	}
	rt.DefineBuiltin(name, v)
	return nil
}
