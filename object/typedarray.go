package object

import (
	"encoding/binary"
	"math"

	"github.com/Starlight-JS/starlight-sub002/value"
)

// decodeLane reads one numeric lane of kind k from b (little-endian,
// matching the wire format's byte order) and boxes it as a Value.
func decodeLane(k TypedArrayKind, b []byte) value.Value {
	switch k {
	case Int8Array:
		return value.EncodeInt32(int32(int8(b[0])))
	case Uint8Array, Uint8ClampedArray:
		return value.EncodeInt32(int32(b[0]))
	case Int16Array:
		return value.EncodeInt32(int32(int16(binary.LittleEndian.Uint16(b))))
	case Uint16Array:
		return value.EncodeInt32(int32(binary.LittleEndian.Uint16(b)))
	case Int32Array:
		return value.EncodeInt32(int32(binary.LittleEndian.Uint32(b)))
	case Uint32Array:
		u := binary.LittleEndian.Uint32(b)
		if u <= math.MaxInt32 {
			return value.EncodeInt32(int32(u))
		}
		return value.EncodeDouble(float64(u))
	case Float32Array:
		return value.EncodeDouble(float64(math.Float32frombits(binary.LittleEndian.Uint32(b))))
	case Float64Array:
		return value.EncodeDouble(math.Float64frombits(binary.LittleEndian.Uint64(b)))
	default:
		return value.Undefined()
	}
}

// encodeLane coerces v to kind k's numeric lane format and writes it
// little-endian into b.
func encodeLane(k TypedArrayKind, b []byte, v value.Value) {
	f := coerceNumber(v)
	switch k {
	case Int8Array, Uint8Array, Uint8ClampedArray:
		b[0] = byte(int64(f))
	case Int16Array, Uint16Array:
		binary.LittleEndian.PutUint16(b, uint16(int64(f)))
	case Int32Array, Uint32Array:
		binary.LittleEndian.PutUint32(b, uint32(int64(f)))
	case Float32Array:
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(f)))
	case Float64Array:
		binary.LittleEndian.PutUint64(b, math.Float64bits(f))
	}
}

func coerceNumber(v value.Value) float64 {
	switch {
	case value.IsInt32(v):
		return float64(value.AsInt32(v))
	case value.IsDouble(v):
		return value.AsDouble(v)
	case value.IsBool(v):
		if value.AsBool(v) {
			return 1
		}
		return 0
	default:
		return math.NaN()
	}
}
