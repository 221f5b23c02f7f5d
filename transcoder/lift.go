package transcoder

import (
	"fmt"

	"github.com/wippyai/script-bridge/engine"
	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/value"
)

// Lift boxes a native engine result according to its declared type t.
func Lift(t engine.Type, v any) (value.Box, error) {
	if t == engine.TypeVoid || v == nil {
		return value.Null(), nil
	}

	switch t {
	case engine.TypeBoolean:
		if x, ok := v.(bool); ok {
			return value.Bool(x), nil
		}
	case engine.TypeI2:
		if x, ok := v.(int16); ok {
			return value.Int16(x), nil
		}
	case engine.TypeU2:
		if x, ok := v.(uint16); ok {
			return value.UInt16(x), nil
		}
	case engine.TypeI4:
		switch x := v.(type) {
		case int32:
			return value.Int32(x), nil
		case int:
			return value.Int(x)
		}
	case engine.TypeU4:
		if x, ok := v.(uint32); ok {
			return value.UInt32(x), nil
		}
	case engine.TypeI8:
		if x, ok := v.(int64); ok {
			return value.Int64(x), nil
		}
	case engine.TypeU8:
		if x, ok := v.(uint64); ok {
			return value.UInt64(x), nil
		}
	case engine.TypeR4:
		if x, ok := v.(float32); ok {
			return value.Float32(x), nil
		}
	case engine.TypeR8:
		if x, ok := v.(float64); ok {
			return value.Float64(x), nil
		}
	case engine.TypeString:
		if x, ok := v.(string); ok {
			return value.String(x), nil
		}
	case engine.TypeVec3:
		if x, ok := v.(value.Vec3); ok {
			return value.FromVec3(x), nil
		}
	case engine.TypeQuat:
		if x, ok := v.(value.Quat); ok {
			return value.FromQuat(x), nil
		}
	case engine.TypePointer:
		return value.Pointer(v), nil
	case engine.TypeArray, engine.TypeObject:
		// Object results may be managed objects or plain payloads; both box
		// by their dynamic type.
		return value.From(v)
	}

	return value.Box{}, errors.TypeMismatch(errors.PhaseMarshal, nil, fmt.Sprintf("%T", v), t.String())
}
