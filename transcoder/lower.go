package transcoder

import (
	"strconv"

	"github.com/wippyai/script-bridge/engine"
	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/value"
)

// Lower converts args into native slots for params. Missing trailing
// arguments are filled from Param.Default or the zero value of the type.
func Lower(params []engine.Param, args value.Args) ([]any, error) {
	if args.Len() > len(params) {
		return nil, errors.New(errors.PhaseMarshal, errors.KindInvalidInput).
			Detail("%d arguments supplied for %d parameters", args.Len(), len(params)).
			Build()
	}

	slots := make([]any, len(params))
	for i, p := range params {
		if i >= args.Len() {
			slots[i] = Default(p)
			continue
		}
		b, err := args.At(i)
		if err != nil {
			return nil, err
		}
		v, err := LowerValue(p.Type, b)
		if err != nil {
			if e, ok := err.(*errors.Error); ok {
				e.Path = append([]string{paramName(p, i)}, e.Path...)
			}
			return nil, err
		}
		slots[i] = v
	}
	return slots, nil
}

func paramName(p engine.Param, i int) string {
	if p.Name != "" {
		return p.Name
	}
	return "arg" + strconv.Itoa(i)
}

// Default returns the value used for an omitted trailing parameter.
func Default(p engine.Param) any {
	if p.Default != nil {
		return p.Default
	}
	return Zero(p.Type)
}

// Zero returns the native zero value of t.
func Zero(t engine.Type) any {
	switch t {
	case engine.TypeVec3:
		return value.Vec3{}
	case engine.TypeQuat:
		return value.IdentityQuat
	case engine.TypeString:
		return ""
	default:
		return engine.ZeroValue(t)
	}
}

// LowerValue converts a single box to the native form of t.
func LowerValue(t engine.Type, b value.Box) (any, error) {
	if b.IsNull() {
		if t.IsReference() {
			return nil, nil
		}
		return nil, mismatch(t, b)
	}

	switch t {
	case engine.TypeBoolean:
		return b.AsBool()
	case engine.TypeI2:
		return b.AsInt16()
	case engine.TypeU2:
		return b.AsUInt16()
	case engine.TypeI4:
		return b.AsInt32()
	case engine.TypeU4:
		if b.Tag() == value.TagEntityID {
			return b.AsEntityID()
		}
		return b.AsUInt32()
	case engine.TypeI8:
		return b.AsInt64()
	case engine.TypeU8:
		return b.AsUInt64()
	case engine.TypeR4:
		return b.AsFloat32()
	case engine.TypeR8:
		return b.AsFloat64()
	case engine.TypeString:
		return b.AsString()
	case engine.TypeVec3:
		return b.AsVec3()
	case engine.TypeQuat:
		return b.AsQuat()
	case engine.TypePointer:
		return b.AsPointer()
	case engine.TypeArray:
		if b.Tag() != value.TagArray {
			return nil, mismatch(t, b)
		}
		return b.Native(), nil
	case engine.TypeObject:
		if b.Tag() == value.TagObject {
			return b.AsObject()
		}
		return b.Native(), nil
	}
	return nil, errors.Unsupported(errors.PhaseMarshal, "lower to "+t.String())
}

func mismatch(t engine.Type, b value.Box) error {
	return errors.TypeMismatch(errors.PhaseMarshal, nil, b.Tag().String(), t.String())
}
