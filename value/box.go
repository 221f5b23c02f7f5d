package value

import (
	"fmt"
	"math"
	"strconv"

	"github.com/wippyai/script-bridge/engine"
	"github.com/wippyai/script-bridge/errors"
)

// Tag is the runtime type of a Box.
type Tag uint8

const (
	TagNull Tag = iota
	TagBool
	TagInt32
	TagUInt32
	TagInt16
	TagUInt16
	TagInt64
	TagUInt64
	TagFloat32
	TagFloat64
	TagString
	TagEntityID
	TagObject
	TagArray
	TagVec3
	TagQuat
	TagPointer
)

var tagNames = [...]string{
	TagNull:     "null",
	TagBool:     "bool",
	TagInt32:    "int32",
	TagUInt32:   "uint32",
	TagInt16:    "int16",
	TagUInt16:   "uint16",
	TagInt64:    "int64",
	TagUInt64:   "uint64",
	TagFloat32:  "float32",
	TagFloat64:  "float64",
	TagString:   "string",
	TagEntityID: "entity-id",
	TagObject:   "object",
	TagArray:    "array",
	TagVec3:     "vec3",
	TagQuat:     "quat",
	TagPointer:  "pointer",
}

func (t Tag) String() string {
	if int(t) < len(tagNames) {
		return tagNames[t]
	}
	return "tag(" + strconv.Itoa(int(t)) + ")"
}

// Vec3 is a position, euler rotation or scale.
type Vec3 struct {
	X, Y, Z float32
}

// Quat is a rotation quaternion.
type Quat struct {
	W, X, Y, Z float32
}

// IdentityQuat is the rotation that does nothing.
var IdentityQuat = Quat{W: 1}

// Box is an immutable tagged value that can cross the native/managed
// boundary. The zero Box is null.
type Box struct {
	data any
	tag  Tag
}

func Null() Box { return Box{} }
func Bool(v bool) Box { return Box{tag: TagBool, data: v} }
func Int32(v int32) Box { return Box{tag: TagInt32, data: v} }

// Int boxes a Go int as Int32, failing when it does not fit.
func Int(v int) (Box, error) {
	if v < math.MinInt32 || v > math.MaxInt32 {
		return Box{}, errors.New(errors.PhaseMarshal, errors.KindOutOfBounds).
			GoType("int").
			ManagedType("int").
			Value(v).
			Detail("%d overflows int32", v).
			Build()
	}
	return Int32(int32(v)), nil
}
func UInt32(v uint32) Box { return Box{tag: TagUInt32, data: v} }
func Int16(v int16) Box { return Box{tag: TagInt16, data: v} }
func UInt16(v uint16) Box { return Box{tag: TagUInt16, data: v} }
func Int64(v int64) Box { return Box{tag: TagInt64, data: v} }
func UInt64(v uint64) Box { return Box{tag: TagUInt64, data: v} }
func Float32(v float32) Box { return Box{tag: TagFloat32, data: v} }
func Float64(v float64) Box { return Box{tag: TagFloat64, data: v} }
func String(v string) Box { return Box{tag: TagString, data: v} }
func EntityID(v uint32) Box { return Box{tag: TagEntityID, data: v} }
func FromVec3(v Vec3) Box { return Box{tag: TagVec3, data: v} }
func FromQuat(v Quat) Box { return Box{tag: TagQuat, data: v} }
func Pointer(p any) Box { return Box{tag: TagPointer, data: p} }

// Object boxes a managed object reference; a nil object is null.
func Object(o engine.Object) Box {
	if o == nil {
		return Null()
	}
	return Box{tag: TagObject, data: o}
}

// Array boxes a copy of items.
func Array(items ...Box) Box {
	cp := make([]Box, len(items))
	copy(cp, items)
	return Box{tag: TagArray, data: cp}
}

// Tag returns the runtime type of the box.
func (b Box) Tag() Tag { return b.tag }

func (b Box) IsNull() bool { return b.tag == TagNull }

func (b Box) mismatch(want Tag) error {
	return errors.New(errors.PhaseMarshal, errors.KindTypeMismatch).
		GoType(b.tag.String()).
		Detail("box holds %s, not %s", b.tag, want).
		Build()
}

func (b Box) AsBool() (bool, error) {
	if b.tag != TagBool {
		return false, b.mismatch(TagBool)
	}
	return b.data.(bool), nil
}

func (b Box) AsInt32() (int32, error) {
	if b.tag != TagInt32 {
		return 0, b.mismatch(TagInt32)
	}
	return b.data.(int32), nil
}

func (b Box) AsUInt32() (uint32, error) {
	if b.tag != TagUInt32 {
		return 0, b.mismatch(TagUInt32)
	}
	return b.data.(uint32), nil
}

func (b Box) AsInt16() (int16, error) {
	if b.tag != TagInt16 {
		return 0, b.mismatch(TagInt16)
	}
	return b.data.(int16), nil
}

func (b Box) AsUInt16() (uint16, error) {
	if b.tag != TagUInt16 {
		return 0, b.mismatch(TagUInt16)
	}
	return b.data.(uint16), nil
}

func (b Box) AsInt64() (int64, error) {
	if b.tag != TagInt64 {
		return 0, b.mismatch(TagInt64)
	}
	return b.data.(int64), nil
}

func (b Box) AsUInt64() (uint64, error) {
	if b.tag != TagUInt64 {
		return 0, b.mismatch(TagUInt64)
	}
	return b.data.(uint64), nil
}

func (b Box) AsFloat32() (float32, error) {
	if b.tag != TagFloat32 {
		return 0, b.mismatch(TagFloat32)
	}
	return b.data.(float32), nil
}

func (b Box) AsFloat64() (float64, error) {
	if b.tag != TagFloat64 {
		return 0, b.mismatch(TagFloat64)
	}
	return b.data.(float64), nil
}

func (b Box) AsString() (string, error) {
	if b.tag != TagString {
		return "", b.mismatch(TagString)
	}
	return b.data.(string), nil
}

func (b Box) AsEntityID() (uint32, error) {
	if b.tag != TagEntityID {
		return 0, b.mismatch(TagEntityID)
	}
	return b.data.(uint32), nil
}

func (b Box) AsObject() (engine.Object, error) {
	if b.tag != TagObject {
		return nil, b.mismatch(TagObject)
	}
	return b.data.(engine.Object), nil
}

// AsArray returns a copy of the array elements.
func (b Box) AsArray() ([]Box, error) {
	if b.tag != TagArray {
		return nil, b.mismatch(TagArray)
	}
	items := b.data.([]Box)
	cp := make([]Box, len(items))
	copy(cp, items)
	return cp, nil
}

func (b Box) AsVec3() (Vec3, error) {
	if b.tag != TagVec3 {
		return Vec3{}, b.mismatch(TagVec3)
	}
	return b.data.(Vec3), nil
}

func (b Box) AsQuat() (Quat, error) {
	if b.tag != TagQuat {
		return Quat{}, b.mismatch(TagQuat)
	}
	return b.data.(Quat), nil
}

func (b Box) AsPointer() (any, error) {
	if b.tag != TagPointer {
		return nil, b.mismatch(TagPointer)
	}
	return b.data, nil
}

// Native returns the Go payload. Arrays unwrap to []any.
func (b Box) Native() any {
	if b.tag == TagArray {
		items := b.data.([]Box)
		out := make([]any, len(items))
		for i, it := range items {
			out[i] = it.Native()
		}
		return out
	}
	return b.data
}

func (b Box) String() string {
	switch b.tag {
	case TagNull:
		return "null"
	case TagString:
		return strconv.Quote(b.data.(string))
	case TagEntityID:
		return fmt.Sprintf("entity(%d)", b.data)
	case TagObject:
		return "object(" + b.data.(engine.Object).Class().FullName() + ")"
	default:
		return fmt.Sprintf("%v", b.data)
	}
}

// From boxes a Go value, inferring the tag from its dynamic type.
func From(v any) (Box, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case Box:
		return x, nil
	case bool:
		return Bool(x), nil
	case int32:
		return Int32(x), nil
	case int:
		return Int(x)
	case uint32:
		return UInt32(x), nil
	case int16:
		return Int16(x), nil
	case uint16:
		return UInt16(x), nil
	case int64:
		return Int64(x), nil
	case uint64:
		return UInt64(x), nil
	case float32:
		return Float32(x), nil
	case float64:
		return Float64(x), nil
	case string:
		return String(x), nil
	case Vec3:
		return FromVec3(x), nil
	case Quat:
		return FromQuat(x), nil
	case engine.Object:
		return Object(x), nil
	case []Box:
		return Array(x...), nil
	case []any:
		items := make([]Box, len(x))
		for i, it := range x {
			bx, err := From(it)
			if err != nil {
				return Box{}, err
			}
			items[i] = bx
		}
		return Box{tag: TagArray, data: items}, nil
	default:
		return Box{}, errors.New(errors.PhaseMarshal, errors.KindUnsupported).
			GoType(fmt.Sprintf("%T", v)).
			Detail("no box tag for Go type").
			Build()
	}
}
