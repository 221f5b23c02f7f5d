package resolve

import (
	"github.com/wippyai/script-bridge/engine"
	"github.com/wippyai/script-bridge/value"
)

// accepts lists the box tags each declared type accepts. Types missing from
// the table accept only null (reference types) or nothing.
var accepts = map[engine.Type][]value.Tag{
	engine.TypeBoolean: {value.TagBool},
	engine.TypeI4:      {value.TagInt32},
	engine.TypeU4:      {value.TagUInt32, value.TagEntityID},
	engine.TypeI2:      {value.TagInt16},
	engine.TypeU2:      {value.TagUInt16},
	engine.TypeString:  {value.TagString},
	engine.TypeI8:      {value.TagInt64},
	engine.TypeU8:      {value.TagUInt64},
	engine.TypeR4:      {value.TagFloat32},
	engine.TypeR8:      {value.TagFloat64},
	engine.TypeArray:   {value.TagArray},
	engine.TypeVec3:    {value.TagVec3},
	engine.TypeQuat:    {value.TagQuat},
	engine.TypePointer: {value.TagPointer},
}

// Compatible reports whether a box tagged tag may be passed for a parameter
// declared as t.
func Compatible(t engine.Type, tag value.Tag) bool {
	if t == engine.TypeObject {
		return true
	}
	if tag == value.TagNull {
		return t.IsReference()
	}
	for _, ok := range accepts[t] {
		if ok == tag {
			return true
		}
	}
	return false
}

// matches reports whether m accepts args under the compatibility table.
func matches(m *engine.MethodDef, args value.Args) bool {
	n := args.Len()
	if len(m.Params) == 0 {
		return n == 0
	}
	if n == 0 || len(m.Params) < n {
		return false
	}

	checked := 0
	for i, p := range m.Params {
		if i >= n {
			break
		}
		b, err := args.At(i)
		if err != nil || !Compatible(p.Type, b.Tag()) {
			return false
		}
		checked++
	}
	return checked == n
}
