// Package transcoder converts between boxed values and the native argument
// form an engine accepts.
//
// Lowering is driven by the declared parameter types of a resolved method,
// not by the box tags alone. The resolver has already checked that every
// supplied tag is compatible, so lowering only has to pick the native Go
// representation:
//
//	Declared   Accepted tags          Native form
//	───────────────────────────────────────────────
//	bool       bool                   bool
//	short      int16                  int16
//	ushort     uint16                 uint16
//	int        int32                  int32
//	uint       uint32, entity-id      uint32
//	long       int64                  int64
//	ulong      uint64                 uint64
//	float      float32                float32
//	double     float64                float64
//	string     string, null           string
//	object     any                    engine.Object or Go payload
//	array      array, null            []any
//	Vec3       vec3                   value.Vec3
//	Quat       quat                   value.Quat
//	IntPtr     pointer                payload
//
// Declared parameters beyond the supplied arguments are filled with the
// parameter default, or the zero value of its type.
//
// Lifting goes the other way and boxes an engine result by the declared
// result type of the method, field or property.
package transcoder
