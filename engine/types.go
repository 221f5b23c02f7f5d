package engine

import (
	"context"
	"strings"
)

// Type is the managed type kind of a parameter, field, property or result.
type Type uint8

const (
	TypeVoid Type = iota
	TypeBoolean
	TypeI2
	TypeU2
	TypeI4
	TypeU4
	TypeI8
	TypeU8
	TypeR4
	TypeR8
	TypeString
	TypeObject
	TypeArray
	TypeVec3
	TypeQuat
	TypePointer
)

var typeNames = [...]string{
	TypeVoid:    "void",
	TypeBoolean: "bool",
	TypeI2:      "short",
	TypeU2:      "ushort",
	TypeI4:      "int",
	TypeU4:      "uint",
	TypeI8:      "long",
	TypeU8:      "ulong",
	TypeR4:      "float",
	TypeR8:      "double",
	TypeString:  "string",
	TypeObject:  "object",
	TypeArray:   "array",
	TypeVec3:    "Vec3",
	TypeQuat:    "Quat",
	TypePointer: "IntPtr",
}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "unknown"
}

// IsReference reports whether a null reference is a valid value of t.
func (t Type) IsReference() bool {
	return t == TypeString || t == TypeObject || t == TypeArray || t == TypePointer
}

// Param is a declared method parameter.
type Param struct {
	// Default fills the slot when the caller supplies fewer arguments than
	// declared. Nil means the zero value of Type.
	Default any
	Name    string
	Type    Type
}

// MethodDef describes a method in declaration order on its class. Constructors
// are methods whose Name equals the class name.
type MethodDef struct {
	// Impl is engine-private call data (a Go function, a wasm export name).
	Impl   any
	Class  *ClassDef
	Name   string
	Params []Param
	Result Type
	Static bool
}

// FullName returns Namespace.Class::Method.
func (m *MethodDef) FullName() string {
	if m.Class == nil {
		return m.Name
	}
	return m.Class.FullName() + "::" + m.Name
}

// Signature renders the method as "Name(int, string)".
func (m *MethodDef) Signature() string {
	var b strings.Builder
	b.WriteString(m.Name)
	b.WriteByte('(')
	for i, p := range m.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.Type.String())
	}
	b.WriteByte(')')
	return b.String()
}

// IsConstructor reports whether m constructs instances of its class.
func (m *MethodDef) IsConstructor() bool {
	return m.Class != nil && !m.Static && m.Name == m.Class.Name
}

// FieldDef describes a field.
type FieldDef struct {
	Default any
	Impl    any
	Class   *ClassDef
	Name    string
	Type    Type
	Static  bool
}

// PropertyDef describes a property backed by accessor methods. Either
// accessor may be nil for read-only or write-only properties.
type PropertyDef struct {
	Getter *MethodDef
	Setter *MethodDef
	Class  *ClassDef
	Name   string
	Type   Type
	Static bool
}

// ClassDef is the metadata of a managed class as reported by an engine.
// A nil Parent means the class derives directly from the root object class.
type ClassDef struct {
	Parent     *ClassDef
	Namespace  string
	Name       string
	Assembly   string
	Methods    []*MethodDef
	Fields     []*FieldDef
	Properties []*PropertyDef
	// ValueType marks struct-like classes that Box may wrap.
	ValueType bool
}

// FullName returns Namespace.Name, or Name for the global namespace.
func (c *ClassDef) FullName() string {
	if c.Namespace == "" {
		return c.Name
	}
	return c.Namespace + "." + c.Name
}

// IsSubclassOf reports whether c is base or derives from it.
func (c *ClassDef) IsSubclassOf(base *ClassDef) bool {
	for k := c; k != nil; k = k.Parent {
		if k == base {
			return true
		}
	}
	return false
}

// Object is a live managed object owned by a domain.
type Object interface {
	Class() *ClassDef
}

// Source describes an assembly that a domain can load. Each engine accepts
// its own source type.
type Source interface {
	AssemblyName() string
}

// NativeFunc is a host operation callable from managed code.
type NativeFunc func(ctx context.Context, args ...any) (any, error)

// NativeCaller lets managed code call named host operations.
type NativeCaller interface {
	CallNative(ctx context.Context, name string, args ...any) (any, error)
}

// Engine creates isolated managed execution domains.
type Engine interface {
	Name() string
	CreateDomain(ctx context.Context, name string) (Domain, error)
	Close(ctx context.Context) error
}

// Domain is an isolated managed execution context. All methods must be called
// from the host's update thread.
type Domain interface {
	Name() string
	Alive() bool

	// Load makes the classes of src available and returns them in declaration order.
	Load(ctx context.Context, src Source) ([]*ClassDef, error)
	Class(namespace, name string) (*ClassDef, bool)
	Classes() []*ClassDef

	// NewObject allocates an instance without running a constructor.
	NewObject(ctx context.Context, c *ClassDef) (Object, error)

	// Invoke calls m with already-marshaled native args. A managed exception
	// is returned as *Exception.
	Invoke(ctx context.Context, m *MethodDef, this Object, args []any) (any, error)

	LoadField(ctx context.Context, f *FieldDef, this Object) (any, error)
	StoreField(ctx context.Context, f *FieldDef, this Object, v any) error

	// Box wraps a native value as an object of a value-type class.
	Box(c *ClassDef, v any) (Object, error)

	// Collect runs a collection pass if the engine has one.
	Collect()

	// SetNatives installs the host operations managed code may call.
	SetNatives(n NativeCaller)

	// Close tears the domain down. Objects and classes of a closed domain
	// must not be used.
	Close(ctx context.Context) error
}
