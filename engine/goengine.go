package engine

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/wippyai/script-bridge/errors"
)

// GoFunc implements a managed method in Go. Returning an *Exception (or any
// other error, or panicking) raises a managed exception.
type GoFunc func(c *Call) (any, error)

// Call is the invocation frame handed to a GoFunc.
type Call struct {
	Ctx    context.Context
	Domain *GoDomain
	Method *MethodDef
	This   *GoObject
	Args   []any
}

// Arg returns the i-th argument or nil.
func (c *Call) Arg(i int) any {
	if i < 0 || i >= len(c.Args) {
		return nil
	}
	return c.Args[i]
}

// Native calls a host operation registered with the script system.
func (c *Call) Native(name string, args ...any) (any, error) {
	if c.Domain.natives == nil {
		return nil, errors.NotFound(errors.PhaseHost, "native binding", name)
	}
	return c.Domain.natives.CallNative(c.Ctx, name, args...)
}

// GoSource declares an assembly of classes implemented in Go.
type GoSource struct {
	Name    string
	Classes []*GoClass
}

func (s *GoSource) AssemblyName() string { return s.Name }

// GoClass declares one class. Parent is the full name of a class loaded
// earlier in the same domain; empty derives from the root object class.
type GoClass struct {
	Namespace  string
	Name       string
	Parent     string
	Methods    []GoMethod
	Fields     []GoField
	Properties []GoProperty
	ValueType  bool
}

type GoMethod struct {
	Fn     GoFunc
	Name   string
	Params []Param
	Result Type
	Static bool
}

type GoField struct {
	Default any
	Name    string
	Type    Type
	Static  bool
}

type GoProperty struct {
	Get    GoFunc
	Set    GoFunc
	Name   string
	Type   Type
	Static bool
}

// GoObject is an instance of a Go-implemented class.
type GoObject struct {
	class  *ClassDef
	fields map[string]any
	value  any
}

func (o *GoObject) Class() *ClassDef { return o.class }

// Get returns an instance field value.
func (o *GoObject) Get(name string) any { return o.fields[name] }

// Set stores an instance field value.
func (o *GoObject) Set(name string, v any) { o.fields[name] = v }

// Value returns the payload of a boxed value-type object.
func (o *GoObject) Value() any { return o.value }

// GoEngine runs managed classes implemented as Go functions in-process.
type GoEngine struct{}

func NewGoEngine() *GoEngine { return &GoEngine{} }

func (e *GoEngine) Name() string { return "go" }

func (e *GoEngine) CreateDomain(ctx context.Context, name string) (Domain, error) {
	Logger().Debug("create domain", zap.String("engine", "go"), zap.String("domain", name))
	return &GoDomain{
		name:    name,
		byName:  make(map[string]*ClassDef),
		statics: make(map[*FieldDef]any),
		alive:   true,
	}, nil
}

func (e *GoEngine) Close(ctx context.Context) error { return nil }

// GoDomain is a domain of the GoEngine.
type GoDomain struct {
	natives NativeCaller
	byName  map[string]*ClassDef
	statics map[*FieldDef]any
	name    string
	classes []*ClassDef
	alive   bool
}

func (d *GoDomain) Name() string { return d.name }

func (d *GoDomain) Alive() bool { return d.alive }

func (d *GoDomain) SetNatives(n NativeCaller) { d.natives = n }

func (d *GoDomain) Load(ctx context.Context, src Source) ([]*ClassDef, error) {
	if !d.alive {
		return nil, errors.DomainUnloaded(errors.PhaseLoad, d.name)
	}
	gs, ok := src.(*GoSource)
	if !ok {
		return nil, errors.New(errors.PhaseLoad, errors.KindTypeMismatch).
			GoType(fmt.Sprintf("%T", src)).
			Detail("go engine loads *GoSource").
			Build()
	}

	loaded := make([]*ClassDef, 0, len(gs.Classes))
	for _, gc := range gs.Classes {
		c, err := d.define(gs.Name, gc)
		if err != nil {
			return nil, errors.Load("load "+gs.Name, err)
		}
		loaded = append(loaded, c)
	}
	d.classes = append(d.classes, loaded...)

	Logger().Debug("assembly loaded",
		zap.String("domain", d.name),
		zap.String("assembly", gs.Name),
		zap.Int("classes", len(loaded)))
	return loaded, nil
}

func (d *GoDomain) define(assembly string, gc *GoClass) (*ClassDef, error) {
	if gc.Name == "" {
		return nil, errors.InvalidInput(errors.PhaseLoad, "class name cannot be empty")
	}
	c := &ClassDef{
		Namespace: gc.Namespace,
		Name:      gc.Name,
		Assembly:  assembly,
		ValueType: gc.ValueType,
	}
	if _, dup := d.byName[c.FullName()]; dup {
		return nil, errors.InvalidInput(errors.PhaseLoad, "class "+c.FullName()+" already defined")
	}
	if gc.Parent != "" {
		parent, ok := d.byName[gc.Parent]
		if !ok {
			return nil, errors.NotFound(errors.PhaseLoad, "parent class", gc.Parent)
		}
		c.Parent = parent
	}

	for _, gm := range gc.Methods {
		if gm.Fn == nil {
			return nil, errors.InvalidInput(errors.PhaseLoad, "method "+c.FullName()+"::"+gm.Name+" has no body")
		}
		c.Methods = append(c.Methods, &MethodDef{
			Impl:   gm.Fn,
			Class:  c,
			Name:   gm.Name,
			Params: gm.Params,
			Result: gm.Result,
			Static: gm.Static,
		})
	}
	for _, gf := range gc.Fields {
		c.Fields = append(c.Fields, &FieldDef{
			Default: gf.Default,
			Class:   c,
			Name:    gf.Name,
			Type:    gf.Type,
			Static:  gf.Static,
		})
	}
	for _, gp := range gc.Properties {
		p := &PropertyDef{Class: c, Name: gp.Name, Type: gp.Type, Static: gp.Static}
		if gp.Get != nil {
			p.Getter = &MethodDef{Impl: gp.Get, Class: c, Name: "get_" + gp.Name, Result: gp.Type, Static: gp.Static}
			c.Methods = append(c.Methods, p.Getter)
		}
		if gp.Set != nil {
			p.Setter = &MethodDef{
				Impl:   gp.Set,
				Class:  c,
				Name:   "set_" + gp.Name,
				Params: []Param{{Name: "value", Type: gp.Type}},
				Static: gp.Static,
			}
			c.Methods = append(c.Methods, p.Setter)
		}
		c.Properties = append(c.Properties, p)
	}

	d.byName[c.FullName()] = c
	return c, nil
}

func (d *GoDomain) Class(namespace, name string) (*ClassDef, bool) {
	full := name
	if namespace != "" {
		full = namespace + "." + name
	}
	c, ok := d.byName[full]
	return c, ok
}

func (d *GoDomain) Classes() []*ClassDef { return d.classes }

func (d *GoDomain) NewObject(ctx context.Context, c *ClassDef) (Object, error) {
	if !d.alive {
		return nil, errors.DomainUnloaded(errors.PhaseConstruct, d.name)
	}
	o := &GoObject{class: c, fields: make(map[string]any)}
	for k := c; k != nil; k = k.Parent {
		for _, f := range k.Fields {
			if f.Static {
				continue
			}
			if _, shadowed := o.fields[f.Name]; shadowed {
				continue
			}
			o.fields[f.Name] = fieldDefault(f)
		}
	}
	return o, nil
}

func (d *GoDomain) Invoke(ctx context.Context, m *MethodDef, this Object, args []any) (result any, err error) {
	if !d.alive {
		return nil, errors.DomainUnloaded(errors.PhaseInvoke, d.name)
	}
	fn, ok := m.Impl.(GoFunc)
	if !ok {
		return nil, errors.Unsupported(errors.PhaseInvoke, "method "+m.FullName()+" is not implemented in Go")
	}

	call := &Call{Ctx: ctx, Domain: d, Method: m, Args: args}
	if !m.Static {
		if this == nil {
			return nil, &Exception{
				Type:    "System.NullReferenceException",
				Message: "instance method called without an object",
				Method:  m.FullName(),
			}
		}
		obj, ok := this.(*GoObject)
		if !ok || !obj.class.IsSubclassOf(m.Class) {
			return nil, errors.New(errors.PhaseInvoke, errors.KindTypeMismatch).
				GoType(fmt.Sprintf("%T", this)).
				ManagedType(m.Class.FullName()).
				Detail("object is not an instance of the declaring class").
				Build()
		}
		call.This = obj
	}

	defer func() {
		if r := recover(); r != nil {
			result = nil
			if ex, ok := r.(*Exception); ok {
				err = stamp(ex, m)
				return
			}
			err = &Exception{
				Type:       "System.Exception",
				Message:    fmt.Sprint(r),
				Method:     m.FullName(),
				StackTrace: string(debug.Stack()),
			}
		}
	}()

	result, err = fn(call)
	if err != nil {
		if ex, ok := err.(*Exception); ok {
			return nil, stamp(ex, m)
		}
		return nil, stamp(&Exception{Type: "System.Exception", Message: err.Error()}, m)
	}
	return result, nil
}

func stamp(ex *Exception, m *MethodDef) *Exception {
	if ex.Method == "" {
		ex.Method = m.FullName()
	}
	if ex.StackTrace == "" {
		ex.StackTrace = "   at " + m.FullName()
	}
	return ex
}

func (d *GoDomain) LoadField(ctx context.Context, f *FieldDef, this Object) (any, error) {
	if !d.alive {
		return nil, errors.DomainUnloaded(errors.PhaseInvoke, d.name)
	}
	if f.Static {
		if v, ok := d.statics[f]; ok {
			return v, nil
		}
		return fieldDefault(f), nil
	}
	obj, err := d.instance(f, this)
	if err != nil {
		return nil, err
	}
	return obj.fields[f.Name], nil
}

func (d *GoDomain) StoreField(ctx context.Context, f *FieldDef, this Object, v any) error {
	if !d.alive {
		return errors.DomainUnloaded(errors.PhaseInvoke, d.name)
	}
	if f.Static {
		d.statics[f] = v
		return nil
	}
	obj, err := d.instance(f, this)
	if err != nil {
		return err
	}
	obj.fields[f.Name] = v
	return nil
}

func (d *GoDomain) instance(f *FieldDef, this Object) (*GoObject, error) {
	obj, ok := this.(*GoObject)
	if !ok || obj == nil {
		return nil, errors.InvalidInput(errors.PhaseInvoke, "instance field "+f.Name+" accessed without an object")
	}
	return obj, nil
}

func (d *GoDomain) Box(c *ClassDef, v any) (Object, error) {
	if !c.ValueType {
		return nil, errors.InvalidInput(errors.PhaseMarshal, c.FullName()+" is not a value type")
	}
	return &GoObject{class: c, fields: make(map[string]any), value: v}, nil
}

func (d *GoDomain) Collect() { runtime.GC() }

func (d *GoDomain) Close(ctx context.Context) error {
	if !d.alive {
		return nil
	}
	d.alive = false
	d.byName = nil
	d.statics = nil
	d.classes = nil
	Logger().Debug("domain closed", zap.String("engine", "go"), zap.String("domain", d.name))
	return nil
}

func fieldDefault(f *FieldDef) any {
	if f.Default != nil {
		return f.Default
	}
	return ZeroValue(f.Type)
}

// ZeroValue returns the Go zero value used for a managed type.
func ZeroValue(t Type) any {
	switch t {
	case TypeBoolean:
		return false
	case TypeI2:
		return int16(0)
	case TypeU2:
		return uint16(0)
	case TypeI4:
		return int32(0)
	case TypeU4:
		return uint32(0)
	case TypeI8:
		return int64(0)
	case TypeU8:
		return uint64(0)
	case TypeR4:
		return float32(0)
	case TypeR8:
		return float64(0)
	default:
		return nil
	}
}
