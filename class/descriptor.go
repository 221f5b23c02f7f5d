package class

import (
	"context"
	stderrors "errors"
	"weak"

	"go.uber.org/zap"

	"github.com/wippyai/script-bridge/engine"
	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/resolve"
	"github.com/wippyai/script-bridge/transcoder"
	"github.com/wippyai/script-bridge/value"
)

// Descriptor is a reference-counted handle to a managed class. It is created
// by Module.Class and destroyed when the last reference is released.
type Descriptor struct {
	def    *engine.ClassDef
	module weak.Pointer[Module]
	table  *resolve.Table
	id     uint32
	refs   int32
}

// Def returns the class metadata, or nil after destruction.
func (d *Descriptor) Def() *engine.ClassDef { return d.def }

// Table returns the method table used for resolution.
func (d *Descriptor) Table() *resolve.Table { return d.table }

func (d *Descriptor) Name() string      { return d.def.Name }
func (d *Descriptor) Namespace() string { return d.def.Namespace }
func (d *Descriptor) FullName() string  { return d.def.FullName() }

// ID is the class id used to tag instance handles within the module.
func (d *Descriptor) ID() uint32 { return d.id }

// Refs returns the current reference count.
func (d *Descriptor) Refs() int32 { return d.refs }

// Module returns the owning module, or nil if it has been collected.
func (d *Descriptor) Module() *Module { return d.module.Value() }

// Alive reports whether the descriptor may still be used: it holds
// references and its domain has not been torn down.
func (d *Descriptor) Alive() bool {
	if d.refs <= 0 || d.def == nil {
		return false
	}
	m := d.module.Value()
	return m != nil && m.domain.Alive()
}

// AddRef takes another counted reference.
func (d *Descriptor) AddRef() { d.refs++ }

// Release drops one reference. At zero the descriptor deregisters from its
// module and is destroyed. With triggerCollection the domain runs a
// collection pass; without it, live object handles of the class are
// invalidated first so they cannot be dereferenced afterwards.
func (d *Descriptor) Release(triggerCollection bool) {
	if d.refs <= 0 {
		return
	}
	d.refs--
	if d.refs > 0 {
		return
	}

	m := d.module.Value()
	if m != nil {
		if triggerCollection {
			if m.domain.Alive() {
				m.domain.Collect()
			}
		} else {
			m.invalidateObjects(d.id)
		}
		m.onClassReleased(d)
	}

	d.def = nil
	d.table = nil
}

func (d *Descriptor) check(phase errors.Phase) (*Module, error) {
	if d.def == nil || d.refs <= 0 {
		return nil, errors.Released(phase, "class descriptor")
	}
	m := d.module.Value()
	if m == nil {
		return nil, errors.Released(phase, "module of "+d.def.FullName())
	}
	if !m.domain.Alive() {
		return nil, errors.DomainUnloaded(phase, m.domain.Name())
	}
	return m, nil
}

// CreateInstance allocates an object and runs the constructor that resolves
// for args. A class without any declared constructor accepts an empty
// argument list. The instance holds a reference to d until released.
func (d *Descriptor) CreateInstance(ctx context.Context, args value.Args) (*Instance, error) {
	m, err := d.check(errors.PhaseConstruct)
	if err != nil {
		return nil, err
	}

	ctor, ok := d.table.Constructor(args)
	if !ok && (d.table.HasConstructor() || args.Len() > 0) {
		miss := d.table.Miss(d.def.Name, args)
		Logger().Warn("no matching constructor",
			zap.String("class", d.def.FullName()),
			zap.Strings("args", args.Tags()))
		return nil, errors.Construction(d.def.FullName(), miss)
	}

	obj, err := m.domain.NewObject(ctx, d.def)
	if err != nil {
		return nil, d.constructionFailed(m, err)
	}

	if ctor != nil {
		slots, err := transcoder.Lower(ctor.Params, args)
		if err != nil {
			return nil, errors.Construction(d.def.FullName(), err)
		}
		if _, err := m.domain.Invoke(ctx, ctor, obj, slots); err != nil {
			return nil, d.constructionFailed(m, err)
		}
	}

	return d.adopt(m, obj), nil
}

func (d *Descriptor) constructionFailed(m *Module, err error) error {
	var ex *engine.Exception
	if stderrors.As(err, &ex) {
		m.handleException(ex)
	}
	return errors.Construction(d.def.FullName(), err)
}

// Box wraps a native value as an object of this value-type class.
func (d *Descriptor) Box(v any) (*Instance, error) {
	m, err := d.check(errors.PhaseMarshal)
	if err != nil {
		return nil, err
	}
	obj, err := m.domain.Box(d.def, v)
	if err != nil {
		return nil, err
	}
	return d.adopt(m, obj), nil
}

func (d *Descriptor) adopt(m *Module, obj engine.Object) *Instance {
	d.AddRef()
	inst := &Instance{class: d, object: obj, domain: m.domain}
	m.register(inst)
	return inst
}
