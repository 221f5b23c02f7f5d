package class

import (
	"context"
	"sync"
	"weak"

	"go.uber.org/zap"

	"github.com/wippyai/script-bridge/engine"
	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/resolve"
	"github.com/wippyai/script-bridge/resource"
)

// ModuleConfig configures a Module.
type ModuleConfig struct {
	// Exceptions receives managed exceptions raised by constructors.
	Exceptions engine.ExceptionHandler
	Name       string
	// CollectOnRelease makes Instance.Release force a collection pass when
	// it drops the last reference to a class.
	CollectOnRelease bool
}

// Module owns the class descriptors of one domain. The registry holds weak
// references; callers hold the counted strong ones.
type Module struct {
	domain     engine.Domain
	exceptions engine.ExceptionHandler
	classes    map[string]weak.Pointer[Descriptor]
	tables     *resolve.Cache
	objects    *resource.Table
	name       string
	nextID     uint32
	collect    bool
	mu         sync.Mutex
}

// NewModule creates the class registry for d.
func NewModule(d engine.Domain, cfg ModuleConfig) *Module {
	name := cfg.Name
	if name == "" {
		name = d.Name()
	}
	return &Module{
		domain:     d,
		exceptions: cfg.Exceptions,
		classes:    make(map[string]weak.Pointer[Descriptor]),
		tables:     resolve.NewCache(),
		objects:    resource.NewTable(),
		name:       name,
		collect:    cfg.CollectOnRelease,
	}
}

func (m *Module) Name() string { return m.name }

// Domain returns the domain the module's classes live in.
func (m *Module) Domain() engine.Domain { return m.domain }

// SetExceptionHandler replaces the handler for constructor exceptions.
func (m *Module) SetExceptionHandler(h engine.ExceptionHandler) {
	m.mu.Lock()
	m.exceptions = h
	m.mu.Unlock()
}

func (m *Module) handleException(ex *engine.Exception) {
	m.mu.Lock()
	h := m.exceptions
	m.mu.Unlock()
	if h != nil {
		h.HandleException(ex)
	}
}

// Class returns a counted reference to the descriptor of namespace.name,
// creating it on first reference. The caller must Release it.
func (m *Module) Class(namespace, name string) (*Descriptor, error) {
	if !m.domain.Alive() {
		return nil, errors.DomainUnloaded(errors.PhaseResolve, m.domain.Name())
	}
	def, ok := m.domain.Class(namespace, name)
	if !ok {
		return nil, errors.NotFound(errors.PhaseResolve, "class", joinName(namespace, name))
	}
	return m.ClassOf(def), nil
}

// ClassOf returns a counted reference to the descriptor of def.
func (m *Module) ClassOf(def *engine.ClassDef) *Descriptor {
	full := def.FullName()

	m.mu.Lock()
	defer m.mu.Unlock()

	if wp, ok := m.classes[full]; ok {
		if d := wp.Value(); d != nil && d.def == def {
			d.AddRef()
			return d
		}
	}

	m.nextID++
	d := &Descriptor{
		def:    def,
		module: weak.Make(m),
		table:  m.tables.For(def),
		id:     m.nextID,
		refs:   1,
	}
	m.classes[full] = weak.Make(d)
	Logger().Debug("class descriptor created",
		zap.String("module", m.name),
		zap.String("class", full))
	return d
}

// ClassCount returns the number of live descriptors in the registry.
func (m *Module) ClassCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for full, wp := range m.classes {
		if wp.Value() == nil {
			delete(m.classes, full)
			continue
		}
		n++
	}
	return n
}

// Lookup returns the registered descriptor of a full class name without
// taking a reference.
func (m *Module) Lookup(fullName string) (*Descriptor, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wp, ok := m.classes[fullName]
	if !ok {
		return nil, false
	}
	d := wp.Value()
	return d, d != nil
}

// onClassReleased deregisters d once its last reference is gone.
func (m *Module) onClassReleased(d *Descriptor) {
	full := d.def.FullName()

	m.mu.Lock()
	if wp, ok := m.classes[full]; ok && wp.Value() == d {
		delete(m.classes, full)
	}
	m.mu.Unlock()

	m.tables.Forget(d.def)
	Logger().Debug("class descriptor released",
		zap.String("module", m.name),
		zap.String("class", full))
}

// invalidateObjects drops every object handle of class id.
func (m *Module) invalidateObjects(id uint32) {
	var stale []resource.Handle
	m.objects.Each(func(h resource.Handle, typeID uint32, _ any) bool {
		if typeID == id {
			stale = append(stale, h)
		}
		return true
	})
	for _, h := range stale {
		m.objects.Remove(h)
	}
}

// Instance returns the live instance registered under h.
func (m *Module) Instance(h resource.Handle) (*Instance, bool) {
	v, ok := m.objects.Get(h)
	if !ok {
		return nil, false
	}
	return v.(*Instance), true
}

// InstanceCount returns the number of live instances.
func (m *Module) InstanceCount() int { return m.objects.Len() }

func (m *Module) register(inst *Instance) {
	inst.handle = m.objects.Insert(inst.class.id, inst)
}

// Close invalidates every instance and forgets all descriptors. The domain
// itself is left to its owner.
func (m *Module) Close(ctx context.Context) error {
	err := m.objects.Close()
	m.mu.Lock()
	for full := range m.classes {
		delete(m.classes, full)
	}
	m.mu.Unlock()
	return err
}

func joinName(namespace, name string) string {
	if namespace == "" {
		return name
	}
	return namespace + "." + name
}
