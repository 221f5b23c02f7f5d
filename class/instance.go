package class

import (
	"github.com/wippyai/script-bridge/engine"
	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/resource"
)

// Instance is a live managed object plus the domain that owns it. It is
// owned by whoever created it and holds a reference on its class.
type Instance struct {
	class    *Descriptor
	object   engine.Object
	domain   engine.Domain
	handle   resource.Handle
	dropped  bool
	released bool
}

// Class returns the descriptor of the instance's class.
func (i *Instance) Class() *Descriptor { return i.class }

// Handle is the instance's handle in its module.
func (i *Instance) Handle() resource.Handle { return i.handle }

// Domain returns the owning domain.
func (i *Instance) Domain() engine.Domain { return i.domain }

// Alive reports whether the object may still be dereferenced. Instances die
// when released, when their class is destroyed without collection, or when
// their domain is torn down.
func (i *Instance) Alive() bool {
	return !i.dropped && i.domain.Alive()
}

// Object returns the underlying managed object.
func (i *Instance) Object() (engine.Object, error) {
	if i.dropped {
		return nil, errors.Released(errors.PhaseInvoke, "instance")
	}
	if !i.domain.Alive() {
		return nil, errors.DomainUnloaded(errors.PhaseInvoke, i.domain.Name())
	}
	return i.object, nil
}

// Drop invalidates the instance when its handle leaves the module table.
func (i *Instance) Drop() {
	i.dropped = true
}

// Release drops the instance and its reference on the class. Releasing
// twice is a no-op.
func (i *Instance) Release() {
	if i.released {
		return
	}
	i.released = true
	m := i.class.Module()
	if m != nil && !i.dropped {
		m.objects.Remove(i.handle)
	}
	i.dropped = true

	collect := m != nil && m.collect
	i.class.Release(collect)
}
