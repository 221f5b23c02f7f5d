package class

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/script-bridge/engine"
	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/value"
)

func newDomain(t *testing.T) engine.Domain {
	t.Helper()
	ctx := context.Background()

	d, err := engine.NewGoEngine().CreateDomain(ctx, "test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close(ctx) })

	src := &engine.GoSource{
		Name: "Game.dll",
		Classes: []*engine.GoClass{
			{Namespace: "Game", Name: "Plain"},
			{
				Namespace: "Game",
				Name:      "Player",
				Fields:    []engine.GoField{{Name: "name", Type: engine.TypeString}},
				Methods: []engine.GoMethod{
					{Name: "Player", Params: []engine.Param{{Name: "name", Type: engine.TypeString}}, Fn: func(c *engine.Call) (any, error) {
						if c.Arg(0) == "" {
							return nil, engine.Throw("System.ArgumentException", "name is empty")
						}
						c.This.Set("name", c.Arg(0))
						return nil, nil
					}},
				},
			},
			{Namespace: "Game", Name: "Vec", ValueType: true},
		},
	}
	_, err = d.Load(ctx, src)
	require.NoError(t, err)
	return d
}

func TestModule_ClassIsSharedAndCounted(t *testing.T) {
	m := NewModule(newDomain(t), ModuleConfig{})

	a, err := m.Class("Game", "Player")
	require.NoError(t, err)
	b, err := m.Class("Game", "Player")
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Equal(t, int32(2), a.Refs())
	assert.Equal(t, 1, m.ClassCount())
	assert.Equal(t, "Game.Player", a.FullName())
	assert.Equal(t, "Player", a.Name())
	assert.Equal(t, "Game", a.Namespace())

	_, err = m.Class("Game", "Missing")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestDescriptor_ReleaseDeregisters(t *testing.T) {
	ctx := context.Background()
	m := NewModule(newDomain(t), ModuleConfig{})

	d, err := m.Class("Game", "Player")
	require.NoError(t, err)

	inst, err := d.CreateInstance(ctx, value.NewArgs(value.String("p1")))
	require.NoError(t, err)
	assert.Equal(t, int32(2), d.Refs())
	assert.Equal(t, 1, m.InstanceCount())

	inst.Release()
	assert.Equal(t, int32(1), d.Refs())
	assert.Equal(t, 1, m.ClassCount())

	d.Release(true)
	assert.Equal(t, 0, m.ClassCount())
	assert.False(t, d.Alive())
	_, ok := m.Lookup("Game.Player")
	assert.False(t, ok)

	again, err := m.Class("Game", "Player")
	require.NoError(t, err)
	assert.NotSame(t, d, again)
	assert.Equal(t, int32(1), again.Refs())
}

func TestDescriptor_ReleaseWithoutCollectionInvalidatesObjects(t *testing.T) {
	ctx := context.Background()
	m := NewModule(newDomain(t), ModuleConfig{})

	d, err := m.Class("Game", "Plain")
	require.NoError(t, err)
	inst, err := d.CreateInstance(ctx, value.NewArgs())
	require.NoError(t, err)

	d.Release(false)
	d.Release(false)

	assert.False(t, inst.Alive())
	_, err = inst.Object()
	assert.ErrorIs(t, err, errors.ErrReleased)
	assert.Equal(t, 0, m.InstanceCount())

	_, err = d.CreateInstance(ctx, value.NewArgs())
	assert.ErrorIs(t, err, errors.ErrReleased)
}

func TestDescriptor_CreateInstance(t *testing.T) {
	ctx := context.Background()
	var raised []*engine.Exception
	m := NewModule(newDomain(t), ModuleConfig{
		Exceptions: engine.ExceptionHandlerFunc(func(ex *engine.Exception) { raised = append(raised, ex) }),
	})

	d, err := m.Class("Game", "Player")
	require.NoError(t, err)
	defer d.Release(true)

	inst, err := d.CreateInstance(ctx, value.NewArgs(value.String("hero")))
	require.NoError(t, err)
	defer inst.Release()

	obj, err := inst.Object()
	require.NoError(t, err)
	assert.Equal(t, "hero", obj.(*engine.GoObject).Get("name"))

	got, ok := m.Instance(inst.Handle())
	require.True(t, ok)
	assert.Same(t, inst, got)

	// no constructor takes zero arguments
	_, err = d.CreateInstance(ctx, value.NewArgs())
	assert.ErrorIs(t, err, errors.ErrConstruction)
	assert.ErrorIs(t, err, errors.ErrOverloadNotFound)

	_, err = d.CreateInstance(ctx, value.NewArgs(value.Int32(1)))
	assert.ErrorIs(t, err, errors.ErrConstruction)

	// constructor throws
	_, err = d.CreateInstance(ctx, value.NewArgs(value.String("")))
	assert.ErrorIs(t, err, errors.ErrConstruction)
	require.Len(t, raised, 1)
	assert.Equal(t, "System.ArgumentException", raised[0].Type)

	assert.Equal(t, int32(2), d.Refs())
}

func TestDescriptor_ImplicitDefaultConstructor(t *testing.T) {
	ctx := context.Background()
	m := NewModule(newDomain(t), ModuleConfig{})

	d, err := m.Class("Game", "Plain")
	require.NoError(t, err)

	inst, err := d.CreateInstance(ctx, value.NewArgs())
	require.NoError(t, err)
	assert.True(t, inst.Alive())

	_, err = d.CreateInstance(ctx, value.NewArgs(value.Int32(1)))
	assert.ErrorIs(t, err, errors.ErrConstruction)
}

func TestDescriptor_Box(t *testing.T) {
	m := NewModule(newDomain(t), ModuleConfig{})

	vec, err := m.Class("Game", "Vec")
	require.NoError(t, err)
	inst, err := vec.Box(value.Vec3{X: 1, Y: 2, Z: 3})
	require.NoError(t, err)

	obj, err := inst.Object()
	require.NoError(t, err)
	assert.Equal(t, value.Vec3{X: 1, Y: 2, Z: 3}, obj.(*engine.GoObject).Value())

	plain, err := m.Class("Game", "Plain")
	require.NoError(t, err)
	_, err = plain.Box(1)
	assert.Error(t, err)
}

func TestInstance_DomainClose(t *testing.T) {
	ctx := context.Background()
	dom := newDomain(t)
	m := NewModule(dom, ModuleConfig{})

	d, err := m.Class("Game", "Plain")
	require.NoError(t, err)
	inst, err := d.CreateInstance(ctx, value.NewArgs())
	require.NoError(t, err)

	require.NoError(t, dom.Close(ctx))

	assert.False(t, inst.Alive())
	assert.False(t, d.Alive())
	_, err = inst.Object()
	assert.ErrorIs(t, err, errors.ErrDomainUnloaded)

	_, err = m.Class("Game", "Plain")
	assert.ErrorIs(t, err, errors.ErrDomainUnloaded)

	inst.Release()
	inst.Release()
	assert.Equal(t, int32(1), d.Refs())
}

func TestInstance_ReleaseCollectsWhenConfigured(t *testing.T) {
	ctx := context.Background()
	m := NewModule(newDomain(t), ModuleConfig{CollectOnRelease: true})

	d, err := m.Class("Game", "Plain")
	require.NoError(t, err)
	inst, err := d.CreateInstance(ctx, value.NewArgs())
	require.NoError(t, err)

	d.Release(false)
	assert.Equal(t, 1, m.ClassCount())

	inst.Release()
	assert.Equal(t, 0, m.ClassCount())
}
