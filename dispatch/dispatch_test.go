package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/script-bridge/class"
	"github.com/wippyai/script-bridge/engine"
	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/value"
)

type fixture struct {
	module *class.Module
	domain engine.Domain
	calc   *class.Descriptor
	inst   *class.Instance
	disp   *Dispatcher
	logs   *observer.ObservedLogs
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	core, logs := observer.New(zapcore.WarnLevel)
	prev := Logger()
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(prev) })

	f := &fixture{logs: logs}
	f.disp = New(LogSink{Logger: zap.New(core)})

	dom, err := engine.NewGoEngine().CreateDomain(ctx, "test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = dom.Close(ctx) })
	f.domain = dom

	src := &engine.GoSource{
		Name: "Calc.dll",
		Classes: []*engine.GoClass{
			{
				Namespace: "Game",
				Name:      "Base",
				Fields:    []engine.GoField{{Name: "Total", Type: engine.TypeI4}},
				Methods: []engine.GoMethod{
					{Name: "Reset", Fn: func(c *engine.Call) (any, error) {
						c.This.Set("Total", int32(0))
						return nil, nil
					}},
				},
			},
			{
				Namespace: "Game",
				Name:      "Calc",
				Parent:    "Game.Base",
				Fields:    []engine.GoField{{Name: "Version", Type: engine.TypeString, Static: true, Default: "1.0"}},
				Methods: []engine.GoMethod{
					{Name: "Add", Params: []engine.Param{{Name: "n", Type: engine.TypeI4}}, Result: engine.TypeI4, Fn: func(c *engine.Call) (any, error) {
						total := c.This.Get("Total").(int32) + c.Arg(0).(int32)
						c.This.Set("Total", total)
						return total, nil
					}},
					{Name: "Add", Params: []engine.Param{{Name: "s", Type: engine.TypeString}}, Result: engine.TypeString, Fn: func(c *engine.Call) (any, error) {
						return "added " + c.Arg(0).(string), nil
					}},
					{Name: "Fail", Fn: func(c *engine.Call) (any, error) {
						return nil, engine.Throw("System.InvalidOperationException", "cannot do %s", "that")
					}},
					{Name: "Panic", Fn: func(c *engine.Call) (any, error) {
						var m map[string]int
						m["x"] = 1
						return nil, nil
					}},
					{Name: "Max", Static: true, Params: []engine.Param{{Type: engine.TypeI4}, {Type: engine.TypeI4}}, Result: engine.TypeI4, Fn: func(c *engine.Call) (any, error) {
						a, b := c.Arg(0).(int32), c.Arg(1).(int32)
						if a > b {
							return a, nil
						}
						return b, nil
					}},
					{Name: "Entity", Params: []engine.Param{{Type: engine.TypeU4}}, Result: engine.TypeU4, Fn: func(c *engine.Call) (any, error) {
						return c.Arg(0), nil
					}},
				},
				Properties: []engine.GoProperty{
					{
						Name: "Doubled",
						Type: engine.TypeI4,
						Get: func(c *engine.Call) (any, error) {
							return c.This.Get("Total").(int32) * 2, nil
						},
					},
					{
						Name: "Label",
						Type: engine.TypeString,
						Get: func(c *engine.Call) (any, error) {
							return c.This.Get("label"), nil
						},
						Set: func(c *engine.Call) (any, error) {
							if c.Arg(0) == "bad" {
								return nil, engine.Throw("System.ArgumentException", "bad label")
							}
							c.This.Set("label", c.Arg(0))
							return nil, nil
						},
					},
				},
			},
		},
	}
	_, err = dom.Load(ctx, src)
	require.NoError(t, err)

	f.module = class.NewModule(dom, class.ModuleConfig{})
	f.calc, err = f.module.Class("Game", "Calc")
	require.NoError(t, err)
	f.inst, err = f.calc.CreateInstance(ctx, value.NewArgs())
	require.NoError(t, err)
	return f
}

func TestDispatcher_CallResolvesAndLifts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.disp.Call(ctx, f.inst, "Add", value.NewArgs(value.Int32(5)))
	require.NoError(t, err)
	require.True(t, res.HasValue)
	n, err := res.Value.AsInt32()
	require.NoError(t, err)
	assert.Equal(t, int32(5), n)

	res, err = f.disp.Call(ctx, f.inst, "Add", value.NewArgs(value.String("x")))
	require.NoError(t, err)
	s, err := res.Value.AsString()
	require.NoError(t, err)
	assert.Equal(t, "added x", s)

	// inherited from Game.Base
	res, err = f.disp.Call(ctx, f.inst, "Reset", value.NewArgs())
	require.NoError(t, err)
	assert.False(t, res.HasValue)
	assert.False(t, res.Failed())
}

func TestDispatcher_ExceptionIsAbsorbed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.disp.Call(ctx, f.inst, "Fail", value.NewArgs())
	require.NoError(t, err)
	assert.True(t, res.Failed())
	assert.False(t, res.HasValue)
	assert.Equal(t, "System.InvalidOperationException", res.Exception.Type)
	assert.Equal(t, "Game.Calc::Fail", res.Exception.Method)

	entries := f.logs.FilterMessage("managed exception").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	assert.Contains(t, entries[0].ContextMap()["diagnostic"], "cannot do that")

	// an independent call still succeeds
	res, err = f.disp.Call(ctx, f.inst, "Add", value.NewArgs(value.Int32(2)))
	require.NoError(t, err)
	assert.False(t, res.Failed())
	assert.True(t, res.HasValue)
}

func TestDispatcher_PanicIsAbsorbed(t *testing.T) {
	f := newFixture(t)

	res, err := f.disp.Call(context.Background(), f.inst, "Panic", value.NewArgs())
	require.NoError(t, err)
	require.True(t, res.Failed())
	assert.Equal(t, "System.Exception", res.Exception.Type)
	assert.NotEmpty(t, res.Exception.StackTrace)
}

func TestDispatcher_ResolutionMiss(t *testing.T) {
	f := newFixture(t)

	_, err := f.disp.Call(context.Background(), f.inst, "Add", value.NewArgs(value.Bool(true)))
	require.ErrorIs(t, err, errors.ErrOverloadNotFound)

	entries := f.logs.FilterMessage("method not resolved").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "Game.Calc::Add", entries[0].ContextMap()["method"])
}

func TestDispatcher_Static(t *testing.T) {
	f := newFixture(t)

	res, err := f.disp.CallStatic(context.Background(), f.calc, "Max", value.NewArgs(value.Int32(3), value.Int32(9)))
	require.NoError(t, err)
	n, _ := res.Value.AsInt32()
	assert.Equal(t, int32(9), n)

	// instance method without an instance raises a managed exception
	res, err = f.disp.CallStatic(context.Background(), f.calc, "Reset", value.NewArgs())
	require.NoError(t, err)
	require.True(t, res.Failed())
	assert.Equal(t, "System.NullReferenceException", res.Exception.Type)
}

func TestDispatcher_EntityIDPassesAsUint(t *testing.T) {
	f := newFixture(t)

	res, err := f.disp.Call(context.Background(), f.inst, "Entity", value.NewArgs(value.EntityID(77)))
	require.NoError(t, err)
	id, err := res.Value.AsUInt32()
	require.NoError(t, err)
	assert.Equal(t, uint32(77), id)
}

func TestDispatcher_InvokeSlots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.disp.InvokeSlots(ctx, f.calc, nil, "Max", int32(4), int32(1))
	require.NoError(t, err)
	n, _ := res.Value.AsInt32()
	assert.Equal(t, int32(4), n)

	_, err = f.disp.InvokeSlots(ctx, f.calc, nil, "Max", int32(4))
	assert.ErrorIs(t, err, errors.ErrOverloadNotFound)
}

func TestDispatcher_Invoke(t *testing.T) {
	f := newFixture(t)

	m, ok := f.calc.Table().Resolve("Add", value.NewArgs(value.Int32(1)))
	require.True(t, ok)

	res, err := f.disp.Invoke(context.Background(), f.calc, f.inst, m, value.NewArgs(value.Int32(1)))
	require.NoError(t, err)
	assert.True(t, res.HasValue)

	_, err = f.disp.Invoke(context.Background(), f.calc, f.inst, m, value.NewArgs(value.String("no")))
	assert.ErrorIs(t, err, errors.ErrTypeMismatch)
}

func TestDispatcher_InvokeRejectsForeignMethod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	invalid := errors.New(errors.PhaseInvoke, errors.KindInvalidInput).Build()

	base, err := f.module.Class("Game", "Base")
	require.NoError(t, err)
	defer base.Release(false)

	add, ok := f.calc.Table().Resolve("Add", value.NewArgs(value.Int32(1)))
	require.True(t, ok)
	_, err = f.disp.Invoke(ctx, base, nil, add, value.NewArgs(value.Int32(1)))
	assert.ErrorIs(t, err, invalid)

	_, err = f.disp.Invoke(ctx, f.calc, f.inst, nil, value.NewArgs())
	assert.ErrorIs(t, err, invalid)

	reset, ok := base.Table().Resolve("Reset", value.NewArgs())
	require.True(t, ok)
	res, err := f.disp.Invoke(ctx, f.calc, f.inst, reset, value.NewArgs())
	require.NoError(t, err)
	assert.False(t, res.Failed())
}

func TestDispatcher_Fields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.disp.SetField(ctx, nil, f.inst, "Total", value.Int32(40)))
	b, err := f.disp.GetField(ctx, nil, f.inst, "Total")
	require.NoError(t, err)
	n, _ := b.AsInt32()
	assert.Equal(t, int32(40), n)

	b, err = f.disp.GetField(ctx, f.calc, nil, "Version")
	require.NoError(t, err)
	s, _ := b.AsString()
	assert.Equal(t, "1.0", s)

	_, err = f.disp.GetField(ctx, nil, f.inst, "Missing")
	assert.ErrorIs(t, err, errors.ErrMemberNotFound)
	err = f.disp.SetField(ctx, nil, f.inst, "Missing", value.Int32(1))
	assert.ErrorIs(t, err, errors.ErrMemberNotFound)

	err = f.disp.SetField(ctx, nil, f.inst, "Total", value.String("x"))
	assert.ErrorIs(t, err, errors.ErrTypeMismatch)
}

func TestDispatcher_Properties(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.disp.Call(ctx, f.inst, "Add", value.NewArgs(value.Int32(21)))
	require.NoError(t, err)

	res, err := f.disp.GetProperty(ctx, nil, f.inst, "Doubled")
	require.NoError(t, err)
	n, _ := res.Value.AsInt32()
	assert.Equal(t, int32(42), n)

	_, err = f.disp.SetProperty(ctx, nil, f.inst, "Doubled", value.Int32(1))
	assert.ErrorIs(t, err, errors.New(errors.PhaseInvoke, errors.KindUnsupported).Build())

	res, err = f.disp.SetProperty(ctx, nil, f.inst, "Label", value.String("hero"))
	require.NoError(t, err)
	assert.False(t, res.Failed())

	res, err = f.disp.GetProperty(ctx, nil, f.inst, "Label")
	require.NoError(t, err)
	s, _ := res.Value.AsString()
	assert.Equal(t, "hero", s)

	res, err = f.disp.SetProperty(ctx, nil, f.inst, "Label", value.String("bad"))
	require.NoError(t, err)
	assert.True(t, res.Failed())

	_, err = f.disp.GetProperty(ctx, nil, f.inst, "Missing")
	assert.ErrorIs(t, err, errors.ErrMemberNotFound)
}

func TestDispatcher_ReleasedInstance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.inst.Release()
	_, err := f.disp.Call(ctx, f.inst, "Reset", value.NewArgs())
	assert.ErrorIs(t, err, errors.ErrReleased)

	require.NoError(t, f.domain.Close(ctx))
	_, err = f.disp.CallStatic(ctx, f.calc, "Max", value.NewArgs(value.Int32(1), value.Int32(2)))
	assert.ErrorIs(t, err, errors.ErrDomainUnloaded)
}

func TestDispatcher_Reentrant(t *testing.T) {
	ctx := context.Background()
	dom, err := engine.NewGoEngine().CreateDomain(ctx, "reentrant")
	require.NoError(t, err)
	defer dom.Close(ctx)

	disp := New(nil)
	module := class.NewModule(dom, class.ModuleConfig{})
	var outer *class.Descriptor

	_, err = dom.Load(ctx, &engine.GoSource{
		Name: "Re.dll",
		Classes: []*engine.GoClass{{
			Name: "Fib",
			Methods: []engine.GoMethod{{
				Name:   "Fib",
				Static: true,
				Params: []engine.Param{{Type: engine.TypeI4}},
				Result: engine.TypeI4,
				Fn: func(c *engine.Call) (any, error) {
					n := c.Arg(0).(int32)
					if n < 2 {
						return n, nil
					}
					a, err := disp.CallStatic(c.Ctx, outer, "Fib", value.NewArgs(value.Int32(n-1)))
					if err != nil {
						return nil, err
					}
					b, err := disp.CallStatic(c.Ctx, outer, "Fib", value.NewArgs(value.Int32(n-2)))
					if err != nil {
						return nil, err
					}
					x, _ := a.Value.AsInt32()
					y, _ := b.Value.AsInt32()
					return x + y, nil
				},
			}},
		}},
	})
	require.NoError(t, err)

	outer, err = module.Class("", "Fib")
	require.NoError(t, err)

	res, err := disp.CallStatic(ctx, outer, "Fib", value.NewArgs(value.Int32(10)))
	require.NoError(t, err)
	n, _ := res.Value.AsInt32()
	assert.Equal(t, int32(55), n)
}
