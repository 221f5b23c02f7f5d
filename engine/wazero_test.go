package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/script-bridge/errors"
)

// recordingNatives captures host calls made by a guest.
type recordingNatives struct {
	mu    sync.Mutex
	calls []string
	args  [][]any
}

func (r *recordingNatives) CallNative(ctx context.Context, name string, args ...any) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, name)
	r.args = append(r.args, args)
	return nil, nil
}

func loadCounter(t *testing.T) (*WazeroDomain, *ClassDef) {
	t.Helper()
	ctx := context.Background()

	m, err := ParseManifest([]byte(counterManifest))
	require.NoError(t, err)

	eng := NewWazeroEngine(&Config{MemoryLimitPages: 4})
	dom, err := eng.CreateDomain(ctx, "test")
	require.NoError(t, err)
	d := dom.(*WazeroDomain)
	t.Cleanup(func() { _ = d.Close(ctx) })

	classes, err := d.Load(ctx, &WasmSource{Manifest: m, Wasm: counterWasm()})
	require.NoError(t, err)
	require.Len(t, classes, 1)
	return d, classes[0]
}

func method(t *testing.T, c *ClassDef, name string) *MethodDef {
	t.Helper()
	for _, m := range c.Methods {
		if m.Name == name {
			return m
		}
	}
	t.Fatalf("method %s not found on %s", name, c.FullName())
	return nil
}

func TestWazeroDomain_Load(t *testing.T) {
	d, c := loadCounter(t)

	assert.Equal(t, "Game.Counter", c.FullName())
	assert.Equal(t, "Counters", c.Assembly)
	assert.Len(t, c.Methods, 8, "six methods plus two accessors")
	require.Len(t, c.Properties, 1)
	assert.NotNil(t, c.Properties[0].Getter)
	assert.NotNil(t, c.Properties[0].Setter)
	require.Len(t, c.Fields, 1)
	assert.True(t, c.Fields[0].Static)

	got, ok := d.Class("Game", "Counter")
	assert.True(t, ok)
	assert.Same(t, c, got)
	assert.Equal(t, []*ClassDef{c}, d.Classes())

	wide := method(t, c, "Wide")
	assert.Equal(t, "arg0", wide.Params[0].Name)
	assert.Equal(t, TypeI8, wide.Result)
}

func TestWazeroDomain_InvokeStatic(t *testing.T) {
	d, c := loadCounter(t)
	ctx := context.Background()

	res, err := d.Invoke(ctx, method(t, c, "Add"), nil, []any{int32(2), int32(40)})
	require.NoError(t, err)
	assert.Equal(t, int32(42), res)

	res, err = d.Invoke(ctx, method(t, c, "Wide"), nil, []any{int64(1) << 40, int64(5)})
	require.NoError(t, err)
	assert.Equal(t, int64(1)<<40+5, res)

	res, err = d.Invoke(ctx, method(t, c, "Fail"), nil, nil)
	require.Error(t, err)
	assert.Nil(t, res)
}

func TestWazeroDomain_Strings(t *testing.T) {
	d, c := loadCounter(t)
	ctx := context.Background()

	res, err := d.Invoke(ctx, method(t, c, "Length"), nil, []any{"héllo"})
	require.NoError(t, err)
	assert.Equal(t, int32(6), res, "length is in bytes")

	res, err = d.Invoke(ctx, method(t, c, "First"), nil, []any{"Abc"})
	require.NoError(t, err)
	assert.Equal(t, int32('A'), res)

	res, err = d.Invoke(ctx, method(t, c, "Length"), nil, []any{""})
	require.NoError(t, err)
	assert.Equal(t, int32(0), res)
}

func TestWazeroDomain_Instances(t *testing.T) {
	d, c := loadCounter(t)
	ctx := context.Background()
	get := c.Properties[0].Getter
	set := c.Properties[0].Setter

	a, err := d.NewObject(ctx, c)
	require.NoError(t, err)
	b, err := d.NewObject(ctx, c)
	require.NoError(t, err)
	assert.Same(t, c, a.Class())
	assert.NotEqual(t, a.(*wasmObject).ptr, b.(*wasmObject).ptr)

	_, err = d.Invoke(ctx, set, a, []any{int32(42)})
	require.NoError(t, err)

	res, err := d.Invoke(ctx, get, a, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(42), res)

	res, err = d.Invoke(ctx, get, b, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(0), res)

	_, err = d.Invoke(ctx, get, nil, nil)
	var ex *Exception
	require.ErrorAs(t, err, &ex)
	assert.Equal(t, "System.NullReferenceException", ex.Type)
}

func TestWazeroDomain_Trap(t *testing.T) {
	d, c := loadCounter(t)

	_, err := d.Invoke(context.Background(), method(t, c, "Fail"), nil, nil)
	var ex *Exception
	require.ErrorAs(t, err, &ex)
	assert.Equal(t, "WasmTrap", ex.Type)
	assert.Contains(t, ex.Message, "unreachable")
	assert.Equal(t, "Game.Counter::Fail", ex.Method)
}

func TestWazeroDomain_ArgumentMismatch(t *testing.T) {
	d, c := loadCounter(t)

	_, err := d.Invoke(context.Background(), method(t, c, "Add"), nil, []any{"two", int32(1)})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.New(errors.PhaseMarshal, errors.KindTypeMismatch).Build())

	var be *errors.Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, []string{"Game.Counter::Add", "a"}, be.Path)
	assert.Equal(t, "int", be.ManagedType)
}

func TestWazeroDomain_Fields(t *testing.T) {
	d, c := loadCounter(t)
	ctx := context.Background()
	score := c.Fields[0]

	v, err := d.LoadField(ctx, score, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(7), v)

	require.NoError(t, d.StoreField(ctx, score, nil, int32(99)))
	v, err = d.LoadField(ctx, score, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(99), v)

	err = d.StoreField(ctx, score, nil, "lots")
	assert.ErrorIs(t, err, errors.ErrTypeMismatch)
}

func TestWazeroDomain_HostLog(t *testing.T) {
	d, c := loadCounter(t)
	natives := &recordingNatives{}
	d.SetNatives(natives)

	_, err := d.Invoke(context.Background(), method(t, c, "Hello"), nil, nil)
	require.NoError(t, err)

	require.Equal(t, []string{"Log"}, natives.calls)
	assert.Equal(t, []any{"hello"}, natives.args[0])
}

func TestWazeroDomain_Closed(t *testing.T) {
	d, c := loadCounter(t)
	ctx := context.Background()
	add := method(t, c, "Add")

	require.NoError(t, d.Close(ctx))
	assert.False(t, d.Alive())
	require.NoError(t, d.Close(ctx), "close is idempotent")

	_, err := d.Invoke(ctx, add, nil, []any{int32(1), int32(2)})
	assert.ErrorIs(t, err, errors.ErrDomainUnloaded)

	_, err = d.NewObject(ctx, c)
	assert.ErrorIs(t, err, errors.ErrDomainUnloaded)

	_, err = d.Load(ctx, &WasmSource{Manifest: &Manifest{Assembly: "Late"}, Wasm: counterWasm()})
	assert.ErrorIs(t, err, errors.ErrDomainUnloaded)
}

func TestWazeroDomain_LoadErrors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		manifest string
	}{
		{
			name: "missing export",
			manifest: `
assembly: Bad
classes:
  - name: Broken
    methods:
      - {name: Nope, export: nope, static: true}
`,
		},
		{
			name: "signature mismatch",
			manifest: `
assembly: Bad
classes:
  - name: Broken
    methods:
      - {name: Add, export: add, static: true, result: s64, params: [{type: s32}, {type: s32}]}
`,
		},
		{
			name: "instance method lacks this",
			manifest: `
assembly: Bad
classes:
  - name: Broken
    methods:
      - {name: Add, export: add, params: [{type: s32}, {type: s32}], result: s32}
`,
		},
		{
			name: "unknown parent",
			manifest: `
assembly: Bad
classes:
  - name: Broken
    parent: Game.Base
`,
		},
		{
			name: "string field",
			manifest: `
assembly: Bad
classes:
  - name: Broken
    fields:
      - {name: Title, type: string, global: score}
`,
		},
		{
			name: "string result",
			manifest: `
assembly: Bad
classes:
  - name: Broken
    methods:
      - {name: Add, export: add, static: true, result: string, params: [{type: s32}, {type: s32}]}
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := ParseManifest([]byte(tt.manifest))
			require.NoError(t, err)

			dom, err := NewWazeroEngine(nil).CreateDomain(ctx, "bad")
			require.NoError(t, err)
			defer dom.Close(ctx)

			_, err = dom.Load(ctx, &WasmSource{Manifest: m, Wasm: counterWasm()})
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.New(errors.PhaseLoad, errors.KindInvalidData).Build())
			assert.Empty(t, dom.Classes())
			_, ok := dom.Class("", "Broken")
			assert.False(t, ok)
		})
	}
}

func TestWazeroDomain_RejectsOtherSources(t *testing.T) {
	ctx := context.Background()
	dom, err := NewWazeroEngine(nil).CreateDomain(ctx, "x")
	require.NoError(t, err)
	defer dom.Close(ctx)

	_, err = dom.Load(ctx, &GoSource{Name: "Go"})
	assert.ErrorIs(t, err, errors.ErrTypeMismatch)

	_, err = dom.Load(ctx, &WasmSource{Manifest: &Manifest{Assembly: "Junk"}, Wasm: []byte("not wasm")})
	assert.ErrorIs(t, err, errors.New(errors.PhaseLoad, errors.KindInvalidData).Build())
}

func TestTrapException(t *testing.T) {
	ex := trapException(assert.AnError, "Game.Counter::Run")
	assert.Equal(t, "WasmTrap", ex.Type)
	assert.Equal(t, assert.AnError.Error(), ex.Message)
	assert.Empty(t, ex.StackTrace)
}
