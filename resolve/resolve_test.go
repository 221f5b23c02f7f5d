package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/script-bridge/engine"
	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/value"
)

func class(ns, name string, parent *engine.ClassDef) *engine.ClassDef {
	return &engine.ClassDef{Namespace: ns, Name: name, Parent: parent}
}

func method(c *engine.ClassDef, name string, params ...engine.Type) *engine.MethodDef {
	m := &engine.MethodDef{Class: c, Name: name}
	for _, p := range params {
		m.Params = append(m.Params, engine.Param{Type: p})
	}
	c.Methods = append(c.Methods, m)
	return m
}

func TestResolve_FooBar(t *testing.T) {
	foo := class("Game", "Foo", nil)
	bar0 := method(foo, "Bar")
	bar1 := method(foo, "Bar", engine.TypeI4)
	table := Build(foo)

	m, ok := table.Resolve("Bar", value.NewArgs())
	require.True(t, ok)
	assert.Same(t, bar0, m)

	m, ok = table.Resolve("Bar", value.NewArgs(value.Int32(5)))
	require.True(t, ok)
	assert.Same(t, bar1, m)

	_, ok = table.Resolve("Bar", value.NewArgs(value.String("x")))
	assert.False(t, ok)
}

func TestResolve_NullPointerArgument(t *testing.T) {
	native := class("Game", "Native", nil)
	byPtr := method(native, "Attach", engine.TypePointer)
	table := Build(native)

	m, ok := table.Resolve("Attach", value.NewArgs(value.Null()))
	require.True(t, ok)
	assert.Same(t, byPtr, m)
}

func TestResolve_ChildShadowsParent(t *testing.T) {
	base := class("Game", "Base", nil)
	method(base, "Update")
	derived := class("Game", "Derived", base)
	own := method(derived, "Update")

	m, ok := Build(derived).Resolve("Update", value.NewArgs())
	require.True(t, ok)
	assert.Same(t, own, m)

	m, ok = Build(derived).ResolveArity("Update", 0)
	require.True(t, ok)
	assert.Same(t, own, m)
}

func TestResolve_WalksToBase(t *testing.T) {
	root := class("Game", "Root", nil)
	onlyBase := method(root, "Tick", engine.TypeR4)
	mid := class("Game", "Mid", root)
	method(mid, "Other")
	leaf := class("Game", "Leaf", mid)

	table := Build(leaf)
	m, ok := table.Resolve("Tick", value.NewArgs(value.Float32(0.1)))
	require.True(t, ok)
	assert.Same(t, onlyBase, m)

	assert.Len(t, table.Overloads("Tick"), 1)
}

func TestResolve_DerivedOverloadFallsBackToBase(t *testing.T) {
	base := class("Game", "Base", nil)
	baseInt := method(base, "Set", engine.TypeI4)
	derived := class("Game", "Derived", base)
	derivedStr := method(derived, "Set", engine.TypeString)
	table := Build(derived)

	m, ok := table.Resolve("Set", value.NewArgs(value.String("a")))
	require.True(t, ok)
	assert.Same(t, derivedStr, m)

	m, ok = table.Resolve("Set", value.NewArgs(value.Int32(1)))
	require.True(t, ok)
	assert.Same(t, baseInt, m)
}

func TestResolve_IncompatibleEverywhere(t *testing.T) {
	c := class("Game", "Thing", nil)
	method(c, "Do", engine.TypeI4)
	method(c, "Do", engine.TypeBoolean, engine.TypeString)
	method(c, "Do", engine.TypeU2)
	table := Build(c)

	tests := []value.Args{
		value.NewArgs(value.Float64(1)),
		value.NewArgs(value.Bool(true), value.Int32(1)),
		value.NewArgs(value.UInt32(1)),
		value.NewArgs(value.Int32(1), value.Int32(2), value.Int32(3)),
		value.NewArgs(),
	}
	for _, args := range tests {
		m, ok := table.Resolve("Do", args)
		assert.False(t, ok, "args %s resolved to %v", args, m)
		assert.Nil(t, m)
	}
}

func TestResolve_TrailingOptional(t *testing.T) {
	c := class("Game", "Spawner", nil)
	spawn := method(c, "Spawn", engine.TypeString, engine.TypeVec3, engine.TypeQuat)

	m, ok := Build(c).Resolve("Spawn", value.NewArgs(value.String("crate")))
	require.True(t, ok)
	assert.Same(t, spawn, m)

	// arity resolution requires the exact count
	_, ok = Build(c).ResolveArity("Spawn", 1)
	assert.False(t, ok)
}

func TestResolve_FirstMatchWins(t *testing.T) {
	c := class("Game", "Ambiguous", nil)
	first := method(c, "Take", engine.TypeObject)
	method(c, "Take", engine.TypeI4)

	m, ok := Build(c).Resolve("Take", value.NewArgs(value.Int32(1)))
	require.True(t, ok)
	assert.Same(t, first, m)
}

func TestResolve_NameIsCaseSensitive(t *testing.T) {
	c := class("Game", "Case", nil)
	method(c, "Run")

	_, ok := Build(c).Resolve("run", value.NewArgs())
	assert.False(t, ok)
}

func TestCompatible(t *testing.T) {
	tests := []struct {
		typ  engine.Type
		tag  value.Tag
		want bool
	}{
		{engine.TypeBoolean, value.TagBool, true},
		{engine.TypeI4, value.TagInt32, true},
		{engine.TypeI4, value.TagUInt32, false},
		{engine.TypeU4, value.TagUInt32, true},
		{engine.TypeU4, value.TagEntityID, true},
		{engine.TypeI2, value.TagInt16, true},
		{engine.TypeI2, value.TagInt32, false},
		{engine.TypeU2, value.TagUInt16, true},
		{engine.TypeString, value.TagString, true},
		{engine.TypeString, value.TagNull, true},
		{engine.TypeI4, value.TagNull, false},
		{engine.TypePointer, value.TagNull, true},
		{engine.TypeObject, value.TagVec3, true},
		{engine.TypeVec3, value.TagVec3, true},
		{engine.TypeVec3, value.TagQuat, false},
		{engine.TypeR4, value.TagFloat64, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Compatible(tt.typ, tt.tag), "%s <- %s", tt.typ, tt.tag)
	}
}

func TestTable_Constructor(t *testing.T) {
	base := class("Game", "Base", nil)
	method(base, "Base", engine.TypeI4)
	c := class("Game", "Player", base)
	table := Build(c)

	assert.False(t, table.HasConstructor())
	_, ok := table.Constructor(value.NewArgs(value.Int32(1)))
	assert.False(t, ok, "constructors are not inherited")

	ctor := method(c, "Player", engine.TypeString)
	table = Build(c)
	assert.True(t, table.HasConstructor())
	m, ok := table.Constructor(value.NewArgs(value.String("p1")))
	require.True(t, ok)
	assert.Same(t, ctor, m)
}

func TestTable_Members(t *testing.T) {
	base := class("Game", "Base", nil)
	base.Fields = []*engine.FieldDef{{Class: base, Name: "Health", Type: engine.TypeI4}}
	base.Properties = []*engine.PropertyDef{{Class: base, Name: "Name", Type: engine.TypeString}}
	c := class("Game", "Player", base)
	c.Fields = []*engine.FieldDef{{Class: c, Name: "Health", Type: engine.TypeR4}}
	table := Build(c)

	f, ok := table.Field("Health")
	require.True(t, ok)
	assert.Same(t, c.Fields[0], f)

	p, ok := table.Property("Name")
	require.True(t, ok)
	assert.Same(t, base.Properties[0], p)

	_, ok = table.Field("Mana")
	assert.False(t, ok)
	_, ok = table.Property("Mana")
	assert.False(t, ok)
}

func TestTable_Miss(t *testing.T) {
	c := class("Game", "Foo", nil)
	err := Build(c).Miss("Bar", value.NewArgs(value.String("x")))

	assert.ErrorIs(t, err, errors.ErrOverloadNotFound)
	assert.Contains(t, err.Error(), "Game.Foo::Bar")
	assert.Contains(t, err.Error(), "string")
}

func TestCache_SharesParentTables(t *testing.T) {
	base := class("Game", "Base", nil)
	a := class("Game", "A", base)
	b := class("Game", "B", base)

	cache := NewCache()
	ta := cache.For(a)
	tb := cache.For(b)

	assert.Same(t, ta.Parent(), tb.Parent())
	assert.Same(t, ta, cache.For(a))
	assert.Equal(t, 3, cache.Len())

	cache.Forget(a)
	assert.Equal(t, 2, cache.Len())
}
