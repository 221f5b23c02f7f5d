package resolve

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/script-bridge/engine"
	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/value"
)

// Table is the member table of one class. It is immutable once built.
type Table struct {
	class   *engine.ClassDef
	parent  *Table
	methods []*engine.MethodDef
	byName  map[string][]*engine.MethodDef
	fields  map[string]*engine.FieldDef
	props   map[string]*engine.PropertyDef
}

func newTable(c *engine.ClassDef, parent *Table) *Table {
	t := &Table{
		class:   c,
		parent:  parent,
		methods: c.Methods,
		byName:  make(map[string][]*engine.MethodDef),
		fields:  make(map[string]*engine.FieldDef, len(c.Fields)),
		props:   make(map[string]*engine.PropertyDef, len(c.Properties)),
	}
	for _, m := range c.Methods {
		t.byName[m.Name] = append(t.byName[m.Name], m)
	}
	for _, f := range c.Fields {
		t.fields[f.Name] = f
	}
	for _, p := range c.Properties {
		t.props[p.Name] = p
	}
	return t
}

// Class returns the class the table was built for.
func (t *Table) Class() *engine.ClassDef { return t.class }

// Parent returns the table of the parent class, or nil at the root.
func (t *Table) Parent() *Table { return t.parent }

// Resolve returns the first method named name that accepts args, walking
// from this class to its ancestors.
func (t *Table) Resolve(name string, args value.Args) (*engine.MethodDef, bool) {
	for tt := t; tt != nil; tt = tt.parent {
		for _, m := range tt.byName[name] {
			if matches(m, args) {
				return m, true
			}
		}
	}
	return nil, false
}

// ResolveArity returns the first method named name declaring exactly arity
// parameters.
func (t *Table) ResolveArity(name string, arity int) (*engine.MethodDef, bool) {
	for tt := t; tt != nil; tt = tt.parent {
		for _, m := range tt.byName[name] {
			if len(m.Params) == arity {
				return m, true
			}
		}
	}
	return nil, false
}

// Constructor resolves a constructor of this class for args. Constructors
// are not inherited.
func (t *Table) Constructor(args value.Args) (*engine.MethodDef, bool) {
	for _, m := range t.byName[t.class.Name] {
		if m.Static {
			continue
		}
		if matches(m, args) {
			return m, true
		}
	}
	return nil, false
}

// HasConstructor reports whether the class declares any constructor.
func (t *Table) HasConstructor() bool {
	for _, m := range t.byName[t.class.Name] {
		if !m.Static {
			return true
		}
	}
	return false
}

// Has reports whether any method named name exists on the class or its
// ancestors.
func (t *Table) Has(name string) bool {
	for tt := t; tt != nil; tt = tt.parent {
		if len(tt.byName[name]) > 0 {
			return true
		}
	}
	return false
}

// Overloads lists every method named name in resolution order.
func (t *Table) Overloads(name string) []*engine.MethodDef {
	var out []*engine.MethodDef
	for tt := t; tt != nil; tt = tt.parent {
		out = append(out, tt.byName[name]...)
	}
	return out
}

// Methods returns the methods declared on this class, in declaration order.
func (t *Table) Methods() []*engine.MethodDef { return t.methods }

// Field looks a field up on the class and its ancestors.
func (t *Table) Field(name string) (*engine.FieldDef, bool) {
	for tt := t; tt != nil; tt = tt.parent {
		if f, ok := tt.fields[name]; ok {
			return f, true
		}
	}
	return nil, false
}

// Property looks a property up on the class and its ancestors.
func (t *Table) Property(name string) (*engine.PropertyDef, bool) {
	for tt := t; tt != nil; tt = tt.parent {
		if p, ok := tt.props[name]; ok {
			return p, true
		}
	}
	return nil, false
}

// Miss builds the diagnostic for a failed resolution.
func (t *Table) Miss(name string, args value.Args) *errors.Error {
	return errors.OverloadNotFound(t.class.FullName()+"::"+name, args.Tags())
}

// Cache builds tables on first reference and shares parent tables between
// derived classes.
type Cache struct {
	tables map[*engine.ClassDef]*Table
	mu     sync.Mutex
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{tables: make(map[*engine.ClassDef]*Table)}
}

// For returns the table of c, building it and its ancestors if needed.
func (c *Cache) For(cls *engine.ClassDef) *Table {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.build(cls)
}

func (c *Cache) build(cls *engine.ClassDef) *Table {
	if cls == nil {
		return nil
	}
	if t, ok := c.tables[cls]; ok {
		return t
	}
	t := newTable(cls, c.build(cls.Parent))
	c.tables[cls] = t
	Logger().Debug("method table built",
		zap.String("class", cls.FullName()),
		zap.Int("methods", len(cls.Methods)))
	return t
}

// Forget drops the table of cls. Derived tables built earlier keep their
// reference to it.
func (c *Cache) Forget(cls *engine.ClassDef) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tables, cls)
}

// Len returns the number of cached tables.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tables)
}

// Build creates a standalone table for cls and its ancestors.
func Build(cls *engine.ClassDef) *Table {
	return NewCache().For(cls)
}
