package entity

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/script-bridge/class"
	"github.com/wippyai/script-bridge/dispatch"
	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/value"
)

// Managed hooks called on scripted entities when declared.
const (
	SpawnHook  = "InternalSpawn"
	RemoveHook = "OnRemove"
)

// Record is the bridge entry of one spawned scripted entity.
type Record struct {
	Instance *class.Instance
	Params   SpawnParams
	ID       ID
}

// Bridge maps host entity ids to the managed instances scripting them. At
// most one instance exists per id.
type Bridge struct {
	module  *class.Module
	disp    *dispatch.Dispatcher
	classes map[string]struct{}
	records map[ID]*Record
}

// NewBridge creates a bridge constructing instances from module and calling
// hooks through disp.
func NewBridge(module *class.Module, disp *dispatch.Dispatcher) *Bridge {
	return &Bridge{
		module:  module,
		disp:    disp,
		classes: make(map[string]struct{}),
		records: make(map[ID]*Record),
	}
}

// RegisterEntityClass marks the managed class fullName (Namespace.Name) as
// a scripted entity class. Spawns of that class get a managed instance.
func (b *Bridge) RegisterEntityClass(fullName string) {
	b.classes[fullName] = struct{}{}
	Logger().Debug("entity class registered", zap.String("class", fullName))
}

// IsScripted reports whether entities of class are bridged.
func (b *Bridge) IsScripted(class string) bool {
	_, ok := b.classes[class]
	return ok
}

// EntityClasses returns the registered scripted classes, sorted.
func (b *Bridge) EntityClasses() []string {
	out := make([]string, 0, len(b.classes))
	for c := range b.classes {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// OnBeforeSpawn vetoes spawns of scripted classes the module cannot load.
func (b *Bridge) OnBeforeSpawn(p *SpawnParams) bool {
	if !b.IsScripted(p.Class) {
		return true
	}
	ns, name := splitName(p.Class)
	if _, ok := b.module.Domain().Class(ns, name); !ok {
		Logger().Warn("scripted entity class not loaded", zap.String("class", p.Class))
		return false
	}
	return true
}

// OnSpawn constructs the managed instance for a scripted entity. Spawns of
// classes that are not scripted are ignored; a second spawn of a bridged id
// fails with a duplicate-entity error.
func (b *Bridge) OnSpawn(ctx context.Context, id ID, p SpawnParams) error {
	if !b.IsScripted(p.Class) {
		return nil
	}
	if _, dup := b.records[id]; dup {
		return errors.DuplicateEntity(uint32(id))
	}

	inst, err := b.instantiate(ctx, id, p.Class)
	if err != nil {
		return err
	}
	b.records[id] = &Record{ID: id, Params: p, Instance: inst}
	Logger().Debug("entity bridged",
		zap.Uint32("id", uint32(id)),
		zap.String("class", p.Class))
	return nil
}

func (b *Bridge) instantiate(ctx context.Context, id ID, fullName string) (*class.Instance, error) {
	ns, name := splitName(fullName)
	desc, err := b.module.Class(ns, name)
	if err != nil {
		return nil, err
	}
	// The instance holds its own reference.
	defer desc.Release(false)

	inst, err := desc.CreateInstance(ctx, value.NewArgs())
	if err != nil {
		return nil, err
	}

	if desc.Table().Has(SpawnHook) {
		res, err := b.disp.Call(ctx, inst, SpawnHook, value.NewArgs(value.EntityID(uint32(id))))
		if err != nil {
			inst.Release()
			return nil, err
		}
		if res.Failed() {
			Logger().Warn("spawn hook raised",
				zap.Uint32("id", uint32(id)),
				zap.String("class", fullName),
				zap.String("exception", res.Exception.Type))
		}
	}
	return inst, nil
}

// OnRemove evicts the record of id, runs the remove hook and releases the
// instance. It reports whether id was bridged.
func (b *Bridge) OnRemove(ctx context.Context, id ID) bool {
	rec, ok := b.records[id]
	if !ok {
		return false
	}
	delete(b.records, id)

	inst := rec.Instance
	if inst.Alive() && inst.Class().Table().Has(RemoveHook) {
		if _, err := b.disp.Call(ctx, inst, RemoveHook, value.NewArgs()); err != nil {
			Logger().Warn("remove hook failed", zap.Uint32("id", uint32(id)), zap.Error(err))
		}
	}
	inst.Release()
	Logger().Debug("entity unbridged", zap.Uint32("id", uint32(id)))
	return true
}

// Lookup returns the instance scripting id.
func (b *Bridge) Lookup(id ID) (*class.Instance, bool) {
	rec, ok := b.records[id]
	if !ok {
		return nil, false
	}
	return rec.Instance, true
}

// Records returns the bridge records in id order.
func (b *Bridge) Records() []*Record {
	out := make([]*Record, 0, len(b.records))
	for _, r := range b.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of bridged entities.
func (b *Bridge) Len() int { return len(b.records) }

// Module returns the module instances are constructed from.
func (b *Bridge) Module() *class.Module { return b.module }

// Rebind moves every record to a new module, typically after a domain
// reload. Old instances are released and new ones constructed and spawned
// again. Records whose class no longer loads are dropped; their errors are
// combined in the result.
func (b *Bridge) Rebind(ctx context.Context, module *class.Module) error {
	b.module = module

	var errs error
	for _, rec := range b.Records() {
		rec.Instance.Release()
		inst, err := b.instantiate(ctx, rec.ID, rec.Params.Class)
		if err != nil {
			delete(b.records, rec.ID)
			Logger().Warn("entity dropped on rebind",
				zap.Uint32("id", uint32(rec.ID)),
				zap.String("class", rec.Params.Class),
				zap.Error(err))
			errs = multierr.Append(errs, err)
			continue
		}
		rec.Instance = inst
	}
	return errs
}

// Clear releases every instance and forgets all records.
func (b *Bridge) Clear() {
	for id, rec := range b.records {
		rec.Instance.Release()
		delete(b.records, id)
	}
}

func splitName(full string) (namespace, name string) {
	i := strings.LastIndexByte(full, '.')
	if i < 0 {
		return "", full
	}
	return full[:i], full[i+1:]
}
