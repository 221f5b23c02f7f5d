package runtime

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/script-bridge/class"
	"github.com/wippyai/script-bridge/engine"
	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/resource"
	"github.com/wippyai/script-bridge/value"
)

// ScriptFlags classifies script instances. Lookup and removal match when
// the flags intersect.
type ScriptFlags uint32

const (
	ScriptEntity ScriptFlags = 1 << iota
	ScriptActor
	ScriptGameRules
	ScriptFlowNode
	ScriptStatic

	ScriptAny = ScriptEntity | ScriptActor | ScriptGameRules | ScriptFlowNode | ScriptStatic
)

func (f ScriptFlags) String() string {
	if f == ScriptAny {
		return "any"
	}
	var parts []string
	for _, n := range []struct {
		flag ScriptFlags
		name string
	}{
		{ScriptEntity, "entity"},
		{ScriptActor, "actor"},
		{ScriptGameRules, "gamerules"},
		{ScriptFlowNode, "flownode"},
		{ScriptStatic, "static"},
	} {
		if f&n.flag != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Script is an instance created by InstantiateScript.
type Script struct {
	Instance *class.Instance
	Name     string
	Args     value.Args
	ID       resource.Handle
	Flags    ScriptFlags
}

// Drop releases the instance when the script id is removed.
func (s *Script) Drop() { s.Instance.Release() }

// InstantiateScript constructs name (full or unique bare class name) with
// args and returns it under a new script id.
func (s *System) InstantiateScript(ctx context.Context, name string, flags ScriptFlags, args value.Args) (*Script, error) {
	if flags == 0 {
		return nil, errors.InvalidInput(errors.PhaseConstruct, "script flags cannot be empty")
	}

	// Constructors run unlocked; they may call back into the system.
	s.mu.Lock()
	module := s.module
	s.mu.Unlock()

	if module == nil {
		return nil, errors.NotInitialized(errors.PhaseConstruct, "script system")
	}
	inst, err := construct(ctx, module, name, args)
	if err != nil {
		return nil, err
	}

	sc := &Script{Instance: inst, Name: inst.Class().FullName(), Args: args, Flags: flags}
	sc.ID = s.scripts.Insert(uint32(flags), sc)
	Logger().Debug("script instantiated",
		zap.String("class", sc.Name),
		zap.Uint32("id", uint32(sc.ID)),
		zap.Stringer("flags", flags))
	return sc, nil
}

// Script returns the script registered under id when its flags intersect
// flags.
func (s *System) Script(id resource.Handle, flags ScriptFlags) (*Script, bool) {
	v, ok := s.scripts.Get(id)
	if !ok {
		return nil, false
	}
	sc := v.(*Script)
	if sc.Flags&flags == 0 {
		return nil, false
	}
	return sc, true
}

// Scripts returns live scripts matching flags in creation order.
func (s *System) Scripts(flags ScriptFlags) []*Script {
	var out []*Script
	s.scripts.Each(func(_ resource.Handle, typeID uint32, v any) bool {
		if ScriptFlags(typeID)&flags != 0 {
			out = append(out, v.(*Script))
		}
		return true
	})
	return out
}

// RemoveScriptInstance releases the script under id if its flags intersect
// flags.
func (s *System) RemoveScriptInstance(id resource.Handle, flags ScriptFlags) bool {
	if _, ok := s.Script(id, flags); !ok {
		return false
	}
	_, ok := s.scripts.Remove(id)
	if ok {
		Logger().Debug("script removed", zap.Uint32("id", uint32(id)))
	}
	return ok
}

// reinstantiate constructs every script again from module, keeping ids.
// Scripts whose class no longer constructs are removed. It runs without
// s.mu held.
func (s *System) reinstantiate(ctx context.Context, module *class.Module) {
	var stale []resource.Handle
	for _, sc := range s.Scripts(ScriptAny) {
		sc.Instance.Release()
		inst, err := construct(ctx, module, sc.Name, sc.Args)
		if err != nil {
			Logger().Warn("script dropped on reload",
				zap.Uint32("id", uint32(sc.ID)),
				zap.String("class", sc.Name),
				zap.Error(err))
			stale = append(stale, sc.ID)
			continue
		}
		sc.Instance = inst
	}
	for _, id := range stale {
		s.scripts.Remove(id)
	}
}

func construct(ctx context.Context, module *class.Module, name string, args value.Args) (*class.Instance, error) {
	desc, err := findClass(module, name)
	if err != nil {
		return nil, err
	}
	defer desc.Release(false)
	return desc.CreateInstance(ctx, args)
}

// findClass returns a counted descriptor for a full class name, or for a
// bare name declared exactly once in the module's domain.
func findClass(module *class.Module, name string) (*class.Descriptor, error) {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return module.Class(name[:i], name[i+1:])
	}

	var found *engine.ClassDef
	for _, def := range module.Domain().Classes() {
		if def.Name != name {
			continue
		}
		if found != nil {
			return nil, errors.InvalidInput(errors.PhaseResolve, "class name "+name+" is ambiguous; use the full name")
		}
		found = def
	}
	if found == nil {
		return module.Class("", name)
	}
	return module.ClassOf(found), nil
}
