package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"

	bridgeerrors "github.com/wippyai/script-bridge/errors"
)

// Config holds configuration for the wazero engine.
type Config struct {
	// MemoryLimitPages sets the maximum memory per module in pages (64KB each).
	// 0 means the wazero default.
	MemoryLimitPages uint32
}

// WasmSource is a core wasm module plus the manifest describing its classes.
type WasmSource struct {
	Manifest *Manifest
	Wasm     []byte
}

func (s *WasmSource) AssemblyName() string { return s.Manifest.Assembly }

// WazeroEngine runs managed classes implemented by core wasm modules. Each
// domain owns a separate wazero runtime, so closing a domain releases every
// module loaded into it.
type WazeroEngine struct {
	cfg Config
}

// NewWazeroEngine creates a new wazero-based engine
func NewWazeroEngine(cfg *Config) *WazeroEngine {
	e := &WazeroEngine{}
	if cfg != nil {
		e.cfg = *cfg
	}
	return e
}

func (e *WazeroEngine) Name() string { return "wazero" }

func (e *WazeroEngine) CreateDomain(ctx context.Context, name string) (Domain, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	if e.cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(e.cfg.MemoryLimitPages)
	}
	d := &WazeroDomain{
		name:    name,
		runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
		byName:  make(map[string]*ClassDef),
		impls:   make(map[*ClassDef]*wasmClass),
		alive:   true,
	}
	if err := d.instantiateEnv(ctx); err != nil {
		_ = d.runtime.Close(ctx)
		return nil, bridgeerrors.Wrap(bridgeerrors.PhaseDomain, bridgeerrors.KindRegistration, err, "instantiate env host module")
	}
	Logger().Debug("create domain", zap.String("engine", "wazero"), zap.String("domain", name))
	return d, nil
}

func (e *WazeroEngine) Close(ctx context.Context) error { return nil }

// WazeroDomain is a domain of the WazeroEngine.
type WazeroDomain struct {
	runtime wazero.Runtime
	natives NativeCaller
	byName  map[string]*ClassDef
	impls   map[*ClassDef]*wasmClass
	name    string
	classes []*ClassDef
	modules []api.Module
	alive   bool
}

// wasmObject is an instance living in guest memory.
type wasmObject struct {
	class *ClassDef
	ptr   uint32
}

func (o *wasmObject) Class() *ClassDef { return o.class }

// wasmClass is the engine-private data of a class.
type wasmClass struct {
	module api.Module
	alloc  api.Function
}

// wasmMember binds a method or field to its export.
type wasmMember struct {
	module api.Module
	fn     api.Function
	global api.Global
}

func (d *WazeroDomain) Name() string { return d.name }

func (d *WazeroDomain) Alive() bool { return d.alive }

func (d *WazeroDomain) SetNatives(n NativeCaller) { d.natives = n }

// instantiateEnv provides the "env" imports guests use to reach the host.
func (d *WazeroDomain) instantiateEnv(ctx context.Context) error {
	_, err := d.runtime.NewHostModuleBuilder("env").
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context, m api.Module, ptr, length uint32) {
			msg, ok := m.Memory().Read(ptr, length)
			if !ok {
				Logger().Warn("script_log out of bounds", zap.Uint32("ptr", ptr), zap.Uint32("len", length))
				return
			}
			if d.natives == nil {
				Logger().Info(string(msg), zap.String("domain", d.name))
				return
			}
			if _, err := d.natives.CallNative(ctx, "Log", string(msg)); err != nil {
				Logger().Warn("script_log failed", zap.Error(err))
			}
		}).
		Export("script_log").
		Instantiate(ctx)
	return err
}

func (d *WazeroDomain) Load(ctx context.Context, src Source) ([]*ClassDef, error) {
	if !d.alive {
		return nil, bridgeerrors.DomainUnloaded(bridgeerrors.PhaseLoad, d.name)
	}
	ws, ok := src.(*WasmSource)
	if !ok || ws.Manifest == nil {
		return nil, bridgeerrors.New(bridgeerrors.PhaseLoad, bridgeerrors.KindTypeMismatch).
			GoType(fmt.Sprintf("%T", src)).
			Detail("wazero engine loads *WasmSource with a manifest").
			Build()
	}

	mod, err := d.runtime.InstantiateWithConfig(ctx, ws.Wasm,
		wazero.NewModuleConfig().WithName(ws.Manifest.Assembly))
	if err != nil {
		return nil, bridgeerrors.Load("instantiate "+ws.Manifest.Assembly, err)
	}

	loaded := make([]*ClassDef, 0, len(ws.Manifest.Classes))
	for i := range ws.Manifest.Classes {
		c, err := d.define(ws.Manifest.Assembly, mod, &ws.Manifest.Classes[i])
		if err != nil {
			_ = mod.Close(ctx)
			for _, c := range loaded {
				delete(d.byName, c.FullName())
				delete(d.impls, c)
			}
			return nil, bridgeerrors.Load("load "+ws.Manifest.Assembly, err)
		}
		loaded = append(loaded, c)
	}
	d.modules = append(d.modules, mod)
	d.classes = append(d.classes, loaded...)

	Logger().Debug("assembly loaded",
		zap.String("domain", d.name),
		zap.String("assembly", ws.Manifest.Assembly),
		zap.Int("classes", len(loaded)))
	return loaded, nil
}

func (d *WazeroDomain) define(assembly string, mod api.Module, cm *ClassManifest) (*ClassDef, error) {
	c := &ClassDef{Namespace: cm.Namespace, Name: cm.Name, Assembly: assembly}
	if _, dup := d.byName[c.FullName()]; dup {
		return nil, bridgeerrors.InvalidInput(bridgeerrors.PhaseLoad, "class "+c.FullName()+" already defined")
	}
	if cm.Parent != "" {
		parent, ok := d.byName[cm.Parent]
		if !ok {
			return nil, bridgeerrors.NotFound(bridgeerrors.PhaseLoad, "parent class", cm.Parent)
		}
		c.Parent = parent
	}

	wc := &wasmClass{module: mod}
	if cm.Alloc != "" {
		wc.alloc = mod.ExportedFunction(cm.Alloc)
		if wc.alloc == nil {
			return nil, bridgeerrors.NotFound(bridgeerrors.PhaseLoad, "export", cm.Alloc)
		}
		if err := checkSignature(wc.alloc, nil, []api.ValueType{api.ValueTypeI32}); err != nil {
			return nil, err
		}
	}

	for _, mm := range cm.Methods {
		m, err := d.bindMethod(c, mod, mm.Name, mm.Export, mm.Params, mm.Result, mm.Static)
		if err != nil {
			return nil, err
		}
		c.Methods = append(c.Methods, m)
	}

	for _, pm := range cm.Properties {
		typ, err := ParseType(pm.Type)
		if err != nil {
			return nil, err
		}
		p := &PropertyDef{Class: c, Name: pm.Name, Type: typ, Static: pm.Static}
		if pm.Get != "" {
			p.Getter, err = d.bindMethod(c, mod, "get_"+pm.Name, pm.Get, nil, pm.Type, pm.Static)
			if err != nil {
				return nil, err
			}
			c.Methods = append(c.Methods, p.Getter)
		}
		if pm.Set != "" {
			params := []ParamManifest{{Name: "value", Type: pm.Type}}
			p.Setter, err = d.bindMethod(c, mod, "set_"+pm.Name, pm.Set, params, "", pm.Static)
			if err != nil {
				return nil, err
			}
			c.Methods = append(c.Methods, p.Setter)
		}
		c.Properties = append(c.Properties, p)
	}

	for _, fm := range cm.Fields {
		typ, err := ParseType(fm.Type)
		if err != nil {
			return nil, err
		}
		if typ == TypeString {
			return nil, bridgeerrors.Unsupported(bridgeerrors.PhaseLoad, "string field "+fm.Name+" cannot live in a global")
		}
		g := mod.ExportedGlobal(fm.Global)
		if g == nil {
			return nil, bridgeerrors.NotFound(bridgeerrors.PhaseLoad, "global", fm.Global)
		}
		if g.Type() != lowerType(typ)[0] {
			return nil, bridgeerrors.TypeMismatch(bridgeerrors.PhaseLoad, []string{c.FullName(), fm.Name},
				api.ValueTypeName(g.Type()), typ.String())
		}
		c.Fields = append(c.Fields, &FieldDef{
			Impl:   &wasmMember{module: mod, global: g},
			Class:  c,
			Name:   fm.Name,
			Type:   typ,
			Static: true,
		})
	}

	d.byName[c.FullName()] = c
	d.impls[c] = wc
	return c, nil
}

func (d *WazeroDomain) bindMethod(c *ClassDef, mod api.Module, name, export string, pms []ParamManifest, result string, static bool) (*MethodDef, error) {
	fn := mod.ExportedFunction(export)
	if fn == nil {
		return nil, bridgeerrors.NotFound(bridgeerrors.PhaseLoad, "export", export)
	}
	m := &MethodDef{Class: c, Name: name, Static: static}
	for i, pm := range pms {
		typ, err := ParseType(pm.Type)
		if err != nil {
			return nil, err
		}
		pname := pm.Name
		if pname == "" {
			pname = fmt.Sprintf("arg%d", i)
		}
		m.Params = append(m.Params, Param{Name: pname, Type: typ})
	}
	rt, err := ParseType(result)
	if err != nil {
		return nil, err
	}
	if rt == TypeString {
		return nil, bridgeerrors.Unsupported(bridgeerrors.PhaseLoad, "string results of "+export)
	}
	m.Result = rt

	var want []api.ValueType
	if !static {
		want = append(want, api.ValueTypeI32)
	}
	for _, p := range m.Params {
		want = append(want, lowerType(p.Type)...)
	}
	var wantResults []api.ValueType
	if rt != TypeVoid {
		wantResults = lowerType(rt)
	}
	if err := checkSignature(fn, want, wantResults); err != nil {
		return nil, err
	}
	m.Impl = &wasmMember{module: mod, fn: fn}
	return m, nil
}

func checkSignature(fn api.Function, params, results []api.ValueType) error {
	def := fn.Definition()
	if !sameTypes(def.ParamTypes(), params) || !sameTypes(def.ResultTypes(), results) {
		return bridgeerrors.New(bridgeerrors.PhaseLoad, bridgeerrors.KindTypeMismatch).
			Path(def.ExportNames()...).
			Detail("export signature %s -> %s does not match declared %s -> %s",
				typeNames(def.ParamTypes()), typeNames(def.ResultTypes()),
				typeNames(params), typeNames(results)).
			Build()
	}
	return nil
}

func sameTypes(a, b []api.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func typeNames(ts []api.ValueType) string {
	names := make([]string, len(ts))
	for i, t := range ts {
		names[i] = api.ValueTypeName(t)
	}
	return "(" + strings.Join(names, ", ") + ")"
}

// lowerType returns the flat core wasm types a managed type occupies.
func lowerType(t Type) []api.ValueType {
	switch t {
	case TypeI8, TypeU8:
		return []api.ValueType{api.ValueTypeI64}
	case TypeR4:
		return []api.ValueType{api.ValueTypeF32}
	case TypeR8:
		return []api.ValueType{api.ValueTypeF64}
	case TypeString:
		return []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}
	default:
		return []api.ValueType{api.ValueTypeI32}
	}
}

func (d *WazeroDomain) Class(namespace, name string) (*ClassDef, bool) {
	full := name
	if namespace != "" {
		full = namespace + "." + name
	}
	c, ok := d.byName[full]
	return c, ok
}

func (d *WazeroDomain) Classes() []*ClassDef { return d.classes }

func (d *WazeroDomain) NewObject(ctx context.Context, c *ClassDef) (Object, error) {
	if !d.alive {
		return nil, bridgeerrors.DomainUnloaded(bridgeerrors.PhaseConstruct, d.name)
	}
	wc := d.impls[c]
	if wc == nil || wc.alloc == nil {
		return &wasmObject{class: c}, nil
	}
	res, err := wc.alloc.Call(ctx)
	if err != nil {
		return nil, trapException(err, c.FullName()+"::alloc")
	}
	return &wasmObject{class: c, ptr: api.DecodeU32(res[0])}, nil
}

func (d *WazeroDomain) Invoke(ctx context.Context, m *MethodDef, this Object, args []any) (any, error) {
	if !d.alive {
		return nil, bridgeerrors.DomainUnloaded(bridgeerrors.PhaseInvoke, d.name)
	}
	wm, ok := m.Impl.(*wasmMember)
	if !ok || wm.fn == nil {
		return nil, bridgeerrors.Unsupported(bridgeerrors.PhaseInvoke, "method "+m.FullName()+" is not a wasm export")
	}

	stack := make([]uint64, 0, len(args)+1)
	if !m.Static {
		obj, ok := this.(*wasmObject)
		if !ok || obj == nil {
			return nil, &Exception{
				Type:    "System.NullReferenceException",
				Message: "instance method called without an object",
				Method:  m.FullName(),
			}
		}
		stack = append(stack, api.EncodeU32(obj.ptr))
	}
	for i, p := range m.Params {
		var arg any
		if i < len(args) {
			arg = args[i]
		}
		lowered, err := d.lower(ctx, wm.module, p.Type, arg)
		if err != nil {
			return nil, bridgeerrors.New(bridgeerrors.PhaseMarshal, bridgeerrors.KindTypeMismatch).
				Path(m.FullName(), p.Name).
				GoType(fmt.Sprintf("%T", arg)).
				ManagedType(p.Type.String()).
				Cause(err).
				Build()
		}
		stack = append(stack, lowered...)
	}

	res, err := wm.fn.Call(ctx, stack...)
	if err != nil {
		return nil, trapException(err, m.FullName())
	}
	if m.Result == TypeVoid || len(res) == 0 {
		return nil, nil
	}
	return liftScalar(m.Result, res[0]), nil
}

func (d *WazeroDomain) lower(ctx context.Context, mod api.Module, t Type, v any) ([]uint64, error) {
	if t == TypeString {
		s, _ := v.(string)
		ptr, err := d.writeString(ctx, mod, s)
		if err != nil {
			return nil, err
		}
		return []uint64{api.EncodeU32(ptr), api.EncodeU32(uint32(len(s)))}, nil
	}
	u, err := lowerScalar(t, v)
	if err != nil {
		return nil, err
	}
	return []uint64{u}, nil
}

// writeString copies s into guest memory using the canonical ABI realloc export.
func (d *WazeroDomain) writeString(ctx context.Context, mod api.Module, s string) (uint32, error) {
	if len(s) == 0 {
		return 0, nil
	}
	realloc := mod.ExportedFunction("cabi_realloc")
	if realloc == nil || mod.Memory() == nil {
		return 0, bridgeerrors.Unsupported(bridgeerrors.PhaseMarshal, "string arguments need memory and cabi_realloc exports")
	}
	res, err := realloc.Call(ctx, 0, 0, 1, api.EncodeU32(uint32(len(s))))
	if err != nil {
		return 0, err
	}
	ptr := api.DecodeU32(res[0])
	if !mod.Memory().Write(ptr, []byte(s)) {
		return 0, bridgeerrors.OutOfBounds(bridgeerrors.PhaseMarshal, nil, int(ptr), int(mod.Memory().Size()))
	}
	return ptr, nil
}

func lowerScalar(t Type, v any) (uint64, error) {
	switch t {
	case TypeBoolean:
		b, ok := v.(bool)
		if !ok {
			break
		}
		if b {
			return 1, nil
		}
		return 0, nil
	case TypeI2:
		if x, ok := v.(int16); ok {
			return api.EncodeI32(int32(x)), nil
		}
	case TypeU2:
		if x, ok := v.(uint16); ok {
			return api.EncodeU32(uint32(x)), nil
		}
	case TypeI4:
		if x, ok := v.(int32); ok {
			return api.EncodeI32(x), nil
		}
	case TypeU4:
		if x, ok := v.(uint32); ok {
			return api.EncodeU32(x), nil
		}
	case TypeI8:
		if x, ok := v.(int64); ok {
			return api.EncodeI64(x), nil
		}
	case TypeU8:
		if x, ok := v.(uint64); ok {
			return x, nil
		}
	case TypeR4:
		if x, ok := v.(float32); ok {
			return api.EncodeF32(x), nil
		}
	case TypeR8:
		if x, ok := v.(float64); ok {
			return api.EncodeF64(x), nil
		}
	case TypeObject:
		if o, ok := v.(*wasmObject); ok {
			return api.EncodeU32(o.ptr), nil
		}
	}
	return 0, fmt.Errorf("cannot lower %T as %s", v, t)
}

func liftScalar(t Type, u uint64) any {
	switch t {
	case TypeBoolean:
		return api.DecodeU32(u) != 0
	case TypeI2:
		return int16(api.DecodeI32(u))
	case TypeU2:
		return uint16(api.DecodeU32(u))
	case TypeI4:
		return api.DecodeI32(u)
	case TypeU4:
		return api.DecodeU32(u)
	case TypeI8:
		return int64(u)
	case TypeU8:
		return u
	case TypeR4:
		return api.DecodeF32(u)
	case TypeR8:
		return api.DecodeF64(u)
	default:
		return nil
	}
}

// trapException converts a failed guest call into a managed exception. wazero
// appends the guest stack after a "wasm stack trace:" line.
func trapException(err error, method string) *Exception {
	var exit *sys.ExitError
	if errors.As(err, &exit) {
		return &Exception{
			Type:    "ExitError",
			Message: fmt.Sprintf("guest exited with code %d", exit.ExitCode()),
			Method:  method,
		}
	}
	msg := err.Error()
	ex := &Exception{Type: "WasmTrap", Method: method}
	if head, trace, ok := strings.Cut(msg, "\nwasm stack trace:"); ok {
		ex.Message = head
		ex.StackTrace = strings.TrimLeft(trace, "\n")
	} else {
		ex.Message = msg
	}
	ex.Message = strings.TrimPrefix(ex.Message, "wasm error: ")
	return ex
}

func (d *WazeroDomain) LoadField(ctx context.Context, f *FieldDef, this Object) (any, error) {
	if !d.alive {
		return nil, bridgeerrors.DomainUnloaded(bridgeerrors.PhaseInvoke, d.name)
	}
	wm, ok := f.Impl.(*wasmMember)
	if !ok || wm.global == nil {
		return nil, bridgeerrors.Unsupported(bridgeerrors.PhaseInvoke, "field "+f.Name+" is not a wasm global")
	}
	return liftScalar(f.Type, wm.global.Get()), nil
}

func (d *WazeroDomain) StoreField(ctx context.Context, f *FieldDef, this Object, v any) error {
	if !d.alive {
		return bridgeerrors.DomainUnloaded(bridgeerrors.PhaseInvoke, d.name)
	}
	wm, ok := f.Impl.(*wasmMember)
	if !ok || wm.global == nil {
		return bridgeerrors.Unsupported(bridgeerrors.PhaseInvoke, "field "+f.Name+" is not a wasm global")
	}
	mg, ok := wm.global.(api.MutableGlobal)
	if !ok {
		return bridgeerrors.InvalidInput(bridgeerrors.PhaseInvoke, "field "+f.Name+" is read-only")
	}
	u, err := lowerScalar(f.Type, v)
	if err != nil {
		return bridgeerrors.Wrap(bridgeerrors.PhaseMarshal, bridgeerrors.KindTypeMismatch, err, "store field "+f.Name)
	}
	mg.Set(u)
	return nil
}

func (d *WazeroDomain) Box(c *ClassDef, v any) (Object, error) {
	return nil, bridgeerrors.Unsupported(bridgeerrors.PhaseMarshal, "boxing into wasm classes")
}

// Collect is a no-op; guest memory is managed by the guest.
func (d *WazeroDomain) Collect() {}

func (d *WazeroDomain) Close(ctx context.Context) error {
	if !d.alive {
		return nil
	}
	d.alive = false
	d.impls = nil
	d.byName = nil
	d.classes = nil
	d.modules = nil
	Logger().Debug("domain closed", zap.String("engine", "wazero"), zap.String("domain", d.name))
	return d.runtime.Close(ctx)
}
