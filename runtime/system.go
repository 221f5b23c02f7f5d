package runtime

import (
	"context"
	"slices"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/script-bridge/class"
	"github.com/wippyai/script-bridge/config"
	"github.com/wippyai/script-bridge/dispatch"
	"github.com/wippyai/script-bridge/engine"
	"github.com/wippyai/script-bridge/entity"
	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/resource"
)

// Options configures a System.
type Options struct {
	// Engine creates domains. Required. The system closes it on Close.
	Engine engine.Engine
	// Config defaults to config.Default().
	Config *config.Config
	// Host defaults to an in-memory host. A host with a SetListener method
	// is connected to the entity bridge on Init.
	Host entity.Host
	// Exceptions receives managed exceptions in addition to the log sink.
	Exceptions engine.ExceptionHandler
	// ReloadHandler decides what happens when a reload fails. Nil aborts.
	ReloadHandler ReloadHandler
}

type listenerHost interface {
	SetListener(entity.Listener)
}

// System owns the domains, the script module, the dispatcher, the entity
// bridge and the method bindings of one scripting session.
type System struct {
	engine    engine.Engine
	cfg       *config.Config
	host      entity.Host
	onFailure ReloadHandler
	bindings  *BindingRegistry
	disp      *dispatch.Dispatcher
	root      engine.Domain
	script    engine.Domain
	active    engine.Domain
	domains   []engine.Domain
	module    *class.Module
	bridge    *entity.Bridge
	scripts   *resource.Table
	sources   []engine.Source
	entityCls []string
	listeners []Listener
	reloading bool
	mu        sync.Mutex
}

// New creates an uninitialized system. Host entity and log bindings are
// queued so they are callable once Init succeeds.
func New(opts Options) (*System, error) {
	if opts.Engine == nil {
		return nil, errors.InvalidInput(errors.PhaseDomain, "engine is required")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	host := opts.Host
	if host == nil {
		host = entity.NewMemoryHost()
	}

	sink := dispatch.Sinks{dispatch.LogSink{}}
	if opts.Exceptions != nil {
		sink = append(sink, opts.Exceptions)
	}

	s := &System{
		engine:    opts.Engine,
		cfg:       cfg,
		host:      host,
		onFailure: opts.ReloadHandler,
		bindings:  NewBindingRegistry(),
		disp:      dispatch.New(sink),
		scripts:   resource.NewTable(),
		entityCls: slices.Clone(cfg.ScriptedEntityClasses),
	}
	if err := s.bindings.RegisterAll(entity.Bindings(host)); err != nil {
		return nil, err
	}
	if err := s.bindings.RegisterAll(entity.LogBindings(Logger().Named("script"))); err != nil {
		return nil, err
	}
	return s, nil
}

// Init creates the root and script domains, loads sources into the script
// domain and connects the entity bridge.
func (s *System) Init(ctx context.Context, sources ...engine.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.root != nil {
		return errors.New(errors.PhaseDomain, errors.KindAlreadyInitialized).
			Detail("script system already initialized").
			Build()
	}

	root, err := s.newDomain(ctx, s.cfg.RootDomain)
	if err != nil {
		return err
	}
	script, module, err := s.buildScriptDomain(ctx, sources)
	if err != nil {
		_ = root.Close(ctx)
		return err
	}

	s.root = root
	s.active = root
	s.domains = []engine.Domain{root, script}
	s.script = script
	s.module = module
	s.sources = slices.Clone(sources)

	s.bridge = entity.NewBridge(module, s.disp)
	for _, name := range s.entityCls {
		s.bridge.RegisterEntityClass(name)
	}
	if lh, ok := s.host.(listenerHost); ok {
		lh.SetListener(s.bridge)
	}

	n := s.bindings.activate()
	Logger().Info("script system initialized",
		zap.String("engine", s.engine.Name()),
		zap.String("root", root.Name()),
		zap.String("scripts", script.Name()),
		zap.Int("classes", len(script.Classes())),
		zap.Int("bindings_flushed", n))
	return nil
}

func (s *System) newDomain(ctx context.Context, name string) (engine.Domain, error) {
	d, err := s.engine.CreateDomain(ctx, name)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseDomain, errors.KindRegistration, err, "create domain "+name)
	}
	d.SetNatives(s.bindings)
	return d, nil
}

// buildScriptDomain creates a fresh script domain with sources loaded and a
// module over it. The domain is closed again on failure.
func (s *System) buildScriptDomain(ctx context.Context, sources []engine.Source) (engine.Domain, *class.Module, error) {
	d, err := s.newDomain(ctx, s.cfg.ScriptDomain)
	if err != nil {
		return nil, nil, err
	}
	for _, src := range sources {
		defs, err := d.Load(ctx, src)
		if err != nil {
			_ = d.Close(ctx)
			return nil, nil, errors.Load("load assembly "+src.AssemblyName(), err)
		}
		Logger().Debug("assembly loaded",
			zap.String("assembly", src.AssemblyName()),
			zap.Int("classes", len(defs)))
	}
	module := class.NewModule(d, class.ModuleConfig{
		Name:             s.cfg.ScriptDomain,
		Exceptions:       s.disp.Sink(),
		CollectOnRelease: s.cfg.CollectOnRelease,
	})
	return d, module, nil
}

// IsInitialized reports whether Init succeeded and no abort or Close has
// happened since.
func (s *System) IsInitialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.root != nil
}

func (s *System) Config() *config.Config { return s.cfg }

func (s *System) Host() entity.Host { return s.host }

func (s *System) Dispatcher() *dispatch.Dispatcher { return s.disp }

func (s *System) Bindings() *BindingRegistry { return s.bindings }

// RootDomain returns the root domain, or nil before Init.
func (s *System) RootDomain() engine.Domain {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.root
}

// ScriptDomain returns the domain script assemblies are loaded into.
func (s *System) ScriptDomain() engine.Domain {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.script
}

// ActiveDomain returns the domain last made active by CreateDomain.
func (s *System) ActiveDomain() engine.Domain {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Domains returns every live domain in creation order.
func (s *System) Domains() []engine.Domain {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.domains)
}

// Module returns the class registry of the current script domain.
func (s *System) Module() *class.Module {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.module
}

// Bridge returns the entity bridge, or nil before Init.
func (s *System) Bridge() *entity.Bridge {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bridge
}

// CreateDomain creates an extra domain with the system's bindings
// installed. With setActive it becomes the active domain.
func (s *System) CreateDomain(ctx context.Context, name string, setActive bool) (engine.Domain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.root == nil {
		return nil, errors.NotInitialized(errors.PhaseDomain, "script system")
	}
	d, err := s.newDomain(ctx, name)
	if err != nil {
		return nil, err
	}
	s.domains = append(s.domains, d)
	if setActive {
		s.active = d
	}
	Logger().Info("domain created", zap.String("domain", name), zap.Bool("active", setActive))
	return d, nil
}

// ReleaseDomain closes a domain created with CreateDomain. The root and
// script domains are owned by the system and cannot be released this way.
func (s *System) ReleaseDomain(ctx context.Context, d engine.Domain) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d == s.root || d == s.script {
		return errors.InvalidInput(errors.PhaseDomain, "cannot release system domain "+d.Name())
	}
	i := slices.Index(s.domains, d)
	if i < 0 {
		return errors.NotFound(errors.PhaseDomain, "domain", d.Name())
	}
	s.domains = slices.Delete(s.domains, i, i+1)
	if s.active == d {
		s.active = s.root
	}
	Logger().Info("domain released", zap.String("domain", d.Name()))
	return d.Close(ctx)
}

// LoadAssembly loads src into the script domain. It is remembered for
// reloads.
func (s *System) LoadAssembly(ctx context.Context, src engine.Source) ([]*engine.ClassDef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.script == nil {
		return nil, errors.NotInitialized(errors.PhaseLoad, "script system")
	}
	defs, err := s.script.Load(ctx, src)
	if err != nil {
		return nil, errors.Load("load assembly "+src.AssemblyName(), err)
	}
	s.sources = append(s.sources, src)
	return defs, nil
}

// RegisterMethodBinding exposes fn to managed code under name. Before Init
// the binding is queued.
func (s *System) RegisterMethodBinding(name string, fn engine.NativeFunc) error {
	return s.bindings.Register(name, fn)
}

// CallNative calls a registered method binding.
func (s *System) CallNative(ctx context.Context, name string, args ...any) (any, error) {
	return s.bindings.CallNative(ctx, name, args...)
}

// RegisterEntityClass marks a managed class as scripting host entities of
// the same class name.
func (s *System) RegisterEntityClass(fullName string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !slices.Contains(s.entityCls, fullName) {
		s.entityCls = append(s.entityCls, fullName)
	}
	if s.bridge != nil {
		s.bridge.RegisterEntityClass(fullName)
	}
}

// Class resolves a class by full name, or by bare name when unique in the
// script domain.
func (s *System) Class(name string) (*class.Descriptor, error) {
	s.mu.Lock()
	module := s.module
	s.mu.Unlock()

	if module == nil {
		return nil, errors.NotInitialized(errors.PhaseResolve, "script system")
	}
	return findClass(module, name)
}

// Close releases script instances, bridged entities and every domain, then
// closes the engine. The system is uninitialized afterwards.
func (s *System) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.shutdown(ctx)
	err = multierr.Append(err, s.engine.Close(ctx))
	Logger().Info("script system closed")
	return err
}

// shutdown tears down everything Init created. The caller holds s.mu.
func (s *System) shutdown(ctx context.Context) error {
	var err error
	s.scripts.Clear()
	if s.bridge != nil {
		s.bridge.Clear()
	}
	if s.module != nil {
		err = multierr.Append(err, s.module.Close(ctx))
	}
	for i := len(s.domains) - 1; i >= 0; i-- {
		if d := s.domains[i]; d.Alive() {
			err = multierr.Append(err, d.Close(ctx))
		}
	}

	s.root = nil
	s.script = nil
	s.active = nil
	s.domains = nil
	s.module = nil
	s.bridge = nil
	return err
}
