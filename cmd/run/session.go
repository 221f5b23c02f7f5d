package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/script-bridge/class"
	"github.com/wippyai/script-bridge/config"
	"github.com/wippyai/script-bridge/dispatch"
	"github.com/wippyai/script-bridge/engine"
	"github.com/wippyai/script-bridge/entity"
	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/resolve"
	"github.com/wippyai/script-bridge/runtime"
	"github.com/wippyai/script-bridge/value"
)

type sessionOptions struct {
	configFile string
	manifest   string
	wasmFile   string
	check      bool
	verbose    bool
}

// session is a script system loaded from the command line options.
type session struct {
	sys        *runtime.System
	logger     *zap.Logger
	engineName string
}

type classInfo struct {
	name    string
	methods []methodInfo
}

type methodInfo struct {
	def *engine.MethodDef
}

func (m methodInfo) label() string {
	s := m.def.Signature()
	if m.def.Static {
		s = "static " + s
	}
	if m.def.Result != engine.TypeVoid {
		s += " -> " + m.def.Result.String()
	}
	return s
}

func openSession(ctx context.Context, opts sessionOptions) (*session, error) {
	cfg := config.Default()
	dir := ""
	if opts.configFile != "" {
		var err error
		if cfg, err = config.Load(opts.configFile); err != nil {
			return nil, err
		}
		dir = filepath.Dir(opts.configFile)
	}
	if opts.verbose {
		cfg.Log.Development = true
		cfg.Log.Level = "debug"
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	setLoggers(logger)

	sources, err := runtime.LoadSources(cfg, dir)
	if err != nil {
		return nil, err
	}
	if opts.manifest != "" {
		if opts.wasmFile == "" {
			return nil, fmt.Errorf("-manifest needs -wasm")
		}
		if opts.check {
			data, err := os.ReadFile(opts.manifest)
			if err != nil {
				return nil, fmt.Errorf("read manifest: %w", err)
			}
			if err := checkManifest(data); err != nil {
				return nil, err
			}
		}
		src, err := runtime.LoadWasmSource(opts.manifest, opts.wasmFile)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}

	eng := engine.NewWazeroEngine(&engine.Config{MemoryLimitPages: cfg.Wasm.MemoryLimitPages})
	sys, err := runtime.New(runtime.Options{Engine: eng, Config: cfg})
	if err != nil {
		return nil, err
	}
	if err := sys.Init(ctx, sources...); err != nil {
		_ = sys.Close(ctx)
		return nil, err
	}
	return &session{sys: sys, logger: logger, engineName: eng.Name()}, nil
}

func setLoggers(l *zap.Logger) {
	runtime.SetLogger(l.Named("runtime"))
	engine.SetLogger(l.Named("engine"))
	class.SetLogger(l.Named("class"))
	resolve.SetLogger(l.Named("resolve"))
	dispatch.SetLogger(l.Named("dispatch"))
	entity.SetLogger(l.Named("entity"))
}

func (s *session) close(ctx context.Context) {
	_ = s.sys.Close(ctx)
	_ = s.logger.Sync()
}

// classes lists the script domain's classes with the methods each declares.
func (s *session) classes() []classInfo {
	defs := s.sys.ScriptDomain().Classes()
	out := make([]classInfo, 0, len(defs))
	for _, def := range defs {
		ci := classInfo{name: def.FullName()}
		for _, m := range def.Methods {
			ci.methods = append(ci.methods, methodInfo{def: m})
		}
		out = append(out, ci)
	}
	return out
}

// invoke resolves method on className by argument count and calls it. Raw
// arguments are parsed by the resolved parameter types.
func (s *session) invoke(ctx context.Context, className, method string, raw []string, static bool) (string, error) {
	desc, err := s.sys.Class(className)
	if err != nil {
		return "", err
	}
	defer desc.Release(false)

	m, ok := desc.Table().ResolveArity(method, len(raw))
	if !ok {
		return "", errors.New(errors.PhaseResolve, errors.KindOverloadNotFound).
			Detail("%s has no method %s with %d parameters", desc.FullName(), method, len(raw)).
			Build()
	}
	if static && !m.Static {
		return "", errors.InvalidInput(errors.PhaseInvoke, m.FullName()+" is not static")
	}
	return s.call(ctx, desc, m, raw)
}

func (s *session) call(ctx context.Context, desc *class.Descriptor, m *engine.MethodDef, raw []string) (string, error) {
	args, err := parseArgs(m.Params, raw)
	if err != nil {
		return "", err
	}

	var inst *class.Instance
	if !m.Static {
		inst, err = desc.CreateInstance(ctx, value.NewArgs())
		if err != nil {
			return "", err
		}
		defer inst.Release()
	}

	res, err := s.sys.Dispatcher().Invoke(ctx, desc, inst, m, args)
	if err != nil {
		return "", err
	}
	if res.Failed() {
		return "", res.Exception
	}
	if !res.HasValue {
		return "(void)", nil
	}
	return res.Value.String(), nil
}

func parseArgs(params []engine.Param, raw []string) (value.Args, error) {
	boxes := make([]value.Box, len(raw))
	for i, s := range raw {
		name := fmt.Sprintf("arg%d", i)
		t := engine.TypeString
		if i < len(params) {
			t = params[i].Type
			if params[i].Name != "" {
				name = params[i].Name
			}
		}
		b, err := parseArg(s, t)
		if err != nil {
			return value.Args{}, errors.New(errors.PhaseMarshal, errors.KindInvalidInput).
				Path(name).
				ManagedType(t.String()).
				Value(s).
				Cause(err).
				Build()
		}
		boxes[i] = b
	}
	return value.NewArgs(boxes...), nil
}

// parseArg converts command line text to a box of the tag t accepts.
func parseArg(s string, t engine.Type) (value.Box, error) {
	switch t {
	case engine.TypeBoolean:
		v, err := strconv.ParseBool(s)
		return value.Bool(v), err
	case engine.TypeI2:
		v, err := strconv.ParseInt(s, 10, 16)
		return value.Int16(int16(v)), err
	case engine.TypeU2:
		v, err := strconv.ParseUint(s, 10, 16)
		return value.UInt16(uint16(v)), err
	case engine.TypeI4:
		v, err := strconv.ParseInt(s, 10, 32)
		return value.Int32(int32(v)), err
	case engine.TypeU4:
		v, err := strconv.ParseUint(s, 10, 32)
		return value.UInt32(uint32(v)), err
	case engine.TypeI8:
		v, err := strconv.ParseInt(s, 10, 64)
		return value.Int64(v), err
	case engine.TypeU8:
		v, err := strconv.ParseUint(s, 10, 64)
		return value.UInt64(v), err
	case engine.TypeR4:
		v, err := strconv.ParseFloat(s, 32)
		return value.Float32(float32(v)), err
	case engine.TypeR8:
		v, err := strconv.ParseFloat(s, 64)
		return value.Float64(v), err
	case engine.TypeString, engine.TypeObject:
		if s == "null" {
			return value.Null(), nil
		}
		return value.String(s), nil
	case engine.TypeVec3:
		f, err := floats(s, 3)
		if err != nil {
			return value.Box{}, err
		}
		return value.FromVec3(value.Vec3{X: f[0], Y: f[1], Z: f[2]}), nil
	case engine.TypeQuat:
		f, err := floats(s, 4)
		if err != nil {
			return value.Box{}, err
		}
		return value.FromQuat(value.Quat{W: f[0], X: f[1], Y: f[2], Z: f[3]}), nil
	case engine.TypeArray:
		fields := strings.Fields(s)
		items := make([]value.Box, len(fields))
		for i, f := range fields {
			items[i] = value.String(f)
		}
		return value.Array(items...), nil
	default:
		return value.Box{}, fmt.Errorf("%s arguments cannot be given on the command line", t)
	}
}

func floats(s string, n int) ([]float32, error) {
	fields := strings.Fields(strings.ReplaceAll(s, ",", " "))
	if len(fields) != n {
		return nil, fmt.Errorf("want %d numbers, got %d", n, len(fields))
	}
	out := make([]float32, n)
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return nil, err
		}
		out[i] = float32(v)
	}
	return out, nil
}
