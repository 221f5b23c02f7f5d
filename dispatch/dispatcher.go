package dispatch

import (
	"context"
	stderrors "errors"

	"go.uber.org/zap"

	"github.com/wippyai/script-bridge/class"
	"github.com/wippyai/script-bridge/engine"
	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/resolve"
	"github.com/wippyai/script-bridge/transcoder"
	"github.com/wippyai/script-bridge/value"
)

// Dispatcher invokes managed methods and absorbs managed exceptions. It
// keeps no per-call state and may be re-entered from managed code.
type Dispatcher struct {
	sink engine.ExceptionHandler
}

// New creates a dispatcher routing exceptions to sink. A nil sink logs them
// through the package logger.
func New(sink engine.ExceptionHandler) *Dispatcher {
	if sink == nil {
		sink = LogSink{}
	}
	return &Dispatcher{sink: sink}
}

// Sink returns the exception handler.
func (d *Dispatcher) Sink() engine.ExceptionHandler { return d.sink }

type target struct {
	domain engine.Domain
	object engine.Object
	def    *engine.ClassDef
	table  *resolve.Table
	class  string
}

func (d *Dispatcher) target(phase errors.Phase, cls *class.Descriptor, inst *class.Instance) (*target, error) {
	if cls == nil && inst != nil {
		cls = inst.Class()
	}
	if cls == nil {
		return nil, errors.InvalidInput(phase, "call without class or instance")
	}
	if cls.Def() == nil || cls.Refs() <= 0 {
		return nil, errors.Released(phase, "class descriptor")
	}
	m := cls.Module()
	if m == nil {
		return nil, errors.Released(phase, "module of "+cls.FullName())
	}
	if !m.Domain().Alive() {
		return nil, errors.DomainUnloaded(phase, m.Domain().Name())
	}

	t := &target{domain: m.Domain(), def: cls.Def(), table: cls.Table(), class: cls.FullName()}
	if inst != nil {
		obj, err := inst.Object()
		if err != nil {
			return nil, err
		}
		t.object = obj
	}
	return t, nil
}

// Invoke calls an already-resolved method. inst is nil for static methods.
// m must be declared on the target class or one of its ancestors.
func (d *Dispatcher) Invoke(ctx context.Context, cls *class.Descriptor, inst *class.Instance, m *engine.MethodDef, args value.Args) (Result, error) {
	t, err := d.target(errors.PhaseInvoke, cls, inst)
	if err != nil {
		return Result{}, err
	}
	if m == nil {
		return Result{}, errors.InvalidInput(errors.PhaseInvoke, "invoke nil method on "+t.class)
	}
	if !t.def.IsSubclassOf(m.Class) {
		return Result{}, errors.InvalidInput(errors.PhaseInvoke, "method "+m.FullName()+" is not declared on "+t.class+" or its ancestors")
	}
	slots, err := transcoder.Lower(m.Params, args)
	if err != nil {
		if e, ok := err.(*errors.Error); ok {
			e.Path = append([]string{m.FullName()}, e.Path...)
		}
		return Result{}, err
	}
	return d.call(ctx, t.domain, m, t.object, slots)
}

// InvokeMethod resolves name against args and invokes the match. A miss is
// logged and returned as an overload-not-found error.
func (d *Dispatcher) InvokeMethod(ctx context.Context, cls *class.Descriptor, inst *class.Instance, name string, args value.Args) (Result, error) {
	t, err := d.target(errors.PhaseResolve, cls, inst)
	if err != nil {
		return Result{}, err
	}
	m, ok := t.table.Resolve(name, args)
	if !ok {
		miss := t.table.Miss(name, args)
		Logger().Warn("method not resolved",
			zap.String("method", t.class+"::"+name),
			zap.Strings("args", args.Tags()))
		return Result{}, miss
	}
	slots, err := transcoder.Lower(m.Params, args)
	if err != nil {
		return Result{}, err
	}
	return d.call(ctx, t.domain, m, t.object, slots)
}

// Call invokes name on inst.
func (d *Dispatcher) Call(ctx context.Context, inst *class.Instance, name string, args value.Args) (Result, error) {
	if inst == nil {
		return Result{}, errors.InvalidInput(errors.PhaseInvoke, "call "+name+" on nil instance")
	}
	return d.InvokeMethod(ctx, inst.Class(), inst, name, args)
}

// CallStatic invokes the static method name on cls.
func (d *Dispatcher) CallStatic(ctx context.Context, cls *class.Descriptor, name string, args value.Args) (Result, error) {
	return d.InvokeMethod(ctx, cls, nil, name, args)
}

// InvokeSlots resolves name by arity alone and passes slots through
// unconverted. It is meant for trusted call sites that already know the
// exact native signature.
func (d *Dispatcher) InvokeSlots(ctx context.Context, cls *class.Descriptor, inst *class.Instance, name string, slots ...any) (Result, error) {
	t, err := d.target(errors.PhaseResolve, cls, inst)
	if err != nil {
		return Result{}, err
	}
	m, ok := t.table.ResolveArity(name, len(slots))
	if !ok {
		Logger().Warn("method not resolved by arity",
			zap.String("method", t.class+"::"+name),
			zap.Int("arity", len(slots)))
		return Result{}, errors.New(errors.PhaseResolve, errors.KindOverloadNotFound).
			Detail("no overload of %s::%s takes %d arguments", t.class, name, len(slots)).
			Build()
	}
	return d.call(ctx, t.domain, m, t.object, slots)
}

// call performs the invocation and absorbs managed exceptions.
func (d *Dispatcher) call(ctx context.Context, dom engine.Domain, m *engine.MethodDef, this engine.Object, slots []any) (Result, error) {
	out, err := dom.Invoke(ctx, m, this, slots)
	if err != nil {
		var ex *engine.Exception
		if stderrors.As(err, &ex) {
			if ex.Method == "" {
				ex.Method = m.FullName()
			}
			d.sink.HandleException(ex)
			return Result{Exception: ex}, nil
		}
		return Result{}, err
	}
	if m.Result == engine.TypeVoid {
		return Result{}, nil
	}
	b, err := transcoder.Lift(m.Result, out)
	if err != nil {
		return Result{}, err
	}
	return Result{Value: b, HasValue: true}, nil
}

// GetField reads a field declared on the class of inst or its ancestors.
// Static fields are read with a nil inst.
func (d *Dispatcher) GetField(ctx context.Context, cls *class.Descriptor, inst *class.Instance, name string) (value.Box, error) {
	t, err := d.target(errors.PhaseResolve, cls, inst)
	if err != nil {
		return value.Box{}, err
	}
	f, ok := t.table.Field(name)
	if !ok {
		return value.Box{}, d.memberMissing(t, name)
	}
	v, err := t.domain.LoadField(ctx, f, t.object)
	if err != nil {
		return value.Box{}, err
	}
	return transcoder.Lift(f.Type, v)
}

// SetField writes a field declared on the class of inst or its ancestors.
func (d *Dispatcher) SetField(ctx context.Context, cls *class.Descriptor, inst *class.Instance, name string, v value.Box) error {
	t, err := d.target(errors.PhaseResolve, cls, inst)
	if err != nil {
		return err
	}
	f, ok := t.table.Field(name)
	if !ok {
		return d.memberMissing(t, name)
	}
	native, err := transcoder.LowerValue(f.Type, v)
	if err != nil {
		return err
	}
	return t.domain.StoreField(ctx, f, t.object, native)
}

// GetProperty calls the getter of a property. Exceptions raised by the
// getter are absorbed like any other call.
func (d *Dispatcher) GetProperty(ctx context.Context, cls *class.Descriptor, inst *class.Instance, name string) (Result, error) {
	t, err := d.target(errors.PhaseResolve, cls, inst)
	if err != nil {
		return Result{}, err
	}
	p, ok := t.table.Property(name)
	if !ok {
		return Result{}, d.memberMissing(t, name)
	}
	if p.Getter == nil {
		return Result{}, errors.Unsupported(errors.PhaseInvoke, "property "+t.class+"."+name+" is write-only")
	}
	return d.call(ctx, t.domain, p.Getter, t.object, nil)
}

// SetProperty calls the setter of a property.
func (d *Dispatcher) SetProperty(ctx context.Context, cls *class.Descriptor, inst *class.Instance, name string, v value.Box) (Result, error) {
	t, err := d.target(errors.PhaseResolve, cls, inst)
	if err != nil {
		return Result{}, err
	}
	p, ok := t.table.Property(name)
	if !ok {
		return Result{}, d.memberMissing(t, name)
	}
	if p.Setter == nil {
		return Result{}, errors.Unsupported(errors.PhaseInvoke, "property "+t.class+"."+name+" is read-only")
	}
	native, err := transcoder.LowerValue(p.Type, v)
	if err != nil {
		return Result{}, err
	}
	return d.call(ctx, t.domain, p.Setter, t.object, []any{native})
}

func (d *Dispatcher) memberMissing(t *target, name string) error {
	Logger().Warn("member not found",
		zap.String("class", t.class),
		zap.String("member", name))
	return errors.MemberNotFound(errors.PhaseResolve, t.class, name)
}
