package entity

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/script-bridge/engine"
	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/value"
)

// Binding is a named host operation exposed to managed code.
type Binding struct {
	Fn   engine.NativeFunc
	Name string
}

// Bindings returns the entity operations managed code may call on host.
// Operations on an unknown entity id fail with a not-found error.
func Bindings(host Host) []Binding {
	withEntity := func(name string, fn func(e Entity, args []any) (any, error)) Binding {
		return Binding{Name: name, Fn: func(ctx context.Context, args ...any) (any, error) {
			id, err := argID(name, args, 0)
			if err != nil {
				return nil, err
			}
			e, ok := host.Get(id)
			if !ok {
				return nil, errors.NotFound(errors.PhaseHost, "entity", fmt.Sprint(id))
			}
			return fn(e, args)
		}}
	}

	return []Binding{
		{Name: "SpawnEntity", Fn: func(ctx context.Context, args ...any) (any, error) {
			p, ok := arg(args, 0).(SpawnParams)
			if !ok {
				return nil, badArg("SpawnEntity", 0, "SpawnParams", arg(args, 0))
			}
			e, err := host.Spawn(ctx, p)
			if err != nil {
				return uint32(0), err
			}
			return uint32(e.ID()), nil
		}},
		{Name: "RemoveEntity", Fn: func(ctx context.Context, args ...any) (any, error) {
			id, err := argID("RemoveEntity", args, 0)
			if err != nil {
				return nil, err
			}
			return host.Remove(ctx, id), nil
		}},
		{Name: "FindEntity", Fn: func(ctx context.Context, args ...any) (any, error) {
			name, err := argString("FindEntity", args, 0)
			if err != nil {
				return nil, err
			}
			if e, ok := host.Find(name); ok {
				return uint32(e.ID()), nil
			}
			return uint32(0), nil
		}},
		{Name: "GetEntitiesByClass", Fn: func(ctx context.Context, args ...any) (any, error) {
			cls, err := argString("GetEntitiesByClass", args, 0)
			if err != nil {
				return nil, err
			}
			ents := host.ByClass(cls)
			ids := make([]any, len(ents))
			for i, e := range ents {
				ids[i] = uint32(e.ID())
			}
			return ids, nil
		}},
		withEntity("GetName", func(e Entity, args []any) (any, error) {
			return e.Name(), nil
		}),
		withEntity("SetName", func(e Entity, args []any) (any, error) {
			name, err := argString("SetName", args, 1)
			if err != nil {
				return nil, err
			}
			e.SetName(name)
			return nil, nil
		}),
		withEntity("GetFlags", func(e Entity, args []any) (any, error) {
			return uint32(e.Flags()), nil
		}),
		withEntity("SetFlags", func(e Entity, args []any) (any, error) {
			f, err := argUint("SetFlags", args, 1)
			if err != nil {
				return nil, err
			}
			e.SetFlags(Flags(f))
			return nil, nil
		}),
		withEntity("GetWorldPos", func(e Entity, args []any) (any, error) {
			return e.WorldPos(), nil
		}),
		withEntity("SetWorldPos", func(e Entity, args []any) (any, error) {
			p, ok := arg(args, 1).(value.Vec3)
			if !ok {
				return nil, badArg("SetWorldPos", 1, "Vec3", arg(args, 1))
			}
			e.SetWorldPos(p)
			return nil, nil
		}),
		withEntity("GetWorldRotation", func(e Entity, args []any) (any, error) {
			return e.WorldRotation(), nil
		}),
		withEntity("SetWorldRotation", func(e Entity, args []any) (any, error) {
			q, ok := arg(args, 1).(value.Quat)
			if !ok {
				return nil, badArg("SetWorldRotation", 1, "Quat", arg(args, 1))
			}
			e.SetWorldRotation(q)
			return nil, nil
		}),
		withEntity("GetSlotFlags", func(e Entity, args []any) (any, error) {
			slot, err := argInt("GetSlotFlags", args, 1)
			if err != nil {
				return nil, err
			}
			return uint32(e.SlotFlags(slot)), nil
		}),
		withEntity("SetSlotFlags", func(e Entity, args []any) (any, error) {
			slot, err := argInt("SetSlotFlags", args, 1)
			if err != nil {
				return nil, err
			}
			f, err := argUint("SetSlotFlags", args, 2)
			if err != nil {
				return nil, err
			}
			e.SetSlotFlags(slot, SlotFlags(f))
			return nil, nil
		}),
		withEntity("GetAttachmentMaterial", func(e Entity, args []any) (any, error) {
			name, err := argString("GetAttachmentMaterial", args, 1)
			if err != nil {
				return nil, err
			}
			m, ok := e.AttachmentMaterial(name)
			if !ok {
				return nil, nil
			}
			return m, nil
		}),
		withEntity("SetAttachmentMaterial", func(e Entity, args []any) (any, error) {
			name, err := argString("SetAttachmentMaterial", args, 1)
			if err != nil {
				return nil, err
			}
			material, err := argString("SetAttachmentMaterial", args, 2)
			if err != nil {
				return nil, err
			}
			return e.SetAttachmentMaterial(name, material), nil
		}),
	}
}

// LogBindings returns the script logging operations, routed to l.
func LogBindings(l *zap.Logger) []Binding {
	logAt := func(name string, log func(string, ...zap.Field)) Binding {
		return Binding{Name: name, Fn: func(ctx context.Context, args ...any) (any, error) {
			msg, err := argString(name, args, 0)
			if err != nil {
				return nil, err
			}
			log(msg, zap.String("source", "script"))
			return nil, nil
		}}
	}
	return []Binding{
		logAt("Log", l.Info),
		logAt("LogAlways", l.Info),
		logAt("Warning", l.Warn),
	}
}

func arg(args []any, i int) any {
	if i < 0 || i >= len(args) {
		return nil
	}
	return args[i]
}

func badArg(op string, i int, want string, got any) error {
	return errors.New(errors.PhaseHost, errors.KindTypeMismatch).
		Path(op, fmt.Sprintf("arg%d", i)).
		GoType(fmt.Sprintf("%T", got)).
		ManagedType(want).
		Build()
}

func argString(op string, args []any, i int) (string, error) {
	switch v := arg(args, i).(type) {
	case string:
		return v, nil
	case value.Box:
		if s, err := v.AsString(); err == nil {
			return s, nil
		}
	}
	return "", badArg(op, i, "string", arg(args, i))
}

func argUint(op string, args []any, i int) (uint32, error) {
	switch v := arg(args, i).(type) {
	case uint32:
		return v, nil
	case ID:
		return uint32(v), nil
	case Flags:
		return uint32(v), nil
	case SlotFlags:
		return uint32(v), nil
	case int32:
		if v >= 0 {
			return uint32(v), nil
		}
	case int:
		if v >= 0 {
			return uint32(v), nil
		}
	case value.Box:
		if id, err := v.AsEntityID(); err == nil {
			return id, nil
		}
		if u, err := v.AsUInt32(); err == nil {
			return u, nil
		}
	}
	return 0, badArg(op, i, "uint", arg(args, i))
}

func argID(op string, args []any, i int) (ID, error) {
	u, err := argUint(op, args, i)
	return ID(u), err
}

func argInt(op string, args []any, i int) (int, error) {
	switch v := arg(args, i).(type) {
	case int32:
		return int(v), nil
	case int:
		return v, nil
	case uint32:
		return int(v), nil
	}
	return 0, badArg(op, i, "int", arg(args, i))
}
