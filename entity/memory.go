package entity

import (
	"context"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/value"
)

// MemoryHost is an in-memory entity registry. It stands in for the game
// engine's entity system in tests and in the command line runner.
type MemoryHost struct {
	listener Listener
	entities map[ID]*memEntity
	next     ID
}

// NewMemoryHost creates an empty registry.
func NewMemoryHost() *MemoryHost {
	return &MemoryHost{entities: make(map[ID]*memEntity)}
}

// SetListener installs the receiver of lifecycle notifications.
func (h *MemoryHost) SetListener(l Listener) { h.listener = l }

// Spawn creates an entity and notifies the listener. A vetoed spawn or a
// failing OnSpawn leaves no entity behind.
func (h *MemoryHost) Spawn(ctx context.Context, p SpawnParams) (Entity, error) {
	if p.Class == "" {
		return nil, errors.InvalidInput(errors.PhaseBridge, "spawn without entity class")
	}
	if h.listener != nil && !h.listener.OnBeforeSpawn(&p) {
		return nil, errors.New(errors.PhaseBridge, errors.KindInvalidInput).
			Detail("spawn of %q vetoed", p.Class).
			Build()
	}

	h.next++
	e := &memEntity{
		id:          h.next,
		class:       p.Class,
		name:        p.Name,
		flags:       p.Flags,
		pos:         p.Pos,
		rot:         eulerToQuat(p.Rot),
		scale:       p.Scale,
		slots:       make(map[int]SlotFlags),
		attachments: make(map[string]string),
	}
	h.entities[e.id] = e

	if h.listener != nil {
		if err := h.listener.OnSpawn(ctx, e.id, p); err != nil {
			delete(h.entities, e.id)
			return nil, err
		}
	}
	Logger().Debug("entity spawned",
		zap.Uint32("id", uint32(e.id)),
		zap.String("class", e.class),
		zap.String("name", e.name))
	return e, nil
}

// Remove deletes an entity, notifying the listener first.
func (h *MemoryHost) Remove(ctx context.Context, id ID) bool {
	if _, ok := h.entities[id]; !ok {
		return false
	}
	if h.listener != nil {
		h.listener.OnRemove(ctx, id)
	}
	delete(h.entities, id)
	return true
}

func (h *MemoryHost) Get(id ID) (Entity, bool) {
	e, ok := h.entities[id]
	if !ok {
		return nil, false
	}
	return e, true
}

// Find returns the entity with the lowest id named name.
func (h *MemoryHost) Find(name string) (Entity, bool) {
	for _, e := range h.sorted() {
		if e.name == name {
			return e, true
		}
	}
	return nil, false
}

// ByClass returns the entities of class in id order.
func (h *MemoryHost) ByClass(class string) []Entity {
	var out []Entity
	for _, e := range h.sorted() {
		if e.class == class {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of live entities.
func (h *MemoryHost) Len() int { return len(h.entities) }

func (h *MemoryHost) sorted() []*memEntity {
	out := make([]*memEntity, 0, len(h.entities))
	for _, e := range h.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

type memEntity struct {
	slots       map[int]SlotFlags
	attachments map[string]string
	class       string
	name        string
	pos         value.Vec3
	scale       value.Vec3
	rot         value.Quat
	id          ID
	flags       Flags
}

func (e *memEntity) ID() ID { return e.id }
func (e *memEntity) Class() string { return e.class }
func (e *memEntity) Name() string { return e.name }
func (e *memEntity) SetName(name string) { e.name = name }
func (e *memEntity) Flags() Flags { return e.flags }
func (e *memEntity) SetFlags(f Flags) { e.flags = f }
func (e *memEntity) WorldPos() value.Vec3 { return e.pos }
func (e *memEntity) SetWorldPos(p value.Vec3) { e.pos = p }
func (e *memEntity) Scale() value.Vec3 { return e.scale }
func (e *memEntity) WorldRotation() value.Quat { return e.rot }
func (e *memEntity) SetWorldRotation(q value.Quat) { e.rot = q }
func (e *memEntity) SlotFlags(slot int) SlotFlags { return e.slots[slot] }
func (e *memEntity) SetSlotFlags(slot int, f SlotFlags) { e.slots[slot] = f }

// AttachmentMaterial returns the material bound to an attachment. Unknown
// attachments report false.
func (e *memEntity) AttachmentMaterial(attachment string) (string, bool) {
	m, ok := e.attachments[attachment]
	return m, ok
}

func (e *memEntity) SetAttachmentMaterial(attachment, material string) bool {
	if attachment == "" {
		return false
	}
	e.attachments[attachment] = material
	return true
}

// eulerToQuat converts an XYZ euler rotation in degrees.
func eulerToQuat(r value.Vec3) value.Quat {
	const rad = math.Pi / 180
	cx, sx := math.Cos(float64(r.X)*rad/2), math.Sin(float64(r.X)*rad/2)
	cy, sy := math.Cos(float64(r.Y)*rad/2), math.Sin(float64(r.Y)*rad/2)
	cz, sz := math.Cos(float64(r.Z)*rad/2), math.Sin(float64(r.Z)*rad/2)
	return value.Quat{
		W: float32(cx*cy*cz + sx*sy*sz),
		X: float32(sx*cy*cz - cx*sy*sz),
		Y: float32(cx*sy*cz + sx*cy*sz),
		Z: float32(cx*cy*sz - sx*sy*cz),
	}
}
