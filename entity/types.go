package entity

import (
	"context"

	"github.com/wippyai/script-bridge/value"
)

// ID identifies a host entity. Zero is never a valid id.
type ID uint32

// Flags are host entity flags. The bridge passes them through unchanged.
type Flags uint32

// SlotFlags are per-slot render flags.
type SlotFlags uint32

// SpawnParams describes an entity to spawn.
type SpawnParams struct {
	Name  string
	Class string
	Pos   value.Vec3
	// Rot is an euler rotation in degrees.
	Rot   value.Vec3
	Scale value.Vec3
	Flags Flags
}

// Entity is a live host entity. Physics, animation and material semantics
// stay on the host side; materials are opaque names here.
type Entity interface {
	ID() ID
	Class() string
	Name() string
	SetName(name string)
	Flags() Flags
	SetFlags(f Flags)
	WorldPos() value.Vec3
	SetWorldPos(p value.Vec3)
	Scale() value.Vec3
	WorldRotation() value.Quat
	SetWorldRotation(q value.Quat)
	SlotFlags(slot int) SlotFlags
	SetSlotFlags(slot int, f SlotFlags)
	AttachmentMaterial(attachment string) (string, bool)
	SetAttachmentMaterial(attachment, material string) bool
}

// Host is the host's entity registry.
type Host interface {
	Spawn(ctx context.Context, p SpawnParams) (Entity, error)
	Remove(ctx context.Context, id ID) bool
	Get(id ID) (Entity, bool)
	Find(name string) (Entity, bool)
	ByClass(class string) []Entity
}

// Listener receives entity lifecycle notifications from a Host. They are
// delivered synchronously on the update thread.
type Listener interface {
	// OnBeforeSpawn may veto a spawn by returning false.
	OnBeforeSpawn(p *SpawnParams) bool
	OnSpawn(ctx context.Context, id ID, p SpawnParams) error
	// OnRemove reports whether the entity was bridged.
	OnRemove(ctx context.Context, id ID) bool
}
