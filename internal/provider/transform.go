package provider

import (
	"github.com/l1jgo/savemaster/internal/component"
	"github.com/l1jgo/savemaster/internal/core/ecs"
)

// Vec3 is the payload of Position and Scale.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Quat is the payload of Rotation.
type Quat struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

func transformField[T any](host Host, store *ecs.Store[component.Transform], id ecs.EntityID,
	read func(*component.Transform) T, write func(*component.Transform, T)) *Value[T] {
	get := func() (T, bool) {
		t, ok := store.Get(id)
		if !ok {
			var zero T
			return zero, false
		}
		return read(t), true
	}
	set := func(v T) {
		t, ok := store.Get(id)
		if !ok {
			t = component.NewTransform()
			store.Set(id, t)
		}
		write(t, v)
	}
	return NewValue[T](host, id, nil, get, set)
}

// NewPosition persists the entity's position.
func NewPosition(host Host, store *ecs.Store[component.Transform], id ecs.EntityID) *Value[Vec3] {
	return transformField(host, store, id,
		func(t *component.Transform) Vec3 { return Vec3(t.Position) },
		func(t *component.Transform, v Vec3) { t.Position = component.Vec3(v) })
}

// NewRotation persists the entity's rotation.
func NewRotation(host Host, store *ecs.Store[component.Transform], id ecs.EntityID) *Value[Quat] {
	return transformField(host, store, id,
		func(t *component.Transform) Quat { return Quat(t.Rotation) },
		func(t *component.Transform, q Quat) { t.Rotation = component.Quat(q) })
}

// NewScale persists the entity's scale.
func NewScale(host Host, store *ecs.Store[component.Transform], id ecs.EntityID) *Value[Vec3] {
	return transformField(host, store, id,
		func(t *component.Transform) Vec3 { return Vec3(t.Scale) },
		func(t *component.Transform, v Vec3) { t.Scale = component.Vec3(v) })
}
