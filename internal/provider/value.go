// Package provider contains the stock state providers that persist entity
// components through a save.Saveable.
package provider

import (
	"strconv"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"

	"github.com/l1jgo/savemaster/internal/core/ecs"
)

// Host reports whether the entity a provider reads from still exists.
type Host interface {
	Alive(id ecs.EntityID) bool
}

// Codec turns a value into a payload string and back.
type Codec[T any] interface {
	Encode(v T) (string, error)
	Decode(payload string) (T, error)
}

// JSON is the default codec.
type JSON[T any] struct{}

func (JSON[T]) Encode(v T) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", eris.Wrap(err, "encode payload")
	}
	return string(b), nil
}

func (JSON[T]) Decode(payload string) (T, error) {
	var v T
	if err := json.Unmarshal([]byte(payload), &v); err != nil {
		return v, eris.Wrap(err, "decode payload")
	}
	return v, nil
}

// Flag encodes a bool as "1" or "0".
type Flag struct{}

func (Flag) Encode(v bool) (string, error) {
	if v {
		return "1", nil
	}
	return "0", nil
}

func (Flag) Decode(payload string) (bool, error) {
	switch payload {
	case "1":
		return true, nil
	case "0":
		return false, nil
	}
	b, err := strconv.ParseBool(payload)
	if err != nil {
		return false, eris.Wrapf(err, "decode flag %q", payload)
	}
	return b, nil
}

// Value persists one piece of entity state read through get and written
// through set. Changes are detected by comparing the encoded payload with
// the last one saved or loaded.
type Value[T any] struct {
	host  Host
	id    ecs.EntityID
	codec Codec[T]
	get   func() (T, bool)
	set   func(T)

	last  string
	known bool
}

// NewValue builds a provider for entity id. A nil host means the value
// never dies on its own; a nil codec means JSON.
func NewValue[T any](host Host, id ecs.EntityID, codec Codec[T], get func() (T, bool), set func(T)) *Value[T] {
	if codec == nil {
		codec = JSON[T]{}
	}
	return &Value[T]{host: host, id: id, codec: codec, get: get, set: set}
}

func (v *Value[T]) Entity() ecs.EntityID { return v.id }

func (v *Value[T]) Alive() bool {
	return v.host == nil || v.host.Alive(v.id)
}

func (v *Value[T]) Save() (string, error) {
	cur, ok := v.get()
	if !ok {
		return "", nil
	}
	payload, err := v.codec.Encode(cur)
	if err != nil {
		return "", err
	}
	v.last, v.known = payload, true
	return payload, nil
}

func (v *Value[T]) Load(payload string) error {
	val, err := v.codec.Decode(payload)
	if err != nil {
		return err
	}
	v.set(val)
	// re-encode so formatting differences in the stored payload do not
	// read as a change
	if norm, err := v.codec.Encode(val); err == nil {
		payload = norm
	}
	v.last, v.known = payload, true
	return nil
}

func (v *Value[T]) HasChanges() bool {
	cur, ok := v.get()
	if !ok {
		return false
	}
	if !v.known {
		return true
	}
	payload, err := v.codec.Encode(cur)
	return err != nil || payload != v.last
}
