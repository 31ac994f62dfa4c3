package provider

import (
	"github.com/l1jgo/savemaster/internal/component"
	"github.com/l1jgo/savemaster/internal/core/ecs"
)

// NewVisibility persists whether the entity is shown, as "1" or "0".
func NewVisibility(host Host, store *ecs.Store[component.Visible], id ecs.EntityID) *Value[bool] {
	get := func() (bool, bool) {
		v, ok := store.Get(id)
		if !ok {
			return false, false
		}
		return v.On, true
	}
	set := func(on bool) {
		if v, ok := store.Get(id); ok {
			v.On = on
			return
		}
		store.Set(id, &component.Visible{On: on})
	}
	return NewValue[bool](host, id, Flag{}, get, set)
}

// NewCounter persists an integer counter.
func NewCounter(host Host, store *ecs.Store[component.Counter], id ecs.EntityID) *Value[int] {
	get := func() (int, bool) {
		c, ok := store.Get(id)
		if !ok {
			return 0, false
		}
		return c.Value, true
	}
	set := func(n int) {
		if c, ok := store.Get(id); ok {
			c.Value = n
			return
		}
		store.Set(id, &component.Counter{Value: n})
	}
	return NewValue[int](host, id, nil, get, set)
}
