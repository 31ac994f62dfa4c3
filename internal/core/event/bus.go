package event

import (
	"reflect"
	"sync"
)

// Bus is a double-buffered event bus. Events emitted in tick N are delivered
// in tick N+1 after SwapBuffers, in the order they were emitted. Publish
// bypasses the buffers and delivers immediately, for notifications that must
// be handled before the caller continues (entity teardown, slot switches).
type Bus struct {
	mu       sync.Mutex // only protects handler registration
	front    []queued
	back     []queued
	handlers map[reflect.Type][]func(any)
}

type queued struct {
	t  reflect.Type
	ev any
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[reflect.Type][]func(any))}
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Emit queues an event for the next tick. A nil bus drops it.
func Emit[T any](b *Bus, event T) {
	if b == nil {
		return
	}
	b.back = append(b.back, queued{t: typeOf[T](), ev: event})
}

// Publish delivers an event to its handlers right away, in subscription order.
func Publish[T any](b *Bus, event T) {
	if b == nil {
		return
	}
	for _, h := range b.snapshot(typeOf[T]()) {
		h(event)
	}
}

// Subscribe registers a typed handler for events of type T.
func Subscribe[T any](b *Bus, fn func(T)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := typeOf[T]()
	b.handlers[t] = append(b.handlers[t], func(ev any) { fn(ev.(T)) })
}

func (b *Bus) snapshot(t reflect.Type) []func(any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	hs := b.handlers[t]
	out := make([]func(any), len(hs))
	copy(out, hs)
	return out
}

// Pending returns how many emitted events wait for the next swap.
func (b *Bus) Pending() int { return len(b.back) }

// SwapBuffers moves the events emitted last tick to the front and clears the
// new back buffer. Called once at tick start.
func (b *Bus) SwapBuffers() {
	b.front, b.back = b.back, b.front[:0]
}

// DispatchAll delivers the front buffer. Events emitted by handlers land in
// the back buffer and wait for the next tick.
func (b *Bus) DispatchAll() {
	for i, q := range b.front {
		for _, h := range b.snapshot(q.t) {
			h(q.ev)
		}
		b.front[i] = queued{}
	}
}
