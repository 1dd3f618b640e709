package event

import (
	"reflect"
	"sync"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
)

// Handler receives emitted events.
type Handler interface {
	HandleEvent(Event)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(Event)

// HandleEvent calls f(e).
func (f HandlerFunc) HandleEvent(e Event) { f(e) }

// subscription pairs a handler with its identity key.
type subscription struct {
	id      string
	key     any
	handler Handler
}

// Bus dispatches events to subscribed handlers.
// Handlers for a type are invoked synchronously, in subscription order,
// on the emitter's goroutine. A handler that panics is recovered and
// logged; remaining handlers still run.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Type][]subscription
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[Type][]subscription),
	}
}

// Subscribe registers a handler for the given event type and returns a
// subscription ID. Registering the identical handler twice for the same
// type is idempotent: the existing subscription ID is returned. Identity
// is interface equality, so only handlers of comparable type are ever
// deduplicated; function handlers always get a fresh subscription, since
// two closures from the same source location share a code pointer even
// when they capture different state.
func (b *Bus) Subscribe(t Type, h Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := handlerKey(h)
	if key != nil {
		for _, sub := range b.handlers[t] {
			if sub.key == key {
				return sub.id
			}
		}
	}

	id := uuid.New().String()
	b.handlers[t] = append(b.handlers[t], subscription{
		id:      id,
		key:     key,
		handler: h,
	})
	return id
}

// Unsubscribe removes the subscription with the given ID for the given
// event type. Unknown IDs are ignored.
func (b *Bus) Unsubscribe(t Type, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.handlers[t]
	for i, sub := range subs {
		if sub.id == id {
			b.handlers[t] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Emit dispatches the event to all handlers subscribed to its type.
func (b *Bus) Emit(e Event) {
	b.mu.RLock()
	// Copy subscriptions to avoid holding the lock during dispatch;
	// handlers may subscribe or unsubscribe while handling.
	subs := make([]subscription, len(b.handlers[e.Type]))
	copy(subs, b.handlers[e.Type])
	b.mu.RUnlock()

	for _, sub := range subs {
		dispatch(sub.handler, e)
	}
}

func dispatch(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("event: handler panic on %s: %v", e.Type, r)
		}
	}()
	h.HandleEvent(e)
}

// handlerKey derives an identity key for duplicate detection. Only
// comparable handler types have a usable identity; func values do not
// compare, and their code pointers collide for closures over different
// state, so func-typed handlers return nil and are never deduplicated.
func handlerKey(h Handler) any {
	t := reflect.TypeOf(h)
	if t == nil || t.Kind() == reflect.Func || !t.Comparable() {
		return nil
	}
	return h
}
