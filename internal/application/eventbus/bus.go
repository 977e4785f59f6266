// Package eventbus is a minimal synchronous publish/subscribe bus.
// Handlers run in subscription order on the publishing goroutine; a panicking
// handler is recovered and logged so the remaining handlers still run.
package eventbus

import (
	"log"
	"runtime/debug"
	"sync"
)

// Handler receives the payload passed to Publish.
type Handler func(payload any)

type subscription struct {
	id uint64
	fn Handler
}

// Bus lives as long as its owner; nothing is persisted.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string][]subscription
}

func New() *Bus {
	return &Bus{subs: make(map[string][]subscription)}
}

// Subscribe registers fn for name. The returned func removes it and is safe to call more than once.
func (b *Bus) Subscribe(name string, fn Handler) func() {
	if b == nil || fn == nil {
		return func() {}
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[name] = append(b.subs[name], subscription{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(name, id) })
	}
}

func (b *Bus) remove(name string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cur := b.subs[name]
	for i := range cur {
		if cur[i].id != id {
			continue
		}
		next := make([]subscription, 0, len(cur)-1)
		next = append(next, cur[:i]...)
		next = append(next, cur[i+1:]...)
		if len(next) == 0 {
			delete(b.subs, name)
		} else {
			b.subs[name] = next
		}
		return
	}
}

// Publish calls every current subscriber of name, synchronously and in subscription order.
// Subscribers added or removed by a handler take effect from the next Publish.
func (b *Bus) Publish(name string, payload any) {
	if b == nil {
		return
	}

	b.mu.RLock()
	handlers := append([]subscription(nil), b.subs[name]...)
	b.mu.RUnlock()

	for _, s := range handlers {
		b.dispatch(name, s.fn, payload)
	}
}

func (b *Bus) dispatch(name string, fn Handler, payload any) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[eventbus] handler for %q panicked: %v\n%s", name, rec, debug.Stack())
		}
	}()
	fn(payload)
}

func (b *Bus) SubscriberCount(name string) int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[name])
}

// On subscribes a typed handler. Payloads of another type are logged and skipped.
func On[T any](b *Bus, name string, fn func(T)) func() {
	if fn == nil {
		return func() {}
	}
	return b.Subscribe(name, func(payload any) {
		v, ok := payload.(T)
		if !ok {
			log.Printf("[eventbus] WARN: %q payload has type %T, handler expects %T", name, payload, v)
			return
		}
		fn(v)
	})
}
