// internal/infra/localstore/memory_store.go
package localstore

import (
	"sync"
)

type memWatcher struct {
	id  uint64
	tab uint64
	key string
	fn  func(value []byte, present bool)
}

// MemoryProfile is an in-process browser profile. Each Tab is a LocalStore view
// onto the same data; a write from one tab notifies the watchers of every other
// tab synchronously, after the value is stored.
type MemoryProfile struct {
	mu       sync.Mutex
	data     map[string][]byte
	nextID   uint64
	watchers []memWatcher
	writeErr error
}

func NewMemoryProfile() *MemoryProfile {
	return &MemoryProfile{data: map[string][]byte{}}
}

// Tab opens a new view onto the profile.
func (p *MemoryProfile) Tab() *MemoryTab {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	return &MemoryTab{p: p, id: p.nextID}
}

// FailWrites makes every Set/Remove return err until called with nil (quota, private mode).
func (p *MemoryProfile) FailWrites(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeErr = err
}

// Raw reads a key without going through a tab.
func (p *MemoryProfile) Raw(key string) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.data[key]
	return clone(v), ok
}

func (p *MemoryProfile) write(tab uint64, key string, value []byte, present bool) error {
	p.mu.Lock()
	if p.writeErr != nil {
		err := p.writeErr
		p.mu.Unlock()
		return err
	}
	if present {
		p.data[key] = clone(value)
	} else {
		delete(p.data, key)
	}

	var targets []memWatcher
	for _, w := range p.watchers {
		if w.key == key && w.tab != tab {
			targets = append(targets, w)
		}
	}
	p.mu.Unlock()

	for _, w := range targets {
		w.fn(clone(value), present)
	}
	return nil
}

func (p *MemoryProfile) unwatch(id uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, w := range p.watchers {
		if w.id == id {
			p.watchers = append(p.watchers[:i:i], p.watchers[i+1:]...)
			return
		}
	}
}

// MemoryTab is one tab's LocalStore.
type MemoryTab struct {
	p  *MemoryProfile
	id uint64
}

func (t *MemoryTab) Get(key string) ([]byte, bool, error) {
	t.p.mu.Lock()
	defer t.p.mu.Unlock()
	v, ok := t.p.data[key]
	return clone(v), ok, nil
}

func (t *MemoryTab) Set(key string, value []byte) error {
	return t.p.write(t.id, key, value, true)
}

func (t *MemoryTab) Remove(key string) error {
	return t.p.write(t.id, key, nil, false)
}

func (t *MemoryTab) Watch(key string, fn func(value []byte, present bool)) func() {
	if fn == nil {
		return func() {}
	}
	t.p.mu.Lock()
	t.p.nextID++
	id := t.p.nextID
	t.p.watchers = append(t.p.watchers, memWatcher{id: id, tab: t.id, key: key, fn: fn})
	t.p.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { t.p.unwatch(id) }) }
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
