// internal/infra/localstore/file_store.go
package localstore

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

const (
	fileExt    = ".json"
	tempPrefix = ".tmp-solare-"
)

var (
	ErrInvalidKey = errors.New("localstore: invalid key")
	ErrClosed     = errors.New("localstore: closed")
)

type fileWatcher struct {
	id  uint64
	key string
	fn  func(value []byte, present bool)
}

// FileStore keeps one file per key in dir. Several processes (or several stores in
// one process) may share a dir; each one is notified of the others' writes through
// fsnotify, never of its own.
type FileStore struct {
	dir string

	mu       sync.Mutex
	known    map[string][]byte // last value written or delivered, per key
	absent   map[string]bool   // key last removed or seen removed
	watchers []fileWatcher
	nextID   uint64
	fsw      *fsnotify.Watcher
	closed   bool
	done     chan struct{}
	loopDone chan struct{}
}

func NewFileStore(dir string) (*FileStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("localstore: empty dir")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("localstore: create %s: %w", dir, err)
	}
	return &FileStore{
		dir:    dir,
		known:  map[string][]byte{},
		absent: map[string]bool{},
		done:   make(chan struct{}),
	}, nil
}

func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) path(key string) (string, error) {
	k := strings.TrimSpace(key)
	if k == "" || k != filepath.Base(k) || strings.HasPrefix(k, ".") {
		return "", ErrInvalidKey
	}
	return filepath.Join(s.dir, k+fileExt), nil
}

func keyOf(name string) (string, bool) {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") || !strings.HasSuffix(base, fileExt) {
		return "", false
	}
	return strings.TrimSuffix(base, fileExt), true
}

func (s *FileStore) Get(key string) ([]byte, bool, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, false, err
	}
	b, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("localstore: read %s: %w", key, err)
	}
	return b, true, nil
}

func (s *FileStore) Set(key string, value []byte) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	// Recorded before the write so the watcher loop can never race ahead of it.
	s.known[key] = clone(value)
	s.absent[key] = false
	s.mu.Unlock()

	return atomicWriteFile(p, value, 0o644)
}

func (s *FileStore) Remove(key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	delete(s.known, key)
	s.absent[key] = true
	s.mu.Unlock()

	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("localstore: remove %s: %w", key, err)
	}
	return nil
}

// Watch registers fn for other writers' changes to key. If the directory cannot
// be watched, a warning is logged and fn is simply never called.
func (s *FileStore) Watch(key string, fn func(value []byte, present bool)) func() {
	if fn == nil {
		return func() {}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return func() {}
	}
	if err := s.ensureWatcherLocked(); err != nil {
		log.Printf("[localstore] WARN: watch %s disabled: %v", s.dir, err)
	}

	s.nextID++
	id := s.nextID
	s.watchers = append(s.watchers, fileWatcher{id: id, key: key, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, w := range s.watchers {
				if w.id == id {
					s.watchers = append(s.watchers[:i:i], s.watchers[i+1:]...)
					return
				}
			}
		})
	}
}

func (s *FileStore) ensureWatcherLocked() error {
	if s.fsw != nil {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(s.dir); err != nil {
		_ = w.Close()
		return err
	}
	s.fsw = w
	s.loopDone = make(chan struct{})
	go s.loop(w)
	return nil
}

func (s *FileStore) loop(w *fsnotify.Watcher) {
	defer close(s.loopDone)
	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) &&
				!ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
				continue
			}
			if key, ok := keyOf(ev.Name); ok {
				s.deliver(key)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			log.Printf("[localstore] WARN: watcher error: %v", err)
		}
	}
}

// deliver reads key's current value and notifies watchers unless it is
// the value this store already knows (its own write or a duplicate event).
func (s *FileStore) deliver(key string) {
	value, present, err := s.Get(key)
	if err != nil {
		log.Printf("[localstore] WARN: read after change %s: %v", key, err)
		return
	}

	s.mu.Lock()
	if present {
		if prev, ok := s.known[key]; ok && bytes.Equal(prev, value) {
			s.mu.Unlock()
			return
		}
		s.known[key] = clone(value)
		s.absent[key] = false
	} else {
		if s.absent[key] {
			s.mu.Unlock()
			return
		}
		delete(s.known, key)
		s.absent[key] = true
	}

	var targets []fileWatcher
	for _, w := range s.watchers {
		if w.key == key {
			targets = append(targets, w)
		}
	}
	s.mu.Unlock()

	for _, w := range targets {
		w.fn(clone(value), present)
	}
}

// Close stops the watcher. Get keeps working; Set/Remove return ErrClosed.
func (s *FileStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	w, loopDone := s.fsw, s.loopDone
	s.watchers = nil
	s.mu.Unlock()

	if w == nil {
		return nil
	}
	err := w.Close()
	<-loopDone
	return err
}
