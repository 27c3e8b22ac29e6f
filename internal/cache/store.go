package cache

// store.go implements the Store that holds a client's cache and notifies watchers of changes

import (
	"sync"
)

// Store is a normalized cache shared by every operation of one client.
// All writes are applied under the lock, one complete write at a time, and watchers
// are called (outside the lock) after each write.
type Store struct {
	mu   sync.RWMutex
	data Snapshot

	watchMu  sync.Mutex
	watchers map[int]func()
	nextID   int
}

// New returns an empty store
func New() *Store {
	return &Store{
		data:     make(Snapshot),
		watchers: make(map[int]func()),
	}
}

// Extract returns a copy of the whole cache
func (s *Store) Extract() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Copy()
}

// Restore replaces the whole content of the cache with (a copy of) snap
func (s *Store) Restore(snap Snapshot) {
	snap = snap.Copy()
	if snap == nil {
		snap = make(Snapshot)
	}
	s.mu.Lock()
	s.data = snap
	s.mu.Unlock()
	s.notify()
}

// Hydrate merges a serialized snapshot into the cache (see Merge). A nil snapshot
// leaves the cache untouched and does not notify watchers.
func (s *Store) Hydrate(incoming Snapshot) {
	if incoming == nil {
		return
	}
	s.mu.Lock()
	s.data = Merge(s.data, incoming)
	s.mu.Unlock()
	s.notify()
}

// Field returns a copy of one field of one record
func (s *Store) Field(key, field string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.data[key]
	if !ok {
		return nil, false
	}
	v, ok := rec[field]
	return copyValue(v), ok
}

// WriteField sets one field of a record, creating the record if necessary.
// This is how client-local fields (eg ROOT_QUERY.token) are written by the application.
func (s *Store) WriteField(key, field string, value interface{}) {
	s.mu.Lock()
	rec, ok := s.data[key]
	if !ok {
		rec = make(Record)
		s.data[key] = rec
	}
	rec[field] = copyValue(value)
	s.mu.Unlock()
	s.notify()
}

// Subscribe registers fn to be called after every change to the cache.
// The returned function removes the registration.
func (s *Store) Subscribe(fn func()) (cancel func()) {
	s.watchMu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = fn
	s.watchMu.Unlock()

	return func() {
		s.watchMu.Lock()
		delete(s.watchers, id)
		s.watchMu.Unlock()
	}
}

func (s *Store) notify() {
	s.watchMu.Lock()
	fns := make([]func(), 0, len(s.watchers))
	for _, fn := range s.watchers {
		fns = append(fns, fn)
	}
	s.watchMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
