// Package memstore is an in-memory storage.Store.
package memstore

import (
	"sync"

	"xdao.co/nref/event"
	"xdao.co/nref/storage"
)

type Store struct {
	mu sync.RWMutex
	m  map[event.ID]storage.Entry

	// Writes counts successful Write and Delete calls.
	Writes int
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{m: make(map[event.ID]storage.Entry)}
}

func (s *Store) Exists(id event.ID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.m[id]
	return ok, nil
}

func (s *Store) Read(id event.ID) (*storage.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.m[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &e, nil
}

func (s *Store) Write(id event.ID, entry storage.Entry) error {
	if err := entry.Validate(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[id] = entry
	s.Writes++
	return nil
}

func (s *Store) Delete(id event.ID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[id]; !ok {
		return false, nil
	}
	delete(s.m, id)
	s.Writes++
	return true, nil
}

func (s *Store) List() ([]storage.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]storage.Entry, 0, len(s.m))
	for _, e := range s.m {
		out = append(out, e)
	}
	storage.SortNewest(out)
	return out, nil
}
