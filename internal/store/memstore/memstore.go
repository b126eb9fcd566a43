// Package memstore is an in-memory PartitionedStore, used by tests and by
// filters constructed without a backing file (spec.md's "optional durable
// backend" — when absent, Create/Load still need something to hand to the
// snapshot/recovery code paths in some test harnesses). It plays the role
// the teacher's internal/chunk/memory package plays for its own tests: a
// fast, deterministic stand-in for the real backend.
package memstore

import (
	"sort"
	"sync"

	"bloomkeep/bloomerr"
	"bloomkeep/internal/store"
)

// Store is a map-of-maps PartitionedStore guarded by a single RWMutex. It
// makes no attempt at efficient range iteration; that tradeoff is fine for
// its intended use (tests, small in-memory-only filters).
type Store struct {
	mu         sync.RWMutex
	partitions map[string]map[string][]byte
	closed     bool
}

var _ store.PartitionedStore = (*Store)(nil)

// New returns an empty in-memory store.
func New() *Store {
	return &Store{partitions: make(map[string]map[string][]byte)}
}

func (s *Store) Put(partition string, key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return bloomerr.ErrClosed
	}
	p, ok := s.partitions[partition]
	if !ok {
		p = make(map[string][]byte)
		s.partitions[partition] = p
	}
	buf := make([]byte, len(value))
	copy(buf, value)
	p[string(key)] = buf
	return nil
}

func (s *Store) Get(partition string, key []byte) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, false, bloomerr.ErrClosed
	}
	p, ok := s.partitions[partition]
	if !ok {
		return nil, false, nil
	}
	v, ok := p[string(key)]
	if !ok {
		return nil, false, nil
	}
	buf := make([]byte, len(v))
	copy(buf, v)
	return buf, true, nil
}

func (s *Store) Delete(partition string, key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return bloomerr.ErrClosed
	}
	if p, ok := s.partitions[partition]; ok {
		delete(p, string(key))
	}
	return nil
}

func (s *Store) DeleteAll(partition string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return bloomerr.ErrClosed
	}
	delete(s.partitions, partition)
	return nil
}

func (s *Store) ForEach(partition string, fn func(key, value []byte) error) error {
	s.mu.RLock()
	p, ok := s.partitions[partition]
	keys := make([]string, 0, len(p))
	vals := make(map[string][]byte, len(p))
	for k, v := range p {
		keys = append(keys, k)
		buf := make([]byte, len(v))
		copy(buf, v)
		vals[k] = buf
	}
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := fn([]byte(k), vals[k]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
