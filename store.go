package etch

import "sync"

// Entry is what a store holds for a hash.
type Entry struct {
	Encoding []byte
	Status   Status
}

//go:generate mockgen -source=store.go -destination=internal/mocks/store.go -package=mocks

// Store maps hashes to encodings. Stores are append only: a hash once written
// keeps its bytes, only its status can be raised.
type Store interface {
	// Read returns the entry for h, ok is false when h was never written.
	// A miss is not an error.
	Read(h Hash) (e Entry, ok bool, err error)
	// Write records enc under h with at least the given status and returns the
	// status held before the call, StatusUnknown when the bytes are new.
	// Rewriting a known hash does not touch its bytes.
	Write(h Hash, enc []byte, status Status) (prior Status, err error)
	Close() error
}

// MemStore is a Store held in memory, useful for tests and temporary use.
type MemStore struct {
	sync.RWMutex
	entries map[Hash]*Entry
	closed  bool
}

func NewMemStore() *MemStore {
	return &MemStore{entries: map[Hash]*Entry{}}
}

func (s *MemStore) Read(h Hash) (Entry, bool, error) {
	s.RLock()
	defer s.RUnlock()
	if s.closed {
		return Entry{}, false, ErrClosed
	}
	e, ok := s.entries[h]
	if !ok {
		return Entry{}, false, nil
	}
	return *e, true, nil
}

func (s *MemStore) Write(h Hash, enc []byte, status Status) (Status, error) {
	if status < StatusStored {
		status = StatusStored
	}
	s.Lock()
	defer s.Unlock()
	if s.closed {
		return StatusUnknown, ErrClosed
	}
	if e, ok := s.entries[h]; ok {
		prior := e.Status
		if status > prior {
			e.Status = status
		}
		return prior, nil
	}
	buf := make([]byte, len(enc))
	copy(buf, enc)
	s.entries[h] = &Entry{Encoding: buf, Status: status}
	return StatusUnknown, nil
}

// Len returns the number of stored hashes.
func (s *MemStore) Len() int {
	s.RLock()
	defer s.RUnlock()
	return len(s.entries)
}

func (s *MemStore) Close() error {
	s.Lock()
	defer s.Unlock()
	s.closed = true
	s.entries = nil
	return nil
}
