package etch

import "fmt"
import "sync/atomic"

// Status records how far a cell has made it towards durable storage. It only increases.
type Status uint32

const (
	StatusUnknown   Status = iota // in memory only, or not known at all
	StatusStored                  // encoding is in the store, children may not be
	StatusPersisted               // cell and every descendant are in the store
	StatusAnnounced               // persisted and communicated to others
)

func (s Status) String() string {
	switch s {
	case StatusUnknown:
		return "UNKNOWN"
	case StatusStored:
		return "STORED"
	case StatusPersisted:
		return "PERSISTED"
	case StatusAnnounced:
		return "ANNOUNCED"
	}
	return fmt.Sprintf("Status(%d)", uint32(s))
}

// Ref is a handle to a cell. A direct ref holds the cell. Any other ref holds only
// the hash: it is hash-only until first resolved, soft afterwards, when the value
// lives in the resolver cache and is rebuilt from the store if evicted.
//
// Refs to the same hash are interchangeable. The status is relative to the store
// the ref was persisted to: persisting into another store starts from UNKNOWN again.
type Ref struct {
	hash  Hash
	value Cell
	soft  atomic.Bool
	state atomic.Pointer[refState]
}

// refState is replaced as a whole, store nil means a status set by the caller
type refState struct {
	status Status
	store  Store
}

// NewRef returns a direct ref to c.
func NewRef(c Cell) *Ref {
	if c == nil {
		c = Nil
	}
	return &Ref{value: c}
}

// RefForHash returns a hash-only ref.
func RefForHash(h Hash) *Ref {
	return &Ref{hash: h}
}

// Hash returns the hash of the referenced cell without loading it.
func (r *Ref) Hash() Hash {
	if r.value != nil {
		return r.value.Hash()
	}
	return r.hash
}

// Status is the status in the store the ref was last persisted to or read from.
func (r *Ref) Status() Status {
	if st := r.state.Load(); st != nil {
		return st.status
	}
	return StatusUnknown
}

// statusIn is the status with respect to store, UNKNOWN when it was earned in another one
func (r *Ref) statusIn(store Store) Status {
	st := r.state.Load()
	if st == nil {
		return StatusUnknown
	}
	if store != nil && st.store != nil && st.store != store {
		return StatusUnknown
	}
	return st.status
}

// IsDirect reports whether the cell is held by the ref itself.
func (r *Ref) IsDirect() bool {
	return r.value != nil
}

// IsSoft reports whether a hash-only ref has been resolved through a cache.
func (r *Ref) IsSoft() bool {
	return r.value == nil && r.soft.Load()
}

// IsEmbedded reports whether the referenced cell is inlined in parent encodings.
// Hash-only refs always point to branch cells.
func (r *Ref) IsEmbedded() bool {
	return r.value != nil && r.value.IsEmbedded()
}

// Value returns the cell, loading it through res when the ref is not direct.
// A hash no store can produce is reported as *MissingDataError.
func (r *Ref) Value(res *Resolver) (Cell, error) {
	if r.value != nil {
		return r.value, nil
	}
	if res == nil {
		return nil, &MissingDataError{Hash: r.hash}
	}
	c, err := res.Resolve(r.hash)
	if err != nil {
		return nil, err
	}
	r.soft.Store(true)
	return c, nil
}

// WithMinimumStatus returns a ref whose status is max(r.Status(), s).
// r itself is returned when it already qualifies.
func (r *Ref) WithMinimumStatus(s Status) *Ref {
	if r.Status() >= s {
		return r
	}
	n := &Ref{hash: r.hash, value: r.value}
	n.soft.Store(r.soft.Load())
	var store Store
	if st := r.state.Load(); st != nil {
		store = st.store
	}
	n.state.Store(&refState{status: s, store: store})
	return n
}

// raise lifts the status earned in store. Within one store it never goes down,
// a status from another store is replaced.
func (r *Ref) raise(s Status, store Store) {
	next := &refState{status: s, store: store}
	for {
		cur := r.state.Load()
		if cur != nil && cur.status >= s && (cur.store == store || cur.store == nil || store == nil) {
			return
		}
		if r.state.CompareAndSwap(cur, next) {
			return
		}
	}
}

// Persist stores the referenced cell and all its descendants, see Persist.
func (r *Ref) Persist(res *Resolver, onNovelty NoveltyHandler) (*Ref, error) {
	return Persist(res, r, onNovelty)
}

func (r *Ref) String() string {
	if r.value != nil {
		return r.value.String()
	}
	return "#ref " + r.hash.String()
}
