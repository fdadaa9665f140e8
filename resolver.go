package etch

import "github.com/hashicorp/golang-lru/v2"
import "golang.org/x/sync/singleflight"

// DefaultCacheSize is the number of decoded cells a resolver keeps.
const DefaultCacheSize = 64 * 1024

// Resolver loads cells by hash from a store. Decoded cells are kept in a
// bounded cache, concurrent loads of one hash share a single decode.
type Resolver struct {
	store Store
	cache *lru.Cache[Hash, Cell]
	group singleflight.Group
}

// NewResolver binds store to a decode cache of cacheSize cells, DefaultCacheSize if cacheSize <= 0.
func NewResolver(store Store, cacheSize int) *Resolver {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[Hash, Cell](cacheSize)
	if err != nil {
		panic(err) // only for a non-positive size
	}
	return &Resolver{store: store, cache: cache}
}

func (r *Resolver) Store() Store { return r.store }

// Resolve returns the cell stored under h, *MissingDataError when absent.
// Stored bytes that no longer match h fail with ErrCorruption. Small cells
// are only stored on their own as persisted roots and resolve like any other.
func (r *Resolver) Resolve(h Hash) (Cell, error) {
	if c, ok := r.cache.Get(h); ok {
		return c, nil
	}
	v, err, _ := r.group.Do(string(h[:]), func() (interface{}, error) {
		if c, ok := r.cache.Get(h); ok {
			return c, nil
		}
		e, ok, err := r.store.Read(h)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &MissingDataError{Hash: h}
		}
		c, err := DecodeVerified(h, e.Encoding)
		if err != nil {
			return nil, err
		}
		if e.Status >= StatusPersisted {
			// everything below a persisted cell is in the same store
			for i, n := 0, c.RefCount(); i < n; i++ {
				c.Ref(i).raise(StatusPersisted, r.store)
			}
		}
		r.cache.Add(h, c)
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Cell), nil
}

// Get returns a hash-only ref for h if h is stored, carrying the stored status.
func (r *Resolver) Get(h Hash) (*Ref, bool, error) {
	e, ok, err := r.store.Read(h)
	if err != nil || !ok {
		return nil, false, err
	}
	ref := RefForHash(h)
	ref.raise(e.Status, r.store)
	return ref, true, nil
}
