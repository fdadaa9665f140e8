package etch

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// bigVector has non embedded elements so that every level lands in the store
func bigVector(n int) *Vector {
	elems := make([]Cell, n)
	for i := range elems {
		elems[i] = NewString(fmt.Sprintf("%0200d", i))
	}
	return NewVector(elems...)
}

func TestPersistIdempotent(t *testing.T) {
	store := NewMemStore()
	res := NewResolver(store, 0)

	v := bigVector(100)
	var novel []*Ref
	root, err := Persist(res, NewRef(v), func(r *Ref) { novel = append(novel, r) })
	require.NoError(t, err)
	require.Equal(t, StatusPersisted, root.Status())
	require.Equal(t, store.Len(), len(novel))
	require.Equal(t, v.Hash(), novel[len(novel)-1].Hash()) // parent last

	seen := map[Hash]bool{}
	for _, r := range novel {
		require.False(t, seen[r.Hash()], "reported twice")
		seen[r.Hash()] = true
	}

	// a second persist of an equal value writes and reports nothing
	before := store.Len()
	again, err := Persist(res, NewRef(bigVector(100)), func(r *Ref) { t.Fatalf("novelty %s", r.Hash()) })
	require.NoError(t, err)
	require.Equal(t, StatusPersisted, again.Status())
	require.Equal(t, before, store.Len())

	// children come before parents
	pos := map[Hash]int{}
	for i, r := range novel {
		pos[r.Hash()] = i
	}
	for _, r := range novel {
		c, err := r.Value(res)
		require.NoError(t, err)
		for i := 0; i < c.RefCount(); i++ {
			if child := c.Ref(i); !child.IsEmbedded() {
				require.Less(t, pos[child.Hash()], pos[r.Hash()])
			}
		}
	}
}

// a root small enough to embed is still stored, its embedded children are not
func TestPersistEmbedded(t *testing.T) {
	store := NewMemStore()
	res := NewResolver(store, 0)

	v := NewVector(NewLong(5), NewString("five"), Nil)
	require.True(t, v.IsEmbedded())
	novel := 0
	r, err := Persist(res, NewRef(v), func(*Ref) { novel++ })
	require.NoError(t, err)
	require.Equal(t, StatusPersisted, r.Status())
	require.Equal(t, 1, novel)
	require.Equal(t, 1, store.Len())

	e, ok, err := store.Read(v.Hash())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, v.Encoding(), e.Encoding)
	require.Equal(t, StatusPersisted, e.Status)

	c, err := RefForHash(v.Hash()).Value(NewResolver(store, 0))
	require.NoError(t, err)
	require.True(t, Equals(v, c))
	require.NoError(t, Validate(NewResolver(store, 0), RefForHash(v.Hash())))
}

// a cell holding branch refs is never embedded, however short
func TestBranchesAreNotEmbedded(t *testing.T) {
	leaf := NewString(fmt.Sprintf("%0200d", 7))
	v := NewVector(leaf)
	require.LessOrEqual(t, len(v.Encoding()), MaxEmbeddedLength)
	require.False(t, v.IsEmbedded())
	require.False(t, NewList(leaf).IsEmbedded())
	require.False(t, NewSet(leaf).IsEmbedded())

	outer := NewVector(v)
	require.Equal(t, TagRef, outer.Encoding()[2])

	// the same vector written inline is a second encoding
	bad := append([]byte{TagVector, 0x01}, v.Encoding()...)
	_, err := Decode(bad)
	require.ErrorIs(t, err, ErrBadFormat)

	// vectors of small values keep the tree nodes in the store
	store := NewMemStore()
	res := NewResolver(store, 0)
	elems := make([]Cell, 1000)
	for i := range elems {
		elems[i] = NewLong(int64(i))
	}
	big := NewVector(elems...)
	require.False(t, big.IsEmbedded())
	_, err = Persist(res, NewRef(big), nil)
	require.NoError(t, err)
	_, ok, err := store.Read(big.Hash())
	require.NoError(t, err)
	require.True(t, ok)
}

func TestPersistSharedChildren(t *testing.T) {
	store := NewMemStore()
	res := NewResolver(store, 0)

	shared := NewString(string(make([]byte, 1000)))
	a := NewVector(shared, NewString(fmt.Sprintf("%0200d", 1)))
	b := NewVector(shared, NewString(fmt.Sprintf("%0200d", 2)))

	count := 0
	_, err := Persist(res, NewRef(a), func(*Ref) { count++ })
	require.NoError(t, err)
	require.Equal(t, 3, count)

	count = 0
	_, err = Persist(res, NewRef(b), func(*Ref) { count++ })
	require.NoError(t, err)
	require.Equal(t, 2, count) // the shared string is not new
	require.Equal(t, 5, store.Len())
}

func TestAnnounce(t *testing.T) {
	store := NewMemStore()
	res := NewResolver(store, 0)

	v := bigVector(20)
	persisted := 0
	_, err := Persist(res, NewRef(v), func(*Ref) { persisted++ })
	require.NoError(t, err)

	announced := 0
	r, err := Announce(res, NewRef(v), func(*Ref) { announced++ })
	require.NoError(t, err)
	require.Equal(t, StatusAnnounced, r.Status())
	require.Equal(t, persisted, announced)

	e, ok, err := store.Read(v.Hash())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, StatusAnnounced, e.Status)

	// announcing again is a no-op
	_, err = Announce(res, NewRef(v), func(*Ref) { t.Fatal("announced twice") })
	require.NoError(t, err)
}

func TestPersistTwoStores(t *testing.T) {
	a, b := NewMemStore(), NewMemStore()
	resA, resB := NewResolver(a, 0), NewResolver(b, 0)

	ref := NewRef(bigVector(40))
	novelA := 0
	_, err := Persist(resA, ref, func(*Ref) { novelA++ })
	require.NoError(t, err)
	require.Equal(t, a.Len(), novelA)

	// persisted in a says nothing about b
	novelB := 0
	got, err := Persist(resB, ref, func(*Ref) { novelB++ })
	require.NoError(t, err)
	require.Equal(t, StatusPersisted, got.Status())
	require.Equal(t, novelA, novelB)
	require.Equal(t, a.Len(), b.Len())

	fresh := NewResolver(b, 0)
	c, err := RefForHash(ref.Hash()).Value(fresh)
	require.NoError(t, err)
	require.Equal(t, int64(40), c.(*Vector).Count())
	require.NoError(t, Validate(fresh, RefForHash(ref.Hash())))

	// and back in a nothing is new
	_, err = Persist(resA, ref, func(r *Ref) { t.Fatalf("novelty %s", r.Hash()) })
	require.NoError(t, err)
}

func TestPersistNoStore(t *testing.T) {
	_, err := Persist(nil, NewRef(bigVector(3)), nil)
	require.ErrorIs(t, err, ErrNoStore)

	// already persisted refs need no store
	r := NewRef(NewLong(1)).WithMinimumStatus(StatusPersisted)
	got, err := Persist(nil, r, nil)
	require.NoError(t, err)
	require.Same(t, r, got)
}

func TestPersistMissingData(t *testing.T) {
	store := NewMemStore()
	res := NewResolver(store, 0)

	missing := RefForHash(NewString(string(make([]byte, 500))).Hash())
	v := VectorOf(missing, NewRef(NewLong(1)))
	_, err := Persist(res, NewRef(v), nil)
	var mde *MissingDataError
	require.ErrorAs(t, err, &mde)
	require.Equal(t, missing.Hash(), mde.Hash)
	require.ErrorIs(t, err, ErrMissingData)

	_, err = v.Get(res, 0)
	require.ErrorIs(t, err, ErrMissingData)
	_, err = missing.Value(nil)
	require.ErrorIs(t, err, ErrMissingData)
}

func TestRefStatus(t *testing.T) {
	r := NewRef(NewLong(1))
	require.Equal(t, StatusUnknown, r.Status())
	require.True(t, r.IsDirect())
	require.True(t, r.IsEmbedded())

	p := r.WithMinimumStatus(StatusPersisted)
	require.Equal(t, StatusPersisted, p.Status())
	require.Equal(t, StatusUnknown, r.Status())
	require.Same(t, p, p.WithMinimumStatus(StatusStored))

	r.raise(StatusStored, nil)
	r.raise(StatusUnknown, nil)
	require.Equal(t, StatusStored, r.Status())

	// a status is only good for the store it was earned in
	a, b := NewMemStore(), NewMemStore()
	s := NewRef(NewLong(2))
	s.raise(StatusPersisted, a)
	require.Equal(t, StatusPersisted, s.statusIn(a))
	require.Equal(t, StatusUnknown, s.statusIn(b))
	s.raise(StatusStored, b)
	require.Equal(t, StatusStored, s.Status())
	require.Equal(t, StatusUnknown, s.statusIn(a))
	require.Equal(t, "PERSISTED", StatusPersisted.String())
}

func TestResolverLoadsLazily(t *testing.T) {
	store := NewMemStore()
	res := NewResolver(store, 16)

	v := bigVector(300)
	_, err := Persist(res, NewRef(v), nil)
	require.NoError(t, err)

	ref, ok, err := res.Get(v.Hash())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, StatusPersisted, ref.Status())
	require.False(t, ref.IsDirect())
	require.False(t, ref.IsSoft())

	c, err := ref.Value(res)
	require.NoError(t, err)
	require.True(t, ref.IsSoft())
	loaded := c.(*Vector)

	// children of a persisted cell are persisted too
	require.Equal(t, StatusPersisted, loaded.Ref(0).Status())

	for i := int64(0); i < 300; i += 37 {
		e, err := loaded.Get(res, i)
		require.NoError(t, err)
		require.Equal(t, fmt.Sprintf("%0200d", i), mustString(t, res, e))
	}
	require.NoError(t, Validate(res, ref))

	_, ok, err = res.Get(NewLong(12345).Hash())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStoredCorruption(t *testing.T) {
	store := NewMemStore()
	res := NewResolver(store, 0)

	s := NewString(string(make([]byte, 400)))
	_, err := store.Write(s.Hash(), append([]byte{TagString}, make([]byte, 401)...), StatusStored)
	require.NoError(t, err)
	_, err = RefForHash(s.Hash()).Value(res)
	require.ErrorIs(t, err, ErrCorruption)
}

func mustString(t *testing.T, res *Resolver, c Cell) string {
	s, err := c.(*String).Value(res)
	require.NoError(t, err)
	return s
}
