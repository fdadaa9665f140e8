package etch

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ed25519"
)

func TestVectorGrowth(t *testing.T) {
	v := EmptyVector
	var err error
	for i := 0; i < 1000; i++ {
		v, err = v.Append(nil, NewLong(int64(i)))
		require.NoError(t, err)
		require.Equal(t, int64(i+1), v.Count())
	}

	// appending one by one lands on the same cell as building in one go
	elems := make([]Cell, 1000)
	for i := range elems {
		elems[i] = NewLong(int64(i))
	}
	require.Equal(t, NewVector(elems...).Hash(), v.Hash())

	for _, i := range []int64{0, 15, 16, 255, 256, 999} {
		c, err := v.Get(nil, i)
		require.NoError(t, err)
		require.Equal(t, i, c.(*Long).Value())
	}
	_, err = v.Get(nil, 1000)
	require.ErrorIs(t, err, ErrOutOfRange)
	_, err = v.Get(nil, -1)
	require.ErrorIs(t, err, ErrOutOfRange)

	w, err := v.Assoc(nil, 500, NewString("five hundred"))
	require.NoError(t, err)
	c, err := w.Get(nil, 500)
	require.NoError(t, err)
	require.Equal(t, `"five hundred"`, c.String())
	c, err = v.Get(nil, 500) // the old version is unchanged
	require.NoError(t, err)
	require.Equal(t, int64(500), c.(*Long).Value())

	elems[500] = NewString("five hundred")
	require.Equal(t, NewVector(elems...).Hash(), w.Hash())

	// unchanged subtrees are shared
	require.Same(t, v.Ref(0), w.Ref(0))

	d, err := Decode(Encode(w))
	require.NoError(t, err)
	require.Equal(t, w.Hash(), d.Hash())
}

func TestVectorElements(t *testing.T) {
	v := NewVector(NewLong(1), NewLong(2), NewLong(3))
	elems, err := v.Elements(nil)
	require.NoError(t, err)
	require.Len(t, elems, 3)
	require.Equal(t, "[1 2 3]", v.String())

	refs := []*Ref{NewRef(NewLong(1)), NewRef(NewLong(2)), NewRef(NewLong(3))}
	require.Equal(t, v.Hash(), VectorOf(refs...).Hash())
}

func TestList(t *testing.T) {
	l := NewList(NewLong(1), NewLong(2))
	l, err := l.Cons(nil, NewLong(0))
	require.NoError(t, err)
	require.Equal(t, int64(3), l.Count())
	require.Equal(t, NewList(NewLong(0), NewLong(1), NewLong(2)).Hash(), l.Hash())
	require.Equal(t, "(0 1 2)", l.String())

	first, err := l.Get(nil, 0)
	require.NoError(t, err)
	require.Equal(t, int64(0), first.(*Long).Value())

	elems, err := l.Elements(nil)
	require.NoError(t, err)
	require.Equal(t, int64(2), elems[2].(*Long).Value())

	// a list is not a vector with the same elements
	require.NotEqual(t, NewVector(NewLong(2), NewLong(1), NewLong(0)).Hash(), l.Hash())

	_, err = l.Get(nil, 3)
	require.ErrorIs(t, err, ErrOutOfRange)
}

func TestMapAssocDissoc(t *testing.T) {
	m := EmptyMap
	var entries []MapEntry
	var err error
	for i := 0; i < 200; i++ {
		k, v := NewLong(int64(i)), NewString(fmt.Sprintf("value %d", i))
		m, err = m.Assoc(nil, k, v)
		require.NoError(t, err)
		entries = append(entries, MapEntry{k, v})
		if i%17 == 0 { // shape only depends on content
			require.Equal(t, NewMap(entries...).Hash(), m.Hash(), "after %d entries", i+1)
		}
	}
	require.Equal(t, int64(200), m.Count())
	require.Equal(t, NewMap(entries...).Hash(), m.Hash())

	v, ok, err := m.Get(nil, NewLong(123))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, `"value 123"`, v.String())
	_, ok, err = m.Get(nil, NewLong(1000))
	require.NoError(t, err)
	require.False(t, ok)

	same, err := m.Assoc(nil, NewLong(5), NewString("value 5"))
	require.NoError(t, err)
	require.Same(t, m, same)

	for i := 199; i >= 0; i-- {
		m, err = m.Dissoc(nil, NewLong(int64(i)))
		require.NoError(t, err)
		entries = entries[:i]
		if i <= 10 || i%13 == 0 {
			require.Equal(t, NewMap(entries...).Hash(), m.Hash(), "after removing down to %d", i)
		}
	}
	require.Equal(t, int64(0), m.Count())
	require.Equal(t, EmptyMap.Hash(), m.Hash())

	gone, err := EmptyMap.Dissoc(nil, NewLong(1))
	require.NoError(t, err)
	require.Same(t, EmptyMap, gone)
}

func TestMapCollapse(t *testing.T) {
	var entries []MapEntry
	for i := 0; i < MaxLeafEntries+1; i++ {
		entries = append(entries, MapEntry{NewLong(int64(i)), True})
	}
	m := NewMap(entries...)
	require.False(t, m.isLeaf())

	m, err := m.Dissoc(nil, NewLong(0))
	require.NoError(t, err)
	require.True(t, m.isLeaf())
	require.Equal(t, NewMap(entries[1:]...).Hash(), m.Hash())
}

func TestMapEntriesOrder(t *testing.T) {
	m := NewMap(
		MapEntry{NewString("a"), NewLong(1)},
		MapEntry{NewString("b"), NewLong(2)},
		MapEntry{NewString("a"), NewLong(3)}, // replaces the first
	)
	require.Equal(t, int64(2), m.Count())
	es, err := m.Entries(nil)
	require.NoError(t, err)
	require.Len(t, es, 2)
	require.True(t, es[0].Key.Hash().Compare(es[1].Key.Hash()) < 0)

	v, ok, err := m.Get(nil, NewString("a"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(3), v.(*Long).Value())
}

func TestSet(t *testing.T) {
	s := EmptySet
	var elems []Cell
	var err error
	for i := 0; i < 50; i++ {
		s, err = s.Conj(nil, NewLong(int64(i)))
		require.NoError(t, err)
		elems = append(elems, NewLong(int64(i)))
	}
	require.Equal(t, NewSet(elems...).Hash(), s.Hash())

	again, err := s.Conj(nil, NewLong(7))
	require.NoError(t, err)
	require.Same(t, s, again)

	ok, err := s.Contains(nil, NewLong(49))
	require.NoError(t, err)
	require.True(t, ok)

	s, err = s.Disj(nil, NewLong(49))
	require.NoError(t, err)
	ok, err = s.Contains(nil, NewLong(49))
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, NewSet(elems[:49]...).Hash(), s.Hash())

	out, err := s.Elements(nil)
	require.NoError(t, err)
	require.Len(t, out, 49)

	// a set and a map never share a hash
	require.NotEqual(t, EmptySet.Hash(), EmptyMap.Hash())
	require.Equal(t, "#{}", EmptySet.String())
}

func TestRecord(t *testing.T) {
	r, err := NewRecord(
		Field{MustKeyword("name"), NewString("etch")},
		Field{MustKeyword("size"), NewLong(7)},
	)
	require.NoError(t, err)
	require.Equal(t, 2, r.Len())
	require.Equal(t, ":name", r.Keys()[0].String())

	v, ok, err := r.Get(nil, MustKeyword("size"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(7), v.(*Long).Value())

	_, ok, err = r.Get(nil, MustKeyword("other"))
	require.NoError(t, err)
	require.False(t, ok)

	v, ok, err = r.Get(nil, nil)
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, v)

	_, err = NewRecord(Field{MustKeyword("a"), Nil}, Field{MustKeyword("a"), True})
	require.ErrorIs(t, err, ErrInvalidCell)

	var many []Field
	for i := 0; i <= MaxRecordFields; i++ {
		many = append(many, Field{MustKeyword(fmt.Sprintf("f%d", i)), Nil})
	}
	_, err = NewRecord(many...)
	require.ErrorIs(t, err, ErrInvalidCell)

	// duplicate keys on the wire
	k := MustKeyword("a").Encoding()
	enc := append([]byte{TagRecord, 0x02}, k...)
	enc = append(enc, TagNil)
	enc = append(enc, k...)
	enc = append(enc, TagNil)
	_, err = Decode(enc)
	require.ErrorIs(t, err, ErrBadFormat)

	// keys must be keywords
	_, err = Decode([]byte{TagRecord, 0x01, TagLong, 0x01, TagNil})
	require.ErrorIs(t, err, ErrBadFormat)
}

func TestSignedData(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	value := NewRef(NewVector(NewString("pay"), NewLong(100)))
	sd := Sign(priv, value)
	require.True(t, sd.Verify())
	require.Equal(t, pub, sd.PublicKey())

	d, err := Decode(Encode(sd))
	require.NoError(t, err)
	require.True(t, d.(*SignedData).Verify())
	require.Equal(t, sd.Hash(), d.Hash())

	v, err := d.(*SignedData).Value(nil)
	require.NoError(t, err)
	require.Equal(t, value.Hash(), v.Hash())

	// flip a signature bit
	enc := Encode(sd)
	enc[1+ed25519.PublicKeySize] ^= 1
	d, err = Decode(enc)
	require.NoError(t, err)
	require.False(t, d.(*SignedData).Verify())
}

func TestBlobChunks(t *testing.T) {
	data := make([]byte, 3*ChunkLength+100)
	rand.Read(data)
	b := NewBlob(data)
	require.Equal(t, int64(len(data)), b.Length())
	require.Equal(t, 4, b.RefCount())

	got, err := b.Bytes(nil)
	require.NoError(t, err)
	require.True(t, bytes.Equal(data, got))

	// flat up to the chunk size
	require.Equal(t, 0, NewBlob(data[:ChunkLength]).RefCount())
	require.Equal(t, 2, NewBlob(data[:ChunkLength+1]).RefCount())

	// spans grow by the fanout
	require.Equal(t, int64(ChunkLength), chunkSpan(Fanout*ChunkLength))
	require.Equal(t, int64(Fanout*ChunkLength), chunkSpan(Fanout*ChunkLength+1))

	big := make([]byte, Fanout*ChunkLength+1)
	tree := NewBlob(big)
	require.Equal(t, 2, tree.RefCount())
	require.NoError(t, Validate(nil, NewRef(tree)))

	s := NewString(string(data[:ChunkLength*2]))
	sv, err := s.Value(nil)
	require.NoError(t, err)
	require.Equal(t, string(data[:ChunkLength*2]), sv)
	require.Equal(t, TagString, s.Ref(0).value.Tag())
}

func TestSymbols(t *testing.T) {
	_, err := NewSymbol("")
	require.ErrorIs(t, err, ErrInvalidCell)
	_, err = NewKeyword(string(make([]byte, MaxSymbolLength+1)))
	require.ErrorIs(t, err, ErrInvalidCell)
	_, err = NewSymbol("\xff")
	require.ErrorIs(t, err, ErrInvalidCell)

	s, err := NewSymbol("x")
	require.NoError(t, err)
	require.NotEqual(t, s.Hash(), MustKeyword("x").Hash())
	require.Equal(t, ":x", MustKeyword("x").String())
}

func TestDoubles(t *testing.T) {
	require.Equal(t, "1.0", NewDouble(1).String())
	require.Equal(t, "##NaN", NewDouble(math.NaN()).String())
	require.NotEqual(t, NewDouble(0).Hash(), NewDouble(math.Copysign(0, -1)).Hash())
}
