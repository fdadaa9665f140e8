package etch

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProof(t *testing.T) {
	store := NewMemStore()
	res := NewResolver(store, 0)

	m := EmptyMap
	var err error
	for i := 0; i < 1000; i++ {
		m, err = m.Assoc(res, NewString(fmt.Sprintf("key %d", i)), NewLong(int64(i)))
		require.NoError(t, err)
	}
	_, err = Persist(res, NewRef(m), nil)
	require.NoError(t, err)
	c, err := RefForHash(m.Hash()).Value(NewResolver(store, 0))
	require.NoError(t, err)
	stored := c.(*Map)

	p, err := Prove(res, stored, NewString("key 777"))
	require.NoError(t, err)
	require.NotEmpty(t, p.Trace)

	buf, err := p.Marshal()
	require.NoError(t, err)
	p, err = UnmarshalProof(buf)
	require.NoError(t, err)

	value, present, err := p.Verify(m.Hash(), NewString("key 777"))
	require.NoError(t, err)
	require.True(t, present)
	v, err := value.Value(nil)
	require.NoError(t, err)
	require.Equal(t, int64(777), v.(*Long).Value())

	// absence is provable as well
	p, err = Prove(res, stored, NewString("no such key"))
	require.NoError(t, err)
	_, present, err = p.Verify(m.Hash(), NewString("no such key"))
	require.NoError(t, err)
	require.False(t, present)

	// a proof does not verify against another root
	p, err = Prove(res, stored, NewString("key 1"))
	require.NoError(t, err)
	other, err := m.Assoc(res, NewString("key 1"), NewLong(-1))
	require.NoError(t, err)
	_, _, err = p.Verify(other.Hash(), NewString("key 1"))
	require.ErrorIs(t, err, ErrBadFormat)

	// nor when a step was tampered with
	p.Trace[0] = append([]byte(nil), p.Trace[0]...)
	p.Trace[0][len(p.Trace[0])-1] ^= 1
	_, _, err = p.Verify(m.Hash(), NewString("key 1"))
	require.ErrorIs(t, err, ErrCorruption)

	_, err = UnmarshalProof([]byte{0xff, 0x00})
	require.ErrorIs(t, err, ErrBadFormat)
}
