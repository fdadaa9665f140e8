package etch

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGraph(t *testing.T) {
	store := NewMemStore()
	res := NewResolver(store, 0)

	v := bigVector(40)
	_, err := Persist(res, NewRef(v), nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Graph(&buf, res, NewRef(v)))
	out := buf.String()
	require.True(t, strings.HasPrefix(out, "digraph etch_graph {"))
	require.True(t, strings.HasSuffix(out, "}\n"))
	h := v.Hash()
	require.Contains(t, out, fmt.Sprintf("L%x [ fillcolor=lightblue", h[:4]))
	require.Contains(t, out, "PERSISTED")

	// children that cannot be loaded are drawn, not an error
	buf.Reset()
	missing := NewString(string(make([]byte, 700)))
	w := VectorOf(RefForHash(missing.Hash()), NewRef(NewString(string(make([]byte, 300)))))
	require.NoError(t, Graph(&buf, res, NewRef(w)))
	require.Contains(t, buf.String(), "fillcolor=grey")
}
