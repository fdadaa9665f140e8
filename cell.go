package etch

import "bytes"
import "sync"

// Cell is an immutable value with a single canonical encoding.
// Changes to a collection produce a new cell sharing the unchanged children.
type Cell interface {
	// Tag is the first byte of the encoding.
	Tag() byte
	// Encoding is the canonical byte form. It must not be modified.
	Encoding() []byte
	// Hash is the SHA3-256 of Encoding, computed once.
	Hash() Hash
	RefCount() int
	// Ref returns the i-th child.
	Ref(i int) *Ref
	// IsEmbedded reports whether the cell is inlined into a parent's encoding.
	IsEmbedded() bool
	String() string
}

// collections that constrain the shape of their children implement this,
// children already in memory are checked while decoding, the rest by Validate
type childChecker interface {
	checkChild(i int, child Cell) error
}

type cellBase struct {
	enc      []byte
	branched bool // some child is referenced by hash
	hashOnce sync.Once
	hash     Hash
}

func (c *cellBase) Tag() byte        { return c.enc[0] }
func (c *cellBase) Encoding() []byte { return c.enc }
func (c *cellBase) RefCount() int    { return 0 }
func (c *cellBase) Ref(i int) *Ref   { return nil }

// IsEmbedded holds for short encodings without branch refs. A cell that
// points at branches is always stored on its own.
func (c *cellBase) IsEmbedded() bool {
	return !c.branched && len(c.enc) <= MaxEmbeddedLength
}

func hasBranch(refs []*Ref) bool {
	for _, r := range refs {
		if !r.IsEmbedded() {
			return true
		}
	}
	return false
}

func (c *cellBase) Hash() Hash {
	c.hashOnce.Do(func() {
		c.hash = sum(c.enc)
	})
	return c.hash
}

// Equals compares two cells by encoding.
func Equals(a, b Cell) bool {
	if a == nil || b == nil {
		return a == b
	}
	return bytes.Equal(a.Encoding(), b.Encoding())
}

// CheckHash recomputes the hash of c and panics if it disagrees with the memoized one.
func CheckHash(c Cell) {
	if got := sum(c.Encoding()); got != c.Hash() {
		invariant("%s cell hash %s does not match content hash %s", tagName(c.Tag()), c.Hash(), got)
	}
}

// children returns all child refs of c
func children(c Cell) []*Ref {
	n := c.RefCount()
	refs := make([]*Ref, n)
	for i := 0; i < n; i++ {
		refs[i] = c.Ref(i)
	}
	return refs
}

// checkDirectChildren applies a parent's child constraints to the children decoded inline
func checkDirectChildren(c Cell, refs []*Ref) error {
	cc, ok := c.(childChecker)
	if !ok {
		return nil
	}
	for i, r := range refs {
		if r.value == nil {
			continue
		}
		if err := cc.checkChild(i, r.value); err != nil {
			return err
		}
	}
	return nil
}
