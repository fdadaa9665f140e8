package etch

import "golang.org/x/xerrors"

// Proof shows that a key is or is not in a map with a given root hash. It holds
// the encodings of the branch cells on the lookup path, root first. Embedded
// cells travel inside their parent's encoding.
type Proof struct {
	Trace [][]byte `cbor:"1,keyasint"`
}

// Prove builds the proof for key in m, loading the path through res.
func Prove(res *Resolver, m *Map, key Cell) (*Proof, error) {
	if key == nil {
		key = Nil
	}
	h := key.Hash()
	p := &Proof{}
	t := m.trie
	for {
		if !t.IsEmbedded() {
			p.Trace = append(p.Trace, t.Encoding())
		}
		if t.isLeaf() {
			return p, nil
		}
		d := h.digit(t.shift)
		if t.mask&(1<<uint(d)) == 0 { // dead end
			return p, nil
		}
		c, err := t.child(res, t.childIndex(d))
		if err != nil {
			return nil, err
		}
		t = c
	}
}

// Verify walks the proof from root. present reports membership, value is the
// ref of the value (hash only when the value is not embedded).
// A proof that does not match root fails with ErrCorruption.
func (p *Proof) Verify(root Hash, key Cell) (value *Ref, present bool, err error) {
	if key == nil {
		key = Nil
	}
	h := key.Hash()
	next := RefForHash(root)
	used := 0
	for {
		var c Cell
		if next.IsDirect() {
			c = next.value
		} else {
			if used >= len(p.Trace) {
				return nil, false, badFormat("proof ends before %s", next.Hash())
			}
			if c, err = DecodeVerified(next.Hash(), p.Trace[used]); err != nil {
				return nil, false, err
			}
			used++
		}
		tc, ok := c.(trieCell)
		if !ok || c.Tag() != TagMap {
			return nil, false, badFormat("proof step %d is a %s", used, tagName(c.Tag()))
		}
		t := tc.node()
		if t.isLeaf() {
			for _, e := range t.leafEntries() {
				if e.key.Hash() == h {
					return e.value, true, nil
				}
			}
			return nil, false, nil
		}
		d := h.digit(t.shift)
		if t.mask&(1<<uint(d)) == 0 {
			return nil, false, nil
		}
		next = t.refs[t.childIndex(d)]
	}
}

// Marshal serializes the proof as CBOR.
func (p *Proof) Marshal() ([]byte, error) {
	return cborEnc.Marshal(p)
}

// UnmarshalProof reads a proof written by Marshal.
func UnmarshalProof(buf []byte) (*Proof, error) {
	p := &Proof{}
	if err := cborDec.Unmarshal(buf, p); err != nil {
		return nil, xerrors.Errorf("%w: proof: %v", ErrBadFormat, err)
	}
	return p, nil
}
