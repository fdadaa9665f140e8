package etch

import "encoding/binary"
import "math/bits"
import "sort"
import "strings"

// trie is the hash trie under maps and sets. Entries are ordered by key hash.
// A node with at most MaxLeafEntries entries is a leaf listing them, any larger
// node branches on the hex digit `shift` of the key hashes, the first digit at
// which its keys differ. mask has bit d set when a child exists for digit d.
type trie struct {
	cellBase
	count int64
	shift int
	mask  uint16
	refs  []*Ref // leaf: key[, value] pairs, tree: child tries in digit order
}

type trieEntry struct {
	key   *Ref
	value *Ref // nil for sets
}

type trieCell interface {
	Cell
	node() *trie
}

func (t *trie) node() *trie      { return t }
func (t *trie) Count() int64     { return t.count }
func (t *trie) RefCount() int    { return len(t.refs) }
func (t *trie) Ref(i int) *Ref   { return t.refs[i] }
func (t *trie) isLeaf() bool     { return t.count <= MaxLeafEntries }
func (t *trie) width() int       { return widthOf(t.Tag()) }
func (t *trie) empty() bool      { return t.count == 0 }
func (t *trie) childIndex(d int) int {
	return bits.OnesCount16(t.mask & (uint16(1)<<uint(d) - 1))
}

func widthOf(tag byte) int {
	if tag == TagMap {
		return 2
	}
	return 1
}

func wrapTrie(t *trie) trieCell {
	if t.Tag() == TagMap {
		return &Map{t}
	}
	return &Set{t}
}

// commonDigits returns the number of leading hex digits a and b share
func commonDigits(a, b Hash) int {
	for i := 0; i < 2*HASHSIZE; i++ {
		if a.digit(i) != b.digit(i) {
			return i
		}
	}
	return 2 * HASHSIZE
}

func newTrieLeaf(tag byte, entries []trieEntry) *trie {
	w := widthOf(tag)
	t := &trie{count: int64(len(entries)), refs: make([]*Ref, 0, w*len(entries))}
	for _, e := range entries {
		t.refs = append(t.refs, e.key)
		if w == 2 {
			t.refs = append(t.refs, e.value)
		}
	}
	enc := appendVLCCount([]byte{tag}, uint64(t.count))
	for _, r := range t.refs {
		enc = appendRef(enc, r)
	}
	t.enc = enc
	t.branched = hasBranch(t.refs)
	return t
}

func newTrieTree(tag byte, count int64, shift int, mask uint16, refs []*Ref) *trie {
	t := &trie{count: count, shift: shift, mask: mask, refs: refs}
	enc := appendVLCCount([]byte{tag}, uint64(count))
	enc = append(enc, byte(shift), 0, 0)
	binary.BigEndian.PutUint16(enc[len(enc)-2:], mask)
	for _, r := range refs {
		enc = appendRef(enc, r)
	}
	t.enc = enc
	t.branched = hasBranch(refs)
	return t
}

// buildTrie makes the canonical trie of entries, which must be sorted by key hash and distinct
func buildTrie(tag byte, entries []trieEntry) *trie {
	if len(entries) <= MaxLeafEntries {
		return newTrieLeaf(tag, entries)
	}
	shift := commonDigits(entries[0].key.Hash(), entries[len(entries)-1].key.Hash())
	var mask uint16
	var refs []*Ref
	for start := 0; start < len(entries); {
		d := entries[start].key.Hash().digit(shift)
		end := start + 1
		for end < len(entries) && entries[end].key.Hash().digit(shift) == d {
			end++
		}
		mask |= 1 << uint(d)
		refs = append(refs, NewRef(wrapTrie(buildTrie(tag, entries[start:end:end]))))
		start = end
	}
	return newTrieTree(tag, int64(len(entries)), shift, mask, refs)
}

// sortEntries orders by key hash, a later duplicate key replaces an earlier one
func sortEntries(entries []trieEntry) []trieEntry {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].key.Hash().Compare(entries[j].key.Hash()) < 0
	})
	out := entries[:0]
	for _, e := range entries {
		if n := len(out); n > 0 && out[n-1].key.Hash() == e.key.Hash() {
			out[n-1] = e
			continue
		}
		out = append(out, e)
	}
	return out
}

func (t *trie) leafEntries() []trieEntry {
	w := t.width()
	out := make([]trieEntry, 0, t.count)
	for i := 0; i < len(t.refs); i += w {
		e := trieEntry{key: t.refs[i]}
		if w == 2 {
			e.value = t.refs[i+1]
		}
		out = append(out, e)
	}
	return out
}

func (t *trie) checkChild(i int, child Cell) error {
	if t.isLeaf() {
		return nil
	}
	tc, ok := child.(trieCell)
	if !ok || child.Tag() != t.Tag() {
		return badFormat("%s child %d is a %s", tagName(t.Tag()), i, tagName(child.Tag()))
	}
	c := tc.node()
	if c.count == 0 || c.count >= t.count {
		return badFormat("%s child %d has %d of %d entries", tagName(t.Tag()), i, c.count, t.count)
	}
	d := nthDigit(t.mask, i)
	if !c.isLeaf() {
		if c.shift <= t.shift {
			return badFormat("%s child %d branches at digit %d, parent at %d", tagName(t.Tag()), i, c.shift, t.shift)
		}
		return nil
	}
	for _, e := range c.leafEntries() {
		if e.key.Hash().digit(t.shift) != d {
			return badFormat("%s key %s misplaced under digit %x", tagName(t.Tag()), e.key.Hash(), d)
		}
	}
	return nil
}

// nthDigit returns the digit of the i-th set bit of mask
func nthDigit(mask uint16, i int) int {
	for d := 0; d < 16; d++ {
		if mask&(1<<uint(d)) != 0 {
			if i == 0 {
				return d
			}
			i--
		}
	}
	return -1
}

func (t *trie) child(res *Resolver, i int) (*trie, error) {
	c, err := t.refs[i].Value(res)
	if err != nil {
		return nil, err
	}
	if err = t.checkChild(i, c); err != nil {
		return nil, err
	}
	return c.(trieCell).node(), nil
}

func (t *trie) sampleHash(res *Resolver) (Hash, error) {
	for !t.isLeaf() {
		c, err := t.child(res, 0)
		if err != nil {
			return Hash{}, err
		}
		t = c
	}
	return t.refs[0].Hash(), nil
}

func (t *trie) get(res *Resolver, h Hash) (trieEntry, bool, error) {
	for !t.isLeaf() {
		d := h.digit(t.shift)
		if t.mask&(1<<uint(d)) == 0 {
			return trieEntry{}, false, nil
		}
		c, err := t.child(res, t.childIndex(d))
		if err != nil {
			return trieEntry{}, false, err
		}
		t = c
	}
	for _, e := range t.leafEntries() {
		if e.key.Hash() == h {
			return e, true, nil
		}
	}
	return trieEntry{}, false, nil
}

func (t *trie) assoc(res *Resolver, e trieEntry) (*trie, error) {
	tag := t.Tag()
	h := e.key.Hash()
	if t.isLeaf() {
		entries := t.leafEntries()
		i := sort.Search(len(entries), func(i int) bool { return entries[i].key.Hash().Compare(h) >= 0 })
		if i < len(entries) && entries[i].key.Hash() == h {
			if e.value == nil || entries[i].value.Hash() == e.value.Hash() {
				return t, nil
			}
			entries[i] = e
			return newTrieLeaf(tag, entries), nil
		}
		entries = append(entries, trieEntry{})
		copy(entries[i+1:], entries[i:])
		entries[i] = e
		if len(entries) > MaxLeafEntries {
			return buildTrie(tag, entries), nil
		}
		return newTrieLeaf(tag, entries), nil
	}

	sample, err := t.sampleHash(res)
	if err != nil {
		return nil, err
	}
	if p := commonDigits(sample, h); p < t.shift {
		// the new key splits off above this node
		leaf := NewRef(wrapTrie(newTrieLeaf(tag, []trieEntry{e})))
		self := NewRef(wrapTrie(t))
		refs := []*Ref{self, leaf}
		if h.digit(p) < sample.digit(p) {
			refs[0], refs[1] = leaf, self
		}
		mask := uint16(1)<<uint(h.digit(p)) | uint16(1)<<uint(sample.digit(p))
		return newTrieTree(tag, t.count+1, p, mask, refs), nil
	}

	d := h.digit(t.shift)
	idx := t.childIndex(d)
	if t.mask&(1<<uint(d)) == 0 {
		refs := make([]*Ref, 0, len(t.refs)+1)
		refs = append(refs, t.refs[:idx]...)
		refs = append(refs, NewRef(wrapTrie(newTrieLeaf(tag, []trieEntry{e}))))
		refs = append(refs, t.refs[idx:]...)
		return newTrieTree(tag, t.count+1, t.shift, t.mask|1<<uint(d), refs), nil
	}
	c, err := t.child(res, idx)
	if err != nil {
		return nil, err
	}
	nc, err := c.assoc(res, e)
	if err != nil || nc == c {
		return t, err
	}
	refs := append([]*Ref(nil), t.refs...)
	refs[idx] = NewRef(wrapTrie(nc))
	return newTrieTree(tag, t.count-c.count+nc.count, t.shift, t.mask, refs), nil
}

func (t *trie) dissoc(res *Resolver, h Hash) (*trie, error) {
	tag := t.Tag()
	if t.isLeaf() {
		entries := t.leafEntries()
		for i, e := range entries {
			if e.key.Hash() == h {
				return newTrieLeaf(tag, append(entries[:i:i], entries[i+1:]...)), nil
			}
		}
		return t, nil
	}

	d := h.digit(t.shift)
	if t.mask&(1<<uint(d)) == 0 {
		return t, nil
	}
	idx := t.childIndex(d)
	c, err := t.child(res, idx)
	if err != nil {
		return nil, err
	}
	nc, err := c.dissoc(res, h)
	if err != nil || nc == c {
		return t, err
	}
	if t.count-1 <= MaxLeafEntries {
		entries, err := t.entries(res)
		if err != nil {
			return nil, err
		}
		out := entries[:0]
		for _, e := range entries {
			if e.key.Hash() != h {
				out = append(out, e)
			}
		}
		return newTrieLeaf(tag, out), nil
	}
	if nc.empty() {
		refs := append(append([]*Ref(nil), t.refs[:idx]...), t.refs[idx+1:]...)
		mask := t.mask &^ (1 << uint(d))
		if len(refs) == 1 {
			return t.child(res, 1-idx)
		}
		return newTrieTree(tag, t.count-1, t.shift, mask, refs), nil
	}
	refs := append([]*Ref(nil), t.refs...)
	refs[idx] = NewRef(wrapTrie(nc))
	return newTrieTree(tag, t.count-1, t.shift, t.mask, refs), nil
}

// entries loads every entry in key hash order
func (t *trie) entries(res *Resolver) ([]trieEntry, error) {
	out := make([]trieEntry, 0, t.count)
	err := t.each(res, func(e trieEntry) error {
		out = append(out, e)
		return nil
	})
	return out, err
}

func (t *trie) each(res *Resolver, fn func(trieEntry) error) error {
	if t.isLeaf() {
		for _, e := range t.leafEntries() {
			if err := fn(e); err != nil {
				return err
			}
		}
		return nil
	}
	for i := range t.refs {
		c, err := t.child(res, i)
		if err != nil {
			return err
		}
		if err = c.each(res, fn); err != nil {
			return err
		}
	}
	return nil
}

// validateShape rebuilds the node from its entries, any canonical node
// reproduces its own hash
func (t *trie) validateShape(res *Resolver) error {
	entries, err := t.entries(res)
	if err != nil {
		return err
	}
	for i := 1; i < len(entries); i++ {
		if entries[i-1].key.Hash().Compare(entries[i].key.Hash()) >= 0 {
			return badFormat("%s keys out of hash order", tagName(t.Tag()))
		}
	}
	if int64(len(entries)) != t.count {
		return badFormat("%s holds %d entries, count says %d", tagName(t.Tag()), len(entries), t.count)
	}
	if buildTrie(t.Tag(), entries).Hash() != t.Hash() {
		return badFormat("%s %s is not in canonical shape", tagName(t.Tag()), t.Hash())
	}
	return nil
}

func (t *trie) writeEntries(sb *strings.Builder, first bool) bool {
	if !t.isLeaf() {
		for _, r := range t.refs {
			if tc, ok := r.value.(trieCell); ok {
				first = tc.node().writeEntries(sb, first)
				continue
			}
			if !first {
				sb.WriteString(", ")
			}
			sb.WriteString(r.String())
			first = false
		}
		return first
	}
	for _, e := range t.leafEntries() {
		if !first {
			sb.WriteString(", ")
		}
		sb.WriteString(e.key.String())
		if e.value != nil {
			sb.WriteByte(' ')
			sb.WriteString(e.value.String())
		}
		first = false
	}
	return first
}

func decodeTrie(b []byte, pos int) (Cell, int, error) {
	tag := b[pos]
	n, next, err := readCount(b, pos+1)
	if err != nil {
		return nil, pos, err
	}
	if n <= MaxLeafEntries {
		entries := make([]trieEntry, n)
		for i := range entries {
			if entries[i].key, next, err = decodeChild(b, next); err != nil {
				return nil, pos, err
			}
			if tag == TagMap {
				if entries[i].value, next, err = decodeChild(b, next); err != nil {
					return nil, pos, err
				}
			}
			if i > 0 && entries[i-1].key.Hash().Compare(entries[i].key.Hash()) >= 0 {
				return nil, pos, badFormat("%s keys out of hash order at offset %d", tagName(tag), pos)
			}
		}
		return wrapTrie(newTrieLeaf(tag, entries)), next, nil
	}

	if len(b)-next < 3 {
		return nil, pos, badFormat("truncated %s header at offset %d", tagName(tag), pos)
	}
	shift := int(b[next])
	mask := binary.BigEndian.Uint16(b[next+1:])
	next += 3
	if shift >= 2*HASHSIZE {
		return nil, pos, badFormat("%s shift %d out of range", tagName(tag), shift)
	}
	k := bits.OnesCount16(mask)
	if k < 2 {
		return nil, pos, badFormat("%s branch with %d children", tagName(tag), k)
	}
	refs := make([]*Ref, k)
	for i := range refs {
		if refs[i], next, err = decodeChild(b, next); err != nil {
			return nil, pos, err
		}
	}
	c := wrapTrie(newTrieTree(tag, n, shift, mask, refs))
	if err = checkDirectChildren(c, refs); err != nil {
		return nil, pos, err
	}
	return c, next, nil
}
