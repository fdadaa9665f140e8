package etch

import "encoding/hex"
import "fmt"
import "strconv"

// chunked is the shared body of blobs and strings. Up to ChunkLength bytes are
// stored flat, longer values become a tree of same-typed chunks, each child
// covering chunkSpan(length) bytes except possibly the last.
type chunked struct {
	cellBase
	length int64
	data   []byte // flat only
	refs   []*Ref // tree only
}

type chunkedCell interface {
	Cell
	chunk() *chunked
}

func (c *chunked) chunk() *chunked   { return c }
func (c *chunked) Length() int64     { return c.length }
func (c *chunked) RefCount() int     { return len(c.refs) }
func (c *chunked) Ref(i int) *Ref    { return c.refs[i] }
func (c *chunked) isFlat() bool      { return c.length <= ChunkLength }
func (c *chunked) flatBytes() []byte { return c.data }

// chunkSpan is the number of bytes each child of a chunk tree of n bytes covers
func chunkSpan(n int64) int64 {
	s := int64(ChunkLength)
	for s < ceilDiv(n, Fanout) {
		s *= Fanout
	}
	return s
}

func wrapChunked(tag byte, c *chunked) chunkedCell {
	if tag == TagString {
		return &String{c}
	}
	return &Blob{c}
}

func newChunked(tag byte, data []byte) *chunked {
	n := int64(len(data))
	if n <= ChunkLength {
		c := &chunked{length: n}
		c.enc = appendVLCCount(append(make([]byte, 0, 1+VLCCountLength(uint64(n))+len(data)), tag), uint64(n))
		c.enc = append(c.enc, data...)
		c.data = c.enc[len(c.enc)-len(data):]
		return c
	}
	span := chunkSpan(n)
	refs := make([]*Ref, 0, ceilDiv(n, span))
	for i := int64(0); i < n; i += span {
		end := i + span
		if end > n {
			end = n
		}
		refs = append(refs, NewRef(wrapChunked(tag, newChunked(tag, data[i:end]))))
	}
	return newChunkedTree(tag, n, refs)
}

func newChunkedTree(tag byte, n int64, refs []*Ref) *chunked {
	c := &chunked{length: n, refs: refs}
	enc := appendVLCCount([]byte{tag}, uint64(n))
	for _, r := range refs {
		enc = appendRef(enc, r)
	}
	c.enc = enc
	c.branched = hasBranch(refs)
	return c
}

// expected length of child i
func (c *chunked) childLength(i int) int64 {
	span := chunkSpan(c.length)
	if rest := c.length - int64(i)*span; rest < span {
		return rest
	}
	return span
}

func (c *chunked) checkChild(i int, child Cell) error {
	cc, ok := child.(chunkedCell)
	if !ok || child.Tag() != c.Tag() {
		return badFormat("%s chunk %d is a %s", tagName(c.Tag()), i, tagName(child.Tag()))
	}
	if want := c.childLength(i); cc.chunk().length != want {
		return badFormat("%s chunk %d has %d bytes, expected %d", tagName(c.Tag()), i, cc.chunk().length, want)
	}
	return nil
}

// bytes gathers the full content, loading chunks through res
func (c *chunked) bytes(res *Resolver) ([]byte, error) {
	if c.isFlat() {
		return c.data, nil
	}
	buf := make([]byte, 0, c.length)
	for i, r := range c.refs {
		v, err := r.Value(res)
		if err != nil {
			return nil, err
		}
		if err = c.checkChild(i, v); err != nil {
			return nil, err
		}
		part, err := v.(chunkedCell).chunk().bytes(res)
		if err != nil {
			return nil, err
		}
		buf = append(buf, part...)
	}
	return buf, nil
}

func decodeChunked(b []byte, pos int) (Cell, int, error) {
	tag := b[pos]
	n, next, err := readCount(b, pos+1)
	if err != nil {
		return nil, pos, err
	}
	if n <= ChunkLength {
		if int64(len(b)-next) < n {
			return nil, pos, badFormat("truncated %s, %d bytes declared at offset %d", tagName(tag), n, pos)
		}
		return wrapChunked(tag, newChunked(tag, b[next:next+int(n)])), next + int(n), nil
	}
	span := chunkSpan(n)
	count := int(ceilDiv(n, span))
	refs := make([]*Ref, count)
	for i := range refs {
		if refs[i], next, err = decodeChild(b, next); err != nil {
			return nil, pos, err
		}
	}
	c := wrapChunked(tag, newChunkedTree(tag, n, refs))
	if err = checkDirectChildren(c, refs); err != nil {
		return nil, pos, err
	}
	return c, next, nil
}

// Blob is an immutable byte sequence.
type Blob struct{ *chunked }

func NewBlob(data []byte) *Blob {
	return &Blob{newChunked(TagBlob, data)}
}

// Bytes returns the content. Flat blobs return their backing array, which must not be modified.
func (b *Blob) Bytes(res *Resolver) ([]byte, error) {
	return b.bytes(res)
}

func (b *Blob) String() string {
	if b.isFlat() {
		return "0x" + hex.EncodeToString(b.data)
	}
	return fmt.Sprintf("#blob[%d bytes %s]", b.length, b.Hash())
}

// String is an immutable UTF-8 text value, stored like a blob.
type String struct{ *chunked }

func NewString(s string) *String {
	return &String{newChunked(TagString, []byte(s))}
}

func (s *String) Value(res *Resolver) (string, error) {
	b, err := s.bytes(res)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (s *String) String() string {
	if s.isFlat() {
		return strconv.Quote(string(s.data))
	}
	return fmt.Sprintf("#string[%d bytes %s]", s.length, s.Hash())
}
