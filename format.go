package etch

import "bytes"
import "math"

// VLCLongLength returns the number of bytes the VLC long encoding of x takes.
// Each byte carries 7 bits, the first byte's bit 6 is the sign.
func VLCLongLength(x int64) int {
	for n := 1; n < MaxVLCLongLength; n++ {
		bits := uint(7 * n)
		lo, hi := -(int64(1) << (bits - 1)), (int64(1)<<(bits-1))-1
		if x >= lo && x <= hi {
			return n
		}
	}
	return MaxVLCLongLength
}

func appendVLCLong(buf []byte, x int64) []byte {
	n := VLCLongLength(x)
	for i := n - 1; i >= 0; i-- {
		b := byte((x >> uint(7*i)) & 0x7f)
		if i > 0 {
			b |= 0x80
		}
		buf = append(buf, b)
	}
	return buf
}

// readVLCLong decodes a VLC long at pos, rejecting anything but the minimal encoding
func readVLCLong(b []byte, pos int) (int64, int, error) {
	var x int64
	for i := 0; ; i++ {
		if i >= MaxVLCLongLength {
			return 0, pos, badFormat("VLC long longer than %d bytes", MaxVLCLongLength)
		}
		if pos+i >= len(b) {
			return 0, pos, badFormat("truncated VLC long at offset %d", pos)
		}
		c := b[pos+i]
		if i == 0 {
			x = int64(int8(c<<1)) >> 1 // sign extend the low 7 bits
		} else {
			if x > math.MaxInt64>>7 || x < math.MinInt64>>7 {
				return 0, pos, badFormat("VLC long overflow at offset %d", pos)
			}
			x = x<<7 | int64(c&0x7f)
		}
		if c&0x80 == 0 {
			if n := i + 1; n != VLCLongLength(x) {
				return 0, pos, badFormat("non-canonical VLC long, %d bytes for %d", n, x)
			}
			return x, pos + i + 1, nil
		}
	}
}

// VLCCountLength returns the number of bytes the VLC count encoding of x takes.
func VLCCountLength(x uint64) int {
	n := 1
	for n < 10 && x >= uint64(1)<<uint(7*n) {
		n++
	}
	return n
}

func appendVLCCount(buf []byte, x uint64) []byte {
	n := VLCCountLength(x)
	for i := n - 1; i >= 0; i-- {
		b := byte((x >> uint(7*i)) & 0x7f)
		if i > 0 {
			b |= 0x80
		}
		buf = append(buf, b)
	}
	return buf
}

func readVLCCount(b []byte, pos int) (uint64, int, error) {
	var x uint64
	for i := 0; ; i++ {
		if i >= MaxVLCCountLength {
			return 0, pos, badFormat("VLC count longer than %d bytes", MaxVLCCountLength)
		}
		if pos+i >= len(b) {
			return 0, pos, badFormat("truncated VLC count at offset %d", pos)
		}
		c := b[pos+i]
		if i == 0 && c == 0x80 {
			return 0, pos, badFormat("non-canonical VLC count at offset %d", pos)
		}
		x = x<<7 | uint64(c&0x7f)
		if c&0x80 == 0 {
			return x, pos + i + 1, nil
		}
	}
}

// counts are bounded so that they always fit an int64
func readCount(b []byte, pos int) (int64, int, error) {
	x, next, err := readVLCCount(b, pos)
	if err != nil {
		return 0, pos, err
	}
	if x > math.MaxInt64 {
		return 0, pos, badFormat("count %d out of range", x)
	}
	return int64(x), next, nil
}

// ceilDiv is n/d rounded up, without overflow for any non-negative n
func ceilDiv(n, d int64) int64 {
	q := n / d
	if n%d != 0 {
		q++
	}
	return q
}

// appendRef writes a child position, the full encoding when embedded, a branch ref otherwise
func appendRef(buf []byte, r *Ref) []byte {
	if r.IsEmbedded() {
		return append(buf, r.value.Encoding()...)
	}
	h := r.Hash()
	buf = append(buf, TagRef)
	return append(buf, h[:]...)
}

// Encode returns a copy of the canonical encoding of c.
func Encode(c Cell) []byte {
	enc := c.Encoding()
	out := make([]byte, len(enc))
	copy(out, enc)
	return out
}

// Decode parses exactly one cell from b. Branch children come back as hash-only refs.
func Decode(b []byte) (Cell, error) {
	if len(b) == 0 {
		return nil, badFormat("empty encoding")
	}
	buf := make([]byte, len(b))
	copy(buf, b)
	c, next, err := decodeCell(buf, 0)
	if err != nil {
		return nil, err
	}
	if next != len(buf) {
		return nil, badFormat("%d trailing bytes after %s", len(buf)-next, tagName(buf[0]))
	}
	return c, nil
}

// DecodeVerified decodes b after checking that it hashes to h.
func DecodeVerified(h Hash, b []byte) (Cell, error) {
	if got := sum(b); got != h {
		return nil, wrapCorruption(h, got)
	}
	return Decode(b)
}

// decodeCell parses one cell starting at pos and returns the position after it
func decodeCell(b []byte, pos int) (Cell, int, error) {
	if pos >= len(b) {
		return nil, pos, badFormat("truncated encoding at offset %d", pos)
	}
	var c Cell
	var next int
	var err error
	switch tag := b[pos]; tag {
	case TagNil:
		return Nil, pos + 1, nil
	case TagTrue:
		return True, pos + 1, nil
	case TagFalse:
		return False, pos + 1, nil
	case TagLong:
		c, next, err = decodeLong(b, pos)
	case TagDouble:
		c, next, err = decodeDouble(b, pos)
	case TagAddress:
		c, next, err = decodeAddress(b, pos)
	case TagSymbol, TagKeyword:
		c, next, err = decodeSymbolic(b, pos)
	case TagString, TagBlob:
		c, next, err = decodeChunked(b, pos)
	case TagVector:
		c, next, err = decodeVector(b, pos)
	case TagList:
		c, next, err = decodeList(b, pos)
	case TagMap, TagSet:
		c, next, err = decodeTrie(b, pos)
	case TagRecord:
		c, next, err = decodeRecord(b, pos)
	case TagSignedData:
		c, next, err = decodeSignedData(b, pos)
	case TagRef:
		return nil, pos, badFormat("branch ref outside a child position at offset %d", pos)
	default:
		return nil, pos, badFormat("unknown tag 0x%02x at offset %d", tag, pos)
	}
	if err != nil {
		return nil, pos, err
	}

	// every constructor re-encodes from components, so anything that survived
	// parsing but would encode differently is a second encoding of the same value
	if !bytes.Equal(c.Encoding(), b[pos:next]) {
		return nil, pos, badFormat("non-canonical %s encoding at offset %d", tagName(b[pos]), pos)
	}
	return c, next, nil
}

// decodeChild parses a child position: a branch ref or an inline embedded cell
func decodeChild(b []byte, pos int) (*Ref, int, error) {
	if pos >= len(b) {
		return nil, pos, badFormat("truncated child at offset %d", pos)
	}
	if b[pos] == TagRef {
		if pos+1+HASHSIZE > len(b) {
			return nil, pos, badFormat("truncated branch ref at offset %d", pos)
		}
		var h Hash
		copy(h[:], b[pos+1:pos+1+HASHSIZE])
		return RefForHash(h), pos + 1 + HASHSIZE, nil
	}
	c, next, err := decodeCell(b, pos)
	if err != nil {
		return nil, pos, err
	}
	if !c.IsEmbedded() {
		return nil, pos, badFormat("inline %s of %d bytes cannot be embedded", tagName(c.Tag()), len(c.Encoding()))
	}
	return NewRef(c), next, nil
}

func tagName(tag byte) string {
	switch tag {
	case TagNil:
		return "nil"
	case TagTrue, TagFalse:
		return "boolean"
	case TagLong:
		return "long"
	case TagDouble:
		return "double"
	case TagAddress:
		return "address"
	case TagSymbol:
		return "symbol"
	case TagKeyword:
		return "keyword"
	case TagString:
		return "string"
	case TagBlob:
		return "blob"
	case TagVector:
		return "vector"
	case TagList:
		return "list"
	case TagMap:
		return "map"
	case TagSet:
		return "set"
	case TagRecord:
		return "record"
	case TagSignedData:
		return "signed data"
	case TagRef:
		return "ref"
	}
	return "unknown"
}
