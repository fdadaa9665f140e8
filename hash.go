package etch

import "bytes"
import "encoding/hex"
import "golang.org/x/crypto/sha3"
import "golang.org/x/xerrors"

// Hash is the SHA3-256 digest of a cell encoding, the key for every store.
type Hash [HASHSIZE]byte

var zerosHash Hash

func sum(buf []byte) (h Hash) {
	return Hash(sha3.Sum256(buf))
}

// Sum returns the hash of an arbitrary byte sequence.
func Sum(buf []byte) Hash {
	return sum(buf)
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Hex returns the lowercase hex form, same as String.
func (h Hash) Hex() string {
	return h.String()
}

// IsZero reports whether h is the all-zero hash, which no cell has in practice.
func (h Hash) IsZero() bool {
	return h == zerosHash
}

// Compare orders hashes as unsigned big-endian integers.
func (h Hash) Compare(o Hash) int {
	return bytes.Compare(h[:], o[:])
}

// digit returns the i-th hex digit (0..63), most significant first.
func (h Hash) digit(i int) int {
	b := h[i/2]
	if i%2 == 0 {
		return int(b >> 4)
	}
	return int(b & 0x0f)
}

// ParseHash reads a 64 character hex string, an optional 0x prefix is accepted.
func ParseHash(s string) (h Hash, err error) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	if len(s) != 2*HASHSIZE {
		return h, xerrors.Errorf("hash must be %d hex characters, got %d", 2*HASHSIZE, len(s))
	}
	if _, err = hex.Decode(h[:], []byte(s)); err != nil {
		return h, xerrors.Errorf("parsing hash: %w", err)
	}
	return h, nil
}

// HashFromBytes copies a 32 byte slice into a Hash.
func HashFromBytes(b []byte) (h Hash, err error) {
	if len(b) != HASHSIZE {
		return h, xerrors.Errorf("hash must be %d bytes, got %d", HASHSIZE, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// MarshalText implements encoding.TextMarshaler so hashes render as hex in YAML/CBOR text.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
