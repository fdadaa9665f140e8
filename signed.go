package etch

import "encoding/hex"
import "fmt"
import "golang.org/x/crypto/ed25519"

const signedHeader = 1 + ed25519.PublicKeySize + ed25519.SignatureSize

// SignedData is a value with an Ed25519 signature over the value's hash.
type SignedData struct {
	cellBase
	pub   ed25519.PublicKey
	sig   []byte
	value *Ref
}

// Sign signs the hash of the referenced value with priv.
func Sign(priv ed25519.PrivateKey, value *Ref) *SignedData {
	h := value.Hash()
	return newSignedData(priv.Public().(ed25519.PublicKey), ed25519.Sign(priv, h[:]), value)
}

func newSignedData(pub ed25519.PublicKey, sig []byte, value *Ref) *SignedData {
	enc := make([]byte, 0, signedHeader+1+HASHSIZE)
	enc = append(enc, TagSignedData)
	enc = append(enc, pub...)
	enc = append(enc, sig...)
	enc = appendRef(enc, value)
	return &SignedData{
		cellBase: cellBase{enc: enc, branched: !value.IsEmbedded()},
		pub:      enc[1 : 1+ed25519.PublicKeySize],
		sig:      enc[1+ed25519.PublicKeySize : signedHeader],
		value:    value,
	}
}

func (s *SignedData) RefCount() int               { return 1 }
func (s *SignedData) Ref(i int) *Ref              { return s.value }
func (s *SignedData) PublicKey() ed25519.PublicKey { return s.pub }
func (s *SignedData) Signature() []byte           { return s.sig }

// Verify checks the signature. The value itself is not loaded.
func (s *SignedData) Verify() bool {
	h := s.value.Hash()
	return ed25519.Verify(s.pub, h[:], s.sig)
}

func (s *SignedData) Value(res *Resolver) (Cell, error) {
	return s.value.Value(res)
}

func (s *SignedData) String() string {
	return fmt.Sprintf("#signed{%s %s}", hex.EncodeToString(s.pub), s.value)
}

func decodeSignedData(b []byte, pos int) (Cell, int, error) {
	if len(b)-pos < signedHeader {
		return nil, pos, badFormat("truncated signed data at offset %d", pos)
	}
	value, next, err := decodeChild(b, pos+signedHeader)
	if err != nil {
		return nil, pos, err
	}
	pub := ed25519.PublicKey(b[pos+1 : pos+1+ed25519.PublicKeySize])
	return newSignedData(pub, b[pos+1+ed25519.PublicKeySize:pos+signedHeader], value), next, nil
}
