package etch

import "bytes"
import "encoding/binary"
import "os"

import "github.com/fxamacker/cbor/v2"
import "github.com/klauspost/compress/zstd"
import "github.com/pierrec/lz4/v4"
import "github.com/zeebo/blake3"
import "golang.org/x/xerrors"

// An index checkpoint lets Open skip rescanning the data file. Layout:
//
//	magic[8] codec[1] rawlen[4] payload blake3[32]
//
// payload is the (compressed) CBOR of checkpointBody, the trailer covers
// everything before it. Records past Covered are replayed from the data file.
const checkpointMagic = "ETCHIDX\x01"

const (
	codecNone byte = iota
	codecZstd
	codecLZ4
)

type checkpointBody struct {
	Covered int64   `cbor:"1,keyasint"`
	Records int64   `cbor:"2,keyasint"`
	Hashes  []byte  `cbor:"3,keyasint"` // concatenated, HASHSIZE each
	Offsets []int64 `cbor:"4,keyasint"`
	FileID  []byte  `cbor:"5,keyasint"` // id from the data file header
}

var (
	cborEnc     cbor.EncMode
	cborDec     cbor.DecMode
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	if cborEnc, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic("etch: CBOR encoder initialization failed: " + err.Error())
	}
	if cborDec, err = (cbor.DecOptions{MaxArrayElements: 1<<31 - 1}).DecMode(); err != nil {
		panic("etch: CBOR decoder initialization failed: " + err.Error())
	}
	if zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault)); err != nil {
		panic("etch: zstd encoder initialization failed: " + err.Error())
	}
	if zstdDecoder, err = zstd.NewReader(nil); err != nil {
		panic("etch: zstd decoder initialization failed: " + err.Error())
	}
}

func encodeCheckpoint(body *checkpointBody, codec byte) ([]byte, error) {
	raw, err := cborEnc.Marshal(body)
	if err != nil {
		return nil, xerrors.Errorf("encoding checkpoint: %w", err)
	}
	payload := raw
	switch codec {
	case codecZstd:
		payload = zstdEncoder.EncodeAll(raw, nil)
	case codecLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(raw)))
		n, err := lz4.CompressBlock(raw, dst, nil)
		if err != nil {
			return nil, xerrors.Errorf("lz4 compress: %w", err)
		}
		if n == 0 { // incompressible
			codec = codecNone
		} else {
			payload = dst[:n]
		}
	}

	buf := make([]byte, 0, len(checkpointMagic)+5+len(payload)+32)
	buf = append(buf, checkpointMagic...)
	buf = append(buf, codec, 0, 0, 0, 0)
	binary.BigEndian.PutUint32(buf[len(buf)-4:], uint32(len(raw)))
	buf = append(buf, payload...)
	sum := blake3.Sum256(buf)
	return append(buf, sum[:]...), nil
}

func decodeCheckpoint(buf []byte) (*checkpointBody, error) {
	head := len(checkpointMagic) + 5
	if len(buf) < head+32 || !bytes.Equal(buf[:len(checkpointMagic)], []byte(checkpointMagic)) {
		return nil, badFormat("not an index checkpoint")
	}
	trailer := buf[len(buf)-32:]
	if sum := blake3.Sum256(buf[:len(buf)-32]); !bytes.Equal(sum[:], trailer) {
		return nil, xerrors.Errorf("%w: checkpoint checksum mismatch", ErrCorruption)
	}
	codec := buf[len(checkpointMagic)]
	rawLen := int(binary.BigEndian.Uint32(buf[len(checkpointMagic)+1:]))
	payload := buf[head : len(buf)-32]

	var raw []byte
	var err error
	switch codec {
	case codecNone:
		raw = payload
	case codecZstd:
		if raw, err = zstdDecoder.DecodeAll(payload, make([]byte, 0, rawLen)); err != nil {
			return nil, xerrors.Errorf("zstd decompress: %w", err)
		}
	case codecLZ4:
		raw = make([]byte, rawLen)
		n, err := lz4.UncompressBlock(payload, raw)
		if err != nil {
			return nil, xerrors.Errorf("lz4 decompress: %w", err)
		}
		raw = raw[:n]
	default:
		return nil, badFormat("unknown checkpoint codec %d", codec)
	}
	if len(raw) != rawLen {
		return nil, badFormat("checkpoint body is %d bytes, header says %d", len(raw), rawLen)
	}

	body := &checkpointBody{}
	if err = cborDec.Unmarshal(raw, body); err != nil {
		return nil, xerrors.Errorf("%w: checkpoint body: %v", ErrBadFormat, err)
	}
	if len(body.Hashes) != HASHSIZE*len(body.Offsets) {
		return nil, badFormat("checkpoint has %d hash bytes for %d offsets", len(body.Hashes), len(body.Offsets))
	}
	return body, nil
}

func readCheckpoint(path string) (*checkpointBody, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return decodeCheckpoint(buf)
}

func (body *checkpointBody) hash(i int) (h Hash) {
	copy(h[:], body.Hashes[i*HASHSIZE:])
	return h
}

// last returns the entry with the highest offset, -1 for an empty checkpoint
func (body *checkpointBody) last() int {
	last := -1
	for i, off := range body.Offsets {
		if last < 0 || off > body.Offsets[last] {
			last = i
		}
	}
	return last
}
