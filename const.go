package etch

import "errors"

const (
	HASHSIZE_BYTES = 32 // SHA3-256
	HASHSIZE       = HASHSIZE_BYTES

	MaxEmbeddedLength = 140  // cells with an encoding at most this long and no branch refs are inlined into their parent
	ChunkLength       = 4096 // flat blob/string limit, larger values become chunk trees
	Fanout            = 16   // children per blob/vector tree node
	MaxLeafEntries    = 8    // map/set leaves hold at most this many entries
	MaxSymbolLength   = 128  // symbol and keyword names, in bytes
	MaxRecordFields   = 32   // fields per record
	MaxVLCCountLength = 9    // 63 bits
	MaxVLCLongLength  = 10   // 64 bits, 7 per byte
)

// value tags, first byte of every encoding
const (
	TagNil        byte = 0x00
	TagLong       byte = 0x10
	TagDouble     byte = 0x1D
	TagRef        byte = 0x20
	TagString     byte = 0x30
	TagBlob       byte = 0x31
	TagSymbol     byte = 0x32
	TagKeyword    byte = 0x33
	TagVector     byte = 0x80
	TagList       byte = 0x81
	TagMap        byte = 0x82
	TagSet        byte = 0x83
	TagSignedData byte = 0x90
	TagRecord     byte = 0xA0
	TagFalse      byte = 0xB0
	TagTrue       byte = 0xB1
	TagAddress    byte = 0xEA
)

var (
	ErrBadFormat   = errors.New("bad format")
	ErrMissingData = errors.New("missing data")
	ErrStoreIO     = errors.New("store i/o failure")
	ErrClosed      = errors.New("store is closed")
	ErrNotFound    = errors.New("not found")
	ErrOutOfRange  = errors.New("index out of range")
	ErrInvalidCell = errors.New("invalid cell")
	ErrNoStore     = errors.New("no store attached")
	ErrNoMoreElems = errors.New("no more elements")
)

// ErrCorruption is reported when stored bytes no longer hash to their key.
// It matches ErrBadFormat under errors.Is.
var ErrCorruption = &corruptionError{}

type corruptionError struct{}

func (*corruptionError) Error() string        { return "data corruption" }
func (*corruptionError) Is(target error) bool { return target == ErrBadFormat }
