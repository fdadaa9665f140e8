package etch

import "encoding/binary"
import "math"
import "strconv"
import "unicode/utf8"

type nilCell struct{ cellBase }

func (*nilCell) String() string { return "nil" }

// Bool is a boolean cell, use True and False.
type Bool struct {
	cellBase
	v bool
}

func (b *Bool) Value() bool { return b.v }

func (b *Bool) String() string {
	if b.v {
		return "true"
	}
	return "false"
}

var (
	Nil   Cell  = &nilCell{cellBase{enc: []byte{TagNil}}}
	True  *Bool = &Bool{cellBase{enc: []byte{TagTrue}}, true}
	False *Bool = &Bool{cellBase{enc: []byte{TagFalse}}, false}
)

// NewBool returns True or False.
func NewBool(v bool) *Bool {
	if v {
		return True
	}
	return False
}

// Long is a signed 64 bit integer cell.
type Long struct {
	cellBase
	v int64
}

func NewLong(v int64) *Long {
	l := &Long{v: v}
	l.enc = appendVLCLong(append(make([]byte, 0, 1+VLCLongLength(v)), TagLong), v)
	return l
}

func (l *Long) Value() int64    { return l.v }
func (l *Long) String() string { return strconv.FormatInt(l.v, 10) }

func decodeLong(b []byte, pos int) (Cell, int, error) {
	v, next, err := readVLCLong(b, pos+1)
	if err != nil {
		return nil, pos, err
	}
	return NewLong(v), next, nil
}

// canonical NaN, every other NaN payload is rejected
const canonicalNaN uint64 = 0x7ff8000000000000

// Double is an IEEE-754 double cell.
type Double struct {
	cellBase
	v float64
}

// NewDouble collapses every NaN to the canonical NaN.
func NewDouble(v float64) *Double {
	bits := math.Float64bits(v)
	if v != v {
		bits = canonicalNaN
		v = math.Float64frombits(bits)
	}
	d := &Double{v: v}
	d.enc = make([]byte, 9)
	d.enc[0] = TagDouble
	binary.BigEndian.PutUint64(d.enc[1:], bits)
	return d
}

func (d *Double) Value() float64 { return d.v }

func (d *Double) String() string {
	switch {
	case d.v != d.v:
		return "##NaN"
	case math.IsInf(d.v, 1):
		return "##Inf"
	case math.IsInf(d.v, -1):
		return "##-Inf"
	}
	s := strconv.FormatFloat(d.v, 'g', -1, 64)
	for i := 0; i < len(s); i++ {
		if s[i] == '.' || s[i] == 'e' {
			return s
		}
	}
	return s + ".0"
}

func decodeDouble(b []byte, pos int) (Cell, int, error) {
	if pos+9 > len(b) {
		return nil, pos, badFormat("truncated double at offset %d", pos)
	}
	bits := binary.BigEndian.Uint64(b[pos+1:])
	v := math.Float64frombits(bits)
	if v != v && bits != canonicalNaN {
		return nil, pos, badFormat("non-canonical NaN 0x%016x", bits)
	}
	return NewDouble(v), pos + 9, nil
}

// Address identifies an account.
type Address struct {
	cellBase
	v uint64
}

func NewAddress(v uint64) (*Address, error) {
	if v > math.MaxInt64 {
		return nil, invalidCell("address %d out of range", v)
	}
	a := &Address{v: v}
	a.enc = appendVLCCount([]byte{TagAddress}, v)
	return a, nil
}

func (a *Address) Value() uint64   { return a.v }
func (a *Address) String() string { return "#" + strconv.FormatUint(a.v, 10) }

func decodeAddress(b []byte, pos int) (Cell, int, error) {
	v, next, err := readCount(b, pos+1)
	if err != nil {
		return nil, pos, err
	}
	a, err := NewAddress(uint64(v))
	if err != nil {
		return nil, pos, badFormat("%v", err)
	}
	return a, next, nil
}

// symbolic holds the shared form of symbols and keywords: tag, length byte, UTF-8 name
type symbolic struct {
	cellBase
	name string
}

func (s *symbolic) Name() string { return s.name }

func symbolicEncoding(tag byte, name string) ([]byte, error) {
	if len(name) == 0 || len(name) > MaxSymbolLength {
		return nil, invalidCell("%s name must be 1..%d bytes, got %d", tagName(tag), MaxSymbolLength, len(name))
	}
	if !utf8.ValidString(name) {
		return nil, invalidCell("%s name is not valid UTF-8", tagName(tag))
	}
	enc := make([]byte, 0, 2+len(name))
	enc = append(enc, tag, byte(len(name)))
	return append(enc, name...), nil
}

type Symbol struct{ symbolic }

func NewSymbol(name string) (*Symbol, error) {
	enc, err := symbolicEncoding(TagSymbol, name)
	if err != nil {
		return nil, err
	}
	return &Symbol{symbolic{cellBase{enc: enc}, name}}, nil
}

func (s *Symbol) String() string { return s.name }

type Keyword struct{ symbolic }

func NewKeyword(name string) (*Keyword, error) {
	enc, err := symbolicEncoding(TagKeyword, name)
	if err != nil {
		return nil, err
	}
	return &Keyword{symbolic{cellBase{enc: enc}, name}}, nil
}

// MustKeyword is NewKeyword for names known to be valid.
func MustKeyword(name string) *Keyword {
	k, err := NewKeyword(name)
	if err != nil {
		panic(err)
	}
	return k
}

func (k *Keyword) String() string { return ":" + k.name }

func decodeSymbolic(b []byte, pos int) (Cell, int, error) {
	if pos+2 > len(b) {
		return nil, pos, badFormat("truncated %s at offset %d", tagName(b[pos]), pos)
	}
	n := int(b[pos+1])
	if pos+2+n > len(b) {
		return nil, pos, badFormat("truncated %s name at offset %d", tagName(b[pos]), pos)
	}
	name := string(b[pos+2 : pos+2+n])
	var c Cell
	var err error
	if b[pos] == TagSymbol {
		c, err = NewSymbol(name)
	} else {
		c, err = NewKeyword(name)
	}
	if err != nil {
		return nil, pos, badFormat("%v", err)
	}
	return c, pos + 2 + n, nil
}
