package etch

import "strings"

// Field is one keyword/value pair of a record.
type Field struct {
	Key   *Keyword
	Value Cell
}

// Record is a fixed sequence of distinct keyword fields, kept in the order given.
type Record struct {
	cellBase
	refs []*Ref // key, value, key, value...
}

func NewRecord(fields ...Field) (*Record, error) {
	if len(fields) > MaxRecordFields {
		return nil, invalidCell("record with %d fields, at most %d allowed", len(fields), MaxRecordFields)
	}
	refs := make([]*Ref, 0, 2*len(fields))
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if f.Key == nil {
			return nil, invalidCell("record field without a key")
		}
		if seen[f.Key.name] {
			return nil, invalidCell("duplicate record field :%s", f.Key.name)
		}
		seen[f.Key.name] = true
		refs = append(refs, NewRef(f.Key), NewRef(f.Value))
	}
	return newRecord(refs), nil
}

func newRecord(refs []*Ref) *Record {
	r := &Record{refs: refs}
	enc := appendVLCCount([]byte{TagRecord}, uint64(len(refs)/2))
	for _, c := range refs {
		enc = appendRef(enc, c)
	}
	r.enc = enc
	r.branched = hasBranch(refs)
	return r
}

func (r *Record) RefCount() int  { return len(r.refs) }
func (r *Record) Ref(i int) *Ref { return r.refs[i] }
func (r *Record) Len() int       { return len(r.refs) / 2 }

// Keys returns the field names in order.
func (r *Record) Keys() []*Keyword {
	keys := make([]*Keyword, 0, r.Len())
	for i := 0; i < len(r.refs); i += 2 {
		keys = append(keys, r.refs[i].value.(*Keyword))
	}
	return keys
}

// Get returns the value of field key, ok is false for an unknown field.
func (r *Record) Get(res *Resolver, key *Keyword) (Cell, bool, error) {
	if key == nil {
		return nil, false, nil
	}
	for i := 0; i < len(r.refs); i += 2 {
		if r.refs[i].value.(*Keyword).name == key.name {
			v, err := r.refs[i+1].Value(res)
			return v, err == nil, err
		}
	}
	return nil, false, nil
}

func (r *Record) String() string {
	var sb strings.Builder
	sb.WriteString("#record{")
	for i := 0; i < len(r.refs); i += 2 {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(r.refs[i].String())
		sb.WriteByte(' ')
		sb.WriteString(r.refs[i+1].String())
	}
	sb.WriteByte('}')
	return sb.String()
}

func decodeRecord(b []byte, pos int) (Cell, int, error) {
	n, next, err := readCount(b, pos+1)
	if err != nil {
		return nil, pos, err
	}
	if n > MaxRecordFields {
		return nil, pos, badFormat("record with %d fields at offset %d", n, pos)
	}
	refs := make([]*Ref, 2*n)
	seen := make(map[string]bool, n)
	for i := 0; i < len(refs); i += 2 {
		if refs[i], next, err = decodeChild(b, next); err != nil {
			return nil, pos, err
		}
		k, ok := refs[i].value.(*Keyword)
		if !ok {
			return nil, pos, badFormat("record key %d is not a keyword at offset %d", i/2, pos)
		}
		if seen[k.name] {
			return nil, pos, badFormat("duplicate record field :%s at offset %d", k.name, pos)
		}
		seen[k.name] = true
		if refs[i+1], next, err = decodeChild(b, next); err != nil {
			return nil, pos, err
		}
	}
	return newRecord(refs), next, nil
}
