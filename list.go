package etch

import "strings"

// List is a sequence that grows at the front. It is stored as a vector
// holding the elements in reverse order, so Cons shares like Append.
type List struct {
	cellBase
	vec *Vector
}

func NewList(elems ...Cell) *List {
	refs := make([]*Ref, len(elems))
	for i, c := range elems {
		refs[len(elems)-1-i] = NewRef(c)
	}
	return listOf(buildVector(refs))
}

func listOf(v *Vector) *List {
	l := &List{vec: v}
	l.enc = v.encodeBody(TagList)
	l.branched = v.branched
	return l
}

func (l *List) Count() int64   { return l.vec.count }
func (l *List) RefCount() int  { return len(l.vec.refs) }
func (l *List) Ref(i int) *Ref { return l.vec.refs[i] }

func (l *List) checkChild(i int, child Cell) error {
	return l.vec.checkChild(i, child)
}

// Get returns element i counting from the front.
func (l *List) Get(res *Resolver, i int64) (Cell, error) {
	if i < 0 || i >= l.vec.count {
		return nil, ErrOutOfRange
	}
	return l.vec.Get(res, l.vec.count-1-i)
}

// Cons returns a list with c in front.
func (l *List) Cons(res *Resolver, c Cell) (*List, error) {
	v, err := l.vec.Append(res, c)
	if err != nil {
		return nil, err
	}
	return listOf(v), nil
}

// Elements loads every element, front first.
func (l *List) Elements(res *Resolver) ([]Cell, error) {
	out, err := l.vec.Elements(res)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (l *List) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	l.vec.writeElems(&sb, true)
	sb.WriteByte(')')
	return sb.String()
}

func decodeList(b []byte, pos int) (Cell, int, error) {
	v, next, err := decodeVectorBody(b, pos)
	if err != nil {
		return nil, pos, err
	}
	return listOf(v), next, nil
}
