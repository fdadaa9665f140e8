package etch

import "strings"

// Vector is an indexed sequence. Up to Fanout elements are held in a leaf,
// larger vectors are trees of full child vectors with a partial last child.
type Vector struct {
	cellBase
	count int64
	refs  []*Ref // elements of a leaf, child vectors of a tree
}

// EmptyVector has no elements.
var EmptyVector = buildVector(nil)

// vectorSpan is the element count of each child of a tree vector of n elements
func vectorSpan(n int64) int64 {
	s := int64(Fanout)
	for s < ceilDiv(n, Fanout) {
		s *= Fanout
	}
	return s
}

func NewVector(elems ...Cell) *Vector {
	refs := make([]*Ref, len(elems))
	for i, c := range elems {
		refs[i] = NewRef(c)
	}
	return buildVector(refs)
}

// VectorOf builds a vector over existing refs, keeping their status.
func VectorOf(refs ...*Ref) *Vector {
	return buildVector(append([]*Ref(nil), refs...))
}

// buildVector takes ownership of refs
func buildVector(refs []*Ref) *Vector {
	n := int64(len(refs))
	if n <= Fanout {
		return newVectorNode(n, refs)
	}
	span := vectorSpan(n)
	children := make([]*Ref, 0, ceilDiv(n, span))
	for i := int64(0); i < n; i += span {
		end := i + span
		if end > n {
			end = n
		}
		children = append(children, NewRef(buildVector(refs[i:end:end])))
	}
	return newVectorNode(n, children)
}

func newVectorNode(count int64, refs []*Ref) *Vector {
	v := &Vector{count: count, refs: refs}
	v.enc = v.encodeBody(TagVector)
	v.branched = hasBranch(refs)
	return v
}

func (v *Vector) encodeBody(tag byte) []byte {
	enc := appendVLCCount([]byte{tag}, uint64(v.count))
	for _, r := range v.refs {
		enc = appendRef(enc, r)
	}
	return enc
}

func (v *Vector) Count() int64   { return v.count }
func (v *Vector) RefCount() int  { return len(v.refs) }
func (v *Vector) Ref(i int) *Ref { return v.refs[i] }
func (v *Vector) isLeaf() bool   { return v.count <= Fanout }

func (v *Vector) childCount(i int) int64 {
	span := vectorSpan(v.count)
	if rest := v.count - int64(i)*span; rest < span {
		return rest
	}
	return span
}

func (v *Vector) checkChild(i int, child Cell) error {
	if v.isLeaf() {
		return nil
	}
	cv, ok := child.(*Vector)
	if !ok {
		return badFormat("vector child %d is a %s", i, tagName(child.Tag()))
	}
	if want := v.childCount(i); cv.count != want {
		return badFormat("vector child %d has %d elements, expected %d", i, cv.count, want)
	}
	return nil
}

func (v *Vector) child(res *Resolver, i int) (*Vector, error) {
	c, err := v.refs[i].Value(res)
	if err != nil {
		return nil, err
	}
	if err = v.checkChild(i, c); err != nil {
		return nil, err
	}
	return c.(*Vector), nil
}

// GetRef returns the ref of element i.
func (v *Vector) GetRef(res *Resolver, i int64) (*Ref, error) {
	if i < 0 || i >= v.count {
		return nil, ErrOutOfRange
	}
	for !v.isLeaf() {
		span := vectorSpan(v.count)
		next, err := v.child(res, int(i/span))
		if err != nil {
			return nil, err
		}
		v, i = next, i%span
	}
	return v.refs[i], nil
}

// Get returns element i.
func (v *Vector) Get(res *Resolver, i int64) (Cell, error) {
	r, err := v.GetRef(res, i)
	if err != nil {
		return nil, err
	}
	return r.Value(res)
}

// Append returns a vector with c added at the end. Full children are shared.
func (v *Vector) Append(res *Resolver, c Cell) (*Vector, error) {
	return v.appendRef(res, NewRef(c))
}

func (v *Vector) appendRef(res *Resolver, r *Ref) (*Vector, error) {
	if v.count < Fanout {
		return newVectorNode(v.count+1, append(v.refs[:len(v.refs):len(v.refs)], r)), nil
	}
	span := int64(Fanout)
	if !v.isLeaf() {
		span = vectorSpan(v.count)
	}
	if v.count == span*Fanout || v.count == Fanout {
		// full, v becomes the first child of a taller tree
		return newVectorNode(v.count+1, []*Ref{NewRef(v), NewRef(newVectorNode(1, []*Ref{r}))}), nil
	}
	refs := append([]*Ref(nil), v.refs...)
	if v.count%span == 0 {
		refs = append(refs, NewRef(newVectorNode(1, []*Ref{r})))
		return newVectorNode(v.count+1, refs), nil
	}
	last := len(refs) - 1
	lv, err := v.child(res, last)
	if err != nil {
		return nil, err
	}
	if lv, err = lv.appendRef(res, r); err != nil {
		return nil, err
	}
	refs[last] = NewRef(lv)
	return newVectorNode(v.count+1, refs), nil
}

// Assoc returns a vector with element i replaced by c.
func (v *Vector) Assoc(res *Resolver, i int64, c Cell) (*Vector, error) {
	if i < 0 || i >= v.count {
		return nil, ErrOutOfRange
	}
	refs := append([]*Ref(nil), v.refs...)
	if v.isLeaf() {
		refs[i] = NewRef(c)
		return newVectorNode(v.count, refs), nil
	}
	span := vectorSpan(v.count)
	ci := int(i / span)
	cv, err := v.child(res, ci)
	if err != nil {
		return nil, err
	}
	if cv, err = cv.Assoc(res, i%span, c); err != nil {
		return nil, err
	}
	refs[ci] = NewRef(cv)
	return newVectorNode(v.count, refs), nil
}

// Elements loads every element in order.
func (v *Vector) Elements(res *Resolver) ([]Cell, error) {
	out := make([]Cell, 0, v.count)
	err := v.each(res, func(r *Ref) error {
		c, err := r.Value(res)
		if err != nil {
			return err
		}
		out = append(out, c)
		return nil
	})
	return out, err
}

func (v *Vector) each(res *Resolver, fn func(*Ref) error) error {
	if v.isLeaf() {
		for _, r := range v.refs {
			if err := fn(r); err != nil {
				return err
			}
		}
		return nil
	}
	for i := range v.refs {
		cv, err := v.child(res, i)
		if err != nil {
			return err
		}
		if err = cv.each(res, fn); err != nil {
			return err
		}
	}
	return nil
}

func (v *Vector) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	v.writeElems(&sb, false)
	sb.WriteByte(']')
	return sb.String()
}

// writeElems prints what is in memory, unloaded subtrees print as refs
func (v *Vector) writeElems(sb *strings.Builder, reverse bool) {
	n := len(v.refs)
	for k := 0; k < n; k++ {
		i := k
		if reverse {
			i = n - 1 - k
		}
		if k > 0 {
			sb.WriteByte(' ')
		}
		r := v.refs[i]
		if cv, ok := r.value.(*Vector); ok && !v.isLeaf() {
			cv.writeElems(sb, reverse)
			continue
		}
		sb.WriteString(r.String())
	}
}

func decodeVectorBody(b []byte, pos int) (*Vector, int, error) {
	n, next, err := readCount(b, pos+1)
	if err != nil {
		return nil, pos, err
	}
	k := n
	if n > Fanout {
		span := vectorSpan(n)
		k = ceilDiv(n, span)
	}
	if int64(len(b)-next) < k {
		return nil, pos, badFormat("truncated vector of %d elements at offset %d", n, pos)
	}
	refs := make([]*Ref, k)
	for i := range refs {
		if refs[i], next, err = decodeChild(b, next); err != nil {
			return nil, pos, err
		}
	}
	v := newVectorNode(n, refs)
	if err = checkDirectChildren(v, refs); err != nil {
		return nil, pos, err
	}
	return v, next, nil
}

func decodeVector(b []byte, pos int) (Cell, int, error) {
	v, next, err := decodeVectorBody(b, pos)
	if err != nil {
		return nil, pos, err
	}
	return v, next, nil
}
