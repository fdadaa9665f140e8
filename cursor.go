package etch

// VectorCursor iterates over the elements of a vector, loading one leaf at a time.
// It is valid as long as its vector is, vectors never change.
type VectorCursor struct {
	res  *Resolver
	root *Vector

	node_path []*Vector
	index     []int // child position within each node on the path
}

// Cursor returns an iterator over v, children are loaded through res.
func (v *Vector) Cursor(res *Resolver) *VectorCursor {
	return &VectorCursor{res: res, root: v}
}

// First moves to the first element. An empty vector returns ErrNoMoreElems.
func (c *VectorCursor) First() (Cell, error) {
	c.node_path, c.index = c.node_path[:0], c.index[:0]
	return c.descend(c.root, false)
}

// Last moves to the last element.
func (c *VectorCursor) Last() (Cell, error) {
	c.node_path, c.index = c.node_path[:0], c.index[:0]
	return c.descend(c.root, true)
}

// descend walks from node to its first (or last) element, this is iterative
func (c *VectorCursor) descend(node *Vector, reverse bool) (Cell, error) {
	for {
		if len(node.refs) == 0 {
			return nil, ErrNoMoreElems
		}
		i := 0
		if reverse {
			i = len(node.refs) - 1
		}
		c.node_path = append(c.node_path, node)
		c.index = append(c.index, i)
		if node.isLeaf() {
			return node.refs[i].Value(c.res)
		}
		next, err := node.child(c.res, i)
		if err != nil {
			return nil, err
		}
		node = next
	}
}

// Next moves to the following element, ErrNoMoreElems after the last one.
func (c *VectorCursor) Next() (Cell, error) {
	return c.step(1)
}

// Prev moves to the preceding element, ErrNoMoreElems before the first one.
func (c *VectorCursor) Prev() (Cell, error) {
	return c.step(-1)
}

func (c *VectorCursor) step(dir int) (Cell, error) {
try_again:
	if len(c.node_path) == 0 {
		return nil, ErrNoMoreElems
	}
	top := len(c.node_path) - 1
	node := c.node_path[top]
	i := c.index[top] + dir
	if i < 0 || i >= len(node.refs) { // exhausted, back track one node
		c.node_path = c.node_path[:top]
		c.index = c.index[:top]
		goto try_again
	}
	c.index[top] = i
	if node.isLeaf() {
		return node.refs[i].Value(c.res)
	}
	next, err := node.child(c.res, i)
	if err != nil {
		return nil, err
	}
	return c.descend(next, dir < 0)
}

// Position returns the index of the current element, -1 before First.
func (c *VectorCursor) Position() int64 {
	if len(c.node_path) == 0 {
		return -1
	}
	var pos int64
	for k, node := range c.node_path {
		if node.isLeaf() {
			pos += int64(c.index[k])
		} else {
			pos += int64(c.index[k]) * vectorSpan(node.count)
		}
	}
	return pos
}
