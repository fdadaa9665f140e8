package etch

// Validate loads the whole value behind root and checks that every cell is
// canonical in its place: chunk and vector children have the expected sizes,
// hash tries have their canonical shape and every stored cell matches its hash.
// Below root a cell small enough to be embedded must not be referenced by hash.
// Each distinct hash is checked once.
func Validate(res *Resolver, root *Ref) error {
	seen := map[Hash]bool{}
	work := []*Ref{root}
	for len(work) > 0 {
		r := work[len(work)-1]
		work = work[:len(work)-1]
		byHash := !r.IsDirect()

		if !r.IsEmbedded() {
			if seen[r.Hash()] {
				continue
			}
			seen[r.Hash()] = true
		}
		c, err := r.Value(res)
		if err != nil {
			return err
		}
		if r.IsDirect() && !c.IsEmbedded() {
			CheckHash(c)
		}
		if byHash && r != root && c.IsEmbedded() {
			return badFormat("embedded %s %s referenced by hash", tagName(c.Tag()), r.Hash())
		}

		cc, checks := c.(childChecker)
		for i, n := 0, c.RefCount(); i < n; i++ {
			child := c.Ref(i)
			if checks {
				v, err := child.Value(res)
				if err != nil {
					return err
				}
				if err = cc.checkChild(i, v); err != nil {
					return err
				}
			}
			work = append(work, child)
		}
		if t, ok := c.(trieCell); ok && !t.node().isLeaf() {
			if err := t.node().validateShape(res); err != nil {
				return err
			}
		}
	}
	return nil
}
