package etch

// All changes are reported of this type, deleted, modified, inserted.
type DiffHandler func(key, value *Ref)

// Diff reports every key deleted, modified or inserted between two maps.
// Subtries with equal hashes are skipped without loading, so the work is
// proportional to the changes. Modified entries carry the head value, nil
// handlers are not called.
func Diff(res *Resolver, base, head *Map, deleted, modified, inserted DiffHandler) error {
	return diffTries(res, base.trie, head.trie, deleted, modified, inserted)
}

func diffTries(res *Resolver, base, head *trie, deleted, modified, inserted DiffHandler) error {
	if base.Hash() == head.Hash() {
		return nil
	}
	if !base.isLeaf() && !head.isLeaf() && base.shift == head.shift {
		for d := 0; d < 16; d++ {
			var bc, hc *trie
			var err error
			if base.mask&(1<<uint(d)) != 0 {
				if bc, err = base.child(res, base.childIndex(d)); err != nil {
					return err
				}
			}
			if head.mask&(1<<uint(d)) != 0 {
				if hc, err = head.child(res, head.childIndex(d)); err != nil {
					return err
				}
			}
			switch {
			case bc != nil && hc != nil:
				err = diffTries(res, bc, hc, deleted, modified, inserted)
			case bc != nil:
				err = report(res, bc, deleted)
			case hc != nil:
				err = report(res, hc, inserted)
			}
			if err != nil {
				return err
			}
		}
		return nil
	}

	// shapes differ, merge the two entry lists
	be, err := base.entries(res)
	if err != nil {
		return err
	}
	he, err := head.entries(res)
	if err != nil {
		return err
	}
	i, j := 0, 0
	for i < len(be) || j < len(he) {
		var cmp int
		switch {
		case i == len(be):
			cmp = 1
		case j == len(he):
			cmp = -1
		default:
			cmp = be[i].key.Hash().Compare(he[j].key.Hash())
		}
		switch {
		case cmp < 0:
			call(deleted, be[i])
			i++
		case cmp > 0:
			call(inserted, he[j])
			j++
		default:
			if be[i].value.Hash() != he[j].value.Hash() {
				call(modified, he[j])
			}
			i, j = i+1, j+1
		}
	}
	return nil
}

func report(res *Resolver, t *trie, fn DiffHandler) error {
	if fn == nil {
		return nil
	}
	return t.each(res, func(e trieEntry) error {
		fn(e.key, e.value)
		return nil
	})
}

func call(fn DiffHandler, e trieEntry) {
	if fn != nil {
		fn(e.key, e.value)
	}
}
