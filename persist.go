package etch

// NoveltyHandler is told about every ref whose bytes a persist or announce
// added to the store, once per hash, children before parents.
type NoveltyHandler func(r *Ref)

type persistFrame struct {
	ref      *Ref
	cell     Cell
	expanded bool
}

// Persist writes the cell behind root and every descendant to the store of res,
// children before their parent, and raises each ref to StatusPersisted.
// Embedded descendants travel inside their parent, root itself is always
// written so that it can be read back by hash.
// onNovelty, if not nil, sees each ref whose bytes were not stored before.
// Refs already persisted in this store are skipped together with their
// subtree. On error nothing above the failing cell is marked.
func Persist(res *Resolver, root *Ref, onNovelty NoveltyHandler) (*Ref, error) {
	return persistTo(res, root, StatusPersisted, onNovelty)
}

// Announce persists root and raises it to StatusAnnounced. onNovelty sees
// each ref that had not been announced before.
func Announce(res *Resolver, root *Ref, onNovelty NoveltyHandler) (*Ref, error) {
	return persistTo(res, root, StatusAnnounced, onNovelty)
}

func persistTo(res *Resolver, root *Ref, target Status, onNovelty NoveltyHandler) (*Ref, error) {
	var store Store
	if res != nil {
		store = res.store
	}
	if root.statusIn(store) >= target {
		return root, nil
	}
	if store == nil {
		return nil, ErrNoStore
	}

	// a frame is expanded once, then written after all of its children
	stack := []persistFrame{{ref: root}}
	for len(stack) > 0 {
		top := len(stack) - 1
		r := stack[top].ref

		if stack[top].expanded {
			c := stack[top].cell
			stack = stack[:top]
			if !c.IsEmbedded() || r == root {
				prior, err := store.Write(c.Hash(), c.Encoding(), target)
				if err != nil {
					return nil, err
				}
				if onNovelty != nil && (prior == StatusUnknown || (target == StatusAnnounced && prior < target)) {
					onNovelty(r)
				}
			}
			r.raise(target, store)
			continue
		}

		if r.statusIn(store) >= target {
			stack = stack[:top]
			continue
		}
		if !r.IsEmbedded() || r == root {
			e, ok, err := store.Read(r.Hash())
			if err != nil {
				return nil, err
			}
			if ok && e.Status >= target {
				r.raise(e.Status, store)
				stack = stack[:top]
				continue
			}
			if !ok && !r.IsDirect() {
				return nil, &MissingDataError{Hash: r.Hash()}
			}
		}
		c, err := r.Value(res)
		if err != nil {
			return nil, err
		}
		stack[top].cell = c
		stack[top].expanded = true
		for i := c.RefCount() - 1; i >= 0; i-- {
			stack = append(stack, persistFrame{ref: c.Ref(i)})
		}
	}
	return root, nil
}
