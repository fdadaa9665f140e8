package etch

import "sync"

const indexShards = 64

// index maps hashes to record offsets. It is striped so that lookups and the
// single writer rarely meet on the same lock.
type index struct {
	shards [indexShards]indexShard
}

type indexShard struct {
	sync.RWMutex
	m map[Hash]int64
}

func newIndex() *index {
	idx := &index{}
	for i := range idx.shards {
		idx.shards[i].m = map[Hash]int64{}
	}
	return idx
}

func (idx *index) shard(h Hash) *indexShard {
	return &idx.shards[h[0]%indexShards]
}

func (idx *index) get(h Hash) (int64, bool) {
	s := idx.shard(h)
	s.RLock()
	off, ok := s.m[h]
	s.RUnlock()
	return off, ok
}

// put publishes h at off unless h is already known
func (idx *index) put(h Hash, off int64) bool {
	s := idx.shard(h)
	s.Lock()
	defer s.Unlock()
	if _, ok := s.m[h]; ok {
		return false
	}
	s.m[h] = off
	return true
}

func (idx *index) len() (n int) {
	for i := range idx.shards {
		s := &idx.shards[i]
		s.RLock()
		n += len(s.m)
		s.RUnlock()
	}
	return n
}

// each visits every entry with offset below limit, shard by shard
func (idx *index) each(limit int64, fn func(h Hash, off int64)) {
	for i := range idx.shards {
		s := &idx.shards[i]
		s.RLock()
		for h, off := range s.m {
			if off < limit {
				fn(h, off)
			}
		}
		s.RUnlock()
	}
}
