package etch

import "strings"

// MapEntry is a key/value pair of a map.
type MapEntry struct {
	Key   Cell
	Value Cell
}

// Map is a hash map from cells to cells.
type Map struct{ *trie }

// EmptyMap has no entries.
var EmptyMap = &Map{newTrieLeaf(TagMap, nil)}

// NewMap builds a map, a later entry replaces an earlier one with the same key.
func NewMap(entries ...MapEntry) *Map {
	es := make([]trieEntry, len(entries))
	for i, e := range entries {
		es[i] = trieEntry{key: NewRef(e.Key), value: NewRef(e.Value)}
	}
	return &Map{buildTrie(TagMap, sortEntries(es))}
}

// Get returns the value for key, ok is false when the key is absent.
func (m *Map) Get(res *Resolver, key Cell) (Cell, bool, error) {
	if key == nil {
		key = Nil
	}
	e, ok, err := m.get(res, key.Hash())
	if err != nil || !ok {
		return nil, false, err
	}
	v, err := e.value.Value(res)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (m *Map) ContainsKey(res *Resolver, key Cell) (bool, error) {
	if key == nil {
		key = Nil
	}
	_, ok, err := m.get(res, key.Hash())
	return ok, err
}

// Assoc returns a map with key set to value.
func (m *Map) Assoc(res *Resolver, key, value Cell) (*Map, error) {
	t, err := m.assoc(res, trieEntry{key: NewRef(key), value: NewRef(value)})
	if err != nil {
		return nil, err
	}
	if t == m.trie {
		return m, nil
	}
	return &Map{t}, nil
}

// Dissoc returns a map without key.
func (m *Map) Dissoc(res *Resolver, key Cell) (*Map, error) {
	if key == nil {
		key = Nil
	}
	t, err := m.dissoc(res, key.Hash())
	if err != nil {
		return nil, err
	}
	if t == m.trie {
		return m, nil
	}
	return &Map{t}, nil
}

// Entries loads every entry, in key hash order.
func (m *Map) Entries(res *Resolver) ([]MapEntry, error) {
	var out []MapEntry
	err := m.each(res, func(e trieEntry) error {
		k, err := e.key.Value(res)
		if err != nil {
			return err
		}
		v, err := e.value.Value(res)
		if err != nil {
			return err
		}
		out = append(out, MapEntry{Key: k, Value: v})
		return nil
	})
	return out, err
}

func (m *Map) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	m.writeEntries(&sb, true)
	sb.WriteByte('}')
	return sb.String()
}

// Set is a hash set of cells.
type Set struct{ *trie }

// EmptySet has no elements.
var EmptySet = &Set{newTrieLeaf(TagSet, nil)}

func NewSet(elems ...Cell) *Set {
	es := make([]trieEntry, len(elems))
	for i, c := range elems {
		es[i] = trieEntry{key: NewRef(c)}
	}
	return &Set{buildTrie(TagSet, sortEntries(es))}
}

func (s *Set) Contains(res *Resolver, c Cell) (bool, error) {
	if c == nil {
		c = Nil
	}
	_, ok, err := s.get(res, c.Hash())
	return ok, err
}

// Conj returns a set including c.
func (s *Set) Conj(res *Resolver, c Cell) (*Set, error) {
	t, err := s.assoc(res, trieEntry{key: NewRef(c)})
	if err != nil {
		return nil, err
	}
	if t == s.trie {
		return s, nil
	}
	return &Set{t}, nil
}

// Disj returns a set without c.
func (s *Set) Disj(res *Resolver, c Cell) (*Set, error) {
	if c == nil {
		c = Nil
	}
	t, err := s.dissoc(res, c.Hash())
	if err != nil {
		return nil, err
	}
	if t == s.trie {
		return s, nil
	}
	return &Set{t}, nil
}

// Elements loads every element, in hash order.
func (s *Set) Elements(res *Resolver) ([]Cell, error) {
	var out []Cell
	err := s.each(res, func(e trieEntry) error {
		c, err := e.key.Value(res)
		if err != nil {
			return err
		}
		out = append(out, c)
		return nil
	})
	return out, err
}

func (s *Set) String() string {
	var sb strings.Builder
	sb.WriteString("#{")
	s.writeEntries(&sb, true)
	sb.WriteByte('}')
	return sb.String()
}
