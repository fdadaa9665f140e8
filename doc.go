/*
Package etch holds immutable, content addressed values and stores them in an append only, memory mapped file.

Every value is a Cell with exactly one canonical encoding, and its identity is the SHA3-256 hash of that encoding.
Two cells are equal when their encodings are. Collections are trees of cells. Children small enough
(MaxEmbeddedLength bytes or less) that hold no hash references themselves are embedded in the parent's
encoding, all others are referenced by hash. Persist always stores the root it is given, embedded or not.
Updating a collection returns a new cell that shares every unchanged subtree with the old one.

	Features

		* canonical encoding, decoding rejects every non canonical byte sequence
		* blobs, strings, vectors, lists, hash maps, hash sets, records, signed data
		* refs that load lazily from a store and track how far a value made it (stored, persisted, announced)
		* persistence that writes children before parents and reports each new cell exactly once
		* Etch, a single file store: mmap reads, single writer appends, lock striped index,
		  index checkpoints and recovery of a torn tail
		* a memory store for tests and a LevelDB store (package leveldbstore)
		* proofs of membership for map keys and diffs between maps

Eg. Minimal code, to persist a vector and read it back (error checking is skipped)

	store, _ := etch.OpenFile("/tmp/data.etch")       // open or create a store
	res := etch.NewResolver(store, 0)                 // resolver with the default cache
	v := etch.NewVector(etch.NewLong(1), etch.NewString("two"))
	ref, _ := etch.Persist(res, etch.NewRef(v), nil)  // write v and everything below it
	store.SetRoot(ref.Hash())                         // remember it
	store.Close()

	store, _ = etch.OpenFile("/tmp/data.etch")
	res = etch.NewResolver(store, 0)
	root, _ := store.Root()
	c, _ := etch.RefForHash(root.Hash).Value(res)     // loads and verifies the vector
	two, _ := c.(*etch.Vector).Get(res, 1)

Status is relative to a store: a ref persisted to one store says nothing about another.
*/
package etch
