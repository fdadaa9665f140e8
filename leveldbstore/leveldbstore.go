// Package leveldbstore keeps cell encodings in a LevelDB database.
//
// Keys are cell hashes, values are one status byte followed by the encoding.
package leveldbstore

import "sync"

import "github.com/syndtr/goleveldb/leveldb"
import ldb_opt "github.com/syndtr/goleveldb/leveldb/opt"
import log "github.com/sirupsen/logrus"
import "golang.org/x/xerrors"

import etch "github.com/Convex-Dev/convex-sub012"

// Store is an etch.Store over LevelDB. Writes are serialized so that the
// prior status returned by Write is exact.
type Store struct {
	sync.Mutex
	db  *leveldb.DB
	dir string
	log *log.Entry
}

var _ etch.Store = (*Store)(nil)

// Open opens or creates the database in dir.
func Open(dir string) (*Store, error) {
	db, err := leveldb.OpenFile(dir, &ldb_opt.Options{
		ErrorIfMissing: false,
	})
	if nil != err {
		return nil, &etch.StoreIOError{Op: "open", Err: err}
	}
	s := &Store{db: db, dir: dir, log: log.WithField("leveldb", dir)}
	s.log.Debug("opened")
	return s, nil
}

func (s *Store) Read(h etch.Hash) (etch.Entry, bool, error) {
	buf, err := s.db.Get(h[:], nil)
	if leveldb.ErrNotFound == err {
		return etch.Entry{}, false, nil
	}
	if leveldb.ErrClosed == err {
		return etch.Entry{}, false, etch.ErrClosed
	}
	if nil != err {
		return etch.Entry{}, false, &etch.StoreIOError{Op: "get", Err: err}
	}
	if len(buf) < 1 {
		return etch.Entry{}, false, xerrors.Errorf("%w: empty value for %s", etch.ErrCorruption, h)
	}
	return etch.Entry{Encoding: buf[1:], Status: etch.Status(buf[0])}, true, nil
}

func (s *Store) Write(h etch.Hash, enc []byte, status etch.Status) (etch.Status, error) {
	if status < etch.StatusStored {
		status = etch.StatusStored
	}
	s.Lock()
	defer s.Unlock()

	buf, err := s.db.Get(h[:], nil)
	switch {
	case nil == err && len(buf) > 0:
		prior := etch.Status(buf[0])
		if prior >= status {
			return prior, nil
		}
		buf[0] = byte(status)
		if err = s.db.Put(h[:], buf, nil); nil != err {
			return prior, &etch.StoreIOError{Op: "put", Err: err}
		}
		return prior, nil
	case leveldb.ErrClosed == err:
		return etch.StatusUnknown, etch.ErrClosed
	case nil != err && leveldb.ErrNotFound != err:
		return etch.StatusUnknown, &etch.StoreIOError{Op: "get", Err: err}
	}

	value := make([]byte, 1+len(enc))
	value[0] = byte(status)
	copy(value[1:], enc)
	if err = s.db.Put(h[:], value, nil); nil != err {
		return etch.StatusUnknown, &etch.StoreIOError{Op: "put", Err: err}
	}
	return etch.StatusUnknown, nil
}

// Len counts the stored hashes by iterating the whole database.
func (s *Store) Len() (int, error) {
	iter := s.db.NewIterator(nil, nil)
	defer iter.Release()
	n := 0
	for iter.Next() {
		n++
	}
	return n, iter.Error()
}

func (s *Store) Close() error {
	s.Lock()
	defer s.Unlock()
	err := s.db.Close()
	if nil != err && leveldb.ErrClosed != err {
		return &etch.StoreIOError{Op: "close", Err: err}
	}
	return nil
}
