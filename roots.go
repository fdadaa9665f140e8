package etch

import "bytes"
import "encoding/binary"
import "sort"

import "github.com/google/uuid"
import "golang.org/x/crypto/blake2s"
import "golang.org/x/xerrors"

// the data file starts with a header and a ring of recent root records,
// records are appended after them
const (
	headerSize                 = 32
	internal_MAX_ROOTS_TO_KEEP = 20 // this many recent roots will be kept
	internal_ROOT_RECORD_SIZE  = 48 // version, hash, 8 bytes of blake2s over both
	dataStart                  = headerSize + internal_MAX_ROOTS_TO_KEEP*internal_ROOT_RECORD_SIZE
	fileMagic                  = "ETCH"
	fileVersion                = 1
)

// RootRecord is one entry of the root history.
type RootRecord struct {
	Version uint64
	Hash    Hash
}

// header: magic[4] version[2] pad[2] file id[16] pad[8]
func newHeader(id uuid.UUID) []byte {
	buf := make([]byte, dataStart)
	copy(buf, fileMagic)
	binary.BigEndian.PutUint16(buf[4:], fileVersion)
	copy(buf[8:], id[:])
	return buf
}

// checkHeader returns the id the file was created with
func checkHeader(buf []byte) (id uuid.UUID, err error) {
	if !bytes.Equal(buf[:4], []byte(fileMagic)) {
		return id, badFormat("not an etch data file")
	}
	if v := binary.BigEndian.Uint16(buf[4:]); v != fileVersion {
		return id, badFormat("unsupported etch file version %d", v)
	}
	copy(id[:], buf[8:24])
	return id, nil
}

func rootChecksum(slot []byte) []byte {
	sum := blake2s.Sum256(slot[:40])
	return sum[:8]
}

// loadRoots reads the ring, slots with a bad checksum are treated as empty
func (e *Etch) loadRoots() error {
	var buf [internal_MAX_ROOTS_TO_KEEP * internal_ROOT_RECORD_SIZE]byte
	if err := e.dev.readAt(buf[:], headerSize); err != nil {
		return ioError("read roots", err)
	}
	e.rootsync.Lock()
	defer e.rootsync.Unlock()
	for i := range e.roots {
		slot := buf[i*internal_ROOT_RECORD_SIZE : (i+1)*internal_ROOT_RECORD_SIZE]
		e.roots[i] = RootRecord{}
		if binary.BigEndian.Uint64(slot) == 0 {
			continue
		}
		if !bytes.Equal(rootChecksum(slot), slot[40:]) {
			e.log.WithField("slot", i).Warn("discarding torn root record")
			continue
		}
		e.roots[i].Version = binary.BigEndian.Uint64(slot)
		copy(e.roots[i].Hash[:], slot[8:40])
	}
	e.root_index, _ = e.findhighestroot()
	return nil
}

func (e *Etch) findhighestroot() (index int, version uint64) {
	for i, r := range e.roots {
		if r.Version > version {
			index, version = i, r.Version
		}
	}
	return
}

// SetRoot records h as the newest root and returns its version. h must be stored.
func (e *Etch) SetRoot(h Hash) (uint64, error) {
	if e.closed.Load() {
		return 0, ErrClosed
	}
	if _, ok := e.index.get(h); !ok {
		return 0, xerrors.Errorf("%w: root %s is not stored", ErrNotFound, h)
	}

	e.writesync.Lock()
	defer e.writesync.Unlock()
	e.rootsync.Lock()
	defer e.rootsync.Unlock()

	if err := e.syncAppended(); err != nil {
		return 0, err
	}
	_, version := e.findhighestroot()
	version++
	index := (e.root_index + 1) % internal_MAX_ROOTS_TO_KEEP

	var slot [internal_ROOT_RECORD_SIZE]byte
	binary.BigEndian.PutUint64(slot[:], version)
	copy(slot[8:], h[:])
	copy(slot[40:], rootChecksum(slot[:]))
	if err := e.dev.writeAt(slot[:], int64(headerSize+index*internal_ROOT_RECORD_SIZE)); err != nil {
		return 0, ioError("write root", err)
	}
	if e.cfg.SyncWrites {
		if err := e.dev.sync(); err != nil {
			return 0, ioError("sync", err)
		}
	}
	e.roots[index] = RootRecord{Version: version, Hash: h}
	e.root_index = index
	return version, nil
}

// Root returns the newest root, ok is false when none was set.
func (e *Etch) Root() (RootRecord, bool) {
	e.rootsync.RLock()
	defer e.rootsync.RUnlock()
	r := e.roots[e.root_index]
	return r, r.Version != 0
}

// Roots returns the kept root history, newest first.
func (e *Etch) Roots() []RootRecord {
	e.rootsync.RLock()
	defer e.rootsync.RUnlock()
	var out []RootRecord
	for _, r := range e.roots {
		if r.Version != 0 {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out
}
