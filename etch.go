package etch

import "bytes"
import "encoding/binary"
import "errors"
import "io/fs"
import "math"
import "os"
import "sync"
import "sync/atomic"

import "github.com/google/uuid"
import log "github.com/sirupsen/logrus"
import "golang.org/x/xerrors"

// record layout: status[1] length[4] hash[32] encoding. A zero status byte marks the end of the log.
const recordHeader = 1 + 4 + HASHSIZE

// Etch is an append only, memory mapped store. Readers never take the write
// lock, a record is fully written before its index entry is published, so a
// concurrent read sees either the whole record or a miss.
type Etch struct {
	cfg  Config
	path string
	temp bool
	log  *log.Entry

	dev    *device
	index  *index
	fileID uuid.UUID

	writesync sync.Mutex // single writer: appends, status upgrades, roots, checkpoints
	tail      atomic.Int64
	records   atomic.Int64
	covered   int64 // checkpointed up to here, under writesync
	synced    int64 // fsynced up to here, under writesync
	closed    atomic.Bool

	rootsync   sync.RWMutex
	roots      [internal_MAX_ROOTS_TO_KEEP]RootRecord
	root_index int
}

var _ Store = (*Etch)(nil)

// Stats describes an open store.
type Stats struct {
	Path              string
	Records           int64
	LogicalSize       int64 // end of the last record
	FileSize          int64 // including space reserved ahead of appends
	CheckpointCovered int64
}

// OpenFile opens or creates the store at path with DefaultConfig.
func OpenFile(path string) (*Etch, error) {
	cfg := DefaultConfig()
	cfg.Path = path
	return Open(cfg)
}

// NewTempStore creates a store in a fresh temporary file that is removed on Close.
func NewTempStore() (*Etch, error) {
	cfg := DefaultConfig()
	cfg.GrowSize = 1 << 20
	return Open(cfg)
}

// Open opens or creates the store described by cfg, rebuilding the index from
// the checkpoint and the records after it.
func Open(cfg Config) (*Etch, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Etch{cfg: cfg, path: cfg.Path, index: newIndex()}
	if e.path == "" {
		f, err := os.CreateTemp("", "etch-*.db")
		if err != nil {
			return nil, ioError("create temp", err)
		}
		e.path, e.temp = f.Name(), true
		f.Close()
	}
	e.log = log.WithField("store", e.path)

	dev, err := openDevice(e.path, cfg.RegionSize, cfg.GrowSize)
	if err != nil {
		return nil, ioError("open", err)
	}
	e.dev = dev
	if err = e.init(); err != nil {
		dev.close()
		return nil, err
	}
	e.log.WithFields(log.Fields{"records": e.records.Load(), "tail": e.tail.Load()}).Debug("store opened")
	return e, nil
}

func (e *Etch) init() error {
	size := e.dev.fileSize()
	if size == 0 {
		e.fileID = uuid.New()
		if err := e.dev.writeAt(newHeader(e.fileID), 0); err != nil {
			return ioError("write header", err)
		}
		e.tail.Store(dataStart)
		e.covered = dataStart
		e.synced = dataStart
		return e.loadRoots()
	}
	if size < dataStart {
		return badFormat("data file %s is %d bytes, shorter than its header", e.path, size)
	}
	var hdr [headerSize]byte
	if err := e.dev.readAt(hdr[:], 0); err != nil {
		return ioError("read header", err)
	}
	id, err := checkHeader(hdr[:])
	if err != nil {
		return err
	}
	e.fileID = id
	if err = e.loadRoots(); err != nil {
		return err
	}
	return e.recover(size)
}

func (e *Etch) checkpointPath() string {
	return e.path + ".idx"
}

// recover seeds the index from the checkpoint when usable and replays the rest of the log
func (e *Etch) recover(size int64) error {
	start := int64(dataStart)
	if e.cfg.Checkpoint && !e.temp {
		cp, err := readCheckpoint(e.checkpointPath())
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			e.log.WithError(err).Warn("ignoring index checkpoint, rescanning")
		case cp.Covered < dataStart || cp.Covered > size:
			e.log.WithField("covered", cp.Covered).Warn("index checkpoint does not fit the data file, rescanning")
		case !bytes.Equal(cp.FileID, e.fileID[:]):
			e.log.WithField("file_id", e.fileID).Warn("index checkpoint belongs to another data file, rescanning")
		default:
			if err = e.checkCheckpointTail(cp); err != nil {
				e.log.WithError(err).Warn("index checkpoint does not match the log, rescanning")
				break
			}
			for i, off := range cp.Offsets {
				e.index.put(cp.hash(i), off)
			}
			e.records.Store(cp.Records)
			start = cp.Covered
		}
	}
	e.covered = start

	off, err := e.replay(start, size)
	e.synced = off
	if err != nil {
		return err
	}
	if off < size {
		// drop a torn tail together with the zeroed space reserved past it
		if err = e.dev.truncate(off); err != nil {
			return ioError("truncate", err)
		}
	}
	e.tail.Store(off)
	return nil
}

// checkCheckpointTail checks that the last covered record is in the log and ends at Covered
func (e *Etch) checkCheckpointTail(cp *checkpointBody) error {
	i := cp.last()
	if i < 0 {
		if cp.Covered != dataStart {
			return badFormat("empty checkpoint covers %d bytes", cp.Covered)
		}
		return nil
	}
	off := cp.Offsets[i]
	var hdr [recordHeader]byte
	if off < dataStart || off+recordHeader > cp.Covered {
		return badFormat("checkpoint record offset %d out of range", off)
	}
	if err := e.dev.readAt(hdr[:], off); err != nil {
		return ioError("read", err)
	}
	var h Hash
	copy(h[:], hdr[5:])
	if h != cp.hash(i) || off+recordHeader+int64(binary.BigEndian.Uint32(hdr[1:])) != cp.Covered {
		return badFormat("checkpoint record %s at %d is not in the log", cp.hash(i), off)
	}
	return nil
}

// replay indexes records from off until the end of the log and returns where the log ends
func (e *Etch) replay(off, size int64) (int64, error) {
	var hdr [recordHeader]byte
	replayed := 0
	for off+recordHeader <= size {
		if err := e.dev.readAt(hdr[:], off); err != nil {
			return off, ioError("replay", err)
		}
		status := Status(hdr[0])
		if status == StatusUnknown {
			break
		}
		n := int64(binary.BigEndian.Uint32(hdr[1:]))
		var h Hash
		copy(h[:], hdr[5:])
		if status > StatusAnnounced || off+recordHeader+n > size {
			e.log.WithField("offset", off).Warn("truncating torn record")
			break
		}
		enc := make([]byte, n)
		if err := e.dev.readAt(enc, off+recordHeader); err != nil {
			return off, ioError("replay", err)
		}
		if sum(enc) != h {
			e.log.WithFields(log.Fields{"offset": off, "hash": h}).Warn("truncating record that does not match its hash")
			break
		}
		if e.index.put(h, off) {
			e.records.Add(1)
		}
		off += recordHeader + n
		replayed++
	}
	if replayed > 0 {
		e.log.WithFields(log.Fields{"replayed": replayed, "tail": off}).Info("recovered records past checkpoint")
	}
	return off, nil
}

func (e *Etch) Read(h Hash) (Entry, bool, error) {
	if e.closed.Load() {
		return Entry{}, false, ErrClosed
	}
	off, ok := e.index.get(h)
	if !ok {
		return Entry{}, false, nil
	}
	var hdr [recordHeader]byte
	if err := e.dev.readAt(hdr[:], off); err != nil {
		return Entry{}, false, ioError("read", err)
	}
	enc := make([]byte, binary.BigEndian.Uint32(hdr[1:]))
	if err := e.dev.readAt(enc, off+recordHeader); err != nil {
		return Entry{}, false, ioError("read", err)
	}
	return Entry{Encoding: enc, Status: Status(hdr[0])}, true, nil
}

func (e *Etch) statusAt(off int64) (Status, error) {
	var b [1]byte
	if err := e.dev.readAt(b[:], off); err != nil {
		return StatusUnknown, ioError("read", err)
	}
	return Status(b[0]), nil
}

// Write appends enc under h, or raises the status of an existing record in place.
func (e *Etch) Write(h Hash, enc []byte, status Status) (Status, error) {
	if status < StatusStored {
		status = StatusStored
	}
	if status > StatusAnnounced {
		return StatusUnknown, xerrors.Errorf("invalid status %d", status)
	}
	if uint64(len(enc)) > math.MaxUint32 {
		return StatusUnknown, xerrors.Errorf("encoding of %d bytes is too large", len(enc))
	}
	if e.closed.Load() {
		return StatusUnknown, ErrClosed
	}
	if off, ok := e.index.get(h); ok {
		cur, err := e.statusAt(off)
		if err != nil || cur >= status {
			return cur, err
		}
	}

	e.writesync.Lock()
	defer e.writesync.Unlock()
	if e.closed.Load() {
		return StatusUnknown, ErrClosed
	}

	if off, ok := e.index.get(h); ok {
		cur, err := e.statusAt(off)
		if err != nil || cur >= status {
			return cur, err
		}
		// children appended since the last sync go to disk before the status
		if err = e.syncAppended(); err != nil {
			return cur, err
		}
		if err = e.dev.writeAt([]byte{byte(status)}, off); err != nil {
			return cur, ioError("write status", err)
		}
		return cur, e.syncIfNeeded()
	}

	off := e.tail.Load()
	buf := make([]byte, recordHeader+len(enc))
	buf[0] = byte(status)
	binary.BigEndian.PutUint32(buf[1:], uint32(len(enc)))
	copy(buf[5:], h[:])
	copy(buf[recordHeader:], enc)
	if err := e.dev.writeAt(buf, off); err != nil {
		return StatusUnknown, ioError("append", err)
	}
	if err := e.syncIfNeeded(); err != nil {
		return StatusUnknown, err
	}
	e.tail.Store(off + int64(len(buf)))
	e.index.put(h, off)
	e.records.Add(1)
	if log.IsLevelEnabled(log.TraceLevel) {
		e.log.Tracef("appended %s at %d, %d bytes", h, off, len(enc))
	}
	return StatusUnknown, nil
}

func (e *Etch) syncIfNeeded() error {
	if !e.cfg.SyncWrites {
		return nil
	}
	if err := e.dev.sync(); err != nil {
		return ioError("sync", err)
	}
	e.synced = e.tail.Load()
	return nil
}

// syncAppended fsyncs when records were appended since the last sync, under writesync
func (e *Etch) syncAppended() error {
	tail := e.tail.Load()
	if e.synced >= tail {
		return nil
	}
	if err := e.dev.sync(); err != nil {
		return ioError("sync", err)
	}
	e.synced = tail
	return nil
}

// Flush makes every record durable and, when enabled, checkpoints the index.
func (e *Etch) Flush() error {
	if e.closed.Load() {
		return ErrClosed
	}
	e.writesync.Lock()
	defer e.writesync.Unlock()
	return e.flush()
}

func (e *Etch) flush() error {
	if err := e.dev.sync(); err != nil {
		return ioError("sync", err)
	}
	e.synced = e.tail.Load()
	if !e.cfg.Checkpoint || e.temp {
		return nil
	}
	tail := e.tail.Load()
	if tail == e.covered {
		return nil
	}
	codec, _ := codecByName(e.cfg.CheckpointCodec)
	body := &checkpointBody{Covered: tail, Records: e.records.Load(), FileID: e.fileID[:]}
	body.Hashes = make([]byte, 0, HASHSIZE*body.Records)
	body.Offsets = make([]int64, 0, body.Records)
	e.index.each(tail, func(h Hash, off int64) {
		body.Hashes = append(body.Hashes, h[:]...)
		body.Offsets = append(body.Offsets, off)
	})
	buf, err := encodeCheckpoint(body, codec)
	if err != nil {
		return err
	}
	if err = writeFileAtomic(e.checkpointPath(), buf); err != nil {
		return ioError("write checkpoint", err)
	}
	e.covered = tail
	e.log.WithFields(log.Fields{"records": len(body.Offsets), "covered": tail, "bytes": len(buf)}).Debug("index checkpoint written")
	return nil
}

// Close flushes, trims the reserved space off the data file and releases it.
// A temporary store deletes its file.
func (e *Etch) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.writesync.Lock()
	defer e.writesync.Unlock()

	err := e.flush()
	if terr := e.dev.truncate(e.tail.Load()); terr != nil && err == nil {
		err = ioError("truncate", terr)
	}
	if cerr := e.dev.close(); cerr != nil && err == nil {
		err = ioError("close", cerr)
	}
	if e.temp {
		os.Remove(e.path)
		os.Remove(e.checkpointPath())
	}
	return err
}

func (e *Etch) Path() string { return e.path }

func (e *Etch) Stats() Stats {
	e.writesync.Lock()
	covered := e.covered
	e.writesync.Unlock()
	return Stats{
		Path:              e.path,
		Records:           e.records.Load(),
		LogicalSize:       e.tail.Load(),
		FileSize:          e.dev.fileSize(),
		CheckpointCovered: covered,
	}
}

// Scan calls fn for every record in file order until fn returns an error.
func (e *Etch) Scan(fn func(h Hash, en Entry) error) error {
	if e.closed.Load() {
		return ErrClosed
	}
	tail := e.tail.Load()
	var hdr [recordHeader]byte
	for off := int64(dataStart); off < tail; {
		if err := e.dev.readAt(hdr[:], off); err != nil {
			return ioError("scan", err)
		}
		var h Hash
		copy(h[:], hdr[5:])
		enc := make([]byte, binary.BigEndian.Uint32(hdr[1:]))
		if err := e.dev.readAt(enc, off+recordHeader); err != nil {
			return ioError("scan", err)
		}
		if err := fn(h, Entry{Encoding: enc, Status: Status(hdr[0])}); err != nil {
			return err
		}
		off += recordHeader + int64(len(enc))
	}
	return nil
}
