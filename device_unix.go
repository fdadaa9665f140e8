//go:build unix

package etch

import "io"
import "os"
import "runtime/debug"
import "sync"

import "github.com/google/renameio"
import "golang.org/x/sys/unix"
import "golang.org/x/xerrors"

// device is the data file. Reads go through read only shared memory maps of
// RegionSize bytes each, writes use pwrite so the maps never take write
// faults. The file is extended ahead of the logical end in GrowSize steps,
// the extension reads as zeros.
type device struct {
	fd         int
	regionSize int64
	growSize   int64

	mu      sync.RWMutex // guards regions and size, held shared while copying out of a map
	regions [][]byte
	size    int64
}

func openDevice(path string, regionSize, growSize int64) (*device, error) {
	fd, err := unix.Open(path, unix.O_CREAT|unix.O_RDWR|unix.O_CLOEXEC, 0600)
	if err != nil {
		return nil, xerrors.Errorf("opening %s: %w", path, err)
	}
	var stat unix.Stat_t
	if err = unix.Fstat(fd, &stat); err != nil {
		unix.Close(fd)
		return nil, xerrors.Errorf("stating %s: %w", path, err)
	}
	d := &device{fd: fd, regionSize: regionSize, growSize: growSize, size: stat.Size}
	if err = d.mapTo(stat.Size); err != nil {
		d.close()
		return nil, err
	}
	return d, nil
}

// mapTo maps regions until [0,n) is covered, caller holds mu or owns d
func (d *device) mapTo(n int64) error {
	for int64(len(d.regions))*d.regionSize < n {
		off := int64(len(d.regions)) * d.regionSize
		// a map may extend past the end of file, those pages are only touched once the file grows
		data, err := unix.Mmap(d.fd, off, int(d.regionSize), unix.PROT_READ, unix.MAP_SHARED)
		if err != nil {
			return xerrors.Errorf("mapping region at %d: %w", off, err)
		}
		d.regions = append(d.regions, data)
	}
	return nil
}

func (d *device) fileSize() int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.size
}

func (d *device) readAt(p []byte, off int64) (err error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if off < 0 || off+int64(len(p)) > d.size {
		return io.ErrUnexpectedEOF
	}
	k, within := off/d.regionSize, off%d.regionSize
	if within+int64(len(p)) > d.regionSize || int(k) >= len(d.regions) {
		return d.pread(p, off)
	}

	// an I/O error under a mapped page raises SIGBUS, turn it into an error
	old := debug.SetPanicOnFault(true)
	defer func() {
		debug.SetPanicOnFault(old)
		if r := recover(); r != nil {
			err = xerrors.Errorf("page fault reading offset %d: %v", off, r)
		}
	}()
	copy(p, d.regions[k][within:])
	return nil
}

func (d *device) pread(p []byte, off int64) error {
	for len(p) > 0 {
		n, err := unix.Pread(d.fd, p, off)
		if err != nil {
			return xerrors.Errorf("pread at %d: %w", off, err)
		}
		if n == 0 {
			return io.ErrUnexpectedEOF
		}
		p = p[n:]
		off += int64(n)
	}
	return nil
}

// writeAt is only called by the single writer
func (d *device) writeAt(p []byte, off int64) error {
	if err := d.grow(off + int64(len(p))); err != nil {
		return err
	}
	for len(p) > 0 {
		n, err := unix.Pwrite(d.fd, p, off)
		if err != nil {
			return xerrors.Errorf("pwrite at %d: %w", off, err)
		}
		p = p[n:]
		off += int64(n)
	}
	return nil
}

func (d *device) grow(n int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n <= d.size {
		return nil
	}
	size := (n + d.growSize - 1) / d.growSize * d.growSize
	if err := unix.Ftruncate(d.fd, size); err != nil {
		return xerrors.Errorf("extending to %d: %w", size, err)
	}
	d.size = size
	return d.mapTo(size)
}

func (d *device) truncate(n int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := unix.Ftruncate(d.fd, n); err != nil {
		return xerrors.Errorf("truncating to %d: %w", n, err)
	}
	d.size = n
	return nil
}

func (d *device) sync() error {
	return unix.Fsync(d.fd)
}

func (d *device) close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var first error
	for _, r := range d.regions {
		if err := unix.Munmap(r); err != nil && first == nil {
			first = xerrors.Errorf("unmapping: %w", err)
		}
	}
	d.regions = nil
	if d.fd >= 0 {
		if err := unix.Close(d.fd); err != nil && first == nil {
			first = err
		}
		d.fd = -1
	}
	return first
}

// writeFileAtomic replaces path so that readers see either the old or the new content
func writeFileAtomic(path string, data []byte) error {
	return renameio.WriteFile(path, data, os.FileMode(0600))
}
