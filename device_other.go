//go:build !unix

package etch

import "io"
import "os"
import "sync"

import "golang.org/x/xerrors"

// device is the data file accessed with positional reads, for platforms without mmap support here
type device struct {
	f        *os.File
	growSize int64

	mu   sync.RWMutex
	size int64
}

func openDevice(path string, regionSize, growSize int64) (*device, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, xerrors.Errorf("opening %s: %w", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, xerrors.Errorf("stating %s: %w", path, err)
	}
	return &device{f: f, growSize: growSize, size: fi.Size()}, nil
}

func (d *device) fileSize() int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.size
}

func (d *device) readAt(p []byte, off int64) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if off < 0 || off+int64(len(p)) > d.size {
		return io.ErrUnexpectedEOF
	}
	_, err := d.f.ReadAt(p, off)
	return err
}

func (d *device) writeAt(p []byte, off int64) error {
	if err := d.grow(off + int64(len(p))); err != nil {
		return err
	}
	_, err := d.f.WriteAt(p, off)
	return err
}

func (d *device) grow(n int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n <= d.size {
		return nil
	}
	size := (n + d.growSize - 1) / d.growSize * d.growSize
	if err := d.f.Truncate(size); err != nil {
		return err
	}
	d.size = size
	return nil
}

func (d *device) truncate(n int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.f.Truncate(n); err != nil {
		return err
	}
	d.size = n
	return nil
}

func (d *device) sync() error  { return d.f.Sync() }
func (d *device) close() error { return d.f.Close() }

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
