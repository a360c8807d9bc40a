package minifat

import (
	"io"

	"github.com/spf13/afero"
)

// BlockDevice is the flat byte store underneath a virtual disk.
type BlockDevice interface {
	Len() int64
	ReadAt([]byte, int64) (int, error)
	WriteAt([]byte, int64) (int, error)
	Sync() error
	Close() error
}

// FileDisk is a BlockDevice backed by a single host file.
type FileDisk struct {
	f    afero.File
	size int64
}

// ensure FileDisk implements BlockDevice
var _ BlockDevice = (*FileDisk)(nil)

// NewFileDisk wraps an open read-write file. The device length is the
// file length at the time of the call.
func NewFileDisk(f afero.File) (*FileDisk, error) {
	fi, err := f.Stat()
	if err != nil {
		return nil, Fatal(err)
	}
	if fi.IsDir() {
		return nil, Fatalf("not a disk image: %s", f.Name())
	}
	return &FileDisk{f: f, size: fi.Size()}, nil
}

func (d *FileDisk) Len() int64 {
	return d.size
}

func (d *FileDisk) ReadAt(p []byte, off int64) (int, error) {
	if off+int64(len(p)) > d.size {
		return 0, io.ErrUnexpectedEOF
	}
	return d.f.ReadAt(p, off)
}

func (d *FileDisk) WriteAt(p []byte, off int64) (int, error) {
	if off+int64(len(p)) > d.size {
		return 0, io.ErrShortWrite
	}
	return d.f.WriteAt(p, off)
}

func (d *FileDisk) Sync() error {
	return d.f.Sync()
}

// Close syncs the device but leaves the underlying file open; the file
// belongs to whoever opened it.
func (d *FileDisk) Close() error {
	return d.Sync()
}

// MemDisk is a BlockDevice held entirely in memory.
type MemDisk struct {
	buf []byte
}

var _ BlockDevice = (*MemDisk)(nil)

func NewMemDisk(size int64) *MemDisk {
	return &MemDisk{buf: make([]byte, size)}
}

func (d *MemDisk) Len() int64 {
	return int64(len(d.buf))
}

func (d *MemDisk) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > int64(len(d.buf)) {
		return 0, io.ErrUnexpectedEOF
	}
	return copy(p, d.buf[off:]), nil
}

func (d *MemDisk) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > int64(len(d.buf)) {
		return 0, io.ErrShortWrite
	}
	return copy(d.buf[off:], p), nil
}

func (d *MemDisk) Sync() error  { return nil }
func (d *MemDisk) Close() error { return nil }

// Bytes exposes the backing buffer.
func (d *MemDisk) Bytes() []byte { return d.buf }
