package fat

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/rstms/minifat"
)

// RecordSize is the on-disk size of one directory record.
const RecordSize = 32

const (
	recNameStart    = 0
	recNameSize     = MaxNameLen
	recAttrStart    = recNameStart + recNameSize
	recReserved     = recAttrStart + 1
	recClusterStart = recReserved + 12
	recSizeStart    = recClusterStart + 4
)

// MaxFileSize is the largest size a record can describe.
const MaxFileSize = math.MaxInt32

// DirectoryEntry implements minifat.DirectoryEntry: the record for one
// file or subdirectory held by a Directory.
type DirectoryEntry struct {
	dir     *Directory
	name    string
	attr    minifat.DirectoryAttr
	cluster Cluster
	size    int64

	// loaded child directory; never persisted
	sub *Directory
}

// ensure DirectoryEntry implements minifat.DirectoryEntry
var _ minifat.DirectoryEntry = (*DirectoryEntry)(nil)

// NewFileEntry returns a detached, empty file entry.
func NewFileEntry(name string) (*DirectoryEntry, error) {
	name, err := CleanName(name)
	if err != nil {
		return nil, err
	}
	return &DirectoryEntry{name: name, attr: minifat.AttrFile}, nil
}

// NewDirectoryEntry returns a detached directory entry with no chain yet.
func NewDirectoryEntry(name string) (*DirectoryEntry, error) {
	name, err := CleanName(name)
	if err != nil {
		return nil, err
	}
	return &DirectoryEntry{name: name, attr: minifat.AttrDirectory}, nil
}

func dotEntry(name string, cluster Cluster) *DirectoryEntry {
	return &DirectoryEntry{name: name, attr: minifat.AttrDirectory, cluster: cluster}
}

func (e *DirectoryEntry) Name() string                { return e.name }
func (e *DirectoryEntry) Attr() minifat.DirectoryAttr { return e.attr }
func (e *DirectoryEntry) IsDir() bool                 { return e.attr == minifat.AttrDirectory }
func (e *DirectoryEntry) IsDot() bool                 { return isDot(e.name) }
func (e *DirectoryEntry) Cluster() Cluster            { return e.cluster }
func (e *DirectoryEntry) FirstCluster() uint32        { return uint32(e.cluster) }
func (e *DirectoryEntry) Parent() *Directory          { return e.dir }

// Size is the content length of a file; directories report zero.
func (e *DirectoryEntry) Size() int64 {
	if e.IsDir() {
		return 0
	}
	return e.size
}

func (e *DirectoryEntry) SetSize(size int64) { e.size = size }

func (e *DirectoryEntry) SetCluster(c Cluster) { e.cluster = c }

// Rename validates and assigns newName. Uniqueness among siblings is the
// caller's concern; see Directory.Rename.
func (e *DirectoryEntry) Rename(newName string) error {
	if e.IsDot() {
		return minifat.NewError("rename", e.name, minifat.ErrInvalidName)
	}
	name, err := CleanName(newName)
	if err != nil {
		return err
	}
	e.name = name
	if e.sub != nil {
		e.sub.name = name
	}
	return nil
}

// Dir returns the directory this entry refers to, loading it on first use.
func (e *DirectoryEntry) Dir() (minifat.Directory, error) {
	d, err := e.Directory()
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Directory returns the loaded child directory. "." and ".." resolve
// through the parent links of the directory holding the entry.
func (e *DirectoryEntry) Directory() (*Directory, error) {
	if !e.IsDir() {
		return nil, minifat.NewError("open", e.name, minifat.ErrNotADirectory)
	}
	if e.dir == nil {
		return nil, minifat.NewError("open", e.name, minifat.ErrNotFound)
	}
	switch e.name {
	case ".":
		return e.dir, nil
	case "..":
		if e.dir.parent == nil {
			return e.dir, nil
		}
		return e.dir.parent, nil
	}
	if e.sub == nil {
		sub, err := Load(e.dir.fs, e, e.dir)
		if err != nil {
			return nil, err
		}
		e.sub = sub
	}
	return e.sub, nil
}

// Loaded reports whether the child directory is materialized in memory.
func (e *DirectoryEntry) Loaded() bool {
	return e.sub != nil
}

func (e *DirectoryEntry) encode(b []byte) {
	clear(b[:RecordSize])
	copy(b[recNameStart:recNameStart+recNameSize], e.name)
	b[recAttrStart] = byte(e.attr)
	binary.LittleEndian.PutUint32(b[recClusterStart:], uint32(e.cluster))
	binary.LittleEndian.PutUint32(b[recSizeStart:], uint32(e.Size()))
}

// decodeRecord decodes one record. It returns nil at the list terminator.
func decodeRecord(b []byte, count int) (*DirectoryEntry, error) {
	if b[recNameStart] == 0 {
		return nil, nil
	}
	name := string(bytes.TrimRight(b[recNameStart:recNameStart+recNameSize], "\x00"))
	attr := minifat.DirectoryAttr(b[recAttrStart])
	if attr != minifat.AttrFile && attr != minifat.AttrDirectory {
		return nil, fmt.Errorf("%w: record %q has attribute %#x", minifat.ErrCorruption, name, attr)
	}
	if !isDot(name) && !ValidName(name) {
		return nil, fmt.Errorf("%w: record name %q", minifat.ErrCorruption, name)
	}
	cluster := Cluster(binary.LittleEndian.Uint32(b[recClusterStart:]))
	if int(cluster) >= count {
		return nil, fmt.Errorf("%w: record %q points at cluster %d", minifat.ErrCorruption, name, cluster)
	}
	size := int32(binary.LittleEndian.Uint32(b[recSizeStart:]))
	if size < 0 {
		return nil, fmt.Errorf("%w: record %q has size %d", minifat.ErrCorruption, name, size)
	}
	return &DirectoryEntry{
		name:    name,
		attr:    attr,
		cluster: cluster,
		size:    int64(size),
	}, nil
}
