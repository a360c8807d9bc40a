package fat

import (
	"fmt"

	"github.com/rstms/minifat"
)

// Directory implements minifat.Directory and is the in-memory node for
// one directory of the tree. Its entries live in its own cluster chain and
// reach the disk only through Persist.
type Directory struct {
	fs      *FileSystem
	name    string
	cluster Cluster
	length  int
	parent  *Directory
	entries []*DirectoryEntry

	destroyed bool
}

// ensure Directory implements minifat.Directory
var _ minifat.Directory = (*Directory)(nil)

// Load materializes the directory described by self, a directory entry of
// parent. A directory whose chain holds no records is treated as freshly
// created and gets "." and ".." entries.
func Load(fs *FileSystem, self *DirectoryEntry, parent *Directory) (*Directory, error) {
	if !self.IsDir() {
		return nil, minifat.NewError("load", self.name, minifat.ErrNotADirectory)
	}
	chain, err := fs.fat.Chain(self.cluster)
	if err != nil {
		return nil, minifat.NewError("load", self.name, err)
	}
	if len(chain) == 0 {
		return nil, minifat.NewError("load", self.name, fmt.Errorf("%w: directory has no clusters", minifat.ErrCorruption))
	}
	raw, err := fs.content.readClusters(chain)
	if err != nil {
		return nil, err
	}

	d := &Directory{
		fs:      fs,
		name:    self.name,
		cluster: self.cluster,
		length:  len(chain),
		parent:  parent,
	}
	for off := 0; off+RecordSize <= len(raw); off += RecordSize {
		entry, err := decodeRecord(raw[off:off+RecordSize], fs.fat.TotalClusters())
		if err != nil {
			return nil, minifat.NewError("load", d.FullPath(), err)
		}
		if entry == nil {
			break
		}
		entry.dir = d
		d.entries = append(d.entries, entry)
	}
	if len(d.entries) == 0 && parent != nil {
		d.addDots()
	}
	return d, nil
}

func (d *Directory) addDots() {
	up := d.fs.RootCluster()
	if d.parent != nil {
		up = d.parent.cluster
	}
	self := dotEntry(".", d.cluster)
	self.dir = d
	parent := dotEntry("..", up)
	parent.dir = d
	d.entries = append([]*DirectoryEntry{self, parent}, d.entries...)
}

func (d *Directory) Name() string       { return d.name }
func (d *Directory) Cluster() Cluster   { return d.cluster }
func (d *Directory) Parent() *Directory { return d.parent }
func (d *Directory) IsRoot() bool       { return d.parent == nil }

// Root walks the parent links to the top of the tree.
func (d *Directory) Root() *Directory {
	for d.parent != nil {
		d = d.parent
	}
	return d
}

// FullPath returns the absolute path of the directory; the root reports
// its drive, e.g. C:\.
func (d *Directory) FullPath() string {
	if d.parent == nil {
		return d.name + `\`
	}
	p := d.parent.FullPath()
	if d.parent.parent != nil {
		p += `\`
	}
	return p + d.name
}

// Entries returns all records in insertion order, "." and ".." included.
func (d *Directory) Entries() []minifat.DirectoryEntry {
	result := make([]minifat.DirectoryEntry, len(d.entries))
	for i, e := range d.entries {
		result[i] = e
	}
	return result
}

// List returns the concrete records in insertion order.
func (d *Directory) List() []*DirectoryEntry {
	return append([]*DirectoryEntry(nil), d.entries...)
}

// Children returns the records other than "." and "..".
func (d *Directory) Children() []*DirectoryEntry {
	var result []*DirectoryEntry
	for _, e := range d.entries {
		if !e.IsDot() {
			result = append(result, e)
		}
	}
	return result
}

// Search returns the index of the entry matching name regardless of case,
// or -1.
func (d *Directory) Search(name string) int {
	for i, e := range d.entries {
		if SameName(e.name, name) {
			return i
		}
	}
	return -1
}

// Lookup returns the entry matching name, or nil.
func (d *Directory) Lookup(name string) *DirectoryEntry {
	if i := d.Search(name); i >= 0 {
		return d.entries[i]
	}
	return nil
}

func (d *Directory) Entry(name string) minifat.DirectoryEntry {
	if e := d.Lookup(name); e != nil {
		return e
	}
	return nil
}

// IsEmpty reports whether the directory holds nothing but "." and "..".
func (d *Directory) IsEmpty() bool {
	for _, e := range d.entries {
		if !e.IsDot() {
			return false
		}
	}
	return true
}

// clustersFor returns the chain length that holds n records. A directory
// always keeps at least one cluster.
func (d *Directory) clustersFor(n int) int {
	cs := d.fs.fat.ClusterSize()
	return max(1, (n*RecordSize+cs-1)/cs)
}

// Required returns the clusters that adding e would consume: its content,
// the head cluster of a new directory, and any growth of this directory's
// own chain.
func (d *Directory) Required(e *DirectoryEntry) int {
	need := 0
	if e.IsDir() {
		if e.cluster == NoCluster {
			need++
		}
	} else {
		need += d.fs.content.ClustersFor(e.size)
	}
	if grow := d.clustersFor(len(d.entries)+1) - d.length; grow > 0 {
		need += grow
	}
	return need
}

// CanAdd reports whether the free clusters cover Required(e).
func (d *Directory) CanAdd(e *DirectoryEntry) bool {
	return d.Required(e) <= d.fs.fat.FreeClusters()
}

// AddEntry appends e to the in-memory list. Name collisions are rejected
// before any capacity check; nothing is allocated and nothing persists
// until Persist.
func (d *Directory) AddEntry(e *DirectoryEntry) error {
	if d.destroyed {
		return minifat.NewError("add", e.name, minifat.ErrNotFound)
	}
	if e.IsDot() {
		return minifat.NewError("add", e.name, minifat.ErrInvalidName)
	}
	if d.Search(e.name) >= 0 {
		return minifat.NewError("add", d.PathOf(e.name), minifat.ErrAlreadyExists)
	}
	if !d.CanAdd(e) {
		return minifat.NewError("add", d.PathOf(e.name),
			fmt.Errorf("%w: need %d clusters, %d free", minifat.ErrDiskFull, d.Required(e), d.fs.fat.FreeClusters()))
	}
	e.dir = d
	d.entries = append(d.entries, e)
	return nil
}

// RemoveEntry detaches the entry at index i from the in-memory list and
// returns it. Freeing its chain and persisting are the caller's job.
func (d *Directory) RemoveEntry(i int) (*DirectoryEntry, error) {
	if i < 0 || i >= len(d.entries) {
		return nil, minifat.NewError("remove", fmt.Sprintf("index %d", i), minifat.ErrNotFound)
	}
	e := d.entries[i]
	if e.IsDot() {
		return nil, minifat.NewError("remove", d.PathOf(e.name), minifat.ErrInvalidName)
	}
	d.entries = append(d.entries[:i], d.entries[i+1:]...)
	return e, nil
}

// Rename gives the entry called name the name newName, after checking
// newName is free among its siblings.
func (d *Directory) Rename(name, newName string) error {
	e := d.Lookup(name)
	if e == nil {
		return minifat.NewError("rename", d.PathOf(name), minifat.ErrNotFound)
	}
	clean, err := CleanName(newName)
	if err != nil {
		return err
	}
	if other := d.Lookup(clean); other != nil && other != e {
		return minifat.NewError("rename", d.PathOf(clean), minifat.ErrAlreadyExists)
	}
	return e.Rename(clean)
}

// Persist rewrites the whole record list across the directory's chain,
// growing or truncating the chain first. The head cluster never changes.
func (d *Directory) Persist() error {
	if d.destroyed {
		return minifat.NewError("persist", d.name, minifat.ErrNotFound)
	}
	need := d.clustersFor(len(d.entries))
	switch {
	case need > d.length:
		if err := d.fs.fat.Extend(d.cluster, need-d.length); err != nil {
			return minifat.NewError("persist", d.FullPath(), err)
		}
	case need < d.length:
		if err := d.fs.fat.Truncate(d.cluster, need); err != nil {
			return minifat.NewError("persist", d.FullPath(), err)
		}
	}
	d.length = need

	raw := make([]byte, need*d.fs.fat.ClusterSize())
	for i, e := range d.entries {
		e.encode(raw[i*RecordSize:])
	}
	chain, err := d.fs.fat.Chain(d.cluster)
	if err != nil {
		return minifat.NewError("persist", d.FullPath(), err)
	}
	return d.fs.content.writeClusters(chain, raw)
}

// AddDirectory creates an empty subdirectory with its own chain holding
// "." and "..", and persists both directories.
func (d *Directory) AddDirectory(name string) (minifat.DirectoryEntry, error) {
	entry, err := d.Mkdir(name)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Mkdir is AddDirectory returning the concrete entry.
func (d *Directory) Mkdir(name string) (*DirectoryEntry, error) {
	entry, err := NewDirectoryEntry(name)
	if err != nil {
		return nil, err
	}
	if err := d.AddEntry(entry); err != nil {
		return nil, err
	}
	// AddEntry counted this cluster, so allocation cannot fail here.
	c, _ := d.fs.fat.Alloc()
	entry.cluster = c

	sub := &Directory{
		fs:      d.fs,
		name:    entry.name,
		cluster: c,
		length:  1,
		parent:  d,
	}
	sub.addDots()
	entry.sub = sub
	if err := sub.Persist(); err != nil {
		return nil, err
	}
	if err := d.Persist(); err != nil {
		return nil, err
	}
	return entry, nil
}

// AddFile creates an empty file and persists the directory.
func (d *Directory) AddFile(name string) (minifat.DirectoryEntry, error) {
	entry, err := d.CreateFile(name)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// CreateFile is AddFile returning the concrete entry.
func (d *Directory) CreateFile(name string) (*DirectoryEntry, error) {
	entry, err := NewFileEntry(name)
	if err != nil {
		return nil, err
	}
	if err := d.AddEntry(entry); err != nil {
		return nil, err
	}
	if err := d.Persist(); err != nil {
		return nil, err
	}
	return entry, nil
}

// Rmdir removes the empty subdirectory called name: its chain is freed,
// its record dropped and d persisted.
func (d *Directory) Rmdir(name string) error {
	i := d.Search(name)
	if i < 0 || d.entries[i].IsDot() {
		return minifat.NewError("rmdir", d.PathOf(name), minifat.ErrNotFound)
	}
	e := d.entries[i]
	if !e.IsDir() {
		return minifat.NewError("rmdir", d.PathOf(e.name), minifat.ErrNotADirectory)
	}
	sub, err := e.Directory()
	if err != nil {
		return err
	}
	if !sub.IsEmpty() {
		return minifat.NewError("rmdir", sub.FullPath(), minifat.ErrNotEmpty)
	}
	return d.removeDirectory(i, sub)
}

// RemoveAll removes the subdirectory called name together with everything
// below it.
func (d *Directory) RemoveAll(name string) error {
	i := d.Search(name)
	if i < 0 || d.entries[i].IsDot() {
		return minifat.NewError("rmdir", d.PathOf(name), minifat.ErrNotFound)
	}
	e := d.entries[i]
	if !e.IsDir() {
		return minifat.NewError("rmdir", d.PathOf(e.name), minifat.ErrNotADirectory)
	}
	sub, err := e.Directory()
	if err != nil {
		return err
	}
	return d.removeDirectory(i, sub)
}

func (d *Directory) removeDirectory(i int, sub *Directory) error {
	if err := sub.Destroy(); err != nil {
		return err
	}
	e, err := d.RemoveEntry(i)
	if err != nil {
		return err
	}
	e.sub = nil
	return d.Persist()
}

// Delete removes the file called name and frees its chain.
func (d *Directory) Delete(name string) error {
	i := d.Search(name)
	if i < 0 || d.entries[i].IsDot() {
		return minifat.NewError("delete", d.PathOf(name), minifat.ErrNotFound)
	}
	e := d.entries[i]
	if e.IsDir() {
		return minifat.NewError("delete", d.PathOf(e.name), minifat.ErrIsADirectory)
	}
	if err := d.fs.content.DeleteContent(e); err != nil {
		return err
	}
	if _, err := d.RemoveEntry(i); err != nil {
		return err
	}
	return d.Persist()
}

// Destroy frees the chains of every file and directory below d, then d's
// own chain, and discards the in-memory subtree. The parent's record for d
// is left to the caller.
func (d *Directory) Destroy() error {
	if d.parent == nil {
		return minifat.NewError("destroy", d.FullPath(), fmt.Errorf("cannot remove the root directory"))
	}
	if d.destroyed {
		return nil
	}
	for _, e := range d.Children() {
		if e.IsDir() {
			sub, err := e.Directory()
			if err != nil {
				return err
			}
			if err := sub.Destroy(); err != nil {
				return err
			}
			e.sub = nil
			continue
		}
		if err := d.fs.content.DeleteContent(e); err != nil {
			return err
		}
	}
	if err := d.fs.fat.FreeChain(d.cluster); err != nil {
		return minifat.NewError("destroy", d.FullPath(), err)
	}
	d.entries = nil
	d.length = 0
	d.destroyed = true
	return nil
}

// Destroyed reports whether Destroy has run.
func (d *Directory) Destroyed() bool {
	return d.destroyed
}

// PathOf returns the absolute path of name inside d.
func (d *Directory) PathOf(name string) string {
	p := d.FullPath()
	if d.parent != nil {
		p += `\`
	}
	return p + name
}
