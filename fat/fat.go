package fat

import (
	"encoding/binary"
	"fmt"

	"github.com/rstms/minifat"
)

// Cluster is the index of a cluster on the device.
type Cluster uint32

// NoCluster is the first-cluster value of an entry with no chain. Cluster
// 0 holds the superblock, so no chain ever starts there.
const NoCluster Cluster = 0

// linkSize is the on-disk width of one table slot.
const linkSize = 4

const (
	rawFree = int32(0)
	rawEnd  = int32(-1)
)

type linkKind uint8

const (
	linkFree linkKind = iota
	linkEnd
	linkNext
)

// Link is the value of one allocation table slot: Free, End, or
// Next(cluster).
type Link struct {
	kind linkKind
	next Cluster
}

var (
	Free = Link{kind: linkFree}
	End  = Link{kind: linkEnd}
)

// Next returns a link pointing at c.
func Next(c Cluster) Link {
	return Link{kind: linkNext, next: c}
}

func (l Link) IsFree() bool { return l.kind == linkFree }
func (l Link) IsEnd() bool  { return l.kind == linkEnd }

// Next returns the successor cluster, if the link has one.
func (l Link) Next() (Cluster, bool) {
	return l.next, l.kind == linkNext
}

func (l Link) String() string {
	switch l.kind {
	case linkFree:
		return "FREE"
	case linkEnd:
		return "EOF"
	}
	return fmt.Sprintf("->%d", l.next)
}

func (l Link) encode() int32 {
	switch l.kind {
	case linkFree:
		return rawFree
	case linkEnd:
		return rawEnd
	}
	return int32(l.next)
}

func decodeLink(v int32, count int) (Link, error) {
	switch {
	case v == rawFree:
		return Free, nil
	case v == rawEnd:
		return End, nil
	case v > 0 && int(v) < count:
		return Next(Cluster(v)), nil
	}
	return Free, fmt.Errorf("%w: table value %d out of range", minifat.ErrCorruption, v)
}

// FAT is the in-memory allocation table for a mounted disk. Clusters below
// reserved hold the superblock and the table itself and are never handed
// out.
type FAT struct {
	links       []Link
	clusterSize int
	reserved    int
	free        int
	hint        Cluster
	dirty       bool
}

// NewFAT returns a table of count clusters with the first reserved
// clusters marked End and every other cluster Free.
func NewFAT(count, clusterSize, reserved int) *FAT {
	f := &FAT{
		links:       make([]Link, count),
		clusterSize: clusterSize,
		reserved:    reserved,
		free:        count - reserved,
		hint:        Cluster(reserved),
		dirty:       true,
	}
	for i := 0; i < reserved; i++ {
		f.links[i] = End
	}
	return f
}

// DecodeFAT reads the allocation table described by bs from device.
func DecodeFAT(device minifat.BlockDevice, bs *Superblock) (*FAT, error) {
	count := int(bs.ClusterCount)
	raw := make([]byte, int(bs.FATClusters)*int(bs.ClusterSize))
	if _, err := device.ReadAt(raw, int64(bs.FATStart)*int64(bs.ClusterSize)); err != nil {
		return nil, Fatal(err)
	}

	f := &FAT{
		links:       make([]Link, count),
		clusterSize: int(bs.ClusterSize),
		reserved:    int(bs.RootCluster),
		hint:        Cluster(bs.RootCluster),
	}
	for i := range count {
		v := int32(binary.LittleEndian.Uint32(raw[i*linkSize:]))
		link, err := decodeLink(v, count)
		if err != nil {
			return nil, minifat.NewError("mount", fmt.Sprintf("cluster %d", i), err)
		}
		if i < f.reserved && !link.IsEnd() {
			return nil, minifat.NewError("mount", fmt.Sprintf("cluster %d", i),
				fmt.Errorf("%w: reserved cluster is %s", minifat.ErrCorruption, link))
		}
		if link.IsFree() {
			f.free++
		}
		f.links[i] = link
	}
	return f, nil
}

// WriteToDevice stores the table in the FAT region described by bs.
func (f *FAT) WriteToDevice(device minifat.BlockDevice, bs *Superblock) error {
	raw := make([]byte, int(bs.FATClusters)*int(bs.ClusterSize))
	for i, link := range f.links {
		binary.LittleEndian.PutUint32(raw[i*linkSize:], uint32(link.encode()))
	}
	if _, err := device.WriteAt(raw, int64(bs.FATStart)*int64(bs.ClusterSize)); err != nil {
		return Fatal(err)
	}
	f.dirty = false
	return nil
}

func (f *FAT) TotalClusters() int { return len(f.links) }
func (f *FAT) FreeClusters() int  { return f.free }
func (f *FAT) UsedClusters() int  { return len(f.links) - f.free }
func (f *FAT) ClusterSize() int   { return f.clusterSize }
func (f *FAT) Reserved() int      { return f.reserved }
func (f *FAT) Dirty() bool        { return f.dirty }

// Get returns the link stored for c.
func (f *FAT) Get(c Cluster) Link {
	return f.links[c]
}

// SetNext stores link for cluster c. It panics if c is out of range or
// reserved.
func (f *FAT) SetNext(c Cluster, link Link) {
	if int(c) < f.reserved || int(c) >= len(f.links) {
		panic(fmt.Sprintf("cluster %d outside data area", c))
	}
	if next, ok := link.Next(); ok && (int(next) < f.reserved || int(next) >= len(f.links)) {
		panic(fmt.Sprintf("cluster %d linked to %d outside data area", c, next))
	}
	old := f.links[c]
	switch {
	case old.IsFree() && !link.IsFree():
		f.free--
	case !old.IsFree() && link.IsFree():
		f.free++
	}
	f.links[c] = link
	f.dirty = true
}

// Alloc marks the first free cluster at or after the search hint as End
// and returns it. The scan wraps once; ok is false when the disk is full.
func (f *FAT) Alloc() (Cluster, bool) {
	if f.free == 0 {
		return NoCluster, false
	}
	n := len(f.links)
	start := int(f.hint)
	if start < f.reserved || start >= n {
		start = f.reserved
	}
	for i := 0; i < n-f.reserved; i++ {
		c := f.reserved + (start-f.reserved+i)%(n-f.reserved)
		if f.links[c].IsFree() {
			f.SetNext(Cluster(c), End)
			f.hint = Cluster(c + 1)
			return Cluster(c), true
		}
	}
	return NoCluster, false
}

// AllocChain allocates a chain of n clusters and returns its head. It
// allocates nothing and returns ErrDiskFull if fewer than n clusters are
// free. A zero-length chain is NoCluster.
func (f *FAT) AllocChain(n int) (Cluster, error) {
	if n == 0 {
		return NoCluster, nil
	}
	if n > f.free {
		return NoCluster, fmt.Errorf("%w: need %d clusters, %d free", minifat.ErrDiskFull, n, f.free)
	}
	head, _ := f.Alloc()
	prev := head
	for i := 1; i < n; i++ {
		c, _ := f.Alloc()
		f.SetNext(prev, Next(c))
		prev = c
	}
	return head, nil
}

// Chain returns the clusters of the chain starting at head, in order.
// Links into free or reserved clusters and cycles are reported as
// ErrCorruption.
func (f *FAT) Chain(head Cluster) ([]Cluster, error) {
	if head == NoCluster {
		return nil, nil
	}
	var chain []Cluster
	seen := make(map[Cluster]bool)
	c := head
	for {
		if int(c) < f.reserved || int(c) >= len(f.links) {
			return nil, fmt.Errorf("%w: chain %d reaches cluster %d outside data area", minifat.ErrCorruption, head, c)
		}
		if seen[c] {
			return nil, fmt.Errorf("%w: chain %d has a cycle at cluster %d", minifat.ErrCorruption, head, c)
		}
		link := f.links[c]
		if link.IsFree() {
			return nil, fmt.Errorf("%w: chain %d reaches free cluster %d", minifat.ErrCorruption, head, c)
		}
		seen[c] = true
		chain = append(chain, c)
		next, ok := link.Next()
		if !ok {
			return chain, nil
		}
		c = next
	}
}

// FreeChain returns every cluster of the chain starting at head to the
// free pool. NoCluster is a no-op.
func (f *FAT) FreeChain(head Cluster) error {
	chain, err := f.Chain(head)
	if err != nil {
		return err
	}
	for _, c := range chain {
		f.SetNext(c, Free)
	}
	if len(chain) > 0 && chain[0] < f.hint {
		f.hint = chain[0]
	}
	return nil
}

// Extend appends n newly allocated clusters to the chain at head.
func (f *FAT) Extend(head Cluster, n int) error {
	chain, err := f.Chain(head)
	if err != nil {
		return err
	}
	if len(chain) == 0 {
		return fmt.Errorf("extend: empty chain")
	}
	more, err := f.AllocChain(n)
	if err != nil {
		return err
	}
	if more != NoCluster {
		f.SetNext(chain[len(chain)-1], Next(more))
	}
	return nil
}

// Truncate shortens the chain at head to its first n clusters, freeing
// the rest. n must be at least one.
func (f *FAT) Truncate(head Cluster, n int) error {
	if n < 1 {
		return fmt.Errorf("truncate: chain length %d", n)
	}
	chain, err := f.Chain(head)
	if err != nil {
		return err
	}
	if n >= len(chain) {
		return nil
	}
	f.SetNext(chain[n-1], End)
	for _, c := range chain[n:] {
		f.SetNext(c, Free)
	}
	return nil
}
