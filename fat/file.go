package fat

import (
	"fmt"

	"github.com/rstms/minifat"
)

// ContentStore reads and writes byte content across cluster chains on
// behalf of file entries. Every cluster it uses comes from the FAT.
type ContentStore struct {
	device minifat.BlockDevice
	fat    *FAT
}

func NewContentStore(device minifat.BlockDevice, fat *FAT) *ContentStore {
	return &ContentStore{device: device, fat: fat}
}

// ClustersFor returns the number of clusters needed to hold size bytes.
func (s *ContentStore) ClustersFor(size int64) int {
	cs := int64(s.fat.ClusterSize())
	return int((size + cs - 1) / cs)
}

// ReadContent returns the bytes of a file entry. A chain whose length does
// not match the recorded size is reported as ErrCorruption.
func (s *ContentStore) ReadContent(e *DirectoryEntry) ([]byte, error) {
	if e.IsDir() {
		return nil, minifat.NewError("read", e.name, minifat.ErrIsADirectory)
	}
	chain, err := s.fat.Chain(e.cluster)
	if err != nil {
		return nil, minifat.NewError("read", e.name, err)
	}
	if want := s.ClustersFor(e.size); len(chain) != want {
		return nil, minifat.NewError("read", e.name,
			fmt.Errorf("%w: size %d needs %d clusters, chain has %d", minifat.ErrCorruption, e.size, want, len(chain)))
	}
	data, err := s.readClusters(chain)
	if err != nil {
		return nil, err
	}
	return data[:e.size], nil
}

// WriteContent replaces the content of a file entry. Capacity is checked
// before anything changes; on ErrDiskFull the entry and its old chain are
// untouched. The entry's cluster and size change only after every cluster
// of the new chain is written.
func (s *ContentStore) WriteContent(e *DirectoryEntry, data []byte) error {
	if e.IsDir() {
		return minifat.NewError("write", e.name, minifat.ErrIsADirectory)
	}
	if len(data) > MaxFileSize {
		return minifat.NewError("write", e.name, fmt.Errorf("%w: %d bytes exceeds file size limit", minifat.ErrDiskFull, len(data)))
	}
	old, err := s.fat.Chain(e.cluster)
	if err != nil {
		return minifat.NewError("write", e.name, err)
	}
	need := s.ClustersFor(int64(len(data)))
	free := s.fat.FreeClusters()
	if need > free+len(old) {
		return minifat.NewError("write", e.name,
			fmt.Errorf("%w: need %d clusters, %d available", minifat.ErrDiskFull, need, free+len(old)))
	}

	// The old chain is released first only when the new content cannot
	// fit beside it.
	releasedEarly := need > free
	if releasedEarly {
		if err := s.fat.FreeChain(e.cluster); err != nil {
			return minifat.NewError("write", e.name, err)
		}
	}
	head, err := s.fat.AllocChain(need)
	if err != nil {
		return minifat.NewError("write", e.name, err)
	}
	if err := s.writeChain(head, data); err != nil {
		s.fat.FreeChain(head)
		return err
	}
	if !releasedEarly {
		if err := s.fat.FreeChain(e.cluster); err != nil {
			return minifat.NewError("write", e.name, err)
		}
	}
	e.cluster = head
	e.size = int64(len(data))
	return nil
}

// DeleteContent frees the chain of a file entry and empties it.
func (s *ContentStore) DeleteContent(e *DirectoryEntry) error {
	if e.IsDir() {
		return minifat.NewError("delete", e.name, minifat.ErrIsADirectory)
	}
	if err := s.fat.FreeChain(e.cluster); err != nil {
		return minifat.NewError("delete", e.name, err)
	}
	e.cluster = NoCluster
	e.size = 0
	return nil
}

// CopyContent gives dst a private copy of src's content. The chains are
// never shared.
func (s *ContentStore) CopyContent(src, dst *DirectoryEntry) error {
	data, err := s.ReadContent(src)
	if err != nil {
		return err
	}
	return s.WriteContent(dst, data)
}

func (s *ContentStore) readClusters(chain []Cluster) ([]byte, error) {
	cs := s.fat.ClusterSize()
	data := make([]byte, len(chain)*cs)
	for i, c := range chain {
		if _, err := s.device.ReadAt(data[i*cs:(i+1)*cs], s.offset(c)); err != nil {
			return nil, deviceError("read", c, err)
		}
	}
	return data, nil
}

// writeChain writes data across the chain at head, zero padding the last
// cluster.
func (s *ContentStore) writeChain(head Cluster, data []byte) error {
	chain, err := s.fat.Chain(head)
	if err != nil {
		return err
	}
	return s.writeClusters(chain, data)
}

func (s *ContentStore) writeClusters(chain []Cluster, data []byte) error {
	cs := s.fat.ClusterSize()
	buf := make([]byte, cs)
	for i, c := range chain {
		clear(buf)
		if i*cs < len(data) {
			copy(buf, data[i*cs:])
		}
		if _, err := s.device.WriteAt(buf, s.offset(c)); err != nil {
			return deviceError("write", c, err)
		}
	}
	return nil
}

func (s *ContentStore) offset(c Cluster) int64 {
	return int64(c) * int64(s.fat.ClusterSize())
}
