package fat

import (
	"github.com/rstms/minifat"
)

// FileSystem is the implementation of minifat.FileSystem for a mounted
// Mini-FAT disk. It owns the allocation table; every directory and file
// operation allocates through it.
type FileSystem struct {
	bs      *Superblock
	device  minifat.BlockDevice
	fat     *FAT
	content *ContentStore
	root    *Directory
}

// ensure FileSystem implements minifat.FileSystem
var _ minifat.FileSystem = (*FileSystem)(nil)

// Config describes the geometry for Format. Zero fields take defaults.
type Config struct {
	ClusterSize int
	Clusters    int
	Drive       string
}

func (c *Config) withDefaults() Config {
	out := Config{
		ClusterSize: DefaultClusterSize,
		Clusters:    DefaultClusters,
		Drive:       DefaultDrive,
	}
	if c != nil {
		if c.ClusterSize != 0 {
			out.ClusterSize = c.ClusterSize
		}
		if c.Clusters != 0 {
			out.Clusters = c.Clusters
		}
		if c.Drive != "" {
			out.Drive = c.Drive
		}
	}
	return out
}

// DiskSize returns the device size in bytes a Config needs.
func DiskSize(config *Config) int64 {
	c := config.withDefaults()
	return int64(c.ClusterSize) * int64(c.Clusters)
}

// Format writes an empty file system to device: superblock, a table with
// every data cluster free except the root, and an empty root directory.
func Format(device minifat.BlockDevice, config *Config) error {
	c := config.withDefaults()
	bs, err := NewSuperblock(c.ClusterSize, c.Clusters, c.Drive)
	if err != nil {
		return Fatal(err)
	}
	if device.Len() < bs.DiskSize() {
		return Fatalf("device holds %d bytes, %d needed", device.Len(), bs.DiskSize())
	}

	fat := NewFAT(c.Clusters, c.ClusterSize, int(bs.RootCluster))
	fat.SetNext(Cluster(bs.RootCluster), End)

	if err := bs.WriteToDevice(device); err != nil {
		return Fatal(err)
	}
	if err := fat.WriteToDevice(device, bs); err != nil {
		return Fatal(err)
	}
	content := NewContentStore(device, fat)
	if err := content.writeClusters([]Cluster{Cluster(bs.RootCluster)}, nil); err != nil {
		return Fatal(err)
	}
	if err := device.Sync(); err != nil {
		return Fatal(err)
	}
	return nil
}

// New mounts a previously formatted device.
func New(device minifat.BlockDevice) (*FileSystem, error) {
	bs, err := DecodeSuperblock(device)
	if err != nil {
		return nil, err
	}
	fat, err := DecodeFAT(device, bs)
	if err != nil {
		return nil, err
	}
	f := &FileSystem{
		bs:      bs,
		device:  device,
		fat:     fat,
		content: NewContentStore(device, fat),
	}
	rootEntry := &DirectoryEntry{
		name:    bs.Drive + ":",
		attr:    minifat.AttrDirectory,
		cluster: Cluster(bs.RootCluster),
	}
	f.root, err = Load(f, rootEntry, nil)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (f *FileSystem) RootDir() (minifat.Directory, error) {
	return f.root, nil
}

// Root returns the root directory node.
func (f *FileSystem) Root() *Directory { return f.root }

func (f *FileSystem) FAT() *FAT               { return f.fat }
func (f *FileSystem) Content() *ContentStore  { return f.content }
func (f *FileSystem) Superblock() *Superblock { return f.bs }
func (f *FileSystem) RootCluster() Cluster    { return Cluster(f.bs.RootCluster) }

func (f *FileSystem) ClusterSize() int   { return f.fat.ClusterSize() }
func (f *FileSystem) TotalClusters() int { return f.fat.TotalClusters() }
func (f *FileSystem) FreeClusters() int  { return f.fat.FreeClusters() }
func (f *FileSystem) UsedClusters() int  { return f.fat.UsedClusters() }

// Drive returns the drive identity, e.g. "C:".
func (f *FileSystem) Drive() string { return f.bs.Drive + ":" }

func (f *FileSystem) Info() (map[string]any, error) {
	return map[string]any{
		"drive":          f.Drive(),
		"cluster_size":   f.ClusterSize(),
		"total_clusters": f.TotalClusters(),
		"free_clusters":  f.FreeClusters(),
		"used_clusters":  f.UsedClusters(),
		"reserved":       f.fat.Reserved(),
		"root_cluster":   f.bs.RootCluster,
		"size":           f.bs.DiskSize(),
	}, nil
}

// Sync writes the allocation table if it changed and flushes the device.
func (f *FileSystem) Sync() error {
	if f.fat.Dirty() {
		if err := f.fat.WriteToDevice(f.device, f.bs); err != nil {
			return err
		}
	}
	if err := f.device.Sync(); err != nil {
		return Fatal(err)
	}
	return nil
}
