package minifat

// A FileSystem provides access to a tree hierarchy of directories
// and files stored as cluster chains on a BlockDevice.
type FileSystem interface {
	// RootDir returns the single root directory.
	RootDir() (Directory, error)
	Info() (map[string]any, error)
	ClusterSize() int
	TotalClusters() int
	FreeClusters() int
	Drive() string
	Sync() error
}
