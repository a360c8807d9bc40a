package minifat

type DirectoryAttr uint8

const (
	AttrFile      DirectoryAttr = 0x00
	AttrDirectory DirectoryAttr = 0x10
)

func (a DirectoryAttr) String() string {
	if a == AttrDirectory {
		return "<DIR>"
	}
	return "FILE"
}

// Directory is an entry in a filesystem that stores files.
type Directory interface {
	Name() string
	FullPath() string
	Entry(name string) DirectoryEntry
	Entries() []DirectoryEntry
	AddDirectory(name string) (DirectoryEntry, error)
	AddFile(name string) (DirectoryEntry, error)
	IsEmpty() bool
}

// DirectoryEntry represents a single entry within a directory,
// which can be either another Directory or a File.
type DirectoryEntry interface {
	Name() string
	IsDir() bool
	Dir() (Directory, error)
	Attr() DirectoryAttr
	Size() int64
	FirstCluster() uint32
}
