package fat

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/rstms/minifat"
)

const (
	Magic = "MINIFAT1"

	DefaultClusterSize = 1024
	DefaultClusters    = 1024
	DefaultDrive       = "C"

	MinClusterSize = 512
	MaxClusterSize = 65536
	MinClusters    = 16
	MaxClusters    = 1 << 20
)

// superblock field offsets within cluster 0
const (
	sbMagicStart       = 0
	sbClusterSizeStart = sbMagicStart + len(Magic)
	sbCountStart       = sbClusterSizeStart + 4
	sbFATStartStart    = sbCountStart + 4
	sbFATClustersStart = sbFATStartStart + 4
	sbRootStart        = sbFATClustersStart + 4
	sbDriveStart       = sbRootStart + 4
	sbDriveSize        = 11
	sbSize             = sbDriveStart + sbDriveSize
)

// Superblock describes the geometry of a formatted disk.
type Superblock struct {
	ClusterSize  uint32
	ClusterCount uint32
	FATStart     uint32
	FATClusters  uint32
	RootCluster  uint32
	Drive        string
}

// NewSuperblock lays out a disk of count clusters of clusterSize bytes:
// the superblock in cluster 0, the table from cluster 1, and the root
// directory right after the table.
func NewSuperblock(clusterSize, count int, drive string) (*Superblock, error) {
	if clusterSize < MinClusterSize || clusterSize > MaxClusterSize || clusterSize&(clusterSize-1) != 0 {
		return nil, Fatalf("invalid cluster size %d", clusterSize)
	}
	if count < MinClusters || count > MaxClusters {
		return nil, Fatalf("invalid cluster count %d", count)
	}
	drive = strings.ToUpper(strings.TrimSuffix(strings.TrimSpace(drive), ":"))
	if drive == "" || len(drive) > sbDriveSize || strings.ContainsAny(drive, `\/`) {
		return nil, Fatalf("invalid drive %q", drive)
	}
	fatClusters := (count*linkSize + clusterSize - 1) / clusterSize
	root := 1 + fatClusters
	if root+1 >= count {
		return nil, Fatalf("%d clusters leave no data area", count)
	}
	return &Superblock{
		ClusterSize:  uint32(clusterSize),
		ClusterCount: uint32(count),
		FATStart:     1,
		FATClusters:  uint32(fatClusters),
		RootCluster:  uint32(root),
		Drive:        drive,
	}, nil
}

// DecodeSuperblock reads and validates cluster 0 of device.
func DecodeSuperblock(device minifat.BlockDevice) (*Superblock, error) {
	raw := make([]byte, sbSize)
	if _, err := device.ReadAt(raw, 0); err != nil {
		return nil, Fatal(err)
	}
	if string(raw[sbMagicStart:sbClusterSizeStart]) != Magic {
		return nil, minifat.NewError("mount", "superblock", fmt.Errorf("%w: bad magic", minifat.ErrCorruption))
	}
	drive := string(bytes.TrimRight(raw[sbDriveStart:sbDriveStart+sbDriveSize], "\x00"))
	bs, err := NewSuperblock(
		int(binary.LittleEndian.Uint32(raw[sbClusterSizeStart:])),
		int(binary.LittleEndian.Uint32(raw[sbCountStart:])),
		drive,
	)
	if err != nil {
		return nil, minifat.NewError("mount", "superblock", fmt.Errorf("%w: %v", minifat.ErrCorruption, err))
	}
	if binary.LittleEndian.Uint32(raw[sbFATStartStart:]) != bs.FATStart ||
		binary.LittleEndian.Uint32(raw[sbFATClustersStart:]) != bs.FATClusters ||
		binary.LittleEndian.Uint32(raw[sbRootStart:]) != bs.RootCluster {
		return nil, minifat.NewError("mount", "superblock", fmt.Errorf("%w: inconsistent layout", minifat.ErrCorruption))
	}
	if device.Len() < bs.DiskSize() {
		return nil, minifat.NewError("mount", "superblock",
			fmt.Errorf("%w: device holds %d bytes, layout needs %d", minifat.ErrCorruption, device.Len(), bs.DiskSize()))
	}
	return bs, nil
}

// Bytes encodes the superblock into a full cluster.
func (bs *Superblock) Bytes() []byte {
	raw := make([]byte, bs.ClusterSize)
	copy(raw[sbMagicStart:], Magic)
	binary.LittleEndian.PutUint32(raw[sbClusterSizeStart:], bs.ClusterSize)
	binary.LittleEndian.PutUint32(raw[sbCountStart:], bs.ClusterCount)
	binary.LittleEndian.PutUint32(raw[sbFATStartStart:], bs.FATStart)
	binary.LittleEndian.PutUint32(raw[sbFATClustersStart:], bs.FATClusters)
	binary.LittleEndian.PutUint32(raw[sbRootStart:], bs.RootCluster)
	copy(raw[sbDriveStart:sbDriveStart+sbDriveSize], bs.Drive)
	return raw
}

func (bs *Superblock) WriteToDevice(device minifat.BlockDevice) error {
	if _, err := device.WriteAt(bs.Bytes(), 0); err != nil {
		return Fatal(err)
	}
	return nil
}

// DiskSize is the number of bytes the layout occupies.
func (bs *Superblock) DiskSize() int64 {
	return int64(bs.ClusterSize) * int64(bs.ClusterCount)
}
