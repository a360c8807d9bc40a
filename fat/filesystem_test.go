package fat

import (
	"testing"

	"github.com/rstms/minifat"
	"github.com/stretchr/testify/require"
)

func TestFileSystemImplementsFileSystem(t *testing.T) {
	var raw interface{}
	raw = new(FileSystem)
	if _, ok := raw.(minifat.FileSystem); !ok {
		t.Fatal("FileSystem should be a FileSystem")
	}
}

func TestFormatDefaults(t *testing.T) {
	device := minifat.NewMemDisk(DiskSize(nil))
	require.Equal(t, int64(1024*1024), device.Len())
	require.Nil(t, Format(device, nil))

	fs, err := New(device)
	require.Nil(t, err)
	require.Equal(t, 1024, fs.ClusterSize())
	require.Equal(t, 1024, fs.TotalClusters())
	// superblock, four table clusters, root
	require.Equal(t, Cluster(5), fs.RootCluster())
	require.Equal(t, 1024-6, fs.FreeClusters())
	require.Equal(t, "C:", fs.Drive())
	require.Equal(t, `C:\`, fs.Root().FullPath())
	require.Empty(t, fs.Root().List())

	info, err := fs.Info()
	require.Nil(t, err)
	require.Equal(t, 1024-6, info["free_clusters"])
}

func TestFormatDrive(t *testing.T) {
	config := &Config{ClusterSize: 512, Clusters: 32, Drive: "d:"}
	device := minifat.NewMemDisk(DiskSize(config))
	require.Nil(t, Format(device, config))
	fs, err := New(device)
	require.Nil(t, err)
	require.Equal(t, "D:", fs.Drive())
	require.Equal(t, `D:\`, fs.Root().FullPath())
}

func TestFormatRejectsBadGeometry(t *testing.T) {
	for _, config := range []*Config{
		{ClusterSize: 1000, Clusters: 32},
		{ClusterSize: 256, Clusters: 32},
		{ClusterSize: 512, Clusters: 4},
		{ClusterSize: 512, Clusters: 32, Drive: `C\`},
	} {
		device := minifat.NewMemDisk(1 << 20)
		require.Error(t, Format(device, config), "%+v", config)
	}

	small := minifat.NewMemDisk(1024)
	require.Error(t, Format(small, &Config{ClusterSize: 512, Clusters: 32}))
}

func TestMountRejectsUnformatted(t *testing.T) {
	device := minifat.NewMemDisk(DiskSize(nil))
	_, err := New(device)
	require.ErrorIs(t, err, minifat.ErrCorruption)
}

func TestMountRejectsFreeRoot(t *testing.T) {
	fs, device := newTestFS(t, 32)
	fs.FAT().SetNext(fs.RootCluster(), Free)
	require.Nil(t, fs.Sync())
	_, err := New(device)
	require.ErrorIs(t, err, minifat.ErrCorruption)
}

func TestSyncPersistsTable(t *testing.T) {
	fs, device := newTestFS(t, 32)
	e, err := fs.Root().CreateFile("A.TXT")
	require.Nil(t, err)
	require.Nil(t, fs.Content().WriteContent(e, pattern(2000)))
	require.Nil(t, fs.Root().Persist())
	require.True(t, fs.FAT().Dirty())
	require.Nil(t, fs.Sync())
	require.False(t, fs.FAT().Dirty())

	again, err := New(device)
	require.Nil(t, err)
	require.Equal(t, 25, again.FreeClusters())
	got, err := again.Content().ReadContent(again.Root().Lookup("A.TXT"))
	require.Nil(t, err)
	require.Equal(t, pattern(2000), got)
}
