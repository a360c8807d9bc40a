package fat

import (
	"bytes"
	"testing"

	"github.com/rstms/minifat"
	"github.com/stretchr/testify/require"
)

// newTestFS formats and mounts a memory disk of 512-byte clusters. With
// 32 clusters the table takes cluster 1, the root cluster 2, and 29
// clusters are free.
func newTestFS(t *testing.T, clusters int) (*FileSystem, *minifat.MemDisk) {
	t.Helper()
	config := &Config{ClusterSize: 512, Clusters: clusters}
	device := minifat.NewMemDisk(DiskSize(config))
	require.Nil(t, Format(device, config))
	fs, err := New(device)
	require.Nil(t, err)
	return fs, device
}

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('a' + i%26)
	}
	return b
}

func TestContentRoundTrip(t *testing.T) {
	fs, _ := newTestFS(t, 32)
	store := fs.Content()
	for _, size := range []int{0, 1, 511, 512, 513, 2000} {
		e, err := fs.Root().CreateFile("DATA.BIN")
		require.Nil(t, err)
		data := pattern(size)

		require.Nil(t, store.WriteContent(e, data))
		require.Equal(t, int64(size), e.Size())
		chain, err := fs.FAT().Chain(e.Cluster())
		require.Nil(t, err)
		require.Len(t, chain, store.ClustersFor(int64(size)))

		got, err := store.ReadContent(e)
		require.Nil(t, err)
		require.True(t, bytes.Equal(data, got), "size %d", size)

		require.Nil(t, fs.Root().Delete("DATA.BIN"))
		require.Equal(t, 29, fs.FreeClusters())
	}
}

func TestContentOverwriteReleasesOldChain(t *testing.T) {
	fs, _ := newTestFS(t, 32)
	store := fs.Content()
	e, err := fs.Root().CreateFile("A.TXT")
	require.Nil(t, err)

	require.Nil(t, store.WriteContent(e, pattern(1500)))
	require.Equal(t, 26, fs.FreeClusters())
	old := e.Cluster()

	require.Nil(t, store.WriteContent(e, []byte("hi")))
	require.Equal(t, 28, fs.FreeClusters())
	require.NotEqual(t, old, e.Cluster())
	require.True(t, fs.FAT().Get(old).IsFree())

	got, err := store.ReadContent(e)
	require.Nil(t, err)
	require.Equal(t, "hi", string(got))
}

func TestContentDiskFullLeavesContent(t *testing.T) {
	fs, _ := newTestFS(t, 32)
	store := fs.Content()
	e, err := fs.Root().CreateFile("A.TXT")
	require.Nil(t, err)
	before := pattern(1000)
	require.Nil(t, store.WriteContent(e, before))
	require.Equal(t, 27, fs.FreeClusters())
	cluster := e.Cluster()

	// 30 clusters against 27 free plus the 2 the file already holds
	err = store.WriteContent(e, pattern(29*512+1))
	require.ErrorIs(t, err, minifat.ErrDiskFull)

	require.Equal(t, 27, fs.FreeClusters())
	require.Equal(t, cluster, e.Cluster())
	require.Equal(t, int64(1000), e.Size())
	got, err := store.ReadContent(e)
	require.Nil(t, err)
	require.Equal(t, before, got)
}

func TestContentCapacityBoundary(t *testing.T) {
	fs, _ := newTestFS(t, 32)
	store := fs.Content()

	// exactly the free clusters, old chain kept until the end
	a, err := fs.Root().CreateFile("A.TXT")
	require.Nil(t, err)
	require.Nil(t, store.WriteContent(a, pattern(29*512)))
	require.Equal(t, 0, fs.FreeClusters())
	got, err := store.ReadContent(a)
	require.Nil(t, err)
	require.Equal(t, pattern(29*512), got)

	// exactly free plus old: the old chain has to make room
	require.Nil(t, store.WriteContent(a, pattern(28*512+1)))
	require.Equal(t, 0, fs.FreeClusters())
	got, err = store.ReadContent(a)
	require.Nil(t, err)
	require.Equal(t, pattern(28*512+1), got)

	require.ErrorIs(t, store.WriteContent(a, pattern(29*512+1)), minifat.ErrDiskFull)
}

func TestContentSizeMismatchIsCorruption(t *testing.T) {
	fs, _ := newTestFS(t, 32)
	store := fs.Content()
	e, err := fs.Root().CreateFile("A.TXT")
	require.Nil(t, err)
	require.Nil(t, store.WriteContent(e, pattern(600)))

	e.SetSize(2000)
	_, err = store.ReadContent(e)
	require.ErrorIs(t, err, minifat.ErrCorruption)
}

func TestContentDelete(t *testing.T) {
	fs, _ := newTestFS(t, 32)
	store := fs.Content()
	e, err := fs.Root().CreateFile("A.TXT")
	require.Nil(t, err)
	require.Nil(t, store.WriteContent(e, pattern(1200)))

	require.Nil(t, store.DeleteContent(e))
	require.Equal(t, NoCluster, e.Cluster())
	require.Equal(t, int64(0), e.Size())
	require.Equal(t, 29, fs.FreeClusters())

	got, err := store.ReadContent(e)
	require.Nil(t, err)
	require.Empty(t, got)
}

func TestContentCopyDuplicatesChain(t *testing.T) {
	fs, _ := newTestFS(t, 32)
	store := fs.Content()
	src, err := fs.Root().CreateFile("SRC.TXT")
	require.Nil(t, err)
	dst, err := fs.Root().CreateFile("DST.TXT")
	require.Nil(t, err)
	require.Nil(t, store.WriteContent(src, pattern(700)))

	require.Nil(t, store.CopyContent(src, dst))
	require.NotEqual(t, src.Cluster(), dst.Cluster())
	require.Equal(t, src.Size(), dst.Size())

	require.Nil(t, store.DeleteContent(src))
	got, err := store.ReadContent(dst)
	require.Nil(t, err)
	require.Equal(t, pattern(700), got)
}

func TestContentRejectsDirectory(t *testing.T) {
	fs, _ := newTestFS(t, 32)
	e, err := fs.Root().Mkdir("DOCS")
	require.Nil(t, err)
	_, err = fs.Content().ReadContent(e)
	require.ErrorIs(t, err, minifat.ErrIsADirectory)
	require.ErrorIs(t, fs.Content().WriteContent(e, []byte("x")), minifat.ErrIsADirectory)
}
