package fat

import (
	"math/rand"
	"testing"

	"github.com/rstms/minifat"
	"github.com/stretchr/testify/require"
)

func TestLinkEncoding(t *testing.T) {
	for _, link := range []Link{Free, End, Next(7)} {
		got, err := decodeLink(link.encode(), 16)
		require.Nil(t, err)
		require.Equal(t, link, got)
	}
	_, err := decodeLink(16, 16)
	require.ErrorIs(t, err, minifat.ErrCorruption)
	_, err = decodeLink(-2, 16)
	require.ErrorIs(t, err, minifat.ErrCorruption)

	next, ok := Next(3).Next()
	require.True(t, ok)
	require.Equal(t, Cluster(3), next)
	_, ok = End.Next()
	require.False(t, ok)
}

func TestFATAllocChainAndFree(t *testing.T) {
	f := NewFAT(16, 512, 2)
	require.Equal(t, 16, f.TotalClusters())
	require.Equal(t, 14, f.FreeClusters())

	head, err := f.AllocChain(3)
	require.Nil(t, err)
	chain, err := f.Chain(head)
	require.Nil(t, err)
	require.Equal(t, []Cluster{2, 3, 4}, chain)
	require.Equal(t, 11, f.FreeClusters())
	require.True(t, f.Get(4).IsEnd())

	require.Nil(t, f.FreeChain(head))
	require.Equal(t, 14, f.FreeClusters())
	for _, c := range chain {
		require.True(t, f.Get(c).IsFree())
	}
}

func TestFATAllocExhaustion(t *testing.T) {
	f := NewFAT(16, 512, 2)
	for i := 0; i < 14; i++ {
		c, ok := f.Alloc()
		require.True(t, ok)
		require.GreaterOrEqual(t, int(c), 2)
	}
	_, ok := f.Alloc()
	require.False(t, ok)
	require.Equal(t, 0, f.FreeClusters())
}

func TestFATAllocChainDiskFull(t *testing.T) {
	f := NewFAT(16, 512, 2)
	_, err := f.AllocChain(15)
	require.ErrorIs(t, err, minifat.ErrDiskFull)
	require.Equal(t, 14, f.FreeClusters())

	head, err := f.AllocChain(14)
	require.Nil(t, err)
	require.NotEqual(t, NoCluster, head)
	require.Equal(t, 0, f.FreeClusters())
}

func TestFATFreeEmptyChain(t *testing.T) {
	f := NewFAT(16, 512, 2)
	require.Nil(t, f.FreeChain(NoCluster))
	require.Equal(t, 14, f.FreeClusters())

	head, err := f.AllocChain(0)
	require.Nil(t, err)
	require.Equal(t, NoCluster, head)
}

func TestFATChainCycle(t *testing.T) {
	f := NewFAT(16, 512, 2)
	a, _ := f.Alloc()
	b, _ := f.Alloc()
	f.SetNext(a, Next(b))
	f.SetNext(b, Next(a))

	_, err := f.Chain(a)
	require.ErrorIs(t, err, minifat.ErrCorruption)
	require.ErrorIs(t, f.FreeChain(a), minifat.ErrCorruption)
	require.False(t, f.Get(a).IsFree())
}

func TestFATChainIntoFreeCluster(t *testing.T) {
	f := NewFAT(16, 512, 2)
	a, _ := f.Alloc()
	f.SetNext(a, Next(9))
	_, err := f.Chain(a)
	require.ErrorIs(t, err, minifat.ErrCorruption)
}

func TestFATSetNextReserved(t *testing.T) {
	f := NewFAT(16, 512, 2)
	require.Panics(t, func() { f.SetNext(1, Free) })
	require.Panics(t, func() { f.SetNext(16, End) })
}

func TestFATExtendTruncate(t *testing.T) {
	f := NewFAT(16, 512, 2)
	head, err := f.AllocChain(2)
	require.Nil(t, err)

	require.Nil(t, f.Extend(head, 3))
	chain, err := f.Chain(head)
	require.Nil(t, err)
	require.Len(t, chain, 5)
	require.Equal(t, 9, f.FreeClusters())

	require.ErrorIs(t, f.Extend(head, 10), minifat.ErrDiskFull)
	require.Equal(t, 9, f.FreeClusters())

	require.Nil(t, f.Truncate(head, 1))
	chain, err = f.Chain(head)
	require.Nil(t, err)
	require.Equal(t, []Cluster{head}, chain)
	require.Equal(t, 13, f.FreeClusters())
}

func TestFATConservation(t *testing.T) {
	const total = 64
	f := NewFAT(total, 512, 3)
	rng := rand.New(rand.NewSource(1))
	var chains []Cluster

	check := func() {
		owner := make(map[Cluster]int)
		used := 0
		for i, head := range chains {
			chain, err := f.Chain(head)
			require.Nil(t, err)
			for _, c := range chain {
				prev, shared := owner[c]
				require.False(t, shared, "cluster %d in chains %d and %d", c, prev, i)
				owner[c] = i
			}
			used += len(chain)
		}
		require.Equal(t, total, f.FreeClusters()+f.Reserved()+used)
	}

	for step := 0; step < 500; step++ {
		if len(chains) > 0 && rng.Intn(3) == 0 {
			i := rng.Intn(len(chains))
			require.Nil(t, f.FreeChain(chains[i]))
			chains = append(chains[:i], chains[i+1:]...)
		} else {
			n := rng.Intn(6)
			free := f.FreeClusters()
			head, err := f.AllocChain(n)
			if n > free {
				require.ErrorIs(t, err, minifat.ErrDiskFull)
			}
			if err == nil && head != NoCluster {
				chains = append(chains, head)
			}
		}
		check()
	}
}

func TestFATDeviceRoundTrip(t *testing.T) {
	bs, err := NewSuperblock(512, 64, "C")
	require.Nil(t, err)
	device := minifat.NewMemDisk(bs.DiskSize())

	f := NewFAT(64, 512, int(bs.RootCluster))
	f.SetNext(Cluster(bs.RootCluster), End)
	head, err := f.AllocChain(4)
	require.Nil(t, err)
	require.True(t, f.Dirty())
	require.Nil(t, f.WriteToDevice(device, bs))
	require.False(t, f.Dirty())

	g, err := DecodeFAT(device, bs)
	require.Nil(t, err)
	require.Equal(t, f.links, g.links)
	require.Equal(t, f.FreeClusters(), g.FreeClusters())
	chain, err := g.Chain(head)
	require.Nil(t, err)
	require.Len(t, chain, 4)
}

func TestFATDecodeCorrupt(t *testing.T) {
	bs, err := NewSuperblock(512, 64, "C")
	require.Nil(t, err)
	device := minifat.NewMemDisk(bs.DiskSize())
	f := NewFAT(64, 512, int(bs.RootCluster))
	require.Nil(t, f.WriteToDevice(device, bs))

	// point a data cluster past the end of the table
	raw := device.Bytes()
	off := int(bs.FATStart)*512 + 10*linkSize
	raw[off] = 0xff
	raw[off+1] = 0x00
	_, err = DecodeFAT(device, bs)
	require.ErrorIs(t, err, minifat.ErrCorruption)
}
