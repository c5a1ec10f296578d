package fatx_test

import (
	"testing"

	"github.com/halprin/xfatx/blockdev"
	"github.com/halprin/xfatx/fatx"
	"github.com/halprin/xfatx/internal/testimage"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"
)

func mountImage(t *testing.T, image []byte) *fatx.Volume {
	t.Helper()
	stream := bytesextra.NewReadWriteSeeker(image)
	device := blockdev.New(stream, 512, uint32(len(image)/512), 0)
	volume, err := fatx.Mount(device, 0, int64(len(image)))
	require.NoError(t, err)
	return volume
}

func TestMountScansFreeClusters(t *testing.T) {
	image := testimage.BuildFatxImage(testimage.FatxImageOptions{
		ClusterSize:  0x1000,
		ClusterCount: 16,
	})
	volume := mountImage(t, image)

	// Cluster 1 is claimed by the root directory; the rest are free.
	require.Len(t, volume.Partition.FreeClusters, 15)
	require.NotContains(t, volume.Partition.FreeClusters, uint32(1))
}

func TestListDirectorySkipsEndOfDirectorySentinel(t *testing.T) {
	image := testimage.BuildFatxImage(testimage.FatxImageOptions{
		ClusterSize:  0x1000,
		ClusterCount: 16,
		RootDirectoryEntries: []testimage.FatxEntrySpec{
			{Name: "a", StartingCluster: 0, FileSize: 0},
		},
	})
	volume := mountImage(t, image)

	children, err := fatx.ListDirectory(volume.Root)
	require.NoError(t, err)
	require.Len(t, children, 1)
	require.Equal(t, "a", children[0].Name)
}

func TestAllocateMemoryThenWriteThenReadRoundTrips(t *testing.T) {
	image := testimage.BuildFatxImage(testimage.FatxImageOptions{
		ClusterSize:  0x4000,
		ClusterCount: 0x10,
		RootDirectoryEntries: []testimage.FatxEntrySpec{
			{Name: "a", StartingCluster: 0, FileSize: 0},
		},
	})
	volume := mountImage(t, image)

	children, err := fatx.ListDirectory(volume.Root)
	require.NoError(t, err)
	entry := children[0]
	firstFree := volume.Partition.FreeClusters[0]

	view, err := fatx.NewIO(entry)
	require.NoError(t, err)

	require.NoError(t, view.AllocateMemory(0x4000))
	require.Equal(t, firstFree, entry.StartingCluster)

	pattern := make([]byte, 0x4000)
	for i := range pattern {
		pattern[i] = 0xAB
	}

	require.NoError(t, view.SetPosition(0))
	require.NoError(t, view.WriteBytes(pattern))

	require.NoError(t, view.SetPosition(0))
	readBack, err := view.ReadBytes(0x4000)
	require.NoError(t, err)
	require.Equal(t, pattern, readBack)
}

func TestDeleteEntryMarksNameLenAndIsSkippedOnList(t *testing.T) {
	image := testimage.BuildFatxImage(testimage.FatxImageOptions{
		ClusterSize:  0x1000,
		ClusterCount: 16,
		RootDirectoryEntries: []testimage.FatxEntrySpec{
			{Name: "a", StartingCluster: 0, FileSize: 0},
			{Name: "b", StartingCluster: 0, FileSize: 0},
		},
	})
	volume := mountImage(t, image)

	children, err := fatx.ListDirectory(volume.Root)
	require.NoError(t, err)
	require.Len(t, children, 2)

	var target *fatx.FatxFileEntry
	for _, child := range children {
		if child.Name == "a" {
			target = child
		}
	}
	require.NotNil(t, target)

	require.NoError(t, target.Delete())
	require.True(t, target.IsDeleted())

	raw, err := volume.Partition.Device().ReadAt(target.Address, 1)
	require.NoError(t, err)
	require.EqualValues(t, fatx.NameLenDeleted, raw[0])

	// Rest of the record is untouched: the name bytes are still there even
	// though the enumerator now treats the entry as gone.
	nameBytes, err := volume.Partition.Device().ReadAt(target.Address+2, 1)
	require.NoError(t, err)
	require.Equal(t, byte('a'), nameBytes[0])

	volume.Root.Children = nil
	remaining, err := fatx.ListDirectory(volume.Root)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	require.Equal(t, "b", remaining[0].Name)
}

func TestChainMapRoundTrip(t *testing.T) {
	image := testimage.BuildFatxImage(testimage.FatxImageOptions{
		ClusterSize:  0x1000,
		ClusterCount: 0x20,
		RootDirectoryEntries: []testimage.FatxEntrySpec{
			{Name: "big", StartingCluster: 0, FileSize: 0},
		},
	})
	volume := mountImage(t, image)
	children, err := fatx.ListDirectory(volume.Root)
	require.NoError(t, err)
	entry := children[0]

	view, err := fatx.NewIO(entry)
	require.NoError(t, err)
	require.NoError(t, view.AllocateMemory(0x1000*5))

	chain, err := volume.Partition.ReadChain(entry.StartingCluster)
	require.NoError(t, err)
	require.Equal(t, entry.ClusterChain, chain)

	for _, cluster := range chain {
		require.True(t, volume.Partition.IsValidCluster(cluster))
	}
}
