package svod_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/halprin/xfatx/internal/testimage"
	"github.com/halprin/xfatx/multifileio"
	"github.com/halprin/xfatx/svod"
	"github.com/halprin/xfatx/xcontent"
	"github.com/stretchr/testify/require"
)

func buildRootDescriptorAndDataDir(t *testing.T, rootSector uint32, dirEntries []testimage.SvodDirentSpec) (string, string) {
	t.Helper()

	header := &xcontent.Header{
		Magic:       xcontent.MagicCON,
		FileSystem:  xcontent.FileSystemSVOD,
		ContentType: xcontent.ContentTypeGameOnDemand,
		HeaderSize:  0x2000,
		VolumeDescriptor: xcontent.VolumeDescriptor{
			Flags: xcontent.EnhancedGDFLayout,
		},
	}
	rootDescriptorBytes := header.Encode()

	dir := t.TempDir()
	rootPath := filepath.Join(dir, "rootdescriptor")
	require.NoError(t, os.WriteFile(rootPath, rootDescriptorBytes, 0o644))

	dataDir := rootPath + ".data"
	require.NoError(t, os.MkdirAll(dataDir, 0o755))

	directoryBytes := testimage.EncodeSvodDirectory(dirEntries)
	dataFile := testimage.BuildSvodDataFile(header.BaseAddress(), header.PrologueOffset(), rootSector, directoryBytes, 0)
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "data0000"), dataFile, 0o644))

	return rootPath, dataDir
}

func TestMountAndListRootDirectory(t *testing.T) {
	rootPath, dataDir := buildRootDescriptorAndDataDir(t, 0, []testimage.SvodDirentSpec{
		{Name: "a", Sector: 10, Size: 5},
		{Name: "dir", Sector: 20, Size: 0, Attributes: svod.AttrDirectory},
	})

	rootDescriptorBytes, err := os.ReadFile(rootPath)
	require.NoError(t, err)

	files, err := multifileio.NewLocal(dataDir)
	require.NoError(t, err)
	defer files.Close()

	volume, err := svod.Mount(rootDescriptorBytes, files, rootPath)
	require.NoError(t, err)

	children, err := svod.ListDirectory(volume, volume.Root)
	require.NoError(t, err)
	require.Len(t, children, 2)

	// directories-first, then ascending by name
	require.True(t, children[0].IsDirectory())
	require.Equal(t, "dir", children[0].Name)
	require.Equal(t, "a", children[1].Name)
}

func TestGetFileEntryNotFound(t *testing.T) {
	rootPath, dataDir := buildRootDescriptorAndDataDir(t, 0, []testimage.SvodDirentSpec{
		{Name: "a", Sector: 10, Size: 5},
	})

	rootDescriptorBytes, err := os.ReadFile(rootPath)
	require.NoError(t, err)
	files, err := multifileio.NewLocal(dataDir)
	require.NoError(t, err)
	defer files.Close()

	volume, err := svod.Mount(rootDescriptorBytes, files, rootPath)
	require.NoError(t, err)

	_, err = svod.GetFileEntry(volume, "/missing")
	require.Error(t, err)
}

func TestSectorToOffsetMatchesExampleE2(t *testing.T) {
	rootPath, dataDir := buildRootDescriptorAndDataDir(t, 0, nil)
	rootDescriptorBytes, err := os.ReadFile(rootPath)
	require.NoError(t, err)
	files, err := multifileio.NewLocal(dataDir)
	require.NoError(t, err)
	defer files.Close()

	volume, err := svod.Mount(rootDescriptorBytes, files, rootPath)
	require.NoError(t, err)

	fileIndex, offset, err := volume.SectorToOffset(0)
	require.NoError(t, err)
	require.Equal(t, 0, fileIndex)
	require.EqualValues(t, 0x3000, offset)

	fileIndex, offset, err = volume.SectorToOffset(0x198)
	require.NoError(t, err)
	require.Equal(t, 0, fileIndex)
	require.EqualValues(t, 0x3000+0x198*0x800+0x1000, offset)
}
