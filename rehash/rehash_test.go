package rehash_test

import (
	"crypto/sha1"
	"os"
	"path/filepath"
	"testing"

	"github.com/halprin/xfatx/multifileio"
	"github.com/halprin/xfatx/rehash"
	"github.com/halprin/xfatx/svod"
	"github.com/halprin/xfatx/xcontent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeZeroFile writes one zero-filled data file of the given size and
// returns its containing directory.
func writeZeroFile(t *testing.T, size int) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "data0000")
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
	return dir
}

func TestRehashZeroDataFileMatchesE5(t *testing.T) {
	dataDir := writeZeroFile(t, 0x2000+0xCC*0x1000)

	header := &xcontent.Header{
		Magic:       xcontent.MagicCON,
		FileSystem:  xcontent.FileSystemSVOD,
		ContentType: xcontent.ContentTypeGameOnDemand,
		HeaderSize:  0x2000,
		VolumeDescriptor: xcontent.VolumeDescriptor{
			Flags: xcontent.EnhancedGDFLayout,
		},
	}
	rootFile := header.Encode()
	rootPath := filepath.Join(t.TempDir(), "rootdescriptor")
	require.NoError(t, os.WriteFile(rootPath, rootFile, 0o644))

	files, err := multifileio.NewLocal(dataDir)
	require.NoError(t, err)
	defer files.Close()

	volume := &svod.Volume{
		Header:         header,
		Files:          files,
		BaseAddress:    header.BaseAddress(),
		PrologueOffset: header.PrologueOffset(),
	}

	require.NoError(t, rehash.Run(volume, rootFile, nil))

	zeroBlock := make([]byte, 0x1000)
	zeroDigest := sha1.Sum(zeroBlock)

	level0 := make([]byte, 0x1000)
	for i := 0; i < 0xCC; i++ {
		copy(level0[i*20:], zeroDigest[:])
	}
	expectedMaster := make([]byte, 0x1000)
	level0Digest := sha1.Sum(level0)
	copy(expectedMaster, level0Digest[:])
	// back-link hash is zero: this is the only (and thus last-processed) file
	expectedRootHash := sha1.Sum(expectedMaster)

	assert.Equal(t, expectedRootHash, volume.Header.VolumeDescriptor.RootHash)
}

func TestRehashIsDeterministic(t *testing.T) {
	dataDir := writeZeroFile(t, 0x2000+0x10*0x1000)

	header := &xcontent.Header{
		Magic:       xcontent.MagicCON,
		FileSystem:  xcontent.FileSystemSVOD,
		ContentType: xcontent.ContentTypeInstalledGame,
		HeaderSize:  0x2000,
		VolumeDescriptor: xcontent.VolumeDescriptor{
			Flags: xcontent.EnhancedGDFLayout,
		},
	}
	rootFile := header.Encode()
	rootPath := filepath.Join(t.TempDir(), "rootdescriptor")
	require.NoError(t, os.WriteFile(rootPath, rootFile, 0o644))

	files, err := multifileio.NewLocal(dataDir)
	require.NoError(t, err)
	defer files.Close()

	volume := &svod.Volume{
		Header:         header,
		Files:          files,
		BaseAddress:    header.BaseAddress(),
		PrologueOffset: header.PrologueOffset(),
	}

	require.NoError(t, rehash.Run(volume, rootFile, nil))
	firstRoot := volume.Header.VolumeDescriptor.RootHash
	firstHeaderHash := volume.Header.HeaderHash

	require.NoError(t, rehash.Run(volume, rootFile, nil))
	assert.Equal(t, firstRoot, volume.Header.VolumeDescriptor.RootHash)
	assert.Equal(t, firstHeaderHash, volume.Header.HeaderHash)
}
