// Package rehash rebuilds an SVOD volume's three-level SHA-1 hash tree
// (level-0 tables, master tables, root hash) and the XContent header hash
// that depends on it.
package rehash

import (
	"crypto/sha1"

	"github.com/halprin/xfatx/svod"
)

const (
	blockSize       = 0x1000
	blocksPerTable  = 0xCC
	bytesPerL0Group = blockSize + blocksPerTable*blockSize // 0xCD000
	masterTableSize = 0x1000
	digestSize      = 20
)

// ProgressCallback reports (filesProcessed, fileCount) once per data file.
type ProgressCallback func(filesProcessed, fileCount int)

// dataFileIO is the subset of multifileio.IndexableMultiFileIO rehash uses
// against a single already-selected file index.
type dataFileIO interface {
	SetPosition(offset int64, fileIndex int) error
	ReadBytes(length int) ([]byte, error)
	WriteBytes(data []byte) error
	CurrentFileLength() (int64, error)
}

// Run walks v's data files from highest index down to zero, rebuilds
// level-0 and master hash tables, writes the resulting root hash into the
// header's volume descriptor, and recomputes header_hash over rootFile.
//
// rootFile is the full byte content of the root descriptor file; it is
// mutated in place (the header region rewritten) and the caller is
// responsible for persisting it back to storage.
func Run(v *svod.Volume, rootFile []byte, progress ProgressCallback) error {
	files := v.Files.(dataFileIO)
	fileCount := v.Files.FileCount()

	var prevHash [digestSize]byte
	processed := 0

	for fileIndex := fileCount - 1; fileIndex >= 0; fileIndex-- {
		if err := v.Files.SetPosition(0, fileIndex); err != nil {
			return err
		}
		fileLength, err := v.Files.CurrentFileLength()
		if err != nil {
			return err
		}

		hashTableCount := ceilDiv(fileLength-0x2000, bytesPerL0Group)
		if hashTableCount < 1 {
			hashTableCount = 1
		}

		master := make([]byte, masterTableSize)

		for x := int64(0); x < hashTableCount; x++ {
			groupOffset := 0x2000 + x*bytesPerL0Group
			if err := files.SetPosition(groupOffset, fileIndex); err != nil {
				return err
			}

			remainingInFile := fileLength - groupOffset
			blocksHere := int64(blocksPerTable)
			if maxBlocks := remainingInFile / blockSize; maxBlocks < blocksHere {
				blocksHere = maxBlocks
			}

			level0 := make([]byte, blockSize)
			for y := int64(0); y < blocksHere; y++ {
				block, err := files.ReadBytes(blockSize)
				if err != nil {
					return err
				}
				digest := sha1.Sum(block)
				copy(level0[y*digestSize:], digest[:])
			}

			if err := files.SetPosition(0x1000+x*bytesPerL0Group, fileIndex); err != nil {
				return err
			}
			if err := files.WriteBytes(level0); err != nil {
				return err
			}

			digest := sha1.Sum(level0)
			copy(master[x*digestSize:], digest[:])
		}

		// Back-link to the previously processed (higher-indexed) file's
		// master-table hash; zero for the first file processed.
		copy(master[hashTableCount*digestSize:], prevHash[:])

		if err := files.SetPosition(0, fileIndex); err != nil {
			return err
		}
		if err := files.WriteBytes(master); err != nil {
			return err
		}

		prevHash = sha1.Sum(master)

		processed++
		if progress != nil {
			progress(processed, fileCount)
		}
	}

	v.Header.VolumeDescriptor.RootHash = prevHash
	headerHash, err := v.Header.ComputeHeaderHash(rootFile)
	if err != nil {
		return err
	}
	v.Header.HeaderHash = headerHash

	encoded := v.Header.Encode()
	copy(rootFile, encoded)

	return nil
}

func ceilDiv(a, b int64) int64 {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
