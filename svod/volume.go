// Package svod implements the Secure Virtual Optical Disk container: a
// game disc virtualized as a sequence of data files with an interleaved
// SHA-1 hash tree, addressed through a GDFX directory tree.
package svod

import (
	"encoding/binary"
	"path"
	"strings"

	"github.com/halprin/xfatx/multifileio"
	"github.com/halprin/xfatx/xcontent"
	"github.com/halprin/xfatx/xerrors"
)

const (
	// SectorSize is the fixed SVOD sector size.
	SectorSize = 0x800
	// SectorsPerDataFile is the data capacity of one data file, in sectors.
	SectorsPerDataFile = 0x14388
	// SectorsPerHashTable is the run of data sectors one level-0 hash table
	// covers.
	SectorsPerHashTable = 0x198

	gdfxMagic      = "MICROSOFT*XBOX*MEDIA"
	gdfxHeaderSize = len(gdfxMagic) + 4 + 4 + 8
)

// Volume is a mounted SVOD container: its header, its underlying file
// collection, and the root of its GDFX directory tree (populated lazily).
type Volume struct {
	Header         *xcontent.Header
	Files          multifileio.IndexableMultiFileIO
	RootSector     uint32
	RootSize       uint32
	BaseAddress    int64
	PrologueOffset int64
	Root           *GdfxFileEntry

	// RootDescriptorPath is the normalized ('/'-separated) path to the root
	// descriptor file this volume was mounted from.
	RootDescriptorPath string
}

// DataDirectory derives the data-file directory for a root descriptor
// path: "<dir>/<file_name>.data/".
func DataDirectory(rootDescriptorPath string) string {
	normalized := strings.ReplaceAll(rootDescriptorPath, "\\", "/")
	return normalized + ".data"
}

// Mount parses the XContentHeader from rootDescriptor, requires SVOD with
// an accepted content type, attaches files as the data-file collection,
// and parses the GDFX root header.
func Mount(rootDescriptor []byte, files multifileio.IndexableMultiFileIO, rootDescriptorPath string) (*Volume, error) {
	header, err := xcontent.Parse(rootDescriptor)
	if err != nil {
		return nil, err
	}

	volume := &Volume{
		Header:             header,
		Files:              files,
		BaseAddress:        header.BaseAddress(),
		PrologueOffset:     header.PrologueOffset(),
		RootDescriptorPath: strings.ReplaceAll(rootDescriptorPath, "\\", "/"),
	}

	if err := files.SetPosition(volume.BaseAddress, 0); err != nil {
		return nil, err
	}
	headerBytes, err := files.ReadBytes(gdfxHeaderSize)
	if err != nil {
		return nil, err
	}

	if string(headerBytes[:len(gdfxMagic)]) != gdfxMagic {
		return nil, xerrors.New(xerrors.UnsupportedContent).WithMessage("bad GDFX magic")
	}
	volume.RootSector = binary.BigEndian.Uint32(headerBytes[len(gdfxMagic):])
	volume.RootSize = binary.BigEndian.Uint32(headerBytes[len(gdfxMagic)+4:])

	root := &GdfxFileEntry{
		Name:       "",
		Attributes: AttrDirectory,
		Sector:     volume.RootSector,
		Size:       volume.RootSize,
		FilePath:   "/",
	}
	volume.Root = root

	return volume, nil
}

// SectorToOffset maps a logical sector S to the (file_index,
// offset_in_data_file) pair it lives at, per the data_block_offset D and
// prologueOffset carried by the volume's header.
func (v *Volume) SectorToOffset(sector uint32) (fileIndex int, offsetInFile int64, err error) {
	dataBlockOffset := int64(v.Header.VolumeDescriptor.DataBlockOffset)
	adjusted := int64(sector) - 2*dataBlockOffset
	if adjusted < 0 {
		return 0, 0, xerrors.Newf(xerrors.OutOfRange, "sector %d precedes data_block_offset", sector)
	}

	fileIndex = int(adjusted / SectorsPerDataFile)
	trueSector := adjusted % SectorsPerDataFile

	offsetInFile = trueSector*SectorSize + v.PrologueOffset + hashTableBytes(trueSector)
	return fileIndex, offsetInFile, nil
}

// hashTableBytes returns the number of hash-table bytes that precede data
// sector t within its data file: one 0x1000 table reserved before every
// run of SectorsPerHashTable data sectors.
func hashTableBytes(t int64) int64 {
	tables := t/SectorsPerHashTable + 1
	return tables * 0x1000
}

// JoinPath joins a directory's materialized path with a child name.
func JoinPath(dirPath string, name string) string {
	return path.Clean(dirPath + "/" + name)
}
