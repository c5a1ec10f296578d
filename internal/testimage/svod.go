package testimage

import (
	"encoding/binary"
)

const gdfxMagic = "MICROSOFT*XBOX*MEDIA"

// SvodDirentSpec describes one GDFX directory entry to encode.
type SvodDirentSpec struct {
	Name       string
	Attributes uint8
	Sector     uint32
	Size       uint32
}

// EncodeSvodDirectory serializes a sequence of GDFX directory entries
// (14-byte fixed header + name, padded to a 4-byte boundary) followed by
// the 4-byte end-of-sector sentinel.
func EncodeSvodDirectory(entries []SvodDirentSpec) []byte {
	var buf []byte
	for _, e := range entries {
		record := make([]byte, 14+len(e.Name))
		binary.BigEndian.PutUint32(record[4:8], e.Sector)
		binary.BigEndian.PutUint32(record[8:12], e.Size)
		record[12] = e.Attributes
		record[13] = uint8(len(e.Name))
		copy(record[14:], e.Name)

		padded := len(record)
		if padded%4 != 0 {
			padded += 4 - padded%4
		}
		entryBytes := make([]byte, padded)
		copy(entryBytes, record)
		buf = append(buf, entryBytes...)
	}
	sentinel := make([]byte, 4)
	binary.BigEndian.PutUint32(sentinel, 0xFFFFFFFF)
	buf = append(buf, sentinel...)
	return buf
}

// BuildSvodDataFile builds one SVOD data file containing a GDFX header at
// baseAddress and a root directory sector at sector rootSector (with
// data_block_offset=0 and the given prologueOffset), followed by
// extraTrailingBytes zero bytes after the directory sector.
func BuildSvodDataFile(
	baseAddress int64,
	prologueOffset int64,
	rootSector uint32,
	directoryBytes []byte,
	extraTrailingBytes int,
) []byte {
	const sectorSize = 0x800
	const sectorsPerHashTable = 0x198

	// Mirror svod's hashTableBytes rule for true_sector = rootSector.
	trueSector := int64(rootSector)
	tables := trueSector/sectorsPerHashTable + 1
	hashBytes := tables * 0x1000

	directoryOffset := trueSector*sectorSize + prologueOffset + hashBytes
	size := directoryOffset + sectorSize + int64(extraTrailingBytes)
	if size < baseAddress+int64(len(gdfxMagic)+16) {
		size = baseAddress + int64(len(gdfxMagic)+16)
	}

	buf := make([]byte, size)
	copy(buf[baseAddress:], gdfxMagic)
	binary.BigEndian.PutUint32(buf[baseAddress+int64(len(gdfxMagic)):], rootSector)
	binary.BigEndian.PutUint32(buf[baseAddress+int64(len(gdfxMagic))+4:], uint32(len(directoryBytes)))

	copy(buf[directoryOffset:], directoryBytes)
	return buf
}
