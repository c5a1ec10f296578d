package fatx

import (
	"encoding/binary"
	"time"

	"github.com/halprin/xfatx/xerrors"
	"github.com/noxer/bytewriter"
)

const (
	// EntrySize is the size, in bytes, of one on-disk FATX directory entry
	// record.
	EntrySize = 0x40
	// MaxNameLength is the longest name a FatxFileEntry can carry.
	MaxNameLength = 42

	// NameLenEndOfDirectory terminates a directory's cluster of entries.
	NameLenEndOfDirectory = 0xFF
	// NameLenDeleted marks an entry as deleted; it is skipped during listing.
	NameLenDeleted = 0xE5

	// AttrDirectory is bit 4 of file_attributes.
	AttrDirectory = 0x10
)

// packTimestamp converts a time.Time into the MS-DOS packed 32-bit date/time
// value FATX stores for created/written/accessed fields: bits 31-25 year
// since 1980, 24-21 month, 20-16 day, 15-11 hour, 10-5 minute, 4-0
// seconds/2.
func packTimestamp(t time.Time) uint32 {
	if t.IsZero() {
		return 0
	}
	year := uint32(t.Year() - 1980)
	return (year << 25) |
		(uint32(t.Month()) << 21) |
		(uint32(t.Day()) << 16) |
		(uint32(t.Hour()) << 11) |
		(uint32(t.Minute()) << 5) |
		(uint32(t.Second()) / 2)
}

// unpackTimestamp is the inverse of packTimestamp.
func unpackTimestamp(value uint32) time.Time {
	if value == 0 {
		return time.Time{}
	}
	second := int(value&0x1F) * 2
	minute := int((value >> 5) & 0x3F)
	hour := int((value >> 11) & 0x1F)
	day := int((value >> 16) & 0x1F)
	month := time.Month((value >> 21) & 0x0F)
	year := int((value>>25)&0x7F) + 1980
	return time.Date(year, month, day, hour, minute, second, 0, time.UTC)
}

// FatxFileEntry is one file or directory record within a FATX volume's
// directory tree.
type FatxFileEntry struct {
	Name             string
	NameLen          uint8
	FileAttributes   uint8
	StartingCluster  uint32
	FileSize         uint32
	Created          time.Time
	Written          time.Time
	Accessed         time.Time
	Address          int64
	Partition        *Partition
	ClusterChain     []uint32
	Children         []*FatxFileEntry
	deleted          bool
}

// IsDirectory reports whether bit 4 of FileAttributes is set.
func (e *FatxFileEntry) IsDirectory() bool {
	return e.FileAttributes&AttrDirectory != 0
}

// IsDeleted reports whether this entry's name_len byte is the deleted
// sentinel.
func (e *FatxFileEntry) IsDeleted() bool {
	return e.deleted
}

// Delete marks entry as deleted by rewriting its on-disk record with
// name_len = NameLenDeleted; every other field (name bytes, cluster chain,
// size, timestamps) is left untouched, so a later undelete tool could still
// recover them. The in-memory entry is marked deleted immediately; callers
// holding a cached directory listing should re-list to see it dropped.
func (e *FatxFileEntry) Delete() error {
	e.NameLen = NameLenDeleted
	e.deleted = true

	encoded, err := EncodeFatxEntry(e)
	if err != nil {
		return err
	}
	return e.Partition.Device().WriteAt(e.Address, encoded)
}

// decodeFatxEntry parses one 0x40-byte record. ok is false (with no error)
// when name_len signals end-of-directory, so callers can stop listing.
func decodeFatxEntry(data []byte, address int64, partition *Partition) (entry *FatxFileEntry, ok bool, err error) {
	if len(data) < EntrySize {
		return nil, false, xerrors.Newf(xerrors.IoFailure, "short directory entry record: %d bytes", len(data))
	}

	nameLen := data[0]
	if nameLen == NameLenEndOfDirectory {
		return nil, false, nil
	}

	attrs := data[1]
	rawName := data[2 : 2+MaxNameLength]

	deleted := nameLen == NameLenDeleted
	effectiveLen := nameLen
	if deleted {
		// The true length is unknown once deleted; use the full padded
		// region up to the first 0xFF pad byte.
		effectiveLen = MaxNameLength
		for i, b := range rawName {
			if b == 0xFF {
				effectiveLen = uint8(i)
				break
			}
		}
	}
	if effectiveLen > MaxNameLength {
		return nil, false, xerrors.Newf(xerrors.NameTooLong, "name_len %d exceeds %d", effectiveLen, MaxNameLength)
	}

	name := string(rawName[:effectiveLen])

	startingCluster := beUint32(data[44:48])
	fileSize := beUint32(data[48:52])
	created := beUint32(data[52:56])
	written := beUint32(data[56:60])
	accessed := beUint32(data[60:64])

	return &FatxFileEntry{
		Name:            name,
		NameLen:         nameLen,
		FileAttributes:  attrs,
		StartingCluster: startingCluster,
		FileSize:        fileSize,
		Created:         unpackTimestamp(created),
		Written:         unpackTimestamp(written),
		Accessed:        unpackTimestamp(accessed),
		Address:         address,
		Partition:       partition,
		deleted:         deleted,
	}, true, nil
}

// EncodeFatxEntry serializes an entry to its 0x40-byte on-disk record using
// a bounded writer so an oversized name can never overrun the buffer.
func EncodeFatxEntry(e *FatxFileEntry) ([]byte, error) {
	if len(e.Name) > MaxNameLength {
		return nil, xerrors.Newf(xerrors.NameTooLong, "name %q exceeds %d bytes", e.Name, MaxNameLength)
	}

	buf := make([]byte, EntrySize)
	// bytewriter bounds every Write() to buf's length, so a coding mistake
	// above can never write past the 0x40-byte record.
	w := bytewriter.New(buf)

	nameLen := e.NameLen
	if !e.deleted {
		nameLen = uint8(len(e.Name))
	}
	w.Write([]byte{nameLen, e.FileAttributes})

	namePadded := make([]byte, MaxNameLength)
	for i := range namePadded {
		namePadded[i] = 0xFF
	}
	copy(namePadded, e.Name)
	w.Write(namePadded)

	binary.Write(w, binary.BigEndian, e.StartingCluster)
	binary.Write(w, binary.BigEndian, e.FileSize)
	binary.Write(w, binary.BigEndian, packTimestamp(e.Created))
	binary.Write(w, binary.BigEndian, packTimestamp(e.Written))
	binary.Write(w, binary.BigEndian, packTimestamp(e.Accessed))

	return buf, nil
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
