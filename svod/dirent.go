package svod

import (
	"encoding/binary"
	"sort"

	"github.com/halprin/xfatx/xerrors"
)

const (
	// AttrDirectory is bit 4 of a GDFX entry's attributes byte.
	AttrDirectory = 0x10

	// direntFixedSize is left_child(2) + right_child(2) + sector(4) +
	// size(4) + attributes(1) + name_len(1).
	direntFixedSize = 14

	endOfSectorSentinel = 0xFFFFFFFF
)

// GdfxFileEntry is one file or directory record in an SVOD volume's
// directory tree.
type GdfxFileEntry struct {
	Name       string
	NameLen    uint8
	Attributes uint8
	Sector     uint32
	Size       uint32
	Address    int64 // byte offset of this entry's record in the volume
	FileIndex  int   // which data file holds the entry record
	FilePath   string
	Files      []*GdfxFileEntry
}

// IsDirectory reports whether bit 4 of Attributes is set.
func (e *GdfxFileEntry) IsDirectory() bool {
	return e.Attributes&AttrDirectory != 0
}

func decodeGdfxEntry(data []byte, fileIndex int, address int64) (entry *GdfxFileEntry, consumed int, end bool, err error) {
	if len(data) < 4 {
		return nil, 0, false, xerrors.New(xerrors.IoFailure).WithMessage("short GDFX entry buffer")
	}
	if binary.BigEndian.Uint32(data[0:4]) == endOfSectorSentinel {
		return nil, 4, true, nil
	}
	if len(data) < direntFixedSize {
		return nil, 0, false, xerrors.New(xerrors.IoFailure).WithMessage("short GDFX entry record")
	}

	sector := binary.BigEndian.Uint32(data[4:8])
	size := binary.BigEndian.Uint32(data[8:12])
	attributes := data[12]
	nameLen := data[13]

	total := direntFixedSize + int(nameLen)
	if len(data) < total {
		return nil, 0, false, xerrors.New(xerrors.IoFailure).WithMessage("short GDFX entry name")
	}
	name := string(data[direntFixedSize:total])

	padded := roundUp4(total)

	return &GdfxFileEntry{
		Name:       name,
		NameLen:    nameLen,
		Attributes: attributes,
		Sector:     sector,
		Size:       size,
		Address:    address,
		FileIndex:  fileIndex,
	}, padded, false, nil
}

func roundUp4(n int) int {
	if n%4 == 0 {
		return n
	}
	return n + (4 - n%4)
}

// ListDirectory reads dir's sector(s), decoding entries until the
// end-of-sector sentinel, advancing to the next sector while dir.Size
// allows more, and sorts the result directories-first then ascending by
// name so path lookups can descend deterministically.
func ListDirectory(v *Volume, dir *GdfxFileEntry) ([]*GdfxFileEntry, error) {
	if dir.Files != nil {
		return dir.Files, nil
	}

	sectorCount := (dir.Size + SectorSize - 1) / SectorSize
	if sectorCount == 0 {
		sectorCount = 1
	}

	var children []*GdfxFileEntry

	for s := uint32(0); s < sectorCount; s++ {
		fileIndex, offset, err := v.SectorToOffset(dir.Sector + s)
		if err != nil {
			return nil, err
		}
		if err := v.Files.SetPosition(offset, fileIndex); err != nil {
			return nil, err
		}

		sectorData, err := v.Files.ReadBytes(SectorSize)
		if err != nil {
			return nil, err
		}

		position := 0
		for position < len(sectorData) {
			entryAddress := offset + int64(position)
			entry, consumed, end, err := decodeGdfxEntry(sectorData[position:], fileIndex, entryAddress)
			if err != nil {
				return nil, err
			}
			if end {
				break
			}
			entry.FilePath = dir.FilePath
			children = append(children, entry)
			position += consumed
		}
	}

	sort.Slice(children, func(i, j int) bool {
		iDir, jDir := children[i].IsDirectory(), children[j].IsDirectory()
		if iDir != jDir {
			return iDir
		}
		return children[i].Name < children[j].Name
	})

	for _, child := range children {
		if child.IsDirectory() {
			child.FilePath = JoinPath(dir.FilePath, child.Name) + "/"
		}
	}

	dir.Files = children
	return children, nil
}

// GetFileEntry resolves an absolute '/'-separated path, failing explicitly
// with NotFound when a component is missing (the source's GetFileEntry
// falls off the end of control flow in this case).
func GetFileEntry(v *Volume, absolutePath string) (*GdfxFileEntry, error) {
	current := v.Root
	for _, component := range splitPath(absolutePath) {
		children, err := ListDirectory(v, current)
		if err != nil {
			return nil, err
		}

		var next *GdfxFileEntry
		for _, child := range children {
			if child.Name == component {
				next = child
				break
			}
		}
		if next == nil {
			return nil, xerrors.New(xerrors.NotFound).WithMessage(absolutePath)
		}
		current = next
	}
	return current, nil
}

func splitPath(p string) []string {
	var parts []string
	start := 0
	for i := 0; i <= len(p); i++ {
		if i == len(p) || p[i] == '/' {
			if i > start {
				parts = append(parts, p[start:i])
			}
			start = i + 1
		}
	}
	return parts
}
