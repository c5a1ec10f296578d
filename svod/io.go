package svod

import (
	"github.com/halprin/xfatx/xerrors"
)

// IO is a file-like view over one GdfxFileEntry. It owns no resources;
// closing it never touches the underlying Volume or its Files
// collaborator.
type IO struct {
	volume   *Volume
	entry    *GdfxFileEntry
	position int64
}

// NewIO opens a view over entry within v.
func NewIO(v *Volume, entry *GdfxFileEntry) *IO {
	return &IO{volume: v, entry: entry}
}

// Position returns the current file-relative byte offset.
func (s *IO) Position() int64 {
	return s.position
}

// SetPosition repositions the view. Seeking to exactly Size succeeds;
// beyond it fails with OutOfRange.
func (s *IO) SetPosition(offset int64) error {
	if offset > int64(s.entry.Size) {
		return xerrors.Newf(xerrors.OutOfRange, "position %d exceeds size %d", offset, s.entry.Size)
	}
	s.position = offset
	return nil
}

// seekUnderlying maps the current position to a sector and offset within
// it, and positions the volume's Files collaborator there.
func (s *IO) seekUnderlying() (sectorRemaining int64, err error) {
	sector := s.entry.Sector + uint32(s.position/SectorSize)
	offsetInSector := s.position % SectorSize

	fileIndex, fileOffset, err := s.volume.SectorToOffset(sector)
	if err != nil {
		return 0, err
	}
	if err := s.volume.Files.SetPosition(fileOffset+offsetInSector, fileIndex); err != nil {
		return 0, err
	}

	return SectorSize - offsetInSector, nil
}

// ReadBytes reads length bytes, remapping through SectorToOffset every
// time the position crosses a sector boundary (and therefore, every
// SectorsPerHashTable sectors, a hash-table gap in the data file).
func (s *IO) ReadBytes(length int) ([]byte, error) {
	if s.position+int64(length) > int64(s.entry.Size) {
		return nil, xerrors.New(xerrors.OutOfRange).WithMessage("read past end of entry")
	}

	result := make([]byte, 0, length)
	remaining := length

	for remaining > 0 {
		sectorRemaining, err := s.seekUnderlying()
		if err != nil {
			return result, err
		}

		chunk := int64(remaining)
		if chunk > sectorRemaining {
			chunk = sectorRemaining
		}

		data, err := s.volume.Files.ReadBytes(int(chunk))
		if err != nil {
			return result, err
		}
		result = append(result, data...)
		s.position += chunk
		remaining -= int(chunk)
	}
	return result, nil
}

// WriteBytes writes data, remapping at every sector boundary the same way
// ReadBytes does.
func (s *IO) WriteBytes(data []byte) error {
	if s.position+int64(len(data)) > int64(s.entry.Size) {
		return xerrors.New(xerrors.OutOfRange).WithMessage("write past end of entry")
	}

	remaining := data
	for len(remaining) > 0 {
		sectorRemaining, err := s.seekUnderlying()
		if err != nil {
			return err
		}

		chunk := remaining
		if int64(len(chunk)) > sectorRemaining {
			chunk = remaining[:sectorRemaining]
		}

		if err := s.volume.Files.WriteBytes(chunk); err != nil {
			return err
		}
		s.position += int64(len(chunk))
		remaining = remaining[len(chunk):]
	}
	return nil
}
