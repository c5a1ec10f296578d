package fatx

import (
	"sort"

	"github.com/halprin/xfatx/multifileio"
	"github.com/halprin/xfatx/xerrors"
)

// IndexableMultiFileIO implements multifileio.IndexableMultiFileIO over a
// set of FATX files living in one directory entry, so an SVOD volume
// stored on FATX media (rather than a native directory) can be read
// through the same interface as multifileio.Local.
type IndexableMultiFileIO struct {
	entries   []*FatxFileEntry
	fileIndex int
	view      *IO
}

// NewIndexableMultiFileIO lists dir's children, sorts them by name (the
// same order a native directory listing would produce for SVOD's
// sequential data files), and prepares them for indexed access. An empty
// directory fails with EmptyVolume.
func NewIndexableMultiFileIO(dir *FatxFileEntry) (*IndexableMultiFileIO, error) {
	children, err := ListDirectory(dir)
	if err != nil {
		return nil, err
	}

	var files []*FatxFileEntry
	for _, child := range children {
		if !child.IsDirectory() {
			files = append(files, child)
		}
	}
	if len(files) == 0 {
		return nil, xerrors.New(xerrors.EmptyVolume).WithMessage(dir.Name)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })

	return &IndexableMultiFileIO{entries: files, fileIndex: -1}, nil
}

func (m *IndexableMultiFileIO) FileCount() int {
	return len(m.entries)
}

func (m *IndexableMultiFileIO) CurrentFileIndex() int {
	return m.fileIndex
}

func (m *IndexableMultiFileIO) Position() int64 {
	if m.view == nil {
		return 0
	}
	return m.view.Position()
}

func (m *IndexableMultiFileIO) openFile(fileIndex int) error {
	if fileIndex < 0 || fileIndex >= len(m.entries) {
		return xerrors.Newf(xerrors.OutOfRange, "file index %d not in [0, %d)", fileIndex, len(m.entries))
	}
	view, err := NewIO(m.entries[fileIndex])
	if err != nil {
		return err
	}
	m.view = view
	m.fileIndex = fileIndex
	return nil
}

func (m *IndexableMultiFileIO) SetPosition(offset int64, fileIndex int) error {
	if fileIndex == multifileio.CurrentFile {
		fileIndex = m.fileIndex
	}
	if fileIndex != m.fileIndex || m.view == nil {
		if err := m.openFile(fileIndex); err != nil {
			return err
		}
	}
	return m.view.SetPosition(offset)
}

func (m *IndexableMultiFileIO) CurrentFileLength() (int64, error) {
	if m.view == nil {
		return 0, xerrors.New(xerrors.OutOfRange).WithMessage("no file open")
	}
	return m.view.CurrentFileLength(), nil
}

func (m *IndexableMultiFileIO) ReadBytes(length int) ([]byte, error) {
	result := make([]byte, 0, length)
	remaining := length

	for remaining > 0 {
		currentLen, err := m.CurrentFileLength()
		if err != nil {
			return result, err
		}
		if m.view.Position() >= currentLen {
			if err := m.advanceFile(); err != nil {
				return result, err
			}
			currentLen, err = m.CurrentFileLength()
			if err != nil {
				return result, err
			}
		}

		available := currentLen - m.view.Position()
		chunk := remaining
		if int64(chunk) > available {
			chunk = int(available)
		}

		data, err := m.view.ReadBytes(chunk)
		if err != nil {
			return result, err
		}
		result = append(result, data...)
		remaining -= chunk
	}
	return result, nil
}

func (m *IndexableMultiFileIO) WriteBytes(data []byte) error {
	remaining := data

	for len(remaining) > 0 {
		currentLen, err := m.CurrentFileLength()
		if err != nil {
			return err
		}
		if m.view.Position() >= currentLen {
			if err := m.advanceFile(); err != nil {
				return err
			}
			currentLen, err = m.CurrentFileLength()
			if err != nil {
				return err
			}
		}

		available := currentLen - m.view.Position()
		chunk := remaining
		if int64(len(chunk)) > available {
			chunk = remaining[:available]
		}

		if err := m.view.WriteBytes(chunk); err != nil {
			return err
		}
		remaining = remaining[len(chunk):]
	}
	return nil
}

func (m *IndexableMultiFileIO) advanceFile() error {
	next := m.fileIndex + 1
	if next >= len(m.entries) {
		return xerrors.New(xerrors.OutOfRange).WithMessage("read past last data file")
	}
	return m.SetPosition(0, next)
}

func (m *IndexableMultiFileIO) Close() error {
	return nil
}

func (m *IndexableMultiFileIO) Flush() error {
	return m.entries[0].Partition.Device().Flush()
}
