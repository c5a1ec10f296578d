package multifileio

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/halprin/xfatx/xerrors"
)

// Local is an IndexableMultiFileIO backed by native files in a single
// directory, enumerated once at construction in name order.
type Local struct {
	dir        string
	names      []string
	fileIndex  int
	position   int64
	currentLen int64
	handle     *os.File
}

// NewLocal enumerates the non-directory entries of dir and opens none of
// them yet. An unreadable directory fails with DirectoryMissing; an empty
// one fails with EmptyVolume.
func NewLocal(dir string) (*Local, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.DirectoryMissing, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	if len(names) == 0 {
		return nil, xerrors.New(xerrors.EmptyVolume).WithMessage(dir)
	}
	sort.Strings(names)

	return &Local{dir: dir, names: names, fileIndex: -1}, nil
}

func (l *Local) FileCount() int {
	return len(l.names)
}

func (l *Local) CurrentFileIndex() int {
	return l.fileIndex
}

func (l *Local) Position() int64 {
	return l.position
}

// openFile switches the currently open handle to fileIndex, closing the
// previous one.
func (l *Local) openFile(fileIndex int) error {
	if fileIndex < 0 || fileIndex >= len(l.names) {
		return xerrors.Newf(xerrors.OutOfRange, "file index %d not in [0, %d)", fileIndex, len(l.names))
	}
	if l.handle != nil {
		if err := l.handle.Close(); err != nil {
			return xerrors.Wrap(xerrors.IoFailure, err)
		}
	}

	path := filepath.Join(l.dir, l.names[fileIndex])
	handle, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return xerrors.Wrap(xerrors.IoFailure, err)
	}
	info, err := handle.Stat()
	if err != nil {
		return xerrors.Wrap(xerrors.IoFailure, err)
	}

	l.handle = handle
	l.fileIndex = fileIndex
	l.currentLen = info.Size()
	return nil
}

// SetPosition switches to fileIndex (unless CurrentFile) and seeks to
// offset. Seeking to exactly CurrentFileLength() is permitted; beyond it
// fails with OutOfRange.
func (l *Local) SetPosition(offset int64, fileIndex int) error {
	if fileIndex == CurrentFile {
		fileIndex = l.fileIndex
	}
	if fileIndex != l.fileIndex || l.handle == nil {
		if err := l.openFile(fileIndex); err != nil {
			return err
		}
	}

	if offset > l.currentLen {
		return xerrors.Newf(xerrors.OutOfRange, "offset %d exceeds file length %d", offset, l.currentLen)
	}
	if _, err := l.handle.Seek(offset, os.SEEK_SET); err != nil {
		return xerrors.Wrap(xerrors.IoFailure, err)
	}
	l.position = offset
	return nil
}

func (l *Local) CurrentFileLength() (int64, error) {
	if l.handle == nil {
		return 0, xerrors.New(xerrors.OutOfRange).WithMessage("no file open")
	}
	return l.currentLen, nil
}

// ReadBytes reads length bytes, crossing into subsequent files when the
// current one is exhausted. Reading past the last file fails with
// OutOfRange.
func (l *Local) ReadBytes(length int) ([]byte, error) {
	result := make([]byte, 0, length)
	remaining := length

	for remaining > 0 {
		if l.position >= l.currentLen {
			if err := l.advanceFile(); err != nil {
				return result, err
			}
		}

		available := l.currentLen - l.position
		chunk := int64(remaining)
		if chunk > available {
			chunk = available
		}

		buf := make([]byte, chunk)
		n, err := l.handle.Read(buf)
		if err != nil {
			return result, xerrors.Wrap(xerrors.IoFailure, err)
		}
		result = append(result, buf[:n]...)
		l.position += int64(n)
		remaining -= n
	}
	return result, nil
}

// WriteBytes writes data, crossing into subsequent files when the current
// one is exhausted.
func (l *Local) WriteBytes(data []byte) error {
	remaining := data

	for len(remaining) > 0 {
		if l.position >= l.currentLen {
			if err := l.advanceFile(); err != nil {
				return err
			}
		}

		available := l.currentLen - l.position
		chunk := remaining
		if int64(len(chunk)) > available {
			chunk = remaining[:available]
		}

		n, err := l.handle.Write(chunk)
		if err != nil {
			return xerrors.Wrap(xerrors.IoFailure, err)
		}
		l.position += int64(n)
		remaining = remaining[n:]
	}
	return nil
}

func (l *Local) advanceFile() error {
	next := l.fileIndex + 1
	if next >= len(l.names) {
		return xerrors.New(xerrors.OutOfRange).WithMessage("read past last file")
	}
	return l.SetPosition(0, next)
}

func (l *Local) Close() error {
	if l.handle == nil {
		return nil
	}
	err := l.handle.Close()
	l.handle = nil
	if err != nil {
		return xerrors.Wrap(xerrors.IoFailure, err)
	}
	return nil
}

func (l *Local) Flush() error {
	if l.handle == nil {
		return nil
	}
	if err := l.handle.Sync(); err != nil {
		return xerrors.Wrap(xerrors.IoFailure, err)
	}
	return nil
}
