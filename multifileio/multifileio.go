// Package multifileio presents an ordered sequence of files as one indexed
// address space addressed by (file_index, offset_in_file). SVOD volumes
// consume any value satisfying IndexableMultiFileIO, whether its files live
// in a native directory (Local) or inside a FATX partition.
package multifileio

// IndexableMultiFileIO is the capability set SVOD needs from its underlying
// file collection: positioned reads and writes that transparently advance
// to the next file when the current one is exhausted.
type IndexableMultiFileIO interface {
	// SetPosition opens fileIndex (if distinct from the currently open
	// file, closing the previous handle) and seeks to offset within it.
	// Pass CurrentFile to keep the currently open file.
	SetPosition(offset int64, fileIndex int) error
	// Position returns the offset within the currently open file.
	Position() int64
	// CurrentFileIndex returns the index of the currently open file.
	CurrentFileIndex() int
	// ReadBytes reads length bytes, spanning into subsequent files
	// transparently.
	ReadBytes(length int) ([]byte, error)
	// WriteBytes writes data, spanning into subsequent files transparently.
	WriteBytes(data []byte) error
	// CurrentFileLength returns the byte length of the currently open file.
	CurrentFileLength() (int64, error)
	// FileCount returns the fixed number of files in the collection.
	FileCount() int
	Close() error
	Flush() error
}

// CurrentFile tells SetPosition to keep whichever file is already open.
const CurrentFile = -1
