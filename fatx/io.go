package fatx

import (
	"io"

	"github.com/halprin/xfatx/xerrors"
)

// ProgressCallback reports progress as done out of total steps, invoked at
// most 100 times plus once at completion.
type ProgressCallback func(done, total int)

// IO is a file-like view over one FatxFileEntry's cluster chain. It does
// not own the entry, the partition, or the device; closing an IO is a
// no-op on all of them.
type IO struct {
	entry              *FatxFileEntry
	position           int64
	maxReadConsecutive int64
}

// NewIO opens a view over entry, loading its cluster chain if it hasn't
// been read yet.
func NewIO(entry *FatxFileEntry) (*IO, error) {
	if entry.StartingCluster != 0 && entry.ClusterChain == nil {
		chain, err := entry.Partition.ReadChain(entry.StartingCluster)
		if err != nil {
			return nil, err
		}
		entry.ClusterChain = chain
	}
	view := &IO{entry: entry}
	if err := view.SetPosition(0); err != nil && entry.FileSize > 0 {
		return nil, err
	}
	return view, nil
}

// SetPosition repositions the view to a file-relative byte offset,
// translating it into the owning cluster and the consecutive-byte budget
// before the next cluster boundary. Seeking to exactly FileSize succeeds
// (a subsequent read then fails); seeking past FileSize fails with
// OutOfRange unless the entry is a directory.
func (f *IO) SetPosition(offset int64) error {
	limit := int64(f.entry.FileSize)
	if f.entry.IsDirectory() {
		limit = int64(len(f.entry.ClusterChain)) * int64(f.entry.Partition.ClusterSize)
	}
	if offset > limit {
		return xerrors.Newf(xerrors.OutOfRange, "position %d exceeds size %d", offset, limit)
	}

	f.position = offset
	if offset == limit {
		f.maxReadConsecutive = 0
		return nil
	}

	clusterSize := int64(f.entry.Partition.ClusterSize)
	clusterIndex := offset / clusterSize
	if clusterIndex >= int64(len(f.entry.ClusterChain)) {
		return xerrors.Newf(xerrors.BadChain, "position %d has no backing cluster", offset)
	}

	f.maxReadConsecutive = clusterSize - (offset % clusterSize)
	return nil
}

// Position returns the current file-relative offset.
func (f *IO) Position() int64 {
	return f.position
}

// CurrentFileLength returns the entry's declared size.
func (f *IO) CurrentFileLength() int64 {
	return int64(f.entry.FileSize)
}

func (f *IO) deviceOffset() (int64, error) {
	clusterSize := int64(f.entry.Partition.ClusterSize)
	clusterIndex := f.position / clusterSize
	if clusterIndex >= int64(len(f.entry.ClusterChain)) {
		return 0, xerrors.Newf(xerrors.BadChain, "position %d has no backing cluster", f.position)
	}
	cluster := f.entry.ClusterChain[clusterIndex]
	return f.entry.Partition.ClusterOffset(cluster) + (f.position % clusterSize), nil
}

// ReadBytes reads up to length bytes starting at the current position,
// crossing cluster boundaries transparently.
func (f *IO) ReadBytes(length int) ([]byte, error) {
	result := make([]byte, 0, length)
	remaining := length

	for remaining > 0 {
		if f.maxReadConsecutive == 0 {
			return result, xerrors.New(xerrors.OutOfRange).WithMessage("read past end of file")
		}

		chunk := remaining
		if int64(chunk) > f.maxReadConsecutive {
			chunk = int(f.maxReadConsecutive)
		}

		offset, err := f.deviceOffset()
		if err != nil {
			return result, err
		}
		data, err := f.entry.Partition.Device().ReadAt(offset, chunk)
		if err != nil {
			return result, err
		}
		result = append(result, data...)
		remaining -= chunk

		if err := f.SetPosition(f.position + int64(chunk)); err != nil {
			if remaining > 0 {
				return result, err
			}
		}
	}
	return result, nil
}

// WriteBytes writes data starting at the current position, crossing
// cluster boundaries transparently. The caller must have already grown the
// chain with AllocateMemory if the write extends past the current chain.
func (f *IO) WriteBytes(data []byte) error {
	remaining := data

	for len(remaining) > 0 {
		if f.maxReadConsecutive == 0 {
			return xerrors.New(xerrors.OutOfRange).WithMessage("write past end of allocated chain")
		}

		chunk := remaining
		if int64(len(chunk)) > f.maxReadConsecutive {
			chunk = remaining[:f.maxReadConsecutive]
		}

		offset, err := f.deviceOffset()
		if err != nil {
			return err
		}
		if err := f.entry.Partition.Device().WriteAt(offset, chunk); err != nil {
			return err
		}

		remaining = remaining[len(chunk):]
		if err := f.SetPosition(f.position + int64(len(chunk))); err != nil {
			if len(remaining) > 0 {
				return err
			}
		}
	}
	return nil
}

// AllocateMemory extends the entry by whole clusters so it can hold at
// least byteAmount additional bytes, updates the chain map, and (for
// regular files) grows FileSize and rewrites the entry record.
func (f *IO) AllocateMemory(byteAmount int64) error {
	clusterSize := int64(f.entry.Partition.ClusterSize)
	currentSize := int64(f.entry.FileSize)
	if f.entry.IsDirectory() {
		currentSize = int64(len(f.entry.ClusterChain)) * clusterSize
	}

	neededClusters := ceilDiv(currentSize+byteAmount, clusterSize) - int64(len(f.entry.ClusterChain))
	if neededClusters <= 0 {
		if !f.entry.IsDirectory() {
			f.entry.FileSize += uint32(byteAmount)
			return f.writeEntryRecord(nil)
		}
		return nil
	}

	newClusters, err := f.entry.Partition.AllocateClusters(uint32(neededClusters))
	if err != nil {
		return err
	}

	wasEmpty := len(f.entry.ClusterChain) == 0
	relink := newClusters
	if !wasEmpty {
		relink = append([]uint32{f.entry.ClusterChain[len(f.entry.ClusterChain)-1]}, newClusters...)
	}
	if err := f.entry.Partition.WriteChainLinks(relink); err != nil {
		return err
	}

	f.entry.ClusterChain = append(f.entry.ClusterChain, newClusters...)
	if wasEmpty {
		f.entry.StartingCluster = f.entry.ClusterChain[0]
	}

	if !f.entry.IsDirectory() {
		f.entry.FileSize += uint32(byteAmount)
	}
	return f.writeEntryRecord(nil)
}

func ceilDiv(a, b int64) int64 {
	return (a + b - 1) / b
}

// writeEntryRecord serializes the entry and writes it to its on-disk
// Address. If newChain is non-nil, the previous chain is cleared in the
// chain map first, matching the write-entry-to-disk ordering: chain map
// before the entry record.
func (f *IO) writeEntryRecord(newChain []uint32) error {
	if newChain != nil {
		if err := f.entry.Partition.ClearChainLinks(f.entry.ClusterChain); err != nil {
			return err
		}
		if err := f.entry.Partition.WriteChainLinks(newChain); err != nil {
			return err
		}
		f.entry.ClusterChain = newChain
		f.entry.StartingCluster = newChain[0]
	}

	encoded, err := EncodeFatxEntry(f.entry)
	if err != nil {
		return err
	}
	return f.entry.Partition.Device().WriteAt(f.entry.Address, encoded)
}

// clampBufferSize is the read-range size SaveFile uses: file_size/16
// clamped to [64 KiB, 1 MiB].
func clampBufferSize(fileSize int64) int64 {
	size := fileSize / 16
	if size < 64*1024 {
		size = 64 * 1024
	}
	if size > 1024*1024 {
		size = 1024 * 1024
	}
	return size
}

// contiguousRun describes one physically contiguous run of clusters in a
// chain, as a device byte range.
type contiguousRun struct {
	offset int64
	length int64
}

// coalesceRuns merges physically-adjacent clusters in chain into the
// fewest possible contiguous device ranges.
func coalesceRuns(chain []uint32, partition *Partition) []contiguousRun {
	if len(chain) == 0 {
		return nil
	}
	clusterSize := int64(partition.ClusterSize)

	var runs []contiguousRun
	runStart := chain[0]
	runLen := uint32(1)

	flush := func(start uint32, length uint32) {
		runs = append(runs, contiguousRun{
			offset: partition.ClusterOffset(start),
			length: int64(length) * clusterSize,
		})
	}

	for i := 1; i < len(chain); i++ {
		if chain[i] == chain[i-1]+1 {
			runLen++
			continue
		}
		flush(runStart, runLen)
		runStart = chain[i]
		runLen = 1
	}
	flush(runStart, runLen)
	return runs
}

// SaveFile streams the entry's bytes to dst by coalescing contiguous
// cluster ranges into large reads, invoking progress as ranges complete:
// at most 100 evenly spaced times, the last one after the final range.
func SaveFile(entry *FatxFileEntry, dst io.Writer, progress ProgressCallback) error {
	if entry.ClusterChain == nil && entry.StartingCluster != 0 {
		chain, err := entry.Partition.ReadChain(entry.StartingCluster)
		if err != nil {
			return err
		}
		entry.ClusterChain = chain
	}

	runs := coalesceRuns(entry.ClusterChain, entry.Partition)
	fileSize := int64(entry.FileSize)
	bufferCap := clampBufferSize(fileSize)

	var written int64
	device := entry.Partition.Device()
	lastStep := 0

	for i, run := range runs {
		remaining := run.length
		offset := run.offset

		// Truncate the tail of the final run to the real file size.
		bytesLeftInFile := fileSize - written
		if remaining > bytesLeftInFile {
			remaining = bytesLeftInFile
		}

		for remaining > 0 {
			chunk := bufferCap
			if chunk > remaining {
				chunk = remaining
			}
			data, err := device.ReadAt(offset, int(chunk))
			if err != nil {
				return err
			}
			if _, err := dst.Write(data); err != nil {
				return xerrors.Wrap(xerrors.IoFailure, err)
			}
			offset += chunk
			remaining -= chunk
			written += chunk
		}

		if progress != nil {
			// step runs 1..100 and reaches 100 only on the final range.
			if step := (i + 1) * 100 / len(runs); step != lastStep {
				progress(i+1, len(runs))
				lastStep = step
			}
		}
	}

	if progress != nil && len(runs) == 0 {
		progress(0, 0)
	}
	return nil
}
