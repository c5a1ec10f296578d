package fatx

import (
	"github.com/halprin/xfatx/blockdev"
	"github.com/halprin/xfatx/xerrors"
)

// Volume is a mounted FATX filesystem: a device, its partition header, and
// the root directory's lazily-listed entry tree.
type Volume struct {
	Device    *blockdev.Device
	Partition *Partition
	Root      *FatxFileEntry
}

// Mount opens a FATX partition of size bytes starting at address on device
// and prepares (but does not yet list) the root directory entry.
func Mount(device *blockdev.Device, address int64, size int64) (*Volume, error) {
	partition, err := mountPartition(device, address, size)
	if err != nil {
		return nil, err
	}

	root := &FatxFileEntry{
		Name:            "",
		FileAttributes:  AttrDirectory,
		StartingCluster: partition.RootDirectoryCluster,
		Partition:       partition,
	}

	return &Volume{Device: device, Partition: partition, Root: root}, nil
}

// ListDirectory returns the (possibly cached) children of a directory
// entry, reading its cluster chain and decoding 0x40-byte records until the
// end-of-directory sentinel or the chain is exhausted.
func ListDirectory(entry *FatxFileEntry) ([]*FatxFileEntry, error) {
	if !entry.IsDirectory() {
		return nil, xerrors.New(xerrors.UnsupportedContent).WithMessage("not a directory")
	}
	if entry.Children != nil {
		return entry.Children, nil
	}

	partition := entry.Partition
	var chain []uint32
	if entry.StartingCluster != 0 {
		var err error
		chain, err = partition.ReadChain(entry.StartingCluster)
		if err != nil {
			return nil, err
		}
	}

	var children []*FatxFileEntry
	device := partition.Device()

outer:
	for _, cluster := range chain {
		clusterOffset := partition.ClusterOffset(cluster)
		recordsPerCluster := int(partition.ClusterSize) / EntrySize

		for i := 0; i < recordsPerCluster; i++ {
			recordOffset := clusterOffset + int64(i*EntrySize)
			raw, err := device.ReadAt(recordOffset, EntrySize)
			if err != nil {
				return nil, err
			}

			child, ok, err := decodeFatxEntry(raw, recordOffset, partition)
			if err != nil {
				return nil, err
			}
			if !ok {
				break outer
			}
			if child.IsDeleted() {
				continue
			}
			children = append(children, child)
		}
	}

	entry.Children = children
	return children, nil
}

// Lookup resolves a '/'-separated absolute path starting at root, failing
// with NotFound if any component is missing.
func Lookup(root *FatxFileEntry, path string) (*FatxFileEntry, error) {
	current := root
	for _, component := range splitPath(path) {
		if component == "" {
			continue
		}
		if !current.IsDirectory() {
			return nil, xerrors.New(xerrors.NotFound).WithMessage(path)
		}
		children, err := ListDirectory(current)
		if err != nil {
			return nil, err
		}

		var next *FatxFileEntry
		for _, child := range children {
			if child.Name == component {
				next = child
				break
			}
		}
		if next == nil {
			return nil, xerrors.New(xerrors.NotFound).WithMessage(path)
		}
		current = next
	}
	return current, nil
}

func splitPath(path string) []string {
	var parts []string
	start := 0
	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == '/' {
			if i > start {
				parts = append(parts, path[start:i])
			}
			start = i + 1
		}
	}
	return parts
}
