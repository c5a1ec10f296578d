// Package fatx implements the Xbox 360 FATX filesystem: partition mount,
// cluster-chain allocation, directory listing, and a file-like view
// (IO) over a FatxFileEntry's cluster chain.
package fatx

import (
	"encoding/binary"
	"sort"

	"github.com/halprin/xfatx/blockdev"
	"github.com/halprin/xfatx/xerrors"
)

const (
	// Magic is the 4-byte signature at the start of a FATX partition header.
	Magic = 0x58544146 // "XTAF"

	// SectorSize is the fixed sector size FATX clusters are measured in.
	SectorSize = 512

	headerSize = 0x1000

	// clusterCountFat16Threshold is the boundary below which the chain map
	// uses 2-byte cells instead of 4.
	clusterCountFat16Threshold = 0xFFF0

	// FatClusterAvailable marks a free chain-map cell.
	FatClusterAvailable uint32 = 0x00000000
	// FatClusterLast32 is the end-of-chain sentinel for the 32-bit variant.
	FatClusterLast32 uint32 = 0xFFFFFFFF
	// FatClusterLast16 is the end-of-chain sentinel for the 16-bit variant.
	FatClusterLast16 uint32 = 0x0000FFFF

	reservedRangeStart16 uint32 = 0xFFF8
	reservedRangeStart32 uint32 = 0xFFFFFFF8
)

// Partition is a mounted FATX partition: its header fields, the derived
// chain-map geometry, and the ascending free-cluster list built from a
// full chain-map scan at mount.
type Partition struct {
	Address                int64
	Size                   int64
	Serial                 uint32
	ClusterSize            uint32
	ClusterCount           uint32
	ClusterStartingAddress int64
	ClusterEntrySize       uint8
	RootDirectoryCluster   uint32

	// FreeClusters holds the currently unallocated cluster indices in
	// ascending order. AllocateClusters consumes from its head.
	FreeClusters []uint32

	device    *blockdev.Device
	allocator *clusterAllocator
}

// mountPartition reads the partition header at address within device and
// scans the chain map to build the free-cluster list.
func mountPartition(device *blockdev.Device, address int64, size int64) (*Partition, error) {
	magic, err := device.ReadUint32(address)
	if err != nil {
		return nil, err
	}
	if magic != Magic {
		return nil, xerrors.Newf(xerrors.UnsupportedContent, "bad FATX magic 0x%08X", magic)
	}

	serial, err := device.ReadUint32(address + 4)
	if err != nil {
		return nil, err
	}
	sectorsPerCluster, err := device.ReadUint32(address + 8)
	if err != nil {
		return nil, err
	}
	rootCluster, err := device.ReadUint32(address + 12)
	if err != nil {
		return nil, err
	}

	clusterSize := sectorsPerCluster * SectorSize
	if clusterSize == 0 {
		return nil, xerrors.Newf(xerrors.UnsupportedContent, "zero sectors per cluster")
	}

	clusterCount := uint32((size - headerSize) / int64(clusterSize))

	entrySize := uint8(4)
	if clusterCount < clusterCountFat16Threshold {
		entrySize = 2
	}

	// The chain map takes its share of the space after the header; only the
	// remainder holds clusters.
	chainMapBytes := roundUp(int64(clusterCount)*int64(entrySize), 0x1000)
	clusterCount = uint32((size - headerSize - chainMapBytes) / int64(clusterSize))
	if clusterCount < clusterCountFat16Threshold {
		entrySize = 2
	}
	chainMapBytes = roundUp(int64(clusterCount)*int64(entrySize), 0x1000)
	dataStart := address + headerSize + chainMapBytes

	partition := &Partition{
		Address:                address,
		Size:                   size,
		Serial:                 serial,
		ClusterSize:            clusterSize,
		ClusterCount:           clusterCount,
		ClusterStartingAddress: dataStart,
		ClusterEntrySize:       entrySize,
		RootDirectoryCluster:   rootCluster,
		device:                 device,
	}

	if err := partition.scanFreeClusters(); err != nil {
		return nil, err
	}
	return partition, nil
}

func roundUp(value int64, multiple int64) int64 {
	if value%multiple == 0 {
		return value
	}
	return value + (multiple - value%multiple)
}

// chainMapOffset returns the byte offset of the given cluster's chain-map
// cell, relative to the device (not relative to the partition).
func (p *Partition) chainMapOffset(cluster uint32) int64 {
	return p.Address + headerSize + int64(cluster)*int64(p.ClusterEntrySize)
}

// ClusterOffset returns the absolute device offset of the first byte of
// the given 1-based cluster index.
func (p *Partition) ClusterOffset(cluster uint32) int64 {
	return p.ClusterStartingAddress + int64(cluster-1)*int64(p.ClusterSize)
}

// Device returns the block device backing this partition, for use by
// FatxIO and directory listing.
func (p *Partition) Device() *blockdev.Device {
	return p.device
}

// IsEndOfChain reports whether cell is one of the chain-terminator sentinels
// for this partition's cell width.
func (p *Partition) IsEndOfChain(cell uint32) bool {
	if p.ClusterEntrySize == 2 {
		return cell >= reservedRangeStart16 && cell <= 0xFFFF
	}
	return cell >= reservedRangeStart32
}

// IsValidCluster reports whether cluster is in the addressable range
// 1..ClusterCount.
func (p *Partition) IsValidCluster(cluster uint32) bool {
	return cluster >= 1 && cluster <= p.ClusterCount
}

// lastSentinel returns the end-of-chain value to write for this partition's
// cell width.
func (p *Partition) lastSentinel() uint32 {
	if p.ClusterEntrySize == 2 {
		return FatClusterLast16
	}
	return FatClusterLast32
}

func (p *Partition) readCell(cluster uint32) (uint32, error) {
	if p.ClusterEntrySize == 2 {
		cell, err := p.device.ReadUint16(p.chainMapOffset(cluster))
		return uint32(cell), err
	}
	return p.device.ReadUint32(p.chainMapOffset(cluster))
}

func (p *Partition) writeCell(cluster uint32, value uint32) error {
	if p.ClusterEntrySize == 2 {
		return p.device.WriteUint16(p.chainMapOffset(cluster), uint16(value))
	}
	return p.device.WriteUint32(p.chainMapOffset(cluster), value)
}

// scanFreeClusters performs the mount-time first pass over the chain map,
// collecting every cluster whose cell reads as FatClusterAvailable.
func (p *Partition) scanFreeClusters() error {
	p.FreeClusters = nil
	p.allocator = newClusterAllocator(p.ClusterCount)
	for cluster := uint32(1); cluster <= p.ClusterCount; cluster++ {
		cell, err := p.readCell(cluster)
		if err != nil {
			return err
		}
		if cell == FatClusterAvailable {
			p.FreeClusters = append(p.FreeClusters, cluster)
			p.allocator.markFree(cluster)
		}
	}
	return nil
}

// ReadChain walks the chain-map cells starting at head and returns the
// full list of clusters, head first, stopping at the end-of-chain
// sentinel.
func (p *Partition) ReadChain(head uint32) ([]uint32, error) {
	if !p.IsValidCluster(head) {
		return nil, xerrors.Newf(xerrors.BadChain, "invalid starting cluster %d", head)
	}

	var chain []uint32
	current := head
	seen := make(map[uint32]bool)

	for {
		if seen[current] {
			return nil, xerrors.Newf(xerrors.BadChain, "cycle detected at cluster %d", current)
		}
		seen[current] = true
		chain = append(chain, current)

		next, err := p.readCell(current)
		if err != nil {
			return nil, err
		}
		if p.IsEndOfChain(next) {
			break
		}
		if !p.IsValidCluster(next) {
			return nil, xerrors.Newf(xerrors.BadChain, "cluster %d links to invalid cluster 0x%X", current, next)
		}
		current = next
	}
	return chain, nil
}

// AllocateClusters removes count clusters from the head of FreeClusters and
// returns them. It fails with OutOfSpace if there aren't enough.
func (p *Partition) AllocateClusters(count uint32) ([]uint32, error) {
	if uint32(len(p.FreeClusters)) < count {
		return nil, xerrors.Newf(
			xerrors.OutOfSpace, "need %d clusters, only %d free", count, len(p.FreeClusters))
	}
	allocated := append([]uint32(nil), p.FreeClusters[:count]...)
	p.FreeClusters = p.FreeClusters[count:]
	for _, cluster := range allocated {
		p.allocator.markAllocated(cluster)
	}
	return allocated, nil
}

// AllocateContiguousClusters finds and removes a single run of count
// consecutive free clusters, first fit by ascending cluster number. It
// fails with OutOfSpace if no such run exists, even if enough free
// clusters exist in total scattered across the partition.
func (p *Partition) AllocateContiguousClusters(count uint32) ([]uint32, error) {
	start, err := p.allocator.findContiguousRun(count)
	if err != nil {
		return nil, err
	}

	allocated := make([]uint32, count)
	for i := uint32(0); i < count; i++ {
		cluster := start + i
		p.allocator.markAllocated(cluster)
		p.removeFreeCluster(cluster)
		allocated[i] = cluster
	}
	return allocated, nil
}

// removeFreeCluster deletes cluster from the sorted FreeClusters slice.
func (p *Partition) removeFreeCluster(cluster uint32) {
	idx := sort.Search(len(p.FreeClusters), func(i int) bool {
		return p.FreeClusters[i] >= cluster
	})
	if idx < len(p.FreeClusters) && p.FreeClusters[idx] == cluster {
		p.FreeClusters = append(p.FreeClusters[:idx], p.FreeClusters[idx+1:]...)
	}
}

// freeCluster returns cluster to the free list, keeping it sorted
// ascending.
func (p *Partition) freeCluster(cluster uint32) {
	idx := sort.Search(len(p.FreeClusters), func(i int) bool {
		return p.FreeClusters[i] >= cluster
	})
	p.FreeClusters = append(p.FreeClusters, 0)
	copy(p.FreeClusters[idx+1:], p.FreeClusters[idx:])
	p.FreeClusters[idx] = cluster
	p.allocator.markFree(cluster)
}

// WriteChainLinks writes the chain-map cells for chain so each cluster
// points to its successor and the final cluster carries the end-of-chain
// sentinel. It batches I/O per 64 KiB chunk of the chain map, as required
// for fragmented chains.
func (p *Partition) WriteChainLinks(chain []uint32) error {
	if len(chain) == 0 {
		return nil
	}

	type edit struct {
		cluster uint32
		value   uint32
	}
	edits := make([]edit, len(chain))
	for i, cluster := range chain {
		if i == len(chain)-1 {
			edits[i] = edit{cluster, p.lastSentinel()}
		} else {
			edits[i] = edit{cluster, chain[i+1]}
		}
	}
	sort.Slice(edits, func(i, j int) bool { return edits[i].cluster < edits[j].cluster })

	const chunkSize = 0x10000
	i := 0
	for i < len(edits) {
		chunkStart := (int64(edits[i].cluster) * int64(p.ClusterEntrySize)) / chunkSize * chunkSize
		chunkDeviceOffset := p.Address + headerSize + chunkStart

		length := chunkSize
		chunkEnd := chunkStart + chunkSize
		if maxOffset := int64(p.ClusterCount) * int64(p.ClusterEntrySize); chunkEnd > roundUp(maxOffset, 0x1000) {
			length = int(roundUp(maxOffset, 0x1000) - chunkStart)
		}

		buffer, err := p.device.ReadAt(chunkDeviceOffset, length)
		if err != nil {
			return err
		}

		for i < len(edits) {
			cellOffset := int64(edits[i].cluster) * int64(p.ClusterEntrySize)
			if cellOffset >= chunkStart+int64(length) {
				break
			}
			localOffset := cellOffset - chunkStart
			if p.ClusterEntrySize == 2 {
				binary.BigEndian.PutUint16(buffer[localOffset:], uint16(edits[i].value))
			} else {
				binary.BigEndian.PutUint32(buffer[localOffset:], edits[i].value)
			}
			i++
		}

		if err := p.device.WriteAt(chunkDeviceOffset, buffer); err != nil {
			return err
		}
	}
	return nil
}

// ClearChainLinks resets every cell in chain back to FatClusterAvailable and
// returns them to the free list. Used before rewriting a shorter or
// relocated chain.
func (p *Partition) ClearChainLinks(chain []uint32) error {
	for _, cluster := range chain {
		if err := p.writeCell(cluster, FatClusterAvailable); err != nil {
			return err
		}
		p.freeCluster(cluster)
	}
	return nil
}
