// Package testimage builds small synthetic FATX and SVOD images in memory
// for use in package tests, the way the teacher's testing package built
// disk images from raw byte slices.
package testimage

import (
	"encoding/binary"
)

const (
	fatxHeaderSize = 0x1000
	fatxMagic      = 0x58544146
)

// FatxImageOptions describes the geometry of a synthetic FATX partition.
type FatxImageOptions struct {
	ClusterSize          uint32
	ClusterCount         uint32
	RootDirectoryEntries []FatxEntrySpec
}

// FatxEntrySpec describes one root-directory entry to pre-populate.
type FatxEntrySpec struct {
	Name            string
	Attributes      uint8
	StartingCluster uint32
	FileSize        uint32
}

func clusterEntrySize(clusterCount uint32) uint32 {
	if clusterCount < 0xFFF0 {
		return 2
	}
	return 4
}

func roundUp(value, multiple uint32) uint32 {
	if value%multiple == 0 {
		return value
	}
	return value + (multiple - value%multiple)
}

// BuildFatxImage produces a complete FATX partition image: header, chain
// map (all free except the root directory's cluster 1, which is marked
// end-of-chain; the clusters named by RootDirectoryEntries are not marked),
// and
// a data area large enough for ClusterCount clusters, with the root
// directory's first cluster populated from RootDirectoryEntries.
func BuildFatxImage(opts FatxImageOptions) []byte {
	entrySize := clusterEntrySize(opts.ClusterCount)
	chainMapBytes := roundUp(opts.ClusterCount*entrySize, 0x1000)
	dataSize := opts.ClusterCount * opts.ClusterSize

	total := fatxHeaderSize + chainMapBytes + dataSize
	image := make([]byte, total)

	binary.BigEndian.PutUint32(image[0:4], fatxMagic)
	binary.BigEndian.PutUint32(image[4:8], 1) // serial
	binary.BigEndian.PutUint32(image[8:12], opts.ClusterSize/512)
	binary.BigEndian.PutUint32(image[12:16], 1) // root directory cluster

	chainMapStart := fatxHeaderSize
	dataStart := fatxHeaderSize + int(chainMapBytes)

	// Mark the root directory's first cluster as end-of-chain.
	writeCell(image[chainMapStart:], entrySize, 1, 0xFFFFFFFF)

	rootClusterOffset := dataStart
	offset := 0
	for _, e := range opts.RootDirectoryEntries {
		record := image[rootClusterOffset+offset : rootClusterOffset+offset+0x40]
		record[0] = byte(len(e.Name))
		record[1] = e.Attributes
		copy(record[2:44], []byte(e.Name))
		for i := 2 + len(e.Name); i < 44; i++ {
			record[i] = 0xFF
		}
		binary.BigEndian.PutUint32(record[44:48], e.StartingCluster)
		binary.BigEndian.PutUint32(record[48:52], e.FileSize)
		offset += 0x40
	}
	if len(opts.RootDirectoryEntries) > 0 {
		image[rootClusterOffset+offset] = 0xFF // end-of-directory sentinel
	}

	return image
}

func writeCell(chainMap []byte, entrySize uint32, cluster uint32, value uint32) {
	offset := cluster * entrySize
	if entrySize == 2 {
		binary.BigEndian.PutUint16(chainMap[offset:], uint16(value))
	} else {
		binary.BigEndian.PutUint32(chainMap[offset:], value)
	}
}
