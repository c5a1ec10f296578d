package fatx

import (
	"github.com/boljen/go-bitmap"
	"github.com/halprin/xfatx/xerrors"
)

// clusterAllocator tracks which of a partition's clusters are free using a
// bitmap indexed by cluster-1, so allocation decisions don't require
// re-scanning the chain map. Partition keeps this in sync with
// FreeClusters on every allocation and release.
type clusterAllocator struct {
	free         bitmap.Bitmap
	clusterCount uint32
}

func newClusterAllocator(clusterCount uint32) *clusterAllocator {
	return &clusterAllocator{
		free:         bitmap.New(int(clusterCount)),
		clusterCount: clusterCount,
	}
}

func (a *clusterAllocator) markFree(cluster uint32) {
	a.free.Set(int(cluster-1), true)
}

func (a *clusterAllocator) markAllocated(cluster uint32) {
	a.free.Set(int(cluster-1), false)
}

// findContiguousRun locates the first run of count consecutive free
// clusters, first fit by ascending cluster number.
func (a *clusterAllocator) findContiguousRun(count uint32) (uint32, error) {
	runStart := uint32(0)
	runLen := uint32(0)

	for i := uint32(0); i < a.clusterCount; i++ {
		if !a.free.Get(int(i)) {
			runLen = 0
			continue
		}
		if runLen == 0 {
			runStart = i
		}
		runLen++
		if runLen == count {
			return runStart + 1, nil
		}
	}

	return 0, xerrors.Newf(xerrors.OutOfSpace, "no contiguous run of %d clusters available", count)
}
