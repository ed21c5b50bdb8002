package dstring

import (
	"bytes"
	"sort"
	"sync"

	"github.com/sneller-labs/dstrsort/internal/workpool"
)

// parallelMergeThreshold is the record count below which a range is
// sorted sequentially rather than split further: below it, fork/join
// overhead outweighs any parallelism gained.
const parallelMergeThreshold = 2048

// SortParallel sorts the container's records under its active order,
// exactly as Sort does, but splits the work recursively across up to
// workers goroutines via an internal workpool.Pool (spec.md §5's
// per-processor local work may itself exploit intra-node
// parallelism). workers < 2, or a container too small to be worth
// splitting, falls straight back to the sequential path Sort uses.
func (c *Container) SortParallel(workers int) {
	n := len(c.recs)
	if workers < 2 || n < parallelMergeThreshold {
		c.Sort()
		return
	}
	pool := workpool.New(workers)
	recs := append([]Record(nil), c.recs...)
	sorted := parallelMergeSort(c, pool, recs, depthFor(workers))
	pool.Close()
	c.recs = sorted
	c.lcps = nil
	c.sorted = true
}

// depthFor returns the number of recursive split levels worth
// fanning out to a pool goroutine, roughly log2(workers): beyond that
// depth there are already at least `workers` ranges in flight, and
// further splits only add synchronization overhead.
func depthFor(workers int) int {
	d := 0
	for 1<<uint(d) < workers {
		d++
	}
	return d
}

func parallelMergeSort(c *Container, pool *workpool.Pool, recs []Record, depth int) []Record {
	n := len(recs)
	if depth <= 0 || n < parallelMergeThreshold {
		sort.Slice(recs, func(i, j int) bool { return compareRecs(c, recs[i], recs[j]) < 0 })
		return recs
	}
	mid := n / 2
	var left []Record
	var wg sync.WaitGroup
	wg.Add(1)
	pool.Go(func() {
		defer wg.Done()
		left = parallelMergeSort(c, pool, recs[:mid], depth-1)
	})
	right := parallelMergeSort(c, pool, recs[mid:], depth-1)
	wg.Wait()
	return mergeRecs(c, left, right)
}

func compareRecs(c *Container, a, b Record) int {
	cmp := bytes.Compare(c.buf[a.Off:a.Off+a.Len], c.buf[b.Off:b.Off+b.Len])
	if cmp != 0 || !c.indexed {
		return cmp
	}
	switch {
	case a.Index < b.Index:
		return -1
	case a.Index > b.Index:
		return 1
	default:
		return 0
	}
}

func mergeRecs(c *Container, left, right []Record) []Record {
	out := make([]Record, 0, len(left)+len(right))
	i, j := 0, 0
	for i < len(left) && j < len(right) {
		if compareRecs(c, left[i], right[j]) <= 0 {
			out = append(out, left[i])
			i++
		} else {
			out = append(out, right[j])
			j++
		}
	}
	out = append(out, left[i:]...)
	out = append(out, right[j:]...)
	return out
}
