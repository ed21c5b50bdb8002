// Package splitter implements the sample/splitter-based partitioner
// (C5): sample -> splitter sort (via hyperquicksort) -> splitter
// selection -> interval counts -> one all-to-all -> K-way merge, per
// spec.md §4.3.
package splitter

import (
	"fmt"
	"math/bits"
	"sort"

	"github.com/sneller-labs/dstrsort/dstring"
	"github.com/sneller-labs/dstrsort/fabric"
	"github.com/sneller-labs/dstrsort/hyperquicksort"
	"github.com/sneller-labs/dstrsort/internal/randbit"
	"github.com/sneller-labs/dstrsort/loserqueue"
	"github.com/sneller-labs/dstrsort/shape"
	"github.com/sneller-labs/dstrsort/tracker"
)

// candidate is one selected splitter: its bytes and, in indexed mode,
// its original global index.
type candidate struct {
	bytes []byte
	index uint64
}

// Partition redistributes c across g so that concatenating the result
// by rank yields a globally sorted sequence. c must already be locally
// sorted. sample draws each processor's contribution to the splitter
// sample; bits must be a group-synchronous randbit.Source seeded
// identically across g (the internal splitter sort needs it, per
// spec.md §9). trk may be nil.
func Partition(g *fabric.Group, c *dstring.Container, indexed bool, sample Sampler, bits *randbit.Source, trk tracker.Tracker, tag int) (*dstring.Container, error) {
	defer tracker.StartStop(trk, tracker.Partition)()

	p := g.Size()
	if p == 1 {
		return c, nil
	}

	sampled, err := sample(c, p-1)
	if err != nil {
		return nil, err
	}
	sampled.Sort()

	// hyperquicksort needs a power-of-two group: fold the sample onto
	// one first. Folded-away ranks end up with an empty sample.
	dup := g.Dup("splitter-sample-sort")
	active, sub, sortedSample, err := shape.Fold(dup, sampled, indexed, nil, tag+500)
	if err != nil {
		return nil, err
	}
	if active {
		sortedSample.Sort()
		sortedSample, err = hyperquicksort.Sort(sub, sortedSample, indexed, hyperquicksort.Plain, bits, tag+1000)
		if err != nil {
			return nil, err
		}
	}

	splitters, err := selectSplitters(g, sortedSample, indexed)
	if err != nil {
		return nil, err
	}

	counts := intervalCounts(c, splitters)

	received, imbalance, err := redistribute(g, c, counts, indexed)
	if err != nil {
		return nil, err
	}
	tracker.Add(trk, "inbalance", imbalance)

	n := nextPow2(len(received))
	if n > 512 {
		return nil, fmt.Errorf("splitter: group size %d needs a %d-way merge, exceeds the 512-way loser-tree limit", p, n)
	}
	runs := make([]*dstring.Container, n)
	copy(runs, received)
	for i := len(received); i < n; i++ {
		empty, err := dstring.Pick(c, nil)
		if err != nil {
			return nil, err
		}
		runs[i] = empty
	}

	defer tracker.StartStop(trk, tracker.Merge)()
	return loserqueue.Merge(runs, indexed)
}

// selectSplitters runs the splitter-broadcast step (spec.md §4.3): from
// the globally sorted, rank-ordered sample, each processor determines
// which of the P-1 quantile positions fall in its local slice, emits
// those, and every processor all-gathers the union into the identical
// P-1-splitter vector.
func selectSplitters(g *fabric.Group, sample *dstring.Container, indexed bool) ([]candidate, error) {
	p := g.Size()
	rank := g.Rank()

	myCount := uint64(sample.Len())
	countBufs := g.AllGather(dstring.EncodeIndices([]uint64{myCount}))
	counts := make([]uint64, p)
	var total uint64
	var myOffset uint64
	for r := 0; r < p; r++ {
		counts[r] = dstring.DecodeIndices(countBufs[r])[0]
		if r < rank {
			myOffset += counts[r]
		}
		total += counts[r]
	}
	chunk := (total + uint64(p) - 1) / uint64(p)

	var localBuf []byte
	var localK, localIdx []uint64
	for k := uint64(1); k < uint64(p); k++ {
		target := k * chunk
		if target < myOffset || target >= myOffset+myCount {
			continue
		}
		pos := int(target - myOffset)
		localBuf = append(localBuf, sample.Bytes(pos)...)
		localBuf = append(localBuf, 0)
		localK = append(localK, k)
		if indexed {
			localIdx = append(localIdx, sample.Index(pos))
		} else {
			localIdx = append(localIdx, 0)
		}
	}

	byteContribs := g.AllGather(localBuf)
	kContribs := g.AllGather(dstring.EncodeIndices(localK))
	idxContribs := g.AllGather(dstring.EncodeIndices(localIdx))

	splitters := make([]candidate, p-1)
	filled := make([]bool, p-1)
	for r := 0; r < p; r++ {
		if len(byteContribs[r]) == 0 {
			continue
		}
		c, err := dstring.New(byteContribs[r])
		if err != nil {
			return nil, err
		}
		ks := dstring.DecodeIndices(kContribs[r])
		idxs := dstring.DecodeIndices(idxContribs[r])
		for i := 0; i < c.Len(); i++ {
			slot := int(ks[i]) - 1
			b := c.Bytes(i)
			cp := make([]byte, len(b))
			copy(cp, b)
			splitters[slot] = candidate{bytes: cp, index: idxs[i]}
			filled[slot] = true
		}
	}

	// Rescue any unfilled slot (possible only on pathologically small
	// or skewed inputs) by reusing the nearest filled neighbor, keeping
	// the vector monotonic non-decreasing.
	for i := 1; i < len(splitters); i++ {
		if !filled[i] && filled[i-1] {
			splitters[i] = splitters[i-1]
			filled[i] = true
		}
	}
	for i := len(splitters) - 2; i >= 0; i-- {
		if !filled[i] && filled[i+1] {
			splitters[i] = splitters[i+1]
			filled[i] = true
		}
	}
	return splitters, nil
}

// intervalCounts binary-searches c for each splitter's insertion point,
// returning the per-peer send counts (spec.md §4.3 "Interval counts").
func intervalCounts(c *dstring.Container, splitters []candidate) []int {
	p := len(splitters) + 1
	counts := make([]int, p)
	prev := 0
	for i, s := range splitters {
		pos := sort.Search(c.Len(), func(j int) bool { return c.CompareBytes(j, s.bytes, s.index) >= 0 })
		counts[i] = pos - prev
		prev = pos
	}
	counts[p-1] = c.Len() - prev
	return counts
}

// redistribute performs the one all-to-all of counts and payload
// (spec.md §4.3 "Redistribution"), returning the P received runs and a
// simple max/mean imbalance figure.
func redistribute(g *fabric.Group, c *dstring.Container, counts []int, indexed bool) ([]*dstring.Container, float64, error) {
	p := g.Size()
	sendBytes := make([][]byte, p)
	sendIdx := make([][]byte, p)
	start := 0
	for r, n := range counts {
		slice, err := dstring.Slice(c, start, start+n)
		if err != nil {
			return nil, 0, err
		}
		sendBytes[r] = slice.RawBytes()
		if indexed {
			sendIdx[r] = dstring.EncodeIndices(slice.Indices())
		}
		start += n
	}

	recvBytes := g.AllToAll(sendBytes)
	var recvIdx [][]byte
	if indexed {
		recvIdx = g.AllToAll(sendIdx)
	}

	received := make([]*dstring.Container, p)
	var totalStrings, maxStrings int
	for r := 0; r < p; r++ {
		var rc *dstring.Container
		var err error
		if indexed {
			rc, err = dstring.NewIndexed(recvBytes[r], dstring.DecodeIndices(recvIdx[r]))
		} else {
			rc, err = dstring.New(recvBytes[r])
		}
		if err != nil {
			return nil, 0, err
		}
		received[r] = rc
		totalStrings += rc.Len()
		if rc.Len() > maxStrings {
			maxStrings = rc.Len()
		}
	}
	imbalance := 0.0
	if totalStrings > 0 {
		mean := float64(totalStrings) / float64(p)
		if mean > 0 {
			imbalance = float64(maxStrings) / mean
		}
	}
	return received, imbalance, nil
}

func nextPow2(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}
