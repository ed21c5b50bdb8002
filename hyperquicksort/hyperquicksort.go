// Package hyperquicksort implements the hyper-quicksort engine (C4): a
// recursive partition-exchange-merge sorter over processor groups whose
// size is a power of two, per spec.md §4.2. It is used both as the
// top-level sorter and, via a duplicated communicator, as the internal
// sample sorter the splitter partitioner (C5) runs its sample through.
package hyperquicksort

import (
	"fmt"
	"sort"

	"github.com/sneller-labs/dstrsort/dstring"
	"github.com/sneller-labs/dstrsort/fabric"
	"github.com/sneller-labs/dstrsort/internal/randbit"
	"github.com/sneller-labs/dstrsort/loserqueue"
	"github.com/sneller-labs/dstrsort/median"
	"github.com/sneller-labs/dstrsort/sorterr"
)

// Mode selects how the local partition point is chosen.
type Mode int

const (
	// Plain always splits at the pivot's lower bound.
	Plain Mode = iota
	// Robust shifts the split point toward the local container's
	// midpoint, staying within the pivot's equal-range, to protect
	// against adversarial inputs that would otherwise starve one side
	// of the exchange.
	Robust
)

// Sort runs the hyper-quicksort recursion on g. c must already be
// locally sorted under its active order (lexicographic, then index if
// indexed); g.Size() must be a power of two. bits must be a
// group-synchronous randbit.Source seeded identically across every
// processor of g (spec.md §9 "Deterministic PRNG"). tag and tag+1..3
// are used for this level's messages; each recursion level advances by
// 4 to keep sub-levels' tags disjoint.
func Sort(g *fabric.Group, c *dstring.Container, indexed bool, mode Mode, bits *randbit.Source, tag int) (*dstring.Container, error) {
	p := g.Size()
	if p&(p-1) != 0 {
		return nil, fmt.Errorf("hyperquicksort: %w: %d", sorterr.ErrGroupSizeNotPowerOfTwo, p)
	}
	if p == 1 {
		return c, nil
	}

	pivot, err := selectPivot(g, c, indexed, bits, tag)
	if err != nil {
		return nil, err
	}

	n := c.Len()
	lo := sort.Search(n, func(i int) bool { return c.CompareBytes(i, pivot.Bytes, pivot.Index) >= 0 })
	split := lo
	if mode == Robust {
		hi := sort.Search(n, func(i int) bool { return c.CompareBytes(i, pivot.Bytes, pivot.Index) > 0 })
		mid := n / 2
		if n%2 == 1 && bits.Bit() {
			mid++
		}
		switch {
		case mid < lo:
			split = lo
		case mid > hi:
			split = hi
		default:
			split = mid
		}
	}

	half := p / 2
	rank := g.Rank()
	partner := rank ^ half
	var keepLo, keepHi, sendLo, sendHi int
	if rank < half {
		keepLo, keepHi = 0, split
		sendLo, sendHi = split, n
	} else {
		keepLo, keepHi = split, n
		sendLo, sendHi = 0, split
	}

	keepC, err := dstring.Slice(c, keepLo, keepHi)
	if err != nil {
		return nil, err
	}
	sendC, err := dstring.Slice(c, sendLo, sendHi)
	if err != nil {
		return nil, err
	}

	recvC, err := exchange(g, partner, sendC, indexed, tag+2)
	if err != nil {
		return nil, err
	}
	keepC.ComputeLCPs()
	recvC.ComputeLCPs()

	merged, err := loserqueue.Merge([]*dstring.Container{keepC, recvC}, indexed)
	if err != nil {
		return nil, err
	}

	var sub *fabric.Group
	if rank < half {
		sub = g.Split(0, half)
	} else {
		sub = g.Split(half, p)
	}
	return Sort(sub, merged, indexed, mode, bits, tag+4)
}

// selectPivot runs the C2 median selection with k=2 over each
// processor's 2 middle-most local strings, per spec.md §4.2 step 1.
func selectPivot(g *fabric.Group, c *dstring.Container, indexed bool, bits *randbit.Source, tag int) (median.Candidate, error) {
	local := make([]median.Candidate, c.Len())
	for i := range local {
		local[i] = median.Candidate{Bytes: c.Bytes(i), Index: c.Index(i)}
	}
	top := median.MiddleMost(local, 2, bits)
	return median.Select(g, top, 2, indexed, bits, tag)
}

// exchange sends send's records to partner and returns what partner
// sent back, as an independent Container with an LCP array attached.
// Bytes and (in indexed mode) the index array travel as two messages
// on tags tag and tag+1, per spec.md §4.2 step 3.
func exchange(g *fabric.Group, partner int, send *dstring.Container, indexed bool, tag int) (*dstring.Container, error) {
	g.Send(partner, tag, send.RawBytes())
	if indexed {
		g.Send(partner, tag+1, dstring.EncodeIndices(send.Indices()))
	}
	buf := g.Recv(partner, tag)
	if indexed {
		idxBuf := g.Recv(partner, tag+1)
		return dstring.NewIndexed(buf, dstring.DecodeIndices(idxBuf))
	}
	return dstring.New(buf)
}
