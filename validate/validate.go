// Package validate implements the sort validator (C9): a cheap,
// best-effort check that a purported sorted distributed container
// really is sorted, per spec.md §4.8. It never mutates the container
// it is given.
package validate

import (
	"bytes"

	"golang.org/x/crypto/blake2b"

	"github.com/sneller-labs/dstrsort/dstring"
	"github.com/sneller-labs/dstrsort/fabric"
)

// Mode selects how thoroughly Check verifies the container.
type Mode int

const (
	// Cheap runs only the local-order, boundary, and empty-gap checks.
	Cheap Mode = iota
	// Exhaustive additionally gathers the whole container and compares
	// it against a freshly sorted copy of itself.
	Exhaustive
)

// Check reports whether c is sorted across g under the container's
// active order (spec.md §4.8). All three cheap checks, and the
// exhaustive check when requested, reduce with logical-AND across the
// group: every processor returns the same answer.
func Check(g *fabric.Group, c *dstring.Container, mode Mode, tag int) bool {
	// Every check runs on every rank: boundaryOK and noEmptyGapOK are
	// collectives, so a rank may not skip them after a local failure.
	local := localOrderOK(c)
	boundary := boundaryOK(g, c, tag)
	gap := noEmptyGapOK(g, c)
	ok := g.AllReduceAnd(local && boundary && gap)
	if mode != Exhaustive {
		return ok
	}
	return ok && exhaustiveOK(g, c, tag+2)
}

func localOrderOK(c *dstring.Container) bool {
	return c.IsLocallySorted()
}

// boundaryOK exchanges one string with each neighbor (spec.md's "one-hop
// left/right shift") and checks the last string on rank r is <= the
// first string on rank r+1. Empty local containers are skipped: the
// empty-gap check (noEmptyGapOK) covers them separately.
func boundaryOK(g *fabric.Group, c *dstring.Container, tag int) bool {
	rank, size := g.Rank(), g.Size()
	if size == 1 {
		return true
	}

	var lastBuf, firstBuf []byte
	var lastIdx, firstIdx uint64
	if c.Len() > 0 {
		lastBuf = append([]byte(nil), c.Bytes(c.Len()-1)...)
		firstBuf = append([]byte(nil), c.Bytes(0)...)
		if c.Indexed() {
			lastIdx = c.Index(c.Len() - 1)
			firstIdx = c.Index(0)
		}
	}

	// Send this rank's first string to rank-1 and its last string to
	// rank+1; receive the mirrored pair back, same tag pattern as
	// hyperquicksort's exchange helper (payload tag, tag+1 for index).
	if rank+1 < size {
		g.Send(rank+1, tag, lastBuf)
		g.Send(rank+1, tag+1, encodeIdx(lastIdx))
	}
	if rank-1 >= 0 {
		g.Send(rank-1, tag+2, firstBuf)
		g.Send(rank-1, tag+3, encodeIdx(firstIdx))
	}

	ok := true
	if rank-1 >= 0 {
		prevLast := g.Recv(rank-1, tag)
		prevLastIdx := decodeIdx(g.Recv(rank-1, tag+1))
		if len(prevLast) > 0 && c.Len() > 0 {
			cmp := bytes.Compare(prevLast, firstBuf)
			if cmp > 0 || (cmp == 0 && c.Indexed() && prevLastIdx > firstIdx) {
				ok = false
			}
		}
	}
	if rank+1 < size {
		nextFirst := g.Recv(rank+1, tag+2)
		nextFirstIdx := decodeIdx(g.Recv(rank+1, tag+3))
		if len(nextFirst) > 0 && c.Len() > 0 {
			cmp := bytes.Compare(lastBuf, nextFirst)
			if cmp > 0 || (cmp == 0 && c.Indexed() && lastIdx > nextFirstIdx) {
				ok = false
			}
		}
	}
	return ok
}

func encodeIdx(idx uint64) []byte {
	return dstring.EncodeIndices([]uint64{idx})
}

func decodeIdx(buf []byte) uint64 {
	v := dstring.DecodeIndices(buf)
	if len(v) == 0 {
		return 0
	}
	return v[0]
}

// noEmptyGapOK checks that no empty processor lies between two
// non-empty processors, via the min/max-rank reduction spec.md
// describes: every processor reports its own rank if non-empty (else a
// sentinel), and the group computes the overall min and max. A gap
// exists iff some rank strictly between min and max is empty.
func noEmptyGapOK(g *fabric.Group, c *dstring.Container) bool {
	size := g.Size()
	rank := g.Rank()
	nonEmpty := c.Len() > 0

	var self int64 = int64(rank)
	if !nonEmpty {
		self = int64(size) // sentinel larger than any valid rank
	}
	minRank := g.AllReduce(self, func(a, b int64) int64 {
		if a < b {
			return a
		}
		return b
	})

	self = -1
	if nonEmpty {
		self = int64(rank)
	}
	maxRank := g.AllReduce(self, func(a, b int64) int64 {
		if a > b {
			return a
		}
		return b
	})

	if minRank >= int64(size) || maxRank < 0 {
		return true // every processor is empty
	}

	gapFlag := int64(0)
	if rank > int(minRank) && rank < int(maxRank) && !nonEmpty {
		gapFlag = 1
	}
	total := g.AllReduce(gapFlag, func(a, b int64) int64 { return a + b })
	return total == 0
}

// exhaustiveOK gathers the whole container and compares a cheap blake2b
// digest of the gathered bytes against a freshly sorted copy's digest:
// equal digests are accepted at once, and only on a digest mismatch
// does it compare the two record by record (spec.md §4.8's "exhaustive
// mode").
func exhaustiveOK(g *fabric.Group, c *dstring.Container, tag int) bool {
	byteContribs := g.AllGather(c.RawBytes())
	var idxContribs [][]byte
	if c.Indexed() {
		idxContribs = g.AllGather(dstring.EncodeIndices(c.Indices()))
	}

	var allBuf []byte
	var allIdx []uint64
	for r := 0; r < g.Size(); r++ {
		allBuf = append(allBuf, byteContribs[r]...)
		if c.Indexed() {
			allIdx = append(allIdx, dstring.DecodeIndices(idxContribs[r])...)
		}
	}

	var gathered *dstring.Container
	var err error
	if c.Indexed() {
		gathered, err = dstring.NewIndexed(allBuf, allIdx)
	} else {
		gathered, err = dstring.New(allBuf)
	}
	if err != nil {
		return false
	}

	before := digest(gathered)
	resorted, err := dstring.Pick(gathered, identity(gathered.Len()))
	if err != nil {
		return false
	}
	resorted.Sort()
	after := digest(resorted)
	if before == after {
		return true
	}

	// Digest mismatch: fall back to a direct record-by-record compare
	// against the sorted copy.
	if gathered.Len() != resorted.Len() {
		return false
	}
	for i := 0; i < gathered.Len(); i++ {
		if !bytes.Equal(gathered.Bytes(i), resorted.Bytes(i)) {
			return false
		}
	}
	return true
}

func identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func digest(c *dstring.Container) [32]byte {
	h, _ := blake2b.New256(nil)
	for i := 0; i < c.Len(); i++ {
		h.Write(c.Bytes(i))
		h.Write([]byte{0})
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
