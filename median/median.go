// Package median implements the binary-tree median selection (C2):
// given a locally sorted candidate set of at most k strings on every
// processor of a power-of-two group, it produces the single global
// median string on every processor, per spec.md §4.1.
package median

import (
	"fmt"
	"math/bits"

	"github.com/sneller-labs/dstrsort/dstring"
	"github.com/sneller-labs/dstrsort/fabric"
	"github.com/sneller-labs/dstrsort/internal/randbit"
	"github.com/sneller-labs/dstrsort/sorterr"
)

// Candidate is one entry of a candidate set: a string plus, in indexed
// mode, its global index.
type Candidate struct {
	Bytes []byte
	Index uint64
}

func compare(a, b Candidate, indexed bool) int {
	la, lb := len(a.Bytes), len(b.Bytes)
	n := la
	if lb < n {
		n = lb
	}
	for i := 0; i < n; i++ {
		if a.Bytes[i] != b.Bytes[i] {
			if a.Bytes[i] < b.Bytes[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case la < lb:
		return -1
	case la > lb:
		return 1
	}
	if !indexed {
		return 0
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

// middleMost implements spec.md §4.1's tiebreak: for a sorted set of
// size n and target k, return the k middle-most elements. If n and k
// have different parity, a shared random bit decides whether to shift
// the offset by 0 or 1; equal parity uses no randomness.
func middleMost(sorted []Candidate, k int, bits *randbit.Source) []Candidate {
	n := len(sorted)
	if n <= k {
		return sorted
	}
	offset := (n - k) / 2
	if (n%2) != (k%2) && bits.Bit() {
		offset++
	}
	return sorted[offset : offset+k]
}

// MiddleMost is the exported form of the §4.1 tiebreak. Hyper-quicksort's
// splitter-selection step (C4 §4.2) uses it directly to reduce a
// processor's full local record set down to its 2 middle-most strings
// before feeding them into Select.
func MiddleMost(sorted []Candidate, k int, bits *randbit.Source) []Candidate {
	return middleMost(sorted, k, bits)
}

func mergeSorted(a, b []Candidate, indexed bool) []Candidate {
	out := make([]Candidate, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if compare(a[i], b[j], indexed) <= 0 {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}

func encode(set []Candidate, indexed bool) (payload, indices []byte) {
	var buf []byte
	idx := make([]uint64, len(set))
	for i, c := range set {
		buf = append(buf, c.Bytes...)
		buf = append(buf, 0)
		idx[i] = c.Index
	}
	if len(set) == 0 {
		buf = []byte{}
	}
	if indexed {
		indices = dstring.EncodeIndices(idx)
	}
	return buf, indices
}

func decode(payload, indices []byte, indexed bool) ([]Candidate, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	var c *dstring.Container
	var err error
	if indexed {
		c, err = dstring.NewIndexed(payload, dstring.DecodeIndices(indices))
	} else {
		c, err = dstring.New(payload)
	}
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, c.Len())
	for i := range out {
		b := c.Bytes(i)
		cp := make([]byte, len(b))
		copy(cp, b)
		out[i] = Candidate{Bytes: cp, Index: c.Index(i)}
	}
	return out, nil
}

// Select runs the binary-tree median selection on g. local must already
// be sorted under the lexicographic (then-index, if indexed) order and
// contain at most k entries. tag and tag+1 are used for the payload and
// companion index streams. g.Size() must be a power of two.
//
// Every processor in g must pass a *randbit.Source seeded identically
// (spec.md §9 "Deterministic PRNG").
func Select(g *fabric.Group, local []Candidate, k int, indexed bool, bits *randbit.Source, tag int) (Candidate, error) {
	n := g.Size()
	if n&(n-1) != 0 {
		return Candidate{}, fmt.Errorf("median: %w: group size %d", sorterr.ErrGroupSizeNotPowerOfTwo, n)
	}
	if len(local) > k {
		return Candidate{}, fmt.Errorf("median: %w: local candidate set has %d entries, exceeds k=%d", sorterr.ErrPivotArity, len(local), k)
	}
	set := local
	rank := g.Rank()
	levels := bits2log(n)
	for level := 0; level < levels; level++ {
		if rank&(1<<level) != 0 {
			payload, idxBuf := encode(set, indexed)
			g.Send(rank^(1<<level), tag, payload)
			if indexed {
				g.Send(rank^(1<<level), tag+1, idxBuf)
			}
			return broadcastResult(g, false, indexed, nil)
		}
		partner := rank ^ (1 << level)
		payload := g.Recv(partner, tag)
		var idxBuf []byte
		if indexed {
			idxBuf = g.Recv(partner, tag+1)
		}
		other, err := decode(payload, idxBuf, indexed)
		if err != nil {
			return Candidate{}, err
		}
		merged := mergeSorted(set, other, indexed)
		set = middleMost(merged, k, bits)
	}
	// rank 0: broadcast the middle element of the surviving set.
	final := middleMost(set, 1, bits)
	var result *Candidate
	if len(final) == 1 {
		result = &final[0]
	}
	return broadcastResult(g, rank == 0, indexed, result)
}

func bits2log(n int) int { return bits.TrailingZeros(uint(n)) }

// broadcastResult delivers the selected median from rank 0 to every
// other processor. isRoot tells each caller which side of the
// broadcast it plays; every non-root caller (including every processor
// that retired early in Select's fold) ends up here waiting on rank 0.
func broadcastResult(g *fabric.Group, isRoot, indexed bool, result *Candidate) (Candidate, error) {
	const tagResult = -(1 << 29)
	if !isRoot {
		payload := g.Recv(0, tagResult)
		var idxBuf []byte
		if indexed {
			idxBuf = g.Recv(0, tagResult+1)
		}
		cands, err := decode(payload, idxBuf, indexed)
		if err != nil {
			return Candidate{}, err
		}
		if len(cands) == 0 {
			return Candidate{}, nil
		}
		return cands[0], nil
	}
	var set []Candidate
	if result != nil {
		set = []Candidate{*result}
	}
	payload, idxBuf := encode(set, indexed)
	for r := 0; r < g.Size(); r++ {
		if r != g.Rank() {
			g.Send(r, tagResult, payload)
			if indexed {
				g.Send(r, tagResult+1, idxBuf)
			}
		}
	}
	if len(set) == 0 {
		return Candidate{}, nil
	}
	return set[0], nil
}
