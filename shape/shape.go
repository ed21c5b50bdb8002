// Package shape implements the communicator shaper (C8): when the
// group size P is not a power of two, it folds the group down to the
// largest power of two Q <= P so hyper-quicksort and the loser-tree
// merge (which both require power-of-two fan-in) can operate, per
// spec.md §4.6.
package shape

import (
	"math/bits"

	"github.com/sneller-labs/dstrsort/dstring"
	"github.com/sneller-labs/dstrsort/fabric"
	"github.com/sneller-labs/dstrsort/tracker"
)

// Fold shrinks g to its largest power-of-two prefix [0,Q). Processors
// ranked [Q,P) ship their full local container to processor (rank-Q),
// which appends the received bytes to its own, and are reported as
// inactive: they hold no further role in the group and must not use
// the returned Group. Processors within [0,Q) are active and receive
// the folded sub-communicator and their (possibly grown) container.
//
// fabric.Group.Split needs no synchronization of its own, so unlike
// the MPI systems spec.md §4.6 describes, inactive processors here
// simply stop after their one Send: they never call Split.
func Fold(g *fabric.Group, c *dstring.Container, indexed bool, trk tracker.Tracker, tag int) (active bool, sub *fabric.Group, out *dstring.Container, err error) {
	defer tracker.StartStop(trk, tracker.Shape)()

	p := g.Size()
	q := prevPow2(p)
	if q == p {
		return true, g, c, nil
	}

	rank := g.Rank()
	if rank >= q {
		g.Send(rank-q, tag, c.RawBytes())
		if indexed {
			g.Send(rank-q, tag+1, dstring.EncodeIndices(c.Indices()))
		}
		empty, err := dstring.Pick(c, nil)
		if err != nil {
			return false, nil, nil, err
		}
		return false, nil, empty, nil
	}

	buf := append([]byte(nil), c.RawBytes()...)
	var idx []uint64
	if indexed {
		idx = append([]uint64(nil), c.Indices()...)
	}
	if src := rank + q; src < p {
		buf = append(buf, g.Recv(src, tag)...)
		if indexed {
			idx = append(idx, dstring.DecodeIndices(g.Recv(src, tag+1))...)
		}
	}

	var merged *dstring.Container
	if indexed {
		merged, err = dstring.NewIndexed(buf, idx)
	} else {
		merged, err = dstring.New(buf)
	}
	if err != nil {
		return false, nil, nil, err
	}
	return true, g.Split(0, q), merged, nil
}

// prevPow2 returns the largest power of two <= n (n >= 1).
func prevPow2(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << (bits.Len(uint(n)) - 1)
}
