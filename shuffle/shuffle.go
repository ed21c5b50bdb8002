// Package shuffle implements the pre-sort randomizer (C10): log2(P)
// bit-flip exchanges that turn the local set on every processor into a
// uniform random sample of the global set, per spec.md §4.7. Run sits
// between C8 (shape.Fold, which guarantees a power-of-two group) and
// C5/C4, and exists to break adversarial input distributions that would
// otherwise defeat hyper-quicksort's splitter selection.
package shuffle

import (
	"fmt"
	"math/bits"

	"github.com/sneller-labs/dstrsort/dstring"
	"github.com/sneller-labs/dstrsort/fabric"
	"github.com/sneller-labs/dstrsort/internal/randbit"
	"github.com/sneller-labs/dstrsort/sorterr"
)

// Run performs log2(g.Size()) bit-flip exchange phases. In phase phi,
// rank's partner is rank XOR 2^phi; every local string is independently
// kept or routed to the partner according to a fresh bit drawn from
// bits. g must have a power-of-two size (shape.Fold guarantees this
// upstream); Run returns an error otherwise.
func Run(g *fabric.Group, c *dstring.Container, indexed bool, rng *randbit.Source, tag int) (*dstring.Container, error) {
	p := g.Size()
	if p&(p-1) != 0 {
		return nil, fmt.Errorf("shuffle: %w: %d", sorterr.ErrGroupSizeNotPowerOfTwo, p)
	}
	phases := bits.Len(uint(p)) - 1

	cur := c
	for phi := 0; phi < phases; phi++ {
		partner := g.Rank() ^ (1 << phi)

		var keepPos, sendPos []int
		for i := 0; i < cur.Len(); i++ {
			if rng.Bit() {
				keepPos = append(keepPos, i)
			} else {
				sendPos = append(sendPos, i)
			}
		}

		kept, err := dstring.Pick(cur, keepPos)
		if err != nil {
			return nil, err
		}
		send, err := dstring.Pick(cur, sendPos)
		if err != nil {
			return nil, err
		}

		received, err := exchange(g, partner, send, indexed, tag+phi*2)
		if err != nil {
			return nil, err
		}

		buf := append([]byte(nil), kept.RawBytes()...)
		buf = append(buf, received.RawBytes()...)
		if indexed {
			idx := append([]uint64(nil), kept.Indices()...)
			idx = append(idx, received.Indices()...)
			cur, err = dstring.NewIndexed(buf, idx)
		} else {
			cur, err = dstring.New(buf)
		}
		if err != nil {
			return nil, err
		}
	}
	return cur, nil
}

// exchange trades send with partner and returns what partner sent
// back, mirroring hyperquicksort's own partner-exchange helper.
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
