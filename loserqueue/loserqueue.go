// Package loserqueue implements the K-way LCP-aware loser-tree merger
// (C6): given K locally-sorted string streams, each carrying its own
// LCP-to-predecessor array, it produces one merged stream with correct
// LCP values relative to the merged stream's predecessors, per
// spec.md §4.4.
//
// The tree is the standard tournament construction (Knuth TAOCP vol.3
// §5.4.1): K leaves, K-1 internal nodes, each internal node holding the
// index of the losing leaf of its subtree's last match. Replaying the
// tree after the overall winner advances touches only the O(log K)
// nodes on that leaf's root path, generalizing heap/heap.go's sift-down
// from a binary heap to a tournament tree (a loser tree needs the
// loser retained at each node, which a plain min-heap discards).
package loserqueue

import (
	"fmt"

	"github.com/sneller-labs/dstrsort/dstring"
	"github.com/sneller-labs/dstrsort/sorterr"
)

// run tracks one input stream's read cursor.
type run struct {
	c       *dstring.Container
	cursor  int
	indexed bool
}

func (r *run) exhausted() bool { return r.cursor >= r.c.Len() }

func (r *run) bytes() []byte { return r.c.Bytes(r.cursor) }

func (r *run) index() uint64 { return r.c.Index(r.cursor) }

// ownLCP returns the LCP between the run's current element and its
// immediate predecessor in the same run (0 at position 0, or when no
// LCP array was attached).
func (r *run) ownLCP() int {
	if r.cursor == 0 {
		return 0
	}
	if lcps := r.c.LCPs(); lcps != nil && r.cursor < len(lcps) {
		return int(lcps[r.cursor])
	}
	return 0
}

// compareFrom compares a against b starting at byte offset from,
// asserting bytes before from already match (the LCP-aware
// short-circuit spec.md §4.4 describes). An exhausted run always
// loses regardless of from. It returns whether a sorts before b and
// the full LCP of the pair.
func compareFrom(a, b *run, indexed bool, from int) (less bool, lcp int) {
	switch {
	case a.exhausted() && b.exhausted():
		return false, 0
	case a.exhausted():
		return false, 0
	case b.exhausted():
		return true, 0
	}
	ab, bb := a.bytes(), b.bytes()
	i := from
	for i < len(ab) && i < len(bb) && ab[i] == bb[i] {
		i++
	}
	switch {
	case i == len(ab) && i == len(bb):
		if !indexed || a.index() <= b.index() {
			return true, i
		}
		return false, i
	case i == len(ab):
		return true, i
	case i == len(bb):
		return false, i
	default:
		return ab[i] < bb[i], i
	}
}

// Tree is a K-way loser tree over a fixed set of sorted runs.
type Tree struct {
	runs    []*run
	k       int
	loser   []int // loser[node], node in [1,k)
	nodeLCP []int // LCP of the match recorded at loser[node]
	root    int
	indexed bool
}

// New builds a loser tree over containers, each already sorted under
// its own order (with a matching LCP array attached, if available). K
// = len(containers) must be a power of two in {1,2,4,...,512}
// (spec.md §4.4).
func New(containers []*dstring.Container, indexed bool) (*Tree, error) {
	k := len(containers)
	if k == 0 || k&(k-1) != 0 || k > 512 {
		return nil, fmt.Errorf("loserqueue: %w: K=%d is not a power of two in [1,512]", sorterr.ErrPivotArity, k)
	}
	t := &Tree{
		runs:    make([]*run, k),
		k:       k,
		loser:   make([]int, k),
		nodeLCP: make([]int, k),
		indexed: indexed,
	}
	for i, c := range containers {
		t.runs[i] = &run{c: c, indexed: indexed}
	}
	t.build()
	return t, nil
}

func (t *Tree) build() {
	if t.k == 1 {
		t.root = 0
		return
	}
	winnerAt := make([]int, 2*t.k)
	for i := 0; i < t.k; i++ {
		winnerAt[t.k+i] = i
	}
	for node := t.k - 1; node >= 1; node-- {
		l, r := winnerAt[2*node], winnerAt[2*node+1]
		less, lcp := compareFrom(t.runs[l], t.runs[r], t.indexed, 0)
		if less {
			winnerAt[node], t.loser[node], t.nodeLCP[node] = l, r, lcp
		} else {
			winnerAt[node], t.loser[node], t.nodeLCP[node] = r, l, lcp
		}
	}
	t.root = winnerAt[1]
}

// Pop returns the current overall-winning string (bytes aliasing the
// source container, plus its index in indexed mode), advances that
// run, and replays the tree. ok is false once every run is exhausted.
func (t *Tree) Pop() (data []byte, index uint64, ok bool) {
	w := t.runs[t.root]
	if w.exhausted() {
		return nil, 0, false
	}
	data = w.bytes()
	if t.indexed {
		index = w.index()
	}
	w.cursor++
	if t.k == 1 {
		return data, index, true
	}
	ownLCP := 0
	if !w.exhausted() {
		ownLCP = w.ownLCP()
	}
	t.replay(t.root, ownLCP)
	return data, index, true
}

// replay re-plays every node on leaf i's root path after leaf i's
// current element changed. ownLCP is the LCP between the new element
// and the one that just won at every node on this path (true because
// that element won all the way to the root last round, so
// nodeLCP[node] along the path equals LCP(old element, loser[node])
// for each of them). As long as the new element keeps winning, the
// comparison at each node can start at min(ownLCP, nodeLCP[node])
// instead of byte 0; once it loses to some ancestor's stored loser,
// the shortcut no longer applies to the remaining nodes above it.
func (t *Tree) replay(i, ownLCP int) {
	node := (t.k + i) / 2
	cur := i
	shortcut := true
	for node >= 1 {
		lk := t.loser[node]
		start := 0
		if shortcut {
			if nd := t.nodeLCP[node]; ownLCP < nd {
				start = ownLCP
			} else {
				start = nd
			}
		}
		less, lcp := compareFrom(t.runs[cur], t.runs[lk], t.indexed, start)
		t.nodeLCP[node] = lcp
		if !less {
			cur, lk = lk, cur
			shortcut = false
		}
		t.loser[node] = lk
		node /= 2
	}
	t.root = cur
}
