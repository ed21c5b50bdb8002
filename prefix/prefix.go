// Package prefix implements the distinguishing-prefix estimator (C7):
// prefix-doubling over a distributed Bloom-filter-like hashing scheme,
// per spec.md §4.5. For each local string it computes a depth d such
// that no other string in the dataset shares that string's first d
// bytes (or d is the string's whole length). The dsort pipeline records
// only the mean of these lengths, as a diagnostic; no stage sorts
// truncated strings.
package prefix

import (
	"sort"

	"github.com/dchest/siphash"
	"github.com/sneller-labs/dstrsort/dstring"
	"github.com/sneller-labs/dstrsort/fabric"
	"github.com/sneller-labs/dstrsort/heap"
	"github.com/sneller-labs/dstrsort/internal/golomb"
	"github.com/sneller-labs/dstrsort/tracker"
)

// filterSize is the fixed Bloom-filter-like hash range M, per spec.md
// §4.5 ("modulo a fixed filter size M (≈ 2³²−1)").
const filterSize uint64 = (1 << 32) - 1

// Encoding selects the wire transport for a round's hash redistribution
// (spec.md §6 "Hash encoding policy"). golomb-pipelined is explicitly
// allowed to be omitted (spec.md §9 Open Questions); this package
// implements Raw and GolombSequential only.
type Encoding int

const (
	Raw Encoding = iota
	GolombSequential
)

// golombB is the Golomb parameter b used by GolombSequential (spec.md
// §4.5: "b ≈ 2²⁰").
const golombB uint64 = 1 << 20

// Params configures one Estimate call.
type Params struct {
	Seed       int64    // derives the siphash key; must match across the group
	StartDepth int      // initial candidate depth d (bytes)
	Cap        int      // depth at which the round loop stops and the exact pass takes over
	Encoding   Encoding // hash transport for step 3
}

// Estimate computes, for every string in c, a distinguishing prefix
// length (spec.md §4.5). A string settled in a hashing round gets that
// round's depth d (capped at its length), which can exceed its minimum
// distinguishing prefix; only strings left to the exact pass get the
// minimum. The result has one entry per string, in c's current order,
// each in [0, len(string)].
func Estimate(g *fabric.Group, c *dstring.Container, params Params, trk tracker.Tracker) ([]int, error) {
	n := c.Len()
	prefixLen := make([]int, n)
	for i := range prefixLen {
		prefixLen[i] = -1
	}

	candidates := make([]int, n)
	for i := range candidates {
		candidates[i] = i
	}

	k0 := uint64(params.Seed)
	k1 := uint64(params.Seed) ^ 0x9E3779B97F4A7C15

	d := params.StartDepth
	if d <= 0 {
		d = 8
	}
	capDepth := params.Cap
	if capDepth <= 0 {
		capDepth = 256
	}
	for len(candidates) > 0 && d < capDepth {
		next, err := round(g, c, candidates, prefixLen, d, k0, k1, params.Encoding)
		if err != nil {
			return nil, err
		}
		candidates = next
		d *= 2
		tracker.Add(trk, "prefix-candidates-remaining", float64(len(candidates)))
	}

	if err := exactPass(g, c, candidates, prefixLen); err != nil {
		return nil, err
	}
	return prefixLen, nil
}

type hashEntry struct {
	hash uint64
	pos  int
}

// round runs one prefix-doubling round (spec.md §4.5 "Per round") and
// returns the next round's candidate positions.
func round(g *fabric.Group, c *dstring.Container, candidates []int, prefixLen []int, d int, k0, k1 uint64, enc Encoding) ([]int, error) {
	p := g.Size()

	var live []hashEntry
	for _, pos := range candidates {
		b := c.Bytes(pos)
		if len(b) < d {
			prefixLen[pos] = len(b)
			continue
		}
		n := d
		h0, _ := siphash.Hash128(k0, k1, b[:n])
		live = append(live, hashEntry{hash: h0 % filterSize, pos: pos})
	}
	sort.Slice(live, func(i, j int) bool { return live[i].hash < live[j].hash })

	var nextCandidates []int
	// repHashes[i] is a representative hash sent onward; repOwners[i] is its
	// local position, used only to route a remote-duplicate answer back.
	var repHashes []uint64
	var repOwners []int
	i := 0
	for i < len(live) {
		j := i + 1
		for j < len(live) && live[j].hash == live[i].hash {
			j++
		}
		if j-i >= 2 {
			for k := i; k < j; k++ {
				nextCandidates = append(nextCandidates, live[k].pos)
			}
		}
		repHashes = append(repHashes, live[i].hash)
		repOwners = append(repOwners, live[i].pos)
		i = j
	}

	// Step 3: redistribution by hash bucket. The repIdx carried alongside
	// each hash is local to this rank; the AllToAll slot position tells
	// every receiver which rank it came from, so rank need not be
	// embedded in the value itself.
	sendHashes := make([][]uint64, p)
	sendRepIdx := make([][]uint64, p)
	for repIdx, h := range repHashes {
		bucket := int((h * uint64(p)) / filterSize)
		if bucket >= p {
			bucket = p - 1
		}
		sendHashes[bucket] = append(sendHashes[bucket], h)
		sendRepIdx[bucket] = append(sendRepIdx[bucket], uint64(repIdx))
	}

	sendBuf := make([][]byte, p)
	for r := 0; r < p; r++ {
		sendBuf[r] = encodeHashes(sendHashes[r], enc)
	}
	recvBuf := g.AllToAll(sendBuf)
	recvIdxBuf := g.AllToAll(sendRepIdx2bytes(sendRepIdx))

	recvHashes := make([][]uint64, p)
	recvRepIdx := make([][]uint64, p)
	for r := 0; r < p; r++ {
		recvHashes[r] = decodeHashes(recvBuf[r], enc)
		recvRepIdx[r] = dstring.DecodeIndices(recvIdxBuf[r])
	}

	// Step 4: remote duplicate detection via a K-way merge of the P
	// incoming (already sorted) hash streams, using heap.go's generic
	// min-heap over per-source cursors.
	dupSources, dupRepIdx := mergeFindDuplicates(recvHashes, recvRepIdx)

	// Route duplicate answers back to the originating processors.
	sendDup := make([][]uint64, p)
	for i, src := range dupSources {
		sendDup[src] = append(sendDup[src], dupRepIdx[i])
	}
	recvDup := g.AllToAll(encodeUint64Slices(sendDup))

	for r := 0; r < p; r++ {
		for _, repIdx := range dstring.DecodeIndices(recvDup[r]) {
			if int(repIdx) < len(repOwners) {
				nextCandidates = append(nextCandidates, repOwners[repIdx])
			}
		}
	}

	// A representative owned a run of size 1: if it was never flagged,
	// its depth-d prefix is globally unique; resolve it now. Runs of
	// size >= 2 were already appended to nextCandidates above and are
	// resolved (if at all) only through that path, so track resolution
	// per representative instead of recomputing run sizes here.
	flagged := make(map[int]bool, len(nextCandidates))
	for _, pos := range nextCandidates {
		flagged[pos] = true
	}
	for repIdx := 0; repIdx < len(repOwners); repIdx++ {
		pos := repOwners[repIdx]
		if !flagged[pos] {
			prefixLen[pos] = d
		}
	}

	return dedupInts(nextCandidates), nil
}

func dedupInts(vals []int) []int {
	if len(vals) < 2 {
		return vals
	}
	seen := make(map[int]bool, len(vals))
	out := vals[:0]
	for _, v := range vals {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// encodeHashes assumes hashes is already in ascending order, which it
// always is here: sendHashes[r] is built by bucketing repHashes (itself
// ascending, from the sorted `live` array) in increasing repIdx order,
// which preserves relative order within every bucket.
func encodeHashes(hashes []uint64, enc Encoding) []byte {
	switch enc {
	case GolombSequential:
		return golomb.EncodeDeltas(hashes, golombB)
	default:
		return dstring.EncodeIndices(hashes)
	}
}

func decodeHashes(buf []byte, enc Encoding) []uint64 {
	switch enc {
	case GolombSequential:
		return golomb.DecodeDeltas(buf, golombB)
	default:
		return dstring.DecodeIndices(buf)
	}
}

func sendRepIdx2bytes(perDest [][]uint64) [][]byte {
	out := make([][]byte, len(perDest))
	for i, v := range perDest {
		out[i] = dstring.EncodeIndices(v)
	}
	return out
}

func encodeUint64Slices(perDest [][]uint64) [][]byte {
	out := make([][]byte, len(perDest))
	for i, v := range perDest {
		out[i] = dstring.EncodeIndices(v)
	}
	return out
}

// hashCursor walks one source's incoming (hash, repIdx) stream
// in ascending hash order.
type hashCursor struct {
	hashes []uint64
	idxs   []uint64
	pos    int
	src    int
}

func (hc *hashCursor) done() bool { return hc.pos >= len(hc.hashes) }

func cursorLess(a, b *hashCursor) bool {
	ad, bd := a.done(), b.done()
	if ad && bd {
		return false
	}
	if ad != bd {
		return bd // a is "less" (sorts first) iff b is the one that's done
	}
	return a.hashes[a.pos] < b.hashes[b.pos]
}

// mergeFindDuplicates merges P per-source ascending hash streams and
// reports, for every adjacent pair of equal hash values in the merged
// order, the (source, repIdx) of each member so the caller can
// route a duplicate answer back to the originating processor.
func mergeFindDuplicates(recvHashes [][]uint64, recvRepIdx [][]uint64) (sources []int, repIdx []uint64) {
	cursors := make([]*hashCursor, len(recvHashes))
	for r := range recvHashes {
		cursors[r] = &hashCursor{hashes: recvHashes[r], idxs: recvRepIdx[r], src: r}
	}
	heap.OrderSlice(cursors, cursorLess)

	havePrev := false
	var prevHash uint64
	var prevSrc int
	var prevIdx uint64
	for len(cursors) > 0 && !cursors[0].done() {
		cur := cursors[0]
		h := cur.hashes[cur.pos]
		idx := cur.idxs[cur.pos]
		src := cur.src
		if havePrev && h == prevHash {
			sources = append(sources, prevSrc, src)
			repIdx = append(repIdx, prevIdx, idx)
		}
		prevHash, prevSrc, prevIdx, havePrev = h, src, idx, true
		cur.pos++
		heap.FixSlice(cursors, 0, cursorLess)
	}
	return sources, repIdx
}

// exactPass implements spec.md §4.5's "Exact pass": gather the
// remaining candidates, sort them globally, and set each one's
// distinguishing prefix from its adjacent LCPs.
func exactPass(g *fabric.Group, c *dstring.Container, candidates []int, prefixLen []int) error {
	rank := g.Rank()
	p := g.Size()

	var buf []byte
	var packed []uint64
	for _, pos := range candidates {
		buf = append(buf, c.Bytes(pos)...)
		buf = append(buf, 0)
		packed = append(packed, (uint64(uint32(rank))<<32)|uint64(uint32(pos)))
	}

	byteContribs := g.AllGather(buf)
	idxContribs := g.AllGather(dstring.EncodeIndices(packed))

	var allBuf []byte
	var allPacked []uint64
	for r := 0; r < p; r++ {
		allBuf = append(allBuf, byteContribs[r]...)
		allPacked = append(allPacked, dstring.DecodeIndices(idxContribs[r])...)
	}
	if len(allPacked) == 0 {
		return nil
	}

	gathered, err := dstring.NewIndexed(allBuf, allPacked)
	if err != nil {
		return err
	}
	gathered.Sort()
	gathered.ComputeLCPs()
	lcps := gathered.LCPs()

	for i := 0; i < gathered.Len(); i++ {
		packedIdx := gathered.Index(i)
		owner := int(int32(packedIdx >> 32))
		pos := int(int32(packedIdx))
		if owner != rank {
			continue
		}
		left := int(lcps[i])
		right := 0
		if i+1 < gathered.Len() {
			right = int(lcps[i+1])
		}
		d := left
		if right > d {
			d = right
		}
		d++
		if b := len(c.Bytes(pos)); d > b {
			d = b
		}
		prefixLen[pos] = d
	}
	return nil
}
