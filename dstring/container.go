// Package dstring implements the string container (C1): a contiguous
// byte buffer of zero-terminated strings plus a parallel record array,
// with an opt-in indexed mode that tags every string with a stable
// 64-bit global index (spec.md §3).
package dstring

import (
	"bytes"
	"fmt"
	"sort"

	"golang.org/x/exp/slices"

	"github.com/sneller-labs/dstrsort/sorterr"
)

// Record locates one string inside a Container's byte buffer and,
// in indexed mode, carries its global index.
type Record struct {
	Off, Len int
	Index    uint64
}

// Container owns a contiguous byte buffer of zero-terminated strings
// and the record array describing it. Ownership of the buffer is
// transferred, never copied, across the operations that move a
// Container between recursion frames or processors (spec.md §9
// "Container ownership").
type Container struct {
	buf     []byte
	recs    []Record
	indexed bool
	lcps    []uint64 // len(lcps) == len(recs) when attached; lcps[0] == 0
	sorted  bool
}

// New builds a non-indexed Container by scanning buf for zero
// terminators.
func New(buf []byte) (*Container, error) {
	c := &Container{buf: buf}
	if err := c.rescan(nil); err != nil {
		return nil, err
	}
	return c, nil
}

// NewIndexed builds an indexed Container from buf and a parallel index
// slice: indices[i] is the global index of the i-th zero-terminated
// string found in buf, in scan order.
func NewIndexed(buf []byte, indices []uint64) (*Container, error) {
	c := &Container{buf: buf, indexed: true}
	if err := c.rescan(indices); err != nil {
		return nil, err
	}
	return c, nil
}

// Indexed reports whether the container carries per-string indices.
func (c *Container) Indexed() bool { return c.indexed }

// Len returns the number of strings in the container.
func (c *Container) Len() int { return len(c.recs) }

// Sorted reports whether the container has been marked sorted by Sort.
// It is invalidated by any mutation.
func (c *Container) Sorted() bool { return c.sorted }

// Bytes returns the bytes of the i-th string, excluding its terminator.
// The returned slice aliases the container's buffer and must not be
// retained past the container's next mutation.
func (c *Container) Bytes(i int) []byte {
	r := c.recs[i]
	return c.buf[r.Off : r.Off+r.Len]
}

// Index returns the global index of the i-th string. Valid only when
// Indexed() is true.
func (c *Container) Index(i int) uint64 { return c.recs[i].Index }

// Record returns a copy of the i-th record.
func (c *Container) Record(i int) Record { return c.recs[i] }

// Records returns the container's record slice directly (not a copy).
func (c *Container) Records() []Record { return c.recs }

// RawBytes returns the container's backing buffer directly (not a
// copy).
func (c *Container) RawBytes() []byte { return c.buf }

// LCPs returns the attached LCP array, or nil if none is attached.
// lcps[i] is the longest common prefix between record i and record
// i-1 under the container's current order; lcps[0] is always 0.
func (c *Container) LCPs() []uint64 { return c.lcps }

// AttachLCPs installs a precomputed LCP array. len(lcps) must equal
// Len().
func (c *Container) AttachLCPs(lcps []uint64) error {
	if len(lcps) != len(c.recs) {
		return fmt.Errorf("dstring: %w: lcps length %d != record count %d", sorterr.ErrCorruptContainer, len(lcps), len(c.recs))
	}
	c.lcps = lcps
	return nil
}

// ComputeLCPs recomputes the LCP array by scanning the current (already
// sorted) record order.
func (c *Container) ComputeLCPs() {
	lcps := make([]uint64, len(c.recs))
	for i := 1; i < len(c.recs); i++ {
		lcps[i] = uint64(commonPrefix(c.Bytes(i-1), c.Bytes(i)))
	}
	c.lcps = lcps
}

// CommonPrefixLen returns the length of the longest common prefix of a
// and b.
func CommonPrefixLen(a, b []byte) int { return commonPrefix(a, b) }

func commonPrefix(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}

// Less reports whether string i sorts before string j under the
// container's active order: lexicographic byte order, then (in indexed
// mode) ascending index as a stable tiebreak, per spec.md §3.
func (c *Container) Less(i, j int) bool {
	return c.Compare(i, j) < 0
}

// Compare returns a negative, zero, or positive value comparing
// strings i and j under the container's active order.
func (c *Container) Compare(i, j int) int {
	cmp := bytes.Compare(c.Bytes(i), c.Bytes(j))
	if cmp != 0 || !c.indexed {
		return cmp
	}
	ri, rj := c.recs[i].Index, c.recs[j].Index
	switch {
	case ri < rj:
		return -1
	case ri > rj:
		return 1
	default:
		return 0
	}
}

// CompareBytes compares string i against an external (bytes, index)
// pair under the same order Less/Compare use. It is the primitive the
// splitter partitioner's binary search (C5 §4.3) and the hyper-quicksort
// engine's lower/upper bound search (C4 §4.2) are built on.
func (c *Container) CompareBytes(i int, b []byte, index uint64) int {
	cmp := bytes.Compare(c.Bytes(i), b)
	if cmp != 0 || !c.indexed {
		return cmp
	}
	switch {
	case c.recs[i].Index < index:
		return -1
	case c.recs[i].Index > index:
		return 1
	default:
		return 0
	}
}

// Sort sorts the container's records in place under its active order
// and marks it sorted. Any attached LCP array is dropped; call
// ComputeLCPs to rebuild it if needed.
func (c *Container) Sort() {
	slices.SortFunc(c.recs, func(a, b Record) bool {
		cmp := bytes.Compare(c.buf[a.Off:a.Off+a.Len], c.buf[b.Off:b.Off+b.Len])
		if cmp != 0 || !c.indexed {
			return cmp < 0
		}
		return a.Index < b.Index
	})
	c.lcps = nil
	c.sorted = true
}

// IsLocallySorted reports whether the record order already satisfies
// the container's active order, without mutating it.
func (c *Container) IsLocallySorted() bool {
	return sort.SliceIsSorted(c.recs, func(i, j int) bool { return c.Compare(i, j) < 0 })
}

// Rebuild replaces the container's buffer with buf and rescans it for
// zero terminators, rebuilding the record array. In indexed mode,
// indices must supply one index per string found, in scan order. Any
// attached LCP array is dropped.
func (c *Container) Rebuild(buf []byte, indices []uint64) error {
	c.buf = buf
	c.lcps = nil
	c.sorted = false
	return c.rescan(indices)
}

// MoveRecords replaces both the buffer and the record array directly,
// without rescanning. The caller asserts that recs correctly describes
// buf. This is the fast path hyper-quicksort's merge step (C4 §4.2.4)
// and the splitter partitioner's final merge (C5) use to install their
// output without a redundant terminator scan.
func (c *Container) MoveRecords(buf []byte, recs []Record, sorted bool) {
	c.buf = buf
	c.recs = recs
	c.lcps = nil
	c.sorted = sorted
}

// Slice extracts records [lo,hi) into a fresh, self-contained Container
// with its own buffer, preserving relative order and sortedness. It is
// the building block hyper-quicksort's local partition step (spec.md
// §4.2) uses to split a container at a pivot position without
// disturbing the original.
func Slice(c *Container, lo, hi int) (*Container, error) {
	positions := make([]int, hi-lo)
	for i := range positions {
		positions[i] = lo + i
	}
	out, err := Pick(c, positions)
	if err != nil {
		return nil, err
	}
	out.sorted = c.sorted
	return out, nil
}

// Pick extracts the records at positions (in the given order) into a
// fresh, self-contained Container with its own buffer. positions need
// not be contiguous or sorted; the splitter partitioner's sampling
// step (spec.md §4.3) uses this directly to pull evenly-spaced or
// stride-selected records out of a much larger container.
func Pick(c *Container, positions []int) (*Container, error) {
	recs := make([]Record, len(positions))
	for i, p := range positions {
		recs[i] = c.recs[p]
	}
	buf := Concat(c.buf, recs)
	if c.indexed {
		idx := make([]uint64, len(recs))
		for i, r := range recs {
			idx[i] = r.Index
		}
		return NewIndexed(buf, idx)
	}
	return New(buf)
}

func (c *Container) rescan(indices []uint64) error {
	recs := make([]Record, 0, len(c.buf)/8+1)
	start := 0
	for i, b := range c.buf {
		if b == 0 {
			recs = append(recs, Record{Off: start, Len: i - start})
			start = i + 1
		}
	}
	if start != len(c.buf) {
		return fmt.Errorf("dstring: %w: buffer does not end at a terminator (trailing %d bytes)", sorterr.ErrCorruptContainer, len(c.buf)-start)
	}
	if c.indexed {
		if len(indices) != len(recs) {
			return fmt.Errorf("dstring: %w: %d indices for %d strings", sorterr.ErrCorruptContainer, len(indices), len(recs))
		}
		for i := range recs {
			recs[i].Index = indices[i]
		}
	}
	c.recs = recs
	return nil
}

// Concat builds a new zero-terminated byte buffer from recs read out of
// src, in recs' order, and rewrites each record's Off in place to
// address the new buffer (Len and Index are left untouched). It is the
// building block every redistribution and merge step in this module
// uses to materialize a new Container's buffer (spec.md §9 "Container
// ownership": the buffer and record array must be moved, or rebuilt,
// together).
func Concat(src []byte, recs []Record) []byte {
	total := 0
	for _, r := range recs {
		total += r.Len + 1
	}
	out := make([]byte, total)
	off := 0
	for i, r := range recs {
		copy(out[off:], src[r.Off:r.Off+r.Len])
		off += r.Len
		out[off] = 0
		off++
		recs[i].Off = off - r.Len - 1
	}
	return out
}
