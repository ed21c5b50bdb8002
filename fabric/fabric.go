// Package fabric simulates the tightly-coupled, message-passing cluster
// that the distributed string-sorting engine runs on. Each simulated
// processor is one goroutine; processors never share memory except
// through the mailboxes this package manages, so every suspension point
// is a send, a receive, a barrier, or a collective, matching the
// concurrency model of spec.md §5.
package fabric

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sneller-labs/dstrsort/compr"
)

// compressionThreshold is the minimum payload size worth spending a
// Compress call on; below it the framing overhead alone would erase
// any win. Chosen to comfortably clear a handful of wire-format u64s
// or short string payloads, the smallest messages this engine sends.
const compressionThreshold = 256

// AbortError is the panic value raised on every processor of a World
// once one of them calls World.Abort. It is the Go analogue of spec.md
// §7's "first processor to detect an invariant violation aborts
// unilaterally, which induces collective failure of the group at the
// next communication step."
type AbortError struct {
	Cause error
}

func (e *AbortError) Error() string { return fmt.Sprintf("fabric: group aborted: %v", e.Cause) }
func (e *AbortError) Unwrap() error { return e.Cause }

type msgKey struct {
	src int
	tag int
}

type mailbox struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending map[msgKey][][]byte
}

func newMailbox() *mailbox {
	mb := &mailbox{pending: make(map[msgKey][][]byte)}
	mb.cond = sync.NewCond(&mb.mu)
	return mb
}

func (mb *mailbox) deliver(src, tag int, data []byte) {
	mb.mu.Lock()
	k := msgKey{src, tag}
	mb.pending[k] = append(mb.pending[k], data)
	mb.mu.Unlock()
	mb.cond.Broadcast()
}

// take blocks until a message from (src, tag) is available or w aborts.
func (mb *mailbox) take(w *World, src, tag int) []byte {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	k := msgKey{src, tag}
	for {
		if w.aborted.Load() {
			panic(&AbortError{Cause: w.abortErr()})
		}
		if q := mb.pending[k]; len(q) > 0 {
			data := q[0]
			if len(q) == 1 {
				delete(mb.pending, k)
			} else {
				mb.pending[k] = q[1:]
			}
			return data
		}
		mb.cond.Wait()
	}
}

// World is one communicator: a fixed set of mailboxes, one per rank.
// A fresh World is created by Run (the top-level communicator) and by
// Group.Dup (an independent communicator of the same size, used by the
// splitter partitioner to route its sample sort through a communicator
// that is not a sub-communicator of the caller's group, per spec.md §4.3).
type World struct {
	boxes    []*mailbox
	mu       sync.Mutex
	children map[string]*World

	codec   compr.Compressor
	decodec compr.Decompressor

	aborted atomic.Bool
	errMu   sync.Mutex
	err     error
}

func newWorld(n int) *World {
	boxes := make([]*mailbox, n)
	for i := range boxes {
		boxes[i] = newMailbox()
	}
	return &World{boxes: boxes, children: make(map[string]*World)}
}

// encode frames data for the wire. With no codec configured (the
// default, zero-overhead path every existing caller gets) it returns
// data unchanged. With a codec configured, payloads at or above
// compressionThreshold are compressed and tagged with a one-byte
// frame kind plus the original length, so decode can size its output
// buffer without a second round trip.
func (w *World) encode(data []byte) []byte {
	if w.codec == nil {
		return data
	}
	if len(data) < compressionThreshold {
		return append([]byte{0}, data...)
	}
	compressed := w.codec.Compress(data, nil)
	if len(compressed) >= len(data) {
		return append([]byte{0}, data...)
	}
	out := make([]byte, 9, 9+len(compressed))
	out[0] = 1
	binary.LittleEndian.PutUint64(out[1:9], uint64(len(data)))
	return append(out, compressed...)
}

func (w *World) decode(data []byte) []byte {
	if w.decodec == nil {
		return data
	}
	if len(data) == 0 {
		return data
	}
	switch data[0] {
	case 0:
		return data[1:]
	case 1:
		origLen := binary.LittleEndian.Uint64(data[1:9])
		dst := make([]byte, origLen)
		if err := w.decodec.Decompress(data[9:], dst); err != nil {
			panic(&AbortError{Cause: fmt.Errorf("fabric: decompress: %w", err)})
		}
		return dst
	default:
		panic(&AbortError{Cause: fmt.Errorf("fabric: corrupt compressed frame, tag byte %d", data[0])})
	}
}

func (w *World) size() int { return len(w.boxes) }

// Abort marks w (and every processor currently blocked on it) as
// failed. It is idempotent: only the first call's error is kept.
func (w *World) Abort(err error) {
	w.errMu.Lock()
	if w.err == nil {
		w.err = err
	}
	w.errMu.Unlock()
	w.aborted.Store(true)
	for _, b := range w.boxes {
		b.mu.Lock()
		b.cond.Broadcast()
		b.mu.Unlock()
	}
}

func (w *World) abortErr() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	return w.err
}

// dup returns (creating on first use) the World that backs Group.Dup for
// the sub-range [lo,hi) of w under the given key. All ranks of the group
// must call Dup with the identical key so they converge on the same
// child World without any extra handshake.
func (w *World) dup(lo, hi int, key string) *World {
	w.mu.Lock()
	defer w.mu.Unlock()
	full := fmt.Sprintf("%d:%d:%s", lo, hi, key)
	if c, ok := w.children[full]; ok {
		return c
	}
	c := newWorld(hi - lo)
	c.codec, c.decodec = w.codec, w.decodec
	w.children[full] = c
	return c
}
