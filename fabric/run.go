package fabric

import (
	"fmt"
	"sync"

	"github.com/sneller-labs/dstrsort/compr"
)

// Run simulates a cluster of n tightly-coupled processors: it spawns n
// goroutines, hands each one a *Group over a fresh World spanning all n
// ranks, and runs fn on every one of them concurrently (the SPMD model
// of spec.md §5). Run blocks until every goroutine returns.
//
// If any invocation of fn panics or returns an error, the World is
// aborted (unblocking every processor still waiting on a Recv or
// Barrier, per spec.md §7) and Run returns that error once every
// goroutine has unwound.
func Run(n int, fn func(g *Group) error) error {
	return run(n, nil, fn)
}

// RunCompressed is Run with wire compression turned on for every
// message at or above the internal size threshold, using the named
// compr codec ("s2", "zstd", or "zstd-better"). It exists so a large
// simulated cluster can be run the way a real deployment over an
// actual network would be: paying a real (de)compression cost on
// large collectives (AllGather, AllToAll) rather than the free
// in-process byte-slice handoff Run gives every payload. Unknown
// codec names are rejected before any goroutine is spawned.
func RunCompressed(n int, codecName string, fn func(g *Group) error) error {
	codec := compr.Compression(codecName)
	// zstd-better only changes encoder settings; the wire format (and
	// so the decoder) is identical to plain zstd.
	decodeName := codecName
	if decodeName == "zstd-better" {
		decodeName = "zstd"
	}
	decodec := compr.Decompression(decodeName)
	if codec == nil || decodec == nil {
		return fmt.Errorf("fabric: unknown compression codec %q", codecName)
	}
	return run(n, func(w *World) { w.codec, w.decodec = codec, decodec }, fn)
}

func run(n int, configure func(*World), fn func(g *Group) error) error {
	if n <= 0 {
		return fmt.Errorf("fabric: n must be positive, got %d", n)
	}
	w := newWorld(n)
	if configure != nil {
		configure(w)
	}
	var wg sync.WaitGroup
	errs := make([]error, n)
	wg.Add(n)
	for r := 0; r < n; r++ {
		go func(rank int) {
			defer wg.Done()
			g := &Group{w: w, lo: 0, hi: n, worldRnk: rank}
			defer func() {
				if p := recover(); p != nil {
					err := panicToError(p)
					errs[rank] = err
					w.Abort(err)
				}
			}()
			if err := fn(g); err != nil {
				errs[rank] = err
				w.Abort(err)
			}
		}(r)
	}
	wg.Wait()
	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}

func panicToError(p interface{}) error {
	if err, ok := p.(error); ok {
		return err
	}
	return fmt.Errorf("fabric: panic: %v", p)
}
