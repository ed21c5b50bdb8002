// Package dsort implements the entry point of spec.md §6:
// sort(container, tracker, seed, tag, group, mode) -> sorted_container.
// It wires the ten core components into the pipeline spec.md §2's data
// flow diagram draws: container (C1) -> optional prefix estimation
// (C7) -> communicator shaping (C8) -> shuffle (C10) -> a final sort.
package dsort

import (
	"fmt"
	"log"
	"runtime"

	"github.com/google/uuid"

	"github.com/sneller-labs/dstrsort/dstring"
	"github.com/sneller-labs/dstrsort/fabric"
	"github.com/sneller-labs/dstrsort/hyperquicksort"
	"github.com/sneller-labs/dstrsort/internal/randbit"
	"github.com/sneller-labs/dstrsort/prefix"
	"github.com/sneller-labs/dstrsort/shape"
	"github.com/sneller-labs/dstrsort/shuffle"
	"github.com/sneller-labs/dstrsort/splitter"
	"github.com/sneller-labs/dstrsort/tracker"
)

// Mode selects the final sort strategy. Plain runs the sample/splitter
// partitioner (C5) spec.md §2's data-flow diagram draws as the
// pipeline's terminal stage; Robust instead runs the hyper-quicksort
// engine (C4) directly as the top-level sorter with its own
// midpoint-shifted split, matching component C4's documented second
// role ("used both as the final sorter and as an internal sample
// sorter") and the external interface's "mode selects robust splitter
// placement in C4" (spec.md §6). This split is an Open Question
// resolution recorded in DESIGN.md: spec.md names both roles for C4
// but only diagrams the C5 pipeline, so Mode picks between them rather
// than discarding either reading.
type Mode int

const (
	Plain Mode = iota
	Robust
)

// Options configures one Sort call; the group itself is Sort's g
// argument. Every field has a documented default.
type Options struct {
	// Seed seeds the engine's group-synchronous PRNG (spec.md §6:
	// "identical seeds across a group yield identical splitter
	// choices"). Every processor in g must pass the same Seed.
	Seed int64

	// Tag is the base message tag; the engine reserves
	// [Tag, Tag+400000) for its internal stages.
	Tag int

	// Mode selects the final sort strategy (see Mode).
	Mode Mode

	// Barrier toggles a group-wide barrier at every stage boundary
	// (spec.md §5 "measurement barrier flag"). Default on.
	Barrier bool
	barrierSet bool

	// Sample is the C5 sampling policy, used only when Mode == Plain.
	// Defaults to splitter.NumStrings.
	Sample splitter.Sampler

	// EstimatePrefixes runs C7 before C8/C10/the final sort. It never
	// changes the sort's correctness; the computed prefix lengths are
	// recorded to Tracker as a diagnostic ("prefix-mean") only, since
	// this container's comparisons always operate on full byte ranges
	// (see DESIGN.md's dsort entry for why truncated comparison was
	// not wired in).
	EstimatePrefixes bool
	PrefixParams     prefix.Params

	// RunID tags this invocation for logging; if the zero UUID, Sort
	// generates a fresh one.
	RunID uuid.UUID
}

// WithBarrier sets the measurement barrier flag explicitly,
// distinguishing "false" from "left at the zero value" (Options{}'s
// default is barrier-on, per spec.md §5).
func (o Options) WithBarrier(on bool) Options {
	o.Barrier = on
	o.barrierSet = true
	return o
}

func (o Options) barrierOn() bool {
	if !o.barrierSet {
		return true
	}
	return o.Barrier
}

// Sort is the entry point of spec.md §6. c need not be locally sorted
// or its group a power of two on entry; g need not be a power-of-two
// group either. On success every processor holds a contiguous run of
// the globally sorted sequence (spec.md §1).
func Sort(g *fabric.Group, c *dstring.Container, trk tracker.Tracker, opts Options) (*dstring.Container, error) {
	runID := opts.RunID
	if runID == uuid.Nil {
		runID = uuid.New()
	}
	log.Printf("dsort[%s]: rank %d/%d starting, mode=%v, barrier=%v", runID, g.Rank(), g.Size(), opts.Mode, opts.barrierOn())

	indexed := c.Indexed()
	bits := randbit.New(opts.Seed)
	barrier := func(grp *fabric.Group) {
		if opts.barrierOn() {
			grp.Barrier()
		}
	}

	c.SortParallel(runtime.GOMAXPROCS(0))
	barrier(g)

	if opts.EstimatePrefixes {
		params := opts.PrefixParams
		if params.Seed == 0 {
			params.Seed = opts.Seed
		}
		prefixLens, err := prefix.Estimate(g, c, params, trk)
		if err != nil {
			return nil, fmt.Errorf("dsort[%s]: prefix estimation: %w", runID, err)
		}
		var sum, n int64
		for _, d := range prefixLens {
			sum += int64(d)
			n++
		}
		if n > 0 {
			tracker.Add(trk, "prefix-mean", float64(sum)/float64(n))
		}
		barrier(g)
	}

	active, sub, folded, err := shape.Fold(g, c, indexed, trk, opts.Tag)
	if err != nil {
		return nil, fmt.Errorf("dsort[%s]: shape: %w", runID, err)
	}
	if !active {
		log.Printf("dsort[%s]: rank %d folded into an overflow role, returning", runID, g.Rank())
		return folded, nil
	}
	barrier(sub)

	folded.SortParallel(runtime.GOMAXPROCS(0))
	shuffled, err := shuffle.Run(sub, folded, indexed, bits, opts.Tag+100000)
	if err != nil {
		return nil, fmt.Errorf("dsort[%s]: shuffle: %w", runID, err)
	}
	shuffled.SortParallel(runtime.GOMAXPROCS(0))
	barrier(sub)

	var result *dstring.Container
	switch opts.Mode {
	case Robust:
		result, err = hyperquicksort.Sort(sub, shuffled, indexed, hyperquicksort.Robust, bits, opts.Tag+200000)
	default:
		sample := opts.Sample
		if sample == nil {
			sample = splitter.NumStrings
		}
		result, err = splitter.Partition(sub, shuffled, indexed, sample, bits, trk, opts.Tag+200000)
	}
	if err != nil {
		return nil, fmt.Errorf("dsort[%s]: final sort: %w", runID, err)
	}
	barrier(sub)

	log.Printf("dsort[%s]: rank %d done, %d local strings", runID, sub.Rank(), result.Len())
	return result, nil
}
