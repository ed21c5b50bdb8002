// Package sorterr defines the sentinel error taxonomy shared across
// every component (spec.md §7). Each is wrapped with fmt.Errorf("%w:
// ...") at its call site so callers can still errors.Is against the
// category while the message carries the specific detail. Imbalance
// after partitioning is deliberately absent here: spec.md §7 treats it
// as a tracker metric, never an error.
package sorterr

import "errors"

var (
	// ErrGroupSizeNotPowerOfTwo marks a group-size precondition
	// violation: C2, C4, and C10 all require a power-of-two group.
	ErrGroupSizeNotPowerOfTwo = errors.New("group size is not a power of two")

	// ErrCorruptContainer marks a string-container invariant violation:
	// a buffer that doesn't end at a terminator, or a record/index
	// count mismatch.
	ErrCorruptContainer = errors.New("corrupt string container")

	// ErrTransport marks a message-passing failure surfaced to the
	// entry point; there is no retry.
	ErrTransport = errors.New("message transport failure")

	// ErrPivotArity marks a candidate or merge-fan-in set of the wrong
	// size: a median candidate set larger than k, or a loser-tree
	// asked to merge a K outside [1,512] or not a power of two.
	ErrPivotArity = errors.New("pivot or merge candidate set has the wrong arity")
)
