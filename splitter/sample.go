package splitter

import "github.com/sneller-labs/dstrsort/dstring"

// Sampler draws a deterministic, seed-free sample of k strings from c's
// local state, per spec.md §4.3's sampling contract.
type Sampler func(c *dstring.Container, k int) (*dstring.Container, error)

// NumStrings picks k evenly-spaced strings from the local container
// (spec.md §4.3 "num-strings" policy).
func NumStrings(c *dstring.Container, k int) (*dstring.Container, error) {
	n := c.Len()
	if n == 0 || k <= 0 {
		return dstring.Pick(c, nil)
	}
	if k > n {
		k = n
	}
	positions := make([]int, k)
	for i := 0; i < k; i++ {
		positions[i] = i * n / k
	}
	return dstring.Pick(c, positions)
}

// NumChars walks the local container accumulating string lengths and
// emits a sample element each time it crosses a character-count
// stride, aiming for roughly k samples overall (spec.md §4.3
// "num-chars" policy).
func NumChars(c *dstring.Container, k int) (*dstring.Container, error) {
	n := c.Len()
	if n == 0 || k <= 0 {
		return dstring.Pick(c, nil)
	}
	total := 0
	for i := 0; i < n; i++ {
		total += len(c.Bytes(i)) + 1
	}
	stride := total / k
	if stride <= 0 {
		stride = 1
	}
	var positions []int
	acc := 0
	for i := 0; i < n; i++ {
		acc += len(c.Bytes(i)) + 1
		if acc >= stride {
			positions = append(positions, i)
			acc = 0
		}
	}
	return dstring.Pick(c, positions)
}
