package main

import (
	"fmt"
	"math/rand"
)

// generate produces n strings (without terminators) of roughly strLen bytes
// under the named distribution, matching scenario 5 of spec.md §8:
// random draws from a wide alphabet, dn-ratio caps the number of
// distinct values to distinctRatio*n (heavy duplication), skewed
// draws from a small Zipfian-weighted dictionary (a handful of values
// dominate), and shared-prefix fixes a long common prefix across
// every string so only the tail bytes vary (stresses C7's
// distinguishing-prefix estimation).
func generate(dist string, rnd *rand.Rand, n, strLen, rank int, distinctRatio float64) ([]string, error) {
	switch dist {
	case "random":
		return randomStrings(rnd, n, strLen), nil
	case "dn-ratio":
		if distinctRatio <= 0 {
			distinctRatio = 0.1
		}
		return dnRatioStrings(rnd, n, strLen, distinctRatio), nil
	case "skewed":
		return skewedStrings(rnd, n, strLen), nil
	case "shared-prefix":
		return sharedPrefixStrings(rnd, n, strLen, rank), nil
	default:
		return nil, fmt.Errorf("unknown distribution %q", dist)
	}
}

const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomString(rnd *rand.Rand, length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = alphabet[rnd.Intn(len(alphabet))]
	}
	return string(b)
}

func randomStrings(rnd *rand.Rand, n, strLen int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = randomString(rnd, strLen)
	}
	return out
}

// dnRatioStrings draws from a fixed pool of max(1, ratio*n) distinct
// values, so the D:N (distinct-to-total) ratio of the resulting set
// is approximately ratio.
func dnRatioStrings(rnd *rand.Rand, n, strLen int, ratio float64) []string {
	d := int(ratio * float64(n))
	if d < 1 {
		d = 1
	}
	pool := make([]string, d)
	for i := range pool {
		pool[i] = randomString(rnd, strLen)
	}
	out := make([]string, n)
	for i := range out {
		out[i] = pool[rnd.Intn(d)]
	}
	return out
}

// skewedStrings draws from a small dictionary with Zipfian weights, so
// a handful of values account for most of the output.
func skewedStrings(rnd *rand.Rand, n, strLen int) []string {
	const dictSize = 64
	dict := make([]string, dictSize)
	for i := range dict {
		dict[i] = randomString(rnd, strLen)
	}
	z := rand.NewZipf(rnd, 1.5, 1, uint64(dictSize-1))
	out := make([]string, n)
	for i := range out {
		out[i] = dict[z.Uint64()]
	}
	return out
}

// sharedPrefixStrings fixes a rank-specific common prefix covering all
// but the last few bytes of every string it emits.
func sharedPrefixStrings(rnd *rand.Rand, n, strLen, rank int) []string {
	tailLen := 4
	if tailLen > strLen {
		tailLen = strLen
	}
	prefix := fmt.Sprintf("shared-prefix-rank-%02d-", rank)
	for len(prefix) < strLen-tailLen {
		prefix += "x"
	}
	prefix = prefix[:strLen-tailLen]
	out := make([]string, n)
	for i := range out {
		out[i] = prefix + randomString(rnd, tailLen)
	}
	return out
}
