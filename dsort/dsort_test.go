package dsort

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/sneller-labs/dstrsort/dstring"
	"github.com/sneller-labs/dstrsort/fabric"
	"github.com/sneller-labs/dstrsort/prefix"
)

func buildContainer(t *testing.T, strs []string) *dstring.Container {
	t.Helper()
	var buf []byte
	for _, s := range strs {
		buf = append(buf, s...)
		buf = append(buf, 0)
	}
	c, err := dstring.New(buf)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func runSort(t *testing.T, p int, perProc [][]string, opts Options) [][]string {
	t.Helper()
	results := make([][]string, p)
	err := fabric.Run(p, func(g *fabric.Group) error {
		c := buildContainer(t, perProc[g.Rank()])
		out, err := Sort(g, c, nil, opts)
		if err != nil {
			return err
		}
		strs := make([]string, out.Len())
		for i := 0; i < out.Len(); i++ {
			strs[i] = string(out.Bytes(i))
		}
		results[g.Rank()] = strs
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return results
}

func checkGlobalOrder(t *testing.T, results [][]string) {
	t.Helper()
	var flat []string
	for r, strs := range results {
		if !sort.StringsAreSorted(strs) {
			t.Fatalf("rank %d not locally sorted: %v", r, strs)
		}
		flat = append(flat, strs...)
	}
	if !sort.StringsAreSorted(flat) {
		t.Fatalf("global order violated across rank boundaries: %v", flat)
	}
}

func checkMultisetPreserved(t *testing.T, before, results [][]string) {
	t.Helper()
	var a, b []string
	for _, strs := range before {
		a = append(a, strs...)
	}
	for _, strs := range results {
		b = append(b, strs...)
	}
	sort.Strings(a)
	sort.Strings(b)
	if len(a) != len(b) {
		t.Fatalf("count changed: before %d, after %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("multiset changed at %d: before %q, after %q", i, a[i], b[i])
		}
	}
}

// TestSortTinyPowerOfTwo is spec.md §8 scenario 1.
func TestSortTinyPowerOfTwo(t *testing.T) {
	perProc := [][]string{
		{"apple", "ant", "ape"},
		{"apply", "banana", "bee"},
		{"apple", "ant", "banana"},
		{"ape", "apply", "bee"},
	}
	for _, mode := range []Mode{Plain, Robust} {
		results := runSort(t, 4, perProc, Options{Seed: 1, Mode: mode})
		checkGlobalOrder(t, results)
		checkMultisetPreserved(t, perProc, results)
	}
}

// TestSortNonPowerOfTwo is spec.md §8 scenario 2.
func TestSortNonPowerOfTwo(t *testing.T) {
	rnd := rand.New(rand.NewSource(11))
	alphabet := "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	perProc := make([][]string, 3)
	for r := range perProc {
		for i := 0; i < 5; i++ {
			b := make([]byte, 4)
			for j := range b {
				b[j] = alphabet[rnd.Intn(len(alphabet))]
			}
			perProc[r] = append(perProc[r], string(b))
		}
	}
	for _, mode := range []Mode{Plain, Robust} {
		results := runSort(t, 3, perProc, Options{Seed: 2, Mode: mode})
		checkGlobalOrder(t, results)
		checkMultisetPreserved(t, perProc, results)
	}
}

// TestSortAllEqual is spec.md §8 scenario 3.
func TestSortAllEqual(t *testing.T) {
	perProc := make([][]string, 8)
	for r := range perProc {
		for i := 0; i < 20; i++ {
			perProc[r] = append(perProc[r], "xxxx")
		}
	}
	results := runSort(t, 8, perProc, Options{Seed: 3})
	checkGlobalOrder(t, results)
	checkMultisetPreserved(t, perProc, results)
	for r, strs := range results {
		for _, s := range strs {
			if s != "xxxx" {
				t.Fatalf("rank %d: got %q, want all xxxx", r, s)
			}
		}
	}
}

// TestSortHeavySkew is spec.md §8 scenario 4.
func TestSortHeavySkew(t *testing.T) {
	rnd := rand.New(rand.NewSource(4))
	var owner0 []string
	for i := 0; i < 400; i++ {
		b := make([]byte, 6)
		for j := range b {
			b[j] = byte('a' + rnd.Intn(26))
		}
		owner0 = append(owner0, string(b))
	}
	perProc := [][]string{owner0, nil, nil, nil}
	results := runSort(t, 4, perProc, Options{Seed: 5})
	checkGlobalOrder(t, results)
	checkMultisetPreserved(t, perProc, results)
}

// TestSortIdempotence checks spec.md §8's idempotence property at the
// level the *container* actually means it (spec.md §3 defines the
// container as spanning the full concatenation across ranks): with
// all-distinct strings there is exactly one correct globally sorted
// sequence, so re-sorting an already-sorted input must reproduce that
// same concatenation, even though the shuffle stage (C10) is free to
// redistribute which specific rank ends up owning which run of it.
func TestSortIdempotence(t *testing.T) {
	perProc := [][]string{{"aaa", "bbb"}, {"ccc", "ddd"}, {"eee", "fff"}, {"ggg", "hhh"}}
	first := runSort(t, 4, perProc, Options{Seed: 6})
	second := runSort(t, 4, first, Options{Seed: 6})
	checkGlobalOrder(t, first)
	checkGlobalOrder(t, second)

	var flat1, flat2 []string
	for _, strs := range first {
		flat1 = append(flat1, strs...)
	}
	for _, strs := range second {
		flat2 = append(flat2, strs...)
	}
	if len(flat1) != len(flat2) {
		t.Fatalf("length changed on re-sort: %d vs %d", len(flat1), len(flat2))
	}
	for i := range flat1 {
		if flat1[i] != flat2[i] {
			t.Fatalf("concatenation[%d]: %q became %q on re-sort", i, flat1[i], flat2[i])
		}
	}
}

func TestSortWithPrefixEstimation(t *testing.T) {
	perProc := [][]string{{"apple", "ant"}, {"apply", "banana"}}
	results := runSort(t, 2, perProc, Options{Seed: 7, EstimatePrefixes: true, PrefixParams: prefixParamsSmall()})
	checkGlobalOrder(t, results)
	checkMultisetPreserved(t, perProc, results)
}

func prefixParamsSmall() prefix.Params {
	return prefix.Params{StartDepth: 1, Cap: 8}
}

func TestSortSingleProcessor(t *testing.T) {
	perProc := [][]string{{"z", "a", "m"}}
	results := runSort(t, 1, perProc, Options{Seed: 8})
	checkGlobalOrder(t, results)
	checkMultisetPreserved(t, perProc, results)
}
