package shape

import (
	"fmt"
	"sort"
	"testing"

	"github.com/sneller-labs/dstrsort/dstring"
	"github.com/sneller-labs/dstrsort/fabric"
)

func buildSorted(t *testing.T, strs []string) *dstring.Container {
	t.Helper()
	sort.Strings(strs)
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

func TestFoldPowerOfTwoIsNoOp(t *testing.T) {
	const p = 4
	perProc := [][]string{{"a"}, {"b"}, {"c"}, {"d"}}
	err := fabric.Run(p, func(g *fabric.Group) error {
		c := buildSorted(t, append([]string(nil), perProc[g.Rank()]...))
		active, sub, out, err := Fold(g, c, false, nil, 1)
		if err != nil {
			return err
		}
		if !active {
			return fmt.Errorf("rank %d: expected active", g.Rank())
		}
		if sub.Size() != p {
			return fmt.Errorf("rank %d: expected unchanged group size %d, got %d", g.Rank(), p, sub.Size())
		}
		if out.Len() != 1 {
			return fmt.Errorf("rank %d: expected 1 string, got %d", g.Rank(), out.Len())
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestFoldNonPowerOfTwo(t *testing.T) {
	// P=3: Q=2. Rank 2 ships to rank 0, then rank 0 owns 2 strings and
	// rank 1 owns 1; the active group is [0,2).
	const p = 3
	perProc := [][]string{{"aaa"}, {"bbb"}, {"ccc"}}
	results := make([]int, p)
	activeFlags := make([]bool, p)
	err := fabric.Run(p, func(g *fabric.Group) error {
		c := buildSorted(t, append([]string(nil), perProc[g.Rank()]...))
		active, sub, out, err := Fold(g, c, false, nil, 1)
		if err != nil {
			return err
		}
		activeFlags[g.Rank()] = active
		if active && sub.Size() != 2 {
			return fmt.Errorf("rank %d: sub size %d, want 2", g.Rank(), sub.Size())
		}
		results[g.Rank()] = out.Len()
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if !activeFlags[0] || !activeFlags[1] || activeFlags[2] {
		t.Fatalf("activeFlags = %v, want [true, true, false]", activeFlags)
	}
	if results[0] != 2 {
		t.Fatalf("rank 0 got %d strings, want 2 (own + shipped from rank 2)", results[0])
	}
	if results[1] != 1 {
		t.Fatalf("rank 1 got %d strings, want 1", results[1])
	}
	if results[2] != 0 {
		t.Fatalf("rank 2 got %d strings, want 0 (overflow, empty)", results[2])
	}
}

func TestFoldIndexedPreservesIndices(t *testing.T) {
	const p = 3
	rank0Indices := make([]uint64, 0)
	err := fabric.Run(p, func(g *fabric.Group) error {
		strs := [][]string{{"aaa"}, {"bbb"}, {"ccc"}}[g.Rank()]
		idxs := [][]uint64{{10}, {20}, {30}}[g.Rank()]
		var buf []byte
		for _, s := range strs {
			buf = append(buf, s...)
			buf = append(buf, 0)
		}
		c, err := dstring.NewIndexed(buf, idxs)
		if err != nil {
			return err
		}
		active, _, out, err := Fold(g, c, true, nil, 1)
		if err != nil {
			return err
		}
		if g.Rank() == 0 {
			if !active || out.Len() != 2 {
				return fmt.Errorf("rank 0: active=%v len=%d", active, out.Len())
			}
			for i := 0; i < out.Len(); i++ {
				rank0Indices = append(rank0Indices, out.Index(i))
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	seen := map[uint64]bool{}
	for _, v := range rank0Indices {
		seen[v] = true
	}
	if !seen[10] || !seen[30] {
		t.Fatalf("rank 0: missing indices, got %v", rank0Indices)
	}
}

func TestFoldSingleProcessor(t *testing.T) {
	err := fabric.Run(1, func(g *fabric.Group) error {
		c := buildSorted(t, []string{"z", "a"})
		active, sub, out, err := Fold(g, c, false, nil, 1)
		if err != nil {
			return err
		}
		if !active || sub.Size() != 1 || out.Len() != 2 {
			return fmt.Errorf("active=%v size=%d len=%d", active, sub.Size(), out.Len())
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}
