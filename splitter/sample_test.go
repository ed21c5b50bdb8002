package splitter

import (
	"sort"
	"testing"

	"github.com/sneller-labs/dstrsort/dstring"
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

func TestNumStringsEvenSpread(t *testing.T) {
	strs := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	c := buildSorted(t, strs)
	sample, err := NumStrings(c, 3)
	if err != nil {
		t.Fatal(err)
	}
	if sample.Len() != 3 {
		t.Fatalf("got %d samples, want 3", sample.Len())
	}
	for i := 1; i < sample.Len(); i++ {
		if string(sample.Bytes(i-1)) >= string(sample.Bytes(i)) {
			t.Fatalf("sample not increasing: %v", drainStrings(sample))
		}
	}
}

func TestNumStringsKExceedsLen(t *testing.T) {
	c := buildSorted(t, []string{"a", "b"})
	sample, err := NumStrings(c, 10)
	if err != nil {
		t.Fatal(err)
	}
	if sample.Len() != 2 {
		t.Fatalf("got %d samples, want 2", sample.Len())
	}
}

func TestNumCharsProducesSubset(t *testing.T) {
	var strs []string
	for i := 0; i < 50; i++ {
		strs = append(strs, string(rune('a'+i%26))+string(rune('a'+(i*7)%26)))
	}
	c := buildSorted(t, strs)
	sample, err := NumChars(c, 5)
	if err != nil {
		t.Fatal(err)
	}
	if sample.Len() == 0 || sample.Len() > c.Len() {
		t.Fatalf("got %d samples out of %d strings", sample.Len(), c.Len())
	}
	for i := 1; i < sample.Len(); i++ {
		if string(sample.Bytes(i-1)) > string(sample.Bytes(i)) {
			t.Fatalf("sample not sorted: %v", drainStrings(sample))
		}
	}
}

func TestSampleEmptyContainer(t *testing.T) {
	c := buildSorted(t, nil)
	sample, err := NumStrings(c, 5)
	if err != nil {
		t.Fatal(err)
	}
	if sample.Len() != 0 {
		t.Fatalf("got %d samples, want 0", sample.Len())
	}
}

func drainStrings(c *dstring.Container) []string {
	out := make([]string, c.Len())
	for i := range out {
		out[i] = string(c.Bytes(i))
	}
	return out
}
