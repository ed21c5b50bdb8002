package dstring

import (
	"bytes"
	"testing"
)

func buildBuf(strs ...string) []byte {
	var buf []byte
	for _, s := range strs {
		buf = append(buf, s...)
		buf = append(buf, 0)
	}
	return buf
}

func TestRoundTrip(t *testing.T) {
	buf := buildBuf("banana", "apple", "cherry")
	c, err := New(buf)
	if err != nil {
		t.Fatal(err)
	}
	if c.Len() != 3 {
		t.Fatalf("len=%d", c.Len())
	}
	for i, want := range []string{"banana", "apple", "cherry"} {
		if string(c.Bytes(i)) != want {
			t.Fatalf("record %d = %q, want %q", i, c.Bytes(i), want)
		}
	}
	// container(B).rebuild().bytes == B property (spec.md §8)
	buf2 := buildBuf("x", "y", "z")
	if err := c.Rebuild(buf2, nil); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(c.RawBytes(), buf2) {
		t.Fatalf("rebuild did not preserve bytes")
	}
}

func TestSortLexicographic(t *testing.T) {
	buf := buildBuf("banana", "apple", "cherry", "apple")
	c, err := New(buf)
	if err != nil {
		t.Fatal(err)
	}
	c.Sort()
	if !c.IsLocallySorted() {
		t.Fatal("not sorted after Sort")
	}
	var got []string
	for i := 0; i < c.Len(); i++ {
		got = append(got, string(c.Bytes(i)))
	}
	want := []string{"apple", "apple", "banana", "cherry"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestIndexedStability(t *testing.T) {
	buf := buildBuf("b", "a", "a", "a")
	c, err := NewIndexed(buf, []uint64{10, 20, 5, 1})
	if err != nil {
		t.Fatal(err)
	}
	c.Sort()
	// equal-byte strings ("a") must come out in increasing index order
	var aIdx []uint64
	for i := 0; i < c.Len(); i++ {
		if string(c.Bytes(i)) == "a" {
			aIdx = append(aIdx, c.Index(i))
		}
	}
	want := []uint64{1, 5, 20}
	for i := range want {
		if aIdx[i] != want[i] {
			t.Fatalf("indexed order = %v want %v", aIdx, want)
		}
	}
}

func TestComputeLCPs(t *testing.T) {
	buf := buildBuf("apple", "apply", "banana")
	c, err := New(buf)
	if err != nil {
		t.Fatal(err)
	}
	c.Sort()
	c.ComputeLCPs()
	lcps := c.LCPs()
	if lcps[0] != 0 {
		t.Fatalf("lcps[0]=%d want 0", lcps[0])
	}
	if lcps[1] != 4 { // apple vs apply share "appl"
		t.Fatalf("lcps[1]=%d want 4", lcps[1])
	}
	if lcps[2] != 0 { // apply vs banana share nothing
		t.Fatalf("lcps[2]=%d want 0", lcps[2])
	}
}

func TestMalformedBuffer(t *testing.T) {
	if _, err := New([]byte("no-terminator")); err == nil {
		t.Fatal("expected error for buffer without trailing terminator")
	}
}

func TestConcatRewritesOffsets(t *testing.T) {
	buf := buildBuf("one", "two", "three")
	c, err := New(buf)
	if err != nil {
		t.Fatal(err)
	}
	recs := append([]Record(nil), c.Records()...)
	// reverse order
	recs[0], recs[2] = recs[2], recs[0]
	out := Concat(c.RawBytes(), recs)
	c2 := &Container{}
	c2.MoveRecords(out, recs, false)
	if string(c2.Bytes(0)) != "three" || string(c2.Bytes(2)) != "one" {
		t.Fatalf("concat reorder failed: %q %q", c2.Bytes(0), c2.Bytes(2))
	}
}

func TestEncodeDecodeIndices(t *testing.T) {
	in := []uint64{1, 2, 3, 1 << 40}
	out := DecodeIndices(EncodeIndices(in))
	if len(out) != len(in) {
		t.Fatalf("len mismatch")
	}
	for i := range in {
		if in[i] != out[i] {
			t.Fatalf("index %d: got %d want %d", i, out[i], in[i])
		}
	}
}
