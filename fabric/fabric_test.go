package fabric

import (
	"bytes"
	"fmt"
	"testing"
)

func TestSendRecvRing(t *testing.T) {
	const n = 5
	err := Run(n, func(g *Group) error {
		me := g.Rank()
		next := (me + 1) % n
		prev := (me - 1 + n) % n
		g.Send(next, 7, []byte{byte(me)})
		got := g.Recv(prev, 7)
		want := byte(prev)
		if len(got) != 1 || got[0] != want {
			return fmt.Errorf("rank %d: got %v want %d", me, got, want)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestBroadcast(t *testing.T) {
	const n = 8
	payload := []byte("splitter")
	err := Run(n, func(g *Group) error {
		got := g.Broadcast(3, payload)
		if !bytes.Equal(got, payload) {
			return fmt.Errorf("rank %d got %q", g.Rank(), got)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestAllGatherAllToAll(t *testing.T) {
	const n = 4
	err := Run(n, func(g *Group) error {
		me := g.Rank()
		gathered := g.AllGather([]byte{byte(me * me)})
		for r := 0; r < n; r++ {
			if gathered[r][0] != byte(r*r) {
				return fmt.Errorf("rank %d: gathered[%d]=%v", me, r, gathered[r])
			}
		}
		send := make([][]byte, n)
		for r := 0; r < n; r++ {
			send[r] = []byte{byte(me), byte(r)}
		}
		recv := g.AllToAll(send)
		for r := 0; r < n; r++ {
			if recv[r][0] != byte(r) || recv[r][1] != byte(me) {
				return fmt.Errorf("rank %d: recv[%d]=%v", me, r, recv[r])
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestBarrierOrdering(t *testing.T) {
	const n = 6
	const rounds = 20
	counters := make([]int, n)
	err := Run(n, func(g *Group) error {
		me := g.Rank()
		for i := 0; i < rounds; i++ {
			counters[me] = i
			g.Barrier()
			for r := 0; r < n; r++ {
				if counters[r] != i {
					return fmt.Errorf("round %d: counters not synced: %v", i, counters)
				}
			}
			g.Barrier()
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestAllReduceAnd(t *testing.T) {
	const n = 5
	for _, allTrue := range []bool{true, false} {
		err := Run(n, func(g *Group) error {
			v := allTrue || g.Rank() != 2
			got := g.AllReduceAnd(v)
			if got != allTrue {
				return fmt.Errorf("rank %d: AllReduceAnd=%v want %v", g.Rank(), got, allTrue)
			}
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
	}
}

func TestSplitSubgroup(t *testing.T) {
	const n = 8
	err := Run(n, func(g *Group) error {
		half := n / 2
		var sub *Group
		if g.Rank() < half {
			sub = g.Split(0, half)
		} else {
			sub = g.Split(half, n)
		}
		sum := sub.AllReduce(int64(sub.Rank()), func(a, b int64) int64 { return a + b })
		want := int64(half * (half - 1) / 2)
		if sum != want {
			return fmt.Errorf("rank %d: sub sum=%d want %d", g.Rank(), sum, want)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestDupIndependentCommunicator(t *testing.T) {
	const n = 4
	err := Run(n, func(g *Group) error {
		d1 := g.Dup("sample-sort")
		d2 := g.Dup("sample-sort")
		if d1.w != d2.w {
			return fmt.Errorf("rank %d: Dup with same key produced different worlds", g.Rank())
		}
		d3 := g.Dup("other")
		if d1.w == d3.w {
			return fmt.Errorf("rank %d: Dup with different keys shared a world", g.Rank())
		}
		d1.Send((d1.Rank()+1)%n, 0, []byte{1})
		d1.Recv((d1.Rank()-1+n)%n, 0)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestRunCompressedRoundTrip(t *testing.T) {
	const n = 4
	big := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog, "), 64)
	small := []byte("tiny")
	for _, codec := range []string{"s2", "zstd", "zstd-better"} {
		err := RunCompressed(n, codec, func(g *Group) error {
			me := g.Rank()
			next := (me + 1) % n
			prev := (me - 1 + n) % n
			g.Send(next, 1, big)
			g.Send(next, 2, small)
			if got := g.Recv(prev, 1); !bytes.Equal(got, big) {
				return fmt.Errorf("codec %s: rank %d: large payload corrupted (%d bytes back)", codec, me, len(got))
			}
			if got := g.Recv(prev, 2); !bytes.Equal(got, small) {
				return fmt.Errorf("codec %s: rank %d: small payload corrupted: %q", codec, me, got)
			}
			gathered := g.AllGather(big)
			for r := 0; r < n; r++ {
				if !bytes.Equal(gathered[r], big) {
					return fmt.Errorf("codec %s: rank %d: AllGather[%d] corrupted", codec, me, r)
				}
			}
			return nil
		})
		if err != nil {
			t.Fatalf("codec %s: %v", codec, err)
		}
	}
}

func TestRunCompressedRejectsUnknownCodec(t *testing.T) {
	err := RunCompressed(2, "not-a-real-codec", func(g *Group) error { return nil })
	if err == nil {
		t.Fatal("expected an error for an unknown codec name")
	}
}

func TestAbortUnblocksPeers(t *testing.T) {
	const n = 4
	err := Run(n, func(g *Group) error {
		if g.Rank() == 0 {
			return fmt.Errorf("boom")
		}
		// every other rank blocks forever waiting for a message
		// that rank 0 will never send; the abort from rank 0's
		// error must wake them up.
		g.Recv(0, 999)
		return nil
	})
	if err == nil {
		t.Fatal("expected error")
	}
}
