package loserqueue

import "github.com/sneller-labs/dstrsort/dstring"

// Merge drains a K-way loser tree over runs into one Container, with a
// freshly computed LCP array relative to the merged order (spec.md
// §4.4's output contract). Every run must already be sorted under the
// same order (indexed or not).
func Merge(runs []*dstring.Container, indexed bool) (*dstring.Container, error) {
	t, err := New(runs, indexed)
	if err != nil {
		return nil, err
	}

	var buf []byte
	var indices []uint64
	var lcps []uint64
	var prev []byte
	first := true

	for {
		data, idx, ok := t.Pop()
		if !ok {
			break
		}
		lcp := 0
		if !first {
			lcp = dstring.CommonPrefixLen(prev, data)
		}
		lcps = append(lcps, uint64(lcp))
		buf = append(buf, data...)
		buf = append(buf, 0)
		if indexed {
			indices = append(indices, idx)
		}
		prev = data
		first = false
	}

	var out *dstring.Container
	if indexed {
		out, err = dstring.NewIndexed(buf, indices)
	} else {
		out, err = dstring.New(buf)
	}
	if err != nil {
		return nil, err
	}
	if err := out.AttachLCPs(lcps); err != nil {
		return nil, err
	}
	return out, nil
}
