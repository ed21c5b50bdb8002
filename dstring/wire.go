package dstring

import "encoding/binary"

// EncodeIndices packs indices as little-endian u64s, the wire format
// spec.md §6 mandates for the index payload that accompanies a byte
// payload in indexed mode.
func EncodeIndices(indices []uint64) []byte {
	out := make([]byte, 8*len(indices))
	for i, v := range indices {
		binary.LittleEndian.PutUint64(out[i*8:], v)
	}
	return out
}

// DecodeIndices unpacks a little-endian u64 index payload produced by
// EncodeIndices.
func DecodeIndices(buf []byte) []uint64 {
	n := len(buf) / 8
	out := make([]uint64, n)
	for i := 0; i < n; i++ {
		out[i] = binary.LittleEndian.Uint64(buf[i*8:])
	}
	return out
}

// Indices returns the container's per-string indices in record order.
// Valid only when Indexed() is true.
func (c *Container) Indices() []uint64 {
	out := make([]uint64, len(c.recs))
	for i, r := range c.recs {
		out[i] = r.Index
	}
	return out
}
