// Package keycodec encodes variable-length byte keys as an ordered
// sequence of 64-bit big-endian slices plus a trailing size, the layout
// the masstree-style index in package index is keyed on.
package keycodec

import "encoding/binary"

// MaxSliceLen is the number of key bytes packed into one Slice.
const MaxSliceLen = 8

// Key is an ordered sequence of 64-bit slices and a final-slice byte
// length in [1..8]. The logical byte length is 8*(len(Slices)-1)+LastLen.
type Key struct {
	Slices  []uint64
	LastLen uint8
}

// Encode packs b into a Key. The empty key encodes as a single zero
// slice with LastLen 0, matching the masstree convention that even an
// empty key occupies slot 0 of layer 0.
func Encode(b []byte) Key {
	if len(b) == 0 {
		return Key{Slices: []uint64{0}, LastLen: 0}
	}
	n := (len(b) + MaxSliceLen - 1) / MaxSliceLen
	slices := make([]uint64, n)
	var lastLen uint8
	for i := 0; i < n; i++ {
		start := i * MaxSliceLen
		end := start + MaxSliceLen
		if end > len(b) {
			end = len(b)
		}
		var buf [8]byte
		copy(buf[:], b[start:end])
		slices[i] = binary.BigEndian.Uint64(buf[:])
		lastLen = uint8(end - start)
	}
	return Key{Slices: slices, LastLen: lastLen}
}

// Decode reconstructs the original byte string.
func (k Key) Decode() []byte {
	if len(k.Slices) == 0 {
		return nil
	}
	out := make([]byte, 0, (len(k.Slices)-1)*MaxSliceLen+int(k.LastLen))
	for i, s := range k.Slices {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], s)
		n := MaxSliceLen
		if i == len(k.Slices)-1 {
			n = int(k.LastLen)
		}
		out = append(out, buf[:n]...)
	}
	return out
}

// Len returns the logical byte length of the key.
func (k Key) Len() int {
	if len(k.Slices) == 0 {
		return 0
	}
	return (len(k.Slices)-1)*MaxSliceLen + int(k.LastLen)
}

// SliceAt returns the slice at layer depth and whether the key has a
// slice at that depth at all.
func (k Key) SliceAt(depth int) (uint64, bool) {
	if depth < 0 || depth >= len(k.Slices) {
		return 0, false
	}
	return k.Slices[depth], true
}

// SliceLenAt returns how many of the key's bytes are consumed by the
// slice at depth: 8 unless it is the final slice, in which case LastLen.
func (k Key) SliceLenAt(depth int) uint8 {
	if depth == len(k.Slices)-1 {
		return k.LastLen
	}
	return MaxSliceLen
}

// HasMore reports whether the key extends past depth (there is a slice
// at depth+1, i.e. the key's bytes continue into a deeper layer).
func (k Key) HasMore(depth int) bool {
	return depth+1 < len(k.Slices)
}

// Suffix returns the remaining slices of the key from depth+1 onward,
// the bytes that would be stored in a BigSuffix once depth's slice has
// been consumed by a border slot.
func (k Key) Suffix(depth int) Key {
	if depth+1 >= len(k.Slices) {
		return Key{Slices: nil, LastLen: 0}
	}
	rest := make([]uint64, len(k.Slices)-depth-1)
	copy(rest, k.Slices[depth+1:])
	return Key{Slices: rest, LastLen: k.LastLen}
}

// Compare orders keys lexicographically by slice then by LastLen,
// agreeing with byte-lexicographic order of the decoded key.
func (k Key) Compare(other Key) int {
	n := len(k.Slices)
	if len(other.Slices) < n {
		n = len(other.Slices)
	}
	for i := 0; i < n; i++ {
		if k.Slices[i] != other.Slices[i] {
			if k.Slices[i] < other.Slices[i] {
				return -1
			}
			return 1
		}
	}
	if len(k.Slices) != len(other.Slices) {
		if len(k.Slices) < len(other.Slices) {
			return -1
		}
		return 1
	}
	if k.LastLen != other.LastLen {
		if k.LastLen < other.LastLen {
			return -1
		}
		return 1
	}
	return 0
}

// Equal reports whether k and other encode the same logical key.
func (k Key) Equal(other Key) bool {
	return k.Compare(other) == 0
}
