package index

import (
	"bytes"
	"encoding/binary"

	"github.com/coredao-org/sealedkv/record"
)

// sliceBytes returns the first length bytes of slice in the big-endian
// encoding keycodec.Encode uses, the inverse of the packing it does when
// building a Key.
func sliceBytes(slice uint64, length uint8) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], slice)
	return append([]byte(nil), buf[:length]...)
}

func leftmostBorder(n node) *BorderNode {
	for {
		if bn, ok := n.(*BorderNode); ok {
			return bn
		}
		in := n.(*InteriorNode)
		n = in.getChild(0)
		if n == nil {
			return nil
		}
	}
}

// scan walks the border-node linked list of root's layer in ascending
// key order (and recurses into nested layers), invoking fn for every
// key k with start <= k < end (end == nil meaning unbounded). fn
// returning false stops the walk.
func scan(root node, start, end []byte, fn func(key []byte, rec *record.Record) bool) bool {
	return scanLayer(root, nil, start, end, fn)
}

func scanLayer(root node, prefix []byte, start, end []byte, fn func(key []byte, rec *record.Record) bool) bool {
	bn := leftmostBorder(root)
	for bn != nil {
		v := bn.stableVersion()
		p := bn.getPermutation()
		n := int(p.numKeys())
		for i := 0; i < n; i++ {
			phys := int(p.keyIndex(i))
			kl := bn.getKeyLen(phys)
			slice := bn.getKeySlice(phys)

			switch kl {
			case keyLenUnstable:
				continue
			case keyLenLayer:
				lr := bn.getSlot(phys).layer
				sub := append(append([]byte(nil), prefix...), sliceBytes(slice, 8)...)
				if !scanLayer(lr.load(), sub, start, end, fn) {
					return false
				}
			case keyLenHasSuffix:
				suf := bn.getSuffix(phys)
				full := append(append([]byte(nil), prefix...), sliceBytes(slice, 8)...)
				if suf != nil {
					for _, s := range suf.Slices[:len(suf.Slices)-1] {
						full = append(full, sliceBytes(s, 8)...)
					}
					last := suf.Slices[len(suf.Slices)-1]
					full = append(full, sliceBytes(last, suf.LastLen)...)
				}
				if !emit(full, bn.getSlot(phys), start, end, fn) {
					return false
				}
			default:
				full := append(append([]byte(nil), prefix...), sliceBytes(slice, uint8(kl))...)
				if !emit(full, bn.getSlot(phys), start, end, fn) {
					return false
				}
			}
		}
		after := bn.getVersion()
		if splitHappened(v, after) {
			continue
		}
		bn = bn.getNext()
	}
	return true
}

func emit(key []byte, lv *linkOrValue, start, end []byte, fn func([]byte, *record.Record) bool) bool {
	if lv == nil || lv.rec == nil {
		return true
	}
	if start != nil && bytes.Compare(key, start) < 0 {
		return true
	}
	if end != nil && bytes.Compare(key, end) >= 0 {
		return true
	}
	return fn(key, lv.rec)
}
