package index

import (
	"encoding/binary"
	"sync/atomic"

	"golang.org/x/crypto/sha3"

	"github.com/coredao-org/sealedkv/keycodec"
	"github.com/coredao-org/sealedkv/record"
)

// keyLenLayer marks a border slot whose lv points at the root of the
// next key layer rather than a record.
const keyLenLayer = 255

// keyLenUnstable marks a border slot that is mid-split: readers that see
// this must retry from the layer root, per spec.md §4.2.
const keyLenUnstable = 254

// keyLenHasSuffix marks a slot whose key is longer than one 8-byte slice
// and needs a BigSuffix to hold the remaining bytes.
const keyLenHasSuffix = 9

// searchResult classifies what find_border located at a border slot.
type searchResult int

const (
	notFound searchResult = iota
	valueFound
	layerFound
	unstable
)

// node is satisfied by both node kinds so interior-node children and the
// masstree's generic "pointer to either" slots can be boxed uniformly.
// atomic.Pointer[T] cannot hold a bare interface as T, so boxes are
// stored behind a pointer to a small wrapper struct instead.
type node interface {
	nodeStatePtr() *nodeState
}

func (n *InteriorNode) nodeStatePtr() *nodeState { return &n.nodeState }
func (n *BorderNode) nodeStatePtr() *nodeState   { return &n.nodeState }

type nodeBox struct {
	n node
}

// BigSuffix holds the portion of a key beyond the 8-byte slice stored
// inline in a border node's keySlice, for keys longer than one layer's
// worth of bytes (spec.md §3 "BigSuffix").
type BigSuffix struct {
	Slices      []uint64
	LastLen     uint8
	fingerprint [32]byte
}

// NewBigSuffix builds a BigSuffix from the key bytes at and beyond depth
// layers in (i.e. the bytes not covered by the inline slice).
func NewBigSuffix(k keycodec.Key, fromDepth int) *BigSuffix {
	s := k.Suffix(fromDepth)
	return &BigSuffix{Slices: s.Slices, LastLen: s.LastLen, fingerprint: suffixFingerprint(s)}
}

// suffixFingerprint hashes a suffix's packed slices so Matches can reject a
// mismatch with one comparison before falling back to the full byte
// comparison.
func suffixFingerprint(s keycodec.Key) [32]byte {
	h := sha3.New256()
	for _, w := range s.Slices {
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], w)
		h.Write(b[:])
	}
	h.Write([]byte{s.LastLen})
	var out [32]byte
	h.Sum(out[:0])
	return out
}

// Matches reports whether k's suffix starting at fromDepth equals this
// BigSuffix exactly.
func (b *BigSuffix) Matches(k keycodec.Key, fromDepth int) bool {
	if b == nil {
		return false
	}
	s := k.Suffix(fromDepth)
	if suffixFingerprint(s) != b.fingerprint {
		return false
	}
	return keycodec.Key{Slices: b.Slices, LastLen: b.LastLen}.Equal(s)
}

// linkOrValue is what a border slot ultimately points at: either a
// record or the root of the next key layer, never both.
type linkOrValue struct {
	rec   *record.Record
	layer *layerRoot
}

func (lv *linkOrValue) isLayer() bool { return lv != nil && lv.layer != nil }

// layerRoot boxes the root node pointer of a nested key layer so it can
// be swapped atomically when that layer's own root splits or grows an
// interior node above it.
type layerRoot struct {
	root atomic.Pointer[nodeBox]
}

func newLayerRoot(n node) *layerRoot {
	lr := &layerRoot{}
	lr.root.Store(&nodeBox{n: n})
	return lr
}

func (lr *layerRoot) load() node {
	b := lr.root.Load()
	if b == nil {
		return nil
	}
	return b.n
}

// InteriorNode routes a search by comparing the lookup key slice against
// up to 15 separator keys and descending into one of 16 children, each
// itself an InteriorNode or a BorderNode (spec.md §3 "Interior node").
type InteriorNode struct {
	nodeState

	numKeys  atomic.Uint32
	keySlice [15]atomic.Uint64
	child    [16]atomic.Pointer[nodeBox]
}

// NewInteriorNode returns an empty, unlocked interior node.
func NewInteriorNode() *InteriorNode {
	return &InteriorNode{}
}

func (in *InteriorNode) getNumKeys() int { return int(in.numKeys.Load()) }
func (in *InteriorNode) setNumKeys(n int) { in.numKeys.Store(uint32(n)) }

func (in *InteriorNode) getKeySlice(i int) uint64 { return in.keySlice[i].Load() }
func (in *InteriorNode) setKeySlice(i int, v uint64) { in.keySlice[i].Store(v) }

func (in *InteriorNode) getChild(i int) node {
	b := in.child[i].Load()
	if b == nil {
		return nil
	}
	return b.n
}

func (in *InteriorNode) setChild(i int, n node) {
	if n == nil {
		in.child[i].Store(nil)
		return
	}
	in.child[i].Store(&nodeBox{n: n})
}

func (in *InteriorNode) isFull() bool    { return in.getNumKeys() == 15 }
func (in *InteriorNode) isNotFull() bool { return !in.isFull() }

// findChildIndex returns the child slot a key slice should descend into:
// the first i such that slice < keySlice[i], or numKeys if slice is
// greater than or equal to every separator.
func (in *InteriorNode) findChildIndex(slice uint64) int {
	n := in.getNumKeys()
	lo, hi := 0, n
	for lo < hi {
		mid := (lo + hi) / 2
		if slice < in.getKeySlice(mid) {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

func (in *InteriorNode) findChild(slice uint64) node {
	return in.getChild(in.findChildIndex(slice))
}

// insertSeparator inserts a new separator key and right child at index
// at, shifting subsequent keys/children right by one. Caller must hold
// the node lock and have already marked it inserting.
func (in *InteriorNode) insertSeparator(at int, sep uint64, rightChild node) {
	n := in.getNumKeys()
	for i := n; i > at; i-- {
		in.setKeySlice(i, in.getKeySlice(i-1))
	}
	for i := n + 1; i > at+1; i-- {
		in.setChild(i, in.getChild(i-1))
	}
	in.setKeySlice(at, sep)
	in.setChild(at+1, rightChild)
	in.setNumKeys(n + 1)
}

// BorderNode is a masstree leaf: up to 15 key slots in permutation
// order, each resolving to a record or a next-layer root, plus sibling
// pointers forming the layer's doubly linked scan order (spec.md §3
// "Border node").
type BorderNode struct {
	nodeState

	perm     atomic.Uint64
	keyLen   [15]atomic.Uint32
	keySlice [15]atomic.Uint64
	suffix   [15]atomic.Pointer[BigSuffix]
	slot     [15]atomic.Pointer[linkOrValue]

	next atomic.Pointer[BorderNode]
	prev atomic.Pointer[BorderNode]
}

// NewBorderNode returns an empty, unlocked border node.
func NewBorderNode() *BorderNode {
	bn := &BorderNode{}
	bn.setIsBorder(true)
	return bn
}

func (bn *BorderNode) getPermutation() permutation   { return permutation(bn.perm.Load()) }
func (bn *BorderNode) setPermutation(p permutation)  { bn.perm.Store(uint64(p)) }

func (bn *BorderNode) getKeyLen(i int) uint32  { return bn.keyLen[i].Load() }
func (bn *BorderNode) setKeyLen(i int, v uint32) { bn.keyLen[i].Store(v) }

func (bn *BorderNode) getKeySlice(i int) uint64  { return bn.keySlice[i].Load() }
func (bn *BorderNode) setKeySlice(i int, v uint64) { bn.keySlice[i].Store(v) }

func (bn *BorderNode) getSuffix(i int) *BigSuffix  { return bn.suffix[i].Load() }
func (bn *BorderNode) setSuffix(i int, s *BigSuffix) { bn.suffix[i].Store(s) }

func (bn *BorderNode) getSlot(i int) *linkOrValue   { return bn.slot[i].Load() }
func (bn *BorderNode) setSlot(i int, lv *linkOrValue) { bn.slot[i].Store(lv) }

func (bn *BorderNode) getNext() *BorderNode  { return bn.next.Load() }
func (bn *BorderNode) setNext(b *BorderNode) { bn.next.Store(b) }
func (bn *BorderNode) getPrev() *BorderNode  { return bn.prev.Load() }
func (bn *BorderNode) setPrev(b *BorderNode) { bn.prev.Store(b) }

func (bn *BorderNode) isFull() bool    { return bn.getPermutation().isFull() }
func (bn *BorderNode) isNotFull() bool { return !bn.isFull() }

// findSlot scans slots in permutation order looking for a slot whose
// slice, keyLen and (if present) suffix match the key at depth. It
// returns the matching physical slot index, or -1 with the insertion
// position among the logical order when absent.
func (bn *BorderNode) findSlot(k keycodec.Key, depth int) (physIdx int, insertAt int) {
	p := bn.getPermutation()
	n := int(p.numKeys())
	slice, _ := k.SliceAt(depth)
	hasMore := k.HasMore(depth)

	for i := 0; i < n; i++ {
		idx := int(p.keyIndex(i))
		s := bn.getKeySlice(idx)
		if slice < s {
			return -1, i
		}
		if slice > s {
			continue
		}
		kl := bn.getKeyLen(idx)
		switch {
		case kl == keyLenLayer:
			return idx, i
		case kl == keyLenUnstable:
			return idx, i
		case kl == keyLenHasSuffix:
			if hasMore && bn.getSuffix(idx).Matches(k, depth) {
				return idx, i
			}
		default:
			if !hasMore && uint32(k.SliceLenAt(depth)) == kl {
				return idx, i
			}
		}
		return -1, i
	}
	return -1, n
}

// findSliceCollision looks for a slot whose keySlice equals slice but
// whose suffix does not match k, the situation that forces a new key
// layer to be created under this slot (spec.md §4.3 "Layer creation").
// It returns -1 if there is no such slot.
func (bn *BorderNode) findSliceCollision(k keycodec.Key, depth int) int {
	if !k.HasMore(depth) {
		return -1
	}
	p := bn.getPermutation()
	n := int(p.numKeys())
	slice, _ := k.SliceAt(depth)
	for i := 0; i < n; i++ {
		idx := int(p.keyIndex(i))
		if bn.getKeySlice(idx) != slice {
			continue
		}
		if bn.getKeyLen(idx) == keyLenHasSuffix {
			return idx
		}
	}
	return -1
}
