package index

import (
	"github.com/coredao-org/sealedkv/keycodec"
	"github.com/coredao-org/sealedkv/record"
	"github.com/coredao-org/sealedkv/status"
)

// descendToBorder walks interior nodes from root using the stable-version
// reader protocol (spec.md §4.2): read a stable version, pick a child by
// key slice, then re-check the parent's version hasn't changed underneath
// the read. A detected split restarts the whole walk from root.
func descendToBorder(root node, slice uint64) *BorderNode {
restart:
	n := root
	for {
		bn, ok := n.(*BorderNode)
		if ok {
			return bn
		}
		in := n.(*InteriorNode)
		v := in.stableVersion()
		child := in.findChild(slice)
		after := in.getVersion()
		if splitHappened(v, after) {
			n = root
			goto restart
		}
		if child == nil {
			return nil
		}
		n = child
	}
}

// searchAtLayer resolves a key within a single layer rooted at
// layerRoot, returning the slot contents found (if any) and a
// searchResult classifying what was found.
func searchAtLayer(layerRoot node, k keycodec.Key, depth int) (*linkOrValue, searchResult) {
	slice, _ := k.SliceAt(depth)
	for {
		bn := descendToBorder(layerRoot, slice)
		if bn == nil {
			return nil, notFound
		}
		v := bn.stableVersion()
		physIdx, _ := bn.findSlot(k, depth)
		if physIdx < 0 {
			after := bn.getVersion()
			if splitHappened(v, after) {
				continue
			}
			return nil, notFound
		}
		kl := bn.getKeyLen(physIdx)
		lv := bn.getSlot(physIdx)
		after := bn.getVersion()
		if splitHappened(v, after) {
			continue
		}
		switch kl {
		case keyLenUnstable:
			return nil, unstable
		case keyLenLayer:
			return lv, layerFound
		default:
			return lv, valueFound
		}
	}
}

// Get resolves key against the layer-0 root, descending through any
// nested layers for keys longer than one 8-byte slice.
func Get(root0 node, key []byte) (*record.Record, status.Status) {
	k := keycodec.Encode(key)
	depth := 0
	cur := root0
	for {
		lv, res := searchAtLayer(cur, k, depth)
		switch res {
		case notFound:
			return nil, status.WarnNotFound
		case layerFound:
			cur = lv.layer.load()
			depth++
			continue
		case unstable:
			return nil, status.RetryFromUpperLayer
		case valueFound:
			if lv == nil || lv.rec == nil {
				return nil, status.WarnNotFound
			}
			if lv.rec.TID.Load().Absent() {
				return nil, status.WarnNotFound
			}
			return lv.rec, status.OK
		}
	}
}
