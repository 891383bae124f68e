// Package notify implements the durable-epoch notifier and pepoch file
// (C9): it computes the global durable epoch as the minimum across
// loggers, persists it, and releases per-transaction completion
// callbacks once their commit epoch is durable (spec.md §4.7).
package notify

import (
	"sync"
)

// DurableSource reports the runtime's current global durable epoch
// without notify needing to import txn directly.
type DurableSource interface {
	DurableEpoch() uint64
}

// Notifier holds the per-epoch list of pending notification ids and
// releases them once the runtime's durable epoch reaches their commit
// epoch.
type Notifier struct {
	mu      sync.Mutex
	pending map[uint64][]uint64 // epoch -> notification ids
	dropped map[uint64]bool     // sessions/nids to silently discard

	source  DurableSource
	deliver func(notificationID uint64)
}

// NewNotifier constructs a notifier that delivers completions via
// deliver once their epoch is durable, as reported by source.
func NewNotifier(source DurableSource, deliver func(notificationID uint64)) *Notifier {
	return &Notifier{
		pending: make(map[uint64][]uint64),
		dropped: make(map[uint64]bool),
		source:  source,
		deliver: deliver,
	}
}

// Register records notificationID as waiting for epoch to become durable.
func (n *Notifier) Register(epoch uint64, notificationID uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pending[epoch] = append(n.pending[epoch], notificationID)
}

// DropSession marks notificationID to be discarded instead of delivered,
// the supplemented behavior of spec.md §5 and the original notifier
// design for a session that has disconnected before its commit became
// durable.
func (n *Notifier) DropSession(notificationID uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dropped[notificationID] = true
}

// MakeDurable walks pending epochs from the oldest, delivering (or
// discarding, per DropSession) every notification whose epoch is <=
// the runtime's current durable epoch. If quit is true every remaining
// notification is released regardless of epoch, the shutdown-drain path
// spec.md §4.7 describes.
func (n *Notifier) MakeDurable(quit bool) {
	minDurable := n.source.DurableEpoch()

	n.mu.Lock()
	epochs := make([]uint64, 0, len(n.pending))
	for e := range n.pending {
		epochs = append(epochs, e)
	}
	for i := 1; i < len(epochs); i++ {
		for j := i; j > 0 && epochs[j-1] > epochs[j]; j-- {
			epochs[j-1], epochs[j] = epochs[j], epochs[j-1]
		}
	}

	var toDeliver []uint64
	for _, e := range epochs {
		if !quit && e > minDurable {
			break
		}
		for _, nid := range n.pending[e] {
			if !n.dropped[nid] {
				toDeliver = append(toDeliver, nid)
			}
			delete(n.dropped, nid)
		}
		delete(n.pending, e)
	}
	n.mu.Unlock()

	for _, nid := range toDeliver {
		n.deliver(nid)
	}
}
