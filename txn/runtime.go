// Package txn implements the optimistic-concurrency transaction executor:
// read/write sets, validation, commit, and the epoch state each worker
// and logger advances against (spec.md §4.4, "Epoch and TID state").
package txn

import (
	"sync/atomic"

	"github.com/coredao-org/sealedkv/record"
)

// Runtime is the shared epoch/TID state threaded explicitly into every
// worker and logger, rather than kept as package-level globals, per
// spec.md Design Note "Global mutable state".
type Runtime struct {
	globalEpoch  atomic.Uint64
	durableEpoch atomic.Uint64

	workerEpochs  []atomic.Uint64
	workerCTIDW   []atomic.Uint64
	loggerDurable []atomic.Uint64

	quit atomic.Bool
}

// NewRuntime allocates per-worker and per-logger epoch tracking slices.
// GlobalEpoch starts at 1 per spec.md §3.
func NewRuntime(workerNum, loggerNum int) *Runtime {
	rt := &Runtime{
		workerEpochs:  make([]atomic.Uint64, workerNum),
		workerCTIDW:   make([]atomic.Uint64, workerNum),
		loggerDurable: make([]atomic.Uint64, loggerNum),
	}
	rt.globalEpoch.Store(1)
	for i := range rt.workerEpochs {
		rt.workerEpochs[i].Store(1)
	}
	return rt
}

// GlobalEpoch returns the current logical clock value.
func (rt *Runtime) GlobalEpoch() uint64 { return rt.globalEpoch.Load() }

// DurableEpoch returns the largest epoch every logger has finished
// writing.
func (rt *Runtime) DurableEpoch() uint64 { return rt.durableEpoch.Load() }

// WorkerEpoch returns worker w's last-observed global epoch.
func (rt *Runtime) WorkerEpoch(w int) uint64 { return rt.workerEpochs[w].Load() }

// SetWorkerEpoch refreshes ThLocalEpoch[w].
func (rt *Runtime) SetWorkerEpoch(w int, e uint64) { rt.workerEpochs[w].Store(e) }

// WorkerCTIDW returns worker w's last-committed TID word (as a raw
// uint64; callers decode with record.TIDWord).
func (rt *Runtime) WorkerCTIDW(w int) uint64 { return rt.workerCTIDW[w].Load() }

// SetWorkerCTIDW publishes worker w's new CTIDW with release ordering
// (Go's atomic Store already provides this).
func (rt *Runtime) SetWorkerCTIDW(w int, v uint64) { rt.workerCTIDW[w].Store(v) }

// WorkerCTIDWEpoch decodes worker w's last-published CTIDW epoch, the
// value loggers use to compute min_epoch (spec.md §4.6 step 2).
func (rt *Runtime) WorkerCTIDWEpoch(w int) uint64 {
	return uint64(record.TIDWord(rt.WorkerCTIDW(w)).Epoch())
}

// LoggerDurable returns logger l's local durable epoch.
func (rt *Runtime) LoggerDurable(l int) uint64 { return rt.loggerDurable[l].Load() }

// SetLoggerDurable advances logger l's local durable epoch if newVal
// exceeds the current value, per spec.md §4.6 step 4 ("release store").
func (rt *Runtime) SetLoggerDurable(l int, newVal uint64) bool {
	for {
		cur := rt.loggerDurable[l].Load()
		if newVal <= cur {
			return false
		}
		if rt.loggerDurable[l].CompareAndSwap(cur, newVal) {
			return true
		}
	}
}

// SetDurableEpoch forces DurableEpoch to e, the recovery-time companion
// to SetGlobalEpoch: only safe before loggers start running.
func (rt *Runtime) SetDurableEpoch(e uint64) { rt.durableEpoch.Store(e) }

// SetGlobalEpoch forces GlobalEpoch to e, bypassing the unanimous-worker
// gate TryAdvanceGlobalEpoch enforces. Only safe to call during startup,
// before any worker goroutine is running, to resume at the epoch
// recovery determined.
func (rt *Runtime) SetGlobalEpoch(e uint64) { rt.globalEpoch.Store(e) }

// TryAdvanceGlobalEpoch CAS-increments GlobalEpoch iff every worker has
// observed the current epoch, the gate spec.md §4.4 "Epoch advancement"
// requires before the leader worker may advance the clock.
func (rt *Runtime) TryAdvanceGlobalEpoch() bool {
	cur := rt.globalEpoch.Load()
	for i := range rt.workerEpochs {
		if rt.workerEpochs[i].Load() != cur {
			return false
		}
	}
	return rt.globalEpoch.CompareAndSwap(cur, cur+1)
}

// AdvanceDurableEpoch CAS-updates DurableEpoch if minDurable exceeds the
// current value, the notifier's check_durable step (spec.md §4.7).
func (rt *Runtime) AdvanceDurableEpoch(minDurable uint64) bool {
	for {
		cur := rt.durableEpoch.Load()
		if minDurable <= cur {
			return false
		}
		if rt.durableEpoch.CompareAndSwap(cur, minDurable) {
			return true
		}
	}
}

// Quit reports whether shutdown has been requested.
func (rt *Runtime) Quit() bool { return rt.quit.Load() }

// RequestQuit flips the global quit flag; workers exit at the next
// durable_epoch_work boundary and loggers drain their queues.
func (rt *Runtime) RequestQuit() { rt.quit.Store(true) }

// WorkerCount and LoggerCount report the configured fleet sizes.
func (rt *Runtime) WorkerCount() int { return len(rt.workerEpochs) }
func (rt *Runtime) LoggerCount() int { return len(rt.loggerDurable) }
