package txn

import (
	"time"

	"github.com/coredao-org/sealedkv/index"
	"github.com/coredao-org/sealedkv/record"
	"github.com/coredao-org/sealedkv/status"
)

// Transaction is one unit of work a dispatcher hands to a worker: the
// operations to run against an Executor before Commit.
type Transaction struct {
	NotificationID uint64
	Run            func(e *Executor) status.Status
}

// Dispatcher hands the next transaction to an idle worker; it returns
// ok=false when no work is currently available.
type Dispatcher interface {
	Next(workerID int) (Transaction, bool)
}

// RunWorker implements spec.md §4.4 "Worker main loop": repeatedly run
// durable_epoch_work, fetch a transaction, execute it, and on
// validation failure retry from Begin.
func RunWorker(rt *Runtime, e *Executor, workerID int, dispatcher Dispatcher, epochDiff uint64) {
	for !rt.Quit() {
		durableEpochWork(rt, workerID, epochDiff)

		txnReq, ok := dispatcher.Next(workerID)
		if !ok {
			continue
		}

		for {
			e.Begin()
			st := txnReq.Run(e)
			if st != status.OK && isTransientStatus(st) {
				e.Abort()
				continue
			}
			if st == status.OK {
				st = e.Commit(txnReq.NotificationID)
				if st == status.ErrorConcurrentWriteOrDelete {
					e.Abort()
					continue
				}
			}
			break
		}
	}
}

func isTransientStatus(st status.Status) bool {
	return st == status.ErrorConcurrentWriteOrDelete || st == status.RetryFromUpperLayer
}

// durableEpochWork refreshes ThLocalEpoch[workerID] from GlobalEpoch and,
// if it changed, publishes a synthetic CTIDW so loggers observe the
// epoch advance even without committed work (spec.md §4.4 "Epoch
// advancement"). It also pauses the worker while it has run too far
// ahead of the durable epoch, per spec.md §5's EPOCH_DIFF backpressure.
func durableEpochWork(rt *Runtime, workerID int, epochDiff uint64) {
	for rt.WorkerEpoch(workerID) > rt.DurableEpoch()+epochDiff {
		time.Sleep(time.Microsecond)
	}

	global := rt.GlobalEpoch()
	if rt.WorkerEpoch(workerID) != global {
		rt.SetWorkerEpoch(workerID, global)
		lastCTIDW := record.TIDWord(rt.WorkerCTIDW(workerID))
		if lastCTIDW.Epoch() != uint32(global) {
			rt.SetWorkerCTIDW(workerID, uint64(record.SyntheticEpochMarker(uint32(global))))
		}
	}
}

// RunEpochLeader is the single worker designated to advance GlobalEpoch:
// it periodically checks the wall-clock gap since the last advance and,
// if every ThLocalEpoch[w] has caught up, CAS-increments GlobalEpoch
// (spec.md §4.4 "Epoch advancement"). Each tick it also runs the index's
// GC pass, so committed deletes and unlinked nodes are reclaimed on the
// same cadence as the epoch advance (spec.md §5 "Reclamation").
func RunEpochLeader(rt *Runtime, idx *index.Index, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for !rt.Quit() {
		<-ticker.C
		rt.TryAdvanceGlobalEpoch()
		idx.GC(rt.GlobalEpoch())
	}
}
