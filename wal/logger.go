package wal

import (
	"sync"
	"time"
)

// EpochSource reports a worker's last-published CTIDW epoch, the value
// a logger needs (without importing the txn package directly) to
// compute min_epoch per spec.md §4.6 step 2.
type EpochSource interface {
	WorkerCTIDWEpoch(w int) uint64
}

// DurableTracker advances a logger's local durable epoch in the shared
// runtime, again kept as a narrow interface to avoid wal importing txn.
type DurableTracker interface {
	SetLoggerDurable(loggerIdx int, newVal uint64) bool
}

// Logger drains one queue, seals buffers to a sealed file maintaining
// both hash chains, and advances its local durable epoch (spec.md §4.6,
// C8).
type Logger struct {
	id           int
	boundWorkers []int
	epochs       EpochSource
	durable      DurableTracker
	queue        *Queue
	writer       *SealedWriter
	epochPeriod  time.Duration
	onAdvance    func(loggerID int, newDurable uint64)

	hashMu        sync.Mutex
	prevEpochHash string
}

// LastHash returns this logger's current chain hash: the digest that
// must equal the per-logger last-log hash persisted to the pepoch file
// (spec.md §4.7 "per-logger last-log hashes").
func (l *Logger) LastHash() string {
	l.hashMu.Lock()
	defer l.hashMu.Unlock()
	return l.prevEpochHash
}

// NewLogger constructs a logger bound to boundWorkers, draining queue
// and sealing through writer. prevEpochHash starts at GenesisHash.
func NewLogger(id int, boundWorkers []int, epochs EpochSource, durable DurableTracker, queue *Queue, writer *SealedWriter, epochPeriod time.Duration, onAdvance func(int, uint64)) *Logger {
	return &Logger{
		id:            id,
		boundWorkers:  boundWorkers,
		epochs:        epochs,
		durable:       durable,
		queue:         queue,
		writer:        writer,
		epochPeriod:   epochPeriod,
		onAdvance:     onAdvance,
		prevEpochHash: GenesisHash(),
	}
}

// Run drains the queue until quit is closed, then performs one final
// drain so no buffered work is lost (spec.md §5 "loggers terminate their
// queue and drain").
func (l *Logger) Run(quit <-chan struct{}) {
	for {
		select {
		case <-quit:
			l.drainOnce()
			return
		default:
		}
		l.queue.WaitDeq(l.epochPeriod)
		l.drainOnce()
	}
}

func (l *Logger) drainOnce() {
	for _, b := range l.queue.Deq() {
		l.sealBuffer(b)
	}
	l.updateDurable()
}

// sealBuffer fills in the intra-set hash chain starting from the
// logger's running inter-epoch hash, writes the sealed set, then
// advances the running hash to this set's epoch output (spec.md §4.6
// "Inter-set (epoch-level) chain").
func (l *Logger) sealBuffer(b *logBuffer) error {
	header := LogSetHeader{PrevEpochHash: l.LastHash(), LogRecordNum: uint(len(b.records))}

	running := header.PrevEpochHash
	for i := range b.records {
		b.records[i].PrevHash = running
		running = recordHash(b.records[i].PrevHash, b.records[i].TID, b.records[i].Op, b.records[i].Key, b.records[i].Value)
	}

	set := &LogSet{
		LoggerID:  l.id,
		Epoch:     b.minEpoch,
		LogHeader: header,
		Records:   append([]LogRecord(nil), b.records...),
	}

	if err := l.writer.WriteLogSet(set); err != nil {
		return err
	}

	if out, ok := set.EpochOutputHash(header.PrevEpochHash); ok {
		l.hashMu.Lock()
		l.prevEpochHash = out
		l.hashMu.Unlock()
	}
	b.owner.Recycle(b)
	return nil
}

// updateDurable computes min_epoch across this logger's bound workers'
// CTIDW epochs and the queue's own smallest pending epoch, then
// advances the logger's local durable epoch to min_epoch-1 (spec.md
// §4.6 step 2-4).
func (l *Logger) updateDurable() {
	minEpoch, has := uint64(0), false
	for _, w := range l.boundWorkers {
		e := l.epochs.WorkerCTIDWEpoch(w)
		if e == 0 {
			continue
		}
		if !has || e < minEpoch {
			minEpoch, has = e, true
		}
	}
	if qe, ok := l.queue.MinEpoch(); ok {
		if !has || qe < minEpoch {
			minEpoch, has = qe, true
		}
	}
	if !has || minEpoch == 0 {
		return
	}
	newDurable := minEpoch - 1
	if l.durable.SetLoggerDurable(l.id, newDurable) && l.onAdvance != nil {
		l.onAdvance(l.id, newDurable)
	}
}
