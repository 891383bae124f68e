package wal

import (
	"sync"

	"github.com/coredao-org/sealedkv/record"
)

// logBuffer accumulates log records for a single epoch from a single
// worker. Buffers never straddle an epoch boundary (spec.md §4.5
// invariant "min_epoch == max_epoch").
type logBuffer struct {
	minEpoch, maxEpoch uint64
	records            []LogRecord
	notificationIDs    []uint64

	// owner is the pool this buffer must be returned to once drained, so
	// a logger bound to several workers' pools can recycle a buffer
	// without needing to know which of those pools produced it.
	owner *BufferPool
}

func newLogBuffer(owner *BufferPool) *logBuffer {
	return &logBuffer{owner: owner}
}

func (b *logBuffer) reset() {
	b.minEpoch, b.maxEpoch = 0, 0
	b.records = b.records[:0]
	b.notificationIDs = b.notificationIDs[:0]
}

func (b *logBuffer) append(tid uint64, epoch uint64, op OpType, key, value []byte, notificationID uint64) {
	if len(b.records) == 0 {
		b.minEpoch, b.maxEpoch = epoch, epoch
	}
	rec := LogRecord{TID: tid, Op: op.String(), Key: string(key)}
	if op != OpDelete {
		rec.Value = string(value)
	}
	b.records = append(b.records, rec)
	b.notificationIDs = append(b.notificationIDs, notificationID)
}

func (b *logBuffer) len() int { return len(b.records) }

// BufferPool is one worker's ring of fixed-capacity log buffers plus
// the currently-open buffer, per spec.md §4.5 (C6).
type BufferPool struct {
	mu                 sync.Mutex
	free               chan *logBuffer
	current            *logBuffer
	queue              *Queue
	maxBufferedEntries int
}

// NewBufferPool allocates poolSize spare buffers (>= 2 per spec.md §4.5)
// plus one open buffer, feeding full or epoch-boundary buffers to queue.
func NewBufferPool(poolSize, maxBufferedEntries int, queue *Queue) *BufferPool {
	if poolSize < 2 {
		poolSize = 2
	}
	p := &BufferPool{
		free:               make(chan *logBuffer, poolSize),
		queue:              queue,
		maxBufferedEntries: maxBufferedEntries,
	}
	p.current = newLogBuffer(p)
	for i := 0; i < poolSize; i++ {
		p.free <- newLogBuffer(p)
	}
	return p
}

// Push appends one log record per entry to the current buffer, sharing
// tidWord's commit tid and epoch, then publishes and swaps the buffer if
// it has grown past maxBufferedEntries or newEpochBegins is set
// (spec.md §4.5).
func (p *BufferPool) Push(tidWord uint64, notificationID uint64, entries []Entry, newEpochBegins bool) {
	epoch := uint64(record.TIDWord(tidWord).Epoch())

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, e := range entries {
		p.current.append(tidWord, epoch, e.Op, e.Key, e.Value, notificationID)
	}

	if newEpochBegins || p.current.len() > p.maxBufferedEntries {
		p.publishLocked()
	}
}

// publishLocked enqueues the current buffer and swaps in a free one.
// Caller must hold p.mu. Blocks on the free-buffer channel if the pool
// is exhausted, applying backpressure with Go's goroutine-parking
// channel receive instead of a busy-spin loop.
func (p *BufferPool) publishLocked() {
	if p.current.len() == 0 {
		return
	}
	p.queue.Enq(p.current)
	p.current = <-p.free
}

// Recycle returns a drained buffer to the free pool so it can be reused
// by a later push. Called by the logger once it has sealed a buffer.
func (p *BufferPool) Recycle(b *logBuffer) {
	b.reset()
	select {
	case p.free <- b:
	default:
	}
}
