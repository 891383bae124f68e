package server

import (
	"sync"
	"sync/atomic"

	"github.com/coredao-org/sealedkv/notify"
	"github.com/coredao-org/sealedkv/status"
	"github.com/coredao-org/sealedkv/txn"
)

// pendingRequest is one session's transaction waiting for a free worker.
type pendingRequest struct {
	session        *Session
	req            Request
	notificationID uint64
}

type pendingResponse struct {
	session *Session
	resp    Response
}

// Dispatcher hands queued requests to idle workers and holds each
// committed-but-not-yet-durable transaction's response until the
// notifier says it is safe to deliver (C11 "transaction balancer and
// client response path").
type Dispatcher struct {
	queue chan pendingRequest
	nextID atomic.Uint64

	mu       sync.Mutex
	awaiting map[uint64]pendingResponse
}

// NewDispatcher returns a dispatcher with a queue of the given depth.
func NewDispatcher(queueDepth int) *Dispatcher {
	return &Dispatcher{
		queue:    make(chan pendingRequest, queueDepth),
		awaiting: make(map[uint64]pendingResponse),
	}
}

// Submit enqueues req from session, returning the notification id
// assigned to it.
func (d *Dispatcher) Submit(s *Session, req Request) uint64 {
	id := d.nextID.Add(1)
	d.queue <- pendingRequest{session: s, req: req, notificationID: id}
	return id
}

// Next implements txn.Dispatcher: it blocks briefly for a queued
// request and translates it into the Run closure a worker executes
// against its Executor.
func (d *Dispatcher) Next(workerID int) (txn.Transaction, bool) {
	select {
	case pr := <-d.queue:
		return txn.Transaction{
			NotificationID: pr.notificationID,
			Run:            func(e *txn.Executor) status.Status { return d.run(e, pr) },
		}, true
	default:
		return txn.Transaction{}, false
	}
}

func (d *Dispatcher) run(e *txn.Executor, pr pendingRequest) status.Status {
	resp := Response{ErrorCode: ErrorCodeOK}
	for _, op := range pr.req.Transaction {
		switch op.Operation {
		case OpInsert:
			if op.Value == nil {
				return status.WarnNotFound
			}
			if st := e.Write([]byte(op.Key), []byte(*op.Value)); st != status.OK {
				return st
			}
		case OpWrite:
			if op.Value == nil {
				return status.WarnNotFound
			}
			if st := e.Write([]byte(op.Key), []byte(*op.Value)); st != status.OK {
				return st
			}
		case OpDelete:
			if st := e.Delete([]byte(op.Key)); st != status.OK {
				return st
			}
		case OpRead:
			val, st := e.Read([]byte(op.Key))
			if st != status.OK {
				return st
			}
			resp.ReadValues = append(resp.ReadValues, ReadValue{op.Key: string(val)})
		case OpScan:
			start, end := scanBounds(op)
			e.Scan(start, end, func(k, v []byte) bool {
				resp.ReadValues = append(resp.ReadValues, ReadValue{string(k): string(v)})
				return true
			})
		}
	}

	if e.ReadOnly() {
		d.deliverNow(pr, resp)
		return status.OK
	}

	d.mu.Lock()
	d.awaiting[pr.notificationID] = pendingResponse{session: pr.session, resp: resp}
	d.mu.Unlock()
	return status.OK
}

// scanBounds converts an Operation's left/right key bounds and
// exclusivity flags into the half-open [start, end) range idx.Scan
// expects, per spec.md §6's SCAN operation fields.
func scanBounds(op Operation) (start, end []byte) {
	if op.LeftKey != nil {
		start = []byte(*op.LeftKey)
		if op.LExclusive {
			start = append(start, 0x00)
		}
	}
	if op.RightKey != nil {
		end = []byte(*op.RightKey)
		if !op.RExclusive {
			end = append(end, 0x00)
		}
	}
	return start, end
}

// deliverNow writes resp to session immediately, for read-only
// transactions that need no durability wait.
func (d *Dispatcher) deliverNow(pr pendingRequest, resp Response) {
	WriteJSON(pr.session.Conn, resp)
}

// Deliver implements the callback notify.NewNotifier expects: once
// notificationID's commit epoch is durable, write its held response to
// its originating session.
func (d *Dispatcher) Deliver(notificationID uint64) {
	d.mu.Lock()
	pending, ok := d.awaiting[notificationID]
	delete(d.awaiting, notificationID)
	d.mu.Unlock()
	if !ok {
		return
	}
	WriteJSON(pending.session.Conn, pending.resp)
}

// DropSession tells notifier to discard every notification awaiting
// delivery to sessionID and drops them from the local awaiting table,
// implementing spec.md §5's "the notification is logged as session
// gone and dropped".
func (d *Dispatcher) DropSession(sessionID string, notifier *notify.Notifier) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, p := range d.awaiting {
		if p.session.ID == sessionID {
			notifier.DropSession(id)
			delete(d.awaiting, id)
		}
	}
}
