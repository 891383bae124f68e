package server

import (
	"encoding/base32"
	"net"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Session is one accepted, authenticated client connection, identified
// to the client by a 6-character alphanumeric id derived from a uuid via
// base32 truncation, the same short-display-id idiom as a hash's
// terminal-string truncation.
type Session struct {
	ID   string
	Conn net.Conn

	mu                sync.Mutex
	lastSec, lastNsec int64
}

func deriveSessionID(u uuid.UUID) string {
	enc := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(u[:])
	if len(enc) > 6 {
		enc = enc[:6]
	}
	return enc
}

// checkAndAdvance implements spec.md §6's ordering guard: reject a
// request whose timestamp is <= the last one seen on this session,
// otherwise advance the stored timestamp and accept.
func (s *Session) checkAndAdvance(sec, nsec int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sec < s.lastSec || (sec == s.lastSec && nsec <= s.lastNsec) {
		return false
	}
	s.lastSec, s.lastNsec = sec, nsec
	return true
}

func (s *Session) snapshot() replayMark {
	s.mu.Lock()
	defer s.mu.Unlock()
	return replayMark{sec: s.lastSec, nsec: s.lastNsec}
}

type replayMark struct{ sec, nsec int64 }

// SessionTable tracks live sessions plus a bounded tombstone cache of
// recently-closed sessions' last-seen timestamps, so a session id
// reused shortly after close still rejects replayed requests (spec.md
// §5 "closure drops the session entry").
type SessionTable struct {
	mu         sync.Mutex
	live       map[string]*Session
	tombstones *lru.Cache[string, replayMark]
}

// NewSessionTable returns an empty table with a tombstone cache bounded
// to tombstoneCapacity entries.
func NewSessionTable(tombstoneCapacity int) *SessionTable {
	cache, _ := lru.New[string, replayMark](tombstoneCapacity)
	return &SessionTable{live: make(map[string]*Session), tombstones: cache}
}

// Register allocates a new session id for conn and adds it to the live
// table.
func (t *SessionTable) Register(conn net.Conn) *Session {
	s := &Session{ID: deriveSessionID(uuid.New()), Conn: conn}
	t.mu.Lock()
	for _, exists := t.live[s.ID]; exists; _, exists = t.live[s.ID] {
		s.ID = deriveSessionID(uuid.New())
	}
	t.live[s.ID] = s
	t.mu.Unlock()
	return s
}

// Get returns the live session with id, if any.
func (t *SessionTable) Get(id string) (*Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.live[id]
	return s, ok
}

// Remove drops id from the live table, moving its last-seen timestamp
// into the tombstone cache.
func (t *SessionTable) Remove(id string) {
	t.mu.Lock()
	s, ok := t.live[id]
	delete(t.live, id)
	t.mu.Unlock()
	if ok {
		t.tombstones.Add(id, s.snapshot())
	}
}

// CheckAndAdvance applies the replay-timestamp guard for id: if the
// session is live, checks and advances its stored timestamp; if not
// live but recently closed, checks against its tombstone without
// reviving it; if never seen, accepts unconditionally.
func (t *SessionTable) CheckAndAdvance(id string, sec, nsec int64) bool {
	if s, ok := t.Get(id); ok {
		return s.checkAndAdvance(sec, nsec)
	}
	if mark, ok := t.tombstones.Get(id); ok {
		return sec > mark.sec || (sec == mark.sec && nsec > mark.nsec)
	}
	return true
}
