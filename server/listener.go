package server

import (
	"crypto/tls"
	"net"

	"github.com/coredao-org/sealedkv/log"
	"github.com/coredao-org/sealedkv/notify"
)

// Listener accepts mutually authenticated TLS connections, per spec.md
// §6's "TLS 1.2+ over TCP" transport, and feeds each session's
// transactions into a Dispatcher.
type Listener struct {
	tlsConfig    *tls.Config
	sessions     *SessionTable
	dispatcher   *Dispatcher
	notifier     *notify.Notifier
	serverInLoop bool
}

// NewListener builds a Listener requiring client certificates signed by
// the given pool, per spec.md's out-of-scope "TLS certificate generation
// and attestation" (the caller supplies a configured certificate).
func NewListener(cert tls.Certificate, base *tls.Config, sessions *SessionTable, dispatcher *Dispatcher, notifier *notify.Notifier, serverInLoop bool) *Listener {
	cfg := base.Clone()
	cfg.Certificates = []tls.Certificate{cert}
	cfg.ClientAuth = tls.RequireAndVerifyClientCert
	cfg.MinVersion = tls.VersionTLS12
	return &Listener{tlsConfig: cfg, sessions: sessions, dispatcher: dispatcher, notifier: notifier, serverInLoop: serverInLoop}
}

// Serve listens on addr and accepts sessions until the listener is
// closed. If serverInLoop is false, only one session is served at a
// time per spec.md §6's "-server-in-loop" flag semantics.
func (l *Listener) Serve(addr string) error {
	ln, err := tls.Listen("tcp", addr, l.tlsConfig)
	if err != nil {
		return err
	}
	defer ln.Close()

	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		if l.serverInLoop {
			go l.handle(conn)
		} else {
			l.handle(conn)
		}
	}
}

func (l *Listener) handle(conn net.Conn) {
	defer conn.Close()

	session := l.sessions.Register(conn)
	defer func() {
		l.sessions.Remove(session.ID)
		l.dispatcher.DropSession(session.ID, l.notifier)
	}()

	if err := WriteFrame(conn, []byte(session.ID)); err != nil {
		log.Warn("server: failed to push session id", "session", session.ID, "err", err)
		return
	}

	for {
		req, err := ReadRequest(conn)
		if err != nil {
			log.Debug("server: session closed", "session", session.ID, "err", err)
			return
		}
		if !l.sessions.CheckAndAdvance(session.ID, req.TimestampSec, req.TimestampNsec) {
			WriteJSON(conn, Response{ErrorCode: ErrorCodeClientError, Content: "replayed or out-of-order timestamp"})
			continue
		}
		l.dispatcher.Submit(session, req)
	}
}
