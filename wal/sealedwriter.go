package wal

import (
	"encoding/binary"
	"encoding/json"
	"io"

	"github.com/coredao-org/sealedkv/seal"
)

// ByteStream is the narrow interface a sealed file writer needs: a
// blocking, durable byte sink, carved narrow rather than a concrete
// *os.File dependency so tests can substitute an in-memory stream.
type ByteStream interface {
	io.Writer
	Sync() error
}

// SealedWriter appends length-prefixed, sealed log sets to a ByteStream,
// per spec.md §4.6 "On disk each log set is prefixed with its byte
// length."
type SealedWriter struct {
	stream ByteStream
}

// NewSealedWriter wraps stream for sealed, length-prefixed writes.
func NewSealedWriter(stream ByteStream) *SealedWriter {
	return &SealedWriter{stream: stream}
}

// WriteLogSet marshals, seals, length-prefixes, and durably writes set.
func (w *SealedWriter) WriteLogSet(set *LogSet) error {
	plain, err := json.Marshal(set)
	if err != nil {
		return err
	}
	sealed, err := seal.Seal(plain)
	if err != nil {
		return err
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(sealed)))
	if _, err := w.stream.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := w.stream.Write(sealed); err != nil {
		return err
	}
	return w.stream.Sync()
}
