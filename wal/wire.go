package wal

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// passphrase is the fixed build-time seed hashed to produce the
// inter-epoch chain anchor for the very first epoch ever logged
// (spec.md §4.6: "For the first epoch ever, prev_epoch_hash equals the
// SHA-256 of a fixed passphrase shipped with the build").
const passphrase = "sealedkv-genesis-chain-anchor-v1"

// GenesisHash returns the inter-epoch chain anchor used before any
// epoch has been logged.
func GenesisHash() string {
	sum := sha256.Sum256([]byte(passphrase))
	return hex.EncodeToString(sum[:])
}

// recordHash folds one record's content into the running chain value:
// the record's own prev_hash field (the incoming link) plus its tid,
// op, key and value. The result becomes the next record's prev_hash.
func recordHash(prevHash string, tid uint64, op, key, value string) string {
	h := sha256.New()
	var tidBuf [8]byte
	binary.BigEndian.PutUint64(tidBuf[:], tid)
	h.Write(tidBuf[:])
	h.Write([]byte(op))
	h.Write([]byte(key))
	h.Write([]byte(value))
	h.Write([]byte(prevHash))
	return hex.EncodeToString(h.Sum(nil))
}

// epochHash folds a set of per-record output hashes into the single
// digest that becomes the next epoch's prev_epoch_hash, per spec.md
// §4.6 "Inter-set (epoch-level) chain".
func epochHash(recordOutputHashes []string) string {
	h := sha256.New()
	for _, rh := range recordOutputHashes {
		h.Write([]byte(rh))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// LogSetHeader precedes a log set's records on disk.
type LogSetHeader struct {
	PrevEpochHash string `json:"prev_epoch_hash"`
	LogRecordNum  uint   `json:"log_record_num"`
}

// LogSet batches every log record produced by one buffer (one worker,
// one epoch) before it is sealed and written to disk.
type LogSet struct {
	LoggerID  int          `json:"logger_id"`
	Epoch     uint64       `json:"epoch"`
	LogHeader LogSetHeader `json:"log_header"`
	Records   []LogRecord  `json:"records"`
}

// chainFrom replays this set's records' intra-set hash chain starting
// from incoming, returning each record's output hash and whether every
// record's stored PrevHash matched what the chain expected (spec.md
// §4.6 / §4.8 "Verify intra-epoch chain").
func (s *LogSet) chainFrom(incoming string) (outputs []string, final string, ok bool) {
	outputs = make([]string, len(s.Records))
	running := incoming
	for i, r := range s.Records {
		if r.PrevHash != running {
			return outputs, running, false
		}
		running = recordHash(r.PrevHash, r.TID, r.Op, r.Key, r.Value)
		outputs[i] = running
	}
	return outputs, running, true
}

// EpochOutputHash folds this set's record output hashes into the digest
// that the next epoch's sets must present as prev_epoch_hash.
func (s *LogSet) EpochOutputHash(incoming string) (string, bool) {
	outputs, _, ok := s.chainFrom(incoming)
	if !ok {
		return "", false
	}
	return epochHash(outputs), true
}

// LastOutputHash returns the final record's output hash, the value that
// must equal the per-logger last-log hash persisted in the pepoch file
// when this is a logger's last set (spec.md §4.8 step 3d).
func (s *LogSet) LastOutputHash(incoming string) (string, bool) {
	_, final, ok := s.chainFrom(incoming)
	return final, ok
}
