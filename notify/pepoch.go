package notify

import (
	"encoding/binary"
	"fmt"
	"os"
	"strings"

	"github.com/coredao-org/sealedkv/seal"
)

// LoggerDurableSource reports each logger's local durable epoch and
// current chain hash, kept narrow so notify avoids importing wal/txn
// directly.
type LoggerDurableSource interface {
	LoggerCount() int
	LoggerDurable(l int) uint64
}

// HashSource reports a logger's current last-sealed chain hash.
type HashSource interface {
	LastHash(loggerID int) string
}

// PersistPepoch writes the sealed pepoch layout spec.md §6 defines:
// u64 DurableEpoch followed by each logger's last-log hash (hex,
// logger-index order).
func PersistPepoch(path string, durableEpoch uint64, lastHashes []string) error {
	var buf []byte
	var epochBytes [8]byte
	binary.BigEndian.PutUint64(epochBytes[:], durableEpoch)
	buf = append(buf, epochBytes[:]...)
	buf = append(buf, []byte(strings.Join(lastHashes, ""))...)

	sealed, err := seal.Seal(buf)
	if err != nil {
		return err
	}
	return os.WriteFile(path, sealed, 0o600)
}

// ReadPepoch reverses PersistPepoch, splitting the hash blob back into
// per-logger 64-character hex hashes.
func ReadPepoch(path string, loggerCount int) (durableEpoch uint64, lastHashes []string, err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, nil, err
	}
	plain, err := seal.Unseal(raw)
	if err != nil {
		return 0, nil, err
	}
	if len(plain) < 8 {
		return 0, nil, fmt.Errorf("notify: pepoch file truncated")
	}
	durableEpoch = binary.BigEndian.Uint64(plain[:8])
	rest := plain[8:]
	const hashLen = 64
	if len(rest) != hashLen*loggerCount {
		return 0, nil, fmt.Errorf("notify: pepoch hash section has %d bytes, want %d", len(rest), hashLen*loggerCount)
	}
	lastHashes = make([]string, loggerCount)
	for i := 0; i < loggerCount; i++ {
		lastHashes[i] = string(rest[i*hashLen : (i+1)*hashLen])
	}
	return durableEpoch, lastHashes, nil
}

// CheckDurable computes min_dl across loggers, advances runtime's
// DurableEpoch via advance if it exceeds the current value, persists the
// new value and current per-logger hashes to path, and returns whether
// it advanced (spec.md §4.7 "check_durable").
func CheckDurable(loggers LoggerDurableSource, hashes HashSource, advance func(uint64) bool, path string) (bool, error) {
	n := loggers.LoggerCount()
	minDL, has := uint64(0), false
	for l := 0; l < n; l++ {
		d := loggers.LoggerDurable(l)
		if !has || d < minDL {
			minDL, has = d, true
		}
	}
	if !has || !advance(minDL) {
		return false, nil
	}

	lastHashes := make([]string, n)
	for l := 0; l < n; l++ {
		lastHashes[l] = hashes.LastHash(l)
	}
	return true, PersistPepoch(path, minDL, lastHashes)
}
