// Package recovery implements spec.md §4.8: rebuilding an Index from the
// sealed, hash-chained write-ahead log left behind by a prior run, up to
// the durable epoch recorded in the pepoch file.
package recovery

import (
	"sort"

	"github.com/coredao-org/sealedkv/index"
	"github.com/coredao-org/sealedkv/notify"
	"github.com/coredao-org/sealedkv/record"
	"github.com/coredao-org/sealedkv/status"
	"github.com/coredao-org/sealedkv/wal"
)

// Options configures one recovery run.
type Options struct {
	// LogPaths holds each logger's sealed log file, in logger-index order.
	LogPaths []string
	// PepochPath is the sealed pepoch file persisted by notify.PersistPepoch.
	PepochPath string
	// Progress, if set, is called after each epoch is replayed.
	Progress func(epoch, durableEpoch uint64)
}

// Result summarizes a completed recovery run.
type Result struct {
	GlobalEpoch  uint64
	DurableEpoch uint64
	RecordsApplied int
}

// Recover replays every logger's sealed log into idx up to the durable
// epoch recorded at PepochPath, verifying each logger's continuous
// hash chain as it goes, and returns the epoch the runtime should resume
// at (DurableEpoch + 1).
func Recover(idx *index.Index, opts Options) (Result, error) {
	durableEpoch, lastHashes, err := notify.ReadPepoch(opts.PepochPath, len(opts.LogPaths))
	if err != nil {
		return Result{}, status.NewFatal(status.FatalMissingDurableEpoch, err.Error())
	}

	byEpoch := make(map[uint64][]wal.LogRecord)

	for loggerID, path := range opts.LogPaths {
		sets, err := wal.ReadLogSets(path)
		if err != nil {
			return Result{}, status.NewFatal(status.FatalTruncatedLog, err.Error())
		}

		running := wal.GenesisHash()
		var lastDurableOutput string
		sawDurable := false

		for _, set := range sets {
			if set.LogHeader.PrevEpochHash != running {
				return Result{}, status.NewFatal(status.FatalHashChainMismatch, "inter-set chain broke before durable epoch boundary")
			}
			out, ok := set.EpochOutputHash(running)
			if !ok {
				return Result{}, status.NewFatal(status.FatalHashChainMismatch, "intra-set record chain broke")
			}
			running = out

			if set.Epoch > durableEpoch {
				continue
			}
			lastDurableOutput = out
			sawDurable = true
			byEpoch[set.Epoch] = append(byEpoch[set.Epoch], set.Records...)
		}

		if sawDurable && loggerID < len(lastHashes) && lastDurableOutput != lastHashes[loggerID] {
			return Result{}, status.NewFatal(status.FatalHashChainMismatch, "last durable hash does not match pepoch file")
		}
	}

	applied := 0
	epochs := make([]uint64, 0, len(byEpoch))
	for e := range byEpoch {
		epochs = append(epochs, e)
	}
	sort.Slice(epochs, func(i, j int) bool { return epochs[i] < epochs[j] })

	for _, e := range epochs {
		recs := byEpoch[e]
		sort.SliceStable(recs, func(i, j int) bool { return recs[i].TID < recs[j].TID })
		for _, r := range recs {
			if err := applyRecord(idx, r, uint32(e)); err != nil {
				return Result{}, err
			}
			applied++
		}
		if opts.Progress != nil {
			opts.Progress(e, durableEpoch)
		}
	}

	idx.SetEpoch(durableEpoch)
	return Result{GlobalEpoch: durableEpoch + 1, DurableEpoch: durableEpoch, RecordsApplied: applied}, nil
}

func applyRecord(idx *index.Index, r wal.LogRecord, epoch uint32) error {
	key := []byte(r.Key)
	switch r.Op {
	case "INSERT":
		rec, st := idx.Insert(key, epoch)
		if st != status.OK && st != status.WarnAlreadyExists {
			return status.New(st, "recovery insert failed for key "+r.Key)
		}
		if st == status.WarnAlreadyExists {
			rec, st = idx.Get(key)
			if st != status.OK {
				return status.New(st, "recovery re-lookup failed for key "+r.Key)
			}
		}
		rec.Body = []byte(r.Value)
		rec.TID.Store(record.NewTIDWord(epoch).WithAbsent(false))
	case "WRITE":
		rec, st := idx.Get(key)
		if st == status.WarnNotFound {
			rec, st = idx.Insert(key, epoch)
		}
		if st != status.OK {
			return status.New(st, "recovery write failed for key "+r.Key)
		}
		rec.Body = []byte(r.Value)
		rec.TID.Store(record.NewTIDWord(epoch).WithAbsent(false))
	case "DELETE":
		if st := idx.Remove(key); st != status.OK && st != status.WarnNotFound {
			return status.New(st, "recovery delete failed for key "+r.Key)
		}
	}
	return nil
}
