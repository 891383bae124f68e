// Package engine wires rtconfig, index, txn, wal, notify, and server
// together into one running service, and drives the recovery path on
// startup (the glue row of SPEC_FULL.md's package table).
package engine

import (
	"crypto/tls"
	"fmt"
	"path/filepath"
	"time"

	"github.com/coredao-org/sealedkv/index"
	"github.com/coredao-org/sealedkv/log"
	"github.com/coredao-org/sealedkv/notify"
	"github.com/coredao-org/sealedkv/recovery"
	"github.com/coredao-org/sealedkv/rtconfig"
	"github.com/coredao-org/sealedkv/server"
	"github.com/coredao-org/sealedkv/txn"
	"github.com/coredao-org/sealedkv/wal"
)

// Engine owns every live component of a running sealedkv instance.
type Engine struct {
	cfg rtconfig.Config

	idx *index.Index
	rt  *txn.Runtime

	pools   []*wal.BufferPool
	queues  []*wal.Queue
	loggers []*wal.Logger

	notifier   *notify.Notifier
	dispatcher *server.Dispatcher
	sessions   *server.SessionTable
	listener   *server.Listener

	quit chan struct{}
}

func loggerLogPath(dataDir string, loggerID int) string {
	return filepath.Join(dataDir, fmt.Sprintf("log%d.seal", loggerID))
}

func pepochPath(dataDir string) string {
	return filepath.Join(dataDir, "pepoch.seal")
}

// assignWorkersToLoggers spreads workerNum workers round-robin across
// loggerNum loggers, the fixed binding spec.md §4.6's min_epoch
// computation assumes.
func assignWorkersToLoggers(workerNum, loggerNum int) [][]int {
	bound := make([][]int, loggerNum)
	for w := 0; w < workerNum; w++ {
		l := w % loggerNum
		bound[l] = append(bound[l], w)
	}
	return bound
}

// New constructs an Engine from cfg, replaying any prior durable state
// from cfg.DataDir before wiring the live pipeline.
func New(cfg rtconfig.Config, cert tls.Certificate, tlsBase *tls.Config) (*Engine, error) {
	idx := index.New()
	rt := txn.NewRuntime(cfg.WorkerNum, cfg.LoggerNum)

	logPaths := make([]string, cfg.LoggerNum)
	for l := 0; l < cfg.LoggerNum; l++ {
		logPaths[l] = loggerLogPath(cfg.DataDir, l)
	}

	result, err := recovery.Recover(idx, recovery.Options{
		LogPaths:   logPaths,
		PepochPath: pepochPath(cfg.DataDir),
		Progress: func(epoch, durable uint64) {
			log.Info("recovery progress", "epoch", epoch, "durable_epoch", durable)
		},
	})
	if err != nil {
		return nil, err
	}
	rt.SetGlobalEpoch(result.GlobalEpoch)
	rt.SetDurableEpoch(result.DurableEpoch)
	for w := 0; w < cfg.WorkerNum; w++ {
		rt.SetWorkerEpoch(w, result.GlobalEpoch)
	}
	for l := 0; l < cfg.LoggerNum; l++ {
		rt.SetLoggerDurable(l, result.DurableEpoch)
	}

	bound := assignWorkersToLoggers(cfg.WorkerNum, cfg.LoggerNum)

	queues := make([]*wal.Queue, cfg.LoggerNum)
	pools := make([]*wal.BufferPool, cfg.WorkerNum)
	for w := 0; w < cfg.WorkerNum; w++ {
		l := w % cfg.LoggerNum
		if queues[l] == nil {
			queues[l] = wal.NewQueue()
		}
		pools[w] = wal.NewBufferPool(cfg.BufferNum, cfg.MaxBufferedLogEntries, queues[l])
	}

	e := &Engine{
		cfg:     cfg,
		idx:     idx,
		rt:      rt,
		pools:   pools,
		queues:  queues,
		loggers: make([]*wal.Logger, cfg.LoggerNum),
		quit:    make(chan struct{}),
	}

	e.dispatcher = server.NewDispatcher(1024)
	e.notifier = notify.NewNotifier(rt, e.dispatcher.Deliver)
	e.sessions = server.NewSessionTable(1024)

	for l := 0; l < cfg.LoggerNum; l++ {
		stream, err := newFileStream(logPaths[l])
		if err != nil {
			return nil, err
		}
		writer := wal.NewSealedWriter(stream)
		e.loggers[l] = wal.NewLogger(l, bound[l], rt, rt, queues[l], writer,
			time.Duration(cfg.EpochTimeMillis)*time.Millisecond, nil)
	}

	e.listener = server.NewListener(cert, tlsBase, e.sessions, e.dispatcher, e.notifier, cfg.ServerInLoop)

	return e, nil
}

// Start launches the epoch leader, every worker, every logger, the
// durable-epoch ticker, and the TLS listener, in their own goroutines.
func (e *Engine) Start(addr string) {
	go txn.RunEpochLeader(e.rt, e.idx, time.Duration(e.cfg.EpochTimeMillis)*time.Millisecond)

	for w := 0; w < e.cfg.WorkerNum; w++ {
		exec := txn.NewExecutor(e.rt, e.idx, e.pools[w], w, e.notifier)
		go txn.RunWorker(e.rt, exec, w, e.dispatcher, e.cfg.EpochDiff)
	}

	for _, l := range e.loggers {
		go l.Run(e.quit)
	}

	go e.runDurableTicker()

	go func() {
		if err := e.listener.Serve(addr); err != nil {
			log.Error("server: listener stopped", "err", err)
		}
	}()
}

func (e *Engine) runDurableTicker() {
	ticker := time.NewTicker(time.Duration(e.cfg.EpochTimeMillis) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-e.quit:
			e.notifier.MakeDurable(true)
			return
		case <-ticker.C:
			notify.CheckDurable(e.rt, loggerHashSource{e.loggers}, e.rt.AdvanceDurableEpoch, pepochPath(e.cfg.DataDir))
			e.notifier.MakeDurable(false)
		}
	}
}

// Stop requests shutdown of workers and loggers and performs a final
// notification drain.
func (e *Engine) Stop() {
	e.rt.RequestQuit()
	close(e.quit)
}

type loggerHashSource struct{ loggers []*wal.Logger }

func (s loggerHashSource) LastHash(loggerID int) string {
	if loggerID < 0 || loggerID >= len(s.loggers) {
		return ""
	}
	return s.loggers[loggerID].LastHash()
}
