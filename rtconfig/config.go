// Package rtconfig defines the runtime configuration surface for the
// engine: worker/logger counts, epoch timing, and log buffer sizing,
// sourced from CLI flags (falling back to environment variables) via
// urfave/cli/v2.
package rtconfig

import (
	"github.com/urfave/cli/v2"
)

// Config holds every tunable the engine needs to start a runtime,
// transaction executor pool, and WAL pipeline.
type Config struct {
	// EpochTimeMillis is how often the epoch leader may advance
	// GlobalEpoch.
	EpochTimeMillis int
	// WorkerNum is the number of transaction-executing worker goroutines.
	WorkerNum int
	// LoggerNum is the number of WAL logger goroutines.
	LoggerNum int
	// BufferNum is the spare-buffer pool size per worker.
	BufferNum int
	// MaxBufferedLogEntries bounds how many records accumulate in an open
	// log buffer before it is forcibly published.
	MaxBufferedLogEntries int
	// EpochDiff bounds how far a worker's local epoch may run ahead of
	// the durable epoch before it must pause.
	EpochDiff uint64
	// Port is the TLS listener's port.
	Port int
	// ServerInLoop runs the network server on the same goroutine as
	// worker 0 instead of its own goroutine, for single-threaded testing.
	ServerInLoop bool
	// DataDir holds the sealed WAL files and pepoch file.
	DataDir string
}

const (
	flagEpochTimeMs    = "epoch-time-ms"
	flagWorkerNum      = "worker-num"
	flagLoggerNum      = "logger-num"
	flagBufferNum      = "buffer-num"
	flagMaxBufferedLog = "max-buffered-log-entries"
	flagEpochDiff      = "epoch-diff"
	flagPort           = "port"
	flagServerInLoop   = "server-in-loop"
	flagDataDir        = "datadir"
)

// Flags is the full CLI flag set cmd/sealedkv-server registers, each
// also readable from the matching environment variable per spec.md §5's
// configuration table.
var Flags = []cli.Flag{
	&cli.IntFlag{
		Name:    flagEpochTimeMs,
		Usage:   "milliseconds between global epoch advances",
		Value:   40,
		EnvVars: []string{"EPOCH_TIME_MS"},
	},
	&cli.IntFlag{
		Name:    flagWorkerNum,
		Usage:   "number of transaction worker goroutines",
		Value:   4,
		EnvVars: []string{"WORKER_NUM"},
	},
	&cli.IntFlag{
		Name:    flagLoggerNum,
		Usage:   "number of WAL logger goroutines",
		Value:   2,
		EnvVars: []string{"LOGGER_NUM"},
	},
	&cli.IntFlag{
		Name:    flagBufferNum,
		Usage:   "spare log buffers per worker",
		Value:   4,
		EnvVars: []string{"BUFFER_NUM"},
	},
	&cli.IntFlag{
		Name:    flagMaxBufferedLog,
		Usage:   "max log records per buffer before forced publish",
		Value:   4096,
		EnvVars: []string{"MAX_BUFFERED_LOG_ENTRIES"},
	},
	&cli.Uint64Flag{
		Name:    flagEpochDiff,
		Usage:   "max epochs a worker may run ahead of the durable epoch",
		Value:   2,
		EnvVars: []string{"EPOCH_DIFF"},
	},
	&cli.IntFlag{
		Name:    flagPort,
		Usage:   "TLS listener port",
		Value:   8443,
		EnvVars: []string{"PORT"},
	},
	&cli.BoolFlag{
		Name:    flagServerInLoop,
		Usage:   "run the network server inline on worker 0 instead of its own goroutine",
		EnvVars: []string{"SERVER_IN_LOOP"},
	},
	&cli.StringFlag{
		Name:    flagDataDir,
		Usage:   "directory for sealed WAL and pepoch files",
		Value:   "./data",
		EnvVars: []string{"DATADIR"},
	},
}

// FromContext reads Config out of a populated *cli.Context.
func FromContext(c *cli.Context) Config {
	return Config{
		EpochTimeMillis:       c.Int(flagEpochTimeMs),
		WorkerNum:             c.Int(flagWorkerNum),
		LoggerNum:             c.Int(flagLoggerNum),
		BufferNum:             c.Int(flagBufferNum),
		MaxBufferedLogEntries: c.Int(flagMaxBufferedLog),
		EpochDiff:             c.Uint64(flagEpochDiff),
		Port:                  c.Int(flagPort),
		ServerInLoop:          c.Bool(flagServerInLoop),
		DataDir:               c.String(flagDataDir),
	}
}
