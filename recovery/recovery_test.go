package recovery

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coredao-org/sealedkv/index"
	"github.com/coredao-org/sealedkv/notify"
	"github.com/coredao-org/sealedkv/status"
	"github.com/coredao-org/sealedkv/wal"
)

// fileStream adapts *os.File to wal.ByteStream for the SealedWriter.
type fileStream struct{ file *os.File }

func newFileStream(path string) (*fileStream, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &fileStream{file: f}, nil
}

func (s *fileStream) Write(p []byte) (int, error) { return s.file.Write(p) }
func (s *fileStream) Sync() error                 { return s.file.Sync() }

type fixedEpochs struct{ epoch uint64 }

func (f fixedEpochs) WorkerCTIDWEpoch(int) uint64 { return f.epoch }

type fakeDurable struct{ last uint64 }

func (f *fakeDurable) SetLoggerDurable(_ int, v uint64) bool {
	if v <= f.last {
		return false
	}
	f.last = v
	return true
}

func tidWord(epoch, tid uint32) uint64 { return uint64(epoch)<<32 | uint64(tid)<<3 }

// TestRecoverReplaysDurableEpochsOnly writes two epochs of log records
// through the real buffer pool/queue/logger pipeline to a file, persists
// a matching pepoch file, then verifies Recover rebuilds the index from
// exactly the durable portion.
func TestRecoverReplaysDurableEpochsOnly(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "logger0.seal")
	pepochPath := filepath.Join(dir, "pepoch.seal")

	stream, err := newFileStream(logPath)
	require.NoError(t, err)

	q := wal.NewQueue()
	pool := wal.NewBufferPool(4, 1000, q)
	writer := wal.NewSealedWriter(stream)
	durable := &fakeDurable{}
	logger := wal.NewLogger(0, []int{0}, fixedEpochs{epoch: 3}, durable, q, writer, 0, nil)

	// epoch 1: insert "a", insert "b"
	pool.Push(tidWord(1, 1), 1, []wal.Entry{{Key: []byte("a"), Value: []byte("a1"), Op: wal.OpInsert}}, false)
	pool.Push(tidWord(1, 2), 2, []wal.Entry{{Key: []byte("b"), Value: []byte("b1"), Op: wal.OpInsert}}, true)
	logger.Run(closedChan())

	// epoch 2: write "a", delete "b"
	pool.Push(tidWord(2, 3), 3, []wal.Entry{{Key: []byte("a"), Value: []byte("a2"), Op: wal.OpWrite}}, false)
	pool.Push(tidWord(2, 4), 4, []wal.Entry{{Key: []byte("b"), Value: nil, Op: wal.OpDelete}}, true)
	logger.Run(closedChan())

	require.NoError(t, stream.file.Sync())
	require.NoError(t, stream.file.Close())

	err = notify.PersistPepoch(pepochPath, 2, []string{logger.LastHash()})
	require.NoError(t, err)

	idx := index.New()
	result, err := Recover(idx, Options{LogPaths: []string{logPath}, PepochPath: pepochPath})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), result.DurableEpoch)
	assert.Equal(t, uint64(3), result.GlobalEpoch)
	assert.Equal(t, 4, result.RecordsApplied)

	rec, st := idx.Get([]byte("a"))
	require.Equal(t, status.OK, st)
	assert.Equal(t, []byte("a2"), rec.Body)

	_, st = idx.Get([]byte("b"))
	assert.Equal(t, status.WarnNotFound, st)
}

func closedChan() <-chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}
