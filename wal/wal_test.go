package wal

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStream struct {
	buf bytes.Buffer
}

func (m *memStream) Write(p []byte) (int, error) { return m.buf.Write(p) }
func (m *memStream) Sync() error                 { return nil }

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

func TestBufferPoolPublishesOnEpochBoundary(t *testing.T) {
	q := NewQueue()
	pool := NewBufferPool(4, 1000, q)

	tidWord := func(epoch uint32, tid uint32) uint64 {
		return uint64(epoch)<<32 | uint64(tid)<<3
	}

	pool.Push(tidWord(1, 1), 100, []Entry{{Key: []byte("a"), Value: []byte("1"), Op: OpInsert}}, false)
	_, ok := q.MinEpoch()
	assert.False(t, ok, "buffer should not publish before epoch boundary or fill threshold")

	pool.Push(tidWord(2, 2), 101, []Entry{{Key: []byte("b"), Value: []byte("2"), Op: OpInsert}}, true)
	min, ok := q.MinEpoch()
	require.True(t, ok)
	assert.Equal(t, uint64(1), min)
}

func TestLoggerSealsAndAdvancesDurableEpoch(t *testing.T) {
	q := NewQueue()
	pool := NewBufferPool(4, 1000, q)
	stream := &memStream{}
	writer := NewSealedWriter(stream)
	durable := &fakeDurable{}

	tidWord := uint64(1)<<32 | uint64(1)<<3
	pool.Push(tidWord, 1, []Entry{{Key: []byte("a"), Value: []byte("v"), Op: OpInsert}}, true)

	logger := NewLogger(0, []int{0}, fixedEpochs{epoch: 2}, durable, q, writer, time.Millisecond, nil)
	logger.drainOnce()

	assert.Greater(t, stream.buf.Len(), 0)
	assert.Equal(t, uint64(1), durable.last)
}
