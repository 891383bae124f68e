package server

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionTableRejectsReplayedTimestamp(t *testing.T) {
	table := NewSessionTable(16)
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()
	s := table.Register(c1)

	assert.True(t, table.CheckAndAdvance(s.ID, 100, 0))
	assert.True(t, table.CheckAndAdvance(s.ID, 100, 1))
	assert.False(t, table.CheckAndAdvance(s.ID, 100, 1))
	assert.False(t, table.CheckAndAdvance(s.ID, 99, 999))
	assert.True(t, table.CheckAndAdvance(s.ID, 101, 0))
}

func TestSessionTableTombstoneSurvivesRemoval(t *testing.T) {
	table := NewSessionTable(16)
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()
	s := table.Register(c1)
	require.True(t, table.CheckAndAdvance(s.ID, 50, 0))

	table.Remove(s.ID)
	_, live := table.Get(s.ID)
	assert.False(t, live)

	assert.False(t, table.CheckAndAdvance(s.ID, 50, 0), "a replay of the last pre-close timestamp must still be rejected")
	assert.True(t, table.CheckAndAdvance(s.ID, 51, 0))
}

func TestSessionTableUnseenIDAccepted(t *testing.T) {
	table := NewSessionTable(16)
	assert.True(t, table.CheckAndAdvance("ABCDEF", 1, 0))
}
