package server

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipeSession(t *testing.T, id uint64) *Session {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return NewSession(id, server, 1024)
}

func TestRegistryCapacity(t *testing.T) {
	reg := NewRegistry(2)

	first := pipeSession(t, 1)
	second := pipeSession(t, 2)
	third := pipeSession(t, 3)

	require.NoError(t, reg.Register(first))
	require.NoError(t, reg.Register(second))
	assert.ErrorIs(t, reg.Register(third), ErrRegistryFull)
	assert.Equal(t, 2, reg.Count())

	// A rejected registration never evicts an existing session
	assert.True(t, reg.Contains(first))
	assert.True(t, reg.Contains(second))
	assert.False(t, reg.Contains(third))

	reg.Unregister(first)
	require.NoError(t, reg.Register(third))
	assert.Equal(t, 2, reg.Count())
}

func TestRegistryUnregisterIdempotent(t *testing.T) {
	reg := NewRegistry(4)
	sess := pipeSession(t, 1)

	require.NoError(t, reg.Register(sess))
	reg.Unregister(sess)
	reg.Unregister(sess)
	assert.Equal(t, 0, reg.Count())
	assert.False(t, reg.Contains(sess))
}

func TestRegistryFindBySalon(t *testing.T) {
	reg := NewRegistry(4)

	inGeneral := pipeSession(t, 1)
	inGeneral.SetSalon("general")
	alsoGeneral := pipeSession(t, 2)
	alsoGeneral.SetSalon("general")
	inTech := pipeSession(t, 3)
	inTech.SetSalon("tech")
	nowhere := pipeSession(t, 4)

	for _, sess := range []*Session{inGeneral, alsoGeneral, inTech, nowhere} {
		require.NoError(t, reg.Register(sess))
	}

	members := reg.FindBySalon("general")
	ids := make([]uint64, 0, len(members))
	for _, member := range members {
		ids = append(ids, member.ID)
	}
	assert.ElementsMatch(t, []uint64{1, 2}, ids)

	assert.Len(t, reg.FindBySalon("tech"), 1)
	assert.Empty(t, reg.FindBySalon("nope"))
	assert.Len(t, reg.All(), 4)
}

func TestRegistryCloseAll(t *testing.T) {
	reg := NewRegistry(4)
	first := pipeSession(t, 1)
	second := pipeSession(t, 2)
	require.NoError(t, reg.Register(first))
	require.NoError(t, reg.Register(second))

	reg.CloseAll()
	assert.Equal(t, 0, reg.Count())
	assert.False(t, reg.Contains(first))
}
