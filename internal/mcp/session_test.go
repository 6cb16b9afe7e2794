package mcp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionManagerDefaults(t *testing.T) {
	m := NewSessionManager(SessionConfig{})

	cfg := m.Config()
	assert.Equal(t, 30*time.Minute, cfg.Timeout)
	assert.Equal(t, 5*time.Minute, cfg.CleanupInterval)
	assert.Equal(t, 1000, cfg.MaxSessions)
}

func TestSessionLifecycle(t *testing.T) {
	m := NewSessionManager(SessionConfig{})

	session, err := m.Create()
	require.NoError(t, err)
	require.NotEmpty(t, session.ID)
	assert.False(t, session.Initialized())

	got, ok := m.Get(session.ID)
	require.True(t, ok)
	assert.Same(t, session, got)

	session.MarkInitialized("2024-11-05")
	assert.True(t, session.Initialized())

	m.Remove(session.ID)
	_, ok = m.Get(session.ID)
	assert.False(t, ok)
}

func TestSessionSweepEvictsIdle(t *testing.T) {
	m := NewSessionManager(SessionConfig{Timeout: time.Minute})

	stale, err := m.Create()
	require.NoError(t, err)
	fresh, err := m.Create()
	require.NoError(t, err)

	// Getting a session refreshes its activity; only the untouched one
	// should age out.
	future := time.Now().Add(2 * time.Minute)
	_ = stale
	fresh.touch(future)

	evicted := m.Sweep(future)
	assert.Equal(t, 1, evicted)
	assert.Equal(t, 1, m.Count())

	_, ok := m.Get(fresh.ID)
	assert.True(t, ok)
}

func TestSessionLimit(t *testing.T) {
	m := NewSessionManager(SessionConfig{MaxSessions: 2})

	_, err := m.Create()
	require.NoError(t, err)
	_, err = m.Create()
	require.NoError(t, err)

	_, err = m.Create()
	require.Error(t, err)
}

func TestSessionCountCallback(t *testing.T) {
	m := NewSessionManager(SessionConfig{})
	var counts []int
	m.OnCount = func(n int) { counts = append(counts, n) }

	a, err := m.Create()
	require.NoError(t, err)
	_, err = m.Create()
	require.NoError(t, err)
	m.Remove(a.ID)

	assert.Equal(t, []int{1, 2, 1}, counts)
}
