package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHubShutdownClosesClients(t *testing.T) {
	env := newTestEnv(t)

	peers := []*peer{env.connect(t, "a"), env.connect(t, "a"), env.connect(t, "b")}

	require.NoError(t, env.hub.Shutdown(2*time.Second))
	assert.Zero(t, env.hub.ClientCount())

	for _, p := range peers {
		_, err := p.next(2 * time.Second)
		assert.Error(t, err, "connection is closed after shutdown")
	}
}

func TestRegisterAfterShutdownIsRefused(t *testing.T) {
	hub := NewHub(NewConfig(), nil, zap.NewNop().Sugar())
	go hub.Run()
	require.NoError(t, hub.Shutdown(time.Second))

	c := NewClient(nil, hub, "late", "lobby")
	assert.False(t, hub.Register(c))
	hub.Unregister(c)
}

func TestShutdownWithoutClients(t *testing.T) {
	hub := NewHub(NewConfig(), nil, nil)
	go hub.Run()

	start := time.Now()
	require.NoError(t, hub.Shutdown(time.Second))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}
