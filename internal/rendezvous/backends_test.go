package rendezvous

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frostkit/frost-cli/internal/arid"
)

func TestNewRejectsUnknownBackend(t *testing.T) {
	_, err := New("carrier-pigeon", "localhost", 9090)
	assert.Error(t, err)
}

func TestNewServerBackend(t *testing.T) {
	c, err := New("server", "localhost", 9090)
	require.NoError(t, err)
	assert.Equal(t, "server", c.Name())
}

func TestHybridGetFallsThroughToHealthyBackend(t *testing.T) {
	primary := &Mainline{}
	secondary := NewMemory()
	id := arid.MustNew()
	require.NoError(t, secondary.Put(context.Background(), id, []byte("found via fallback")))

	h := NewHybrid(primary, secondary)
	v, ok, err := h.Get(context.Background(), id, 50*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("found via fallback"), v)
}

func TestHybridPutSucceedsIfAnyBackendSucceeds(t *testing.T) {
	broken := &Mainline{}
	working := NewMemory()
	id := arid.MustNew()

	h := NewHybrid(broken, working)
	require.NoError(t, h.Put(context.Background(), id, []byte("payload")))

	v, ok, err := working.Get(context.Background(), id, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), v)
}

func TestHybridPutFailsIfEveryBackendFails(t *testing.T) {
	h := NewHybrid(&Mainline{}, &IPFS{})
	err := h.Put(context.Background(), arid.MustNew(), []byte("x"))
	assert.Error(t, err)
}

func TestHybridHealthzReportsHealthyIfAnyBackendIs(t *testing.T) {
	h := NewHybrid(&Mainline{}, NewMemory())
	assert.NoError(t, h.Healthz(context.Background()))
}

func TestHybridHealthzFailsIfNoBackendIs(t *testing.T) {
	h := NewHybrid(&Mainline{}, &IPFS{})
	assert.Error(t, h.Healthz(context.Background()))
}
