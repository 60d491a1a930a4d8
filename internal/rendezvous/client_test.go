package rendezvous

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frostkit/frost-cli/internal/arid"
)

func TestMemoryPutGetRoundTrip(t *testing.T) {
	m := NewMemory()
	id := arid.MustNew()

	require.NoError(t, m.Put(context.Background(), id, []byte("payload")))

	v, ok, err := m.Get(context.Background(), id, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), v)
}

func TestMemoryPutIsIdempotentOnIdenticalContent(t *testing.T) {
	m := NewMemory()
	id := arid.MustNew()

	require.NoError(t, m.Put(context.Background(), id, []byte("payload")))
	require.NoError(t, m.Put(context.Background(), id, []byte("payload")))
}

func TestMemoryPutRejectsDivergingContent(t *testing.T) {
	m := NewMemory()
	id := arid.MustNew()

	require.NoError(t, m.Put(context.Background(), id, []byte("one")))
	err := m.Put(context.Background(), id, []byte("two"))
	assert.Error(t, err)
}

func TestMemoryGetTimesOutWhenAbsent(t *testing.T) {
	m := NewMemory()
	id := arid.MustNew()

	start := time.Now()
	_, ok, err := m.Get(context.Background(), id, 50*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestMemoryGetObservesLateArrival(t *testing.T) {
	m := NewMemory()
	id := arid.MustNew()

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = m.Put(context.Background(), id, []byte("eventually"))
	}()

	v, ok, err := m.Get(context.Background(), id, 500*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("eventually"), v)
}

func TestMemoryHealthzAlwaysOK(t *testing.T) {
	m := NewMemory()
	assert.NoError(t, m.Healthz(context.Background()))
}
