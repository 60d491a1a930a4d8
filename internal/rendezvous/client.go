// Package rendezvous implements the pluggable content-addressed store of
// spec §4.2: a two-method `put`/`get` contract that every coordinator
// and participant operation drives, directly or through
// internal/dispatch's cooperative fan-out. No pack repo ships a
// rendezvous-shaped abstraction, so the two-method interface and its
// backends are this repo's own, built in the unadorned net/http style
// the teacher's cmd/*/main.go use for I/O.
package rendezvous

import (
	"context"
	"sync"
	"time"

	"github.com/frostkit/frost-cli/internal/arid"
	"github.com/frostkit/frost-cli/internal/frosterr"
)

// Client is the abstract rendezvous contract of spec §4.2. Put is
// idempotent on identical bytes; Get long-polls up to timeout before
// reporting absence.
type Client interface {
	Put(ctx context.Context, id arid.ARID, value []byte) error
	Get(ctx context.Context, id arid.ARID, timeout time.Duration) (value []byte, ok bool, err error)
	// Healthz probes backend liveness with a short, backend-defined
	// timeout, for the `check` CLI command.
	Healthz(ctx context.Context) error
	// Name identifies the backend for --storage selection and logging.
	Name() string
}

// Memory is an in-process Client, used by tests and by the `hybrid`
// backend's local cache. Gets poll the map at a fixed interval until
// the timeout elapses, matching the long-poll contract without needing
// a channel per waiter.
type Memory struct {
	mu   sync.RWMutex
	data map[arid.ARID][]byte
}

func NewMemory() *Memory {
	return &Memory{data: make(map[arid.ARID][]byte)}
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) Put(ctx context.Context, id arid.ARID, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.data[id]; ok {
		if !bytesEqual(existing, value) {
			return frosterr.New(frosterr.Protocol, "rendezvous: differing content already stored under this ARID")
		}
		return nil
	}
	m.data[id] = append([]byte(nil), value...)
	return nil
}

func (m *Memory) Get(ctx context.Context, id arid.ARID, timeout time.Duration) ([]byte, bool, error) {
	deadline := time.Now().Add(timeout)
	const pollInterval = 20 * time.Millisecond
	for {
		m.mu.RLock()
		v, ok := m.data[id]
		m.mu.RUnlock()
		if ok {
			return append([]byte(nil), v...), true, nil
		}
		if time.Now().After(deadline) {
			return nil, false, nil
		}
		select {
		case <-ctx.Done():
			return nil, false, frosterr.Wrap(frosterr.Transport, ctx.Err(), "rendezvous get canceled")
		case <-time.After(pollInterval):
		}
	}
}

func (m *Memory) Healthz(ctx context.Context) error { return nil }

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
