package rendezvous

import (
	"context"
	"time"

	"github.com/frostkit/frost-cli/internal/arid"
	"github.com/frostkit/frost-cli/internal/frosterr"
)

// Mainline and IPFS backends are explicitly out of scope for this repo
// (spec §1 lists "the rendezvous store's transport (DHT, IPFS, HTTP
// server)" as a collaborator, not something this core implements). They
// exist here only so `--storage` enumerates all four names from spec
// §6 and so `check` can report them as configured-but-unavailable
// rather than rejecting the flag outright. Wiring a real mainline DHT
// or go-ipfs node is a transport-layer concern with no grounding
// anywhere in the retrieval pack (bnb-chain/tss-lib's ipfs/go-log
// dependency is a logging sink, not a DHT client) and is left for a
// dedicated transport package.

// Mainline is a stub over a BitTorrent mainline DHT store.
type Mainline struct {
	host string
	port int
}

func NewMainline(host string, port int) *Mainline {
	return &Mainline{host: host, port: port}
}

func (m *Mainline) Name() string { return "mainline" }

func (m *Mainline) Put(ctx context.Context, id arid.ARID, value []byte) error {
	return frosterr.New(frosterr.Transport, "mainline backend not implemented in this build")
}

func (m *Mainline) Get(ctx context.Context, id arid.ARID, timeout time.Duration) ([]byte, bool, error) {
	return nil, false, frosterr.New(frosterr.Transport, "mainline backend not implemented in this build")
}

func (m *Mainline) Healthz(ctx context.Context) error {
	return frosterr.New(frosterr.Transport, "mainline backend not configured")
}

// IPFS is a stub over an IPFS-pinned content store.
type IPFS struct {
	host string
	port int
}

func NewIPFS(host string, port int) *IPFS {
	return &IPFS{host: host, port: port}
}

func (i *IPFS) Name() string { return "ipfs" }

func (i *IPFS) Put(ctx context.Context, id arid.ARID, value []byte) error {
	return frosterr.New(frosterr.Transport, "ipfs backend not implemented in this build")
}

func (i *IPFS) Get(ctx context.Context, id arid.ARID, timeout time.Duration) ([]byte, bool, error) {
	return nil, false, frosterr.New(frosterr.Transport, "ipfs backend not implemented in this build")
}

func (i *IPFS) Healthz(ctx context.Context) error {
	return frosterr.New(frosterr.Transport, "ipfs backend not configured")
}

// Hybrid fans a Put out to every underlying backend and tries each in
// order for Get, returning the first hit. It gives `--storage hybrid`
// resilience against any single backend being unavailable, matching
// the "pluggable" framing of spec §4.2 without inventing new client
// semantics.
type Hybrid struct {
	backends []Client
}

func NewHybrid(backends ...Client) *Hybrid {
	return &Hybrid{backends: backends}
}

func (h *Hybrid) Name() string { return "hybrid" }

func (h *Hybrid) Put(ctx context.Context, id arid.ARID, value []byte) error {
	var firstErr error
	ok := false
	for _, b := range h.backends {
		if err := b.Put(ctx, id, value); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		ok = true
	}
	if !ok {
		return firstErr
	}
	return nil
}

func (h *Hybrid) Get(ctx context.Context, id arid.ARID, timeout time.Duration) ([]byte, bool, error) {
	var lastErr error
	for _, b := range h.backends {
		v, found, err := b.Get(ctx, id, timeout)
		if err != nil {
			lastErr = err
			continue
		}
		if found {
			return v, true, nil
		}
	}
	return nil, false, lastErr
}

func (h *Hybrid) Healthz(ctx context.Context) error {
	var lastErr error
	healthy := 0
	for _, b := range h.backends {
		if err := b.Healthz(ctx); err != nil {
			lastErr = err
			continue
		}
		healthy++
	}
	if healthy == 0 {
		return lastErr
	}
	return nil
}

// New builds the Client named by --storage (spec §6: mainline, ipfs,
// hybrid, server).
func New(storage, host string, port int) (Client, error) {
	switch storage {
	case "server":
		return NewServerClient(host, port), nil
	case "mainline":
		return NewMainline(host, port), nil
	case "ipfs":
		return NewIPFS(host, port), nil
	case "hybrid":
		return NewHybrid(NewServerClient(host, port), NewMainline(host, port), NewIPFS(host, port)), nil
	default:
		return nil, frosterr.Newf(frosterr.Configuration, "unknown --storage backend %q", storage)
	}
}
