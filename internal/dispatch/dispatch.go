// Package dispatch implements the cooperative parallel fetch/send
// dispatcher of spec §4.6, grounded on golang.org/x/sync/errgroup
// (direct luxfi-pack dependency) for bounded-concurrency fan-out and
// github.com/hashicorp/go-multierror (direct bnb-chain/tss-lib
// dependency) for folding per-target failures into one error a caller
// can inspect without losing which target failed.
package dispatch

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/frostkit/frost-cli/internal/arid"
	"github.com/frostkit/frost-cli/internal/xid"
)

// FetchRequest names one target to `get` from the rendezvous store.
type FetchRequest struct {
	XID     xid.XID
	ARID    arid.ARID
	Timeout time.Duration
}

// Getter is the subset of rendezvous.Client a fetch needs; declared
// locally so this package does not import internal/rendezvous,
// keeping the dispatcher reusable for anything shaped like get/put.
type Getter interface {
	Get(ctx context.Context, id arid.ARID, timeout time.Duration) ([]byte, bool, error)
}

type Putter interface {
	Put(ctx context.Context, id arid.ARID, value []byte) error
}

// Validate inspects a fetched value; returning an error whose message
// mentions "Timeout" classifies the result as a timeout, "rejected" or
// "Rejected" classifies it as a rejection, anything else as a generic
// error (spec §4.6's classification rules).
type Validate func(xid.XID, []byte) error

// FetchResults buckets every target of a ParallelFetch by outcome.
type FetchResults struct {
	Successes map[xid.XID][]byte
	Rejections map[xid.XID]error
	Errors     map[xid.XID]error
	Timeouts   map[xid.XID]error
}

func newFetchResults() *FetchResults {
	return &FetchResults{
		Successes:  make(map[xid.XID][]byte),
		Rejections: make(map[xid.XID]error),
		Errors:     make(map[xid.XID]error),
		Timeouts:   make(map[xid.XID]error),
	}
}

// CanProceed reports whether at least min targets succeeded.
func (r *FetchResults) CanProceed(min int) bool {
	return len(r.Successes) >= min
}

// Err folds every non-success into a *multierror.Error, or nil if every
// target succeeded.
func (r *FetchResults) Err() error {
	var merr *multierror.Error
	for id, err := range r.Timeouts {
		merr = multierror.Append(merr, annotateID(id, err))
	}
	for id, err := range r.Rejections {
		merr = multierror.Append(merr, annotateID(id, err))
	}
	for id, err := range r.Errors {
		merr = multierror.Append(merr, annotateID(id, err))
	}
	return merr.ErrorOrNil()
}

func annotateID(id xid.XID, err error) error {
	return &idError{xid: id, err: err}
}

type idError struct {
	xid xid.XID
	err error
}

func (e *idError) Error() string { return e.xid.String() + ": " + e.err.Error() }
func (e *idError) Unwrap() error { return e.err }

func classify(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "Timeout"):
		return "timeout"
	case strings.Contains(msg, "rejected") || strings.Contains(msg, "Rejected"):
		return "rejection"
	default:
		return "error"
	}
}

// ParallelFetch spawns one cooperative task per request, bounded to at
// most `concurrency` running at once (0 means unbounded), performs
// `get` then `validate`, and buckets every outcome. All tasks run to
// completion; one failure never cancels another, matching spec §4.6.
func ParallelFetch(ctx context.Context, client Getter, requests []FetchRequest, validate Validate, concurrency int) *FetchResults {
	results := newFetchResults()
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}

	for _, req := range requests {
		req := req
		g.Go(func() error {
			value, ok, err := client.Get(gctx, req.ARID, req.Timeout)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				results.Errors[req.XID] = err
				return nil
			}
			if !ok {
				results.Timeouts[req.XID] = &idError{xid: req.XID, err: errTimeout}
				return nil
			}
			if verr := validate(req.XID, value); verr != nil {
				switch classify(verr) {
				case "timeout":
					results.Timeouts[req.XID] = verr
				case "rejection":
					results.Rejections[req.XID] = verr
				default:
					results.Errors[req.XID] = verr
				}
				return nil
			}
			results.Successes[req.XID] = value
			return nil
		})
	}
	_ = g.Wait() // per-target errors are recorded in results, never propagated as a group failure
	return results
}

var errTimeout = &staticErr{"Timeout waiting for rendezvous value"}

type staticErr struct{ msg string }

func (e *staticErr) Error() string { return e.msg }

// SendMessage pairs a target with the bytes to `put`.
type SendMessage struct {
	XID   xid.XID
	ARID  arid.ARID
	Value []byte
}

// SendResults buckets every target of a ParallelSend by outcome.
type SendResults struct {
	Successes map[xid.XID]bool
	Errors    map[xid.XID]error
}

// ParallelSend awaits every `put`, bounded to at most `concurrency`
// running at once.
func ParallelSend(ctx context.Context, client Putter, messages []SendMessage, concurrency int) *SendResults {
	results := &SendResults{Successes: make(map[xid.XID]bool), Errors: make(map[xid.XID]error)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}

	for _, msg := range messages {
		msg := msg
		g.Go(func() error {
			err := client.Put(gctx, msg.ARID, msg.Value)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				results.Errors[msg.XID] = err
				return nil
			}
			results.Successes[msg.XID] = true
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Err folds every send failure into a *multierror.Error.
func (r *SendResults) Err() error {
	var merr *multierror.Error
	for id, err := range r.Errors {
		merr = multierror.Append(merr, annotateID(id, err))
	}
	return merr.ErrorOrNil()
}

// CanProceed reports whether at least min sends succeeded.
func (r *SendResults) CanProceed(min int) bool {
	return len(r.Successes) >= min
}

// NewTraceID stamps a human-readable correlation id on one CLI
// invocation for log correlation; it never appears on the wire (ARIDs
// and XIDs are the wire identifiers, spec §3).
func NewTraceID() string {
	return uuid.NewString()
}
