package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frostkit/frost-cli/internal/arid"
	"github.com/frostkit/frost-cli/internal/xid"
)

type fakeGetter struct {
	values map[arid.ARID][]byte
	found  map[arid.ARID]bool
	errs   map[arid.ARID]error
}

func (f *fakeGetter) Get(ctx context.Context, id arid.ARID, timeout time.Duration) ([]byte, bool, error) {
	if err, ok := f.errs[id]; ok {
		return nil, false, err
	}
	return f.values[id], f.found[id], nil
}

func newXID(b byte) xid.XID {
	var x xid.XID
	x[0] = b
	return x
}

func newARID(b byte) arid.ARID {
	var a arid.ARID
	a[0] = b
	return a
}

func TestParallelFetch_ClassifiesByOutcome(t *testing.T) {
	aliceXID, aliceARID := newXID(1), newARID(1)
	bobXID, bobARID := newXID(2), newARID(2)
	carolXID, carolARID := newXID(3), newARID(3)
	daveXID, daveARID := newXID(4), newARID(4)

	getter := &fakeGetter{
		values: map[arid.ARID][]byte{aliceARID: []byte("ok")},
		found:  map[arid.ARID]bool{aliceARID: true, carolARID: false},
		errs:   map[arid.ARID]error{daveARID: errors.New("transport exploded")},
	}
	// bob is "found" but fails validation with a rejection message.
	getter.found[bobARID] = true
	getter.values[bobARID] = []byte("bad")

	requests := []FetchRequest{
		{XID: aliceXID, ARID: aliceARID, Timeout: time.Second},
		{XID: bobXID, ARID: bobARID, Timeout: time.Second},
		{XID: carolXID, ARID: carolARID, Timeout: time.Second},
		{XID: daveXID, ARID: daveARID, Timeout: time.Second},
	}

	validate := func(x xid.XID, value []byte) error {
		if x == bobXID {
			return errors.New("participant rejected invite: not interested")
		}
		return nil
	}

	results := ParallelFetch(context.Background(), getter, requests, validate, 2)

	require.Len(t, results.Successes, 1)
	assert.Equal(t, []byte("ok"), results.Successes[aliceXID])

	require.Len(t, results.Rejections, 1)
	assert.Contains(t, results.Rejections[bobXID].Error(), "rejected")

	require.Len(t, results.Timeouts, 1)
	_, timedOut := results.Timeouts[carolXID]
	assert.True(t, timedOut)

	require.Len(t, results.Errors, 1)
	assert.Contains(t, results.Errors[daveXID].Error(), "transport exploded")

	assert.True(t, results.CanProceed(1))
	assert.False(t, results.CanProceed(2))
	assert.Error(t, results.Err())
}

type fakePutter struct {
	fail map[arid.ARID]bool
}

func (f *fakePutter) Put(ctx context.Context, id arid.ARID, value []byte) error {
	if f.fail[id] {
		return errors.New("write failed")
	}
	return nil
}

func TestParallelSend_AllAttemptedIndependently(t *testing.T) {
	a, b := newARID(10), newARID(11)
	putter := &fakePutter{fail: map[arid.ARID]bool{b: true}}

	messages := []SendMessage{
		{XID: newXID(10), ARID: a, Value: []byte("one")},
		{XID: newXID(11), ARID: b, Value: []byte("two")},
	}

	results := ParallelSend(context.Background(), putter, messages, 0)
	assert.Len(t, results.Successes, 1)
	assert.Len(t, results.Errors, 1)
	assert.False(t, results.CanProceed(2))
	assert.True(t, results.CanProceed(1))
}
