package envelope

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frostkit/frost-cli/internal/arid"
	"github.com/frostkit/frost-cli/internal/xid"
)

func TestBuildAndParseRequest(t *testing.T) {
	sender, err := xid.NewDocument()
	require.NoError(t, err)

	requestID := arid.MustNew()
	validUntil := time.Unix(1700000000, 0).UTC()
	params := []Assertion{
		{Predicate: "threshold", Object: NewInt(2)},
		{Predicate: "participant", Object: NewXID(xid.XID{0x01})},
		{Predicate: "participant", Object: NewXID(xid.XID{0x02})},
	}

	env, err := BuildRequest(sender, requestID, "dkgInvite", validUntil, []byte("cont"), params)
	require.NoError(t, err)

	ok, err := Verify(env, sender.Public())
	require.NoError(t, err)
	assert.True(t, ok)

	req, err := ParseRequest(env)
	require.NoError(t, err)

	fn, err := req.Function()
	require.NoError(t, err)
	assert.Equal(t, "dkgInvite", fn)

	gotID, err := req.RequestID()
	require.NoError(t, err)
	assert.Equal(t, requestID, gotID)

	gotValidUntil, err := req.ValidUntil()
	require.NoError(t, err)
	assert.True(t, validUntil.Equal(gotValidUntil))

	gotSender, err := req.Sender()
	require.NoError(t, err)
	assert.Equal(t, sender.XID(), gotSender.XID())

	cont, ok := req.Continuation()
	require.True(t, ok)
	assert.Equal(t, []byte("cont"), cont)

	assert.Len(t, req.Params("participant"), 2)
}

func TestParseRequestRejectsWrongSubject(t *testing.T) {
	sender, err := xid.NewDocument()
	require.NoError(t, err)
	env, err := Sign(NewSubject(NewString(subjectResponse)), sender)
	require.NoError(t, err)

	_, err = ParseRequest(env)
	assert.Error(t, err)
}

func TestBuildAndParseResultResponse(t *testing.T) {
	sender, err := xid.NewDocument()
	require.NoError(t, err)
	correlating := arid.MustNew()
	result := NewSubject(NewString("group")).Assert("verifyingKey", NewBytes([]byte{1, 2, 3}))

	env, err := BuildResultResponse(sender, correlating, result, nil, "finalized")
	require.NoError(t, err)

	resp, err := ParseResponse(env)
	require.NoError(t, err)
	assert.False(t, resp.IsError())

	gotCorrelating, err := resp.CorrelatingRequestID()
	require.NoError(t, err)
	assert.Equal(t, correlating, gotCorrelating)

	gotResult, err := resp.Result()
	require.NoError(t, err)
	assert.Equal(t, "group", must(gotResult.Subject.AsString()))
}

func TestBuildAndParseErrorResponse(t *testing.T) {
	sender, err := xid.NewDocument()
	require.NoError(t, err)
	correlating := arid.MustNew()

	env, err := BuildErrorResponse(sender, correlating, "not interested", nil)
	require.NoError(t, err)

	resp, err := ParseResponse(env)
	require.NoError(t, err)
	assert.True(t, resp.IsError())

	reason, err := resp.Reason()
	require.NoError(t, err)
	assert.Equal(t, "not interested", reason)
}

func must(s string, err error) string {
	if err != nil {
		panic(err)
	}
	return s
}
