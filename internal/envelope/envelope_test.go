package envelope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frostkit/frost-cli/internal/xid"
)

func TestDigestIsOrderIndependent(t *testing.T) {
	a := NewSubject(NewString("subject")).
		Assert("x", NewString("1")).
		Assert("y", NewString("2"))
	b := NewSubject(NewString("subject")).
		Assert("y", NewString("2")).
		Assert("x", NewString("1"))

	da, err := a.Digest()
	require.NoError(t, err)
	db, err := b.Digest()
	require.NoError(t, err)
	assert.Equal(t, da, db)
}

func TestDigestChangesWithContent(t *testing.T) {
	a := NewSubject(NewString("subject")).Assert("x", NewString("1"))
	b := NewSubject(NewString("subject")).Assert("x", NewString("2"))

	da, _ := a.Digest()
	db, _ := b.Digest()
	assert.NotEqual(t, da, db)
}

func TestSignVerifyRoundTrip(t *testing.T) {
	doc, err := xid.NewDocument()
	require.NoError(t, err)

	env := NewSubject(NewString("request")).Assert("function", NewString("dkgInvite"))
	signed, err := Sign(env, doc)
	require.NoError(t, err)

	ok, err := Verify(signed, doc.Public())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyFailsAfterTamperingWithAssertion(t *testing.T) {
	doc, err := xid.NewDocument()
	require.NoError(t, err)

	env := NewSubject(NewString("request")).Assert("function", NewString("dkgInvite"))
	signed, err := Sign(env, doc)
	require.NoError(t, err)

	signed.Assertions[0].Object = NewString("tampered")
	ok, err := Verify(signed, doc.Public())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyFailsUnderWrongKey(t *testing.T) {
	doc, err := xid.NewDocument()
	require.NoError(t, err)
	other, err := xid.NewDocument()
	require.NoError(t, err)

	env := NewSubject(NewString("request"))
	signed, err := Sign(env, doc)
	require.NoError(t, err)

	ok, err := Verify(signed, other.Public())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSealOpenRoundTrip(t *testing.T) {
	sender, err := xid.NewDocument()
	require.NoError(t, err)
	recipient, err := xid.NewDocument()
	require.NoError(t, err)
	bystander, err := xid.NewDocument()
	require.NoError(t, err)

	env := NewSubject(NewString("request")).Assert("function", NewString("signInvite"))
	signed, err := Sign(env, sender)
	require.NoError(t, err)

	sealed, err := SealEnvelope(signed, []*xid.Document{recipient.Public()})
	require.NoError(t, err)
	assert.True(t, sealed.Sealed)

	opened, err := OpenEnvelope(sealed, recipient)
	require.NoError(t, err)
	ok, err := Verify(opened, sender.Public())
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = OpenEnvelope(sealed, bystander)
	assert.Error(t, err, "a party not named as a recipient must not be able to open the capsule")
}

func TestSealEnvelopeRequiresRecipients(t *testing.T) {
	doc, err := xid.NewDocument()
	require.NoError(t, err)
	env, err := Sign(NewSubject(NewString("request")), doc)
	require.NoError(t, err)

	_, err = SealEnvelope(env, nil)
	assert.Error(t, err)
}

func TestUnsealedEnvelopeRoundTrip(t *testing.T) {
	doc, err := xid.NewDocument()
	require.NoError(t, err)
	env, err := Sign(NewSubject(NewString("request")), doc)
	require.NoError(t, err)

	msg, err := UnsealedEnvelope(env)
	require.NoError(t, err)
	assert.False(t, msg.Sealed)

	opened, err := OpenEnvelope(msg, doc)
	require.NoError(t, err)
	ok, err := Verify(opened, doc.Public())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSealedMessageMarshalRoundTrip(t *testing.T) {
	doc, err := xid.NewDocument()
	require.NoError(t, err)
	recipient, err := xid.NewDocument()
	require.NoError(t, err)
	env, err := Sign(NewSubject(NewString("request")), doc)
	require.NoError(t, err)

	sealed, err := SealEnvelope(env, []*xid.Document{recipient.Public()})
	require.NoError(t, err)

	data, err := sealed.Marshal()
	require.NoError(t, err)

	got, err := UnmarshalSealedMessage(data)
	require.NoError(t, err)

	opened, err := OpenEnvelope(got, recipient)
	require.NoError(t, err)
	ok, err := Verify(opened, doc.Public())
	require.NoError(t, err)
	assert.True(t, ok)
}
