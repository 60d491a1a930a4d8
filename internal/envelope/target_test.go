package envelope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto/ed25519"
)

func TestToURFromURRoundTrip(t *testing.T) {
	env := NewSubject(NewBytes([]byte("hello target"))).Assert("note", NewString("x"))

	ur, err := ToUR(env)
	require.NoError(t, err)
	assert.Regexp(t, `^ur:envelope/`, ur)

	got, err := FromUR(ur)
	require.NoError(t, err)

	d1, err := env.Digest()
	require.NoError(t, err)
	d2, err := got.Digest()
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
}

func TestAttachAndVerifyTargetSignature(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	target := NewSubject(NewBytes([]byte("payload to sign")))
	digest, err := target.SubjectDigest()
	require.NoError(t, err)

	sig := ed25519.Sign(priv, digest[:])
	signed := AttachSignature(target, sig)

	ok, err := VerifyTargetSignature(signed, pub)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyTargetSignatureRejectsWrongKey(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	otherPub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	target := NewSubject(NewBytes([]byte("payload")))
	digest, err := target.SubjectDigest()
	require.NoError(t, err)
	sig := ed25519.Sign(priv, digest[:])
	signed := AttachSignature(target, sig)

	ok, err := VerifyTargetSignature(signed, otherPub)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyTargetSignatureRejectsBadLength(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	target := NewSubject(NewBytes([]byte("payload")))
	signed := AttachSignature(target, []byte{1, 2, 3})

	_, err = VerifyTargetSignature(signed, pub)
	assert.Error(t, err)
}
