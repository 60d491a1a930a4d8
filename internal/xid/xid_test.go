package xid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDocumentHasPrivateKeys(t *testing.T) {
	doc, err := NewDocument()
	require.NoError(t, err)
	assert.True(t, doc.HasPrivateKeys())
	assert.NotEmpty(t, doc.XID())
}

func TestPublicStripsPrivateKeys(t *testing.T) {
	doc, err := NewDocument()
	require.NoError(t, err)

	pub := doc.Public()
	assert.False(t, pub.HasPrivateKeys())
	assert.Equal(t, doc.XID(), pub.XID(), "stripping private keys must not change the identity hash")
}

func TestSignVerifyRoundTrip(t *testing.T) {
	doc, err := NewDocument()
	require.NoError(t, err)

	msg := []byte("dkgInvite payload")
	sig, err := doc.Sign(msg)
	require.NoError(t, err)
	assert.True(t, doc.Verify(msg, sig))
	assert.False(t, doc.Verify([]byte("tampered"), sig))
}

func TestPublicDocumentCannotSign(t *testing.T) {
	doc, err := NewDocument()
	require.NoError(t, err)
	pub := doc.Public()

	_, err = pub.Sign([]byte("x"))
	assert.Error(t, err)

	_, err = pub.EncryptionPrivateKey()
	assert.Error(t, err)
}

func TestToURParseDocumentURRoundTrip_StripsPrivateKeys(t *testing.T) {
	doc, err := NewDocument()
	require.NoError(t, err)

	ur, err := doc.ToUR()
	require.NoError(t, err)
	assert.Regexp(t, `^ur:xiddoc/`, ur)

	got, err := ParseDocumentUR(ur)
	require.NoError(t, err)
	assert.Equal(t, doc.XID(), got.XID())
	assert.False(t, got.HasPrivateKeys(), "ToUR/ParseDocumentUR is the public-only sharing form")
}

func TestToPrivateURParsePrivateDocumentURRoundTrip_KeepsPrivateKeys(t *testing.T) {
	doc, err := NewDocument()
	require.NoError(t, err)

	ur, err := doc.ToPrivateUR()
	require.NoError(t, err)

	got, err := ParsePrivateDocumentUR(ur)
	require.NoError(t, err)
	assert.Equal(t, doc.XID(), got.XID())
	require.True(t, got.HasPrivateKeys())

	msg := []byte("owner can still sign after a round trip")
	sig, err := got.Sign(msg)
	require.NoError(t, err)
	assert.True(t, doc.Verify(msg, sig))
}

func TestParseDocumentURRejectsTamperedSignature(t *testing.T) {
	doc, err := NewDocument()
	require.NoError(t, err)
	ur, err := doc.ToUR()
	require.NoError(t, err)

	tampered := ur + "AA"
	_, err = ParseDocumentUR(tampered)
	assert.Error(t, err)
}

func TestXIDStringParseRoundTrip(t *testing.T) {
	doc, err := NewDocument()
	require.NoError(t, err)
	x := doc.XID()

	got, err := Parse(x.String())
	require.NoError(t, err)
	assert.Equal(t, x, got)
}

func TestLessOrdersLexicographically(t *testing.T) {
	a := XID{0x01}
	b := XID{0x02}
	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
	assert.False(t, a.Less(a))
}
