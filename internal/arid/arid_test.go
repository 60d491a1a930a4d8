package arid

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsRandomAndNonZero(t *testing.T) {
	a, err := New()
	require.NoError(t, err)
	assert.False(t, a.Zero())

	b, err := New()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestStringParseRoundTrip(t *testing.T) {
	a := MustNew()
	s := a.String()
	assert.Regexp(t, `^ur:arid/`, s)

	got, err := Parse(s)
	require.NoError(t, err)
	assert.Equal(t, a, got)

	// Parse also accepts the bare base64url body, no prefix.
	bare, err := Parse(s[len("ur:arid/"):])
	require.NoError(t, err)
	assert.Equal(t, a, bare)
}

func TestParseRejectsWrongLength(t *testing.T) {
	_, err := Parse("ur:arid/AAAA")
	assert.Error(t, err)
}

func TestJSONRoundTrip(t *testing.T) {
	a := MustNew()
	data, err := json.Marshal(a)
	require.NoError(t, err)

	var got ARID
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, a, got)
}

func TestUsableAsMapKey(t *testing.T) {
	a, b := MustNew(), MustNew()
	m := map[ARID]string{a: "alice", b: "bob"}

	data, err := json.Marshal(m)
	require.NoError(t, err)

	var got map[ARID]string
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, m, got)
}

func TestHexIsStableLength(t *testing.T) {
	a := MustNew()
	assert.Len(t, a.Hex(), 64)
}
