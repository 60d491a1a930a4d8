package groupstate

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frostkit/frost-cli/internal/arid"
)

type payload struct {
	Value string `json:"value"`
}

func TestForGroupPathLayout(t *testing.T) {
	groupID := arid.MustNew()
	d := ForGroup("/registry-root", groupID)
	assert.Equal(t, filepath.Join("/registry-root", "group-state", groupID.Hex()), d.Path())
}

func TestSessionPathIsNestedUnderGroup(t *testing.T) {
	groupID := arid.MustNew()
	sessionID := arid.MustNew()
	d := ForGroup("/registry-root", groupID)
	s := d.Session(sessionID)
	assert.Equal(t, filepath.Join(d.Path(), "signing", sessionID.Hex()), s.Path())
}

func TestWriteReadRoundTrip(t *testing.T) {
	root := t.TempDir()
	groupID := arid.MustNew()
	d := ForGroup(root, groupID)

	want := payload{Value: "round1-secret"}
	require.NoError(t, d.Write(Round1Secret, want))

	var got payload
	require.NoError(t, d.Read(Round1Secret, &got))
	assert.Equal(t, want, got)
}

func TestReadMissingArtifactReportsConfigurationError(t *testing.T) {
	root := t.TempDir()
	groupID := arid.MustNew()
	d := ForGroup(root, groupID)

	var got payload
	err := d.Read(KeyPackage, &got)
	assert.Error(t, err)
}

func TestSessionWriteReadRoundTrip(t *testing.T) {
	root := t.TempDir()
	groupID := arid.MustNew()
	sessionID := arid.MustNew()
	s := ForGroup(root, groupID).Session(sessionID)

	want := payload{Value: "share"}
	require.NoError(t, s.Write(SignShare, want))

	var got payload
	require.NoError(t, s.Read(SignShare, &got))
	assert.Equal(t, want, got)
}
