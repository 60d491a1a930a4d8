package registry

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frostkit/frost-cli/internal/arid"
	"github.com/frostkit/frost-cli/internal/xid"
)

func TestLoadMissingFileYieldsEmptyRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	r, err := Load(path)
	require.NoError(t, err)
	assert.Nil(t, r.Owner)
	assert.Empty(t, r.Participants)
	assert.Empty(t, r.Groups)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "registry.json")
	r, err := Load(path)
	require.NoError(t, err)

	owner, err := xid.NewDocument()
	require.NoError(t, err)
	require.NoError(t, r.SetOwner(owner))

	peer, err := xid.NewDocument()
	require.NoError(t, err)
	require.NoError(t, r.AddParticipant(peer, "bob"))

	require.NoError(t, r.Save())

	got, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, got.Owner)
	assert.Equal(t, owner.XID(), got.Owner.XID())
	require.True(t, got.Owner.HasPrivateKeys(), "owner private keys must survive a save/load round trip")

	rec, ok := got.Participants[peer.Public().XID()]
	require.True(t, ok)
	assert.Equal(t, "bob", rec.PetName)
	assert.False(t, rec.Document.HasPrivateKeys())
}

func TestSetOwnerRejectsReplacingWithDifferentXID(t *testing.T) {
	r := &Registry{Participants: map[xid.XID]*ParticipantRecord{}, Groups: map[arid.ARID]*GroupRecord{}}
	a, err := xid.NewDocument()
	require.NoError(t, err)
	b, err := xid.NewDocument()
	require.NoError(t, err)

	require.NoError(t, r.SetOwner(a))
	assert.Error(t, r.SetOwner(b))
}

func TestSetOwnerIsIdempotentForSameXID(t *testing.T) {
	r := &Registry{Participants: map[xid.XID]*ParticipantRecord{}, Groups: map[arid.ARID]*GroupRecord{}}
	a, err := xid.NewDocument()
	require.NoError(t, err)

	require.NoError(t, r.SetOwner(a))
	require.NoError(t, r.SetOwner(a))
}

func TestAddParticipantRejectsKeyMismatchUnderSameXID(t *testing.T) {
	r := &Registry{Participants: map[xid.XID]*ParticipantRecord{}, Groups: map[arid.ARID]*GroupRecord{}}
	doc, err := xid.NewDocument()
	require.NoError(t, err)
	require.NoError(t, r.AddParticipant(doc, "alice"))

	// Forge a second document with the same XID bytes (by construction,
	// impossible in practice) but different keys to exercise the clash path.
	other, err := xid.NewDocument()
	require.NoError(t, err)
	r.Participants[doc.Public().XID()].Document = other.Public()
	assert.Error(t, r.AddParticipant(doc, "alice"))
}

func TestAddParticipantRejectsPetNameReuse(t *testing.T) {
	r := &Registry{Participants: map[xid.XID]*ParticipantRecord{}, Groups: map[arid.ARID]*GroupRecord{}}
	a, err := xid.NewDocument()
	require.NoError(t, err)
	b, err := xid.NewDocument()
	require.NoError(t, err)

	require.NoError(t, r.AddParticipant(a, "bob"))
	assert.Error(t, r.AddParticipant(b, "bob"))
}

func TestResolveParticipantByPetNameOrXID(t *testing.T) {
	r := &Registry{Participants: map[xid.XID]*ParticipantRecord{}, Groups: map[arid.ARID]*GroupRecord{}}
	doc, err := xid.NewDocument()
	require.NoError(t, err)
	require.NoError(t, r.AddParticipant(doc, "bob"))

	byPetName, err := r.ResolveParticipant("bob")
	require.NoError(t, err)
	assert.Equal(t, doc.Public().XID(), byPetName.Document.XID())

	byXID, err := r.ResolveParticipant(doc.Public().XID().String())
	require.NoError(t, err)
	assert.Equal(t, doc.Public().XID(), byXID.Document.XID())

	_, err = r.ResolveParticipant("nobody")
	assert.Error(t, err)
}

func newGroupRecord(id arid.ARID, coordinator xid.XID, participants []xid.XID) *GroupRecord {
	return &GroupRecord{
		GroupID:      id,
		Charter:      "test group",
		Threshold:    2,
		Coordinator:  coordinator,
		Participants: participants,
	}
}

func TestRecordGroupInsertsNewGroup(t *testing.T) {
	r := &Registry{Participants: map[xid.XID]*ParticipantRecord{}, Groups: map[arid.ARID]*GroupRecord{}}
	groupID := arid.MustNew()
	coordinator := xid.XID{0x01}
	participants := []xid.XID{{0x01}, {0x02}, {0x03}}

	g := newGroupRecord(groupID, coordinator, participants)
	require.NoError(t, r.RecordGroup(g))
	assert.Same(t, g, r.Groups[groupID])
}

func TestRecordGroupMergesIdenticalConfig(t *testing.T) {
	r := &Registry{Participants: map[xid.XID]*ParticipantRecord{}, Groups: map[arid.ARID]*GroupRecord{}}
	groupID := arid.MustNew()
	coordinator := xid.XID{0x01}
	participants := []xid.XID{{0x01}, {0x02}, {0x03}}

	require.NoError(t, r.RecordGroup(newGroupRecord(groupID, coordinator, participants)))

	update := newGroupRecord(groupID, coordinator, []xid.XID{{0x03}, {0x02}, {0x01}})
	update.VerifyingKey = []byte{9, 9, 9}
	require.NoError(t, r.RecordGroup(update))

	assert.Equal(t, []byte{9, 9, 9}, r.Groups[groupID].VerifyingKey)
}

func TestRecordGroupRejectsConfigChange(t *testing.T) {
	r := &Registry{Participants: map[xid.XID]*ParticipantRecord{}, Groups: map[arid.ARID]*GroupRecord{}}
	groupID := arid.MustNew()
	coordinator := xid.XID{0x01}
	participants := []xid.XID{{0x01}, {0x02}, {0x03}}

	require.NoError(t, r.RecordGroup(newGroupRecord(groupID, coordinator, participants)))

	changed := newGroupRecord(groupID, coordinator, participants)
	changed.Threshold = 3
	assert.Error(t, r.RecordGroup(changed))
}
