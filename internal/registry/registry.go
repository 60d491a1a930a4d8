// Package registry implements the durable owner/participant/group file
// of spec §3 and §4.3: a single JSON blob, loaded-modified-saved by one
// process at a time, with no concurrent-writer protection (the spec
// places that burden on the user). Grounded on the teacher's
// cmd/*/main.go pattern of reading one JSON file at process start and
// writing it back at process end, generalized from a single keypair
// blob to the richer owner/participants/groups structure spec §3
// names.
package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/frostkit/frost-cli/internal/arid"
	"github.com/frostkit/frost-cli/internal/frosterr"
	"github.com/frostkit/frost-cli/internal/xid"
)

// ParticipantRecord is one known participant: their signed XID document
// and an optional, registry-unique pet name.
type ParticipantRecord struct {
	Document *xid.Document `json:"document"`
	PetName  string        `json:"pet_name,omitempty"`
}

// GroupRecord is the per-DKG-group durable state of spec §3.
type GroupRecord struct {
	GroupID      arid.ARID            `json:"group_id"`
	Charter      string               `json:"charter"`
	Threshold    int                  `json:"threshold"`
	Coordinator  xid.XID              `json:"coordinator"`
	Participants []xid.XID            `json:"participants"`
	// PendingRequests maps a participant XID to either (or both) of a
	// collect-from ARID and a send-to ARID outstanding for that
	// participant.
	PendingRequests map[xid.XID]*PendingEntry `json:"pending_requests,omitempty"`
	ListeningAtARID *arid.ARID                `json:"listening_at_arid,omitempty"`
	Contributions   Contributions             `json:"contributions"`
	VerifyingKey    []byte                    `json:"verifying_key,omitempty"`
}

// PendingEntry is the outstanding ARID bookkeeping for one participant.
type PendingEntry struct {
	CollectFrom *arid.ARID `json:"collect_from,omitempty"`
	SendTo      *arid.ARID `json:"send_to,omitempty"`
}

// Contributions records the on-disk paths of locally held secrets,
// relative to the group's state directory.
type Contributions struct {
	Round1Secret  string `json:"round1_secret,omitempty"`
	Round1Package string `json:"round1_package,omitempty"`
	Round2Secret  string `json:"round2_secret,omitempty"`
	KeyPackage    string `json:"key_package,omitempty"`
}

// Registry is the full persistent file.
type Registry struct {
	Owner        *xid.Document                `json:"owner,omitempty"`
	Participants map[xid.XID]*ParticipantRecord `json:"participants,omitempty"`
	Groups       map[arid.ARID]*GroupRecord     `json:"groups,omitempty"`

	path string
}

// Load reads a registry from path. An absent or empty file yields an
// empty registry; any parse error is fatal (spec §4.3).
func Load(path string) (*Registry, error) {
	r := &Registry{
		Participants: make(map[xid.XID]*ParticipantRecord),
		Groups:       make(map[arid.ARID]*GroupRecord),
		path:         path,
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return r, nil
	}
	if err != nil {
		return nil, frosterr.Wrap(frosterr.IO, err, "read registry file")
	}
	if len(data) == 0 {
		return r, nil
	}
	var wire wireRegistry
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, frosterr.Wrap(frosterr.Configuration, err, "parse registry file")
	}
	r.Owner = wire.Owner
	if wire.Participants != nil {
		r.Participants = wire.Participants
	}
	if wire.Groups != nil {
		r.Groups = wire.Groups
	}
	return r, nil
}

// wireRegistry mirrors Registry's on-disk shape. Groups keyed by
// arid.ARID round-trip directly because ARID implements
// encoding.TextMarshaler.
type wireRegistry struct {
	Owner        *xid.Document                  `json:"owner,omitempty"`
	Participants map[xid.XID]*ParticipantRecord `json:"participants,omitempty"`
	Groups       map[arid.ARID]*GroupRecord     `json:"groups,omitempty"`
}

// Save serializes the entire registry, pretty-printed, to its path
// (spec §4.3: "on each write, the entire file is serialized
// pretty-printed").
func (r *Registry) Save() error {
	wire := wireRegistry{Owner: r.Owner, Participants: r.Participants, Groups: r.Groups}

	data, err := json.MarshalIndent(wire, "", "  ")
	if err != nil {
		return frosterr.Wrap(frosterr.IO, err, "encode registry file")
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return frosterr.Wrap(frosterr.IO, err, "create registry directory")
	}
	if err := os.WriteFile(r.path, data, 0o600); err != nil {
		return frosterr.Wrap(frosterr.IO, err, "write registry file")
	}
	return nil
}

// SetOwner sets the owner record. It may be set only once with a given
// XID; replacing with a different XID fails (spec §4.3).
func (r *Registry) SetOwner(doc *xid.Document) error {
	if r.Owner != nil && r.Owner.XID() != doc.XID() {
		return frosterr.New(frosterr.Configuration, "registry owner already set to a different XID")
	}
	r.Owner = doc
	return nil
}

// AddParticipant adds or no-ops a participant record. Adding one
// already present with identical public keys and pet name is a no-op;
// any other clash (different keys for the same XID, pet-name reuse by
// a different XID) fails.
func (r *Registry) AddParticipant(doc *xid.Document, petName string) error {
	public := doc.Public()
	x := public.XID()

	if existing, ok := r.Participants[x]; ok {
		if !samePublicKeys(existing.Document, public) {
			return frosterr.New(frosterr.Configuration, "participant already known under this XID with different public keys")
		}
		if existing.PetName != "" && petName != "" && existing.PetName != petName {
			return frosterr.New(frosterr.Configuration, "participant already known under a different pet name")
		}
		if existing.PetName == "" && petName != "" {
			existing.PetName = petName
		}
		return nil
	}

	if petName != "" {
		for other, rec := range r.Participants {
			if other != x && rec.PetName == petName {
				return frosterr.Newf(frosterr.Configuration, "pet name %q already in use", petName)
			}
		}
	}
	r.Participants[x] = &ParticipantRecord{Document: public, PetName: petName}
	return nil
}

// ResolveParticipant looks a participant up by pet name or literal XID
// string.
func (r *Registry) ResolveParticipant(ref string) (*ParticipantRecord, error) {
	if x, err := xid.Parse(ref); err == nil {
		if rec, ok := r.Participants[x]; ok {
			return rec, nil
		}
	}
	for _, rec := range r.Participants {
		if rec.PetName == ref {
			return rec, nil
		}
	}
	return nil, frosterr.Newf(frosterr.Configuration, "unknown participant %q", ref)
}

func samePublicKeys(a, b *xid.Document) bool {
	if a == nil || b == nil {
		return a == b
	}
	return string(a.SigningPublicKey) == string(b.SigningPublicKey) && a.EncryptionPublicKey == b.EncryptionPublicKey
}

// RecordGroup inserts or merges a group record. An existing group id
// whose configuration differs (charter, threshold, coordinator,
// participant set) fails; identical configs merge contributions,
// leaving any already-populated fields intact (spec §4.3).
func (r *Registry) RecordGroup(g *GroupRecord) error {
	existing, ok := r.Groups[g.GroupID]
	if !ok {
		if r.Groups == nil {
			r.Groups = make(map[arid.ARID]*GroupRecord)
		}
		r.Groups[g.GroupID] = g
		return nil
	}
	if !sameGroupConfig(existing, g) {
		return frosterr.New(frosterr.Configuration, "group already recorded with a different configuration")
	}
	mergeGroup(existing, g)
	return nil
}

func sameGroupConfig(a, b *GroupRecord) bool {
	if a.Charter != b.Charter || a.Threshold != b.Threshold || a.Coordinator != b.Coordinator {
		return false
	}
	if len(a.Participants) != len(b.Participants) {
		return false
	}
	as := append([]xid.XID(nil), a.Participants...)
	bs := append([]xid.XID(nil), b.Participants...)
	sort.Slice(as, func(i, j int) bool { return as[i].Less(as[j]) })
	sort.Slice(bs, func(i, j int) bool { return bs[i].Less(bs[j]) })
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

func mergeGroup(dst, src *GroupRecord) {
	if src.PendingRequests != nil {
		dst.PendingRequests = src.PendingRequests
	}
	if src.ListeningAtARID != nil {
		dst.ListeningAtARID = src.ListeningAtARID
	}
	if src.Contributions.Round1Secret != "" {
		dst.Contributions.Round1Secret = src.Contributions.Round1Secret
	}
	if src.Contributions.Round1Package != "" {
		dst.Contributions.Round1Package = src.Contributions.Round1Package
	}
	if src.Contributions.Round2Secret != "" {
		dst.Contributions.Round2Secret = src.Contributions.Round2Secret
	}
	if src.Contributions.KeyPackage != "" {
		dst.Contributions.KeyPackage = src.Contributions.KeyPackage
	}
	if len(src.VerifyingKey) != 0 {
		dst.VerifyingKey = src.VerifyingKey
	}
}
