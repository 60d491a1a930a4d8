// Package identity implements spec §3's deterministic rule: "FROST
// identifiers are derived by sorting all group XIDs ascending and
// numbering from 1."
package identity

import (
	"sort"

	"github.com/frostkit/frost-cli/internal/frost"
	"github.com/frostkit/frost-cli/internal/xid"
)

// Sorted returns the group's XIDs in ascending order.
func Sorted(xids []xid.XID) []xid.XID {
	out := make([]xid.XID, len(xids))
	copy(out, xids)
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Assign builds the XID -> Identifier map for a group, and its inverse.
func Assign(xids []xid.XID) (map[xid.XID]frost.Identifier, map[frost.Identifier]xid.XID) {
	sorted := Sorted(xids)
	forward := make(map[xid.XID]frost.Identifier, len(sorted))
	inverse := make(map[frost.Identifier]xid.XID, len(sorted))
	for i, x := range sorted {
		id := frost.Identifier(i + 1)
		forward[x] = id
		inverse[id] = x
	}
	return forward, inverse
}
