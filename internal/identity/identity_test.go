package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frostkit/frost-cli/internal/frost"
	"github.com/frostkit/frost-cli/internal/xid"
)

func TestSortedOrdersAscending(t *testing.T) {
	a := xid.XID{0x03}
	b := xid.XID{0x01}
	c := xid.XID{0x02}

	got := Sorted([]xid.XID{a, b, c})
	assert.Equal(t, []xid.XID{b, c, a}, got)
}

func TestSortedDoesNotMutateInput(t *testing.T) {
	a := xid.XID{0x03}
	b := xid.XID{0x01}
	input := []xid.XID{a, b}

	Sorted(input)
	assert.Equal(t, []xid.XID{a, b}, input)
}

func TestAssignNumbersFromOneInSortedOrder(t *testing.T) {
	a := xid.XID{0x03}
	b := xid.XID{0x01}
	c := xid.XID{0x02}

	forward, inverse := Assign([]xid.XID{a, b, c})

	require.Equal(t, frost.Identifier(1), forward[b])
	require.Equal(t, frost.Identifier(2), forward[c])
	require.Equal(t, frost.Identifier(3), forward[a])

	assert.Equal(t, b, inverse[frost.Identifier(1)])
	assert.Equal(t, c, inverse[frost.Identifier(2)])
	assert.Equal(t, a, inverse[frost.Identifier(3)])
}

func TestAssignIsDeterministicAcrossInputOrder(t *testing.T) {
	a := xid.XID{0x03}
	b := xid.XID{0x01}
	c := xid.XID{0x02}

	f1, _ := Assign([]xid.XID{a, b, c})
	f2, _ := Assign([]xid.XID{c, b, a})
	assert.Equal(t, f1, f2)
}
