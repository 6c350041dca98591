package cluster

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRing_OwnerIsDeterministic(t *testing.T) {
	r := NewRing()
	r.Set([]Node{{ID: "node-a", Address: "a:7500"}, {ID: "node-b", Address: "b:7500"}, {ID: "node-c", Address: "c:7500"}})

	userID := uuid.New()
	first, ok := r.Owner(userID)
	require.True(t, ok)

	for i := 0; i < 50; i++ {
		again, ok := r.Owner(userID)
		require.True(t, ok)
		assert.Equal(t, first, again, "ring lookups for the same key must be stable")
	}
}

func TestRing_EmptyHasNoOwner(t *testing.T) {
	r := NewRing()
	_, ok := r.Owner(uuid.New())
	assert.False(t, ok)
}

func TestRing_DistributesAcrossNodes(t *testing.T) {
	r := NewRing()
	r.Set([]Node{{ID: "node-a"}, {ID: "node-b"}, {ID: "node-c"}})

	counts := make(map[string]int)
	for i := 0; i < 3000; i++ {
		n, ok := r.Owner(uuid.New())
		require.True(t, ok)
		counts[n.ID]++
	}

	for _, id := range []string{"node-a", "node-b", "node-c"} {
		assert.Greater(t, counts[id], 0, "every node should receive some share of keys")
	}
}

func TestRing_RemovingANodeReassignsOnlyItsKeys(t *testing.T) {
	r := NewRing()
	r.Set([]Node{{ID: "node-a"}, {ID: "node-b"}, {ID: "node-c"}})

	keys := make([]uuid.UUID, 200)
	before := make(map[uuid.UUID]string, len(keys))
	for i := range keys {
		keys[i] = uuid.New()
		n, _ := r.Owner(keys[i])
		before[keys[i]] = n.ID
	}

	r.Set([]Node{{ID: "node-a"}, {ID: "node-b"}})

	moved := 0
	for _, k := range keys {
		n, ok := r.Owner(k)
		require.True(t, ok)
		if n.ID != before[k] {
			moved++
			assert.NotEqual(t, "node-c", n.ID)
			assert.Equal(t, "node-c", before[k], "only keys formerly owned by node-c should move")
		}
	}
	// Only keys formerly owned by node-c should move.
	assert.LessOrEqual(t, moved, len(keys))
}
