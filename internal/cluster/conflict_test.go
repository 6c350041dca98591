package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWinner_LowestNodeIDWins(t *testing.T) {
	assert.Equal(t, "node-a", winner("node-a", "node-b"))
	assert.Equal(t, "node-a", winner("node-b", "node-a"))
	assert.True(t, isWinner("node-a", "node-b"))
	assert.False(t, isWinner("node-b", "node-a"))
}

func TestWinner_IsStableUnderSwap(t *testing.T) {
	assert.Equal(t, winner("x", "y"), winner("y", "x"))
}
