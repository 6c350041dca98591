package cluster

import (
	"context"
	"sync"
	"testing"
	"time"

	"ledger/internal/actor"
	"ledger/internal/credit"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type memGateway struct {
	mu     sync.Mutex
	states map[uuid.UUID]credit.UserCredits
}

func newMemGateway() *memGateway {
	return &memGateway{states: make(map[uuid.UUID]credit.UserCredits)}
}

func (g *memGateway) Fetch(_ context.Context, userID uuid.UUID) (credit.UserCredits, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if s, ok := g.states[userID]; ok {
		return s.Clone(), nil
	}
	return credit.UserCredits{UserID: userID}, nil
}

func (g *memGateway) Update(_ context.Context, state credit.UserCredits) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.states[state.UserID] = state.Clone()
	return nil
}

func TestRouter_SingleNodeDispatchesLocally(t *testing.T) {
	gw := newMemGateway()
	sup := actor.NewSupervisor(gw, time.Hour, time.Now, zerolog.Nop())
	membership := NewStaticMembership([]Node{{ID: "node-a", Address: "node-a:7500"}})

	r := NewRouter("node-a", membership, sup, nil, 2*time.Second, zerolog.Nop())

	userID := uuid.New()
	permanent := int64(750)
	require.NoError(t, r.Grant(context.Background(), userID, credit.GrantMap{Permanent: &permanent}))

	state, err := r.GetCredits(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, int64(750), state.Permanent)

	debited, err := r.CompleteJob(context.Background(), credit.JobCompletion{UserID: userID, Cost: 250})
	require.NoError(t, err)
	require.Equal(t, int64(250), debited)

	state, err = r.GetCredits(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, int64(500), state.Permanent)
}
