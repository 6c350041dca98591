package actor

import (
	"context"
	"sync"
	"testing"
	"time"

	"ledger/internal/credit"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGateway is an in-memory Gateway for exercising actor semantics
// without a database: a small hand-rolled fake rather than a mocking
// framework.
type fakeGateway struct {
	mu      sync.Mutex
	states  map[uuid.UUID]credit.UserCredits
	updates int
	failNext bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{states: make(map[uuid.UUID]credit.UserCredits)}
}

func (g *fakeGateway) Fetch(_ context.Context, userID uuid.UUID) (credit.UserCredits, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if s, ok := g.states[userID]; ok {
		return s.Clone(), nil
	}
	return credit.UserCredits{UserID: userID}, nil
}

func (g *fakeGateway) Update(_ context.Context, state credit.UserCredits) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.updates++
	if g.failNext {
		g.failNext = false
		return assert.AnError
	}
	g.states[state.UserID] = state.Clone()
	return nil
}

func newTestActor(t *testing.T, gw Gateway, now func() time.Time) *Actor {
	t.Helper()
	userID := uuid.New()
	a := New(userID, gw, time.Hour, now, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go a.Run(ctx)
	return a
}

func TestActor_GrantThenGetCredits(t *testing.T) {
	gw := newFakeGateway()
	a := newTestActor(t, gw, time.Now)

	trial := int64(500)
	err := a.Grant(context.Background(), credit.GrantMap{Trial: &trial})
	require.NoError(t, err)

	state, err := a.GetCredits(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(500), state.Trial)
	assert.Equal(t, 1, gw.updates)
}

func TestActor_CompleteJob_DeductsAndPersists(t *testing.T) {
	gw := newFakeGateway()
	a := newTestActor(t, gw, time.Now)

	permanent := int64(1000)
	require.NoError(t, a.Grant(context.Background(), credit.GrantMap{Permanent: &permanent}))

	debited, err := a.CompleteJob(context.Background(), credit.JobCompletion{UserID: a.userID, Cost: 300})
	require.NoError(t, err)
	assert.Equal(t, int64(300), debited)

	state, err := a.GetCredits(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(700), state.Permanent)
}

func TestActor_CompleteJob_UnderfundedDebitsPartialAndProceeds(t *testing.T) {
	gw := newFakeGateway()
	a := newTestActor(t, gw, time.Now)

	permanent := int64(120)
	require.NoError(t, a.Grant(context.Background(), credit.GrantMap{Permanent: &permanent}))

	debited, err := a.CompleteJob(context.Background(), credit.JobCompletion{UserID: a.userID, Cost: 300})
	require.NoError(t, err, "insufficient balance is a warn-and-proceed case, not an error")
	assert.Equal(t, int64(120), debited)

	state, err := a.GetCredits(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), state.Permanent)
}

func TestActor_CompleteJob_WrongUserIsTerminalMessage(t *testing.T) {
	gw := newFakeGateway()
	a := newTestActor(t, gw, time.Now)

	_, err := a.CompleteJob(context.Background(), credit.JobCompletion{UserID: uuid.New(), Cost: 100})
	require.Error(t, err)
}

func TestActor_WriteFailureDoesNotUpdateCache(t *testing.T) {
	gw := newFakeGateway()
	a := newTestActor(t, gw, time.Now)

	gw.failNext = true
	trial := int64(50)
	err := a.Grant(context.Background(), credit.GrantMap{Trial: &trial})
	require.Error(t, err)

	state, err := a.GetCredits(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), state.Trial, "failed write must not be reflected in the in-memory cache")
}

func TestActor_ConflictTerminatesWithoutWriting(t *testing.T) {
	gw := newFakeGateway()
	a := newTestActor(t, gw, time.Now)

	trial := int64(10)
	require.NoError(t, a.Grant(context.Background(), credit.GrantMap{Trial: &trial}))

	a.Conflict()
	select {
	case <-a.Done():
	case <-time.After(time.Second):
		t.Fatal("actor did not terminate after conflict signal")
	}
	assert.Equal(t, 1, gw.updates, "conflict must terminate without a further write")

	_, err := a.GetCredits(context.Background())
	assert.Error(t, err, "actor is terminated, GetCredits must fail")
}

func TestActor_IdleTimeoutShutsDown(t *testing.T) {
	gw := newFakeGateway()
	userID := uuid.New()
	a := New(userID, gw, 10*time.Millisecond, time.Now, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	select {
	case <-a.Done():
	case <-time.After(time.Second):
		t.Fatal("actor did not idle-shutdown")
	}
}

func TestActor_ExpiryFiresAndDropsTranche(t *testing.T) {
	gw := newFakeGateway()
	userID := uuid.New()
	base := time.Now()
	clock := base
	var clockMu sync.Mutex
	now := func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		return clock
	}

	a := New(userID, gw, time.Hour, now, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	grant := credit.GrantMap{Expiring: []credit.ExpiringCredit{{
		UserID:    userID,
		Initial:   200,
		Amount:    200,
		CreatedAt: base,
		ExpiresAt: base.Add(20 * time.Millisecond),
	}}}
	require.NoError(t, a.Grant(context.Background(), grant))

	clockMu.Lock()
	clock = base.Add(time.Hour)
	clockMu.Unlock()

	// The expiry timer was armed against the real clock at grant time
	// (20ms out); advancing the injected now() alone won't fire it, so
	// wait past the real 20ms: when the timer fires, Expire runs against
	// the advanced now() and drops the tranche, which GetCredits then
	// reflects.
	time.Sleep(50 * time.Millisecond)

	state, err := a.GetCredits(context.Background())
	require.NoError(t, err)
	assert.Empty(t, state.Expiring, "expired tranche should have been dropped")
}
