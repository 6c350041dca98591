package actor

import (
	"context"
	"errors"
	"sync"
	"time"

	"ledger/internal/apperr"
	"ledger/internal/credit"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Supervisor is the local, per-node half of the cluster actor
// registry (spec.md §4.3): it owns every Actor whose home is this
// node, spawning one lazily on first reference and reaping it from
// the map once its loop exits, whatever the reason. internal/cluster
// wraps a Supervisor per node and adds ring-based routing across
// nodes on top.
type Supervisor struct {
	mu          sync.Mutex
	actors      map[uuid.UUID]*Actor
	gateway     Gateway
	idleTimeout time.Duration
	now         func() time.Time
	logger      zerolog.Logger
}

func NewSupervisor(gateway Gateway, idleTimeout time.Duration, now func() time.Time, logger zerolog.Logger) *Supervisor {
	if now == nil {
		now = time.Now
	}
	return &Supervisor{
		actors:      make(map[uuid.UUID]*Actor),
		gateway:     gateway,
		idleTimeout: idleTimeout,
		now:         now,
		logger:      logger,
	}
}

// Lookup returns the live actor for userID, spawning one if none is
// currently running.
func (s *Supervisor) Lookup(userID uuid.UUID) *Actor {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a, ok := s.actors[userID]; ok {
		return a
	}

	a := New(userID, s.gateway, s.idleTimeout, s.now, s.logger)
	s.actors[userID] = a
	go a.Run(context.Background())
	go s.reap(userID, a)
	return a
}

// reap removes a from the registry once its loop exits, so the next
// Lookup spawns a fresh one instead of handing out a dead actor.
func (s *Supervisor) reap(userID uuid.UUID, a *Actor) {
	<-a.Done()
	s.mu.Lock()
	if s.actors[userID] == a {
		delete(s.actors, userID)
	}
	s.mu.Unlock()
}

// ActiveUserIDs returns the users with a currently running actor on
// this node, for the cluster router's ownership-reconciliation sweep
// after a membership change.
func (s *Supervisor) ActiveUserIDs() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(s.actors))
	for id := range s.actors {
		ids = append(ids, id)
	}
	return ids
}

// Evict forces the named actor, if running, to terminate without
// writing — used when the cluster registry resolves this node as the
// loser of a duplicate-actor conflict (spec.md §4.3/§4.9).
func (s *Supervisor) Evict(userID uuid.UUID) {
	s.mu.Lock()
	a, ok := s.actors[userID]
	s.mu.Unlock()
	if ok {
		a.Conflict()
	}
}

// GetCredits, Grant, and CompleteJob look up (spawning if necessary)
// and dispatch to the user's actor, retrying once if the actor raced
// its own idle shutdown between Lookup and the request being sent.
func (s *Supervisor) GetCredits(ctx context.Context, userID uuid.UUID) (credit.UserCredits, error) {
	state, err := s.Lookup(userID).GetCredits(ctx)
	if errors.Is(err, apperr.ErrActorTerminated) {
		return s.Lookup(userID).GetCredits(ctx)
	}
	return state, err
}

func (s *Supervisor) Grant(ctx context.Context, userID uuid.UUID, grant credit.GrantMap) error {
	err := s.Lookup(userID).Grant(ctx, grant)
	if errors.Is(err, apperr.ErrActorTerminated) {
		return s.Lookup(userID).Grant(ctx, grant)
	}
	return err
}

func (s *Supervisor) CompleteJob(ctx context.Context, job credit.JobCompletion) (int64, error) {
	debited, err := s.Lookup(job.UserID).CompleteJob(ctx, job)
	if errors.Is(err, apperr.ErrActorTerminated) {
		return s.Lookup(job.UserID).CompleteJob(ctx, job)
	}
	return debited, err
}
