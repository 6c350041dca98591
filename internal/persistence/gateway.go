// Package persistence implements the Persistence Gateway (spec.md
// §4.5): a write-through adapter keeping a relational store
// authoritative while transitionally reconciling from, and mirroring
// to, a legacy S3-backed document store.
package persistence

import (
	"context"

	"ledger/internal/credit"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Store implements actor.Gateway. It is the one point in the system
// where the relational and legacy stores meet.
type Store struct {
	relational *Relational
	legacy     *Legacy // nil when the legacy store is fully retired
	mirror     chan credit.UserCredits
	logger     zerolog.Logger
}

// NewStore wires the gateway. mirrorQueueCapacity bounds the async
// best-effort mirror queue (spec.md §9's open question, resolved in
// favor of an async bounded queue — see DESIGN.md; a failed mirror
// write is logged and not retried); legacy
// may be nil to fully retire the legacy store without touching call
// sites.
func NewStore(relational *Relational, legacy *Legacy, mirrorQueueCapacity int, logger zerolog.Logger) *Store {
	s := &Store{
		relational: relational,
		legacy:     legacy,
		logger:     logger,
	}
	if legacy != nil {
		if mirrorQueueCapacity <= 0 {
			mirrorQueueCapacity = 1000
		}
		s.mirror = make(chan credit.UserCredits, mirrorQueueCapacity)
	}
	return s
}

// RunMirrorWorker drains the mirror queue until ctx is canceled. One
// worker is enough: the legacy store is read-mostly at this point in
// its lifecycle and a single goroutine avoids reordering two mirror
// writes for the same user.
func (s *Store) RunMirrorWorker(ctx context.Context) {
	if s.mirror == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case state, ok := <-s.mirror:
			if !ok {
				return
			}
			if err := s.legacy.Update(ctx, state); err != nil {
				s.logger.Warn().Err(err).Str("user_id", state.UserID.String()).
					Msg("persistence: legacy mirror write failed, continuing (relational is authoritative)")
			}
		}
	}
}

// Fetch reads relational first; on a clean miss it reconciles from
// the legacy store and persists the reconstructed record with a
// do-nothing-on-conflict insert, per spec.md §4.5. If both stores
// miss, a fresh zero-balance record is returned without being
// inserted — insertion happens on first Update.
func (s *Store) Fetch(ctx context.Context, userID uuid.UUID) (credit.UserCredits, error) {
	state, found, err := s.relational.Fetch(ctx, userID)
	if err != nil {
		return credit.UserCredits{}, err
	}
	if found {
		return state, nil
	}

	if s.legacy == nil {
		return credit.UserCredits{UserID: userID}, nil
	}

	legacyState, found, err := s.legacy.Fetch(ctx, userID)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID.String()).
			Msg("persistence: legacy fetch failed during reconciliation, starting from zero balance")
		return credit.UserCredits{UserID: userID}, nil
	}
	if !found {
		return credit.UserCredits{UserID: userID}, nil
	}

	if err := s.relational.InsertReconciled(ctx, legacyState); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID.String()).
			Msg("persistence: failed to persist legacy-reconciled record")
	}
	return legacyState, nil
}

// Update writes through to relational, then enqueues a best-effort
// mirror write if the legacy store is still active. A full mirror
// queue drops the write with a log line rather than blocking the
// caller, since relational is authoritative and a dropped mirror
// write only widens the window where the two stores disagree.
func (s *Store) Update(ctx context.Context, state credit.UserCredits) error {
	if err := s.relational.Update(ctx, state); err != nil {
		return err
	}
	if s.mirror == nil {
		return nil
	}
	select {
	case s.mirror <- state.Clone():
	default:
		s.logger.Warn().Str("user_id", state.UserID.String()).
			Msg("persistence: mirror queue full, dropping legacy mirror write")
	}
	return nil
}
