package persistence

import (
	"context"
	"encoding/json"
	"fmt"

	"ledger/internal/pipeline"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// IdempotencyStore implements pipeline.IdempotencyStore on top of a
// change_events table, making it the durable half of the "effectively
// once" idempotency hook from spec.md §4.4. A unique constraint on
// source_event_id turns the claim into a single INSERT whose
// ON CONFLICT DO NOTHING either succeeds (first time) or reports zero
// rows affected (duplicate).
type IdempotencyStore struct {
	pool *pgxpool.Pool
}

func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool}
}

var _ pipeline.IdempotencyStore = (*IdempotencyStore)(nil)

func (s *IdempotencyStore) TryClaim(ctx context.Context, sourceEventID string, userID uuid.UUID) (bool, error) {
	const q = `
		INSERT INTO change_events (source_event_id, user_id, claimed_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (source_event_id) DO NOTHING
	`
	tag, err := s.pool.Exec(ctx, q, sourceEventID, userID)
	if err != nil {
		return false, fmt.Errorf("claim idempotency key %q for %s: %w", sourceEventID, userID, err)
	}
	return tag.RowsAffected() == 0, nil
}

func (s *IdempotencyStore) Record(ctx context.Context, event pipeline.ChangeEvent) error {
	deltas, err := json.Marshal(event.DeltaByBucket)
	if err != nil {
		return fmt.Errorf("encode change event deltas: %w", err)
	}
	const q = `
		UPDATE change_events
		SET delta_by_bucket = $2, reason = $3, applied_at = $4
		WHERE source_event_id = $1
	`
	tag, err := s.pool.Exec(ctx, q, event.SourceEventID, deltas, event.Reason, event.Timestamp)
	if err != nil {
		return fmt.Errorf("record change event %q: %w", event.SourceEventID, err)
	}
	if tag.RowsAffected() == 0 {
		// TryClaim wasn't called for this event (e.g. a caller using
		// Record without the claim step); insert it directly.
		const insertQ = `
			INSERT INTO change_events (source_event_id, user_id, delta_by_bucket, reason, claimed_at, applied_at)
			VALUES ($1, $2, $3, $4, NOW(), $5)
			ON CONFLICT (source_event_id) DO NOTHING
		`
		if _, err := s.pool.Exec(ctx, insertQ, event.SourceEventID, event.UserID, deltas, event.Reason, event.Timestamp); err != nil {
			return fmt.Errorf("insert change event %q: %w", event.SourceEventID, err)
		}
	}
	return nil
}
