package pipeline

import (
	"context"
	"time"

	"ledger/internal/credit"

	"github.com/google/uuid"
)

// ChangeEvent captures one committed mutation for the outbound audit
// stream and doubles as the idempotency hook's durable record
// (spec.md §4.4, §6; SPEC_FULL.md §5's "supplement").
type ChangeEvent struct {
	UserID        uuid.UUID        `json:"user_id"`
	DeltaByBucket map[string]int64 `json:"delta_by_bucket"`
	SourceEventID string           `json:"source_event_id"`
	Timestamp     time.Time        `json:"timestamp"`
	Reason        string           `json:"reason"`
}

// IdempotencyStore is the optional change-log collaborator from
// spec.md §4.4: it records (source_event_id, user_id, ...) before the
// actor mutates state, so a redelivered message with the same
// source_event_id can be acked without invoking the actor again.
type IdempotencyStore interface {
	// TryClaim atomically records sourceEventID for userID and
	// reports whether it was already present (in which case the
	// caller must skip the actor and just ack).
	TryClaim(ctx context.Context, sourceEventID string, userID uuid.UUID) (alreadySeen bool, err error)
	// Record persists the committed delta for the audit stream. Only
	// called after a successful mutation.
	Record(ctx context.Context, event ChangeEvent) error
}

// NoopIdempotency is used when no change-log collaborator is
// configured; the pipeline still functions, just without the
// effectively-once guarantee (spec.md §4.4: "supports — but does not
// require").
type NoopIdempotency struct{}

func (NoopIdempotency) TryClaim(context.Context, string, uuid.UUID) (bool, error) { return false, nil }
func (NoopIdempotency) Record(context.Context, ChangeEvent) error                 { return nil }

// AuditSink forwards a committed ChangeEvent to the outbound audit
// stream. Implemented by internal/audit.Publisher; publishing is
// best-effort and must never influence ack/nack.
type AuditSink interface {
	Publish(ctx context.Context, event ChangeEvent)
}

// NoopAuditSink is used when no outbound audit stream is configured.
type NoopAuditSink struct{}

func (NoopAuditSink) Publish(context.Context, ChangeEvent) {}

func deltaByBucket(g credit.GrantMap) map[string]int64 {
	out := map[string]int64{}
	if g.Trial != nil {
		out["trial"] = *g.Trial
	}
	if g.Permanent != nil {
		out["permanent"] = *g.Permanent
	}
	if len(g.Expiring) > 0 {
		var sum int64
		for _, e := range g.Expiring {
			sum += e.Initial
		}
		out["expiring"] = sum
	}
	return out
}
