package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ledger/internal/apperr"
	"ledger/internal/credit"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ActorRouter is the pipeline's view of the cluster registry: route a
// request to a user's actor, wherever it runs, and wait for the
// actor's persist-before-reply mutation to complete (spec.md §4.2,
// §4.3). Implemented by internal/cluster.Router.
type ActorRouter interface {
	// CompleteJob returns the amount actually debited, which is less
	// than job.Cost when the user's balance ran out partway through.
	CompleteJob(ctx context.Context, job credit.JobCompletion) (debited int64, err error)
	Grant(ctx context.Context, userID uuid.UUID, grant credit.GrantMap) error
}

// CapTable resolves the millisecond ceiling for a job type.
type CapTable interface {
	Cap(jobType string) int64
}

// Dispatcher decodes, validates, and routes one Delivery to a user's
// actor, translating the outcome into Ack/Nack (spec.md §4.4 steps
// 1-4, §7).
type Dispatcher struct {
	router      ActorRouter
	caps        CapTable
	idempotency IdempotencyStore
	audit       AuditSink
	validate    *validator.Validate
	now         func() time.Time
	logger      zerolog.Logger
}

func NewDispatcher(router ActorRouter, caps CapTable, idem IdempotencyStore, audit AuditSink, now func() time.Time, logger zerolog.Logger) *Dispatcher {
	if idem == nil {
		idem = NoopIdempotency{}
	}
	if audit == nil {
		audit = NoopAuditSink{}
	}
	return &Dispatcher{
		router:      router,
		caps:        caps,
		idempotency: idem,
		audit:       audit,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		now:         now,
		logger:      logger,
	}
}

// Dispatch processes one delivery to completion and returns the
// ack/nack outcome; it never panics and never returns an error that
// crosses as anything but a classified apperr value.
func (d *Dispatcher) Dispatch(ctx context.Context, delivery Delivery) error {
	switch delivery.Topic {
	case TopicJobsComplete:
		return d.dispatchJobComplete(ctx, delivery.Body)
	case TopicEntitlementsCredit:
		return d.dispatchEntitlements(ctx, delivery.Body)
	default:
		d.logger.Debug().Str("topic", delivery.Topic).Msg("dispatch: ignoring unknown topic")
		return nil
	}
}

func (d *Dispatcher) dispatchJobComplete(ctx context.Context, body []byte) error {
	var job JobCompleteMessage
	if err := json.Unmarshal(body, &job); err != nil {
		return apperr.TerminalMessage(fmt.Errorf("decode jobs.complete: %w", err))
	}
	if err := d.validate.Struct(job); err != nil {
		return apperr.TerminalMessage(fmt.Errorf("validate jobs.complete: %w", err))
	}

	if d.idempotency != nil {
		seen, err := d.idempotency.TryClaim(ctx, job.ID, job.UserID)
		if err != nil {
			return apperr.Transient(fmt.Errorf("idempotency claim: %w", err))
		}
		if seen {
			d.logger.Debug().Str("job_id", job.ID).Msg("jobs.complete: duplicate, already processed")
			return nil
		}
	}

	chargeCredits := job.ChargeCredits == nil || *job.ChargeCredits
	if !chargeCredits {
		return nil
	}
	var cost int64
	if job.Cost != nil {
		cost = *job.Cost
	}

	cap := d.caps.Cap(job.Type)
	capped := cost
	if cost > cap {
		capped = cap
		d.logger.Info().Str("job_id", job.ID).Str("type", job.Type).Int64("cost", cost).Int64("capped", capped).Msg("jobs.complete: cost capped")
	}

	debited, err := d.router.CompleteJob(ctx, credit.JobCompletion{
		UserID: job.UserID,
		Cost:   capped,
	})
	if err == nil {
		event := ChangeEvent{
			UserID:        job.UserID,
			DeltaByBucket: map[string]int64{"debit": -debited},
			SourceEventID: job.ID,
			Timestamp:     d.now(),
			Reason:        "job_completion",
		}
		if d.idempotency != nil {
			_ = d.idempotency.Record(ctx, event)
		}
		d.audit.Publish(ctx, event)
	}
	return classifyRouterError(err)
}

func (d *Dispatcher) dispatchEntitlements(ctx context.Context, body []byte) error {
	var msg EntitlementsMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return apperr.TerminalMessage(fmt.Errorf("decode entitlements.credits: %w", err))
	}
	if msg.UserID == uuid.Nil {
		return apperr.TerminalMessage(errors.New("entitlements.credits: missing user_id"))
	}

	eventID := msg.EventID
	if eventID == "" {
		eventID = msg.UserID.String()
	}
	if d.idempotency != nil {
		seen, err := d.idempotency.TryClaim(ctx, eventID, msg.UserID)
		if err != nil {
			return apperr.Transient(fmt.Errorf("idempotency claim: %w", err))
		}
		if seen {
			return nil
		}
	}

	grant := ConvertEntitlements(msg.UserID, msg.Entitlements, d.now())
	if grant.IsEmpty() {
		return nil
	}

	err := d.router.Grant(ctx, msg.UserID, grant)
	if err == nil {
		event := ChangeEvent{
			UserID:        msg.UserID,
			DeltaByBucket: deltaByBucket(grant),
			SourceEventID: eventID,
			Timestamp:     d.now(),
			Reason:        "entitlement_grant",
		}
		if d.idempotency != nil {
			_ = d.idempotency.Record(ctx, event)
		}
		d.audit.Publish(ctx, event)
	}
	return classifyRouterError(err)
}

// classifyRouterError maps an ActorRouter error into the apperr
// taxonomy so the processor pool can ack/nack correctly (spec.md §7).
func classifyRouterError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, apperr.ErrUserMismatch):
		return apperr.TerminalMessage(err)
	case errors.Is(err, apperr.ErrNameConflict):
		return apperr.Transient(err)
	case errors.Is(err, apperr.ErrRoutingTimeout):
		return apperr.Transient(err)
	default:
		var c *apperr.Classified
		if errors.As(err, &c) {
			return err
		}
		return apperr.Transient(err)
	}
}
