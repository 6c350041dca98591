// Package actor implements the per-user single-writer worker
// (spec.md §4.2): one goroutine per active user_id, serializing every
// mutation to that user's balance through a typed mailbox, a
// "for { select { ... } }" loop generalized from polling a queue to
// draining a mailbox.
package actor

import (
	"context"
	"time"

	"ledger/internal/apperr"
	"ledger/internal/credit"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Actor owns the cached UserCredits for exactly one user_id. It is
// never accessed concurrently: every exported method sends a request
// onto a channel drained solely by Run, and every mutation is
// persisted before the in-memory cache is updated (persist-before-
// reply, spec.md §4.2 contract 2).
type Actor struct {
	userID      uuid.UUID
	gateway     Gateway
	idleTimeout time.Duration
	now         func() time.Time
	logger      zerolog.Logger

	getCh      chan getCreditsRequest
	grantCh    chan grantRequest
	jobCh      chan jobRequest
	conflictCh chan conflictSignal
	done       chan struct{}
}

// New constructs an Actor. Run must be started in its own goroutine
// before any request method is called; requests made before Run
// starts block until it does.
func New(userID uuid.UUID, gateway Gateway, idleTimeout time.Duration, now func() time.Time, logger zerolog.Logger) *Actor {
	return &Actor{
		userID:      userID,
		gateway:     gateway,
		idleTimeout: idleTimeout,
		now:         now,
		logger:      logger.With().Str("user_id", userID.String()).Logger(),
		getCh:       make(chan getCreditsRequest),
		grantCh:     make(chan grantRequest),
		jobCh:       make(chan jobRequest),
		conflictCh:  make(chan conflictSignal, 1),
		done:        make(chan struct{}),
	}
}

// GetCredits returns the actor's cached balance.
func (a *Actor) GetCredits(ctx context.Context) (credit.UserCredits, error) {
	reply := make(chan getCreditsResult, 1)
	select {
	case a.getCh <- getCreditsRequest{reply: reply}:
	case <-a.done:
		return credit.UserCredits{}, apperr.Transient(apperr.ErrActorTerminated)
	case <-ctx.Done():
		return credit.UserCredits{}, apperr.Transient(ctx.Err())
	}
	select {
	case res := <-reply:
		return res.state, res.err
	case <-a.done:
		return credit.UserCredits{}, apperr.Transient(apperr.ErrActorTerminated)
	case <-ctx.Done():
		return credit.UserCredits{}, apperr.Transient(ctx.Err())
	}
}

// Grant applies g to the actor's balance (entitlements.credits).
func (a *Actor) Grant(ctx context.Context, g credit.GrantMap) error {
	reply := make(chan error, 1)
	select {
	case a.grantCh <- grantRequest{grant: g, reply: reply}:
	case <-a.done:
		return apperr.Transient(apperr.ErrActorTerminated)
	case <-ctx.Done():
		return apperr.Transient(ctx.Err())
	}
	select {
	case err := <-reply:
		return err
	case <-a.done:
		return apperr.Transient(apperr.ErrActorTerminated)
	case <-ctx.Done():
		return apperr.Transient(ctx.Err())
	}
}

// CompleteJob debits job.Cost from the actor's balance (jobs.complete,
// already cost-capped by the dispatcher) and returns the amount
// actually debited, which is less than job.Cost when the balance ran
// out partway through.
func (a *Actor) CompleteJob(ctx context.Context, job credit.JobCompletion) (int64, error) {
	if job.UserID != a.userID {
		return 0, apperr.TerminalMessage(apperr.ErrUserMismatch)
	}
	reply := make(chan jobResult, 1)
	select {
	case a.jobCh <- jobRequest{job: job, reply: reply}:
	case <-a.done:
		return 0, apperr.Transient(apperr.ErrActorTerminated)
	case <-ctx.Done():
		return 0, apperr.Transient(ctx.Err())
	}
	select {
	case res := <-reply:
		return res.debited, res.err
	case <-a.done:
		return 0, apperr.Transient(apperr.ErrActorTerminated)
	case <-ctx.Done():
		return 0, apperr.Transient(ctx.Err())
	}
}

// Conflict signals that this actor lost a duplicate-actor resolution
// and must terminate without writing (spec.md §4.3/§4.9). Non-
// blocking: if the loop has already exited, or a conflict is already
// pending, this is a no-op.
func (a *Actor) Conflict() {
	select {
	case a.conflictCh <- conflictSignal{}:
	default:
	}
}

// Done closes when the actor's loop has exited, for any reason.
func (a *Actor) Done() <-chan struct{} { return a.done }

// Run is the actor's single serialized receive loop. It fetches the
// user's state once on entry, then processes requests and timers
// until ctx is canceled, the idle timeout elapses, or a conflict
// signal arrives, terminating without a final write in every case
// except plain ctx cancellation (which itself never writes either —
// every reply-bearing message already wrote through before replying).
func (a *Actor) Run(ctx context.Context) {
	defer close(a.done)

	state, err := a.gateway.Fetch(ctx, a.userID)
	if err != nil {
		a.logger.Error().Err(err).Msg("actor: initial fetch failed, starting from zero balance")
		state = credit.UserCredits{UserID: a.userID}
	}

	idleTimer := time.NewTimer(a.idleTimeout)
	defer idleTimer.Stop()

	expireTimer := time.NewTimer(time.Hour)
	expireTimer.Stop()
	defer expireTimer.Stop()
	a.rearmExpiry(expireTimer, state)

	resetIdle := func() {
		if !idleTimer.Stop() {
			select {
			case <-idleTimer.C:
			default:
			}
		}
		idleTimer.Reset(a.idleTimeout)
	}

	for {
		select {
		case <-ctx.Done():
			return

		case <-a.conflictCh:
			a.logger.Info().Msg("actor: conflict signal received, terminating without write")
			return

		case <-idleTimer.C:
			a.logger.Debug().Msg("actor: idle timeout, shutting down")
			return

		case <-expireTimer.C:
			next := credit.Expire(state, a.now(), true)
			if next.Sum() != state.Sum() || len(next.Expiring) != len(state.Expiring) {
				if err := a.gateway.Update(ctx, next); err != nil {
					a.logger.Error().Err(err).Msg("actor: expiry write failed, retaining prior state")
				} else {
					state = next
				}
			}
			a.rearmExpiry(expireTimer, state)
			resetIdle()

		case req := <-a.getCh:
			req.reply <- getCreditsResult{state: state.Clone()}
			resetIdle()

		case req := <-a.grantCh:
			next := credit.Grant(state, req.grant)
			writeErr := a.gateway.Update(ctx, next)
			if writeErr == nil {
				state = next
				a.rearmExpiry(expireTimer, state)
			}
			req.reply <- classifyWriteErr(writeErr)
			resetIdle()

		case req := <-a.jobCh:
			next, remainder, ok := credit.Deduct(state, req.job.Cost)
			if !ok {
				req.reply <- jobResult{}
				resetIdle()
				continue
			}
			if remainder > 0 {
				a.logger.Warn().Str("user_id", a.userID.String()).
					Int64("cost", req.job.Cost).Int64("remainder", remainder).
					Msg("actor: insufficient balance, debiting partial amount and proceeding")
			}
			debited := req.job.Cost - remainder
			writeErr := a.gateway.Update(ctx, next)
			if writeErr == nil {
				state = next
			} else {
				debited = 0
			}
			req.reply <- jobResult{debited: debited, err: classifyWriteErr(writeErr)}
			resetIdle()
		}
	}
}

// rearmExpiry reschedules expireTimer to the earliest upcoming
// ExpiresAt in state, or stops it if no tranches remain (spec.md §4.2
// contract 4; missed firings are re-armed on any subsequent activity
// per §5).
func (a *Actor) rearmExpiry(t *time.Timer, state credit.UserCredits) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	if len(state.Expiring) == 0 {
		return
	}
	earliest := state.Expiring[0].ExpiresAt
	for _, e := range state.Expiring[1:] {
		if e.ExpiresAt.Before(earliest) {
			earliest = e.ExpiresAt
		}
	}
	d := earliest.Sub(a.now())
	if d < 0 {
		d = 0
	}
	t.Reset(d)
}

func classifyWriteErr(err error) error {
	if err == nil {
		return nil
	}
	return apperr.Transient(err)
}
