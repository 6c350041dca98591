package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ledger/internal/credit"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Relational is the authoritative store (spec.md §4.5), built on
// pgxpool: plain SQL, Serializable transactions where correctness
// depends on read-then-write atomicity, fmt.Errorf wrapping at every
// I/O boundary.
type Relational struct {
	pool *pgxpool.Pool
}

func NewRelational(pool *pgxpool.Pool) *Relational {
	return &Relational{pool: pool}
}

type wireTranche struct {
	Initial   int64     `json:"initial"`
	Amount    int64     `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Note      string    `json:"note,omitempty"`
}

func encodeExpiring(tranches []credit.ExpiringCredit) ([]byte, error) {
	wire := make([]wireTranche, 0, len(tranches))
	for _, t := range tranches {
		wire = append(wire, wireTranche{Initial: t.Initial, Amount: t.Amount, CreatedAt: t.CreatedAt, ExpiresAt: t.ExpiresAt, Note: t.Note})
	}
	return json.Marshal(wire)
}

func decodeExpiring(userID uuid.UUID, raw []byte) ([]credit.ExpiringCredit, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var wire []wireTranche
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("decode expiring column: %w", err)
	}
	out := make([]credit.ExpiringCredit, 0, len(wire))
	for _, w := range wire {
		out = append(out, credit.ExpiringCredit{
			UserID:    userID,
			Initial:   w.Initial,
			Amount:    w.Amount,
			CreatedAt: w.CreatedAt,
			ExpiresAt: w.ExpiresAt,
			Note:      w.Note,
		})
	}
	return out, nil
}

// Fetch reads the row for userID. found is false on a clean miss
// (pgx.ErrNoRows), which is not itself an error the caller should
// propagate.
func (r *Relational) Fetch(ctx context.Context, userID uuid.UUID) (state credit.UserCredits, found bool, err error) {
	const q = `SELECT trial, permanent, expiring FROM user_credits WHERE user_id = $1`
	var trial, permanent int64
	var rawExpiring []byte
	err = r.pool.QueryRow(ctx, q, userID).Scan(&trial, &permanent, &rawExpiring)
	if errors.Is(err, pgx.ErrNoRows) {
		return credit.UserCredits{}, false, nil
	}
	if err != nil {
		return credit.UserCredits{}, false, fmt.Errorf("fetch user_credits for %s: %w", userID, err)
	}
	expiring, err := decodeExpiring(userID, rawExpiring)
	if err != nil {
		return credit.UserCredits{}, false, err
	}
	return credit.UserCredits{UserID: userID, Trial: trial, Permanent: permanent, Expiring: expiring}, true, nil
}

// Update writes state through, inside a Serializable transaction: an
// UPDATE first, falling back to an INSERT once if no row existed yet
// (spec.md §4.5: "upsert; on stale-version errors retry as insert
// once"). A serialization failure from Postgres retries the whole
// transaction once.
func (r *Relational) Update(ctx context.Context, state credit.UserCredits) error {
	rawExpiring, err := encodeExpiring(state.Expiring)
	if err != nil {
		return fmt.Errorf("encode expiring column for %s: %w", state.UserID, err)
	}

	const maxAttempts = 2
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = r.updateOnce(ctx, state, rawExpiring)
		if err == nil {
			return nil
		}
		if !isSerializationFailure(err) || attempt == maxAttempts {
			return err
		}
	}
	return err
}

func (r *Relational) updateOnce(ctx context.Context, state credit.UserCredits, rawExpiring []byte) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin update tx for %s: %w", state.UserID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const updateQ = `
		UPDATE user_credits
		SET trial = $2, permanent = $3, expiring = $4, updated_at = NOW()
		WHERE user_id = $1
	`
	tag, err := tx.Exec(ctx, updateQ, state.UserID, state.Trial, state.Permanent, rawExpiring)
	if err != nil {
		return fmt.Errorf("update user_credits for %s: %w", state.UserID, err)
	}

	if tag.RowsAffected() == 0 {
		const insertQ = `
			INSERT INTO user_credits (user_id, trial, permanent, expiring, created_at, updated_at)
			VALUES ($1, $2, $3, $4, NOW(), NOW())
			ON CONFLICT (user_id) DO UPDATE
			SET trial = EXCLUDED.trial, permanent = EXCLUDED.permanent, expiring = EXCLUDED.expiring, updated_at = NOW()
		`
		if _, err := tx.Exec(ctx, insertQ, state.UserID, state.Trial, state.Permanent, rawExpiring); err != nil {
			return fmt.Errorf("insert user_credits for %s: %w", state.UserID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit user_credits update for %s: %w", state.UserID, err)
	}
	return nil
}

// InsertReconciled writes a UserCredits reconstructed from the legacy
// store into relational with a do-nothing-on-conflict policy, per
// spec.md §4.5's fetch contract: if another actor already reconciled
// this user concurrently, its version wins and this call is a no-op.
func (r *Relational) InsertReconciled(ctx context.Context, state credit.UserCredits) error {
	rawExpiring, err := encodeExpiring(state.Expiring)
	if err != nil {
		return fmt.Errorf("encode expiring column for %s: %w", state.UserID, err)
	}
	const q = `
		INSERT INTO user_credits (user_id, trial, permanent, expiring, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (user_id) DO NOTHING
	`
	if _, err := r.pool.Exec(ctx, q, state.UserID, state.Trial, state.Permanent, rawExpiring); err != nil {
		return fmt.Errorf("insert reconciled user_credits for %s: %w", state.UserID, err)
	}
	return nil
}

// isSerializationFailure reports whether err is Postgres error code
// 40001 (could not serialize access due to concurrent update).
func isSerializationFailure(err error) bool {
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "40001"
	}
	return false
}
