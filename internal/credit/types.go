// Package credit implements the pure arithmetic over a user's
// service-credit balance: granting, debiting, and expiring credits
// across the trial, expiring, and permanent buckets.
package credit

import (
	"time"

	"github.com/google/uuid"
)

// ExpiringCredit is a single time-limited tranche of credits.
type ExpiringCredit struct {
	UserID    uuid.UUID
	Initial   int64 // amount granted at creation, immutable
	Amount    int64 // remaining amount, 0 <= Amount <= Initial
	CreatedAt time.Time
	ExpiresAt time.Time
	Note      string
}

// UserCredits is the balance record for one user.
type UserCredits struct {
	UserID    uuid.UUID
	Trial     int64
	Permanent int64
	Expiring  []ExpiringCredit // sorted ascending by ExpiresAt; equal expiries allowed
}

// Clone returns a deep copy so callers never mutate a state shared
// with an actor's cache.
func (u UserCredits) Clone() UserCredits {
	out := u
	if len(u.Expiring) > 0 {
		out.Expiring = make([]ExpiringCredit, len(u.Expiring))
		copy(out.Expiring, u.Expiring)
	} else {
		out.Expiring = nil
	}
	return out
}

// Sum returns the total balance across all three buckets.
func (u UserCredits) Sum() int64 {
	total := u.Trial + u.Permanent
	for _, e := range u.Expiring {
		total += e.Amount
	}
	return total
}

// GrantMap is the ephemeral value passed to Grant. Trial and Permanent
// are signed deltas; Expiring is a set of new tranches merged into the
// existing list. A nil pointer means "no change to this bucket".
type GrantMap struct {
	Trial     *int64
	Permanent *int64
	Expiring  []ExpiringCredit
}

// IsEmpty reports whether the grant would change nothing.
func (g GrantMap) IsEmpty() bool {
	return (g.Trial == nil || *g.Trial == 0) &&
		(g.Permanent == nil || *g.Permanent == 0) &&
		len(g.Expiring) == 0
}

// JobCompletion is the already-capped charge request an actor applies
// via Deduct when a jobs.complete message arrives (spec.md §4.2
// contract 6).
type JobCompletion struct {
	UserID uuid.UUID
	Cost   int64
}

func clampNonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
