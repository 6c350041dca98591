package actor

import (
	"context"

	"ledger/internal/credit"

	"github.com/google/uuid"
)

// Gateway is the actor's view of the Persistence Gateway (spec.md
// §4.5): fetch a user's state on first reference, write through on
// every mutation before the in-memory cache is updated. Implemented
// by internal/persistence.Store.
type Gateway interface {
	Fetch(ctx context.Context, userID uuid.UUID) (credit.UserCredits, error)
	Update(ctx context.Context, state credit.UserCredits) error
}
