package pipeline

import "github.com/google/uuid"

// Topic names, spec.md §6.
const (
	TopicJobsComplete       = "jobs.complete"
	TopicEntitlementsCredit = "entitlements.credits"
)

// JobCompleteMessage is the decoded body of a jobs.complete message.
type JobCompleteMessage struct {
	ID             string    `json:"id" validate:"required"`
	UserID         uuid.UUID `json:"user_id" validate:"required"`
	Type           string    `json:"type" validate:"required"`
	ChargeCredits  *bool     `json:"charge_credits,omitempty"`
	Cost           *int64    `json:"cost,omitempty"`
}

// EntitlementsMessage is the decoded body of an entitlements.credits
// message.
type EntitlementsMessage struct {
	UserID       uuid.UUID     `json:"user_id" validate:"required"`
	EventID      string        `json:"event_id,omitempty"`
	Entitlements []Entitlement `json:"entitlements" validate:"required"`
}
