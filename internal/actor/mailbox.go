package actor

import "ledger/internal/credit"

// The actor's receive loop is fed by one channel per request shape
// rather than a single boxed-interface channel: explicit typed
// structs over generic envelopes. Each request carries its own reply
// channel so the caller blocks only on its own answer, never on the
// mailbox's ordering of unrelated replies.

type getCreditsRequest struct {
	reply chan<- getCreditsResult
}

type getCreditsResult struct {
	state credit.UserCredits
	err   error
}

type grantRequest struct {
	grant credit.GrantMap
	reply chan<- error
}

type jobRequest struct {
	job   credit.JobCompletion
	reply chan<- jobResult
}

// jobResult carries both the outcome and the amount actually debited,
// which is less than job.Cost whenever the balance ran out partway
// through (spec.md §4.2 contract 6: "emit a warning log but proceed").
type jobResult struct {
	debited int64
	err     error
}

// conflictSignal tells the loop it lost a duplicate-actor resolution
// and must terminate without writing (spec.md §4.3).
type conflictSignal struct{}
