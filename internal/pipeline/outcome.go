package pipeline

import "ledger/internal/apperr"

// isTerminalMessage reports whether err should be acked without retry
// (malformed payload, missing user_id, job for another user) rather
// than nacked for redelivery. Terminal-for-actor errors are not
// terminal for the message: they are nacked so redelivery reaches the
// winning actor.
func isTerminalMessage(err error) bool {
	return apperr.ClassOf(err) == apperr.ClassTerminalMessage
}
