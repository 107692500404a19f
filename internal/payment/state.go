package payment

import "github.com/Subash-08/iTech-compters-sub001/internal/store"

// Attempt states move forward only. CAPTURED and FAILED are terminal;
// ATTEMPTED marks a failed try on an attempt that may still be retried
// through a fresh attempt row.
var attemptTransitions = map[string]map[string]bool{
	store.AttemptStatusCreated: {
		store.AttemptStatusAttempted: true,
		store.AttemptStatusCaptured:  true,
		store.AttemptStatusFailed:    true,
	},
	store.AttemptStatusAttempted: {
		store.AttemptStatusCaptured: true,
		store.AttemptStatusFailed:   true,
	},
}

// CanTransition reports whether an attempt may move from one status to
// another.
func CanTransition(from, to string) bool {
	if from == to {
		return false
	}
	return attemptTransitions[from][to]
}

// IsTerminal reports whether the attempt status permits no further moves.
func IsTerminal(status string) bool {
	return len(attemptTransitions[status]) == 0
}
