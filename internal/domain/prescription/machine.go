package prescription

import (
	"fmt"

	"github.com/clinicore/rxcore/internal/errs"
)

// transitions is the full allowed status graph. CREATED→FILLED is a
// direct fill without a prior send and is treated identically to
// SENT_TO_PHARMACY→FILLED for notification purposes.
var transitions = map[Status][]Status{
	StatusCreated:        {StatusSentToPharmacy, StatusFilled, StatusCancelled},
	StatusSentToPharmacy: {StatusFilled, StatusCancelled},
}

// CanTransition reports whether from→to is in the allowed graph.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition returns ErrInvalidTransition when from→to is outside
// the allowed graph. The caller must leave the persisted status unchanged
// on failure.
func CheckTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", errs.ErrInvalidTransition, from, to)
	}
	return nil
}
