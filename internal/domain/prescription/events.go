package prescription

import (
	"time"

	"github.com/google/uuid"
)

// TransitionEvent records one committed status transition. Events are
// written in the same transaction as the status change and published only
// after commit, so consumers never observe a transition that was rolled
// back. Events for one patient are keyed by Patient on the bus, which
// preserves per-patient ordering.
type TransitionEvent struct {
	EventID        string    `json:"event_id"`
	PrescriptionID string    `json:"prescription_id"`
	Patient        string    `json:"patient"`
	From           Status    `json:"from"`
	To             Status    `json:"to"`
	Actor          string    `json:"actor"`
	SubstituteUsed bool      `json:"substitute_used,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// NewTransitionEvent builds the event for a committed from→to transition.
func NewTransitionEvent(p *Prescription, from, to Status, actor string) TransitionEvent {
	return TransitionEvent{
		EventID:        uuid.New().String(),
		PrescriptionID: p.ID,
		Patient:        p.Patient,
		From:           from,
		To:             to,
		Actor:          actor,
		SubstituteUsed: to == StatusFilled && p.FilledDrugID != "" && !p.PreferenceSatisfied,
		OccurredAt:     time.Now().UTC(),
	}
}
