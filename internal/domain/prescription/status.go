package prescription

import (
	"github.com/clinicore/rxcore/internal/errs"
)

// Status represents where a prescription is in its lifecycle.
type Status string

const (
	// StatusCreated is the initial status of every prescription.
	StatusCreated Status = "CREATED"

	// StatusSentToPharmacy means the prescription has been assigned to a
	// pharmacy to be filled.
	StatusSentToPharmacy Status = "SENT_TO_PHARMACY"

	// StatusFilled means a pharmacist filled the prescription. Terminal.
	StatusFilled Status = "FILLED"

	// StatusCancelled means the prescription was cancelled. Terminal.
	StatusCancelled Status = "CANCELLED"
)

var statusDisplayNames = map[Status]string{
	StatusCreated:        "Created",
	StatusSentToPharmacy: "Sent",
	StatusFilled:         "Filled",
	StatusCancelled:      "Cancelled",
}

// DisplayName returns the patient-facing name of the status.
func (s Status) DisplayName() string {
	return statusDisplayNames[s]
}

// Info returns the id/name projection used by boundary serialization.
func (s Status) Info() map[string]string {
	return map[string]string{"id": string(s), "name": s.DisplayName()}
}

// Terminal reports whether no further transitions are permitted.
func (s Status) Terminal() bool {
	return s == StatusFilled || s == StatusCancelled
}

// Statuses lists all prescription statuses.
func Statuses() []Status {
	return []Status{StatusCreated, StatusSentToPharmacy, StatusFilled, StatusCancelled}
}

// ParseStatus resolves a status from its id or display name. Unrecognized
// input is a validation failure rather than a silent default.
func ParseStatus(s string) (Status, error) {
	for status, name := range statusDisplayNames {
		if s == string(status) || s == name {
			return status, nil
		}
	}
	return "", errs.Validationf("status", "unknown status %q", s)
}
