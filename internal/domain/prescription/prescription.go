// Package prescription implements the prescription entity and its status
// state machine.
package prescription

import (
	"strings"
	"time"

	"github.com/clinicore/rxcore/internal/domain/drug"
	"github.com/clinicore/rxcore/internal/errs"
)

// Prescription is the durable record of a prescriber order. Pharmacy is
// empty until assignment; FilledDrugID and PreferenceSatisfied are set by
// the fill action and never change afterwards.
type Prescription struct {
	ID        string    `json:"id"`
	DrugCode  string    `json:"drugCode"`
	Dosage    int       `json:"dosage"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
	Renewals  int       `json:"renewals"`
	Patient   string    `json:"patient"`
	Pharmacy  string    `json:"pharmacy,omitempty"`
	Status    Status    `json:"status"`

	FilledDrugID        string `json:"filledDrugId,omitempty"`
	PreferenceSatisfied bool   `json:"preferenceSatisfied,omitempty"`

	// Version guards against concurrent lost updates; the store rejects a
	// write whose version does not match the current row.
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Validate checks the field invariants. Renewals must never be negative;
// that is a hard validation failure, not a clamp.
func (p *Prescription) Validate() error {
	if !drug.ValidCode(p.DrugCode) {
		return errs.Validationf("drugCode", "%q is not a valid NDC code", p.DrugCode)
	}
	if p.Dosage <= 0 {
		return errs.Validation("dosage", "must be a positive integer")
	}
	if p.EndDate.Before(p.StartDate) {
		return errs.Validation("endDate", "must not be before start date")
	}
	if p.Renewals < 0 {
		return errs.Validation("renewals", "must not be negative")
	}
	if strings.TrimSpace(p.Patient) == "" {
		return errs.Validation("patient", "must not be empty")
	}
	return nil
}

// CoreFieldsEqual reports whether the clinically relevant fields match.
// A prescription in a terminal status rejects any change to them.
func (p *Prescription) CoreFieldsEqual(o *Prescription) bool {
	return p.DrugCode == o.DrugCode &&
		p.Dosage == o.Dosage &&
		p.StartDate.Equal(o.StartDate) &&
		p.EndDate.Equal(o.EndDate) &&
		p.Renewals == o.Renewals
}
