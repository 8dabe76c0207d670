// Package patient defines the narrow surface consumed from the patient
// records collaborator: contact email, drug-type preference, and the
// default pharmacy used as the fallback assignment target.
package patient

import (
	"context"

	"github.com/clinicore/rxcore/internal/domain/drug"
)

// Patient is the projection of a patient record the engine needs. Email
// may be empty; notifications are then skipped silently.
type Patient struct {
	Username        string    `json:"username"`
	Email           string    `json:"email,omitempty"`
	Preference      drug.Type `json:"preference"`
	DefaultPharmacy string    `json:"defaultPharmacy,omitempty"`
}

// Directory resolves patient records by username. Implementations return
// errs.ErrNotFound for unknown patients.
type Directory interface {
	Get(ctx context.Context, username string) (*Patient, error)
	Put(ctx context.Context, p *Patient) error
}
