// Package pharmacy holds the pharmacy registry entity.
package pharmacy

import (
	"strings"
	"time"

	"github.com/clinicore/rxcore/internal/domain/drug"
	"github.com/clinicore/rxcore/internal/errs"
)

// Pharmacy is a fulfillment location. ID is the stable surrogate
// identifier; Name is the unique external lookup key and may be changed
// by an update (a rename carries both owned sets with it, and the old
// name stops resolving).
//
// Drugs (stocked inventory) and PrescriptionIDs (assigned prescriptions)
// are owned by the pharmacy but mutated by independent operations:
// replacing one set never touches the other.
type Pharmacy struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
	Zip     string `json:"zip"`
	State   string `json:"state"`

	Drugs           []drug.Drug `json:"drugs"`
	PrescriptionIDs []string    `json:"prescriptions"`

	// Version guards pharmacy writes against concurrent lost updates.
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Validate checks the registry invariants for a pharmacy record.
func (p *Pharmacy) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return errs.Validation("name", "must not be empty")
	}
	if len(p.Name) > 100 {
		return errs.Validation("name", "must not exceed 100 characters")
	}
	if strings.TrimSpace(p.Address) == "" {
		return errs.Validation("address", "must not be empty")
	}
	if n := len(p.Zip); n < 5 || n > 10 {
		return errs.Validation("zip", "must be 5 to 10 characters")
	}
	return nil
}
