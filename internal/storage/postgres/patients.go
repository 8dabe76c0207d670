package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/clinicore/rxcore/internal/domain/drug"
	"github.com/clinicore/rxcore/internal/errs"
	"github.com/clinicore/rxcore/internal/patient"
)

// PatientDirectory implements patient.Directory on Postgres.
type PatientDirectory struct{ *Store }

// Patients returns the patient directory view.
func (s *Store) Patients() PatientDirectory { return PatientDirectory{s} }

func (s PatientDirectory) Get(ctx context.Context, username string) (*patient.Patient, error) {
	p := &patient.Patient{}
	var pref string
	err := s.pool.QueryRow(ctx, `
		SELECT username, email, preference, default_pharmacy
		FROM patients WHERE username = $1`, username,
	).Scan(&p.Username, &p.Email, &pref, &p.DefaultPharmacy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("patient %q: %w", username, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("get patient: %w", err)
	}
	p.Preference = drug.Type(pref)
	return p, nil
}

func (s PatientDirectory) Put(ctx context.Context, p *patient.Patient) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO patients (username, email, preference, default_pharmacy)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (username) DO UPDATE
		SET email = $2, preference = $3, default_pharmacy = $4`,
		p.Username, p.Email, string(p.Preference), p.DefaultPharmacy)
	if err != nil {
		return fmt.Errorf("upsert patient: %w", err)
	}
	return nil
}
