package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/clinicore/rxcore/internal/domain/drug"
	"github.com/clinicore/rxcore/internal/domain/pharmacy"
	"github.com/clinicore/rxcore/internal/errs"
)

// PharmacyStore persists pharmacies and their owned sets. Rows live
// under a surrogate id; the unique name is the lookup key, so a rename
// keeps both sets attached and frees the old name in one transaction.
type PharmacyStore struct{ *Store }

// Pharmacies returns the pharmacy store view.
func (s *Store) Pharmacies() PharmacyStore { return PharmacyStore{s} }

func (s PharmacyStore) Create(ctx context.Context, p *pharmacy.Pharmacy) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO pharmacies (id, name, address, zip, state, version)
		VALUES ($1, $2, $3, $4, $5, 1)
		RETURNING version, created_at, updated_at`,
		p.ID, p.Name, p.Address, p.Zip, p.State,
	).Scan(&p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("pharmacy %q: %w", p.Name, errs.ErrConflict)
		}
		return fmt.Errorf("insert pharmacy: %w", err)
	}
	return nil
}

func (s PharmacyStore) GetByName(ctx context.Context, name string) (*pharmacy.Pharmacy, error) {
	p := &pharmacy.Pharmacy{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, address, zip, state, version, created_at, updated_at
		FROM pharmacies WHERE name = $1`, name,
	).Scan(&p.ID, &p.Name, &p.Address, &p.Zip, &p.State, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("pharmacy %q: %w", name, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("get pharmacy: %w", err)
	}
	if err := s.loadSets(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s PharmacyStore) ListByZip(ctx context.Context, zip string) ([]pharmacy.Pharmacy, error) {
	return s.list(ctx, `
		SELECT id, name, address, zip, state, version, created_at, updated_at
		FROM pharmacies WHERE zip = $1 ORDER BY name`, zip)
}

func (s PharmacyStore) List(ctx context.Context) ([]pharmacy.Pharmacy, error) {
	return s.list(ctx, `
		SELECT id, name, address, zip, state, version, created_at, updated_at
		FROM pharmacies ORDER BY name`)
}

// Update writes the row and replaces both owned sets under an optimistic
// version check. A stale version or a rename onto a taken name is a
// conflict and nothing changes.
func (s PharmacyStore) Update(ctx context.Context, p *pharmacy.Pharmacy) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE pharmacies
		SET name = $1, address = $2, zip = $3, state = $4,
		    version = version + 1, updated_at = NOW()
		WHERE id = $5 AND version = $6`,
		p.Name, p.Address, p.Zip, p.State, p.ID, p.Version)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("pharmacy %q: %w", p.Name, errs.ErrConflict)
		}
		return fmt.Errorf("update pharmacy: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM pharmacies WHERE id = $1)", p.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check pharmacy: %w", err)
		}
		if !exists {
			return fmt.Errorf("pharmacy %s: %w", p.ID, errs.ErrNotFound)
		}
		return fmt.Errorf("pharmacy %q modified since read: %w", p.Name, errs.ErrConflict)
	}

	if _, err := tx.Exec(ctx, "DELETE FROM pharmacy_drugs WHERE pharmacy_id = $1", p.ID); err != nil {
		return fmt.Errorf("clear stock: %w", err)
	}
	for _, d := range p.Drugs {
		if _, err := tx.Exec(ctx,
			"INSERT INTO pharmacy_drugs (pharmacy_id, drug_id) VALUES ($1, $2)",
			p.ID, d.ID); err != nil {
			return fmt.Errorf("insert stock: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, "DELETE FROM pharmacy_prescriptions WHERE pharmacy_id = $1", p.ID); err != nil {
		return fmt.Errorf("clear prescriptions: %w", err)
	}
	for i, id := range p.PrescriptionIDs {
		if _, err := tx.Exec(ctx,
			"INSERT INTO pharmacy_prescriptions (pharmacy_id, prescription_id, position) VALUES ($1, $2, $3)",
			p.ID, id, i); err != nil {
			return fmt.Errorf("insert prescription link: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	p.Version++
	return nil
}

func (s PharmacyStore) Delete(ctx context.Context, name string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM pharmacies WHERE name = $1", name)
	if err != nil {
		return fmt.Errorf("delete pharmacy: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pharmacy %q: %w", name, errs.ErrNotFound)
	}
	return nil
}

func (s PharmacyStore) list(ctx context.Context, query string, args ...interface{}) ([]pharmacy.Pharmacy, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pharmacies: %w", err)
	}
	defer rows.Close()

	var out []pharmacy.Pharmacy
	for rows.Next() {
		var p pharmacy.Pharmacy
		if err := rows.Scan(&p.ID, &p.Name, &p.Address, &p.Zip, &p.State, &p.Version, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan pharmacy: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if err := s.loadSets(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s PharmacyStore) loadSets(ctx context.Context, p *pharmacy.Pharmacy) error {
	rows, err := s.pool.Query(ctx, `
		SELECT d.id, d.code, d.name, d.generic_name, d.description, d.type
		FROM pharmacy_drugs pd
		JOIN drugs d ON d.id = pd.drug_id
		WHERE pd.pharmacy_id = $1
		ORDER BY d.name`, p.ID)
	if err != nil {
		return fmt.Errorf("load stock: %w", err)
	}
	defer rows.Close()

	p.Drugs = nil
	for rows.Next() {
		var d drug.Drug
		var typ string
		if err := rows.Scan(&d.ID, &d.Code, &d.Name, &d.GenericName, &d.Description, &typ); err != nil {
			return fmt.Errorf("scan stock: %w", err)
		}
		d.Type = drug.Type(typ)
		p.Drugs = append(p.Drugs, d)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	prows, err := s.pool.Query(ctx, `
		SELECT prescription_id
		FROM pharmacy_prescriptions
		WHERE pharmacy_id = $1
		ORDER BY position`, p.ID)
	if err != nil {
		return fmt.Errorf("load prescription links: %w", err)
	}
	defer prows.Close()

	p.PrescriptionIDs = nil
	for prows.Next() {
		var id string
		if err := prows.Scan(&id); err != nil {
			return fmt.Errorf("scan prescription link: %w", err)
		}
		p.PrescriptionIDs = append(p.PrescriptionIDs, id)
	}
	return prows.Err()
}
