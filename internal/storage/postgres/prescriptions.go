package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/clinicore/rxcore/internal/domain/prescription"
	"github.com/clinicore/rxcore/internal/errs"
	infra "github.com/clinicore/rxcore/internal/infrastructure/postgres"
	"github.com/clinicore/rxcore/internal/infrastructure/redpanda"
)

// PrescriptionStore persists prescriptions. Status changes and their
// transition events commit atomically: the event goes into the outbox in
// the same transaction as the row update.
type PrescriptionStore struct{ *Store }

// Prescriptions returns the prescription store view.
func (s *Store) Prescriptions() PrescriptionStore { return PrescriptionStore{s} }

const prescriptionColumns = `
	id, drug_code, dosage, start_date, end_date, renewals, patient,
	pharmacy, status, filled_drug_id, preference_satisfied, version,
	created_at, updated_at`

func (s PrescriptionStore) Create(ctx context.Context, p *prescription.Prescription) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO prescriptions
			(id, drug_code, dosage, start_date, end_date, renewals, patient,
			 pharmacy, status, filled_drug_id, preference_satisfied, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1)
		RETURNING version, created_at, updated_at`,
		p.ID, p.DrugCode, p.Dosage, p.StartDate, p.EndDate, p.Renewals,
		p.Patient, p.Pharmacy, string(p.Status), p.FilledDrugID, p.PreferenceSatisfied,
	).Scan(&p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("prescription %s: %w", p.ID, errs.ErrConflict)
		}
		return fmt.Errorf("insert prescription: %w", err)
	}
	return nil
}

func (s PrescriptionStore) Get(ctx context.Context, id string) (*prescription.Prescription, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+prescriptionColumns+" FROM prescriptions WHERE id = $1", id)
	p, err := scanPrescription(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("prescription %s: %w", id, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("get prescription: %w", err)
	}
	return p, nil
}

func (s PrescriptionStore) ListForPatient(ctx context.Context, patientRef string) ([]prescription.Prescription, error) {
	return s.list(ctx,
		"SELECT "+prescriptionColumns+" FROM prescriptions WHERE patient = $1 ORDER BY created_at", patientRef)
}

func (s PrescriptionStore) List(ctx context.Context) ([]prescription.Prescription, error) {
	return s.list(ctx,
		"SELECT "+prescriptionColumns+" FROM prescriptions ORDER BY created_at")
}

// Update writes the row under an optimistic version check and, when a
// transition event accompanies the write, inserts it into the outbox in
// the same transaction.
func (s PrescriptionStore) Update(ctx context.Context, p *prescription.Prescription, ev *prescription.TransitionEvent) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE prescriptions
		SET drug_code = $1, dosage = $2, start_date = $3, end_date = $4,
		    renewals = $5, patient = $6, pharmacy = $7, status = $8,
		    filled_drug_id = $9, preference_satisfied = $10,
		    version = version + 1, updated_at = NOW()
		WHERE id = $11 AND version = $12`,
		p.DrugCode, p.Dosage, p.StartDate, p.EndDate, p.Renewals,
		p.Patient, p.Pharmacy, string(p.Status), p.FilledDrugID,
		p.PreferenceSatisfied, p.ID, p.Version)
	if err != nil {
		return fmt.Errorf("update prescription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM prescriptions WHERE id = $1)", p.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check prescription: %w", err)
		}
		if !exists {
			return fmt.Errorf("prescription %s: %w", p.ID, errs.ErrNotFound)
		}
		return fmt.Errorf("prescription %s modified since read: %w", p.ID, errs.ErrConflict)
	}

	if ev != nil {
		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		entry := &infra.OutboxEntry{
			EventID: ev.EventID,
			Topic:   redpanda.TopicTransitions,
			Key:     ev.Patient,
			Payload: payload,
		}
		if err := infra.WriteEntry(ctx, tx, entry); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	p.Version++
	return nil
}

func (s PrescriptionStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM prescriptions WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete prescription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("prescription %s: %w", id, errs.ErrNotFound)
	}
	return nil
}

func (s PrescriptionStore) list(ctx context.Context, query string, args ...interface{}) ([]prescription.Prescription, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list prescriptions: %w", err)
	}
	defer rows.Close()

	var out []prescription.Prescription
	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan prescription: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func scanPrescription(row pgx.Row) (*prescription.Prescription, error) {
	p := &prescription.Prescription{}
	var status string
	err := row.Scan(
		&p.ID, &p.DrugCode, &p.Dosage, &p.StartDate, &p.EndDate, &p.Renewals,
		&p.Patient, &p.Pharmacy, &status, &p.FilledDrugID, &p.PreferenceSatisfied,
		&p.Version, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Status = prescription.Status(status)
	return p, nil
}
