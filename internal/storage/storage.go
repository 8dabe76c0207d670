// Package storage defines the persistence interfaces for the drug
// catalog, pharmacy registry and prescription store. Two implementations
// exist: storage/postgres (pgx, the store of record) and storage/memory
// (unit tests and local runs without Postgres).
package storage

import (
	"context"

	"github.com/clinicore/rxcore/internal/domain/drug"
	"github.com/clinicore/rxcore/internal/domain/pharmacy"
	"github.com/clinicore/rxcore/internal/domain/prescription"
)

// DrugStore persists the drug catalog.
type DrugStore interface {
	Create(ctx context.Context, d *drug.Drug) error
	Get(ctx context.Context, id string) (*drug.Drug, error)
	ListByCode(ctx context.Context, code string) ([]drug.Drug, error)
	List(ctx context.Context) ([]drug.Drug, error)
}

// PharmacyStore persists pharmacies keyed externally by name. Create
// returns errs.ErrConflict for a duplicate name. Update performs an
// optimistic version check: a write whose Version does not match the
// stored row fails with errs.ErrConflict and changes nothing, which
// serializes concurrent writers per pharmacy identity.
type PharmacyStore interface {
	Create(ctx context.Context, p *pharmacy.Pharmacy) error
	GetByName(ctx context.Context, name string) (*pharmacy.Pharmacy, error)
	ListByZip(ctx context.Context, zip string) ([]pharmacy.Pharmacy, error)
	List(ctx context.Context) ([]pharmacy.Pharmacy, error)
	Update(ctx context.Context, p *pharmacy.Pharmacy) error
	Delete(ctx context.Context, name string) error
}

// PrescriptionStore persists prescriptions. Update takes the transition
// event produced by the status change, or nil when no transition
// occurred; the row update and the event record are committed atomically
// so the event is published only for durable transitions. Update applies
// the same optimistic version check as PharmacyStore.Update.
type PrescriptionStore interface {
	Create(ctx context.Context, p *prescription.Prescription) error
	Get(ctx context.Context, id string) (*prescription.Prescription, error)
	ListForPatient(ctx context.Context, patientRef string) ([]prescription.Prescription, error)
	List(ctx context.Context) ([]prescription.Prescription, error)
	Update(ctx context.Context, p *prescription.Prescription, ev *prescription.TransitionEvent) error
	Delete(ctx context.Context, id string) error
}
