// Package service implements the prescription lifecycle and pharmacy
// registry operations on top of the storage interfaces.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinicore/rxcore/internal/domain/drug"
	"github.com/clinicore/rxcore/internal/domain/pharmacy"
	"github.com/clinicore/rxcore/internal/errs"
	"github.com/clinicore/rxcore/internal/storage"
)

// PharmacyService owns pharmacy identity, location attributes, stocked
// inventory and the assigned-prescription set. All writes go through the
// store's optimistic version check, so concurrent writers on the same
// pharmacy serialize or fail with a conflict instead of losing updates.
type PharmacyService struct {
	pharmacies    storage.PharmacyStore
	drugs         storage.DrugStore
	prescriptions storage.PrescriptionStore
	logger        *zap.Logger
}

// NewPharmacyService creates the service.
func NewPharmacyService(pharmacies storage.PharmacyStore, drugs storage.DrugStore, prescriptions storage.PrescriptionStore, logger *zap.Logger) *PharmacyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PharmacyService{
		pharmacies:    pharmacies,
		drugs:         drugs,
		prescriptions: prescriptions,
		logger:        logger,
	}
}

// PharmacyFields carries the mutable attributes of a pharmacy. On update
// a changed Name is a rename: the record stays under its surrogate id,
// both owned sets are carried, and the old name stops resolving.
type PharmacyFields struct {
	Name    string
	Address string
	Zip     string
	State   string
}

// Create registers a new pharmacy. The name must be unique; a duplicate
// is a conflict. New pharmacies start with empty stock.
func (s *PharmacyService) Create(ctx context.Context, f PharmacyFields, actor string) (*pharmacy.Pharmacy, error) {
	p := &pharmacy.Pharmacy{
		ID:      uuid.New().String(),
		Name:    f.Name,
		Address: f.Address,
		Zip:     f.Zip,
		State:   f.State,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := s.pharmacies.Create(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info("pharmacy created",
		zap.String("pharmacy", p.Name),
		zap.String("actor", actor),
	)
	return p, nil
}

// Get resolves a pharmacy by its name.
func (s *PharmacyService) Get(ctx context.Context, name string) (*pharmacy.Pharmacy, error) {
	return s.pharmacies.GetByName(ctx, name)
}

// GetByZip lists pharmacies in a zip code; the list may be empty.
func (s *PharmacyService) GetByZip(ctx context.Context, zip string) ([]pharmacy.Pharmacy, error) {
	return s.pharmacies.ListByZip(ctx, zip)
}

// List returns all pharmacies.
func (s *PharmacyService) List(ctx context.Context) ([]pharmacy.Pharmacy, error) {
	return s.pharmacies.List(ctx)
}

// Update overwrites a pharmacy's attribute fields, renaming it when the
// submitted name differs. Stocked drugs and assigned prescriptions have
// their own operations and are never touched here.
func (s *PharmacyService) Update(ctx context.Context, name string, f PharmacyFields, actor string) (*pharmacy.Pharmacy, error) {
	p, err := s.pharmacies.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	renamed := f.Name != "" && f.Name != p.Name
	if f.Name != "" {
		p.Name = f.Name
	}
	if f.Address != "" {
		p.Address = f.Address
	}
	if f.Zip != "" {
		p.Zip = f.Zip
	}
	if f.State != "" {
		p.State = f.State
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := s.pharmacies.Update(ctx, p); err != nil {
		return nil, err
	}
	if renamed {
		s.logger.Info("pharmacy renamed",
			zap.String("from", name),
			zap.String("to", p.Name),
			zap.String("actor", actor),
		)
	} else {
		s.logger.Info("pharmacy updated", zap.String("pharmacy", p.Name), zap.String("actor", actor))
	}
	return p, nil
}

// Delete removes a pharmacy by name.
func (s *PharmacyService) Delete(ctx context.Context, name string, actor string) error {
	if err := s.pharmacies.Delete(ctx, name); err != nil {
		return err
	}
	s.logger.Info("pharmacy deleted", zap.String("pharmacy", name), zap.String("actor", actor))
	return nil
}

// SetStockedDrugs replaces the pharmacy's entire stocked-drug set from a
// list of catalog drug ids. Every id must resolve; one unknown id rejects
// the whole batch and nothing is applied. The assigned-prescription set
// is not touched.
func (s *PharmacyService) SetStockedDrugs(ctx context.Context, name string, drugIDs []string, actor string) (*pharmacy.Pharmacy, error) {
	p, err := s.pharmacies.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	stock := make([]drug.Drug, 0, len(drugIDs))
	for _, id := range drugIDs {
		d, err := s.drugs.Get(ctx, id)
		if err != nil {
			return nil, errs.Validationf("drugs", "unknown drug id %s", id)
		}
		stock = append(stock, *d)
	}
	p.Drugs = stock
	if err := s.pharmacies.Update(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info("pharmacy stock replaced",
		zap.String("pharmacy", p.Name),
		zap.Int("drugs", len(stock)),
		zap.String("actor", actor),
	)
	return p, nil
}

// SetPrescriptions replaces the pharmacy's assigned-prescription set.
// Every id must resolve to an existing prescription; one unknown id
// rejects the whole batch. The stocked-drug set is not touched.
func (s *PharmacyService) SetPrescriptions(ctx context.Context, name string, ids []string, actor string) (*pharmacy.Pharmacy, error) {
	p, err := s.pharmacies.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if _, err := s.prescriptions.Get(ctx, id); err != nil {
			return nil, errs.Validationf("prescriptions", "unknown prescription id %s", id)
		}
	}
	p.PrescriptionIDs = append([]string(nil), ids...)
	if err := s.pharmacies.Update(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info("pharmacy prescription set replaced",
		zap.String("pharmacy", p.Name),
		zap.Int("prescriptions", len(ids)),
		zap.String("actor", actor),
	)
	return p, nil
}

// addPrescription appends one prescription to the pharmacy's assigned
// set, retrying once on a concurrent writer. Used by the assignment and
// fill flows.
func (s *PharmacyService) addPrescription(ctx context.Context, name, prescriptionID string) error {
	for attempt := 0; attempt < 2; attempt++ {
		p, err := s.pharmacies.GetByName(ctx, name)
		if err != nil {
			return err
		}
		for _, id := range p.PrescriptionIDs {
			if id == prescriptionID {
				return nil
			}
		}
		p.PrescriptionIDs = append(p.PrescriptionIDs, prescriptionID)
		err = s.pharmacies.Update(ctx, p)
		if err == nil {
			return nil
		}
		if attempt == 0 && errors.Is(err, errs.ErrConflict) {
			continue
		}
		return err
	}
	return fmt.Errorf("pharmacy %q: %w", name, errs.ErrConflict)
}
