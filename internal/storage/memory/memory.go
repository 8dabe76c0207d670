// Package memory provides an in-memory implementation of the storage
// interfaces and the patient directory. It backs unit tests and local
// runs that have no Postgres; semantics (conflict detection, version
// checks, emit-after-persist) match the Postgres implementation.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/clinicore/rxcore/internal/domain/drug"
	"github.com/clinicore/rxcore/internal/domain/pharmacy"
	"github.com/clinicore/rxcore/internal/domain/prescription"
	"github.com/clinicore/rxcore/internal/errs"
	"github.com/clinicore/rxcore/internal/patient"
)

// EventSink receives transition events after the owning write has been
// applied, mirroring the publish-after-commit behavior of the
// transactional outbox.
type EventSink func(ev prescription.TransitionEvent)

// Store is the in-memory store. The zero value is not usable; construct
// with New.
type Store struct {
	mu            sync.Mutex
	drugs         map[string]drug.Drug               // by id
	pharmacies    map[string]pharmacy.Pharmacy       // by id
	pharmacyNames map[string]string                  // name -> id
	prescriptions map[string]prescription.Prescription // by id
	patients      map[string]patient.Patient         // by username
	sink          EventSink
}

// New creates an empty store. sink may be nil when no consumer cares
// about transition events.
func New(sink EventSink) *Store {
	return &Store{
		drugs:         make(map[string]drug.Drug),
		pharmacies:    make(map[string]pharmacy.Pharmacy),
		pharmacyNames: make(map[string]string),
		prescriptions: make(map[string]prescription.Prescription),
		patients:      make(map[string]patient.Patient),
		sink:          sink,
	}
}

// --- DrugStore ---

func (s *Store) Create(ctx context.Context, d *drug.Drug) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.drugs[d.ID]; ok {
		return fmt.Errorf("drug %s: %w", d.ID, errs.ErrConflict)
	}
	s.drugs[d.ID] = *d
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*drug.Drug, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drugs[id]
	if !ok {
		return nil, fmt.Errorf("drug %s: %w", id, errs.ErrNotFound)
	}
	out := d
	return &out, nil
}

func (s *Store) ListByCode(ctx context.Context, code string) ([]drug.Drug, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []drug.Drug
	for _, d := range s.drugs {
		if d.Code == code {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *Store) List(ctx context.Context) ([]drug.Drug, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]drug.Drug, 0, len(s.drugs))
	for _, d := range s.drugs {
		out = append(out, d)
	}
	return out, nil
}

// --- PharmacyStore ---

func clonePharmacy(p pharmacy.Pharmacy) pharmacy.Pharmacy {
	out := p
	out.Drugs = append([]drug.Drug(nil), p.Drugs...)
	out.PrescriptionIDs = append([]string(nil), p.PrescriptionIDs...)
	return out
}

func (s *Store) CreatePharmacy(ctx context.Context, p *pharmacy.Pharmacy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pharmacyNames[p.Name]; ok {
		return fmt.Errorf("pharmacy %q: %w", p.Name, errs.ErrConflict)
	}
	now := time.Now().UTC()
	p.Version = 1
	p.CreatedAt = now
	p.UpdatedAt = now
	s.pharmacies[p.ID] = clonePharmacy(*p)
	s.pharmacyNames[p.Name] = p.ID
	return nil
}

func (s *Store) GetByName(ctx context.Context, name string) (*pharmacy.Pharmacy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.pharmacyNames[name]
	if !ok {
		return nil, fmt.Errorf("pharmacy %q: %w", name, errs.ErrNotFound)
	}
	out := clonePharmacy(s.pharmacies[id])
	return &out, nil
}

func (s *Store) ListByZip(ctx context.Context, zip string) ([]pharmacy.Pharmacy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []pharmacy.Pharmacy
	for _, p := range s.pharmacies {
		if p.Zip == zip {
			out = append(out, clonePharmacy(p))
		}
	}
	return out, nil
}

func (s *Store) ListPharmacies(ctx context.Context) ([]pharmacy.Pharmacy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]pharmacy.Pharmacy, 0, len(s.pharmacies))
	for _, p := range s.pharmacies {
		out = append(out, clonePharmacy(p))
	}
	return out, nil
}

func (s *Store) UpdatePharmacy(ctx context.Context, p *pharmacy.Pharmacy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.pharmacies[p.ID]
	if !ok {
		return fmt.Errorf("pharmacy %s: %w", p.ID, errs.ErrNotFound)
	}
	if current.Version != p.Version {
		return fmt.Errorf("pharmacy %q modified since read: %w", current.Name, errs.ErrConflict)
	}
	if p.Name != current.Name {
		if _, taken := s.pharmacyNames[p.Name]; taken {
			return fmt.Errorf("pharmacy %q: %w", p.Name, errs.ErrConflict)
		}
		delete(s.pharmacyNames, current.Name)
		s.pharmacyNames[p.Name] = p.ID
	}
	p.Version++
	p.UpdatedAt = time.Now().UTC()
	s.pharmacies[p.ID] = clonePharmacy(*p)
	return nil
}

func (s *Store) DeletePharmacy(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.pharmacyNames[name]
	if !ok {
		return fmt.Errorf("pharmacy %q: %w", name, errs.ErrNotFound)
	}
	delete(s.pharmacies, id)
	delete(s.pharmacyNames, name)
	return nil
}

// --- PrescriptionStore ---

func (s *Store) CreatePrescription(ctx context.Context, p *prescription.Prescription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.prescriptions[p.ID]; ok {
		return fmt.Errorf("prescription %s: %w", p.ID, errs.ErrConflict)
	}
	now := time.Now().UTC()
	p.Version = 1
	p.CreatedAt = now
	p.UpdatedAt = now
	s.prescriptions[p.ID] = *p
	return nil
}

func (s *Store) GetPrescription(ctx context.Context, id string) (*prescription.Prescription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prescriptions[id]
	if !ok {
		return nil, fmt.Errorf("prescription %s: %w", id, errs.ErrNotFound)
	}
	out := p
	return &out, nil
}

func (s *Store) ListForPatient(ctx context.Context, patientRef string) ([]prescription.Prescription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []prescription.Prescription
	for _, p := range s.prescriptions {
		if p.Patient == patientRef {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) ListPrescriptions(ctx context.Context) ([]prescription.Prescription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]prescription.Prescription, 0, len(s.prescriptions))
	for _, p := range s.prescriptions {
		out = append(out, p)
	}
	return out, nil
}

// UpdatePrescription applies the write and, when a transition event is
// attached, hands it to the sink only after the write is in place.
func (s *Store) UpdatePrescription(ctx context.Context, p *prescription.Prescription, ev *prescription.TransitionEvent) error {
	s.mu.Lock()
	current, ok := s.prescriptions[p.ID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("prescription %s: %w", p.ID, errs.ErrNotFound)
	}
	if current.Version != p.Version {
		s.mu.Unlock()
		return fmt.Errorf("prescription %s modified since read: %w", p.ID, errs.ErrConflict)
	}
	p.Version++
	p.UpdatedAt = time.Now().UTC()
	s.prescriptions[p.ID] = *p
	sink := s.sink
	s.mu.Unlock()

	if ev != nil && sink != nil {
		sink(*ev)
	}
	return nil
}

func (s *Store) DeletePrescription(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.prescriptions[id]; !ok {
		return fmt.Errorf("prescription %s: %w", id, errs.ErrNotFound)
	}
	delete(s.prescriptions, id)
	return nil
}

// --- patient.Directory ---

func (s *Store) GetPatient(ctx context.Context, username string) (*patient.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.patients[username]
	if !ok {
		return nil, fmt.Errorf("patient %q: %w", username, errs.ErrNotFound)
	}
	out := p
	return &out, nil
}

func (s *Store) PutPatient(ctx context.Context, p *patient.Patient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patients[p.Username] = *p
	return nil
}

// Typed views adapt the single Store to the narrower interfaces the
// services consume.

// Drugs returns the store as a storage.DrugStore.
func (s *Store) Drugs() *Store { return s }

// PharmacyView adapts Store to storage.PharmacyStore.
type PharmacyView struct{ *Store }

func (v PharmacyView) Create(ctx context.Context, p *pharmacy.Pharmacy) error {
	return v.CreatePharmacy(ctx, p)
}
func (v PharmacyView) List(ctx context.Context) ([]pharmacy.Pharmacy, error) {
	return v.ListPharmacies(ctx)
}
func (v PharmacyView) Update(ctx context.Context, p *pharmacy.Pharmacy) error {
	return v.UpdatePharmacy(ctx, p)
}
func (v PharmacyView) Delete(ctx context.Context, name string) error {
	return v.DeletePharmacy(ctx, name)
}

// Pharmacies returns the store as a storage.PharmacyStore.
func (s *Store) Pharmacies() PharmacyView { return PharmacyView{s} }

// PrescriptionView adapts Store to storage.PrescriptionStore.
type PrescriptionView struct{ *Store }

func (v PrescriptionView) Create(ctx context.Context, p *prescription.Prescription) error {
	return v.CreatePrescription(ctx, p)
}
func (v PrescriptionView) Get(ctx context.Context, id string) (*prescription.Prescription, error) {
	return v.GetPrescription(ctx, id)
}
func (v PrescriptionView) List(ctx context.Context) ([]prescription.Prescription, error) {
	return v.ListPrescriptions(ctx)
}
func (v PrescriptionView) Update(ctx context.Context, p *prescription.Prescription, ev *prescription.TransitionEvent) error {
	return v.UpdatePrescription(ctx, p, ev)
}
func (v PrescriptionView) Delete(ctx context.Context, id string) error {
	return v.DeletePrescription(ctx, id)
}

// Prescriptions returns the store as a storage.PrescriptionStore.
func (s *Store) Prescriptions() PrescriptionView { return PrescriptionView{s} }

// DirectoryView adapts Store to patient.Directory.
type DirectoryView struct{ *Store }

func (v DirectoryView) Get(ctx context.Context, username string) (*patient.Patient, error) {
	return v.GetPatient(ctx, username)
}
func (v DirectoryView) Put(ctx context.Context, p *patient.Patient) error {
	return v.PutPatient(ctx, p)
}

// Patients returns the store as a patient.Directory.
func (s *Store) Patients() DirectoryView { return DirectoryView{s} }
