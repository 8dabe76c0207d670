package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinicore/rxcore/internal/domain/prescription"
	"github.com/clinicore/rxcore/internal/errs"
	"github.com/clinicore/rxcore/internal/observability/metrics"
	"github.com/clinicore/rxcore/internal/patient"
	"github.com/clinicore/rxcore/internal/storage"
	"github.com/clinicore/rxcore/internal/substitution"
)

// PrescriptionService drives the prescription lifecycle: creation,
// edits, assignment to a pharmacy, fill and cancellation. Every status
// change goes through the transition graph and produces exactly one
// transition event, committed together with the row update.
type PrescriptionService struct {
	prescriptions storage.PrescriptionStore
	drugs         storage.DrugStore
	pharmacies    *PharmacyService
	patients      patient.Directory
	metrics       *metrics.Metrics
	logger        *zap.Logger
}

// NewPrescriptionService creates the service. m may be nil in tests.
func NewPrescriptionService(
	prescriptions storage.PrescriptionStore,
	drugs storage.DrugStore,
	pharmacies *PharmacyService,
	patients patient.Directory,
	m *metrics.Metrics,
	logger *zap.Logger,
) *PrescriptionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PrescriptionService{
		prescriptions: prescriptions,
		drugs:         drugs,
		pharmacies:    pharmacies,
		patients:      patients,
		metrics:       m,
		logger:        logger,
	}
}

// Create records a new prescription in the Created status. The drug code
// must resolve to at least one catalog entry. When pharmacyName is
// non-empty the prescription is immediately sent to that pharmacy.
func (s *PrescriptionService) Create(ctx context.Context, p *prescription.Prescription, pharmacyName, actor string) (*prescription.Prescription, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	matches, err := s.drugs.ListByCode(ctx, p.DrugCode)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, errs.Validationf("drug", "no drug with code %s", p.DrugCode)
	}

	p.ID = uuid.New().String()
	p.Status = prescription.StatusCreated
	p.Pharmacy = ""
	p.FilledDrugID = ""
	p.PreferenceSatisfied = false
	if err := s.prescriptions.Create(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info("prescription created",
		zap.String("prescription", p.ID),
		zap.String("patient", p.Patient),
		zap.String("drug", p.DrugCode),
		zap.String("actor", actor),
	)

	if pharmacyName != "" {
		return s.Assign(ctx, p.ID, pharmacyName, actor)
	}
	return p, nil
}

// Get returns a prescription by id.
func (s *PrescriptionService) Get(ctx context.Context, id string) (*prescription.Prescription, error) {
	return s.prescriptions.Get(ctx, id)
}

// ListForPatient returns the patient's prescriptions.
func (s *PrescriptionService) ListForPatient(ctx context.Context, patientRef string) ([]prescription.Prescription, error) {
	return s.prescriptions.ListForPatient(ctx, patientRef)
}

// List returns all prescriptions.
func (s *PrescriptionService) List(ctx context.Context) ([]prescription.Prescription, error) {
	return s.prescriptions.List(ctx)
}

// EditFields carries the mutable clinical fields of a prescription plus
// an optional status. An empty Status leaves the current status alone;
// any other value must name a legal transition from the current status.
type EditFields struct {
	Prescription prescription.Prescription
	Status       string
}

// Edit updates a prescription. A prescription in a terminal status is
// immutable: neither its fields nor its status may change. A submitted
// status outside the transition graph is rejected and nothing is
// written. A committed status change emits one transition event.
func (s *PrescriptionService) Edit(ctx context.Context, id string, f EditFields, actor string) (*prescription.Prescription, error) {
	current, err := s.prescriptions.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	next := *current
	next.DrugCode = f.Prescription.DrugCode
	next.Dosage = f.Prescription.Dosage
	next.StartDate = f.Prescription.StartDate
	next.EndDate = f.Prescription.EndDate
	next.Renewals = f.Prescription.Renewals
	next.Patient = f.Prescription.Patient
	if err := next.Validate(); err != nil {
		return nil, err
	}

	var ev *prescription.TransitionEvent
	target := current.Status
	if f.Status != "" {
		target, err = prescription.ParseStatus(f.Status)
		if err != nil {
			return nil, err
		}
	}

	if current.Status.Terminal() {
		if target != current.Status || !next.CoreFieldsEqual(current) {
			s.metrics.IncRejectedTransition()
			return nil, fmt.Errorf("prescription %s is %s: %w", id, current.Status.DisplayName(), errs.ErrInvalidTransition)
		}
		return current, nil
	}

	if target != current.Status {
		if err := prescription.CheckTransition(current.Status, target); err != nil {
			s.metrics.IncRejectedTransition()
			return nil, err
		}
		next.Status = target
		e := prescription.NewTransitionEvent(&next, current.Status, target, actor)
		ev = &e
	}

	if err := s.prescriptions.Update(ctx, &next, ev); err != nil {
		return nil, err
	}
	if ev != nil {
		s.metrics.ObserveTransition(string(ev.From), string(ev.To))
		s.logger.Info("prescription transitioned",
			zap.String("prescription", next.ID),
			zap.String("from", ev.From.DisplayName()),
			zap.String("to", ev.To.DisplayName()),
			zap.String("actor", actor),
		)
	}
	return &next, nil
}

// Delete removes a prescription.
func (s *PrescriptionService) Delete(ctx context.Context, id string, actor string) error {
	if err := s.prescriptions.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("prescription deleted", zap.String("prescription", id), zap.String("actor", actor))
	return nil
}

// Assign sends a prescription to a pharmacy. When pharmacyName is empty
// the patient's default pharmacy is used; a patient with no default is a
// validation error. The prescription must currently be in the Created
// status. The pharmacy's assigned set gains the prescription.
func (s *PrescriptionService) Assign(ctx context.Context, id, pharmacyName, actor string) (*prescription.Prescription, error) {
	p, err := s.prescriptions.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	pat, err := s.patients.Get(ctx, p.Patient)
	if err != nil {
		return nil, err
	}
	if pharmacyName == "" {
		if pat.DefaultPharmacy == "" {
			return nil, errs.Validation("pharmacy", "patient has no default pharmacy")
		}
		pharmacyName = pat.DefaultPharmacy
	}
	if _, err := s.pharmacies.Get(ctx, pharmacyName); err != nil {
		return nil, err
	}

	if err := prescription.CheckTransition(p.Status, prescription.StatusSentToPharmacy); err != nil {
		s.metrics.IncRejectedTransition()
		return nil, err
	}

	from := p.Status
	p.Status = prescription.StatusSentToPharmacy
	p.Pharmacy = pharmacyName
	ev := prescription.NewTransitionEvent(p, from, p.Status, actor)
	if err := s.prescriptions.Update(ctx, p, &ev); err != nil {
		return nil, err
	}
	s.metrics.ObserveTransition(string(from), string(p.Status))

	if err := s.pharmacies.addPrescription(ctx, pharmacyName, p.ID); err != nil {
		s.logger.Warn("pharmacy assignment bookkeeping failed",
			zap.String("prescription", p.ID),
			zap.String("pharmacy", pharmacyName),
			zap.Error(err),
		)
	}

	// The default-pharmacy audit entry keys off the resolved target, not
	// off whether the caller named it.
	if pharmacyName == pat.DefaultPharmacy {
		s.logger.Info("prescription sent to default pharmacy",
			zap.String("prescription", p.ID),
			zap.String("patient", p.Patient),
			zap.String("pharmacy", pharmacyName),
			zap.String("actor", actor),
		)
	} else {
		s.logger.Info("prescription sent to pharmacy",
			zap.String("prescription", p.ID),
			zap.String("pharmacy", pharmacyName),
			zap.String("actor", actor),
		)
	}
	return p, nil
}

// Fill marks a prescription filled at the named pharmacy. A prescription
// sent to a pharmacy may only be filled there; an unassigned one may be
// filled at any pharmacy directly. The dispensed drug is
// chosen from the pharmacy's stock against the patient's type
// preference; when no stocked drug carries the prescribed code the fill
// is rejected with ErrDrugNotStocked and the prescription is unchanged.
func (s *PrescriptionService) Fill(ctx context.Context, id, pharmacyName, actor string) (*prescription.Prescription, error) {
	p, err := s.prescriptions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	// An unassigned prescription may be filled directly at the counter;
	// one sent elsewhere may not.
	wasUnassigned := p.Pharmacy == ""
	if !wasUnassigned && p.Pharmacy != pharmacyName {
		return nil, fmt.Errorf("prescription %s is not assigned to pharmacy %q: %w", id, pharmacyName, errs.ErrConflict)
	}
	if err := prescription.CheckTransition(p.Status, prescription.StatusFilled); err != nil {
		s.metrics.IncRejectedTransition()
		return nil, err
	}

	ph, err := s.pharmacies.Get(ctx, pharmacyName)
	if err != nil {
		return nil, err
	}
	pat, err := s.patients.Get(ctx, p.Patient)
	if err != nil {
		return nil, err
	}

	res, err := substitution.Resolve(ph.Drugs, p.DrugCode, pat.Preference)
	if err != nil {
		if errors.Is(err, errs.ErrDrugNotStocked) {
			s.metrics.IncRejectedFill()
		}
		return nil, err
	}

	from := p.Status
	p.Status = prescription.StatusFilled
	p.Pharmacy = pharmacyName
	p.FilledDrugID = res.Drug.ID
	p.PreferenceSatisfied = res.PreferenceSatisfied
	ev := prescription.NewTransitionEvent(p, from, p.Status, actor)
	if err := s.prescriptions.Update(ctx, p, &ev); err != nil {
		return nil, err
	}
	s.metrics.ObserveTransition(string(from), string(p.Status))
	s.metrics.ObserveFill(!res.PreferenceSatisfied)

	// A walk-in fill joins the pharmacy's assigned set the same way an
	// assignment does.
	if wasUnassigned {
		if err := s.pharmacies.addPrescription(ctx, pharmacyName, p.ID); err != nil {
			s.logger.Warn("pharmacy assignment bookkeeping failed",
				zap.String("prescription", p.ID),
				zap.String("pharmacy", pharmacyName),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("prescription filled",
		zap.String("prescription", p.ID),
		zap.String("pharmacy", pharmacyName),
		zap.String("drug", res.Drug.ID),
		zap.Bool("preference_satisfied", res.PreferenceSatisfied),
		zap.String("actor", actor),
	)
	return p, nil
}

// Cancel moves a prescription to the Cancelled status from either
// active status.
func (s *PrescriptionService) Cancel(ctx context.Context, id, actor string) (*prescription.Prescription, error) {
	p, err := s.prescriptions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := prescription.CheckTransition(p.Status, prescription.StatusCancelled); err != nil {
		s.metrics.IncRejectedTransition()
		return nil, err
	}

	from := p.Status
	p.Status = prescription.StatusCancelled
	ev := prescription.NewTransitionEvent(p, from, p.Status, actor)
	if err := s.prescriptions.Update(ctx, p, &ev); err != nil {
		return nil, err
	}
	s.metrics.ObserveTransition(string(from), string(p.Status))

	s.logger.Info("prescription cancelled",
		zap.String("prescription", p.ID),
		zap.String("actor", actor),
	)
	return p, nil
}
