package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/clinicore/rxcore/internal/domain/drug"
	"github.com/clinicore/rxcore/internal/domain/prescription"
	"github.com/clinicore/rxcore/internal/errs"
	"github.com/clinicore/rxcore/internal/patient"
	"github.com/clinicore/rxcore/internal/storage/memory"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []prescription.TransitionEvent
}

func (r *eventRecorder) record(ev prescription.TransitionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) all() []prescription.TransitionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]prescription.TransitionEvent(nil), r.events...)
}

type fixture struct {
	store    *memory.Store
	events   *eventRecorder
	logs     *observer.ObservedLogs
	pharmacy *PharmacyService
	rx       *PrescriptionService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	rec := &eventRecorder{}
	store := memory.New(rec.record)
	core, logs := observer.New(zap.InfoLevel)
	pharmacySvc := NewPharmacyService(store.Pharmacies(), store.Drugs(), store.Prescriptions(), nil)
	rxSvc := NewPrescriptionService(store.Prescriptions(), store.Drugs(), pharmacySvc, store.Patients(), nil, zap.New(core))
	return &fixture{store: store, events: rec, logs: logs, pharmacy: pharmacySvc, rx: rxSvc}
}

const ndc = "1234-5678-90"

// seed puts a brand and a generic variant of the NDC family in the
// catalog, stocks a pharmacy, and registers a patient.
func (f *fixture) seed(t *testing.T, stocked []drug.Type, pref drug.Type) {
	t.Helper()
	ctx := context.Background()

	var stockIDs []string
	for _, typ := range stocked {
		d := drug.Drug{ID: uuid.New().String(), Code: ndc, Name: "Med " + string(typ), Type: typ}
		require.NoError(t, f.store.Create(ctx, &d))
		stockIDs = append(stockIDs, d.ID)
	}

	_, err := f.pharmacy.Create(ctx, PharmacyFields{Name: "CVS", Address: "1 Main St", Zip: "27601"}, "admin")
	require.NoError(t, err)
	if len(stockIDs) > 0 {
		_, err = f.pharmacy.SetStockedDrugs(ctx, "CVS", stockIDs, "admin")
		require.NoError(t, err)
	}

	require.NoError(t, f.store.PutPatient(ctx, &patient.Patient{
		Username:        "jdoe",
		Email:           "jdoe@example.com",
		Preference:      pref,
		DefaultPharmacy: "CVS",
	}))
}

func (f *fixture) newPrescription() *prescription.Prescription {
	start := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	return &prescription.Prescription{
		DrugCode:  ndc,
		Dosage:    100,
		StartDate: start,
		EndDate:   start.AddDate(0, 1, 0),
		Renewals:  1,
		Patient:   "jdoe",
	}
}

func TestCreateStartsCreated(t *testing.T) {
	f := newFixture(t)
	f.seed(t, []drug.Type{drug.TypeGeneric}, drug.TypeGeneric)
	ctx := context.Background()

	p, err := f.rx.Create(ctx, f.newPrescription(), "", "dr-house")
	require.NoError(t, err)
	assert.Equal(t, prescription.StatusCreated, p.Status)
	assert.Empty(t, p.Pharmacy)
	assert.Empty(t, f.events.all(), "creation is not a transition")
}

func TestCreateUnknownDrugCode(t *testing.T) {
	f := newFixture(t)
	f.seed(t, []drug.Type{drug.TypeGeneric}, drug.TypeGeneric)

	p := f.newPrescription()
	p.DrugCode = "9999-9999-99"
	_, err := f.rx.Create(context.Background(), p, "", "dr-house")
	require.Error(t, err)
	assert.True(t, errs.IsValidation(err))
}

func TestCreateNegativeRenewals(t *testing.T) {
	f := newFixture(t)
	f.seed(t, []drug.Type{drug.TypeGeneric}, drug.TypeGeneric)

	p := f.newPrescription()
	p.Renewals = -3
	_, err := f.rx.Create(context.Background(), p, "", "dr-house")
	assert.True(t, errs.IsValidation(err))
}

func TestAssignExplicitPharmacy(t *testing.T) {
	f := newFixture(t)
	f.seed(t, []drug.Type{drug.TypeGeneric}, drug.TypeGeneric)
	ctx := context.Background()

	p, err := f.rx.Create(ctx, f.newPrescription(), "", "dr-house")
	require.NoError(t, err)

	p, err = f.rx.Assign(ctx, p.ID, "CVS", "dr-house")
	require.NoError(t, err)
	assert.Equal(t, prescription.StatusSentToPharmacy, p.Status)
	assert.Equal(t, "CVS", p.Pharmacy)

	// The pharmacy's assigned set gained the prescription.
	ph, err := f.pharmacy.Get(ctx, "CVS")
	require.NoError(t, err)
	assert.Contains(t, ph.PrescriptionIDs, p.ID)

	events := f.events.all()
	require.Len(t, events, 1)
	assert.Equal(t, prescription.StatusCreated, events[0].From)
	assert.Equal(t, prescription.StatusSentToPharmacy, events[0].To)
}

func TestAssignDefaultPharmacy(t *testing.T) {
	f := newFixture(t)
	f.seed(t, []drug.Type{drug.TypeGeneric}, drug.TypeGeneric)
	ctx := context.Background()

	p, err := f.rx.Create(ctx, f.newPrescription(), "", "dr-house")
	require.NoError(t, err)

	p, err = f.rx.Assign(ctx, p.ID, "", "dr-house")
	require.NoError(t, err)
	assert.Equal(t, "CVS", p.Pharmacy)
}

func TestAssignExplicitDefaultPharmacyAuditLog(t *testing.T) {
	f := newFixture(t)
	f.seed(t, []drug.Type{drug.TypeGeneric}, drug.TypeGeneric)
	ctx := context.Background()

	_, err := f.pharmacy.Create(ctx, PharmacyFields{Name: "Walgreens", Address: "2 Elm St", Zip: "27601"}, "admin")
	require.NoError(t, err)

	p, err := f.rx.Create(ctx, f.newPrescription(), "", "dr-house")
	require.NoError(t, err)

	// jdoe's default pharmacy is CVS; naming it explicitly is still a
	// send to the default pharmacy.
	_, err = f.rx.Assign(ctx, p.ID, "CVS", "dr-house")
	require.NoError(t, err)
	assert.Equal(t, 1, f.logs.FilterMessage("prescription sent to default pharmacy").Len())

	other, err := f.rx.Create(ctx, f.newPrescription(), "", "dr-house")
	require.NoError(t, err)

	// A non-default target gets the plain audit entry.
	_, err = f.rx.Assign(ctx, other.ID, "Walgreens", "dr-house")
	require.NoError(t, err)
	assert.Equal(t, 1, f.logs.FilterMessage("prescription sent to default pharmacy").Len())
	assert.Equal(t, 1, f.logs.FilterMessage("prescription sent to pharmacy").Len())
}

func TestAssignNoDefaultPharmacy(t *testing.T) {
	f := newFixture(t)
	f.seed(t, []drug.Type{drug.TypeGeneric}, drug.TypeGeneric)
	ctx := context.Background()

	require.NoError(t, f.store.PutPatient(ctx, &patient.Patient{
		Username: "nodefault", Email: "n@example.com", Preference: drug.TypeGeneric,
	}))

	p := f.newPrescription()
	p.Patient = "nodefault"
	created, err := f.rx.Create(ctx, p, "", "dr-house")
	require.NoError(t, err)

	_, err = f.rx.Assign(ctx, created.ID, "", "dr-house")
	assert.True(t, errs.IsValidation(err))
}

func TestAssignUnknownPharmacy(t *testing.T) {
	f := newFixture(t)
	f.seed(t, []drug.Type{drug.TypeGeneric}, drug.TypeGeneric)
	ctx := context.Background()

	p, err := f.rx.Create(ctx, f.newPrescription(), "", "dr-house")
	require.NoError(t, err)

	_, err = f.rx.Assign(ctx, p.ID, "No Such Pharmacy", "dr-house")
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestCreateWithPharmacySendsImmediately(t *testing.T) {
	f := newFixture(t)
	f.seed(t, []drug.Type{drug.TypeGeneric}, drug.TypeGeneric)

	p, err := f.rx.Create(context.Background(), f.newPrescription(), "CVS", "dr-house")
	require.NoError(t, err)
	assert.Equal(t, prescription.StatusSentToPharmacy, p.Status)
	assert.Equal(t, "CVS", p.Pharmacy)
}

func TestFillPreferenceSatisfied(t *testing.T) {
	f := newFixture(t)
	f.seed(t, []drug.Type{drug.TypeBrandName, drug.TypeGeneric}, drug.TypeGeneric)
	ctx := context.Background()

	p, err := f.rx.Create(ctx, f.newPrescription(), "CVS", "dr-house")
	require.NoError(t, err)

	p, err = f.rx.Fill(ctx, p.ID, "CVS", "pharm-1")
	require.NoError(t, err)
	assert.Equal(t, prescription.StatusFilled, p.Status)
	assert.True(t, p.PreferenceSatisfied)
	assert.NotEmpty(t, p.FilledDrugID)

	events := f.events.all()
	require.Len(t, events, 2, "one event per committed transition")
	assert.Equal(t, prescription.StatusFilled, events[1].To)
	assert.False(t, events[1].SubstituteUsed)
}

func TestFillSubstituteFallback(t *testing.T) {
	f := newFixture(t)
	// Only the brand variant is stocked; patient prefers generic.
	f.seed(t, []drug.Type{drug.TypeBrandName}, drug.TypeGeneric)
	ctx := context.Background()

	p, err := f.rx.Create(ctx, f.newPrescription(), "CVS", "dr-house")
	require.NoError(t, err)

	p, err = f.rx.Fill(ctx, p.ID, "CVS", "pharm-1")
	require.NoError(t, err)
	assert.Equal(t, prescription.StatusFilled, p.Status)
	assert.False(t, p.PreferenceSatisfied)

	events := f.events.all()
	require.Len(t, events, 2)
	assert.True(t, events[1].SubstituteUsed)
}

func TestFillDrugNotStocked(t *testing.T) {
	f := newFixture(t)
	f.seed(t, nil, drug.TypeGeneric)
	ctx := context.Background()

	// Catalog has the code even though the pharmacy stocks nothing.
	d := drug.Drug{ID: uuid.New().String(), Code: ndc, Name: "Med", Type: drug.TypeGeneric}
	require.NoError(t, f.store.Create(ctx, &d))

	p, err := f.rx.Create(ctx, f.newPrescription(), "CVS", "dr-house")
	require.NoError(t, err)

	_, err = f.rx.Fill(ctx, p.ID, "CVS", "pharm-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrDrugNotStocked))

	// The prescription is unchanged.
	got, err := f.rx.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, prescription.StatusSentToPharmacy, got.Status)
	assert.Empty(t, got.FilledDrugID)
	assert.Len(t, f.events.all(), 1, "rejected fill emits no event")
}

func TestFillUnassignedPrescriptionDirectly(t *testing.T) {
	f := newFixture(t)
	f.seed(t, []drug.Type{drug.TypeGeneric}, drug.TypeGeneric)
	ctx := context.Background()

	p, err := f.rx.Create(ctx, f.newPrescription(), "", "dr-house")
	require.NoError(t, err)
	require.Empty(t, p.Pharmacy)

	// Walk-in fill straight from Created.
	p, err = f.rx.Fill(ctx, p.ID, "CVS", "pharm-1")
	require.NoError(t, err)
	assert.Equal(t, prescription.StatusFilled, p.Status)
	assert.Equal(t, "CVS", p.Pharmacy)

	// The walk-in joins the pharmacy's assigned set like an assignment.
	ph, err := f.pharmacy.Get(ctx, "CVS")
	require.NoError(t, err)
	assert.Contains(t, ph.PrescriptionIDs, p.ID)
}

func TestFillWrongPharmacy(t *testing.T) {
	f := newFixture(t)
	f.seed(t, []drug.Type{drug.TypeGeneric}, drug.TypeGeneric)
	ctx := context.Background()

	_, err := f.pharmacy.Create(ctx, PharmacyFields{Name: "Walgreens", Address: "2 Elm St", Zip: "27601"}, "admin")
	require.NoError(t, err)

	p, err := f.rx.Create(ctx, f.newPrescription(), "CVS", "dr-house")
	require.NoError(t, err)

	_, err = f.rx.Fill(ctx, p.ID, "Walgreens", "pharm-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrConflict))
}

func TestCancelFromActiveStatuses(t *testing.T) {
	f := newFixture(t)
	f.seed(t, []drug.Type{drug.TypeGeneric}, drug.TypeGeneric)
	ctx := context.Background()

	p, err := f.rx.Create(ctx, f.newPrescription(), "", "dr-house")
	require.NoError(t, err)
	p, err = f.rx.Cancel(ctx, p.ID, "dr-house")
	require.NoError(t, err)
	assert.Equal(t, prescription.StatusCancelled, p.Status)

	// Cancelled is terminal; a second cancel is rejected.
	_, err = f.rx.Cancel(ctx, p.ID, "dr-house")
	assert.True(t, errors.Is(err, errs.ErrInvalidTransition))
}

func TestEditTerminalPrescriptionImmutable(t *testing.T) {
	f := newFixture(t)
	f.seed(t, []drug.Type{drug.TypeGeneric}, drug.TypeGeneric)
	ctx := context.Background()

	p, err := f.rx.Create(ctx, f.newPrescription(), "CVS", "dr-house")
	require.NoError(t, err)
	p, err = f.rx.Fill(ctx, p.ID, "CVS", "pharm-1")
	require.NoError(t, err)

	edited := *f.newPrescription()
	edited.Dosage = 500
	_, err = f.rx.Edit(ctx, p.ID, EditFields{Prescription: edited}, "dr-house")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrInvalidTransition))

	// Status changes off a terminal record are rejected too.
	same := *f.newPrescription()
	_, err = f.rx.Edit(ctx, p.ID, EditFields{Prescription: same, Status: "CREATED"}, "dr-house")
	assert.True(t, errors.Is(err, errs.ErrInvalidTransition))
}

func TestEditRejectsUnknownStatus(t *testing.T) {
	f := newFixture(t)
	f.seed(t, []drug.Type{drug.TypeGeneric}, drug.TypeGeneric)
	ctx := context.Background()

	p, err := f.rx.Create(ctx, f.newPrescription(), "", "dr-house")
	require.NoError(t, err)

	_, err = f.rx.Edit(ctx, p.ID, EditFields{Prescription: *f.newPrescription(), Status: "SHIPPED"}, "dr-house")
	assert.True(t, errs.IsValidation(err))
}

func TestEditStatusTransitionEmitsEvent(t *testing.T) {
	f := newFixture(t)
	f.seed(t, []drug.Type{drug.TypeGeneric}, drug.TypeGeneric)
	ctx := context.Background()

	p, err := f.rx.Create(ctx, f.newPrescription(), "", "dr-house")
	require.NoError(t, err)

	updated, err := f.rx.Edit(ctx, p.ID, EditFields{Prescription: *f.newPrescription(), Status: "CANCELLED"}, "dr-house")
	require.NoError(t, err)
	assert.Equal(t, prescription.StatusCancelled, updated.Status)

	events := f.events.all()
	require.Len(t, events, 1)
	assert.Equal(t, prescription.StatusCreated, events[0].From)
	assert.Equal(t, prescription.StatusCancelled, events[0].To)
	assert.Equal(t, "dr-house", events[0].Actor)
}

func TestEditInvalidTransitionRejected(t *testing.T) {
	f := newFixture(t)
	f.seed(t, []drug.Type{drug.TypeGeneric}, drug.TypeGeneric)
	ctx := context.Background()

	p, err := f.rx.Create(ctx, f.newPrescription(), "CVS", "dr-house")
	require.NoError(t, err)

	// SENT_TO_PHARMACY -> CREATED is not in the graph.
	_, err = f.rx.Edit(ctx, p.ID, EditFields{Prescription: *f.newPrescription(), Status: "CREATED"}, "dr-house")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrInvalidTransition))

	got, err := f.rx.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, prescription.StatusSentToPharmacy, got.Status, "rejected transition changes nothing")
}

func TestListForPatient(t *testing.T) {
	f := newFixture(t)
	f.seed(t, []drug.Type{drug.TypeGeneric}, drug.TypeGeneric)
	ctx := context.Background()

	_, err := f.rx.Create(ctx, f.newPrescription(), "", "dr-house")
	require.NoError(t, err)

	other := f.newPrescription()
	other.Patient = "asmith"
	_, err = f.rx.Create(ctx, other, "", "dr-house")
	require.NoError(t, err)

	mine, err := f.rx.ListForPatient(ctx, "jdoe")
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	all, err := f.rx.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestDeletePrescription(t *testing.T) {
	f := newFixture(t)
	f.seed(t, []drug.Type{drug.TypeGeneric}, drug.TypeGeneric)
	ctx := context.Background()

	p, err := f.rx.Create(ctx, f.newPrescription(), "", "dr-house")
	require.NoError(t, err)

	require.NoError(t, f.rx.Delete(ctx, p.ID, "dr-house"))
	_, err = f.rx.Get(ctx, p.ID)
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}
