package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/rxcore/internal/domain/drug"
	"github.com/clinicore/rxcore/internal/errs"
	"github.com/clinicore/rxcore/internal/storage/memory"
)

func newPharmacyFixture(t *testing.T) (*PharmacyService, *memory.Store) {
	t.Helper()
	store := memory.New(nil)
	svc := NewPharmacyService(store.Pharmacies(), store.Drugs(), store.Prescriptions(), nil)
	return svc, store
}

func addDrug(t *testing.T, store *memory.Store, name string, typ drug.Type) drug.Drug {
	t.Helper()
	d := drug.Drug{
		ID:   uuid.New().String(),
		Code: "1234-5678-90",
		Name: name,
		Type: typ,
	}
	require.NoError(t, store.Create(context.Background(), &d))
	return d
}

func TestPharmacyCreateAndGet(t *testing.T) {
	svc, _ := newPharmacyFixture(t)
	ctx := context.Background()

	p, err := svc.Create(ctx, PharmacyFields{Name: "CVS", Address: "1 Main St", Zip: "27601"}, "admin")
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Empty(t, p.Drugs, "new pharmacies start with empty stock")

	got, err := svc.Get(ctx, "CVS")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
}

func TestPharmacyDuplicateNameConflict(t *testing.T) {
	svc, _ := newPharmacyFixture(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, PharmacyFields{Name: "CVS", Address: "1 Main St", Zip: "27601"}, "admin")
	require.NoError(t, err)

	_, err = svc.Create(ctx, PharmacyFields{Name: "CVS", Address: "2 Elm St", Zip: "27601"}, "admin")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrConflict))
}

func TestPharmacyValidation(t *testing.T) {
	svc, _ := newPharmacyFixture(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, PharmacyFields{Name: "", Address: "1 Main St", Zip: "27601"}, "admin")
	assert.True(t, errs.IsValidation(err))

	_, err = svc.Create(ctx, PharmacyFields{Name: "CVS", Address: "", Zip: "27601"}, "admin")
	assert.True(t, errs.IsValidation(err))

	_, err = svc.Create(ctx, PharmacyFields{Name: "CVS", Address: "1 Main St", Zip: "123"}, "admin")
	assert.True(t, errs.IsValidation(err))
}

func TestPharmacyRenameCarriesSets(t *testing.T) {
	svc, store := newPharmacyFixture(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, PharmacyFields{Name: "CVS", Address: "1 Main St", Zip: "27601"}, "admin")
	require.NoError(t, err)

	d := addDrug(t, store, "Acetaminophen", drug.TypeGeneric)
	_, err = svc.SetStockedDrugs(ctx, "CVS", []string{d.ID}, "admin")
	require.NoError(t, err)

	renamed, err := svc.Update(ctx, "CVS", PharmacyFields{Name: "CVS Minute Clinic"}, "admin")
	require.NoError(t, err)
	assert.Equal(t, "CVS Minute Clinic", renamed.Name)

	// Old name stops resolving; new name carries the stock.
	_, err = svc.Get(ctx, "CVS")
	assert.True(t, errors.Is(err, errs.ErrNotFound))

	got, err := svc.Get(ctx, "CVS Minute Clinic")
	require.NoError(t, err)
	require.Len(t, got.Drugs, 1)
	assert.Equal(t, d.ID, got.Drugs[0].ID)
}

func TestPharmacyRenameOntoTakenName(t *testing.T) {
	svc, _ := newPharmacyFixture(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, PharmacyFields{Name: "CVS", Address: "1 Main St", Zip: "27601"}, "admin")
	require.NoError(t, err)
	_, err = svc.Create(ctx, PharmacyFields{Name: "Walgreens", Address: "2 Elm St", Zip: "27601"}, "admin")
	require.NoError(t, err)

	_, err = svc.Update(ctx, "CVS", PharmacyFields{Name: "Walgreens"}, "admin")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrConflict))
}

func TestSetStockedDrugsBatchRejection(t *testing.T) {
	svc, store := newPharmacyFixture(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, PharmacyFields{Name: "CVS", Address: "1 Main St", Zip: "27601"}, "admin")
	require.NoError(t, err)

	d := addDrug(t, store, "Acetaminophen", drug.TypeGeneric)

	// One unknown id rejects the whole batch.
	_, err = svc.SetStockedDrugs(ctx, "CVS", []string{d.ID, "no-such-drug"}, "admin")
	require.Error(t, err)
	assert.True(t, errs.IsValidation(err))

	got, err := svc.Get(ctx, "CVS")
	require.NoError(t, err)
	assert.Empty(t, got.Drugs, "failed batch must apply nothing")
}

func TestStockAndPrescriptionSetsIndependent(t *testing.T) {
	svc, store := newPharmacyFixture(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, PharmacyFields{Name: "CVS", Address: "1 Main St", Zip: "27601"}, "admin")
	require.NoError(t, err)

	d := addDrug(t, store, "Acetaminophen", drug.TypeGeneric)
	_, err = svc.SetStockedDrugs(ctx, "CVS", []string{d.ID}, "admin")
	require.NoError(t, err)

	// Replacing the (empty) prescription set leaves the stock alone.
	got, err := svc.SetPrescriptions(ctx, "CVS", nil, "admin")
	require.NoError(t, err)
	assert.Len(t, got.Drugs, 1)
	assert.Empty(t, got.PrescriptionIDs)

	// And replacing the stock leaves prescriptions alone.
	got, err = svc.SetStockedDrugs(ctx, "CVS", nil, "admin")
	require.NoError(t, err)
	assert.Empty(t, got.Drugs)
}

func TestPharmacyConcurrentWriteConflict(t *testing.T) {
	svc, store := newPharmacyFixture(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, PharmacyFields{Name: "CVS", Address: "1 Main St", Zip: "27601"}, "admin")
	require.NoError(t, err)

	// Two readers take the same version; the second writer loses.
	first, err := store.GetByName(ctx, "CVS")
	require.NoError(t, err)
	second, err := store.GetByName(ctx, "CVS")
	require.NoError(t, err)

	first.Address = "100 First St"
	require.NoError(t, store.UpdatePharmacy(ctx, first))

	second.Address = "200 Second St"
	err = store.UpdatePharmacy(ctx, second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrConflict))

	got, err := svc.Get(ctx, "CVS")
	require.NoError(t, err)
	assert.Equal(t, "100 First St", got.Address)
	assert.Equal(t, created.ID, got.ID)
}

func TestPharmacyDelete(t *testing.T) {
	svc, _ := newPharmacyFixture(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, PharmacyFields{Name: "CVS", Address: "1 Main St", Zip: "27601"}, "admin")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, "CVS", "admin"))

	_, err = svc.Get(ctx, "CVS")
	assert.True(t, errors.Is(err, errs.ErrNotFound))

	err = svc.Delete(ctx, "CVS", "admin")
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestGetByZip(t *testing.T) {
	svc, _ := newPharmacyFixture(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, PharmacyFields{Name: "CVS", Address: "1 Main St", Zip: "27601"}, "admin")
	require.NoError(t, err)
	_, err = svc.Create(ctx, PharmacyFields{Name: "Walgreens", Address: "2 Elm St", Zip: "90210"}, "admin")
	require.NoError(t, err)

	out, err := svc.GetByZip(ctx, "27601")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "CVS", out[0].Name)

	out, err = svc.GetByZip(ctx, "00000")
	require.NoError(t, err)
	assert.Empty(t, out)
}
