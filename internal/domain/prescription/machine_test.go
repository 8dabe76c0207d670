package prescription

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/rxcore/internal/errs"
)

func TestTransitionGraph(t *testing.T) {
	cases := []struct {
		from, to Status
		allowed  bool
	}{
		{StatusCreated, StatusSentToPharmacy, true},
		{StatusCreated, StatusFilled, true},
		{StatusCreated, StatusCancelled, true},
		{StatusSentToPharmacy, StatusFilled, true},
		{StatusSentToPharmacy, StatusCancelled, true},
		{StatusSentToPharmacy, StatusCreated, false},
		{StatusFilled, StatusCancelled, false},
		{StatusFilled, StatusCreated, false},
		{StatusFilled, StatusSentToPharmacy, false},
		{StatusCancelled, StatusFilled, false},
		{StatusCancelled, StatusCreated, false},
		{StatusCreated, StatusCreated, false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.allowed, CanTransition(tc.from, tc.to),
			"%s -> %s", tc.from, tc.to)
	}
}

func TestCheckTransitionError(t *testing.T) {
	err := CheckTransition(StatusFilled, StatusCancelled)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrInvalidTransition))

	assert.NoError(t, CheckTransition(StatusCreated, StatusSentToPharmacy))
}

func TestTerminal(t *testing.T) {
	assert.False(t, StatusCreated.Terminal())
	assert.False(t, StatusSentToPharmacy.Terminal())
	assert.True(t, StatusFilled.Terminal())
	assert.True(t, StatusCancelled.Terminal())
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("SENT_TO_PHARMACY")
	require.NoError(t, err)
	assert.Equal(t, StatusSentToPharmacy, s)

	// Display names resolve too.
	s, err = ParseStatus("Sent")
	require.NoError(t, err)
	assert.Equal(t, StatusSentToPharmacy, s)

	// Unknown input is a validation failure, not a silent default.
	_, err = ParseStatus("SHIPPED")
	require.Error(t, err)
	assert.True(t, errs.IsValidation(err))
}

func TestStatusDisplayNames(t *testing.T) {
	assert.Equal(t, "Created", StatusCreated.DisplayName())
	assert.Equal(t, "Sent", StatusSentToPharmacy.DisplayName())
	assert.Equal(t, "Filled", StatusFilled.DisplayName())
	assert.Equal(t, "Cancelled", StatusCancelled.DisplayName())
}
