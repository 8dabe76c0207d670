package idempotency

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryInboxDeduplicates(t *testing.T) {
	inbox := NewMemoryInbox()
	ctx := context.Background()

	calls := 0
	fn := func(ctx context.Context) error {
		calls++
		return nil
	}

	ran, err := inbox.Process(ctx, "ev-1", "notifier", fn)
	require.NoError(t, err)
	assert.True(t, ran)

	ran, err = inbox.Process(ctx, "ev-1", "notifier", fn)
	require.NoError(t, err)
	assert.False(t, ran, "redelivery of a processed event is skipped")
	assert.Equal(t, 1, calls)
}

func TestMemoryInboxScopedByHandler(t *testing.T) {
	inbox := NewMemoryInbox()
	ctx := context.Background()

	ran, err := inbox.Process(ctx, "ev-1", "notifier", func(ctx context.Context) error { return nil })
	require.NoError(t, err)
	require.True(t, ran)

	// The same event id under another handler is a fresh delivery.
	ran, err = inbox.Process(ctx, "ev-1", "audit", func(ctx context.Context) error { return nil })
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestMemoryInboxFailureLeavesNoRecord(t *testing.T) {
	inbox := NewMemoryInbox()
	ctx := context.Background()

	boom := errors.New("boom")
	_, err := inbox.Process(ctx, "ev-1", "notifier", func(ctx context.Context) error { return boom })
	require.ErrorIs(t, err, boom)

	// The retry runs because the failed attempt was not recorded.
	ran, err := inbox.Process(ctx, "ev-1", "notifier", func(ctx context.Context) error { return nil })
	require.NoError(t, err)
	assert.True(t, ran)
}
