package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		Name:             "test",
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		FailureThreshold: 3,
		FailureRatio:     0.6,
		MinRequests:      10,
	}
}

func TestExecutePassesThrough(t *testing.T) {
	b, err := New(testConfig(), nil)
	require.NoError(t, err)

	assert.NoError(t, b.Execute(context.Background(), func() error { return nil }))

	boom := errors.New("boom")
	err = b.Execute(context.Background(), func() error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StateClosed, b.GetState())
}

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	b, err := New(testConfig(), nil)
	require.NoError(t, err)

	boom := errors.New("boom")
	for i := 0; i < 3; i++ {
		_ = b.Execute(context.Background(), func() error { return boom })
	}
	assert.True(t, b.IsOpen())

	// Open circuit rejects without invoking fn.
	called := false
	err = b.Execute(context.Background(), func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestSuccessResetsConsecutiveCount(t *testing.T) {
	b, err := New(testConfig(), nil)
	require.NoError(t, err)

	boom := errors.New("boom")
	for i := 0; i < 2; i++ {
		_ = b.Execute(context.Background(), func() error { return boom })
	}
	require.NoError(t, b.Execute(context.Background(), func() error { return nil }))

	for i := 0; i < 2; i++ {
		_ = b.Execute(context.Background(), func() error { return boom })
	}
	assert.Equal(t, StateClosed, b.GetState(), "streak was broken, circuit stays closed")
}

func TestExecuteHonorsContext(t *testing.T) {
	b, err := New(testConfig(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err = b.Execute(ctx, func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
