package keyedpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPerKeyOrdering(t *testing.T) {
	var mu sync.Mutex
	seen := map[string][]string{}

	fn := func(ctx context.Context, task *Task) error {
		mu.Lock()
		defer mu.Unlock()
		seen[task.Key] = append(seen[task.Key], task.ID)
		return nil
	}

	pool, err := New(Config{Lanes: 4, QueueSize: 64}, fn, nil)
	require.NoError(t, err)
	pool.Start()

	ctx := context.Background()
	keys := []string{"alice", "bob", "carol"}
	const perKey = 50
	for i := 0; i < perKey; i++ {
		for _, key := range keys {
			require.NoError(t, pool.Submit(ctx, &Task{
				ID:  fmt.Sprintf("%s-%03d", key, i),
				Key: key,
			}))
		}
	}
	require.NoError(t, pool.Stop())

	for _, key := range keys {
		ids := seen[key]
		require.Len(t, ids, perKey, "key %s", key)
		for i, id := range ids {
			assert.Equal(t, fmt.Sprintf("%s-%03d", key, i), id,
				"key %s delivered out of order", key)
		}
	}
}

func TestFailedTaskDoesNotStallLane(t *testing.T) {
	var mu sync.Mutex
	var processed []string

	fn := func(ctx context.Context, task *Task) error {
		mu.Lock()
		defer mu.Unlock()
		processed = append(processed, task.ID)
		if task.ID == "bad" {
			return errors.New("boom")
		}
		return nil
	}

	pool, err := New(Config{Lanes: 1, QueueSize: 8}, fn, nil)
	require.NoError(t, err)
	pool.Start()

	ctx := context.Background()
	for _, id := range []string{"first", "bad", "last"} {
		require.NoError(t, pool.Submit(ctx, &Task{ID: id, Key: "k"}))
	}
	require.NoError(t, pool.Stop())

	assert.Equal(t, []string{"first", "bad", "last"}, processed)

	stats := pool.Stats()
	assert.Equal(t, int64(3), stats.TasksSubmitted)
	assert.Equal(t, int64(2), stats.TasksCompleted)
	assert.Equal(t, int64(1), stats.TasksFailed)
}

func TestSubmitAfterStop(t *testing.T) {
	pool, err := New(Config{Lanes: 1, QueueSize: 1}, func(ctx context.Context, task *Task) error {
		return nil
	}, nil)
	require.NoError(t, err)
	pool.Start()
	require.NoError(t, pool.Stop())

	err = pool.Submit(context.Background(), &Task{ID: "late", Key: "k"})
	assert.Error(t, err)
}

func TestSubmitHonorsCallerContext(t *testing.T) {
	block := make(chan struct{})
	fn := func(ctx context.Context, task *Task) error {
		<-block
		return nil
	}

	pool, err := New(Config{Lanes: 1, QueueSize: 1}, fn, nil)
	require.NoError(t, err)
	pool.Start()
	defer func() {
		close(block)
		_ = pool.Stop()
	}()

	ctx := context.Background()
	// Fill the worker and the queue.
	require.NoError(t, pool.Submit(ctx, &Task{ID: "a", Key: "k"}))
	require.NoError(t, pool.Submit(ctx, &Task{ID: "b", Key: "k"}))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err = pool.Submit(cancelled, &Task{ID: "c", Key: "k"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConcurrentSubmitDuringStop(t *testing.T) {
	pool, err := New(Config{Lanes: 2, QueueSize: 4}, func(ctx context.Context, task *Task) error {
		return nil
	}, nil)
	require.NoError(t, err)
	pool.Start()

	// Submitters race Stop; every Submit must either enqueue or report
	// shutdown, never panic on a closed lane.
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; ; i++ {
				task := &Task{ID: fmt.Sprintf("%d-%d", g, i), Key: fmt.Sprintf("key-%d", g)}
				if err := pool.Submit(context.Background(), task); err != nil {
					assert.EqualError(t, err, "pool is shutting down")
					return
				}
			}
		}(g)
	}

	require.NoError(t, pool.Stop())
	wg.Wait()

	stats := pool.Stats()
	assert.Equal(t, stats.TasksSubmitted, stats.TasksCompleted,
		"every accepted task ran")
}

func TestNewRequiresWorkerFunc(t *testing.T) {
	_, err := New(Config{}, nil, nil)
	assert.Error(t, err)
}
