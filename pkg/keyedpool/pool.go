// Package keyedpool provides a bounded worker pool that preserves
// per-key ordering: tasks sharing a key run on the same lane in
// submission order, while distinct keys run concurrently.
package keyedpool

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Task is a unit of work bound to an ordering key.
type Task struct {
	ID      string
	Key     string
	Payload interface{}
}

// WorkerFunc processes one task. A returned error counts the task as
// failed; the pool does not retry, callers own their retry policy.
type WorkerFunc func(ctx context.Context, task *Task) error

// Config holds pool configuration.
type Config struct {
	// Lanes is the number of ordered lanes. Keys are hashed onto lanes,
	// so two keys may share one; ordering within a key always holds.
	Lanes int
	// QueueSize is the per-lane queue depth.
	QueueSize int
	// GracefulShutdownTimeout bounds Stop.
	GracefulShutdownTimeout time.Duration
}

// DefaultConfig returns defaults sized for notification dispatch.
func DefaultConfig() Config {
	return Config{
		Lanes:                   16,
		QueueSize:               1024,
		GracefulShutdownTimeout: 30 * time.Second,
	}
}

// Pool runs tasks on keyed lanes.
type Pool struct {
	config     Config
	workerFunc WorkerFunc
	logger     *zap.Logger

	lanes []chan *Task
	wg    sync.WaitGroup

	// mu orders Submit against Stop: lanes are only closed once no
	// submitter holds a read lock, so a send never races a close.
	mu      sync.RWMutex
	stopped bool

	tasksSubmitted int64
	tasksCompleted int64
	tasksFailed    int64
}

// New creates a keyed pool.
func New(cfg Config, fn WorkerFunc, logger *zap.Logger) (*Pool, error) {
	if fn == nil {
		return nil, fmt.Errorf("worker function is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Lanes <= 0 {
		cfg.Lanes = DefaultConfig().Lanes
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.GracefulShutdownTimeout <= 0 {
		cfg.GracefulShutdownTimeout = DefaultConfig().GracefulShutdownTimeout
	}

	lanes := make([]chan *Task, cfg.Lanes)
	for i := range lanes {
		lanes[i] = make(chan *Task, cfg.QueueSize)
	}

	return &Pool{
		config:     cfg,
		workerFunc: fn,
		logger:     logger,
		lanes:      lanes,
	}, nil
}

// Start launches one worker per lane.
func (p *Pool) Start() {
	for i := range p.lanes {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.Info("keyed pool started",
		zap.Int("lanes", p.config.Lanes),
		zap.Int("queue_size", p.config.QueueSize))
}

// Submit enqueues a task on the lane its key hashes to, blocking while
// the lane is full so ordering is never traded for drops.
func (p *Pool) Submit(ctx context.Context, task *Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return fmt.Errorf("pool is shutting down")
	}

	lane := p.lanes[p.laneFor(task.Key)]
	select {
	case lane <- task:
		atomic.AddInt64(&p.tasksSubmitted, 1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop drains the lanes and waits for in-flight tasks.
func (p *Pool) Stop() error {
	p.logger.Info("stopping keyed pool")
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		for _, lane := range p.lanes {
			close(lane)
		}
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("keyed pool stopped gracefully")
	case <-time.After(p.config.GracefulShutdownTimeout):
		p.logger.Warn("keyed pool shutdown timed out")
	}
	return nil
}

func (p *Pool) laneFor(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(p.lanes)))
}

func (p *Pool) worker(lane int) {
	defer p.wg.Done()

	for task := range p.lanes[lane] {
		if err := p.workerFunc(context.Background(), task); err != nil {
			atomic.AddInt64(&p.tasksFailed, 1)
			p.logger.Error("task failed",
				zap.String("task_id", task.ID),
				zap.String("key", task.Key),
				zap.Int("lane", lane),
				zap.Error(err))
			continue
		}
		atomic.AddInt64(&p.tasksCompleted, 1)
	}
}

// Stats reports counters since start.
type Stats struct {
	TasksSubmitted int64
	TasksCompleted int64
	TasksFailed    int64
	Lanes          int
	QueueCapacity  int
}

// Stats returns current pool statistics.
func (p *Pool) Stats() Stats {
	return Stats{
		TasksSubmitted: atomic.LoadInt64(&p.tasksSubmitted),
		TasksCompleted: atomic.LoadInt64(&p.tasksCompleted),
		TasksFailed:    atomic.LoadInt64(&p.tasksFailed),
		Lanes:          p.config.Lanes,
		QueueCapacity:  p.config.QueueSize,
	}
}
