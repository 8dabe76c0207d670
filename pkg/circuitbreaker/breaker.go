// Package circuitbreaker wraps sony/gobreaker for calls to external
// delivery services. The breaker keeps a failing relay from stalling
// every notification lane behind its timeout.
package circuitbreaker

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// State represents the breaker state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// ErrOpen is returned when the circuit rejects a call without trying it.
var ErrOpen = errors.New("circuit open")

// Config holds breaker configuration.
type Config struct {
	// Name identifies the breaker in logs.
	Name string
	// MaxRequests is max probe requests allowed while half-open.
	MaxRequests uint32
	// Interval is the cyclic period for clearing counts while closed.
	Interval time.Duration
	// Timeout is how long to stay open before probing.
	Timeout time.Duration
	// FailureThreshold opens the circuit after this many consecutive
	// failures when too few requests exist for the ratio to apply.
	FailureThreshold uint32
	// FailureRatio opens the circuit once MinRequests have been seen.
	FailureRatio float64
	// MinRequests is the minimum sample before FailureRatio applies.
	MinRequests uint32
}

// DefaultConfig returns defaults tuned for notification delivery.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		MaxRequests:      3,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		FailureRatio:     0.6,
		MinRequests:      10,
	}
}

// Breaker wraps gobreaker with logging.
type Breaker struct {
	cb     *gobreaker.CircuitBreaker
	name   string
	logger *zap.Logger
}

// New creates a breaker.
func New(cfg Config, logger *zap.Logger) (*Breaker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Breaker{name: cfg.Name, logger: logger}

	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return counts.ConsecutiveFailures >= cfg.FailureThreshold
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", string(mapState(from))),
				zap.String("to", string(mapState(to))))
		},
	})
	return b, nil
}

// Execute runs fn through the breaker. When the circuit is open the
// call is rejected immediately with ErrOpen.
func (b *Breaker) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrOpen
	}
	return err
}

// GetState returns the current breaker state.
func (b *Breaker) GetState() State {
	return mapState(b.cb.State())
}

// IsOpen reports whether the circuit is open.
func (b *Breaker) IsOpen() bool { return b.GetState() == StateOpen }

// Counts returns the breaker's rolling counts.
func (b *Breaker) Counts() gobreaker.Counts { return b.cb.Counts() }

func mapState(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}
