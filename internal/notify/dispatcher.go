package notify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/clinicore/rxcore/internal/domain/prescription"
	"github.com/clinicore/rxcore/internal/errs"
	"github.com/clinicore/rxcore/internal/observability/metrics"
	"github.com/clinicore/rxcore/internal/patient"
	"github.com/clinicore/rxcore/pkg/circuitbreaker"
	"github.com/clinicore/rxcore/pkg/keyedpool"
)

// Dispatcher consumes transition events and delivers patient
// notifications. Events are processed on per-patient lanes so one
// patient's notifications arrive in transition order; patients without
// an email address are skipped silently (counted, never an error).
type Dispatcher struct {
	patients patient.Directory
	sender   Sender
	breaker  *circuitbreaker.Breaker
	pool     *keyedpool.Pool
	timeout  time.Duration
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// Config holds dispatcher configuration.
type Config struct {
	// SendTimeout bounds one delivery attempt.
	SendTimeout time.Duration
	// Pool configures the keyed lanes; zero values take defaults.
	Pool keyedpool.Config
}

// NewDispatcher creates the dispatcher. m may be nil in tests.
func NewDispatcher(cfg Config, patients patient.Directory, sender Sender, m *metrics.Metrics, logger *zap.Logger) (*Dispatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}

	d := &Dispatcher{
		patients: patients,
		sender:   sender,
		timeout:  cfg.SendTimeout,
		metrics:  m,
		logger:   logger,
	}

	breaker, err := circuitbreaker.New(circuitbreaker.DefaultConfig("notification-sender"), logger)
	if err != nil {
		return nil, err
	}
	d.breaker = breaker

	pool, err := keyedpool.New(cfg.Pool, d.handle, logger)
	if err != nil {
		return nil, err
	}
	d.pool = pool
	return d, nil
}

// Start launches the delivery lanes.
func (d *Dispatcher) Start() { d.pool.Start() }

// Stop drains in-flight notifications.
func (d *Dispatcher) Stop() error { return d.pool.Stop() }

// Enqueue schedules delivery for one committed transition event. Events
// for the same patient share a lane and deliver in submission order.
func (d *Dispatcher) Enqueue(ctx context.Context, ev prescription.TransitionEvent) error {
	return d.pool.Submit(ctx, &keyedpool.Task{
		ID:      ev.EventID,
		Key:     ev.Patient,
		Payload: ev,
	})
}

func (d *Dispatcher) handle(ctx context.Context, task *keyedpool.Task) error {
	ev, ok := task.Payload.(prescription.TransitionEvent)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", task.Payload)
	}
	return d.Deliver(ctx, ev)
}

// Deliver sends the notification for one event synchronously. A
// delivery failure is absorbed: it is logged and counted but the error
// returned wraps ErrDelivery so callers can tell it apart; the
// underlying transition stays committed regardless.
func (d *Dispatcher) Deliver(ctx context.Context, ev prescription.TransitionEvent) error {
	tmpl, ok := TemplateFor(ev)
	if !ok {
		// Sending to a pharmacy is informational only, no email.
		if ev.To == prescription.StatusSentToPharmacy {
			d.logger.Info("prescription sent to pharmacy",
				zap.String("patient", ev.Patient),
				zap.String("prescription", ev.PrescriptionID),
				zap.String("event", ev.EventID),
			)
		}
		return nil
	}

	pat, err := d.patients.Get(ctx, ev.Patient)
	if err != nil {
		d.metrics.IncNotificationFailed()
		return fmt.Errorf("lookup patient %q: %w", ev.Patient, err)
	}
	if pat.Email == "" {
		d.metrics.IncNotificationSkipped()
		d.logger.Debug("notification skipped, patient has no email",
			zap.String("patient", ev.Patient),
			zap.String("event", ev.EventID),
		)
		return nil
	}

	subject, body := Render(tmpl, ev)
	msg := Message{To: pat.Email, Subject: subject, Body: body}

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	err = d.breaker.Execute(sendCtx, func() error {
		return d.sender.Send(sendCtx, msg)
	})
	if err != nil {
		d.metrics.IncNotificationFailed()
		d.logger.Warn("notification delivery failed",
			zap.String("patient", ev.Patient),
			zap.String("template", string(tmpl)),
			zap.String("event", ev.EventID),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %v", errs.ErrDelivery, err)
	}

	d.metrics.IncNotificationSent()
	d.logger.Info("notification sent",
		zap.String("patient", ev.Patient),
		zap.String("template", string(tmpl)),
		zap.String("event", ev.EventID),
	)
	return nil
}
