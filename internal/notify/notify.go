// Package notify turns committed prescription transition events into
// patient notifications. Delivery failures are absorbed: the transition
// that caused the notification has already been committed and is never
// rolled back or retried because an email bounced.
package notify

import (
	"context"
	"time"
)

// Message is one rendered notification.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers a rendered message. Implementations must honor ctx
// cancellation; the dispatcher bounds every delivery with a timeout.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, msg Message) error

// Send implements Sender.
func (f SenderFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// DefaultSendTimeout bounds one delivery attempt when the dispatcher is
// configured with a zero timeout.
const DefaultSendTimeout = 10 * time.Second
