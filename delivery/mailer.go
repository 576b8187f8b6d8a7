package delivery

import (
	"context"

	"go.uber.org/zap"

	"mailservice/internal/email"
	"mailservice/internal/metrics"
)

// Transport performs a single SMTP transaction. *Client implements it.
type Transport interface {
	Attempt(ctx context.Context, recipients []string, subject, body string) error
}

// Mailer is the entry point shared by the synchronous path and the queue
// worker: configuration check, then Transport wrapped in a RetryPolicy.
type Mailer struct {
	configured bool
	transport  Transport
	policy     RetryPolicy
	log        *zap.Logger
}

// NewMailer returns a Mailer. configured=false makes every Send fail with
// ErrNotConfigured without touching transport.
func NewMailer(configured bool, transport Transport, policy RetryPolicy, log *zap.Logger) *Mailer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Mailer{
		configured: configured,
		transport:  transport,
		policy:     policy,
		log:        log,
	}
}

// Send delivers task, retrying transient SMTP failures.
func (m *Mailer) Send(ctx context.Context, task email.Task) error {
	if !m.configured {
		return ErrNotConfigured
	}
	if err := task.Validate(); err != nil {
		return err
	}
	return m.policy.Do(ctx, func(ctx context.Context, try int) error {
		metrics.DeliveryTries.Inc()
		err := m.transport.Attempt(ctx, task.Recipients, task.Subject, task.Body)
		if err != nil {
			m.log.Warn("smtp attempt failed",
				zap.String("task_id", task.ID),
				zap.Int("try", try),
				zap.Int("max_tries", m.policy.Attempts),
				zap.Error(err))
		}
		return err
	})
}
