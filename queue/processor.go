package queue

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mailservice/internal/audit"
	"mailservice/internal/email"
	"mailservice/internal/metrics"
)

// Delivery paths, used in logs and metrics.
const (
	PathSync  = "sync"
	PathQueue = "queue"
)

// Sender delivers a task, retries included. *delivery.Mailer implements it.
type Sender interface {
	Send(ctx context.Context, task email.Task) error
}

// Processor runs one delivery attempt for a task and appends its outcome to
// the audit log. The synchronous path and the Worker share it.
type Processor struct {
	sender   Sender
	recorder audit.Recorder
	log      *zap.Logger
	now      func() time.Time
}

// NewProcessor returns a Processor. log may be nil.
func NewProcessor(sender Sender, recorder audit.Recorder, log *zap.Logger) *Processor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Processor{sender: sender, recorder: recorder, log: log, now: time.Now}
}

// Process delivers task and records the outcome, one audit row per
// recipient. sendErr is the delivery result; auditErr reports a failed
// audit write and never changes sendErr.
func (p *Processor) Process(ctx context.Context, path string, task email.Task) (sendErr, auditErr error) {
	log := p.log.With(zap.String("task_id", task.ID), zap.String("path", path))

	sendErr = p.send(ctx, task)
	metrics.ObserveDelivery(path, sendErr == nil)

	var entry audit.Entry
	if sendErr == nil {
		log.Info("message delivered", zap.Int("recipients", len(task.Recipients)))
		entry = audit.Succeeded(task, p.now())
	} else {
		log.Error("message delivery failed", zap.Error(sendErr))
		entry = audit.Failed(task, sendErr, p.now())
	}

	if auditErr = p.record(ctx, entry); auditErr != nil {
		metrics.AuditFailures.Inc()
		log.Error("audit write failed", zap.Bool("success", entry.Success), zap.Error(auditErr))
	}
	return sendErr, auditErr
}

func (p *Processor) send(ctx context.Context, task email.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("delivery panic: %v", r)
		}
	}()
	return p.sender.Send(ctx, task)
}

func (p *Processor) record(ctx context.Context, entry audit.Entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("audit panic: %v", r)
		}
	}()
	return p.recorder.Record(ctx, entry)
}
