package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"mailservice/internal/email"
)

type scriptedTransport struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (s *scriptedTransport) Attempt(ctx context.Context, recipients []string, subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failures {
		return wrap("dial", fmt.Errorf("failure %d", s.calls))
	}
	return nil
}

func instantPolicy(slept *[]time.Duration) RetryPolicy {
	p := DefaultRetryPolicy()
	p.Sleep = func(_ context.Context, d time.Duration) error {
		if slept != nil {
			*slept = append(*slept, d)
		}
		return nil
	}
	return p
}

var sampleTask = email.Task{ID: "t1", Recipients: []string{"a@x.com"}, Subject: "S", Body: "B"}

func TestMailerRetriesThenSucceeds(t *testing.T) {
	var slept []time.Duration
	transport := &scriptedTransport{failures: 2}
	m := NewMailer(true, transport, instantPolicy(&slept), nil)

	if err := m.Send(context.Background(), sampleTask); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if transport.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", transport.calls)
	}
	if len(slept) != 2 || slept[0] != time.Second || slept[1] != 2*time.Second {
		t.Fatalf("expected backoff [1s 2s], got %v", slept)
	}
}

func TestMailerExhaustsRetries(t *testing.T) {
	transport := &scriptedTransport{failures: 10}
	m := NewMailer(true, transport, instantPolicy(nil), nil)

	err := m.Send(context.Background(), sampleTask)
	if err == nil || err.Error() != "SMTP error: dial: failure 3" {
		t.Fatalf("expected the third failure to surface, got %v", err)
	}
	if transport.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", transport.calls)
	}
}

func TestMailerNotConfigured(t *testing.T) {
	transport := &scriptedTransport{}
	m := NewMailer(false, transport, instantPolicy(nil), nil)

	if err := m.Send(context.Background(), sampleTask); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if transport.calls != 0 {
		t.Fatalf("expected zero attempts, got %d", transport.calls)
	}
}

func TestMailerRejectsInvalidTask(t *testing.T) {
	transport := &scriptedTransport{}
	m := NewMailer(true, transport, instantPolicy(nil), nil)

	if err := m.Send(context.Background(), email.Task{Subject: "S", Body: "B"}); !errors.Is(err, email.ErrNoRecipients) {
		t.Fatalf("expected ErrNoRecipients, got %v", err)
	}
	if transport.calls != 0 {
		t.Fatalf("expected zero attempts, got %d", transport.calls)
	}
}
