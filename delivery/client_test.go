package delivery

import (
	"context"
	"errors"
	"strings"
	"testing"

	"mailservice/internal/config"
)

func testConfig(port int, mode config.TLSMode) config.Config {
	return config.Config{
		SMTPServer:         "127.0.0.1",
		SMTPPort:           port,
		SMTPTLSMode:        string(mode),
		SMTPTimeoutSeconds: 5,
		SMTPHostname:       "client.test",
		SMTPFrom:           "sender@example.com",
		SMTPInsecureTLS:    true,
	}
}

func newTestClient(t *testing.T, cfg config.Config) *Client {
	t.Helper()
	client, err := NewClient(cfg, nil)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	return client
}

func TestAttemptPlainSuccess(t *testing.T) {
	srv := newFakeServer(t)
	client := newTestClient(t, testConfig(srv.port(), config.TLSModeNone))

	err := client.Attempt(context.Background(), []string{"a@x.com", "b@x.com"}, "S", "Hello body")
	if err != nil {
		t.Fatalf("Attempt returned error: %v", err)
	}

	cmds := srv.Commands()
	want := []string{
		"EHLO client.test",
		"MAIL FROM:<sender@example.com>",
		"RCPT TO:<a@x.com>",
		"RCPT TO:<b@x.com>",
		"DATA",
		"QUIT",
	}
	if len(cmds) != len(want) {
		t.Fatalf("unexpected command sequence %s", commandSummary(cmds))
	}
	for i := range want {
		if cmds[i] != want[i] {
			t.Fatalf("command %d = %q, want %q (all: %s)", i, cmds[i], want[i], commandSummary(cmds))
		}
	}

	msgs := srv.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(msgs))
	}
	for _, part := range []string{"Subject: S", "From: sender@example.com", "To: a@x.com, b@x.com", "Hello body"} {
		if !strings.Contains(msgs[0], part) {
			t.Fatalf("expected message to contain %q, got %q", part, msgs[0])
		}
	}
}

func TestAttemptStartTLS(t *testing.T) {
	srv := newFakeServer(t, withStartTLS(t))
	cfg := testConfig(srv.port(), config.TLSModeStartTLS)
	cfg.SMTPUsername = "user@example.com"
	cfg.SMTPPassword = "secret"
	client := newTestClient(t, cfg)

	if err := client.Attempt(context.Background(), []string{"a@x.com"}, "S", "B"); err != nil {
		t.Fatalf("Attempt returned error: %v", err)
	}

	cmds := srv.Commands()
	if len(cmds) < 3 || cmds[0] != "EHLO client.test" || cmds[1] != "STARTTLS" || cmds[2] != "EHLO client.test" {
		t.Fatalf("expected EHLO, STARTTLS, EHLO, got %s", commandSummary(cmds))
	}
	if !srv.sawCommand("AUTH PLAIN") {
		t.Fatalf("expected AUTH after STARTTLS, got %s", commandSummary(cmds))
	}
	if len(srv.Messages()) != 1 {
		t.Fatalf("expected one delivered message")
	}
}

func TestAttemptImplicitTLS(t *testing.T) {
	srv := newFakeServer(t, withImplicitTLS(t))
	client := newTestClient(t, testConfig(srv.port(), config.TLSModeImplicit))

	if err := client.Attempt(context.Background(), []string{"a@x.com"}, "S", "B"); err != nil {
		t.Fatalf("Attempt returned error: %v", err)
	}
	if srv.sawCommand("STARTTLS") {
		t.Fatalf("implicit TLS must not issue STARTTLS")
	}
	if len(srv.Messages()) != 1 {
		t.Fatalf("expected one delivered message")
	}
}

func TestAttemptStartTLSNotAdvertised(t *testing.T) {
	srv := newFakeServer(t)
	client := newTestClient(t, testConfig(srv.port(), config.TLSModeStartTLS))

	err := client.Attempt(context.Background(), []string{"a@x.com"}, "S", "B")
	var de *Error
	if !errors.As(err, &de) || de.Op != "starttls" {
		t.Fatalf("expected starttls delivery error, got %v", err)
	}
	if srv.sawCommand("MAIL") {
		t.Fatalf("no transaction may start without TLS")
	}
}

func TestAttemptDialError(t *testing.T) {
	client := newTestClient(t, testConfig(closedPort(t), config.TLSModeNone))

	err := client.Attempt(context.Background(), []string{"a@x.com"}, "S", "B")
	if !IsDeliveryError(err) {
		t.Fatalf("expected delivery error, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "SMTP error: dial") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestAttemptRecipientRejected(t *testing.T) {
	srv := newFakeServer(t, withRejectedRecipient("b@x.com"))
	client := newTestClient(t, testConfig(srv.port(), config.TLSModeNone))

	err := client.Attempt(context.Background(), []string{"a@x.com", "b@x.com"}, "S", "B")
	var de *Error
	if !errors.As(err, &de) || !strings.Contains(de.Op, "b@x.com") {
		t.Fatalf("expected rcpt delivery error, got %v", err)
	}
	if len(srv.Messages()) != 0 {
		t.Fatalf("expected no data to be sent")
	}
}

func TestAttemptIgnoresQuitFailure(t *testing.T) {
	srv := newFakeServer(t, withDropOnQuit())
	client := newTestClient(t, testConfig(srv.port(), config.TLSModeNone))

	if err := client.Attempt(context.Background(), []string{"a@x.com"}, "S", "B"); err != nil {
		t.Fatalf("expected QUIT failure to be swallowed, got %v", err)
	}
}

func TestProbe(t *testing.T) {
	srv := newFakeServer(t)
	client := newTestClient(t, testConfig(srv.port(), config.TLSModeNone))

	if err := client.Probe(context.Background()); err != nil {
		t.Fatalf("Probe returned error: %v", err)
	}
	if !srv.sawCommand("NOOP") {
		t.Fatalf("expected NOOP, got %s", commandSummary(srv.Commands()))
	}
}

func TestProbeBadNoopReply(t *testing.T) {
	srv := newFakeServer(t, withNoopCode(500))
	client := newTestClient(t, testConfig(srv.port(), config.TLSModeNone))

	err := client.Probe(context.Background())
	if !IsDeliveryError(err) || !strings.Contains(err.Error(), "NOOP rc=500") {
		t.Fatalf("expected NOOP rc=500 error, got %v", err)
	}
}

func TestProbeNotConfigured(t *testing.T) {
	client := newTestClient(t, config.Config{})
	if err := client.Probe(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
