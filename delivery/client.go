package delivery

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"time"

	"mailservice/internal/config"
	"mailservice/internal/dkim"
	"mailservice/tlsconfig"
)

var errNoStartTLS = errors.New("server does not advertise STARTTLS")

// Client runs one SMTP transaction per call against the configured relay.
// It holds no connection between calls.
type Client struct {
	configured bool
	host       string
	addr       string
	mode       config.TLSMode
	timeout    time.Duration
	heloName   string
	username   string
	password   string
	from       string
	tlsConf    *tls.Config
	signer     *dkim.Signer
	now        func() time.Time
}

// NewClient builds a Client from cfg. signer may be nil.
func NewClient(cfg config.Config, signer *dkim.Signer) (*Client, error) {
	tlsConf, err := tlsconfig.ClientConfig(cfg.SMTPServer, cfg.SMTPCAFile, cfg.SMTPInsecureTLS)
	if err != nil {
		return nil, err
	}
	return &Client{
		configured: cfg.SMTPConfigured(),
		host:       cfg.SMTPServer,
		addr:       cfg.SMTPAddr(),
		mode:       cfg.TLSMode(),
		timeout:    cfg.SMTPTimeout(),
		heloName:   cfg.Hostname(),
		username:   cfg.SMTPUsername,
		password:   cfg.SMTPPassword,
		from:       cfg.Sender(),
		tlsConf:    tlsConf,
		signer:     signer,
		now:        time.Now,
	}, nil
}

// Attempt delivers one message to all recipients in a single transaction.
// Session failures come back as *Error.
func (c *Client) Attempt(ctx context.Context, recipients []string, subject, body string) error {
	msg, err := renderMessage(c.from, recipients, subject, body, c.now())
	if err != nil {
		return err
	}
	msg, err = c.signer.Sign(msg, c.from)
	if err != nil {
		return err
	}

	client, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer quit(client)

	if err := client.Mail(c.from); err != nil {
		return wrap("mail from", err)
	}
	for _, rcpt := range recipients {
		if err := client.Rcpt(rcpt); err != nil {
			return wrap("rcpt to "+rcpt, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return wrap("data start", err)
	}
	if _, err := w.Write(msg); err != nil {
		return wrap("data write", err)
	}
	if err := w.Close(); err != nil {
		return wrap("data close", err)
	}
	return nil
}

// open dials the relay, greets, secures and authenticates the session.
func (c *Client) open(ctx context.Context) (*smtp.Client, error) {
	dialer := &net.Dialer{Timeout: c.timeout}
	var (
		conn net.Conn
		err  error
	)
	if c.mode == config.TLSModeImplicit {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: c.tlsConf}).DialContext(ctx, "tcp", c.addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", c.addr)
	}
	if err != nil {
		return nil, wrap("dial", err)
	}
	if err := conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		conn.Close()
		return nil, wrap("set deadline", err)
	}

	client, err := smtp.NewClient(conn, c.host)
	if err != nil {
		conn.Close()
		return nil, wrap("greeting", err)
	}
	if err := client.Hello(c.heloName); err != nil {
		client.Close()
		return nil, wrap("ehlo", err)
	}

	if c.mode == config.TLSModeStartTLS {
		if ok, _ := client.Extension("STARTTLS"); !ok {
			client.Close()
			return nil, wrap("starttls", errNoStartTLS)
		}
		// StartTLS issues a fresh EHLO once the handshake completes.
		if err := client.StartTLS(c.tlsConf); err != nil {
			client.Close()
			return nil, wrap("starttls", err)
		}
	}

	if c.username != "" {
		if err := client.Auth(smtp.PlainAuth("", c.username, c.password, c.host)); err != nil {
			client.Close()
			return nil, wrap("auth", err)
		}
	}
	return client, nil
}

// quit ends the session. Failures here never affect the outcome.
func quit(client *smtp.Client) {
	if err := client.Quit(); err != nil {
		_ = client.Close()
	}
}

func (c *Client) String() string {
	return fmt.Sprintf("smtp://%s (%s)", c.addr, c.mode)
}
