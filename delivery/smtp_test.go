package delivery

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeServer is a minimal SMTP relay for exercising Client end to end.
type fakeServer struct {
	ln         net.Listener
	tlsConf    *tls.Config
	implicit   bool
	rejectRcpt map[string]bool
	noopCode   int
	dropOnQuit bool

	mu       sync.Mutex
	commands []string
	messages []string
}

type serverOption func(*fakeServer)

func withStartTLS(t *testing.T) serverOption {
	return func(s *fakeServer) { s.tlsConf = selfSignedTLS(t) }
}

func withImplicitTLS(t *testing.T) serverOption {
	return func(s *fakeServer) {
		s.tlsConf = selfSignedTLS(t)
		s.implicit = true
	}
}

func withRejectedRecipient(addr string) serverOption {
	return func(s *fakeServer) { s.rejectRcpt[addr] = true }
}

func withNoopCode(code int) serverOption {
	return func(s *fakeServer) { s.noopCode = code }
}

func withDropOnQuit() serverOption {
	return func(s *fakeServer) { s.dropOnQuit = true }
}

func newFakeServer(t *testing.T, opts ...serverOption) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error: %v", err)
	}
	s := &fakeServer{rejectRcpt: map[string]bool{}, noopCode: 250}
	for _, opt := range opts {
		opt(s)
	}
	if s.implicit {
		ln = tls.NewListener(ln, s.tlsConf)
	}
	s.ln = ln
	t.Cleanup(func() { ln.Close() })
	go s.serve()
	return s
}

func (s *fakeServer) port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

func (s *fakeServer) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *fakeServer) handle(conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
	tp := textproto.NewConn(conn)
	secure := s.implicit

	_ = tp.PrintfLine("220 fake.test ESMTP")
	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		s.record(line)
		cmd := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(cmd, "EHLO"):
			exts := []string{"fake.test"}
			if s.tlsConf != nil && !secure {
				exts = append(exts, "STARTTLS")
			}
			exts = append(exts, "AUTH PLAIN")
			for i, ext := range exts {
				sep := "-"
				if i == len(exts)-1 {
					sep = " "
				}
				_ = tp.PrintfLine("250%s%s", sep, ext)
			}
		case strings.HasPrefix(cmd, "HELO"):
			_ = tp.PrintfLine("250 fake.test")
		case strings.HasPrefix(cmd, "STARTTLS"):
			_ = tp.PrintfLine("220 Ready to start TLS")
			tlsConn := tls.Server(conn, s.tlsConf)
			if err := tlsConn.Handshake(); err != nil {
				return
			}
			conn = tlsConn
			tp = textproto.NewConn(tlsConn)
			secure = true
		case strings.HasPrefix(cmd, "AUTH"):
			_ = tp.PrintfLine("235 Authentication succeeded")
		case strings.HasPrefix(cmd, "MAIL FROM:"):
			_ = tp.PrintfLine("250 Sender OK")
		case strings.HasPrefix(cmd, "RCPT TO:"):
			addr := strings.Trim(strings.TrimSpace(line[len("RCPT TO:"):]), "<>")
			if s.rejectRcpt[addr] {
				_ = tp.PrintfLine("550 No such user")
				continue
			}
			_ = tp.PrintfLine("250 Recipient OK")
		case strings.HasPrefix(cmd, "DATA"):
			_ = tp.PrintfLine("354 End data with <CR><LF>.<CR><LF>")
			data, err := tp.ReadDotBytes()
			if err != nil {
				return
			}
			s.mu.Lock()
			s.messages = append(s.messages, string(data))
			s.mu.Unlock()
			_ = tp.PrintfLine("250 Message accepted")
		case strings.HasPrefix(cmd, "NOOP"):
			_ = tp.PrintfLine("%d NOOP", s.noopCode)
		case strings.HasPrefix(cmd, "QUIT"):
			if s.dropOnQuit {
				return
			}
			_ = tp.PrintfLine("221 Bye")
			return
		default:
			_ = tp.PrintfLine("502 Command not implemented")
		}
	}
}

func (s *fakeServer) record(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, line)
}

func (s *fakeServer) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

func (s *fakeServer) Messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.messages...)
}

func (s *fakeServer) sawCommand(prefix string) bool {
	for _, c := range s.Commands() {
		if strings.HasPrefix(strings.ToUpper(c), prefix) {
			return true
		}
	}
	return false
}

func selfSignedTLS(t *testing.T) *tls.Config {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: "fake.test"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &priv.PublicKey, priv)
	if err != nil {
		t.Fatalf("CreateCertificate: %v", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{{Certificate: [][]byte{der}, PrivateKey: priv}},
		MinVersion:   tls.VersionTLS12,
	}
}

func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func commandSummary(cmds []string) string {
	return fmt.Sprintf("%q", cmds)
}
