package tlsconfig

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

// ErrNoCertificates is returned when a CA file holds no usable PEM certificate.
var ErrNoCertificates = errors.New("tlsconfig: no certificates found in CA file")

// ClientConfig builds the TLS configuration used towards the SMTP relay.
// caFile, when set, replaces the system roots with the PEM bundle it holds.
func ClientConfig(serverName, caFile string, insecureSkipVerify bool) (*tls.Config, error) {
	conf := &tls.Config{
		ServerName:         serverName,
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: insecureSkipVerify,
	}
	if caFile == "" {
		return conf, nil
	}
	pemData, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("tlsconfig: read CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pemData) {
		return nil, ErrNoCertificates
	}
	conf.RootCAs = pool
	return conf, nil
}
