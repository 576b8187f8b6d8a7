package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	defaultHostname = "localhost"
	defaultSender   = "noreply@example.com"
)

// TLSMode selects how the SMTP connection is secured.
type TLSMode string

const (
	// TLSModeStartTLS connects in plaintext and upgrades with STARTTLS.
	TLSModeStartTLS TLSMode = "starttls"
	// TLSModeImplicit connects over TLS from the first byte (SMTPS).
	TLSModeImplicit TLSMode = "tls"
	// TLSModeNone never encrypts. Only meant for local relays.
	TLSModeNone TLSMode = "none"
)

// Config holds every environment sourced setting of the service.
type Config struct {
	ServiceHost string `mapstructure:"SERVICE_HOST"`
	ServicePort int    `mapstructure:"SERVICE_PORT"`
	APIKey      string `mapstructure:"API_KEY"`
	// CORSAllowOrigins enables CORS for browser callers when non-empty.
	CORSAllowOrigins []string `mapstructure:"CORS_ALLOW_ORIGINS"`

	SMTPServer         string `mapstructure:"SMTP_SERVER"`
	SMTPPort           int    `mapstructure:"SMTP_PORT"`
	SMTPUsername       string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword       string `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom           string `mapstructure:"SMTP_FROM"`
	SMTPUseTLS         bool   `mapstructure:"SMTP_USE_TLS"`
	SMTPTLSMode        string `mapstructure:"SMTP_TLS_MODE"`
	SMTPTimeoutSeconds int    `mapstructure:"SMTP_TIMEOUT_SECONDS"`
	SMTPHostname       string `mapstructure:"SMTP_HOSTNAME"`
	SMTPCAFile         string `mapstructure:"SMTP_TLS_CA_FILE"`
	SMTPInsecureTLS    bool   `mapstructure:"SMTP_TLS_INSECURE_SKIP_VERIFY"`

	DKIMSelector   string `mapstructure:"SMTP_DKIM_SELECTOR"`
	DKIMDomain     string `mapstructure:"SMTP_DKIM_DOMAIN"`
	DKIMKeyPath    string `mapstructure:"SMTP_DKIM_KEY_PATH"`
	DKIMPrivateKey string `mapstructure:"SMTP_DKIM_PRIVATE_KEY"`

	DatabaseDir  string `mapstructure:"DATABASE_DIR"`
	DatabaseName string `mapstructure:"DATABASE_NAME"`

	QueueMaxSize       int           `mapstructure:"QUEUE_MAXSIZE"`
	WorkerPollInterval time.Duration `mapstructure:"WORKER_POLL_INTERVAL"`
	WorkerStopGrace    time.Duration `mapstructure:"WORKER_STOP_GRACE"`
}

var defaults = map[string]any{
	"SERVICE_HOST":                  "0.0.0.0",
	"SERVICE_PORT":                  8081,
	"API_KEY":                       "",
	"CORS_ALLOW_ORIGINS":            "",
	"SMTP_SERVER":                   "",
	"SMTP_PORT":                     587,
	"SMTP_USERNAME":                 "",
	"SMTP_PASSWORD":                 "",
	"SMTP_FROM":                     "",
	"SMTP_USE_TLS":                  true,
	"SMTP_TLS_MODE":                 "",
	"SMTP_TIMEOUT_SECONDS":          30,
	"SMTP_HOSTNAME":                 "",
	"SMTP_TLS_CA_FILE":              "",
	"SMTP_TLS_INSECURE_SKIP_VERIFY": false,
	"SMTP_DKIM_SELECTOR":            "",
	"SMTP_DKIM_DOMAIN":              "",
	"SMTP_DKIM_KEY_PATH":            "",
	"SMTP_DKIM_PRIVATE_KEY":         "",
	"DATABASE_DIR":                  "./data",
	"DATABASE_NAME":                 "messaging.db",
	"QUEUE_MAXSIZE":                 DefaultQueueMaxSize,
	"WORKER_POLL_INTERVAL":          DefaultPollInterval.String(),
	"WORKER_STOP_GRACE":             DefaultStopGrace.String(),
}

// Load reads the optional dotenv files (".env" when none are given) and
// then the process environment. Variables already present in the
// environment win over dotenv values.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load %s: %w", f, err)
		}
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.TLSMode() {
	case TLSModeStartTLS, TLSModeImplicit, TLSModeNone:
	default:
		return fmt.Errorf("config: SMTP_TLS_MODE %q is not one of starttls, tls, none", c.SMTPTLSMode)
	}
	if c.ServicePort < 1 || c.ServicePort > 65535 {
		return fmt.Errorf("config: SERVICE_PORT %d out of range", c.ServicePort)
	}
	for _, origin := range c.CORSAllowOrigins {
		if origin == "*" {
			if len(c.CORSAllowOrigins) > 1 {
				return errors.New("config: CORS_ALLOW_ORIGINS cannot mix * with explicit origins")
			}
			continue
		}
		if !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			return fmt.Errorf("config: CORS origin %q must start with http:// or https://", origin)
		}
	}
	return nil
}

// ListenAddr is the host:port the HTTP server binds to.
func (c Config) ListenAddr() string {
	return net.JoinHostPort(c.ServiceHost, strconv.Itoa(c.ServicePort))
}

// SMTPConfigured reports whether an SMTP endpoint has been set.
func (c Config) SMTPConfigured() bool {
	return strings.TrimSpace(c.SMTPServer) != "" && c.SMTPPort > 0
}

// SMTPAddr is the host:port of the configured SMTP relay.
func (c Config) SMTPAddr() string {
	return net.JoinHostPort(c.SMTPServer, strconv.Itoa(c.SMTPPort))
}

// SMTPTimeout bounds a single SMTP session.
func (c Config) SMTPTimeout() time.Duration {
	if c.SMTPTimeoutSeconds < 1 {
		return 30 * time.Second
	}
	return time.Duration(c.SMTPTimeoutSeconds) * time.Second
}

// TLSMode resolves SMTP_TLS_MODE, falling back to SMTP_USE_TLS.
func (c Config) TLSMode() TLSMode {
	if mode := strings.ToLower(strings.TrimSpace(c.SMTPTLSMode)); mode != "" {
		return TLSMode(mode)
	}
	if c.SMTPUseTLS {
		return TLSModeStartTLS
	}
	return TLSModeImplicit
}

// Sender is the envelope and header sender address.
func (c Config) Sender() string {
	if c.SMTPFrom != "" {
		return c.SMTPFrom
	}
	if c.SMTPUsername != "" {
		return c.SMTPUsername
	}
	return defaultSender
}

// Hostname returns the name used in EHLO.
// Preference order: SMTP_HOSTNAME, system hostname, fallback.
func (c Config) Hostname() string {
	if c.SMTPHostname != "" {
		return c.SMTPHostname
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return defaultHostname
}

// DatabasePath joins DATABASE_DIR and DATABASE_NAME.
func (c Config) DatabasePath() string {
	return filepath.Join(c.DatabaseDir, c.DatabaseName)
}
