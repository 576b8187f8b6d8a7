package main

import (
	"context"
	"errors"
	"fmt"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"mailservice/api"
	"mailservice/client"
	"mailservice/delivery"
	"mailservice/internal/config"
	"mailservice/internal/dkim"
	"mailservice/queue"
	"mailservice/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var debug bool
	var envFile string

	root := &cobra.Command{
		Use:          "mailservice",
		Short:        "HTTP email send service with an SMTP relay, retries and a SQLite audit log",
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "development logging")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the queue worker",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), envFile, debug)
		},
	}
	root.RunE = serve.RunE
	root.AddCommand(serve, newBlastCmd(&envFile, &debug))
	return root
}

func runServe(ctx context.Context, envFile string, debug bool) error {
	log := setupLogger(debug)
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load(envFile)
	if err != nil {
		log.Error("failed to load config", zap.Error(err))
		return err
	}
	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.Error("failed to start", zap.Error(err))
		return err
	}
	return a.run(ctx)
}

// app is the wired service: HTTP server, queue worker and audit store.
type app struct {
	log    *zap.Logger
	server *http.Server
	worker *queue.Worker
	store  *storage.Store
}

func newApp(ctx context.Context, cfg config.Config, log *zap.Logger) (*app, error) {
	signer, err := dkim.New(dkim.Options{
		Selector:   cfg.DKIMSelector,
		Domain:     cfg.DKIMDomain,
		KeyPath:    cfg.DKIMKeyPath,
		PrivateKey: cfg.DKIMPrivateKey,
	})
	if err != nil {
		return nil, fmt.Errorf("dkim: %w", err)
	}
	smtpClient, err := delivery.NewClient(cfg, signer)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	if cfg.SMTPConfigured() {
		log.Info("smtp relay", zap.Stringer("relay", smtpClient), zap.Bool("dkim", signer != nil))
	} else {
		log.Warn("SMTP_SERVER is not set, every delivery will fail")
	}
	if cfg.APIKey == "" {
		log.Warn("API_KEY is not set, every authenticated request will be rejected")
	}

	store, err := storage.Open(ctx, cfg.DatabaseDir, cfg.DatabaseName)
	if err != nil {
		return nil, err
	}

	mailer := delivery.NewMailer(cfg.SMTPConfigured(), smtpClient, delivery.DefaultRetryPolicy(), log)
	processor := queue.NewProcessor(mailer, store, log)
	q := queue.NewBounded(cfg.QueueCapacity())
	worker := queue.NewWorker(q, processor, log, queue.WorkerOptions{
		PollInterval: cfg.PollInterval(),
		StopGrace:    cfg.StopGrace(),
	})

	router := api.NewRouter(api.Deps{
		APIKey:      cfg.APIKey,
		CORSOrigins: cfg.CORSAllowOrigins,
		Processor:   processor,
		Queue:       q,
		Prober:      smtpClient,
		Log:         log,
	})
	return &app{
		log:    log,
		server: api.NewServer(cfg.ListenAddr(), router),
		worker: worker,
		store:  store,
	}, nil
}

// run serves until ctx ends or SIGINT/SIGTERM arrives, then shuts down the
// server, the worker and the store in that order.
func (a *app) run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.worker.Start()
	serveErr := make(chan error, 1)
	go func() {
		a.log.Info("listening", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("received shutdown signal")
	case err := <-serveErr:
		if err != nil {
			a.log.Error("server failed", zap.Error(err))
			runErr = err
		}
	}
	a.shutdown()
	return runErr
}

func (a *app) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(ctx); err != nil {
		a.log.Warn("server shutdown error", zap.Error(err))
	}
	a.worker.Stop()
	if err := a.store.Close(); err != nil {
		a.log.Warn("audit store close error", zap.Error(err))
	}
	a.log.Info("server shutdown")
}

func newBlastCmd(envFile *string, debug *bool) *cobra.Command {
	var (
		server     string
		apiKey     string
		to         []string
		subject    string
		body       string
		msgType    string
		count      int
		maxWorkers int
		rps        float64
	)
	cmd := &cobra.Command{
		Use:   "blast",
		Short: "Fire concurrent /send_async requests at a running service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := setupLogger(*debug)
			defer func() { _ = log.Sync() }()

			if apiKey == "" || server == "" {
				cfg, err := config.Load(*envFile)
				if err != nil {
					return err
				}
				if apiKey == "" {
					apiKey = cfg.APIKey
				}
				if server == "" {
					server = localURL(cfg.ListenAddr())
				}
			}
			if len(to) == 0 {
				return errors.New("at least one --to recipient is required")
			}

			c, err := client.New(server, apiKey)
			if err != nil {
				return err
			}
			summary := c.BlastAsync(cmd.Context(), client.BlastOptions{
				Recipients:    to,
				SubjectPrefix: subject,
				BodyPrefix:    body,
				MessageType:   msgType,
				Count:         count,
				MaxWorkers:    maxWorkers,
				Rate:          rps,
			})
			log.Info("blast async done",
				zap.Int("total", count),
				zap.Int("ok", summary.OK),
				zap.Int("failed", summary.Failed),
				zap.Duration("elapsed", summary.Elapsed))
			for _, r := range summary.Results {
				if r.Err != nil {
					log.Warn("request failed", zap.String("index", fmt.Sprintf("#%03d", r.Index)), zap.Error(r.Err))
				}
			}
			if summary.Failed > 0 {
				return fmt.Errorf("%d of %d requests failed", summary.Failed, count)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&server, "server", "", "service base URL (defaults to SERVICE_HOST:SERVICE_PORT)")
	f.StringVar(&apiKey, "api-key", "", "X-API-Key value (defaults to API_KEY)")
	f.StringSliceVar(&to, "to", nil, "recipient address, repeatable")
	f.StringVar(&subject, "subject", "Load test", "subject prefix")
	f.StringVar(&body, "body", "Concurrent async test message.", "body prefix")
	f.StringVar(&msgType, "type", "load_test", "message_type stored in the audit log")
	f.IntVar(&count, "count", 10, "number of requests")
	f.IntVar(&maxWorkers, "workers", 5, "requests in flight at once")
	f.Float64Var(&rps, "rate", 0, "requests per second, 0 for unlimited")
	return cmd
}

// localURL turns a listen address into a URL reachable from this host.
func localURL(listenAddr string) string {
	if strings.HasPrefix(listenAddr, "0.0.0.0:") {
		listenAddr = "127.0.0.1" + strings.TrimPrefix(listenAddr, "0.0.0.0")
	}
	return "http://" + listenAddr
}

func setupLogger(debug bool) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.UTC().Format(time.RFC3339))
	}
	cfg.EncoderConfig.TimeKey = "ts"
	logger, err := cfg.Build()
	if err != nil {
		stdlog.Fatalf("failed to set up logger: %v", err)
	}
	return logger
}
