package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/rajasatyajit/ResumeCore/config"
	"github.com/rajasatyajit/ResumeCore/internal/analytics"
	"github.com/rajasatyajit/ResumeCore/internal/api"
	"github.com/rajasatyajit/ResumeCore/internal/billing"
	"github.com/rajasatyajit/ResumeCore/internal/database"
	"github.com/rajasatyajit/ResumeCore/internal/deliveries"
	"github.com/rajasatyajit/ResumeCore/internal/dispatch"
	"github.com/rajasatyajit/ResumeCore/internal/entitlement"
	"github.com/rajasatyajit/ResumeCore/internal/identity"
	"github.com/rajasatyajit/ResumeCore/internal/ledger"
	"github.com/rajasatyajit/ResumeCore/internal/logger"
	"github.com/rajasatyajit/ResumeCore/internal/metrics"
	middlewares "github.com/rajasatyajit/ResumeCore/internal/middleware"
	"github.com/rajasatyajit/ResumeCore/internal/plans"
	"github.com/rajasatyajit/ResumeCore/internal/secrets"
	"github.com/rajasatyajit/ResumeCore/internal/store"
	"github.com/rajasatyajit/ResumeCore/internal/webhook"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Starting ResumeCore",
		"version", Version,
		"build_time", BuildTime,
		"git_commit", GitCommit,
	)

	if cfg.Metrics.Enabled {
		metrics.Init()
		logger.Info("Metrics enabled", "port", cfg.Metrics.Port)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Fatal("ResumeCore stopped with error", "error", err)
	}
	logger.Info("Server exited")
}

// run wires the collaborators and serves until ctx is cancelled
func run(ctx context.Context, cfg *config.Config) error {
	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer db.Close()

	box, err := secrets.New(cfg.Secrets.Key)
	if err != nil {
		return fmt.Errorf("initialize secrets: %w", err)
	}
	if box == nil {
		logger.Warn("SECRETS_KEY not set; provider API keys are stored unsealed")
	}
	st := store.New(db, box)

	resolver, err := plans.NewResolver(cfg.Billing.Products)
	if err != nil {
		return fmt.Errorf("initialize plan resolver: %w", err)
	}

	client, err := analytics.New(cfg.Analytics)
	if err != nil {
		return fmt.Errorf("initialize analytics: %w", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("analytics flush failed", "error", err)
		}
	}()

	tracker, err := newTracker(cfg.Redis)
	if err != nil {
		return fmt.Errorf("initialize delivery tracker: %w", err)
	}
	defer tracker.Close()

	deps := buildDeps(cfg, st, resolver, client, tracker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewares.Logging)
	r.Use(middlewares.Metrics)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Server.ReadTimeout))
	r.Use(middlewares.Security)
	api.NewHandler(deps).RegisterRoutes(r)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(logger.L().Handler(), slog.LevelError),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting HTTP server", "address", addr)
		return serve(srv)
	})
	if cfg.Metrics.Enabled {
		msrv := newMetricsServer(cfg.Metrics.Port, cfg.Metrics.Path)
		g.Go(func() error {
			logger.Info("Starting metrics server", "address", msrv.Addr, "path", cfg.Metrics.Path)
			return serve(msrv)
		})
		g.Go(func() error {
			<-gctx.Done()
			return shutdown(msrv, cfg.Server.GracefulShutdownTimeout)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")
		return shutdown(srv, cfg.Server.GracefulShutdownTimeout)
	})
	return g.Wait()
}

// buildDeps assembles webhook endpoints and admin collaborators
func buildDeps(cfg *config.Config, st store.Store, resolver *plans.Resolver, client analytics.Client, tracker deliveries.Tracker) api.Deps {
	identityVerifier := webhook.NewVerifier(webhook.SourceIdentity, webhook.SvixScheme, cfg.Webhooks.Tolerance)
	billingVerifier := webhook.NewVerifier(webhook.SourceBilling, webhook.StandardScheme, cfg.Webhooks.Tolerance)
	billingSvc := billing.NewService(st, resolver)

	if cfg.Webhooks.IdentitySecret == "" {
		logger.Warn("IDENTITY_WEBHOOK_SECRET not set; identity deliveries will be acknowledged without processing")
	}
	if cfg.Webhooks.BillingSecret == "" {
		logger.Warn("BILLING_WEBHOOK_SECRET not set; billing deliveries will be acknowledged without processing")
	}

	d := api.Deps{
		Store:      st,
		Ledger:     ledger.New(st),
		Guard:      entitlement.NewGuard(st, cfg.AI),
		Resolver:   resolver,
		Deliveries: tracker,
		Identity: api.Endpoint{
			Receiver:   webhook.NewReceiver(webhook.SourceIdentity, identityVerifier, cfg.Webhooks.IdentitySecret),
			Dispatcher: dispatch.NewIdentity(identity.NewService(st, client, cfg.Credits.SignupGrant)),
		},
		Billing: api.Endpoint{
			Receiver:   webhook.NewReceiver(webhook.SourceBilling, billingVerifier, cfg.Webhooks.BillingSecret),
			Dispatcher: dispatch.NewBilling(webhook.SourceBilling, billingSvc),
		},
		AdminSecret:  cfg.Admin.AdminSecret,
		MaxBodyBytes: cfg.Webhooks.MaxBodyBytes,
		RateLimiter:  middlewares.NewRateLimiter(cfg.Webhooks.RateLimit, cfg.Webhooks.RateBurst),
		Version:      Version,
		BuildTime:    BuildTime,
		GitCommit:    GitCommit,
	}
	if cfg.Billing.StripeWebhookSecret != "" {
		d.Stripe = &api.Endpoint{
			Receiver:   billing.NewStripeReceiver(cfg.Billing.StripeSecretKey, cfg.Billing.StripeWebhookSecret, cfg.Webhooks.Tolerance, nil),
			Dispatcher: dispatch.NewBilling(webhook.SourceStripe, billingSvc),
		}
	}
	for _, ep := range d.Endpoints() {
		logger.Info("Webhook endpoint ready", "source", ep.Dispatcher.Source(), "kinds", ep.Dispatcher.Kinds())
	}
	return d
}

// newTracker prefers Redis so de-duplication survives restarts and spans replicas
func newTracker(cfg config.RedisConfig) (deliveries.Tracker, error) {
	if cfg.URL == "" {
		logger.Info("REDIS_URL not set; delivery de-duplication is per process")
		return deliveries.NewMemoryTracker(deliveries.DefaultClaimTTL, cfg.DedupTTL), nil
	}
	t, err := deliveries.NewRedisTracker(cfg.URL, deliveries.DefaultClaimTTL, cfg.DedupTTL)
	if err != nil {
		return nil, err
	}
	logger.Info("Delivery de-duplication backed by Redis")
	return t, nil
}

func newMetricsServer(port int, path string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(path, metrics.Handler())
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func serve(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve %s: %w", srv.Addr, err)
	}
	return nil
}

func shutdown(srv *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "addr", srv.Addr, "error", err)
		return err
	}
	return nil
}
