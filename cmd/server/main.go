// Command server runs the Fit4Seniors billing API: Stripe checkout and
// portal sessions, entitlement reads and the Stripe webhook.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mihaimyh/fit4seniors/internal/config"
	"github.com/mihaimyh/fit4seniors/pkg/api"
	"github.com/mihaimyh/fit4seniors/pkg/billing"
	billingprom "github.com/mihaimyh/fit4seniors/pkg/billing/metrics/prometheus"
	"github.com/mihaimyh/fit4seniors/pkg/billing/stripe"
	"github.com/mihaimyh/fit4seniors/pkg/entitlement"
	zerologadapter "github.com/mihaimyh/fit4seniors/pkg/entitlement/logger/zerolog"
	entprom "github.com/mihaimyh/fit4seniors/pkg/entitlement/metrics/prometheus"
)

func main() {
	zlog := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to load config")
	}
	zlog = newLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zlog); err != nil {
		zlog.Fatal().Err(err).Msg("server stopped with error")
	}
	zlog.Info().Msg("server stopped")
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var zlog zerolog.Logger
	if cfg.Format == "console" {
		zlog = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		zlog = zerolog.New(os.Stdout)
	}
	return zlog.Level(level).With().Timestamp().Str("service", "fit4seniors").Logger()
}

func run(ctx context.Context, cfg *config.Config, zlog zerolog.Logger) error {
	logger := zerologadapter.NewLogger(zlog)

	if missing := cfg.Missing(); len(missing) > 0 {
		zlog.Warn().Strs("missing", missing).Msg("configuration incomplete, affected endpoints will answer 500")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var (
		entMetrics     entitlement.Metrics = &entitlement.NoopMetrics{}
		billingMetrics billing.Metrics     = &billing.NoopMetrics{}
	)
	if cfg.Metrics.Enabled {
		entMetrics = entprom.NewMetrics(reg, cfg.Metrics.Namespace)
		billingMetrics = billingprom.NewMetrics(reg, cfg.Metrics.Namespace)
	}

	storage, closeStorage, err := openStorage(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer closeStorage()

	manager, err := entitlement.NewManager(storage, entitlement.Config{
		Metrics: entMetrics,
		Logger:  logger,
		CircuitBreakerConfig: &entitlement.CircuitBreakerConfig{
			Enabled:          true,
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
		},
	})
	if err != nil {
		return err
	}

	provider, err := stripe.NewProvider(stripe.Config{
		Config: billing.Config{
			Manager:       manager,
			WebhookSecret: cfg.Stripe.WebhookSecret,
			APIKey:        cfg.Stripe.SecretKey,
			PriceID:       cfg.Stripe.PriceID,
			AppBaseURL:    cfg.Server.AppBaseURL,
			OnEntitlementChange: func(_ context.Context, change billing.EntitlementChange) error {
				if change.Changed() {
					zlog.Info().
						Str("user_id", change.UserID).
						Bool("is_premium", change.IsPremium).
						Str("event_id", change.EventID).
						Str("event_type", change.EventType).
						Msg("premium access changed")
				}
				return nil
			},
			Metrics: billingMetrics,
			Logger:  logger,
		},
	})
	if err != nil {
		return err
	}

	var authenticator api.Authenticator
	if cfg.Supabase.URL != "" && cfg.Supabase.ServiceRoleKey != "" {
		authenticator = api.NewSupabaseAuthenticator(cfg.Supabase.URL, cfg.Supabase.ServiceRoleKey, nil)
	}

	handler, err := api.NewHandler(api.Config{
		Manager:       manager,
		Billing:       provider,
		Authenticator: authenticator,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
	}

	srv := &http.Server{
		Addr: ":" + cfg.Server.Port,
		Handler: newRouter(routerConfig{
			Manager:        manager,
			API:            handler,
			Webhook:        provider.WebhookHandler(),
			MetricsHandler: metricsHandler,
			Logger:         zlog,
			TrustProxy:     cfg.Server.TrustProxy,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zlog.Info().Str("addr", srv.Addr).Str("storage", cfg.Storage.Backend).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		zlog.Info().Msg("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
