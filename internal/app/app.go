package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/restaurant-orders/internal/domain/cart"
	"github.com/xenking/restaurant-orders/internal/domain/offer"
	"github.com/xenking/restaurant-orders/internal/domain/order"
	"github.com/xenking/restaurant-orders/internal/domain/payment"
	"github.com/xenking/restaurant-orders/internal/gateway/stripe"
	"github.com/xenking/restaurant-orders/internal/handler"
	"github.com/xenking/restaurant-orders/internal/mail"
	"github.com/xenking/restaurant-orders/internal/storage/postgres"
	"github.com/xenking/restaurant-orders/pkg/health"
	"github.com/xenking/restaurant-orders/pkg/httpmiddleware"
)

const meterName = "github.com/xenking/restaurant-orders"

// Run creates all dependencies, starts the HTTP server and background workers,
// and handles graceful shutdown. It is the single wiring point for the
// application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Repositories.
	menuRepo := postgres.NewMenuRepository(pool)
	offerRepo := postgres.NewOfferRepository(pool)
	cartRepo := postgres.NewCartRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	apikeyRepo := postgres.NewAPIKeyRepository(pool)

	// Collaborators.
	var gateway payment.Gateway = payment.Unconfigured{}
	if cfg.Stripe.SecretKey != "" {
		gateway = stripe.New(cfg.StripeGateway(), m.TracerProvider())
	} else {
		lg.Warn("Stripe is not configured, card and online checkout are disabled")
	}

	var (
		notifier order.Notifier = order.NopNotifier{}
		mailer   *mail.Notifier
	)
	if smtp := cfg.SMTP(); smtp.Enabled() {
		if mailer, err = mail.New(smtp, lg); err != nil {
			return errors.Wrap(err, "create mailer")
		}
		notifier = mailer
	}

	metrics, err := order.NewMetrics(m.MeterProvider().Meter(meterName))
	if err != nil {
		return errors.Wrap(err, "create order metrics")
	}

	// Domain services.
	policy := cfg.ExpiryPolicy()
	cartService := cart.NewService(cartRepo, menuRepo, offer.NewRepoResolver(offerRepo))
	orderService := order.NewService(orderRepo, cartService, gateway, policy, notifier, metrics)
	reconciler := order.NewReconciler(orderService, gateway)
	sweeper := order.NewSweeper(orderRepo, policy, metrics)

	// Health checks, refreshed by a background worker below.
	checks := []health.Check{
		{Name: "postgres", Scope: health.Readiness, Func: health.PingCheck(pool), Timeout: 5 * time.Second},
		{Name: "goroutines", Scope: health.Liveness, Func: health.GoroutineCountCheck(10000)},
	}
	if cfg.Expiry.SweepInterval > 0 {
		// A stuck sweeper leaves pending orders past their deadline.
		checks = append(checks, health.Check{
			Name:  "sweeper",
			Scope: health.Readiness,
			Func:  health.FreshnessCheck(sweeper.LastRun, 3*cfg.Expiry.SweepInterval),
		})
	}
	healthReg := health.NewRegistry()
	for _, c := range checks {
		if err := healthReg.Register(c); err != nil {
			return errors.Wrap(err, "register health check")
		}
	}
	healthReg.SetServing(true)

	// HTTP handlers.
	h := handler.NewHandler(
		handler.Config{},
		menuRepo,
		offerRepo,
		cartService,
		orderService,
		reconciler,
		handler.NewSecurity(apikeyRepo, []byte(cfg.APIKeyPepper), []byte(cfg.Auth.AccessTokenSecret)),
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthReg.Handler(health.Liveness))
	mux.HandleFunc("/readyz", healthReg.Handler(health.Readiness))
	h.Register(mux)
	routeFinder := httpmiddleware.MakeRouteFinder(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", handler.APIKeyHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
				Max:     cfg.RateLimit.Max,
				Window:  cfg.RateLimit.Window,
				KeyFunc: httpmiddleware.BearerOrIPKey,
				Skip: func(r *http.Request) bool {
					return r.URL.Path == "/api/payments/webhook"
				},
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("orders-api", routeFinder, m),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
		),
	}

	g, gctx := errgroup.WithContext(ctx)

	// Background workers.
	g.Go(func() error {
		return healthReg.Run(gctx, 10*time.Second)
	})
	if mailer != nil {
		g.Go(func() error {
			return mailer.Run(gctx)
		})
	}
	if cfg.Expiry.SweepInterval > 0 {
		g.Go(func() error {
			return sweeper.Run(zctx.Base(gctx, lg), cfg.Expiry.SweepInterval)
		})
	}

	// Graceful shutdown: wait for cancellation, drain, then stop.
	g.Go(func() error {
		<-gctx.Done()
		healthReg.SetServing(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		return nil
	})

	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	return g.Wait()
}
