package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ms-promotion/internal/auth"
	"ms-promotion/internal/config"
	"ms-promotion/internal/database"
	"ms-promotion/internal/database/migrations"
	"ms-promotion/internal/logger"
	"ms-promotion/internal/notification"
	"ms-promotion/internal/payment"
	"ms-promotion/internal/promotion"
	"ms-promotion/internal/promotion/db"
	"ms-promotion/internal/promotion/promotion_api"
	rediswrap "ms-promotion/internal/promotion/redis"
	"ms-promotion/internal/scheduler"
	"ms-promotion/internal/sse"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting Promotion Service initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("APP", err.Error())
	}
	log.Info("APP", "Promotion Service shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	bunDB, err := database.OpenPostgres(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer bunDB.Close()

	runner := migrations.NewRunner(bunDB, migrations.MigrateOptions{
		MigrationsDir: cfg.Migrations.Dir,
		AutoMigrate:   cfg.Migrations.AutoMigrate,
	}, log)
	if err := runner.RunMigrations(); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	redisClient, err := database.OpenRedis(ctx, cfg.Redis, log)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	notifier, closeNotifier := notification.FromConfig(ctx, cfg.Kafka, log)
	defer closeNotifier()

	gateway, err := payment.NewStripeGateway(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret, log)
	if err != nil {
		return err
	}

	verifier, err := newVerifier(ctx, cfg.Auth, log)
	if err != nil {
		return err
	}

	pricing := promotion.DefaultPricingTable()
	emitter := sse.NewPromotionEventEmitter()
	service := promotion.NewPromotionService(
		db.New(bunDB),
		gateway,
		rediswrap.NewRedis(redisClient, cfg.Promotion.LockTTL, log),
		notifier,
		emitter,
		pricing,
		promotion.Options{
			Currency:        cfg.Promotion.Currency,
			SuccessURL:      cfg.Stripe.SuccessURL,
			CancelURL:       cfg.Stripe.CancelURL,
			GatewayTimeout:  cfg.Stripe.Timeout,
			PendingOrderTTL: cfg.Promotion.PendingOrderTTL,
		},
		log,
	)

	sched, err := scheduler.New(ctx, service, cfg.Promotion, log)
	if err != nil {
		return err
	}

	router := promotion_api.NewRouter(
		promotion_api.NewHandler(service, gateway, log),
		promotion_api.NewSSEHandler(service, emitter, log),
		auth.Middleware(verifier, log),
		log,
	)
	server := &http.Server{
		Addr:        cfg.Server.Port,
		Handler:     router,
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
		// WriteTimeout stays zero: it would cut off SSE streams.
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("HTTP", fmt.Sprintf("Promotion Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return sched.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	return g.Wait()
}

func newVerifier(ctx context.Context, cfg config.AuthConfig, log *logger.Logger) (auth.TokenVerifier, error) {
	if cfg.OIDCIssuer == "" {
		log.Warn("AUTH", "OIDC_ISSUER not set, bearer tokens are NOT verified")
		return auth.UnverifiedVerifier(), nil
	}
	verifier, err := auth.NewOIDCVerifier(ctx, cfg.OIDCIssuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery for %s: %w", cfg.OIDCIssuer, err)
	}
	log.Info("AUTH", fmt.Sprintf("Verifying bearer tokens against %s", cfg.OIDCIssuer))
	return verifier, nil
}
