// Command sweeper runs one premium expiry sweep and one stale order sweep, then exits.
// It is meant for an external cron such as a Kubernetes CronJob.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ms-promotion/internal/config"
	"ms-promotion/internal/database"
	"ms-promotion/internal/logger"
	"ms-promotion/internal/notification"
	"ms-promotion/internal/promotion"
	"ms-promotion/internal/promotion/db"

	"github.com/joho/godotenv"
)

func main() {
	log := logger.New(os.Stdout)
	_ = godotenv.Load()
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, cfg, log)
	stop()
	if err != nil {
		log.Fatal("SWEEPER", err.Error())
	}
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	bunDB, err := database.OpenPostgres(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer bunDB.Close()

	notifier, closeNotifier := notification.FromConfig(ctx, cfg.Kafka, log)
	defer closeNotifier()

	// no gateway and no lock: sweeps never start a checkout
	service := promotion.NewPromotionService(db.New(bunDB), nil, nil, notifier, nil,
		promotion.DefaultPricingTable(), promotion.Options{
			Currency:        cfg.Promotion.Currency,
			PendingOrderTTL: cfg.Promotion.PendingOrderTTL,
		}, log)

	revoked, sweepErr := service.Sweep(ctx)
	removed, staleErr := service.SweepStaleOrders(ctx)
	log.Info("SWEEPER", fmt.Sprintf("Done: %d premium windows revoked, %d stale orders removed", revoked, removed))

	if sweepErr != nil {
		return fmt.Errorf("premium expiry sweep incomplete: %w", sweepErr)
	}
	if staleErr != nil {
		return fmt.Errorf("stale order sweep failed: %w", staleErr)
	}
	return nil
}
