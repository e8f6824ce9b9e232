package scheduler

import (
	"context"
	"fmt"
	"time"

	"ms-promotion/internal/config"
	"ms-promotion/internal/logger"

	"github.com/go-co-op/gocron/v2"
)

type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
	SweepStaleOrders(ctx context.Context) (int, error)
}

// Scheduler runs the premium expiry sweep on a cron schedule and the stale order sweep on a
// fixed interval. Overlapping runs of the same job are skipped.
type Scheduler struct {
	cron gocron.Scheduler
	jobs []gocron.Job
	log  *logger.Logger
}

// New registers both jobs. ctx is handed to every run, so cancelling it interrupts a sweep in
// progress.
func New(ctx context.Context, sweeper Sweeper, cfg config.PromotionConfig, log *logger.Logger, opts ...gocron.SchedulerOption) (*Scheduler, error) {
	cron, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	s := &Scheduler{cron: cron, log: log}

	premium, err := cron.NewJob(
		gocron.CronJob(cfg.PremiumSweepCron, false),
		gocron.NewTask(func() {
			revoked, err := sweeper.Sweep(ctx)
			if err != nil {
				log.Error("SCHEDULER", fmt.Sprintf("Premium expiry sweep failed after %d revocations: %v", revoked, err))
			}
		}),
		gocron.WithName("premium-expiry-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = cron.Shutdown()
		return nil, fmt.Errorf("schedule premium sweep %q: %w", cfg.PremiumSweepCron, err)
	}

	interval := cfg.StaleSweepInterval
	if interval <= 0 {
		interval = time.Hour
	}
	stale, err := cron.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if _, err := sweeper.SweepStaleOrders(ctx); err != nil {
				log.Error("SCHEDULER", fmt.Sprintf("Stale order sweep failed: %v", err))
			}
		}),
		gocron.WithName("stale-order-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = cron.Shutdown()
		return nil, fmt.Errorf("schedule stale order sweep: %w", err)
	}

	s.jobs = []gocron.Job{premium, stale}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	for _, job := range s.jobs {
		if next, err := job.NextRun(); err == nil {
			s.log.Info("SCHEDULER", fmt.Sprintf("Job %s next run at %s", job.Name(), next.Format(time.RFC3339)))
		}
	}
}

// RunNow triggers every job once without changing the schedule. The scheduler must be started.
func (s *Scheduler) RunNow() error {
	for _, job := range s.jobs {
		if err := job.RunNow(); err != nil {
			return fmt.Errorf("run %s: %w", job.Name(), err)
		}
	}
	return nil
}

// Shutdown stops scheduling and waits for running jobs.
func (s *Scheduler) Shutdown() error {
	return s.cron.Shutdown()
}

// Run starts the scheduler and blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.Start()
	<-ctx.Done()
	s.log.Info("SCHEDULER", "Shutting down scheduler")
	return s.Shutdown()
}
