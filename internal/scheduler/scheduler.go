// Package scheduler runs the idle maintenance sweeps on fixed intervals.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/iliyamo/segment-reservation/internal/config"
	"github.com/iliyamo/segment-reservation/internal/logger"
	"github.com/iliyamo/segment-reservation/internal/service"
)

// jobTimeout bounds one run of a sweep job.
const jobTimeout = 30 * time.Second

// Scheduler owns a gocron scheduler with one duration job per sweep.
type Scheduler struct {
	inner   gocron.Scheduler
	sweeper *service.Sweeper
	log     *logger.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

// New registers the sweep jobs. Nothing runs until Start.
func New(sw *service.Sweeper, cfg config.SchedulerConfig, log *logger.Logger, opts ...gocron.SchedulerOption) (*Scheduler, error) {
	if log == nil {
		log = logger.Discard()
	}
	inner, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, fmt.Errorf("init scheduler: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{inner: inner, sweeper: sw, log: log, ctx: ctx, cancel: cancel}

	jobs := []struct {
		name  string
		every time.Duration
		run   func(context.Context) (int64, error)
	}{
		{"expire-holds", cfg.HoldsEvery, func(ctx context.Context) (int64, error) {
			n, err := sw.ExpireHolds(ctx)
			return int64(n), err
		}},
		{"expire-overbookings", cfg.OverbookingEvery, func(ctx context.Context) (int64, error) {
			n, err := sw.ExpireOverbookings(ctx)
			return int64(n), err
		}},
		{"mark-no-shows", cfg.NoShowsEvery, func(ctx context.Context) (int64, error) {
			n, err := sw.NoShows(ctx)
			return int64(n), err
		}},
		{"purge-holds", cfg.CleanupEvery, sw.PurgeHolds},
	}
	if cfg.AutoTripStatus {
		jobs = append(jobs, struct {
			name  string
			every time.Duration
			run   func(context.Context) (int64, error)
		}{"advance-trips", cfg.TripsEvery, func(ctx context.Context) (int64, error) {
			n, err := sw.AdvanceTrips(ctx)
			return int64(n), err
		}})
	}

	for _, j := range jobs {
		if j.every <= 0 {
			log.Warn("SWEEP", fmt.Sprintf("job %s disabled: interval %s", j.name, j.every))
			continue
		}
		_, err := inner.NewJob(
			gocron.DurationJob(j.every),
			gocron.NewTask(s.runJob, j.name, j.run),
			gocron.WithName(j.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			cancel()
			_ = inner.Shutdown()
			return nil, fmt.Errorf("register %s: %w", j.name, err)
		}
	}
	return s, nil
}

func (s *Scheduler) runJob(name string, run func(context.Context) (int64, error)) {
	ctx, cancel := context.WithTimeout(s.ctx, jobTimeout)
	defer cancel()
	n, err := run(ctx)
	if err != nil {
		s.log.Error("SWEEP", fmt.Sprintf("%s failed: %v", name, err))
		return
	}
	if n > 0 {
		s.log.Info("SWEEP", fmt.Sprintf("%s: %d affected", name, n))
	}
}

// Jobs returns the names of the registered jobs.
func (s *Scheduler) Jobs() []string {
	var names []string
	for _, j := range s.inner.Jobs() {
		names = append(names, j.Name())
	}
	return names
}

func (s *Scheduler) Start() {
	s.inner.Start()
	s.log.Info("SWEEP", fmt.Sprintf("scheduler started with %d jobs", len(s.inner.Jobs())))
}

// Shutdown cancels running jobs and waits for them to return.
func (s *Scheduler) Shutdown() error {
	s.cancel()
	return s.inner.Shutdown()
}
