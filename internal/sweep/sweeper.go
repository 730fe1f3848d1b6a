// Package sweep replays scrape runs that never finished processing, on a
// cron schedule. A run can stall when the service restarts mid-batch or the
// dataset was temporarily unfetchable.
package sweep

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/config"
	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/domain"
	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/logger"
)

// StaleRunSource finds unfinished runs old enough to replay and bumps their
// attempt counter.
type StaleRunSource interface {
	FindStale(ctx context.Context, now time.Time, maxRetries int) ([]domain.ProcessedRun, error)
	IncrementRetry(ctx context.Context, id string) error
}

// Enqueuer re-submits a run to the processing queue.
type Enqueuer interface {
	Enqueue(run *domain.ProcessedRun) bool
}

// Sweeper periodically scans for stale unfinished runs and feeds them back
// into the worker queue.
type Sweeper struct {
	runs  StaleRunSource
	queue Enqueuer
	cfg   config.SweepConfig
	log   logger.Logger
	cron  *cron.Cron
	now   func() time.Time
}

// New creates a sweeper. Call Start to begin scheduling.
func New(runs StaleRunSource, queue Enqueuer, cfg config.SweepConfig, log logger.Logger) *Sweeper {
	return &Sweeper{
		runs:  runs,
		queue: queue,
		cfg:   cfg,
		cron:  cron.New(),
		log:   log,
		now:   time.Now,
	}
}

// Start registers the sweep on its cron schedule and starts the scheduler.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		s.Sweep(context.Background())
	}); err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info("Stale-run sweep scheduled", logger.String("schedule", s.cfg.Schedule))
	return nil
}

// Stop halts the scheduler and waits for any in-flight sweep.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep runs one pass: every stale run gets its retry counter bumped and is
// re-enqueued. Returns the number of runs handed back to the queue.
func (s *Sweeper) Sweep(ctx context.Context) int {
	stale, err := s.runs.FindStale(ctx, s.now(), s.cfg.MaxRetries)
	if err != nil {
		s.log.Error("Stale-run scan failed", logger.Error(err))
		return 0
	}
	if len(stale) == 0 {
		return 0
	}

	enqueued := 0
	for i := range stale {
		run := stale[i]
		if err := s.runs.IncrementRetry(ctx, run.ID); err != nil {
			s.log.Error("Could not bump retry counter",
				logger.String("run_id", run.RunID),
				logger.Error(err),
			)
			continue
		}
		run.RetryCount++

		if !s.queue.Enqueue(&run) {
			// Queue is full. The run stays unfinished and the next sweep
			// sees it again.
			s.log.Warn("Queue full, replay deferred", logger.String("run_id", run.RunID))
			continue
		}

		s.log.Info("Replaying stale run",
			logger.String("run_id", run.RunID),
			logger.Int("retry", run.RetryCount),
		)
		enqueued++
	}
	return enqueued
}
