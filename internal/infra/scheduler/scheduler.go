package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// ResponseSweeper marks unanswered deliveries as timed out.
type ResponseSweeper interface {
	SweepTimeouts(ctx context.Context) (int64, error)
}

// CooldownPruner drops expired in-process cooldown entries.
type CooldownPruner interface {
	Prune(now time.Time, window time.Duration) int
}

// SweepObserver is told how many records a sweep touched.
type SweepObserver interface {
	ResponsesTimedOut(n int64)
}

type AlertScheduler struct {
	cronEngine     *cron.Cron
	sweeper        ResponseSweeper
	pruner         CooldownPruner // nil when cooldown state lives in Redis
	observer       SweepObserver
	cooldownWindow time.Duration
	logger         *logrus.Entry
	cronSpecSweep  string
	cronSpecPrune  string
}

func NewAlertScheduler(
	sweeper ResponseSweeper,
	pruner CooldownPruner,
	observer SweepObserver,
	cooldownWindow time.Duration,
	logger *logrus.Entry,
	cronSpecSweep string, // e.g., "* * * * *" (every minute)
	cronSpecPrune string, // e.g., "0 * * * *" (hourly)
) *AlertScheduler {
	return &AlertScheduler{
		cronEngine:     cron.New(cron.WithLocation(time.UTC)),
		sweeper:        sweeper,
		pruner:         pruner,
		observer:       observer,
		cooldownWindow: cooldownWindow,
		logger:         logger,
		cronSpecSweep:  cronSpecSweep,
		cronSpecPrune:  cronSpecPrune,
	}
}

// Start registers the jobs and starts the cron engine. A bad cron spec is returned, not fatal.
func (s *AlertScheduler) Start() error {
	s.logger.Info("Starting alert scheduler...")

	if _, err := s.cronEngine.AddFunc(s.cronSpecSweep, s.runResponseSweep); err != nil {
		return err
	}

	if s.pruner != nil {
		if _, err := s.cronEngine.AddFunc(s.cronSpecPrune, s.runCooldownPrune); err != nil {
			return err
		}
	}

	s.cronEngine.Start()
	s.logger.WithField("jobs", len(s.cronEngine.Entries())).Info("Alert scheduler started")
	return nil
}

func (s *AlertScheduler) runResponseSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Minute) // Context for the job
	defer cancel()

	n, err := s.sweeper.SweepTimeouts(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Response timeout sweep failed")
		return
	}
	if s.observer != nil && n > 0 {
		s.observer.ResponsesTimedOut(n)
	}
	s.logger.WithField("records", n).Debug("Response timeout sweep finished")
}

func (s *AlertScheduler) runCooldownPrune() {
	removed := s.pruner.Prune(time.Now(), s.cooldownWindow)
	s.logger.WithField("removed", removed).Debug("Cooldown entries pruned")
}

func (s *AlertScheduler) Stop() {
	s.logger.Info("Stopping alert scheduler...")
	ctx := s.cronEngine.Stop() // Stops the scheduler from adding new jobs, waits for running jobs.
	<-ctx.Done()               // Wait for graceful shutdown
	s.logger.Info("Alert scheduler gracefully stopped.")
}
