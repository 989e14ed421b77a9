// Package scheduler runs the till's background jobs on cron specs.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Job is one unit of background work. Online gates it: while it reports
// false the run is skipped without logging.
type Job struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Online  func(ctx context.Context) bool
	Run     func(ctx context.Context) error
}

type Scheduler struct {
	cron *cron.Cron
}

func New() *Scheduler {
	return &Scheduler{cron: cron.New(cron.WithParser(cronParser))}
}

// Add registers job. An empty spec leaves the job disabled.
func (s *Scheduler) Add(job Job) error {
	if job.Spec == "" {
		zap.L().Info("job disabled", zap.String("job", job.Name))
		return nil
	}
	if _, err := s.cron.AddFunc(job.Spec, wrap(job)); err != nil {
		return fmt.Errorf("schedule %s (%q): %w", job.Name, job.Spec, err)
	}
	zap.L().Info("job scheduled", zap.String("job", job.Name), zap.String("spec", job.Spec))
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop waits for running jobs or for ctx, whichever comes first.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

func wrap(job Job) func() {
	timeout := job.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}

	return func() {
		defer func() {
			if err := recover(); err != nil {
				zap.L().Error("job panicked", zap.String("job", job.Name), zap.Any("panic", err))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if job.Online != nil && !job.Online(ctx) {
			return
		}

		start := time.Now()
		if err := job.Run(ctx); err != nil {
			zap.L().Warn("job failed", zap.String("job", job.Name), zap.Error(err))
			return
		}
		zap.L().Debug("job finished", zap.String("job", job.Name), zap.Duration("took", time.Since(start)))
	}
}
