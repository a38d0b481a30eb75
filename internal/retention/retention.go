// Package retention periodically removes old activity records.
package retention

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultSchedule runs the cleanup once a day.
const DefaultSchedule = "@daily"

// Pruner removes records older than a point in time. store.Store satisfies it.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// Config is disabled when MaxAge is zero.
type Config struct {
	Schedule string        `mapstructure:"schedule"`
	MaxAge   time.Duration `mapstructure:"max-age"`
}

func (c Config) Enabled() bool {
	return c.MaxAge > 0
}

// Scheduler runs the cleanup on a cron schedule.
type Scheduler struct {
	cron   *cron.Cron
	cfg    Config
	pruner Pruner
	logger *zap.Logger
	now    func() time.Time
}

func New(cfg Config, pruner Pruner, logger *zap.Logger) (*Scheduler, error) {
	if !cfg.Enabled() {
		return nil, errors.New("retention max age must be positive")
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("schedule", cfg.Schedule), zap.Duration("max_age", cfg.MaxAge))

	return &Scheduler{
		cron:   cron.New(cron.WithLogger(cronLogger{logger.Sugar()})),
		cfg:    cfg,
		pruner: pruner,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Start registers the cleanup job and starts the scheduler. Jobs use ctx,
// which should outlive the scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.Error("activity log cleanup failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", s.cfg.Schedule, err)
	}

	s.cron.Start()
	s.logger.Info("activity log retention started")

	return nil
}

// Stop stops the scheduler and waits for a running cleanup to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("activity log retention stopped")
}

// RunOnce removes every record older than the configured max age.
func (s *Scheduler) RunOnce(ctx context.Context) (int64, error) {
	before := s.now().Add(-s.cfg.MaxAge)

	removed, err := s.pruner.Prune(ctx, before)
	if err != nil {
		return 0, err
	}

	s.logger.Info("activity log cleaned up", zap.Int64("removed", removed), zap.Time("before", before))
	return removed, nil
}

// cronLogger routes cron's own messages into zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
