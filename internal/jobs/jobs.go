// Package jobs runs the scheduled maintenance tasks.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const jobTimeout = 2 * time.Minute

// CounterResetter zeroes the per-day booking counters.
type CounterResetter interface {
	ResetDailyCounters(ctx context.Context) (int, error)
}

type Scheduler struct {
	cron *cron.Cron
	log  *zap.Logger
}

// NewScheduler evaluates schedules in loc.
func NewScheduler(loc *time.Location, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		cron: cron.New(cron.WithLocation(loc), cron.WithChain(cron.Recover(cronLogger{log}))),
		log:  log,
	}
}

// AddDailyReset runs the todayBookings reset on spec (standard 5-field cron).
func (s *Scheduler) AddDailyReset(spec string, r CounterResetter) error {
	if _, err := s.cron.AddFunc(spec, DailyReset(r, s.log)); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return nil
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop waits for running jobs to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// DailyReset returns the job body for the counter reset.
func DailyReset(r CounterResetter, log *zap.Logger) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		start := time.Now()
		n, err := r.ResetDailyCounters(ctx)
		if err != nil {
			log.Error("daily reset failed", zap.Int("reset", n), zap.Error(err))
			return
		}
		log.Info("daily reset done", zap.Int("reset", n), zap.Duration("took", time.Since(start)))
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct{ log *zap.Logger }

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.Sugar().Infow(msg, kv...)
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Sugar().Errorw(msg, append(kv, "error", err)...)
}
