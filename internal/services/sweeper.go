package services

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/keygate-io/keygate/internal/store"
	"github.com/keygate-io/keygate/pkg/logger"
)

const defaultSweepSchedule = "@every 5m"

// Sweeper periodically removes records whose expiry has passed. Revoked keys
// are superseded (expiry moved to now) rather than deleted, so the sweep is
// also what eventually reclaims them.
type Sweeper struct {
	records  store.RecordStore
	cron     *cron.Cron
	schedule string
	now      func() time.Time
	log      *zap.Logger
}

// SweeperOption customises the Sweeper.
type SweeperOption func(*Sweeper)

// WithSweepSchedule overrides the cron specification.
func WithSweepSchedule(spec string) SweeperOption {
	return func(s *Sweeper) {
		if spec != "" {
			s.schedule = spec
		}
	}
}

// WithSweepCron injects a preconfigured cron instance, primarily for testing.
func WithSweepCron(c *cron.Cron) SweeperOption {
	return func(s *Sweeper) {
		if c != nil {
			s.cron = c
		}
	}
}

// WithSweepNow overrides the clock used for expiry comparisons.
func WithSweepNow(now func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSweeper constructs the background expiry sweep.
func NewSweeper(records store.RecordStore, opts ...SweeperOption) (*Sweeper, error) {
	if records == nil {
		return nil, errors.New("sweeper: record store is required")
	}

	sweeper := &Sweeper{
		records:  records,
		cron:     cron.New(),
		schedule: defaultSweepSchedule,
		now:      time.Now,
		log:      logger.WithModule("sweeper"),
	}
	for _, opt := range opts {
		opt(sweeper)
	}
	return sweeper, nil
}

// Start schedules the sweep and begins running it.
func (s *Sweeper) Start() error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.RunOnce(context.Background()); err != nil {
			s.log.Error("expiry sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.log.Info("expiry sweep scheduled", zap.String("schedule", s.schedule))
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// RunOnce performs a single sweep and reports how many records were removed.
func (s *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	swept, err := s.records.DeleteExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}
	if swept > 0 {
		s.log.Info("expired keys swept", zap.Int64("count", swept))
	}
	return swept, nil
}
