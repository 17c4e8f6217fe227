package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"

	"glowsalon/backend/internal/domain"
	"glowsalon/backend/internal/logging"
)

const lockTTL = 2 * time.Minute

type Roller interface {
	RollupDay(ctx context.Context, day time.Time) (domain.RollupResponse, error)
}

// RollupRunner rebuilds yesterday's and today's daily summaries on a fixed
// interval. With a locker only one instance per salon does the work on each
// tick.
type RollupRunner struct {
	roller   Roller
	locker   *redislock.Client
	lockKey  string
	interval time.Duration
	logger   logrus.FieldLogger
	now      func() time.Time
}

// NewRollupRunner builds a runner. A nil locker runs every tick unguarded.
func NewRollupRunner(roller Roller, locker *redislock.Client, salonID string, interval time.Duration, logger logrus.FieldLogger) *RollupRunner {
	if logger == nil {
		logger = logging.Discard()
	}
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &RollupRunner{
		roller:   roller,
		locker:   locker,
		lockKey:  fmt.Sprintf("salon:%s:rollup", salonID),
		interval: interval,
		logger:   logger.WithField("module", "jobs"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run rolls up once immediately and then on every tick until ctx is done.
func (r *RollupRunner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			logging.LogError(r.logger, "jobs", "Run", "daily rollup failed", r.lockKey, err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce rolls up yesterday and today. Yesterday is included so tickets
// rung up just before midnight land in a summary.
func (r *RollupRunner) RunOnce(ctx context.Context) error {
	if r.locker != nil {
		lock, err := r.locker.Obtain(ctx, r.lockKey, lockTTL, nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			r.logger.WithField("lock", r.lockKey).Debug("rollup already running elsewhere")
			return nil
		}
		if err != nil {
			return fmt.Errorf("obtain rollup lock: %w", err)
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				r.logger.WithError(err).Warn("release rollup lock")
			}
		}()
	}

	today := r.now()
	for _, day := range []time.Time{today.AddDate(0, 0, -1), today} {
		result, err := r.roller.RollupDay(ctx, day)
		if err != nil {
			return fmt.Errorf("rollup %s: %w", day.Format("2006-01-02"), err)
		}
		r.logger.WithFields(logrus.Fields{"date": result.Date, "transactions": result.Transactions}).Debug("rollup done")
	}
	return nil
}
