package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"playerhooks/internal/metrics"
	"playerhooks/internal/models"
	"playerhooks/internal/webhook"
)

const defaultRecheckInterval = time.Minute

// Failover schedules on primary and switches to fallback when primary fails. While primary
// is down it is retried at most once per recheck interval.
type Failover struct {
	primary  Backend
	fallback Backend
	logger   zerolog.Logger

	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
	interval  time.Duration
	now       func() time.Time
}

func NewFailover(primary, fallback Backend, logger zerolog.Logger) *Failover {
	return &Failover{
		primary:  primary,
		fallback: fallback,
		logger:   logger.With().Str("component", "queue_failover").Logger(),
		interval: defaultRecheckInterval,
		now:      time.Now,
	}
}

func (f *Failover) Name() string {
	return f.primary.Name() + "+" + f.fallback.Name()
}

func (f *Failover) Start(ctx context.Context, h webhook.Handler) {
	f.primary.Start(ctx, h)
	f.fallback.Start(ctx, h)
}

func (f *Failover) Stop() {
	f.primary.Stop()
	f.fallback.Stop()
}

// Pending sums both backends. While the primary is down only the fallback is counted.
func (f *Failover) Pending(ctx context.Context) (int64, error) {
	n, err := f.fallback.Pending(ctx)
	if err != nil {
		return 0, err
	}
	if f.isDown.Load() {
		return n, nil
	}
	p, err := f.primary.Pending(ctx)
	if err != nil {
		return 0, err
	}
	return n + p, nil
}

func (f *Failover) Schedule(ctx context.Context, job models.DeliveryJob, delay time.Duration) error {
	if f.shouldTryPrimary() {
		err := f.primary.Schedule(ctx, job, delay)
		if err == nil {
			if f.isDown.CompareAndSwap(true, false) {
				f.logger.Info().Str("backend", f.primary.Name()).Msg("primary scheduler recovered")
			}
			return nil
		}
		f.markDown(err)
	}

	metrics.IncFailover(f.fallback.Name())
	return f.fallback.Schedule(ctx, job, delay)
}

func (f *Failover) shouldTryPrimary() bool {
	if !f.isDown.Load() {
		return true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.now().Sub(f.lastCheck) < f.interval {
		return false
	}
	f.lastCheck = f.now()
	return true
}

func (f *Failover) markDown(err error) {
	f.mu.Lock()
	f.lastCheck = f.now()
	f.mu.Unlock()
	if !f.isDown.Swap(true) {
		f.logger.Warn().Err(err).
			Str("primary", f.primary.Name()).
			Str("fallback", f.fallback.Name()).
			Msg("primary scheduler failed, switching to fallback")
	}
}
