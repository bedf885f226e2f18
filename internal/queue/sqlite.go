package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"playerhooks/internal/database"
	"playerhooks/internal/models"
	"playerhooks/internal/webhook"
)

// JobStore is the persistent job table.
type JobStore interface {
	EnqueueJob(ctx context.Context, job models.DeliveryJob, runAt time.Time) error
	ClaimDueJobs(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]database.QueuedJob, error)
	CompleteJob(ctx context.Context, seq int64) error
	CountJobs(ctx context.Context) (int64, error)
}

// Options tune the polling backends.
type Options struct {
	PollInterval time.Duration
	BatchSize    int
	Concurrency  int
	// JobTimeout is the longest a single delivery can take.
	JobTimeout time.Duration
	// RatePerSecond is the outbound delivery rate limit, zero when unlimited.
	RatePerSecond float64
	// Lease is how long a claimed sqlite job stays invisible to other pollers. It is never
	// shorter than the time a full batch can take, see batchLease.
	Lease time.Duration
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = 5 * time.Second
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 50
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.JobTimeout <= 0 {
		o.JobTimeout = 7 * time.Second
	}
	if floor := o.batchLease(); o.Lease < floor {
		o.Lease = floor
	}
	return o
}

// batchLease is the worst case for handling one claimed batch: every round of Concurrency
// jobs runs into JobTimeout, plus the rate limiter spacing the whole batch, plus one poll
// interval of slack. The result is at least one minute.
func (o Options) batchLease() time.Duration {
	rounds := (o.BatchSize + o.Concurrency - 1) / o.Concurrency
	d := time.Duration(rounds)*o.JobTimeout + o.PollInterval
	if o.RatePerSecond > 0 {
		d += time.Duration(float64(o.BatchSize) / o.RatePerSecond * float64(time.Second))
	}
	if d < time.Minute {
		d = time.Minute
	}
	return d
}

// poller is the ticker loop shared by the async backends.
type poller struct {
	interval time.Duration
	logger   zerolog.Logger
	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	done     chan struct{}
}

func (p *poller) start(ctx context.Context, tick func(context.Context)) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.done = make(chan struct{})
	stopCh, done := p.stopCh, p.done
	p.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		p.logger.Info().Dur("interval", p.interval).Msg("delivery poller started")
		tick(ctx)
		for {
			select {
			case <-ctx.Done():
				p.logger.Info().Msg("delivery poller stopped by context")
				return
			case <-stopCh:
				p.logger.Info().Msg("delivery poller stopped")
				return
			case <-ticker.C:
				tick(ctx)
			}
		}
	}()
}

func (p *poller) stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	done := p.done
	p.mu.Unlock()
	<-done
}

// runBounded calls fn for every item with at most limit calls in flight and waits for all.
func runBounded[T any](items []T, limit int, fn func(T)) {
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup
	for _, it := range items {
		sem <- struct{}{}
		wg.Add(1)
		go func(it T) {
			defer wg.Done()
			defer func() { <-sem }()
			fn(it)
		}(it)
	}
	wg.Wait()
}

// SQLite persists jobs in the delivery_jobs table and polls for due ones.
type SQLite struct {
	store  JobStore
	opts   Options
	logger zerolog.Logger
	now    func() time.Time
	poller poller

	mu      sync.RWMutex
	handler webhook.Handler
}

func NewSQLite(store JobStore, opts Options, logger zerolog.Logger) *SQLite {
	opts = opts.withDefaults()
	l := logger.With().Str("component", "queue_sqlite").Logger()
	return &SQLite{
		store:  store,
		opts:   opts,
		logger: l,
		now:    time.Now,
		poller: poller{interval: opts.PollInterval, logger: l},
	}
}

func (q *SQLite) Name() string { return "sqlite" }

func (q *SQLite) Schedule(ctx context.Context, job models.DeliveryJob, delay time.Duration) error {
	if err := q.store.EnqueueJob(ctx, job, q.now().Add(delay)); err != nil {
		return fmt.Errorf("sqlite schedule %s: %w", job.ID, err)
	}
	return nil
}

func (q *SQLite) Start(ctx context.Context, h webhook.Handler) {
	q.mu.Lock()
	q.handler = h
	q.mu.Unlock()

	q.poller.start(ctx, func(ctx context.Context) {
		if _, err := q.RunDue(ctx); err != nil {
			q.logger.Error().Err(err).Msg("failed to run due jobs")
		}
		reportPending(ctx, q, q.logger)
	})
}

func (q *SQLite) Stop() {
	q.poller.stop()
}

// Pending returns the number of queued rows, including claimed ones not yet completed.
func (q *SQLite) Pending(ctx context.Context) (int64, error) {
	return q.store.CountJobs(ctx)
}

// RunDue claims one batch of due jobs, handles them and returns how many ran.
func (q *SQLite) RunDue(ctx context.Context) (int, error) {
	q.mu.RLock()
	h := q.handler
	q.mu.RUnlock()
	if h == nil {
		return 0, ErrNotStarted
	}

	jobs, err := q.store.ClaimDueJobs(ctx, q.now(), q.opts.Lease, q.opts.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("claim due jobs: %w", err)
	}

	runBounded(jobs, q.opts.Concurrency, func(qj database.QueuedJob) {
		h.Handle(ctx, qj.Job)
		if err := q.store.CompleteJob(ctx, qj.Seq); err != nil {
			q.logger.Error().Err(err).Int64("seq", qj.Seq).Str("job_id", qj.Job.ID).Msg("failed to complete job")
		}
	})
	return len(jobs), nil
}
