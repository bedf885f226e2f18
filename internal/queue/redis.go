package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"playerhooks/internal/models"
	"playerhooks/internal/webhook"
)

// Redis keeps jobs in a sorted set scored by due time in unix milliseconds. A job belongs
// to the poller whose ZREM removed it.
type Redis struct {
	client redis.Cmdable
	key    string
	opts   Options
	logger zerolog.Logger
	now    func() time.Time
	poller poller

	mu      sync.RWMutex
	handler webhook.Handler
}

func NewRedis(client redis.Cmdable, key string, opts Options, logger zerolog.Logger) *Redis {
	opts = opts.withDefaults()
	l := logger.With().Str("component", "queue_redis").Logger()
	return &Redis{
		client: client,
		key:    key,
		opts:   opts,
		logger: l,
		now:    time.Now,
		poller: poller{interval: opts.PollInterval, logger: l},
	}
}

func (q *Redis) Name() string { return "redis" }

func (q *Redis) Schedule(ctx context.Context, job models.DeliveryJob, delay time.Duration) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	due := q.now().Add(delay).UnixMilli()
	if err := q.client.ZAdd(ctx, q.key, redis.Z{Score: float64(due), Member: string(payload)}).Err(); err != nil {
		return fmt.Errorf("redis schedule %s: %w", job.ID, err)
	}
	return nil
}

func (q *Redis) Start(ctx context.Context, h webhook.Handler) {
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

func (q *Redis) Stop() {
	q.poller.stop()
}

// Pending returns the number of scheduled jobs.
func (q *Redis) Pending(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, q.key).Result()
}

// RunDue claims one batch of due jobs, handles them and returns how many ran.
func (q *Redis) RunDue(ctx context.Context) (int, error) {
	q.mu.RLock()
	h := q.handler
	q.mu.RUnlock()
	if h == nil {
		return 0, ErrNotStarted
	}

	members, err := q.client.ZRangeByScore(ctx, q.key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(q.now().UnixMilli(), 10),
		Count: int64(q.opts.BatchSize),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("list due jobs: %w", err)
	}

	var claimed []models.DeliveryJob
	for _, m := range members {
		n, err := q.client.ZRem(ctx, q.key, m).Result()
		if err != nil {
			return 0, fmt.Errorf("claim job: %w", err)
		}
		if n == 0 {
			continue
		}
		var job models.DeliveryJob
		if err := json.Unmarshal([]byte(m), &job); err != nil {
			q.logger.Error().Err(err).Msg("dropping undecodable job")
			continue
		}
		claimed = append(claimed, job)
	}

	runBounded(claimed, q.opts.Concurrency, func(job models.DeliveryJob) {
		h.Handle(ctx, job)
	})
	return len(claimed), nil
}
