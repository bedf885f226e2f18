package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"playerhooks/internal/models"
	"playerhooks/internal/webhook"
)

// Inline runs jobs synchronously in the caller's goroutine. It cannot hold a job for later,
// so delayed retries are refused and the worker treats the job as exhausted.
type Inline struct {
	mu      sync.RWMutex
	handler webhook.Handler
	logger  zerolog.Logger
}

func NewInline(logger zerolog.Logger) *Inline {
	return &Inline{logger: logger.With().Str("component", "queue_inline").Logger()}
}

func (q *Inline) Name() string { return "inline" }

func (q *Inline) Start(_ context.Context, h webhook.Handler) {
	q.mu.Lock()
	q.handler = h
	q.mu.Unlock()
}

func (q *Inline) Stop() {}

// Pending is always zero: inline jobs run before Schedule returns.
func (q *Inline) Pending(context.Context) (int64, error) { return 0, nil }

func (q *Inline) Schedule(ctx context.Context, job models.DeliveryJob, delay time.Duration) error {
	if delay > 0 {
		return fmt.Errorf("job %s in %s: %w", job.ID, delay, webhook.ErrDelayUnsupported)
	}

	q.mu.RLock()
	h := q.handler
	q.mu.RUnlock()
	if h == nil {
		return ErrNotStarted
	}

	state := h.Handle(ctx, job)
	q.logger.Debug().Str("job_id", job.ID).Str("state", string(state)).Msg("inline job handled")
	return nil
}
