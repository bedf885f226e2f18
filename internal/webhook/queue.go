package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"playerhooks/internal/metrics"
	"playerhooks/internal/models"
	"playerhooks/internal/topics"
)

// ErrDelayUnsupported is returned by schedulers that can only run jobs immediately.
var ErrDelayUnsupported = errors.New("scheduler does not support delayed jobs")

// Scheduler runs a job after delay. Implementations live in the queue package and are
// selected once at startup.
type Scheduler interface {
	Schedule(ctx context.Context, job models.DeliveryJob, delay time.Duration) error
}

// Handler executes a due job.
type Handler interface {
	Handle(ctx context.Context, job models.DeliveryJob) State
}

// Queue turns enqueue requests into immediately due jobs on the configured Scheduler.
type Queue struct {
	scheduler Scheduler
}

func NewQueue(scheduler Scheduler) *Queue {
	return &Queue{scheduler: scheduler}
}

// Enqueue schedules a delivery of body to a snapshot of endpoint, due now.
func (q *Queue) Enqueue(ctx context.Context, endpoint models.Endpoint, topic topics.Topic, body string, attempt int) error {
	job := models.DeliveryJob{
		ID:       uuid.NewString(),
		EventID:  eventIDOf(body),
		Endpoint: endpoint.Clone(),
		Topic:    topic,
		Body:     body,
		Attempt:  attempt,
	}
	if err := q.scheduler.Schedule(ctx, job, 0); err != nil {
		metrics.IncEnqueued(string(topic), "error")
		return fmt.Errorf("enqueue job %s: %w", job.ID, err)
	}
	metrics.IncEnqueued(string(topic), "ok")
	return nil
}
