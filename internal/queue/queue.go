// Package queue holds the delivery scheduler backends. One backend is chosen at startup and
// shared by the webhook Queue (new jobs) and the Worker (retries).
package queue

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"playerhooks/internal/metrics"
	"playerhooks/internal/webhook"
)

// ErrNotStarted is returned when a job is scheduled before Start bound a handler.
var ErrNotStarted = errors.New("scheduler not started")

// Backend is a scheduler that executes due jobs through a bound handler.
type Backend interface {
	webhook.Scheduler
	// Start binds h and begins executing due jobs. Async backends return immediately.
	Start(ctx context.Context, h webhook.Handler)
	Stop()
	Name() string
	// Pending counts jobs waiting in the backend, due or not.
	Pending(ctx context.Context) (int64, error)
}

// reportPending publishes the backlog of b as the pending-jobs gauge.
func reportPending(ctx context.Context, b Backend, logger zerolog.Logger) {
	n, err := b.Pending(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to count pending jobs")
		return
	}
	metrics.SetDeliveryJobs(b.Name(), string(webhook.StatePending), n)
}
