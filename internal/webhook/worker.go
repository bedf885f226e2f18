package webhook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"playerhooks/internal/metrics"
	"playerhooks/internal/models"
)

// State is the lifecycle position of a delivery job.
type State string

const (
	StatePending        State = "pending"
	StateSucceeded      State = "succeeded"
	StateRetryScheduled State = "retry_scheduled"
	StateExhausted      State = "exhausted"
)

const (
	defaultTimeout  = 7 * time.Second
	maxDrainedBytes = 64 << 10
)

// DeliveryError is a transient delivery failure: a transport error or a non-2xx response.
type DeliveryError struct {
	StatusCode int
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("endpoint responded %d", e.StatusCode)
	}
	return fmt.Sprintf("delivery failed: %v", e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// IsDeliveryError checks if the error is a DeliveryError.
func IsDeliveryError(err error) (*DeliveryError, bool) {
	var dErr *DeliveryError
	if errors.As(err, &dErr) {
		return dErr, true
	}
	return nil, false
}

// AttemptRecorder stores an audit record per POST.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, a models.DeliveryAttempt) error
}

// WorkerConfig holds delivery settings.
type WorkerConfig struct {
	Timeout       time.Duration
	Retry         RetryPolicy
	RatePerSecond float64
	RateBurst     int
	UserAgent     string
}

// WorkerOption customizes a Worker.
type WorkerOption func(*Worker)

// WithHTTPClient replaces the default client. Its Timeout is left untouched.
func WithHTTPClient(c *http.Client) WorkerOption {
	return func(w *Worker) { w.client = c }
}

// WithRecorder enables the attempt audit log.
func WithRecorder(r AttemptRecorder) WorkerOption {
	return func(w *Worker) { w.recorder = r }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) WorkerOption {
	return func(w *Worker) { w.now = now }
}

// Worker performs deliveries and reschedules failures.
type Worker struct {
	client    *http.Client
	scheduler Scheduler
	policy    RetryPolicy
	timeout   time.Duration
	limiter   *rate.Limiter
	userAgent string
	recorder  AttemptRecorder
	logger    zerolog.Logger
	now       func() time.Time
}

// NewWorker creates a worker that reschedules failed jobs on scheduler.
func NewWorker(cfg WorkerConfig, scheduler Scheduler, logger zerolog.Logger, opts ...WorkerOption) *Worker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}

	w := &Worker{
		client:    &http.Client{},
		scheduler: scheduler,
		policy:    cfg.Retry,
		timeout:   cfg.Timeout,
		userAgent: cfg.UserAgent,
		logger:    logger.With().Str("component", "webhook_worker").Logger(),
		now:       time.Now,
	}
	if cfg.RatePerSecond > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		w.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Deliver performs exactly one POST of the frozen body. A job without a URL is a no-op.
func (w *Worker) Deliver(ctx context.Context, job models.DeliveryJob) error {
	if job.Endpoint.URL == "" {
		return nil
	}

	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			return &DeliveryError{Err: fmt.Errorf("rate limiter: %w", err)}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, job.Endpoint.URL, strings.NewReader(job.Body))
	if err != nil {
		return &DeliveryError{Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Event", string(job.Topic))
	req.Header.Set("X-Signature", Sign(job.Body, job.Endpoint.Secret))
	req.Header.Set("X-Timestamp", w.now().UTC().Format(time.RFC3339))
	if w.userAgent != "" {
		req.Header.Set("User-Agent", w.userAgent)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return &DeliveryError{Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainedBytes))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &DeliveryError{StatusCode: resp.StatusCode}
	}
	return nil
}

// Handle delivers a due job and, on failure, schedules the next attempt if the retry
// policy allows one.
func (w *Worker) Handle(ctx context.Context, job models.DeliveryJob) State {
	start := w.now()
	err := w.Deliver(ctx, job)
	elapsed := w.now().Sub(start)
	metrics.ObserveDeliveryDuration(elapsed.Seconds())

	state := w.resolve(ctx, job, err)
	w.record(ctx, job, err, state, elapsed)
	metrics.IncDelivery(string(job.Topic), string(state))
	return state
}

func (w *Worker) resolve(ctx context.Context, job models.DeliveryJob, err error) State {
	log := w.logger.With().
		Str("job_id", job.ID).
		Str("event_id", job.EventID).
		Str("topic", string(job.Topic)).
		Str("url", job.Endpoint.URL).
		Int("attempt", job.Attempt).
		Logger()

	if err == nil {
		log.Debug().Msg("webhook delivered")
		return StateSucceeded
	}

	delay, ok := w.policy.Next(job.Attempt)
	if !ok {
		log.Warn().Err(err).Msg("webhook delivery exhausted")
		return StateExhausted
	}

	if serr := w.scheduler.Schedule(ctx, job.Next(), delay); serr != nil {
		log.Error().Err(serr).AnErr("delivery_error", err).Msg("failed to schedule webhook retry")
		return StateExhausted
	}

	log.Info().Err(err).Dur("delay", delay).Msg("webhook retry scheduled")
	return StateRetryScheduled
}

func (w *Worker) record(ctx context.Context, job models.DeliveryJob, err error, state State, elapsed time.Duration) {
	if w.recorder == nil {
		return
	}

	a := models.DeliveryAttempt{
		JobID:      job.ID,
		EventID:    job.EventID,
		Topic:      job.Topic,
		URL:        job.Endpoint.URL,
		Attempt:    job.Attempt,
		Outcome:    string(state),
		DurationMS: elapsed.Milliseconds(),
		CreatedAt:  w.now().UTC(),
	}
	if err != nil {
		a.Error = err.Error()
		if dErr, ok := IsDeliveryError(err); ok {
			a.StatusCode = dErr.StatusCode
		}
	}

	if rerr := w.recorder.RecordAttempt(ctx, a); rerr != nil {
		w.logger.Warn().Err(rerr).Str("job_id", job.ID).Msg("failed to record delivery attempt")
	}
}
