package webhook

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"playerhooks/internal/metrics"
	"playerhooks/internal/models"
	"playerhooks/internal/topics"
)

// EndpointSource returns the enabled endpoints subscribed to a topic.
type EndpointSource interface {
	Snapshot(ctx context.Context, t topics.Topic) ([]models.Endpoint, error)
}

// Enqueuer accepts delivery jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, endpoint models.Endpoint, topic topics.Topic, body string, attempt int) error
}

// Emitter fans an event out to every matching endpoint.
type Emitter struct {
	endpoints EndpointSource
	queue     Enqueuer
	logger    zerolog.Logger
	now       func() time.Time
	newID     func() (string, error)
}

// NewEmitter creates an emitter.
func NewEmitter(endpoints EndpointSource, queue Enqueuer, logger zerolog.Logger) *Emitter {
	return &Emitter{
		endpoints: endpoints,
		queue:     queue,
		logger:    logger.With().Str("component", "webhook_emitter").Logger(),
		now:       time.Now,
		newID:     NewEventID,
	}
}

// Emit builds one envelope for topic and enqueues it once per matching endpoint. Every
// endpoint receives the same id and the same bytes. data is encoded as JSON; structs keep
// their field order on the wire. Failures are logged, never returned.
func (e *Emitter) Emit(ctx context.Context, topic topics.Topic, data any) {
	if !topics.Known(topic) {
		e.logger.Warn().Str("topic", string(topic)).Msg("emit for unknown topic ignored")
		return
	}

	targets, err := e.endpoints.Snapshot(ctx, topic)
	if err != nil {
		e.logger.Error().Err(err).Str("topic", string(topic)).Msg("failed to load endpoints")
		return
	}
	if len(targets) == 0 {
		return
	}

	id, err := e.newID()
	if err != nil {
		e.logger.Error().Err(err).Str("topic", string(topic)).Msg("failed to generate event id")
		return
	}

	body, err := EncodeEvent(topic, id, e.now(), data)
	if err != nil {
		e.logger.Error().Err(err).Str("topic", string(topic)).Msg("failed to encode event")
		return
	}

	metrics.IncEmitted(string(topic))
	for _, ep := range targets {
		if err := e.queue.Enqueue(ctx, ep, topic, body, 0); err != nil {
			e.logger.Error().Err(err).
				Str("event_id", id).
				Str("topic", string(topic)).
				Int64("endpoint_id", ep.ID).
				Msg("failed to enqueue delivery")
		}
	}

	e.logger.Debug().Str("event_id", id).Str("topic", string(topic)).Int("endpoints", len(targets)).Msg("event emitted")
}
