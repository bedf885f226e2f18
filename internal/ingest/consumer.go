// Package ingest consumes lifecycle hooks published to Kafka by the host platform.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"playerhooks/internal/events"
	"playerhooks/internal/metrics"
)

// HookHeader optionally carries the hook name; otherwise the "hook" field of the value is used.
const HookHeader = "hook"

// MessageReader is the subset of *kafka.Reader the consumer needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// HookPublisher dispatches hooks to adapters.
type HookPublisher interface {
	Publish(ctx context.Context, hook events.Hook) error
}

// NewReader builds a consumer-group reader.
func NewReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     time.Second,
		StartOffset: kafka.FirstOffset,
		Dialer:      &kafka.Dialer{Timeout: 10 * time.Second},
	})
}

// Consumer feeds Kafka messages into the hook bus.
type Consumer struct {
	reader MessageReader
	hooks  HookPublisher
	logger zerolog.Logger
}

func NewConsumer(reader MessageReader, hooks HookPublisher, logger zerolog.Logger) *Consumer {
	return &Consumer{
		reader: reader,
		hooks:  hooks,
		logger: logger.With().Str("component", "kafka_ingest").Logger(),
	}
}

// Run consumes until ctx is cancelled. Each message is committed after it has been handled,
// including messages that could not be decoded; those are logged and skipped.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info().Msg("kafka hook consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info().Msg("kafka hook consumer stopped")
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		if err := c.handle(ctx, msg); err != nil {
			if isUnknownHook(err) {
				c.logger.Warn().Err(err).
					Int("partition", msg.Partition).
					Int64("offset", msg.Offset).
					Msg("unknown hook skipped")
			} else {
				c.logger.Error().Err(err).
					Int("partition", msg.Partition).
					Int64("offset", msg.Offset).
					Msg("hook message failed")
			}
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit offset %d: %w", msg.Offset, err)
		}
	}
}

// Close closes the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	var hook events.Hook
	if err := json.Unmarshal(msg.Value, &hook); err != nil {
		return fmt.Errorf("decode hook: %w", err)
	}
	for _, h := range msg.Headers {
		if h.Key == HookHeader && len(h.Value) > 0 {
			hook.Name = string(h.Value)
		}
	}
	if !events.Known(hook.Name) {
		return fmt.Errorf("%w: %q", events.ErrUnknownHook, hook.Name)
	}

	metrics.IncHookReceived("kafka", hook.Name)
	if err := c.hooks.Publish(ctx, hook); err != nil {
		return fmt.Errorf("publish %s: %w", hook.Name, err)
	}
	return nil
}

func isUnknownHook(err error) bool {
	return errors.Is(err, events.ErrUnknownHook)
}
