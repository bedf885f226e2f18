// Package endpoints owns webhook endpoint configuration: validation, persistence
// and per-emission snapshots.
package endpoints

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"playerhooks/internal/models"
	"playerhooks/internal/topics"
)

// ErrInvalidEndpoint is matched by every ValidationError.
var ErrInvalidEndpoint = errors.New("invalid endpoint")

// ValidationError rejects an endpoint configuration at creation time.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid endpoint %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidEndpoint
}

// Repository persists endpoints.
type Repository interface {
	ListEndpoints(ctx context.Context) ([]models.Endpoint, error)
	InsertEndpoint(ctx context.Context, ep *models.Endpoint) error
	DeleteEndpointAt(ctx context.Context, index int) (bool, error)
}

// Store is the only writer of endpoint configuration.
type Store struct {
	repo   Repository
	logger zerolog.Logger
	now    func() time.Time
}

// NewStore wraps repo.
func NewStore(repo Repository, logger zerolog.Logger) *Store {
	return &Store{
		repo:   repo,
		logger: logger.With().Str("component", "endpoints").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// List returns endpoints in insertion order.
func (s *Store) List(ctx context.Context) ([]models.Endpoint, error) {
	list, err := s.repo.ListEndpoints(ctx)
	if err != nil {
		return nil, fmt.Errorf("list endpoints: %w", err)
	}
	if list == nil {
		list = []models.Endpoint{}
	}
	return list, nil
}

// Add validates and persists a new endpoint.
func (s *Store) Add(ctx context.Context, rawURL, secret string, subscribed []topics.Topic, enabled bool) (models.Endpoint, error) {
	u, err := ValidateURL(rawURL)
	if err != nil {
		return models.Endpoint{}, err
	}
	list, err := normalizeTopics(subscribed)
	if err != nil {
		return models.Endpoint{}, err
	}

	ep := models.Endpoint{
		URL:       u,
		Secret:    secret,
		Topics:    list,
		Enabled:   enabled,
		CreatedAt: s.now(),
	}
	if err := s.repo.InsertEndpoint(ctx, &ep); err != nil {
		return models.Endpoint{}, fmt.Errorf("insert endpoint: %w", err)
	}

	s.logger.Info().
		Int64("endpoint_id", ep.ID).
		Str("url", ep.URL).
		Int("topics", len(ep.Topics)).
		Bool("enabled", ep.Enabled).
		Msg("endpoint added")
	return ep, nil
}

// Remove deletes the endpoint at index. Out-of-range indexes are ignored.
func (s *Store) Remove(ctx context.Context, index int) error {
	deleted, err := s.repo.DeleteEndpointAt(ctx, index)
	if err != nil {
		return fmt.Errorf("delete endpoint %d: %w", index, err)
	}
	if deleted {
		s.logger.Info().Int("index", index).Msg("endpoint removed")
	}
	return nil
}

// Snapshot returns independent copies of the enabled endpoints subscribed to t.
func (s *Store) Snapshot(ctx context.Context, t topics.Topic) ([]models.Endpoint, error) {
	list, err := s.repo.ListEndpoints(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot endpoints: %w", err)
	}
	var out []models.Endpoint
	for _, ep := range list {
		if ep.Enabled && ep.Subscribed(t) {
			out = append(out, ep.Clone())
		}
	}
	return out, nil
}

// ValidateURL checks that raw is an absolute http(s) URL and returns it trimmed.
func ValidateURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", &ValidationError{Field: "url", Reason: "is required"}
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return "", &ValidationError{Field: "url", Reason: "is not a valid URL"}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", &ValidationError{Field: "url", Reason: "scheme must be http or https"}
	}
	if u.Host == "" {
		return "", &ValidationError{Field: "url", Reason: "host is required"}
	}
	return raw, nil
}

func normalizeTopics(in []topics.Topic) ([]topics.Topic, error) {
	out := make([]topics.Topic, 0, len(in))
	seen := make(map[topics.Topic]struct{}, len(in))
	for _, t := range in {
		if !topics.Known(t) {
			return nil, &ValidationError{Field: "topics", Reason: fmt.Sprintf("unknown topic %q", t)}
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out, nil
}
