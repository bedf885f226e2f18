// Package api serves the admin control plane and the HTTP ingress for events and hooks.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"playerhooks/internal/diagnostics"
	"playerhooks/internal/endpoints"
	"playerhooks/internal/events"
	"playerhooks/internal/metrics"
	"playerhooks/internal/models"
	"playerhooks/internal/topics"
)

const (
	maxBodyBytes = 1 << 20
	dateLayout   = "2006-01-02"
)

// EndpointService manages endpoint configuration.
type EndpointService interface {
	List(ctx context.Context) ([]models.Endpoint, error)
	Add(ctx context.Context, rawURL, secret string, subscribed []topics.Topic, enabled bool) (models.Endpoint, error)
	Remove(ctx context.Context, index int) error
}

// Emitter publishes events.
type Emitter interface {
	Emit(ctx context.Context, topic topics.Topic, data any)
}

// HookPublisher dispatches lifecycle hooks to adapters.
type HookPublisher interface {
	Publish(ctx context.Context, hook events.Hook) error
}

// AttemptExporter writes the delivery attempt log as xlsx.
type AttemptExporter interface {
	Export(ctx context.Context, from, to time.Time, out io.Writer) (int, error)
}

// Deps are the collaborators of the HTTP server. Redis and Exporter are optional.
type Deps struct {
	Endpoints   EndpointService
	Emitter     Emitter
	Hooks       HookPublisher
	Exporter    AttemptExporter
	Diagnostics func() diagnostics.Report
	Redis       *redis.Client
	RedisPrefix string

	// IdempotencyTTL is the in-flight lock TTL; see IdempotencyLockTTL.
	IdempotencyTTL time.Duration
	APIKey         string
}

// Server is the HTTP API.
type Server struct {
	deps   Deps
	logger zerolog.Logger
}

func NewServer(deps Deps, logger zerolog.Logger) *Server {
	if deps.RedisPrefix == "" {
		deps.RedisPrefix = "playerhooks"
	}
	if deps.IdempotencyTTL <= 0 {
		deps.IdempotencyTTL = minIdempotencyLockTTL
	}
	return &Server{deps: deps, logger: logger.With().Str("component", "api").Logger()}
}

// Router builds the chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.logger))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(requireAPIKey(s.deps.APIKey))

		r.Get("/topics", s.handleTopics)
		r.Get("/endpoints", s.handleListEndpoints)
		r.Post("/endpoints", s.handleAddEndpoint)
		r.Delete("/endpoints/{index}", s.handleRemoveEndpoint)
		r.Get("/deliveries/export", s.handleExport)
		r.Get("/diagnostics", s.handleDiagnostics)

		r.Group(func(r chi.Router) {
			r.Use(idempotency(s.deps.Redis, s.deps.RedisPrefix, s.deps.IdempotencyTTL, s.logger))
			r.Post("/events", s.handleEmit)
			r.Post("/hooks/{hook}", s.handleHook)
		})
	})
	return r
}

// endpointView hides the secret.
type endpointView struct {
	Index     int            `json:"index"`
	ID        int64          `json:"id"`
	URL       string         `json:"url"`
	HasSecret bool           `json:"has_secret"`
	Topics    []topics.Topic `json:"topics"`
	Enabled   bool           `json:"enabled"`
	CreatedAt time.Time      `json:"created_at"`
}

func toView(i int, ep models.Endpoint) endpointView {
	t := ep.Topics
	if t == nil {
		t = []topics.Topic{}
	}
	return endpointView{
		Index:     i,
		ID:        ep.ID,
		URL:       ep.URL,
		HasSecret: ep.Secret != "",
		Topics:    t,
		Enabled:   ep.Enabled,
		CreatedAt: ep.CreatedAt,
	}
}

// GET /api/v1/topics
func (s *Server) handleTopics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"topics": topics.All()})
}

// GET /api/v1/endpoints
func (s *Server) handleListEndpoints(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Endpoints.List(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("list endpoints")
		writeError(w, http.StatusInternalServerError, "internal", "failed to list endpoints")
		return
	}
	views := make([]endpointView, 0, len(list))
	for i, ep := range list {
		views = append(views, toView(i, ep))
	}
	writeJSON(w, http.StatusOK, map[string]any{"endpoints": views})
}

type addEndpointRequest struct {
	URL     string         `json:"url"`
	Secret  string         `json:"secret"`
	Topics  []topics.Topic `json:"topics"`
	Enabled *bool          `json:"enabled"`
}

// POST /api/v1/endpoints
func (s *Server) handleAddEndpoint(w http.ResponseWriter, r *http.Request) {
	var req addEndpointRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	ep, err := s.deps.Endpoints.Add(r.Context(), req.URL, req.Secret, req.Topics, enabled)
	if err != nil {
		if errors.Is(err, endpoints.ErrInvalidEndpoint) {
			writeError(w, http.StatusBadRequest, "invalid_endpoint", err.Error())
			return
		}
		s.logger.Error().Err(err).Msg("add endpoint")
		writeError(w, http.StatusInternalServerError, "internal", "failed to add endpoint")
		return
	}

	list, err := s.deps.Endpoints.List(r.Context())
	index := -1
	if err == nil {
		for i, e := range list {
			if e.ID == ep.ID {
				index = i
			}
		}
	}
	writeJSON(w, http.StatusCreated, toView(index, ep))
}

// DELETE /api/v1/endpoints/{index}
func (s *Server) handleRemoveEndpoint(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_index", "index must be an integer")
		return
	}
	if err := s.deps.Endpoints.Remove(r.Context(), index); err != nil {
		s.logger.Error().Err(err).Int("index", index).Msg("remove endpoint")
		writeError(w, http.StatusInternalServerError, "internal", "failed to remove endpoint")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type emitRequest struct {
	Topic string         `json:"topic"`
	Data  map[string]any `json:"data"`
}

// POST /api/v1/events
func (s *Server) handleEmit(w http.ResponseWriter, r *http.Request) {
	var req emitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	topic, err := topics.Parse(req.Topic)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown_topic", err.Error())
		return
	}

	s.deps.Emitter.Emit(r.Context(), topic, req.Data)
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "accepted"})
}

// POST /api/v1/hooks/{hook}
func (s *Server) handleHook(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "hook")
	if !events.Known(name) {
		writeError(w, http.StatusNotFound, "unknown_hook", fmt.Sprintf("unknown hook %q", name))
		return
	}

	var hook events.Hook
	if err := decodeJSON(r, &hook); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	hook.Name = name
	metrics.IncHookReceived("http", name)

	if err := s.deps.Hooks.Publish(r.Context(), hook); err != nil {
		s.logger.Error().Err(err).Str("hook", name).Msg("hook failed")
		writeError(w, http.StatusInternalServerError, "hook_failed", "hook handler failed")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "accepted"})
}

// GET /api/v1/deliveries/export?from=YYYY-MM-DD&to=YYYY-MM-DD
// Defaults to the last 30 days; to is inclusive.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.deps.Exporter == nil {
		writeError(w, http.StatusNotFound, "audit_disabled", "delivery audit log is disabled")
		return
	}

	now := time.Now().UTC()
	to := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	from := to.AddDate(0, 0, -30)

	q := r.URL.Query()
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "invalid from; expected YYYY-MM-DD")
			return
		}
		from = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "invalid to; expected YYYY-MM-DD")
			return
		}
		to = t.AddDate(0, 0, 1)
	}
	if !from.Before(to) {
		writeError(w, http.StatusBadRequest, "invalid_range", "from must not be after to")
		return
	}

	filename := fmt.Sprintf("deliveries_%s_%s.xlsx", from.Format(dateLayout), to.AddDate(0, 0, -1).Format(dateLayout))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if _, err := s.deps.Exporter.Export(r.Context(), from, to, w); err != nil {
		s.logger.Error().Err(err).Msg("export deliveries")
		w.Header().Del("Content-Disposition")
		writeError(w, http.StatusInternalServerError, "internal", "failed to export deliveries")
	}
}

// GET /api/v1/diagnostics
func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	report := diagnostics.Report{OK: true, Problems: []string{}, Hooks: []string{}}
	if s.deps.Diagnostics != nil {
		report = s.deps.Diagnostics()
	}
	writeJSON(w, http.StatusOK, report)
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]any{"error": msg, "code": code})
}
