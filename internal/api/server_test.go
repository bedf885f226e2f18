package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"playerhooks/internal/diagnostics"
	"playerhooks/internal/endpoints"
	"playerhooks/internal/events"
	"playerhooks/internal/models"
	"playerhooks/internal/topics"
)

type memRepo struct {
	mu   sync.Mutex
	list []models.Endpoint
}

func (r *memRepo) ListEndpoints(ctx context.Context) ([]models.Endpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Endpoint(nil), r.list...), nil
}

func (r *memRepo) InsertEndpoint(ctx context.Context, ep *models.Endpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ep.ID = int64(len(r.list) + 1)
	r.list = append(r.list, *ep)
	return nil
}

func (r *memRepo) DeleteEndpointAt(ctx context.Context, index int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if index < 0 || index >= len(r.list) {
		return false, nil
	}
	r.list = append(r.list[:index], r.list[index+1:]...)
	return true, nil
}

type emitted struct {
	topic topics.Topic
	data  any
}

type recordingEmitter struct {
	mu    sync.Mutex
	calls []emitted
}

func (e *recordingEmitter) Emit(ctx context.Context, topic topics.Topic, data any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, emitted{topic: topic, data: data})
}

type fakeExporter struct {
	from, to time.Time
}

func (f *fakeExporter) Export(ctx context.Context, from, to time.Time, out io.Writer) (int, error) {
	f.from, f.to = from, to
	_, err := out.Write([]byte("PK-fake"))
	return 1, err
}

type testServer struct {
	handler  http.Handler
	emitter  *recordingEmitter
	hooks    []events.Hook
	exporter *fakeExporter
	redis    *miniredis.Miniredis
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{emitter: &recordingEmitter{}, exporter: &fakeExporter{}}

	bus := events.NewBus(zerolog.Nop())
	bus.Subscribe(events.HookUserApproved, func(ctx context.Context, h events.Hook) error {
		ts.hooks = append(ts.hooks, h)
		return nil
	})

	ts.redis = miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: ts.redis.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	srv := NewServer(Deps{
		Endpoints:   endpoints.NewStore(&memRepo{}, zerolog.Nop()),
		Emitter:     ts.emitter,
		Hooks:       bus,
		Exporter:    ts.exporter,
		Diagnostics: func() diagnostics.Report { return diagnostics.Inspect(bus) },
		Redis:       rdb,
		APIKey:      "valid-key",
	}, zerolog.Nop())
	ts.handler = srv.Router()
	return ts
}

func (ts *testServer) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var rdr io.Reader = http.NoBody
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("X-API-Key", "valid-key")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

func TestAPIKeyMiddleware(t *testing.T) {
	ts := setupTestServer(t)

	tests := []struct {
		name           string
		apiKey         string
		expectedStatus int
	}{
		{"valid api key", "valid-key", http.StatusOK},
		{"missing api key", "", http.StatusUnauthorized},
		{"invalid api key", "invalid-key", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/topics", http.NoBody)
			if tt.apiKey != "" {
				req.Header.Set("X-API-Key", tt.apiKey)
			}
			w := httptest.NewRecorder()
			ts.handler.ServeHTTP(w, req)
			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestTopics(t *testing.T) {
	ts := setupTestServer(t)
	w := ts.do(http.MethodGet, "/api/v1/topics", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Topics []topics.Info `json:"topics"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, topics.All(), resp.Topics)
}

func TestEndpointsCRUD(t *testing.T) {
	ts := setupTestServer(t)

	w := ts.do(http.MethodPost, "/api/v1/endpoints", `{"url":"https://crm.example.com/hook","secret":"s3cret","topics":["user.approved","user.approved"]}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created endpointView
	require.NoError(t, json.NewDecoder(w.Body).Decode(&created))
	assert.Equal(t, 0, created.Index)
	assert.True(t, created.HasSecret)
	assert.True(t, created.Enabled)
	assert.Equal(t, []topics.Topic{topics.UserApproved}, created.Topics)

	w = ts.do(http.MethodPost, "/api/v1/endpoints", `{"url":"not a url","topics":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_endpoint")

	w = ts.do(http.MethodPost, "/api/v1/endpoints", `{"url":"https://a.example.com","topics":["user.deleted"]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(http.MethodGet, "/api/v1/endpoints", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "s3cret")

	w = ts.do(http.MethodDelete, "/api/v1/endpoints/5", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = ts.do(http.MethodDelete, "/api/v1/endpoints/abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = ts.do(http.MethodDelete, "/api/v1/endpoints/0", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = ts.do(http.MethodGet, "/api/v1/endpoints", "")
	var listed struct {
		Endpoints []endpointView `json:"endpoints"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&listed))
	assert.Empty(t, listed.Endpoints)
}

func TestEmitEvent(t *testing.T) {
	ts := setupTestServer(t)

	w := ts.do(http.MethodPost, "/api/v1/events", `{"topic":"order.completed","data":{"order":{"order_id":7}}}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, ts.emitter.calls, 1)
	assert.Equal(t, topics.OrderCompleted, ts.emitter.calls[0].topic)

	w = ts.do(http.MethodPost, "/api/v1/events", `{"topic":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(http.MethodPost, "/api/v1/events", `{`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIdempotencyKey(t *testing.T) {
	ts := setupTestServer(t)
	body := `{"topic":"email.sent","data":{"type":"welcome"}}`

	w := ts.do(http.MethodPost, "/api/v1/events", body, "Idempotency-Key", "abc")
	require.Equal(t, http.StatusAccepted, w.Code)

	w = ts.do(http.MethodPost, "/api/v1/events", body, "Idempotency-Key", "abc")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "true", w.Header().Get("X-Idempotency-Hit"))
	assert.Len(t, ts.emitter.calls, 1)

	val, err := ts.redis.Get("playerhooks:idempotency:abc")
	require.NoError(t, err)
	assert.Equal(t, "completed", val)

	w = ts.do(http.MethodPost, "/api/v1/events", `{"topic":"bad"}`, "Idempotency-Key", "failed")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, ts.redis.Exists("playerhooks:idempotency:failed"))
}

func TestIdempotencyLockTTL(t *testing.T) {
	assert.Equal(t, 10*time.Second, IdempotencyLockTTL(time.Second))
	assert.Equal(t, 14*time.Second, IdempotencyLockTTL(7*time.Second))
}

func TestIdempotency_LockHeldDuringSlowRequest(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	const (
		lockTTL = 100 * time.Millisecond
		key     = "test:idempotency:slow"
	)
	var (
		h         http.Handler
		duplicate int
	)
	h = idempotency(rdb, "test", lockTTL, zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Let the lock run down to its last millisecond and wait for the refresh.
		mr.FastForward(lockTTL - time.Millisecond)
		require.Eventually(t, func() bool { return mr.TTL(key) == lockTTL }, time.Second, 5*time.Millisecond)

		dup := httptest.NewRequest(http.MethodPost, "/", http.NoBody)
		dup.Header.Set("Idempotency-Key", "slow")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, dup)
		duplicate = rec.Code

		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", http.NoBody)
	req.Header.Set("Idempotency-Key", "slow")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, http.StatusConflict, duplicate)
	val, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "completed", val)
}

func TestHookIngress(t *testing.T) {
	ts := setupTestServer(t)

	w := ts.do(http.MethodPost, "/api/v1/hooks/user_approved", `{"user_id":42,"admin_id":1}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, ts.hooks, 1)
	assert.Equal(t, events.HookUserApproved, ts.hooks[0].Name)
	assert.Equal(t, int64(42), ts.hooks[0].UserID)
	assert.Equal(t, int64(1), ts.hooks[0].AdminID)

	w = ts.do(http.MethodPost, "/api/v1/hooks/user_deleted", `{}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExport(t *testing.T) {
	ts := setupTestServer(t)

	w := ts.do(http.MethodGet, "/api/v1/deliveries/export?from=2024-06-01&to=2024-06-30", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "PK-fake", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "deliveries_2024-06-01_2024-06-30.xlsx")
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), ts.exporter.from)
	assert.Equal(t, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), ts.exporter.to)

	w = ts.do(http.MethodGet, "/api/v1/deliveries/export?from=2024-07-01&to=2024-06-01", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = ts.do(http.MethodGet, "/api/v1/deliveries/export?from=june", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDiagnostics(t *testing.T) {
	ts := setupTestServer(t)
	w := ts.do(http.MethodGet, "/api/v1/diagnostics", "")
	require.Equal(t, http.StatusOK, w.Code)
	var report diagnostics.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.False(t, report.OK)
	assert.Len(t, report.Problems, len(diagnostics.RequiredHooks)-1)
	assert.Equal(t, []string{events.HookUserApproved}, report.Hooks)
}
