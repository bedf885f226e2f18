package api

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	minIdempotencyLockTTL = 10 * time.Second
	idempotencyDoneTTL    = 24 * time.Hour
)

// IdempotencyLockTTL sizes the in-flight lock from the delivery timeout. The lock is also
// refreshed while the request runs, so inline deliveries to many endpoints keep it held.
func IdempotencyLockTTL(deliveryTimeout time.Duration) time.Duration {
	if ttl := 2 * deliveryTimeout; ttl > minIdempotencyLockTTL {
		return ttl
	}
	return minIdempotencyLockTTL
}

// requireAPIKey rejects requests without the configured X-API-Key. An empty key disables the check.
func requireAPIKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			got := r.Header.Get("X-API-Key")
			if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// idempotency drops POSTs whose Idempotency-Key was already seen, so a collaborator that
// retries a hook does not trigger a second emission. Without Redis it is a pass-through.
func idempotency(rdb *redis.Client, prefix string, lockTTL time.Duration, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("Idempotency-Key")
			if rdb == nil || r.Method != http.MethodPost || key == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			redisKey := fmt.Sprintf("%s:idempotency:%s", prefix, key)

			acquired, err := rdb.SetNX(ctx, redisKey, "processing", lockTTL).Result()
			if err != nil {
				logger.Warn().Err(err).Msg("idempotency check unavailable")
				next.ServeHTTP(w, r)
				return
			}
			if !acquired {
				w.Header().Set("X-Idempotency-Hit", "true")
				writeError(w, http.StatusConflict, "duplicate", "request already processed")
				return
			}

			stop := make(chan struct{})
			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				holdLock(ctx, rdb, redisKey, lockTTL, stop, logger)
			}()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			close(stop)
			wg.Wait()

			if ww.Status() >= 200 && ww.Status() < 300 {
				_ = rdb.Set(ctx, redisKey, "completed", idempotencyDoneTTL).Err()
			} else {
				_ = rdb.Del(ctx, redisKey).Err()
			}
		})
	}
}

// holdLock pushes the lock expiry back every half TTL until stop is closed.
func holdLock(ctx context.Context, rdb *redis.Client, key string, ttl time.Duration, stop <-chan struct{}, logger zerolog.Logger) {
	ticker := time.NewTicker(ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := rdb.PExpire(ctx, key, ttl).Err(); err != nil {
				logger.Warn().Err(err).Str("key", key).Msg("failed to extend idempotency lock")
			}
		}
	}
}

// requestLogger logs one line per request.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Debug().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Msg("http request")
		})
	}
}
