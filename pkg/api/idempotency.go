package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// cachedResponse stores a previously-seen response for idempotent
// replay, persisted as a Redis string rather than an in-memory map, so
// a restart or a second replica does not reprocess a mutating request.
type cachedResponse struct {
	StatusCode int         `json:"status_code"`
	Headers    http.Header `json:"headers"`
	Body       []byte      `json:"body"`
}

// RedisIdempotencyStore de-duplicates mutating requests by
// Idempotency-Key, backed by Redis so the dedup holds across replicas
// and restarts.
type RedisIdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisIdempotencyStore(client *redis.Client, ttl time.Duration) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client, ttl: ttl}
}

func redisIdempotencyKey(key string) string {
	return "idempotency:" + key
}

func (s *RedisIdempotencyStore) check(ctx context.Context, key string) (*cachedResponse, bool) {
	raw, err := s.client.Get(ctx, redisIdempotencyKey(key)).Bytes()
	if err != nil {
		return nil, false
	}
	var cached cachedResponse
	if err := json.Unmarshal(raw, &cached); err != nil {
		return nil, false
	}
	return &cached, true
}

func (s *RedisIdempotencyStore) set(ctx context.Context, key string, statusCode int, headers http.Header, body []byte) {
	cached := cachedResponse{StatusCode: statusCode, Headers: headers, Body: body}
	raw, err := json.Marshal(cached)
	if err != nil {
		return
	}
	s.client.Set(ctx, redisIdempotencyKey(key), raw, s.ttl)
}

type responseCapture struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (rc *responseCapture) WriteHeader(code int) {
	rc.statusCode = code
	rc.ResponseWriter.WriteHeader(code)
}

func (rc *responseCapture) Write(b []byte) (int, error) {
	rc.body.Write(b)
	return rc.ResponseWriter.Write(b)
}

// IdempotencyMiddleware ensures PATCH/POST requests carrying an
// Idempotency-Key header are processed exactly once; a replayed request
// with the same key receives the cached response instead of
// re-executing the mutation — notably `PATCH /plans/{id}`.
func IdempotencyMiddleware(store *RedisIdempotencyStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost && r.Method != http.MethodPatch && r.Method != http.MethodPut {
				next.ServeHTTP(w, r)
				return
			}
			key := r.Header.Get("Idempotency-Key")
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			if cached, ok := store.check(r.Context(), key); ok {
				for k, vals := range cached.Headers {
					for _, v := range vals {
						w.Header().Add(k, v)
					}
				}
				w.WriteHeader(cached.StatusCode)
				_, _ = w.Write(cached.Body)
				return
			}

			capture := &responseCapture{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(capture, r)

			if capture.statusCode >= 200 && capture.statusCode < 300 {
				store.set(r.Context(), key, capture.statusCode, w.Header().Clone(), capture.body.Bytes())
			}
		})
	}
}
