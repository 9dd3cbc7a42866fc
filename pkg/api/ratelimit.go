package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/SodiumBank/Datum/pkg/auth"
)

// tokenBucketScript implements a per-tenant token bucket atomically in
// Redis: KEYS[1] is the bucket key, ARGV holds rate/capacity/cost/now.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local cost = tonumber(ARGV[3])
local now = tonumber(ARGV[4])

local state = redis.call("HMGET", key, "tokens", "last_refill")
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if not tokens or not last_refill then
	tokens = capacity
	last_refill = now
end

local elapsed = now - last_refill
if elapsed > 0 then
	local added = elapsed * rate
	tokens = tokens + added
	if tokens > capacity then
		tokens = capacity
	end
	last_refill = now
end

local allowed = 0
if tokens >= cost then
	tokens = tokens - cost
	allowed = 1
end

redis.call("HMSET", key, "tokens", tokens, "last_refill", last_refill)
redis.call("EXPIRE", key, 60)

return allowed
`)

// TenantRateLimiter enforces a token-bucket rate limit per tenant
// (identified by the authenticated Principal) using Redis so the limit
// holds across replicas rather than only within one process.
type TenantRateLimiter struct {
	client   *redis.Client
	rps      float64
	capacity float64
}

func NewTenantRateLimiter(client *redis.Client, requestsPerSecond int, burst int) *TenantRateLimiter {
	return &TenantRateLimiter{client: client, rps: float64(requestsPerSecond), capacity: float64(burst)}
}

func (l *TenantRateLimiter) allow(ctx context.Context, actorID string) (bool, error) {
	key := fmt.Sprintf("ratelimit:%s", actorID)
	now := float64(time.Now().UnixMicro()) / 1e6
	res, err := tokenBucketScript.Run(ctx, l.client, []string{key}, l.rps, l.capacity, 1, now).Int()
	if err != nil {
		return false, fmt.Errorf("api: rate limiter: %w", err)
	}
	return res == 1, nil
}

// Middleware rejects requests once the caller's principal has exceeded
// its per-tenant budget. Requests without a Principal in context (not
// yet authenticated) fall back to a fixed "anonymous" bucket.
func (l *TenantRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actorID := "anonymous"
		if p, err := auth.GetPrincipal(r.Context()); err == nil {
			actorID = p.GetID()
		}

		allowed, err := l.allow(r.Context(), actorID)
		if err != nil {
			WriteInternal(w, err)
			return
		}
		if !allowed {
			WriteTooManyRequests(w, 1)
			return
		}
		next.ServeHTTP(w, r)
	})
}
