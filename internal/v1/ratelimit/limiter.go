// Package ratelimit implements rate limiting using a local memory store or
// Redis. The Redis store sits behind a circuit breaker and fails open:
// when Redis is unhealthy requests pass through rather than 500.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"

	"github.com/openrooms/orc-server/internal/v1/apierr"
	"github.com/openrooms/orc-server/internal/v1/config"
	"github.com/openrooms/orc-server/internal/v1/logging"
	"github.com/openrooms/orc-server/internal/v1/metrics"
)

// RateLimiter holds the limiter instances for each tier.
type RateLimiter struct {
	apiGlobal   *limiter.Limiter
	apiPublic   *limiter.Limiter
	apiMessages *limiter.Limiter
	store       limiter.Store
}

// New creates a RateLimiter. redisClient may be nil; the limiter then uses
// the in-process memory store.
func New(cfg *config.Config, redisClient *redis.Client) (*RateLimiter, error) {
	globalRate, err := limiter.NewRateFromFormatted(cfg.RateLimitAPIGlobal)
	if err != nil {
		return nil, fmt.Errorf("invalid API global rate: %w", err)
	}
	publicRate, err := limiter.NewRateFromFormatted(cfg.RateLimitAPIPublic)
	if err != nil {
		return nil, fmt.Errorf("invalid API public rate: %w", err)
	}
	messagesRate, err := limiter.NewRateFromFormatted(cfg.RateLimitAPIMessages)
	if err != nil {
		return nil, fmt.Errorf("invalid API messages rate: %w", err)
	}

	var store limiter.Store
	if redisClient != nil {
		s, err := sredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{
			Prefix: "limiter:v1:",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis store: %w", err)
		}
		store = newBreakerStore(s)
		logging.Info(context.Background(), "rate limiter using Redis store")
	} else {
		store = memory.NewStore()
		logging.Info(context.Background(), "rate limiter using memory store")
	}

	return &RateLimiter{
		apiGlobal:   limiter.New(store, globalRate),
		apiPublic:   limiter.New(store, publicRate),
		apiMessages: limiter.New(store, messagesRate),
		store:       store,
	}, nil
}

// Middleware enforces the per-user limit for authenticated requests and
// the tighter per-IP limit otherwise. Authenticated is approximated by the
// presence of an Authorization header; forged headers still land in a
// per-token bucket, so they cannot widen the IP budget.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		var instance *limiter.Limiter
		var key, limitType string

		if header := c.GetHeader("Authorization"); header != "" {
			key = header
			instance = rl.apiGlobal
			limitType = "user"
		} else {
			key = c.ClientIP()
			instance = rl.apiPublic
			limitType = "ip"
		}

		rl.enforce(c, instance, key, limitType)
	}
}

// MessagesMiddleware applies the tighter message-posting tier, keyed the
// same way as Middleware.
func (rl *RateLimiter) MessagesMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("Authorization")
		if key == "" {
			key = c.ClientIP()
		}
		rl.enforce(c, rl.apiMessages, "msg:"+key, "user")
	}
}

// enforce runs one limiter check, setting the conventional headers.
func (rl *RateLimiter) enforce(c *gin.Context, instance *limiter.Limiter, key, limitType string) {
	ctx := c.Request.Context()
	lctx, err := instance.Get(ctx, key)
	if err != nil {
		// Store failure: fail open, availability over strictness.
		logging.Error(ctx, "rate limiter store failed", zap.Error(err))
		c.Next()
		return
	}

	c.Header("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
	c.Header("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))

	if lctx.Reached {
		metrics.RateLimitExceeded.WithLabelValues(c.FullPath(), limitType).Inc()
		retryAfter := lctx.Reset - time.Now().Unix()
		if retryAfter < 1 {
			retryAfter = 1
		}
		c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
		c.AbortWithStatusJSON(http.StatusTooManyRequests,
			apierr.ToEnvelope(apierr.New(apierr.KindRateLimited, "rate limit exceeded")))
		return
	}

	metrics.RateLimitRequests.WithLabelValues(c.FullPath()).Inc()
	c.Next()
}
