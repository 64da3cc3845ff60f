package ratelimit

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"github.com/ulule/limiter/v3"

	"github.com/openrooms/orc-server/internal/v1/metrics"
)

// breakerStore wraps a limiter.Store with a circuit breaker so a sick
// Redis does not add a timeout to every request. While the breaker is
// open, store calls fail fast and the limiter middleware fails open.
type breakerStore struct {
	inner limiter.Store
	cb    *gobreaker.CircuitBreaker
}

func newBreakerStore(inner limiter.Store) *breakerStore {
	st := gobreaker.Settings{
		Name:        "ratelimit-redis",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateOpen:
				stateVal = 1
			case gobreaker.StateHalfOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues("redis").Set(stateVal)
		},
	}
	return &breakerStore{inner: inner, cb: gobreaker.NewCircuitBreaker(st)}
}

func (b *breakerStore) execute(op func() (limiter.Context, error)) (limiter.Context, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return op()
	})
	if err != nil {
		return limiter.Context{}, err
	}
	return out.(limiter.Context), nil
}

func (b *breakerStore) Get(ctx context.Context, key string, rate limiter.Rate) (limiter.Context, error) {
	return b.execute(func() (limiter.Context, error) { return b.inner.Get(ctx, key, rate) })
}

func (b *breakerStore) Peek(ctx context.Context, key string, rate limiter.Rate) (limiter.Context, error) {
	return b.execute(func() (limiter.Context, error) { return b.inner.Peek(ctx, key, rate) })
}

func (b *breakerStore) Reset(ctx context.Context, key string, rate limiter.Rate) (limiter.Context, error) {
	return b.execute(func() (limiter.Context, error) { return b.inner.Reset(ctx, key, rate) })
}

func (b *breakerStore) Increment(ctx context.Context, key string, count int64, rate limiter.Rate) (limiter.Context, error) {
	return b.execute(func() (limiter.Context, error) { return b.inner.Increment(ctx, key, count, rate) })
}
