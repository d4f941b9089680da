package artifact

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/mj-status/forecaster/internal/metrics"
	"github.com/mj-status/forecaster/pkg/circuitbreaker"
)

// Cache is a byte cache in front of a Store.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
}

// CachedStore serves Get from the cache when it can and fills it on miss. Cache failures degrade to
// direct store access; the breaker stops calling a cache that keeps failing.
type CachedStore struct {
	Store
	cache   Cache
	ttl     time.Duration
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
}

func NewCachedStore(store Store, cache Cache, ttl time.Duration, logger *zap.Logger) *CachedStore {
	return &CachedStore{
		Store: store,
		cache: cache,
		ttl:   ttl,
		breaker: circuitbreaker.NewCircuitBreaker("artifact-cache", circuitbreaker.Config{
			FailureThreshold: 3,
			Timeout:          30 * time.Second,
			Logger:           logger,
		}),
		logger: logger,
	}
}

func (s *CachedStore) Get(ctx context.Context, key string) ([]byte, error) {
	var (
		data []byte
		hit  bool
	)
	err := s.breaker.Execute(func() error {
		var err error
		data, hit, err = s.cache.Get(ctx, key)
		return err
	})
	switch {
	case err == nil && hit:
		metrics.CacheHits.WithLabelValues("artifact").Inc()
		return data, nil
	case err != nil && !errors.Is(err, circuitbreaker.ErrCircuitOpen):
		s.logger.Warn("Artifact cache read failed", zap.String("key", key), zap.Error(err))
	}
	metrics.CacheMisses.WithLabelValues("artifact").Inc()

	data, err = s.Store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	s.fill(ctx, key, data)
	return data, nil
}

func (s *CachedStore) Put(ctx context.Context, key string, data []byte) error {
	if err := s.Store.Put(ctx, key, data); err != nil {
		return err
	}
	s.fill(ctx, key, data)
	return nil
}

func (s *CachedStore) fill(ctx context.Context, key string, data []byte) {
	err := s.breaker.Execute(func() error {
		return s.cache.Set(ctx, key, data, s.ttl)
	})
	if err != nil && !errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		s.logger.Warn("Artifact cache write failed", zap.String("key", key), zap.Error(err))
	}
}
