package service

import (
	"context"
	"encoding/json"
	"errors"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	appErrors "github.com/noah-isme/result-distribution-api/pkg/errors"
)

type memoryCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	getErr  error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string][]byte{}}
}

func (m *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return m.getErr
	}
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = raw
	return nil
}

func (m *memoryCache) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.entries, k)
	}
	return nil
}

func (m *memoryCache) DeleteByPattern(ctx context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.entries {
		if ok, _ := path.Match(pattern, k); ok {
			delete(m.entries, k)
		}
	}
	return nil
}

func TestCacheServiceRoundTripAndInvalidate(t *testing.T) {
	repo := newMemoryCache()
	cache := NewCacheService(repo, NewMetricsService(), time.Minute, nil, true)
	ctx := context.Background()

	var out []string
	assert.False(t, cache.Get(ctx, "catalog:programs", &out))

	cache.Set(ctx, "catalog:programs", []string{"p-bsc"}, 0)
	assert.True(t, cache.Get(ctx, "catalog:programs", &out))
	assert.Equal(t, []string{"p-bsc"}, out)

	cache.InvalidatePattern(ctx, "catalog:*")
	assert.False(t, cache.Get(ctx, "catalog:programs", &out))
}

func TestCacheServiceTreatsFailuresAsMiss(t *testing.T) {
	repo := newMemoryCache()
	repo.getErr = errors.New("connection refused")
	cache := NewCacheService(repo, nil, time.Minute, nil, true)

	var out string
	assert.False(t, cache.Get(context.Background(), "k", &out))
}

func TestCacheServiceDisabled(t *testing.T) {
	repo := newMemoryCache()
	cache := NewCacheService(repo, nil, time.Minute, nil, false)
	cache.Set(context.Background(), "k", "v", 0)
	assert.Empty(t, repo.entries)

	var nilCache *CacheService
	assert.False(t, nilCache.Get(context.Background(), "k", new(string)))
}
