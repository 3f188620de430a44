package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Concurrent-Text-Search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Concurrent-Text-Search/pkg/config"
)

type memStore struct {
	mu    sync.Mutex
	data  map[string][]byte
	ttls  map[string]time.Duration
	err   error
	calls int
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (s *memStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, false, s.err
	}
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *memStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return s.err
	}
	s.data[key] = value
	s.ttls[key] = ttl
	return nil
}

func testConfig() config.RedisConfig {
	return config.RedisConfig{CacheTTL: time.Minute, KeyPrefix: "ti:", Timeout: time.Second}
}

func TestResultCache_Key(t *testing.T) {
	c := New(newMemStore(), testConfig())

	k := c.Key("fp1", false, "cat dog")
	assert.True(t, strings.HasPrefix(k, "ti:"))
	assert.Len(t, k, len("ti:")+32)
	assert.Equal(t, k, c.Key("fp1", false, "cat dog"))
	assert.NotEqual(t, k, c.Key("fp1", true, "cat dog"), "mode is part of the key")
	assert.NotEqual(t, k, c.Key("fp2", false, "cat dog"), "fingerprint is part of the key")
	assert.NotEqual(t, k, c.Key("fp1", false, "cat"))
}

func TestResultCache_RoundTrip(t *testing.T) {
	store := newMemStore()
	c := New(store, testConfig())
	ctx := context.Background()
	want := []index.QueryResult{{Where: "a.txt", Count: 3, Score: 0.3}}

	_, ok := c.Get(ctx, "fp", false, "cat")
	assert.False(t, ok)

	c.Set(ctx, "fp", false, "cat", want)
	got, ok := c.Get(ctx, "fp", false, "cat")
	require.True(t, ok)
	assert.Equal(t, want, got)
	assert.Equal(t, time.Minute, store.ttls[c.Key("fp", false, "cat")])

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestResultCache_BackendFailuresAreMisses(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("connection refused")
	c := New(store, testConfig())
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, ok := c.Get(ctx, "fp", true, "cat")
		assert.False(t, ok)
	}
	c.Set(ctx, "fp", true, "cat", nil)

	// the breaker stops calling the backend after three failures
	assert.Equal(t, 3, store.calls)
	_, misses := c.Stats()
	assert.Equal(t, int64(10), misses)
}

func TestResultCache_CorruptEntryIsMiss(t *testing.T) {
	store := newMemStore()
	c := New(store, testConfig())
	store.data[c.Key("fp", false, "cat")] = []byte("{not json")

	_, ok := c.Get(context.Background(), "fp", false, "cat")
	assert.False(t, ok)
}
