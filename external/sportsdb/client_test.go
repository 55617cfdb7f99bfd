package sportsdb

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/riskibarqy/scoreboard/internal/domain/event"
	"github.com/riskibarqy/scoreboard/internal/platform/cache"
	"github.com/riskibarqy/scoreboard/internal/platform/logging"
	"github.com/riskibarqy/scoreboard/internal/platform/resilience"
)

func newTestClient(t *testing.T, baseURL string, cfg ClientConfig) *Client {
	t.Helper()

	store, err := cache.NewStore(5 * time.Minute)
	require.NoError(t, err)
	t.Cleanup(store.Close)

	cfg.BaseURL = baseURL
	cfg.APIKey = "testkey"
	cfg.Logger = logging.NewNop()
	cfg.Cache = store

	client := NewClient(cfg)
	client.backoffBase = time.Millisecond
	return client
}

func TestClient_RetriesTransientFailuresUntilSuccess(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"events":[{"idEvent":"1","strHomeTeam":"A","strAwayTeam":"B"}]}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, ClientConfig{})

	items, err := client.NextFixtures(context.Background(), "4387")
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "1", items[0].ID)
	require.EqualValues(t, 3, hits.Load())
}

func TestClient_BudgetExhaustedSurfacesBodyExcerpt(t *testing.T) {
	t.Parallel()

	long := make([]byte, 400)
	for i := range long {
		long[i] = 'x'
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write(long)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, ClientConfig{MaxAttempts: 2})

	_, err := client.NextFixtures(context.Background(), "4387")
	require.Error(t, err)
	require.Contains(t, err.Error(), "status=503")
	require.Contains(t, err.Error(), "...")
	require.Less(t, len(err.Error()), 300)
}

func TestClient_RateLimitRetriesAndRecovers(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"events":[]}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, ClientConfig{})

	_, err := client.RecentFinals(context.Background(), "4387")
	require.NoError(t, err)
	require.EqualValues(t, 2, hits.Load())
}

func TestClient_RetryAfterStretchesBackoff(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, ClientConfig{})

	_, wait, err := client.attempt(context.Background(), server.URL, nil, 0)
	require.Error(t, err)
	require.Equal(t, 7*time.Second, wait)
}

func TestClient_FreshCacheServesWithoutNetwork(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"events":[{"idEvent":"9"}]}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, ClientConfig{})

	for i := 0; i < 3; i++ {
		items, err := client.SeasonEvents(context.Background(), "4387", "2025-2026")
		require.NoError(t, err)
		require.Len(t, items, 1)
	}
	require.EqualValues(t, 1, hits.Load())
}

func TestClient_ConcurrentMissesCoalesce(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		time.Sleep(30 * time.Millisecond)
		_, _ = w.Write([]byte(`{"livescore":[{"idEvent":"2"}]}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, ClientConfig{})

	const callers = 16
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.Livescore(context.Background(), "Basketball")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	require.EqualValues(t, 1, hits.Load())
}

func TestClient_CircuitBreakerShortCircuits(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, ClientConfig{
		MaxAttempts: 1,
		CircuitBreaker: resilience.CircuitBreakerConfig{
			Enabled:          true,
			FailureThreshold: 2,
			OpenTimeout:      time.Minute,
			HalfOpenMaxReq:   1,
		},
	})

	for i := 0; i < 2; i++ {
		_, err := client.NextFixtures(context.Background(), string(rune('a'+i)))
		require.Error(t, err)
	}
	before := hits.Load()

	_, err := client.NextFixtures(context.Background(), "rejected")
	require.ErrorContains(t, err, "temporarily unavailable")
	require.Equal(t, before, hits.Load())
}

func TestDecodeEvents_TolerantEnvelope(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"null field":   `{"events":null}`,
		"missing":      `{}`,
		"non-array":    `{"events":"none"}`,
		"object field": `{"events":{"oops":true}}`,
	}
	for name, payload := range cases {
		items, err := decodeEvents([]byte(payload))
		require.NoError(t, err, name)
		require.Empty(t, items, name)
	}

	items, err := decodeEvents([]byte(`{"livescore":[{"idEvent":"5","strStatus":"2nd Half"}]}`))
	require.NoError(t, err)
	require.Equal(t, []event.Raw{{ID: "5", Status: "2nd Half"}}, items)
}

func TestJitterStaysWithinSpread(t *testing.T) {
	t.Parallel()

	base := 100 * time.Millisecond
	for i := 0; i < 200; i++ {
		d := jitter(base)
		if d < 66*time.Millisecond || d > 134*time.Millisecond {
			t.Fatalf("jitter out of range: %v", d)
		}
	}
}
