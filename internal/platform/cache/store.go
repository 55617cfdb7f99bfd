package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/riskibarqy/scoreboard/internal/platform/resilience"
)

// State classifies a lookup result against the entry's two windows.
type State int

const (
	StateAbsent State = iota
	StateFresh
	StateStale
)

const defaultRevalidateWorkers = 4

type entry struct {
	value      any
	freshUntil time.Time
	staleUntil time.Time
}

// Store is a stale-while-revalidate cache. Every entry carries a fresh
// window and a stale window that always ends swrExtra after it; between the
// two a lookup still returns the old value while a single coalesced refresh
// runs in the background.
type Store struct {
	mu       sync.RWMutex
	entries  map[string]entry
	swrExtra time.Duration
	flight   resilience.SingleFlight
	pool     *ants.Pool
	now      func() time.Time
}

func NewStore(swrExtra time.Duration) (*Store, error) {
	if swrExtra <= 0 {
		swrExtra = 5 * time.Minute
	}

	// Nonblocking: when the pool is saturated a revalidation is dropped and
	// the next stale hit schedules another.
	pool, err := ants.NewPool(defaultRevalidateWorkers, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("create revalidation pool: %w", err)
	}

	return &Store{
		entries:  make(map[string]entry),
		swrExtra: swrExtra,
		pool:     pool,
		now:      time.Now,
	}, nil
}

func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Release()
}

// SetClock swaps the time source for tests.
func (s *Store) SetClock(now func() time.Time) {
	if now == nil {
		return
	}
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func (s *Store) Get(_ context.Context, key string) (any, State) {
	if key == "" {
		return nil, StateAbsent
	}

	s.mu.RLock()
	e, ok := s.entries[key]
	now := s.now()
	s.mu.RUnlock()
	if !ok {
		return nil, StateAbsent
	}

	switch {
	case now.Before(e.freshUntil):
		return e.value, StateFresh
	case now.Before(e.staleUntil):
		return e.value, StateStale
	default:
		s.mu.Lock()
		if cur, still := s.entries[key]; still && !s.now().Before(cur.staleUntil) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return nil, StateAbsent
	}
}

// Set replaces the entry for key. The stale window is always the fresh
// window extended by swrExtra.
func (s *Store) Set(_ context.Context, key string, value any, ttl time.Duration) {
	if key == "" || ttl <= 0 {
		return
	}

	s.mu.Lock()
	freshUntil := s.now().Add(ttl)
	s.entries[key] = entry{
		value:      value,
		freshUntil: freshUntil,
		staleUntil: freshUntil.Add(s.swrExtra),
	}
	s.mu.Unlock()
}

func (s *Store) Delete(_ context.Context, key string) {
	if key == "" {
		return
	}

	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// GetOrLoad implements the memoized fetch path:
//
//   - fresh hit: the cached value, no loader call;
//   - stale hit: the cached value immediately, with one coalesced
//     revalidation scheduled in the background;
//   - miss: callers coalesce on a single loader call whose result is cached.
//
// A failed load on a miss returns the error; the caller decides how to
// degrade.
func (s *Store) GetOrLoad(ctx context.Context, key string, ttl time.Duration, loader func(context.Context) (any, error)) (any, error) {
	if loader == nil {
		return nil, fmt.Errorf("loader is required")
	}
	if key == "" {
		return loader(ctx)
	}

	value, state := s.Get(ctx, key)
	switch state {
	case StateFresh:
		return value, nil
	case StateStale:
		s.scheduleRevalidate(ctx, key, ttl, loader)
		return value, nil
	}

	out, err, _ := s.flight.Do(key, func() (any, error) {
		return s.loadAndStore(ctx, key, ttl, loader)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// scheduleRevalidate queues one background refresh for key. The singleflight
// check plus the freshness recheck inside the task bound it to a single
// upstream call per stale period regardless of how many callers hit the
// stale window.
func (s *Store) scheduleRevalidate(ctx context.Context, key string, ttl time.Duration, loader func(context.Context) (any, error)) {
	if s.flight.Pending(key) {
		return
	}

	// The caller's request finishes before the refresh does; detach from its
	// cancellation but keep its values for tracing.
	bgCtx := context.WithoutCancel(ctx)
	_ = s.pool.Submit(func() {
		_, _, _ = s.flight.Do(key, func() (any, error) {
			return s.loadAndStore(bgCtx, key, ttl, loader)
		})
	})
}

func (s *Store) loadAndStore(ctx context.Context, key string, ttl time.Duration, loader func(context.Context) (any, error)) (any, error) {
	if cached, state := s.Get(ctx, key); state == StateFresh {
		return cached, nil
	}

	loaded, err := loader(ctx)
	if err != nil {
		return nil, err
	}
	s.Set(ctx, key, loaded, ttl)
	return loaded, nil
}
