package resilience

import (
	"fmt"
	"sync"
)

// SingleFlight deduplicates concurrent calls for the same key: while a call
// for a key is pending every additional caller waits for and receives that
// call's result instead of running its own.
type SingleFlight struct {
	mu    sync.Mutex
	calls map[string]*call
}

type call struct {
	wg  sync.WaitGroup
	val any
	err error
}

// Do runs fn once per key at a time. The pending entry is removed before any
// result is delivered, so a caller arriving after completion starts a fresh
// execution. The entry is removed even when fn panics; waiters then observe
// an error while the panic propagates to the executing caller.
func (g *SingleFlight) Do(key string, fn func() (any, error)) (any, error, bool) {
	g.mu.Lock()
	if g.calls == nil {
		g.calls = make(map[string]*call)
	}

	if c, ok := g.calls[key]; ok {
		g.mu.Unlock()
		c.wg.Wait()
		return c.val, c.err, true
	}

	c := &call{}
	c.wg.Add(1)
	g.calls[key] = c
	g.mu.Unlock()

	defer func() {
		if rec := recover(); rec != nil {
			c.err = fmt.Errorf("singleflight: recovered panic: %v", rec)
			g.remove(key, c)
			panic(rec)
		}
		g.remove(key, c)
	}()

	c.val, c.err = fn()
	return c.val, c.err, false
}

// Pending reports whether a call for key is currently in flight.
func (g *SingleFlight) Pending(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.calls[key]
	return ok
}

func (g *SingleFlight) remove(key string, c *call) {
	g.mu.Lock()
	delete(g.calls, key)
	g.mu.Unlock()
	c.wg.Done()
}
