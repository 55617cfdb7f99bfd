package resilience

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSingleFlight_Do(t *testing.T) {
	var g SingleFlight
	var counter int32

	const workers = 20
	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(workers)

	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			<-start
			_, err, _ := g.Do("board-key", func() (any, error) {
				atomic.AddInt32(&counter, 1)
				time.Sleep(20 * time.Millisecond)
				return "ok", nil
			})
			if err != nil {
				t.Errorf("singleflight call failed: %v", err)
			}
		}()
	}

	close(start)
	wg.Wait()

	if got := atomic.LoadInt32(&counter); got != 1 {
		t.Fatalf("expected function to run once, got %d", got)
	}
}

func TestSingleFlight_RemovedBeforeDelivery(t *testing.T) {
	t.Parallel()

	var g SingleFlight
	var counter int32

	fn := func() (any, error) {
		atomic.AddInt32(&counter, 1)
		return "v", nil
	}

	if _, err, _ := g.Do("k", fn); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if g.Pending("k") {
		t.Fatalf("expected no pending call after completion")
	}
	if _, err, _ := g.Do("k", fn); err != nil {
		t.Fatalf("second call: %v", err)
	}

	if got := atomic.LoadInt32(&counter); got != 2 {
		t.Fatalf("expected sequential calls to run separately, got %d executions", got)
	}
}

func TestSingleFlight_ErrorsShared(t *testing.T) {
	t.Parallel()

	var g SingleFlight
	wantErr := errors.New("upstream down")

	release := make(chan struct{})
	results := make(chan error, 2)

	go func() {
		_, err, _ := g.Do("k", func() (any, error) {
			<-release
			return nil, wantErr
		})
		results <- err
	}()

	// Wait for the first call to register, then join it.
	for !g.Pending("k") {
		time.Sleep(time.Millisecond)
	}
	go func() {
		_, err, shared := g.Do("k", func() (any, error) { return nil, nil })
		if !shared {
			t.Error("expected second caller to share the first execution")
		}
		results <- err
	}()

	time.Sleep(5 * time.Millisecond)
	close(release)

	for i := 0; i < 2; i++ {
		if err := <-results; !errors.Is(err, wantErr) {
			t.Fatalf("expected shared error, got %v", err)
		}
	}
}

func TestSingleFlight_PanicRemovesHandle(t *testing.T) {
	t.Parallel()

	var g SingleFlight

	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("expected panic to propagate")
			}
		}()
		_, _, _ = g.Do("k", func() (any, error) {
			panic("boom")
		})
	}()

	if g.Pending("k") {
		t.Fatalf("expected handle removed after panic")
	}
}
