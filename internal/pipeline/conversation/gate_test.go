package conversation

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGate_CapsConcurrency(t *testing.T) {
	gate := NewGate(3)
	var inFlight, peak atomic.Int32
	var wg sync.WaitGroup

	for range 12 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = gate.Do(context.Background(), func(context.Context) error {
				n := inFlight.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				inFlight.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	if got := peak.Load(); got > 3 || got < 1 {
		t.Fatalf("expected at most 3 concurrent calls, saw %d", got)
	}
}

func TestGate_WakesWaitersInOrder(t *testing.T) {
	gate := NewGate(1)
	if err := gate.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	order := make(chan int, 3)
	var wg sync.WaitGroup
	for i := range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = gate.Do(context.Background(), func(context.Context) error {
				order <- i
				return nil
			})
		}()
		// Let waiter i queue before i+1.
		time.Sleep(20 * time.Millisecond)
	}

	gate.Release()
	wg.Wait()
	close(order)

	want := 0
	for got := range order {
		if got != want {
			t.Fatalf("expected waiter %d, got %d", want, got)
		}
		want++
	}
}

func TestGate_AcquireHonorsContext(t *testing.T) {
	gate := NewGate(1)
	_ = gate.Acquire(context.Background())
	defer gate.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := gate.Do(ctx, func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected context error while the gate is full")
	}
}

func TestNewGate_DefaultLimit(t *testing.T) {
	if got := NewGate(0).Limit(); got != DefaultGateLimit {
		t.Fatalf("expected %d, got %d", DefaultGateLimit, got)
	}
}
