package flow

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewController_Defaults(t *testing.T) {
	fc := NewController(0, 0)
	if fc.highWatermark != DefaultHighWatermark {
		t.Errorf("high = %d, want %d", fc.highWatermark, DefaultHighWatermark)
	}
	if fc.lowWatermark != DefaultLowWatermark {
		t.Errorf("low = %d, want %d", fc.lowWatermark, DefaultLowWatermark)
	}
}

func TestNewController_LowAboveHigh(t *testing.T) {
	fc := NewController(100, 200)
	if fc.lowWatermark >= fc.highWatermark {
		t.Errorf("low = %d not below high = %d", fc.lowWatermark, fc.highWatermark)
	}
}

func TestController_AcquireBelowWatermark(t *testing.T) {
	fc := NewController(1000, 100)

	if err := fc.Acquire(context.Background(), 500); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if fc.Pending() != 500 {
		t.Errorf("Pending() = %d, want 500", fc.Pending())
	}
	if fc.IsBlocked() {
		t.Error("IsBlocked() = true before high watermark")
	}
}

func TestController_BlocksAtHighWatermark(t *testing.T) {
	fc := NewController(1000, 100)

	if err := fc.Acquire(context.Background(), 1000); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if !fc.IsBlocked() {
		t.Fatal("IsBlocked() = false at high watermark")
	}

	// The next sender must block until the queue drains.
	var completed atomic.Bool
	done := make(chan error, 1)
	go func() {
		err := fc.Acquire(context.Background(), 10)
		completed.Store(true)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	if completed.Load() {
		t.Fatal("Acquire() completed while blocked")
	}

	// Drain below the low watermark; the blocked sender must complete
	// without losing its message.
	fc.Release(950)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("blocked Acquire() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Acquire() did not unblock after drain")
	}
}

func TestController_AcquireCancelled(t *testing.T) {
	fc := NewController(100, 10)
	if err := fc.Acquire(context.Background(), 100); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- fc.Acquire(ctx, 1)
	}()

	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("Acquire() error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled Acquire() did not return")
	}
}

func TestController_ReleaseNeverNegative(t *testing.T) {
	fc := NewController(100, 10)
	fc.Release(50)
	if fc.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", fc.Pending())
	}
}

func TestController_Close_UnblocksWaiters(t *testing.T) {
	fc := NewController(10, 1)
	if err := fc.Acquire(context.Background(), 10); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- fc.Acquire(context.Background(), 1)
	}()

	time.Sleep(20 * time.Millisecond)
	fc.Close()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("Acquire() after Close succeeded, want error")
		}
	case <-time.After(time.Second):
		t.Fatal("Close() did not unblock waiter")
	}
}

func TestController_BlockedCallback(t *testing.T) {
	fc := NewController(100, 10)
	var engaged atomic.Int32
	fc.SetBlockedCallback(func() { engaged.Add(1) })

	_ = fc.Acquire(context.Background(), 100)
	if engaged.Load() != 1 {
		t.Errorf("blocked callback fired %d times, want 1", engaged.Load())
	}
}

func TestController_ConcurrentSenders(t *testing.T) {
	fc := NewController(1000, 100)

	var wg sync.WaitGroup
	var sent atomic.Int64

	// Drainer.
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				fc.Release(100)
				time.Sleep(time.Millisecond)
			}
		}
	}()

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if err := fc.Acquire(context.Background(), 100); err != nil {
					t.Errorf("Acquire() error = %v", err)
					return
				}
				sent.Add(1)
			}
		}()
	}

	wg.Wait()
	close(stop)

	if sent.Load() != 400 {
		t.Errorf("sent = %d, want 400 (no message may be dropped)", sent.Load())
	}
}
