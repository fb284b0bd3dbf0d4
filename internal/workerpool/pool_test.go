package workerpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestSubmitAndWait(t *testing.T) {
	p := New(context.Background(), 2)
	var count atomic.Int32

	for i := 0; i < 5; i++ {
		if !p.Submit("inc", func(context.Context) error {
			count.Add(1)
			return nil
		}) {
			t.Fatalf("Submit %d failed", i)
		}
	}

	if errs := p.Wait(); len(errs) != 0 {
		t.Fatalf("errs = %v", errs)
	}
	if got := count.Load(); got != 5 {
		t.Fatalf("count = %d, want 5", got)
	}
}

func TestWaitCollectsFailures(t *testing.T) {
	p := New(context.Background(), 3)
	boom := errors.New("boom")

	p.Submit("ok", func(context.Context) error { return nil })
	p.Submit("bad", func(context.Context) error { return boom })

	errs := p.Wait()
	if len(errs) != 1 || errs[0].Name != "bad" || !errors.Is(errs[0], boom) {
		t.Fatalf("errs = %v", errs)
	}
}

func TestConcurrencyIsBounded(t *testing.T) {
	p := New(context.Background(), 2)
	var running, peak atomic.Int32

	for i := 0; i < 8; i++ {
		p.Submit("work", func(context.Context) error {
			n := running.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			return nil
		})
	}
	p.Wait()

	if got := peak.Load(); got > 2 {
		t.Fatalf("peak concurrency = %d, want <= 2", got)
	}
}

func TestSubmitAfterWaitReturnsFalse(t *testing.T) {
	p := New(context.Background(), 1)
	p.Wait()
	if p.Submit("late", func(context.Context) error { return nil }) {
		t.Fatal("Submit after Wait should return false")
	}
}

func TestShutdownCancelsTaskContext(t *testing.T) {
	p := New(context.Background(), 1)
	started := make(chan struct{})
	p.Submit("blocked", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p.Shutdown(ctx)

	if p.Context().Err() == nil {
		t.Fatal("pool context should be cancelled after Shutdown")
	}
	errs := p.Wait()
	if len(errs) != 1 || !errors.Is(errs[0], context.Canceled) {
		t.Fatalf("errs = %v", errs)
	}
}

func TestShutdownRespectsDeadline(t *testing.T) {
	p := New(context.Background(), 1)
	blocker := make(chan struct{})
	defer close(blocker)
	p.Submit("stuck", func(context.Context) error {
		<-blocker
		return nil
	})

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	p.Shutdown(ctx)

	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("Shutdown should have returned in ~100ms, took %v", elapsed)
	}
}

func TestPanicRecovery(t *testing.T) {
	p := New(context.Background(), 1)
	var count atomic.Int32

	p.Submit("panics", func(context.Context) error {
		panic("test panic")
	})
	p.Submit("after", func(context.Context) error {
		count.Add(1)
		return nil
	})

	errs := p.Wait()
	if got := count.Load(); got != 1 {
		t.Fatalf("task after panic: count = %d, want 1", got)
	}
	if len(errs) != 1 || errs[0].Name != "panics" {
		t.Fatalf("errs = %v", errs)
	}
}
