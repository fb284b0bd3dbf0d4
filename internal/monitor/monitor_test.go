package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type sizes struct {
	values []int64
	errs   []error
	i      int
}

func (s *sizes) next() (int64, error) {
	v, err := s.values[s.i], s.errs[s.i]
	s.i++
	return v, err
}

func TestPollGrowthAndIdle(t *testing.T) {
	m := New(5 * time.Second)
	src := &sizes{values: []int64{100, 100, 100, 250}, errs: make([]error, 4)}

	s := m.Poll(src.next)
	if !s.Active || s.BytesAdded != 100 || s.IdleSeconds != 0 || s.ElapsedSeconds != 5 {
		t.Fatalf("poll 1 = %+v", s)
	}
	s = m.Poll(src.next)
	if s.Active || s.IdleSeconds != 5 || s.ElapsedSeconds != 10 {
		t.Fatalf("poll 2 = %+v", s)
	}
	s = m.Poll(src.next)
	if s.IdleSeconds != 10 {
		t.Fatalf("poll 3 = %+v", s)
	}
	s = m.Poll(src.next)
	if !s.Active || s.BytesAdded != 150 || s.IdleSeconds != 0 || s.ElapsedSeconds != 20 || s.LastSize != 250 {
		t.Fatalf("poll 4 = %+v", s)
	}
}

func TestPollSizeErrorCountsAsZero(t *testing.T) {
	m := New(5 * time.Second)
	src := &sizes{values: []int64{0}, errs: []error{errors.New("missing")}}

	s := m.Poll(src.next)
	if s.Active || s.LastSize != 0 || s.IdleSeconds != 5 {
		t.Fatalf("state = %+v", s)
	}
}

func TestDescribe(t *testing.T) {
	threshold := 30 * time.Second
	if got := (ActivityState{Active: true, BytesAdded: 2048}).Describe(threshold); got != "✓ ACTIVE (+2.0 kB)" {
		t.Fatalf("active = %q", got)
	}
	if got := (ActivityState{IdleSeconds: 30}).Describe(threshold); got != "" {
		t.Fatalf("idle at threshold = %q, want empty", got)
	}
	if got := (ActivityState{IdleSeconds: 35}).Describe(threshold); got != "⏸ IDLE (35s)" {
		t.Fatalf("idle over threshold = %q", got)
	}
}

func TestRunReportsUntilCanceled(t *testing.T) {
	m := New(10 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	var mu sync.Mutex
	reports := 0
	done := make(chan struct{})
	go func() {
		m.Run(ctx, func() (int64, error) { return 1, nil }, func(ActivityState) {
			mu.Lock()
			reports++
			mu.Unlock()
		})
		close(done)
	}()

	time.Sleep(60 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	mu.Lock()
	defer mu.Unlock()
	if reports == 0 {
		t.Fatal("expected at least one report")
	}
}

func TestNewDefaultsInterval(t *testing.T) {
	if New(0).interval != DefaultInterval {
		t.Fatal("zero interval should default")
	}
}
