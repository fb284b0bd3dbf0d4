// Package monitor infers worker liveness from growth of its action log.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/seapear/AffinityOnLinux/internal/logging"
)

var log = logging.L("monitor")

const (
	// DefaultInterval is the polling period.
	DefaultInterval = 5 * time.Second

	// DefaultIdleThreshold is how long the log may stay flat before idleness
	// is worth reporting.
	DefaultIdleThreshold = 30 * time.Second
)

// SizeFunc reports the current size of the observed artifact.
type SizeFunc func() (int64, error)

// ActivityState is the result of one poll.
type ActivityState struct {
	Active         bool
	BytesAdded     int64
	LastSize       int64
	IdleSeconds    int
	ElapsedSeconds int
}

// Describe renders the state for display. It returns "" for short idle
// spells below threshold.
func (s ActivityState) Describe(threshold time.Duration) string {
	if s.Active {
		return fmt.Sprintf("✓ ACTIVE (+%s)", humanize.Bytes(uint64(s.BytesAdded)))
	}
	if time.Duration(s.IdleSeconds)*time.Second > threshold {
		return fmt.Sprintf("⏸ IDLE (%ds)", s.IdleSeconds)
	}
	return ""
}

// Monitor tracks activity across polls. It only observes; it never gates or
// aborts anything.
type Monitor struct {
	mu       sync.Mutex
	interval time.Duration
	state    ActivityState
}

// New creates a Monitor that advances its clocks by interval per poll.
func New(interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{interval: interval}
}

// Poll samples size once. A size error counts as size 0.
func (m *Monitor) Poll(size SizeFunc) ActivityState {
	current, err := size()
	if err != nil {
		log.Debug("size probe failed", zap.Error(err))
		current = 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	step := int(m.interval / time.Second)
	if current > m.state.LastSize {
		m.state.Active = true
		m.state.BytesAdded = current - m.state.LastSize
		m.state.IdleSeconds = 0
	} else {
		m.state.Active = false
		m.state.BytesAdded = 0
		m.state.IdleSeconds += step
	}
	m.state.LastSize = current
	m.state.ElapsedSeconds += step
	return m.state
}

// State returns the latest state.
func (m *Monitor) State() ActivityState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Run polls on every tick until ctx is done, passing each state to report.
func (m *Monitor) Run(ctx context.Context, size SizeFunc, report func(ActivityState)) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			state := m.Poll(size)
			if report != nil {
				report(state)
			}
		}
	}
}
