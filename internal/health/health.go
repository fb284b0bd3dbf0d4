// Package health collects host readiness checks for the doctor report.
package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/seapear/AffinityOnLinux/internal/logging"
)

var log = logging.L("health")

// Status represents the outcome of one check.
type Status string

const (
	Healthy   Status = "healthy"
	Degraded  Status = "degraded"
	Unhealthy Status = "unhealthy"
	Unknown   Status = "unknown"
)

// IsValid reports whether s is one of the defined statuses.
func (s Status) IsValid() bool {
	switch s {
	case Healthy, Degraded, Unhealthy, Unknown:
		return true
	}
	return false
}

// Check stores the latest result for a named check.
type Check struct {
	Name      string    `json:"name"`
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Probe computes one check.
type Probe struct {
	Name string
	Run  func(ctx context.Context) (Status, string)
}

// Monitor records check results in registration order.
type Monitor struct {
	mu     sync.RWMutex
	order  []string
	checks map[string]Check
}

// NewMonitor creates an empty monitor.
func NewMonitor() *Monitor {
	return &Monitor{checks: make(map[string]Check)}
}

// Update records the status for a named check.
func (m *Monitor) Update(name string, status Status, message string) {
	if !status.IsValid() {
		status = Unhealthy
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, seen := m.checks[name]; !seen {
		m.order = append(m.order, name)
	}
	m.checks[name] = Check{
		Name:      name,
		Status:    status,
		Message:   message,
		UpdatedAt: time.Now(),
	}

	if status != Healthy {
		log.Warn("check not healthy", zap.String("check", name), zap.String("status", string(status)), zap.String("message", message))
	}
}

// Get returns the result for a named check.
func (m *Monitor) Get(name string) (Check, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.checks[name]
	return c, ok
}

// Overall returns the worst status across all checks, or Unknown when none
// ran.
func (m *Monitor) Overall() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.checks) == 0 {
		return Unknown
	}
	worst := Healthy
	for _, c := range m.checks {
		if worse(c.Status, worst) {
			worst = c.Status
		}
	}
	return worst
}

// All returns every check in registration order.
func (m *Monitor) All() []Check {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Check, 0, len(m.order))
	for _, name := range m.order {
		result = append(result, m.checks[name])
	}
	return result
}

// RunAll executes probes in order and records each result. A panicking
// probe is recorded as Unknown.
func (m *Monitor) RunAll(ctx context.Context, probes []Probe) Status {
	for _, p := range probes {
		status, msg := runProbe(ctx, p)
		m.Update(p.Name, status, msg)
	}
	return m.Overall()
}

func runProbe(ctx context.Context, p Probe) (status Status, msg string) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("check panicked", zap.String("check", p.Name), zap.Any("panic", r))
			status, msg = Unknown, "check failed unexpectedly"
		}
	}()
	return p.Run(ctx)
}

func worse(a, b Status) bool {
	return statusRank(a) > statusRank(b)
}

func statusRank(s Status) int {
	switch s {
	case Healthy:
		return 0
	case Degraded:
		return 1
	case Unhealthy:
		return 2
	case Unknown:
		return 3
	default:
		return 0
	}
}
