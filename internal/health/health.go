// Package health aggregates dependency health checks behind HTTP probes.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Status is the outcome of one check or of the service overall.
type Status int

const (
	StatusHealthy Status = iota
	StatusDegraded
	StatusUnhealthy
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	default:
		return "unhealthy"
	}
}

// MarshalJSON encodes the status as its string form.
func (s Status) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON decodes the string form written by MarshalJSON.
func (s *Status) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch v {
	case "healthy":
		*s = StatusHealthy
	case "degraded":
		*s = StatusDegraded
	case "unhealthy":
		*s = StatusUnhealthy
	default:
		return fmt.Errorf("unknown health status %q", v)
	}
	return nil
}

// CheckResult is one component's verdict.
type CheckResult struct {
	Component string        `json:"component"`
	Status    Status        `json:"status"`
	Error     string        `json:"error,omitempty"`
	Critical  bool          `json:"critical"`
	Duration  time.Duration `json:"duration"`
}

// Checker probes one dependency.
type Checker interface {
	Name() string
	// Critical failures mark the whole service unhealthy; non-critical
	// failures only degrade it.
	Critical() bool
	Check(ctx context.Context) error
}

// Overall is the aggregated service verdict.
type Overall struct {
	Status     Status        `json:"status"`
	Components []CheckResult `json:"components"`
	Timestamp  time.Time     `json:"timestamp"`
}

// Manager runs registered checkers with a shared timeout.
type Manager struct {
	mu       sync.RWMutex
	checkers []Checker
	timeout  time.Duration
}

func NewManager() *Manager {
	return &Manager{timeout: 5 * time.Second}
}

// Register adds a checker.
func (m *Manager) Register(c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, c)
}

// Check runs every checker and aggregates the verdict.
func (m *Manager) Check(ctx context.Context) Overall {
	m.mu.RLock()
	checkers := make([]Checker, len(m.checkers))
	copy(checkers, m.checkers)
	m.mu.RUnlock()

	overall := Overall{Status: StatusHealthy, Timestamp: time.Now()}
	for _, c := range checkers {
		start := time.Now()
		checkCtx, cancel := context.WithTimeout(ctx, m.timeout)
		err := c.Check(checkCtx)
		cancel()

		result := CheckResult{
			Component: c.Name(),
			Status:    StatusHealthy,
			Critical:  c.Critical(),
			Duration:  time.Since(start),
		}
		if err != nil {
			result.Error = err.Error()
			if c.Critical() {
				result.Status = StatusUnhealthy
				overall.Status = StatusUnhealthy
			} else {
				result.Status = StatusDegraded
				if overall.Status == StatusHealthy {
					overall.Status = StatusDegraded
				}
			}
		}
		overall.Components = append(overall.Components, result)
	}
	return overall
}
