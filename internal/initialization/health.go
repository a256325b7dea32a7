package initialization

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/weddingdesk/api/internal/logging"
)

// Pinger is anything whose reachability can be probed
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger
type PingFunc func(ctx context.Context) error

// Ping implements Pinger
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type healthCheck struct {
	name     string
	pinger   Pinger
	critical bool
}

// HealthChecker probes the service's dependencies. A failing critical
// dependency makes the service unhealthy; a failing non-critical one only
// degrades it.
type HealthChecker struct {
	mu      sync.RWMutex
	checks  []healthCheck
	timeout time.Duration
	logger  *logging.Logger
}

// NewHealthChecker creates a new health checker instance
func NewHealthChecker(logger *logging.Logger, timeout time.Duration) *HealthChecker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HealthChecker{
		timeout: timeout,
		logger:  logger,
	}
}

// Register adds a dependency probe
func (hc *HealthChecker) Register(name string, p Pinger, critical bool) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks = append(hc.checks, healthCheck{name: name, pinger: p, critical: critical})
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status    string                 `json:"status"` // "healthy", "degraded", "unhealthy"
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
	Overall   bool                   `json:"overall"`
	Version   string                 `json:"version,omitempty"`
}

// CheckResult represents the result of an individual health check
type CheckResult struct {
	Status      string        `json:"status"` // "pass", "warn", "fail"
	Message     string        `json:"message"`
	Duration    time.Duration `json:"duration"`
	LastChecked time.Time     `json:"last_checked"`
}

// CheckAll runs every registered probe concurrently
func (hc *HealthChecker) CheckAll(ctx context.Context) HealthStatus {
	hc.mu.RLock()
	checks := append([]healthCheck(nil), hc.checks...)
	hc.mu.RUnlock()

	results := make(map[string]CheckResult, len(checks))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, c := range checks {
		wg.Add(1)
		go func(c healthCheck) {
			defer wg.Done()
			result := hc.run(ctx, c)
			mu.Lock()
			results[c.name] = result
			mu.Unlock()
		}(c)
	}
	wg.Wait()

	// Determine overall status
	overall := true
	status := "healthy"
	for _, check := range results {
		if check.Status == "fail" {
			overall = false
			status = "unhealthy"
			break
		} else if check.Status == "warn" && status == "healthy" {
			status = "degraded"
		}
	}

	return HealthStatus{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Checks:    results,
		Overall:   overall,
	}
}

func (hc *HealthChecker) run(ctx context.Context, c healthCheck) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, hc.timeout)
	defer cancel()

	start := time.Now()
	err := c.pinger.Ping(ctx)
	duration := time.Since(start)

	if err == nil {
		return CheckResult{
			Status:      "pass",
			Message:     fmt.Sprintf("%s is reachable", c.name),
			Duration:    duration,
			LastChecked: time.Now().UTC(),
		}
	}

	status := "warn"
	if c.critical {
		status = "fail"
	}
	hc.logger.Warn("Health check failed", map[string]interface{}{
		"check":    c.name,
		"critical": c.critical,
		"error":    err.Error(),
	})
	return CheckResult{
		Status:      status,
		Message:     fmt.Sprintf("%s check failed: %v", c.name, err),
		Duration:    duration,
		LastChecked: time.Now().UTC(),
	}
}
