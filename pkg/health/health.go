// Package health serves liveness and readiness probes for a running
// simulation.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/opd-ai/go-mech/pkg/entity"
	"github.com/opd-ai/go-mech/pkg/physics"
)

// Check is one probe. Check returns an error when the component is unhealthy.
type Check interface {
	Name() string
	Check(ctx context.Context) error
}

// Status is the aggregated readiness report.
type Status struct {
	Status string                     `json:"status"`
	Checks map[string]ComponentHealth `json:"checks"`
}

// ComponentHealth is the outcome of one check.
type ComponentHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
)

// Checker runs the registered checks.
type Checker struct {
	checks map[string]Check
	mu     sync.RWMutex
}

// NewChecker creates a checker with no checks.
func NewChecker() *Checker {
	return &Checker{checks: make(map[string]Check)}
}

// AddCheck registers check, replacing any check with the same name.
func (c *Checker) AddCheck(check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[check.Name()] = check
}

// RemoveCheck drops the check called name.
func (c *Checker) RemoveCheck(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.checks, name)
}

// CheckHealth runs every check in name order. The result is healthy only if
// all checks pass.
func (c *Checker) CheckHealth(ctx context.Context) Status {
	c.mu.RLock()
	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	checks := make([]Check, 0, len(names))
	sort.Strings(names)
	for _, name := range names {
		checks = append(checks, c.checks[name])
	}
	c.mu.RUnlock()

	status := Status{Status: statusHealthy, Checks: make(map[string]ComponentHealth, len(checks))}
	for _, check := range checks {
		if err := check.Check(ctx); err != nil {
			status.Status = statusUnhealthy
			status.Checks[check.Name()] = ComponentHealth{Status: statusUnhealthy, Message: err.Error()}
			continue
		}
		status.Checks[check.Name()] = ComponentHealth{Status: statusHealthy}
	}
	return status
}

// LivenessHandler answers 200 while the process can serve requests.
func (c *Checker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// ReadinessHandler runs the checks and answers 200 when all pass, 503
// otherwise.
func (c *Checker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := c.CheckHealth(ctx)
	code := http.StatusOK
	if status.Status != statusHealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

// Handler serves /health (liveness) and /ready (readiness).
func (c *Checker) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", c.LivenessHandler)
	mux.HandleFunc("/ready", c.ReadinessHandler)
	return mux
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

// ProgressCheck fails when the physics tick has not moved for longer than
// the allowed stall.
type ProgressCheck struct {
	tick  func() uint64
	stall time.Duration
	now   func() time.Time

	mu       sync.Mutex
	lastTick uint64
	lastSeen time.Time
}

// NewProgressCheck watches tick, usually Simulation.Tick.
func NewProgressCheck(tick func() uint64, stall time.Duration) *ProgressCheck {
	return &ProgressCheck{tick: tick, stall: stall, now: time.Now}
}

func (p *ProgressCheck) Name() string { return "simulation" }

func (p *ProgressCheck) Check(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	tick, now := p.tick(), p.now()
	if p.lastSeen.IsZero() || tick != p.lastTick {
		p.lastTick, p.lastSeen = tick, now
		return nil
	}
	if idle := now.Sub(p.lastSeen); idle > p.stall {
		return fmt.Errorf("simulation stalled at tick %d for %v", tick, idle.Round(time.Millisecond))
	}
	return nil
}

// RigCheck fails when there are no rigs or when any rig's state has blown up.
type RigCheck struct {
	snapshot func() []entity.RigState
}

// NewRigCheck inspects snapshot, usually Simulation.Snapshot.
func NewRigCheck(snapshot func() []entity.RigState) *RigCheck {
	return &RigCheck{snapshot: snapshot}
}

func (r *RigCheck) Name() string { return "rigs" }

func (r *RigCheck) Check(ctx context.Context) error {
	states := r.snapshot()
	if len(states) == 0 {
		return fmt.Errorf("no rigs spawned")
	}
	for _, s := range states {
		if !physics.IsFinite(s.Position) || !physics.IsFinite(s.Velocity) {
			return fmt.Errorf("rig %s has non-finite state", s.Name)
		}
	}
	return nil
}

// MemoryCheck fails when heap usage exceeds a limit in megabytes.
type MemoryCheck struct {
	maxMemoryMB    int64
	getMemoryUsage func() int64
}

// NewMemoryCheck limits usage to maxMemoryMB. A nil usage reads the Go heap.
func NewMemoryCheck(maxMemoryMB int64, usage func() int64) *MemoryCheck {
	if usage == nil {
		usage = heapMB
	}
	return &MemoryCheck{maxMemoryMB: maxMemoryMB, getMemoryUsage: usage}
}

func (m *MemoryCheck) Name() string { return "memory" }

func (m *MemoryCheck) Check(ctx context.Context) error {
	if current := m.getMemoryUsage(); current > m.maxMemoryMB {
		return fmt.Errorf("memory usage %dMB exceeds limit %dMB", current, m.maxMemoryMB)
	}
	return nil
}

func heapMB() int64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return int64(stats.Alloc / 1024 / 1024)
}
