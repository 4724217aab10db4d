// Package health runs registered subsystem probes for readiness reporting.
package health

import (
	"context"
	"sync"
	"time"
)

// Status is the outcome of probing one subsystem.
type Status struct {
	Name      string `json:"name"`
	Healthy   bool   `json:"healthy"`
	Detail    string `json:"detail,omitempty"`
	LatencyMS int64  `json:"latencyMs,omitempty"`
}

// Checker probes a single subsystem. Implementations should honor the
// context deadline; a hung probe blocks the whole readiness response.
type Checker func(ctx context.Context) Status

type namedChecker struct {
	name  string
	check Checker
}

// Registry holds named checkers and runs them on demand. Checkers run in
// registration order so health output stays stable across requests.
type Registry struct {
	mu       sync.RWMutex
	checkers []namedChecker
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a named checker. Registering the same name twice adds a
// second probe rather than replacing the first.
func (r *Registry) Register(name string, check Checker) {
	r.mu.Lock()
	r.checkers = append(r.checkers, namedChecker{name: name, check: check})
	r.mu.Unlock()
}

// CheckAll runs every registered checker and reports aggregate health.
// The aggregate is healthy only when every probe is.
func (r *Registry) CheckAll(ctx context.Context) (bool, []Status) {
	r.mu.RLock()
	checkers := make([]namedChecker, len(r.checkers))
	copy(checkers, r.checkers)
	r.mu.RUnlock()

	healthy := true
	statuses := make([]Status, 0, len(checkers))
	for _, nc := range checkers {
		start := time.Now()
		st := nc.check(ctx)
		if st.LatencyMS == 0 {
			st.LatencyMS = time.Since(start).Milliseconds()
		}
		if st.Name == "" {
			st.Name = nc.name
		}
		if !st.Healthy {
			healthy = false
		}
		statuses = append(statuses, st)
	}

	return healthy, statuses
}
