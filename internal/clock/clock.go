// Package clock provides the single time source the gateway uses for every
// timestamp and expiry comparison, so tests can inject a fixed instant
// instead of racing against wall time.
package clock

import (
	"sync"
	"time"

	gateway "github.com/eugener/aigateway/internal"
)

// Real returns the system wall clock.
func Real() gateway.Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// Fixed returns a Clock pinned to t. Advance moves it forward; tests use
// this to deterministically exercise expiry logic.
func Fixed(t time.Time) *FixedClock {
	return &FixedClock{t: t}
}

// FixedClock is a mutable, concurrency-safe Clock for tests.
type FixedClock struct {
	mu sync.Mutex
	t  time.Time
}

// Now returns the pinned instant.
func (f *FixedClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

// Advance moves the pinned instant forward by d.
func (f *FixedClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

// Set pins the clock to t.
func (f *FixedClock) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = t
}
