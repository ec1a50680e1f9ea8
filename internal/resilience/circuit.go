// Package resilience provides circuit breaker and retry patterns for model
// provider calls.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed is the normal operating state; requests flow through.
	CircuitClosed CircuitState = iota
	// CircuitOpen means too many recent failures; requests are rejected immediately.
	CircuitOpen
	// CircuitHalfOpen allows a single probe request to test recovery.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when a call is rejected because the circuit is
// open. It fails fast, before any outbound call, and is never itself counted
// as a provider failure.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// CircuitBreakerConfig controls circuit breaker behavior.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of failures within FailureWindow before
	// opening the circuit. Default: 5.
	FailureThreshold int

	// FailureWindow is the rolling window failures are counted in. The count
	// clears only when the window elapses naturally; a success while closed
	// does not reset it, which avoids oscillation from a single lucky call.
	// Default: 60s.
	FailureWindow time.Duration

	// OpenDuration is how long the circuit stays open before allowing a
	// half-open probe. Default: 30s.
	OpenDuration time.Duration

	// ShouldTrip optionally overrides the default check. If nil, all errors
	// that pass CountsAsFailure count toward the failure threshold.
	ShouldTrip func(err error) bool

	// OnStateChange is called when the circuit transitions between states.
	OnStateChange func(from, to CircuitState)
}

// DefaultCircuitBreakerConfig returns sensible defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		FailureWindow:    60 * time.Second,
		OpenDuration:     30 * time.Second,
	}
}

// CircuitBreaker implements the circuit breaker pattern for a single model
// provider. State transitions are driven only by time and call outcomes;
// there is no external force-transition.
type CircuitBreaker struct {
	cfg   CircuitBreakerConfig
	mu    sync.Mutex
	state CircuitState

	windowStart    time.Time
	windowFailures int
	openedAt       time.Time
	probeInFlight  bool

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewCircuitBreaker creates a circuit breaker with the given config.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.FailureWindow <= 0 {
		cfg.FailureWindow = 60 * time.Second
	}
	if cfg.OpenDuration <= 0 {
		cfg.OpenDuration = 30 * time.Second
	}
	return &CircuitBreaker{
		cfg:     cfg,
		state:   CircuitClosed,
		nowFunc: time.Now,
	}
}

// Execute runs fn through the circuit breaker. Returns ErrCircuitOpen if the
// circuit is open, or while a half-open probe is already in flight.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.allowRequest(); err != nil {
		return err
	}

	err := fn(ctx)
	cb.recordResult(err)
	return err
}

// ExecuteVal is like Execute but preserves a return value.
func ExecuteVal[T any](ctx context.Context, cb *CircuitBreaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := cb.allowRequest(); err != nil {
		return zero, err
	}

	val, err := fn(ctx)
	cb.recordResult(err)
	return val, err
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen && cb.nowFunc().Sub(cb.openedAt) >= cb.cfg.OpenDuration {
		return CircuitHalfOpen
	}
	return cb.state
}

// Counters returns the failure count in the current window and the state, for
// observability surfaces.
func (cb *CircuitBreaker) Counters() (windowFailures int, state CircuitState) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.nowFunc().Sub(cb.windowStart) >= cb.cfg.FailureWindow {
		return 0, cb.state
	}
	return cb.windowFailures, cb.state
}

func (cb *CircuitBreaker) allowRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.nowFunc()
	switch cb.state {
	case CircuitClosed:
		return nil
	case CircuitOpen:
		if now.Sub(cb.openedAt) >= cb.cfg.OpenDuration {
			cb.transition(CircuitHalfOpen)
			cb.probeInFlight = true
			return nil // single probe allowed
		}
		return ErrCircuitOpen
	case CircuitHalfOpen:
		if cb.probeInFlight {
			return ErrCircuitOpen
		}
		cb.probeInFlight = true
		return nil
	default:
		return nil
	}
}

func (cb *CircuitBreaker) recordResult(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	shouldTrip := cb.cfg.ShouldTrip
	if shouldTrip == nil {
		shouldTrip = CountsAsFailure
	}

	now := cb.nowFunc()
	failed := err != nil && shouldTrip(err)

	if cb.state == CircuitHalfOpen {
		cb.probeInFlight = false
		if failed {
			// Probe failed: reopen and restart the open timer.
			cb.transition(CircuitOpen)
			cb.openedAt = now
			return
		}
		cb.transition(CircuitClosed)
		cb.windowFailures = 0
		return
	}

	if !failed {
		// Success while closed does not touch the window counter.
		return
	}

	if now.Sub(cb.windowStart) >= cb.cfg.FailureWindow {
		cb.windowStart = now
		cb.windowFailures = 0
	}
	cb.windowFailures++

	if cb.state == CircuitClosed && cb.windowFailures >= cb.cfg.FailureThreshold {
		cb.transition(CircuitOpen)
		cb.openedAt = now
	}
}

func (cb *CircuitBreaker) transition(to CircuitState) {
	from := cb.state
	cb.state = to
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(from, to)
	}
}

// ProviderBreakers manages circuit breakers keyed by provider. The registry
// is process-wide and outlives any single identification request; per-request
// state must never hold breaker state of its own.
type ProviderBreakers struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	cfg      CircuitBreakerConfig
}

// NewProviderBreakers creates a registry of per-provider circuit breakers.
func NewProviderBreakers(cfg CircuitBreakerConfig) *ProviderBreakers {
	return &ProviderBreakers{
		breakers: make(map[string]*CircuitBreaker),
		cfg:      cfg,
	}
}

// Get returns the circuit breaker for the named provider, creating one if
// needed.
func (pb *ProviderBreakers) Get(provider string) *CircuitBreaker {
	pb.mu.RLock()
	cb, ok := pb.breakers[provider]
	pb.mu.RUnlock()
	if ok {
		return cb
	}

	pb.mu.Lock()
	defer pb.mu.Unlock()
	// Double-check after acquiring write lock.
	if cb, ok = pb.breakers[provider]; ok {
		return cb
	}
	cb = NewCircuitBreaker(pb.cfg)
	pb.breakers[provider] = cb
	return cb
}

// States returns a snapshot of all circuit breaker states.
func (pb *ProviderBreakers) States() map[string]CircuitState {
	pb.mu.RLock()
	defer pb.mu.RUnlock()
	states := make(map[string]CircuitState, len(pb.breakers))
	for name, cb := range pb.breakers {
		states[name] = cb.State()
	}
	return states
}
