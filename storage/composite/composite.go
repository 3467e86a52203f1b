// Package composite implements the Composite Backend: it fronts a
// primary and fallback Backend with one of three interchangeable
// switching strategies (circuit breaker, periodic health check,
// fail-fast) and maintains shared statistics across them.
package composite

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hophndev/fastex-go"
	"github.com/hophndev/fastex-go/internal/clock"
)

// CircuitState is the circuit breaker's state (spec.md §3).
type CircuitState int32

const (
	CLOSED CircuitState = iota
	OPEN
	HALF_OPEN
)

func (s CircuitState) String() string {
	switch s {
	case CLOSED:
		return "CLOSED"
	case OPEN:
		return "OPEN"
	case HALF_OPEN:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Strategy selects how the composite decides between primary and
// fallback.
type Strategy int

const (
	// CircuitBreakerStrategy is the default: a CLOSED/OPEN/HALF_OPEN
	// state machine gated by failure_threshold/recovery_timeout.
	CircuitBreakerStrategy Strategy = iota
	// HealthCheckStrategy routes based on a periodic background probe
	// of the primary, independent of per-request outcomes.
	HealthCheckStrategy
	// FailFastStrategy always tries primary first and retries
	// fallback immediately, in the same call, on failure.
	FailFastStrategy
)

// Stats is a snapshot of CompositeStats (spec.md §3).
type Stats struct {
	PrimaryRequests       int64
	PrimaryFailures       int64
	FallbackRequests      int64
	FallbackFailures      int64
	SwitchesToFallback    int64
	SwitchesToPrimary     int64
	ConsecutiveFailures   int64
	CircuitState          CircuitState
	LastFailureTS         int64
	LastRecoveryAttemptTS int64
}

type stats struct {
	primaryRequests       atomic.Int64
	primaryFailures       atomic.Int64
	fallbackRequests      atomic.Int64
	fallbackFailures      atomic.Int64
	switchesToFallback    atomic.Int64
	switchesToPrimary     atomic.Int64
	consecutiveFailures   atomic.Int64
	lastFailureTS         atomic.Int64
	lastRecoveryAttemptTS atomic.Int64
}

// probeKey is the reserved counter key the health-check strategy uses
// to exercise the full CheckLimit path without itself ever rejecting
// (spec.md §9 open question, resolved in SPEC_FULL.md §12).
const probeKey = "__fastex_probe__"

// probeBudget is large enough that the reserved probe key never trips
// a real rejection.
const probeBudget = int64(1) << 62

// Backend is the fastex.Backend implementation that fronts a primary
// and fallback Backend.
type Backend struct {
	primary  fastex.Backend
	fallback fastex.Backend
	strategy Strategy
	clock    clock.Clock
	logger   fastex.Logger

	failureThreshold     int64
	recoveryTimeout      time.Duration
	healthCheckInterval  time.Duration

	mu    sync.Mutex
	state CircuitState
	stats stats

	stopHealthCheck chan struct{}
	healthCheckDone chan struct{}

	lastHealthy   atomic.Bool
	halfOpenProbe atomic.Bool
}

// Option configures a Backend at construction time.
type Option func(*Backend)

// WithStrategy selects the switching strategy; default is
// CircuitBreakerStrategy.
func WithStrategy(s Strategy) Option {
	return func(b *Backend) { b.strategy = s }
}

// WithFailureThreshold overrides the default of 5 consecutive primary
// failures before the circuit opens.
func WithFailureThreshold(n int64) Option {
	return func(b *Backend) { b.failureThreshold = n }
}

// WithRecoveryTimeout overrides the default 60s OPEN→HALF_OPEN delay.
func WithRecoveryTimeout(d time.Duration) Option {
	return func(b *Backend) { b.recoveryTimeout = d }
}

// WithHealthCheckInterval overrides the default 10s probe tick used by
// HealthCheckStrategy.
func WithHealthCheckInterval(d time.Duration) Option {
	return func(b *Backend) { b.healthCheckInterval = d }
}

// WithLogger attaches a Logger; the default is fastex.NoOpLogger.
func WithLogger(l fastex.Logger) Option {
	return func(b *Backend) { b.logger = l }
}

// WithClock overrides the backend's time source, for deterministic
// tests of recovery timing.
func WithClock(c clock.Clock) Option {
	return func(b *Backend) { b.clock = c }
}

// New builds a composite Backend fronting primary and fallback.
func New(primary, fallback fastex.Backend, opts ...Option) *Backend {
	b := &Backend{
		primary:             primary,
		fallback:            fallback,
		strategy:            CircuitBreakerStrategy,
		clock:               clock.New(),
		logger:              fastex.NoOpLogger{},
		failureThreshold:    5,
		recoveryTimeout:     60 * time.Second,
		healthCheckInterval: 10 * time.Second,
		state:               CLOSED,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.lastHealthy.Store(true)
	return b
}

// Connect connects both the primary and fallback backends, and starts
// the health-check probe loop if that strategy is selected.
func (b *Backend) Connect(ctx context.Context) error {
	if err := b.primary.Connect(ctx); err != nil {
		return err
	}
	if err := b.fallback.Connect(ctx); err != nil {
		return err
	}
	if b.strategy == HealthCheckStrategy {
		b.mu.Lock()
		if b.stopHealthCheck == nil {
			b.stopHealthCheck = make(chan struct{})
			b.healthCheckDone = make(chan struct{})
			go b.healthCheckLoop()
		}
		b.mu.Unlock()
	}
	return nil
}

// Disconnect stops the health-check loop (if running) and disconnects
// both backends.
func (b *Backend) Disconnect(ctx context.Context) error {
	b.mu.Lock()
	stop := b.stopHealthCheck
	done := b.healthCheckDone
	b.stopHealthCheck = nil
	b.healthCheckDone = nil
	b.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}

	err1 := b.primary.Disconnect(ctx)
	err2 := b.fallback.Disconnect(ctx)
	if err1 != nil {
		return err1
	}
	return err2
}

// IsConnected reports whether the primary is connected; the composite
// is usable as long as at least the active leg is connected, but
// IsConnected mirrors the primary per the embedded-Backend contract.
func (b *Backend) IsConnected() bool {
	return b.primary.IsConnected() || b.fallback.IsConnected()
}

// Stats returns a snapshot of the composite's statistics.
func (b *Backend) Stats() Stats {
	b.mu.Lock()
	state := b.state
	b.mu.Unlock()
	return Stats{
		PrimaryRequests:       b.stats.primaryRequests.Load(),
		PrimaryFailures:       b.stats.primaryFailures.Load(),
		FallbackRequests:      b.stats.fallbackRequests.Load(),
		FallbackFailures:      b.stats.fallbackFailures.Load(),
		SwitchesToFallback:    b.stats.switchesToFallback.Load(),
		SwitchesToPrimary:     b.stats.switchesToPrimary.Load(),
		ConsecutiveFailures:   b.stats.consecutiveFailures.Load(),
		CircuitState:          state,
		LastFailureTS:         b.stats.lastFailureTS.Load(),
		LastRecoveryAttemptTS: b.stats.lastRecoveryAttemptTS.Load(),
	}
}

// ForceSwitchToPrimary administratively sets the circuit CLOSED,
// useful for ending a maintenance window early.
func (b *Backend) ForceSwitchToPrimary() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != CLOSED {
		b.stats.switchesToPrimary.Add(1)
	}
	b.state = CLOSED
	b.stats.consecutiveFailures.Store(0)
}

// ForceSwitchToFallback administratively sets the circuit OPEN, useful
// for starting a maintenance window on the primary.
func (b *Backend) ForceSwitchToFallback() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != OPEN {
		b.stats.switchesToFallback.Add(1)
	}
	b.state = OPEN
	b.stats.lastFailureTS.Store(b.clock.Now().UnixMilli())
}

// CheckLimit routes the call to primary or fallback per the active
// strategy (spec.md §4.E).
func (b *Backend) CheckLimit(ctx context.Context, key string, times int64, windowMS int64) (fastex.Decision, error) {
	switch b.strategy {
	case HealthCheckStrategy:
		return b.checkHealthCheck(ctx, key, times, windowMS)
	case FailFastStrategy:
		return b.checkFailFast(ctx, key, times, windowMS)
	default:
		return b.checkCircuitBreaker(ctx, key, times, windowMS)
	}
}

func isBackendFailure(err error) bool {
	if err == nil {
		return false
	}
	var unavailable *fastex.BackendUnavailableError
	if errors.As(err, &unavailable) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// checkCircuitBreaker implements the state machine of spec.md §4.E.
func (b *Backend) checkCircuitBreaker(ctx context.Context, key string, times, windowMS int64) (fastex.Decision, error) {
	b.mu.Lock()
	state := b.state
	if state == OPEN {
		now := b.clock.Now().UnixMilli()
		elapsed := time.Duration(now-b.stats.lastFailureTS.Load()) * time.Millisecond
		if elapsed >= b.recoveryTimeout {
			state = HALF_OPEN
			b.state = HALF_OPEN
			b.stats.lastRecoveryAttemptTS.Store(now)
		}
	}
	b.mu.Unlock()

	switch state {
	case CLOSED:
		return b.tryPrimary(ctx, key, times, windowMS, state)
	case HALF_OPEN:
		// Spec.md §4.E: HALF_OPEN allows a single probe to primary;
		// concurrent callers that lose the race go straight to
		// fallback instead of piling onto a possibly-still-failing
		// primary.
		if !b.halfOpenProbe.CompareAndSwap(false, true) {
			return b.runFallback(ctx, key, times, windowMS)
		}
		defer b.halfOpenProbe.Store(false)
		return b.tryPrimary(ctx, key, times, windowMS, state)
	default: // OPEN
		return b.runFallback(ctx, key, times, windowMS)
	}
}

func (b *Backend) tryPrimary(ctx context.Context, key string, times, windowMS int64, observedState CircuitState) (fastex.Decision, error) {
	b.stats.primaryRequests.Add(1)
	decision, err := b.primary.CheckLimit(ctx, key, times, windowMS)
	if isBackendFailure(err) {
		b.stats.primaryFailures.Add(1)
		b.recordPrimaryFailure(observedState)
		b.logger.Warn("composite: primary failed, routing to fallback", "error", err)
		return b.runFallback(ctx, key, times, windowMS)
	}
	if err != nil {
		return fastex.Decision{}, err
	}
	b.recordPrimarySuccess(observedState)
	return decision, nil
}

func (b *Backend) recordPrimaryFailure(observedState CircuitState) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if observedState == HALF_OPEN {
		b.state = OPEN
		b.stats.lastFailureTS.Store(b.clock.Now().UnixMilli())
		return
	}

	n := b.stats.consecutiveFailures.Add(1)
	if b.state == CLOSED && n >= b.failureThreshold {
		b.state = OPEN
		b.stats.lastFailureTS.Store(b.clock.Now().UnixMilli())
		b.stats.switchesToFallback.Add(1)
	}
}

func (b *Backend) recordPrimarySuccess(observedState CircuitState) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if observedState == HALF_OPEN {
		b.state = CLOSED
		b.stats.consecutiveFailures.Store(0)
		b.stats.switchesToPrimary.Add(1)
		return
	}
	b.stats.consecutiveFailures.Store(0)
}

func (b *Backend) runFallback(ctx context.Context, key string, times, windowMS int64) (fastex.Decision, error) {
	b.stats.fallbackRequests.Add(1)
	decision, err := b.fallback.CheckLimit(ctx, key, times, windowMS)
	if err != nil {
		b.stats.fallbackFailures.Add(1)
	}
	return decision, err
}

// checkFailFast implements spec.md §4.E's fail-fast strategy: try
// primary, and on failure retry fallback immediately in the same call.
func (b *Backend) checkFailFast(ctx context.Context, key string, times, windowMS int64) (fastex.Decision, error) {
	b.stats.primaryRequests.Add(1)
	decision, err := b.primary.CheckLimit(ctx, key, times, windowMS)
	if !isBackendFailure(err) {
		return decision, err
	}
	b.stats.primaryFailures.Add(1)
	b.logger.Warn("composite: primary failed, retrying fallback inline", "error", err)
	return b.runFallback(ctx, key, times, windowMS)
}

// checkHealthCheck implements spec.md §4.E's health-check strategy:
// routing follows only the background probe's last observation;
// per-request failures are counted in stats but don't change routing.
func (b *Backend) checkHealthCheck(ctx context.Context, key string, times, windowMS int64) (fastex.Decision, error) {
	if b.lastHealthy.Load() {
		b.stats.primaryRequests.Add(1)
		decision, err := b.primary.CheckLimit(ctx, key, times, windowMS)
		if isBackendFailure(err) {
			b.stats.primaryFailures.Add(1)
		}
		if err != nil {
			return fastex.Decision{}, err
		}
		return decision, nil
	}
	return b.runFallback(ctx, key, times, windowMS)
}

// healthCheckLoop probes the primary every healthCheckInterval using a
// no-op CheckLimit against a reserved key, and flips lastHealthy on
// edge transitions only.
func (b *Backend) healthCheckLoop() {
	defer close(b.healthCheckDone)

	ticker := time.NewTicker(b.healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopHealthCheck:
			return
		case <-ticker.C:
			probeID := uuid.NewString()
			ctx, cancel := context.WithTimeout(context.Background(), b.healthCheckInterval)
			_, err := b.primary.CheckLimit(ctx, probeKey, probeBudget, int64(b.healthCheckInterval/time.Millisecond))
			cancel()

			healthy := err == nil
			wasHealthy := b.lastHealthy.Swap(healthy)
			if healthy && !wasHealthy {
				b.mu.Lock()
				b.state = CLOSED
				b.mu.Unlock()
				b.stats.switchesToPrimary.Add(1)
				b.logger.Info("composite: health check detected primary recovered", "probe_id", probeID)
			} else if !healthy && wasHealthy {
				b.mu.Lock()
				b.state = OPEN
				b.stats.lastFailureTS.Store(b.clock.Now().UnixMilli())
				b.mu.Unlock()
				b.stats.switchesToFallback.Add(1)
				b.logger.Warn("composite: health check detected primary unhealthy", "probe_id", probeID, "error", err)
			}
		}
	}
}
