package fastex

import (
	"context"
	"sync"
)

// registry holds the process-wide currently configured Backend. It is
// a convenience shim over explicit dependency injection (spec.md §9):
// most applications should construct a Backend and Evaluator directly
// and pass them down, but a global default is useful for simple
// single-backend programs and for framework integrations that can't
// thread a Backend through every handler registration.
type registry struct {
	mu      sync.RWMutex
	backend Backend
	inFlyWG sync.WaitGroup
}

var defaultRegistry registry

// ConfigureLimiter sets the process-wide default Backend. If a backend
// was already configured, ConfigureLimiter waits for in-flight
// CheckLimit calls made through Current() to drain, then disconnects
// the old backend, per spec.md §4.F.
func ConfigureLimiter(ctx context.Context, backend Backend) error {
	defaultRegistry.mu.Lock()
	old := defaultRegistry.backend
	defaultRegistry.backend = backend
	defaultRegistry.mu.Unlock()

	if old == nil {
		return nil
	}
	defaultRegistry.inFlyWG.Wait()
	return old.Disconnect(ctx)
}

// CurrentBackend returns the process-wide default Backend, or nil if
// none has been configured.
func CurrentBackend() Backend {
	defaultRegistry.mu.RLock()
	defer defaultRegistry.mu.RUnlock()
	return defaultRegistry.backend
}

// checkLimitViaRegistry routes a CheckLimit call through the registry
// while tracking it as in-flight, so ConfigureLimiter can drain before
// disconnecting the backend it replaces. Exposed via globalCheckLimit
// for callers that want the singleton convenience instead of holding
// their own Evaluator.
func checkLimitViaRegistry(ctx context.Context, key string, times, windowMS int64) (Decision, error) {
	defaultRegistry.mu.RLock()
	backend := defaultRegistry.backend
	defaultRegistry.inFlyWG.Add(1)
	defaultRegistry.mu.RUnlock()
	defer defaultRegistry.inFlyWG.Done()

	if backend == nil {
		return Decision{}, &NotConnectedError{Backend: "registry"}
	}
	return backend.CheckLimit(ctx, key, times, windowMS)
}

// GlobalEvaluate evaluates policy against the process-wide default
// Backend configured via ConfigureLimiter.
func GlobalEvaluate(ctx context.Context, policy *LimitPolicy, req Request, resp Response) (Decision, error) {
	key := policy.key(req)
	decision, err := checkLimitViaRegistry(ctx, key, policy.times, policy.windowMS)
	if err != nil {
		return Decision{}, err
	}
	if !decision.Admitted() {
		policy.onReject(req, resp, decision)
	}
	return decision, nil
}
