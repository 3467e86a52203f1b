// Package fxmodule wires fastex into an application already using
// Uber fx for dependency injection, the same fx.Module shape the
// retrieval pack's production rate limiter exposes.
package fxmodule

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"

	"github.com/hophndev/fastex-go"
	"github.com/hophndev/fastex-go/config"
	"github.com/hophndev/fastex-go/storage/composite"
	"github.com/hophndev/fastex-go/storage/local"
	"github.com/hophndev/fastex-go/storage/remote"
)

// Module exports fastex's constructors for FX.
var Module = fx.Module("fastex",
	fx.Provide(
		NewBackendFromConfig,
		NewEvaluator,
	),
	fx.Invoke(registerHooks),
)

// BackendParams holds the dependencies NewBackendFromConfig needs.
type BackendParams struct {
	fx.In

	Config  *config.Config
	Logger  fastex.Logger           `optional:"true"`
	Metrics fastex.MetricsCollector `optional:"true"`
}

// NewBackendFromConfig builds the composite Backend (remote primary,
// local fallback) described by cfg.
func NewBackendFromConfig(params BackendParams) (fastex.Backend, error) {
	cfg := params.Config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fastex config: %w", err)
	}

	logger := params.Logger
	if logger == nil {
		logger = fastex.NoOpLogger{}
	}
	metrics := params.Metrics
	if metrics == nil {
		metrics = fastex.NoOpMetrics{}
	}

	remoteBackend := remote.New(remote.Config{
		URL:          cfg.Remote.URL,
		CallTimeout:  cfg.RemoteCallTimeout(),
		FallbackMode: cfg.RemoteFallbackMode(),
	}, remote.WithLogger(logger), remote.WithMetrics(metrics))

	localBackend := local.New(
		local.WithCleanupInterval(time.Duration(cfg.Local.CleanupIntervalSeconds)*time.Second),
		local.WithMaxKeys(cfg.Local.MaxKeys),
		local.WithLogger(logger),
	)

	strategy := composite.CircuitBreakerStrategy
	switch cfg.Composite.SwitchingStrategy {
	case "health_check":
		strategy = composite.HealthCheckStrategy
	case "fail_fast":
		strategy = composite.FailFastStrategy
	}

	return composite.New(remoteBackend, localBackend,
		composite.WithStrategy(strategy),
		composite.WithFailureThreshold(cfg.Composite.FailureThreshold),
		composite.WithRecoveryTimeout(time.Duration(cfg.Composite.RecoveryTimeoutSeconds)*time.Second),
		composite.WithHealthCheckInterval(time.Duration(cfg.Composite.HealthCheckIntervalSeconds)*time.Second),
		composite.WithLogger(logger),
	), nil
}

// NewEvaluator builds the fastex.Evaluator bound to the configured
// Backend.
func NewEvaluator(backend fastex.Backend) *fastex.Evaluator {
	return fastex.NewEvaluator(backend)
}

type hookParams struct {
	fx.In

	Backend fastex.Backend
	Logger  fastex.Logger `optional:"true"`
}

func registerHooks(lc fx.Lifecycle, params hookParams) {
	backend := params.Backend
	logger := params.Logger
	if logger == nil {
		logger = fastex.NoOpLogger{}
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("fastex backend starting")
			return backend.Connect(ctx)
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("fastex backend stopping")
			return backend.Disconnect(ctx)
		},
	})
}
