package composite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hophndev/fastex-go"
	"github.com/hophndev/fastex-go/internal/clock"
)

// fakeBackend is a deterministic double used in place of a real
// remote or local backend so composite tests don't need a live store.
type fakeBackend struct {
	connected bool
	fail      bool
	decision  fastex.Decision
}

func (f *fakeBackend) Connect(ctx context.Context) error    { f.connected = true; return nil }
func (f *fakeBackend) Disconnect(ctx context.Context) error { f.connected = false; return nil }
func (f *fakeBackend) IsConnected() bool                    { return f.connected }

func (f *fakeBackend) CheckLimit(ctx context.Context, key string, times, windowMS int64) (fastex.Decision, error) {
	if f.fail {
		return fastex.Decision{}, &fastex.BackendUnavailableError{Backend: "fake", Op: "check_limit", Err: context.DeadlineExceeded}
	}
	return f.decision, nil
}

// TestCircuitOpensAndRecovers covers scenario S3.
func TestCircuitOpensAndRecovers(t *testing.T) {
	primary := &fakeBackend{connected: true, fail: true}
	fallback := &fakeBackend{connected: true, decision: fastex.Decision{RetryAfterMS: 0, CurrentCount: 1}}
	mockClock := clock.NewMock(time.Unix(0, 0))

	b := New(primary, fallback,
		WithFailureThreshold(3),
		WithRecoveryTimeout(60*time.Second),
		WithClock(mockClock),
	)
	ctx := context.Background()
	require.NoError(t, b.Connect(ctx))
	defer b.Disconnect(ctx)

	for i := 0; i < 3; i++ {
		_, err := b.CheckLimit(ctx, "k", 10, 1000)
		require.NoError(t, err)
	}

	stats := b.Stats()
	require.Equal(t, OPEN, stats.CircuitState)
	require.EqualValues(t, 1, stats.SwitchesToFallback)

	// 4th call: circuit OPEN, routed straight to fallback.
	d, err := b.CheckLimit(ctx, "k", 10, 1000)
	require.NoError(t, err)
	require.True(t, d.Admitted())

	// Advance past recovery_timeout and let the primary recover.
	mockClock.Advance(61 * time.Second)
	primary.fail = false

	d, err = b.CheckLimit(ctx, "k", 10, 1000)
	require.NoError(t, err)
	require.True(t, d.Admitted())

	stats = b.Stats()
	require.Equal(t, CLOSED, stats.CircuitState)
	require.EqualValues(t, 1, stats.SwitchesToPrimary)
}

func TestFailFastRetriesFallbackInline(t *testing.T) {
	primary := &fakeBackend{connected: true, fail: true}
	fallback := &fakeBackend{connected: true, decision: fastex.Decision{RetryAfterMS: 0, CurrentCount: 1}}

	b := New(primary, fallback, WithStrategy(FailFastStrategy))
	ctx := context.Background()
	require.NoError(t, b.Connect(ctx))
	defer b.Disconnect(ctx)

	d, err := b.CheckLimit(ctx, "k", 10, 1000)
	require.NoError(t, err)
	require.True(t, d.Admitted())

	stats := b.Stats()
	require.EqualValues(t, 1, stats.PrimaryFailures)
	require.EqualValues(t, 1, stats.FallbackRequests)
}

func TestForceSwitch(t *testing.T) {
	primary := &fakeBackend{connected: true}
	fallback := &fakeBackend{connected: true}

	b := New(primary, fallback)
	b.ForceSwitchToFallback()
	require.Equal(t, OPEN, b.Stats().CircuitState)

	b.ForceSwitchToPrimary()
	require.Equal(t, CLOSED, b.Stats().CircuitState)
}
