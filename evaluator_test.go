package fastex

import (
	"context"
	"testing"
	"time"
)

// stubBackend keeps a per-key counter so the evaluator tests can
// assert short-circuit behavior without a real Backend.
type stubBackend struct {
	counts map[string]int64
	limits map[string]int64
}

func newStubBackend() *stubBackend {
	return &stubBackend{counts: map[string]int64{}, limits: map[string]int64{}}
}

func (s *stubBackend) Connect(context.Context) error    { return nil }
func (s *stubBackend) Disconnect(context.Context) error { return nil }
func (s *stubBackend) IsConnected() bool                { return true }

func (s *stubBackend) CheckLimit(ctx context.Context, key string, times, windowMS int64) (Decision, error) {
	s.counts[key]++
	count := s.counts[key]
	if count > times {
		return Decision{RetryAfterMS: 900, CurrentCount: count}, nil
	}
	return Decision{RetryAfterMS: 0, CurrentCount: count}, nil
}

type noopResponse struct {
	status  int
	headers map[string]string
}

func newNoopResponse() *noopResponse {
	return &noopResponse{headers: map[string]string{}}
}

func (r *noopResponse) SetHeader(k, v string)          { r.headers[k] = v }
func (r *noopResponse) SetStatus(code int)             { r.status = code }
func (r *noopResponse) Write(b []byte) (int, error)    { return len(b), nil }

// TestMultiPolicyShortCircuit covers scenario S2: P2 (times=1) rejects
// on the second call before P1 (times=5) is ever evaluated.
func TestMultiPolicyShortCircuit(t *testing.T) {
	backend := newStubBackend()
	eval := NewEvaluator(backend)

	p1, err := NewLimitPolicy(5, 60*time.Second, WithRouteIndex(0))
	if err != nil {
		t.Fatalf("p1: %v", err)
	}
	p2, err := NewLimitPolicy(1, time.Second, WithRouteIndex(1))
	if err != nil {
		t.Fatalf("p2: %v", err)
	}
	policies := []*LimitPolicy{p2, p1}

	req := fakeRequest{addr: "10.0.0.1", path: "/checkout"}

	d1, err := eval.EvaluateAll(context.Background(), policies, req, newNoopResponse())
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	if !d1.Admitted() {
		t.Fatalf("first call should be admitted, got %+v", d1)
	}

	resp2 := newNoopResponse()
	d2, err := eval.EvaluateAll(context.Background(), policies, req, resp2)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if d2.Admitted() {
		t.Fatalf("second call should be rejected by P2, got %+v", d2)
	}
	if resp2.status != 429 {
		t.Errorf("expected on_reject to set 429, got %d", resp2.status)
	}

	p1Key := p1.key(req)
	if backend.counts[p1Key] != 1 {
		t.Errorf("P1 should have been evaluated only once (short-circuited on second call), got %d calls", backend.counts[p1Key])
	}
}
