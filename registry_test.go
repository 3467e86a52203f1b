package fastex

import (
	"context"
	"testing"
)

func TestConfigureLimiterDrainsOldBackend(t *testing.T) {
	old := newStubBackend()
	if err := ConfigureLimiter(context.Background(), old); err != nil {
		t.Fatalf("configure old: %v", err)
	}
	if CurrentBackend() != Backend(old) {
		t.Fatal("expected CurrentBackend to return old")
	}

	next := newStubBackend()
	if err := ConfigureLimiter(context.Background(), next); err != nil {
		t.Fatalf("configure next: %v", err)
	}
	if CurrentBackend() != Backend(next) {
		t.Fatal("expected CurrentBackend to return next after reconfigure")
	}
}

func TestGlobalEvaluateWithoutConfiguredBackend(t *testing.T) {
	defaultRegistry.mu.Lock()
	defaultRegistry.backend = nil
	defaultRegistry.mu.Unlock()

	p, err := NewLimitPolicy(1, 1_000_000_000)
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	req := fakeRequest{addr: "1.1.1.1", path: "/x"}
	_, err = GlobalEvaluate(context.Background(), p, req, newNoopResponse())
	if err == nil {
		t.Fatal("expected NotConnectedError when no backend configured")
	}
}
