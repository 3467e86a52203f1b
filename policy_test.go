package fastex

import (
	"testing"
	"time"
)

func TestNewLimitPolicyValidation(t *testing.T) {
	if _, err := NewLimitPolicy(0, time.Second); err == nil {
		t.Fatal("expected ConfigError for times=0")
	}
	if _, err := NewLimitPolicy(5, 0); err == nil {
		t.Fatal("expected ConfigError for zero window")
	}
	p, err := NewLimitPolicy(5, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Times() != 5 || p.WindowMS() != 1000 {
		t.Errorf("got times=%d window_ms=%d, want 5/1000", p.Times(), p.WindowMS())
	}
}

func TestDefaultIdentifier(t *testing.T) {
	req := fakeRequest{addr: "1.2.3.4", path: "/v1/widgets"}
	got := DefaultIdentifier(req)
	want := "1.2.3.4:/v1/widgets"
	if got != want {
		t.Errorf("DefaultIdentifier = %q, want %q", got, want)
	}
}

type fakeRequest struct {
	addr string
	path string
}

func (f fakeRequest) ClientAddr() string { return f.addr }
func (f fakeRequest) RoutePath() string  { return f.path }
