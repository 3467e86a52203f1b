package fastex

import (
	"errors"
	"testing"
)

func TestConfigErrorIs(t *testing.T) {
	err := &ConfigError{Field: "times", Value: 0, Reason: "must be >= 1"}
	if !errors.Is(err, ErrInvalidConfig) {
		t.Error("expected errors.Is(err, ErrInvalidConfig) to be true")
	}
}

func TestBackendUnavailableErrorUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := &BackendUnavailableError{Backend: "remote", Op: "check_limit", Err: cause}
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Error("expected errors.Is(err, ErrBackendUnavailable) to be true")
	}
	if !errors.Is(err, cause) {
		t.Error("expected Unwrap to expose the underlying cause")
	}
}

func TestParseFallbackMode(t *testing.T) {
	cases := map[string]FallbackMode{
		"ALLOW": FallbackAllow,
		"DENY":  FallbackDeny,
		"RAISE": FallbackRaise,
	}
	for in, want := range cases {
		got, err := ParseFallbackMode(in)
		if err != nil {
			t.Fatalf("ParseFallbackMode(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseFallbackMode(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseFallbackMode("bogus"); err == nil {
		t.Error("expected error for invalid fallback mode")
	}
}
