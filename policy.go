package fastex

import (
	"strconv"
	"time"
)

// Request is the minimal surface the evaluator needs from an inbound
// HTTP request. Host frameworks adapt their own request type to this
// interface instead of the core depending on a specific framework
// (httpx provides a net/http adapter).
type Request interface {
	ClientAddr() string
	RoutePath() string
}

// Response is the minimal surface the evaluator needs to write a
// rejection back to the caller.
type Response interface {
	SetHeader(key, value string)
	SetStatus(code int)
	Write(body []byte) (int, error)
}

// IdentifierFunc extracts the caller-scoped part of a counter key from
// a request. The default returns "{client-ip}:{route-path}".
type IdentifierFunc func(Request) string

// OnRejectFunc is invoked when a policy rejects a request. The default
// writes HTTP 429 with a Retry-After header.
type OnRejectFunc func(Request, Response, Decision)

// LimitPolicy is an immutable description of a rate-limit rule: N
// events per window, scoped by an identifier extracted from the
// request. Construct with NewLimitPolicy; policies are safe to share
// across goroutines once built.
type LimitPolicy struct {
	times      int64
	windowMS   int64
	prefix     string
	identifier IdentifierFunc
	onReject   OnRejectFunc
	routeIndex int
}

// PolicyOption configures a LimitPolicy at construction time.
type PolicyOption func(*LimitPolicy)

// WithPrefix overrides the default "fastex" key prefix.
func WithPrefix(prefix string) PolicyOption {
	return func(p *LimitPolicy) { p.prefix = prefix }
}

// WithIdentifier overrides the default client-ip:route-path extractor.
func WithIdentifier(fn IdentifierFunc) PolicyOption {
	return func(p *LimitPolicy) { p.identifier = fn }
}

// WithOnReject overrides the default HTTP 429 rejection handler.
func WithOnReject(fn OnRejectFunc) PolicyOption {
	return func(p *LimitPolicy) { p.onReject = fn }
}

// WithRouteIndex sets the 0-based position of this policy among the
// policies guarding the same route. Policies on the same route MUST
// have distinct route indices so their counters don't collide.
func WithRouteIndex(idx int) PolicyOption {
	return func(p *LimitPolicy) { p.routeIndex = idx }
}

// NewLimitPolicy builds a LimitPolicy allowing times events per
// window. It returns a *ConfigError if times or window is non-positive;
// validation happens entirely at construction, never at request time.
func NewLimitPolicy(times int64, window time.Duration, opts ...PolicyOption) (*LimitPolicy, error) {
	if times < 1 {
		return nil, &ConfigError{Field: "times", Value: times, Reason: "must be >= 1"}
	}
	windowMS := window.Milliseconds()
	if windowMS < 1 {
		return nil, &ConfigError{Field: "window_ms", Value: windowMS, Reason: "must be >= 1"}
	}
	p := &LimitPolicy{
		times:      times,
		windowMS:   windowMS,
		prefix:     "fastex",
		identifier: DefaultIdentifier,
		onReject:   DefaultOnReject,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Times returns the configured event budget.
func (p *LimitPolicy) Times() int64 { return p.times }

// WindowMS returns the configured window length in milliseconds.
func (p *LimitPolicy) WindowMS() int64 { return p.windowMS }

// RouteIndex returns the policy's position among its siblings on the
// same route.
func (p *LimitPolicy) RouteIndex() int { return p.routeIndex }

// key builds the CounterKey "{prefix}:{identifier}:{route_index}".
func (p *LimitPolicy) key(req Request) string {
	id := p.identifier(req)
	return p.prefix + ":" + id + ":" + strconv.Itoa(p.routeIndex)
}

// DefaultIdentifier returns "{client-ip}:{route-path}".
func DefaultIdentifier(req Request) string {
	return req.ClientAddr() + ":" + req.RoutePath()
}

// DefaultOnReject writes HTTP 429 with a Retry-After header expressing
// ceil(retry_after_ms/1000) seconds.
func DefaultOnReject(_ Request, resp Response, d Decision) {
	seconds := (d.RetryAfterMS + 999) / 1000
	resp.SetHeader("Retry-After", strconv.Itoa(int(seconds)))
	resp.SetStatus(429)
	_, _ = resp.Write([]byte("rate limit exceeded"))
}
