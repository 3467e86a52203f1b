// Package httpx adapts net/http to the fastex.Request/fastex.Response
// interfaces, and provides a thin std-library middleware helper. It is
// deliberately not tied to any particular router: framework-specific
// middleware (echo, chi, gin, ...) is out of scope (spec.md §1).
package httpx

import (
	"net/http"
	"strings"

	"github.com/hophndev/fastex-go"
)

// Request adapts an *http.Request to fastex.Request.
type Request struct {
	inner *http.Request
}

// Wrap adapts r.
func Wrap(r *http.Request) Request {
	return Request{inner: r}
}

// ClientAddr prefers X-Forwarded-For, then X-Real-IP, then
// RemoteAddr, mirroring the retrieval pack's production key-extraction
// convention.
func (r Request) ClientAddr() string {
	if fwd := r.inner.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.SplitN(fwd, ",", 2)
		return strings.TrimSpace(parts[0])
	}
	if real := r.inner.Header.Get("X-Real-IP"); real != "" {
		return real
	}
	return r.inner.RemoteAddr
}

// RoutePath returns the request's URL path.
func (r Request) RoutePath() string {
	return r.inner.URL.Path
}

// Response adapts an http.ResponseWriter to fastex.Response.
type Response struct {
	inner http.ResponseWriter
}

// WrapResponse adapts w.
func WrapResponse(w http.ResponseWriter) Response {
	return Response{inner: w}
}

func (r Response) SetHeader(key, value string)    { r.inner.Header().Set(key, value) }
func (r Response) SetStatus(code int)              { r.inner.WriteHeader(code) }
func (r Response) Write(body []byte) (int, error) { return r.inner.Write(body) }

// Middleware wraps next with rate limiting for the given ordered
// policy stack, evaluated against eval. On rejection the policy's
// on_reject callback has already written the response by the time
// Middleware returns, so it simply skips calling next.
func Middleware(eval *fastex.Evaluator, policies []*fastex.LimitPolicy, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := Wrap(r)
		resp := WrapResponse(w)

		decision, err := eval.EvaluateAll(r.Context(), policies, req, resp)
		if err != nil {
			http.Error(w, "rate limiter unavailable", http.StatusServiceUnavailable)
			return
		}
		if !decision.Admitted() {
			return
		}
		next.ServeHTTP(w, r)
	})
}
