// Package fastex implements a fixed-window rate-limiting core meant to
// be embedded as middleware or a dependency inside an HTTP service.
//
// The package is split into a small set of collaborators: a LimitPolicy
// describes a rule (N events per window), a Backend executes the
// fixed-window counter atomically against either a remote store
// (storage/remote) or an in-process map (storage/local), and an
// Evaluator glues a policy and a request to a Backend to produce a
// Decision. storage/composite fronts a primary and fallback Backend
// with pluggable failover strategies.
//
// fastex implements fixed-window counting only; token-bucket,
// leaky-bucket, and sliding-window-log semantics are out of scope.
package fastex
