package fastex

import "context"

// Evaluator glues a set of LimitPolicy rules and a request to a
// Backend, producing an admission Decision per policy. It is the
// collaborator a host framework's middleware calls before running the
// user handler.
type Evaluator struct {
	backend Backend
}

// NewEvaluator builds an Evaluator bound to the given Backend. Policies
// are passed per-call to Evaluate rather than captured here, so the
// same Evaluator can front routes with different policy stacks.
func NewEvaluator(backend Backend) *Evaluator {
	return &Evaluator{backend: backend}
}

// Evaluate runs a single policy against the backend and returns its
// Decision. If the decision rejects, policy.onReject is invoked before
// returning so the caller can stop handler execution.
func (e *Evaluator) Evaluate(ctx context.Context, policy *LimitPolicy, req Request, resp Response) (Decision, error) {
	key := policy.key(req)
	decision, err := e.backend.CheckLimit(ctx, key, policy.times, policy.windowMS)
	if err != nil {
		return Decision{}, err
	}
	if !decision.Admitted() {
		policy.onReject(req, resp, decision)
	}
	return decision, nil
}

// EvaluateAll runs an ordered stack of policies against the same
// request, short-circuiting on the first rejection (spec scenario
// S2): later policies in the stack are never evaluated once an earlier
// one rejects, so their counters are left untouched by that call.
//
// The returned Decision is the one that decided the outcome: either
// the rejecting policy's Decision, or the last policy's admitting
// Decision when all are admitted.
func (e *Evaluator) EvaluateAll(ctx context.Context, policies []*LimitPolicy, req Request, resp Response) (Decision, error) {
	var last Decision
	for _, policy := range policies {
		decision, err := e.Evaluate(ctx, policy, req, resp)
		if err != nil {
			return Decision{}, err
		}
		if !decision.Admitted() {
			return decision, nil
		}
		last = decision
	}
	return last, nil
}
