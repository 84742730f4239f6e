// ABOUTME: Retries a failed completion call through the SDK's own retry
// ABOUTME: policy instead of surfacing a transient failure straight to the engine.

package middleware

import (
	"context"

	"github.com/nanoagent/swarmcore/llm"
)

// errorRecoveryPolicy mirrors llm.DefaultRetryPolicy's backoff shape (1s
// base, 2x multiplier, full jitter) but caps at 2 retries (3 attempts
// total) to bound how long one swarm agent stalls on a flaky provider.
func errorRecoveryPolicy() llm.RetryPolicy {
	policy := llm.DefaultRetryPolicy()
	policy.MaxRetries = 2
	return policy
}

// ErrorRecovery retries a completion call via llm.Retry, which honors the
// SDK's IsRetryable() classification (rate limits, server errors, timeouts
// per llm/errors.go) and any provider RetryAfter hint. Non-retryable errors
// (auth, invalid request, content filter) pass straight through on the
// first try.
func ErrorRecovery() Middleware {
	policy := errorRecoveryPolicy()
	return func(ctx context.Context, turn *Turn, req *llm.Request, next Next) (*llm.Response, error) {
		var resp *llm.Response
		err := llm.Retry(ctx, policy, func() error {
			r, err := next(ctx, req)
			resp = r
			return err
		})
		if err != nil {
			return nil, err
		}
		return resp, nil
	}
}
