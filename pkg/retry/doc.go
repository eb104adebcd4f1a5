// Package retry implements the bounded retry policy wrapped around every
// page fetch.
//
// A Policy is an explicit value: MaxAttempts counts every attempt including
// the first, Backoff schedules the waits in between, and RetryIf decides
// which failures are transient. The default predicate retries typed errors
// from pkg/errors whose type is network, timeout, rate_limit or
// server_error. Rate limit errors carrying a Retry-After wait at least that
// long.
//
//	policy := retry.FromConfig(cfg.Retry, log)
//	page, err := retry.DoWithResult(ctx, policy, func(ctx context.Context) (*Page, error) {
//	    return client.fetchOnce(ctx, project, offset)
//	})
//	if errors.Is(err, retry.ErrAttemptsExhausted) {
//	    // every attempt failed with a retryable error
//	}
//
// Waits between attempts end early when the context is cancelled.
package retry
