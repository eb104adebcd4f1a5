// Package ratelimit paces requests to the issue tracker.
//
// TokenBucket refills continuously, one token per interval, and its Wait
// honours context cancellation so an interrupted harvest never sits in a
// pacing sleep. PerMinute builds the limiter used by the Jira client from the
// rate_limit.requests_per_minute setting; zero yields Unlimited.
//
//	limiter := ratelimit.PerMinute(60)
//	if err := limiter.Wait(ctx); err != nil {
//	    return err
//	}
package ratelimit
