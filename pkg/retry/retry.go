package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"jiraharvest/pkg/config"
	errs "jiraharvest/pkg/errors"
	"jiraharvest/pkg/logger"
)

// ErrAttemptsExhausted is wrapped by the error returned when every attempt
// failed with a retryable error.
var ErrAttemptsExhausted = errors.New("retry attempts exhausted")

// Operation is one attempt. It receives the context of the whole retry loop.
type Operation func(ctx context.Context) error

// Policy is an explicit retry policy: attempt ceiling, backoff schedule and
// retryable-error predicate.
type Policy struct {
	// MaxAttempts counts every attempt including the first. Values below 1 mean 1.
	MaxAttempts int
	// Backoff strategy to use between attempts
	Backoff BackoffStrategy
	// RetryIf determines if an error should be retried
	RetryIf func(error) bool
	// MaxRetryAfter caps server supplied Retry-After waits. Zero means no cap.
	MaxRetryAfter time.Duration
	// OnRetry is called before each wait
	OnRetry func(attempt int, err error, delay time.Duration)
	// Logger for retry attempts
	Logger logger.Logger
}

// DefaultPolicy returns five attempts with 1s..60s exponential backoff.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxAttempts:   5,
		Backoff:       DefaultExponentialBackoff(),
		RetryIf:       DefaultRetryIf,
		MaxRetryAfter: 5 * time.Minute,
		Logger:        logger.NewNopLogger(),
	}
}

// FromConfig builds a Policy from the retry section of the configuration.
func FromConfig(cfg config.RetryConfig, log logger.Logger) *Policy {
	p := DefaultPolicy()
	p.MaxAttempts = cfg.MaxAttempts
	p.Backoff = &ExponentialBackoff{
		BaseDelay:    cfg.InitialBackoff,
		MaxDelay:     cfg.MaxBackoff,
		Multiplier:   cfg.Multiplier,
		JitterFactor: cfg.Jitter,
	}
	if log != nil {
		p.Logger = log
	}
	return p
}

// DefaultRetryIf retries typed errors whose type is transient. Context
// errors and untyped errors are not retried.
func DefaultRetryIf(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *errs.Error
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return false
}

// Do runs op until it succeeds, fails with a non-retryable error, the
// attempt ceiling is reached or ctx ends. A non-retryable error is returned
// unchanged; exhaustion returns an error wrapping both ErrAttemptsExhausted
// and the last failure.
func (p *Policy) Do(ctx context.Context, op Operation) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	log := p.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}
	retryIf := p.RetryIf
	if retryIf == nil {
		retryIf = DefaultRetryIf
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("retry cancelled before attempt %d: %w", attempt, err)
		}

		err := op(ctx)
		if err == nil {
			if attempt > 1 {
				log.DebugWithFields("operation succeeded after retry", map[string]interface{}{
					"attempt": attempt,
				})
			}
			return nil
		}

		if !retryIf(err) {
			return err
		}

		if attempt >= maxAttempts {
			log.ErrorWithFields("max retry attempts exceeded", map[string]interface{}{
				"attempts":   attempt,
				"last_error": err.Error(),
			})
			return fmt.Errorf("%w after %d attempts: %w", ErrAttemptsExhausted, attempt, err)
		}

		delay := p.delay(attempt, err)
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, delay)
		}
		log.WarnWithFields("retrying operation", map[string]interface{}{
			"attempt":      attempt,
			"max_attempts": maxAttempts,
			"error":        err.Error(),
			"delay_ms":     delay.Milliseconds(),
		})

		if werr := Wait(ctx, delay); werr != nil {
			return fmt.Errorf("retry cancelled after %d attempts: %w", attempt, werr)
		}
	}
}

// delay is the backoff for this attempt, stretched to honour a server
// supplied Retry-After.
func (p *Policy) delay(attempt int, err error) time.Duration {
	var d time.Duration
	if p.Backoff != nil {
		d = p.Backoff.NextDelay(attempt)
	}

	var apiErr *errs.Error
	if errors.As(err, &apiErr) && apiErr.RetryAfter > d {
		d = apiErr.RetryAfter
		if p.MaxRetryAfter > 0 && d > p.MaxRetryAfter {
			d = p.MaxRetryAfter
		}
	}
	return d
}

// DoWithResult executes an operation that returns a result with retry logic
func DoWithResult[T any](ctx context.Context, p *Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := p.Do(ctx, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
