package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/leadscout-hq/leadscout/internal/domain"
	"github.com/leadscout-hq/leadscout/internal/logger"
)

// Operation is a unit of fallible work executed under a retry policy.
type Operation[T any] func(ctx context.Context) (T, error)

// Do runs op at most policy.MaxRetries+1 times, sleeping the current backoff
// between attempts and multiplying it by policy.BackoffMultiplier after each
// failure. It returns on the first success. No sleep follows the final
// attempt. The returned attempt log holds one entry per executed attempt in
// order; its length never exceeds MaxRetries+1.
//
// Do never inspects the error: every failure is treated as retryable. The
// backoff sleep honors ctx, so cancelling the context during a backoff stops
// the loop with the attempts made so far.
func Do[T any](ctx context.Context, policy domain.RetryPolicy, log logger.Logger, op Operation[T]) (T, []domain.RetryAttempt, error) {
	if log == nil {
		log = logger.NopLogger{}
	}
	policy = policy.Sanitize()

	var zero T
	total := policy.MaxRetries + 1
	attempts := make([]domain.RetryAttempt, 0, total)
	backoff := policy.InitialBackoff

	for attempt := 1; ; attempt++ {
		result, err := op(ctx)
		if err == nil {
			attempts = append(attempts, domain.RetryAttempt{
				Attempt:   attempt,
				Timestamp: time.Now().UTC(),
				Outcome:   domain.AttemptSuccess,
			})
			return result, attempts, nil
		}

		entry := domain.RetryAttempt{
			Attempt:     attempt,
			Timestamp:   time.Now().UTC(),
			Outcome:     domain.AttemptFailure,
			ErrorDetail: err.Error(),
		}

		if attempt == total {
			attempts = append(attempts, entry)
			return zero, attempts, fmt.Errorf("exhausted %d attempts: %w", total, err)
		}

		entry.Backoff = backoff
		attempts = append(attempts, entry)
		log.WarnObj("operation failed; backing off before retry", "retry_state", map[string]any{
			"attempt":      attempt,
			"max_attempts": total,
			"backoff_ms":   backoff.Milliseconds(),
			"error":        err.Error(),
		})

		select {
		case <-ctx.Done():
			return zero, attempts, errors.Join(ctx.Err(), err)
		case <-time.After(backoff):
		}

		backoff = time.Duration(float64(backoff) * policy.BackoffMultiplier)
	}
}
