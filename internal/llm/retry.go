package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultRetryAttempts  = 3
	defaultRetryBaseDelay = 1 * time.Second
	defaultRetryMaxDelay  = 10 * time.Second
)

type httpStatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, snippet(e.Body))
}

// retrier re-runs an operation on transient failures with exponential
// backoff. The zero value performs a single attempt.
type retrier struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	sleeper     func(time.Duration)
}

func newRetrier(attempts int, base, max time.Duration) retrier {
	if attempts <= 0 {
		attempts = defaultRetryAttempts
	}
	if base <= 0 {
		base = defaultRetryBaseDelay
	}
	if max <= 0 {
		max = defaultRetryMaxDelay
	}
	return retrier{maxAttempts: attempts, baseDelay: base, maxDelay: max}
}

func (r retrier) do(ctx context.Context, fn func() error) error {
	attempts := r.maxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		delay, ok := r.retryDelay(ctx, err, attempt, attempts)
		if !ok {
			return err
		}
		if sleepErr := r.sleep(ctx, delay); sleepErr != nil {
			return err
		}
	}
	return err
}

func (r retrier) retryDelay(ctx context.Context, err error, attempt, maxAttempts int) (time.Duration, bool) {
	if attempt >= maxAttempts || err == nil || ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}

	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusRequestTimeout,
			statusErr.StatusCode == http.StatusTooManyRequests,
			statusErr.StatusCode >= http.StatusInternalServerError:
			if statusErr.RetryAfter > 0 {
				return r.capDelay(statusErr.RetryAfter), true
			}
			return r.backoffDelay(attempt), true
		default:
			return 0, false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return r.backoffDelay(attempt), true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return r.backoffDelay(attempt), true
	}
	return 0, false
}

// backoffDelay doubles per attempt: 1 -> base, 2 -> base*2, 3 -> base*4.
func (r retrier) backoffDelay(attempt int) time.Duration {
	if r.baseDelay <= 0 {
		return 0
	}
	delay := r.baseDelay
	for i := 1; i < attempt; i++ {
		if delay > r.maxDelay/2 {
			delay = r.maxDelay
			break
		}
		delay *= 2
	}
	return r.capDelay(delay)
}

func (r retrier) capDelay(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	if r.maxDelay > 0 && delay > r.maxDelay {
		return r.maxDelay
	}
	return delay
}

func (r retrier) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if r.sleeper != nil {
		r.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if when, err := http.ParseTime(value); err == nil {
		if delay := time.Until(when); delay > 0 {
			return delay
		}
	}
	return 0
}
