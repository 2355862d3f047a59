package feed

import (
	"context"
	"errors"
	"net"
	"time"
)

// TimeoutRetryPolicy retries timeouts with exponential backoff and gives up
// immediately on every other transport error. It exists for the one endpoint
// that is known to respond slowly; transient timeouts there are routine while
// other failures (DNS, refused connections, TLS) are not worth waiting out.
type TimeoutRetryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
}

// NewTimeoutRetryPolicy builds a policy allowing maxAttempts total attempts
// with a backoff of baseDelay*2^attempt between them.
func NewTimeoutRetryPolicy(maxAttempts int, baseDelay time.Duration) *TimeoutRetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &TimeoutRetryPolicy{maxAttempts: maxAttempts, baseDelay: baseDelay}
}

// ShouldRetry reports whether another attempt is warranted. Only timeouts
// qualify; a canceled context never does.
func (p *TimeoutRetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt >= p.maxAttempts-1 {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// Backoff returns baseDelay shifted left by the zero-based attempt index,
// yielding the 1s, 2s, 4s, 8s progression with a one-second base.
func (p *TimeoutRetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return p.baseDelay << uint(attempt)
}
