package control

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Policy defines completion limits and retry behavior.
type Policy struct {
	CompletionTimeout time.Duration
	MaxRetries        int
}

// DefaultPolicy returns the default completion policy.
func DefaultPolicy() Policy {
	return Policy{
		CompletionTimeout: 60 * time.Second,
		MaxRetries:        2,
	}
}

// LimitType identifies which limit is reached.
type LimitType string

const (
	LimitCompletionTimeout LimitType = "completion_timeout_seconds"
)

// LimitError indicates a completion limit was reached.
type LimitError struct {
	Type      LimitType
	Value     int64
	Threshold int64
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("limit reached type=%s value=%d threshold=%d", e.Type, e.Value, e.Threshold)
}

// WithCompletionTimeout derives a context bounded by the policy's completion
// timeout. A non-positive timeout leaves ctx unbounded.
func WithCompletionTimeout(ctx context.Context, p Policy) (context.Context, context.CancelFunc) {
	if p.CompletionTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.CompletionTimeout)
}

// CheckTimeout converts a deadline error from a completion call into a
// LimitError. Other errors are returned unchanged.
func CheckTimeout(p Policy, startedAt time.Time, now time.Time, err error) error {
	if err == nil || !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", &LimitError{
		Type:      LimitCompletionTimeout,
		Value:     int64(now.Sub(startedAt).Seconds()),
		Threshold: int64(p.CompletionTimeout.Seconds()),
	}, err)
}

// MaxBackoffSeconds caps RetryBackoffSeconds.
const MaxBackoffSeconds = 60

// RetryBackoffSeconds computes exponential backoff: 1, 2, 4, ... seconds,
// capped at MaxBackoffSeconds.
func RetryBackoffSeconds(attempt int) int {
	if attempt <= 0 {
		return 0
	}
	if attempt > 7 {
		return MaxBackoffSeconds
	}
	return min(1<<(attempt-1), MaxBackoffSeconds)
}

// ShouldRetry returns whether a failed attempt should be retried.
func ShouldRetry(p Policy, attempts int) bool {
	return attempts <= p.MaxRetries
}

// Error classes used by the circuit breaker and the event journal.
const (
	ClassCommandSource = "command_source_api"
	ClassProvider      = "provider_api"
	ClassQuote         = "quote_api"
	ClassTimeout       = "timeout"
	ClassCanceled      = "canceled"
	ClassDB            = "db"
	ClassUnknown       = "unknown"
)

// ClassifyError maps an error to a coarse class.
func ClassifyError(err error) string {
	if err == nil {
		return ClassUnknown
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ClassTimeout
	case errors.Is(err, context.Canceled):
		return ClassCanceled
	}
	msg := err.Error()
	switch {
	case containsAny(msg, "telegram ", "commander"):
		return ClassCommandSource
	case containsAny(msg, "openai ", "anthropic ", "provider", "model"):
		return ClassProvider
	case containsAny(msg, "quote ", "ticker"):
		return ClassQuote
	case containsAny(msg, "sqlite", "db", "database"):
		return ClassDB
	default:
		return ClassUnknown
	}
}

func containsAny(s string, needles ...string) bool {
	s = strings.ToLower(s)
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
