package parser

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrMalformedResponse marks provider output that is not a valid proposal.
// Retrying the same request does not fix it.
var ErrMalformedResponse = errors.New("malformed fallback response")

// RateLimitError indicates a provider returned HTTP 429.
type RateLimitError struct {
	Err        error
	RetryAfter time.Duration
	Provider   string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s rate limited (retry after %s): %v", e.Provider, e.RetryAfter, e.Err)
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// NewRateLimitError creates a RateLimitError. A non-positive retryAfterSecs means 60s.
func NewRateLimitError(provider string, err error, retryAfterSecs int) *RateLimitError {
	if retryAfterSecs <= 0 {
		retryAfterSecs = 60
	}
	return &RateLimitError{
		Err:        err,
		RetryAfter: time.Duration(retryAfterSecs) * time.Second,
		Provider:   provider,
	}
}

// ParseRetryAfterHeader reads a Retry-After header given in seconds. It
// returns 0 for empty or non-numeric values.
func ParseRetryAfterHeader(val string) int {
	secs, err := strconv.Atoi(val)
	if err != nil {
		return 0
	}
	return secs
}

// NoRetry reports whether a failed call should not be retried: malformed
// output and rate limits.
func NoRetry(err error) bool {
	var rl *RateLimitError
	return errors.Is(err, ErrMalformedResponse) || errors.As(err, &rl)
}
