// Package breaker implements the consecutive-failure guard used by long
// running sync jobs.
package breaker

import (
	"fmt"
)

// DefaultThreshold is the number of consecutive failures that trips a breaker.
const DefaultThreshold = 3

// CircuitBreaker counts consecutive failures within a single job. It is not
// safe for concurrent use; each run owns its own breaker.
type CircuitBreaker struct {
	threshold int
	failures  int
	lastErr   error
}

// New creates a CircuitBreaker. A non-positive threshold uses DefaultThreshold.
func New(threshold int) *CircuitBreaker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &CircuitBreaker{threshold: threshold}
}

// RecordFailure counts a failed operation and reports whether the breaker is now tripped.
func (b *CircuitBreaker) RecordFailure(err error) bool {
	b.failures++
	b.lastErr = err
	return b.Tripped()
}

// RecordSuccess resets the failure count.
func (b *CircuitBreaker) RecordSuccess() {
	b.failures = 0
	b.lastErr = nil
}

// Tripped reports whether the consecutive failure count reached the threshold.
func (b *CircuitBreaker) Tripped() bool {
	return b.failures >= b.threshold
}

// Failures returns the current consecutive failure count.
func (b *CircuitBreaker) Failures() int {
	return b.failures
}

// Threshold returns the configured threshold.
func (b *CircuitBreaker) Threshold() int {
	return b.threshold
}

// LastError returns the most recent recorded failure, if any.
func (b *CircuitBreaker) LastError() error {
	return b.lastErr
}

// TrippedError is returned when a job is aborted by its circuit breaker.
type TrippedError struct {
	Offset   int
	Total    int
	Failures int
	Err      error
}

// Error implements the error interface
func (e *TrippedError) Error() string {
	return fmt.Sprintf("circuit breaker tripped after %d consecutive failures at offset %d/%d: %v",
		e.Failures, e.Offset, e.Total, e.Err)
}

// Unwrap returns the last underlying failure
func (e *TrippedError) Unwrap() error {
	return e.Err
}
