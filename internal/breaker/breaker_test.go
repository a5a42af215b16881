package breaker

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_TripsAtThreshold(t *testing.T) {
	t.Parallel()

	b := New(3)
	errTimeout := errors.New("timeout")

	assert.False(t, b.RecordFailure(errTimeout))
	assert.False(t, b.RecordFailure(errTimeout))
	assert.True(t, b.RecordFailure(errTimeout))
	assert.True(t, b.Tripped())
	assert.Equal(t, 3, b.Failures())
	assert.Equal(t, errTimeout, b.LastError())
}

func TestCircuitBreaker_SuccessResets(t *testing.T) {
	t.Parallel()

	b := New(3)
	b.RecordFailure(errors.New("first"))
	b.RecordFailure(errors.New("second"))
	b.RecordSuccess()

	assert.Equal(t, 0, b.Failures())
	assert.NoError(t, b.LastError())
	assert.False(t, b.RecordFailure(errors.New("third")))
	assert.False(t, b.Tripped())
}

func TestNew_Threshold(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		threshold int
		expected  int
	}{
		{name: "explicit", threshold: 5, expected: 5},
		{name: "zero uses default", threshold: 0, expected: DefaultThreshold},
		{name: "negative uses default", threshold: -2, expected: DefaultThreshold},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, New(tt.threshold).Threshold())
		})
	}
}

func TestTrippedError(t *testing.T) {
	t.Parallel()

	cause := errors.New("502 bad gateway")
	var err error = fmt.Errorf("full backfill: %w", &TrippedError{Offset: 4, Total: 10, Failures: 3, Err: cause})

	var tripped *TrippedError
	require.ErrorAs(t, err, &tripped)
	assert.Equal(t, 4, tripped.Offset)
	assert.Equal(t, 10, tripped.Total)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "offset 4/10")
}
