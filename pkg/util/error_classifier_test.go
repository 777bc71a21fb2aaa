package util

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
)

func TestIsRetryableError(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
		errType   string
	}{
		{"nil", nil, false, ""},
		{"missing row", pgx.ErrNoRows, false, "row_not_found"},
		{"connection refused", errors.New("dial tcp: connection refused"), true, "db_connection_error"},
		{"duplicate key", errors.New(`duplicate key value violates unique constraint "conversations_pair_key"`), false, "duplicate_key"},
		{"deadline", context.DeadlineExceeded, true, "timeout"},
		{"canceled", context.Canceled, false, "context_canceled"},
		{"unknown", errors.New("something else"), false, "unknown_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			retryable, errType := IsRetryableError(tc.err)
			assert.Equal(t, tc.retryable, retryable)
			assert.Equal(t, tc.errType, errType)
		})
	}
}

func TestShouldRetry(t *testing.T) {
	assert.True(t, ShouldRetry(1, 5, true))
	assert.True(t, ShouldRetry(5, 5, true))
	assert.False(t, ShouldRetry(6, 5, true))
	assert.False(t, ShouldRetry(1, 5, false))
}
