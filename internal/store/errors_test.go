package store_test

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eduboard/backend/internal/errors"
	"github.com/eduboard/backend/internal/store"
)

func TestWrapErr(t *testing.T) {
	tests := map[string]struct {
		err       error
		wantCode  errors.Code
		retryable bool
	}{
		"deadline exceeded is retryable": {
			err:       context.DeadlineExceeded,
			wantCode:  errors.CodeUnavailable,
			retryable: true,
		},
		"cancellation is retryable": {
			err:       context.Canceled,
			wantCode:  errors.CodeUnavailable,
			retryable: true,
		},
		"wrapped deadline is still retryable": {
			err:       fmt.Errorf("query: %w", context.DeadlineExceeded),
			wantCode:  errors.CodeUnavailable,
			retryable: true,
		},
		"plain failure is internal": {
			err:       stderrors.New("connection reset by peer"),
			wantCode:  errors.CodeInternal,
			retryable: false,
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			wrapped := store.WrapErr("identity: get user", "u1", tt.err)

			e := errors.Convert(wrapped)
			require.Equal(t, tt.wantCode, e.Code)
			require.Equal(t, tt.retryable, e.Retryable())
			require.ErrorIs(t, wrapped, tt.err)
		})
	}
}
