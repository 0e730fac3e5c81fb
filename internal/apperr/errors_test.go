package apperr_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"laundry-dispatch/internal/apperr"
)

func TestIsDomain(t *testing.T) {
	t.Parallel()

	require.True(t, apperr.IsDomain(fmt.Errorf("bind: %w", apperr.ErrCapacityLost)))
	require.True(t, apperr.IsDomain(apperr.ErrForbidden))
	require.False(t, apperr.IsDomain(errors.New("connection reset")))
	require.False(t, apperr.IsDomain(nil))
}

func TestFromContext(t *testing.T) {
	t.Parallel()

	require.NoError(t, apperr.FromContext(nil))

	err := apperr.FromContext(fmt.Errorf("query: %w", context.Canceled))
	require.ErrorIs(t, err, apperr.ErrCancelled)
	require.ErrorIs(t, err, context.Canceled)

	err = apperr.FromContext(context.DeadlineExceeded)
	require.ErrorIs(t, err, apperr.ErrCancelled)

	other := errors.New("x")
	require.Same(t, other, apperr.FromContext(other))
}
