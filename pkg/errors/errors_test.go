package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppErrorMessageIncludesInternal(t *testing.T) {
	base := errors.New("connection refused")
	err := Wrap(base, "store lookup failed")

	require.Contains(t, err.Error(), "store lookup failed")
	require.Contains(t, err.Error(), "connection refused")
	require.ErrorIs(t, err, base)
}

func TestWithInternalCopies(t *testing.T) {
	wrapped := ErrKeyExpired.WithInternal(errors.New("boom"))

	require.Nil(t, ErrKeyExpired.Internal, "sentinel must not be mutated")
	require.NotNil(t, wrapped.Internal)
	require.Equal(t, ErrKeyExpired.Code, wrapped.Code)
	require.Equal(t, ErrKeyExpired.StatusCode, wrapped.StatusCode)
}

func TestErrorsIsMatchesByCode(t *testing.T) {
	wrapped := ErrUsageLimit.WithInternal(errors.New("context"))
	require.ErrorIs(t, wrapped, ErrUsageLimit)

	chained := fmt.Errorf("validate: %w", ErrKeyNotFound)
	require.ErrorIs(t, chained, ErrKeyNotFound)
	require.NotErrorIs(t, chained, ErrKeyExpired)
}

func TestFromError(t *testing.T) {
	require.Nil(t, FromError(nil))

	appErr := FromError(ErrRateLimit)
	require.Equal(t, ErrRateLimit.Code, appErr.Code)

	generic := FromError(errors.New("anything"))
	require.Equal(t, ErrInternalServer.Code, generic.Code)
	require.Equal(t, http.StatusInternalServerError, generic.StatusCode)
}

func TestNewValidationNamesField(t *testing.T) {
	err := NewValidation("item_key", "must include a scheme and host")
	require.Equal(t, "VALIDATION_FAILED", err.Code)
	require.Equal(t, http.StatusBadRequest, err.StatusCode)
	require.Contains(t, err.Message, "item_key")
}

func TestTaxonomyStatusCodes(t *testing.T) {
	cases := map[*AppError]int{
		ErrDuplicateKey:    http.StatusConflict,
		ErrKeyNotFound:     http.StatusNotFound,
		ErrKeyUnauthorized: http.StatusUnauthorized,
		ErrKeyExpired:      http.StatusGone,
		ErrUsageLimit:      http.StatusForbidden,
		ErrRateLimit:       http.StatusTooManyRequests,
		ErrLockAcquisition: http.StatusLocked,
	}

	for err, status := range cases {
		require.Equal(t, status, err.StatusCode, err.Code)
	}
}
