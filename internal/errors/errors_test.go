package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moltyfromclaw/molt-tv/internal/domain"
)

func TestErrorHTTPStatus(t *testing.T) {
	tests := []struct {
		err  *Error
		want int
	}{
		{ValidationError("bad input"), http.StatusBadRequest},
		{UnauthorizedError("no secret"), http.StatusUnauthorized},
		{PaymentError("declined"), http.StatusPaymentRequired},
		{NotFoundError("gone"), http.StatusNotFound},
		{InternalError("boom", nil), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.err.HTTPStatus(), tt.err.Message)
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := InternalError("db unavailable", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "internal: db unavailable: connection refused")
}

func TestAsStructuredError(t *testing.T) {
	t.Run("passes through structured errors", func(t *testing.T) {
		orig := ValidationError("bad")
		assert.Same(t, orig, AsStructuredError(orig))
		assert.Same(t, orig, AsStructuredError(fmt.Errorf("wrapped: %w", orig)))
	})

	t.Run("maps domain sentinels", func(t *testing.T) {
		err := AsStructuredError(domain.ErrStreamNotFound)
		assert.Equal(t, TypeNotFound, err.Type)

		err = AsStructuredError(domain.ErrMissingRoomID)
		assert.Equal(t, TypeValidation, err.Type)
	})

	t.Run("wraps unknown errors as internal", func(t *testing.T) {
		cause := errors.New("surprise")
		err := AsStructuredError(cause)
		require.Equal(t, TypeInternal, err.Type)
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, "internal server error", err.Message)
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.Nil(t, AsStructuredError(nil))
	})
}

func TestWithContext(t *testing.T) {
	err := NotFoundError("stream not found").
		WithContext("stream_id", "stream-1").
		WithContext("caller", "test")

	assert.Equal(t, "stream-1", err.Context["stream_id"])
	assert.Equal(t, "test", err.Context["caller"])

	// Context never leaks into the client response.
	resp := err.ToResponse()
	assert.Equal(t, "stream not found", resp.Error)
	assert.Equal(t, TypeNotFound, resp.Type)
}
