package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	err := New(CodeNotFound, "credit not found")
	assert.True(t, HasCode(err, CodeNotFound))
	assert.False(t, HasCode(err, CodeUnauthorized))
	assert.False(t, HasCode(nil, CodeNotFound))
	assert.False(t, HasCode(errors.New("plain"), CodeNotFound))
}

func TestWrap(t *testing.T) {
	t.Run("wraps a cause", func(t *testing.T) {
		cause := errors.New("connection reset")
		err := Wrap(cause, CodeInternal, "store unavailable")
		require.Error(t, err)
		assert.True(t, HasCode(err, CodeInternal))
		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "store unavailable")
		assert.Contains(t, err.Error(), "connection reset")
	})

	t.Run("nil cause yields nil", func(t *testing.T) {
		assert.NoError(t, Wrap(nil, CodeInternal, "ignored"))
	})

	t.Run("code survives further wrapping", func(t *testing.T) {
		err := New(CodeInsufficientFunds, "balance too low")
		wrapped := fmt.Errorf("placing order: %w", err)
		assert.True(t, HasCode(wrapped, CodeInsufficientFunds))
		assert.Equal(t, CodeInsufficientFunds, CodeOf(wrapped))
	})
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeNotFound, CodeOf(New(CodeNotFound, "missing")))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
}

func TestToHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeUnauthorized:      http.StatusForbidden,
		CodeNotFound:          http.StatusNotFound,
		CodeInvalidInput:      http.StatusBadRequest,
		CodeBadRequest:        http.StatusBadRequest,
		CodeAlreadyTerminal:   http.StatusConflict,
		CodeConflict:          http.StatusConflict,
		CodeInsufficientFunds: http.StatusPaymentRequired,
		CodeSelfReferential:   http.StatusUnprocessableEntity,
		CodeInternal:          http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, ToHTTPStatus(New(code, "x")), "code %s", code)
	}
	assert.Equal(t, http.StatusInternalServerError, ToHTTPStatus(errors.New("plain")))
}
