package domainerrors_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	dErrors "custodia/pkg/domain-errors"
)

func TestIs(t *testing.T) {
	err := dErrors.New(dErrors.CodeNotFound, "consent record not found")

	assert.True(t, dErrors.Is(err, dErrors.CodeNotFound))
	assert.False(t, dErrors.Is(err, dErrors.CodeConflict))
	assert.False(t, dErrors.Is(errors.New("plain"), dErrors.CodeNotFound))

	// Codes survive wrapping by callers.
	wrapped := fmt.Errorf("loading record: %w", err)
	assert.True(t, dErrors.Is(wrapped, dErrors.CodeNotFound))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, dErrors.CodeBadRequest, dErrors.CodeOf(dErrors.New(dErrors.CodeBadRequest, "bad")))
	assert.Equal(t, dErrors.CodeInternal, dErrors.CodeOf(errors.New("plain")))
	assert.Equal(t, dErrors.CodeInternal, dErrors.CodeOf(nil))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := dErrors.Wrap(cause, dErrors.CodeInternal, "failed to save consent")

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "failed to save consent")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestToHTTPStatus(t *testing.T) {
	cases := map[dErrors.Code]int{
		dErrors.CodeBadRequest:   http.StatusBadRequest,
		dErrors.CodeUnauthorized: http.StatusUnauthorized,
		dErrors.CodeForbidden:    http.StatusForbidden,
		dErrors.CodeNotFound:     http.StatusNotFound,
		dErrors.CodeConflict:     http.StatusConflict,
		dErrors.CodeInvalidState: http.StatusConflict,
		dErrors.CodeTimeout:      http.StatusGatewayTimeout,
		dErrors.CodeInternal:     http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, dErrors.ToHTTPStatus(code), string(code))
	}
	assert.Equal(t, http.StatusInternalServerError, dErrors.ToHTTPStatus(dErrors.Code("unknown")))
}
