package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_ErrorAndUnwrap(t *testing.T) {
	appErr := NotFound("contact", "c-1")

	assert.Contains(t, appErr.Error(), "NOT_FOUND")
	assert.Contains(t, appErr.Error(), "c-1")
	assert.True(t, errors.Is(appErr, ErrNotFound))
}

func TestHTTPStatus_AppError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", NotFound("contact", "c-1"), http.StatusNotFound},
		{"conflict", AlreadyExists("contact", "email", "a@b.c"), http.StatusConflict},
		{"invalid input", InvalidInput("bad"), http.StatusBadRequest},
		{"unauthorized", Unauthorized("nope"), http.StatusUnauthorized},
		{"forbidden", Forbidden("nope"), http.StatusForbidden},
		{"rate limited", RateLimited("slow down"), http.StatusTooManyRequests},
		{"unavailable", Unavailable("db down"), http.StatusServiceUnavailable},
		{"internal", Internal(errors.New("boom")), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, HTTPStatus(tt.err))
		})
	}
}

func TestHTTPStatus_WrappedSentinel(t *testing.T) {
	err := fmt.Errorf("load user: %w", ErrRateLimited)
	assert.Equal(t, http.StatusTooManyRequests, HTTPStatus(err))

	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("opaque")))
}
