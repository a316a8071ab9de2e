package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_ErrorAndUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := Internal(inner)

	assert.Equal(t, "INTERNAL_ERROR: an internal error occurred: boom", err.Error())
	assert.ErrorIs(t, err, inner)

	nf := NotFound("session", "abc")
	assert.Equal(t, "NOT_FOUND: session with id abc not found: resource not found", nf.Error())
	assert.ErrorIs(t, nf, ErrNotFound)
}

func TestConstructors_Status(t *testing.T) {
	cause := errors.New("in flight")
	tests := []struct {
		name   string
		err    *AppError
		status int
		is     error
	}{
		{"not found", NotFound("session", "1"), http.StatusNotFound, ErrNotFound},
		{"invalid", InvalidInput("bad"), http.StatusBadRequest, ErrInvalidInput},
		{"unprocessable default", Unprocessable("NOT_READY", "x", nil), http.StatusUnprocessableEntity, ErrUnprocessable},
		{"conflict with cause", Conflict("IN_FLIGHT", "x", cause), http.StatusConflict, cause},
		{"rate limited", TooManyRequests("slow down"), http.StatusTooManyRequests, ErrTooManyRequests},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.err.Status)
			assert.Equal(t, tt.status, HTTPStatus(tt.err))
			assert.ErrorIs(t, tt.err, tt.is)
		})
	}
}

func TestHTTPStatus_Sentinels(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("lookup: %w", ErrNotFound), http.StatusNotFound},
		{ErrConflict, http.StatusConflict},
		{ErrInvalidInput, http.StatusBadRequest},
		{ErrUnprocessable, http.StatusUnprocessableEntity},
		{ErrTooManyRequests, http.StatusTooManyRequests},
		{ErrServiceUnavail, http.StatusServiceUnavailable},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatus(tt.err), tt.err.Error())
	}
}
