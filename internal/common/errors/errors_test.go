package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeLocked, CodeOf(Locked("room locked")))
	assert.Equal(t, CodeMuted, CodeOf(Muted("you are muted")))
	assert.Equal(t, CodeNotFound, CodeOf(NotFound("gone")))
	assert.Equal(t, CodeExpiredWindow, CodeOf(ExpiredWindow("too late")))
	assert.Equal(t, CodeForbidden, CodeOf(Forbidden("nope")))
	assert.Equal(t, CodeRateLimited, CodeOf(RateLimited("slow down")))
	assert.Equal(t, CodeInvalid, CodeOf(Invalid("bad payload")))
	assert.Equal(t, CodeUnauthorized, CodeOf(Unauthorized("who are you")))
	assert.Equal(t, CodeInternal, CodeOf(Internal("boom", nil)))

	// Plain errors default to internal.
	assert.Equal(t, CodeInternal, CodeOf(stderrors.New("plain")))
}

func TestCodeOfWrappedError(t *testing.T) {
	err := fmt.Errorf("handling event: %w", Forbidden("nope"))
	assert.Equal(t, CodeForbidden, CodeOf(err))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(NotFound("gone")))
	assert.True(t, IsNotFound(fmt.Errorf("load: %w", NotFound("gone"))))
	assert.True(t, IsNotFound(ErrNotFound))
	assert.False(t, IsNotFound(Forbidden("nope")))
	assert.False(t, IsNotFound(stderrors.New("other")))
	assert.False(t, IsNotFound(nil))
}

func TestUnwrap(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Internal("db down", cause)
	assert.True(t, stderrors.Is(err, cause))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{NotFound("gone"), http.StatusNotFound},
		{Unauthorized("who"), http.StatusUnauthorized},
		{Forbidden("nope"), http.StatusForbidden},
		{Locked("locked"), http.StatusForbidden},
		{Muted("muted"), http.StatusForbidden},
		{ExpiredWindow("late"), http.StatusForbidden},
		{RateLimited("fast"), http.StatusTooManyRequests},
		{Invalid("bad"), http.StatusBadRequest},
		{Internal("boom", nil), http.StatusInternalServerError},
		{stderrors.New("plain"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, HTTPStatus(tc.err), "error %v", tc.err)
	}
}
