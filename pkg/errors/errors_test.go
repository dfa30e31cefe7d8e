package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstructorsCarryStatus(t *testing.T) {
	cases := []struct {
		err    *AppError
		code   string
		status int
	}{
		{NotFound("Chat", nil), "NOT_FOUND", http.StatusNotFound},
		{BadRequest("bad", nil), "BAD_REQUEST", http.StatusBadRequest},
		{Unauthorized("who", nil), "UNAUTHORIZED", http.StatusUnauthorized},
		{Forbidden("no", nil), "FORBIDDEN", http.StatusForbidden},
		{AlreadyExists("Chat", nil), "ALREADY_EXISTS", http.StatusConflict},
		{Internal("boom", nil), "INTERNAL_ERROR", http.StatusInternalServerError},
		{TooManyRequests("slow down"), "TOO_MANY_REQUESTS", http.StatusTooManyRequests},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.code, tc.err.Code)
		assert.Equal(t, tc.status, tc.err.Status)
	}
}

func TestIsMatchesWrappedErrors(t *testing.T) {
	base := NotFound("Chat", nil)
	wrapped := fmt.Errorf("loading inbox: %w", base)

	assert.True(t, Is(wrapped, "NOT_FOUND"))
	assert.False(t, Is(wrapped, "FORBIDDEN"))
	assert.False(t, Is(fmt.Errorf("plain"), "NOT_FOUND"))
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := fmt.Errorf("socket closed")
	err := Internal("Failed to fetch chats", cause)

	assert.Equal(t, cause, err.Unwrap())
	assert.Contains(t, err.Error(), "INTERNAL_ERROR")
}
